package engine

import "github.com/MaxymDv/CloudDrive-System/pkg/protocol"

// RemoveMode says what the remove action does for the current selection.
type RemoveMode int

const (
	// RemoveNone: no remove action exposed.
	RemoveNone RemoveMode = iota
	// RemoveDelete: permanent deletion (owner only, requires confirmation).
	RemoveDelete
	// RemoveRevoke: revoke the caller's own access to a shared file.
	RemoveRevoke
)

// Actions is the permission-derived action set for a selected record.
type Actions struct {
	Download bool
	Remove   RemoveMode
	Share    bool
	Edit     bool
}

// actionsFor computes the exposed action set from the record's access type
// and preview kind. Every selection may download; only the owner shares;
// editing needs write access and a content-editable type.
func actionsFor(rec protocol.FileRecord) Actions {
	a := Actions{Download: true}

	switch rec.AccessType {
	case protocol.AccessOwner:
		a.Remove = RemoveDelete
		a.Share = true
	default:
		a.Remove = RemoveRevoke
	}

	if Classify(rec) == KindEditableText {
		a.Edit = true
	}
	return a
}
