// Package engine is the client-side state-synchronization and
// permission-aware interaction core: it keeps a local file catalog
// consistent with the remote store via wholesale refresh, derives filtered
// and sorted views, tracks selection and in-progress edits, classifies
// files for preview, and orchestrates mutations with a full-reload
// consistency strategy.
//
// Consistency model: the catalog snapshot is replaced in full on every
// refresh; there is no incremental merge and no staleness detection, so a
// concurrent mutation by another session is invisible until the next
// refresh completes. Selection and edit state never survive a refresh or a
// re-render.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/MaxymDv/CloudDrive-System/internal/logging"
	"github.com/MaxymDv/CloudDrive-System/pkg/client"
	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

// State is the selection/edit state machine position.
type State int

const (
	StateNoSelection State = iota
	StatePreviewing
	StateEditingClean
	StateEditingDirty
	StateSavePending
)

var (
	// ErrNoSelection is returned by operations that need a selected file.
	ErrNoSelection = errors.New("no file selected")
	// ErrNotInCatalog is returned when a selection target is absent from
	// the current snapshot.
	ErrNotInCatalog = errors.New("file not in current catalog")
	// ErrNoEditSession is returned by SaveContent outside an edit.
	ErrNoEditSession = errors.New("no edit in progress")
	// ErrNotPermitted is returned when the action set does not expose the
	// requested operation for the current selection.
	ErrNotPermitted = errors.New("action not permitted for this file")
	// ErrCancelled is returned when the user declines a confirmation.
	ErrCancelled = errors.New("cancelled")
)

// editSession tracks an in-progress text edit of the selected file. It is
// valid only while its target equals the current selection and is
// destroyed on selection change and on every catalog refresh. The edited
// content itself lives in the editing surface, not here.
type editSession struct {
	target string
	dirty  bool
	saving bool
}

// Config wires an Engine to its collaborators.
type Config struct {
	API     *client.Client
	Surface Surface
	Notify  Notifier
	// OnAuthError runs whenever any remote call comes back unauthorized.
	// It is the forced-logout hook; by the time it runs the engine has
	// already reset its state.
	OnAuthError func()
}

// Engine owns the authoritative client-side state. All state mutation
// happens under one lock inside completion handlers; each handler either
// fully commits or fully no-ops.
type Engine struct {
	api     *client.Client
	surface Surface
	notify  Notifier
	onAuth  func()

	mu         sync.Mutex
	catalog    []protocol.FileRecord
	generation uint64 // bumped on every refresh and re-render
	filterOn   bool
	sortMode   SortMode

	selected    string // storage_name, "" when nothing is selected
	selectedGen uint64 // catalog generation the selection was made against
	actions     Actions
	edit        *editSession
	previewSeq  uint64 // tags preview fetches; stale completions are discarded
}

// New creates an engine in the NoSelection state with an empty catalog.
func New(cfg Config) *Engine {
	e := &Engine{
		api:     cfg.API,
		surface: cfg.Surface,
		notify:  cfg.Notify,
		onAuth:  cfg.OnAuthError,
	}
	if e.notify == nil {
		e.notify = NotifyFunc(func(string) {})
	}
	return e
}

// Reset drops all state: catalog, selection, edit. Used on logout.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.catalog = nil
	e.generation++
	e.clearSelectionLocked()
}

// Refresh fetches the full catalog and replaces the snapshot atomically.
// Any selection and edit session are discarded, including when the refresh
// was triggered by a mutation of the selected file itself. On an
// unauthorized response the session is force-logged-out.
func (e *Engine) Refresh(ctx context.Context) error {
	files, err := e.api.ListFiles(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			e.forceLogout()
		}
		return err
	}

	e.mu.Lock()
	e.catalog = files
	e.generation++
	e.clearSelectionLocked()
	e.mu.Unlock()

	e.surface.ShowPlaceholder("Select a file...")
	logging.Debug("catalog refreshed", zap.Int("files", len(files)))
	return nil
}

// View projects the current snapshot through the filter and sort toggles.
func (e *Engine) View() []protocol.FileRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Project(e.catalog, e.filterOn, e.sortMode)
}

// SetFilter toggles the extension filter. Changing it is a re-render, and
// selection does not survive any render pass.
func (e *Engine) SetFilter(on bool) {
	e.mu.Lock()
	e.filterOn = on
	e.generation++
	e.clearSelectionLocked()
	e.mu.Unlock()

	e.surface.ShowPlaceholder("Select a file...")
}

// SetSort changes the sort mode; like SetFilter, it clears the selection.
func (e *Engine) SetSort(mode SortMode) {
	e.mu.Lock()
	e.sortMode = mode
	e.generation++
	e.clearSelectionLocked()
	e.mu.Unlock()

	e.surface.ShowPlaceholder("Select a file...")
}

// FilterEnabled returns the filter toggle.
func (e *Engine) FilterEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filterOn
}

// SortMode returns the current sort mode.
func (e *Engine) SortMode() SortMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortMode
}

// Select resolves storageName against the current snapshot, makes it the
// selection, computes its action set, and starts the preview. Any previous
// edit session is discarded unconditionally. Selecting a name absent from
// the snapshot fails closed: the state stays NoSelection.
func (e *Engine) Select(ctx context.Context, storageName string) (Actions, error) {
	e.mu.Lock()

	rec, ok := e.findLocked(storageName)
	if !ok {
		e.clearSelectionLocked()
		e.mu.Unlock()
		return Actions{}, ErrNotInCatalog
	}

	e.selected = rec.StorageName
	e.selectedGen = e.generation
	e.actions = actionsFor(rec)
	e.edit = nil
	e.previewSeq++
	seq := e.previewSeq
	e.mu.Unlock()

	e.startPreview(ctx, rec, seq)
	return e.Actions(), nil
}

// ClearSelection empties the selection and hides all actions.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	e.clearSelectionLocked()
	e.mu.Unlock()

	e.surface.ShowPlaceholder("Select a file...")
}

// Selected returns the currently selected record, resolved against the
// current snapshot. After any refresh or re-render it reports false.
func (e *Engine) Selected() (protocol.FileRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedLocked()
}

// Actions returns the exposed action set; zero when nothing is selected.
func (e *Engine) Actions() Actions {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.selectedLocked(); !ok {
		return Actions{}
	}
	return e.actions
}

// State reports the state machine position.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.selectedLocked(); !ok {
		return StateNoSelection
	}
	switch {
	case e.edit == nil:
		return StatePreviewing
	case e.edit.saving:
		return StateSavePending
	case e.edit.dirty:
		return StateEditingDirty
	default:
		return StateEditingClean
	}
}

// MarkDirty records the first modification of the editing surface. It is
// idempotent: repeated edits have no effect beyond the flag already set.
func (e *Engine) MarkDirty() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.edit != nil && e.edit.target == e.selected {
		e.edit.dirty = true
	}
}

// Dirty reports whether the editing surface holds unsaved changes.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.edit != nil && e.edit.dirty
}

// SaveContent sends the full edited content keyed by the edit target's
// storage name. On success the dirty flag is cleared, the user notified,
// and the catalog refreshed (which clears the selection). On failure the
// dirty flag and the surface content are left as they were.
func (e *Engine) SaveContent(ctx context.Context, content string) error {
	e.mu.Lock()
	if e.edit == nil || e.edit.target != e.selected {
		e.mu.Unlock()
		return ErrNoEditSession
	}
	target := e.edit.target
	e.edit.saving = true
	e.mu.Unlock()

	err := e.api.UpdateContent(ctx, target, content)

	e.mu.Lock()
	if e.edit != nil && e.edit.target == target {
		e.edit.saving = false
		if err == nil {
			e.edit.dirty = false
		}
	}
	e.mu.Unlock()

	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			e.forceLogout()
		}
		return err
	}

	e.notify.Notify("Saved!")
	return e.Refresh(ctx)
}

// Upload submits a new file (or a new version of an existing display name)
// and refreshes the catalog. Nothing is pre-selected afterwards.
func (e *Engine) Upload(ctx context.Context, filename string, content io.Reader) error {
	if err := e.api.Upload(ctx, filename, content); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			e.forceLogout()
		}
		return err
	}
	return e.Refresh(ctx)
}

// DeleteOrRevoke removes the selected file. For the owner this permanently
// deletes it; for anyone else it revokes the caller's own access. Both
// paths send the identical request shape keyed by storage name; only the
// confirmation framing differs. The user must confirm either way.
func (e *Engine) DeleteOrRevoke(ctx context.Context, confirm Confirmer) error {
	rec, ok := e.Selected()
	if !ok {
		return ErrNoSelection
	}

	var prompt string
	if rec.AccessType == protocol.AccessOwner {
		prompt = fmt.Sprintf("Delete %s permanently?", rec.Filename)
	} else {
		prompt = fmt.Sprintf("Remove access to %s?", rec.Filename)
	}
	if !confirm.Confirm(prompt) {
		return ErrCancelled
	}

	if err := e.api.Delete(ctx, rec.StorageName); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			e.forceLogout()
		}
		return err
	}

	e.notify.Notify("Done")
	return e.Refresh(ctx)
}

// Share grants targetUser the given level on the selected file. Owner
// only. The share endpoint is keyed by display name rather than storage
// name; see pkg/protocol for the caveat.
func (e *Engine) Share(ctx context.Context, targetUser string, level protocol.ShareLevel) error {
	rec, ok := e.Selected()
	if !ok {
		return ErrNoSelection
	}
	if !e.Actions().Share {
		return ErrNotPermitted
	}
	if !level.Valid() {
		return fmt.Errorf("invalid share level %q", level)
	}

	if err := e.api.Share(ctx, rec.Filename, targetUser, level); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			e.forceLogout()
		}
		return err
	}

	e.notify.Notify("Shared!")
	return e.Refresh(ctx)
}

// Download fetches the selected file's content, returning the reader and
// the display name to save it under.
func (e *Engine) Download(ctx context.Context) (io.ReadCloser, string, error) {
	rec, ok := e.Selected()
	if !ok {
		return nil, "", ErrNoSelection
	}
	rc, err := e.api.FetchRaw(ctx, rec.StorageName)
	if err != nil {
		return nil, "", err
	}
	return rc, rec.Filename, nil
}

// startPreview dispatches on the record's preview kind. Image previews
// render as a URL reference and need no body fetch; text previews fetch
// asynchronously, tagged with the selection they were issued for.
func (e *Engine) startPreview(ctx context.Context, rec protocol.FileRecord, seq uint64) {
	switch Classify(rec) {
	case KindImage:
		e.surface.ShowImage(e.api.RawContentURL(rec.StorageName))
	case KindEditableText, KindReadonlyText:
		go e.fetchTextPreview(ctx, rec, seq)
	default:
		e.surface.ShowPlaceholder("No preview available for this type.")
	}
}

// fetchTextPreview completes a text preview. The completion handler
// discards the response when the selection has moved on since issuance:
// without that guard a slow response for a previous selection could
// overwrite the current preview.
func (e *Engine) fetchTextPreview(ctx context.Context, rec protocol.FileRecord, seq uint64) {
	rc, err := e.api.FetchRaw(ctx, rec.StorageName)
	var text []byte
	if err == nil {
		text, err = io.ReadAll(rc)
		rc.Close()
	}

	e.mu.Lock()
	if e.previewSeq != seq || e.selected != rec.StorageName {
		e.mu.Unlock()
		logging.Debug("discarded stale preview", zap.String("storage_name", rec.StorageName))
		return
	}
	editable := Classify(rec) == KindEditableText
	if err == nil && editable {
		e.edit = &editSession{target: rec.StorageName}
	}
	e.mu.Unlock()

	if err != nil {
		e.surface.ShowPreviewError("Error loading text")
		return
	}
	if editable {
		e.surface.ShowEditor(string(text))
	} else {
		e.surface.ShowText(escapeMarkup(string(text)))
	}
}

// forceLogout resets all state and runs the forced-logout hook. Invoked on
// every unauthorized response, unconditionally.
func (e *Engine) forceLogout() {
	logging.Warn("unauthorized response, forcing logout")
	e.Reset()
	e.api.Logout()
	if e.onAuth != nil {
		e.onAuth()
	}
}

// findLocked resolves a storage name in the current snapshot.
func (e *Engine) findLocked(storageName string) (protocol.FileRecord, bool) {
	for _, rec := range e.catalog {
		if rec.StorageName == storageName {
			return rec, true
		}
	}
	return protocol.FileRecord{}, false
}

// selectedLocked resolves the selection against the current snapshot and
// generation. A selection made against an older snapshot fails closed.
func (e *Engine) selectedLocked() (protocol.FileRecord, bool) {
	if e.selected == "" || e.selectedGen != e.generation {
		return protocol.FileRecord{}, false
	}
	return e.findLocked(e.selected)
}

func (e *Engine) clearSelectionLocked() {
	e.selected = ""
	e.actions = Actions{}
	e.edit = nil
	e.previewSeq++
}
