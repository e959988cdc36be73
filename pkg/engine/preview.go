package engine

import (
	"strings"

	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

// Kind is the closed set of preview classifications. Adding a new preview
// behavior means adding a variant and a handler, not another string branch.
type Kind int

const (
	// KindUnsupported renders a static placeholder and issues no fetch.
	KindUnsupported Kind = iota
	// KindImage renders an embedded image reference to the content URL.
	KindImage
	// KindEditableText presents the raw text in a mutable editing surface.
	KindEditableText
	// KindReadonlyText renders escaped text as preformatted content.
	KindReadonlyText
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindEditableText:
		return "editable-text"
	case KindReadonlyText:
		return "readonly-text"
	default:
		return "unsupported"
	}
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

var textExts = map[string]bool{
	".js":   true,
	".py":   true,
	".txt":  true,
	".md":   true,
	".json": true,
	".csv":  true,
	".log":  true,
}

// Classify maps a record onto its preview kind. Text files split into
// editable and readonly depending on the caller's access: readers get a
// rendered view only.
func Classify(rec protocol.FileRecord) Kind {
	ext := strings.ToLower(rec.Extension)
	switch {
	case imageExts[ext]:
		return KindImage
	case textExts[ext]:
		if rec.AccessType == protocol.AccessOwner || rec.AccessType == protocol.AccessWrite {
			return KindEditableText
		}
		return KindReadonlyText
	default:
		return KindUnsupported
	}
}

// markupEscaper neutralizes the characters that would let fetched content
// be interpreted as structural markup. Only these three; readonly preview
// is a rendering concern, not a sanitizer.
var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func escapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}
