package engine

// Surface is the preview rendering capability supplied by the UI layer.
// The engine pushes exactly one of these per preview decision; the UI
// decides what "showing" means for its toolkit.
//
// ShowEditor hands over a mutable editing surface: the UI must report the
// first user modification back through Engine.MarkDirty (the edit-surface
// capability's content-changed event).
type Surface interface {
	// ShowImage renders an embedded image reference to the given URL.
	// The URL already carries the cache-defeat nonce.
	ShowImage(url string)
	// ShowEditor presents raw text in a mutable editing surface.
	ShowEditor(text string)
	// ShowText renders already-escaped text as preformatted content.
	ShowText(text string)
	// ShowPlaceholder renders a static message; shown for unsupported
	// types and whenever nothing is selected.
	ShowPlaceholder(message string)
	// ShowPreviewError renders an inline error in the preview pane only.
	ShowPreviewError(message string)
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Notifier surfaces operation outcomes to the user.
type Notifier interface {
	Notify(message string)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// NotifyFunc adapts a function to the Notifier interface.
type NotifyFunc func(message string)

func (f NotifyFunc) Notify(message string) { f(message) }

// DropTarget is the capability that yields dropped-file events, decoupled
// from any particular UI toolkit. The terminal client backs it with a
// watched drop folder; a GUI would back it with real drag-and-drop.
type DropTarget interface {
	// Drops returns a channel of paths to files dropped onto the target.
	Drops() <-chan string
}
