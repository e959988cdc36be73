package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MaxymDv/CloudDrive-System/pkg/client"
	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

type surfaceEvent struct {
	kind    string // image, editor, text, placeholder, error
	payload string
}

type fakeSurface struct {
	events chan surfaceEvent
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{events: make(chan surfaceEvent, 32)}
}

func (s *fakeSurface) ShowImage(url string)          { s.events <- surfaceEvent{"image", url} }
func (s *fakeSurface) ShowEditor(text string)        { s.events <- surfaceEvent{"editor", text} }
func (s *fakeSurface) ShowText(text string)          { s.events <- surfaceEvent{"text", text} }
func (s *fakeSurface) ShowPlaceholder(msg string)    { s.events <- surfaceEvent{"placeholder", msg} }
func (s *fakeSurface) ShowPreviewError(msg string)   { s.events <- surfaceEvent{"error", msg} }

// waitKind waits for the next event of the given kind, skipping others.
func (s *fakeSurface) waitKind(t *testing.T, kind string) surfaceEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if ev.kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", kind)
		}
	}
}

// expectNone asserts no event of the given kind arrives within the window.
func (s *fakeSurface) expectNone(t *testing.T, kind string, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case ev := <-s.events:
			if ev.kind == kind {
				t.Fatalf("unexpected %q event: %q", kind, ev.payload)
			}
		case <-deadline:
			return
		}
	}
}

// fakeRemote is an in-memory CloudDrive server for engine tests.
type fakeRemote struct {
	mu           sync.Mutex
	catalog      []protocol.FileRecord
	content      map[string]string
	updates      []protocol.UpdateContentRequest
	deletes      []string
	shares       []protocol.ShareRequest
	lastAuth     string
	failUpdate   bool
	unauthorized bool
	rawGates     map[string]chan struct{} // block /raw responses per storage name
}

func newFakeRemote(catalog ...protocol.FileRecord) *fakeRemote {
	return &fakeRemote{
		catalog:  catalog,
		content:  make(map[string]string),
		rawGates: make(map[string]chan struct{}),
	}
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastAuth = r.Header.Get("Authorization")
		unauthorized := f.unauthorized
		catalog := append([]protocol.FileRecord(nil), f.catalog...)
		f.mu.Unlock()

		if unauthorized {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{Detail: "token expired"})
			return
		}
		json.NewEncoder(w).Encode(catalog)
	})

	mux.HandleFunc("GET /raw/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		f.mu.Lock()
		gate := f.rawGates[name]
		body, ok := f.content[name]
		f.mu.Unlock()

		if gate != nil {
			<-gate
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	})

	mux.HandleFunc("POST /update_content", func(w http.ResponseWriter, r *http.Request) {
		var req protocol.UpdateContentRequest
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failUpdate {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{Detail: "write failed"})
			return
		}
		f.updates = append(f.updates, req)
		f.content[req.StorageName] = req.Content
		json.NewEncoder(w).Encode(protocol.StatusResponse{Status: "updated"})
	})

	mux.HandleFunc("DELETE /delete/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deletes = append(f.deletes, r.PathValue("name"))
		f.mu.Unlock()
		json.NewEncoder(w).Encode(protocol.StatusResponse{Status: "deleted"})
	})

	mux.HandleFunc("POST /share", func(w http.ResponseWriter, r *http.Request) {
		var req protocol.ShareRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.shares = append(f.shares, req)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(protocol.StatusResponse{Status: "shared"})
	})

	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(protocol.StatusResponse{Status: "ok"})
	})

	return mux
}

type testEnv struct {
	engine  *Engine
	surface *fakeSurface
	remote  *fakeRemote
	api     *client.Client

	mu            sync.Mutex
	notifications []string
	loggedOut     bool
}

func newTestEnv(t *testing.T, remote *fakeRemote) *testEnv {
	t.Helper()
	ts := httptest.NewServer(remote.handler())
	t.Cleanup(ts.Close)

	env := &testEnv{remote: remote, surface: newFakeSurface()}
	env.api = client.New(client.Config{BaseURL: ts.URL, AuthToken: "test-token"})
	env.engine = New(Config{
		API:     env.api,
		Surface: env.surface,
		Notify: NotifyFunc(func(msg string) {
			env.mu.Lock()
			env.notifications = append(env.notifications, msg)
			env.mu.Unlock()
		}),
		OnAuthError: func() {
			env.mu.Lock()
			env.loggedOut = true
			env.mu.Unlock()
		},
	})
	return env
}

func (env *testEnv) refresh(t *testing.T) {
	t.Helper()
	if err := env.engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	env.surface.waitKind(t, "placeholder")
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	remote := newFakeRemote(
		rec("s1", ".py", "bob", protocol.AccessOwner),
		rec("s2", ".js", "amy", protocol.AccessWrite),
	)
	env := newTestEnv(t, remote)
	env.refresh(t)

	if got := len(env.engine.View()); got != 2 {
		t.Fatalf("expected 2 records, got %d", got)
	}

	// A record vanishing server-side disappears on the next refresh.
	remote.mu.Lock()
	remote.catalog = remote.catalog[:1]
	remote.mu.Unlock()
	env.refresh(t)

	if got := names(env.engine.View()); len(got) != 1 || got[0] != "s1" {
		t.Errorf("expected [s1] after refresh, got %v", got)
	}
}

func TestSelectionClearedByRefreshAndRerender(t *testing.T) {
	remote := newFakeRemote(rec("s1", ".png", "bob", protocol.AccessOwner))
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	env.surface.waitKind(t, "image")
	if env.engine.State() != StatePreviewing {
		t.Fatalf("expected Previewing, got %v", env.engine.State())
	}

	env.refresh(t)
	if env.engine.State() != StateNoSelection {
		t.Error("selection survived a refresh")
	}
	if a := env.engine.Actions(); a != (Actions{}) {
		t.Errorf("actions still exposed after refresh: %+v", a)
	}

	// Re-render via filter toggle also clears selection.
	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	env.engine.SetFilter(true)
	if env.engine.State() != StateNoSelection {
		t.Error("selection survived a filter toggle")
	}

	env.engine.SetFilter(false)
	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	env.engine.SetSort(SortAscending)
	if env.engine.State() != StateNoSelection {
		t.Error("selection survived a sort toggle")
	}
}

func TestSelectUnknownFailsClosed(t *testing.T) {
	remote := newFakeRemote(rec("s1", ".py", "bob", protocol.AccessOwner))
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "ghost"); !errors.Is(err, ErrNotInCatalog) {
		t.Fatalf("expected ErrNotInCatalog, got %v", err)
	}
	if env.engine.State() != StateNoSelection {
		t.Error("failed select left a selection behind")
	}
}

func TestActionSetsByAccess(t *testing.T) {
	remote := newFakeRemote(
		rec("own", ".js", "bob", protocol.AccessOwner),
		rec("wrt", ".js", "amy", protocol.AccessWrite),
		rec("rdo", ".js", "cid", protocol.AccessRead),
		rec("img", ".png", "bob", protocol.AccessOwner),
	)
	env := newTestEnv(t, remote)
	env.refresh(t)

	tests := []struct {
		storage string
		want    Actions
	}{
		{"own", Actions{Download: true, Remove: RemoveDelete, Share: true, Edit: true}},
		{"wrt", Actions{Download: true, Remove: RemoveRevoke, Edit: true}},
		{"rdo", Actions{Download: true, Remove: RemoveRevoke}},
		{"img", Actions{Download: true, Remove: RemoveDelete, Share: true}},
	}

	for _, tt := range tests {
		got, err := env.engine.Select(context.Background(), tt.storage)
		if err != nil {
			t.Fatalf("select %s: %v", tt.storage, err)
		}
		if got != tt.want {
			t.Errorf("%s: actions = %+v, want %+v", tt.storage, got, tt.want)
		}
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	remote := newFakeRemote(
		rec("a", ".js", "bob", protocol.AccessOwner),
		rec("b", ".js", "amy", protocol.AccessOwner),
	)
	remote.content["a"] = "content of a"
	remote.content["b"] = "content of b"

	gate := make(chan struct{})
	remote.rawGates["a"] = gate

	env := newTestEnv(t, remote)
	env.refresh(t)

	// A's preview fetch blocks server-side; B is selected before it
	// resolves.
	if _, err := env.engine.Select(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Select(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}

	ev := env.surface.waitKind(t, "editor")
	if ev.payload != "content of b" {
		t.Fatalf("expected b's content first, got %q", ev.payload)
	}

	// Release A's response; it must be discarded, not rendered.
	close(gate)
	env.surface.expectNone(t, "editor", 200*time.Millisecond)

	if sel, ok := env.engine.Selected(); !ok || sel.StorageName != "b" {
		t.Errorf("selection should still be b")
	}
}

// Selecting a writable .js file classifies editable, editing sets dirty,
// a successful save clears dirty and the selection.
func TestEditSaveFlow(t *testing.T) {
	remote := newFakeRemote(rec("s1", ".js", "amy", protocol.AccessWrite))
	remote.content["s1"] = "let x = 1;"
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	ev := env.surface.waitKind(t, "editor")
	if ev.payload != "let x = 1;" {
		t.Fatalf("editor got %q", ev.payload)
	}
	if env.engine.State() != StateEditingClean {
		t.Fatalf("expected EditingClean, got %v", env.engine.State())
	}

	env.engine.MarkDirty()
	env.engine.MarkDirty() // idempotent
	if env.engine.State() != StateEditingDirty {
		t.Fatalf("expected EditingDirty, got %v", env.engine.State())
	}

	if err := env.engine.SaveContent(context.Background(), "let x = 2;"); err != nil {
		t.Fatalf("save: %v", err)
	}

	remote.mu.Lock()
	if len(remote.updates) != 1 || remote.updates[0].StorageName != "s1" ||
		remote.updates[0].Content != "let x = 2;" {
		t.Errorf("unexpected update request: %+v", remote.updates)
	}
	remote.mu.Unlock()

	if env.engine.State() != StateNoSelection {
		t.Errorf("expected NoSelection after save, got %v", env.engine.State())
	}

	env.mu.Lock()
	saved := len(env.notifications) > 0 && env.notifications[0] == "Saved!"
	env.mu.Unlock()
	if !saved {
		t.Error("save success was not notified")
	}
}

func TestSaveFailureRetainsDirtyState(t *testing.T) {
	remote := newFakeRemote(rec("s1", ".js", "amy", protocol.AccessWrite))
	remote.content["s1"] = "original"
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	env.surface.waitKind(t, "editor")
	env.engine.MarkDirty()

	remote.mu.Lock()
	remote.failUpdate = true
	remote.mu.Unlock()

	err := env.engine.SaveContent(context.Background(), "edited")
	if err == nil {
		t.Fatal("expected save failure")
	}
	var ve *client.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}

	// Dirty flag and selection are retained so nothing is lost.
	if env.engine.State() != StateEditingDirty {
		t.Errorf("expected EditingDirty after failed save, got %v", env.engine.State())
	}
	if sel, ok := env.engine.Selected(); !ok || sel.StorageName != "s1" {
		t.Error("selection lost on failed save")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	remote := newFakeRemote(rec("s1", ".js", "amy", protocol.AccessWrite))
	remote.content["s1"] = "before"
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	env.surface.waitKind(t, "editor")
	env.engine.MarkDirty()
	if err := env.engine.SaveContent(context.Background(), "after"); err != nil {
		t.Fatal(err)
	}

	// Re-opening the preview yields the saved payload.
	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	ev := env.surface.waitKind(t, "editor")
	if ev.payload != "after" {
		t.Errorf("re-opened preview = %q, want %q", ev.payload, "after")
	}
}

func TestReadonlyPreviewEscaped(t *testing.T) {
	remote := newFakeRemote(rec("s1", ".js", "bob", protocol.AccessRead))
	remote.content["s1"] = "a < b && c > d"
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	ev := env.surface.waitKind(t, "text")
	if ev.payload != "a &lt; b &amp;&amp; c &gt; d" {
		t.Errorf("readonly preview = %q", ev.payload)
	}
	// Readers never get an edit session.
	if env.engine.State() != StatePreviewing {
		t.Errorf("expected Previewing, got %v", env.engine.State())
	}
}

func TestUnsupportedPreviewNoFetch(t *testing.T) {
	remote := newFakeRemote(rec("s1", ".zip", "bob", protocol.AccessOwner))
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	ev := env.surface.waitKind(t, "placeholder")
	if !strings.Contains(ev.payload, "No preview") {
		t.Errorf("unexpected placeholder: %q", ev.payload)
	}
}

func TestPreviewErrorInlineOnly(t *testing.T) {
	remote := newFakeRemote(rec("s1", ".js", "bob", protocol.AccessOwner))
	// No content registered: /raw returns 404.
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	env.surface.waitKind(t, "error")

	// Catalog and selection are untouched by a preview failure.
	if len(env.engine.View()) != 1 {
		t.Error("preview failure disturbed the catalog")
	}
	if sel, ok := env.engine.Selected(); !ok || sel.StorageName != "s1" {
		t.Error("preview failure cleared the selection")
	}
}

func TestImagePreviewCarriesNonce(t *testing.T) {
	remote := newFakeRemote(rec("pic", ".png", "bob", protocol.AccessOwner))
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "pic"); err != nil {
		t.Fatal(err)
	}
	ev := env.surface.waitKind(t, "image")
	if !strings.Contains(ev.payload, "/raw/pic?t=") {
		t.Errorf("image URL missing cache-defeat nonce: %q", ev.payload)
	}
}

func TestDeleteOrRevokePrompts(t *testing.T) {
	remote := newFakeRemote(
		rec("own", ".py", "bob", protocol.AccessOwner),
		rec("shr", ".py", "amy", protocol.AccessWrite),
	)
	env := newTestEnv(t, remote)
	env.refresh(t)

	var prompts []string
	accept := ConfirmFunc(func(p string) bool {
		prompts = append(prompts, p)
		return true
	})

	if _, err := env.engine.Select(context.Background(), "own"); err != nil {
		t.Fatal(err)
	}
	if err := env.engine.DeleteOrRevoke(context.Background(), accept); err != nil {
		t.Fatalf("owner delete: %v", err)
	}

	if _, err := env.engine.Select(context.Background(), "shr"); err != nil {
		t.Fatal(err)
	}
	if err := env.engine.DeleteOrRevoke(context.Background(), accept); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if len(prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(prompts))
	}
	if !strings.Contains(prompts[0], "permanently") {
		t.Errorf("owner prompt should say permanent: %q", prompts[0])
	}
	if !strings.Contains(prompts[1], "Remove access") {
		t.Errorf("revoke prompt should say access removal: %q", prompts[1])
	}

	// Request shape is identical either way: DELETE keyed by storage name.
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.deletes) != 2 || remote.deletes[0] != "own" || remote.deletes[1] != "shr" {
		t.Errorf("unexpected delete requests: %v", remote.deletes)
	}
}

func TestDeleteDeclinedIssuesNoRequest(t *testing.T) {
	remote := newFakeRemote(rec("own", ".py", "bob", protocol.AccessOwner))
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "own"); err != nil {
		t.Fatal(err)
	}
	decline := ConfirmFunc(func(string) bool { return false })
	if err := env.engine.DeleteOrRevoke(context.Background(), decline); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.deletes) != 0 {
		t.Errorf("declined delete still issued a request: %v", remote.deletes)
	}
}

func TestShareOwnerOnly(t *testing.T) {
	remote := newFakeRemote(
		rec("own", ".py", "bob", protocol.AccessOwner),
		rec("wrt", ".py", "amy", protocol.AccessWrite),
	)
	env := newTestEnv(t, remote)
	env.refresh(t)

	if _, err := env.engine.Select(context.Background(), "wrt"); err != nil {
		t.Fatal(err)
	}
	if err := env.engine.Share(context.Background(), "carol", protocol.ShareRead); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("write access shared anyway: %v", err)
	}

	if _, err := env.engine.Select(context.Background(), "own"); err != nil {
		t.Fatal(err)
	}
	if err := env.engine.Share(context.Background(), "carol", protocol.ShareWrite); err != nil {
		t.Fatalf("owner share: %v", err)
	}

	// Share is keyed by display name.
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.shares) != 1 {
		t.Fatalf("expected 1 share request, got %d", len(remote.shares))
	}
	if remote.shares[0].Filename != "own.py" || remote.shares[0].TargetUser != "carol" ||
		remote.shares[0].Level != protocol.ShareWrite {
		t.Errorf("unexpected share request: %+v", remote.shares[0])
	}
}

func TestUnauthorizedForcesLogout(t *testing.T) {
	remote := newFakeRemote(rec("s1", ".py", "bob", protocol.AccessOwner))
	env := newTestEnv(t, remote)
	env.refresh(t)

	remote.mu.Lock()
	remote.unauthorized = true
	remote.mu.Unlock()

	err := env.engine.Refresh(context.Background())
	if !errors.Is(err, client.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	env.mu.Lock()
	loggedOut := env.loggedOut
	env.mu.Unlock()
	if !loggedOut {
		t.Error("forced-logout hook did not run")
	}
	if env.api.AuthToken() != "" {
		t.Error("token not cleared on forced logout")
	}
	if env.engine.State() != StateNoSelection || len(env.engine.View()) != 0 {
		t.Error("engine state not reset on forced logout")
	}
}
