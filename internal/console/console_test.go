package console

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MaxymDv/CloudDrive-System/pkg/client"
	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

// runScript feeds a command script into a console wired to a server that
// serves the given catalog, and returns everything the console printed.
func runScript(t *testing.T, catalog []protocol.FileRecord, script string) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(catalog)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	api := client.New(client.Config{BaseURL: ts.URL, AuthToken: "tok"})

	var out bytes.Buffer
	c := New(api, nil, strings.NewReader(script), &out)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func catRec(storage, ext, uploader string, access protocol.AccessType) protocol.FileRecord {
	return protocol.FileRecord{
		Filename:    storage + ext,
		Extension:   ext,
		Uploader:    uploader,
		AccessType:  access,
		StorageName: storage,
	}
}

func TestConsoleSortCommand(t *testing.T) {
	catalog := []protocol.FileRecord{
		catRec("a", ".py", "zed", protocol.AccessOwner),
		catRec("b", ".jpg", "amy", protocol.AccessRead),
	}

	out := runScript(t, catalog, "refresh\nsort asc\nquit\n")
	amy := strings.Index(out, "by amy")
	zed := strings.Index(out, "by zed")
	if amy < 0 || zed < 0 {
		t.Fatalf("listing missing entries:\n%s", out)
	}
	if amy > zed {
		t.Errorf("ascending sort listed zed before amy:\n%s", out)
	}
}

func TestConsoleSortRejectsUnknownMode(t *testing.T) {
	catalog := []protocol.FileRecord{
		catRec("a", ".py", "zed", protocol.AccessOwner),
	}

	out := runScript(t, catalog, "refresh\nsort bogus\nquit\n")
	if !strings.Contains(out, `unknown sort mode "bogus"`) {
		t.Errorf("expected sort mode error, got:\n%s", out)
	}
	if strings.Contains(out, "by zed") {
		t.Errorf("rejected sort command should not print a listing:\n%s", out)
	}
}

func TestConsoleFilterToggle(t *testing.T) {
	catalog := []protocol.FileRecord{
		catRec("keep", ".py", "zed", protocol.AccessOwner),
		catRec("drop", ".png", "zed", protocol.AccessOwner),
	}

	out := runScript(t, catalog, "refresh\nfilter on\nquit\n")
	if !strings.Contains(out, "keep.py") {
		t.Errorf("filtered listing missing keep.py:\n%s", out)
	}
	if strings.Contains(out, "drop.png") {
		t.Errorf("filtered listing should not include drop.png:\n%s", out)
	}
}

func TestConsoleSelectByIndexShowsActions(t *testing.T) {
	catalog := []protocol.FileRecord{
		catRec("pic", ".jpg", "zed", protocol.AccessOwner),
	}

	out := runScript(t, catalog, "refresh\nselect 1\nquit\n")
	if !strings.Contains(out, "Selected. Available: download, rm, share") {
		t.Errorf("expected owner action set for an image:\n%s", out)
	}
	if !strings.Contains(out, "[image] ") || !strings.Contains(out, "/raw/pic?t=") {
		t.Errorf("expected image preview URL with nonce:\n%s", out)
	}
}

func TestConsoleSelectOutOfRange(t *testing.T) {
	catalog := []protocol.FileRecord{
		catRec("pic", ".jpg", "zed", protocol.AccessOwner),
	}

	out := runScript(t, catalog, "refresh\nselect 5\nquit\n")
	if !strings.Contains(out, "no file #5") {
		t.Errorf("expected out-of-range error:\n%s", out)
	}
}

func TestConsoleUnknownCommand(t *testing.T) {
	out := runScript(t, nil, "frobnicate\nquit\n")
	if !strings.Contains(out, `unknown command "frobnicate"`) {
		t.Errorf("expected unknown-command error:\n%s", out)
	}
}
