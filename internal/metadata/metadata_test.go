package metadata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustUser(t *testing.T, s Store, name string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), name, "hash:"+name)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return id
}

func mustFile(t *testing.T, s Store, owner int64, filename, storage string) int64 {
	t.Helper()
	id, err := s.CreateFile(context.Background(), &File{
		Filename:    filename,
		Extension:   filepath.Ext(filename),
		StorageName: storage,
		Size:        10,
		OwnerID:     owner,
	})
	if err != nil {
		t.Fatalf("create file %s: %v", filename, err)
	}
	return id
}

func TestCreateUserDuplicate(t *testing.T) {
	s := openTestStore(t)
	mustUser(t, s, "alice")

	if _, err := s.CreateUser(context.Background(), "alice", "other"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUserLookup(t *testing.T) {
	s := openTestStore(t)
	id := mustUser(t, s, "alice")

	u, err := s.UserByName(context.Background(), "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.ID != id || u.PasswordHash != "hash:alice" {
		t.Errorf("unexpected user: %+v", u)
	}

	if _, err := s.UserByName(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogAccessTypes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")

	owned := mustFile(t, s, alice, "mine.py", "u1_mine.py")
	shared := mustFile(t, s, bob, "notes.js", "u2_notes.js")
	hidden := mustFile(t, s, carol, "secret.txt", "u3_secret.txt")
	_ = hidden

	if err := s.Grant(ctx, shared, alice, protocol.ShareWrite); err != nil {
		t.Fatal(err)
	}

	catalog, err := s.CatalogFor(ctx, alice)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(catalog) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(catalog), catalog)
	}

	byStorage := map[string]protocol.FileRecord{}
	for _, rec := range catalog {
		byStorage[rec.StorageName] = rec
	}

	if rec := byStorage["u1_mine.py"]; rec.AccessType != protocol.AccessOwner ||
		rec.Uploader != "alice" || rec.ID != owned {
		t.Errorf("owned record = %+v", rec)
	}
	if rec := byStorage["u2_notes.js"]; rec.AccessType != protocol.AccessWrite ||
		rec.Uploader != "bob" {
		t.Errorf("shared record = %+v", rec)
	}
}

func TestAccessFor(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	file := mustFile(t, s, alice, "doc.txt", "u1_doc.txt")

	access, ok, err := s.AccessFor(ctx, alice, file)
	if err != nil || !ok || access != protocol.AccessOwner {
		t.Errorf("owner access = %v/%v/%v", access, ok, err)
	}

	_, ok, err = s.AccessFor(ctx, bob, file)
	if err != nil || ok {
		t.Errorf("stranger should have no access: %v/%v", ok, err)
	}

	if err := s.Grant(ctx, file, bob, protocol.ShareRead); err != nil {
		t.Fatal(err)
	}
	access, ok, _ = s.AccessFor(ctx, bob, file)
	if !ok || access != protocol.AccessRead {
		t.Errorf("after grant: %v/%v", access, ok)
	}

	// A second grant upgrades in place.
	if err := s.Grant(ctx, file, bob, protocol.ShareWrite); err != nil {
		t.Fatal(err)
	}
	access, _, _ = s.AccessFor(ctx, bob, file)
	if access != protocol.AccessWrite {
		t.Errorf("upgraded grant = %v", access)
	}

	if err := s.Revoke(ctx, file, bob); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.AccessFor(ctx, bob, file); ok {
		t.Error("access survived revoke")
	}
}

func TestFilenameLookups(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	own := mustFile(t, s, alice, "report.js", "u1_report.js")
	theirs := mustFile(t, s, bob, "report.js", "u2_report.js")

	f, err := s.OwnFileByFilename(ctx, alice, "report.js")
	if err != nil || f.ID != own {
		t.Errorf("own lookup = %+v, %v", f, err)
	}

	// Writable-shared lookup ignores read grants.
	if err := s.Grant(ctx, theirs, alice, protocol.ShareRead); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WritableSharedByFilename(ctx, alice, "report.js"); !errors.Is(err, ErrNotFound) {
		t.Errorf("read grant treated as writable: %v", err)
	}

	if err := s.Grant(ctx, theirs, alice, protocol.ShareWrite); err != nil {
		t.Fatal(err)
	}
	f, err = s.WritableSharedByFilename(ctx, alice, "report.js")
	if err != nil || f.ID != theirs {
		t.Errorf("writable-shared lookup = %+v, %v", f, err)
	}
}

func TestDeleteFileDropsGrants(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	file := mustFile(t, s, alice, "doc.txt", "u1_doc.txt")
	if err := s.Grant(ctx, file, bob, protocol.ShareRead); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFile(ctx, file); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.FileByStorageName(ctx, "u1_doc.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("file survived delete: %v", err)
	}
	if catalog, _ := s.CatalogFor(ctx, bob); len(catalog) != 0 {
		t.Errorf("grant survived delete: %+v", catalog)
	}
}

func TestTouchFile(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	file := mustFile(t, s, alice, "doc.js", "u1_doc.js")

	if err := s.TouchFile(ctx, file, bob, 99); err != nil {
		t.Fatalf("touch: %v", err)
	}

	f, err := s.FileByStorageName(ctx, "u1_doc.js")
	if err != nil {
		t.Fatal(err)
	}
	if f.Size != 99 || f.EditorID != bob {
		t.Errorf("touched file = %+v", f)
	}

	catalog, err := s.CatalogFor(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if catalog[0].Editor != "bob" {
		t.Errorf("editor name = %q", catalog[0].Editor)
	}
}
