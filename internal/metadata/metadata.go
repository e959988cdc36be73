// Package metadata is the server-side record store: users, file records,
// and the permission grants that connect them. It computes the per-caller
// access type the catalog endpoint reports.
package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("metadata: not found")
	// ErrDuplicate is returned when an insert violates a uniqueness rule.
	ErrDuplicate = errors.New("metadata: already exists")
)

// User is one account row.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// File is one stored file's metadata.
type File struct {
	ID          int64
	Filename    string
	Extension   string
	StorageName string
	Size        int64
	OwnerID     int64
	EditorID    int64 // last editor; zero when never edited
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the metadata persistence interface. Both SQL backends
// implement it.
type Store interface {
	// CreateUser inserts an account; ErrDuplicate when the name is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	// UserByName resolves an account; ErrNotFound when absent.
	UserByName(ctx context.Context, username string) (*User, error)
	// UserID resolves a username to its ID; ErrNotFound when absent.
	UserID(ctx context.Context, username string) (int64, error)

	// CatalogFor lists every file the user owns or has a grant on, with
	// the access type computed for that user.
	CatalogFor(ctx context.Context, userID int64) ([]protocol.FileRecord, error)

	// FileByStorageName resolves a file record by its storage name.
	FileByStorageName(ctx context.Context, storageName string) (*File, error)
	// OwnFileByFilename resolves a file the given user owns under the
	// display name; used for upload-as-update and for share resolution.
	OwnFileByFilename(ctx context.Context, ownerID int64, filename string) (*File, error)
	// WritableSharedByFilename resolves a file shared to the user with
	// write level under the display name.
	WritableSharedByFilename(ctx context.Context, userID int64, filename string) (*File, error)

	// CreateFile inserts a new file record and returns its ID.
	CreateFile(ctx context.Context, f *File) (int64, error)
	// TouchFile records a content change: new size, editor, updated_at.
	TouchFile(ctx context.Context, fileID, editorID, size int64) error
	// DeleteFile removes a file record and all grants on it.
	DeleteFile(ctx context.Context, fileID int64) error

	// AccessFor computes the user's access to a file; ok is false when
	// the user has no access at all.
	AccessFor(ctx context.Context, userID, fileID int64) (protocol.AccessType, bool, error)
	// Grant upserts a permission at the given level.
	Grant(ctx context.Context, fileID, userID int64, level protocol.ShareLevel) error
	// Revoke removes the user's grant on a file.
	Revoke(ctx context.Context, fileID, userID int64) error

	Close() error
}
