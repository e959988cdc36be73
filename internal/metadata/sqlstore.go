package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore implements Store over database/sql. Queries are written with ?
// placeholders and rebound for PostgreSQL.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS files (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	filename     TEXT NOT NULL,
	extension    TEXT NOT NULL,
	storage_name TEXT NOT NULL UNIQUE,
	size         INTEGER NOT NULL DEFAULT 0,
	owner_id     INTEGER NOT NULL REFERENCES users(id),
	editor_id    INTEGER REFERENCES users(id),
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS permissions (
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id),
	level   TEXT NOT NULL CHECK (level IN ('read', 'write')),
	UNIQUE (file_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner_id);
CREATE INDEX IF NOT EXISTS idx_permissions_user ON permissions(user_id);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS files (
	id           BIGSERIAL PRIMARY KEY,
	filename     TEXT NOT NULL,
	extension    TEXT NOT NULL,
	storage_name TEXT NOT NULL UNIQUE,
	size         BIGINT NOT NULL DEFAULT 0,
	owner_id     BIGINT NOT NULL REFERENCES users(id),
	editor_id    BIGINT REFERENCES users(id),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS permissions (
	file_id BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id),
	level   TEXT NOT NULL CHECK (level IN ('read', 'write')),
	UNIQUE (file_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner_id);
CREATE INDEX IF NOT EXISTS idx_permissions_user ON permissions(user_id);
`

func (s *sqlStore) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.dialect == dialectPostgres {
		schema = schemaPostgres
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to $N for PostgreSQL.
func (s *sqlStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isDuplicate recognizes a uniqueness violation from either driver.
func isDuplicate(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

// insert runs an INSERT and returns the new row's ID, papering over the
// drivers' differing ID-return mechanisms.
func (s *sqlStore) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect == dialectPostgres {
		var id int64
		err := s.db.QueryRowContext(ctx, s.rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	id, err := s.insert(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *sqlStore) UserByName(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`),
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (s *sqlStore) UserID(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id FROM users WHERE username = ?`), username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query user id: %w", err)
	}
	return id, nil
}

func (s *sqlStore) CatalogFor(ctx context.Context, userID int64) ([]protocol.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT f.id, f.filename, f.extension, f.storage_name, f.size,
		       f.created_at, f.updated_at,
		       ou.username,
		       COALESCE(eu.username, ''),
		       CASE WHEN f.owner_id = ? THEN 'owner' ELSE p.level END
		FROM files f
		JOIN users ou ON ou.id = f.owner_id
		LEFT JOIN users eu ON eu.id = f.editor_id
		LEFT JOIN permissions p ON p.file_id = f.id AND p.user_id = ?
		WHERE f.owner_id = ? OR p.user_id IS NOT NULL
		ORDER BY f.id`),
		userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	records := []protocol.FileRecord{}
	for rows.Next() {
		var (
			rec                  protocol.FileRecord
			createdAt, updatedAt time.Time
			access               string
		)
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.Extension, &rec.StorageName,
			&rec.Size, &createdAt, &updatedAt, &rec.Uploader, &rec.Editor, &access); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		rec.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		rec.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
		rec.AccessType = protocol.AccessType(access)
		records = append(records, rec)
	}
	return records, rows.Err()
}

const fileColumns = `id, filename, extension, storage_name, size, owner_id,
	COALESCE(editor_id, 0), created_at, updated_at`

func (s *sqlStore) scanFile(row *sql.Row) (*File, error) {
	var f File
	err := row.Scan(&f.ID, &f.Filename, &f.Extension, &f.StorageName, &f.Size,
		&f.OwnerID, &f.EditorID, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return &f, nil
}

func (s *sqlStore) FileByStorageName(ctx context.Context, storageName string) (*File, error) {
	return s.scanFile(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+fileColumns+` FROM files WHERE storage_name = ?`), storageName))
}

func (s *sqlStore) OwnFileByFilename(ctx context.Context, ownerID int64, filename string) (*File, error) {
	return s.scanFile(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+fileColumns+` FROM files WHERE owner_id = ? AND filename = ?`),
		ownerID, filename))
}

func (s *sqlStore) WritableSharedByFilename(ctx context.Context, userID int64, filename string) (*File, error) {
	return s.scanFile(s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+fileColumns+` FROM files
		WHERE filename = ? AND id IN (
			SELECT file_id FROM permissions WHERE user_id = ? AND level = 'write'
		)`),
		filename, userID))
}

func (s *sqlStore) CreateFile(ctx context.Context, f *File) (int64, error) {
	id, err := s.insert(ctx,
		`INSERT INTO files (filename, extension, storage_name, size, owner_id)
		 VALUES (?, ?, ?, ?, ?)`,
		f.Filename, f.Extension, f.StorageName, f.Size, f.OwnerID)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("insert file: %w", err)
	}
	return id, nil
}

func (s *sqlStore) TouchFile(ctx context.Context, fileID, editorID, size int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE files SET size = ?, editor_id = ?, updated_at = ? WHERE id = ?`),
		size, editorID, time.Now().UTC(), fileID)
	if err != nil {
		return fmt.Errorf("touch file: %w", err)
	}
	return nil
}

func (s *sqlStore) DeleteFile(ctx context.Context, fileID int64) error {
	// Grants go first: SQLite only cascades with foreign keys enabled.
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM permissions WHERE file_id = ?`), fileID); err != nil {
		return fmt.Errorf("delete grants: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM files WHERE id = ?`), fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *sqlStore) AccessFor(ctx context.Context, userID, fileID int64) (protocol.AccessType, bool, error) {
	var ownerID int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT owner_id FROM files WHERE id = ?`), fileID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, ErrNotFound
	}
	if err != nil {
		return "", false, fmt.Errorf("query owner: %w", err)
	}
	if ownerID == userID {
		return protocol.AccessOwner, true, nil
	}

	var level string
	err = s.db.QueryRowContext(ctx, s.rebind(
		`SELECT level FROM permissions WHERE file_id = ? AND user_id = ?`),
		fileID, userID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query grant: %w", err)
	}
	return protocol.AccessType(level), true, nil
}

func (s *sqlStore) Grant(ctx context.Context, fileID, userID int64, level protocol.ShareLevel) error {
	// Same upsert works on both backends.
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO permissions (file_id, user_id, level) VALUES (?, ?, ?)
		ON CONFLICT (file_id, user_id) DO UPDATE SET level = EXCLUDED.level`),
		fileID, userID, string(level))
	if err != nil {
		return fmt.Errorf("grant: %w", err)
	}
	return nil
}

func (s *sqlStore) Revoke(ctx context.Context, fileID, userID int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM permissions WHERE file_id = ? AND user_id = ?`),
		fileID, userID)
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	return nil
}
