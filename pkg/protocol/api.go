// Package protocol defines the API request/response types shared by the
// server and the client.
package protocol

// AccessType is the caller's permission level on a file.
type AccessType string

const (
	AccessOwner AccessType = "owner"
	AccessWrite AccessType = "write"
	AccessRead  AccessType = "read"
)

// ShareLevel is the permission level granted by a share request.
// Owner is never granted via sharing.
type ShareLevel string

const (
	ShareRead  ShareLevel = "read"
	ShareWrite ShareLevel = "write"
)

// Valid reports whether the level is one a share request may carry.
func (l ShareLevel) Valid() bool {
	return l == ShareRead || l == ShareWrite
}

// FileRecord is one entry of the catalog as returned by GET /files.
//
// Filename is the display name and is not globally unique; StorageName is
// the stable unique identifier used for content addressing and mutation
// targeting.
type FileRecord struct {
	ID          int64      `json:"id"`
	Filename    string     `json:"filename"`
	Extension   string     `json:"extension"`
	Size        int64      `json:"size"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	Uploader    string     `json:"uploader"`
	Editor      string     `json:"editor"`
	AccessType  AccessType `json:"access_type"`
	StorageName string     `json:"storage_name"`
}

// TokenResponse is returned by POST /token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ShareRequest is the body for POST /share.
//
// The target file is addressed by display name, not storage name. The
// server resolves the name among the caller's own files; the asymmetry
// with every other mutating endpoint is inherited from the protocol and
// kept as-is.
type ShareRequest struct {
	Filename   string     `json:"filename"`
	TargetUser string     `json:"target_user"`
	Level      ShareLevel `json:"level"`
}

// UpdateContentRequest is the body for POST /update_content.
type UpdateContentRequest struct {
	StorageName string `json:"storage_name"`
	Content     string `json:"content"`
}

// StatusResponse is the generic success body for mutating endpoints.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the error body returned by all endpoints.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// CacheBusterParam is the query parameter carrying the cache-defeat nonce
// on preview fetches. The server ignores it; its only job is to make every
// preview URL unique so intermediate caches never serve stale bytes.
const CacheBusterParam = "t"
