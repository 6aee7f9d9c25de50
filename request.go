package slowfs

import (
	"context"
	"time"
)

// NodeRequest has common fields embedded in the seed request types
type NodeRequest struct {
	Path     string
	Type     NodeCreateRequestType
	Perms    uint32 // i.e. 0755
	OwnerUID uint32
	OwnerGID uint32
	Atime    time.Time // Last accessed at
	Mtime    time.Time // Last modified at
}

// NodeCreateRequestType valid types are FileNodeType "file", DirNodeType "dir"
type NodeCreateRequestType string

const (
	FileNodeType NodeCreateRequestType = "file"
	DirNodeType  NodeCreateRequestType = "dir"
)

// DirCreateRequest asks for a directory (and any missing ancestors)
type DirCreateRequest struct {
	NodeRequest
}

// FileCreateRequest asks for a regular file whose initial content comes from Source.
// A nil Source creates an empty file.
type FileCreateRequest struct {
	NodeRequest
	Source ContentSource
}

// ContentSource produces the initial bytes of a seeded file
type ContentSource interface {
	Content(ctx context.Context) ([]byte, error)
}
