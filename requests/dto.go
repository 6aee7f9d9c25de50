// Package requests turns seed file node definitions into slowfs create requests.
package requests

import (
	"encoding/json"
	"time"

	"github.com/brettbedarf/slowfs"
)

// NodeRequestDTO is the JSON representation of [slowfs.NodeRequest]
type NodeRequestDTO struct {
	Path     string                       `json:"path"`
	Type     slowfs.NodeCreateRequestType `json:"type"`
	Atime    *time.Time                   `json:"atime,omitempty"` // Last Accessed at (Default creation time)
	Mtime    *time.Time                   `json:"mtime,omitempty"` // Last Modified at (Default creation time)
	Perms    *uint32                      `json:"perms,omitempty"` // i.e. 0755
	OwnerUID *uint32                      `json:"owner_uid,omitempty"`
	OwnerGID *uint32                      `json:"owner_gid,omitempty"`
}

// FileRequestDTO is the JSON representation of [slowfs.FileCreateRequest]
type FileRequestDTO struct {
	NodeRequestDTO
	// Source is kept raw so the adapters registry can pick a factory by its "type".
	//
	// Ex. {"type":"inline","text":"..."}, {"type":"zero","size":1024},
	// {"type":"http","url":"https://..."}; see adapters package for the fields of each.
	Source json.RawMessage `json:"source,omitempty"`
}

type DirRequestDTO struct {
	NodeRequestDTO
}
