package requests

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brettbedarf/slowfs"
	"github.com/brettbedarf/slowfs/adapters"
	"github.com/brettbedarf/slowfs/internal/util"
	"gopkg.in/yaml.v3"
)

// Nodes holds the parsed content of a seed file
type Nodes struct {
	Dirs  []*slowfs.DirCreateRequest
	Files []*slowfs.FileCreateRequest
}

// GetNodeType extracts the node type from JSON without full unmarshaling
func GetNodeType(data []byte) (slowfs.NodeCreateRequestType, error) {
	var meta struct {
		Type slowfs.NodeCreateRequestType `json:"type"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", err
	}
	return meta.Type, nil
}

// UnmarshalFileRequest handles file-specific unmarshaling; the source is resolved with reg.
// A file without a source is created empty.
func UnmarshalFileRequest(data []byte, reg *adapters.Registry) (*slowfs.FileCreateRequest, error) {
	var dto FileRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}

	req := &slowfs.FileCreateRequest{NodeRequest: convertNodeDTO(dto.NodeRequestDTO)}
	if len(dto.Source) > 0 && string(dto.Source) != "null" {
		src, err := reg.Source(dto.Source)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", dto.Path, err)
		}
		req.Source = src
	}
	return req, nil
}

// UnmarshalDirRequest handles explicit directory unmarshaling (no sources)
func UnmarshalDirRequest(data []byte) (*slowfs.DirCreateRequest, error) {
	var dto DirRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	return &slowfs.DirCreateRequest{NodeRequest: convertNodeDTO(dto.NodeRequestDTO)}, nil
}

// ParseNodes parses a JSON array of node definitions. Bad entries are logged and skipped;
// only a malformed document fails.
func ParseNodes(data []byte, reg *adapters.Registry) (*Nodes, error) {
	logger := util.GetLogger("Requests.ParseNodes")

	var rawNodes []json.RawMessage
	if err := json.Unmarshal(data, &rawNodes); err != nil {
		return nil, fmt.Errorf("nodes must be an array: %w", err)
	}

	nodes := &Nodes{}
	for i, rawNode := range rawNodes {
		nodeType, err := GetNodeType(rawNode)
		if err != nil {
			logger.Error().Err(err).Int("index", i).Msg("Failed to get node type")
			continue
		}

		switch nodeType {
		case slowfs.FileNodeType:
			fileReq, err := UnmarshalFileRequest(rawNode, reg)
			if err != nil {
				logger.Error().Err(err).Int("index", i).Msg("Failed to unmarshal file request")
				continue
			}
			nodes.Files = append(nodes.Files, fileReq)
		case slowfs.DirNodeType:
			dirReq, err := UnmarshalDirRequest(rawNode)
			if err != nil {
				logger.Error().Err(err).Int("index", i).Msg("Failed to unmarshal directory request")
				continue
			}
			nodes.Dirs = append(nodes.Dirs, dirReq)
		default:
			logger.Warn().Str("type", string(nodeType)).Int("index", i).Msg("Unknown node type")
		}
	}
	return nodes, nil
}

// LoadNodesFile reads a seed file. .yaml/.yml files are converted to JSON first; anything
// else is parsed as JSON.
func LoadNodesFile(path string, reg *adapters.Registry) (*Nodes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return ParseNodes(data, reg)
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share one decoder
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Conversion logic with defaults in the unmarshaling layer. Zero perms and times are
// left for the filesystem to fill in.
func convertNodeDTO(dto NodeRequestDTO) slowfs.NodeRequest {
	return slowfs.NodeRequest{
		Path:     dto.Path,
		Type:     dto.Type,
		Atime:    util.ValueOrDefault(dto.Atime, time.Time{}),
		Mtime:    util.ValueOrDefault(dto.Mtime, time.Time{}),
		Perms:    util.ValueOrDefault(dto.Perms, 0),
		OwnerUID: util.ValueOrDefault(dto.OwnerUID, uint32(os.Getuid())),
		OwnerGID: util.ValueOrDefault(dto.OwnerGID, uint32(os.Getgid())),
	}
}
