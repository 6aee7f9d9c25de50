package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brettbedarf/slowfs"
)

type BuiltInSourceType = string

const (
	InlineSourceType BuiltInSourceType = "inline"
	ZeroSourceType   BuiltInSourceType = "zero"
	HTTPSourceType   BuiltInSourceType = "http"
)

// MaxZeroSize caps zero sources; the whole file lives in RAM.
const MaxZeroSize = 1 << 30

// RegisterBuiltins registers all built-in sources on r by default
// or only the specific ones if keys are provided
func RegisterBuiltins(r *Registry, types ...BuiltInSourceType) {
	if len(types) == 0 {
		types = []BuiltInSourceType{InlineSourceType, ZeroSourceType, HTTPSourceType}
	}

	for _, key := range types {
		switch key {
		case InlineSourceType:
			r.Register(InlineSourceType, unmarshalSource[InlineSource])
		case ZeroSourceType:
			r.Register(ZeroSourceType, unmarshalSource[ZeroSource])
		case HTTPSourceType:
			RegisterHTTP(r, nil)
		}
	}
}

// validator is implemented by sources that can reject their own definition
type validator interface {
	validate() error
}

func unmarshalSource[T any, P interface {
	*T
	slowfs.ContentSource
}](raw []byte) (slowfs.ContentSource, error) {
	src := P(new(T))
	if err := json.Unmarshal(raw, src); err != nil {
		return nil, err
	}
	if v, ok := any(src).(validator); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	return src, nil
}

// InlineSource holds the file content in the definition itself
type InlineSource struct {
	Text string `json:"text"`
}

func (s *InlineSource) Content(context.Context) ([]byte, error) {
	return []byte(s.Text), nil
}

// ZeroSource produces Size zero bytes
type ZeroSource struct {
	Size int64 `json:"size"`
}

func (s *ZeroSource) validate() error {
	if s.Size < 0 || s.Size > MaxZeroSize {
		return fmt.Errorf("zero source size %d out of range [0, %d]", s.Size, MaxZeroSize)
	}
	return nil
}

func (s *ZeroSource) Content(context.Context) ([]byte, error) {
	return make([]byte, s.Size), nil
}
