package adapters

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/brettbedarf/slowfs"
	"github.com/brettbedarf/slowfs/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constFactory(src slowfs.ContentSource) SourceFactory {
	return func([]byte) (slowfs.ContentSource, error) { return src, nil }
}

func TestRegister_SingleFactory(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	source := &mocks.MockContentSource{}

	assert.True(t, r.Register("test", constFactory(source)))
	got, err := r.Source([]byte(`{"type":"test"}`))
	require.NoError(t, err)
	assert.Same(t, source, got)
}

func TestRegister_DuplicateKeepsFirst(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first := &mocks.MockContentSource{}
	second := &mocks.MockContentSource{}

	assert.True(t, r.Register("test", constFactory(first)))
	assert.False(t, r.Register("test", constFactory(second)))

	got, err := r.Source([]byte(`{"type":"test"}`))
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestRegister_Concurrent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(fmt.Sprintf("type-%02d", i), constFactory(&InlineSource{}))
		}()
	}
	wg.Wait()
	types := r.Types()
	assert.Len(t, types, 20)
	assert.Equal(t, "type-00", types[0])
}

func TestSource_Errors(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Source([]byte(`{"type":"nope"}`))
	assert.ErrorContains(t, err, `no source factory for "nope"`)

	_, err = r.Source([]byte(`not json`))
	assert.Error(t, err)
}

func TestBuiltins(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	RegisterBuiltins(r)
	assert.Equal(t, []string{HTTPSourceType, InlineSourceType, ZeroSourceType}, r.Types())

	only := NewRegistry()
	RegisterBuiltins(only, ZeroSourceType)
	assert.Equal(t, []string{ZeroSourceType}, only.Types())
}

func TestInlineSource(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	RegisterBuiltins(r)
	src, err := r.Source([]byte(`{"type":"inline","text":"hello\n"}`))
	require.NoError(t, err)
	data, err := src.Content(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestZeroSource(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	RegisterBuiltins(r)

	src, err := r.Source([]byte(`{"type":"zero","size":4096}`))
	require.NoError(t, err)
	data, err := src.Content(context.Background())
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4096), data)

	_, err = r.Source([]byte(`{"type":"zero","size":-1}`))
	assert.Error(t, err)
	_, err = r.Source([]byte(fmt.Sprintf(`{"type":"zero","size":%d}`, MaxZeroSize+1)))
	assert.Error(t, err)
}
