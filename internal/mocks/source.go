package mocks

import (
	"context"

	"github.com/brettbedarf/slowfs"
	"github.com/stretchr/testify/mock"
)

// MockContentSource implements slowfs.ContentSource for testing across packages
type MockContentSource struct {
	mock.Mock
}

func (m *MockContentSource) Content(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context) []byte); ok {
		return fn(ctx), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

var _ slowfs.ContentSource = (*MockContentSource)(nil)

// MockWriteFault implements faults.WriteFault. Use Run() on the expectation to block.
type MockWriteFault struct {
	mock.Mock
}

func (m *MockWriteFault) BeforeWrite(ino uint64, offset int64, size int) {
	m.Called(ino, offset, size)
}

// MockObserver implements slowfs.Observer for testing across packages
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) Observe(ev slowfs.OpEvent) {
	m.Called(ev)
}

var _ slowfs.Observer = (*MockObserver)(nil)
