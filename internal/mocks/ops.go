package mocks

import (
	"github.com/brettbedarf/slowfs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/mock"
)

// MockOperations implements slowfs.Operations so the bridge can be tested without an engine
type MockOperations struct {
	mock.Mock
}

var _ slowfs.Operations = (*MockOperations)(nil)

func attrResult(args mock.Arguments) (fuse.Attr, error) {
	if args.Get(0) == nil {
		return fuse.Attr{}, args.Error(1)
	}
	return args.Get(0).(fuse.Attr), args.Error(1)
}

func (m *MockOperations) Lookup(parent uint64, name string) (fuse.Attr, error) {
	return attrResult(m.Called(parent, name))
}

func (m *MockOperations) GetAttr(ino uint64) (fuse.Attr, error) {
	return attrResult(m.Called(ino))
}

func (m *MockOperations) ReadDir(ino uint64, cursor uint64) (slowfs.DirStream, error) {
	args := m.Called(ino, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(slowfs.DirStream), args.Error(1)
}

func (m *MockOperations) StatFs() (fuse.StatfsOut, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return fuse.StatfsOut{}, args.Error(1)
	}
	return args.Get(0).(fuse.StatfsOut), args.Error(1)
}

func (m *MockOperations) Open(ino uint64) error {
	return m.Called(ino).Error(0)
}

func (m *MockOperations) Create(parent uint64, name string, mode uint32, caller slowfs.Caller) (fuse.Attr, error) {
	return attrResult(m.Called(parent, name, mode, caller))
}

func (m *MockOperations) Read(ino uint64, offset int64, length int) ([]byte, error) {
	args := m.Called(ino, offset, length)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockOperations) Write(ino uint64, offset int64, data []byte) (int, error) {
	args := m.Called(ino, offset, data)
	return args.Int(0), args.Error(1)
}

func (m *MockOperations) SetAttr(ino uint64, changes slowfs.AttrChanges) (fuse.Attr, error) {
	return attrResult(m.Called(ino, changes))
}

func (m *MockOperations) Release(ino uint64) error {
	return m.Called(ino).Error(0)
}

func (m *MockOperations) Rename(oldParent uint64, oldName string, newParent uint64, newName string) error {
	return m.Called(oldParent, oldName, newParent, newName).Error(0)
}

func (m *MockOperations) RenameNoReplace(oldParent uint64, oldName string, newParent uint64, newName string) error {
	return m.Called(oldParent, oldName, newParent, newName).Error(0)
}

func (m *MockOperations) Unlink(parent uint64, name string) error {
	return m.Called(parent, name).Error(0)
}

func (m *MockOperations) Rmdir(parent uint64, name string) error {
	return m.Called(parent, name).Error(0)
}

func (m *MockOperations) Mkdir(parent uint64, name string, mode uint32, caller slowfs.Caller) (fuse.Attr, error) {
	return attrResult(m.Called(parent, name, mode, caller))
}

func (m *MockOperations) Access(ino uint64, mask uint32, caller slowfs.Caller) error {
	return m.Called(ino, mask, caller).Error(0)
}

func (m *MockOperations) Symlink(parent uint64, name string, target string, caller slowfs.Caller) (fuse.Attr, error) {
	return attrResult(m.Called(parent, name, target, caller))
}

func (m *MockOperations) Link(ino uint64, newParent uint64, newName string) (fuse.Attr, error) {
	return attrResult(m.Called(ino, newParent, newName))
}

func (m *MockOperations) Mknod(parent uint64, name string, mode uint32, rdev uint32, caller slowfs.Caller) (fuse.Attr, error) {
	return attrResult(m.Called(parent, name, mode, rdev, caller))
}

func (m *MockOperations) Readlink(ino uint64) ([]byte, error) {
	args := m.Called(ino)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
