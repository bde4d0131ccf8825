// Package vfs provides the in-memory virtual file system that agents and
// sandboxed scripts use to keep large intermediate results out of the model
// context.
//
// Layout of a fresh file system:
//
//	/scripts/     executed JavaScript
//	/results/     raw query results
//	/workspace/   processed data
//	/history/     execution log
//	/final/       final outputs
//	/pages/       generated pages, one directory per workspace
package vfs

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxSize is the default content cap of one file system.
const DefaultMaxSize = 100 * 1024 * 1024

// DefaultDirectories are created in every new file system.
var DefaultDirectories = []string{"/scripts", "/results", "/workspace", "/history", "/final", "/pages"}

var (
	ErrNotFound    = errors.New("not found")
	ErrIsDirectory = errors.New("is a directory")
	ErrNotDir      = errors.New("not a directory")
	ErrNotEmpty    = errors.New("directory not empty")
	ErrSizeLimit   = errors.New("size limit exceeded")
	ErrNoParent    = errors.New("parent directory does not exist")
)

// Error is a file system failure. Its message is shown verbatim to models
// and scripts; Unwrap exposes the sentinel kind for errors.Is.
type Error struct {
	Kind error
	msg  string
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.Kind }

// entry is one file or directory.
type entry struct {
	isDir    bool
	content  []byte
	created  time.Time
	modified time.Time
}

func (e *entry) size() int {
	if e.isDir {
		return 0
	}
	return len(e.content)
}

// Metadata describes a file or directory.
type Metadata struct {
	Size        int       `json:"size"`
	IsDirectory bool      `json:"is_directory"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

// IsFile reports whether the entry is a regular file.
func (m Metadata) IsFile() bool { return !m.IsDirectory }

// DirEntry is one child returned by ListDir.
type DirEntry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"is_directory"`
	Size        int    `json:"size"`
}

// FileSystem is a size-capped in-memory file tree. It is safe for concurrent
// use; writes to the same path are serialized.
type FileSystem struct {
	mu        sync.RWMutex
	files     map[string]*entry
	totalSize int
	maxSize   int
	createdAt time.Time
}

// New creates a file system with the given cap and the default directories.
// A non-positive maxSize selects DefaultMaxSize.
func New(maxSize int) *FileSystem {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	fs := &FileSystem{
		files:     make(map[string]*entry),
		maxSize:   maxSize,
		createdAt: time.Now(),
	}
	for _, dir := range DefaultDirectories {
		_ = fs.Mkdir(dir)
	}
	return fs
}

// Normalize returns the canonical form of p: trimmed, rooted and lexically
// cleaned. Dot segments are collapsed and never climb above the root.
func Normalize(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

func parentOf(p string) string {
	return path.Dir(p)
}

// WriteFile stores content at p, creating missing parent directories.
// Overwriting a file only charges the size difference.
func (fs *FileSystem) WriteFile(p string, content []byte) error {
	p = Normalize(p)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldSize := 0
	if existing, ok := fs.files[p]; ok {
		if existing.isDir {
			return newError(ErrIsDirectory, "Path is a directory: %s", p)
		}
		oldSize = existing.size()
	}

	newTotal := fs.totalSize - oldSize + len(content)
	if newTotal > fs.maxSize {
		return newError(ErrSizeLimit, "VFS size limit exceeded: current %d + requested %d > limit %d", fs.totalSize, len(content), fs.maxSize)
	}

	if parent := parentOf(p); parent != "/" {
		if err := fs.mkdirAllLocked(parent); err != nil {
			return err
		}
	}

	now := time.Now()
	data := make([]byte, len(content))
	copy(data, content)

	created := now
	if existing, ok := fs.files[p]; ok {
		created = existing.created
	}
	fs.files[p] = &entry{content: data, created: created, modified: now}
	fs.totalSize = newTotal
	return nil
}

// ReadFile returns a copy of the content at p.
func (fs *FileSystem) ReadFile(p string) ([]byte, error) {
	p = Normalize(p)

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	e, err := fs.fileLocked(p)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(e.content))
	copy(out, e.content)
	return out, nil
}

// ReadRange returns up to length bytes starting at offset. Reading past the
// end returns the available suffix, possibly empty.
func (fs *FileSystem) ReadRange(p string, offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range: offset %d length %d", offset, length)
	}
	p = Normalize(p)

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	e, err := fs.fileLocked(p)
	if err != nil {
		return nil, err
	}
	if offset >= len(e.content) {
		return []byte{}, nil
	}
	end := offset + length
	if end > len(e.content) {
		end = len(e.content)
	}
	out := make([]byte, end-offset)
	copy(out, e.content[offset:end])
	return out, nil
}

func (fs *FileSystem) fileLocked(p string) (*entry, error) {
	e, ok := fs.files[p]
	if !ok {
		return nil, newError(ErrNotFound, "File not found: %s", p)
	}
	if e.isDir {
		return nil, newError(ErrIsDirectory, "Path is a directory: %s", p)
	}
	return e, nil
}

// Exists reports whether p names a file or directory.
func (fs *FileSystem) Exists(p string) bool {
	p = Normalize(p)
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if p == "/" {
		return true
	}
	_, ok := fs.files[p]
	return ok
}

// IsFile reports whether p names a file.
func (fs *FileSystem) IsFile(p string) bool {
	p = Normalize(p)
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	e, ok := fs.files[p]
	return ok && !e.isDir
}

// IsDirectory reports whether p names a directory.
func (fs *FileSystem) IsDirectory(p string) bool {
	p = Normalize(p)
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if p == "/" {
		return true
	}
	e, ok := fs.files[p]
	return ok && e.isDir
}

// Mkdir creates a single directory. The parent must exist; an existing
// directory is not an error.
func (fs *FileSystem) Mkdir(p string) error {
	p = Normalize(p)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if p == "/" {
		return nil
	}
	if e, ok := fs.files[p]; ok {
		if !e.isDir {
			return newError(ErrNotDir, "Path is a file: %s", p)
		}
		return nil
	}

	parent := parentOf(p)
	if parent != "/" {
		pe, ok := fs.files[parent]
		if !ok || !pe.isDir {
			return newError(ErrNoParent, "Parent directory does not exist: %s", parent)
		}
	}

	now := time.Now()
	fs.files[p] = &entry{isDir: true, created: now, modified: now}
	return nil
}

// MkdirAll creates p and every missing parent.
func (fs *FileSystem) MkdirAll(p string) error {
	p = Normalize(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mkdirAllLocked(p)
}

func (fs *FileSystem) mkdirAllLocked(p string) error {
	if p == "/" {
		return nil
	}
	current := ""
	for _, part := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		current += "/" + part
		e, ok := fs.files[current]
		if ok {
			if !e.isDir {
				return newError(ErrNotDir, "Path is a file: %s", current)
			}
			continue
		}
		now := time.Now()
		fs.files[current] = &entry{isDir: true, created: now, modified: now}
	}
	return nil
}

// ListDir returns the direct children of p sorted by name.
func (fs *FileSystem) ListDir(p string) ([]DirEntry, error) {
	p = Normalize(p)

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if p != "/" {
		e, ok := fs.files[p]
		if !ok {
			return nil, newError(ErrNotFound, "Directory not found: %s", p)
		}
		if !e.isDir {
			return nil, newError(ErrNotDir, "Path is not a directory: %s", p)
		}
	}

	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}

	entries := make([]DirEntry, 0)
	for name, e := range fs.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		entries = append(entries, DirEntry{Name: rest, IsDirectory: e.isDir, Size: e.size()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Delete removes a file or an empty directory.
func (fs *FileSystem) Delete(p string) error {
	p = Normalize(p)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, ok := fs.files[p]
	if !ok {
		return newError(ErrNotFound, "File not found: %s", p)
	}
	if e.isDir {
		prefix := p + "/"
		for name := range fs.files {
			if strings.HasPrefix(name, prefix) {
				return newError(ErrNotEmpty, "Cannot delete non-empty directory: %s", p)
			}
		}
	}

	delete(fs.files, p)
	fs.totalSize -= e.size()
	return nil
}

// Stat returns metadata for p.
func (fs *FileSystem) Stat(p string) (Metadata, error) {
	p = Normalize(p)

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if p == "/" {
		return Metadata{IsDirectory: true, Created: fs.createdAt, Modified: fs.createdAt}, nil
	}
	e, ok := fs.files[p]
	if !ok {
		return Metadata{}, newError(ErrNotFound, "File not found: %s", p)
	}
	return Metadata{Size: e.size(), IsDirectory: e.isDir, Created: e.created, Modified: e.modified}, nil
}

// TotalSize returns the bytes used by file contents.
func (fs *FileSystem) TotalSize() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.totalSize
}

// MaxSize returns the content cap.
func (fs *FileSystem) MaxSize() int { return fs.maxSize }

// Available returns the remaining capacity.
func (fs *FileSystem) Available() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.totalSize >= fs.maxSize {
		return 0
	}
	return fs.maxSize - fs.totalSize
}

// CreatedAt returns when the file system was created.
func (fs *FileSystem) CreatedAt() time.Time { return fs.createdAt }
