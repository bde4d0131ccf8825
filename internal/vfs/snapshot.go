package vfs

import (
	"sort"
	"time"
)

// Snapshot is a serializable copy of a file system.
type Snapshot struct {
	MaxSize   int             `json:"max_size"`
	CreatedAt time.Time       `json:"created_at"`
	Entries   []SnapshotEntry `json:"entries"`
}

// SnapshotEntry is one file or directory in a Snapshot.
type SnapshotEntry struct {
	Path        string    `json:"path"`
	IsDirectory bool      `json:"is_directory"`
	Content     []byte    `json:"content,omitempty"`
	Modified    time.Time `json:"modified"`
}

// Export copies the whole tree. Entries are sorted by path so parents
// precede children.
func (fs *FileSystem) Export() Snapshot {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	snap := Snapshot{
		MaxSize:   fs.maxSize,
		CreatedAt: fs.createdAt,
		Entries:   make([]SnapshotEntry, 0, len(fs.files)),
	}
	for p, e := range fs.files {
		se := SnapshotEntry{Path: p, IsDirectory: e.isDir, Modified: e.modified}
		if !e.isDir {
			se.Content = append([]byte(nil), e.content...)
		}
		snap.Entries = append(snap.Entries, se)
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Path < snap.Entries[j].Path })
	return snap
}

// Import rebuilds a file system from snap. Size accounting is recomputed and
// the cap is enforced.
func Import(snap Snapshot) (*FileSystem, error) {
	fs := New(snap.MaxSize)
	if !snap.CreatedAt.IsZero() {
		fs.createdAt = snap.CreatedAt
	}
	for _, e := range snap.Entries {
		if e.IsDirectory {
			if err := fs.MkdirAll(e.Path); err != nil {
				return nil, err
			}
			continue
		}
		if err := fs.WriteFile(e.Path, e.Content); err != nil {
			return nil, err
		}
	}
	return fs, nil
}
