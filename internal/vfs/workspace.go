package vfs

import (
	"fmt"
	"strings"
)

// PathValidationError rejects a workspace-relative path before any file
// system access happens.
type PathValidationError struct {
	Path   string
	Reason string
}

func (e *PathValidationError) Error() string {
	return fmt.Sprintf("Invalid path %q: %s", e.Path, e.Reason)
}

// ValidateRelativePath rejects empty paths, absolute paths and traversal.
func ValidateRelativePath(rel string) error {
	if strings.TrimSpace(rel) == "" {
		return &PathValidationError{Path: rel, Reason: "path is empty"}
	}
	if strings.HasPrefix(rel, "/") {
		return &PathValidationError{Path: rel, Reason: "absolute paths are not allowed"}
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return &PathValidationError{Path: rel, Reason: "directory traversal not allowed"}
		}
	}
	if strings.Contains(rel, "..") {
		return &PathValidationError{Path: rel, Reason: "directory traversal not allowed"}
	}
	return nil
}

// WorkspaceEntry is one file listed from a workspace.
type WorkspaceEntry struct {
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
	Size        int    `json:"size"`
}

// Workspace confines access to /pages/<name> of one file system. Every
// relative path is validated before use.
type Workspace struct {
	name string
	root string
	fs   *FileSystem
}

// NewWorkspace binds a workspace name to fs and creates its root directory.
func NewWorkspace(fs *FileSystem, name string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return nil, &PathValidationError{Path: name, Reason: "invalid workspace name"}
	}
	w := &Workspace{name: name, root: "/pages/" + name, fs: fs}
	if err := fs.MkdirAll(w.root); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", name, err)
	}
	return w, nil
}

// Name returns the workspace name.
func (w *Workspace) Name() string { return w.name }

// Root returns the absolute VFS path of the workspace.
func (w *Workspace) Root() string { return w.root }

// Resolve maps a relative path to its absolute VFS path.
func (w *Workspace) Resolve(rel string) (string, error) {
	if err := ValidateRelativePath(rel); err != nil {
		return "", err
	}
	return w.root + "/" + strings.TrimSuffix(rel, "/"), nil
}

// ReadFile reads a workspace file.
func (w *Workspace) ReadFile(rel string) ([]byte, error) {
	p, err := w.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return w.fs.ReadFile(p)
}

// WriteFile writes a workspace file, creating parents.
func (w *Workspace) WriteFile(rel string, content []byte) error {
	p, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	return w.fs.WriteFile(p, content)
}

// Delete removes a workspace file or empty directory.
func (w *Workspace) Delete(rel string) error {
	p, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	return w.fs.Delete(p)
}

// Stat returns metadata of a workspace path.
func (w *Workspace) Stat(rel string) (Metadata, error) {
	p, err := w.Resolve(rel)
	if err != nil {
		return Metadata{}, err
	}
	return w.fs.Stat(p)
}

// Exists reports whether a workspace path exists.
func (w *Workspace) Exists(rel string) (bool, error) {
	p, err := w.Resolve(rel)
	if err != nil {
		return false, err
	}
	return w.fs.Exists(p), nil
}

// Mkdir creates a workspace directory and its parents.
func (w *Workspace) Mkdir(rel string) error {
	p, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	return w.fs.MkdirAll(p)
}

// List returns the entries below rel (the workspace root when rel is empty),
// with paths relative to the workspace. When recursive is set every
// descendant is returned.
func (w *Workspace) List(rel string, recursive bool) ([]WorkspaceEntry, error) {
	base := w.root
	prefix := ""
	if rel != "" && rel != "." {
		p, err := w.Resolve(rel)
		if err != nil {
			return nil, err
		}
		base = p
		prefix = strings.TrimSuffix(rel, "/") + "/"
	}

	var out []WorkspaceEntry
	var walk func(dir, relPrefix string) error
	walk = func(dir, relPrefix string) error {
		entries, err := w.fs.ListDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			out = append(out, WorkspaceEntry{
				Path:        relPrefix + e.Name,
				IsDirectory: e.IsDirectory,
				Size:        e.Size,
			})
			if recursive && e.IsDirectory {
				if err := walk(dir+"/"+e.Name, relPrefix+e.Name+"/"); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(base, prefix); err != nil {
		return nil, err
	}
	return out, nil
}
