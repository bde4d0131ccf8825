package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/BaSui01/agentdash/internal/vfs"
	"github.com/BaSui01/agentdash/types"
)

// MaxCopySize caps copy_file sources.
const MaxCopySize = 10 * 1024 * 1024

var copySourcePrefixes = []string{"/results/", "/workspace/", "/final/"}

var jsIdentifier = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// WorkspaceFiles builds the page workspace file tools. Every call resolves
// the VFS by id, so tools fail cleanly once the VFS is gone.
type WorkspaceFiles struct {
	Registry  *vfs.Registry
	VFSID     uuid.UUID
	Workspace string
	// Now stamps copy_file headers; nil means time.Now.
	Now func() time.Time
}

func (w WorkspaceFiles) fs() (*vfs.FileSystem, error) {
	if w.Registry == nil || w.VFSID == uuid.Nil {
		return nil, errors.New("VFS not available - no VFS ID set for this context")
	}
	fs, err := w.Registry.Get(w.VFSID)
	if err != nil {
		return nil, fmt.Errorf("VFS not found: %s", w.VFSID)
	}
	return fs, nil
}

func (w WorkspaceFiles) open() (*vfs.Workspace, error) {
	fs, err := w.fs()
	if err != nil {
		return nil, err
	}
	return vfs.NewWorkspace(fs, w.Workspace)
}

// Tools returns read_file, write_file, edit_file, list_files, delete_file
// and copy_file.
func (w WorkspaceFiles) Tools() []Tool {
	return []Tool{w.ReadFile(), w.WriteFile(), w.EditFile(), w.ListFiles(), w.DeleteFile(), w.CopyFile()}
}

func pathProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func (w WorkspaceFiles) ReadFile() Tool {
	fn := func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Path string `json:"path"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		ws, err := w.open()
		if err != nil {
			return nil, err
		}
		meta, err := ws.Stat(in.Path)
		if err != nil {
			return nil, workspaceErr("File not found", in.Path, err)
		}
		if meta.IsDirectory {
			return nil, fmt.Errorf("Path is not a file: %s", in.Path)
		}
		data, err := ws.ReadFile(in.Path)
		if err != nil {
			return nil, fmt.Errorf("Failed to read file %s: %v", in.Path, err)
		}
		return mustJSON(map[string]any{"content": string(data), "path": in.Path})
	}
	return Tool{Func: fn, Metadata: ToolMetadata{Schema: types.ToolSchema{
		Name:        "read_file",
		Description: "Read a file from your page workspace. Paths are relative to the workspace root.",
		Parameters: schema(map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": pathProp("Relative path within page workspace (e.g., 'index.html', 'app.js')")},
			"required":   []string{"path"},
		}),
	}}}
}

func (w WorkspaceFiles) WriteFile() Tool {
	fn := func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		ws, err := w.open()
		if err != nil {
			return nil, err
		}
		if err := ws.WriteFile(in.Path, []byte(in.Content)); err != nil {
			return nil, workspaceErr("Failed to write file", in.Path, err)
		}
		return mustJSON(map[string]any{"path": in.Path, "bytes_written": len(in.Content)})
	}
	return Tool{Func: fn, Metadata: ToolMetadata{Schema: types.ToolSchema{
		Name:        "write_file",
		Description: "Create or overwrite a file in your page workspace. Parent directories are created.",
		Parameters: schema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    pathProp("Relative path within page workspace (e.g., 'index.html', 'assets/logo.png')"),
				"content": map[string]any{"type": "string", "description": "File contents to write"},
			},
			"required": []string{"path", "content"},
		}),
	}}}
}

// EditBlock is one search/replace edit.
type EditBlock struct {
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeWhitespace(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// applyEdit replaces the first exact occurrence of e.Search.
func applyEdit(content string, e EditBlock) (string, error) {
	if e.Search != "" && strings.Contains(content, e.Search) {
		return strings.Replace(content, e.Search, e.Replace, 1), nil
	}
	if e.Search != "" && strings.Contains(normalizeWhitespace(content), normalizeWhitespace(e.Search)) {
		return content, fmt.Errorf("SEARCH text not found exactly. Found similar text with different whitespace.\n"+
			"Try adjusting indentation to match exactly.\nSEARCH was:\n%s\n", e.Search)
	}
	return content, fmt.Errorf("SEARCH text not found in file.\n"+
		"Make sure the SEARCH block matches the file content exactly, character-for-character.\nSEARCH was:\n%s\n", e.Search)
}

func (w WorkspaceFiles) EditFile() Tool {
	fn := func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Path  string      `json:"path"`
			Edits []EditBlock `json:"edits"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if len(in.Edits) == 0 {
			return nil, errors.New("edits cannot be empty")
		}
		ws, err := w.open()
		if err != nil {
			return nil, err
		}
		data, err := ws.ReadFile(in.Path)
		if err != nil {
			return nil, workspaceErr("Failed to read file", in.Path, err)
		}

		content := string(data)
		applied, failed := 0, 0
		errs := []string{}
		for i, e := range in.Edits {
			next, err := applyEdit(content, e)
			if err != nil {
				failed++
				errs = append(errs, fmt.Sprintf("Edit #%d: %v", i+1, err))
				continue
			}
			content = next
			applied++
		}
		if applied > 0 {
			if err := ws.WriteFile(in.Path, []byte(content)); err != nil {
				return nil, fmt.Errorf("Failed to write updated file %s: %v", in.Path, err)
			}
		}

		out, err := mustJSON(map[string]any{
			"path":          in.Path,
			"edits_applied": applied,
			"edits_failed":  failed,
			"errors":        errs,
		})
		if err != nil {
			return nil, err
		}
		if failed > 0 {
			return nil, &Error{
				Message: fmt.Sprintf("%d edits applied, %d failed. See content for details.", applied, failed),
				Output:  out,
			}
		}
		return out, nil
	}
	return Tool{Func: fn, Metadata: ToolMetadata{Schema: types.ToolSchema{
		Name: "edit_file",
		Description: "Edit an existing file using SEARCH/REPLACE blocks. Each search text must match " +
			"character-for-character; only its first occurrence is replaced. Prefer this over write_file for large files.",
		Parameters: schema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": pathProp("Relative path to file to edit (e.g., 'app.js', 'index.html')"),
				"edits": map[string]any{
					"type":        "array",
					"description": "Array of search/replace edit blocks to apply in order",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"search":  map[string]any{"type": "string", "description": "Exact text to search for"},
							"replace": map[string]any{"type": "string", "description": "Replacement text"},
						},
						"required": []string{"search", "replace"},
					},
				},
			},
			"required": []string{"path", "edits"},
		}),
	}}}
}

type fileEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
	SizeBytes   int    `json:"size_bytes"`
}

func (w WorkspaceFiles) ListFiles() Tool {
	fn := func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Path string `json:"path"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		ws, err := w.open()
		if err != nil {
			return nil, err
		}
		if in.Path != "" && in.Path != "." {
			meta, err := ws.Stat(in.Path)
			if err != nil {
				return nil, workspaceErr("Directory not found", in.Path, err)
			}
			if !meta.IsDirectory {
				return nil, errors.New("Path is not a directory")
			}
		}
		entries, err := ws.List(in.Path, false)
		if err != nil {
			return nil, fmt.Errorf("Failed to read directory: %v", err)
		}
		files := make([]fileEntry, len(entries))
		for i, e := range entries {
			files[i] = fileEntry{Name: path.Base(e.Path), Path: e.Path, IsDirectory: e.IsDirectory, SizeBytes: e.Size}
		}
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].IsDirectory != files[j].IsDirectory {
				return files[i].IsDirectory
			}
			return files[i].Name < files[j].Name
		})
		return mustJSON(map[string]any{"files": files, "total_count": len(files)})
	}
	return Tool{Func: fn, Metadata: ToolMetadata{Schema: types.ToolSchema{
		Name:        "list_files",
		Description: "List files in your page workspace. Directories come first.",
		Parameters: schema(map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": pathProp("Relative path to directory (optional, defaults to root)")},
		}),
	}}}
}

func (w WorkspaceFiles) DeleteFile() Tool {
	fn := func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Path string `json:"path"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		ws, err := w.open()
		if err != nil {
			return nil, err
		}
		if err := ws.Delete(in.Path); err != nil {
			return nil, workspaceErr("Failed to delete", in.Path, err)
		}
		return mustJSON(map[string]any{"path": in.Path, "deleted": true})
	}
	return Tool{Func: fn, Metadata: ToolMetadata{Schema: types.ToolSchema{
		Name:        "delete_file",
		Description: "Delete a file or an empty directory from your page workspace.",
		Parameters: schema(map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": pathProp("Relative path to delete")},
			"required":   []string{"path"},
		}),
	}}}
}

func (w WorkspaceFiles) CopyFile() Tool {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	fn := func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Source       string `json:"source"`
			Destination  string `json:"destination"`
			AsJSVariable string `json:"as_js_variable"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		allowed := false
		for _, p := range copySourcePrefixes {
			if strings.HasPrefix(in.Source, p) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("Source must be in /results/, /workspace/, or /final/ directory. Got: %s", in.Source)
		}
		if strings.ContainsAny(in.Destination, "/\\") {
			return nil, errors.New("Destination must be a simple filename (e.g., 'data.js'), not a path. Files go directly in page root.")
		}
		if in.Destination == "" {
			return nil, errors.New("Destination filename cannot be empty")
		}

		fs, err := w.fs()
		if err != nil {
			return nil, err
		}
		meta, err := fs.Stat(in.Source)
		if err != nil {
			return nil, fmt.Errorf("Source file not found: %s", in.Source)
		}
		if meta.IsDirectory {
			return nil, fmt.Errorf("Source is a directory: %s", in.Source)
		}
		if meta.Size > MaxCopySize {
			return nil, fmt.Errorf("File too large: %d bytes (max: %d bytes). Consider filtering the data first.", meta.Size, MaxCopySize)
		}
		data, err := fs.ReadFile(in.Source)
		if err != nil {
			return nil, fmt.Errorf("Failed to read source file: %v", err)
		}

		if in.AsJSVariable != "" {
			if !jsIdentifier.MatchString(in.AsJSVariable) {
				return nil, fmt.Errorf("Invalid JavaScript variable name: %s. Use only letters, numbers, and underscores.", in.AsJSVariable)
			}
			if !utf8.Valid(data) {
				return nil, errors.New("Source file is not valid UTF-8. Cannot wrap as JavaScript variable.")
			}
			data = []byte(fmt.Sprintf("// Auto-copied from VFS: %s\n// Generated at: %s\nconst %s = %s;\n",
				in.Source, now().UTC().Format("2006-01-02 15:04:05 UTC"), in.AsJSVariable, data))
		}

		ws, err := vfs.NewWorkspace(fs, w.Workspace)
		if err != nil {
			return nil, err
		}
		if err := ws.WriteFile(in.Destination, data); err != nil {
			return nil, fmt.Errorf("Failed to write destination file: %v", err)
		}

		suffix := ""
		if in.AsJSVariable != "" {
			suffix = " (wrapped as JavaScript variable)"
		}
		return mustJSON(map[string]any{
			"status":       "success",
			"source":       in.Source,
			"destination":  in.Destination,
			"bytes_copied": len(data),
			"message":      fmt.Sprintf("Copied %d bytes to page workspace as '%s'%s", len(data), in.Destination, suffix),
		})
	}
	return Tool{Func: fn, Metadata: ToolMetadata{Schema: types.ToolSchema{
		Name: "copy_file",
		Description: "Copy a data file from the session VFS into your page workspace without reading it into the conversation. " +
			"Set as_js_variable to wrap the content as 'const NAME = ...;' so index.html can load it with a script tag.",
		Parameters: schema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source":         pathProp("Source VFS path (e.g., '/results/resources_123.json', '/workspace/task/findings.json')"),
				"destination":    pathProp("Destination filename in page workspace (simple name only, e.g., 'data.js')"),
				"as_js_variable": map[string]any{"type": "string", "description": "Optional JavaScript variable name to wrap the content"},
			},
			"required": []string{"source", "destination"},
		}),
	}}}
}

// workspaceErr maps VFS and validation failures to model-facing text.
func workspaceErr(what, p string, err error) error {
	var pv *vfs.PathValidationError
	switch {
	case errors.As(err, &pv):
		return fmt.Errorf("Invalid path: %v", err)
	case errors.Is(err, vfs.ErrNotFound):
		return fmt.Errorf("%s: %s", what, p)
	default:
		return fmt.Errorf("%s %s: %v", what, p, err)
	}
}
