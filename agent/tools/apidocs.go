package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BaSui01/agentdash/types"
)

const apiReference = `
# Page Builder API Reference

## Page layout

Every page lives in /pages/<workspace>/ of the session VFS and MUST have an index.html.
Pages are static: they cannot call AWS or the sandbox at view time. Data is embedded ahead of time.

- Temporary pages: copy_file the data with as_js_variable (e.g. data.js -> const DATA = [...];)
  and load it with <script src="data.js"></script> before the page script.
- Tool pages: split index.html, app.js and styles.css; keep each file small and use edit_file for changes.
- Reference assets with relative URLs only (./app.js, ./styles.css).

## Sandbox APIs (execute_javascript)

### listRegions()
All AWS regions with their codes and names.
Returns: Array<{ code: string, name: string }>

### vfs
The session VFS shared with the parent agent and sibling workers.

- vfs.readFile(path) -> string
- vfs.readFile(path, { offset, length }) -> string (chunked read of large files)
- vfs.writeFile(path, content)
- vfs.listDir(path) -> Array<{ name, type: "file" | "directory", size }>
- vfs.stat(path) -> { size, isDirectory, isFile }
- vfs.exists(path) -> boolean
- vfs.mkdir(path)
- vfs.delete(path)

Directory conventions:
- /results/    raw query results
- /workspace/  processed findings, one directory per task
- /final/      deliverables
- /pages/      page workspaces

### console
console.log/info/warn/debug write to stdout and console.error writes to stderr.
Both are returned with the execution result.

## Example: inspect a data file before building a page

` + "```javascript" + `
const meta = vfs.stat('/workspace/lambdas/findings.json');
const head = vfs.readFile('/workspace/lambdas/findings.json', { offset: 0, length: 2000 });
({ size: meta.size, head });
` + "```"

// APIDocs returns the get_api_docs tool.
func APIDocs() Tool {
	doc := strings.TrimSpace(apiReference)
	fn := func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return mustJSON(map[string]string{"api_reference": doc})
	}
	return Tool{Func: fn, Metadata: ToolMetadata{Schema: types.ToolSchema{
		Name:        "get_api_docs",
		Description: "Get the API reference for building pages: page layout rules, sandbox bindings and VFS conventions.",
		Parameters:  schema(map[string]any{"type": "object", "properties": map[string]any{}}),
	}}}
}
