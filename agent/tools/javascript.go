package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BaSui01/agentdash/agent/sandbox"
	"github.com/BaSui01/agentdash/types"
)

const javascriptDescription = `Execute JavaScript code in an isolated sandbox.

Each execution runs in a fresh isolated environment (256MB memory limit, 30s timeout).
There are no Node.js APIs, no require() and no network access.

Available JavaScript APIs:
- listRegions(): List all AWS regions with their codes and names
  Returns: Array<{ code: string, name: string }>
- vfs: the session's virtual file system, shared with the parent agent and other workers
  vfs.readFile(path[, { offset, length }]) -> string
  vfs.writeFile(path, content)                 (parent directories are created)
  vfs.listDir(path) -> Array<{ name, type: "file"|"directory", size }>
  vfs.stat(path) -> { size, isDirectory, isFile }
  vfs.exists(path) -> boolean
  vfs.mkdir(path)
  vfs.delete(path)
  Conventions: /results for raw data, /workspace/<task-name>/ for processed findings, /final for deliverables.
- console.log/info/warn/debug write to stdout, console.error writes to stderr.

Output:
- success: Whether execution succeeded
- result: Value of the last expression (JSON)
- stdout: Console output
- stderr: Error messages (console.error + exceptions)
- execution_time_ms: Time taken to execute

Examples:
1. List all AWS regions:
   {"code": "const regions = listRegions(); regions;"}
2. Filter regions by prefix:
   {"code": "listRegions().filter(r => r.code.startsWith('us-'));"}
3. Save findings for the parent agent:
   {"code": "const data = listRegions(); vfs.writeFile('/workspace/regions/findings.json', JSON.stringify(data)); ({ count: data.length, savedTo: '/workspace/regions/findings.json' });"}

Return Values:
- Use the last expression as the return value (no 'return' statement needed)
- Do NOT use 'return' statements at script level; they are syntax errors`

// JavaScriptResult is the JSON a successful execute_javascript call returns.
type JavaScriptResult struct {
	Success         bool            `json:"success"`
	Result          json.RawMessage `json:"result"`
	Stdout          string          `json:"stdout"`
	Stderr          string          `json:"stderr"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	Output          string          `json:"output"`
}

var topLevelReturn = regexp.MustCompile(`(?m)^return\b`)

// scriptHints flags patterns that cannot work in the sandbox. They are
// appended to a failure report, never used to reject a script.
func scriptHints(code string) []string {
	var hints []string
	if topLevelReturn.MatchString(code) {
		hints = append(hints, "Top-level 'return' is not allowed. End the script with the value as the last expression.")
	}
	if strings.Contains(code, "require(") {
		hints = append(hints, "require() is not available. Only listRegions(), vfs and console are bound.")
	}
	if strings.Contains(code, "process.") {
		hints = append(hints, "There is no 'process' object in the sandbox.")
	}
	return hints
}

// JavaScript returns the execute_javascript tool backed by exec.
func JavaScript(exec *sandbox.Executor) Tool {
	timeout := exec.Config().Timeout + 10*time.Second

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Code string `json:"code"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.Code) == "" {
			return nil, fmt.Errorf("Code parameter cannot be empty")
		}

		res := exec.Execute(ctx, in.Code)
		if !res.Success {
			return nil, fmt.Errorf("%s", failureReport(res, scriptHints(in.Code)))
		}

		value := res.Value
		if len(value) == 0 {
			value = json.RawMessage("null")
		}
		return mustJSON(JavaScriptResult{
			Success:         true,
			Result:          value,
			Stdout:          res.Stdout,
			Stderr:          res.Stderr,
			ExecutionTimeMs: res.ElapsedMs,
			Output:          successReport(res),
		})
	}

	return Tool{
		Func: fn,
		Metadata: ToolMetadata{
			Schema: types.ToolSchema{
				Name:        "execute_javascript",
				Description: javascriptDescription,
				Parameters: schema(map[string]any{
					"type": "object",
					"properties": map[string]any{
						"code": map[string]any{
							"type":        "string",
							"description": "JavaScript code to execute. The last expression is the result.",
						},
					},
					"required": []string{"code"},
				}),
			},
			Timeout: timeout,
		},
	}
}

func successReport(res *sandbox.Result) string {
	result := "undefined"
	if len(res.Value) > 0 {
		var v any
		if err := json.Unmarshal(res.Value, &v); err == nil {
			if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
				result = string(pretty)
			}
		}
	}
	return fmt.Sprintf("Execution completed successfully in %dms\n\n=== Result ===\n%s\n\n=== Console Output ===\n%s",
		res.ElapsedMs, result, orNoOutput(res.Stdout))
}

func failureReport(res *sandbox.Result, hints []string) string {
	stderr := res.Stderr
	if strings.TrimSpace(stderr) == "" {
		stderr = res.Error
	}
	out := fmt.Sprintf("Execution failed after %dms\n\n=== Error ===\n%s\n\n=== Console Output (before error) ===\n%s",
		res.ElapsedMs, strings.TrimRight(stderr, "\n"), orNoOutput(res.Stdout))
	if len(hints) > 0 {
		out += "\n\n=== Hints ===\n- " + strings.Join(hints, "\n- ")
	}
	return out
}

func orNoOutput(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no output)"
	}
	return strings.TrimRight(s, "\n")
}
