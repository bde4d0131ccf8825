package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentdash/agent/sandbox"
	"github.com/BaSui01/agentdash/config"
)

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.js")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestRunExec_PrintsResult(t *testing.T) {
	var out bytes.Buffer
	err := runExec(context.Background(), []string{writeScript(t, "1 + 1")}, &out)
	require.NoError(t, err)

	var res sandbox.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, sandbox.OutcomeOK, res.Outcome)
	assert.JSONEq(t, "2", string(res.Value))
}

func TestRunExec_ScriptFailure(t *testing.T) {
	var out bytes.Buffer
	err := runExec(context.Background(), []string{writeScript(t, "throw new Error('nope')")}, &out)
	assert.ErrorIs(t, err, errScriptFailed)
	assert.Contains(t, out.String(), `"outcome": "runtime_error"`)
}

func TestRunExec_Usage(t *testing.T) {
	assert.ErrorIs(t, runExec(context.Background(), nil, &bytes.Buffer{}), errUsage)

	err := runExec(context.Background(), []string{filepath.Join(t.TempDir(), "missing.js")}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "read script")
}

func TestExecScript_FreshVFSWithDefaultDirs(t *testing.T) {
	cfg := config.DefaultConfig()
	logger := zaptest.NewLogger(t)
	script := `
		vfs.writeFile("/workspace/a.txt", "hi");
		vfs.readFile("/workspace/a.txt")
	`
	res := execScript(context.Background(), cfg, script, time.Second, logger)
	require.True(t, res.Success, res.Stderr)
	assert.JSONEq(t, `"hi"`, string(res.Value))

	// Each run gets its own file system.
	res = execScript(context.Background(), cfg, `vfs.exists("/workspace/a.txt")`, time.Second, logger)
	require.True(t, res.Success, res.Stderr)
	assert.JSONEq(t, "false", string(res.Value))
}

func TestExecScript_TimeoutOverride(t *testing.T) {
	res := execScript(context.Background(), config.DefaultConfig(), "while(true) {}", 50*time.Millisecond, zaptest.NewLogger(t))
	assert.Equal(t, sandbox.OutcomeTimeout, res.Outcome)
}
