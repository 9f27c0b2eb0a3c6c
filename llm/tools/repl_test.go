package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out     string
	err     error
	gotDir  string
	gotCode string
}

func (f *fakeRunner) RunPython(_ context.Context, workDir, code string) (string, error) {
	f.gotDir, f.gotCode = workDir, code
	return f.out, f.err
}

func TestPythonREPLTool_Success(t *testing.T) {
	runner := &fakeRunner{out: "42\n"}
	fn, meta := NewPythonREPLTool(runner, "/work", nil)
	assert.Equal(t, PythonREPLToolName, meta.Schema.Name)

	raw, err := fn(context.Background(), json.RawMessage(`{"code":"print(42)"}`))
	require.NoError(t, err)
	assert.Equal(t, "Successfully executed:\n```python\nprint(42)\n```\nStdout: 42\n", ToolResult{Result: raw}.Text())
	assert.Equal(t, "/work", runner.gotDir)
	assert.Equal(t, "print(42)", runner.gotCode)
}

func TestPythonREPLTool_FailureIsText(t *testing.T) {
	fn, _ := NewPythonREPLTool(&fakeRunner{err: assert.AnError}, "/work", nil)

	raw, err := fn(context.Background(), json.RawMessage(`{"code":"boom"}`))
	require.NoError(t, err)
	assert.Equal(t, "Failed to execute. Error: "+assert.AnError.Error(), ToolResult{Result: raw}.Text())
}

func TestPythonREPLTool_Errors(t *testing.T) {
	fn, _ := NewPythonREPLTool(nil, "/work", nil)

	_, err := fn(context.Background(), json.RawMessage(`{"code":`))
	assert.Error(t, err)

	_, err = fn(context.Background(), json.RawMessage(`{"code":"1"}`))
	assert.EqualError(t, err, "code runner not configured")
}
