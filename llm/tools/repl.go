package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"go.uber.org/zap"
)

// PythonREPLToolName is the chart generator's code execution tool.
const PythonREPLToolName = "python_repl_tool"

// CodeRunner executes Python inside a working directory and returns stdout.
type CodeRunner interface {
	RunPython(ctx context.Context, workDir, code string) (string, error)
}

type pythonREPLArgs struct {
	Code string `json:"code"`
}

// NewPythonREPLTool 创建代码执行工具. 执行失败同样以文本结果返回，
// 由模型决定是否修正代码重试.
func NewPythonREPLTool(runner CodeRunner, workDir string, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params pythonREPLArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid %s arguments: %w", PythonREPLToolName, err)
		}
		if runner == nil {
			return nil, fmt.Errorf("code runner not configured")
		}

		stdout, err := runner.RunPython(ctx, workDir, params.Code)
		if err != nil {
			logger.Debug("python execution failed", zap.Error(err))
			return StringResult(fmt.Sprintf("Failed to execute. Error: %v", err))
		}
		return StringResult(fmt.Sprintf("Successfully executed:\n```python\n%s\n```\nStdout: %s", params.Code, stdout))
	}

	metadata := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        PythonREPLToolName,
			Description: "Use this to execute python code. If you want to see the output of a value, you should print it out with `print(...)`. This is visible to the user.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"code": {"type": "string", "description": "The python code to execute to generate your chart."}
				},
				"required": ["code"]
			}`),
		},
	}
	return fn, metadata
}
