package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/fsutil"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"go.uber.org/zap"
)

// Document tool names.
const (
	CreateOutlineToolName = "create_outline"
	ReadDocumentToolName  = "read_document"
	WriteDocumentToolName = "write_document"
	EditDocumentToolName  = "edit_document"
)

// DocumentTools 读写某个会话工作目录下的文本文件.
// 所有文件名都经过 fsutil.Resolve，越界路径直接报错.
// 写入是整文件覆盖，同一次运行内的并发写者之间没有加锁.
type DocumentTools struct {
	root   string
	logger *zap.Logger
}

// NewDocumentTools binds the document tools to a working directory.
func NewDocumentTools(root string, logger *zap.Logger) *DocumentTools {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentTools{root: root, logger: logger.With(zap.String("component", "documents"))}
}

// Root returns the working directory.
func (d *DocumentTools) Root() string { return d.root }

func (d *DocumentTools) path(name string) (string, error) {
	return fsutil.Resolve(d.root, name)
}

// CreateOutline writes one numbered line per point.
func (d *DocumentTools) CreateOutline(points []string, fileName string) (string, error) {
	p, err := d.path(fileName)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, point := range points {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, point)
	}
	if err := fsutil.WriteFile(p, []byte(sb.String())); err != nil {
		return "", err
	}
	d.logger.Debug("outline saved", zap.String("file", fileName), zap.Int("points", len(points)))
	return fmt.Sprintf("Outline saved to %s", fileName), nil
}

// ReadDocument returns lines[start:end] joined with newlines. Bounds follow
// slice-notation rules: negative values count from the end and
// out-of-range values are clamped.
func (d *DocumentTools) ReadDocument(fileName string, start, end *int) (string, error) {
	p, err := d.path(fileName)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	lines := splitLines(string(data))
	lo, hi := sliceBounds(len(lines), start, end)
	return strings.Join(lines[lo:hi], "\n"), nil
}

// WriteDocument replaces the whole file with content.
func (d *DocumentTools) WriteDocument(content, fileName string) (string, error) {
	p, err := d.path(fileName)
	if err != nil {
		return "", err
	}
	if err := fsutil.WriteFile(p, []byte(content)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Document saved to %s", fileName), nil
}

// EditDocument inserts text at 1-indexed line numbers, applied in ascending
// order against the growing document. Any out-of-range number aborts the
// edit before the file is touched; that case is reported as a normal result
// string, not an error.
func (d *DocumentTools) EditDocument(fileName string, inserts map[int]string) (string, error) {
	p, err := d.path(fileName)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	lines := splitLines(string(data))

	numbers := make([]int, 0, len(inserts))
	for n := range inserts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	for _, n := range numbers {
		if n < 1 || n > len(lines)+1 {
			return fmt.Sprintf("Error: Line number %d is out of range.", n), nil
		}
		lines = append(lines, "")
		copy(lines[n:], lines[n-1:])
		lines[n-1] = inserts[n]
	}

	out := strings.Join(lines, "\n")
	if len(lines) > 0 {
		out += "\n"
	}
	if err := fsutil.WriteFile(p, []byte(out)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Document edited and saved to %s", fileName), nil
}

// splitLines splits on "\n" without producing a trailing empty line.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

func sliceBounds(n int, start, end *int) (int, int) {
	clamp := func(v int) int {
		if v < 0 {
			v += n
		}
		if v < 0 {
			return 0
		}
		if v > n {
			return n
		}
		return v
	}
	lo, hi := 0, n
	if start != nil {
		lo = clamp(*start)
	}
	if end != nil {
		hi = clamp(*end)
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// ====== 工具注册 ======

type createOutlineArgs struct {
	Points   []string `json:"points"`
	FileName string   `json:"file_name"`
}

type readDocumentArgs struct {
	FileName string `json:"file_name"`
	Start    *int   `json:"start,omitempty"`
	End      *int   `json:"end,omitempty"`
}

type writeDocumentArgs struct {
	Content  string `json:"content"`
	FileName string `json:"file_name"`
}

type editDocumentArgs struct {
	FileName string            `json:"file_name"`
	Inserts  map[string]string `json:"inserts"`
}

func textTool(run func(args json.RawMessage) (string, error)) ToolFunc {
	return func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		out, err := run(args)
		if err != nil {
			return nil, err
		}
		return StringResult(out)
	}
}

// Register adds the named document tools to registry. Unknown names are an error.
func (d *DocumentTools) Register(registry ToolRegistry, names ...string) error {
	for _, name := range names {
		fn, meta, ok := d.tool(name)
		if !ok {
			return fmt.Errorf("unknown document tool %q", name)
		}
		if err := registry.Register(name, fn, meta); err != nil {
			return err
		}
	}
	return nil
}

func (d *DocumentTools) tool(name string) (ToolFunc, ToolMetadata, bool) {
	switch name {
	case CreateOutlineToolName:
		return textTool(func(raw json.RawMessage) (string, error) {
			var a createOutlineArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("invalid %s arguments: %w", name, err)
			}
			return d.CreateOutline(a.Points, a.FileName)
		}), ToolMetadata{Schema: llm.ToolSchema{
			Name:        name,
			Description: "Create and save an outline.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"points": {"type": "array", "items": {"type": "string"}, "description": "List of main points or sections."},
					"file_name": {"type": "string", "description": "File path to save the outline."}
				},
				"required": ["points", "file_name"]
			}`),
		}}, true

	case ReadDocumentToolName:
		return textTool(func(raw json.RawMessage) (string, error) {
			var a readDocumentArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("invalid %s arguments: %w", name, err)
			}
			return d.ReadDocument(a.FileName, a.Start, a.End)
		}), ToolMetadata{Schema: llm.ToolSchema{
			Name:        name,
			Description: "Read the specified document.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_name": {"type": "string", "description": "File path to read the document from."},
					"start": {"type": "integer", "description": "The start line. Default is 0"},
					"end": {"type": "integer", "description": "The end line. Default is None"}
				},
				"required": ["file_name"]
			}`),
		}}, true

	case WriteDocumentToolName:
		return textTool(func(raw json.RawMessage) (string, error) {
			var a writeDocumentArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("invalid %s arguments: %w", name, err)
			}
			return d.WriteDocument(a.Content, a.FileName)
		}), ToolMetadata{Schema: llm.ToolSchema{
			Name:        name,
			Description: "Create and save a text document.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"content": {"type": "string", "description": "Text content to be written into the document."},
					"file_name": {"type": "string", "description": "File path to save the document."}
				},
				"required": ["content", "file_name"]
			}`),
		}}, true

	case EditDocumentToolName:
		return textTool(func(raw json.RawMessage) (string, error) {
			var a editDocumentArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("invalid %s arguments: %w", name, err)
			}
			inserts := make(map[int]string, len(a.Inserts))
			for k, v := range a.Inserts {
				n, err := strconv.Atoi(strings.TrimSpace(k))
				if err != nil {
					return "", fmt.Errorf("invalid line number %q", k)
				}
				inserts[n] = v
			}
			return d.EditDocument(a.FileName, inserts)
		}), ToolMetadata{Schema: llm.ToolSchema{
			Name:        name,
			Description: "Edit a document by inserting text at specific line numbers.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_name": {"type": "string", "description": "Path of the document to be edited."},
					"inserts": {
						"type": "object",
						"additionalProperties": {"type": "string"},
						"description": "Dictionary where key is the line number (1-indexed) and value is the text to be inserted at that line."
					}
				},
				"required": ["file_name", "inserts"]
			}`),
		}}, true
	}
	return nil, ToolMetadata{}, false
}
