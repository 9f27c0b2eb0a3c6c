package handlers

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/agent/hierarchical"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const reportName = "report.md"

// writerTeam 一个 worker 的团队: 按 labels 路由, 每次执行把报告写入会话目录.
func writerTeam(labels ...string) session.TeamFunc {
	return func(c hierarchical.Collaborators) (*hierarchical.Team, error) {
		return hierarchical.NewTeamBuilder(hierarchical.SuperTeamName, hierarchical.NewScriptedOracle(labels...), nil).
			AddWorker(hierarchical.NewWorkerDescriptor("writer", ""), hierarchical.CapabilityFunc(
				func(context.Context, []types.Message) (string, error) {
					if err := os.WriteFile(filepath.Join(c.WorkDir, reportName), []byte("# AI agents\n"), 0o644); err != nil {
						return "", err
					}
					return "Document saved to " + reportName, nil
				})).
			Build()
	}
}

// blockingTeam 的 worker 在 release 关闭前不返回
func blockingTeam(started chan<- struct{}, release <-chan struct{}) session.TeamFunc {
	return func(c hierarchical.Collaborators) (*hierarchical.Team, error) {
		return hierarchical.NewTeamBuilder(hierarchical.SuperTeamName, hierarchical.NewScriptedOracle("writer"), nil).
			AddWorker(hierarchical.NewWorkerDescriptor("writer", ""), hierarchical.CapabilityFunc(
				func(ctx context.Context, _ []types.Message) (string, error) {
					close(started)
					select {
					case <-release:
						return "done", nil
					case <-ctx.Done():
						return "", ctx.Err()
					}
				})).
			Build()
	}
}

func okShared(context.Context) (hierarchical.Collaborators, error) {
	return hierarchical.Collaborators{}, nil
}

func failingShared(context.Context) (hierarchical.Collaborators, error) {
	return hierarchical.Collaborators{}, errors.New("OPENROUTER_API_KEY is not set")
}

func newStore(t *testing.T, shared session.SharedFunc, team session.TeamFunc) *session.Store {
	t.Helper()
	cfg := session.DefaultStoreConfig()
	cfg.BaseDir = t.TempDir()
	s := session.NewStore(cfg, shared, zap.NewNop(), session.WithTeamFunc(team))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newMux 注册全部端点, 与 cmd 中的路由一致
func newMux(store *session.Store) *http.ServeMux {
	logger := zap.NewNop()
	query := NewQueryHandler(store, session.NewPipeline(logger), 0, logger)
	sessions := NewSessionHandler(store, logger)
	files := NewFileHandler(store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/session", sessions.HandleSession)
	mux.HandleFunc("/query", query.HandleQuery)
	mux.HandleFunc("GET /ws/query", NewWSQueryHandler(query, nil).HandleWS)
	mux.HandleFunc("GET /files", files.HandleList)
	mux.HandleFunc("GET /download", files.HandleDownload)
	return mux
}

type sseFrame struct {
	Event string
	Data  string
}

// parseSSE 把响应体拆成帧, 多个 data 行以换行拼接
func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var (
		frames []sseFrame
		cur    sseFrame
		data   []string
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data != nil {
				cur.Data = strings.Join(data, "\n")
				frames = append(frames, cur)
			}
			cur, data = sseFrame{}, nil
		case strings.HasPrefix(line, "event: "):
			cur.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, sc.Err())
	return frames
}

func doRequest(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}
