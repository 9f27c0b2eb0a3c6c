package history

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/agent/hierarchical"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/database"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/migration"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "runs.db")
	require.NoError(t, migration.Run(context.Background(), database.DriverSQLite, dsn, zaptest.NewLogger(t)))

	pool, err := database.Open(database.DriverSQLite, dsn, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return NewRepository(pool, zaptest.NewLogger(t))
}

func runRecord(runID, sessionID string, started time.Time) session.RunRecord {
	return session.RunRecord{
		RunID:      runID,
		SessionID:  sessionID,
		Query:      "Research AI agents",
		Status:     session.RunCompleted,
		Steps:      5,
		Output:     "report written",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
}

func TestRepository_RecordAndGet(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, runRecord("run-1", "sess-1", started)))

	got, found, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, session.RunCompleted, got.Status)
	assert.Equal(t, 5, got.Steps)
	assert.EqualValues(t, 3000, got.DurationMillis())

	_, found, err = repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRepository_RecordOverwritesSameRun(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	rec := runRecord("run-1", "sess-1", time.Now())

	require.NoError(t, repo.Record(ctx, rec))
	rec.Status, rec.Error = session.RunFailed, "boom"
	require.NoError(t, repo.Record(ctx, rec))

	list, err := repo.ListBySession(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, session.RunFailed, list[0].Status)
	assert.Equal(t, "boom", list[0].Error)
}

func TestRepository_ListBySessionNewestFirst(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Record(ctx, runRecord(fmt.Sprintf("run-%d", i), "sess-a", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Record(ctx, runRecord("other", "sess-b", base)))

	list, err := repo.ListBySession(ctx, "sess-a", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "run-3", list[0].RunID)
	assert.Equal(t, "run-2", list[1].RunID)
	assert.Equal(t, "run-1", list[2].RunID)
}

func TestRepository_PurgeBefore(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, runRecord("old", "s", base)))
	require.NoError(t, repo.Record(ctx, runRecord("new", "s", base.Add(48*time.Hour))))

	n, err := repo.PurgeBefore(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, found, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRepository_TruncatesLongOutput(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	rec := runRecord("long", "s", time.Now())
	rec.Output = strings.Repeat("界", maxTextLen)

	require.NoError(t, repo.Record(ctx, rec))
	got, _, err := repo.Get(ctx, "long")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.Output), maxTextLen)
	assert.True(t, strings.HasPrefix(rec.Output, got.Output))
}

func TestRepository_ConcurrentRecords(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.Record(ctx, runRecord(fmt.Sprintf("run-%d", i), "sess", time.Now())))
		}(i)
	}
	wg.Wait()

	list, err := repo.ListBySession(ctx, "sess", 100)
	require.NoError(t, err)
	assert.Len(t, list, 10)
}

func TestRepository_ServesAsPipelineRecorder(t *testing.T) {
	repo := setupRepo(t)
	teamFn := func(hierarchical.Collaborators) (*hierarchical.Team, error) {
		return hierarchical.NewTeamBuilder(hierarchical.SuperTeamName, hierarchical.NewScriptedOracle("writer"), nil).
			AddWorker(hierarchical.NewWorkerDescriptor("writer", ""), hierarchical.CapabilityFunc(
				func(context.Context, []types.Message) (string, error) { return "done", nil })).
			Build()
	}
	shared := func(context.Context) (hierarchical.Collaborators, error) { return hierarchical.Collaborators{}, nil }
	store := session.NewStore(session.StoreConfig{BaseDir: t.TempDir()}, shared, nil, session.WithTeamFunc(teamFn))
	defer store.Close()

	sess, err := store.Create(context.Background())
	require.NoError(t, err)

	p := session.NewPipeline(nil, session.WithRecorder(repo))
	for ev := range p.Stream(context.Background(), sess, "hello", 0) {
		_ = ev
	}

	list, err := repo.ListBySession(context.Background(), sess.ID(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, session.RunCompleted, list[0].Status)
	assert.Equal(t, 3, list[0].Steps)
	assert.Equal(t, "done", list[0].Output)
	assert.Equal(t, "hello", list[0].Query)
}
