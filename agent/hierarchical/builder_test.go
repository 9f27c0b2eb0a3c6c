package hierarchical

import (
	"context"
	"sync"
	"testing"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm/tools"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// teamScripts routes each team by its own script, keyed by the team in context.
func teamScripts(scripts map[string][]string) Oracle {
	var mu sync.Mutex
	oracles := make(map[string]*ScriptedOracle, len(scripts))
	for team, labels := range scripts {
		oracles[team] = NewScriptedOracle(labels...)
	}
	return FuncOracle(func(ctx context.Context, msgs []types.Message, options []string) (string, error) {
		team, _ := types.Team(ctx)
		mu.Lock()
		o, ok := oracles[team]
		mu.Unlock()
		if !ok {
			return FinishLabel, nil
		}
		return o.Decide(ctx, msgs, options)
	})
}

func replyWith(text string) Capability {
	return CapabilityFunc(func(context.Context, []types.Message) (string, error) { return text, nil })
}

func stubCollaborators(t *testing.T, oracle Oracle) Collaborators {
	return Collaborators{
		WorkDir: t.TempDir(),
		Oracle:  oracle,
		Capabilities: map[string]Capability{
			SearchWorker:         replyWith("search results"),
			WebScraperWorker:     replyWith("scraped pages"),
			NoteTakerWorker:      replyWith("outline written"),
			DocWriterWorker:      replyWith("report written"),
			ChartGeneratorWorker: replyWith("chart drawn"),
		},
	}
}

func TestBuildWritingTeam_ToolSets(t *testing.T) {
	team, err := BuildWritingTeam(stubCollaborators(t, NewScriptedOracle()))
	require.NoError(t, err)
	assert.Equal(t, WritingTeamName, team.Name())

	caps := map[string][]string{}
	for _, m := range team.Members() {
		caps[m.Name()] = m.Capabilities()
	}
	assert.Equal(t, []string{tools.WriteDocumentToolName, tools.EditDocumentToolName, tools.ReadDocumentToolName}, caps[DocWriterWorker])
	assert.Equal(t, []string{tools.CreateOutlineToolName, tools.ReadDocumentToolName}, caps[NoteTakerWorker])
	assert.Equal(t, []string{tools.ReadDocumentToolName, tools.PythonREPLToolName}, caps[ChartGeneratorWorker])
}

func TestBuildResearchTeam_ToolSets(t *testing.T) {
	team, err := BuildResearchTeam(stubCollaborators(t, NewScriptedOracle()))
	require.NoError(t, err)
	assert.Equal(t, []string{FinishLabel, SearchWorker, WebScraperWorker}, team.Options().Labels())

	caps := map[string][]string{}
	for _, m := range team.Members() {
		caps[m.Name()] = m.Capabilities()
	}
	assert.Equal(t, []string{tools.WebSearchToolName}, caps[SearchWorker])
	assert.Equal(t, []string{tools.WebScrapeToolName}, caps[WebScraperWorker])
}

func TestBuildWritingTeam_NeedsWorkDir(t *testing.T) {
	c := stubCollaborators(t, NewScriptedOracle())
	c.WorkDir = ""
	_, err := BuildWritingTeam(c)
	assert.Error(t, err)
}

func TestBuildResearchTeam_NeedsProvider(t *testing.T) {
	_, err := BuildResearchTeam(Collaborators{Oracle: NewScriptedOracle()})
	assert.Error(t, err)
}

func TestSuperTeam_ThreeLevelRun(t *testing.T) {
	oracle := teamScripts(map[string][]string{
		SuperTeamName:    {ResearchTeamName, WritingTeamName},
		ResearchTeamName: {SearchWorker, WebScraperWorker},
		WritingTeamName:  {NoteTakerWorker, DocWriterWorker},
	})
	super, err := BuildSuperTeam(stubCollaborators(t, oracle))
	require.NoError(t, err)
	assert.Equal(t, []string{FinishLabel, ResearchTeamName, WritingTeamName}, super.Options().Labels())

	var mu sync.Mutex
	var all []workflow.Step
	ctx := workflow.WithStepObserver(context.Background(), func(s workflow.Step) {
		mu.Lock()
		all = append(all, s)
		mu.Unlock()
	})

	var outer []workflow.Step
	final, err := super.Stream(ctx, workflow.NewState(types.NewUserMessage("write a report")), 0, func(s workflow.Step) error {
		outer = append(outer, s)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, final.Messages, 3)
	assert.Equal(t, ResearchTeamName, final.Messages[1].Author)
	assert.Equal(t, "scraped pages", final.Messages[1].Content)
	assert.Equal(t, WritingTeamName, final.Messages[2].Author)
	assert.Equal(t, "report written", final.Messages[2].Content)
	assert.Equal(t, workflow.End, final.Next)

	assert.Len(t, outer, 5)
	assert.Len(t, all, 15)
	graphs := map[string]int{}
	for _, s := range all {
		graphs[s.Graph]++
	}
	assert.Equal(t, map[string]int{SuperTeamName: 5, ResearchTeamName: 5, WritingTeamName: 5}, graphs)
}

func TestSuperTeam_MissingSubTeamsStillCompile(t *testing.T) {
	super, err := BuildSuperTeam(Collaborators{Oracle: NewScriptedOracle(ResearchTeamName)})
	require.NoError(t, err)

	final, err := super.Run(context.Background(), workflow.NewState(types.NewUserMessage("q")), 0)
	require.NoError(t, err)
	require.Len(t, final.Messages, 2)
	assert.Equal(t, ResearchTeamName, final.Messages[1].Author)
	assert.Contains(t, final.Messages[1].Content, "not available")
}
