package hierarchical

import (
	"errors"
	"fmt"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm/tokenizer"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm/tools"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/workflow"
	"go.uber.org/zap"
)

// Team and worker names.
const (
	SuperTeamName    = "super_team"
	ResearchTeamName = "research_team"
	WritingTeamName  = "writing_team"

	SearchWorker         = "search"
	WebScraperWorker     = "web_scraper"
	DocWriterWorker      = "doc_writer"
	NoteTakerWorker      = "note_taker"
	ChartGeneratorWorker = "chart_generator"
)

// Collaborators are the shared dependencies a team tree is built from.
// Provider, Search and Scraper may be shared between sessions; WorkDir is
// per session.
type Collaborators struct {
	Provider     llm.Provider
	Model        string
	Search       tools.WebSearchProvider
	SearchConfig tools.WebSearchToolConfig
	Scraper      tools.WebScrapeProvider
	ScrapeConfig tools.WebScrapeToolConfig
	CodeRunner   tools.CodeRunner
	OutputBudget *tokenizer.Budget
	ReAct        tools.ReActConfig
	WorkDir      string

	// Oracle overrides the model-backed oracle for every supervisor.
	Oracle Oracle
	// Capabilities overrides individual workers by name.
	Capabilities map[string]Capability

	Engine   *workflow.Engine
	Observer DecisionObserver
	Logger   *zap.Logger
}

func (c *Collaborators) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Collaborators) oracle() Oracle {
	if c.Oracle != nil {
		return c.Oracle
	}
	return NewLLMOracle(c.Provider, c.Model, c.logger())
}

func (c *Collaborators) builder(name string) *TeamBuilder {
	return NewTeamBuilder(name, c.oracle(), c.logger()).
		WithEngine(c.Engine).
		WithDecisionObserver(c.Observer)
}

// worker builds a ReAct capability whose tool set is filled by register.
func (c *Collaborators) worker(name, prompt string, register func(tools.ToolRegistry) error) (WorkerDescriptor, Capability, error) {
	registry := tools.NewDefaultRegistry(c.logger())
	if err := register(registry); err != nil {
		return WorkerDescriptor{}, nil, fmt.Errorf("worker %s: %w", name, err)
	}
	var names []string
	for _, schema := range registry.List() {
		names = append(names, schema.Name)
	}
	desc := NewWorkerDescriptor(name, SupervisorNodeName, names...)

	if capability, ok := c.Capabilities[name]; ok {
		return desc, capability, nil
	}
	if c.Provider == nil {
		return WorkerDescriptor{}, nil, fmt.Errorf("worker %s: no llm provider", name)
	}

	var opts []tools.ExecutorOption
	if c.OutputBudget != nil {
		opts = append(opts, tools.WithOutputBudget(c.OutputBudget))
	}
	executor := tools.NewDefaultExecutor(registry, c.logger(), opts...)
	react := tools.NewReActExecutor(c.Provider, executor, registry.List(), c.ReAct, c.logger().With(zap.String("worker", name)))
	return desc, NewReActCapability(prompt, c.Model, react), nil
}

func (c *Collaborators) documents() *tools.DocumentTools {
	return tools.NewDocumentTools(c.WorkDir, c.logger())
}

// BuildResearchTeam assembles the search and web_scraper workers.
func BuildResearchTeam(c Collaborators) (*Team, error) {
	searchCfg := c.SearchConfig
	searchCfg.Provider = c.Search
	search, searchCap, err := c.worker(SearchWorker, "", func(r tools.ToolRegistry) error {
		return tools.RegisterWebSearchTool(r, searchCfg, c.logger())
	})
	if err != nil {
		return nil, err
	}

	scrapeCfg := c.ScrapeConfig
	scrapeCfg.Provider = c.Scraper
	scraper, scraperCap, err := c.worker(WebScraperWorker, "", func(r tools.ToolRegistry) error {
		return tools.RegisterWebScrapeTool(r, scrapeCfg, c.logger())
	})
	if err != nil {
		return nil, err
	}

	return c.builder(ResearchTeamName).
		AddWorker(search, searchCap).
		AddWorker(scraper, scraperCap).
		Build()
}

// BuildWritingTeam assembles doc_writer, note_taker and chart_generator, all
// sharing the session working directory.
func BuildWritingTeam(c Collaborators) (*Team, error) {
	if c.WorkDir == "" {
		return nil, errors.New("writing team needs a working directory")
	}
	docs := c.documents()

	writer, writerCap, err := c.worker(DocWriterWorker, DocWriterPrompt, func(r tools.ToolRegistry) error {
		return docs.Register(r, tools.WriteDocumentToolName, tools.EditDocumentToolName, tools.ReadDocumentToolName)
	})
	if err != nil {
		return nil, err
	}

	notes, notesCap, err := c.worker(NoteTakerWorker, NoteTakerPrompt, func(r tools.ToolRegistry) error {
		return docs.Register(r, tools.CreateOutlineToolName, tools.ReadDocumentToolName)
	})
	if err != nil {
		return nil, err
	}

	chart, chartCap, err := c.worker(ChartGeneratorWorker, "", func(r tools.ToolRegistry) error {
		if err := docs.Register(r, tools.ReadDocumentToolName); err != nil {
			return err
		}
		fn, meta := tools.NewPythonREPLTool(c.CodeRunner, c.WorkDir, c.logger())
		return r.Register(tools.PythonREPLToolName, fn, meta)
	})
	if err != nil {
		return nil, err
	}

	return c.builder(WritingTeamName).
		AddWorker(writer, writerCap).
		AddWorker(notes, notesCap).
		AddWorker(chart, chartCap).
		Build()
}

// BuildSuperTeam assembles the top-level team over the research and writing
// teams. A sub-team that fails to build is logged and left nil, so the super
// team still compiles and reports it as unavailable when routed to.
func BuildSuperTeam(c Collaborators) (*Team, error) {
	research, err := BuildResearchTeam(c)
	if err != nil {
		c.logger().Error("research team build failed", zap.Error(err))
		research = nil
	}
	writing, err := BuildWritingTeam(c)
	if err != nil {
		c.logger().Error("writing team build failed", zap.Error(err))
		writing = nil
	}
	return c.builder(SuperTeamName).
		AddTeam(ResearchTeamName, research).
		AddTeam(WritingTeamName, writing).
		Build()
}
