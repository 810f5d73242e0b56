package server

import (
	"context"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/engine"
	"github.com/sentinelworks/sentinel/internal/memory"
	"github.com/sentinelworks/sentinel/internal/model"
	"github.com/sentinelworks/sentinel/internal/retriever"
	"github.com/sentinelworks/sentinel/internal/store"
	toolcore "github.com/sentinelworks/sentinel/internal/tool"
	"github.com/sentinelworks/sentinel/internal/tool/builtin"
	"github.com/sentinelworks/sentinel/internal/tool/discovery"
)

// App is the composition root: every long-lived component, constructed
// once and passed explicitly. There are no package-level singletons.
type App struct {
	Config    *config.Config
	Router    model.Router
	Registry  *toolcore.Registry
	Executor  *toolcore.Executor
	Retriever *retriever.Registry
	Memory    *memory.Manager
	Store     *store.Worker
	Discovery *discovery.Client
	Engine    *engine.Engine
}

func NewApp(cfg *config.Config) (*App, error) {
	router, err := model.NewSessionRouter(cfg.Models)
	if err != nil {
		return nil, err
	}

	worker, err := store.NewWorker(cfg.Store)
	if err != nil {
		return nil, err
	}
	worker.Start()

	retrieverRegistry, err := retriever.NewRegistry(router, cfg.Retriever)
	if err != nil {
		worker.Stop()
		return nil, err
	}

	memoryManager := memory.NewManager(worker, router)

	registry := toolcore.NewRegistry()
	if err := registerBuiltins(registry, cfg, retrieverRegistry); err != nil {
		worker.Stop()
		return nil, err
	}

	discoveryClient, err := discovery.NewClient(registry, cfg.Discovery)
	if err != nil {
		worker.Stop()
		return nil, err
	}
	discoveryClient.Start(context.Background())

	executor, err := toolcore.NewExecutor(registry, cfg.Tools)
	if err != nil {
		worker.Stop()
		return nil, err
	}

	eng, err := engine.New(engine.Options{
		Router:          router,
		Registry:        registry,
		Executor:        executor,
		Discovery:       discoveryClient,
		Store:           worker,
		Memory:          memoryManager,
		Engine:          cfg.Engine,
		SystemPrompt:    cfg.Prompts.System,
		FinanceKeywords: cfg.Tools.Finance.Keywords,
	})
	if err != nil {
		worker.Stop()
		return nil, err
	}

	return &App{
		Config:    cfg,
		Router:    router,
		Registry:  registry,
		Executor:  executor,
		Retriever: retrieverRegistry,
		Memory:    memoryManager,
		Store:     worker,
		Discovery: discoveryClient,
		Engine:    eng,
	}, nil
}

func registerBuiltins(registry *toolcore.Registry, cfg *config.Config, retrieverRegistry *retriever.Registry) error {
	webSearch, err := builtin.NewWebSearchTool(cfg.Tools.Web)
	if err != nil {
		return err
	}
	finance, err := builtin.NewFinanceTool(cfg.Tools.Finance)
	if err != nil {
		return err
	}
	weather, err := builtin.NewWeatherTool(cfg.Tools.Weather)
	if err != nil {
		return err
	}

	registry.Register(webSearch)
	registry.Register(finance)
	registry.Register(weather)
	registry.Register(builtin.NewTimeTool())
	registry.Register(builtin.NewDocumentSearchTool(retrieverRegistry))
	return nil
}

// Close shuts the App's background components down.
func (a *App) Close() {
	if a.Discovery != nil {
		a.Discovery.Stop()
	}
	if a.Store != nil {
		a.Store.Stop()
	}
}
