package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lidco/lidco/pkg/agent"
	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/mcp"
	"github.com/lidco/lidco/pkg/memory"
	projectctx "github.com/lidco/lidco/pkg/project"
	"github.com/lidco/lidco/pkg/providers"
	anthropicprovider "github.com/lidco/lidco/pkg/providers/anthropic"
	"github.com/lidco/lidco/pkg/providers/openai_sdk"
	"github.com/lidco/lidco/pkg/tools"
	"github.com/lidco/lidco/pkg/vecstore"
	"github.com/lidco/lidco/pkg/workflow"
)

const (
	defaultHashDims  = 256
	indexFileName    = "index.gob"
	memoryMaxLines   = memory.DefaultMaxLines
	apiTypeAnthropic = "anthropic"
)

// Runtime is everything one CLI session needs, wired from the config.
type Runtime struct {
	SessionID string
	Config    *config.Config
	Project   string

	Router    *providers.ModelRouter
	Tools     *tools.ToolRegistry
	Gate      *tools.PermissionGate
	Agents    *agent.Registry
	Graph     *workflow.Graph
	Memory    *memory.SQLiteStore
	Clarifier *workflow.ClarificationManager
	Retriever *vecstore.Retriever
	Budget    *agent.TokenBudget
	Pool      *agent.CallbackPool

	// ProjectContext describes the project to every agent and leads each
	// request's context.
	ProjectContext string

	meter   *tokenMeter
	mcp     *mcp.Manager
	watcher *vecstore.Watcher
	closers []func() error
}

// NewRuntime wires providers, tools, agents, memory, retrieval and the
// workflow graph. prompt answers permission questions; nil allows every
// call that the config does not deny.
func NewRuntime(ctx context.Context, cfg *config.Config, project string, prompt tools.PromptFunc) (*Runtime, error) {
	cfg.RLock()
	llmCfg := cfg.LLM
	agentsCfg := cfg.Agents
	memCfg := cfg.Memory
	ragCfg := cfg.RAG
	permCfg := cfg.Permissions
	mcpCfg := cfg.MCP
	cfg.RUnlock()

	rt := &Runtime{
		SessionID: uuid.NewString(),
		Config:    cfg,
		Project:   project,
		Budget:    agent.NewTokenBudget(llmCfg.SessionTokenLimit),
		Pool:      agent.NewCallbackPool(agentsCfg.CallbackWorkers),
	}
	rt.meter = &tokenMeter{budget: rt.Budget}
	rt.ProjectContext = projectctx.New(project).Build(ctx)

	provs, defaultProvider, err := BuildProviders(cfg)
	if err != nil {
		return nil, err
	}
	rt.Router = providers.NewModelRouter(cfg, provs, defaultProvider)

	rt.Tools = tools.NewDefaultRegistry(tools.Options{Workspace: project, Restrict: true})
	if len(mcpCfg.Servers) > 0 {
		rt.mcp = mcp.NewManager(mcpCfg.Servers)
		n := rt.mcp.RegisterTools(ctx, rt.Tools)
		logger.InfoCF("cli", "MCP tools registered", map[string]any{"count": n})
	}
	rt.Gate = tools.NewPermissionGate(permCfg, rt.Tools, prompt)

	rt.Agents = agent.NewRegistry()
	for _, ac := range agent.BuiltinConfigs() {
		if agentsCfg.MaxIterations > 0 {
			ac.MaxIterations = agentsCfg.MaxIterations
		}
		if agentsCfg.ContextWindow > 0 {
			ac.ContextWindow = agentsCfg.ContextWindow
		}
		if err := rt.Agents.Register(agent.New(ac, rt.Router, rt.Tools)); err != nil {
			rt.Close()
			return nil, err
		}
	}
	dirs := append(agent.DefaultAgentDirs(project), agentsCfg.CustomDirs...)
	agent.RegisterCustom(rt.Agents, dirs, rt.Router, rt.Tools)

	var graphOpts []workflow.Option
	if memCfg.Enabled {
		path := memCfg.Path
		if path == "" {
			path = memory.DefaultPath()
		}
		store, err := memory.Open(ctx, path, memory.Options{
			MaxEntries:   memCfg.MaxEntries,
			OverlayFiles: memory.DefaultOverlayFiles(project),
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Memory = store
		rt.closers = append(rt.closers, store.Close)
		rt.Clarifier = workflow.NewClarificationManager(store)
		graphOpts = append(graphOpts, workflow.WithClarifications(rt.Clarifier))
		if memCfg.AutoSave {
			graphOpts = append(graphOpts, workflow.WithMemory(store))
		}
	}

	if ragCfg.Enabled {
		retriever, closeFn, err := OpenRetriever(cfg, project)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Retriever = retriever
		rt.closers = append(rt.closers, closeFn)
		graphOpts = append(graphOpts, workflow.WithRetriever(retriever))

		if ragCfg.Watch {
			w, err := vecstore.NewWatcher(project, retriever, vecstore.DefaultDebounce)
			if err != nil {
				logger.WarnCF("cli", "File watcher disabled", map[string]any{"error": err.Error()})
			} else {
				rt.watcher = w
				go w.Run(ctx)
			}
		}
	}

	rt.Graph = workflow.New(rt.Router, rt.Agents, workflow.OptionsFromConfig(agentsCfg), graphOpts...)

	logger.InfoCF("cli", "Session started", map[string]any{
		"session":   rt.SessionID,
		"project":   project,
		"providers": strings.Join(rt.Router.ProviderNames(), ","),
		"agents":    rt.Agents.Len(),
		"tools":     rt.Tools.Count(),
	})
	return rt, nil
}

// ExecContext returns the hooks for a run on term, counting tokens against
// the session budget.
func (rt *Runtime) ExecContext(term *Terminal, stream bool) agent.ExecContext {
	ec := term.ExecContext(rt.Gate, rt.Pool, stream)
	return ec.
		WithStatus(func(s string) {
			rt.meter.observe(s)
			term.Status(s)
		}).
		WithTokens(rt.meter.record)
}

// Handle runs one request through the graph with the project description,
// memory and past decisions as context.
func (rt *Runtime) Handle(ctx context.Context, msg, agentName string, ec agent.ExecContext) *agent.AgentResponse {
	rt.meter.reset()
	return rt.Graph.Handle(ctx, msg, workflow.HandleOptions{
		Agent:   agentName,
		Context: rt.requestContext(ctx),
	}, ec)
}

func (rt *Runtime) requestContext(ctx context.Context) string {
	var sections []string
	if rt.ProjectContext != "" {
		sections = append(sections, rt.ProjectContext)
	}
	if rt.Memory != nil {
		if s, err := rt.Memory.BuildContextString(ctx, memoryMaxLines); err != nil {
			logger.WarnCF("cli", "Memory context unavailable", map[string]any{"error": err.Error()})
		} else if s != "" {
			sections = append(sections, s)
		}
	}
	if rt.Clarifier != nil {
		if s := rt.Clarifier.BuildContextString(ctx); s != "" {
			sections = append(sections, s)
		}
	}
	return strings.Join(sections, "\n\n")
}

func (rt *Runtime) Streaming() bool {
	rt.Config.RLock()
	defer rt.Config.RUnlock()
	return rt.Config.LLM.Streaming
}

// Close releases stores, watchers and MCP sessions. Safe to call twice.
func (rt *Runtime) Close() {
	if rt.watcher != nil {
		rt.watcher.Close()
		rt.watcher = nil
	}
	if rt.mcp != nil {
		rt.mcp.Close()
		rt.mcp = nil
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logger.WarnCF("cli", "Close failed", map[string]any{"error": err.Error()})
		}
	}
	rt.closers = nil
}

// BuildProviders creates one provider per configured endpoint. Without any
// configured endpoint, OPENAI_API_KEY and ANTHROPIC_API_KEY are used.
func BuildProviders(cfg *config.Config) (map[string]providers.LLMProvider, string, error) {
	cfg.RLock()
	endpoints := cfg.LLMProviders.Providers
	cfg.RUnlock()

	out := make(map[string]providers.LLMProvider)
	if len(endpoints) == 0 {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			out["openai"] = openai_sdk.NewProvider(key, os.Getenv("OPENAI_BASE_URL"), "")
		}
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			out[apiTypeAnthropic] = anthropicprovider.NewProviderWithBaseURL(key, os.Getenv("ANTHROPIC_BASE_URL"))
		}
		if len(out) == 0 {
			return nil, "", errors.New("no LLM provider configured: set OPENAI_API_KEY or add llm_providers.yaml")
		}
		if _, ok := out["openai"]; ok {
			return out, "openai", nil
		}
		return out, apiTypeAnthropic, nil
	}

	names := make([]string, 0, len(endpoints))
	for name, ep := range endpoints {
		names = append(names, name)
		if strings.EqualFold(ep.APIType, apiTypeAnthropic) {
			out[name] = anthropicprovider.NewProviderWithBaseURL(ep.APIKey, ep.APIBase)
			continue
		}
		out[name] = openai_sdk.NewProvider(ep.APIKey, ep.APIBase, "", openai_sdk.WithDefaultModel(ep.DefaultModel))
	}
	sort.Strings(names)
	if _, ok := out["openai"]; ok {
		return out, "openai", nil
	}
	return out, names[0], nil
}

// OpenRetriever builds the retriever configured in the rag section. The
// returned func releases the backend.
func OpenRetriever(cfg *config.Config, project string) (*vecstore.Retriever, func() error, error) {
	cfg.RLock()
	rag := cfg.RAG
	retry := cfg.LLM.Retry
	cfg.RUnlock()

	var (
		backend vecstore.Backend
		closeFn = func() error { return nil }
	)
	switch rag.Backend {
	case "qdrant":
		qb, err := vecstore.NewQdrantBackend(vecstore.QdrantConfig{
			Host:       rag.QdrantHost,
			Port:       rag.QdrantPort,
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			Collection: rag.QdrantCollection,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect qdrant: %w", err)
		}
		backend, closeFn = qb, qb.Close
	case "", "local":
		path := rag.StorePath
		if path == "" {
			path = filepath.Join(config.ProjectDir(project), indexFileName)
		}
		vs := vecstore.NewVectorStore(path)
		if err := vs.Load(); err != nil {
			logger.WarnCF("cli", "Index could not be loaded, starting empty", map[string]any{"error": err.Error()})
		}
		backend = vs
	default:
		return nil, nil, fmt.Errorf("unknown rag backend %q", rag.Backend)
	}

	var embedder vecstore.Embedder
	key := rag.EmbeddingKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key != "" {
		client := openai_sdk.NewProvider(key, rag.EmbeddingBase, "").Client()
		embedder = vecstore.NewOpenAIEmbedder(client, rag.EmbeddingModel, providers.RetryPolicyFromConfig(retry))
	} else {
		logger.InfoC("cli", "No embedding key, using offline hash embeddings")
		embedder = vecstore.NewHashEmbedder(defaultHashDims)
	}

	r := vecstore.NewRetriever(backend, embedder, project, vecstore.WithChunking(rag.ChunkSize, rag.ChunkOverlap))
	return r, closeFn, nil
}

// tokenMeter turns the cumulative per-run token counts reported by the
// agent loop into per-role budget records. The role is taken from the
// latest "Agent: <name>" status.
type tokenMeter struct {
	budget *agent.TokenBudget

	mu       sync.Mutex
	role     string
	lastTok  int
	lastCost float64
}

func (m *tokenMeter) observe(status string) {
	name, ok := strings.CutPrefix(status, "Agent: ")
	if ok {
		name, _, _ = strings.Cut(name, " ")
	} else if strings.HasPrefix(status, "Planning") {
		name, ok = "planner", true
	} else if strings.HasPrefix(status, "Reviewing") {
		name, ok = "reviewer", true
	}
	if !ok {
		return
	}
	m.mu.Lock()
	m.role, m.lastTok, m.lastCost = name, 0, 0
	m.mu.Unlock()
}

func (m *tokenMeter) record(total int, cost float64) {
	m.mu.Lock()
	if total < m.lastTok {
		m.lastTok, m.lastCost = 0, 0
	}
	delta, deltaCost := total-m.lastTok, cost-m.lastCost
	m.lastTok, m.lastCost = total, cost
	role := m.role
	m.mu.Unlock()
	if delta > 0 {
		m.budget.Record(delta, role, deltaCost)
	}
}

func (m *tokenMeter) reset() {
	m.mu.Lock()
	m.role, m.lastTok, m.lastCost = "", 0, 0
	m.mu.Unlock()
}
