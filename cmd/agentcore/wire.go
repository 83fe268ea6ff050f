package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/agentcore/nexus/internal/agent"
	agentctx "github.com/agentcore/nexus/internal/agent/context"
	"github.com/agentcore/nexus/internal/agent/providers"
	"github.com/agentcore/nexus/internal/agent/routing"
	"github.com/agentcore/nexus/internal/config"
	"github.com/agentcore/nexus/internal/jobs"
	"github.com/agentcore/nexus/internal/mcp"
	"github.com/agentcore/nexus/internal/security"
	"github.com/agentcore/nexus/internal/store"
)

// conversationStack bundles everything a single conversation needs: the
// driver owns the step loop, es is kept around so callers can Close it,
// and mcpManager (nil unless MCP is enabled) is stopped on Close.
type conversationStack struct {
	driver     *agent.Driver
	es         store.EventStore
	mcpManager *mcp.Manager
}

// Close releases the conversation's event store and, if one was started,
// disconnects its MCP servers.
func (s *conversationStack) Close() error {
	if s.mcpManager != nil {
		s.mcpManager.Stop()
	}
	return s.es.Close()
}

// loadRuntimeConfig reads configPath if it names a file that exists, and
// otherwise falls back to a bare LLM config built from environment
// variables — agentcore is usable with no config file for quick sessions.
func loadRuntimeConfig(configPath string) (*config.Config, error) {
	if strings.TrimSpace(configPath) != "" {
		if _, err := os.Stat(configPath); err == nil {
			return config.Load(configPath)
		}
	}
	return defaultConfigFromEnv(), nil
}

func defaultConfigFromEnv() *config.Config {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			Providers: map[string]config.LLMProviderConfig{},
		},
	}

	if key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		cfg.LLM.Providers["anthropic"] = config.LLMProviderConfig{
			APIKey:       key,
			DefaultModel: envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		}
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		cfg.LLM.Providers["openai"] = config.LLMProviderConfig{
			APIKey:       key,
			DefaultModel: envOr("OPENAI_MODEL", "gpt-4o"),
		}
		if cfg.LLM.DefaultProvider == "" {
			cfg.LLM.DefaultProvider = "openai"
		} else {
			cfg.LLM.FallbackChain = append(cfg.LLM.FallbackChain, "openai")
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// buildProviders constructs one agent.LLMProvider per configured LLM
// provider entry.
func buildProviders(cfg *config.Config) (map[string]agent.LLMProvider, error) {
	out := make(map[string]agent.LLMProvider, len(cfg.LLM.Providers))
	for name, pc := range cfg.LLM.Providers {
		switch name {
		case "anthropic":
			p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
				APIKey:       pc.APIKey,
				BaseURL:      pc.BaseURL,
				DefaultModel: pc.DefaultModel,
			})
			if err != nil {
				return nil, fmt.Errorf("anthropic provider: %w", err)
			}
			out[name] = p
		case "openai":
			p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
				APIKey:       pc.APIKey,
				BaseURL:      pc.BaseURL,
				DefaultModel: pc.DefaultModel,
			})
			if err != nil {
				return nil, fmt.Errorf("openai provider: %w", err)
			}
			out[name] = p
		default:
			return nil, fmt.Errorf("unknown LLM provider %q (supported: anthropic, openai)", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no LLM providers configured: set ANTHROPIC_API_KEY or OPENAI_API_KEY, or pass --config")
	}
	return out, nil
}

// buildActor picks a single provider directly when only one is
// configured, and falls back to routing.Router (rule- and
// fallback-chain-based selection) once there is more than one candidate.
func buildActor(cfg *config.Config, provs map[string]agent.LLMProvider) (agent.Actor, string, error) {
	defaultProvider := cfg.LLM.DefaultProvider
	if defaultProvider == "" {
		for name := range provs {
			defaultProvider = name
			break
		}
	}
	if _, ok := provs[defaultProvider]; !ok {
		return nil, "", fmt.Errorf("default provider %q is not configured", defaultProvider)
	}

	if len(provs) == 1 {
		return provs[defaultProvider], defaultModelFor(cfg, defaultProvider), nil
	}

	fallback := routing.Target{}
	if len(cfg.LLM.FallbackChain) > 0 {
		fallback.Provider = cfg.LLM.FallbackChain[0]
	}

	router := routing.NewRouter(routing.Config{
		DefaultProvider: defaultProvider,
		Fallback:        fallback,
		FailureCooldown: cfg.LLM.Routing.UnhealthyCooldown,
	}, provs)
	return router, defaultModelFor(cfg, defaultProvider), nil
}

func defaultModelFor(cfg *config.Config, provider string) string {
	if pc, ok := cfg.LLM.Providers[provider]; ok && pc.DefaultModel != "" {
		return pc.DefaultModel
	}
	return ""
}

// openStore opens a sqlite-backed store at path, or an in-memory store
// when path is empty.
func openStore(path string) (store.EventStore, error) {
	if strings.TrimSpace(path) == "" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenSQLiteStore(path)
}

// toolExecutionRuntimeOptions converts the configured tool execution
// limits into a RuntimeOptions value. Zero fields are filled in from
// DefaultRuntimeOptions by NewDriver.
func toolExecutionRuntimeOptions(cfg config.ToolExecutionConfig) agent.RuntimeOptions {
	return agent.RuntimeOptions{
		MaxIterations:     cfg.MaxIterations,
		ToolParallelism:   cfg.Parallelism,
		ToolTimeout:       cfg.Timeout,
		ToolMaxAttempts:   cfg.MaxAttempts,
		ToolRetryBackoff:  cfg.RetryBackoff,
		DisableToolEvents: cfg.DisableEvents,
		MaxToolCalls:      cfg.MaxToolCalls,
		RequireApproval:   cfg.RequireApproval,
		AsyncTools:        cfg.Async,
	}
}

// approvalPolicyFromConfig builds an agent.ApprovalPolicy from the
// configured approval and elevated-tool settings. *bool fields default to
// DefaultApprovalPolicy's values when unset in config.
func approvalPolicyFromConfig(approval config.ApprovalConfig, elevated config.ElevatedConfig) *agent.ApprovalPolicy {
	policy := agent.DefaultApprovalPolicy()
	if len(approval.Allowlist) > 0 {
		policy.Allowlist = approval.Allowlist
	}
	if len(approval.Denylist) > 0 {
		policy.Denylist = approval.Denylist
	}
	if len(approval.SafeBins) > 0 {
		policy.SafeBins = approval.SafeBins
	}
	if approval.SkillAllowlist != nil {
		policy.SkillAllowlist = *approval.SkillAllowlist
	}
	if approval.AskFallback != nil {
		policy.AskFallback = *approval.AskFallback
	}
	if decision := strings.TrimSpace(approval.DefaultDecision); decision != "" {
		policy.DefaultDecision = agent.ApprovalDecision(decision)
	}
	if approval.RequestTTL > 0 {
		policy.RequestTTL = approval.RequestTTL
	}
	if elevated.Enabled != nil && *elevated.Enabled {
		policy.Allowlist = append(append([]string(nil), policy.Allowlist...), elevated.Tools...)
	}
	return policy
}

// startMCP connects to every auto_start MCP server and registers their
// tools, resources, and prompts into registry. Returns the manager (nil
// if MCP is disabled) so the caller can stop it on conversation close.
func startMCP(cfg mcp.Config, registry *agent.ToolRegistry, logger *slog.Logger) *mcp.Manager {
	if !cfg.Enabled {
		return nil
	}
	mgr := mcp.NewManager(&cfg, logger)
	if err := mgr.Start(context.Background()); err != nil {
		logger.Warn("mcp: one or more servers failed to start", "error", err)
	}
	mcp.RegisterTools(registry, mgr)
	return mgr
}

// buildConversation wires an Agent and Driver around a shared
// ToolRegistry — the registry that produces a step's tool specs must be
// the same one the Driver executes calls against — and an EventStore
// rooted at storePath.
func buildConversation(cfg *config.Config, conversationID, storePath, workdir string, confirm bool, maxIter int) (*conversationStack, error) {
	provs, err := buildProviders(cfg)
	if err != nil {
		return nil, err
	}
	actor, model, err := buildActor(cfg, provs)
	if err != nil {
		return nil, err
	}

	registry := agent.NewToolRegistry()
	registry.Register(agent.FinishTool{})

	mcpManager := startMCP(cfg.MCP, registry, slog.Default())

	agentCfg := agent.DefaultAgentConfig()
	agentCfg.Model = model
	agentCfg.RiskClassifier = security.NewHeuristicClassifier("bash", "shell", "execute_command")
	agentCfg.Packer = agentctx.NewPacker(agentctx.DefaultPackOptions())
	agentCfg.PruneSettings = config.EffectiveContextPruningSettings(cfg.ContextPruning)
	ag := agent.NewAgent(actor, registry, agentCfg)

	es, err := openStore(storePath)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}

	runtime := toolExecutionRuntimeOptions(cfg.Tools.Execution)
	if maxIter > 0 {
		runtime.MaxIterations = maxIter
	}
	if len(cfg.Tools.Elevated.Tools) > 0 {
		runtime.ElevatedTools = cfg.Tools.Elevated.Tools
	}

	checker := agent.NewApprovalChecker(approvalPolicyFromConfig(cfg.Tools.Execution.Approval, cfg.Tools.Elevated))
	runtime.ApprovalChecker = checker

	if len(runtime.AsyncTools) > 0 {
		jobStore := jobs.NewMemoryStore()
		runtime.JobStore = jobStore
		go pruneExpiredJobs(jobStore, cfg.Tools.Jobs)
	}

	driverOpts := agent.DefaultDriverOptions()
	driverOpts.ConfirmationMode = confirm
	driverOpts.SystemPrompt = agentctx.SystemPromptOptions{
		WorkingDirectory: workdir,
		CLIMode:          true,
	}

	driver := agent.NewDriver(conversationID, es, ag, registry, runtime, driverOpts, agent.NopSink{})
	return &conversationStack{driver: driver, es: es, mcpManager: mcpManager}, nil
}

// pruneExpiredJobs periodically removes job records older than the
// configured retention window. Runs until the process exits.
func pruneExpiredJobs(jobStore jobs.Store, cfg config.ToolJobsConfig) {
	interval := cfg.PruneInterval
	if interval <= 0 {
		interval = time.Hour
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		jobStore.Prune(context.Background(), retention)
	}
}
