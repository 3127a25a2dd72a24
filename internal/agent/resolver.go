package agent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/agentgate/internal/bootstrap"
	"github.com/nextlevelbuilder/agentgate/internal/bus"
	"github.com/nextlevelbuilder/agentgate/internal/config"
	"github.com/nextlevelbuilder/agentgate/internal/providers"
	"github.com/nextlevelbuilder/agentgate/internal/skills"
	"github.com/nextlevelbuilder/agentgate/internal/store"
	"github.com/nextlevelbuilder/agentgate/internal/tools"
	"github.com/nextlevelbuilder/agentgate/internal/tracing"
)

// ResolverDeps holds the shared dependencies every agent built by
// NewConfigResolver is wired with. Per-agent fields (provider, model,
// workspace, tool policy, skill allowlist) come from config.json instead.
type ResolverDeps struct {
	Config      *config.Config
	ProviderReg *providers.Registry
	Bus         bus.EventPublisher
	Sessions    store.SessionStore
	Tools       *tools.Registry
	ToolPolicy  *tools.PolicyEngine
	Skills      *skills.Loader
	HasMemory   bool
	OnEvent     func(AgentEvent)

	TraceCollector *tracing.Collector

	InjectionAction string
	MaxMessageChars int
}

// NewConfigResolver creates a ResolverFunc that builds a Loop from an
// agent's entry in config.json (config.Agents.List), falling back to
// config.Agents.Defaults for anything not overridden. This is the
// standalone-mode counterpart of a DB-backed agent store: every agent this
// process can run is declared in config.json up front.
func NewConfigResolver(deps ResolverDeps) ResolverFunc {
	return func(agentKey string) (Agent, error) {
		cfg := deps.Config
		ad := cfg.ResolveAgent(agentKey)
		spec, hasSpec := cfg.Agents.List[agentKey]
		if !hasSpec && agentKey != config.DefaultAgentID {
			return nil, fmt.Errorf("agent not configured: %s", agentKey)
		}

		provider, err := deps.ProviderReg.Get(ad.Provider)
		if err != nil {
			names := deps.ProviderReg.List()
			if len(names) == 0 {
				return nil, fmt.Errorf("no providers configured for agent %s", agentKey)
			}
			provider, _ = deps.ProviderReg.Get(names[0])
			slog.Warn("agent provider not found, using fallback",
				"agent", agentKey, "wanted", ad.Provider, "using", names[0])
		}
		if provider == nil {
			return nil, fmt.Errorf("no provider available for agent %s", agentKey)
		}

		workspace := ad.Workspace
		if workspace != "" {
			workspace = config.ExpandHome(workspace)
			if !filepath.IsAbs(workspace) {
				workspace, _ = filepath.Abs(workspace)
			}
			if err := os.MkdirAll(workspace, 0755); err != nil {
				slog.Warn("failed to create agent workspace directory",
					"workspace", workspace, "agent", agentKey, "error", err)
			}
		}

		if _, err := bootstrap.EnsureWorkspaceFiles(workspace); err != nil {
			slog.Warn("failed to seed workspace bootstrap files", "agent", agentKey, "error", err)
		}
		rawFiles := bootstrap.LoadWorkspaceFiles(workspace)
		truncCfg := bootstrap.TruncateConfig{
			MaxCharsPerFile: ad.BootstrapMaxChars,
			TotalMaxChars:   ad.BootstrapTotalMaxChars,
		}
		contextFiles := bootstrap.BuildContextFiles(rawFiles, truncCfg)

		var skillAllowList []string
		var agentToolPolicy *config.ToolPolicySpec
		if hasSpec {
			skillAllowList = spec.Skills
			agentToolPolicy = spec.Tools
		}

		sandboxEnabled := false
		sandboxWorkspaceAccess := "rw"
		if ad.Sandbox != nil {
			sandboxEnabled = ad.Sandbox.Mode != "" && ad.Sandbox.Mode != "off"
			if ad.Sandbox.WorkspaceAccess != "" {
				sandboxWorkspaceAccess = ad.Sandbox.WorkspaceAccess
			}
		}

		hasMemory := deps.HasMemory
		if ad.Memory != nil && ad.Memory.Enabled != nil && !*ad.Memory.Enabled {
			hasMemory = false
		}

		loop := NewLoop(LoopConfig{
			ID:                agentKey,
			Provider:          provider,
			Model:             ad.Model,
			ContextWindow:     ad.ContextWindow,
			MaxIterations:     ad.MaxToolIterations,
			Workspace:         workspace,
			Bus:               deps.Bus,
			Sessions:          deps.Sessions,
			Tools:             deps.Tools,
			ToolPolicy:        deps.ToolPolicy,
			AgentToolPolicy:   agentToolPolicy,
			SkillsLoader:      deps.Skills,
			SkillAllowList:    skillAllowList,
			HasMemory:         hasMemory,
			ContextFiles:      contextFiles,
			OnEvent:           deps.OnEvent,
			CompactionCfg:     ad.Compaction,
			ContextPruningCfg: ad.ContextPruning,
			SandboxEnabled:         sandboxEnabled,
			SandboxContainerDir:    "/workspace",
			SandboxWorkspaceAccess: sandboxWorkspaceAccess,
			TraceCollector:    deps.TraceCollector,
			InjectionAction:   deps.InjectionAction,
			MaxMessageChars:   deps.MaxMessageChars,
		})

		slog.Info("resolved agent from config", "agent", agentKey, "model", ad.Model, "provider", ad.Provider)
		return loop, nil
	}
}
