// Package config loads zen's configuration from a YAML file plus
// environment overrides via viper, the same loading idiom the teacher
// uses for its own session config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zenweave/zen/internal/model"
	"github.com/zenweave/zen/internal/routing"
)

// ClaudeConfig holds claude-code adapter authentication settings.
type ClaudeConfig struct {
	AuthMode     string `mapstructure:"auth_mode"` // "api" (default) or "oauth"
	AuthJSONPath string `mapstructure:"auth_json_path"`
}

// CodexConfig holds codex adapter authentication settings.
type CodexConfig struct {
	AuthJSONPath string `mapstructure:"auth_json_path"`
}

// ProjectConfig holds project-level settings.
type ProjectConfig struct {
	Name       string `mapstructure:"name"`
	Repository string `mapstructure:"repository"` // local path to the git repo zen operates on
}

// Config is zen's full configuration.
type Config struct {
	Project             ProjectConfig        `mapstructure:"project"`
	WorkerAgent         string               `mapstructure:"worker_agent"` // "claude-code" or "codex"
	Claude              ClaudeConfig         `mapstructure:"claude"`
	Codex               CodexConfig          `mapstructure:"codex"`
	Routing             routing.PhaseRouting `mapstructure:"routing"`
	UpdateDocs          bool                 `mapstructure:"update_docs"`
	MaxParallel         int                  `mapstructure:"max_parallel_agents"`
	StagingBranchPrefix string               `mapstructure:"staging_branch_prefix"`
	SkillTimeout        string               `mapstructure:"skill_timeout"`
	PollInterval        string               `mapstructure:"poll_interval"`
	StuckThreshold      string               `mapstructure:"stuck_threshold"`
	MaxRetries          int                  `mapstructure:"max_retries"`
	WorktreeDir         string               `mapstructure:"worktree_dir"`
}

// Load reads configuration from the file viper has already been
// pointed at (see internal/cli/root.go) plus any ZEN_-prefixed
// environment overrides, applying defaults for anything left unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	normalizeRoutingKeys(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// normalizeRoutingKeys lower-cases routing override keys so they match
// model.Phase's lowercase canonical phase names whatever case the
// config source used.
func normalizeRoutingKeys(cfg *Config) {
	if len(cfg.Routing.Overrides) == 0 {
		return
	}
	normalized := make(map[string]routing.ModelConfig, len(cfg.Routing.Overrides))
	for key, val := range cfg.Routing.Overrides {
		normalized[strings.ToLower(key)] = val
	}
	cfg.Routing.Overrides = normalized
}

func applyDefaults(cfg *Config) {
	defaults := model.DefaultConfig()

	if cfg.WorkerAgent == "" {
		cfg.WorkerAgent = defaults.WorkerAgent
	}
	if !viper.IsSet("update_docs") {
		cfg.UpdateDocs = defaults.UpdateDocs
	}
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = defaults.MaxParallelAgents
	}
	if cfg.StagingBranchPrefix == "" {
		cfg.StagingBranchPrefix = defaults.StagingBranchPrefix
	}
	if cfg.SkillTimeout == "" {
		cfg.SkillTimeout = defaults.SkillTimeout.String()
	}
	if cfg.PollInterval == "" {
		cfg.PollInterval = defaults.PollInterval.String()
	}
	if cfg.StuckThreshold == "" {
		cfg.StuckThreshold = defaults.StuckThreshold.String()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.Claude.AuthMode == "" {
		cfg.Claude.AuthMode = "api"
	}
	if cfg.Claude.AuthJSONPath == "" {
		cfg.Claude.AuthJSONPath = "~/.config/claude-code/auth.json"
	}
	if cfg.Codex.AuthJSONPath == "" {
		cfg.Codex.AuthJSONPath = "~/.codex/auth.json"
	}
	if cfg.WorktreeDir == "" {
		cfg.WorktreeDir = ".zen/worktrees"
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	validAgents := map[string]bool{"claude-code": true, "codex": true}
	if !validAgents[c.WorkerAgent] {
		return fmt.Errorf("config: invalid worker_agent %q (must be claude-code or codex)", c.WorkerAgent)
	}
	if c.Claude.AuthMode != "" {
		validModes := map[string]bool{"api": true, "oauth": true}
		if !validModes[c.Claude.AuthMode] {
			return fmt.Errorf("config: invalid claude.auth_mode %q (must be api or oauth)", c.Claude.AuthMode)
		}
	}
	for _, raw := range []string{c.SkillTimeout, c.PollInterval, c.StuckThreshold} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", raw, err)
		}
	}
	return nil
}

// ValidateForRun applies the additional checks required before
// actually launching a workflow (as opposed to e.g. `zen status`,
// which only needs a repository path).
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Project.Repository == "" {
		return fmt.Errorf("config: project.repository is required")
	}
	return nil
}

// ToWorkflowConfig converts the loaded configuration into the
// model.Config a workflow actually carries, parsing its duration
// strings (already validated by Validate).
func (c *Config) ToWorkflowConfig() model.Config {
	skillTimeout, _ := time.ParseDuration(c.SkillTimeout)
	pollInterval, _ := time.ParseDuration(c.PollInterval)
	stuckThreshold, _ := time.ParseDuration(c.StuckThreshold)
	return model.Config{
		UpdateDocs:          c.UpdateDocs,
		MaxParallelAgents:   c.MaxParallel,
		StagingBranchPrefix: c.StagingBranchPrefix,
		WorkerAgent:         c.WorkerAgent,
		SkillTimeout:        skillTimeout,
		PollInterval:        pollInterval,
		StuckThreshold:      stuckThreshold,
		MaxRetries:          c.MaxRetries,
	}
}

// Router builds a routing.Router over the configured phase routing
// table, so callers don't need to reach into cfg.Routing directly.
func (c *Config) Router() *routing.Router {
	return routing.NewRouter(&c.Routing)
}
