package config

import (
	"testing"

	"github.com/zenweave/zen/internal/routing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid minimal config",
			config: Config{WorkerAgent: "claude-code"},
		},
		{
			name:    "missing worker agent",
			config:  Config{},
			wantErr: true,
		},
		{
			name:    "unknown worker agent",
			config:  Config{WorkerAgent: "aider"},
			wantErr: true,
		},
		{
			name:    "bad auth mode",
			config:  Config{WorkerAgent: "claude-code", Claude: ClaudeConfig{AuthMode: "telepathy"}},
			wantErr: true,
		},
		{
			name:    "bad duration",
			config:  Config{WorkerAgent: "codex", SkillTimeout: "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateForRunRequiresRepository(t *testing.T) {
	cfg := Config{WorkerAgent: "claude-code"}
	if err := cfg.ValidateForRun(); err == nil {
		t.Fatal("expected error for missing project.repository")
	}

	cfg.Project.Repository = "/tmp/repo"
	if err := cfg.ValidateForRun(); err != nil {
		t.Fatalf("ValidateForRun() = %v, want nil", err)
	}
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.WorkerAgent == "" {
		t.Error("expected default worker agent")
	}
	if cfg.MaxParallel == 0 {
		t.Error("expected default max parallel agents")
	}
	if cfg.SkillTimeout == "" || cfg.PollInterval == "" || cfg.StuckThreshold == "" {
		t.Error("expected default durations to be populated as parseable strings")
	}
	if cfg.Claude.AuthMode != "api" {
		t.Errorf("Claude.AuthMode = %q, want api", cfg.Claude.AuthMode)
	}
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{WorkerAgent: "codex", MaxParallel: 8}
	applyDefaults(cfg)

	if cfg.WorkerAgent != "codex" {
		t.Errorf("WorkerAgent = %q, want codex (should not be overwritten)", cfg.WorkerAgent)
	}
	if cfg.MaxParallel != 8 {
		t.Errorf("MaxParallel = %d, want 8", cfg.MaxParallel)
	}
}

func TestNormalizeRoutingKeysLowercases(t *testing.T) {
	cfg := &Config{
		Routing: routing.PhaseRouting{
			Overrides: map[string]routing.ModelConfig{
				"Implementation": {Adapter: "codex", Model: "gpt-5-codex"},
			},
		},
	}
	normalizeRoutingKeys(cfg)

	if _, ok := cfg.Routing.Overrides["implementation"]; !ok {
		t.Error("expected override key to be lowercased")
	}
}

func TestToWorkflowConfigParsesDurations(t *testing.T) {
	cfg := &Config{
		WorkerAgent:         "claude-code",
		MaxParallel:         5,
		StagingBranchPrefix: "zen/staging/",
		SkillTimeout:        "10m",
		PollInterval:        "100ms",
		StuckThreshold:      "2m",
		MaxRetries:          3,
	}

	wc := cfg.ToWorkflowConfig()
	if wc.MaxParallelAgents != 5 || wc.MaxRetries != 3 {
		t.Errorf("unexpected workflow config: %+v", wc)
	}
	if wc.SkillTimeout.String() != "10m0s" {
		t.Errorf("SkillTimeout = %v, want 10m0s", wc.SkillTimeout)
	}
}

func TestRouterUsesConfiguredOverrides(t *testing.T) {
	cfg := &Config{
		Routing: routing.PhaseRouting{
			Default: routing.ModelConfig{Adapter: "claude-code", Model: "opus"},
			Overrides: map[string]routing.ModelConfig{
				"implementation": {Adapter: "codex", Model: "gpt-5-codex"},
			},
		},
	}

	r := cfg.Router()
	if mc := r.ModelForPhase("implementation"); mc.Adapter != "codex" {
		t.Errorf("expected implementation override, got %+v", mc)
	}
	if mc := r.ModelForPhase("planning"); mc.Adapter != "claude-code" {
		t.Errorf("expected default for planning, got %+v", mc)
	}
}
