// Package config loads the engine's configuration from environment
// variables. Unlike the interactive tools this codebase is descended
// from, the supervisor has no onboarding wizard and no config file —
// it is meant to run headless under a process manager, so every knob
// is a typed env var with a documented default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the orchestration engine.
type Config struct {
	Forge     ForgeConfig
	Agent     AgentConfig
	Workspace WorkspaceConfig
	Store     StoreConfig
	Dashboard DashboardConfig
}

// ForgeConfig holds forge/source-control authentication and targeting.
type ForgeConfig struct {
	ClaudeOAuthToken string
	ForgeToken       string
	GithubRepo       string // owner/repo
	BaseBranch       string
	TargetRepoPath   string
	IssueLabel       string
	TriggerMention   string
}

// AgentConfig controls dispatch, timeouts, and retry ceilings.
type AgentConfig struct {
	PollIntervalSeconds    int
	MaxIssueRetries        int
	MaxConcurrentAgents    int
	AgentMaxTurnsImplement int // reserved for prompt builders, never passed to the assistant
	AgentMaxTurnsFix       int // reserved for prompt builders, never passed to the assistant
	AgentTimeoutSeconds    int
	PRPollIntervalSeconds  int
	MaxPRFixRetries        int
	CIWaitTimeoutSeconds   int
	RateLimitRetryInterval int
	MaxRateLimitResumes    int
	SkillsEnabled          bool
}

// WorkspaceConfig controls where scratch checkouts live.
type WorkspaceConfig struct {
	WorktreeDir string
}

// StoreConfig controls the embedded database location.
type StoreConfig struct {
	DBPath string
}

// DashboardConfig controls the read-only HTTP surface.
type DashboardConfig struct {
	Port int
	// MetricsLogCron is a standard 5-field cron expression controlling
	// how often the dashboard logs an aggregate metrics snapshot.
	// Empty disables the snapshot log entirely.
	MetricsLogCron string
}

// Load reads all configuration from the environment, applying the
// documented defaults for anything left unset.
func Load() (*Config, error) {
	cfg := &Config{
		Forge: ForgeConfig{
			ClaudeOAuthToken: os.Getenv("ClaudeOAuthToken"),
			ForgeToken:       os.Getenv("ForgeToken"),
			GithubRepo:       os.Getenv("GithubRepo"),
			BaseBranch:       envString("BaseBranch", "main"),
			TargetRepoPath:   os.Getenv("TargetRepoPath"),
			IssueLabel:       envString("IssueLabel", "agent"),
			TriggerMention:   envString("TriggerMention", "@claude-swarm"),
		},
		Agent: AgentConfig{
			PollIntervalSeconds:    envInt("PollIntervalSeconds", 300),
			MaxIssueRetries:        envInt("MaxIssueRetries", 3),
			MaxConcurrentAgents:    envInt("MaxConcurrentAgents", 3),
			AgentMaxTurnsImplement: envInt("AgentMaxTurnsImplement", 30),
			AgentMaxTurnsFix:       envInt("AgentMaxTurnsFix", 20),
			AgentTimeoutSeconds:    envInt("AgentTimeoutSeconds", 1800),
			PRPollIntervalSeconds:  envInt("PRPollIntervalSeconds", 120),
			MaxPRFixRetries:        envInt("MaxPRFixRetries", 5),
			CIWaitTimeoutSeconds:   envInt("CIWaitTimeoutSeconds", 600),
			RateLimitRetryInterval: envInt("RateLimitRetryInterval", 300),
			MaxRateLimitResumes:    envInt("MaxRateLimitResumes", 5),
			SkillsEnabled:          envBool("SkillsEnabled", false),
		},
		Workspace: WorkspaceConfig{
			WorktreeDir: os.Getenv("WorktreeDir"),
		},
		Store: StoreConfig{
			DBPath: os.Getenv("DBPath"),
		},
		Dashboard: DashboardConfig{
			Port:           envInt("DashboardPort", 8420),
			MetricsLogCron: envString("DashboardMetricsLogCron", "0 * * * *"),
		},
	}

	if cfg.Workspace.WorktreeDir == "" {
		cfg.Workspace.WorktreeDir = "./worktrees"
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = "./swarm.db"
	}

	return cfg, nil
}

// Validate checks the presence of required tokens, repo configuration,
// and the assistant/forge CLIs on PATH. Fatal on the caller's behalf —
// callers should exit non-zero when this returns an error.
func (c *Config) Validate() error {
	var missing []string
	if c.Forge.ClaudeOAuthToken == "" {
		missing = append(missing, "ClaudeOAuthToken")
	}
	if c.Forge.ForgeToken == "" {
		missing = append(missing, "ForgeToken")
	}
	if c.Forge.GithubRepo == "" {
		missing = append(missing, "GithubRepo")
	} else if !strings.Contains(c.Forge.GithubRepo, "/") {
		return fmt.Errorf("GithubRepo must be in owner/repo form, got %q", c.Forge.GithubRepo)
	}
	if c.Forge.TargetRepoPath == "" {
		missing = append(missing, "TargetRepoPath")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	for _, bin := range []string{"claude", "gh", "git"} {
		if _, err := lookPath(bin); err != nil {
			return fmt.Errorf("required CLI %q not found on PATH: %w", bin, err)
		}
	}
	return nil
}

// PollInterval returns the issue-intake poll interval as a duration.
func (c *AgentConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PRPollInterval returns the PR-reviewer poll interval as a duration.
func (c *AgentConfig) PRPollInterval() time.Duration {
	return time.Duration(c.PRPollIntervalSeconds) * time.Second
}

// RateLimitInterval returns the rate-limit watcher poll interval.
func (c *AgentConfig) RateLimitInterval() time.Duration {
	return time.Duration(c.RateLimitRetryInterval) * time.Second
}

// Timeout returns the per-worker wall-clock timeout.
func (c *AgentConfig) Timeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
