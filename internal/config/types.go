package config

import (
	"time"

	"colloc-agent/internal/allocation"
)

// AgentConfig is the root of the YAML configuration file.
type AgentConfig struct {
	Agent      AgentSettings                      `yaml:"agent"`
	Database   DatabaseConfig                     `yaml:"database"`
	Allocation allocation.AllocationConfiguration `yaml:"allocation"`
	Static     *StaticAllocatorConfig             `yaml:"static,omitempty"`
}

type AgentSettings struct {
	// Reconciliation interval in seconds.
	Interval int    `yaml:"interval"`
	LogLevel string `yaml:"log_level"`

	// DryRun computes and logs changesets without writing them.
	DryRun bool `yaml:"dry_run"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// StaticAllocatorConfig describes the single allocation the static policy
// requests for every discovered workload. Nil fields are not requested.
type StaticAllocatorConfig struct {
	CPUQuota  *float64 `yaml:"cpu_quota,omitempty"`
	CPUShares *float64 `yaml:"cpu_shares,omitempty"`
	RDT       *RDTRule `yaml:"rdt,omitempty"`
}

type RDTRule struct {
	Name string `yaml:"name"`
	L3   string `yaml:"l3"`
	MB   string `yaml:"mb"`
}

func (c *AgentConfig) GetInterval() time.Duration {
	return time.Duration(c.Agent.Interval) * time.Second
}
