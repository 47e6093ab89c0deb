package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"colloc-agent/internal/allocation"
	"colloc-agent/internal/logging"
)

func LoadConfig(filepath string) (*AgentConfig, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	config := &AgentConfig{
		Allocation: allocation.DefaultAllocationConfiguration(),
	}
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, err
	}

	if config.Agent.Interval == 0 {
		config.Agent.Interval = 5
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func validateConfig(config *AgentConfig) error {
	if config.Agent.Interval < 1 {
		return fmt.Errorf("agent.interval must be at least 1 second")
	}
	if config.Agent.LogLevel != "" {
		if err := logging.SetLogLevel(config.Agent.LogLevel); err != nil {
			return fmt.Errorf("invalid log level %q: %w", config.Agent.LogLevel, err)
		}
	}

	ac := config.Allocation
	if ac.CPUQuotaPeriod <= 0 {
		return fmt.Errorf("allocation.cpu_quota_period must be positive")
	}
	if ac.CPUSharesMin < 0 || ac.CPUSharesMax <= ac.CPUSharesMin {
		return fmt.Errorf("allocation.cpu_shares_min/max must satisfy 0 <= min < max")
	}
	if _, err := allocation.ParseSchemataRow(ac.DefaultRDTL3); err != nil {
		return fmt.Errorf("allocation.default_rdt_l3: %w", err)
	}
	if _, err := allocation.ParseSchemataRow(ac.DefaultRDTMB); err != nil {
		return fmt.Errorf("allocation.default_rdt_mb: %w", err)
	}

	if static := config.Static; static != nil {
		if static.CPUQuota != nil && (*static.CPUQuota < 0 || *static.CPUQuota > 1) {
			return fmt.Errorf("static.cpu_quota must be within [0, 1]")
		}
		if static.CPUShares != nil && (*static.CPUShares < 0 || *static.CPUShares > 1) {
			return fmt.Errorf("static.cpu_shares must be within [0, 1]")
		}
		if static.RDT != nil {
			if _, err := allocation.ParseSchemataRow(static.RDT.L3); err != nil {
				return fmt.Errorf("static.rdt.l3: %w", err)
			}
			if _, err := allocation.ParseSchemataRow(static.RDT.MB); err != nil {
				return fmt.Errorf("static.rdt.mb: %w", err)
			}
		}
	}

	if config.Database.Enabled {
		if config.Database.Host == "" || config.Database.Org == "" || config.Database.Bucket == "" {
			return fmt.Errorf("database.host, database.org and database.bucket are required when the database is enabled")
		}
	}

	return nil
}
