package config

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Optimization OptimizationConfig `mapstructure:"optimization"`
	Log          LogConfig          `mapstructure:"log"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Graph        GraphConfig        `mapstructure:"graph"`
	Report       ReportConfig       `mapstructure:"report"`
	Secrets      SecretsConfig      `mapstructure:"secrets"`
}

type OptimizationConfig struct {
	ConcatenateModules bool `mapstructure:"concatenate_modules"`
	Workers            int  `mapstructure:"workers"`
	// Record why possible inner modules that were not merged stayed alone.
	ExplainStandalone bool `mapstructure:"explain_standalone"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	OutputPath string `mapstructure:"output_path"`
}

// GraphConfig points at the Neo4j database optimized graphs are stored in.
// An empty URI disables persistence.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// SecretsConfig selects where "secret:<key>" references in other sections
// are resolved.
type SecretsConfig struct {
	Provider string `mapstructure:"provider"`
	Path     string `mapstructure:"path"`
}

type ReportConfig struct {
	Format string `mapstructure:"format"`
	Export string `mapstructure:"export"`
}

var (
	logLevels     = []string{"debug", "info", "warn", "error"}
	logFormats    = []string{"text", "json"}
	reportFormats = []string{"json", "text"}
	exportFormats = []string{"dot", "mermaid", "json"}
	secretSources = []string{"env", "file"}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Optimization: OptimizationConfig{
			ConcatenateModules: true,
			Workers:            runtime.GOMAXPROCS(0),
			ExplainStandalone:  true,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{ServiceName: "hoist", SampleRate: 1.0},
		Audit:   AuditConfig{OutputPath: "stderr"},
		Graph:   GraphConfig{Database: "neo4j"},
		Report:  ReportConfig{Format: "text"},
		Secrets: SecretsConfig{Provider: "env"},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Optimization.Workers < 0 {
		warnings = append(warnings, fmt.Sprintf("optimization workers %d is negative", c.Optimization.Workers))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside range [0.0, 1.0]", c.Tracing.SampleRate))
	}

	if c.Log.Level != "" && !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		warnings = append(warnings, fmt.Sprintf("unknown log level '%s'", c.Log.Level))
	}
	if c.Log.Format != "" && !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		warnings = append(warnings, fmt.Sprintf("unknown log format '%s'", c.Log.Format))
	}

	// Neo4j refuses anonymous connections unless auth is disabled server side
	if c.Graph.URI != "" && c.Graph.Username == "" {
		warnings = append(warnings, fmt.Sprintf("graph uri '%s' is configured but username is empty", c.Graph.URI))
	}

	if c.Report.Format != "" && !slices.Contains(reportFormats, c.Report.Format) {
		warnings = append(warnings, fmt.Sprintf("unknown report format '%s'", c.Report.Format))
	}
	if c.Report.Export != "" && !slices.Contains(exportFormats, c.Report.Export) {
		warnings = append(warnings, fmt.Sprintf("unknown export format '%s'", c.Report.Export))
	}

	if c.Secrets.Provider != "" && !slices.Contains(secretSources, c.Secrets.Provider) {
		warnings = append(warnings, fmt.Sprintf("unknown secrets provider '%s'", c.Secrets.Provider))
	}
	if c.Secrets.Provider == "file" && c.Secrets.Path == "" {
		warnings = append(warnings, "secrets provider 'file' needs a path")
	}

	return warnings
}

// Load reads configuration from file and environment. An empty path reads
// the defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HOIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("optimization.concatenate_modules", d.Optimization.ConcatenateModules)
	v.SetDefault("optimization.workers", d.Optimization.Workers)
	v.SetDefault("optimization.explain_standalone", d.Optimization.ExplainStandalone)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.output_path", d.Audit.OutputPath)
	v.SetDefault("graph.uri", d.Graph.URI)
	v.SetDefault("graph.username", d.Graph.Username)
	v.SetDefault("graph.password", d.Graph.Password)
	v.SetDefault("graph.database", d.Graph.Database)
	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("report.export", d.Report.Export)
	v.SetDefault("secrets.provider", d.Secrets.Provider)
	v.SetDefault("secrets.path", d.Secrets.Path)
}
