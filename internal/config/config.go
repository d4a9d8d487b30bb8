package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// DefaultFileName is the configuration file searched up the directory tree
const DefaultFileName = "taskstream.json"

// Config represents the taskstream.json configuration file
type Config struct {
	Version     string `json:"version"`
	API         API    `json:"api"`
	Stream      Stream `json:"stream"`
	Poll        Poll   `json:"poll"`
	EventLogDir string `json:"event_log_dir,omitempty"`
}

// API configures the task/orchestration service client
type API struct {
	BaseURL         string `json:"base_url"`
	RequestTimeoutS int    `json:"request_timeout_s"`
}

// Stream configures the push channel
type Stream struct {
	Endpoint          string `json:"endpoint"`
	ExecutionTargetID string `json:"execution_target_id"`
	SummaryFormat     string `json:"summary_format"`
}

// Poll configures the reconciliation loop schedule
type Poll struct {
	IntervalMs    int `json:"interval_ms"`
	MaxIterations int `json:"max_iterations"`
}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version: "1.0",
		API: API{
			BaseURL:         "http://localhost:8080/api",
			RequestTimeoutS: 30,
		},
		Stream: Stream{
			Endpoint:          "http://localhost:8080/api/stream",
			ExecutionTargetID: "default",
			SummaryFormat:     protocol.SummaryFormatBrief,
		},
		Poll: Poll{
			IntervalMs:    2000,
			MaxIterations: 150,
		},
		EventLogDir: "events",
	}
}

// Validate checks the configuration for errors and returns user-friendly
// error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("configuration error: missing 'api.base_url'\n\nHint: Point it at the pipeline API:\n  \"api\": {\"base_url\": \"http://localhost:8080/api\"}")
	}

	if c.Stream.Endpoint == "" {
		return fmt.Errorf("configuration error: missing 'stream.endpoint'\n\nHint: Point it at the pipeline stream endpoint:\n  \"stream\": {\"endpoint\": \"http://localhost:8080/api/stream\"}")
	}

	switch c.Stream.SummaryFormat {
	case protocol.SummaryFormatBrief, protocol.SummaryFormatDetailed, protocol.SummaryFormatTechnical:
	default:
		return fmt.Errorf("configuration error: invalid 'stream.summary_format' value: %q\n\nHint: Use one of \"brief\", \"detailed\", \"technical\"", c.Stream.SummaryFormat)
	}

	if c.Poll.IntervalMs <= 0 {
		return fmt.Errorf("configuration error: 'poll.interval_ms' must be positive, got %d", c.Poll.IntervalMs)
	}

	if c.Poll.MaxIterations <= 0 {
		return fmt.Errorf("configuration error: 'poll.max_iterations' must be positive, got %d", c.Poll.MaxIterations)
	}

	return nil
}

// LoadFromFile loads a configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration to a JSON file with 0600 permissions
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// Find searches for the config file starting at startDir and walking up the
// directory tree. Returns the path, or "" when no file is found.
func Find(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, DefaultFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
