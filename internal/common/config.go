package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Node        NodeConfig      `toml:"node"`
	Server      ServerConfig    `toml:"server"`
	Data        DataConfig      `toml:"data"`
	Execution   ExecutionConfig `toml:"execution"`
	Policy      PolicyConfig    `toml:"policy"`
	Queue       QueueConfig     `toml:"queue"`
	Limits      LimitsConfig    `toml:"limits"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
}

// NodeConfig identifies this node to peers and in audit rows
type NodeConfig struct {
	NodeID          string `toml:"node_id"`          // Stable node identifier broadcast in discovery
	InstitutionName string `toml:"institution_name"` // Human-readable operator name
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// DataConfig locates the catalog data and the uploads area
type DataConfig struct {
	Root       string `toml:"root"`        // Root for all catalog file paths; paths outside are rejected
	Manifest   string `toml:"manifest"`    // Catalog manifest file (.json or .yaml)
	UploadsDir string `toml:"uploads_dir"` // Directory for uploaded script/data blobs
}

// ExecutionConfig controls the sandbox runner
type ExecutionConfig struct {
	WorkDir            string            `toml:"work_dir"`             // Parent of per-job workspaces
	Backend            string            `toml:"backend"`              // "docker", "subprocess", or "auto"
	MaxExecutionTime   time.Duration     `toml:"max_execution_time"`   // Hard wall-clock limit per job
	MaxMemoryMB        int               `toml:"max_memory_mb"`        // Container memory cap; advisory in subprocess mode
	MaxCPUCores        float64           `toml:"max_cpu_cores"`        // Container CPU cap; advisory in subprocess mode
	AllowedScriptKinds []string          `toml:"allowed_script_kinds"` // Kinds admission accepts ("python", "r", ...)
	Images             map[string]string `toml:"images"`               // Container image per script kind
	RetainWorkspaces   bool              `toml:"retain_workspaces"`    // Keep per-job dirs for post-mortem
	PruneSchedule      string            `toml:"prune_schedule"`       // Cron schedule for workspace pruning
	PruneAge           time.Duration     `toml:"prune_age"`            // Workspaces older than this are pruned
	GracefulStopWindow time.Duration     `toml:"graceful_stop_window"` // Window given to a cancelled runner before force kill
}

// PolicyConfig controls the release gate and static script inspection
type PolicyConfig struct {
	MinCohortSize   int     `toml:"min_cohort_size"`  // Node-wide release threshold (catalogs may override)
	ResultPrecision int     `toml:"result_precision"` // Decimal places for rounded floats in released results
	EnableNoise     bool    `toml:"enable_noise"`     // Add Laplace noise to numeric summaries
	NoiseEpsilon    float64 `toml:"noise_epsilon"`    // Noise scale is 1/epsilon
	MaxScriptBytes  int     `toml:"max_script_bytes"` // Scripts larger than this bump risk to medium
	MaxScriptLines  int     `toml:"max_script_lines"` // Scripts longer than this bump risk to medium
}

type QueueConfig struct {
	Capacity    int `toml:"capacity"`     // Bounded queue size; admission fails with Overloaded when full
	WorkerCount int `toml:"worker_count"` // Number of concurrent job workers
}

// LimitsConfig throttles the submission API
type LimitsConfig struct {
	SubmissionsPerMinute float64 `toml:"submissions_per_minute"` // Token-bucket refill rate for POST /jobs
	SubmissionBurst      int     `toml:"submission_burst"`       // Token-bucket burst for POST /jobs
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in custodia.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Node: NodeConfig{
			NodeID:          "custodia-node",
			InstitutionName: "Unnamed Institution",
		},
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Data: DataConfig{
			Root:       "./data",
			Manifest:   "./data/data_manifest.json",
			UploadsDir: "./data/uploads",
		},
		Execution: ExecutionConfig{
			WorkDir:          "./work",
			Backend:          "auto",
			MaxExecutionTime: 5 * time.Minute,
			MaxMemoryMB:      2048,
			MaxCPUCores:      2,
			AllowedScriptKinds: []string{
				"python",
				"r",
			},
			Images: map[string]string{
				"python":  "custodia/python-tabular:latest",
				"r":       "custodia/r-base:latest",
				"sql":     "postgres:16",
				"jupyter": "jupyter/scipy-notebook:latest",
			},
			RetainWorkspaces:   true,
			PruneSchedule:      "0 0 3 * * *", // Daily at 03:00
			PruneAge:           7 * 24 * time.Hour,
			GracefulStopWindow: 10 * time.Second,
		},
		Policy: PolicyConfig{
			MinCohortSize:   5,
			ResultPrecision: 3,
			EnableNoise:     false,
			NoiseEpsilon:    1.0,
			MaxScriptBytes:  256 * 1024,
			MaxScriptLines:  500,
		},
		Queue: QueueConfig{
			Capacity:    100,
			WorkerCount: 4,
		},
		Limits: LimitsConfig{
			SubmissionsPerMinute: 60,
			SubmissionBurst:      10,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CUSTODIA_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("CUSTODIA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CUSTODIA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if nodeID := os.Getenv("CUSTODIA_NODE_ID"); nodeID != "" {
		config.Node.NodeID = nodeID
	}
	if inst := os.Getenv("CUSTODIA_INSTITUTION_NAME"); inst != "" {
		config.Node.InstitutionName = inst
	}

	if root := os.Getenv("CUSTODIA_DATA_ROOT"); root != "" {
		config.Data.Root = root
	}
	if manifest := os.Getenv("CUSTODIA_DATA_MANIFEST"); manifest != "" {
		config.Data.Manifest = manifest
	}
	if workDir := os.Getenv("CUSTODIA_WORK_DIR"); workDir != "" {
		config.Execution.WorkDir = workDir
	}
	if backend := os.Getenv("CUSTODIA_EXECUTION_BACKEND"); backend != "" {
		config.Execution.Backend = backend
	}
	if maxExec := os.Getenv("CUSTODIA_MAX_EXECUTION_TIME"); maxExec != "" {
		if d, err := time.ParseDuration(maxExec); err == nil {
			config.Execution.MaxExecutionTime = d
		}
	}

	if cohort := os.Getenv("CUSTODIA_MIN_COHORT_SIZE"); cohort != "" {
		if n, err := strconv.Atoi(cohort); err == nil {
			config.Policy.MinCohortSize = n
		}
	}

	if level := os.Getenv("CUSTODIA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if dbPath := os.Getenv("CUSTODIA_BADGER_PATH"); dbPath != "" {
		config.Storage.Badger.Path = dbPath
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate performs basic sanity checks on the resolved configuration
func (c *Config) Validate() error {
	if c.Node.NodeID == "" {
		return fmt.Errorf("node.node_id is required")
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity)
	}
	if c.Queue.WorkerCount <= 0 {
		return fmt.Errorf("queue.worker_count must be positive, got %d", c.Queue.WorkerCount)
	}
	if c.Policy.MinCohortSize < 0 {
		return fmt.Errorf("policy.min_cohort_size cannot be negative, got %d", c.Policy.MinCohortSize)
	}
	if c.Policy.ResultPrecision < 0 {
		return fmt.Errorf("policy.result_precision cannot be negative, got %d", c.Policy.ResultPrecision)
	}
	switch c.Execution.Backend {
	case "auto", "docker", "subprocess":
	default:
		return fmt.Errorf("execution.backend must be auto, docker, or subprocess, got %q", c.Execution.Backend)
	}
	if len(c.Execution.AllowedScriptKinds) == 0 {
		return fmt.Errorf("execution.allowed_script_kinds cannot be empty")
	}
	return nil
}

// IsKindAllowed reports whether the given script kind is in the admission allow-list
func (c *Config) IsKindAllowed(kind string) bool {
	for _, k := range c.Execution.AllowedScriptKinds {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}
