package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mercator-hq/guardrails/pkg/guardrails"

	"gopkg.in/yaml.v3"
)

// MaxFileSize bounds pipeline files read by LoadFile.
const MaxFileSize = 1 << 20

// LoadError is a file system or syntax problem with a pipeline source.
type LoadError struct {
	// FilePath is empty for in-memory sources.
	FilePath string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	where := "pipeline config"
	if e.FilePath != "" {
		where = fmt.Sprintf("pipeline file %q", e.FilePath)
	}
	if e.Cause != nil {
		return fmt.Sprintf("failed to load %s: %s: %v", where, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load %s: %s", where, e.Message)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Load parses and validates a pipeline config. src may be a *Config, a
// Config, a map[string]any, JSON bytes or a JSON string.
//
// Version fields and guardrail names are checked against registry. Every
// problem is collected into a single *guardrails.ConfigurationError so a
// misconfigured file is reported in one pass.
func Load(registry *Registry, src any) (*Config, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}

	var (
		cfg    *Config
		cfgErr = guardrails.NewConfigurationError()
		err    error
	)

	switch v := src.(type) {
	case *Config:
		if v == nil {
			return nil, &LoadError{Message: "config is nil"}
		}
		cfg = v
	case Config:
		cfg = &v
	case map[string]any:
		cfg, err = fromMap(v, cfgErr)
	case []byte:
		cfg, err = parse(v, formatJSON, cfgErr)
	case string:
		cfg, err = parse([]byte(v), formatJSON, cfgErr)
	default:
		return nil, &LoadError{Message: fmt.Sprintf("unsupported source type %T", src)}
	}
	if err != nil {
		return nil, err
	}

	validate(cfg, registry, cfgErr)
	if cfgErr.HasProblems() {
		return nil, cfgErr
	}
	return cfg, nil
}

// LoadFile reads a .json, .yaml or .yml pipeline file and validates it like Load.
func LoadFile(registry *Registry, path string) (*Config, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}

	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		}
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}
	if info.Size() > MaxFileSize {
		return nil, &LoadError{
			FilePath: path,
			Message:  fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), MaxFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}

	cfgErr := guardrails.NewConfigurationError()
	cfg, err := parse(data, format, cfgErr)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.FilePath = path
		}
		return nil, err
	}

	validate(cfg, registry, cfgErr)
	if cfgErr.HasProblems() {
		return nil, cfgErr
	}
	return cfg, nil
}

type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatFor(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return 0, &LoadError{FilePath: path, Message: "unsupported file extension (want .json, .yaml or .yml)"}
}

// parse decodes data into a generic map first so unknown stage keys can be
// reported, then converts it to a Config.
func parse(data []byte, f format, cfgErr *guardrails.ConfigurationError) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &LoadError{Message: "empty config"}
	}

	var raw map[string]any
	switch f {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &LoadError{Message: "invalid YAML", Cause: err}
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &LoadError{Message: "invalid JSON", Cause: err}
		}
	}
	if raw == nil {
		return nil, &LoadError{Message: "config must be an object"}
	}

	return fromMap(raw, cfgErr)
}

var knownKeys = []string{"version", "pre_flight", "input", "output"}

// fromMap decodes each stage on its own so that one malformed stage is
// reported as a problem alongside the rest. A version that is not a number
// fails the whole document.
func fromMap(raw map[string]any, cfgErr *guardrails.ConfigurationError) (*Config, error) {
	var cfg Config
	for _, key := range sortedKeys(raw) {
		if !slices.Contains(knownKeys, key) {
			cfgErr.Problems = append(cfgErr.Problems, fmt.Sprintf("unknown stage %q", key))
			continue
		}

		data, err := json.Marshal(raw[key])
		if err != nil {
			return nil, &LoadError{Message: key + " is not serializable", Cause: err}
		}

		if key == "version" {
			if err := json.Unmarshal(data, &cfg.Version); err != nil {
				return nil, &LoadError{Message: "malformed config version", Cause: err}
			}
			continue
		}

		var sc *StageConfig
		if err := json.Unmarshal(data, &sc); err != nil {
			cfgErr.Problems = append(cfgErr.Problems, fmt.Sprintf("%s: malformed stage: %v", key, err))
			continue
		}
		cfg.setStage(guardrails.Stage(key), sc)
	}
	return &cfg, nil
}

// validate records version, name and structure problems in cfgErr.
func validate(cfg *Config, registry *Registry, cfgErr *guardrails.ConfigurationError) {
	if cfg.Version != SupportedVersion {
		cfgErr.UnsupportedVersions = append(cfgErr.UnsupportedVersions, fmt.Sprintf("pipeline version %d", cfg.Version))
	}

	for _, stage := range Stages {
		sc := cfg.Stage(stage)
		if sc == nil {
			continue
		}
		if sc.Version != SupportedVersion {
			cfgErr.UnsupportedVersions = append(cfgErr.UnsupportedVersions, fmt.Sprintf("%s version %d", stage, sc.Version))
		}

		seen := make(map[string]struct{}, len(sc.Guardrails))
		for i, entry := range sc.Guardrails {
			if entry.Name == "" {
				cfgErr.Problems = append(cfgErr.Problems, fmt.Sprintf("%s.guardrails[%d]: name is required", stage, i))
				continue
			}
			id := entry.UnitName()
			if _, dup := seen[id]; dup {
				cfgErr.Problems = append(cfgErr.Problems, fmt.Sprintf("%s: guardrail %q listed twice (set a distinct id)", stage, id))
			}
			seen[id] = struct{}{}

			if !registry.Has(entry.Name) && !slices.Contains(cfgErr.Unresolved, entry.Name) {
				cfgErr.Unresolved = append(cfgErr.Unresolved, entry.Name)
			}
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
