package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"mercator-hq/guardrails/pkg/guardrails"
)

// Resolve builds the guardrails of one stage in config order. A nil stage
// resolves to no guardrails. Every unknown name and factory failure is
// collected into one *guardrails.ConfigurationError.
func Resolve(stage *StageConfig, registry *Registry) ([]*guardrails.Guardrail, error) {
	if stage == nil {
		return nil, nil
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}

	cfgErr := guardrails.NewConfigurationError()
	units := resolveInto(stage, "", registry, unitCache{}, cfgErr)
	if cfgErr.HasProblems() {
		return nil, cfgErr
	}
	return units, nil
}

func resolveInto(stage *StageConfig, label string, registry *Registry, cache unitCache, cfgErr *guardrails.ConfigurationError) []*guardrails.Guardrail {
	units := make([]*guardrails.Guardrail, 0, len(stage.Guardrails))
	for _, entry := range stage.Guardrails {
		unit, err := cache.build(registry, entry)
		switch {
		case errors.Is(err, guardrails.ErrUnknownGuardrail):
			if !slices.Contains(cfgErr.Unresolved, entry.Name) {
				cfgErr.Unresolved = append(cfgErr.Unresolved, entry.Name)
			}
		case err != nil:
			cfgErr.Problems = append(cfgErr.Problems, fmt.Sprintf("%s%s: %v", label, entry.UnitName(), err))
		default:
			units = append(units, unit.Renamed(entry.ID))
		}
	}
	return units
}

// unitCache holds built guardrails keyed by name and config. Entries that
// repeat a name and config, in any stage, get the same instance, so usage a
// stateful guardrail charges on output is visible to its input check.
type unitCache map[string]*guardrails.Guardrail

func (c unitCache) build(registry *Registry, entry Entry) (*guardrails.Guardrail, error) {
	key, ok := cacheKey(entry)
	if ok && c != nil {
		if unit, hit := c[key]; hit {
			return unit, nil
		}
	}
	unit, err := registry.Build(entry.Name, entry.Config)
	if err == nil && ok && c != nil {
		c[key] = unit
	}
	return unit, err
}

// cacheKey is false when the config cannot be encoded; such entries are
// never shared. encoding/json sorts map keys, so equal configs encode alike.
func cacheKey(entry Entry) (string, bool) {
	if len(entry.Config) == 0 {
		return entry.Name + "\x00{}", true
	}
	data, err := json.Marshal(entry.Config)
	if err != nil {
		return "", false
	}
	return entry.Name + "\x00" + string(data), true
}
