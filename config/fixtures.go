package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FixtureSet lists the fixtures a backfill run should fetch.
type FixtureSet struct {
	Fixtures    []string `yaml:"fixtures"`
	Sportsbooks []string `yaml:"sportsbooks"`
}

// LoadFixtureSet loads a fixture list from the given path. Blank and
// duplicate ids are dropped, order is kept.
func LoadFixtureSet(path string) (*FixtureSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	var set FixtureSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures file: %w", err)
	}
	set.Fixtures = dedupe(set.Fixtures)
	set.Sportsbooks = dedupe(set.Sportsbooks)
	return &set, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
