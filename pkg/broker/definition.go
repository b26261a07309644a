package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/queueworks/taskbroker/pkg/topics"
)

// Definition is one persisted queue configuration row. Created by
// administrative tooling, read-only at runtime; the registry holds the
// loaded set until an explicit Reload.
type Definition struct {
	UID       uuid.UUID `json:"uid" yaml:"uid"`
	Alias     string    `json:"alias" yaml:"alias"`
	Namespace string    `json:"namespace" yaml:"namespace"`
	Name      string    `json:"name" yaml:"name"`

	// Prototype selects the factory that builds the queue: which engine
	// settings, strategy, and executor it gets.
	Prototype string `json:"prototype" yaml:"prototype"`

	// Config is the strategy-specific settings blob; see Settings.
	Config json.RawMessage `json:"config,omitempty" yaml:"-"`

	// Topics holds the configured rule entries. Only the last one is
	// effective; an empty list marks a fallback queue.
	Topics []topics.Rule `json:"topics,omitempty" yaml:"topics,omitempty"`

	AllowMultiHandling bool `json:"allow_multi_handling" yaml:"allow_multi_handling"`

	// UniqueMessageIDs defaults to true when absent.
	UniqueMessageIDs *bool `json:"unique_message_ids,omitempty" yaml:"unique_message_ids,omitempty"`
}

// Rule returns the effective topic rule, nil for fallback queues.
func (d Definition) Rule() *topics.Rule {
	return topics.Effective(d.Topics)
}

// RequiresUniqueMessageIDs reports whether the queue deduplicates by
// message id and producer. Defaults to true.
func (d Definition) RequiresUniqueMessageIDs() bool {
	return d.UniqueMessageIDs == nil || *d.UniqueMessageIDs
}

// DefinitionStore loads the persisted queue configuration.
type DefinitionStore interface {
	List(ctx context.Context) ([]Definition, error)
}

// StaticDefinitions is a DefinitionStore over a fixed in-memory list, for
// tests and embedded setups.
type StaticDefinitions []Definition

func (s StaticDefinitions) List(_ context.Context) ([]Definition, error) {
	return s, nil
}

type definitionsFile struct {
	Queues []yamlDefinition `yaml:"queues"`
}

type yamlDefinition struct {
	Definition `yaml:",inline"`

	// Config is declared as free-form YAML and re-encoded to JSON so the
	// blob reaches the factories in the same shape a database row would.
	Config map[string]any `yaml:"config"`
}

// LoadDefinitionsFile reads queue definitions from a YAML file, for setups
// that configure their queues without a database.
func LoadDefinitionsFile(path string) (StaticDefinitions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file: %w", err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse definitions file %q: %w", path, err)
	}

	defs := make(StaticDefinitions, 0, len(file.Queues))
	for _, q := range file.Queues {
		def := q.Definition
		if q.Config != nil {
			blob, err := json.Marshal(q.Config)
			if err != nil {
				return nil, fmt.Errorf("failed to encode config of queue %q: %w", def.Alias, err)
			}
			def.Config = blob
		}
		if def.UID == uuid.Nil {
			return nil, fmt.Errorf("queue %q has no uid", def.Alias)
		}
		defs = append(defs, def)
	}

	return defs, nil
}
