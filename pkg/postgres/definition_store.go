package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueworks/taskbroker/pkg/broker"
	"github.com/queueworks/taskbroker/pkg/queue"
	"github.com/queueworks/taskbroker/pkg/topics"
)

// DefinitionStore reads queue configuration rows for the broker registry.
type DefinitionStore struct {
	pool *pgxpool.Pool
}

// NewDefinitionStore creates a definition store over the given pool.
func NewDefinitionStore(pool *pgxpool.Pool) (*DefinitionStore, error) {
	if pool == nil {
		return nil, queue.ErrStoreNil
	}
	return &DefinitionStore{pool: pool}, nil
}

func (s *DefinitionStore) List(ctx context.Context) ([]broker.Definition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uid, alias, namespace, name, prototype, config, topics,
		       allow_multi_handling, unique_message_ids
		FROM queue_definitions
		ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue definitions: %w", err)
	}
	defer rows.Close()

	var defs []broker.Definition
	for rows.Next() {
		var (
			def       broker.Definition
			rulesJSON []byte
		)
		if err := rows.Scan(&def.UID, &def.Alias, &def.Namespace, &def.Name,
			&def.Prototype, &def.Config, &rulesJSON,
			&def.AllowMultiHandling, &def.UniqueMessageIDs); err != nil {
			return nil, fmt.Errorf("failed to scan queue definition: %w", err)
		}

		if len(rulesJSON) > 0 {
			var rules []topics.Rule
			if err := json.Unmarshal(rulesJSON, &rules); err != nil {
				return nil, fmt.Errorf("invalid topic rules on queue %q: %w", def.Alias, err)
			}
			def.Topics = rules
		}

		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue definitions: %w", err)
	}

	return defs, nil
}
