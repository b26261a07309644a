package broker_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueworks/taskbroker/pkg/broker"
	"github.com/queueworks/taskbroker/pkg/topics"
)

func writeDefinitionsFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "queues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefinitionsFile(t *testing.T) {
	t.Parallel()

	t.Run("full definition", func(t *testing.T) {
		t.Parallel()

		path := writeDefinitionsFile(t, `
queues:
  - uid: 0b6dd83e-5f84-4f7b-8a2d-1c9be34acb11
    alias: deploy
    namespace: ops
    name: Deployment commands
    prototype: cli
    allow_multi_handling: false
    unique_message_ids: false
    topics:
      - operator: one_of
        values: [deploy, rollback]
    config:
      allowed_commands: ["^git ", "^make "]
      timeout_seconds: 120
      env:
        APP_ENV: production
`)

		defs, err := broker.LoadDefinitionsFile(path)
		require.NoError(t, err)
		require.Len(t, defs, 1)

		def := defs[0]
		assert.Equal(t, "deploy", def.Alias)
		assert.Equal(t, "ops", def.Namespace)
		assert.Equal(t, broker.PrototypeCli, def.Prototype)
		assert.False(t, def.RequiresUniqueMessageIDs())

		rule := def.Rule()
		require.NotNil(t, rule)
		assert.Equal(t, topics.OneOf, rule.Operator)
		assert.True(t, rule.Matches([]string{"rollback"}))

		assert.JSONEq(t, `{
			"allowed_commands": ["^git ", "^make "],
			"timeout_seconds": 120,
			"env": {"APP_ENV": "production"}
		}`, string(def.Config))
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		path := writeDefinitionsFile(t, `
queues:
  - uid: 9a1a40c2-33b7-4a1f-93d5-2e3bb1e5d702
    alias: catch-all
    prototype: async
`)

		defs, err := broker.LoadDefinitionsFile(path)
		require.NoError(t, err)
		require.Len(t, defs, 1)

		def := defs[0]
		assert.True(t, def.RequiresUniqueMessageIDs(), "dedup is on unless disabled")
		assert.Nil(t, def.Rule(), "no topics means fallback queue")
		assert.Empty(t, def.Config)
	})

	t.Run("last topic rule wins", func(t *testing.T) {
		t.Parallel()

		path := writeDefinitionsFile(t, `
queues:
  - uid: 52cf0a6e-91f4-4f64-9a4f-6a9d61a54c3d
    alias: reports
    prototype: sync
    topics:
      - operator: one_of
        values: [hourly]
      - operator: one_of
        values: [nightly]
`)

		defs, err := broker.LoadDefinitionsFile(path)
		require.NoError(t, err)

		rule := defs[0].Rule()
		require.NotNil(t, rule)
		assert.True(t, rule.Matches([]string{"nightly"}))
		assert.False(t, rule.Matches([]string{"hourly"}))
	})

	t.Run("missing uid rejected", func(t *testing.T) {
		t.Parallel()

		path := writeDefinitionsFile(t, `
queues:
  - alias: reports
    prototype: sync
`)

		_, err := broker.LoadDefinitionsFile(path)
		assert.ErrorContains(t, err, "no uid")
	})

	t.Run("unreadable file", func(t *testing.T) {
		t.Parallel()

		_, err := broker.LoadDefinitionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		path := writeDefinitionsFile(t, "queues: [not: {valid")
		_, err := broker.LoadDefinitionsFile(path)
		assert.Error(t, err)
	})
}

func TestConfig_DefinitionStore(t *testing.T) {
	t.Parallel()

	t.Run("empty config yields an empty static store", func(t *testing.T) {
		t.Parallel()

		store, err := broker.Config{}.DefinitionStore()
		require.NoError(t, err)

		defs, err := store.List(t.Context())
		require.NoError(t, err)
		assert.Empty(t, defs)
	})

	t.Run("file-backed store", func(t *testing.T) {
		t.Parallel()

		path := writeDefinitionsFile(t, `
queues:
  - uid: 1f8c6b3a-7de2-45c8-9f3a-0d4e6b2a91c5
    alias: reports
    prototype: sync
`)

		store, err := broker.Config{DefinitionsFile: path}.DefinitionStore()
		require.NoError(t, err)

		defs, err := store.List(t.Context())
		require.NoError(t, err)
		assert.Len(t, defs, 1)
	})
}
