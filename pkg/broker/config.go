package broker

// Config is the environment configuration of the broker subsystem, parsed
// with pkg/config.
type Config struct {
	// DefinitionsFile points at a YAML queue definitions file, for setups
	// that configure their queues without a database-backed store.
	DefinitionsFile string `env:"BROKER_DEFINITIONS_FILE"`
}

// DefinitionStore builds the definition source the config points at.
func (c Config) DefinitionStore() (DefinitionStore, error) {
	if c.DefinitionsFile == "" {
		return StaticDefinitions(nil), nil
	}
	return LoadDefinitionsFile(c.DefinitionsFile)
}
