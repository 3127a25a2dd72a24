package store

// Stores is the top-level container for all storage backends used by a
// standalone gateway instance.
type Stores struct {
	Sessions SessionStore
	Cron     CronStore
	Pairing  PairingStore
	Tracing  TracingStore // nil unless OTel/tracing export is configured
}

// StoreConfig holds the settings needed to construct a Stores instance.
type StoreConfig struct {
	DataDir string
}
