package config

// ConfigBackend is the persistent store behind `civicbot config set`.
// Durations are stored as strings and parsed by the loader.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error

	// Describe names where values are kept, for display.
	Describe() string
}
