package keystore

// ConfigError reports an operation that needs an identity field which has
// not been established yet.
type ConfigError struct {
	Field Field
}

func (e *ConfigError) Error() string {
	return "keystore: missing " + string(e.Field)
}
