// Package config loads, defaults, and validates agent configuration.
//
// Configuration is YAML with ${VAR} environment expansion, so secrets like
// database passwords stay out of the file. Load parses, LoadWithDefaults
// fills optional fields, and LoadAndValidate is what binaries call.
package config
