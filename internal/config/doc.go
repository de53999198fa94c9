// Package config handles configuration loading, parsing, and validation
// from environment variables and files. It also owns the scoring scale table
// that maps aggregate mastery onto an external score band.
package config
