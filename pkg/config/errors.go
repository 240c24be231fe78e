package config

import "errors"

// Sentinel errors for configuration lookups and definition loading.
var (
	ErrDefinitionNotFound = errors.New("agent definition not found")
	ErrInvalidDefinition  = errors.New("invalid agent definition")
	ErrUnknownTier        = errors.New("unknown tier")
)
