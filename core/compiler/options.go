package compiler

import (
	"github.com/asaidimu/go-quarry/core/events"
	"go.uber.org/zap"
)

// Options configures a Compiler.
type Options struct {
	// Logger receives a debug entry per compiled statement.
	Logger *zap.Logger
	// Escape quotes table and column names with the dialect's quoting.
	Escape bool
	// NamedParameters renders :p1..:pN instead of the dialect's positional
	// placeholders.
	NamedParameters bool
	// Bus, when set, receives compile lifecycle events.
	Bus *events.Bus
}

// DefaultOptions returns the default compiler options: quoted identifiers,
// positional placeholders, no logging and no events.
func DefaultOptions() *Options {
	return &Options{
		Logger: zap.NewNop(),
		Escape: true,
	}
}
