package executor

import (
	"time"

	"github.com/asaidimu/go-quarry/core/events"
	"github.com/asaidimu/go-quarry/core/schema"
	"go.uber.org/zap"
)

// Codec converts bound values into the driver's representation and scanned
// values back. sqlite.Codec is one implementation.
type Codec interface {
	Encode(dt schema.DataType, value any) (any, error)
	Decode(dt schema.DataType, value any) any
}

// passthrough leaves values unchanged.
type passthrough struct{}

func (passthrough) Encode(_ schema.DataType, value any) (any, error) { return value, nil }
func (passthrough) Decode(_ schema.DataType, value any) any          { return value }

// Options configures an Executor.
type Options struct {
	Logger *zap.Logger
	// Bus, when set, receives execute lifecycle events.
	Bus *events.Bus
	// Codec converts values for the target database. Nil values are sent
	// to the driver as is.
	Codec Codec
	// Clock supplies auto-populated timestamps.
	Clock func() time.Time
}

// DefaultOptions returns a set of sensible default options for the executor.
func DefaultOptions() *Options {
	return &Options{
		Logger: zap.NewNop(),
		Codec:  passthrough{},
		Clock:  func() time.Time { return time.Now().UTC() },
	}
}
