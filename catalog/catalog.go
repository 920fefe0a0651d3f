// Package catalog compiles sets of named query definitions ahead of time.
// A catalog holds the compiled statements of one dialect; it can be saved
// as msgpack, loaded back at runtime, or rendered as Go source.
package catalog

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/asaidimu/go-quarry/core/compiler"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Entry is one named compiled statement.
type Entry struct {
	Name   string             `json:"name" msgpack:"name"`
	Result *query.QueryResult `json:"result" msgpack:"result"`
}

// Catalog holds compiled statements in definition order.
type Catalog struct {
	Dialect string  `json:"dialect" msgpack:"dialect"`
	Entries []Entry `json:"entries" msgpack:"entries"`
}

// Options configures Build.
type Options struct {
	Logger *zap.Logger
	// Workers bounds the number of definitions compiled at once.
	Workers int
}

// DefaultOptions returns options with one worker per CPU and no logging.
func DefaultOptions() *Options {
	return &Options{
		Logger:  zap.NewNop(),
		Workers: runtime.GOMAXPROCS(0),
	}
}

// Build compiles every definition with c. Names must be unique. Compilation
// stops at the first failing definition.
func Build(ctx context.Context, c *compiler.Compiler, defs []QueryDefinition, opts *Options) (*Catalog, error) {
	if c == nil {
		return nil, fmt.Errorf("catalog requires a compiler")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	seen := make(map[string]struct{}, len(defs))
	for i, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("query %d has no name", i)
		}
		if _, ok := seen[def.Name]; ok {
			return nil, fmt.Errorf("duplicate query name %q", def.Name)
		}
		seen[def.Name] = struct{}{}
	}

	entries := make([]Entry, len(defs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, def := range defs {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				result, err := def.Compile(c)
				if err != nil {
					return fmt.Errorf("query %s: %w", def.Name, err)
				}
				entries[i] = Entry{Name: def.Name, Result: result}
				return nil
			}
		})
	}

	if err := eg.Wait(); err != nil {
		logger.Error("Failed to build catalog", zap.Error(err))
		return nil, err
	}

	logger.Info("Built catalog", zap.String("dialect", c.Dialect().Name()), zap.Int("queries", len(entries)))
	return &Catalog{Dialect: c.Dialect().Name(), Entries: entries}, nil
}

// Lookup returns the compiled statement with the given name.
func (c *Catalog) Lookup(name string) (*query.QueryResult, bool) {
	for _, e := range c.Entries {
		if e.Name == name {
			return e.Result, true
		}
	}
	return nil, false
}

// Save writes the catalog as msgpack.
func (c *Catalog) Save(w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return nil
}

// Load reads a catalog written by Save. Integer literal values decode as
// int64.
func Load(r io.Reader) (*Catalog, error) {
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return &c, nil
}
