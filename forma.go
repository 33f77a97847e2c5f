package forma

import (
	"log/slog"

	"github.com/formaproject/forma/codec"
	"github.com/formaproject/forma/cursor"
	"github.com/formaproject/forma/graph"
	"github.com/formaproject/forma/schema"
	"github.com/formaproject/forma/spell"
)

// Format is one file's worth of state: a codec bound to a schema and
// version pair, and the object graph of parsed or constructed blocks.
// A Format is exclusively owned; process independent files on separate
// Format instances.
type Format struct {
	schema      *schema.Schema
	codec       *codec.Codec
	graph       *graph.Graph
	compression cursor.Compression
	logger      *Logger
}

// New returns an empty Format for building a file from scratch. The
// schema must cover the requested format version.
func New(s *schema.Schema, version, userVersion uint32, opts ...Option) (*Format, error) {
	c, err := codec.New(s, version, userVersion)
	if err != nil {
		return nil, err
	}
	f := &Format{
		schema:      s,
		codec:       c,
		graph:       graph.New(c),
		compression: cursor.CompressionNone,
		logger:      NoopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Schema returns the schema the format is bound to.
func (f *Format) Schema() *schema.Schema { return f.schema }

// Codec returns the version-bound codec.
func (f *Format) Codec() *codec.Codec { return f.codec }

// Graph returns the block graph for inspection and mutation.
func (f *Format) Graph() *graph.Graph { return f.graph }

// Version returns the packed format version.
func (f *Format) Version() uint32 { return f.codec.Version() }

// UserVersion returns the user version.
func (f *Format) UserVersion() uint32 { return f.codec.UserVersion() }

// Compression returns the payload compression used by Save.
func (f *Format) Compression() cursor.Compression { return f.compression }

// Apply runs the given spells over the graph in one traversal and
// returns the engine's report.
func (f *Format) Apply(spells ...spell.Spell) (spell.Report, error) {
	eng := spell.NewEngine(f.graph, spells, spell.WithLogger(f.logger.Logger))
	rep, err := eng.Run()
	if err != nil {
		return rep, err
	}
	f.logger.Debug("spells applied",
		slog.Int("visited", rep.Visited),
		slog.Int("replaced", rep.Replaced),
		slog.Int("deleted", rep.Deleted),
	)
	return rep, nil
}
