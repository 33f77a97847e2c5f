package spell

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/formaproject/forma/graph"
	"github.com/formaproject/forma/model"
)

// Report tallies what a run did.
type Report struct {
	Visited  int            // blocks the walk reached
	Applied  map[string]int // non-noop actions per spell name
	Replaced int            // blocks whose value was swapped
	Deleted  int            // blocks detached from the graph
}

// Engine walks a graph and applies registered spells to each reachable
// block exactly once.
type Engine struct {
	graph  *graph.Graph
	spells []Spell
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for per-block trace output.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine returns an engine that applies the given spells, in order, to
// blocks of g.
func NewEngine(g *graph.Graph, spells []Spell, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:  g,
		spells: spells,
		logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs a pre-order depth-first walk from the graph roots. Each
// block is visited at most once, keyed by arena index, so shared
// sub-graphs and cycles are handled without duplicate work. On every
// visited block the applicable spells run in registration order; a
// deletion stops further spells on that block and prunes its subtree from
// the walk. Children are entered only when at least one spell's Recurse
// allows it. The first spell error aborts the run.
func (e *Engine) Run() (Report, error) {
	rep := Report{Applied: make(map[string]int)}
	visited := roaring.New()

	var visit func(b *model.Block) error
	visit = func(b *model.Block) error {
		if visited.Contains(b.ArenaIndex) {
			return nil
		}
		visited.Add(b.ArenaIndex)
		rep.Visited++

		for _, s := range e.spells {
			if !s.Applicable(b.TypeName) {
				continue
			}
			res, err := s.Entry(b)
			if err != nil {
				return fmt.Errorf("spell %q on %s: %w", s.Name(), b, err)
			}
			switch res.Action {
			case ActionNone:
				continue
			case ActionReplace:
				if res.Value == nil {
					return fmt.Errorf("spell %q on %s: replace without a value", s.Name(), b)
				}
				b.Value = res.Value
				rep.Replaced++
			case ActionDelete:
				if err := e.graph.DeleteBlock(b); err != nil {
					return fmt.Errorf("spell %q on %s: %w", s.Name(), b, err)
				}
				rep.Deleted++
			}
			rep.Applied[s.Name()]++
			e.logger.Debug("spell applied",
				slog.String("spell", s.Name()),
				slog.String("block", b.String()),
				slog.String("action", res.Action.String()),
			)
			if res.Action == ActionDelete {
				return nil
			}
		}

		recurse := false
		for _, s := range e.spells {
			if s.Recurse(b) {
				recurse = true
				break
			}
		}
		if !recurse {
			return nil
		}
		for _, c := range graph.Children(b) {
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range e.graph.Roots() {
		if err := visit(r); err != nil {
			return rep, err
		}
	}
	return rep, nil
}
