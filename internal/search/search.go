// Package search enumerates barter chains over a compatibility graph.
//
// The enumerator walks the graph depth-first from the origin twice. The
// forward walk follows hand-overs away from the origin; an edge that
// hands an item back to it closes a CYCLE. The backward walk follows
// suppliers toward the origin: a line of suppliers that reaches the
// length limit, or cannot be extended, and cannot close becomes a LINEAR
// chain. Its last participant gives an item, receives none and is paid
// in cash.
//
// Raw paths are pre-sorted by a cheap value-fit heuristic. Only a bounded
// pool is priced by the settlement package, deduplicated by participant
// set and ranked for return.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/graph"
	"github.com/roach88/swapchain/internal/settlement"
)

// Defaults for Options left at zero.
const (
	DefaultMaxCandidates = 20
	DefaultStepBudget    = 20000

	// poolFactor sizes the pool priced by settlement relative to the
	// number of candidates returned.
	poolFactor = 4
)

// Options bound a single enumeration.
type Options struct {
	MaxChainLength    int
	MaxCashDifference decimal.Decimal
	MaxCandidates     int

	// StepBudget caps the number of edges the DFS may visit.
	StepBudget int
}

func (o Options) withDefaults() Options {
	if o.MaxChainLength < barter.MinChainLength {
		o.MaxChainLength = barter.MinChainLength
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	if o.StepBudget <= 0 {
		o.StepBudget = DefaultStepBudget
	}
	return o
}

// Stats describes one enumeration.
type Stats struct {
	Steps      int
	Paths      int
	Priced     int
	Rejected   int
	Duplicates int
	Exhausted  bool
}

// Enumerator finds candidate chains. It holds no per-search state and is
// safe for concurrent use.
type Enumerator struct {
	log zerolog.Logger
}

// NewEnumerator creates an Enumerator.
func NewEnumerator(log zerolog.Logger) *Enumerator {
	return &Enumerator{log: log}
}

// path is a raw DFS result: the visited nodes and the edges between them.
// A cycle has one edge per node; a linear path one fewer.
type path struct {
	kind  barter.ChainType
	nodes []int
	edges []graph.Edge
	fit   decimal.Decimal
}

// Enumerate returns the best priced candidates on g, ranked by length,
// then fairness score, then total value.
func (e *Enumerator) Enumerate(ctx context.Context, g *graph.Graph, opts Options) ([]barter.ChainCandidate, Stats, error) {
	opts = opts.withDefaults()

	w := &walker{
		g:      g,
		maxLen: opts.MaxChainLength,
		budget: opts.StepBudget,
		ctx:    ctx,
		onPath: make([]bool, g.Len()),
	}
	w.visit(graph.Origin)
	w.backward = true
	w.visit(graph.Origin)
	if w.err != nil {
		return nil, Stats{}, w.err
	}

	stats := Stats{Steps: w.steps, Paths: len(w.out), Exhausted: w.exhausted}
	if w.exhausted {
		e.log.Warn().Int("steps", w.steps).Int("paths", len(w.out)).Msg("search step budget exhausted")
	}

	paths := w.out
	sort.SliceStable(paths, func(i, j int) bool {
		if len(paths[i].nodes) != len(paths[j].nodes) {
			return len(paths[i].nodes) < len(paths[j].nodes)
		}
		return paths[i].fit.LessThan(paths[j].fit)
	})
	if pool := opts.MaxCandidates * poolFactor; len(paths) > pool {
		paths = paths[:pool]
	}

	best := make(map[string]barter.ChainCandidate)
	for _, p := range paths {
		priced, err := settlement.Settle(p.candidate(g), opts.MaxCashDifference)
		if err != nil {
			stats.Rejected++
			e.log.Debug().Err(err).Str("chain", settlement.Describe(p.candidate(g))).Msg("candidate rejected")
			continue
		}
		stats.Priced++

		key := groupKey(priced)
		if cur, ok := best[key]; ok {
			stats.Duplicates++
			if !better(priced, cur) {
				continue
			}
		}
		best[key] = priced
	}

	out := make([]barter.ChainCandidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	Rank(out)
	if len(out) > opts.MaxCandidates {
		out = out[:opts.MaxCandidates]
	}

	e.log.Debug().
		Int("steps", stats.Steps).
		Int("paths", stats.Paths).
		Int("priced", stats.Priced).
		Int("rejected", stats.Rejected).
		Int("returned", len(out)).
		Msg("enumeration finished")

	return out, stats, nil
}

// walker is the mutable DFS state for one enumeration. Both walks share
// the step budget.
type walker struct {
	g        *graph.Graph
	maxLen   int
	budget   int
	ctx      context.Context
	backward bool

	nodes  []int
	edges  []graph.Edge
	onPath []bool

	steps     int
	exhausted bool
	err       error
	out       []path
}

// visit extends the current path from node u. Forward, a path at the
// length limit may still close. Backward, a path that cannot be extended
// ends there as a linear chain unless the origin could close it.
func (w *walker) visit(u int) {
	w.nodes = append(w.nodes, u)
	w.onPath[u] = true
	defer func() {
		w.nodes = w.nodes[:len(w.nodes)-1]
		w.onPath[u] = false
	}()

	full := len(w.nodes) == w.maxLen
	extended, closable := false, false
	for _, e := range w.next(u) {
		if w.stop() {
			return
		}
		w.steps++

		v, closes := w.follow(e)
		if closes {
			closable = true
			if !w.backward && len(w.nodes) >= barter.MinChainLength {
				w.emit(barter.ChainCycle, e)
			}
			continue
		}
		if full || w.onPath[v] {
			continue
		}

		extended = true
		w.edges = append(w.edges, e)
		w.visit(v)
		w.edges = w.edges[:len(w.edges)-1]
	}

	if w.backward && !extended && !closable && len(w.nodes) >= barter.MinChainLength {
		w.emit(barter.ChainLinear)
	}
}

// next returns the edges that may extend a path ending at u.
func (w *walker) next(u int) []graph.Edge {
	if w.backward {
		return w.g.In[u]
	}
	return w.g.Out[u]
}

// follow returns the node e leads to and whether e involves the origin,
// which closes the path into a cycle.
func (w *walker) follow(e graph.Edge) (int, bool) {
	if w.backward {
		return e.From, e.From == graph.Origin
	}
	return e.To, w.g.Closes(e)
}

func (w *walker) stop() bool {
	if w.err != nil || w.exhausted {
		return true
	}
	if w.steps >= w.budget {
		w.exhausted = true
		return true
	}
	if w.steps%256 == 0 {
		if err := w.ctx.Err(); err != nil {
			w.err = err
			return true
		}
	}
	return false
}

// emit records the current path. For a cycle, closing is the edge back to
// the origin.
func (w *walker) emit(kind barter.ChainType, closing ...graph.Edge) {
	p := path{
		kind:  kind,
		nodes: append([]int(nil), w.nodes...),
		edges: append(append([]graph.Edge(nil), w.edges...), closing...),
		fit:   decimal.Zero,
	}
	for _, e := range p.edges {
		p.fit = p.fit.Add(e.Proximity)
	}
	w.out = append(w.out, p)
}

// candidate converts a path into an unpriced candidate. Slots follow the
// walk order, so slot 0 is always the origin.
func (p path) candidate(g *graph.Graph) barter.ChainCandidate {
	slots := make([]barter.Slot, len(p.nodes))
	pos := make(map[int]int, len(p.nodes))
	for i, node := range p.nodes {
		slots[i].UserID = g.Nodes[node].UserID
		pos[node] = i
	}
	for _, e := range p.edges {
		it := g.ItemOf(e)
		from, to := pos[e.From], pos[e.To]
		slots[from].GivingItemID = it.ID
		slots[from].GivingValue = it.EstimatedValue
		slots[to].ReceivingItemID = it.ID
		slots[to].ReceivingValue = it.EstimatedValue
	}
	return barter.ChainCandidate{Type: p.kind, Slots: slots}
}

// groupKey identifies candidates with the same type and participant set.
func groupKey(c barter.ChainCandidate) string {
	ids := c.ParticipantIDs()
	sort.Strings(ids)
	return string(c.Type) + "|" + strings.Join(ids, ",")
}
