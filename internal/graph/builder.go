package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
)

// Defaults for Options fields left at zero.
const (
	DefaultTopK        = 8
	DefaultMaxNodes    = 64
	DefaultConcurrency = 4
)

// Options bound a single build.
type Options struct {
	MaxChainLength int
	TopK           int
	MaxNodes       int
	Region         string
	Concurrency    int
}

func (o Options) withDefaults() Options {
	if o.MaxChainLength < barter.MinChainLength {
		o.MaxChainLength = barter.MinChainLength
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Builder expands a graph from a focal item using directory queries.
type Builder struct {
	dir directory.Directory
	log zerolog.Logger
}

// NewBuilder creates a Builder reading from dir.
func NewBuilder(dir directory.Directory, log zerolog.Logger) *Builder {
	return &Builder{dir: dir, log: log}
}

// Build constructs the graph for focalItemID.
//
// Expansion alternates two rules, one layer at a time:
//
//	(a) forward:  who wants an item a frontier node could give
//	(b) backward: whose item would satisfy what a backward-frontier node wants
//
// Rule (b) starts at the origin, so the arena contains the participants
// able to close a cycle even when the forward frontier has not reached
// them yet. Each query returns the top-K matches by value proximity. No
// layer goes deeper than MaxChainLength-1 and the arena never exceeds
// MaxNodes.
func (b *Builder) Build(ctx context.Context, focalItemID string, opts Options) (*Graph, error) {
	opts = opts.withDefaults()

	focal, err := b.dir.GetItem(ctx, focalItemID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, barter.NewError(barter.ErrCodeNotFound, "focal item not found").WithItem(focalItemID).Wrap(err)
		}
		return nil, fmt.Errorf("build graph: get focal item: %w", err)
	}
	if !focal.Tradable() {
		return nil, barter.NewError(barter.ErrCodeItemUnavailable, "focal item is %s", focal.Status).WithItem(focal.ID)
	}

	originWants, err := b.dir.GetWantCriteria(ctx, focal.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("build graph: origin wants: %w", err)
	}

	g := &Graph{Nodes: []Node{{
		UserID: focal.OwnerID,
		Items:  []barter.Item{focal},
		Wants:  originWants,
	}}}
	index := map[string]int{focal.OwnerID: Origin}

	forward := []int{Origin}
	backward := []int{Origin}
	for depth := 1; depth < opts.MaxChainLength; depth++ {
		if len(g.Nodes) >= opts.MaxNodes {
			break
		}

		// (a) who wants what the forward frontier gives
		wanters, err := b.expandForward(ctx, g, forward, opts)
		if err != nil {
			return nil, err
		}
		forward, err = b.admit(ctx, g, index, wanters, depth, opts)
		if err != nil {
			return nil, err
		}

		// (b) whose items satisfy what the backward frontier wants
		suppliers, err := b.expandBackward(ctx, g, backward, opts)
		if err != nil {
			return nil, err
		}
		backward, err = b.admit(ctx, g, index, suppliers, -depth, opts)
		if err != nil {
			return nil, err
		}

		if len(forward) == 0 && len(backward) == 0 {
			break
		}
	}

	g.link(opts.TopK)

	b.log.Debug().
		Str("focal_item", focal.ID).
		Int("nodes", g.Len()).
		Int("edges", g.EdgeCount()).
		Msg("compatibility graph built")

	return g, nil
}

func (b *Builder) expandForward(ctx context.Context, g *Graph, frontier []int, opts Options) ([]string, error) {
	var users []string
	for _, n := range frontier {
		for _, it := range g.Nodes[n].Items {
			wants, err := b.dir.FindWanters(ctx, it, opts.Region, opts.TopK)
			if err != nil {
				return nil, fmt.Errorf("build graph: find wanters of %s: %w", it.ID, err)
			}
			for _, w := range wants {
				users = append(users, w.OwnerID)
			}
		}
	}
	return users, nil
}

func (b *Builder) expandBackward(ctx context.Context, g *Graph, frontier []int, opts Options) ([]string, error) {
	var users []string
	for _, n := range frontier {
		for _, w := range g.Nodes[n].Wants {
			items, err := b.dir.SearchItems(ctx, directory.QueryFor(w, opts.Region, opts.TopK))
			if err != nil {
				return nil, fmt.Errorf("build graph: search items for %s: %w", w.OwnerID, err)
			}
			for _, it := range items {
				users = append(users, it.OwnerID)
			}
		}
	}
	return users, nil
}

// admit snapshots users not yet in the arena and appends them, in user id
// order, up to MaxNodes. Returns the indices of the admitted nodes.
func (b *Builder) admit(ctx context.Context, g *Graph, index map[string]int, users []string, depth int, opts Options) ([]int, error) {
	fresh := make([]string, 0, len(users))
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if _, ok := index[u]; ok || seen[u] {
			continue
		}
		seen[u] = true
		fresh = append(fresh, u)
	}
	sort.Strings(fresh)
	if room := opts.MaxNodes - len(g.Nodes); len(fresh) > room {
		fresh = fresh[:max(room, 0)]
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	nodes := make([]Node, len(fresh))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(opts.Concurrency)
	for i, u := range fresh {
		i, u := i, u
		grp.Go(func() error {
			n, err := b.snapshot(gctx, u, depth, opts.Region)
			if err != nil {
				return err
			}
			nodes[i] = n
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	admitted := make([]int, 0, len(nodes))
	for _, n := range nodes {
		index[n.UserID] = len(g.Nodes)
		admitted = append(admitted, len(g.Nodes))
		g.Nodes = append(g.Nodes, n)
	}
	return admitted, nil
}

// snapshot fetches a participant's tradable items and wants.
func (b *Builder) snapshot(ctx context.Context, userID string, depth int, region string) (Node, error) {
	items, err := b.dir.GetUserItems(ctx, userID)
	if err != nil {
		return Node{}, fmt.Errorf("build graph: items of %s: %w", userID, err)
	}
	wants, err := b.dir.GetWantCriteria(ctx, userID)
	if err != nil {
		return Node{}, fmt.Errorf("build graph: wants of %s: %w", userID, err)
	}

	offered := make([]barter.Item, 0, len(items))
	for _, it := range items {
		if !it.Tradable() {
			continue
		}
		if region != "" && it.Region != "" && it.Region != region {
			continue
		}
		offered = append(offered, it)
	}
	return Node{UserID: userID, Items: offered, Wants: wants, Depth: depth}, nil
}
