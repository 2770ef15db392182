package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/JeffersonLab/ced2gnn/api"
	"github.com/JeffersonLab/ced2gnn/internal/ced"
	"github.com/JeffersonLab/ced2gnn/internal/mya"
)

// SampleSource is the per-node time-series dependency; *mya.Client in
// production, a fake in tests.
type SampleSource interface {
	Sample(ctx context.Context, channels []string, w mya.Window) ([]mya.Row, error)
}

// Skip records an element that was excluded recoverably, with enough
// identity to investigate it later.
type Skip struct {
	Element ced.Element
	Reason  string
}

// Builder turns the ordered element inventory into a List. Sample fetching
// may run in parallel (bounded by Parallelism), but results are committed
// strictly in inventory order, so node ids are identical to a sequential
// run.
type Builder struct {
	Tree        *ced.TypeTree
	Config      api.Nodes
	Windows     []mya.Window
	Source      SampleSource
	Parallelism int
	Log         *slog.Logger
}

// outcome is the per-element result: exactly one of node/skip set, or
// neither when no rule matched (silent, expected).
type outcome struct {
	node *Node
	skip *Skip
}

// Build fetches samples for every matching element and returns the frozen
// list plus the recoverable skips. A non-recoverable failure (transport
// error, cancellation) aborts the whole build.
func (b *Builder) Build(ctx context.Context, elements []ced.Element) (*List, []Skip, error) {
	log := b.Log
	if log == nil {
		log = slog.Default()
	}
	parallelism := b.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	outcomes := make([]outcome, len(elements))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, element := range elements {
		i, element := i, element
		g.Go(func() error {
			out, err := b.buildOne(gctx, element)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Commit in inventory order: ids depend only on the inputs, never on
	// fetch completion order.
	list := &List{}
	var skips []Skip
	for _, out := range outcomes {
		switch {
		case out.node != nil:
			list.Append(out.node)
		case out.skip != nil:
			skips = append(skips, *out.skip)
			log.Warn("skipping element",
				"element", out.skip.Element.Name,
				"type", out.skip.Element.Type,
				"reason", out.skip.Reason)
		}
		if n := list.Len(); n > 0 && n%50 == 0 {
			log.Info("fetching node data", "nodes", n, "elements", len(elements))
		}
	}
	return list, skips, nil
}

// buildOne resolves one element and attaches its samples. Archiver domain
// errors and per-element decode errors become skips; anything else aborts.
func (b *Builder) buildOne(ctx context.Context, element ced.Element) (outcome, error) {
	n, ok, err := MakeNode(ctx, element, b.Tree, b.Config)
	if err != nil {
		return outcome{skip: &Skip{Element: element, Reason: err.Error()}}, nil
	}
	if !ok {
		// No rule matched the type chain: expected with broad inventory
		// queries, not worth a warning.
		return outcome{}, nil
	}

	n.Samples = make([][]mya.Row, len(b.Windows))
	for i, w := range b.Windows {
		rows, err := b.Source.Sample(ctx, n.Channels, w)
		if err != nil {
			var myaErr *mya.Error
			if errors.As(err, &myaErr) || errors.Is(err, mya.ErrDecode) {
				return outcome{skip: &Skip{Element: element, Reason: err.Error()}}, nil
			}
			return outcome{}, fmt.Errorf("element %s: %w", element.Name, err)
		}
		n.Samples[i] = rows
	}
	return outcome{node: n}, nil
}
