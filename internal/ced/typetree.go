package ced

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const chainCacheSize = 512

// TypeSource supplies the direct parents of a type name on demand. The CED
// catalog is the production source; tests and cache restores preload the
// tree instead.
type TypeSource interface {
	Parents(ctx context.Context, typeName string) ([]string, error)
}

// TypeTree resolves a concrete type name to its chain of ancestor names.
// The hierarchy is a DAG: a type may list several parents. Entries are
// fetched lazily from the source the first time a type is seen and the
// resolved chains are memoized, so a fully preloaded tree and a lazily
// grown one converge to the same answers.
type TypeTree struct {
	source TypeSource
	log    *slog.Logger

	mu      sync.RWMutex
	parents map[string][]string
	chains  *lru.Cache[string, []string]
}

// NewTypeTree builds an empty tree backed by source. A nil source is legal:
// unknown types then resolve to just themselves.
func NewTypeTree(source TypeSource, log *slog.Logger) *TypeTree {
	if log == nil {
		log = slog.Default()
	}
	chains, _ := lru.New[string, []string](chainCacheSize)
	return &TypeTree{
		source:  source,
		log:     log,
		parents: make(map[string][]string),
		chains:  chains,
	}
}

// Preload installs known parent lists, e.g. from a saved snapshot. Preloaded
// entries are never re-fetched.
func (t *TypeTree) Preload(parents map[string][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, p := range parents {
		t.parents[name] = p
	}
	t.chains.Purge()
}

// Snapshot returns a copy of the parent adjacency gathered so far.
func (t *TypeTree) Snapshot() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]string, len(t.parents))
	for name, p := range t.parents {
		out[name] = append([]string(nil), p...)
	}
	return out
}

// Ancestors returns the type chain for name: name itself first, then each
// parent transitively in declaration order, each name at most once
// (first occurrence wins on diamond inheritance). A type the catalog does
// not know resolves to a chain containing only itself. Cycles in the
// catalog data are cut at the first repeated name on the path and logged,
// so bad catalog entries surface without aborting resolution.
func (t *TypeTree) Ancestors(ctx context.Context, name string) []string {
	if chain, ok := t.chains.Get(name); ok {
		return chain
	}

	type frame struct {
		name    string
		parents []string
	}
	seen := map[string]bool{name: true}
	onPath := map[string]bool{name: true}
	chain := []string{name}
	// Depth-first over the parent lists, preorder, so that a type's first
	// parent and its ancestors precede the second parent.
	stack := []frame{{name: name, parents: t.parentsOf(ctx, name)}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.parents) == 0 {
			onPath[top.name] = false
			stack = stack[:len(stack)-1]
			continue
		}
		next := top.parents[0]
		top.parents = top.parents[1:]
		if seen[next] {
			// A repeat on the current path is a cycle in the catalog data;
			// a repeat off it is ordinary diamond inheritance.
			if onPath[next] {
				t.log.Warn("type hierarchy cycle cut",
					"type", next, "reached-from", top.name)
			}
			continue
		}
		seen[next] = true
		onPath[next] = true
		chain = append(chain, next)
		stack = append(stack, frame{name: next, parents: t.parentsOf(ctx, next)})
	}

	t.chains.Add(name, chain)
	return chain
}

// Matches reports whether candidate appears in name's type chain.
func (t *TypeTree) Matches(ctx context.Context, name, candidate string) bool {
	for _, a := range t.Ancestors(ctx, name) {
		if a == candidate {
			return true
		}
	}
	return false
}

// parentsOf returns the direct parents of name, fetching from the source on
// first encounter. A fetch failure is logged and the type is treated as a
// root so node construction elsewhere is not aborted.
func (t *TypeTree) parentsOf(ctx context.Context, name string) []string {
	t.mu.RLock()
	p, ok := t.parents[name]
	t.mu.RUnlock()
	if ok {
		return append([]string(nil), p...)
	}

	var fetched []string
	if t.source != nil {
		var err error
		fetched, err = t.source.Parents(ctx, name)
		if err != nil {
			t.log.Warn("type lookup failed, treating as root type",
				"type", name, "error", err)
			fetched = nil
		}
	}

	t.mu.Lock()
	t.parents[name] = fetched
	t.mu.Unlock()
	return append([]string(nil), fetched...)
}
