package ced

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapSource serves parent lists from a fixed map and counts lookups.
type mapSource struct {
	parents map[string][]string
	calls   map[string]int
	err     error
}

func (s *mapSource) Parents(_ context.Context, name string) ([]string, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[name]++
	if s.err != nil {
		return nil, s.err
	}
	return s.parents[name], nil
}

func magnetSource() *mapSource {
	return &mapSource{parents: map[string][]string{
		"QB":       {"Quad"},
		"Quad":     {"Magnet"},
		"Magnet":   {"BeamElem"},
		"BPM":      {"Monitor"},
		"Monitor":  {"BeamElem"},
		"BeamElem": nil,
	}}
}

func TestAncestorsChain(t *testing.T) {
	tree := NewTypeTree(magnetSource(), nil)
	ctx := context.Background()

	chain := tree.Ancestors(ctx, "QB")
	assert.Equal(t, []string{"QB", "Quad", "Magnet", "BeamElem"}, chain)

	t.Run("self is always first and unique", func(t *testing.T) {
		for _, name := range []string{"QB", "BeamElem", "NoSuchType"} {
			chain := tree.Ancestors(ctx, name)
			require.NotEmpty(t, chain)
			assert.Equal(t, name, chain[0])
			seen := map[string]int{}
			for _, c := range chain {
				seen[c]++
			}
			assert.Equal(t, 1, seen[name])
		}
	})
}

func TestMatches(t *testing.T) {
	tree := NewTypeTree(magnetSource(), nil)
	ctx := context.Background()

	assert.True(t, tree.Matches(ctx, "QB", "Magnet"))
	assert.True(t, tree.Matches(ctx, "QB", "QB"))
	assert.False(t, tree.Matches(ctx, "BPM", "Magnet"))
	assert.True(t, tree.Matches(ctx, "BPM", "BeamElem"))
}

func TestAncestorsUnknownType(t *testing.T) {
	tree := NewTypeTree(nil, nil)
	assert.Equal(t, []string{"Mystery"}, tree.Ancestors(context.Background(), "Mystery"))
}

func TestAncestorsDiamond(t *testing.T) {
	src := &mapSource{parents: map[string][]string{
		"D": {"B", "C"},
		"B": {"A"},
		"C": {"A"},
		"A": nil,
	}}
	var logs bytes.Buffer
	tree := NewTypeTree(src, slog.New(slog.NewTextHandler(&logs, nil)))

	// First occurrence of A (via B) wins; C still appears after.
	chain := tree.Ancestors(context.Background(), "D")
	assert.Equal(t, []string{"D", "B", "A", "C"}, chain)
	assert.NotContains(t, logs.String(), "cycle", "diamond inheritance is legal")
}

func TestAncestorsCycleTerminatesAndWarns(t *testing.T) {
	src := &mapSource{parents: map[string][]string{
		"X": {"Y"},
		"Y": {"X"},
	}}
	var logs bytes.Buffer
	tree := NewTypeTree(src, slog.New(slog.NewTextHandler(&logs, nil)))
	assert.Equal(t, []string{"X", "Y"}, tree.Ancestors(context.Background(), "X"))
	assert.Contains(t, logs.String(), "cycle")
}

func TestAncestorsMemoized(t *testing.T) {
	src := magnetSource()
	tree := NewTypeTree(src, nil)
	ctx := context.Background()

	first := tree.Ancestors(ctx, "QB")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, tree.Ancestors(ctx, "QB"))
	}
	// Each type in the chain fetched exactly once.
	for _, name := range []string{"QB", "Quad", "Magnet", "BeamElem"} {
		assert.Equal(t, 1, src.calls[name], name)
	}
}

func TestAncestorsSourceErrorTreatedAsRoot(t *testing.T) {
	src := &mapSource{err: errors.New("catalog down")}
	tree := NewTypeTree(src, nil)
	assert.Equal(t, []string{"QB"}, tree.Ancestors(context.Background(), "QB"))
}

func TestPreloadMatchesLazyResolution(t *testing.T) {
	src := magnetSource()
	lazy := NewTypeTree(src, nil)
	ctx := context.Background()
	want := lazy.Ancestors(ctx, "QB")

	preloaded := NewTypeTree(nil, nil)
	preloaded.Preload(lazy.Snapshot())
	assert.Equal(t, want, preloaded.Ancestors(ctx, "QB"))
}
