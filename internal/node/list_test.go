package node

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeffersonLab/ced2gnn/internal/ced"
)

// listOf builds a list from a role pattern, e.g. obs, sp, obs...
func listOf(roles ...Role) *List {
	l := &List{}
	for i, r := range roles {
		l.Append(&Node{
			Element: ced.Element{Name: fmt.Sprintf("EL%02d", i)},
			Role:    r,
		})
	}
	return l
}

func TestAppendAssignsContiguousIDs(t *testing.T) {
	l := listOf(Observer, Setpoint, Observer)
	require.Equal(t, 3, l.Len())
	for i := 0; i < l.Len(); i++ {
		assert.Equal(t, i, l.At(i).ID)
	}
}

func TestPopulateLinks(t *testing.T) {
	// [obs, SP1, obs, obs, SP2, obs]
	l := listOf(Observer, Setpoint, Observer, Observer, Setpoint, Observer)
	l.PopulateLinks()

	sp1, sp2 := l.At(1), l.At(4)
	assert.Equal(t, []int{2, 3, 4}, sp1.DownstreamIDs(), "SP1 collects up to and including SP2")
	assert.Equal(t, []int{5}, sp2.DownstreamIDs())

	// The leading observer belongs to nobody and observers own no sets.
	assert.Nil(t, l.At(0).Downstream)
	assert.Nil(t, l.At(2).Downstream)

	assert.Equal(t, []Edge{
		{Source: 1, Target: 2},
		{Source: 1, Target: 3},
		{Source: 1, Target: 4},
		{Source: 4, Target: 5},
	}, l.Edges())
}

func TestPopulateLinksIdempotent(t *testing.T) {
	l := listOf(Observer, Setpoint, Observer, Observer, Setpoint, Observer)
	l.PopulateLinks()
	first := l.Edges()
	l.PopulateLinks()
	assert.Equal(t, first, l.Edges())
}

func TestPopulateLinksEdgeCases(t *testing.T) {
	t.Run("trailing setpoint keeps empty set", func(t *testing.T) {
		l := listOf(Observer, Setpoint)
		l.PopulateLinks()
		sp := l.At(1)
		require.NotNil(t, sp.Downstream)
		assert.Empty(t, sp.DownstreamIDs())
		assert.Empty(t, l.Edges())
	})

	t.Run("no setpoints yields no edges", func(t *testing.T) {
		l := listOf(Observer, Observer, Observer)
		l.PopulateLinks()
		assert.Empty(t, l.Edges())
	})

	t.Run("adjacent setpoints chain", func(t *testing.T) {
		l := listOf(Setpoint, Setpoint, Observer)
		l.PopulateLinks()
		assert.Equal(t, []int{1}, l.At(0).DownstreamIDs())
		assert.Equal(t, []int{2}, l.At(1).DownstreamIDs())
	})

	t.Run("empty list", func(t *testing.T) {
		l := &List{}
		l.PopulateLinks()
		assert.Empty(t, l.Edges())
	})
}
