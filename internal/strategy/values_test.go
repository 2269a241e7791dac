package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/egsolver/internal/abstraction"
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/game"
)

type fixture struct {
	g       *game.Game
	bt      *board.Tree
	tree    *betting.Tree
	ca      *abstraction.CardAbstraction
	buckets *abstraction.Buckets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g, err := game.New(game.Game{
		Name: "leduc6", NumPlayers: 2, NumRanks: 6, NumSuits: 1,
		MaxStreet: 1, NumHoleCards: 1, StreetCards: []int{0, 1},
		SmallBlind: 1, BigBlind: 1,
	})
	require.NoError(t, err)
	bt := board.Build(g)
	ba := &betting.Abstraction{
		Name:      "b1",
		StackSize: 4,
		MaxBets:   []int{1, 1},
		Streets: []betting.StreetSizes{
			{Street: 0, BetSizes: [][]float64{{0.5}}},
			{Street: 1, BetSizes: [][]float64{{0.5}}},
		},
	}
	ca := abstraction.NewUnabstracted("none", g.MaxStreet)
	buckets, err := abstraction.NewBuckets(ca, g, bt)
	require.NoError(t, err)
	return &fixture{g: g, bt: bt, tree: betting.Build(g, ba), ca: ca, buckets: buckets}
}

// fillInts gives every slot a value derived from its coordinates so a
// round trip can be checked exactly.
func fillInts(v *Values, tree *betting.Tree) {
	tree.Walk(tree.Root(), func(n *betting.Node) {
		if n.IsTerminal() {
			return
		}
		p, st, nt := n.PlayerActing, n.St, n.NonterminalID
		if !v.Ints(p, st) {
			return
		}
		vals := v.IValues(p, st, nt)
		for i := range vals {
			vals[i] = int32(p*1000000 + st*100000 + nt*1000 + i)
		}
	})
}

func fillDoubles(v *Values, tree *betting.Tree) {
	tree.Walk(tree.Root(), func(n *betting.Node) {
		if n.IsTerminal() {
			return
		}
		p, st, nt := n.PlayerActing, n.St, n.NonterminalID
		if !v.Doubles(p, st) {
			return
		}
		vals := v.DValues(p, st, nt)
		for i := range vals {
			vals[i] = float64(p)*1e6 + float64(st)*1e5 + float64(nt)*1e3 + float64(i)*0.25
		}
	})
}

func equalStores(t *testing.T, want, got *Values, tree *betting.Tree) {
	t.Helper()
	tree.Walk(tree.Root(), func(n *betting.Node) {
		if n.IsTerminal() {
			return
		}
		p, st, nt := n.PlayerActing, n.St, n.NonterminalID
		switch {
		case want.Ints(p, st):
			require.True(t, got.Ints(p, st))
			assert.Equal(t, want.IValues(p, st, nt), got.IValues(p, st, nt))
		case want.Doubles(p, st):
			require.True(t, got.Doubles(p, st))
			assert.Equal(t, want.DValues(p, st, nt), got.DValues(p, st, nt))
		}
	})
}

func TestRoundTripInts(t *testing.T) {
	f := newFixture(t)
	v := New(f.g, f.bt, f.tree, f.ca, f.buckets, Params{Sumprobs: false})
	v.AllocateAndClearInts(f.tree.Root(), -1)
	fillInts(v, f.tree)

	dir := t.TempDir()
	require.NoError(t, v.Write(dir, 7, f.tree.Root(), -1))

	v2 := New(f.g, f.bt, f.tree, f.ca, f.buckets, Params{Sumprobs: false})
	require.NoError(t, v2.Read(dir, 7, f.tree.Root(), -1))
	equalStores(t, v, v2, f.tree)
}

func TestRoundTripDoubles(t *testing.T) {
	f := newFixture(t)
	v := New(f.g, f.bt, f.tree, f.ca, f.buckets, Params{Sumprobs: true})
	v.AllocateAndClearDoubles(f.tree.Root(), -1)
	fillDoubles(v, f.tree)

	dir := t.TempDir()
	require.NoError(t, v.Write(dir, 12, f.tree.Root(), -1))

	v2 := New(f.g, f.bt, f.tree, f.ca, f.buckets, Params{Sumprobs: true})
	require.NoError(t, v2.Read(dir, 12, f.tree.Root(), -1))
	equalStores(t, v, v2, f.tree)
}

func TestRoundTripCompressed(t *testing.T) {
	f := newFixture(t)
	compressed := []bool{true, true}
	v := New(f.g, f.bt, f.tree, f.ca, f.buckets, Params{Sumprobs: false, Compressed: compressed})
	v.AllocateAndClearInts(f.tree.Root(), -1)
	fillInts(v, f.tree)

	dir := t.TempDir()
	require.NoError(t, v.Write(dir, 3, f.tree.Root(), -1))

	v2 := New(f.g, f.bt, f.tree, f.ca, f.buckets, Params{Sumprobs: false, Compressed: compressed})
	require.NoError(t, v2.Read(dir, 3, f.tree.Root(), -1))
	equalStores(t, v, v2, f.tree)
}

func TestProbNormalisation(t *testing.T) {
	f := newFixture(t)
	v := New(f.g, f.bt, f.tree, f.ca, f.buckets, Params{Sumprobs: true})
	v.AllocateAndClearDoubles(f.tree.Root(), -1)

	root := f.tree.Root()
	p, st, nt := root.PlayerActing, root.St, root.NonterminalID
	numSuccs := root.NumSuccs()
	vals := v.DValues(p, st, nt)

	// Zero weights: pure play of the default successor.
	for s := 0; s < numSuccs; s++ {
		want := 0.0
		if s == root.DefaultSucc {
			want = 1.0
		}
		assert.Equal(t, want, v.Prob(p, st, nt, 0, s, numSuccs, root.DefaultSucc))
	}

	// Populated weights normalise to one.
	vals[0] = 3
	vals[1] = 1
	sum := 0.0
	for s := 0; s < numSuccs; s++ {
		sum += v.Prob(p, st, nt, 0, s, numSuccs, root.DefaultSucc)
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, 0.75, v.Prob(p, st, nt, 0, 0, numSuccs, root.DefaultSucc), 1e-12)
}

// street1Node walks check-check to the first flop-initial decision.
func street1Node(t *testing.T, tree *betting.Tree) *betting.Node {
	t.Helper()
	root := tree.Root()
	option := tree.Succ(root, root.CallSucc)
	n := tree.Succ(option, option.CallSucc)
	require.Equal(t, 1, n.St)
	require.False(t, n.IsTerminal())
	return n
}

func TestReadSubtreeFromFull(t *testing.T) {
	f := newFixture(t)
	full := New(f.g, f.bt, f.tree, f.ca, f.buckets, Params{Sumprobs: true})
	full.AllocateAndClearDoubles(f.tree.Root(), -1)
	fillDoubles(full, f.tree)

	dir := t.TempDir()
	require.NoError(t, full.Write(dir, 5, f.tree.Root(), -1))

	fullSubRoot := street1Node(t, f.tree)
	subTree := betting.BuildSubtree(f.tree, fullSubRoot)
	const gbd = 2
	streets := []bool{false, true}
	sub := New(f.g, f.bt, subTree, f.ca, f.buckets, Params{
		Sumprobs: true, Streets: streets, RootBdSt: 1, RootBd: gbd,
	})
	numFullHoldings := []int{
		f.bt.NumBoards(0) * f.g.NumHoleCardPairs(0),
		f.bt.NumBoards(1) * f.g.NumHoleCardPairs(1),
	}
	require.NoError(t, sub.ReadSubtreeFromFull(dir, 5, f.tree, f.tree.Root(),
		fullSubRoot, subTree.Root(), numFullHoldings, -1))

	// The subtree root's rows must equal the full store's board-gbd rows.
	nhcp := f.g.NumHoleCardPairs(1)
	numSuccs := fullSubRoot.NumSuccs()
	fullVals := full.DValues(fullSubRoot.PlayerActing, 1, fullSubRoot.NonterminalID)
	subVals := sub.DValues(fullSubRoot.PlayerActing, 1, subTree.Root().NonterminalID)
	require.Len(t, subVals, nhcp*numSuccs)
	assert.Equal(t, fullVals[gbd*nhcp*numSuccs:(gbd+1)*nhcp*numSuccs], subVals)
}

func TestMergeInto(t *testing.T) {
	f := newFixture(t)
	full := New(f.g, f.bt, f.tree, f.ca, f.buckets, Params{Sumprobs: true})
	full.AllocateAndClearDoubles(f.tree.Root(), -1)

	fullSubRoot := street1Node(t, f.tree)
	subTree := betting.BuildSubtree(f.tree, fullSubRoot)
	const gbd = 3
	streets := []bool{false, true}
	sub := New(f.g, f.bt, subTree, f.ca, f.buckets, Params{
		Sumprobs: true, Streets: streets, RootBdSt: 1, RootBd: gbd,
	})
	sub.AllocateAndClearDoubles(subTree.Root(), -1)
	fillDoubles(sub, subTree)

	require.NoError(t, full.MergeInto(sub, gbd, fullSubRoot, subTree.Root(), f.g.MaxStreet))

	nhcp := f.g.NumHoleCardPairs(1)
	numSuccs := fullSubRoot.NumSuccs()
	fullVals := full.DValues(fullSubRoot.PlayerActing, 1, fullSubRoot.NonterminalID)
	subVals := sub.DValues(fullSubRoot.PlayerActing, 1, subTree.Root().NonterminalID)
	assert.Equal(t, subVals, fullVals[gbd*nhcp*numSuccs:(gbd+1)*nhcp*numSuccs])
	// Untouched boards remain zero.
	for _, x := range fullVals[:gbd*nhcp*numSuccs] {
		assert.Zero(t, x)
	}
}
