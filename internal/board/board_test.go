package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
)

func flopGame(t *testing.T) *game.Game {
	t.Helper()
	g, err := game.New(game.Game{
		Name: "flop-holdem", NumPlayers: 2, NumRanks: 13, NumSuits: 4,
		MaxStreet: 1, NumHoleCards: 2, StreetCards: []int{0, 3},
		SmallBlind: 50, BigBlind: 100,
	})
	require.NoError(t, err)
	return g
}

func leducGame(t *testing.T) *game.Game {
	t.Helper()
	g, err := game.New(game.Game{
		Name: "leduc6", NumPlayers: 2, NumRanks: 6, NumSuits: 1,
		MaxStreet: 1, NumHoleCards: 1, StreetCards: []int{0, 1},
		SmallBlind: 1, BigBlind: 1,
	})
	require.NoError(t, err)
	return g
}

func TestCanonicalFlopCount(t *testing.T) {
	g := flopGame(t)
	bt := Build(g)
	// The well-known number of suit-isomorphic flops in a 52-card deck.
	assert.Equal(t, 1755, bt.NumBoards(1))
	// Every raw flop collapses somewhere.
	total := 0
	for gbd := 0; gbd < bt.NumBoards(1); gbd++ {
		total += bt.NumVariants(1, gbd)
		assert.Equal(t, 0, bt.PredBoard(1, gbd, 0))
	}
	assert.Equal(t, 22100, total) // C(52, 3)
	assert.Equal(t, 0, bt.SuccBoardBegin(0, 0, 1))
	assert.Equal(t, 1755, bt.SuccBoardEnd(0, 0, 1))
}

func TestPreflopHandClasses(t *testing.T) {
	g := flopGame(t)
	hands := newCanonicalHands(g, nil, nil)
	assert.Equal(t, 1326, hands.NumRaw())
	// 13 pairs, 78 suited, 78 offsuit.
	assert.Equal(t, 169, hands.NumCanon())
	total := 0
	for i := 0; i < hands.NumRaw(); i++ {
		total += hands.NumVariants(i)
		canon := hands.Canon(i)
		assert.Equal(t, canon, hands.Canon(canon), "canon must be idempotent")
		assert.Greater(t, hands.NumVariants(canon), 0)
	}
	assert.Equal(t, 1326, total)
}

func TestHCPIndexMatchesEnumeration(t *testing.T) {
	g := flopGame(t)
	hands := newCanonicalHands(g, nil, nil)
	for i := 0; i < hands.NumRaw(); i++ {
		assert.Equal(t, i, HCPIndex(g, nil, hands.Cards(i)))
	}
	// With board cards removed the index skips them.
	bt := Build(g)
	board := bt.Board(1, 17)
	onFlop := newCanonicalHands(g, board, nil)
	for i := 0; i < onFlop.NumRaw(); i++ {
		assert.Equal(t, i, HCPIndex(g, board, onFlop.Cards(i)))
	}
}

func TestFinalStreetSortedByStrength(t *testing.T) {
	g := leducGame(t)
	bt := Build(g)
	ev := eval.New(g)
	ht := NewHandTree(g, bt, ev, 0, 0, 1)
	for lbd := 0; lbd < bt.NumBoards(1); lbd++ {
		hands := ht.Hands(1, lbd)
		for i := 1; i < hands.NumRaw(); i++ {
			assert.LessOrEqual(t, hands.HandValue(i-1), hands.HandValue(i))
		}
	}
}

func TestSingleSuitBoardsAreDistinct(t *testing.T) {
	g := leducGame(t)
	bt := Build(g)
	assert.Equal(t, 6, bt.NumBoards(1))
	for gbd := 0; gbd < 6; gbd++ {
		assert.Equal(t, 1, bt.NumVariants(1, gbd))
		assert.EqualValues(t, 1, bt.BoardCount(1, gbd))
	}
}

func TestLocalGlobalRoundTrip(t *testing.T) {
	g := leducGame(t)
	bt := Build(g)
	for gbd := 0; gbd < bt.NumBoards(1); gbd++ {
		lbd := bt.LocalIndex(1, gbd, 1, gbd)
		assert.Equal(t, 0, lbd)
		assert.Equal(t, gbd, bt.GlobalIndex(1, gbd, 1, lbd))
	}
	assert.Equal(t, 3, bt.LocalIndex(0, 0, 1, 3))
	assert.Equal(t, 3, bt.GlobalIndex(0, 0, 1, 3))
}

func TestLookupBoard(t *testing.T) {
	g := flopGame(t)
	bt := Build(g)
	for _, gbd := range []int{0, 100, 1000, 1754} {
		found, err := bt.LookupBoard(bt.Board(1, gbd), 1)
		require.NoError(t, err)
		assert.Equal(t, gbd, found)
	}
}

func TestHandTreeSubtreeLocalBoards(t *testing.T) {
	g := leducGame(t)
	bt := Build(g)
	ev := eval.New(g)
	ht := NewHandTree(g, bt, ev, 1, 4, 1)
	assert.Equal(t, 1, ht.RootSt())
	assert.Equal(t, 4, ht.RootBd())
	hands := ht.Hands(1, 0)
	// Five hole cards remain once the board card is dealt.
	assert.Equal(t, 5, hands.NumRaw())
}
