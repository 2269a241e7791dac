package cfr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
)

func holdemRiver(t *testing.T) (*game.Game, *board.Tree, *board.HandTree) {
	t.Helper()
	g, err := game.New(game.Game{
		Name: "mini", NumPlayers: 2, NumRanks: 6, NumSuits: 2,
		MaxStreet: 1, NumHoleCards: 2, StreetCards: []int{0, 1},
		SmallBlind: 1, BigBlind: 2,
	})
	require.NoError(t, err)
	bt := board.Build(g)
	ht := board.NewHandTree(g, bt, eval.New(g), 0, 0, 1)
	return g, bt, ht
}

func TestShowdownValuesSumToZero(t *testing.T) {
	g, bt, ht := holdemRiver(t)
	node := &betting.Node{St: 1, Terminal: betting.Showdown, LastBetTo: 10, PotSize: 20}
	for lbd := 0; lbd < bt.NumBoards(1); lbd++ {
		hands := ht.Hands(1, lbd)
		oppProbs := AllocateOppProbs(g, true)
		totalCardProbs := make([]float64, int(g.MaxCard())+1)
		sumOppProbs := CommonBetResponseCalcs(g, hands, oppProbs, totalCardProbs)
		vals := Showdown(g, node, hands, oppProbs, sumOppProbs, totalCardProbs)
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		assert.InDelta(t, 0.0, sum, 1e-9*float64(node.PotSize)*float64(len(vals)))
	}
}

func TestFoldLeafFormula(t *testing.T) {
	g, _, ht := holdemRiver(t)
	hands := ht.Hands(1, 0)
	oppProbs := AllocateOppProbs(g, true)
	totalCardProbs := make([]float64, int(g.MaxCard())+1)
	sumOppProbs := CommonBetResponseCalcs(g, hands, oppProbs, totalCardProbs)

	node := &betting.Node{St: 1, PlayerActing: 0, Terminal: betting.Fold, LastBetTo: 100}
	vals := Fold(g, node, 0, hands, oppProbs, sumOppProbs, totalCardProbs)
	for i := 0; i < hands.NumRaw(); i++ {
		cards := hands.Cards(i)
		hi, lo := cards[0], cards[1]
		enc := g.HandEncoding(hi, lo)
		want := -100.0 * (sumOppProbs - totalCardProbs[hi] - totalCardProbs[lo] + oppProbs[enc])
		assert.InDelta(t, want, vals[i], 1e-9)
	}

	// Swapping the folder negates every entry.
	other := &betting.Node{St: 1, PlayerActing: 1, Terminal: betting.Fold, LastBetTo: 100}
	flipped := Fold(g, other, 0, hands, oppProbs, sumOppProbs, totalCardProbs)
	for i := range vals {
		assert.InDelta(t, -vals[i], flipped[i], 1e-12)
	}
}

func TestRegretsToProbs(t *testing.T) {
	probs := make([]float64, 3)

	// Zero regrets: pure play of the default successor.
	RegretsToProbs([]float64{0, 0, 0}, 3, true, false, 1, 0, 0, nil, probs)
	assert.Equal(t, []float64{0, 1, 0}, probs)

	// Zero regrets with the uniform fallback.
	RegretsToProbs([]float64{0, 0, 0}, 3, true, true, 1, 0, 0, nil, probs)
	for _, p := range probs {
		assert.InDelta(t, 1.0/3.0, p, 1e-12)
	}

	// Positive regrets normalise; negatives clip.
	RegretsToProbs([]float64{3, -2, 1}, 3, false, false, 0, 0, 0, nil, probs)
	assert.InDelta(t, 0.75, probs[0], 1e-12)
	assert.InDelta(t, 0.0, probs[1], 1e-12)
	assert.InDelta(t, 0.25, probs[2], 1e-12)

	// Int weights behave identically.
	RegretsToProbs([]int32{1, 1, 2}, 3, true, false, 0, 0, 0, nil, probs)
	assert.InDelta(t, 0.25, probs[0], 1e-12)
	assert.InDelta(t, 0.5, probs[2], 1e-12)

	// Exploration floors every nonterminal successor.
	nonterminal := []bool{true, true, false}
	RegretsToProbs([]float64{1, 0, 0}, 3, true, false, 0, 0.05, 2, nonterminal, probs)
	assert.InDelta(t, 0.05, probs[1], 1e-12)
	sum := probs[0] + probs[1] + probs[2]
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestPureProbs(t *testing.T) {
	probs := make([]float64, 3)
	PureProbs([]float64{0.2, 0.5, 0.3}, 3, probs)
	assert.Equal(t, []float64{0, 1, 0}, probs)
	PureProbs([]int32{7, 3, 1}, 3, probs)
	assert.Equal(t, []float64{1, 0, 0}, probs)
}

func TestCommonBetResponseCalcs(t *testing.T) {
	g, _, ht := holdemRiver(t)
	hands := ht.Hands(0, 0)
	oppProbs := AllocateOppProbs(g, false)
	// Mass on a single holding.
	cards := hands.Cards(4)
	enc := g.HandEncoding(cards[0], cards[1])
	oppProbs[enc] = 0.5
	totalCardProbs := make([]float64, int(g.MaxCard())+1)
	sum := CommonBetResponseCalcs(g, hands, oppProbs, totalCardProbs)
	assert.InDelta(t, 0.5, sum, 1e-12)
	assert.InDelta(t, 0.5, totalCardProbs[cards[0]], 1e-12)
	assert.InDelta(t, 0.5, totalCardProbs[cards[1]], 1e-12)
	var nonzero int
	for _, x := range totalCardProbs {
		if x != 0 {
			nonzero++
		}
	}
	assert.Equal(t, 2, nonzero)
}

func TestShowdownBlockerAccounting(t *testing.T) {
	// Two-hand sanity check: with only one live opponent hand that we
	// beat, our value is the half pot times its reach.
	g, _, ht := holdemRiver(t)
	hands := ht.Hands(1, 0)
	oppProbs := AllocateOppProbs(g, false)

	best := hands.NumRaw() - 1
	worst := 0
	require.Greater(t, hands.HandValue(best), hands.HandValue(worst))
	if blocked(hands.Cards(best), hands.Cards(worst)) {
		worst = 1
	}
	oppProbs[g.HandEncoding(hands.Cards(worst)[0], hands.Cards(worst)[1])] = 1.0

	node := &betting.Node{St: 1, Terminal: betting.Showdown, LastBetTo: 6}
	totalCardProbs := make([]float64, int(g.MaxCard())+1)
	sumOppProbs := CommonBetResponseCalcs(g, hands, oppProbs, totalCardProbs)
	vals := Showdown(g, node, hands, oppProbs, sumOppProbs, totalCardProbs)
	assert.InDelta(t, 6.0, vals[best], 1e-9)
	assert.True(t, math.Signbit(vals[worst]) || vals[worst] == 0)
}

func blocked(a, b []game.Card) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
