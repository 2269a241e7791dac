package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/egsolver/internal/game"
)

func holdem(t *testing.T) *game.Game {
	t.Helper()
	g, err := game.New(game.Game{
		Name: "holdem", NumPlayers: 2, NumRanks: 13, NumSuits: 4,
		MaxStreet: 3, NumHoleCards: 2, StreetCards: []int{0, 3, 1, 1},
		SmallBlind: 50, BigBlind: 100,
	})
	require.NoError(t, err)
	return g
}

// c builds a card from rank index (0=deuce) and suit index.
func c(g *game.Game, rank, suit int) game.Card { return g.MakeCard(rank, suit) }

func TestHandOrdering(t *testing.T) {
	g := holdem(t)
	e := New(g)

	pair := e.Evaluate([]game.Card{c(g, 0, 0), c(g, 0, 1), c(g, 5, 2), c(g, 7, 3), c(g, 9, 0)})
	highCard := e.Evaluate([]game.Card{c(g, 0, 0), c(g, 2, 1), c(g, 5, 2), c(g, 7, 3), c(g, 9, 0)})
	assert.Greater(t, pair, highCard)

	straight := e.Evaluate([]game.Card{c(g, 2, 0), c(g, 3, 1), c(g, 4, 2), c(g, 5, 3), c(g, 6, 0)})
	trips := e.Evaluate([]game.Card{c(g, 8, 0), c(g, 8, 1), c(g, 8, 2), c(g, 5, 3), c(g, 9, 0)})
	assert.Greater(t, straight, trips)

	flush := e.Evaluate([]game.Card{c(g, 0, 1), c(g, 3, 1), c(g, 5, 1), c(g, 7, 1), c(g, 9, 1)})
	assert.Greater(t, flush, straight)

	boat := e.Evaluate([]game.Card{c(g, 8, 0), c(g, 8, 1), c(g, 8, 2), c(g, 5, 3), c(g, 5, 0)})
	assert.Greater(t, boat, flush)

	quads := e.Evaluate([]game.Card{c(g, 8, 0), c(g, 8, 1), c(g, 8, 2), c(g, 8, 3), c(g, 5, 0)})
	assert.Greater(t, quads, boat)

	sf := e.Evaluate([]game.Card{c(g, 2, 1), c(g, 3, 1), c(g, 4, 1), c(g, 5, 1), c(g, 6, 1)})
	assert.Greater(t, sf, quads)
}

func TestWheelStraight(t *testing.T) {
	g := holdem(t)
	e := New(g)
	wheel := e.Evaluate([]game.Card{c(g, 12, 0), c(g, 0, 1), c(g, 1, 2), c(g, 2, 3), c(g, 3, 0)})
	sixHigh := e.Evaluate([]game.Card{c(g, 0, 0), c(g, 1, 1), c(g, 2, 2), c(g, 3, 3), c(g, 4, 0)})
	assert.Greater(t, sixHigh, wheel)
	aceHighNoStraight := e.Evaluate([]game.Card{c(g, 12, 0), c(g, 0, 1), c(g, 1, 2), c(g, 2, 3), c(g, 5, 0)})
	assert.Greater(t, wheel, aceHighNoStraight)
}

func TestSevenCardPicksBestFive(t *testing.T) {
	g := holdem(t)
	e := New(g)
	// Board pair plus a flush hiding in seven cards.
	sevenFlush := e.Evaluate([]game.Card{
		c(g, 0, 1), c(g, 3, 1), c(g, 5, 1), c(g, 7, 1), c(g, 9, 1), c(g, 9, 2), c(g, 2, 3),
	})
	fiveFlush := e.Evaluate([]game.Card{c(g, 0, 1), c(g, 3, 1), c(g, 5, 1), c(g, 7, 1), c(g, 9, 1)})
	assert.Equal(t, fiveFlush, sevenFlush)
}

func TestShortHands(t *testing.T) {
	g, err := game.New(game.Game{
		Name: "leduc", NumPlayers: 2, NumRanks: 3, NumSuits: 2,
		MaxStreet: 1, NumHoleCards: 1, StreetCards: []int{0, 1},
		SmallBlind: 1, BigBlind: 1,
	})
	require.NoError(t, err)
	e := New(g)
	pair := e.Evaluate([]game.Card{c(g, 1, 0), c(g, 1, 1)})
	highKing := e.Evaluate([]game.Card{c(g, 2, 0), c(g, 1, 1)})
	lowPair := e.Evaluate([]game.Card{c(g, 0, 0), c(g, 0, 1)})
	assert.Greater(t, pair, highKing)
	assert.Greater(t, pair, lowPair)
	single := e.Evaluate([]game.Card{c(g, 2, 0)})
	lower := e.Evaluate([]game.Card{c(g, 1, 0)})
	assert.Greater(t, single, lower)
}
