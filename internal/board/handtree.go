package board

import (
	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
)

// HandTree caches the CanonicalHands of every board in one subtree,
// keyed by (street, local board index). Built when a trunk walk or a
// subgame begins and discarded with it; the arrays exist purely so that
// "for each hand on this board" iterates in the canonical order the
// strategy store expects.
type HandTree struct {
	g      *game.Game
	rootSt int
	rootBd int
	hands  [][]*CanonicalHands
}

// NewHandTree enumerates hands for every board from (rootSt, rootBd)
// down to finalSt inclusive.
func NewHandTree(g *game.Game, bt *Tree, ev *eval.Evaluator, rootSt, rootBd, finalSt int) *HandTree {
	h := &HandTree{g: g, rootSt: rootSt, rootBd: rootBd}
	h.hands = make([][]*CanonicalHands, finalSt+1)
	for st := rootSt; st <= finalSt; st++ {
		num := bt.NumLocalBoards(rootSt, rootBd, st)
		h.hands[st] = make([]*CanonicalHands, num)
		for lbd := 0; lbd < num; lbd++ {
			gbd := bt.GlobalIndex(rootSt, rootBd, st, lbd)
			var e *eval.Evaluator
			if st == g.MaxStreet {
				e = ev
			}
			h.hands[st][lbd] = newCanonicalHands(g, bt.Board(st, gbd), e)
		}
	}
	return h
}

// Hands returns the holdings of the street-st board with local index
// lbd.
func (h *HandTree) Hands(st, lbd int) *CanonicalHands {
	return h.hands[st][lbd]
}

// RootSt returns the street this hand tree is rooted at.
func (h *HandTree) RootSt() int { return h.rootSt }

// RootBd returns the global board index of the root.
func (h *HandTree) RootBd() int { return h.rootBd }
