package cfr

import (
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/game"
)

// State is the bundle of values carried through one recursion: the
// opponent reach vector with its aggregates, the lazily refreshed
// per-street bucket ids, the textual action sequence (the identity of
// persisted artefacts), and the active hand tree's root coordinates.
//
// Opponent-choice nodes fork the reach arrays; everything else is
// shared down the walk.
type State struct {
	OppProbs       []float64
	SumOppProbs    float64
	TotalCardProbs []float64
	StreetBuckets  [][]int
	ActionSequence string
	RootBdSt       int
	RootBd         int
	HandTree       *board.HandTree
}

// AllocateStreetBuckets sizes the per-street bucket scratch arrays.
func AllocateStreetBuckets(g *game.Game) [][]int {
	sb := make([][]int, g.MaxStreet+1)
	for st := 0; st <= g.MaxStreet; st++ {
		sb[st] = make([]int, g.NumHoleCardPairs(st))
	}
	return sb
}

// AllocateOppProbs returns a reach vector sized for the encoding space,
// optionally initialised to 1.0 everywhere.
func AllocateOppProbs(g *game.Game, initialize bool) []float64 {
	probs := make([]float64, g.NumHandEncodings())
	if initialize {
		for i := range probs {
			probs[i] = 1.0
		}
	}
	return probs
}

// NewRootState builds the state for a walk from the root of handTree.
// The aggregates are computed immediately because an open fold can be
// reached before any opponent choice.
func NewRootState(g *game.Game, oppProbs []float64, streetBuckets [][]int, handTree *board.HandTree) *State {
	s := &State{
		OppProbs:       oppProbs,
		TotalCardProbs: make([]float64, int(g.MaxCard())+1),
		StreetBuckets:  streetBuckets,
		ActionSequence: "x",
		RootBdSt:       handTree.RootSt(),
		RootBd:         handTree.RootBd(),
		HandTree:       handTree,
	}
	s.SumOppProbs = CommonBetResponseCalcs(g, handTree.Hands(handTree.RootSt(), 0), oppProbs, s.TotalCardProbs)
	return s
}

// ourSucc derives the state for taking one of our actions: everything
// shared, the action sequence extended.
func (s *State) ourSucc(action string) *State {
	next := *s
	next.ActionSequence = s.ActionSequence + action
	return &next
}

// oppSucc derives the state for an opponent action with its scaled
// reach vector and fresh aggregates.
func (s *State) oppSucc(action string, oppProbs []float64, sumOppProbs float64, totalCardProbs []float64) *State {
	next := *s
	next.ActionSequence = s.ActionSequence + action
	next.OppProbs = oppProbs
	next.SumOppProbs = sumOppProbs
	next.TotalCardProbs = totalCardProbs
	return &next
}
