// Package strategy implements the CFR value store: regrets or
// accumulated strategy (sumprobs) for every (player, street,
// betting-node) slot, held as int32 or float64 arrays keyed by either
// (local board, hole-card pair, successor) or (bucket, successor).
//
// A store spans one betting tree rooted at a declared (root board
// street, root board); full-tree stores use root (0, 0). Layout is
// identical for regrets and sumprobs; only the update semantics differ.
package strategy

import (
	"fmt"
	"math"

	"github.com/lox/egsolver/internal/abstraction"
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/game"
)

// Values is the four-dimensional variant container described above.
// For each (player, street) at most one of the int and double planes is
// populated.
type Values struct {
	g          *game.Game
	bt         *board.Tree
	tree       *betting.Tree
	players    [2]bool
	sumprobs   bool
	streets    []bool
	rootBdSt   int
	rootBd     int
	ca         *abstraction.CardAbstraction
	buckets    *abstraction.Buckets
	compressed []bool

	numCardHoldings   []int
	numBucketHoldings []int

	iValues [2][][][]int32
	dValues [2][][][]float64
}

// Params collects the constructor arguments for a Values store.
type Params struct {
	Players    *[2]bool // nil means both players
	Sumprobs   bool
	Streets    []bool // nil means every street
	RootBdSt   int
	RootBd     int
	Compressed []bool // nil means uncompressed everywhere
}

// New builds an empty store over tree. Storage is materialised later by
// AllocateAndClear or by a read.
func New(g *game.Game, bt *board.Tree, tree *betting.Tree, ca *abstraction.CardAbstraction,
	buckets *abstraction.Buckets, p Params) *Values {
	maxSt := g.MaxStreet
	v := &Values{
		g:        g,
		bt:       bt,
		tree:     tree,
		sumprobs: p.Sumprobs,
		rootBdSt: p.RootBdSt,
		rootBd:   p.RootBd,
		ca:       ca,
		buckets:  buckets,
	}
	if p.Players == nil {
		v.players = [2]bool{true, true}
	} else {
		v.players = *p.Players
	}
	v.streets = make([]bool, maxSt+1)
	for st := 0; st <= maxSt; st++ {
		if p.Streets == nil {
			v.streets[st] = true
		} else {
			v.streets[st] = p.Streets[st]
		}
	}
	v.compressed = make([]bool, maxSt+1)
	if p.Compressed != nil {
		copy(v.compressed, p.Compressed)
	}
	v.numCardHoldings = make([]int, maxSt+1)
	v.numBucketHoldings = make([]int, maxSt+1)
	for st := 0; st <= maxSt; st++ {
		if st >= p.RootBdSt {
			v.numCardHoldings[st] = bt.NumLocalBoards(p.RootBdSt, p.RootBd, st) * g.NumHoleCardPairs(st)
		}
		v.numBucketHoldings[st] = buckets.NumBuckets(st)
	}
	for p2 := 0; p2 < 2; p2++ {
		v.iValues[p2] = make([][][]int32, maxSt+1)
		v.dValues[p2] = make([][][]float64, maxSt+1)
	}
	return v
}

// Sumprobs reports whether this store holds sumprobs rather than
// regrets.
func (v *Values) Sumprobs() bool { return v.sumprobs }

// Player reports whether player p's values are stored.
func (v *Values) Player(p int) bool { return v.players[p] }

// Street reports whether street st is covered.
func (v *Values) Street(st int) bool { return v.streets[st] }

// RootBdSt returns the street of the store's root board.
func (v *Values) RootBdSt() int { return v.rootBdSt }

// RootBd returns the store's root board.
func (v *Values) RootBd() int { return v.rootBd }

// Bucketed reports whether (player, street) uses the bucket layout.
func (v *Values) Bucketed(st int) bool { return !v.buckets.None(st) }

// NumHoldings returns the first-dimension size of a street's arrays:
// buckets for bucketed streets, local boards times hole-card pairs
// otherwise.
func (v *Values) NumHoldings(st int) int {
	if v.Bucketed(st) {
		return v.numBucketHoldings[st]
	}
	return v.numCardHoldings[st]
}

// NumNonterminals returns the nonterminal count for sizing (player,
// street) slots.
func (v *Values) NumNonterminals(p, st int) int { return v.tree.NumNonterminals(p, st) }

// Ints reports whether (p, st) holds int values.
func (v *Values) Ints(p, st int) bool { return v.iValues[p][st] != nil }

// Doubles reports whether (p, st) holds double values.
func (v *Values) Doubles(p, st int) bool { return v.dValues[p][st] != nil }

// IValues returns the int array for a node slot.
func (v *Values) IValues(p, st, nt int) []int32 { return v.iValues[p][st][nt] }

// DValues returns the double array for a node slot.
func (v *Values) DValues(p, st, nt int) []float64 { return v.dValues[p][st][nt] }

// SetIValues replaces the int array for a node slot.
func (v *Values) SetIValues(p, st, nt int, vals []int32) { v.iValues[p][st][nt] = vals }

// SetDValues replaces the double array for a node slot.
func (v *Values) SetDValues(p, st, nt int, vals []float64) { v.dValues[p][st][nt] = vals }

// AllocateAndClearInts materialises zeroed int storage for every node
// reachable from node whose (player, street) is within the configured
// masks. onlyP restricts to one player; pass -1 for all.
func (v *Values) AllocateAndClearInts(node *betting.Node, onlyP int) {
	v.allocate(node, onlyP, true)
}

// AllocateAndClearDoubles is AllocateAndClearInts for double storage.
func (v *Values) AllocateAndClearDoubles(node *betting.Node, onlyP int) {
	v.allocate(node, onlyP, false)
}

func (v *Values) allocate(node *betting.Node, onlyP int, ints bool) {
	if node.IsTerminal() {
		return
	}
	st := node.St
	p := node.PlayerActing
	if v.streets[st] && v.players[p] && (onlyP < 0 || p == onlyP) {
		nt := node.NonterminalID
		if v.iValues[p][st] == nil && v.dValues[p][st] == nil {
			n := v.tree.NumNonterminals(p, st)
			if ints {
				v.iValues[p][st] = make([][]int32, n)
			} else {
				v.dValues[p][st] = make([][]float64, n)
			}
		}
		size := v.NumHoldings(st) * node.NumSuccs()
		if ints {
			if v.iValues[p][st] == nil {
				panic(fmt.Sprintf("mixed int/double allocation at p%d st%d", p, st))
			}
			v.iValues[p][st][nt] = make([]int32, size)
		} else {
			if v.dValues[p][st] == nil {
				panic(fmt.Sprintf("mixed int/double allocation at p%d st%d", p, st))
			}
			v.dValues[p][st][nt] = make([]float64, size)
		}
	}
	for s := 0; s < node.NumSuccs(); s++ {
		v.allocate(v.tree.Succ(node, s), onlyP, ints)
	}
}

// Prob interprets the entry at offset+s as a non-negative
// current-strategy weight and normalises it against the sum across
// successors, falling back to pure play of the default successor when
// the sum is zero.
func (v *Values) Prob(p, st, nt, offset, s, numSuccs, dsi int) float64 {
	if v.Ints(p, st) {
		vals := v.iValues[p][st][nt]
		var sum int64
		for s2 := 0; s2 < numSuccs; s2++ {
			sum += int64(vals[offset+s2])
		}
		if sum == 0 {
			if s == dsi {
				return 1.0
			}
			return 0
		}
		return float64(vals[offset+s]) / float64(sum)
	}
	vals := v.dValues[p][st][nt]
	sum := 0.0
	for s2 := 0; s2 < numSuccs; s2++ {
		sum += vals[offset+s2]
	}
	if sum == 0 {
		if s == dsi {
			return 1.0
		}
		return 0
	}
	return vals[offset+s] / sum
}

// HoldingOffset returns the first-dimension offset of a holding at a
// node: bucket*numSuccs for bucketed streets, (lbd*numHoleCardPairs +
// hcp)*numSuccs otherwise.
func (v *Values) HoldingOffset(st, lbd, hcpOrBucket, numSuccs int) int {
	if v.Bucketed(st) {
		return hcpOrBucket * numSuccs
	}
	return (lbd*v.g.NumHoleCardPairs(st) + hcpOrBucket) * numSuccs
}

// FloorRegretsStreet clamps every stored regret on street st below
// floor up to floor. Used by the bucketed CFR+ post-pass, which
// accumulates unfloored during the walk.
func (v *Values) FloorRegretsStreet(node *betting.Node, st int, floor int32) {
	if node.IsTerminal() {
		return
	}
	p := node.PlayerActing
	if node.St == st && v.streets[st] && v.players[p] {
		nt := node.NonterminalID
		if v.Ints(p, st) {
			vals := v.iValues[p][st][nt]
			for i, x := range vals {
				if x < floor {
					vals[i] = floor
				}
			}
		} else if v.Doubles(p, st) {
			vals := v.dValues[p][st][nt]
			f := float64(floor)
			for i, x := range vals {
				if x < f {
					vals[i] = f
				}
			}
		}
	}
	for s := 0; s < node.NumSuccs(); s++ {
		v.FloorRegretsStreet(v.tree.Succ(node, s), st, floor)
	}
}

func roundToInt32(x float64) int32 {
	r := math.Round(x)
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	if r < math.MinInt32 {
		return math.MinInt32
	}
	return int32(r)
}
