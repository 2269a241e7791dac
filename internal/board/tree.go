package board

import (
	"fmt"
	"sort"

	"github.com/lox/egsolver/internal/game"
)

// Tree enumerates the canonical boards of every street, with the
// successor/predecessor structure the CFR recursion walks. Boards on a
// street are grouped by their predecessor, so the successors of any
// board form a contiguous global-index range. A Tree is immutable after
// Build.
type Tree struct {
	g        *game.Game
	boards   [][]game.Card // boards[st] holds NumBoards(st) boards, flattened
	counts   [][]int64     // raw deals collapsing onto each canonical board
	variants [][]int       // raw extensions from the canonical predecessor
	preds    [][]int       // predecessor gbd on st-1
	succLo   [][]int       // per (st, gbd): successor range on st+1
	succHi   [][]int
}

// Build enumerates every street's canonical boards.
func Build(g *game.Game) *Tree {
	t := &Tree{g: g}
	maxSt := g.MaxStreet
	t.boards = make([][]game.Card, maxSt+1)
	t.counts = make([][]int64, maxSt+1)
	t.variants = make([][]int, maxSt+1)
	t.preds = make([][]int, maxSt+1)
	t.succLo = make([][]int, maxSt+1)
	t.succHi = make([][]int, maxSt+1)

	// Street 0: the single empty board.
	t.boards[0] = []game.Card{}
	t.counts[0] = []int64{1}
	t.variants[0] = []int{1}
	t.preds[0] = []int{-1}

	for st := 1; st <= maxSt; st++ {
		t.extendStreet(st)
	}
	return t
}

func (t *Tree) extendStreet(st int) {
	g := t.g
	pst := st - 1
	k := g.StreetCards[st]
	numPrev := t.NumBoards(pst)
	t.succLo[pst] = make([]int, numPrev)
	t.succHi[pst] = make([]int, numPrev)

	for pgbd := 0; pgbd < numPrev; pgbd++ {
		prev := t.Board(pst, pgbd)
		groups := boardSuitGroups(g, prev)
		perms := automorphisms(g, groups)
		avail := make([]game.Card, 0, g.NumCardsInDeck())
		for c := game.Card(0); c <= g.MaxCard(); c++ {
			if !game.InCards(c, prev) {
				avail = append(avail, c)
			}
		}
		t.succLo[pst][pgbd] = t.NumBoards(st)
		type entry struct {
			gbd      int
			variants int
		}
		seen := map[string]*entry{}
		combo := make([]int, k)
		var rec func(pos, start int)
		rec = func(pos, start int) {
			if pos == k {
				ext := make([]game.Card, k)
				for i, idx := range combo {
					ext[i] = avail[idx]
				}
				form := canonicalForm(g, ext, perms)
				key := cardsKey(form)
				e, ok := seen[key]
				if !ok {
					gbd := t.NumBoards(st)
					full := append(append([]game.Card(nil), prev...), form...)
					t.boards[st] = append(t.boards[st], full...)
					t.preds[st] = append(t.preds[st], pgbd)
					t.variants[st] = append(t.variants[st], 0)
					t.counts[st] = append(t.counts[st], 0)
					e = &entry{gbd: gbd}
					seen[key] = e
				}
				e.variants++
				return
			}
			for i := start; i < len(avail); i++ {
				combo[pos] = i
				rec(pos+1, i+1)
			}
		}
		rec(0, 0)
		t.succHi[pst][pgbd] = t.NumBoards(st)
		for _, e := range seen {
			t.variants[st][e.gbd] = e.variants
			t.counts[st][e.gbd] = t.counts[pst][pgbd] * int64(e.variants)
		}
	}
}

// NumBoards returns the number of canonical boards on street st.
func (t *Tree) NumBoards(st int) int {
	n := t.g.NumBoardCards(st)
	if n == 0 {
		return 1
	}
	return len(t.boards[st]) / n
}

// Board returns the community cards of canonical board gbd on street st.
func (t *Tree) Board(st, gbd int) []game.Card {
	n := t.g.NumBoardCards(st)
	return t.boards[st][gbd*n : (gbd+1)*n]
}

// BoardCount returns how many raw deals collapse onto this canonical
// board.
func (t *Tree) BoardCount(st, gbd int) int64 { return t.counts[st][gbd] }

// NumVariants returns how many raw street-st extensions of the
// canonical predecessor collapse onto this board.
func (t *Tree) NumVariants(st, gbd int) int { return t.variants[st][gbd] }

// PredBoard returns the ancestor board of gbd on an earlier street.
func (t *Tree) PredBoard(st, gbd, earlierSt int) int {
	for st > earlierSt {
		gbd = t.preds[st][gbd]
		st--
	}
	return gbd
}

// SuccBoardBegin returns the first street-nst global board reachable
// from (pst, pgbd); SuccBoardEnd the half-open upper bound. The range is
// contiguous because boards are enumerated grouped by predecessor.
func (t *Tree) SuccBoardBegin(pst, pgbd, nst int) int {
	lo := pgbd
	for st := pst; st < nst; st++ {
		lo = t.succLo[st][lo]
	}
	return lo
}

// SuccBoardEnd returns the half-open upper bound of the successor range.
func (t *Tree) SuccBoardEnd(pst, pgbd, nst int) int {
	end := pgbd + 1
	for st := pst; st < nst; st++ {
		end = t.succHi[st][end-1]
	}
	return end
}

// LocalIndex converts a global board index on street st to the index
// local to the subtree rooted at (rootSt, rootBd).
func (t *Tree) LocalIndex(rootSt, rootBd, st, gbd int) int {
	if rootSt == 0 {
		return gbd
	}
	if st == rootSt {
		return 0
	}
	return gbd - t.SuccBoardBegin(rootSt, rootBd, st)
}

// GlobalIndex converts a subtree-local board index back to the global
// index space.
func (t *Tree) GlobalIndex(rootSt, rootBd, st, lbd int) int {
	if rootSt == 0 {
		return lbd
	}
	if st == rootSt {
		return rootBd
	}
	return t.SuccBoardBegin(rootSt, rootBd, st) + lbd
}

// NumLocalBoards returns how many street-st boards lie under the
// subtree rooted at (rootSt, rootBd).
func (t *Tree) NumLocalBoards(rootSt, rootBd, st int) int {
	if rootSt == 0 {
		return t.NumBoards(st)
	}
	if st == rootSt {
		return 1
	}
	return t.SuccBoardEnd(rootSt, rootBd, st) - t.SuccBoardBegin(rootSt, rootBd, st)
}

// LookupBoard returns the canonical global index of a concrete card
// sequence on street st. The sequence is matched street by street: a
// single suit relabelling must carry every street's cards onto the
// canonical board's cards for that street.
func (t *Tree) LookupBoard(cards []game.Card, st int) (int, error) {
	g := t.g
	if len(cards) < g.NumBoardCards(st) {
		return 0, fmt.Errorf("lookup board: need %d cards, have %d", g.NumBoardCards(st), len(cards))
	}
	var all suitGroups
	perms := automorphisms(g, all) // every suit permutation
	numBoards := t.NumBoards(st)
	for gbd := 0; gbd < numBoards; gbd++ {
		cand := t.Board(st, gbd)
		for _, p := range perms {
			ok := true
			off := 0
			for s := 1; s <= st && ok; s++ {
				k := g.StreetCards[s]
				ok = sameSet(applyPerm(g, cards[off:off+k], p), normalized(cand[off:off+k]))
				off += k
			}
			if ok {
				return gbd, nil
			}
		}
	}
	return 0, fmt.Errorf("board %s not found on street %d", g.CardsName(cards[:g.NumBoardCards(st)]), st)
}

func normalized(cards []game.Card) []game.Card {
	out := append([]game.Card(nil), cards...)
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

func sameSet(a, b []game.Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
