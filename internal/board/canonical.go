// Package board enumerates canonical boards and holdings under suit
// isomorphism. Two deals are isomorphic when a relabelling of suits maps
// one to the other; we store values once per canonical representative
// and copy them to the other members of the equivalence class.
package board

import (
	"sort"

	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
)

// maxSuits bounds the suit permutation search; real decks have four.
const maxSuits = 4

// suitGroups partitions suits into interchangeability classes given the
// cards on the board: suits with identical rank multisets may be
// swapped without changing the board.
type suitGroups [maxSuits]uint8

// boardSuitGroups partitions per street, not over the flat card set:
// two suits that carry the same ranks overall but received them on
// different streets are not interchangeable, because swapping them
// changes which deal history the board represents.
func boardSuitGroups(g *game.Game, board []game.Card) suitGroups {
	var groups suitGroups
	sigs := make([][]byte, g.NumSuits)
	off := 0
	for st := 1; st <= g.MaxStreet && off < len(board); st++ {
		k := g.StreetCards[st]
		segment := board[off : off+k]
		off += k
		for s := 0; s < g.NumSuits; s++ {
			ranks := []byte{}
			for _, c := range segment {
				if g.Suit(c) == s {
					ranks = append(ranks, byte(g.Rank(c)))
				}
			}
			sort.Slice(ranks, func(i, j int) bool { return ranks[i] < ranks[j] })
			sigs[s] = append(append(sigs[s], ranks...), 0xff)
		}
	}
	next := uint8(0)
	assigned := map[string]uint8{}
	for s := 0; s < g.NumSuits; s++ {
		id, ok := assigned[string(sigs[s])]
		if !ok {
			id = next
			assigned[string(sigs[s])] = id
			next++
		}
		groups[s] = id
	}
	return groups
}

// automorphisms returns every suit permutation that maps each suit to a
// suit in the same group. These are exactly the permutations that fix
// the board as a set.
func automorphisms(g *game.Game, groups suitGroups) [][]int {
	n := g.NumSuits
	perm := make([]int, n)
	used := make([]bool, n)
	var out [][]int
	var rec func(i int)
	rec = func(i int) {
		if i == n {
			out = append(out, append([]int(nil), perm...))
			return
		}
		for s := 0; s < n; s++ {
			if !used[s] && groups[s] == groups[i] {
				used[s] = true
				perm[i] = s
				rec(i + 1)
				used[s] = false
			}
		}
	}
	rec(0)
	return out
}

// applyPerm relabels the suits of cards by perm and returns the result
// sorted descending, the normal form for comparing card sets.
func applyPerm(g *game.Game, cards []game.Card, perm []int) []game.Card {
	out := make([]game.Card, len(cards))
	for i, c := range cards {
		out[i] = g.MakeCard(g.Rank(c), perm[g.Suit(c)])
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

func cardsLess(a, b []game.Card) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// canonicalForm returns the representative of the orbit of cards under
// the given automorphisms: the lexicographically greatest relabelling.
func canonicalForm(g *game.Game, cards []game.Card, perms [][]int) []game.Card {
	var best []game.Card
	for _, p := range perms {
		cand := applyPerm(g, cards, p)
		if best == nil || cardsLess(best, cand) {
			best = cand
		}
	}
	return best
}

func cardsKey(cards []game.Card) string {
	b := make([]byte, len(cards))
	for i, c := range cards {
		b[i] = byte(c)
	}
	return string(b)
}

// CanonicalHands lists every holding on one board, in the iteration
// order the CFR engine walks: hole-card-pair order on early streets,
// hand-strength order on the last street. Non-canonical holdings carry
// zero variants and point at their canonical twin.
type CanonicalHands struct {
	n           int // cards per holding
	cards       []game.Card
	handValues  []int
	numVariants []uint8
	canon       []int
	numRaw      int
	numCanon    int
}

// NumRaw returns the number of holdings listed, canonical or not.
func (c *CanonicalHands) NumRaw() int { return c.numRaw }

// NumCanon returns the number of canonical holdings.
func (c *CanonicalHands) NumCanon() int { return c.numCanon }

// N returns the number of cards per holding.
func (c *CanonicalHands) N() int { return c.n }

// Cards returns the cards of holding i, highest first.
func (c *CanonicalHands) Cards(i int) []game.Card {
	return c.cards[i*c.n : (i+1)*c.n]
}

// HandValue returns the showdown strength of holding i. Only populated
// on the last street.
func (c *CanonicalHands) HandValue(i int) int { return c.handValues[i] }

// NumVariants returns how many raw holdings collapse onto holding i;
// zero when i is not canonical.
func (c *CanonicalHands) NumVariants(i int) int { return int(c.numVariants[i]) }

// Canon returns the index of the canonical representative of holding i.
func (c *CanonicalHands) Canon(i int) int { return c.canon[i] }

// newCanonicalHands enumerates the holdings available on board, in
// hole-card-pair order. When ev is non-nil the holdings are re-sorted
// ascending by showdown strength (the last-street convention).
func newCanonicalHands(g *game.Game, boardCards []game.Card, ev *eval.Evaluator) *CanonicalHands {
	n := g.NumHoleCards
	avail := make([]game.Card, 0, g.NumCardsInDeck())
	for c := game.Card(0); c <= g.MaxCard(); c++ {
		if !game.InCards(c, boardCards) {
			avail = append(avail, c)
		}
	}

	ch := &CanonicalHands{n: n}
	if n == 1 {
		for _, c := range avail {
			ch.cards = append(ch.cards, c)
		}
	} else {
		// hi ascending, then lo ascending: matches HCPIndex.
		for hiIdx := 1; hiIdx < len(avail); hiIdx++ {
			for loIdx := 0; loIdx < hiIdx; loIdx++ {
				ch.cards = append(ch.cards, avail[hiIdx], avail[loIdx])
			}
		}
	}
	ch.numRaw = len(ch.cards) / n

	if ev != nil {
		ch.handValues = make([]int, ch.numRaw)
		full := make([]game.Card, 0, n+len(boardCards))
		order := make([]int, ch.numRaw)
		for i := range order {
			order[i] = i
			full = full[:0]
			full = append(full, ch.cards[i*n:(i+1)*n]...)
			full = append(full, boardCards...)
			ch.handValues[i] = ev.Evaluate(full)
		}
		sort.SliceStable(order, func(a, b int) bool {
			return ch.handValues[order[a]] < ch.handValues[order[b]]
		})
		cards := make([]game.Card, len(ch.cards))
		values := make([]int, ch.numRaw)
		for dst, src := range order {
			copy(cards[dst*n:(dst+1)*n], ch.cards[src*n:(src+1)*n])
			values[dst] = ch.handValues[src]
		}
		ch.cards = cards
		ch.handValues = values
	}

	groups := boardSuitGroups(g, boardCards)
	perms := automorphisms(g, groups)
	ch.numVariants = make([]uint8, ch.numRaw)
	ch.canon = make([]int, ch.numRaw)
	index := make(map[string]int, ch.numRaw)
	for i := 0; i < ch.numRaw; i++ {
		norm := append([]game.Card(nil), ch.Cards(i)...)
		sort.Slice(norm, func(a, b int) bool { return norm[a] > norm[b] })
		index[cardsKey(norm)] = i
	}
	for i := 0; i < ch.numRaw; i++ {
		form := canonicalForm(g, ch.Cards(i), perms)
		ci, ok := index[cardsKey(form)]
		if !ok {
			ci = i
		}
		ch.canon[i] = ci
		ch.numVariants[ci]++
	}
	for i := 0; i < ch.numRaw; i++ {
		if ch.canon[i] != i {
			ch.numVariants[i] = 0
		} else {
			ch.numCanon++
		}
	}
	return ch
}

// HCPIndex returns the hole-card-pair index of a holding on the given
// board: the position the holding occupies in pair enumeration order,
// skipping board cards. On the last street this is the pre-sort index
// used for bucket lookup.
func HCPIndex(g *game.Game, boardCards []game.Card, hole []game.Card) int {
	below := func(c game.Card) int {
		k := 0
		for _, b := range boardCards {
			if b < c {
				k++
			}
		}
		return int(c) - k
	}
	if g.NumHoleCards == 1 {
		return below(hole[0])
	}
	hi, lo := hole[0], hole[1]
	if lo > hi {
		hi, lo = lo, hi
	}
	hp, lp := below(hi), below(lo)
	return hp*(hp-1)/2 + lp
}
