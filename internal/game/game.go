// Package game defines the rules-level description of the game being
// solved: deck dimensions, streets, board cards per street, blinds and
// stacks. A Game value is built once at startup and passed explicitly to
// every component; nothing in this package mutates after construction.
package game

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Game describes the game under study. MaxStreet is the index of the
// last street; street 0 is the hole-card street.
type Game struct {
	Name            string `hcl:"name"`
	NumPlayers      int    `hcl:"num_players"`
	NumRanks        int    `hcl:"num_ranks"`
	NumSuits        int    `hcl:"num_suits"`
	MaxStreet       int    `hcl:"max_street"`
	NumHoleCards    int    `hcl:"num_hole_cards"`
	StreetCards     []int  `hcl:"street_cards"` // board cards dealt per street, index 0 unused
	SmallBlind      int    `hcl:"small_blind,optional"`
	BigBlind        int    `hcl:"big_blind"`
	Ante            int    `hcl:"ante,optional"`
	FirstToActPre   int    `hcl:"first_to_act_preflop,optional"`
	FirstToActPost  int    `hcl:"first_to_act_postflop,optional"`
	totalBoardCards []int
}

// Load reads a game definition from an HCL file.
func Load(path string) (*Game, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading game params: %w", err)
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing game params: %s", diags.Error())
	}
	var g Game
	if diags := gohcl.DecodeBody(file.Body, nil, &g); diags.HasErrors() {
		return nil, fmt.Errorf("decoding game params: %s", diags.Error())
	}
	if err := g.init(); err != nil {
		return nil, err
	}
	return &g, nil
}

// New builds a Game directly from a populated struct, validating and
// deriving the cached per-street totals.
func New(g Game) (*Game, error) {
	if err := g.init(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Game) init() error {
	if g.NumPlayers != 2 {
		return fmt.Errorf("game %q: only two-player games are supported", g.Name)
	}
	if g.NumRanks <= 0 || g.NumSuits <= 0 {
		return fmt.Errorf("game %q: bad deck dimensions %dx%d", g.Name, g.NumRanks, g.NumSuits)
	}
	if g.NumHoleCards != 1 && g.NumHoleCards != 2 {
		return fmt.Errorf("game %q: num_hole_cards must be 1 or 2", g.Name)
	}
	if len(g.StreetCards) != g.MaxStreet+1 {
		return fmt.Errorf("game %q: street_cards needs %d entries", g.Name, g.MaxStreet+1)
	}
	if g.StreetCards[0] != 0 {
		return fmt.Errorf("game %q: no board cards on street 0", g.Name)
	}
	g.totalBoardCards = make([]int, g.MaxStreet+1)
	total := 0
	for st := 0; st <= g.MaxStreet; st++ {
		total += g.StreetCards[st]
		g.totalBoardCards[st] = total
	}
	needed := g.NumPlayers*g.NumHoleCards + total
	if needed > g.NumCardsInDeck() {
		return fmt.Errorf("game %q: deck too small (%d cards needed)", g.Name, needed)
	}
	return nil
}

// NumCardsForStreet returns how many cards are dealt on street st: hole
// cards on street 0, board cards after.
func (g *Game) NumCardsForStreet(st int) int {
	if st == 0 {
		return g.NumHoleCards
	}
	return g.StreetCards[st]
}

// NumBoardCards returns the total number of community cards visible on
// street st.
func (g *Game) NumBoardCards(st int) int {
	return g.totalBoardCards[st]
}

// NumHoleCardPairs returns the number of distinct hole-card holdings on
// street st (pairs of non-board cards, or single cards for one-card
// games).
func (g *Game) NumHoleCardPairs(st int) int {
	n := g.NumCardsInDeck() - g.NumBoardCards(st)
	if g.NumHoleCards == 1 {
		return n
	}
	return n * (n - 1) / 2
}

// StreetPermutations returns the number of raw deals of street st's
// board cards that a single hand can see: the chance-branching factor
// used to normalise values aggregated across successor boards.
func (g *Game) StreetPermutations(st int) int {
	remaining := g.NumCardsInDeck() - g.NumBoardCards(st-1) - g.NumHoleCards
	return choose(remaining, g.StreetCards[st])
}

// FirstToAct returns the player who opens the betting on street st.
func (g *Game) FirstToAct(st int) int {
	if st == 0 {
		return g.FirstToActPre
	}
	return g.FirstToActPost
}

// NumHandEncodings returns the size of the dense reach-probability
// arrays: (maxCard+1)^2 for two hole cards, maxCard+1 for one.
func (g *Game) NumHandEncodings() int {
	m := int(g.MaxCard()) + 1
	if g.NumHoleCards == 1 {
		return m
	}
	return m * m
}

// HandEncoding maps a holding (hi, lo ignored for one-card games) to its
// dense encoding index.
func (g *Game) HandEncoding(hi, lo Card) int {
	if g.NumHoleCards == 1 {
		return int(hi)
	}
	return int(hi)*(int(g.MaxCard())+1) + int(lo)
}

func choose(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	c := 1
	for i := 0; i < k; i++ {
		c = c * (n - i) / (i + 1)
	}
	return c
}
