package betting

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/egsolver/internal/game"
)

// TerminalType distinguishes the two leaf kinds.
type TerminalType uint8

const (
	// NotTerminal marks interior decision nodes.
	NotTerminal TerminalType = iota
	// Showdown leaves compare hand strength for the full pot.
	Showdown
	// Fold leaves award the pot to the non-folding player.
	Fold
)

// Node is one betting-tree node. Nodes live in a Tree's arena and refer
// to each other by index; a subtree build copies indices, never
// pointers.
//
// LastBetTo is the per-player commitment at the node: at a showdown it
// is half the pot, at a fold it is the amount the folding player
// forfeits. At fold leaves PlayerActing records the player who folded.
type Node struct {
	St            int
	PlayerActing  int
	Terminal      TerminalType
	LastBetTo     int
	PotSize       int
	NonterminalID int
	TerminalID    int
	Succs         []int32
	ActionNames   []string
	CallSucc      int
	FoldSucc      int
	DefaultSucc   int
}

// NumSuccs returns the successor count; zero iff the node is terminal.
func (n *Node) NumSuccs() int { return len(n.Succs) }

// IsTerminal reports whether the node is a leaf.
func (n *Node) IsTerminal() bool { return n.Terminal != NotTerminal }

// Tree is an arena of betting nodes rooted at index 0.
type Tree struct {
	g               *game.Game
	nodes           []Node
	numNonterminals [2][]int
	numTerminals    int
}

// Root returns the root node.
func (t *Tree) Root() *Node { return &t.nodes[0] }

// Node returns the node with arena index i.
func (t *Tree) Node(i int32) *Node { return &t.nodes[i] }

// Succ returns successor s of node n.
func (t *Tree) Succ(n *Node, s int) *Node { return &t.nodes[n.Succs[s]] }

// NumNonterminals returns the count of decision nodes for (player,
// street), the size of the strategy arrays.
func (t *Tree) NumNonterminals(p, st int) int {
	if st >= len(t.numNonterminals[p]) {
		return 0
	}
	return t.numNonterminals[p][st]
}

// NumTerminals returns the number of leaves.
func (t *Tree) NumTerminals() int { return t.numTerminals }

// FindNode looks a decision node up by its dense (street, player,
// nonterminal-id) coordinates.
func (t *Tree) FindNode(st, pa, nt int) (*Node, error) {
	for i := range t.nodes {
		n := &t.nodes[i]
		if !n.IsTerminal() && n.St == st && n.PlayerActing == pa && n.NonterminalID == nt {
			return n, nil
		}
	}
	return nil, fmt.Errorf("no nonterminal (st=%d, p=%d, nt=%d)", st, pa, nt)
}

// Walk visits every node reachable from n in preorder.
func (t *Tree) Walk(n *Node, fn func(*Node)) {
	fn(n)
	for _, s := range n.Succs {
		t.Walk(&t.nodes[s], fn)
	}
}

type builder struct {
	g       *game.Game
	ba      *Abstraction
	rootBA  *Abstraction // overrides ba at the root node when set
	targetP int          // -1 for symmetric trees
	nodes   []Node
}

// Build constructs the symmetric betting tree for the abstraction.
func Build(g *game.Game, ba *Abstraction) *Tree {
	return buildTree(g, ba, -1)
}

// BuildAsymmetric constructs the tree in which targetP draws bets from
// the full menu and the opponent from the opp menu.
func BuildAsymmetric(g *game.Game, ba *Abstraction, targetP int) *Tree {
	return buildTree(g, ba, targetP)
}

func buildTree(g *game.Game, ba *Abstraction, targetP int) *Tree {
	b := &builder{g: g, ba: ba, targetP: targetP}
	// The preflop root: blinds are posted, the first player faces the
	// big blind as a live bet.
	lastBetSize := g.BigBlind - g.SmallBlind
	b.node(0, lastBetSize, g.BigBlind, 0, g.FirstToAct(0))
	return b.finish(g)
}

// CreateNoLimitSubtree builds a fresh tree whose root reproduces an
// existing betting state, with future bet sizing taken from this
// builder's abstraction. Used by the resolver to regenerate subgames
// under a richer endgame abstraction.
func CreateNoLimitSubtree(g *game.Game, ba *Abstraction, st, lastBetSize, betTo, numStreetBets, playerActing, targetP int) *Tree {
	b := &builder{g: g, ba: ba, targetP: targetP}
	b.node(st, lastBetSize, betTo, numStreetBets, playerActing)
	return b.finish(g)
}

// CreateProgressiveSubtree is CreateNoLimitSubtree with the root's bet
// menu drawn from rootBA and everything below it from ba: the richer
// endgame sizes apply only where the resolve happens.
func CreateProgressiveSubtree(g *game.Game, rootBA, ba *Abstraction, st, lastBetSize, betTo, numStreetBets, playerActing, targetP int) *Tree {
	b := &builder{g: g, ba: ba, rootBA: rootBA, targetP: targetP}
	b.node(st, lastBetSize, betTo, numStreetBets, playerActing)
	return b.finish(g)
}

// BuildSubtree copies the subtree under node into a new arena with
// contiguous nonterminal ids but identical action shape.
func BuildSubtree(t *Tree, node *Node) *Tree {
	b := &builder{g: t.g}
	var copyNode func(n *Node) int32
	copyNode = func(n *Node) int32 {
		idx := int32(len(b.nodes))
		b.nodes = append(b.nodes, Node{
			St:           n.St,
			PlayerActing: n.PlayerActing,
			Terminal:     n.Terminal,
			LastBetTo:    n.LastBetTo,
			PotSize:      n.PotSize,
			CallSucc:     n.CallSucc,
			FoldSucc:     n.FoldSucc,
			DefaultSucc:  n.DefaultSucc,
			ActionNames:  append([]string(nil), n.ActionNames...),
		})
		succs := make([]int32, n.NumSuccs())
		for s := range succs {
			succs[s] = copyNode(t.Succ(n, s))
		}
		b.nodes[idx].Succs = succs
		return idx
	}
	copyNode(node)
	return b.finish(t.g)
}

func (b *builder) finish(g *game.Game) *Tree {
	t := &Tree{g: g, nodes: b.nodes}
	maxSt := g.MaxStreet
	for p := 0; p < 2; p++ {
		t.numNonterminals[p] = make([]int, maxSt+1)
	}
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.IsTerminal() {
			n.TerminalID = t.numTerminals
			t.numTerminals++
		} else {
			n.NonterminalID = t.numNonterminals[n.PlayerActing][n.St]
			t.numNonterminals[n.PlayerActing][n.St]++
		}
	}
	return t
}

// node builds the decision node for the given betting state and returns
// its arena index.
func (b *builder) node(st, lastBetSize, betTo, numStreetBets, pa int) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{
		St:           st,
		PlayerActing: pa,
		LastBetTo:    betTo,
		PotSize:      2 * betTo,
		CallSucc:     -1,
		FoldSucc:     -1,
		DefaultSucc:  -1,
	})

	var succs []int32
	var names []string
	facingBet := lastBetSize > 0

	// Fold first, then call/check, then bets ascending.
	if facingBet {
		fidx := int32(len(b.nodes))
		b.nodes = append(b.nodes, Node{
			St:           st,
			PlayerActing: pa, // the folder
			Terminal:     Fold,
			LastBetTo:    betTo - lastBetSize,
			PotSize:      2 * (betTo - lastBetSize),
		})
		succs = append(succs, fidx)
		names = append(names, "f")
		b.nodes[idx].FoldSucc = 0
	}

	callIdx := b.callSucc(st, lastBetSize, betTo, pa)
	b.nodes[idx].CallSucc = len(succs)
	b.nodes[idx].DefaultSucc = len(succs)
	succs = append(succs, callIdx)
	names = append(names, "c")

	ba := b.ba
	if b.rootBA != nil && idx == 0 {
		ba = b.rootBA
	}
	if numStreetBets < ba.MaxStreetBets(st) && betTo < ba.StackSize {
		for _, newBetTo := range b.betTargets(ba, st, lastBetSize, betTo, numStreetBets, pa) {
			s := b.node(st, newBetTo-betTo, newBetTo, numStreetBets+1, pa^1)
			succs = append(succs, s)
			names = append(names, fmt.Sprintf("b%d", newBetTo-betTo))
		}
	}

	b.nodes[idx].Succs = succs
	b.nodes[idx].ActionNames = names
	return idx
}

// callSucc builds the node reached by calling or checking.
func (b *builder) callSucc(st, lastBetSize, betTo, pa int) int32 {
	closes := lastBetSize > 0 || pa != b.g.FirstToAct(st)
	if st == 0 && lastBetSize > 0 && betTo == b.g.BigBlind {
		// The open limp: the big blind still has the option.
		closes = false
	}
	if !closes {
		return b.node(st, 0, betTo, 0, pa^1)
	}
	if st == b.g.MaxStreet {
		idx := int32(len(b.nodes))
		b.nodes = append(b.nodes, Node{
			St:           st,
			PlayerActing: pa,
			Terminal:     Showdown,
			LastBetTo:    betTo,
			PotSize:      2 * betTo,
		})
		return idx
	}
	return b.node(st+1, 0, betTo, 0, b.g.FirstToAct(st+1))
}

// betTargets returns the distinct bet-to amounts offered here, sorted
// ascending and deduplicated.
func (b *builder) betTargets(ba *Abstraction, st, lastBetSize, betTo, numStreetBets, pa int) []int {
	pot := 2 * betTo
	minBet := b.g.BigBlind
	if lastBetSize > minBet {
		minBet = lastBetSize
	}
	stack := ba.StackSize
	set := map[int]bool{}
	for _, frac := range ba.BetSizes(st, numStreetBets, pa, b.targetP) {
		size := int(math.Round(frac * float64(pot)))
		if size < minBet {
			size = minBet
		}
		if betTo+size > stack {
			size = stack - betTo
		}
		if size <= 0 {
			continue
		}
		set[betTo+size] = true
	}
	if ba.AllIns && numStreetBets < ba.MaxStreetBets(st) {
		set[stack] = true
	}
	targets := make([]int, 0, len(set))
	for bt := range set {
		targets = append(targets, bt)
	}
	sort.Ints(targets)
	return targets
}
