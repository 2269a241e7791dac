package resolve

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/egsolver/internal/abstraction"
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/cfr"
	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
	"github.com/lox/egsolver/internal/paths"
	"github.com/lox/egsolver/internal/strategy"
)

type toy struct {
	g       *game.Game
	bt      *board.Tree
	ev      *eval.Evaluator
	ca      *abstraction.CardAbstraction
	buckets *abstraction.Buckets
	ba      *betting.Abstraction
	cfg     *cfr.Config
	tree    *betting.Tree
}

// newToy builds a two-street six-card single-suit game: small enough to
// solve exactly, big enough to exercise street transitions.
func newToy(t *testing.T) *toy {
	t.Helper()
	g, err := game.New(game.Game{
		Name: "leduc6", NumPlayers: 2, NumRanks: 6, NumSuits: 1,
		MaxStreet: 1, NumHoleCards: 1, StreetCards: []int{0, 1},
		SmallBlind: 1, BigBlind: 1,
	})
	require.NoError(t, err)
	bt := board.Build(g)
	ev := eval.New(g)
	ca := abstraction.NewUnabstracted("none", g.MaxStreet)
	buckets, err := abstraction.NewBuckets(ca, g, bt)
	require.NoError(t, err)
	ba := &betting.Abstraction{
		Name:      "b1",
		StackSize: 4,
		MaxBets:   []int{1, 1},
		Streets: []betting.StreetSizes{
			{Street: 0, BetSizes: [][]float64{{0.5}}},
			{Street: 1, BetSizes: [][]float64{{0.5}}},
		},
	}
	cfg := &cfr.Config{
		Name:           "cfrps",
		Algorithm:      "cfrp",
		NNRegrets:      true,
		DoubleRegrets:  true,
		DoubleSumprobs: true,
	}
	return &toy{g: g, bt: bt, ev: ev, ca: ca, buckets: buckets, ba: ba, cfg: cfg,
		tree: betting.Build(g, ba)}
}

func TestZeroSumCVs(t *testing.T) {
	ty := newToy(t)
	ht := board.NewHandTree(ty.g, ty.bt, ty.ev, 0, 0, 0)
	hands := ht.Hands(0, 0)
	num := hands.NumRaw()

	rng := rand.New(rand.NewSource(17))
	var reach [2][]float64
	for p := 0; p < 2; p++ {
		reach[p] = make([]float64, ty.g.NumHandEncodings())
		for i := 0; i < num; i++ {
			reach[p][encode(ty.g, hands.Cards(i))] = 0.05 + rng.Float64()
		}
	}
	p0CVs := make([]float64, num)
	p1CVs := make([]float64, num)
	for i := range p0CVs {
		p0CVs[i] = rng.NormFloat64() * 10
		p1CVs[i] = rng.NormFloat64() * 10
	}

	const pot = 20
	ZeroSumCVs(ty.g, zerolog.Nop(), p0CVs, p1CVs, reach, hands, pot)
	m0, m1 := CalculateMeanCVs(ty.g, p0CVs, p1CVs, reach, hands)
	assert.InDelta(t, 0.0, m0+m1, 1e-6*pot)
}

// street1Root navigates check-check to the subgame root on street 1.
func street1Root(t *testing.T, tree *betting.Tree) *betting.Node {
	t.Helper()
	root := tree.Root()
	option := tree.Succ(root, root.CallSucc)
	n := tree.Succ(option, option.CallSucc)
	require.Equal(t, 1, n.St)
	return n
}

// allOnes gives every live holding reach one.
func allOnes(g *game.Game, hands *board.CanonicalHands) []float64 {
	probs := make([]float64, g.NumHandEncodings())
	for i := 0; i < hands.NumRaw(); i++ {
		probs[encode(g, hands.Cards(i))] = 1.0
	}
	return probs
}

// An unsafe resolve is just CFR on the subtree: after enough
// iterations the resolved average strategy should be near-unexploitable
// within the subgame.
func TestUnsafeResolveConverges(t *testing.T) {
	ty := newToy(t)
	node := street1Root(t, ty.tree)
	const gbd = 2
	handTree := board.NewHandTree(ty.g, ty.bt, ty.ev, 1, gbd, ty.g.MaxStreet)
	subtree := betting.CreateNoLimitSubtree(ty.g, ty.ba, 1, 0, node.LastBetTo, 0, node.PlayerActing, -1)

	hands := handTree.Hands(1, 0)
	reach := [2][]float64{allOnes(ty.g, hands), allOnes(ty.g, hands)}

	eg := NewEGCFR(ty.g, ty.bt, ty.ev, ty.ca, ty.buckets, ty.cfg, 1, Unsafe, true, zerolog.Nop())
	eg.SolveSubgame(subtree, gbd, reach, handTree, nil, 0, true, 400)

	// Best-respond to the resolved average strategy within the subgame.
	gap := 0.0
	for p := 0; p < 2; p++ {
		e := cfr.New(ty.g, ty.bt, ty.ev, ty.ca, ty.buckets, ty.cfg, subtree, 1, zerolog.Nop())
		e.SetSubgame(true)
		e.SetValueCalculation(true)
		e.SetAllBestResponse(true)
		e.SetP(p)
		e.Sumprobs = eg.Sumprobs()
		oppProbs := allOnes(ty.g, hands)
		totalCardProbs := make([]float64, int(ty.g.MaxCard())+1)
		sumOpp := cfr.CommonBetResponseCalcs(ty.g, hands, oppProbs, totalCardProbs)
		state := &cfr.State{
			OppProbs:       oppProbs,
			SumOppProbs:    sumOpp,
			TotalCardProbs: totalCardProbs,
			StreetBuckets:  cfr.AllocateStreetBuckets(ty.g),
			ActionSequence: "x",
			RootBdSt:       1,
			RootBd:         gbd,
			HandTree:       handTree,
		}
		vals := e.Process(subtree.Root(), 0, state, 1)
		for _, v := range vals {
			gap += v
		}
	}
	// Normalise per matchup; the zero-sum gap shrinks with iterations.
	numMatchups := float64(hands.NumRaw() * (hands.NumRaw() - 1))
	assert.Less(t, gap/numMatchups, 0.05*float64(subtree.Root().PotSize))
	assert.GreaterOrEqual(t, gap, -1e-9)
}

func trainBase(t *testing.T, ty *toy, its int, dir string) {
	t.Helper()
	e := cfr.New(ty.g, ty.bt, ty.ev, ty.ca, ty.buckets, ty.cfg, ty.tree, 1, zerolog.Nop())
	e.AllocateTrainingStores()
	for it := 1; it <= its; it++ {
		e.RunIteration(it)
	}
	require.NoError(t, e.Regrets.Write(dir, its, ty.tree.Root(), -1))
	require.NoError(t, e.Sumprobs.Write(dir, its, ty.tree.Root(), -1))
}

func newSolverForTest(t *testing.T, ty *toy, roots paths.Roots, method Method, its int) *Solver {
	t.Helper()
	s, err := NewSolver(ty.g, ty.bt, ty.ev, ty.ca, ty.ca, ty.buckets, ty.buckets,
		ty.ba, ty.ba, ty.cfg, ty.cfg, roots, Options{
			SolveStreet:   1,
			Method:        method,
			ZeroSum:       true,
			BaseMem:       true,
			BaseIt:        its,
			NumEndgameIts: 100,
			NumThreads:    1,
		}, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestSolverWalkWritesEndgames(t *testing.T) {
	ty := newToy(t)
	oldRoot := t.TempDir()
	newRoot := t.TempDir()
	roots := paths.Roots{Old: oldRoot, New: newRoot}
	sys := paths.System{
		GameName:   ty.g.Name,
		NumPlayers: 2,
		CardAbs:    ty.ca.Name,
		NumRanks:   ty.g.NumRanks,
		NumSuits:   ty.g.NumSuits,
		MaxStreet:  ty.g.MaxStreet,
		BetAbs:     ty.ba.Name,
		CFRConfig:  ty.cfg.Name,
		AsymP:      -1,
	}
	const baseIts = 50
	trainBase(t, ty, baseIts, sys.Dir(oldRoot))

	s := newSolverForTest(t, ty, roots, Unsafe, baseIts)
	require.NoError(t, s.Walk())

	// The check-check subgame must have been written for every board
	// and both players: player 0 acts at the subgame root, player 1
	// after the flop check.
	sequences := map[int]string{0: "xcc", 1: "xccc"}
	for solveP := 0; solveP < 2; solveP++ {
		dir := paths.EndgameDir(sys.Dir(newRoot), ty.ca.Name, ty.ba.Name, ty.cfg.Name,
			"unsafe", 0, solveP)
		for gbd := 0; gbd < ty.bt.NumBoards(1); gbd++ {
			path := paths.EndgameFile(dir, sequences[solveP], gbd)
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("missing endgame file %s: %v", path, err)
			}
		}
	}
}

func TestSolverCFRDMethod(t *testing.T) {
	ty := newToy(t)
	oldRoot := t.TempDir()
	newRoot := t.TempDir()
	roots := paths.Roots{Old: oldRoot, New: newRoot}
	sys := paths.System{
		GameName: ty.g.Name, NumPlayers: 2, CardAbs: ty.ca.Name,
		NumRanks: ty.g.NumRanks, NumSuits: ty.g.NumSuits, MaxStreet: ty.g.MaxStreet,
		BetAbs: ty.ba.Name, CFRConfig: ty.cfg.Name, AsymP: -1,
	}
	const baseIts = 50
	trainBase(t, ty, baseIts, sys.Dir(oldRoot))

	s := newSolverForTest(t, ty, roots, CFRD, baseIts)
	require.NoError(t, s.Walk())

	matches, err := filepath.Glob(filepath.Join(sys.Dir(newRoot), "endgames.*", "*", "*"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

// Reading a written subgame strategy back must reproduce the in-memory
// result the resolver emitted.
func TestEndgameWriteReadRoundTrip(t *testing.T) {
	ty := newToy(t)
	node := street1Root(t, ty.tree)
	const gbd = 4
	handTree := board.NewHandTree(ty.g, ty.bt, ty.ev, 1, gbd, ty.g.MaxStreet)
	subtree := betting.CreateNoLimitSubtree(ty.g, ty.ba, 1, 0, node.LastBetTo, 0, node.PlayerActing, -1)
	hands := handTree.Hands(1, 0)
	reach := [2][]float64{allOnes(ty.g, hands), allOnes(ty.g, hands)}

	eg := NewEGCFR(ty.g, ty.bt, ty.ev, ty.ca, ty.buckets, ty.cfg, 1, Unsafe, true, zerolog.Nop())
	eg.SolveSubgame(subtree, gbd, reach, handTree, nil, 0, true, 50)

	dir := t.TempDir()
	for targetPA := 0; targetPA < 2; targetPA++ {
		require.NoError(t, WriteEndgame(ty.g, ty.bt, subtree, subtree.Root(), "xcc", "xcc",
			gbd, dir, eg.Sumprobs(), 1, gbd, targetPA, 1))
	}

	streets := []bool{false, true}
	loaded := strategy.New(ty.g, ty.bt, subtree, ty.ca, ty.buckets, strategy.Params{
		Sumprobs: true, Streets: streets, RootBdSt: 1, RootBd: gbd,
	})
	loaded.AllocateAndClearDoubles(subtree.Root(), -1)
	for targetPA := 0; targetPA < 2; targetPA++ {
		require.NoError(t, ReadEndgame(ty.g, ty.bt, subtree, subtree.Root(), "xcc",
			gbd, dir, loaded, 1, gbd, targetPA, 1))
	}

	subtree.Walk(subtree.Root(), func(n *betting.Node) {
		if n.IsTerminal() || n.NumSuccs() < 2 {
			return
		}
		want := eg.Sumprobs().DValues(n.PlayerActing, n.St, n.NonterminalID)
		got := loaded.DValues(n.PlayerActing, n.St, n.NonterminalID)
		assert.Equal(t, want, got)
	})
}

// The trunk propagation multiplies only the acting player's reach.
func TestGetSuccReachProbs(t *testing.T) {
	ty := newToy(t)
	ht := board.NewHandTree(ty.g, ty.bt, ty.ev, 0, 0, ty.g.MaxStreet)
	hands := ht.Hands(0, 0)

	sumprobs := strategy.New(ty.g, ty.bt, ty.tree, ty.ca, ty.buckets, strategy.Params{Sumprobs: true})
	sumprobs.AllocateAndClearDoubles(ty.tree.Root(), -1)
	root := ty.tree.Root()
	vals := sumprobs.DValues(root.PlayerActing, 0, root.NonterminalID)
	numSuccs := root.NumSuccs()
	for i := 0; i < hands.NumRaw(); i++ {
		vals[i*numSuccs] = 3 // check three quarters of the time
		vals[i*numSuccs+1] = 1
	}

	reach := [2][]float64{allOnes(ty.g, hands), allOnes(ty.g, hands)}
	succReach, err := GetSuccReachProbs(ty.g, ty.bt, ty.buckets, root, 0, ht,
		sumprobs, reach, 0, 0, false)
	require.NoError(t, err)
	pa := root.PlayerActing
	for i := 0; i < hands.NumRaw(); i++ {
		enc := encode(ty.g, hands.Cards(i))
		assert.InDelta(t, 0.75, succReach[0][pa][enc], 1e-12)
		assert.InDelta(t, 0.25, succReach[1][pa][enc], 1e-12)
		assert.InDelta(t, 1.0, succReach[0][pa^1][enc], 1e-12)
	}
}

func TestParseMethod(t *testing.T) {
	for _, name := range []string{"unsafe", "cfrd", "maxmargin", "combined"} {
		m, err := ParseMethod(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
	}
	_, err := ParseMethod("sampled")
	assert.Error(t, err)
}
