package resolve

import (
	"github.com/rs/zerolog"

	"github.com/lox/egsolver/internal/abstraction"
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/cfr"
	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
	"github.com/lox/egsolver/internal/strategy"
)

// EGCFR runs the constrained CFR on one rebuilt subgame. Regrets and
// sumprobs are doubles: when the opponent reach mass entering a
// subgame is tiny, integer updates all round to zero.
type EGCFR struct {
	g       *game.Game
	bt      *board.Tree
	ev      *eval.Evaluator
	ca      *abstraction.CardAbstraction
	buckets *abstraction.Buckets
	cfg     *cfr.Config
	method  Method
	zeroSum bool
	log     zerolog.Logger

	targetP int
	rootSt  int
	rootBd  int

	// Root-gadget regrets for the seeded methods; two meta-successors
	// per hand for CFR-D and Combined (enter the subgame or take the
	// CV), one margin regret per hand for MaxMargin.
	gadgetRegrets []float64

	engine   *cfr.Engine
	sumprobs *strategy.Values
}

// NewEGCFR builds a resolver for subgames rooted on solveSt.
func NewEGCFR(g *game.Game, bt *board.Tree, ev *eval.Evaluator,
	ca *abstraction.CardAbstraction, buckets *abstraction.Buckets, cfg *cfr.Config,
	solveSt int, method Method, zeroSum bool, log zerolog.Logger) *EGCFR {

	return &EGCFR{
		g:       g,
		bt:      bt,
		ev:      ev,
		ca:      ca,
		buckets: buckets,
		cfg:     cfg,
		method:  method,
		zeroSum: zeroSum,
		log:     log,
		rootSt:  solveSt,
	}
}

// Sumprobs returns the subgame's accumulated strategy after
// SolveSubgame.
func (eg *EGCFR) Sumprobs() *strategy.Values { return eg.sumprobs }

// cfrdCap bounds the CFR-D contribution to the Combined opponent reach
// mass; uniformAdd is the uniform floor fraction.
func (eg *EGCFR) cfrdCap() float64 {
	if eg.cfg.CFRDCap > 0 {
		return eg.cfg.CFRDCap
	}
	return 0.2
}

func (eg *EGCFR) uniformAdd() float64 {
	if eg.cfg.UniformAdd > 0 {
		return eg.cfg.UniformAdd
	}
	return 0.1
}

// SolveSubgame runs numIts iteration pairs of the selected method on
// subtree, seeded with the opponent CVs, and leaves the resulting
// sumprobs in the resolver. When bothPlayers is false only targetP's
// strategy accumulates (the seeded methods solve per player). A zero
// opponent reach is not an error: the solve degenerates to the default
// check/call strategy.
func (eg *EGCFR) SolveSubgame(subtree *betting.Tree, solveBd int, reachProbs [2][]float64,
	handTree *board.HandTree, oppCVs []float64, targetP int, bothPlayers bool, numIts int) {

	eg.rootBd = solveBd
	eg.targetP = targetP

	maxSt := eg.g.MaxStreet
	streets := make([]bool, maxSt+1)
	for st := 0; st <= maxSt; st++ {
		streets[st] = st >= eg.rootSt
	}

	e := cfr.New(eg.g, eg.bt, eg.ev, eg.ca, eg.buckets, eg.cfg, subtree, 1, eg.log)
	e.SetSubgame(true)
	e.SetTargetP(targetP)
	eg.engine = e

	regrets := strategy.New(eg.g, eg.bt, subtree, eg.ca, eg.buckets, strategy.Params{
		Sumprobs: false, Streets: streets, RootBdSt: eg.rootSt, RootBd: solveBd,
	})
	regrets.AllocateAndClearDoubles(subtree.Root(), -1)
	e.Regrets = regrets

	// Unsafe solving always produces sumprobs for both players.
	if eg.method == Unsafe {
		bothPlayers = true
	}
	params := strategy.Params{Sumprobs: true, Streets: streets, RootBdSt: eg.rootSt, RootBd: solveBd}
	if !bothPlayers {
		players := [2]bool{targetP == 0, targetP == 1}
		params.Players = &players
	}
	eg.sumprobs = strategy.New(eg.g, eg.bt, subtree, eg.ca, eg.buckets, params)
	eg.sumprobs.AllocateAndClearDoubles(subtree.Root(), -1)
	e.Sumprobs = eg.sumprobs

	streetBuckets := cfr.AllocateStreetBuckets(eg.g)
	eg.initRootBuckets(handTree, streetBuckets)

	numHCP := eg.g.NumHoleCardPairs(eg.rootSt)
	switch eg.method {
	case CFRD, Combined:
		eg.gadgetRegrets = make([]float64, numHCP*2)
	case MaxMargin:
		eg.gadgetRegrets = make([]float64, numHCP)
	}

	for it := 1; it <= numIts; it++ {
		e.SetIt(it)
		switch eg.method {
		case Unsafe:
			eg.halfIteration(subtree, handTree, streetBuckets, 1, reachProbs[0])
			eg.halfIteration(subtree, handTree, streetBuckets, 0, reachProbs[1])
		case CFRD:
			eg.cfrdHalfIteration(subtree, handTree, streetBuckets, 1, reachProbs[targetP], oppCVs)
			eg.cfrdHalfIteration(subtree, handTree, streetBuckets, 0, reachProbs[targetP], oppCVs)
		case MaxMargin:
			eg.maxMarginHalfIteration(subtree, handTree, streetBuckets, 1, reachProbs, oppCVs)
			eg.maxMarginHalfIteration(subtree, handTree, streetBuckets, 0, reachProbs, oppCVs)
		case Combined:
			eg.combinedHalfIteration(subtree, handTree, streetBuckets, 1, reachProbs, oppCVs)
			eg.combinedHalfIteration(subtree, handTree, streetBuckets, 0, reachProbs, oppCVs)
		}
	}
}

// initRootBuckets populates the solve street's bucket ids once; deeper
// streets refresh lazily in StreetInitial.
func (eg *EGCFR) initRootBuckets(handTree *board.HandTree, streetBuckets [][]int) {
	if eg.buckets.None(eg.rootSt) {
		return
	}
	hands := handTree.Hands(eg.rootSt, 0)
	boardCards := eg.bt.Board(eg.rootSt, eg.rootBd)
	numHCP := eg.g.NumHoleCardPairs(eg.rootSt)
	for i := 0; i < hands.NumRaw(); i++ {
		var hcp int
		if eg.rootSt == eg.g.MaxStreet {
			hcp = board.HCPIndex(eg.g, boardCards, hands.Cards(i))
		} else {
			hcp = i
		}
		streetBuckets[eg.rootSt][i] = eg.buckets.Bucket(eg.rootSt, eg.rootBd*numHCP+hcp)
	}
}

// halfIteration runs one plain half-iteration for player p against the
// given opponent reach vector and returns the root value vector.
func (eg *EGCFR) halfIteration(subtree *betting.Tree, handTree *board.HandTree,
	streetBuckets [][]int, p int, oppProbs []float64) []float64 {

	e := eg.engine
	e.SetP(p)
	hands := handTree.Hands(eg.rootSt, 0)
	totalCardProbs := make([]float64, int(eg.g.MaxCard())+1)
	sumOppProbs := cfr.CommonBetResponseCalcs(eg.g, hands, oppProbs, totalCardProbs)
	if sumOppProbs == 0 {
		return make([]float64, eg.g.NumHoleCardPairs(eg.rootSt))
	}
	state := &cfr.State{
		OppProbs:       oppProbs,
		SumOppProbs:    sumOppProbs,
		TotalCardProbs: totalCardProbs,
		StreetBuckets:  streetBuckets,
		ActionSequence: "x",
		RootBdSt:       eg.rootSt,
		RootBd:         eg.rootBd,
		HandTree:       handTree,
	}
	return e.Process(subtree.Root(), 0, state, eg.rootSt)
}

// cfrdHalfIteration simulates a two-successor gadget above the subgame
// root for the villain (the non-target player): per hand, enter the
// subgame or take the CV. The target player's phase plays the villain's
// regret-matched entry distribution; the villain phase plays the target
// player's fixed reach and updates the gadget regrets.
func (eg *EGCFR) cfrdHalfIteration(subtree *betting.Tree, handTree *board.HandTree,
	streetBuckets [][]int, p int, targetReachProbs []float64, oppCVs []float64) {

	numHCP := eg.g.NumHoleCardPairs(eg.rootSt)
	hands := handTree.Hands(eg.rootSt, 0)
	nonneg := eg.cfg.NNRegrets

	villainProbs := make([]float64, eg.g.NumHandEncodings())
	probs := make([]float64, 2)
	for i := 0; i < numHCP; i++ {
		cfr.RegretsToProbs(eg.gadgetRegrets[i*2:], 2, nonneg, eg.cfg.Uniform, 0, 0, 0, nil, probs)
		villainProbs[encode(eg.g, hands.Cards(i))] = probs[0]
	}

	if p == eg.targetP {
		eg.halfIteration(subtree, handTree, streetBuckets, p, villainProbs)
		return
	}
	vals := eg.halfIteration(subtree, handTree, streetBuckets, p, targetReachProbs)
	for i := 0; i < numHCP; i++ {
		enc := encode(eg.g, hands.Cards(i))
		tValue := oppCVs[i]
		val := villainProbs[enc]*vals[i] + (1.0-villainProbs[enc])*tValue
		row := eg.gadgetRegrets[i*2 : i*2+2]
		row[0] += vals[i] - val
		row[1] += tValue - val
		if nonneg {
			if row[0] < 0 {
				row[0] = 0
			}
			if row[1] < 0 {
				row[1] = 0
			}
		}
	}
}

// maxMarginHalfIteration derives the villain reach from regret-matching
// the margin between achieved value and CV, normalised to a
// distribution.
func (eg *EGCFR) maxMarginHalfIteration(subtree *betting.Tree, handTree *board.HandTree,
	streetBuckets [][]int, p int, reachProbs [2][]float64, oppCVs []float64) {

	numHCP := eg.g.NumHoleCardPairs(eg.rootSt)
	hands := handTree.Hands(eg.rootSt, 0)

	if p == eg.targetP {
		oppProbs := make([]float64, eg.g.NumHandEncodings())
		var sumRegrets float64
		for i := 0; i < numHCP; i++ {
			if r := eg.gadgetRegrets[i]; r > 0 {
				sumRegrets += r
			}
		}
		if sumRegrets == 0 {
			u := 1.0 / float64(numHCP)
			for i := 0; i < numHCP; i++ {
				oppProbs[encode(eg.g, hands.Cards(i))] = u
			}
		} else {
			for i := 0; i < numHCP; i++ {
				if r := eg.gadgetRegrets[i]; r > 0 {
					oppProbs[encode(eg.g, hands.Cards(i))] = r / sumRegrets
				}
			}
		}
		eg.halfIteration(subtree, handTree, streetBuckets, p, oppProbs)
		return
	}

	vals := eg.halfIteration(subtree, handTree, streetBuckets, p, reachProbs[p^1])
	// Offset achieved values by the CVs and regret-match the margins
	// against their villain-weighted mean.
	var mean float64
	var sumRegrets float64
	for i := 0; i < numHCP; i++ {
		if r := eg.gadgetRegrets[i]; r > 0 {
			sumRegrets += r
		}
	}
	for i := 0; i < numHCP; i++ {
		var prob float64
		if sumRegrets == 0 {
			prob = 1.0 / float64(numHCP)
		} else if r := eg.gadgetRegrets[i]; r > 0 {
			prob = r / sumRegrets
		}
		mean += prob * (vals[i] - oppCVs[i])
	}
	for i := 0; i < numHCP; i++ {
		eg.gadgetRegrets[i] += (vals[i] - oppCVs[i]) - mean
	}
}

// combinedHalfIteration blends the propagated villain reach with the
// CFR-D gadget mix, capped at a fraction of the total reach mass, plus
// a uniform floor.
func (eg *EGCFR) combinedHalfIteration(subtree *betting.Tree, handTree *board.HandTree,
	streetBuckets [][]int, p int, reachProbs [2][]float64, oppCVs []float64) {

	numHCP := eg.g.NumHoleCardPairs(eg.rootSt)
	hands := handTree.Hands(eg.rootSt, 0)
	nonneg := eg.cfg.NNRegrets
	villain := eg.targetP ^ 1

	villainProbs := make([]float64, eg.g.NumHandEncodings())
	var sumVillainReach float64
	for i := 0; i < numHCP; i++ {
		enc := encode(eg.g, hands.Cards(i))
		villainProbs[enc] = reachProbs[villain][enc]
		sumVillainReach += villainProbs[enc]
	}

	// How much CFR-D mass would enter unscaled.
	probs := make([]float64, 2)
	var sumToAdd float64
	for i := 0; i < numHCP; i++ {
		enc := encode(eg.g, hands.Cards(i))
		if rem := 1.0 - villainProbs[enc]; rem > 0 {
			cfr.RegretsToProbs(eg.gadgetRegrets[i*2:], 2, nonneg, eg.cfg.Uniform, 0, 0, 0, nil, probs)
			sumToAdd += rem * probs[0]
		}
	}
	scale := 1.0
	if bound := sumVillainReach * eg.cfrdCap(); sumToAdd > bound {
		scale = bound / sumToAdd
	}
	for i := 0; i < numHCP; i++ {
		enc := encode(eg.g, hands.Cards(i))
		if rem := 1.0 - villainProbs[enc]; rem > 0 {
			cfr.RegretsToProbs(eg.gadgetRegrets[i*2:], 2, nonneg, eg.cfg.Uniform, 0, 0, 0, nil, probs)
			villainProbs[enc] += rem * probs[0] * scale
		}
	}

	probMass := sumVillainReach + scale*sumToAdd
	uniform := eg.uniformAdd() * probMass / float64(numHCP)
	for i := 0; i < numHCP; i++ {
		enc := encode(eg.g, hands.Cards(i))
		villainProbs[enc] += uniform
		if villainProbs[enc] > 1.0 {
			villainProbs[enc] = 1.0
		}
	}

	if p == eg.targetP {
		eg.halfIteration(subtree, handTree, streetBuckets, p, villainProbs)
		return
	}
	vals := eg.halfIteration(subtree, handTree, streetBuckets, p, reachProbs[eg.targetP])
	for i := 0; i < numHCP; i++ {
		enc := encode(eg.g, hands.Cards(i))
		tValue := oppCVs[i]
		val := villainProbs[enc]*vals[i] + (1.0-villainProbs[enc])*tValue
		row := eg.gadgetRegrets[i*2 : i*2+2]
		row[0] += vals[i] - val
		row[1] += tValue - val
		if nonneg {
			if row[0] < 0 {
				row[0] = 0
			}
			if row[1] < 0 {
				row[1] = 0
			}
		}
	}
}
