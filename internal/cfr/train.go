package cfr

import (
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/strategy"
)

// SetTrunkHandTree attaches the full-tree hand tree used by training
// and best-response walks (and shared with deferred subgame jobs).
func (e *Engine) SetTrunkHandTree(ht *board.HandTree) { e.trunkHandTree = ht }

// TrunkHandTree returns the attached full-tree hand tree, building it
// on first use.
func (e *Engine) TrunkHandTree() *board.HandTree {
	if e.trunkHandTree == nil {
		e.trunkHandTree = board.NewHandTree(e.g, e.bt, e.ev, 0, 0, e.g.MaxStreet)
	}
	return e.trunkHandTree
}

// AllocateTrainingStores materialises the regret and sumprob stores for
// a training run over the engine's tree.
func (e *Engine) AllocateTrainingStores() {
	compressed := e.cfg.CompressedMask(e.g.MaxStreet)
	e.Regrets = strategy.New(e.g, e.bt, e.tree, e.ca, e.buckets, strategy.Params{
		Sumprobs: false, Compressed: compressed,
	})
	if e.cfg.DoubleRegrets {
		e.Regrets.AllocateAndClearDoubles(e.tree.Root(), -1)
	} else {
		e.Regrets.AllocateAndClearInts(e.tree.Root(), -1)
	}
	e.Sumprobs = strategy.New(e.g, e.bt, e.tree, e.ca, e.buckets, strategy.Params{
		Sumprobs: true, Compressed: compressed,
	})
	if e.cfg.DoubleSumprobs {
		e.Sumprobs.AllocateAndClearDoubles(e.tree.Root(), -1)
	} else {
		e.Sumprobs.AllocateAndClearInts(e.tree.Root(), -1)
	}
	if e.ca.Bucketed() {
		e.allocateCurrentStrategy()
	}
}

func (e *Engine) allocateCurrentStrategy() {
	streets := make([]bool, e.g.MaxStreet+1)
	any := false
	for st := 0; st <= e.g.MaxStreet; st++ {
		streets[st] = !e.buckets.None(st)
		any = any || streets[st]
	}
	if !any {
		return
	}
	e.CurrentStrategy = strategy.New(e.g, e.bt, e.tree, e.ca, e.buckets, strategy.Params{
		Sumprobs: false, Streets: streets,
	})
	e.CurrentStrategy.AllocateAndClearDoubles(e.tree.Root(), -1)
}

// RunIteration performs one full iteration: a half-iteration for player
// 1 then player 0, with the bucketed regret floor applied after each.
func (e *Engine) RunIteration(it int) {
	e.SetIt(it)
	e.HalfIteration(1)
	e.HalfIteration(0)
}

// HalfIteration runs one training pass for player p over the full tree.
// When deferred subgames are configured the pass runs twice: a pre
// phase that posts the subgames to the worker pool, then the consuming
// pass that stitches their results back in.
func (e *Engine) HalfIteration(p int) {
	e.p = p
	if e.CurrentStrategy != nil {
		e.SetCurrentStrategy(e.tree.Root())
	}
	ht := e.TrunkHandTree()

	if e.subgameStreet <= e.g.MaxStreet && !e.isSubgame {
		e.prePhase = true
		e.walkTrunk(ht)
		e.WaitForFinalSubgames()
		e.prePhase = false
	}
	e.walkTrunk(ht)

	if e.CurrentStrategy != nil && e.cfg.NNRegrets {
		e.floorBucketedRegrets()
	}
}

func (e *Engine) walkTrunk(ht *board.HandTree) []float64 {
	oppProbs := AllocateOppProbs(e.g, true)
	streetBuckets := AllocateStreetBuckets(e.g)
	state := NewRootState(e.g, oppProbs, streetBuckets, ht)
	e.SetStreetBuckets(0, 0, state)
	return e.Process(e.tree.Root(), 0, state, 0)
}

// floorBucketedRegrets applies the per-street floor to bucketed
// regrets. The in-pass update accumulates unfloored so that the hands
// sharing a bucket sum their deltas first.
func (e *Engine) floorBucketedRegrets() {
	for st := 0; st <= e.g.MaxStreet; st++ {
		if e.buckets.None(st) {
			continue
		}
		e.Regrets.FloorRegretsStreet(e.tree.Root(), st, e.cfg.regretFloor(st))
	}
}

// BestResponseValues computes each player's real-game best response
// against the average strategy in Sumprobs, normalised per hand pair:
// the exploitability halves in chips.
func (e *Engine) BestResponseValues() (p0, p1 float64) {
	saveVC, saveBR := e.valueCalculation, make([]bool, len(e.bestResponseStreets))
	copy(saveBR, e.bestResponseStreets)
	defer func() {
		e.valueCalculation = saveVC
		copy(e.bestResponseStreets, saveBR)
	}()
	e.valueCalculation = true
	e.SetAllBestResponse(true)

	if e.ca.Bucketed() && e.CurrentStrategy == nil {
		e.allocateCurrentStrategy()
	}
	if e.CurrentStrategy != nil {
		e.SetCurrentStrategy(e.tree.Root())
	}

	ht := e.TrunkHandTree()
	e.p = 0
	p0Vals := e.walkTrunk(ht)
	e.p = 1
	p1Vals := e.walkTrunk(ht)

	numHCP := e.g.NumHoleCardPairs(0)
	remaining := e.g.NumCardsInDeck() - e.g.NumHoleCards
	var numOpp int
	if e.g.NumHoleCards == 1 {
		numOpp = remaining
	} else {
		numOpp = remaining * (remaining - 1) / 2
	}
	denom := float64(numHCP * numOpp)
	var sum0, sum1 float64
	for i := 0; i < numHCP; i++ {
		sum0 += p0Vals[i]
		sum1 += p1Vals[i]
	}
	return sum0 / denom, sum1 / denom
}
