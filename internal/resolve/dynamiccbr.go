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

// DynamicCBR extracts per-hand counterfactual values at an arbitrary
// interior node against the fixed base strategy: a value-only engine
// pass with pruning off, best-response play for CBRs or the average
// strategy for CFRs, followed by zero-sum normalisation.
type DynamicCBR struct {
	g       *game.Game
	bt      *board.Tree
	ev      *eval.Evaluator
	ca      *abstraction.CardAbstraction
	buckets *abstraction.Buckets
	cfg     *cfr.Config
	tree    *betting.Tree
	log     zerolog.Logger

	sumprobs *strategy.Values // average-strategy source
	regrets  *strategy.Values // current-strategy source
}

// NewDynamicCBR builds the CV extractor over the betting tree the base
// strategy spans (the full tree, or a base-shaped subtree in disk
// mode).
func NewDynamicCBR(g *game.Game, bt *board.Tree, ev *eval.Evaluator,
	ca *abstraction.CardAbstraction, buckets *abstraction.Buckets, cfg *cfr.Config,
	tree *betting.Tree, log zerolog.Logger) *DynamicCBR {

	return &DynamicCBR{g: g, bt: bt, ev: ev, ca: ca, buckets: buckets, cfg: cfg, tree: tree, log: log}
}

// MoveSumprobs hands the base average strategy to the extractor.
func (d *DynamicCBR) MoveSumprobs(v *strategy.Values) { d.sumprobs = v }

// MoveRegrets hands the base regrets to the extractor for
// current-strategy CVs.
func (d *DynamicCBR) MoveRegrets(v *strategy.Values) { d.regrets = v }

// Sumprobs returns the attached average strategy.
func (d *DynamicCBR) Sumprobs() *strategy.Values { return d.sumprobs }

// Compute returns the CVs of targetP's opponent-facing player: per
// hand at node on board gbd, the value that player achieves against
// the base strategy given the other player's reach. With zeroSum and
// best-response values (cfrs false) the two players' CV vectors are
// computed and adjusted jointly; with cfrs, zeroSum has no effect. The
// returned slice belongs to targetP.
func (d *DynamicCBR) Compute(node *betting.Node, reachProbs [2][]float64, gbd int,
	handTree *board.HandTree, rootBdSt, rootBd, targetP int,
	cfrs, zeroSum, current, purify bool) []float64 {

	if cfrs || !zeroSum {
		return d.computeOne(node, targetP, reachProbs[targetP^1], gbd, handTree, rootBdSt, rootBd, cfrs, current, purify)
	}
	p0CVs := d.computeOne(node, 0, reachProbs[1], gbd, handTree, rootBdSt, rootBd, false, current, purify)
	p1CVs := d.computeOne(node, 1, reachProbs[0], gbd, handTree, rootBdSt, rootBd, false, current, purify)
	st := node.St
	lbd := d.bt.LocalIndex(rootBdSt, rootBd, st, gbd)
	hands := handTree.Hands(st, lbd)
	ZeroSumCVs(d.g, d.log, p0CVs, p1CVs, reachProbs, hands, node.PotSize)
	if targetP == 1 {
		return p1CVs
	}
	return p0CVs
}

// computeOne runs the value-only pass for one player.
func (d *DynamicCBR) computeOne(node *betting.Node, p int, oppProbs []float64, gbd int,
	handTree *board.HandTree, rootBdSt, rootBd int, cfrs, current, purify bool) []float64 {

	e := cfr.New(d.g, d.bt, d.ev, d.ca, d.buckets, d.cfg, d.tree, 1, d.log)
	e.SetSubgame(true)
	e.SetValueCalculation(true)
	e.SetPrune(false) // zero-probability branches still report values
	e.SetPurify(purify)
	e.SetP(p)
	if current {
		e.SetBRCurrent(true)
		e.Regrets = d.regrets
	} else {
		e.Sumprobs = d.sumprobs
	}
	// CBRs best-respond below the node; CFRs follow the base strategy.
	e.SetAllBestResponse(!cfrs)

	st := node.St
	lbd := d.bt.LocalIndex(rootBdSt, rootBd, st, gbd)
	hands := handTree.Hands(st, lbd)
	totalCardProbs := make([]float64, int(d.g.MaxCard())+1)
	sumOppProbs := cfr.CommonBetResponseCalcs(d.g, hands, oppProbs, totalCardProbs)

	streetBuckets := cfr.AllocateStreetBuckets(d.g)
	state := &cfr.State{
		OppProbs:       oppProbs,
		SumOppProbs:    sumOppProbs,
		TotalCardProbs: totalCardProbs,
		StreetBuckets:  streetBuckets,
		ActionSequence: "x",
		RootBdSt:       rootBdSt,
		RootBd:         rootBd,
		HandTree:       handTree,
	}
	e.SetStreetBuckets(st, gbd, state)

	var vals []float64
	if sumOppProbs == 0 {
		vals = make([]float64, hands.NumRaw())
	} else {
		vals = e.Process(node, lbd, state, st)
	}
	// Match the precision of values written by the CBR builder, which
	// stores float32 on disk.
	for i := range vals {
		vals[i] = float64(float32(vals[i]))
	}
	FloorCVs(d.g, node, oppProbs, hands, vals)
	return vals
}
