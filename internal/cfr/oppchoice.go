package cfr

import (
	"math"

	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
)

// OppChoice scales the opponent's reach vector through their current
// strategy at this node, accumulates the per-successor shares into
// their sumprobs, and recurses per successor with fresh aggregates.
// Successors no opponent hand reaches are pruned unless the engine is
// reporting values for zero-probability branches.
func (e *Engine) OppChoice(node *betting.Node, lbd int, state *State) []float64 {
	st := node.St
	numSuccs := node.NumSuccs()
	hands := state.HandTree.Hands(st, lbd)
	numHCP := hands.NumRaw()
	numEnc := e.g.NumHandEncodings()

	succOppProbs := make([][]float64, numSuccs)
	if numSuccs == 1 {
		succOppProbs[0] = make([]float64, numEnc)
		copy(succOppProbs[0], state.OppProbs)
	} else {
		for s := 0; s < numSuccs; s++ {
			succOppProbs[s] = make([]float64, numEnc)
		}
		e.forkOppProbs(node, lbd, hands, state, succOppProbs)
	}

	var vals []float64
	for s := 0; s < numSuccs; s++ {
		totalCardProbs := make([]float64, int(e.g.MaxCard())+1)
		sumOppProbs := CommonBetResponseCalcs(e.g, hands, succOppProbs[s], totalCardProbs)
		if e.prune && sumOppProbs == 0 {
			continue
		}
		succState := state.oppSucc(node.ActionNames[s], succOppProbs[s], sumOppProbs, totalCardProbs)
		succVals := e.Process(e.tree.Succ(node, s), lbd, succState, st)
		if vals == nil {
			vals = succVals
		} else {
			for i := 0; i < numHCP; i++ {
				vals[i] += succVals[i]
			}
		}
	}
	if vals == nil {
		// Possible when the new board cards blocked every opponent hand
		// that reached the prior street.
		vals = make([]float64, numHCP)
	}
	return vals
}

// forkOppProbs fills succOppProbs from the opponent's strategy at node
// and performs the sumprob update, dispatching on the storage types in
// play.
func (e *Engine) forkOppProbs(node *betting.Node, lbd int, hands *board.CanonicalHands,
	state *State, succOppProbs [][]float64) {

	st := node.St
	nt := node.NonterminalID
	opp := e.p ^ 1
	numSuccs := node.NumSuccs()
	bucketed := e.bucketedAt(node)
	sb := state.StreetBuckets[st]
	boardBase := lbd * e.g.NumHoleCardPairs(st) * numSuccs

	updateSumprobs := !e.prePhase && !e.valueCalculation &&
		e.cfg.SumprobStreet(st) && e.Sumprobs != nil && e.Sumprobs.Player(opp) &&
		!(e.cfg.HardWarmup > 0 && e.it <= e.cfg.HardWarmup) &&
		(e.Sumprobs.Ints(opp, st) || e.Sumprobs.Doubles(opp, st))

	weight := 1.0
	if e.cfg.SoftWarmup > 0 && e.it > e.cfg.SoftWarmup {
		weight = float64(e.it - e.cfg.SoftWarmup)
	}
	sumprobScale := perStreetFloat(e.cfg.SumprobScaling, st, 1.0)

	row := func(i int) int {
		if bucketed {
			return sb[i] * numSuccs
		}
		return boardBase + i*numSuccs
	}

	if bucketed && !e.valueCalculation && e.CurrentStrategy != nil {
		// Probabilities come straight from the precomputed snapshot.
		current := e.CurrentStrategy.DValues(opp, st, nt)
		var iSumprobs []int32
		var dSumprobs []float64
		if updateSumprobs {
			if e.Sumprobs.Ints(opp, st) {
				iSumprobs = e.Sumprobs.IValues(opp, st, nt)
			} else {
				dSumprobs = e.Sumprobs.DValues(opp, st, nt)
			}
		}
		numHCP := hands.NumRaw()
		for i := 0; i < numHCP; i++ {
			enc := encodeHand(e.g, hands.Cards(i))
			oppProb := state.OppProbs[enc]
			if oppProb == 0 {
				continue
			}
			off := row(i)
			for s := 0; s < numSuccs; s++ {
				sop := oppProb * current[off+s]
				succOppProbs[s][enc] = sop
				if sop > 0 {
					if iSumprobs != nil {
						iSumprobs[off+s] += int32(math.Round(sop * weight * sumprobScale))
					} else if dSumprobs != nil {
						dSumprobs[off+s] += sop * weight
					}
				}
			}
		}
		return
	}

	nonneg, explore, src := e.currentStrategySource(opp, st)
	nonterminalSuccs := make([]bool, numSuccs)
	numNonterminal := 0
	for s := 0; s < numSuccs; s++ {
		if !e.tree.Succ(node, s).IsTerminal() {
			nonterminalSuccs[s] = true
			numNonterminal++
		}
	}
	probs := make([]float64, numSuccs)
	numHCP := hands.NumRaw()
	for i := 0; i < numHCP; i++ {
		enc := encodeHand(e.g, hands.Cards(i))
		oppProb := state.OppProbs[enc]
		if oppProb == 0 {
			continue
		}
		off := row(i)
		switch {
		case e.purify && src.Ints(opp, st):
			PureProbs(src.IValues(opp, st, nt)[off:], numSuccs, probs)
		case e.purify:
			PureProbs(src.DValues(opp, st, nt)[off:], numSuccs, probs)
		case src.Ints(opp, st):
			RegretsToProbs(src.IValues(opp, st, nt)[off:], numSuccs, nonneg, e.cfg.Uniform,
				node.DefaultSucc, explore, numNonterminal, nonterminalSuccs, probs)
		default:
			RegretsToProbs(src.DValues(opp, st, nt)[off:], numSuccs, nonneg, e.cfg.Uniform,
				node.DefaultSucc, explore, numNonterminal, nonterminalSuccs, probs)
		}
		for s := 0; s < numSuccs; s++ {
			sop := oppProb * probs[s]
			succOppProbs[s][enc] = sop
			if updateSumprobs && sop > 0 {
				if e.Sumprobs.Ints(opp, st) {
					sp := e.Sumprobs.IValues(opp, st, nt)
					sp[off+s] += int32(math.Round(sop * weight * sumprobScale))
				} else {
					sp := e.Sumprobs.DValues(opp, st, nt)
					sp[off+s] += sop * weight
				}
			}
		}
	}
}

