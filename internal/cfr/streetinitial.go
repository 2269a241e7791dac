package cfr

import (
	"sync"

	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
)

// StreetInitial iterates the successor canonical boards of the new
// street, recurses per board, and folds the per-board hand values back
// into the previous street's canonical-hand index, weighting each board
// by its variant count and copying canonical values to their
// non-canonical twins afterwards.
func (e *Engine) StreetInitial(node *betting.Node, plbd int, state *State) []float64 {
	nst := node.St
	pst := nst - 1
	prevNumHCP := e.g.NumHoleCardPairs(pst)

	if nst == e.subgameStreet && !e.isSubgame {
		if e.prePhase {
			e.spawnSubgame(node, plbd, state.ActionSequence, state.OppProbs)
			return make([]float64, prevNumHCP)
		}
		key := finalValsKey{node.PlayerActing, node.NonterminalID, plbd}
		vals, ok := e.finalVals[key]
		if !ok {
			e.log.Fatal().Int("p", key.p).Int("nt", key.nt).Int("lbd", key.lbd).
				Msg("no final vals for subgame")
		}
		delete(e.finalVals, key)
		return vals
	}

	predHands := state.HandTree.Hands(pst, plbd)
	prevCanons := e.prevCanons(predHands)
	vals := make([]float64, prevNumHCP)

	if nst == 1 && e.subgameStreet > e.g.MaxStreet && e.numThreads > 1 {
		e.split(node, state, prevCanons, vals)
	} else {
		pgbd := e.bt.GlobalIndex(state.RootBdSt, state.RootBd, pst, plbd)
		begin := e.bt.SuccBoardBegin(pst, pgbd, nst)
		end := e.bt.SuccBoardEnd(pst, pgbd, nst)
		for ngbd := begin; ngbd < end; ngbd++ {
			nlbd := e.bt.LocalIndex(state.RootBdSt, state.RootBd, nst, ngbd)
			boardState := *state
			boardState.TotalCardProbs = make([]float64, int(e.g.MaxCard())+1)
			boardState.SumOppProbs = CommonBetResponseCalcs(e.g, state.HandTree.Hands(nst, nlbd),
				state.OppProbs, boardState.TotalCardProbs)
			e.SetStreetBuckets(nst, ngbd, &boardState)
			nextVals := e.Process(node, nlbd, &boardState, nst)
			e.foldBoardVals(state, nst, ngbd, nlbd, nextVals, prevCanons, vals)
		}
	}

	e.normalizePrevStreet(nst, predHands, prevCanons, vals)
	return vals
}

// prevCanons maps each hand encoding on the previous street to the
// index of its canonical representative.
func (e *Engine) prevCanons(predHands *board.CanonicalHands) []int {
	prevCanons := make([]int, e.g.NumHandEncodings())
	num := predHands.NumRaw()
	for ph := 0; ph < num; ph++ {
		if predHands.NumVariants(ph) > 0 {
			prevCanons[encodeHand(e.g, predHands.Cards(ph))] = ph
		}
	}
	for ph := 0; ph < num; ph++ {
		if predHands.NumVariants(ph) == 0 {
			pc := prevCanons[encodeHand(e.g, predHands.Cards(predHands.Canon(ph)))]
			prevCanons[encodeHand(e.g, predHands.Cards(ph))] = pc
		}
	}
	return prevCanons
}

func (e *Engine) foldBoardVals(state *State, nst, ngbd, nlbd int, nextVals []float64, prevCanons []int, vals []float64) {
	hands := state.HandTree.Hands(nst, nlbd)
	variants := float64(e.bt.NumVariants(nst, ngbd))
	num := hands.NumRaw()
	for nh := 0; nh < num; nh++ {
		enc := encodeHand(e.g, hands.Cards(nh))
		vals[prevCanons[enc]] += variants * nextVals[nh]
	}
}

func (e *Engine) normalizePrevStreet(nst int, predHands *board.CanonicalHands, prevCanons []int, vals []float64) {
	scaleDown := float64(e.g.StreetPermutations(nst))
	num := predHands.NumRaw()
	for ph := 0; ph < num; ph++ {
		if v := predHands.NumVariants(ph); v > 0 {
			vals[ph] /= scaleDown * float64(v)
		}
	}
	for ph := 0; ph < num; ph++ {
		if predHands.NumVariants(ph) == 0 {
			vals[ph] = vals[prevCanons[encodeHand(e.g, predHands.Cards(predHands.Canon(ph)))]]
		}
	}
}

// SetStreetBuckets refreshes the bucket scratch array for the hands of
// board gbd on street st. Final-street hands are strength-sorted, so
// the bucket lookup goes through the unsorted hole-card-pair index.
func (e *Engine) SetStreetBuckets(st, gbd int, state *State) {
	if e.buckets.None(st) {
		return
	}
	lbd := e.bt.LocalIndex(state.RootBdSt, state.RootBd, st, gbd)
	hands := state.HandTree.Hands(st, lbd)
	boardCards := e.bt.Board(st, gbd)
	numHCP := e.g.NumHoleCardPairs(st)
	sb := state.StreetBuckets[st]
	for i := 0; i < hands.NumRaw(); i++ {
		var hcp int
		if st == e.g.MaxStreet {
			hcp = board.HCPIndex(e.g, boardCards, hands.Cards(i))
		} else {
			hcp = i
		}
		sb[i] = e.buckets.Bucket(st, gbd*numHCP+hcp)
	}
}

// split shards the street-initial board loop across workers, one board
// stripe each. Writes into the regret and sumprob arrays land at
// disjoint board offsets, so the shards need no locks.
func (e *Engine) split(node *betting.Node, state *State, prevCanons []int, vals []float64) {
	nst := node.St
	numBoards := e.bt.NumBoards(nst)
	prevNumHCP := len(vals)

	retVals := make([][]float64, e.numThreads)
	var wg sync.WaitGroup
	for t := 0; t < e.numThreads; t++ {
		retVals[t] = make([]float64, prevNumHCP)
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			streetBuckets := AllocateStreetBuckets(e.g)
			for bd := t; bd < numBoards; bd += e.numThreads {
				shardState := *state
				shardState.StreetBuckets = streetBuckets
				shardState.TotalCardProbs = make([]float64, int(e.g.MaxCard())+1)
				shardState.SumOppProbs = CommonBetResponseCalcs(e.g, state.HandTree.Hands(nst, bd),
					state.OppProbs, shardState.TotalCardProbs)
				e.SetStreetBuckets(nst, bd, &shardState)
				bdVals := e.Process(node, bd, &shardState, nst)
				hands := shardState.HandTree.Hands(nst, bd)
				variants := float64(e.bt.NumVariants(nst, bd))
				for h := 0; h < hands.NumRaw(); h++ {
					enc := encodeHand(e.g, hands.Cards(h))
					retVals[t][prevCanons[enc]] += variants * bdVals[h]
				}
			}
		}(t)
	}
	wg.Wait()
	for t := 0; t < e.numThreads; t++ {
		for i := 0; i < prevNumHCP; i++ {
			vals[i] += retVals[t][i]
		}
	}
}

// SetCurrentStrategy recomputes the bucketed current-strategy snapshot
// from regrets (or sumprobs during value passes) for every node under
// node. Called at the start of each half-iteration when any street is
// bucketed.
func (e *Engine) SetCurrentStrategy(node *betting.Node) {
	if node.IsTerminal() {
		return
	}
	numSuccs := node.NumSuccs()
	st := node.St
	nt := node.NonterminalID
	p := node.PlayerActing

	if e.CurrentStrategy != nil && e.CurrentStrategy.Player(p) && e.bucketedAt(node) && numSuccs > 1 {
		numBuckets := e.buckets.NumBuckets(st)
		nonterminalSuccs := make([]bool, numSuccs)
		numNonterminal := 0
		for s := 0; s < numSuccs; s++ {
			if !e.tree.Succ(node, s).IsTerminal() {
				nonterminalSuccs[s] = true
				numNonterminal++
			}
		}
		nonneg, explore, src := e.currentStrategySource(p, st)
		out := e.CurrentStrategy.DValues(p, st, nt)
		for b := 0; b < numBuckets; b++ {
			if src.Ints(p, st) {
				RegretsToProbs(src.IValues(p, st, nt)[b*numSuccs:], numSuccs, nonneg, e.cfg.Uniform,
					node.DefaultSucc, explore, numNonterminal, nonterminalSuccs, out[b*numSuccs:])
			} else {
				RegretsToProbs(src.DValues(p, st, nt)[b*numSuccs:], numSuccs, nonneg, e.cfg.Uniform,
					node.DefaultSucc, explore, numNonterminal, nonterminalSuccs, out[b*numSuccs:])
			}
		}
	}
	for s := 0; s < numSuccs; s++ {
		e.SetCurrentStrategy(e.tree.Succ(node, s))
	}
}
