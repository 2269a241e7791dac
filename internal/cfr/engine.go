package cfr

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/lox/egsolver/internal/abstraction"
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
	"github.com/lox/egsolver/internal/strategy"
)

const regretOverflowBound = 2000000000

// Engine is the vectorised CFR walker. One Engine serves training,
// best-response and CBR passes; mode flags select which reads and
// updates happen. The walk itself is single-threaded per recursion;
// board-sharded parallelism happens only inside StreetInitial.
type Engine struct {
	g       *game.Game
	bt      *board.Tree
	ev      *eval.Evaluator
	ca      *abstraction.CardAbstraction
	buckets *abstraction.Buckets
	cfg     *Config
	tree    *betting.Tree
	log     zerolog.Logger

	// Value stores; ownership is the caller's.
	Regrets         *strategy.Values
	Sumprobs        *strategy.Values
	CurrentStrategy *strategy.Values

	numThreads int

	// Mode flags, mirroring the subclass behaviours: best response
	// reads max over successors; value calculation suppresses all
	// updates and reads sumprobs; brCurrent evaluates against the
	// current (regret-derived) strategy instead.
	bestResponseStreets []bool
	brCurrent           bool
	valueCalculation    bool
	prune               bool
	prePhase            bool
	isSubgame           bool
	purify              bool

	p       int
	targetP int
	it      int

	subgameStreet int // beyond MaxStreet when disabled
	pool          *subgamePool
	finalVals     map[finalValsKey][]float64
	trunkHandTree *board.HandTree
}

type finalValsKey struct{ p, nt, lbd int }

// New builds an engine over tree. Stores are attached afterwards by
// the caller (they are moved in when resolving, allocated fresh when
// training).
func New(g *game.Game, bt *board.Tree, ev *eval.Evaluator, ca *abstraction.CardAbstraction,
	buckets *abstraction.Buckets, cfg *Config, tree *betting.Tree, numThreads int,
	log zerolog.Logger) *Engine {

	e := &Engine{
		g:             g,
		bt:            bt,
		ev:            ev,
		ca:            ca,
		buckets:       buckets,
		cfg:           cfg,
		tree:          tree,
		log:           log,
		numThreads:    numThreads,
		prune:         true,
		subgameStreet: g.MaxStreet + 1,
		finalVals:     map[finalValsKey][]float64{},
	}
	e.bestResponseStreets = make([]bool, g.MaxStreet+1)
	if cfg.SubgameStreet > 0 && cfg.SubgameStreet <= g.MaxStreet {
		e.subgameStreet = cfg.SubgameStreet
	}
	return e
}

// Game returns the engine's game definition.
func (e *Engine) Game() *game.Game { return e.g }

// Tree returns the betting tree the engine walks.
func (e *Engine) Tree() *betting.Tree { return e.tree }

// SetIt sets the iteration counter used for warmup gating.
func (e *Engine) SetIt(it int) { e.it = it }

// SetP sets the target player of the current half-iteration.
func (e *Engine) SetP(p int) { e.p = p }

// SetTargetP sets the resolver's target player.
func (e *Engine) SetTargetP(p int) { e.targetP = p }

// SetValueCalculation switches all updates off; reads come from
// sumprobs (the average strategy).
func (e *Engine) SetValueCalculation(b bool) { e.valueCalculation = b }

// SetBRCurrent makes value passes read the current regret-derived
// strategy rather than sumprobs.
func (e *Engine) SetBRCurrent(b bool) { e.brCurrent = b }

// SetBestResponseStreets enables best-response (max over successors)
// play on the given streets.
func (e *Engine) SetBestResponseStreets(sts []bool) {
	copy(e.bestResponseStreets, sts)
}

// SetAllBestResponse enables best-response play everywhere.
func (e *Engine) SetAllBestResponse(b bool) {
	for st := range e.bestResponseStreets {
		e.bestResponseStreets[st] = b
	}
}

// SetPrune controls whether zero-opponent-reach branches are skipped.
// CBR computation turns this off: zero-probability branches still need
// reported values.
func (e *Engine) SetPrune(b bool) { e.prune = b }

// SetSubgame marks this engine as solving a subgame, which disables
// subgame deferral inside it.
func (e *Engine) SetSubgame(b bool) { e.isSubgame = b }

// SetPurify makes opponent-choice nodes play the one-hot argmax of
// their strategy weights instead of the mixed strategy.
func (e *Engine) SetPurify(b bool) { e.purify = b }

// Process walks the subtree under node and returns, per canonical hand
// on the current board, the value for player p multiplied by the
// opponent reach mass it was computed against.
func (e *Engine) Process(node *betting.Node, lbd int, state *State, lastSt int) []float64 {
	st := node.St
	switch node.Terminal {
	case betting.Fold:
		return Fold(e.g, node, e.p, state.HandTree.Hands(st, lbd), state.OppProbs,
			state.SumOppProbs, state.TotalCardProbs)
	case betting.Showdown:
		return Showdown(e.g, node, state.HandTree.Hands(st, lbd), state.OppProbs,
			state.SumOppProbs, state.TotalCardProbs)
	}
	if st > lastSt {
		return e.StreetInitial(node, lbd, state)
	}
	if node.PlayerActing == e.p {
		return e.OurChoice(node, lbd, state)
	}
	return e.OppChoice(node, lbd, state)
}

// bucketedAt reports whether strategy at node lives in bucket space:
// the street carries buckets and the pot is under the abstraction's
// threshold.
func (e *Engine) bucketedAt(node *betting.Node) bool {
	return !e.buckets.None(node.St) && node.LastBetTo < e.ca.BucketThreshold(node.St)
}

// OurChoice recurses on every successor and combines the value vectors
// under the current strategy (or their max under best response), then
// applies the regret update.
func (e *Engine) OurChoice(node *betting.Node, lbd int, state *State) []float64 {
	st := node.St
	numSuccs := node.NumSuccs()
	numHCP := state.HandTree.Hands(st, lbd).NumRaw()
	succVals := make([][]float64, numSuccs)
	for s := 0; s < numSuccs; s++ {
		succState := state.ourSucc(node.ActionNames[s])
		succVals[s] = e.Process(e.tree.Succ(node, s), lbd, succState, st)
	}
	if numSuccs == 1 {
		return succVals[0]
	}

	vals := make([]float64, numHCP)
	if e.bestResponseStreets[st] {
		for i := 0; i < numHCP; i++ {
			max := succVals[0][i]
			for s := 1; s < numSuccs; s++ {
				if sv := succVals[s][i]; sv > max {
					max = sv
				}
			}
			vals[i] = max
		}
		return vals
	}

	nt := node.NonterminalID
	bucketed := e.bucketedAt(node)
	if bucketed && !e.valueCalculation && e.CurrentStrategy != nil {
		// CFR+ on a bucketed street uses the strategy snapshot from the
		// start of the half-iteration so in-pass regret updates cannot
		// perturb it.
		probs := e.CurrentStrategy.DValues(e.p, st, nt)
		sb := state.StreetBuckets[st]
		for i := 0; i < numHCP; i++ {
			row := probs[sb[i]*numSuccs:]
			for s := 0; s < numSuccs; s++ {
				vals[i] += succVals[s][i] * row[s]
			}
		}
		if !e.prePhase {
			if e.Regrets.Ints(e.p, st) {
				e.updateRegretsBucketedInts(node, sb, vals, succVals, e.Regrets.IValues(e.p, st, nt))
			} else {
				e.updateRegretsBucketedDoubles(node, sb, vals, succVals, e.Regrets.DValues(e.p, st, nt))
			}
		}
		return vals
	}

	nonneg, explore, src := e.currentStrategySource(e.p, st)
	nonterminalSuccs := make([]bool, numSuccs)
	numNonterminal := 0
	for s := 0; s < numSuccs; s++ {
		if !e.tree.Succ(node, s).IsTerminal() {
			nonterminalSuccs[s] = true
			numNonterminal++
		}
	}
	probs := make([]float64, numSuccs)
	sb := state.StreetBuckets[st]
	rowOffset := func(i int) int {
		if bucketed {
			return sb[i] * numSuccs
		}
		return (lbd*e.g.NumHoleCardPairs(st) + i) * numSuccs
	}
	if src.Ints(e.p, st) {
		csVals := src.IValues(e.p, st, nt)
		for i := 0; i < numHCP; i++ {
			RegretsToProbs(csVals[rowOffset(i):], numSuccs, nonneg, e.cfg.Uniform,
				node.DefaultSucc, explore, numNonterminal, nonterminalSuccs, probs)
			for s := 0; s < numSuccs; s++ {
				vals[i] += succVals[s][i] * probs[s]
			}
		}
		if !bucketed && !e.valueCalculation && !e.prePhase {
			e.updateRegretsInts(node, vals, succVals, csVals[lbd*e.g.NumHoleCardPairs(st)*numSuccs:])
		}
	} else {
		csVals := src.DValues(e.p, st, nt)
		for i := 0; i < numHCP; i++ {
			RegretsToProbs(csVals[rowOffset(i):], numSuccs, nonneg, e.cfg.Uniform,
				node.DefaultSucc, explore, numNonterminal, nonterminalSuccs, probs)
			for s := 0; s < numSuccs; s++ {
				vals[i] += succVals[s][i] * probs[s]
			}
		}
		if !bucketed && !e.valueCalculation && !e.prePhase {
			e.updateRegretsDoubles(node, vals, succVals, csVals[lbd*e.g.NumHoleCardPairs(st)*numSuccs:])
		}
	}
	return vals
}

// currentStrategySource resolves which store supplies the current
// strategy weights: sumprobs in a value pass (no exploration, weights
// known non-negative), regrets otherwise.
func (e *Engine) currentStrategySource(p, st int) (nonneg bool, explore float64, src *strategy.Values) {
	if e.valueCalculation && !e.brCurrent {
		return true, 0, e.Sumprobs
	}
	return e.cfg.NNRegrets && e.cfg.regretFloor(st) >= 0, e.cfg.Explore, e.Regrets
}

func (e *Engine) updateRegretsInts(node *betting.Node, vals []float64, succVals [][]float64, regrets []int32) {
	st := node.St
	numSuccs := node.NumSuccs()
	numHCP := len(vals)
	scale := perStreetFloat(e.cfg.RegretScaling, st, 1.0)
	floor := e.cfg.regretFloor(st)
	ceiling := e.cfg.regretCeiling(st)
	if e.cfg.NNRegrets {
		for i := 0; i < numHCP; i++ {
			row := regrets[i*numSuccs:]
			for s := 0; s < numSuccs; s++ {
				d := succVals[s][i] - vals[i]
				r := int64(row[s]) + int64(math.Round(d*scale))
				switch {
				case r < int64(floor):
					row[s] = floor
				case r > int64(ceiling):
					row[s] = ceiling
				default:
					row[s] = int32(r)
				}
			}
		}
		return
	}
	tmp := make([]int64, numSuccs)
	for i := 0; i < numHCP; i++ {
		row := regrets[i*numSuccs:]
		overflow := false
		for s := 0; s < numSuccs; s++ {
			d := succVals[s][i] - vals[i]
			tmp[s] = int64(row[s]) + int64(math.Round(d*scale))
			if tmp[s] < -regretOverflowBound || tmp[s] > regretOverflowBound {
				overflow = true
			}
		}
		for s := 0; s < numSuccs; s++ {
			if overflow {
				tmp[s] /= 2
			}
			row[s] = int32(clampInt64(tmp[s], math.MinInt32, math.MaxInt32))
		}
	}
}

func (e *Engine) updateRegretsDoubles(node *betting.Node, vals []float64, succVals [][]float64, regrets []float64) {
	st := node.St
	numSuccs := node.NumSuccs()
	numHCP := len(vals)
	if e.cfg.NNRegrets {
		floor := float64(e.cfg.regretFloor(st))
		ceiling := float64(e.cfg.regretCeiling(st))
		for i := 0; i < numHCP; i++ {
			row := regrets[i*numSuccs:]
			for s := 0; s < numSuccs; s++ {
				r := row[s] + succVals[s][i] - vals[i]
				switch {
				case r < floor:
					row[s] = floor
				case r > ceiling:
					row[s] = ceiling
				default:
					row[s] = r
				}
			}
		}
		return
	}
	for i := 0; i < numHCP; i++ {
		row := regrets[i*numSuccs:]
		for s := 0; s < numSuccs; s++ {
			row[s] += succVals[s][i] - vals[i]
		}
	}
}

// Bucketed regret updates accumulate deltas into shared bucket rows;
// flooring happens in a post-pass so hands mapping to one bucket sum
// before the clamp.
func (e *Engine) updateRegretsBucketedInts(node *betting.Node, sb []int, vals []float64, succVals [][]float64, regrets []int32) {
	st := node.St
	numSuccs := node.NumSuccs()
	scale := perStreetFloat(e.cfg.RegretScaling, st, 1.0)
	ceiling := e.cfg.regretCeiling(st)
	for i := range vals {
		row := regrets[sb[i]*numSuccs:]
		overflow := false
		for s := 0; s < numSuccs; s++ {
			d := succVals[s][i] - vals[i]
			r := int64(row[s]) + int64(math.Round(d*scale))
			if e.cfg.NNRegrets {
				row[s] = int32(clampInt64(r, math.MinInt32, int64(ceiling)))
				continue
			}
			if r < -regretOverflowBound || r > regretOverflowBound {
				overflow = true
			}
			row[s] = int32(clampInt64(r, math.MinInt32, math.MaxInt32))
		}
		if overflow {
			for s := 0; s < numSuccs; s++ {
				row[s] /= 2
			}
		}
	}
}

func (e *Engine) updateRegretsBucketedDoubles(node *betting.Node, sb []int, vals []float64, succVals [][]float64, regrets []float64) {
	numSuccs := node.NumSuccs()
	ceiling := float64(e.cfg.regretCeiling(node.St))
	for i := range vals {
		row := regrets[sb[i]*numSuccs:]
		for s := 0; s < numSuccs; s++ {
			r := row[s] + succVals[s][i] - vals[i]
			if e.cfg.NNRegrets && r > ceiling {
				r = ceiling
			}
			row[s] = r
		}
	}
}

func clampInt64(x, lo, hi int64) int64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
