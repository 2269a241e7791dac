package resolve

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lox/egsolver/internal/abstraction"
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/cfr"
	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
	"github.com/lox/egsolver/internal/paths"
	"github.com/lox/egsolver/internal/strategy"
)

// Options configures a resolving run.
type Options struct {
	SolveStreet   int
	Method        Method
	CFRs          bool // average response values instead of best response
	ZeroSum       bool
	Current       bool // CVs against the current strategy (regrets) instead of the average
	PureStreets   []bool
	BaseMem       bool // trunk strategy held in memory for the whole run
	BaseIt        int
	NumEndgameIts int
	NumThreads    int
	Nested        bool
	Internal      bool
	Progressive   bool   // endgame bet sizes at the subgame root only; base sizes below
	CVFiles       bool   // read seed CVs from build-cbrs output instead of computing
	CVKind        string // cbrs or cfrs when CVFiles is set
}

// Solver drives the resolving pipeline: it walks the base tree from
// the root, propagating both players' reach probabilities through the
// base average strategy, and re-solves every subgame rooted on the
// solve street.
type Solver struct {
	g  *game.Game
	bt *board.Tree
	ev *eval.Evaluator

	baseCA      *abstraction.CardAbstraction
	egCA        *abstraction.CardAbstraction
	baseBuckets *abstraction.Buckets
	egBuckets   *abstraction.Buckets
	baseBA      *betting.Abstraction
	egBA        *betting.Abstraction
	baseCfg     *cfr.Config
	egCfg       *cfr.Config

	baseTree      *betting.Tree
	trunkSumprobs *strategy.Values
	trunkRegrets  *strategy.Values
	trunkHandTree *board.HandTree

	roots      paths.Roots
	baseSystem paths.System
	opts       Options
	log        zerolog.Logger
}

// baseCtx names the strategy a resolve reads its boundary conditions
// from: the trunk for the first resolve, the freshly solved subgame in
// nested mode.
type baseCtx struct {
	tree     *betting.Tree
	sumprobs *strategy.Values
	handTree *board.HandTree
	rootBdSt int
	rootBd   int
	ca       *abstraction.CardAbstraction
	buckets  *abstraction.Buckets
	cfg      *cfr.Config
}

// NewSolver loads the base trunk strategy and prepares the pipeline.
func NewSolver(g *game.Game, bt *board.Tree, ev *eval.Evaluator,
	baseCA, egCA *abstraction.CardAbstraction, baseBuckets, egBuckets *abstraction.Buckets,
	baseBA, egBA *betting.Abstraction, baseCfg, egCfg *cfr.Config,
	roots paths.Roots, opts Options, log zerolog.Logger) (*Solver, error) {

	if opts.Internal && !opts.Nested {
		return nil, fmt.Errorf("internal resolving requires nested mode")
	}
	s := &Solver{
		g: g, bt: bt, ev: ev,
		baseCA: baseCA, egCA: egCA,
		baseBuckets: baseBuckets, egBuckets: egBuckets,
		baseBA: baseBA, egBA: egBA,
		baseCfg: baseCfg, egCfg: egCfg,
		roots:   roots,
		opts:    opts,
		log:     log,
	}
	if len(s.opts.PureStreets) == 0 {
		s.opts.PureStreets = make([]bool, g.MaxStreet+1)
	}
	s.baseSystem = paths.System{
		GameName:   g.Name,
		NumPlayers: g.NumPlayers,
		CardAbs:    baseCA.Name,
		NumRanks:   g.NumRanks,
		NumSuits:   g.NumSuits,
		MaxStreet:  g.MaxStreet,
		BetAbs:     baseBA.Name,
		CFRConfig:  baseCfg.Name,
		AsymP:      -1,
	}
	s.baseTree = betting.Build(g, baseBA)

	maxSt := g.MaxStreet
	trunkStreets := make([]bool, maxSt+1)
	for st := 0; st <= maxSt; st++ {
		trunkStreets[st] = (opts.BaseMem && !opts.Current) || st < opts.SolveStreet
	}
	s.trunkSumprobs = strategy.New(g, bt, s.baseTree, baseCA, baseBuckets, strategy.Params{
		Sumprobs: true, Streets: trunkStreets,
		Compressed: baseCfg.CompressedMask(maxSt),
	})
	baseDir := s.baseSystem.Dir(roots.Old)
	if err := s.trunkSumprobs.Read(baseDir, opts.BaseIt, s.baseTree.Root(), -1); err != nil {
		return nil, fmt.Errorf("loading base strategy: %w", err)
	}
	if opts.BaseMem && opts.Current {
		egStreets := make([]bool, maxSt+1)
		for st := 0; st <= maxSt; st++ {
			egStreets[st] = st >= opts.SolveStreet
		}
		s.trunkRegrets = strategy.New(g, bt, s.baseTree, baseCA, baseBuckets, strategy.Params{
			Sumprobs: false, Streets: egStreets,
			Compressed: baseCfg.CompressedMask(maxSt),
		})
		if err := s.trunkRegrets.Read(baseDir, opts.BaseIt, s.baseTree.Root(), -1); err != nil {
			return nil, fmt.Errorf("loading base regrets: %w", err)
		}
	}
	if opts.BaseMem {
		s.trunkHandTree = board.NewHandTree(g, bt, ev, 0, 0, maxSt)
	} else if opts.SolveStreet > 0 {
		s.trunkHandTree = board.NewHandTree(g, bt, ev, 0, 0, opts.SolveStreet-1)
	} else {
		s.trunkHandTree = board.NewHandTree(g, bt, ev, 0, 0, 0)
	}
	return s, nil
}

// Walk resolves every reachable subgame on the solve street.
func (s *Solver) Walk() error {
	reach := [2][]float64{}
	numEnc := s.g.NumHandEncodings()
	preflop := s.trunkHandTree.Hands(0, 0)
	for p := 0; p < 2; p++ {
		reach[p] = make([]float64, numEnc)
		for i := 0; i < preflop.NumRaw(); i++ {
			reach[p][encode(s.g, preflop.Cards(i))] = 1.0
		}
	}
	ctx := &baseCtx{
		tree:     s.baseTree,
		sumprobs: s.trunkSumprobs,
		handTree: s.trunkHandTree,
		ca:       s.baseCA,
		buckets:  s.baseBuckets,
		cfg:      s.baseCfg,
	}
	return s.walk(ctx, s.baseTree.Root(), "x", 0, reach, 0, false)
}

func (s *Solver) walk(ctx *baseCtx, node *betting.Node, actionSequence string, gbd int,
	reach [2][]float64, lastSt int, facingBet bool) error {

	if node.IsTerminal() {
		return nil
	}
	st := node.St
	if st > lastSt {
		return s.streetInitial(ctx, node, actionSequence, gbd, reach, st)
	}
	if st == s.opts.SolveStreet && ctx.rootBdSt < s.opts.SolveStreet {
		// Street-initial node on the solve street, reached after the
		// board loop above.
		return s.resolve(ctx, node, gbd, actionSequence, reach)
	}
	if s.opts.Internal && st > s.opts.SolveStreet && !facingBet && ctx.rootBdSt >= s.opts.SolveStreet {
		if err := s.resolve(ctx, node, gbd, actionSequence, reach); err != nil {
			return err
		}
	}

	succReach, err := GetSuccReachProbs(s.g, s.bt, ctx.buckets, node, gbd, ctx.handTree,
		ctx.sumprobs, reach, ctx.rootBdSt, ctx.rootBd, s.opts.PureStreets[st])
	if err != nil {
		return err
	}
	for sIdx := 0; sIdx < node.NumSuccs(); sIdx++ {
		bet := sIdx != node.CallSucc && sIdx != node.FoldSucc
		if err := s.walk(ctx, ctx.tree.Succ(node, sIdx), actionSequence+node.ActionNames[sIdx],
			gbd, succReach[sIdx], st, bet); err != nil {
			return err
		}
	}
	return nil
}

// streetInitial iterates successor boards, sharding street 1 across
// workers. Each worker writes endgame files for disjoint boards, so
// the shards share nothing mutable.
func (s *Solver) streetInitial(ctx *baseCtx, node *betting.Node, actionSequence string,
	pgbd int, reach [2][]float64, nst int) error {

	pst := nst - 1
	begin := s.bt.SuccBoardBegin(pst, pgbd, nst)
	end := s.bt.SuccBoardEnd(pst, pgbd, nst)
	if nst == 1 && s.opts.NumThreads > 1 && ctx.rootBdSt == 0 {
		var eg errgroup.Group
		eg.SetLimit(s.opts.NumThreads)
		for ngbd := begin; ngbd < end; ngbd++ {
			eg.Go(func() error {
				return s.walk(ctx, node, actionSequence, ngbd, reach, nst, false)
			})
		}
		return eg.Wait()
	}
	for ngbd := begin; ngbd < end; ngbd++ {
		if err := s.walk(ctx, node, actionSequence, ngbd, reach, nst, false); err != nil {
			return err
		}
	}
	return nil
}

// resolve rebuilds and re-solves the subgame rooted at node on board
// gbd, writes the refined strategy, and in nested mode with the Unsafe
// method continues the walk inside it with the fresh solve as the new
// base. The seeded methods keep only the target player's sumprobs, so
// nested mode does not continue after them.
func (s *Solver) resolve(ctx *baseCtx, node *betting.Node, gbd int, actionSequence string,
	reach [2][]float64) error {

	st := node.St
	s.log.Info().Str("action_sequence", actionSequence).Int("street", st).
		Int("nt", node.NonterminalID).Int("board", gbd).Msg("resolving subgame")

	handTree := board.NewHandTree(s.g, s.bt, s.ev, st, gbd, s.g.MaxStreet)
	eg := NewEGCFR(s.g, s.bt, s.ev, s.egCA, s.egBuckets, s.egCfg, st, s.opts.Method, s.opts.ZeroSum, s.log)

	numAsym := 1
	if s.baseBA.Asymmetric {
		numAsym = s.g.NumPlayers
	}
	for asymP := 0; asymP < numAsym; asymP++ {
		targetP := -1
		if s.egBA.Asymmetric {
			targetP = asymP
		}
		var subtree *betting.Tree
		if s.opts.Progressive {
			subtree = betting.CreateProgressiveSubtree(s.g, s.egBA, s.baseBA, st, 0, node.LastBetTo, 0, node.PlayerActing, targetP)
		} else {
			subtree = betting.CreateNoLimitSubtree(s.g, s.egBA, st, 0, node.LastBetTo, 0, node.PlayerActing, targetP)
		}

		sys := s.baseSystem
		if s.baseBA.Asymmetric {
			sys.AsymP = asymP
		}
		sysDir := sys.Dir(s.roots.New)

		if s.opts.Method == Unsafe {
			eg.SolveSubgame(subtree, gbd, reach, handTree, nil, 0, true, s.opts.NumEndgameIts)
			for solveP := 0; solveP < s.g.NumPlayers; solveP++ {
				dir := paths.EndgameDir(sysDir, s.egCA.Name, s.egBA.Name, s.egCfg.Name,
					s.opts.Method.String(), asymP, solveP)
				if err := WriteEndgame(s.g, s.bt, subtree, subtree.Root(), actionSequence, actionSequence,
					gbd, dir, eg.Sumprobs(), st, gbd, solveP, st); err != nil {
					return err
				}
			}
		} else {
			for solveP := 0; solveP < s.g.NumPlayers; solveP++ {
				tVals, err := s.computeCVs(ctx, node, gbd, actionSequence, reach, handTree, solveP)
				if err != nil {
					return err
				}
				eg.SolveSubgame(subtree, gbd, reach, handTree, tVals, solveP, false, s.opts.NumEndgameIts)
				dir := paths.EndgameDir(sysDir, s.egCA.Name, s.egBA.Name, s.egCfg.Name,
					s.opts.Method.String(), asymP, solveP)
				if err := WriteEndgame(s.g, s.bt, subtree, subtree.Root(), actionSequence, actionSequence,
					gbd, dir, eg.Sumprobs(), st, gbd, solveP, st); err != nil {
					return err
				}
			}
		}

		if s.opts.Nested && st < s.g.MaxStreet && s.opts.Method == Unsafe {
			nestedCtx := &baseCtx{
				tree:     subtree,
				sumprobs: eg.Sumprobs(),
				handTree: handTree,
				rootBdSt: st,
				rootBd:   gbd,
				ca:       s.egCA,
				buckets:  s.egBuckets,
				cfg:      s.egCfg,
			}
			if err := s.walkNested(nestedCtx, subtree.Root(), actionSequence, gbd, reach, st, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// walkNested continues the walk inside a freshly resolved subgame,
// re-resolving at every subsequent street-initial node (and, in
// internal mode, at interior no-bet-pending decision nodes) with the
// resolved strategy as the base.
func (s *Solver) walkNested(ctx *baseCtx, node *betting.Node, actionSequence string, gbd int,
	reach [2][]float64, lastSt int, facingBet bool) error {

	if node.IsTerminal() {
		return nil
	}
	st := node.St
	if st > lastSt {
		begin := s.bt.SuccBoardBegin(lastSt, gbd, st)
		end := s.bt.SuccBoardEnd(lastSt, gbd, st)
		for ngbd := begin; ngbd < end; ngbd++ {
			if err := s.resolve(ctx, node, ngbd, actionSequence, reach); err != nil {
				return err
			}
		}
		return nil
	}
	if s.opts.Internal && !facingBet && node.NumSuccs() > 1 && st > ctx.rootBdSt {
		if err := s.resolve(ctx, node, gbd, actionSequence, reach); err != nil {
			return err
		}
	}
	succReach, err := GetSuccReachProbs(s.g, s.bt, ctx.buckets, node, gbd, ctx.handTree,
		ctx.sumprobs, reach, ctx.rootBdSt, ctx.rootBd, s.opts.PureStreets[st])
	if err != nil {
		return err
	}
	for sIdx := 0; sIdx < node.NumSuccs(); sIdx++ {
		bet := sIdx != node.CallSucc && sIdx != node.FoldSucc
		if err := s.walkNested(ctx, ctx.tree.Succ(node, sIdx), actionSequence+node.ActionNames[sIdx],
			gbd, succReach[sIdx], st, bet); err != nil {
			return err
		}
	}
	return nil
}

// computeCVs produces the villain's per-hand CVs at the subgame root
// from the base strategy, in memory or by re-reading the base endgame
// strategy from disk.
func (s *Solver) computeCVs(ctx *baseCtx, node *betting.Node, gbd int, actionSequence string,
	reach [2][]float64, handTree *board.HandTree, solveP int) ([]float64, error) {

	st := node.St
	purify := s.opts.PureStreets[st]
	if s.opts.CVFiles && ctx.rootBdSt == 0 {
		hands := handTree.Hands(st, 0)
		kind := s.opts.CVKind
		if kind == "" {
			kind = "cbrs"
		}
		return LoadOppCVs(s.g, s.log, s.baseSystem.Dir(s.roots.New), kind, s.opts.BaseIt,
			actionSequence, gbd, node, reach, hands, solveP, s.opts.ZeroSum)
	}
	if s.opts.BaseMem || ctx.rootBdSt > 0 {
		dcbr := NewDynamicCBR(s.g, s.bt, s.ev, ctx.ca, ctx.buckets, ctx.cfg, ctx.tree, s.log)
		if s.opts.Current && s.trunkRegrets != nil && ctx.rootBdSt == 0 {
			dcbr.MoveRegrets(s.trunkRegrets)
		} else {
			dcbr.MoveSumprobs(ctx.sumprobs)
		}
		return dcbr.Compute(node, reach, gbd, ctx.handTree, ctx.rootBdSt, ctx.rootBd,
			solveP^1, s.opts.CFRs, s.opts.ZeroSum, s.opts.Current && ctx.rootBdSt == 0, purify), nil
	}

	// Disk mode: rebuild a base-shaped subtree and read only its
	// portion of the full base strategy.
	baseSubtree := betting.CreateNoLimitSubtree(s.g, s.baseBA, st, 0, node.LastBetTo, 0, node.PlayerActing, -1)
	maxSt := s.g.MaxStreet
	streets := make([]bool, maxSt+1)
	for st2 := 0; st2 <= maxSt; st2++ {
		streets[st2] = st2 >= st
	}
	sub := strategy.New(s.g, s.bt, baseSubtree, s.baseCA, s.baseBuckets, strategy.Params{
		Sumprobs: !s.opts.Current, Streets: streets, RootBdSt: st, RootBd: gbd,
		Compressed: s.baseCfg.CompressedMask(maxSt),
	})
	numFullHoldings := make([]int, maxSt+1)
	for st2 := 0; st2 <= maxSt; st2++ {
		if s.baseBuckets.None(st2) {
			numFullHoldings[st2] = s.bt.NumBoards(st2) * s.g.NumHoleCardPairs(st2)
		} else {
			numFullHoldings[st2] = s.baseBuckets.NumBuckets(st2)
		}
	}
	baseDir := s.baseSystem.Dir(s.roots.Old)
	if err := sub.ReadSubtreeFromFull(baseDir, s.opts.BaseIt, s.baseTree, s.baseTree.Root(),
		node, baseSubtree.Root(), numFullHoldings, -1); err != nil {
		return nil, fmt.Errorf("reading base endgame strategy: %w", err)
	}
	dcbr := NewDynamicCBR(s.g, s.bt, s.ev, s.baseCA, s.baseBuckets, s.baseCfg, baseSubtree, s.log)
	if s.opts.Current {
		dcbr.MoveRegrets(sub)
	} else {
		dcbr.MoveSumprobs(sub)
	}
	return dcbr.Compute(baseSubtree.Root(), reach, gbd, handTree, st, gbd,
		solveP^1, s.opts.CFRs, s.opts.ZeroSum, s.opts.Current, purify), nil
}
