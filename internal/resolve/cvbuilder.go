package resolve

import (
	"github.com/rs/zerolog"

	"github.com/lox/egsolver/internal/abstraction"
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
	"github.com/lox/egsolver/internal/paths"
	"github.com/lox/egsolver/internal/strategy"
)

// CVBuilder writes per-hand counterfactual value files for every
// subgame root on one street: the persisted form of what DynamicCBR
// computes, for resolvers that prefer to read their seeds from disk.
type CVBuilder struct {
	g        *game.Game
	bt       *board.Tree
	ev       *eval.Evaluator
	buckets  *abstraction.Buckets
	tree     *betting.Tree
	sumprobs *strategy.Values
	dcbr     *DynamicCBR
	log      zerolog.Logger
}

// NewCVBuilder assembles a builder over the base tree and strategy.
func NewCVBuilder(g *game.Game, bt *board.Tree, ev *eval.Evaluator,
	buckets *abstraction.Buckets, tree *betting.Tree, sumprobs *strategy.Values,
	dcbr *DynamicCBR, log zerolog.Logger) *CVBuilder {

	return &CVBuilder{g: g, bt: bt, ev: ev, buckets: buckets, tree: tree,
		sumprobs: sumprobs, dcbr: dcbr, log: log}
}

// Build walks the tree and writes one value file per (player, action
// sequence, board) at each street-initial node on street.
func (b *CVBuilder) Build(systemDir, kind string, street, it int,
	handTree *board.HandTree, cfrs bool) error {

	reach := [2][]float64{}
	preflop := handTree.Hands(0, 0)
	for p := 0; p < 2; p++ {
		reach[p] = make([]float64, b.g.NumHandEncodings())
		for i := 0; i < preflop.NumRaw(); i++ {
			reach[p][encode(b.g, preflop.Cards(i))] = 1.0
		}
	}
	return b.walk(b.tree.Root(), "x", 0, reach, 0, systemDir, kind, street, it, handTree, cfrs)
}

func (b *CVBuilder) walk(node *betting.Node, actionSequence string, gbd int,
	reach [2][]float64, lastSt int, systemDir, kind string, street, it int,
	handTree *board.HandTree, cfrs bool) error {

	if node.IsTerminal() {
		return nil
	}
	st := node.St
	if st > lastSt {
		pst := st - 1
		begin := b.bt.SuccBoardBegin(pst, gbd, st)
		end := b.bt.SuccBoardEnd(pst, gbd, st)
		for ngbd := begin; ngbd < end; ngbd++ {
			if err := b.walk(node, actionSequence, ngbd, reach, st, systemDir, kind,
				street, it, handTree, cfrs); err != nil {
				return err
			}
		}
		return nil
	}
	if st == street {
		for p := 0; p < 2; p++ {
			cvs := b.dcbr.Compute(node, reach, gbd, handTree, 0, 0, p, cfrs, false, false, false)
			dir := paths.CVDir(systemDir, kind, it, p, actionSequence)
			if err := WriteCVs(dir, gbd, cvs); err != nil {
				return err
			}
		}
		return nil
	}
	succReach, err := GetSuccReachProbs(b.g, b.bt, b.buckets, node, gbd, handTree,
		b.sumprobs, reach, 0, 0, false)
	if err != nil {
		return err
	}
	for s := 0; s < node.NumSuccs(); s++ {
		if err := b.walk(b.tree.Succ(node, s), actionSequence+node.ActionNames[s], gbd,
			succReach[s], st, systemDir, kind, street, it, handTree, cfrs); err != nil {
			return err
		}
	}
	return nil
}
