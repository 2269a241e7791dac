package resolve

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lox/egsolver/internal/abstraction"
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/cfr"
	"github.com/lox/egsolver/internal/fileutil"
	"github.com/lox/egsolver/internal/game"
	"github.com/lox/egsolver/internal/paths"
	"github.com/lox/egsolver/internal/strategy"
)

// GetSuccReachProbs propagates both players' reach vectors through the
// acting player's average strategy at node: the actor's entries scale
// by the action probability, the other player's pass through. With
// purify the probability collapses to the argmax.
func GetSuccReachProbs(g *game.Game, bt *board.Tree, buckets *abstraction.Buckets,
	node *betting.Node, gbd int, handTree *board.HandTree, sumprobs *strategy.Values,
	reachProbs [2][]float64, rootBdSt, rootBd int, purify bool) ([][2][]float64, error) {

	numSuccs := node.NumSuccs()
	numEnc := g.NumHandEncodings()
	succReachProbs := make([][2][]float64, numSuccs)
	for s := 0; s < numSuccs; s++ {
		for p := 0; p < 2; p++ {
			succReachProbs[s][p] = make([]float64, numEnc)
		}
	}
	st := node.St
	pa := node.PlayerActing
	nt := node.NonterminalID
	if nt >= sumprobs.NumNonterminals(pa, st) {
		return nil, fmt.Errorf("succ reach probs: nonterminal id %d out of bounds (%d)", nt, sumprobs.NumNonterminals(pa, st))
	}
	dsi := node.DefaultSucc
	lbd := bt.LocalIndex(rootBdSt, rootBd, st, gbd)
	hands := handTree.Hands(st, lbd)
	numHCP := g.NumHoleCardPairs(st)
	probs := make([]float64, numSuccs)
	boardCards := bt.Board(st, gbd)

	for i := 0; i < hands.NumRaw(); i++ {
		cards := hands.Cards(i)
		enc := encode(g, cards)
		var offset int
		if buckets.None(st) {
			// Board-keyed rows follow the hand iteration order, which is
			// strength-sorted on the last street.
			offset = (lbd*numHCP + i) * numSuccs
		} else {
			hcp := i
			if st == g.MaxStreet {
				hcp = board.HCPIndex(g, boardCards, cards)
			}
			offset = buckets.Bucket(st, lbd*numHCP+hcp) * numSuccs
		}
		if purify {
			if sumprobs.Ints(pa, st) {
				cfr.PureProbs(sumprobs.IValues(pa, st, nt)[offset:], numSuccs, probs)
			} else {
				cfr.PureProbs(sumprobs.DValues(pa, st, nt)[offset:], numSuccs, probs)
			}
		} else {
			for s := 0; s < numSuccs; s++ {
				probs[s] = sumprobs.Prob(pa, st, nt, offset, s, numSuccs, dsi)
			}
		}
		for s := 0; s < numSuccs; s++ {
			if probs[s] > 1.0 {
				return nil, fmt.Errorf("succ reach probs: probability %f > 1 at st%d nt%d", probs[s], st, nt)
			}
			for p := 0; p < 2; p++ {
				if p == pa {
					succReachProbs[s][p][enc] = reachProbs[p][enc] * probs[s]
				} else {
					succReachProbs[s][p][enc] = reachProbs[p][enc]
				}
			}
		}
	}
	return succReachProbs, nil
}

// WriteEndgame walks the resolved subtree and, at every target-player
// decision node with more than one successor whose action sequence
// extends belowActionSequence, writes the current board's sumprob rows
// to <endgameDir>/<action_sequence>/<gbd>. Later-street nodes write one
// file per successor board.
func WriteEndgame(g *game.Game, bt *board.Tree, tree *betting.Tree, node *betting.Node,
	actionSequence, belowActionSequence string, gbd int, endgameDir string,
	sumprobs *strategy.Values, rootBdSt, rootBd, targetPA, lastSt int) error {

	if node.IsTerminal() {
		return nil
	}
	st := node.St
	if st > lastSt {
		begin := bt.SuccBoardBegin(lastSt, gbd, st)
		end := bt.SuccBoardEnd(lastSt, gbd, st)
		for ngbd := begin; ngbd < end; ngbd++ {
			if err := WriteEndgame(g, bt, tree, node, actionSequence, belowActionSequence,
				ngbd, endgameDir, sumprobs, rootBdSt, rootBd, targetPA, st); err != nil {
				return err
			}
		}
		return nil
	}
	numSuccs := node.NumSuccs()
	if node.PlayerActing == targetPA && numSuccs > 1 && hasPrefix(actionSequence, belowActionSequence) {
		if actionSequence == "" {
			return fmt.Errorf("write endgame: empty action sequence")
		}
		numHCP := g.NumHoleCardPairs(st)
		lbd := bt.LocalIndex(rootBdSt, rootBd, st, gbd)
		offset := lbd * numHCP * numSuccs
		var buf bytes.Buffer
		if err := sumprobs.WriteNode(node, &buf, numHCP, offset); err != nil {
			return err
		}
		path := paths.EndgameFile(endgameDir, actionSequence, gbd)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing endgame node: %w", err)
		}
	}
	for s := 0; s < numSuccs; s++ {
		if err := WriteEndgame(g, bt, tree, tree.Succ(node, s), actionSequence+node.ActionNames[s],
			belowActionSequence, gbd, endgameDir, sumprobs, rootBdSt, rootBd, targetPA, st); err != nil {
			return err
		}
	}
	return nil
}

// ReadEndgame mirrors WriteEndgame, loading a resolved subgame strategy
// back into sumprobs. The files always hold doubles: endgame solving is
// unabstracted.
func ReadEndgame(g *game.Game, bt *board.Tree, tree *betting.Tree, node *betting.Node,
	actionSequence string, gbd int, endgameDir string, sumprobs *strategy.Values,
	rootBdSt, rootBd, targetPA, lastSt int) error {

	if node.IsTerminal() {
		return nil
	}
	st := node.St
	if st > lastSt {
		begin := bt.SuccBoardBegin(lastSt, gbd, st)
		end := bt.SuccBoardEnd(lastSt, gbd, st)
		for ngbd := begin; ngbd < end; ngbd++ {
			if err := ReadEndgame(g, bt, tree, node, actionSequence, ngbd, endgameDir,
				sumprobs, rootBdSt, rootBd, targetPA, st); err != nil {
				return err
			}
		}
		return nil
	}
	numSuccs := node.NumSuccs()
	if node.PlayerActing == targetPA && numSuccs > 1 {
		path := paths.EndgameFile(endgameDir, actionSequence, gbd)
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("reading endgame node: %w", err)
		}
		numHCP := g.NumHoleCardPairs(st)
		lbd := bt.LocalIndex(rootBdSt, rootBd, st, gbd)
		offset := lbd * numHCP * numSuccs
		err = sumprobs.ReadNode(node, f, numHCP, offset, false)
		f.Close()
		if err != nil {
			return err
		}
	}
	for s := 0; s < numSuccs; s++ {
		if err := ReadEndgame(g, bt, tree, tree.Succ(node, s), actionSequence+node.ActionNames[s],
			gbd, endgameDir, sumprobs, rootBdSt, rootBd, targetPA, st); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(prefix) <= len(s) && s[:len(prefix)] == prefix
}
