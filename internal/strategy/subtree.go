package strategy

import (
	"fmt"
	"io"

	"github.com/lox/egsolver/internal/betting"
)

// ReadSubtreeFromFull copies out of a full-tree on-disk strategy only
// the portion rooted at an internal node, remapping nonterminal ids
// onto this store's dense subtree ids. numFullHoldings gives the full
// store's first-dimension size per street (board-keyed or buckets).
// The receiver must be a store over the subtree betting tree, rooted at
// its (root board street, root board).
func (v *Values) ReadSubtreeFromFull(dir string, it int, fullTree *betting.Tree,
	fullRoot, fullSubRoot, subRoot *betting.Node, numFullHoldings []int, onlyP int) error {

	readers := map[[2]int]*streamReader{}
	defer func() {
		for _, r := range readers {
			r.close()
		}
	}()
	for p := 0; p < 2; p++ {
		if !v.players[p] || (onlyP >= 0 && p != onlyP) {
			continue
		}
		for st := fullRoot.St; st <= v.g.MaxStreet; st++ {
			if !v.streets[st] || fullTree.NumNonterminals(p, st) == 0 {
				continue
			}
			r, err := v.openFullReader(dir, fullRoot.St, fullRoot.NonterminalID, st, it, p)
			if err != nil {
				return err
			}
			readers[[2]int{p, st}] = r
		}
	}
	return v.subtreeWalk(fullTree, fullRoot, fullSubRoot, subRoot, nil, readers, numFullHoldings, onlyP)
}

// openFullReader opens the full store's (p, st) file: the full tree is
// always rooted at board (0, 0).
func (v *Values) openFullReader(dir string, subtreeSt, subtreeNt, st, it, p int) (*streamReader, error) {
	saveSt, saveBd := v.rootBdSt, v.rootBd
	v.rootBdSt, v.rootBd = 0, 0
	r, err := v.openReader(dir, subtreeSt, subtreeNt, st, it, p)
	v.rootBdSt, v.rootBd = saveSt, saveBd
	return r, err
}

func (v *Values) subtreeWalk(fullTree *betting.Tree, fullNode, fullSubRoot, subRoot,
	subNode *betting.Node, readers map[[2]int]*streamReader,
	numFullHoldings []int, onlyP int) error {

	if fullNode.IsTerminal() {
		return nil
	}
	if fullNode == fullSubRoot {
		subNode = subRoot
	}
	if subNode != nil && subNode.NumSuccs() != fullNode.NumSuccs() {
		return fmt.Errorf("subtree read: num_succs mismatch at st%d nt%d", fullNode.St, fullNode.NonterminalID)
	}

	p, st := fullNode.PlayerActing, fullNode.St
	if r, ok := readers[[2]int{p, st}]; ok && (onlyP < 0 || p == onlyP) {
		numSuccs := fullNode.NumSuccs()
		width := int64(8)
		if r.ints {
			width = 4
		}
		fullCount := int64(numFullHoldings[st]) * int64(numSuccs)
		if subNode == nil {
			if _, err := io.CopyN(io.Discard, r.br, fullCount*width); err != nil {
				return fmt.Errorf("subtree read: skipping p%d st%d: %w", p, st, err)
			}
		} else if v.Bucketed(st) {
			if err := v.ReadNode(subNode, r.br, numFullHoldings[st], 0, r.ints); err != nil {
				return err
			}
		} else {
			nhcp := int64(v.g.NumHoleCardPairs(st))
			var begin, end int64
			if st == v.rootBdSt {
				begin, end = int64(v.rootBd), int64(v.rootBd)+1
			} else {
				begin = int64(v.bt.SuccBoardBegin(v.rootBdSt, v.rootBd, st))
				end = int64(v.bt.SuccBoardEnd(v.rootBdSt, v.rootBd, st))
			}
			if _, err := io.CopyN(io.Discard, r.br, begin*nhcp*int64(numSuccs)*width); err != nil {
				return fmt.Errorf("subtree read: seeking p%d st%d: %w", p, st, err)
			}
			if err := v.ReadNode(subNode, r.br, int(end-begin)*int(nhcp), 0, r.ints); err != nil {
				return err
			}
			fullBoards := int64(numFullHoldings[st]) / nhcp
			rest := (fullBoards - end) * nhcp * int64(numSuccs)
			if _, err := io.CopyN(io.Discard, r.br, rest*width); err != nil {
				return fmt.Errorf("subtree read: skipping tail p%d st%d: %w", p, st, err)
			}
		}
	}

	for s := 0; s < fullNode.NumSuccs(); s++ {
		var nextSub *betting.Node
		if subNode != nil {
			nextSub = v.tree.Succ(subNode, s)
		}
		if err := v.subtreeWalk(fullTree, fullTree.Succ(fullNode, s), fullSubRoot, subRoot,
			nextSub, readers, numFullHoldings, onlyP); err != nil {
			return err
		}
	}
	return nil
}

// MergeInto splices a subgame store's values into this larger store at
// the given board. The subgame is rooted at (subNode.St, rootBd) in the
// receiver's index space; each side keeps its own storage type and
// layout, with doubles rounded when the receiver holds ints.
func (v *Values) MergeInto(sub *Values, rootBd int, fullNode, subNode *betting.Node, finalSt int) error {
	if fullNode.IsTerminal() {
		return nil
	}
	if fullNode.NumSuccs() != subNode.NumSuccs() {
		return fmt.Errorf("merge: num_succs mismatch at st%d nt%d", fullNode.St, fullNode.NonterminalID)
	}
	st := fullNode.St
	if st > finalSt {
		return nil
	}
	p := fullNode.PlayerActing
	if v.players[p] && sub.players[p] && v.streets[st] && sub.streets[st] {
		if err := v.mergeNode(sub, rootBd, fullNode, subNode); err != nil {
			return err
		}
	}
	for s := 0; s < fullNode.NumSuccs(); s++ {
		if err := v.MergeInto(sub, rootBd, v.tree.Succ(fullNode, s), sub.tree.Succ(subNode, s), finalSt); err != nil {
			return err
		}
	}
	return nil
}

func (v *Values) mergeNode(sub *Values, rootBd int, fullNode, subNode *betting.Node) error {
	p, st := fullNode.PlayerActing, fullNode.St
	numSuccs := fullNode.NumSuccs()
	if v.Bucketed(st) != sub.Bucketed(st) {
		return fmt.Errorf("merge: bucketed/board layout mismatch at st%d", st)
	}
	copyRows := func(fullOff, subOff, count int) {
		fullNt, subNt := fullNode.NonterminalID, subNode.NonterminalID
		switch {
		case v.Doubles(p, st) && sub.Doubles(p, st):
			copy(v.dValues[p][st][fullNt][fullOff:fullOff+count], sub.dValues[p][st][subNt][subOff:subOff+count])
		case v.Ints(p, st) && sub.Doubles(p, st):
			dst := v.iValues[p][st][fullNt]
			src := sub.dValues[p][st][subNt]
			for i := 0; i < count; i++ {
				dst[fullOff+i] = roundToInt32(src[subOff+i])
			}
		case v.Ints(p, st) && sub.Ints(p, st):
			copy(v.iValues[p][st][fullNt][fullOff:fullOff+count], sub.iValues[p][st][subNt][subOff:subOff+count])
		case v.Doubles(p, st) && sub.Ints(p, st):
			dst := v.dValues[p][st][fullNt]
			src := sub.iValues[p][st][subNt]
			for i := 0; i < count; i++ {
				dst[fullOff+i] = float64(src[subOff+i])
			}
		default:
			return
		}
	}
	if v.Bucketed(st) {
		copyRows(0, 0, v.NumHoldings(st)*numSuccs)
		return nil
	}
	nhcp := v.g.NumHoleCardPairs(st)
	subBoards := sub.bt.NumLocalBoards(sub.rootBdSt, rootBd, st)
	for lbd := 0; lbd < subBoards; lbd++ {
		gbd := sub.bt.GlobalIndex(sub.rootBdSt, rootBd, st, lbd)
		flbd := v.bt.LocalIndex(v.rootBdSt, v.rootBd, st, gbd)
		copyRows(flbd*nhcp*numSuccs, lbd*nhcp*numSuccs, nhcp*numSuccs)
	}
	return nil
}
