// Package config assembles the runtime context from parameter files:
// the game definition, card abstraction, betting abstraction and CFR
// config a driver names on its command line, plus the derived board
// enumeration and bucket arrays. Everything here is built once at
// startup and passed explicitly; there is no process-wide state.
package config

import (
	"fmt"

	"github.com/lox/egsolver/internal/abstraction"
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/cfr"
	"github.com/lox/egsolver/internal/eval"
	"github.com/lox/egsolver/internal/game"
)

// System bundles one (game, card abstraction, betting abstraction, CFR
// config) tuple with its derived structures.
type System struct {
	Game     *game.Game
	Boards   *board.Tree
	Eval     *eval.Evaluator
	CardAbs  *abstraction.CardAbstraction
	Buckets  *abstraction.Buckets
	BetAbs   *betting.Abstraction
	CFR      *cfr.Config
}

// LoadSystem reads the four parameter files and materialises the
// context. The board tree and buckets are shared wherever the same
// game is in play; callers load a second System for the endgame
// abstractions with LoadAbstractions.
func LoadSystem(gameFile, cardFile, bettingFile, cfrFile string) (*System, error) {
	g, err := game.Load(gameFile)
	if err != nil {
		return nil, err
	}
	bt := board.Build(g)
	ev := eval.New(g)
	sys := &System{Game: g, Boards: bt, Eval: ev}
	if err := sys.LoadAbstractions(cardFile, bettingFile, cfrFile); err != nil {
		return nil, err
	}
	return sys, nil
}

// LoadAbstractions fills the abstraction-dependent half of a System,
// reusing the receiver's game and board tree.
func (s *System) LoadAbstractions(cardFile, bettingFile, cfrFile string) error {
	ca, err := abstraction.LoadCardAbstraction(cardFile)
	if err != nil {
		return err
	}
	buckets, err := abstraction.NewBuckets(ca, s.Game, s.Boards)
	if err != nil {
		return err
	}
	ba, err := betting.LoadAbstraction(bettingFile)
	if err != nil {
		return err
	}
	cc, err := cfr.LoadConfig(cfrFile)
	if err != nil {
		return err
	}
	s.CardAbs = ca
	s.Buckets = buckets
	s.BetAbs = ba
	s.CFR = cc
	return nil
}

// Sibling derives a System sharing this one's game, boards and
// evaluator but with its own abstractions, for endgame configs.
func (s *System) Sibling(cardFile, bettingFile, cfrFile string) (*System, error) {
	sib := &System{Game: s.Game, Boards: s.Boards, Eval: s.Eval}
	if err := sib.LoadAbstractions(cardFile, bettingFile, cfrFile); err != nil {
		return nil, fmt.Errorf("loading endgame abstractions: %w", err)
	}
	return sib, nil
}
