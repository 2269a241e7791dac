// Package betting builds the betting trees the solver walks: the action
// abstraction (which bet sizes exist where) and the node arena itself.
package betting

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// StreetSizes configures the bet sizes offered on one street. BetSizes
// is indexed by the number of bets already made this street; each entry
// lists pot fractions. OppBetSizes, when present, replaces BetSizes for
// the non-target player in asymmetric trees.
type StreetSizes struct {
	Street      int         `hcl:"street"`
	BetSizes    [][]float64 `hcl:"bet_sizes"`
	OppBetSizes [][]float64 `hcl:"opp_bet_sizes,optional"`
}

// Abstraction is the betting abstraction: stack depth, bet caps and the
// size menus per street.
type Abstraction struct {
	Name       string        `hcl:"name"`
	StackSize  int           `hcl:"stack_size"`
	MaxBets    []int         `hcl:"max_bets"`
	Asymmetric bool          `hcl:"asymmetric,optional"`
	AllIns     bool          `hcl:"all_ins,optional"`
	Streets    []StreetSizes `hcl:"street,block"`
}

// LoadAbstraction reads a betting abstraction from an HCL file.
func LoadAbstraction(path string) (*Abstraction, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading betting abstraction: %w", err)
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing betting abstraction: %s", diags.Error())
	}
	var ba Abstraction
	if diags := gohcl.DecodeBody(file.Body, nil, &ba); diags.HasErrors() {
		return nil, fmt.Errorf("decoding betting abstraction: %s", diags.Error())
	}
	if err := ba.Validate(); err != nil {
		return nil, err
	}
	return &ba, nil
}

// Validate checks internal consistency.
func (ba *Abstraction) Validate() error {
	if ba.StackSize <= 0 {
		return fmt.Errorf("betting abstraction %q: stack_size must be positive", ba.Name)
	}
	if len(ba.MaxBets) == 0 {
		return fmt.Errorf("betting abstraction %q: max_bets required", ba.Name)
	}
	for _, ss := range ba.Streets {
		if ss.Street < 0 {
			return fmt.Errorf("betting abstraction %q: bad street %d", ba.Name, ss.Street)
		}
	}
	return nil
}

// MaxStreetBets returns the bet cap for street st.
func (ba *Abstraction) MaxStreetBets(st int) int {
	if st < len(ba.MaxBets) {
		return ba.MaxBets[st]
	}
	return ba.MaxBets[len(ba.MaxBets)-1]
}

// BetSizes returns the pot fractions available on street st after
// numStreetBets bets, for the given actor. In asymmetric trees the
// non-target player draws from the opp menu when one is configured.
func (ba *Abstraction) BetSizes(st, numStreetBets, actingPlayer, targetPlayer int) []float64 {
	for _, ss := range ba.Streets {
		if ss.Street != st {
			continue
		}
		sizes := ss.BetSizes
		if ba.Asymmetric && targetPlayer >= 0 && actingPlayer != targetPlayer && ss.OppBetSizes != nil {
			sizes = ss.OppBetSizes
		}
		if numStreetBets < len(sizes) {
			return sizes[numStreetBets]
		}
		return nil
	}
	return nil
}
