package resolve

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"

	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/fileutil"
	"github.com/lox/egsolver/internal/game"
	"github.com/lox/egsolver/internal/paths"
)

// blockedBy reports whether two holdings share a card.
func blockedBy(a, b []game.Card) bool {
	for _, ca := range a {
		for _, cb := range b {
			if ca == cb {
				return true
			}
		}
	}
	return false
}

// oppReachSum returns, per hand, the opponent reach mass not blocked by
// that hand's cards.
func oppReachSum(g *game.Game, hands *board.CanonicalHands, oppReach []float64) []float64 {
	num := hands.NumRaw()
	sums := make([]float64, num)
	for i := 0; i < num; i++ {
		our := hands.Cards(i)
		for j := 0; j < num; j++ {
			opp := hands.Cards(j)
			if blockedBy(our, opp) {
				continue
			}
			sums[i] += oppReach[encode(g, opp)]
		}
	}
	return sums
}

func encode(g *game.Game, cards []game.Card) int {
	if len(cards) == 1 {
		return g.HandEncoding(cards[0], 0)
	}
	return g.HandEncoding(cards[0], cards[1])
}

// FloorCVs clamps each hand's CV at the most it can lose: the pot
// share already committed, scaled by the unblocked opponent reach the
// CV was computed against.
func FloorCVs(g *game.Game, subtreeRoot *betting.Node, oppReach []float64, hands *board.CanonicalHands, cvs []float64) {
	sums := oppReachSum(g, hands, oppReach)
	bound := -float64(subtreeRoot.LastBetTo)
	for i := range cvs {
		if sums[i] == 0 {
			continue
		}
		if cvs[i]/sums[i] < bound {
			cvs[i] = bound * sums[i]
		}
	}
}

// CalculateMeanCVs returns each player's reach-weighted mean CV,
// normalised by the joint unblocked reach mass.
func CalculateMeanCVs(g *game.Game, p0CVs, p1CVs []float64, reachProbs [2][]float64,
	hands *board.CanonicalHands) (p0Mean, p1Mean float64) {

	num := hands.NumRaw()
	var sum0, sum1, joint float64
	for i := 0; i < num; i++ {
		our := hands.Cards(i)
		enc := encode(g, our)
		var p0Opp float64
		for j := 0; j < num; j++ {
			opp := hands.Cards(j)
			if blockedBy(our, opp) {
				continue
			}
			p0Opp += reachProbs[0][encode(g, opp)]
		}
		sum0 += p0CVs[i] * reachProbs[0][enc]
		sum1 += p1CVs[i] * reachProbs[1][enc]
		joint += reachProbs[1][enc] * p0Opp
	}
	return sum0 / joint, sum1 / joint
}

// ZeroSumCVs shifts both players' CVs so their reach-weighted means
// cancel, the exact zero-sum boundary condition CFR-D assumes. The
// residual after adjustment is logged, never fatal.
func ZeroSumCVs(g *game.Game, log zerolog.Logger, p0CVs, p1CVs []float64,
	reachProbs [2][]float64, hands *board.CanonicalHands, potSize int) {

	p0Mean, p1Mean := CalculateMeanCVs(g, p0CVs, p1CVs, reachProbs, hands)
	adj := -(p0Mean + p1Mean) / 2.0
	num := hands.NumRaw()
	for i := 0; i < num; i++ {
		our := hands.Cards(i)
		var p0Opp, p1Opp float64
		for j := 0; j < num; j++ {
			opp := hands.Cards(j)
			if blockedBy(our, opp) {
				continue
			}
			oe := encode(g, opp)
			p0Opp += reachProbs[0][oe]
			p1Opp += reachProbs[1][oe]
		}
		p0CVs[i] += adj * p1Opp
		p1CVs[i] += adj * p0Opp
	}

	adj0, adj1 := CalculateMeanCVs(g, p0CVs, p1CVs, reachProbs, hands)
	if residual := math.Abs(adj0 + adj1); residual > 1e-6*float64(potSize) {
		log.Warn().Float64("residual", residual).
			Float64("p0_mean", adj0).Float64("p1_mean", adj1).
			Msg("zero-sum residual after adjustment")
	}
}

// WriteCVs persists one board's per-hand values as float32 in
// canonical-hand order.
func WriteCVs(cvDir string, gbd int, cvs []float64) error {
	if err := os.MkdirAll(cvDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", cvDir, err)
	}
	var buf bytes.Buffer
	for _, v := range cvs {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
		buf.Write(b[:])
	}
	return fileutil.WriteFileAtomic(paths.CVFile(cvDir, gbd), buf.Bytes(), 0o644)
}

// ReadCVs loads one board's value file. A missing file is fatal to the
// caller: a reached subgame must have base values.
func ReadCVs(cvDir string, gbd, numHands int) ([]float64, error) {
	data, err := os.ReadFile(paths.CVFile(cvDir, gbd))
	if err != nil {
		return nil, fmt.Errorf("reading CVs: %w", err)
	}
	if len(data) != numHands*4 {
		return nil, fmt.Errorf("CV file %s: want %d hands, have %d bytes", paths.CVFile(cvDir, gbd), numHands, len(data))
	}
	cvs := make([]float64, numHands)
	for i := range cvs {
		cvs[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return cvs, nil
}

// LoadOppCVs reads the villain's per-hand values for a subgame root
// from the files a prior build-cbrs pass wrote, zero-sum adjusting the
// pair when requested. A missing file is fatal to the caller: every
// reached subgame must have base values.
func LoadOppCVs(g *game.Game, log zerolog.Logger, systemDir, kind string, baseIt int,
	actionSequence string, gbd int, subtreeRoot *betting.Node,
	reachProbs [2][]float64, hands *board.CanonicalHands, targetP int, zeroSum bool) ([]float64, error) {

	numHands := hands.NumRaw()
	if !zeroSum {
		cvs, err := ReadCVs(paths.CVDir(systemDir, kind, baseIt, targetP^1, actionSequence), gbd, numHands)
		if err != nil {
			return nil, err
		}
		FloorCVs(g, subtreeRoot, reachProbs[targetP], hands, cvs)
		return cvs, nil
	}
	p0CVs, err := ReadCVs(paths.CVDir(systemDir, kind, baseIt, 0, actionSequence), gbd, numHands)
	if err != nil {
		return nil, err
	}
	p1CVs, err := ReadCVs(paths.CVDir(systemDir, kind, baseIt, 1, actionSequence), gbd, numHands)
	if err != nil {
		return nil, err
	}
	FloorCVs(g, subtreeRoot, reachProbs[1], hands, p0CVs)
	FloorCVs(g, subtreeRoot, reachProbs[0], hands, p1CVs)
	ZeroSumCVs(g, log, p0CVs, p1CVs, reachProbs, hands, subtreeRoot.PotSize)
	if targetP == 0 {
		return p1CVs, nil
	}
	return p0CVs, nil
}
