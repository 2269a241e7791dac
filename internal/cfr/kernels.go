package cfr

import (
	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/game"
)

// value constrains the two storage types the engine reads strategy
// weights from.
type value interface {
	~int32 | ~float64
}

// CommonBetResponseCalcs computes the aggregates consulted at every
// opponent-choice and terminal node: the total opponent reach mass and,
// per card, the mass of opponent hands containing that card.
func CommonBetResponseCalcs(g *game.Game, hands *board.CanonicalHands, oppProbs []float64,
	totalCardProbs []float64) (sumOppProbs float64) {

	for i := range totalCardProbs {
		totalCardProbs[i] = 0
	}
	num := hands.NumRaw()
	for i := 0; i < num; i++ {
		cards := hands.Cards(i)
		enc := encodeHand(g, cards)
		prob := oppProbs[enc]
		sumOppProbs += prob
		for _, c := range cards {
			totalCardProbs[c] += prob
		}
	}
	return sumOppProbs
}

func encodeHand(g *game.Game, cards []game.Card) int {
	if len(cards) == 1 {
		return g.HandEncoding(cards[0], 0)
	}
	return g.HandEncoding(cards[0], cards[1])
}

// Showdown returns, per hand, (wins - losses) * half_pot against the
// opponent reach distribution. The hand list must be sorted ascending
// by hand strength; a three-pass sweep over each tie group keeps the
// whole computation linear, with per-card cumulative masses standing in
// for the quadratic blocker enumeration.
func Showdown(g *game.Game, node *betting.Node, hands *board.CanonicalHands,
	oppProbs []float64, sumOppProbs float64, totalCardProbs []float64) []float64 {

	numHands := hands.NumRaw()
	halfPot := float64(node.LastBetTo)
	vals := make([]float64, numHands)
	winProbs := make([]float64, numHands)
	cumCardProbs := make([]float64, int(g.MaxCard())+1)
	cumProb := 0.0

	j := 0
	for j < numHands {
		tieValue := hands.HandValue(j)
		begin := j
		// Pass 1: wins against everything accumulated so far, minus the
		// blocked mass.
		for j < numHands && hands.HandValue(j) == tieValue {
			blocked := 0.0
			for _, c := range hands.Cards(j) {
				blocked += cumCardProbs[c]
			}
			winProbs[j] = cumProb - blocked
			j++
		}
		// Pass 2: fold the tie group into the cumulative masses.
		for k := begin; k < j; k++ {
			prob := oppProbs[encodeHand(g, hands.Cards(k))]
			cumProb += prob
			for _, c := range hands.Cards(k) {
				cumCardProbs[c] += prob
			}
		}
		// Pass 3: losses are everything above the group, minus blockers.
		for k := begin; k < j; k++ {
			better := 0.0
			for _, c := range hands.Cards(k) {
				better += totalCardProbs[c] - cumCardProbs[c]
			}
			loseProb := (sumOppProbs - cumProb) - better
			vals[k] = (winProbs[k] - loseProb) * halfPot
		}
	}
	return vals
}

// Fold returns the fold-leaf values for player p. The folding player
// forfeits the node's LastBetTo; every opponent hand not blocked by
// ours contributes its reach mass.
func Fold(g *game.Game, node *betting.Node, p int, hands *board.CanonicalHands,
	oppProbs []float64, sumOppProbs float64, totalCardProbs []float64) []float64 {

	sign := 1.0
	if node.PlayerActing == p {
		// We folded.
		sign = -1.0
	}
	loss := float64(node.LastBetTo)
	numHands := hands.NumRaw()
	vals := make([]float64, numHands)
	for i := 0; i < numHands; i++ {
		cards := hands.Cards(i)
		enc := encodeHand(g, cards)
		oppReach := sumOppProbs
		for _, c := range cards {
			oppReach -= totalCardProbs[c]
		}
		if len(cards) == 2 {
			// Both our cards removed the same opponent combo twice.
			oppReach += oppProbs[enc]
		}
		vals[i] = sign * loss * oppReach
	}
	return vals
}

// RegretsToProbs converts one holding's strategy weights (regrets
// during training, sumprobs in value passes) into a probability
// distribution by regret matching. A zero positive mass falls back to
// the uniform distribution or to pure play of the default successor.
// A positive explore floor redistributes mass onto every nonterminal
// successor.
func RegretsToProbs[T value](regrets []T, numSuccs int, nonneg, uniform bool,
	dsi int, explore float64, numNonterminalSuccs int, nonterminalSuccs []bool,
	probs []float64) {

	var sum float64
	if nonneg {
		for s := 0; s < numSuccs; s++ {
			sum += float64(regrets[s])
		}
	} else {
		for s := 0; s < numSuccs; s++ {
			if r := float64(regrets[s]); r > 0 {
				sum += r
			}
		}
	}
	if sum == 0 {
		if uniform {
			u := 1.0 / float64(numSuccs)
			for s := 0; s < numSuccs; s++ {
				probs[s] = u
			}
		} else {
			for s := 0; s < numSuccs; s++ {
				if s == dsi {
					probs[s] = 1.0
				} else {
					probs[s] = 0
				}
			}
		}
	} else {
		for s := 0; s < numSuccs; s++ {
			r := float64(regrets[s])
			if !nonneg && r < 0 {
				r = 0
			}
			probs[s] = r / sum
		}
	}
	if explore > 0 && numNonterminalSuccs > 0 {
		keep := 1.0 - float64(numNonterminalSuccs)*explore
		for s := 0; s < numSuccs; s++ {
			probs[s] *= keep
			if nonterminalSuccs[s] {
				probs[s] += explore
			}
		}
	}
}

// PureProbs maps strategy weights to the one-hot argmax distribution,
// used when purifying reach probabilities.
func PureProbs[T value](vals []T, numSuccs int, probs []float64) {
	best := 0
	for s := 1; s < numSuccs; s++ {
		if vals[s] > vals[best] {
			best = s
		}
	}
	for s := 0; s < numSuccs; s++ {
		if s == best {
			probs[s] = 1.0
		} else {
			probs[s] = 0
		}
	}
}
