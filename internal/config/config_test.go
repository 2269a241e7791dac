package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSystem(t *testing.T) {
	dir := t.TempDir()
	gameFile := writeFile(t, dir, "game.hcl", `
name           = "leduc6"
num_players    = 2
num_ranks      = 6
num_suits      = 1
max_street     = 1
num_hole_cards = 1
street_cards   = [0, 1]
small_blind    = 1
big_blind      = 1
`)
	cardFile := writeFile(t, dir, "cards.hcl", `
name       = "none"
bucketings = ["none", "none"]
`)
	betFile := writeFile(t, dir, "betting.hcl", `
name       = "b1"
stack_size = 4
max_bets   = [1, 1]

street {
  street    = 0
  bet_sizes = [[0.5]]
}

street {
  street    = 1
  bet_sizes = [[0.5]]
}
`)
	cfrFile := writeFile(t, dir, "cfr.hcl", `
name            = "cfrps"
algorithm       = "cfrp"
nn_regrets      = true
double_sumprobs = true
`)

	sys, err := LoadSystem(gameFile, cardFile, betFile, cfrFile)
	require.NoError(t, err)
	assert.Equal(t, "leduc6", sys.Game.Name)
	assert.Equal(t, 6, sys.Boards.NumBoards(1))
	assert.Equal(t, "b1", sys.BetAbs.Name)
	assert.Equal(t, []float64{0.5}, sys.BetAbs.BetSizes(0, 0, 0, -1))
	assert.True(t, sys.Buckets.None(0))
	assert.True(t, sys.CFR.NNRegrets)

	sib, err := sys.Sibling(cardFile, betFile, cfrFile)
	require.NoError(t, err)
	assert.Same(t, sys.Game, sib.Game)
	assert.Same(t, sys.Boards, sib.Boards)
}

func TestLoadSystemMissingFile(t *testing.T) {
	dir := t.TempDir()
	gameFile := writeFile(t, dir, "game.hcl", `
name           = "leduc6"
num_players    = 2
num_ranks      = 6
num_suits      = 1
max_street     = 1
num_hole_cards = 1
street_cards   = [0, 1]
big_blind      = 1
`)
	_, err := LoadSystem(gameFile, filepath.Join(dir, "missing.hcl"), "", "")
	assert.Error(t, err)
}
