package abstraction

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/game"
)

func testGame(t *testing.T) (*game.Game, *board.Tree) {
	t.Helper()
	g, err := game.New(game.Game{
		Name: "leduc6", NumPlayers: 2, NumRanks: 6, NumSuits: 1,
		MaxStreet: 1, NumHoleCards: 1, StreetCards: []int{0, 1},
		SmallBlind: 1, BigBlind: 1,
	})
	require.NoError(t, err)
	return g, board.Build(g)
}

func TestUnabstracted(t *testing.T) {
	g, bt := testGame(t)
	ca := NewUnabstracted("none", g.MaxStreet)
	b, err := NewBuckets(ca, g, bt)
	require.NoError(t, err)
	assert.True(t, b.None(0))
	assert.True(t, b.None(1))
	assert.False(t, ca.Bucketed())
}

func TestRankBucketing(t *testing.T) {
	g, bt := testGame(t)
	ca := &CardAbstraction{Name: "r3", Bucketings: []string{"rank:3", "none"}}
	b, err := NewBuckets(ca, g, bt)
	require.NoError(t, err)
	require.False(t, b.None(0))
	assert.Equal(t, 3, b.NumBuckets(0))
	numHoldings := bt.NumBoards(0) * g.NumHoleCardPairs(0)
	for h := 0; h < numHoldings; h++ {
		bk := b.Bucket(0, h)
		assert.GreaterOrEqual(t, bk, 0)
		assert.Less(t, bk, 3)
		// Deterministic across calls.
		assert.Equal(t, bk, b.Bucket(0, h))
	}
	assert.True(t, ca.Bucketed())
}

func TestFileBackedBucketing(t *testing.T) {
	g, bt := testGame(t)
	dir := t.TempDir()
	numHoldings := bt.NumBoards(1) * g.NumHoleCardPairs(1)

	data := make([]byte, 4+numHoldings*2)
	binary.LittleEndian.PutUint32(data, 4)
	for h := 0; h < numHoldings; h++ {
		binary.LittleEndian.PutUint16(data[4+h*2:], uint16(h%4))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kmeans.1.buckets"), data, 0o644))

	ca := &CardAbstraction{Name: "km", Bucketings: []string{"none", "kmeans"}, BucketsDir: dir}
	b, err := NewBuckets(ca, g, bt)
	require.NoError(t, err)
	assert.Equal(t, 4, b.NumBuckets(1))
	for h := 0; h < numHoldings; h++ {
		assert.Equal(t, h%4, b.Bucket(1, h))
	}
}

func TestMissingBucketFileFails(t *testing.T) {
	g, bt := testGame(t)
	ca := &CardAbstraction{Name: "km", Bucketings: []string{"missing", "none"}, BucketsDir: t.TempDir()}
	_, err := NewBuckets(ca, g, bt)
	assert.Error(t, err)
}

func TestBucketThresholds(t *testing.T) {
	ca := &CardAbstraction{
		Name:             "t",
		Bucketings:       []string{"rank:2", "rank:2"},
		BucketThresholds: []int{200, 0},
	}
	assert.Equal(t, 200, ca.BucketThreshold(0))
	// Zero and missing thresholds never cut over to card level.
	assert.Greater(t, ca.BucketThreshold(1), 1<<30)
	assert.Greater(t, ca.BucketThreshold(5), 1<<30)
}
