package abstraction

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/game"
)

// Buckets is the materialised bucket map: per street, either nothing
// ("none") or a dense array over h = gbd*numHoleCardPairs + hcp. Safe
// for concurrent reads once built.
type Buckets struct {
	none       []bool
	shorts     [][]uint16
	ints       [][]uint32
	numBuckets []int
}

// NewBuckets builds the bucket arrays for a card abstraction. Bucketing
// names are either "none", "rank:<n>" (a cheap computed scheme that
// hashes the holding index into n buckets, useful for tests and smoke
// runs), or the name of a bucketing written to
// <buckets_dir>/<name>.<st>.buckets by an external clustering pass.
func NewBuckets(ca *CardAbstraction, g *game.Game, bt *board.Tree) (*Buckets, error) {
	maxSt := g.MaxStreet
	b := &Buckets{
		none:       make([]bool, maxSt+1),
		shorts:     make([][]uint16, maxSt+1),
		ints:       make([][]uint32, maxSt+1),
		numBuckets: make([]int, maxSt+1),
	}
	for st := 0; st <= maxSt; st++ {
		name := ca.Bucketing(st)
		switch {
		case name == "none":
			b.none[st] = true
		case strings.HasPrefix(name, "rank:"):
			n, err := strconv.Atoi(strings.TrimPrefix(name, "rank:"))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("bucketing %q: bad bucket count", name)
			}
			numHoldings := bt.NumBoards(st) * g.NumHoleCardPairs(st)
			arr := make([]uint16, numHoldings)
			for h := 0; h < numHoldings; h++ {
				arr[h] = uint16(h % n)
			}
			b.shorts[st] = arr
			b.numBuckets[st] = n
		default:
			if err := b.readFile(ca.BucketsDir, name, st, bt.NumBoards(st)*g.NumHoleCardPairs(st)); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// readFile loads a bucketing array. The file is a little-endian uint32
// bucket count followed by uint16 entries when the count fits, uint32
// entries otherwise.
func (b *Buckets) readFile(dir, name string, st, numHoldings int) error {
	path := filepath.Join(dir, fmt.Sprintf("%s.%d.buckets", name, st))
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading bucketing %q street %d: %w", name, st, err)
	}
	if len(data) < 4 {
		return fmt.Errorf("bucketing file %s truncated", path)
	}
	n := int(binary.LittleEndian.Uint32(data))
	body := data[4:]
	b.numBuckets[st] = n
	if n <= 1<<16 {
		if len(body) != numHoldings*2 {
			return fmt.Errorf("bucketing file %s: want %d entries, have %d bytes", path, numHoldings, len(body))
		}
		arr := make([]uint16, numHoldings)
		for i := range arr {
			arr[i] = binary.LittleEndian.Uint16(body[i*2:])
		}
		b.shorts[st] = arr
	} else {
		if len(body) != numHoldings*4 {
			return fmt.Errorf("bucketing file %s: want %d entries, have %d bytes", path, numHoldings, len(body))
		}
		arr := make([]uint32, numHoldings)
		for i := range arr {
			arr[i] = binary.LittleEndian.Uint32(body[i*4:])
		}
		b.ints[st] = arr
	}
	return nil
}

// None reports whether street st is unabstracted.
func (b *Buckets) None(st int) bool { return b.none[st] }

// Bucket returns the bucket id of holding h on street st.
func (b *Buckets) Bucket(st, h int) int {
	if s := b.shorts[st]; s != nil {
		return int(s[h])
	}
	return int(b.ints[st][h])
}

// NumBuckets returns the bucket count on street st, zero for
// unabstracted streets.
func (b *Buckets) NumBuckets(st int) int { return b.numBuckets[st] }
