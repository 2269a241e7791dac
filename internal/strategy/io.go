package strategy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/lox/egsolver/internal/betting"
)

// File naming follows the fixed template
//
//	<kind>.<subtree_st>.<subtree_nt>.<root_bd_st>.<root_bd>.<st>.<it>.p<p>.<i|d>
//
// with one file per (player, street) holding every nonterminal's values
// in depth-first preorder. Values are little-endian int32 or float64;
// compressed streets wrap the stream in zstd, which is lossless, so the
// on-disk contract is unchanged.
func (v *Values) kind() string {
	if v.sumprobs {
		return "sumprobs"
	}
	return "regrets"
}

func (v *Values) fileName(subtreeSt, subtreeNt, st, it, p int, ints bool) string {
	suffix := "d"
	if ints {
		suffix = "i"
	}
	return fmt.Sprintf("%s.%d.%d.%d.%d.%d.%d.p%d.%s",
		v.kind(), subtreeSt, subtreeNt, v.rootBdSt, v.rootBd, st, it, p, suffix)
}

// streamWriter wraps one (player, street) output file, optionally
// compressed.
type streamWriter struct {
	f    *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer
	ints bool
}

func (w *streamWriter) writeInt32(x int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(x))
	_, err := w.bw.Write(buf[:])
	return err
}

func (w *streamWriter) writeFloat64(x float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
	_, err := w.bw.Write(buf[:])
	return err
}

func (w *streamWriter) close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			w.f.Close()
			return err
		}
	}
	return w.f.Close()
}

// Writers holds the open per-(player, street) file handles for one
// streamed write pass.
type Writers struct {
	byKey map[[2]int]*streamWriter
}

// InitializeWriters opens the output file for every (player, street)
// slot that holds data under root.
func (v *Values) InitializeWriters(dir string, it int, root *betting.Node, onlyP int) (*Writers, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	ws := &Writers{byKey: map[[2]int]*streamWriter{}}
	for p := 0; p < 2; p++ {
		if !v.players[p] || (onlyP >= 0 && p != onlyP) {
			continue
		}
		for st := root.St; st <= v.g.MaxStreet; st++ {
			if !v.streets[st] || v.tree.NumNonterminals(p, st) == 0 {
				continue
			}
			ints := v.Ints(p, st)
			if !ints && !v.Doubles(p, st) {
				continue
			}
			name := v.fileName(root.St, root.NonterminalID, st, it, p, ints)
			f, err := os.Create(filepath.Join(dir, name))
			if err != nil {
				ws.close()
				return nil, fmt.Errorf("creating %s: %w", name, err)
			}
			sw := &streamWriter{f: f, ints: ints}
			if v.compressed[st] {
				zw, err := zstd.NewWriter(f)
				if err != nil {
					ws.close()
					return nil, err
				}
				sw.zw = zw
				sw.bw = bufio.NewWriter(zw)
			} else {
				sw.bw = bufio.NewWriter(f)
			}
			ws.byKey[[2]int{p, st}] = sw
		}
	}
	return ws, nil
}

func (ws *Writers) close() error {
	var firstErr error
	for _, w := range ws.byKey {
		if err := w.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeleteWriters flushes and closes every open handle.
func (v *Values) DeleteWriters(ws *Writers) error { return ws.close() }

// WriteNode serialises numHoldings rows of one node's values starting
// at offset.
func (v *Values) WriteNode(node *betting.Node, w io.Writer, numHoldings, offset int) error {
	p, st, nt := node.PlayerActing, node.St, node.NonterminalID
	count := numHoldings * node.NumSuccs()
	bw := bufio.NewWriter(w)
	if v.Ints(p, st) {
		vals := v.iValues[p][st][nt]
		var buf [4]byte
		for i := 0; i < count; i++ {
			binary.LittleEndian.PutUint32(buf[:], uint32(vals[offset+i]))
			if _, err := bw.Write(buf[:]); err != nil {
				return err
			}
		}
	} else {
		vals := v.dValues[p][st][nt]
		var buf [8]byte
		for i := 0; i < count; i++ {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(vals[offset+i]))
			if _, err := bw.Write(buf[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// ReadNode fills numHoldings rows of one node's values starting at
// offset, allocating the slot if needed. ints selects the value width
// in the stream.
func (v *Values) ReadNode(node *betting.Node, r io.Reader, numHoldings, offset int, ints bool) error {
	p, st, nt := node.PlayerActing, node.St, node.NonterminalID
	count := numHoldings * node.NumSuccs()
	if ints {
		if v.iValues[p][st] == nil {
			v.iValues[p][st] = make([][]int32, v.tree.NumNonterminals(p, st))
		}
		if v.iValues[p][st][nt] == nil {
			v.iValues[p][st][nt] = make([]int32, v.NumHoldings(st)*node.NumSuccs())
		}
		vals := v.iValues[p][st][nt]
		var buf [4]byte
		for i := 0; i < count; i++ {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return fmt.Errorf("reading node (p%d st%d nt%d): %w", p, st, nt, err)
			}
			vals[offset+i] = int32(binary.LittleEndian.Uint32(buf[:]))
		}
		return nil
	}
	if v.dValues[p][st] == nil {
		v.dValues[p][st] = make([][]float64, v.tree.NumNonterminals(p, st))
	}
	if v.dValues[p][st][nt] == nil {
		v.dValues[p][st][nt] = make([]float64, v.NumHoldings(st)*node.NumSuccs())
	}
	vals := v.dValues[p][st][nt]
	var buf [8]byte
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return fmt.Errorf("reading node (p%d st%d nt%d): %w", p, st, nt, err)
		}
		vals[offset+i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
	}
	return nil
}

// Write serialises the subtree under root: one file per (player,
// street), nodes in depth-first preorder.
func (v *Values) Write(dir string, it int, root *betting.Node, onlyP int) error {
	ws, err := v.InitializeWriters(dir, it, root, onlyP)
	if err != nil {
		return err
	}
	if err := v.writeWalk(root, ws, onlyP); err != nil {
		ws.close()
		return err
	}
	return ws.close()
}

func (v *Values) writeWalk(node *betting.Node, ws *Writers, onlyP int) error {
	if node.IsTerminal() {
		return nil
	}
	p, st, nt := node.PlayerActing, node.St, node.NonterminalID
	if w, ok := ws.byKey[[2]int{p, st}]; ok && (onlyP < 0 || p == onlyP) {
		numSuccs := node.NumSuccs()
		count := v.NumHoldings(st) * numSuccs
		if w.ints {
			vals := v.iValues[p][st][nt]
			if vals == nil {
				return fmt.Errorf("write: missing values at p%d st%d nt%d", p, st, nt)
			}
			for i := 0; i < count; i++ {
				if err := w.writeInt32(vals[i]); err != nil {
					return err
				}
			}
		} else {
			vals := v.dValues[p][st][nt]
			if vals == nil {
				return fmt.Errorf("write: missing values at p%d st%d nt%d", p, st, nt)
			}
			for i := 0; i < count; i++ {
				if err := w.writeFloat64(vals[i]); err != nil {
					return err
				}
			}
		}
	}
	for s := 0; s < node.NumSuccs(); s++ {
		if err := v.writeWalk(v.tree.Succ(node, s), ws, onlyP); err != nil {
			return err
		}
	}
	return nil
}

// streamReader wraps one (player, street) input file.
type streamReader struct {
	f    *os.File
	zr   *zstd.Decoder
	br   *bufio.Reader
	ints bool
}

func (r *streamReader) close() {
	if r.zr != nil {
		r.zr.Close()
	}
	r.f.Close()
}

// openReader locates the int or double file for (p, st) and opens it.
func (v *Values) openReader(dir string, subtreeSt, subtreeNt, st, it, p int) (*streamReader, error) {
	for _, ints := range []bool{true, false} {
		path := filepath.Join(dir, v.fileName(subtreeSt, subtreeNt, st, it, p, ints))
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		sr := &streamReader{f: f, ints: ints}
		if v.compressed[st] {
			zr, err := zstd.NewReader(f)
			if err != nil {
				f.Close()
				return nil, err
			}
			sr.zr = zr
			sr.br = bufio.NewReader(zr)
		} else {
			sr.br = bufio.NewReader(f)
		}
		return sr, nil
	}
	return nil, fmt.Errorf("no %s file for p%d st%d it%d in %s", v.kind(), p, st, it, dir)
}

// Read loads the subtree under root from the snapshot taken at
// iteration it. After a successful Read the store equals the on-disk
// snapshot byte for byte.
func (v *Values) Read(dir string, it int, root *betting.Node, onlyP int) error {
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
		for st := root.St; st <= v.g.MaxStreet; st++ {
			if !v.streets[st] || v.tree.NumNonterminals(p, st) == 0 {
				continue
			}
			r, err := v.openReader(dir, root.St, root.NonterminalID, st, it, p)
			if err != nil {
				return err
			}
			readers[[2]int{p, st}] = r
		}
	}
	return v.readWalk(root, readers, onlyP)
}

func (v *Values) readWalk(node *betting.Node, readers map[[2]int]*streamReader, onlyP int) error {
	if node.IsTerminal() {
		return nil
	}
	p, st := node.PlayerActing, node.St
	if r, ok := readers[[2]int{p, st}]; ok && (onlyP < 0 || p == onlyP) {
		if err := v.ReadNode(node, r.br, v.NumHoldings(st), 0, r.ints); err != nil {
			return err
		}
	}
	for s := 0; s < node.NumSuccs(); s++ {
		if err := v.readWalk(v.tree.Succ(node, s), readers, onlyP); err != nil {
			return err
		}
	}
	return nil
}
