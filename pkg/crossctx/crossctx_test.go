package crossctx_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tile_router/pkg/crossctx"
)

// quantizationTolerance bounds the distance between a point and its packed
// form at geo.CoordBits, in meters.
const quantizationTolerance = 0.05

// buildScenario writes the two-in, two-out context:
//
//	A(10) -5-> C(20, tileX)
//	B(11) -7-> D(21, tileX)
//
// A->D and B->C are left unset.
func buildScenario(t *testing.T) (*crossctx.Writer, []byte) {
	t.Helper()
	w := crossctx.NewWriter()
	w.AddIngoingNode(10, orb.Point{1.0, 1.0})
	w.AddIngoingNode(11, orb.Point{2.0, 2.0})
	w.AddOutgoingNode(20, "tileX", orb.Point{3.0, 3.0})
	w.AddOutgoingNode(21, "tileX", orb.Point{4.0, 4.0})
	w.ReserveAdjacencyMatrix()

	in := w.IngoingNodes()
	out := w.OutgoingNodes()
	w.SetAdjacencyCost(in[0], out[0], 5)
	w.SetAdjacencyCost(in[1], out[1], 7)

	data, err := w.MarshalBinary()
	require.NoError(t, err)
	return w, data
}

func load(t *testing.T, data []byte) *crossctx.Reader {
	t.Helper()
	r := crossctx.NewReader()
	require.NoError(t, r.LoadBytes(data))
	return r
}

func TestScenarioRoundTrip(t *testing.T) {
	_, data := buildScenario(t)
	r := load(t, data)

	a, ok := r.IngoingNodeByID(10)
	require.True(t, ok)
	b, ok := r.IngoingNodeByID(11)
	require.True(t, ok)
	out := r.OutgoingNodes()
	require.Len(t, out, 2)
	c, d := out[0], out[1]

	assert.Equal(t, crossctx.EdgeWeight(5), r.AdjacencyCost(a, c))
	assert.Equal(t, crossctx.EdgeWeight(7), r.AdjacencyCost(b, d))
	assert.Equal(t, crossctx.NoPath, r.AdjacencyCost(a, d))
	assert.Equal(t, crossctx.NoPath, r.AdjacencyCost(b, c))

	assert.Equal(t, "tileX", r.OutgoingNeighborName(c))
	assert.Equal(t, "tileX", r.OutgoingNeighborName(d))
	assert.Equal(t, []string{"tileX"}, r.NeighborTiles())
}

func TestScenarioNearestIngoing(t *testing.T) {
	_, data := buildScenario(t)
	r := load(t, data)

	tests := []struct {
		name   string
		query  orb.Point
		wantID crossctx.NodeID
		found  bool
	}{
		{name: "exactly at A", query: orb.Point{1.0, 1.0}, wantID: 10, found: true},
		{name: "about 1m from A", query: orb.Point{1.00001, 1.0}, wantID: 10, found: true},
		{name: "about 1m from B", query: orb.Point{2.0, 2.00001}, wantID: 11, found: true},
		{name: "about 50m from A", query: orb.Point{1.00045, 1.0}, found: false},
		{name: "between A and B", query: orb.Point{1.5, 1.5}, found: false},
		{name: "at outgoing C", query: orb.Point{3.0, 3.0}, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := r.FindNearestIngoingNode(tt.query)
			require.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.wantID, n.ID)
			}
		})
	}
}

func TestRoundTripPreservesNodesAndCosts(t *testing.T) {
	w := crossctx.NewWriter()
	tiles := []string{"12-3274-2046", "12-3275-2045", "12-3273-2046"}
	for i := 0; i < 7; i++ {
		w.AddIngoingNode(crossctx.NodeID(100+i), orb.Point{103.8 + float64(i)*0.001, 1.30})
	}
	for i := 0; i < 5; i++ {
		w.AddOutgoingNode(crossctx.NodeID(200+i), tiles[i%len(tiles)], orb.Point{103.8, 1.30 + float64(i)*0.001})
	}
	w.ReserveAdjacencyMatrix()

	want := make(map[[2]int]crossctx.EdgeWeight)
	for _, in := range w.IngoingNodes() {
		for _, out := range w.OutgoingNodes() {
			if (in.AdjacencyIndex()+out.AdjacencyIndex())%3 == 0 {
				continue
			}
			cost := crossctx.EdgeWeight(1000*in.AdjacencyIndex() + out.AdjacencyIndex() + 1)
			w.SetAdjacencyCost(in, out, cost)
			want[[2]int{in.AdjacencyIndex(), out.AdjacencyIndex()}] = cost
		}
	}

	data, err := w.MarshalBinary()
	require.NoError(t, err)
	r := load(t, data)

	require.Equal(t, 7, r.IngoingCount())
	require.Equal(t, 5, r.OutgoingCount())
	assert.Equal(t, w.NeighborTiles(), r.NeighborTiles())

	wIn, rIn := w.IngoingNodes(), r.IngoingNodes()
	for i := range wIn {
		assert.Equal(t, wIn[i].ID, rIn[i].ID)
		assert.Equal(t, i, rIn[i].AdjacencyIndex())
		assert.Less(t, orbgeo.DistanceHaversine(wIn[i].Point, rIn[i].Point), quantizationTolerance)
	}

	wOut, rOut := w.OutgoingNodes(), r.OutgoingNodes()
	for i := range wOut {
		assert.Equal(t, wOut[i].ID, rOut[i].ID)
		assert.Equal(t, wOut[i].NeighborIndex, rOut[i].NeighborIndex)
		assert.Equal(t, i, rOut[i].AdjacencyIndex())
		assert.Equal(t, tiles[i%len(tiles)], r.OutgoingNeighborName(rOut[i]))
		assert.Less(t, orbgeo.DistanceHaversine(wOut[i].Point, rOut[i].Point), quantizationTolerance)
	}

	for _, in := range rIn {
		for _, out := range rOut {
			cost, ok := want[[2]int{in.AdjacencyIndex(), out.AdjacencyIndex()}]
			if !ok {
				cost = crossctx.NoPath
			}
			assert.Equal(t, cost, r.AdjacencyCost(in, out), "cell (%d, %d)", in.AdjacencyIndex(), out.AdjacencyIndex())
		}
	}

	assert.ElementsMatch(t, rIn, r.AllIngoingNodes())
}

func TestAdjacencyIndexFollowsInsertionOrder(t *testing.T) {
	w := crossctx.NewWriter()
	for i := 0; i < 4; i++ {
		w.AddIngoingNode(crossctx.NodeID(50-i), orb.Point{float64(i), 0})
		w.AddOutgoingNode(crossctx.NodeID(90-i), fmt.Sprintf("t%d", i%2), orb.Point{0, float64(i)})
	}
	w.ReserveAdjacencyMatrix()

	for i, n := range w.IngoingNodes() {
		assert.Equal(t, i, n.AdjacencyIndex())
	}
	for i, n := range w.OutgoingNodes() {
		assert.Equal(t, i, n.AdjacencyIndex())
	}

	data, err := w.MarshalBinary()
	require.NoError(t, err)
	r := load(t, data)
	for i, n := range r.IngoingNodes() {
		assert.Equal(t, i, n.AdjacencyIndex())
		assert.Equal(t, crossctx.NodeID(50-i), n.ID)
	}
	for i, n := range r.OutgoingNodes() {
		assert.Equal(t, i, n.AdjacencyIndex())
		assert.Equal(t, crossctx.NodeID(90-i), n.ID)
	}
}

func TestNeighborDeduplication(t *testing.T) {
	w := crossctx.NewWriter()
	w.AddOutgoingNode(1, "north", orb.Point{0, 1})
	w.AddOutgoingNode(2, "east", orb.Point{1, 0})
	w.AddOutgoingNode(3, "north", orb.Point{0, 2})
	w.AddOutgoingNode(4, "east", orb.Point{2, 0})
	w.ReserveAdjacencyMatrix()

	assert.Equal(t, []string{"north", "east"}, w.NeighborTiles())
	out := w.OutgoingNodes()
	assert.Equal(t, []uint32{0, 1, 0, 1}, []uint32{out[0].NeighborIndex, out[1].NeighborIndex, out[2].NeighborIndex, out[3].NeighborIndex})

	data, err := w.MarshalBinary()
	require.NoError(t, err)
	r := load(t, data)

	rOut := r.OutgoingNodes()
	assert.Equal(t, r.OutgoingNeighborName(rOut[0]), r.OutgoingNeighborName(rOut[2]))
	assert.Len(t, r.OutgoingNodesTo("north"), 2)
	assert.Len(t, r.OutgoingNodesTo("east"), 2)
	assert.Empty(t, r.OutgoingNodesTo("south"))

	n, ok := r.OutgoingNodeAt(2)
	require.True(t, ok)
	assert.Equal(t, crossctx.NodeID(3), n.ID)
	_, ok = r.OutgoingNodeAt(4)
	assert.False(t, ok)
	_, ok = r.OutgoingNodeAt(-1)
	assert.False(t, ok)
	_, ok = r.IngoingNodeAt(0)
	assert.False(t, ok)
}

func TestMatrixDefaultsToNoPath(t *testing.T) {
	w := crossctx.NewWriter()
	for i := 0; i < 3; i++ {
		w.AddIngoingNode(crossctx.NodeID(i), orb.Point{float64(i), 0})
		w.AddOutgoingNode(crossctx.NodeID(10+i), "n", orb.Point{0, float64(i)})
	}
	w.ReserveAdjacencyMatrix()

	// An explicit NoPath is indistinguishable from an unset cell.
	w.SetAdjacencyCost(w.IngoingNodes()[1], w.OutgoingNodes()[1], crossctx.NoPath)

	data, err := w.MarshalBinary()
	require.NoError(t, err)
	r := load(t, data)
	for _, in := range r.IngoingNodes() {
		for _, out := range r.OutgoingNodes() {
			assert.Equal(t, crossctx.NoPath, r.AdjacencyCost(in, out))
		}
	}
}

func TestAdjacencyCostForeignNodes(t *testing.T) {
	_, data := buildScenario(t)
	r := load(t, data)
	in := r.IngoingNodes()[0]
	out := r.OutgoingNodes()[0]

	assert.Equal(t, crossctx.NoPath, r.AdjacencyCost(crossctx.IngoingNode{}, out))
	assert.Equal(t, crossctx.NoPath, r.AdjacencyCost(in, crossctx.OutgoingNode{}))
	assert.Equal(t, crossctx.InvalidAdjacencyIndex, crossctx.IngoingNode{}.AdjacencyIndex())

	// Nodes from a larger context fall outside this matrix.
	big := crossctx.NewWriter()
	for i := 0; i < 4; i++ {
		big.AddIngoingNode(crossctx.NodeID(i), orb.Point{0, 0})
		big.AddOutgoingNode(crossctx.NodeID(i), "x", orb.Point{0, 0})
	}
	bigIn, bigOut := big.IngoingNodes(), big.OutgoingNodes()
	assert.Equal(t, crossctx.NoPath, r.AdjacencyCost(bigIn[3], out))
	assert.Equal(t, crossctx.NoPath, r.AdjacencyCost(in, bigOut[3]))
}

func TestEmptyContextRoundTrip(t *testing.T) {
	w := crossctx.NewWriter()
	data, err := w.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, 12)

	r := load(t, data)
	assert.Zero(t, r.IngoingCount())
	assert.Zero(t, r.OutgoingCount())
	assert.Empty(t, r.AllIngoingNodes())
	_, ok := r.FindNearestIngoingNode(orb.Point{0, 0})
	assert.False(t, ok)
}

func TestOnlyIngoingNodes(t *testing.T) {
	w := crossctx.NewWriter()
	w.AddIngoingNode(1, orb.Point{10, 10})
	w.AddIngoingNode(2, orb.Point{11, 11})
	w.ReserveAdjacencyMatrix()

	data, err := w.MarshalBinary()
	require.NoError(t, err)
	r := load(t, data)
	assert.Equal(t, 2, r.IngoingCount())
	assert.Zero(t, r.OutgoingCount())

	n, ok := r.FindNearestIngoingNode(orb.Point{11, 11})
	require.True(t, ok)
	assert.Equal(t, crossctx.NodeID(2), n.ID)
}

func TestSaveRejectsUnreservedMatrix(t *testing.T) {
	t.Run("never reserved", func(t *testing.T) {
		w := crossctx.NewWriter()
		w.AddIngoingNode(1, orb.Point{0, 0})
		w.AddOutgoingNode(2, "n", orb.Point{1, 1})

		var buf bytes.Buffer
		err := w.Save(&buf)
		require.ErrorIs(t, err, crossctx.ErrMatrixSize)
		assert.Zero(t, buf.Len())
	})

	t.Run("nodes added after reserve", func(t *testing.T) {
		w := crossctx.NewWriter()
		w.AddIngoingNode(1, orb.Point{0, 0})
		w.AddOutgoingNode(2, "n", orb.Point{1, 1})
		w.ReserveAdjacencyMatrix()
		w.AddIngoingNode(3, orb.Point{2, 2})

		_, err := w.MarshalBinary()
		require.ErrorIs(t, err, crossctx.ErrMatrixSize)
	})
}

type failingWriter struct{ after int }

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("disk full")
	}
	f.after--
	return len(p), nil
}

func TestSavePropagatesWriteErrors(t *testing.T) {
	w, _ := buildScenario(t)
	for after, section := range []string{"ingoing nodes", "outgoing nodes", "adjacency matrix", "neighbor tiles"} {
		err := w.Save(&failingWriter{after: after})
		require.Error(t, err)
		assert.Contains(t, err.Error(), section)
	}
}

func TestSetAdjacencyCostPanicsOutOfRange(t *testing.T) {
	w := crossctx.NewWriter()
	w.AddIngoingNode(1, orb.Point{0, 0})
	w.AddOutgoingNode(2, "n", orb.Point{1, 1})
	in, out := w.IngoingNodes()[0], w.OutgoingNodes()[0]

	assert.Panics(t, func() { w.SetAdjacencyCost(in, out, 1) }, "matrix not reserved")

	w.ReserveAdjacencyMatrix()
	assert.NotPanics(t, func() { w.SetAdjacencyCost(in, out, 1) })
	assert.Panics(t, func() { w.SetAdjacencyCost(crossctx.IngoingNode{}, out, 1) })
	assert.Panics(t, func() { w.SetAdjacencyCost(in, crossctx.OutgoingNode{}, 1) })
}

func TestOutgoingNeighborNamePanicsOnBadIndex(t *testing.T) {
	_, data := buildScenario(t)
	r := load(t, data)
	assert.Panics(t, func() {
		r.OutgoingNeighborName(crossctx.OutgoingNode{NeighborIndex: 1})
	})
}

func TestLoadTruncated(t *testing.T) {
	_, data := buildScenario(t)

	for n := 0; n < len(data); n++ {
		r := crossctx.NewReader()
		err := r.LoadBytes(data[:n])
		require.ErrorIs(t, err, crossctx.ErrTruncated, "prefix of %d bytes", n)
		assert.Zero(t, r.IngoingCount(), "prefix of %d bytes", n)
		assert.Zero(t, r.OutgoingCount(), "prefix of %d bytes", n)
		assert.Empty(t, r.AllIngoingNodes(), "prefix of %d bytes", n)
	}
}

// plainReaderAt hides bytes.Reader's Size so Load cannot check lengths up front.
type plainReaderAt struct{ r io.ReaderAt }

func (p plainReaderAt) ReadAt(b []byte, off int64) (int, error) { return p.r.ReadAt(b, off) }

func TestLoadTruncatedWithoutSize(t *testing.T) {
	_, data := buildScenario(t)

	for _, n := range []int{0, 3, 4, 20, len(data) - 1} {
		err := crossctx.NewReader().Load(plainReaderAt{bytes.NewReader(data[:n])})
		require.ErrorIs(t, err, crossctx.ErrTruncated, "prefix of %d bytes", n)
	}

	r := crossctx.NewReader()
	require.NoError(t, r.Load(plainReaderAt{bytes.NewReader(data)}))
	assert.Equal(t, 2, r.IngoingCount())
}

func TestLoadHugeCountFromFile(t *testing.T) {
	// 16 bytes claiming 0x20000000 ingoing records of 12 bytes each.
	data := make([]byte, 16)
	binary.NativeEndian.PutUint32(data, 0x20000000)
	path := filepath.Join(t.TempDir(), "corrupt.ctx")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := crossctx.NewReader()
	require.ErrorIs(t, r.Load(f), crossctx.ErrTruncated)
	assert.Zero(t, r.IngoingCount())

	err = crossctx.NewReader().Load(plainReaderAt{bytes.NewReader(data)})
	require.ErrorIs(t, err, crossctx.ErrTruncated)
}

func TestLoadFromFile(t *testing.T) {
	_, data := buildScenario(t)
	path := filepath.Join(t.TempDir(), "scenario.ctx")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := crossctx.NewReader()
	require.NoError(t, r.Load(f))
	assert.Equal(t, 2, r.IngoingCount())
	assert.Equal(t, 2, r.OutgoingCount())
	assert.Equal(t, []string{"tileX"}, r.NeighborTiles())
}

func TestLoadDoesNotKeepPreviousState(t *testing.T) {
	_, data := buildScenario(t)
	r := load(t, data)

	require.Error(t, r.LoadBytes(data[:len(data)-2]))
	assert.Zero(t, r.IngoingCount())
	assert.Empty(t, r.NeighborTiles())
}

func TestLoadIgnoresTrailingBytes(t *testing.T) {
	_, data := buildScenario(t)
	r := load(t, append(data, 0xde, 0xad, 0xbe, 0xef))
	assert.Equal(t, 2, r.OutgoingCount())
}

func TestReaderConcurrentQueries(t *testing.T) {
	_, data := buildScenario(t)
	r := load(t, data)
	in := r.IngoingNodes()
	out := r.OutgoingNodes()

	const goroutines, queries = 16, 200
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := 0; q < queries; q++ {
				n, ok := r.FindNearestIngoingNode(orb.Point{1.0, 1.0})
				if !ok || n.ID != 10 {
					errs <- fmt.Errorf("nearest ingoing: got %v, %v", n.ID, ok)
					return
				}
				if got := len(r.AllIngoingNodes()); got != 2 {
					errs <- fmt.Errorf("all ingoing: got %d nodes", got)
					return
				}
				if c := r.AdjacencyCost(in[q%2], out[q%2]); c != crossctx.EdgeWeight(5+2*(q%2)) {
					errs <- fmt.Errorf("adjacency cost: got %d", c)
					return
				}
				if c := r.AdjacencyCost(in[0], out[1]); c != crossctx.NoPath {
					errs <- fmt.Errorf("adjacency cost: got %d, want NoPath", c)
					return
				}
				if name := r.OutgoingNeighborName(out[q%2]); name != "tileX" {
					errs <- fmt.Errorf("neighbor name: got %q", name)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func BenchmarkLoad(b *testing.B) {
	w := crossctx.NewWriter()
	for i := 0; i < 200; i++ {
		w.AddIngoingNode(crossctx.NodeID(i), orb.Point{103.8 + float64(i)*1e-4, 1.3})
		w.AddOutgoingNode(crossctx.NodeID(1000+i), fmt.Sprintf("12-%d-2046", i%4), orb.Point{103.8, 1.3 + float64(i)*1e-4})
	}
	w.ReserveAdjacencyMatrix()
	data, err := w.MarshalBinary()
	if err != nil {
		b.Fatal(err)
	}

	for b.Loop() {
		r := crossctx.NewReader()
		if err := r.LoadBytes(data); err != nil {
			b.Fatal(err)
		}
	}
}
