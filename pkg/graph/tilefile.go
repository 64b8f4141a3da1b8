package graph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

const (
	magicBytes      = "TILEROUT"
	version         = uint32(1)
	maxNodes        = 10_000_000
	maxEdges        = 50_000_000
	maxCrossContext = 1 << 30
)

// TileFileExt is the file extension of tile files.
const TileFileExt = ".tile"

// TilePath returns the path of the named tile's file in dir.
func TilePath(dir, name string) string {
	return filepath.Join(dir, name+TileFileExt)
}

// ErrCorruptTile is returned when a tile file fails validation.
var ErrCorruptTile = errors.New("corrupt tile file")

// Tile is the on-disk unit of the tiled road network: the tile's induced
// road graph plus its encoded cross-tile routing context.
type Tile struct {
	Graph        *Graph
	CrossContext []byte
}

// tileHeader is the binary header.
type tileHeader struct {
	Magic           [8]byte
	Version         uint32
	NumNodes        uint32
	NumEdges        uint32
	CrossContextLen uint32
}

var tileHeaderSize = int64(binary.Size(tileHeader{}))

// crossContextOffset is where the cross-context blob starts: after the
// header, node lat/lon and OSM ids, and the CSR arrays.
func (h tileHeader) crossContextOffset() int64 {
	n, m := int64(h.NumNodes), int64(h.NumEdges)
	return tileHeaderSize + n*8*2 + n*8 + (n+1)*4 + m*4*2
}

func (h tileHeader) validate() error {
	if string(h.Magic[:]) != magicBytes {
		return fmt.Errorf("%w: invalid magic bytes %q", ErrCorruptTile, h.Magic)
	}
	if h.Version != version {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptTile, h.Version)
	}
	if h.NumNodes > maxNodes {
		return fmt.Errorf("%w: NumNodes %d exceeds limit %d", ErrCorruptTile, h.NumNodes, maxNodes)
	}
	if h.NumEdges > maxEdges {
		return fmt.Errorf("%w: NumEdges %d exceeds limit %d", ErrCorruptTile, h.NumEdges, maxEdges)
	}
	if h.CrossContextLen > maxCrossContext {
		return fmt.Errorf("%w: cross context length %d exceeds limit %d", ErrCorruptTile, h.CrossContextLen, maxCrossContext)
	}
	return nil
}

// WriteTile serializes t to path. The file is written to a temporary path
// and renamed into place.
func WriteTile(path string, t *Tile) error {
	g := t.Graph
	if uint32(len(g.FirstOut)) != g.NumNodes+1 || uint32(len(g.Points)) != g.NumNodes {
		return fmt.Errorf("write tile: graph arrays do not match NumNodes %d", g.NumNodes)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	hdr := tileHeader{
		Version:         version,
		NumNodes:        g.NumNodes,
		NumEdges:        g.NumEdges,
		CrossContextLen: uint32(len(t.CrossContext)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	lat := make([]float64, g.NumNodes)
	lon := make([]float64, g.NumNodes)
	for i, p := range g.Points {
		lat[i], lon[i] = p.Lat(), p.Lon()
	}
	osmIDs := g.OSMIDs
	if osmIDs == nil {
		osmIDs = make([]osm.NodeID, g.NumNodes)
	}

	if err := writeSlice(w, lat); err != nil {
		return fmt.Errorf("write NodeLat: %w", err)
	}
	if err := writeSlice(w, lon); err != nil {
		return fmt.Errorf("write NodeLon: %w", err)
	}
	if err := writeSlice(w, osmIDs); err != nil {
		return fmt.Errorf("write OSMIDs: %w", err)
	}
	if err := writeSlice(w, g.FirstOut); err != nil {
		return fmt.Errorf("write FirstOut: %w", err)
	}
	if err := writeSlice(w, g.Head); err != nil {
		return fmt.Errorf("write Head: %w", err)
	}
	if err := writeSlice(w, g.Weight); err != nil {
		return fmt.Errorf("write Weight: %w", err)
	}
	if _, err := w.Write(t.CrossContext); err != nil {
		return fmt.Errorf("write cross context: %w", err)
	}

	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadTile deserializes a tile file, verifying its checksum and CSR arrays.
func ReadTile(path string) (*Tile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr tileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := hdr.validate(); err != nil {
		return nil, err
	}

	n, m := int(hdr.NumNodes), int(hdr.NumEdges)
	g := &Graph{NumNodes: hdr.NumNodes, NumEdges: hdr.NumEdges}

	lat, err := readSlice[float64](r, n)
	if err != nil {
		return nil, fmt.Errorf("read NodeLat: %w", err)
	}
	lon, err := readSlice[float64](r, n)
	if err != nil {
		return nil, fmt.Errorf("read NodeLon: %w", err)
	}
	if g.OSMIDs, err = readSlice[osm.NodeID](r, n); err != nil {
		return nil, fmt.Errorf("read OSMIDs: %w", err)
	}
	if g.FirstOut, err = readSlice[uint32](r, n+1); err != nil {
		return nil, fmt.Errorf("read FirstOut: %w", err)
	}
	if g.Head, err = readSlice[uint32](r, m); err != nil {
		return nil, fmt.Errorf("read Head: %w", err)
	}
	if g.Weight, err = readSlice[uint32](r, m); err != nil {
		return nil, fmt.Errorf("read Weight: %w", err)
	}
	g.Points = make([]orb.Point, n)
	for i := range g.Points {
		g.Points[i] = orb.Point{lon[i], lat[i]}
	}

	blob := make([]byte, hdr.CrossContextLen)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, fmt.Errorf("read cross context: %w", err)
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("%w: CRC32 mismatch: stored=%08x computed=%08x", ErrCorruptTile, storedCRC, expectedCRC)
	}

	if err := validateCSR(g.FirstOut, g.Head, hdr.NumNodes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptTile, err)
	}

	return &Tile{Graph: g, CrossContext: blob}, nil
}

// ReadCrossContext returns only the cross-context section of a tile file,
// without reading the graph arrays or verifying the checksum.
func ReadCrossContext(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var hdr tileHeader
	if err := binary.Read(io.NewSectionReader(f, 0, tileHeaderSize), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := hdr.validate(); err != nil {
		return nil, err
	}

	blob := make([]byte, hdr.CrossContextLen)
	if _, err := f.ReadAt(blob, hdr.crossContextOffset()); err != nil {
		return nil, fmt.Errorf("read cross context: %w", err)
	}
	return blob, nil
}

// validateCSR checks CSR invariants.
func validateCSR(firstOut, head []uint32, numNodes uint32) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return fmt.Errorf("FirstOut length %d != NumNodes+1 %d", len(firstOut), numNodes+1)
	}
	if firstOut[0] != 0 {
		return fmt.Errorf("FirstOut[0]=%d, want 0", firstOut[0])
	}
	numEdges := firstOut[numNodes]
	if uint32(len(head)) != numEdges {
		return fmt.Errorf("Head length %d != FirstOut[NumNodes] %d", len(head), numEdges)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("FirstOut not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	for i, h := range head {
		if h >= numNodes {
			return fmt.Errorf("Head[%d]=%d >= NumNodes=%d", i, h, numNodes)
		}
	}
	return nil
}

// Zero-copy I/O helpers using unsafe.Slice.

type fixedSize interface {
	~uint32 | ~int64 | ~float64
}

func writeSlice[T fixedSize](w io.Writer, s []T) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
	_, err := w.Write(b)
	return err
}

func readSlice[T fixedSize](r io.Reader, n int) ([]T, error) {
	s := make([]T, n)
	if n == 0 {
		return s, nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*int(unsafe.Sizeof(s[0])))
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

// CRC32 wrapping writers/readers.

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
