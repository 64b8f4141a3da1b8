// Package tilestore serves tile routing contexts from a directory of tile
// files, loading each on first use and keeping recently used ones in memory.
package tilestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tile_router/pkg/crossctx"
	"tile_router/pkg/graph"
	"tile_router/pkg/tiling"
)

// DefaultCacheSize is the number of loaded tiles kept when Options.CacheSize
// is zero.
const DefaultCacheSize = 256

var (
	// ErrTileNotFound is returned by Get when the tile has no file.
	ErrTileNotFound = errors.New("tile not found")
	// ErrInvalidTileName is returned by Get for names that are not
	// canonical z-x-y tile names.
	ErrInvalidTileName = errors.New("invalid tile name")
)

// Options configures a Store.
type Options struct {
	CacheSize int
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Store hands out shared, read-only routing contexts by tile name.
// It is safe for concurrent use.
type Store struct {
	dir     string
	cache   *lru.Cache[string, *crossctx.Reader]
	group   singleflight.Group
	log     *zap.Logger
	metrics *Metrics
}

// New creates a Store over the tile files in dir.
func New(dir string, opts Options) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("tile dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tile dir %s is not a directory", dir)
	}

	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *crossctx.Reader](size)
	if err != nil {
		return nil, fmt.Errorf("create tile cache: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, cache: cache, log: log, metrics: opts.Metrics}, nil
}

// Get returns the routing context of the named tile. Concurrent calls for
// an uncached tile share one load. Failed loads are not cached.
func (s *Store) Get(ctx context.Context, name string) (*crossctx.Reader, error) {
	if _, err := tiling.ParseTileName(name); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTileName, name)
	}
	if r, ok := s.cache.Get(name); ok {
		s.metrics.hit()
		return r, nil
	}
	s.metrics.miss()

	ch := s.group.DoChan(name, func() (any, error) {
		return s.load(name)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*crossctx.Reader), nil
	}
}

func (s *Store) load(name string) (*crossctx.Reader, error) {
	if r, ok := s.cache.Get(name); ok {
		return r, nil
	}

	blob, err := graph.ReadCrossContext(graph.TilePath(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, name)
	}
	if err == nil {
		r := crossctx.NewReader()
		if err = r.LoadBytes(blob); err == nil {
			s.cache.Add(name, r)
			s.metrics.loaded()
			s.log.Debug("tile loaded",
				zap.String("tile", name),
				zap.Int("ingoing", r.IngoingCount()),
				zap.Int("outgoing", r.OutgoingCount()))
			return r, nil
		}
	}

	s.metrics.loadError()
	s.log.Warn("tile load failed", zap.String("tile", name), zap.Error(err))
	return nil, fmt.Errorf("load tile %s: %w", name, err)
}

// Tiles lists the names of all tile files in the store's directory, sorted.
func (s *Store) Tiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list tiles: %w", err)
	}
	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), graph.TileFileExt)
		if !ok || e.IsDir() {
			continue
		}
		if _, err := tiling.ParseTileName(name); err != nil {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Cached returns the number of tiles currently held in memory.
func (s *Store) Cached() int {
	return s.cache.Len()
}
