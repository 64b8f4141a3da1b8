package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tile_router/pkg/config"
	"tile_router/pkg/graph"
	"tile_router/pkg/logging"
	osmparser "tile_router/pkg/osm"
	"tile_router/pkg/tilebuild"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: tile_router.yaml in . or ./configs)")
	input := flag.String("input", "", "Path to .osm.pbf file (overrides build.input)")
	output := flag.String("output", "", "Output directory for tile files (overrides build.output_dir)")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 1.15,103.6,1.48,104.1)")
	singapore := flag.Bool("singapore", false, "Shortcut for --bbox 1.15,103.6,1.48,104.1 (Singapore bounding box)")
	kl := flag.Bool("kl", false, "Shortcut for --bbox 2.75,101.2,3.5,102.0 (Selangor + Kuala Lumpur bounding box)")
	zoom := flag.Int("zoom", 0, "Tile zoom level (overrides build.tile_zoom)")
	workers := flag.Int("workers", 0, "Concurrent tile builders (overrides build.workers)")
	largest := flag.Bool("largest-component", true, "Keep only the largest connected component")
	verify := flag.Bool("verify", false, "Read every tile back after writing it (overrides build.verify)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	switch {
	case *kl:
		cfg.Build.BBox = "2.75,101.2,3.5,102.0"
	case *singapore:
		cfg.Build.BBox = "1.15,103.6,1.48,104.1"
	case *bbox != "":
		cfg.Build.BBox = *bbox
	}
	if *input != "" {
		cfg.Build.Input = *input
	}
	if *output != "" {
		cfg.Build.OutputDir = *output
	}
	if *zoom != 0 {
		cfg.Build.TileZoom = *zoom
	}
	if *workers != 0 {
		cfg.Build.Workers = *workers
	}
	if *verify {
		cfg.Build.Verify = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.Build.Input == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file.osm.pbf> [--output tiles] [--zoom 12] [--singapore | --kl | --bbox minLat,minLng,maxLat,maxLng]")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *largest, log); err != nil {
		log.Fatal("preprocess failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, largest bool, log *zap.Logger) error {
	start := time.Now()

	bound, err := cfg.Build.Bound()
	if err != nil {
		return err
	}
	if !bound.IsZero() {
		log.Info("using bounding box filter",
			zap.Float64("min_lat", bound.Min.Lat()), zap.Float64("max_lat", bound.Max.Lat()),
			zap.Float64("min_lng", bound.Min.Lon()), zap.Float64("max_lng", bound.Max.Lon()))
	}

	// Step 1: Parse OSM data.
	f, err := os.Open(cfg.Build.Input)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	log.Info("parsing OSM data", zap.String("input", cfg.Build.Input))
	parseResult, err := osmparser.Parse(ctx, f, osmparser.ParseOptions{Bound: bound, Logger: log})
	if err != nil {
		return fmt.Errorf("parse OSM data: %w", err)
	}

	// Step 2: Build graph.
	g := graph.Build(parseResult)
	log.Info("graph built", zap.Uint32("nodes", g.NumNodes), zap.Uint32("edges", g.NumEdges))

	// Step 3: Extract largest connected component.
	if largest && g.NumNodes > 0 {
		nodes := graph.LargestComponent(g)
		log.Info("largest component",
			zap.Int("nodes", len(nodes)),
			zap.Float64("percent", float64(len(nodes))/float64(g.NumNodes)*100))
		g = graph.Subgraph(g, nodes)
	}
	if b := g.Bound(); !b.IsZero() {
		log.Info("graph extent",
			zap.Float64("min_lat", b.Min.Lat()), zap.Float64("max_lat", b.Max.Lat()),
			zap.Float64("min_lng", b.Min.Lon()), zap.Float64("max_lng", b.Max.Lon()))
	}

	// Step 4: Tile and write.
	reg := prometheus.NewRegistry()
	b := &tilebuild.Builder{
		Zoom:      maptile.Zoom(cfg.Build.TileZoom),
		Workers:   cfg.Build.Workers,
		OutputDir: cfg.Build.OutputDir,
		Logger:    log,
		Metrics:   tilebuild.NewMetrics(reg),
		Verify:    cfg.Build.Verify,
	}
	summary, err := b.Build(ctx, g)
	if err != nil {
		return fmt.Errorf("build tiles: %w", err)
	}

	if cfg.Build.MetricsFile != "" {
		path := cfg.Build.MetricsFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Build.OutputDir, path)
		}
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			return fmt.Errorf("write build metrics: %w", err)
		}
		log.Info("build metrics written", zap.String("path", path))
	}

	log.Info("done",
		zap.Int("tiles", summary.Tiles),
		zap.Int("ingoing", summary.IngoingNodes),
		zap.Int("outgoing", summary.OutgoingNodes),
		zap.Int("reachable_pairs", summary.ReachablePairs),
		zap.String("output_dir", cfg.Build.OutputDir),
		zap.Duration("elapsed", time.Since(start).Round(time.Second)))
	return nil
}
