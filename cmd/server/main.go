package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"tile_router/pkg/api"
	"tile_router/pkg/config"
	"tile_router/pkg/logging"
	"tile_router/pkg/tilestore"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: tile_router.yaml in . or ./configs)")
	tileDir := flag.String("tiles", "", "Directory of tile files (overrides store.tile_dir)")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *tileDir != "" {
		cfg.Store.TileDir = *tileDir
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *corsOrigin != "" {
		cfg.Server.CORSOrigin = *corsOrigin
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := tilestore.New(cfg.Store.TileDir, tilestore.Options{
		CacheSize: cfg.Store.CacheSize,
		Logger:    log,
		Metrics:   tilestore.NewMetrics(reg),
	})
	if err != nil {
		log.Fatal("open tile store", zap.Error(err))
	}
	names, err := store.Tiles()
	if err != nil {
		log.Fatal("list tiles", zap.Error(err))
	}
	log.Info("tile store ready", zap.String("dir", cfg.Store.TileDir), zap.Int("tiles", len(names)))

	srvCfg := api.DefaultConfig(fmt.Sprintf(":%d", cfg.Server.Port))
	srvCfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	srvCfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	srvCfg.MaxConcurrent = cfg.Server.MaxConcurrent
	srvCfg.CORSOrigin = cfg.Server.CORSOrigin
	srvCfg.Logger = log
	srvCfg.Metrics = api.NewMetrics(reg)
	srvCfg.Gatherer = reg

	srv := api.NewServer(srvCfg, api.NewHandlers(store, log))
	if err := api.ListenAndServe(srv, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
