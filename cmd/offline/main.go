package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/drpcorg/offline"
	"github.com/drpcorg/offline/config"
	"github.com/drpcorg/offline/store"
	"github.com/drpcorg/offline/utils"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func openStore(cfg *config.Config) (store.Store, io.Closer, error) {
	if cfg.DataDir == "" {
		return store.NewMemory(), io.NopCloser(nil), nil
	}
	p, err := store.OpenPebble(store.PebbleOptions{Dir: cfg.DataDir, CacheSize: cfg.CacheSize})
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}

func serveMetrics(addr string, s store.Store, log utils.Logger) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(offline.Collectors()...)
	if p, ok := s.(*store.Pebble); ok {
		reg.MustRegister(p.Collector())
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server stopped", "addr", addr, "err", err)
		}
	}()
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	log := utils.NewLogger(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	s, closer, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = closer.Close()
	}()

	db := offline.Open(s, offline.Options{Logger: log})
	if err := db.Register(cfg.BuildTables()...); err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr, s, log)
	}

	repl := REPL{DB: db, ctx: context.Background()}
	if err := repl.Open(); err != nil {
		return err
	}
	defer repl.Close()

	for {
		err := repl.REPL()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
	}
}

func main() {
	cfgPath := flag.String("config", "offline.yaml", "database configuration")
	flag.Parse()
	if err := run(*cfgPath); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
