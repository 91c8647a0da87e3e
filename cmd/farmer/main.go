package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"kashimo.ai/internal/agent"
	"kashimo.ai/internal/persistence/indexdb"
	feedlog "kashimo.ai/internal/persistence/log"
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/tuning"
	"kashimo.ai/internal/transport/ws"
)

func main() {
	var (
		url        = flag.String("url", "ws://127.0.0.1:8080/v1/ws", "world feed websocket url")
		name       = flag.String("name", "farmer", "agent name sent in HELLO")
		viewRadius = flag.Int("view_radius", 4, "chunk view radius requested from the server")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
		once       = flag.Bool("once", false, "do not reconnect after the feed drops")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[farmer] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	cfg := agent.Config{Catalogs: cats, Tuning: tune, Logger: logger}

	if tune.FeedLog.Enabled {
		fl := feedlog.NewFeedLogger(dataPath(*dataDir, tune.FeedLog.Dir))
		defer fl.Close()
		cfg.FeedLog = fl
	}

	if tune.IndexDB.Enabled && !*disableDB {
		idx, err := indexdb.OpenSQLite(dataPath(*dataDir, tune.IndexDB.Path))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer func() {
			st := idx.Stats()
			if n := st.DropChangeTotal + st.DropScanTotal + st.DropDecisionTotal; n > 0 {
				logger.Printf("index dropped %d writes (changes=%d scans=%d decisions=%d)", n, st.DropChangeTotal, st.DropScanTotal, st.DropDecisionTotal)
			}
			_ = idx.Close()
		}()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
		cfg.Index = idx
	}

	feed := ws.NewFeed(ws.FeedConfig{
		URL:        *url,
		Name:       *name,
		MaxQueue:   tune.MaxQueue,
		ViewRadius: *viewRadius,
		Blocks:     cats.Blocks,
		Reconnect:  !*once,
		Logger:     log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lmicroseconds),
	})
	runner := agent.New(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.Run(gctx) })
	g.Go(func() error { return runner.Run(gctx, feed.Messages()) })

	logger.Printf("farming via %s as %s (tick=%s)", *url, *name, tune.DecisionTick())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("stopped: %v", err)
	}
	reg := runner.Registry()
	logger.Printf("crops=%d ripe=%d partitions=%d", reg.CropCount(), reg.HarvestableCount(), reg.Len())
}

// dataPath resolves p against the data directory unless it is absolute.
func dataPath(dataDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
