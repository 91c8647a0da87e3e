package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kashimo.ai/internal/protocol"
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/transport/ws"
)

func main() {
	var (
		addr      = flag.String("addr", ":8080", "http listen address")
		seed      = flag.Int64("seed", 1337, "farm seed")
		configDir = flag.String("configs", "./configs", "config directory")
		radius    = flag.Int("view_radius", 4, "largest chunk view radius served")
		tickMs    = flag.Int("tick_ms", 200, "milliseconds between block update batches")
		changes   = flag.Int("changes", 4, "block mutations per tick")
		encoding  = flag.String("encoding", protocol.EncodingZstdU16, "CHUNK payload encoding (zstd+u16le or rle+uvarint)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[worldsim] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	src := newSimSource(simConfig{
		Seed:       *seed,
		ViewRadius: *radius,
		MinY:       -16,
		MaxY:       15,
		Tick:       time.Duration(*tickMs) * time.Millisecond,
		Changes:    *changes,
		Encoding:   *encoding,
	}, cats, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/v1/ws", ws.NewServer(src, logger).Handler())

	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (seed=%d palette=%s)", *addr, *seed, cats.Blocks.Digest[:12])
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http: %v", err)
	}
}
