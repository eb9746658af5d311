// Command simd serves a live simulation: the engine steps on a
// wall-clock ticker and every connected websocket viewer receives one
// frame per step.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wealthgrid.dev/internal/persistence/runlog"
	"wealthgrid.dev/internal/sim/engine"
	"wealthgrid.dev/internal/sim/live"
	"wealthgrid.dev/internal/sim/tuning"
	"wealthgrid.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		seed       = flag.Int64("seed", 0, "override tuning seed (0 = use tuning)")
		hz         = flag.Int("hz", 0, "override tick rate (0 = use tuning)")
		runID      = flag.String("run_id", "", "run id (default: run_<seed>)")
		logPath    = flag.String("runlog", "", "write per-step jsonl.zst run log here (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[simd] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	if *hz != 0 {
		tune.TickRateHz = *hz
	}

	id := strings.TrimSpace(*runID)
	if id == "" {
		id = fmt.Sprintf("run_%d", tune.Seed)
	}

	e, err := engine.New(tune.EngineConfig())
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	if *logPath != "" {
		w, err := runlog.Create(*logPath)
		if err != nil {
			logger.Fatalf("open run log: %v", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Printf("close run log: %v", err)
			}
		}()
		e.SetStepLogger(w)
	}

	loop := live.NewLoop(e, id, tune.TickRateHz, logger)
	server := ws.NewServer(loop, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", server.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatalf("listen: %v", err)
	}
	httpSrv := &http.Server{Handler: mux}

	errCh := make(chan error, 2)
	go func() { errCh <- loop.Run(ctx) }()
	go func() { errCh <- httpSrv.Serve(ln) }()

	cfg := e.Config()
	logger.Printf("serving %s on %s: population=%d grid=%dx%d seed=%d hz=%d",
		id, ln.Addr(), cfg.Population, cfg.Width, cfg.Height, cfg.Seed, tune.TickRateHz)

	select {
	case <-ctx.Done():
		logger.Printf("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Printf("fatal: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	loop.Stop()
	logger.Printf("stopped at step=%d", e.CurrentStep())
}
