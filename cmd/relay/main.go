package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/astromechza/rectangle-sync/pkg/config"
	"github.com/astromechza/rectangle-sync/pkg/relay"
	"github.com/astromechza/rectangle-sync/pkg/render"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg := config.LoadRelay()
	addrVar := flag.String("addr", cfg.Addr, "the address to listen on")
	levelVar := flag.String("log-level", cfg.LogLevel, "one of debug, info, warn or error")
	bufferVar := flag.Int("peer-buffer", cfg.PeerBuffer, "outbound frames queued per peer before it is dropped")
	flag.Parse()

	if err := config.SetupLogging(*levelVar); err != nil {
		return err
	}

	rl := relay.New(relay.Options{Logger: slog.Default(), PeerBuffer: *bufferVar})
	s := &server{relay: rl}

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/sync").Handler(rl)
	r.Methods(http.MethodGet).Path("/rectangles").HandlerFunc(s.getRectangles)
	r.Methods(http.MethodGet).Path("/canvas.png").HandlerFunc(s.getCanvas)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rl.Run(ctx); err != nil {
			slog.Error("relay stopped", "err", err)
		}
	}()

	httpServer := &http.Server{Addr: *addrVar, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", *addrVar)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)

	final, err := rl.Snapshot(ctx)
	if err != nil {
		slog.Error("failed to take final snapshot", "err", err)
	}
	cancel()
	_ = httpServer.Close()
	wg.Wait()

	if pngPath, err := render.RenderToTemp(final, render.DefaultOptions()); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	} else {
		slog.Info("rendered", "rectangles", len(final), "path", "file://"+pngPath)
	}
	return nil
}

type server struct {
	relay *relay.Relay
}

func (s *server) getRectangles(writer http.ResponseWriter, request *http.Request) {
	rects, err := s.relay.Snapshot(request.Context())
	if err != nil {
		slog.Error("failed to snapshot", "err", err)
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writer.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(rects); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *server) getCanvas(writer http.ResponseWriter, request *http.Request) {
	rects, err := s.relay.Snapshot(request.Context())
	if err != nil {
		slog.Error("failed to snapshot", "err", err)
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writer.Header().Add("Content-Type", "image/png")
	if err := render.WritePNG(writer, rects, render.DefaultOptions()); err != nil {
		slog.Error("failed to render", "err", err)
	}
}
