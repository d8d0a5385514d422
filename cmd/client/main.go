package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/astromechza/rectangle-sync/pkg/client"
	"github.com/astromechza/rectangle-sync/pkg/config"
	"github.com/astromechza/rectangle-sync/pkg/mirror"
	"github.com/astromechza/rectangle-sync/pkg/rect"
	"github.com/astromechza/rectangle-sync/pkg/render"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg := config.LoadClient()
	addrVar := flag.String("addr", cfg.Addr, "the relay address to connect to")
	levelVar := flag.String("log-level", cfg.LogLevel, "one of debug, info, warn or error")
	mirrorVar := flag.String("mirror", cfg.MirrorPath, "the sqlite file holding the offline mirror")
	redisVar := flag.String("redis", cfg.RedisURL, "optional redis url used to announce mirror writes")
	attemptsVar := flag.Int("reconnect-attempts", cfg.ReconnectAttempts, "failed connections tolerated before staying offline")
	flag.Parse()

	if err := config.SetupLogging(*levelVar); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := mirror.Open(*mirrorVar)
	if err != nil {
		return err
	}
	defer m.Close()

	var notifier mirror.Notifier = mirror.NewFileNotifier(m.Path(), slog.Default())
	if *redisVar != "" {
		rc, err := mirror.DialRedis(ctx, *redisVar)
		if err != nil {
			return err
		}
		defer rc.Close()
		notifier = mirror.NewRedisNotifier(rc, mirror.DefaultKey)
	}

	u := url.URL{Scheme: "ws", Host: *addrVar, Path: "/sync"}
	c, err := client.New(ctx, client.Config{
		URL:               u.String(),
		Mirror:            m,
		Notifier:          notifier,
		ReconnectAttempts: *attemptsVar,
		ReconnectDelay:    cfg.ReconnectDelay,
		Timeout:           cfg.Timeout,
		OnNotice: func(message string) {
			fmt.Fprintln(os.Stderr, message)
		},
	})
	if err != nil {
		return err
	}
	slog.Info("established local replica", "rectangles", c.Store().Len(), "mirror", m.Path())

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.Run(ctx); err != nil {
			slog.Error("client stopped", "err", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		editRandomlyContinuously(ctx, c)
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()

	wg.Wait()

	pngPath, err := render.RenderToTemp(c.Store().All(), render.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	slog.Info("rendered", "rectangles", c.Store().Len(), "path", "file://"+pngPath)
	return nil
}

func editRandomlyContinuously(ctx context.Context, c *client.Client) {
	for {
		t := time.NewTimer(time.Second + time.Second*time.Duration(rand.Intn(5)))
		select {
		case <-t.C:
			if err := editRandomly(c); err != nil {
				slog.Error("failed to edit", "err", err)
			}
		case <-ctx.Done():
			t.Stop()
			slog.Info("stopping scheduled edits")
			return
		}
	}
}

func editRandomly(c *client.Client) error {
	all := c.Store().All()
	if len(all) == 0 || rand.Intn(4) == 0 {
		r, err := c.AddAtOffset()
		if err == nil {
			slog.Info("added", "id", r.ID, "x", r.X, "y", r.Y)
		}
		return err
	}
	target := all[rand.Intn(len(all))]
	switch rand.Intn(7) {
	case 0:
		return c.Move(target.ID, rand.Float64()*client.CanvasWidth, rand.Float64()*client.CanvasHeight)
	case 1:
		return c.Resize(target.ID, 40+rand.Float64()*200, 40+rand.Float64()*200, target.X, target.Y)
	case 2:
		return c.Recolor(target.ID, rect.Colors[rand.Intn(len(rect.Colors))])
	case 3:
		return c.RotateBy(target.ID, client.RotationStep)
	case 4:
		return c.Delete(target.ID)
	case 5:
		slog.Info("undo", "applied", c.Undo())
	default:
		slog.Info("redo", "applied", c.Redo())
	}
	return nil
}
