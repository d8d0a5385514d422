package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/astromechza/rectangle-sync/pkg/mirror"
	"github.com/astromechza/rectangle-sync/pkg/render"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	outVar := flag.String("out", "", "write the rendered canvas to this png instead of a temp file")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the mirror file to read")
	}
	if _, err := os.Stat(flag.Arg(0)); err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	m, err := mirror.Open(flag.Arg(0))
	if err != nil {
		return err
	}
	defer m.Close()

	rects, err := m.Load(context.Background())
	if err != nil {
		return err
	}
	slog.Info("loaded mirror", "path", m.Path(), "rectangles", len(rects))
	for i, r := range rects {
		slog.Info("rectangle", "i", fmt.Sprintf("%4d", i), "id", r.ID, "x", r.X, "y", r.Y, "width", r.Width, "height", r.Height, "fill", r.Fill, "rotation", r.Rotation)
	}

	if *outVar != "" {
		if err := render.RenderToFile(rects, render.DefaultOptions(), *outVar); err != nil {
			return err
		}
		slog.Info("rendered", "path", *outVar)
		return nil
	}
	pngPath, err := render.RenderToTemp(rects, render.DefaultOptions())
	if err != nil {
		return err
	}
	slog.Info("rendered", "path", "file://"+pngPath)
	return nil
}
