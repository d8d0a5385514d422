package render

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/astromechza/rectangle-sync/pkg/rect"
)

type Options struct {
	Width  int
	Height int
	// Labels draws the first characters of each id in the rectangle.
	Labels bool
}

func DefaultOptions() Options {
	return Options{Width: 800, Height: 600, Labels: true}
}

// Draw paints rects in order, so later rectangles sit on top. Positions are
// rectangle centres, as on the canvas.
func Draw(rects []rect.Rectangle, opts Options) (*gg.Context, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", opts.Width, opts.Height)
	}
	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(color.RGBA{R: 0xf3, G: 0xf4, B: 0xf6, A: 0xff})
	dc.Clear()

	if opts.Labels {
		ttfFont, err := truetype.Parse(gomono.TTF)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font: %w", err)
		}
		dc.SetFontFace(truetype.NewFace(ttfFont, &truetype.Options{Size: 12, DPI: 72, Hinting: font.HintingFull}))
	}

	for _, r := range rects {
		dc.Push()
		dc.Translate(r.X, r.Y)
		dc.Rotate(gg.Radians(r.Rotation))
		radius := math.Min(r.Width, r.Height) * 0.04
		dc.DrawRoundedRectangle(-r.Width/2, -r.Height/2, r.Width, r.Height, radius)
		dc.SetHexColor(r.Fill.Hex())
		dc.FillPreserve()
		dc.SetColor(color.RGBA{R: 0xd1, G: 0xd5, B: 0xdb, A: 0xff})
		dc.SetLineWidth(1)
		dc.Stroke()
		if opts.Labels {
			label := r.ID
			if len(label) > 8 {
				label = label[:8]
			}
			dc.SetColor(color.Black)
			dc.DrawStringAnchored(label, 0, 0, 0.5, 0.5)
		}
		dc.Pop()
	}
	return dc, nil
}

// WritePNG renders rects as a PNG to w.
func WritePNG(w io.Writer, rects []rect.Rectangle, opts Options) error {
	dc, err := Draw(rects, opts)
	if err != nil {
		return err
	}
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

func RenderToFile(rects []rect.Rectangle, opts Options, outputPath string) error {
	dc, err := Draw(rects, opts)
	if err != nil {
		return err
	}
	if err := dc.SavePNG(outputPath); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

func RenderToTemp(rects []rect.Rectangle, opts Options) (string, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("%d%d.png", time.Now().UnixNano(), rand.Int()))
	if err := RenderToFile(rects, opts, tf); err != nil {
		return "", err
	}
	return tf, nil
}
