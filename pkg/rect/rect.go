package rect

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Rectangle is one shared shape on the canvas. ID is client generated and never
// changes once the rectangle exists.
type Rectangle struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Fill     Color   `json:"fill"`
	Rotation float64 `json:"rotation"`
	// AddedAtOffset is a UI hint only and is never validated by the relay.
	AddedAtOffset bool `json:"addedAtOffset"`
}

var ErrInvalid = errors.New("invalid rectangle")

func NewID() string {
	return uuid.NewString()
}

// NormalizeRotation maps any angle into [0, 360).
func NormalizeRotation(deg float64) float64 {
	out := math.Mod(deg, 360)
	if out < 0 {
		out += 360
	}
	if out == 360 {
		out = 0
	}
	return out
}

// Finite reports whether every value is a usable number.
func Finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func ValidateSize(width, height float64) error {
	if !Finite(width, height) || width <= 0 || height <= 0 {
		return fmt.Errorf("%w: size must be positive, got %vx%v", ErrInvalid, width, height)
	}
	return nil
}

func ValidatePosition(x, y float64) error {
	if !Finite(x, y) {
		return fmt.Errorf("%w: position must be finite", ErrInvalid)
	}
	return nil
}

func (r Rectangle) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if err := ValidatePosition(r.X, r.Y); err != nil {
		return err
	}
	if err := ValidateSize(r.Width, r.Height); err != nil {
		return err
	}
	if !r.Fill.Valid() {
		return fmt.Errorf("%w: unknown fill %q", ErrInvalid, r.Fill)
	}
	if !Finite(r.Rotation) {
		return fmt.Errorf("%w: rotation must be finite", ErrInvalid)
	}
	return nil
}

// Patch is a partial set of fields. Nil fields are left untouched.
type Patch struct {
	X             *float64
	Y             *float64
	Width         *float64
	Height        *float64
	Fill          *Color
	Rotation      *float64
	AddedAtOffset *bool
}

// Apply returns a copy of r with the patch fields overwritten.
func (p Patch) Apply(r Rectangle) Rectangle {
	if p.X != nil {
		r.X = *p.X
	}
	if p.Y != nil {
		r.Y = *p.Y
	}
	if p.Width != nil {
		r.Width = *p.Width
	}
	if p.Height != nil {
		r.Height = *p.Height
	}
	if p.Fill != nil {
		r.Fill = *p.Fill
	}
	if p.Rotation != nil {
		r.Rotation = NormalizeRotation(*p.Rotation)
	}
	if p.AddedAtOffset != nil {
		r.AddedAtOffset = *p.AddedAtOffset
	}
	return r
}

func Ptr[T any](v T) *T {
	return &v
}
