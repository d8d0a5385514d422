package rect

import (
	"encoding/json"
	"fmt"
)

type Color string

const (
	White      Color = "White"
	Orange     Color = "Orange"
	Red        Color = "Red"
	Rose       Color = "Rose"
	Green      Color = "Green"
	Fuchsia    Color = "Fuchsia"
	RedOrange  Color = "Red-Orange"
	WarmYellow Color = "Warm Yellow"
)

var palette = map[Color]string{
	White:      "#ffffff",
	Orange:     "#fb923c",
	Red:        "#b91c1c",
	Rose:       "#fb7185",
	Green:      "#065f46",
	Fuchsia:    "#d946ef",
	RedOrange:  "#f97316",
	WarmYellow: "#eab308",
}

// Colors lists the palette in menu order.
var Colors = []Color{White, Orange, Red, Rose, Green, Fuchsia, RedOrange, WarmYellow}

func (c Color) Valid() bool {
	_, ok := palette[c]
	return ok
}

// Hex returns the "#rrggbb" value of the color, or white for unknown colors.
func (c Color) Hex() string {
	if h, ok := palette[c]; ok {
		return h
	}
	return palette[White]
}

func (c *Color) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("failed to decode color: %w", err)
	}
	if !Color(s).Valid() {
		return fmt.Errorf("%w: unknown fill %q", ErrInvalid, s)
	}
	*c = Color(s)
	return nil
}
