// Package protocol defines the events exchanged between the relay and its
// clients. Every event is its own Go type carrying exactly the fields it needs;
// Decode validates a frame before anything downstream sees it.
package protocol

import (
	"errors"
	"fmt"

	"github.com/astromechza/rectangle-sync/pkg/rect"
)

type Event string

const (
	EventInit        Event = "rectangle:init"
	EventAdd         Event = "rectangle:add"
	EventMove        Event = "rectangle:move"
	EventResize      Event = "rectangle:resize"
	EventChangeColor Event = "rectangle:changeColor"
	EventRotate      Event = "rectangle:rotate"
	EventDelete      Event = "rectangle:delete"
	EventClear       Event = "rectangle:clear"
	EventError       Event = "error"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Message is anything that can travel over the channel.
type Message interface {
	Event() Event
}

// Mutation is a Message that changes the rectangle collection. Target is empty
// for collection-wide mutations (init, clear).
type Mutation interface {
	Message
	Target() string
}

type Init struct {
	Rectangles []rect.Rectangle
}

type Add struct {
	Rectangle rect.Rectangle
}

// Move repositions a rectangle and clears its auto-placement flag, unless
// AddedAtOffset is set, which only happens when a move is undone.
type Move struct {
	ID            string  `json:"id"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	AddedAtOffset bool    `json:"addedAtOffset,omitempty"`
}

type Resize struct {
	ID     string  `json:"id"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type ChangeColor struct {
	ID   string     `json:"id"`
	Fill rect.Color `json:"fill"`
}

type Rotate struct {
	ID       string  `json:"id"`
	Rotation float64 `json:"rotation"`
}

type Delete struct {
	ID string
}

type Clear struct{}

func (Init) Event() Event        { return EventInit }
func (Add) Event() Event         { return EventAdd }
func (Move) Event() Event        { return EventMove }
func (Resize) Event() Event      { return EventResize }
func (ChangeColor) Event() Event { return EventChangeColor }
func (Rotate) Event() Event      { return EventRotate }
func (Delete) Event() Event      { return EventDelete }
func (Clear) Event() Event       { return EventClear }

func (Init) Target() string          { return "" }
func (m Add) Target() string         { return m.Rectangle.ID }
func (m Move) Target() string        { return m.ID }
func (m Resize) Target() string      { return m.ID }
func (m ChangeColor) Target() string { return m.ID }
func (m Rotate) Target() string      { return m.ID }
func (m Delete) Target() string      { return m.ID }
func (Clear) Target() string         { return "" }

// Patch returns the fields a per-field update overwrites. ok is false for
// mutations that are not per-field updates.
func Patch(m Mutation) (p rect.Patch, ok bool) {
	switch m := m.(type) {
	case Move:
		return rect.Patch{X: rect.Ptr(m.X), Y: rect.Ptr(m.Y), AddedAtOffset: rect.Ptr(m.AddedAtOffset)}, true
	case Resize:
		return rect.Patch{
			Width:  rect.Ptr(m.Width),
			Height: rect.Ptr(m.Height),
			X:      rect.Ptr(m.X),
			Y:      rect.Ptr(m.Y),
		}, true
	case ChangeColor:
		return rect.Patch{Fill: rect.Ptr(m.Fill)}, true
	case Rotate:
		return rect.Patch{Rotation: rect.Ptr(m.Rotation)}, true
	}
	return rect.Patch{}, false
}

// Validate checks the payload of m in isolation, without canonical state.
func Validate(m Message) error {
	var err error
	switch m := m.(type) {
	case Init:
		for _, r := range m.Rectangles {
			if err = r.Validate(); err != nil {
				break
			}
		}
	case Add:
		err = m.Rectangle.Validate()
	case Move:
		err = requireID(m.ID)
		if err == nil {
			err = rect.ValidatePosition(m.X, m.Y)
		}
	case Resize:
		err = requireID(m.ID)
		if err == nil {
			err = rect.ValidatePosition(m.X, m.Y)
		}
		if err == nil {
			err = rect.ValidateSize(m.Width, m.Height)
		}
	case ChangeColor:
		err = requireID(m.ID)
		if err == nil && !m.Fill.Valid() {
			err = fmt.Errorf("unknown fill %q", m.Fill)
		}
	case Rotate:
		err = requireID(m.ID)
		if err == nil && !rect.Finite(m.Rotation) {
			err = errors.New("rotation must be finite")
		}
	case Delete:
		err = requireID(m.ID)
	case Clear, *Failure:
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, m)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Event(), err)
	}
	return nil
}

func requireID(id string) error {
	if id == "" {
		return errors.New("missing id")
	}
	return nil
}
