package client

import (
	"errors"
	"fmt"

	"github.com/astromechza/rectangle-sync/pkg/history"
	"github.com/astromechza/rectangle-sync/pkg/protocol"
	"github.com/astromechza/rectangle-sync/pkg/rect"
)

// Defaults for rectangles placed with AddAtOffset.
const (
	CanvasWidth   = 800
	CanvasHeight  = 600
	DefaultWidth  = 240
	DefaultHeight = 140
	PlacementStep = 40
	RotationStep  = 15
)

// The methods below are what an interactive layer calls. Each one applies the
// change locally, sends the identical payload to the relay and records a history
// entry. Being offline is not an error here: the change is kept locally and in
// the mirror, and the relay learns about new rectangles on reconnect.

func (c *Client) send(m protocol.Mutation) {
	if err := c.Emit(m); err != nil {
		c.unsent("mutation not sent", err, "event", m.Event(), "target", m.Target())
	}
}

// unsent logs a change the relay did not receive. Only a connection that
// could not keep up is worth telling the user about.
func (c *Client) unsent(msg string, err error, args ...any) {
	c.logger.Debug(msg, append(args, "err", err)...)
	if errors.Is(err, errOutboundFull) {
		c.notice(noticeDropped)
	}
}

func (c *Client) lookup(id string) (rect.Rectangle, error) {
	r, ok := c.store.Get(id)
	if !ok {
		return rect.Rectangle{}, fmt.Errorf("%w: %s", ErrUnknownRectangle, id)
	}
	return r, nil
}

// Add creates r. Adding an id that already exists does nothing.
func (c *Client) Add(r rect.Rectangle) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if !c.store.Add(r) {
		return nil
	}
	stored, _ := c.store.Get(r.ID)
	c.send(protocol.Add{Rectangle: stored})
	c.history.Record(history.Added(stored))
	return nil
}

// AddAtOffset creates a default rectangle at the canvas centre, shifted
// diagonally by the first step not already used by another rectangle.
func (c *Client) AddAtOffset() (rect.Rectangle, error) {
	r := PlaceAtOffset(c.store.All())
	if err := c.Add(r); err != nil {
		return rect.Rectangle{}, err
	}
	return r, nil
}

// PlaceAtOffset builds a new default rectangle that does not sit on the same
// diagonal offset as any of existing.
func PlaceAtOffset(existing []rect.Rectangle) rect.Rectangle {
	centerX, centerY := float64(CanvasWidth)/2, float64(CanvasHeight)/2
	taken := make(map[float64]bool, len(existing))
	for _, r := range existing {
		taken[r.X-centerX] = true
	}
	offset := 0.0
	for i := 0; ; i++ {
		offset = float64(i * PlacementStep)
		if !taken[offset] {
			break
		}
	}
	return rect.Rectangle{
		ID:            rect.NewID(),
		X:             centerX + offset,
		Y:             centerY + offset,
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		Fill:          rect.White,
		AddedAtOffset: true,
	}
}

func (c *Client) Move(id string, x, y float64) error {
	if err := rect.ValidatePosition(x, y); err != nil {
		return err
	}
	before, err := c.lookup(id)
	if err != nil {
		return err
	}
	c.store.Move(id, x, y)
	c.send(protocol.Move{ID: id, X: x, Y: y})
	c.history.Record(history.Moved(before, x, y))
	return nil
}

func (c *Client) Resize(id string, width, height, x, y float64) error {
	if err := errors.Join(rect.ValidateSize(width, height), rect.ValidatePosition(x, y)); err != nil {
		return err
	}
	before, err := c.lookup(id)
	if err != nil {
		return err
	}
	c.store.Resize(id, width, height, x, y)
	c.send(protocol.Resize{ID: id, Width: width, Height: height, X: x, Y: y})
	c.history.Record(history.Resized(before, width, height, x, y))
	return nil
}

func (c *Client) Recolor(id string, fill rect.Color) error {
	if !fill.Valid() {
		return fmt.Errorf("%w: unknown fill %q", rect.ErrInvalid, fill)
	}
	before, err := c.lookup(id)
	if err != nil {
		return err
	}
	c.store.Recolor(id, fill)
	c.send(protocol.ChangeColor{ID: id, Fill: fill})
	c.history.Record(history.Recolored(before, fill))
	return nil
}

func (c *Client) Rotate(id string, rotation float64) error {
	if !rect.Finite(rotation) {
		return fmt.Errorf("%w: rotation must be finite", rect.ErrInvalid)
	}
	before, err := c.lookup(id)
	if err != nil {
		return err
	}
	rotation = rect.NormalizeRotation(rotation)
	c.store.Rotate(id, rotation)
	c.send(protocol.Rotate{ID: id, Rotation: rotation})
	c.history.Record(history.Rotated(before, rotation))
	return nil
}

// RotateBy turns id by step degrees relative to its current rotation.
func (c *Client) RotateBy(id string, step float64) error {
	r, err := c.lookup(id)
	if err != nil {
		return err
	}
	return c.Rotate(id, r.Rotation+step)
}

func (c *Client) Delete(id string) error {
	before, err := c.lookup(id)
	if err != nil {
		return err
	}
	c.store.Delete(id)
	c.send(protocol.Delete{ID: id})
	c.history.Record(history.Deleted(before))
	return nil
}

// Clear empties the canvas everywhere. It is not undoable and resets history.
func (c *Client) Clear() {
	c.store.Clear()
	c.history.Reset()
	c.send(protocol.Clear{})
}

// Undo reverts the latest recorded change and reports whether there was one.
func (c *Client) Undo() bool {
	e, ok, err := c.history.Undo()
	if err != nil {
		c.unsent("undo not sent", err, "action", e.Action, "id", e.ID)
	}
	return ok
}

func (c *Client) Redo() bool {
	e, ok, err := c.history.Redo()
	if err != nil {
		c.unsent("redo not sent", err, "action", e.Action, "id", e.ID)
	}
	return ok
}
