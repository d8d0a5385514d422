package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/astromechza/rectangle-sync/pkg/rect"
)

// Envelope is the frame written to the websocket for every message.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	var payload any
	switch m := m.(type) {
	case Init:
		rects := m.Rectangles
		if rects == nil {
			rects = []rect.Rectangle{}
		}
		payload = rects
	case Add:
		payload = m.Rectangle
	case Delete:
		payload = m.ID
	case Clear:
	case Move, Resize, ChangeColor, Rotate, *Failure:
		payload = m
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, m)
	}
	env := Envelope{Event: m.Event()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", m.Event(), err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses and validates one frame.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var (
		m   Message
		err error
	)
	switch env.Event {
	case EventInit:
		var v []rect.Rectangle
		err = unmarshal(env.Data, &v)
		m = Init{Rectangles: v}
	case EventAdd:
		var v rect.Rectangle
		err = unmarshal(env.Data, &v)
		m = Add{Rectangle: v}
	case EventMove:
		var v Move
		err = unmarshal(env.Data, &v)
		m = v
	case EventResize:
		var v Resize
		err = unmarshal(env.Data, &v)
		m = v
	case EventChangeColor:
		var v ChangeColor
		err = unmarshal(env.Data, &v)
		m = v
	case EventRotate:
		var v Rotate
		err = unmarshal(env.Data, &v)
		m = v
	case EventDelete:
		var v string
		err = unmarshal(env.Data, &v)
		m = Delete{ID: v}
	case EventClear:
		m = Clear{}
	case EventError:
		v := &Failure{}
		err = unmarshal(env.Data, v)
		m = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshal(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(raw, into)
}
