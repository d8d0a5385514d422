package protocol

import (
	"errors"
	"fmt"
)

const CodeNotFound = "RECTANGLE_NOT_FOUND"

// Failure is the error event. The relay only ever sends it to the connection
// whose mutation could not be applied.
type Failure struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
}

func (*Failure) Event() Event { return EventError }

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.ID == "" {
		return fmt.Sprintf("%s: %s", f.Code, f.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", f.Code, f.Message, f.ID)
}

// NotFound builds the failure for a mutation whose target is absent.
func NotFound(m Mutation) *Failure {
	return &Failure{
		Message: fmt.Sprintf("Attempting to %s a rectangle that no longer exists.", Verb(m.Event())),
		ID:      m.Target(),
		Code:    CodeNotFound,
	}
}

// Verb is the semantic label of a mutation event used in user-facing text.
func Verb(e Event) string {
	switch e {
	case EventMove:
		return "move"
	case EventResize:
		return "resize"
	case EventChangeColor:
		return "update"
	case EventRotate:
		return "rotate"
	case EventDelete:
		return "delete"
	case EventAdd:
		return "add"
	}
	return "change"
}

func IsNotFound(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Code == CodeNotFound
}
