package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/rectangle-sync/pkg/history"
	"github.com/astromechza/rectangle-sync/pkg/protocol"
	"github.com/astromechza/rectangle-sync/pkg/rect"
)

// offline builds a client that never runs, so every emit fails and only local
// behaviour is exercised.
func offline(t *testing.T) (*Client, *notices) {
	t.Helper()
	n := &notices{}
	c, err := New(context.Background(), Config{URL: "ws://127.0.0.1:0/sync", OnNotice: n.add})
	require.NoError(t, err)
	return c, n
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestOperationsRecordHistory(t *testing.T) {
	c, _ := offline(t)
	require.NoError(t, c.Add(r1()))
	require.NoError(t, c.Move("r1", 10, 20))
	require.NoError(t, c.Resize("r1", 30, 40, 10, 20))
	require.NoError(t, c.Recolor("r1", rect.Red))
	require.NoError(t, c.RotateBy("r1", RotationStep))
	undo, _ := c.History().Depth()
	assert.Equal(t, 5, undo)

	got, _ := c.Store().Get("r1")
	assert.Equal(t, rect.Rectangle{ID: "r1", X: 10, Y: 20, Width: 30, Height: 40, Fill: rect.Red, Rotation: 15}, got)

	for c.Undo() {
	}
	assert.Equal(t, 0, c.Store().Len())
	for c.Redo() {
	}
	got, _ = c.Store().Get("r1")
	assert.Equal(t, rect.Rectangle{ID: "r1", X: 10, Y: 20, Width: 30, Height: 40, Fill: rect.Red, Rotation: 15}, got)
}

func TestOperationsRejectBadInput(t *testing.T) {
	c, _ := offline(t)
	assert.ErrorIs(t, c.Move("missing", 1, 1), ErrUnknownRectangle)
	assert.ErrorIs(t, c.Delete("missing"), ErrUnknownRectangle)
	require.NoError(t, c.Add(r1()))
	assert.ErrorIs(t, c.Resize("r1", -1, 1, 0, 0), rect.ErrInvalid)
	assert.ErrorIs(t, c.Recolor("r1", "Blue"), rect.ErrInvalid)
	bad := r1()
	bad.ID = ""
	assert.ErrorIs(t, c.Add(bad), rect.ErrInvalid)

	// duplicate add is a no-op and does not add history
	require.NoError(t, c.Add(r1()))
	undo, _ := c.History().Depth()
	assert.Equal(t, 1, undo)
}

func TestRotateWrapsAround(t *testing.T) {
	c, _ := offline(t)
	r := r1()
	r.Rotation = 345
	require.NoError(t, c.Add(r))
	require.NoError(t, c.RotateBy("r1", RotationStep))
	got, _ := c.Store().Get("r1")
	assert.Equal(t, 0.0, got.Rotation)
}

func TestPlaceAtOffset(t *testing.T) {
	first := PlaceAtOffset(nil)
	assert.Equal(t, 400.0, first.X)
	assert.Equal(t, 300.0, first.Y)
	assert.True(t, first.AddedAtOffset)
	assert.Equal(t, rect.White, first.Fill)
	require.NoError(t, first.Validate())

	second := PlaceAtOffset([]rect.Rectangle{first})
	assert.Equal(t, 440.0, second.X)
	assert.Equal(t, 340.0, second.Y)
	assert.NotEqual(t, first.ID, second.ID)

	third := PlaceAtOffset([]rect.Rectangle{second})
	assert.Equal(t, 400.0, third.X, "a freed slot is reused")
}

func TestAddAtOffsetThenMoveClearsHint(t *testing.T) {
	c, _ := offline(t)
	r, err := c.AddAtOffset()
	require.NoError(t, err)
	require.NoError(t, c.Move(r.ID, 1, 1))
	got, _ := c.Store().Get(r.ID)
	assert.False(t, got.AddedAtOffset)
}

func TestDispatchNotFoundDropsLocalCopyAndHistory(t *testing.T) {
	c, n := offline(t)
	require.NoError(t, c.Add(r1()))
	require.NoError(t, c.Move("r1", 5, 5))

	c.dispatch(protocol.NotFound(protocol.Move{ID: "r1"}))
	assert.False(t, c.Store().Has("r1"))
	undo, redo := c.History().Depth()
	assert.Zero(t, undo)
	assert.Zero(t, redo)
	assert.True(t, n.has("Attempting to move a rectangle that no longer exists."))
}

func TestDispatchOtherFailureKeepsState(t *testing.T) {
	c, n := offline(t)
	require.NoError(t, c.Add(r1()))
	c.dispatch(&protocol.Failure{Code: "SOMETHING_ELSE", ID: "r1", Message: "boom"})
	assert.True(t, c.Store().Has("r1"))
	assert.True(t, n.has("Something unexpected occurred!"))
}

func TestDispatchRemoteMutations(t *testing.T) {
	c, n := offline(t)
	c.dispatch(protocol.Init{Rectangles: []rect.Rectangle{r1()}})
	assert.Equal(t, 1, c.Store().Len())

	c.dispatch(protocol.Add{Rectangle: r1()})
	assert.Equal(t, 1, c.Store().Len())

	c.dispatch(protocol.Rotate{ID: "ghost", Rotation: 15})
	assert.True(t, n.has("Attempting to rotate a rectangle that no longer exists."))

	c.History().Record(history.Deleted(r1()))
	c.dispatch(protocol.Clear{})
	assert.Equal(t, 0, c.Store().Len())
	undo, _ := c.History().Depth()
	assert.Zero(t, undo, "a clear resets history")

	c.dispatch(protocol.Delete{ID: "r1"})
	assert.Equal(t, 0, c.Store().Len())
}

func TestClearResetsHistory(t *testing.T) {
	c, _ := offline(t)
	require.NoError(t, c.Add(r1()))
	c.Clear()
	assert.Equal(t, 0, c.Store().Len())
	assert.False(t, c.Undo())
}

func TestStalledConnectionSurfacesNotice(t *testing.T) {
	n := &notices{}
	c, err := New(context.Background(), Config{
		URL: "ws://127.0.0.1:0/sync", OnNotice: n.add, Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, c.Add(r1()))

	// nothing drains an unbuffered queue
	done := make(chan struct{})
	c.setOutbound(make(chan []byte), done)
	assert.ErrorIs(t, c.Emit(protocol.Clear{}), errOutboundFull)
	require.NoError(t, c.Move("r1", 5, 5))
	assert.True(t, n.has(noticeDropped))

	close(done)
	assert.ErrorIs(t, c.Emit(protocol.Clear{}), ErrTransportUnavailable)
	assert.NotErrorIs(t, c.Emit(protocol.Clear{}), errOutboundFull)
}
