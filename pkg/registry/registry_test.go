package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/rectangle-sync/pkg/protocol"
	"github.com/astromechza/rectangle-sync/pkg/rect"
)

func r1() rect.Rectangle {
	return rect.Rectangle{ID: "r1", X: 100, Y: 100, Width: 50, Height: 50, Fill: rect.White}
}

func TestCreateIsIdempotent(t *testing.T) {
	reg := New()
	out := reg.Apply(protocol.Add{Rectangle: r1()})
	require.Len(t, out.Broadcast, 1)
	snap := reg.Snapshot()

	out = reg.Apply(protocol.Add{Rectangle: r1()})
	assert.Empty(t, out.Broadcast)
	assert.Nil(t, out.Reply)
	assert.Equal(t, snap, reg.Snapshot())
}

func TestFieldUpdatesOverwriteOnlyTheirFields(t *testing.T) {
	reg := New(r1())

	out := reg.Apply(protocol.Move{ID: "r1", X: 150, Y: 120})
	assert.Equal(t, []protocol.Message{protocol.Move{ID: "r1", X: 150, Y: 120}}, out.Broadcast)
	reg.Apply(protocol.ChangeColor{ID: "r1", Fill: rect.Green})
	reg.Apply(protocol.Rotate{ID: "r1", Rotation: 375})
	reg.Apply(protocol.Resize{ID: "r1", Width: 10, Height: 20, X: 151, Y: 121})

	got, ok := reg.Get("r1")
	require.True(t, ok)
	assert.Equal(t, rect.Rectangle{ID: "r1", X: 151, Y: 121, Width: 10, Height: 20, Fill: rect.Green, Rotation: 15}, got)
}

func TestMoveTracksAutoPlacement(t *testing.T) {
	placed := r1()
	placed.AddedAtOffset = true
	reg := New(placed)

	reg.Apply(protocol.Move{ID: "r1", X: 150, Y: 120})
	got, _ := reg.Get("r1")
	assert.False(t, got.AddedAtOffset)

	reg.Apply(protocol.Move{ID: "r1", X: placed.X, Y: placed.Y, AddedAtOffset: true})
	got, _ = reg.Get("r1")
	assert.Equal(t, placed, got)
}

func TestMissingTargetRepliesNotFound(t *testing.T) {
	reg := New()
	for _, m := range []protocol.Mutation{
		protocol.Move{ID: "ghost"},
		protocol.Resize{ID: "ghost", Width: 1, Height: 1},
		protocol.ChangeColor{ID: "ghost", Fill: rect.Red},
		protocol.Rotate{ID: "ghost"},
		protocol.Delete{ID: "ghost"},
	} {
		out := reg.Apply(m)
		assert.Empty(t, out.Broadcast, "%T", m)
		require.NotNil(t, out.Reply, "%T", m)
		assert.Equal(t, protocol.CodeNotFound, out.Reply.Code)
		assert.Equal(t, "ghost", out.Reply.ID)
	}
}

func TestDeleteAndClear(t *testing.T) {
	other := r1()
	other.ID = "r2"
	reg := New(r1(), other)

	out := reg.Apply(protocol.Delete{ID: "r1"})
	assert.Equal(t, []protocol.Message{protocol.Delete{ID: "r1"}}, out.Broadcast)
	assert.Equal(t, 1, reg.Len())

	out = reg.Apply(protocol.Clear{})
	assert.Equal(t, []protocol.Message{protocol.Clear{}}, out.Broadcast)
	assert.Equal(t, 0, reg.Len())

	// clearing an empty registry still broadcasts
	out = reg.Apply(protocol.Clear{})
	assert.Len(t, out.Broadcast, 1)
}

func TestBulkMergeIsAUnionWithoutDuplicates(t *testing.T) {
	known := r1()
	known.X = 1
	reg := New(known)

	offered := []rect.Rectangle{r1(), {ID: "r2", Width: 5, Height: 5, Fill: rect.Rose}, {ID: "r3", Width: 5, Height: 5, Fill: rect.Red}}
	out := reg.Apply(protocol.Init{Rectangles: offered})

	require.Len(t, out.Broadcast, 2)
	assert.Equal(t, "r2", out.Broadcast[0].(protocol.Add).Rectangle.ID)
	assert.Equal(t, "r3", out.Broadcast[1].(protocol.Add).Rectangle.ID)
	assert.Equal(t, 3, reg.Len())

	got, _ := reg.Get("r1")
	assert.Equal(t, 1.0, got.X, "existing rectangle is not overwritten by the offer")

	out = reg.Apply(protocol.Init{Rectangles: offered})
	assert.Empty(t, out.Broadcast)
	assert.Equal(t, 3, reg.Len())
}
