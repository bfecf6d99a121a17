package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeNumElements(t *testing.T) {
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.Equal(t, 12, Shape{3, 4}.NumElements())
	assert.Equal(t, 0, Shape{3, 0, 2}.NumElements())
}

func TestShapeValidate(t *testing.T) {
	assert.NoError(t, Shape{2, 0, 3}.Validate())
	assert.Error(t, Shape{2, -1}.Validate())
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "()", Shape{}.String())
	assert.Equal(t, "(4,)", Shape{4}.String())
	assert.Equal(t, "(4, 1)", Shape{4, 1}.String())
}

func TestComputeStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.Empty(t, Shape{}.ComputeStrides())
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
	}{
		{"same", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true},
		{"row", Shape{1, 5}, Shape{3, 5}, Shape{3, 5}, true},
		{"missing leading", Shape{4}, Shape{4, 4}, Shape{4, 4}, true},
		{"scalar", Shape{}, Shape{2, 3}, Shape{2, 3}, true},
		{"outer", Shape{4, 1}, Shape{3}, Shape{4, 3}, true},
		{"zero dim", Shape{0, 1}, Shape{1, 3}, Shape{0, 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestBroadcastShapesMismatch(t *testing.T) {
	_, _, err := BroadcastShapes(Shape{3}, Shape{4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	var mismatch *ShapeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, [2]int{3, 4}, mismatch.Dims)
	assert.Contains(t, err.Error(), "(3,)")
	assert.Contains(t, err.Error(), "(4,)")
}

func TestBroadcastMany(t *testing.T) {
	got, err := Broadcast(Shape{4, 1}, Shape{4}, Shape{})
	require.NoError(t, err)
	assert.Equal(t, Shape{4, 4}, got)

	_, err = Broadcast(Shape{2, 3}, Shape{3}, Shape{5})
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "(2, 3) vs (3,) vs (5,)")
}
