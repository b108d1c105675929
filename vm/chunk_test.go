package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_AddConstant_Dedup(t *testing.T) {
	c := NewChunk()

	idx1, err := c.AddConstant(NewNumber(42))
	require.NoError(t, err)

	idx2, err := c.AddConstant(NewNumber(42))
	require.NoError(t, err)

	assert.Equal(t, idx1, idx2)
	assert.Len(t, c.Constants, 1)
}

func TestChunk_AddConstant_TooMany(t *testing.T) {
	c := NewChunk()
	for i := 0; i <= MaxConstants; i++ {
		_, err := c.AddConstant(NewNumber(float64(i)))
		require.NoError(t, err)
	}

	_, err := c.AddConstant(NewNumber(-1))
	assert.ErrorIs(t, err, ErrTooManyConstants{})
}

func TestChunk_PatchJump(t *testing.T) {
	c := NewChunk()
	c.WriteOpcode(OP_JUMP_IF_FALSE, 1)
	offset := c.Count()
	c.WriteShort(0xFFFF, 1)

	c.WriteOpcode(OP_POP, 1)
	c.WriteOpcode(OP_POP, 1)

	require.NoError(t, c.PatchJump(offset))

	jump := uint16(c.Code[offset])<<8 | uint16(c.Code[offset+1])
	assert.Equal(t, uint16(2), jump)
}

func TestChunk_GetLine(t *testing.T) {
	c := NewChunk()
	c.WriteOpcode(OP_NIL, 3)
	c.WriteOpcode(OP_POP, 4)

	assert.Equal(t, 3, c.GetLine(0))
	assert.Equal(t, 4, c.GetLine(1))
	assert.Equal(t, 0, c.GetLine(99))
}
