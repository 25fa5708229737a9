package state

import (
	"testing"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symevm/internal/smt"
)

func Test_Stack(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	s := NewStack()
	_, err := s.Pop()
	assert.True(t, IsStackEmpty(err))

	for i := int64(1); i <= 3; i++ {
		require.Nil(t, s.Push(word(i)))
	}
	assert.Equal(t, 3, s.Len())

	ops, err := s.PeekTop(2)
	require.Nil(t, err)
	a, _ := ops[0].AsUint64()
	b, _ := ops[1].AsUint64()
	assert.Equal(t, uint64(3), a)
	assert.Equal(t, uint64(2), b)

	_, err = s.PeekTop(4)
	assert.True(t, IsStackEmpty(err))

	require.Nil(t, s.SwapAt(2))
	v, _ := s.PeekNth(0)
	first, _ := v.AsUint64()
	assert.Equal(t, uint64(1), first)
	assert.NotNil(t, s.SwapAt(3))

	// 只接受32byte的字
	assert.NotNil(t, s.Push(smt.NewBitVecValInt64(1, 1)))
}

func Test_StackOverflow(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	s := NewStack()
	for i := 0; i < STACK_SIZE; i++ {
		require.Nil(t, s.Push(word(0)))
	}
	err := s.Push(word(0))
	_, ok := err.(*StackOverflowError)
	assert.True(t, ok)
}

func Test_StackApplyChange(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	s := NewStack()
	require.Nil(t, s.Push(word(1)))
	require.Nil(t, s.Push(word(2)))
	clone := s.Clone()

	require.Nil(t, s.ApplyChange(&StackChange{
		PopQty:  2,
		PushQty: 1,
		Ops:     []StackOp{PopOp(), PopOp(), PushOp(word(3))},
	}))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, clone.Len())

	// 失败时不修改
	err := s.ApplyChange(&StackChange{Ops: []StackOp{PopOp(), PopOp()}})
	assert.True(t, IsStackEmpty(err))
	assert.Equal(t, 1, s.Len())
}
