package state

import (
	"testing"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symevm/internal/smt"
)

func Test_Ceil32(t *testing.T) {
	var testCases = []struct {
		Input    int
		Expected int
	}{
		{0, 0},
		{1, 32},
		{31, 32},
		{32, 32},
		{33, 64},
		{64, 64},
		{100, 128},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.Expected, Ceil32(tc.Input), tc.Input)
	}
}

func Test_MemoryWord(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	m := NewMemory()
	require.Nil(t, m.WriteWord(3, word(0x0102)))
	assert.Equal(t, 35, m.Len())

	b, _ := m.ReadByte(33).AsUint64()
	assert.Equal(t, uint64(0x01), b)
	b, _ = m.ReadByte(34).AsUint64()
	assert.Equal(t, uint64(0x02), b)

	v, ok := m.ReadWord(3).AsUint64()
	require.True(t, ok)
	assert.Equal(t, uint64(0x0102), v)

	// 未写过的位置为0
	v, _ = m.ReadWord(1000).AsUint64()
	assert.Equal(t, uint64(0), v)

	assert.NotNil(t, m.WriteWord(0, smt.NewBitVecValInt64(1, 1)))
	assert.NotNil(t, m.WriteByte(0, word(1)))
	assert.NotNil(t, m.WriteWord(MaxMemorySize-1, word(1)))
}

func Test_MemorySymbolic(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	ctx := smt.NewContext()
	defer ctx.Close()

	m := NewMemory()
	x := ctx.NewBitVec("x", smt.WordBytes)
	require.Nil(t, m.WriteWord(0, x))
	assert.True(t, m.ReadByte(31).IsSymbolic())

	// 拆成byte再拼回来和原值相等
	require.Nil(t, ctx.Push())
	require.Nil(t, ctx.Assert(m.ReadWord(0).Ne(x)))
	status, err := ctx.Check()
	require.Nil(t, err)
	assert.Equal(t, smt.StatusUnsat, status)
	require.Nil(t, ctx.Pop())
}

func Test_MemoryApplyChange(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	m := NewMemory()
	clone := m.Clone()
	require.Nil(t, m.ApplyChange(&MemChange{Ops: []MemOp{
		{Kind: MemRead, Idx: 64, Size: 1},
		{Kind: MemRead, Idx: 1000, Size: 0},
		{Kind: MemWriteByte, Idx: 0, Value: smt.NewBitVecValInt64(7, 1)},
	}}))
	assert.Equal(t, 96, m.HighestIdx())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 0, clone.Len())
	assert.Equal(t, 0, clone.HighestIdx())
}
