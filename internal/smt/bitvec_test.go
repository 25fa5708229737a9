package smt

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/stretchr/testify/assert"
)

func Test_BitVecVal(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	for i := 0; i < 32; i++ {
		p := math.BigPow(256, int64(i))
		bv := NewBitVecVal(p, WordBytes)
		v, ok := bv.BigInt()
		assert.True(t, ok)
		assert.Equal(t, p.String(), v.String())
		assert.Equal(t, 32, bv.Bytes())
	}

	// 负数按补码
	neg := NewBitVecVal(big.NewInt(-1), 1)
	v, ok := neg.AsUint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(0xff), v)

	u := NewBitVecValFromUint256(uint256.NewInt(0xdead))
	v, ok = u.AsUint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(0xdead), v)
}

func Test_BitVecBytes(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	bv := NewBitVecValFromBytes([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, 3, bv.Bytes())
	parts := bv.ToBytes()
	assert.Equal(t, 3, len(parts))
	for i, expected := range []uint64{1, 2, 3} {
		v, ok := parts[i].AsUint64()
		assert.True(t, ok)
		assert.Equal(t, expected, v)
		assert.Equal(t, 1, parts[i].Bytes())
	}
	joined := FromBytes(parts...)
	v, ok := joined.AsUint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(0x010203), v)
}

func Test_BitVecExtend(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	var testCases = []struct {
		Value    int64
		Signed   bool
		Expected *big.Int
	}{
		{0x7f, false, big.NewInt(0x7f)},
		{0x7f, true, big.NewInt(0x7f)},
		{-1, false, big.NewInt(0xff)},
		{-1, true, new(big.Int).Sub(math.BigPow(2, 256), big.NewInt(1))},
	}
	for _, tc := range testCases {
		b := NewBitVecValInt64(tc.Value, 1)
		var ext *BitVec
		if tc.Signed {
			ext = b.SignExt(WordBytes)
		} else {
			ext = b.ZeroExt(WordBytes)
		}
		assert.Equal(t, 32, ext.Bytes())
		v, ok := ext.BigInt()
		assert.True(t, ok)
		assert.Equal(t, tc.Expected.String(), v.String())
	}
}

func Test_BitVecArith(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	a := NewBitVecValInt64(10, WordBytes)
	b := NewBitVecValInt64(3, WordBytes)

	var testCases = []struct {
		Name     string
		Result   *BitVec
		Expected uint64
	}{
		{"add", a.Add(b), 13},
		{"sub", a.Sub(b), 7},
		{"mul", a.Mul(b), 30},
		{"udiv", a.UDiv(b), 3},
		{"urem", a.URem(b), 1},
		{"and", a.And(b), 2},
		{"or", a.Or(b), 11},
		{"xor", a.Xor(b), 9},
		{"shl", a.Shl(b), 80},
		{"shr", a.Shr(b), 1},
		{"lt", b.Ult(a).AsWord(), 1},
		{"gt", b.Ugt(a).AsWord(), 0},
		{"eq", a.Eq(a).AsWord(), 1},
	}
	for _, tc := range testCases {
		v, ok := tc.Result.AsUint64()
		assert.True(t, ok, tc.Name)
		assert.Equal(t, tc.Expected, v, tc.Name)
	}
}

func Test_Simplify(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	ctx := NewContext()
	defer ctx.Close()

	x := ctx.NewBitVec("x", WordBytes)
	assert.True(t, x.IsSymbolic())
	// 符号term保持不变
	before := x.GetRaw()
	x.Simplify()
	assert.Equal(t, before, x.GetRaw())
	_, ok := x.AsUint64()
	assert.False(t, ok)

	// 高位是常量，截取高位后可以折叠
	c := NewBitVecValInt64(0x42, 1).Concat(x).Extract(263, 256)
	c.Simplify()
	assert.False(t, c.IsSymbolic())
	v, ok := c.AsUint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(0x42), v)

	// 幂等
	raw := c.GetRaw()
	c.Simplify()
	assert.Equal(t, raw, c.GetRaw())
}
