package state

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symevm/internal/disassembler"
	"symevm/internal/opcode"
	"symevm/internal/smt"
)

func newTestState(t *testing.T, code string) (*EvmState, *Environment, *smt.Context) {
	program, err := disassembler.NewProgram(code)
	require.Nil(t, err)
	ctx := smt.NewContext()
	env := NewEnvironment(ctx)
	return NewEvmState(program, env.GetAddress()), env, ctx
}

// step 执行并应用当前指令
func step(t *testing.T, st *EvmState, env *Environment) *MachineRecord {
	ins, err := st.CurrentInstruction()
	require.Nil(t, err)
	rec, err := Exec(ins, st, env)
	require.Nil(t, err, ins.String())
	require.Nil(t, st.ApplyChange(rec))
	return rec
}

// run 一直执行到停机，不允许出现JUMPI
func run(t *testing.T, st *EvmState, env *Environment) {
	for st.CanContinue() {
		rec := step(t, st, env)
		require.Nil(t, rec.Constraint)
	}
}

// execErr 执行到第一条出错的指令
func execErr(t *testing.T, st *EvmState, env *Environment) error {
	for st.CanContinue() {
		ins, err := st.CurrentInstruction()
		require.Nil(t, err)
		rec, err := Exec(ins, st, env)
		if err != nil {
			return err
		}
		require.Nil(t, st.ApplyChange(rec))
	}
	return nil
}

func top(t *testing.T, st *EvmState) *smt.BitVec {
	v, err := st.Stack.PeekNth(0)
	require.Nil(t, err)
	return v
}

func w(v uint64) string {
	return fmt.Sprintf("%064x", v)
}

// neg 256bit补码表示的-v
func neg(v uint64) string {
	x := new(big.Int).Lsh(big.NewInt(1), 256)
	x.Sub(x, new(big.Int).SetUint64(v))
	return fmt.Sprintf("%064x", x)
}

var maxWord = strings.Repeat("f", 64)

func Test_ExecArithmetic(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	// A在栈顶
	var testCases = []struct {
		Op       opcode.OpCode
		A        string
		B        string
		Expected string
	}{
		{opcode.ADD, w(3), w(5), w(8)},
		{opcode.ADD, maxWord, w(1), w(0)},
		{opcode.SUB, w(3), w(5), neg(2)},
		{opcode.MUL, w(3), w(5), w(15)},
		{opcode.DIV, w(10), w(3), w(3)},
		{opcode.DIV, w(10), w(0), w(0)},
		{opcode.SDIV, neg(10), w(3), neg(3)},
		{opcode.SDIV, w(10), w(0), w(0)},
		{opcode.MOD, w(10), w(3), w(1)},
		{opcode.MOD, w(10), w(0), w(0)},
		{opcode.SMOD, neg(10), w(3), neg(1)},
		{opcode.SMOD, w(10), neg(3), w(1)},
		{opcode.SMOD, w(10), w(0), w(0)},
		{opcode.EXP, w(2), w(10), w(1024)},
		{opcode.EXP, w(2), w(256), w(0)},
		{opcode.EXP, w(0), w(0), w(1)},
		{opcode.LT, w(1), w(2), w(1)},
		{opcode.GT, w(1), w(2), w(0)},
		{opcode.SLT, neg(1), w(1), w(1)},
		{opcode.SGT, neg(1), w(1), w(0)},
		{opcode.EQ, w(5), w(5), w(1)},
		{opcode.EQ, w(5), w(6), w(0)},
		{opcode.AND, w(0xf0), w(0x3c), w(0x30)},
		{opcode.OR, w(0xf0), w(0x3c), w(0xfc)},
		{opcode.XOR, w(0xf0), w(0x3c), w(0xcc)},
		{opcode.BYTE, w(31), w(0xff01), w(0x01)},
		{opcode.BYTE, w(30), w(0xff01), w(0xff)},
		{opcode.BYTE, w(32), w(0xff01), w(0)},
		{opcode.SHL, w(4), w(1), w(16)},
		{opcode.SHL, w(256), w(1), w(0)},
		{opcode.SHR, w(4), w(0x100), w(0x10)},
		{opcode.SAR, w(4), neg(16), neg(1)},
		{opcode.SAR, w(300), neg(16), maxWord},
		{opcode.SIGNEXTEND, w(0), w(0xff), maxWord},
		{opcode.SIGNEXTEND, w(0), w(0x7f), w(0x7f)},
		{opcode.SIGNEXTEND, w(1), w(0x12ff80), neg(0x80)},
		{opcode.SIGNEXTEND, w(31), w(0x80), w(0x80)},
		{opcode.SIGNEXTEND, maxWord, w(0x80), w(0x80)},
	}
	for _, tc := range testCases {
		name := fmt.Sprintf("%s %s %s", tc.Op, tc.A, tc.B)
		st, env, ctx := newTestState(t, fmt.Sprintf("7f%s7f%s%02x", tc.B, tc.A, byte(tc.Op)))
		run(t, st, env)
		v, ok := top(t, st).BigInt()
		require.True(t, ok, name)
		expected, _ := new(big.Int).SetString(tc.Expected, 16)
		assert.Equal(t, expected.String(), v.String(), name)
		assert.Equal(t, 1, st.Stack.Len(), name)
		ctx.Close()
	}
}

func Test_ExecModArith(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	// A在栈顶，然后是B、N
	var testCases = []struct {
		Op       opcode.OpCode
		A        string
		B        string
		N        string
		Expected uint64
	}{
		{opcode.ADDMOD, w(10), w(10), w(8), 4},
		{opcode.ADDMOD, maxWord, w(2), w(3), 2},
		{opcode.ADDMOD, w(10), w(10), w(0), 0},
		{opcode.MULMOD, w(10), w(10), w(8), 4},
		{opcode.MULMOD, maxWord, maxWord, w(7), 1},
		{opcode.MULMOD, w(10), w(10), w(0), 0},
	}
	for _, tc := range testCases {
		st, env, ctx := newTestState(t, fmt.Sprintf("7f%s7f%s7f%s%02x", tc.N, tc.B, tc.A, byte(tc.Op)))
		run(t, st, env)
		v, ok := top(t, st).AsUint64()
		require.True(t, ok)
		assert.Equal(t, tc.Expected, v, tc.Op.String())
		ctx.Close()
	}
}

func Test_ExecUnary(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	st, env, ctx := newTestState(t, "600019")
	defer ctx.Close()
	run(t, st, env)
	v, ok := top(t, st).BigInt()
	require.True(t, ok)
	assert.Equal(t, maxWord, fmt.Sprintf("%064x", v))

	st, env, ctx = newTestState(t, "600015")
	defer ctx.Close()
	run(t, st, env)
	u, ok := top(t, st).AsUint64()
	require.True(t, ok)
	assert.Equal(t, uint64(1), u)
}

func Test_ExecSymbolicExp(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	// callvalue ** 3
	st, env, ctx := newTestState(t, "6003340a")
	defer ctx.Close()
	run(t, st, env)
	result := top(t, st)
	require.True(t, result.IsSymbolic())

	require.Nil(t, ctx.Push())
	require.Nil(t, ctx.Assert(env.CallValue().Eq(word(2)), result.Ne(word(8))))
	status, err := ctx.Check()
	require.Nil(t, err)
	assert.Equal(t, smt.StatusUnsat, status)
	require.Nil(t, ctx.Pop())

	// 指数是符号
	st, env, ctx = newTestState(t, "3460020a")
	defer ctx.Close()
	err = execErr(t, st, env)
	kind, ok := UnsupportedKindOf(err)
	require.True(t, ok)
	assert.Equal(t, SymbolicExponent, kind)
}

func Test_ExecJumpi(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	st, env, ctx := newTestState(t, "34600657" + "00005b00")
	defer ctx.Close()
	step(t, st, env)
	step(t, st, env)
	ins, err := st.CurrentInstruction()
	require.Nil(t, err)
	rec, err := Exec(ins, st, env)
	require.Nil(t, err)
	assert.Equal(t, [2]int{3, 6}, rec.PC)
	require.NotNil(t, rec.Constraint)
	assert.True(t, rec.Constraint.IsSymbolic())
	assert.True(t, rec.Constraint.Equal(env.CallValue().Ne(word(0))))
	assert.Equal(t, 2, rec.Stack.PopQty)

	// Exec不修改状态
	assert.Equal(t, 2, st.Stack.Len())
	assert.Equal(t, 3, st.PC())

	// 常量条件同样带上Constraint
	st, env, ctx = newTestState(t, "6000600757" + "00005b00")
	defer ctx.Close()
	step(t, st, env)
	step(t, st, env)
	ins, _ = st.CurrentInstruction()
	rec, err = Exec(ins, st, env)
	require.Nil(t, err)
	require.NotNil(t, rec.Constraint)
	assert.True(t, rec.Constraint.IsFalse())

	// 目标超出代码，只记录在跳转分支上
	var testCases = []struct {
		Code string
		Dest int
	}{
		{"6000600a5700", -1},
		{"3460055700005b00", 5},
	}
	for _, tc := range testCases {
		st, env, ctx := newTestState(t, tc.Code)
		step(t, st, env)
		step(t, st, env)
		ins, _ = st.CurrentInstruction()
		require.Equal(t, opcode.JUMPI, ins.Op)
		rec, err = Exec(ins, st, env)
		require.Nil(t, err, tc.Code)
		require.NotNil(t, rec.Constraint)
		assert.Equal(t, [2]int{ins.Address, ins.Address}, rec.PC)
		var invalid *InvalidJumpError
		require.True(t, errors.As(rec.JumpErr, &invalid), tc.Code)
		assert.Equal(t, tc.Dest, invalid.Dest)
		assert.Equal(t, ins.Address, invalid.PC)
		ctx.Close()
	}
}

func Test_ExecJumpErrors(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	var testCases = []struct {
		Code   string
		Check  func(err error) bool
		Reason string
	}{
		{"60035600", func(err error) bool {
			var target *InvalidJumpError
			return errors.As(err, &target) && target.Dest == 3 && target.PC == 2
		}, "not a JUMPDEST"},
		{"60ff56", func(err error) bool {
			var target *InvalidJumpError
			return errors.As(err, &target) && target.Dest == -1
		}, "out of code"},
		{"3456", func(err error) bool {
			kind, ok := UnsupportedKindOf(err)
			return ok && kind == SymbolicJump
		}, "symbolic target"},
		{"6001345700", func(err error) bool {
			kind, ok := UnsupportedKindOf(err)
			return ok && kind == SymbolicJump
		}, "symbolic JUMPI target"},
		{"6003565b00", func(err error) bool { return err == nil }, "valid jump"},
	}
	for _, tc := range testCases {
		st, env, ctx := newTestState(t, tc.Code)
		err := execErr(t, st, env)
		assert.True(t, tc.Check(err), "%s: %v", tc.Reason, err)
		ctx.Close()
	}
}

func Test_ExecStackErrors(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	st, env, ctx := newTestState(t, "600101")
	defer ctx.Close()
	err := execErr(t, st, env)
	var empty *StackEmptyError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, 2, empty.PC)
	assert.True(t, IsStackEmpty(err))

	// SWAP1需要两个元素
	st, env, ctx = newTestState(t, "600190")
	defer ctx.Close()
	assert.True(t, IsStackEmpty(execErr(t, st, env)))

	// DUP2需要两个元素
	st, env, ctx = newTestState(t, "600181")
	defer ctx.Close()
	assert.True(t, IsStackEmpty(execErr(t, st, env)))

	st, env, ctx = newTestState(t, "6001")
	defer ctx.Close()
	for i := 0; i < STACK_SIZE; i++ {
		require.Nil(t, st.Stack.Push(word(int64(i))))
	}
	ins, _ := st.CurrentInstruction()
	_, err = Exec(ins, st, env)
	var overflow *StackOverflowError
	require.True(t, errors.As(err, &overflow))
	assert.Equal(t, 0, overflow.PC)
	assert.Equal(t, STACK_SIZE, st.Stack.Len())
}

func Test_ExecDupSwap(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	st, env, ctx := newTestState(t, "6001600281")
	defer ctx.Close()
	step(t, st, env)
	step(t, st, env)
	rec := step(t, st, env)
	assert.Equal(t, 0, rec.Stack.PopQty)
	assert.Equal(t, 1, rec.Stack.PushQty)
	assert.Equal(t, 3, st.Stack.Len())
	v, _ := top(t, st).AsUint64()
	assert.Equal(t, uint64(1), v)

	st, env, ctx = newTestState(t, "6001600290")
	defer ctx.Close()
	step(t, st, env)
	step(t, st, env)
	rec = step(t, st, env)
	assert.Equal(t, 0, rec.Stack.PopQty)
	assert.Equal(t, 0, rec.Stack.PushQty)
	assert.Equal(t, []StackOp{SwapOp(1)}, rec.Stack.Ops)
	a, _ := top(t, st).AsUint64()
	second, _ := st.Stack.PeekNth(1)
	b, _ := second.AsUint64()
	assert.Equal(t, uint64(1), a)
	assert.Equal(t, uint64(2), b)
}

func Test_ExecMemory(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	// MSTORE 0x42到0，MLOAD 0，MSIZE
	st, env, ctx := newTestState(t, "604260005260005159")
	defer ctx.Close()
	run(t, st, env)
	size, _ := top(t, st).AsUint64()
	assert.Equal(t, uint64(32), size)
	loaded, _ := st.Stack.PeekNth(1)
	v, _ := loaded.AsUint64()
	assert.Equal(t, uint64(0x42), v)

	// MSTORE8只写一个byte，MSIZE按32byte对齐
	st, env, ctx = newTestState(t, "61abff60215359")
	defer ctx.Close()
	run(t, st, env)
	size, _ = top(t, st).AsUint64()
	assert.Equal(t, uint64(64), size)
	b, _ := st.Memory.ReadByte(0x21).AsUint64()
	assert.Equal(t, uint64(0xff), b)

	// MLOAD也会扩展内存
	st, env, ctx = newTestState(t, "60405159")
	defer ctx.Close()
	run(t, st, env)
	size, _ = top(t, st).AsUint64()
	assert.Equal(t, uint64(96), size)
}

func Test_ExecMemoryErrors(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	var testCases = []struct {
		Code string
		Kind UnsupportedKind
	}{
		{"60016301000000" + "52", MemoryLimit},
		{"6001" + "34" + "52", SymbolicOffset},
		{"34" + "51", SymbolicOffset},
		{"34600020", SymbolicOffset},
		{"6001" + "7f" + maxWord + "52", MemoryLimit},
	}
	for _, tc := range testCases {
		st, env, ctx := newTestState(t, tc.Code)
		err := execErr(t, st, env)
		kind, ok := UnsupportedKindOf(err)
		require.True(t, ok, tc.Code)
		assert.Equal(t, tc.Kind, kind, tc.Code)
		ctx.Close()
	}
}

func Test_ExecStorage(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	// SSTORE(1, 5)，SLOAD(1)
	st, env, ctx := newTestState(t, "600560015560015400")
	defer ctx.Close()
	run(t, st, env)
	v, ok := top(t, st).AsUint64()
	require.True(t, ok)
	assert.Equal(t, uint64(5), v)
	assert.Equal(t, 1, len(st.Storage.Account(st.Address).Touched()))

	// 符号key: SSTORE(callvalue, 7)，SLOAD(1)
	st, env, ctx = newTestState(t, "60073455600154")
	defer ctx.Close()
	run(t, st, env)
	result := top(t, st)
	require.True(t, result.IsSymbolic())

	require.Nil(t, ctx.Push())
	require.Nil(t, ctx.Assert(result.Eq(word(7))))
	status, err := ctx.Check()
	require.Nil(t, err)
	assert.Equal(t, smt.StatusSat, status)
	require.Nil(t, ctx.Assert(env.CallValue().Ne(word(1))))
	status, err = ctx.Check()
	require.Nil(t, err)
	assert.Equal(t, smt.StatusUnsat, status)
	require.Nil(t, ctx.Pop())
}

func Test_ExecCalldata(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	st, env, ctx := newTestState(t, "60003560043536")
	defer ctx.Close()
	require.Nil(t, env.SetCalldata("0x846719e0000000000000000000000000000000000000000000000000000000000000002a"))
	run(t, st, env)

	size, _ := top(t, st).AsUint64()
	assert.Equal(t, uint64(36), size)
	arg, _ := st.Stack.PeekNth(1)
	v, _ := arg.AsUint64()
	assert.Equal(t, uint64(0x2a), v)
	selector, _ := st.Stack.PeekNth(2)
	s, ok := selector.BigInt()
	require.True(t, ok)
	expected := new(big.Int).Lsh(big.NewInt(0x846719e0), 224)
	assert.Equal(t, expected.String(), s.String())

	// CALLDATACOPY(0, 0, 2)
	st, env, ctx = newTestState(t, "600260006000375900")
	defer ctx.Close()
	require.Nil(t, env.SetCalldata("aabb"))
	run(t, st, env)
	b0, _ := st.Memory.ReadByte(0).AsUint64()
	b1, _ := st.Memory.ReadByte(1).AsUint64()
	assert.Equal(t, uint64(0xaa), b0)
	assert.Equal(t, uint64(0xbb), b1)
	size, _ = top(t, st).AsUint64()
	assert.Equal(t, uint64(32), size)
}

func Test_ExecCodeCopy(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	// CODECOPY(0, 4, 8)，代码只有8byte，超出部分为0
	st, env, ctx := newTestState(t, "6008600460003900")
	defer ctx.Close()
	run(t, st, env)
	expected := []uint64{0x60, 0x00, 0x39, 0x00, 0, 0, 0, 0}
	for i, e := range expected {
		b, ok := st.Memory.ReadByte(i).AsUint64()
		require.True(t, ok)
		assert.Equal(t, e, b, "byte %d", i)
	}
}

func Test_ExecSha3(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	st, env, ctx := newTestState(t, "6001600052602060002000")
	defer ctx.Close()
	for i := 0; i < 5; i++ {
		step(t, st, env)
	}
	rec := step(t, st, env)
	require.NotNil(t, rec.Mem)
	assert.Equal(t, []MemOp{{Kind: MemRead, Idx: 0, Size: 32}}, rec.Mem.Ops)
	hash := top(t, st)
	assert.True(t, hash.IsSymbolic())
	assert.Equal(t, smt.WordBytes, hash.Bytes())
	assert.Equal(t, 1, env.Keccak().FunctionCount())

	// 空输入
	st, env, ctx = newTestState(t, "6000600020")
	defer ctx.Close()
	run(t, st, env)
	assert.True(t, top(t, st).IsSymbolic())
}

func Test_ExecHalt(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	var testCases = []struct {
		Code    string
		PC      int
		HasRead bool
	}{
		{"6001600000", 4, false},
		{"60206000f3", 4, true},
		{"60006000fd", 4, false},
		{"fe", 0, false},
		{"0c", 0, false},
		{"6000ff", 2, false},
		{"602034f3", 3, false},
	}
	for _, tc := range testCases {
		st, env, ctx := newTestState(t, tc.Code)
		var rec *MachineRecord
		for st.CanContinue() {
			rec = step(t, st, env)
		}
		require.NotNil(t, rec, tc.Code)
		assert.True(t, rec.Halt, tc.Code)
		assert.Equal(t, tc.PC, rec.PC[1], tc.Code)
		assert.Equal(t, tc.HasRead, rec.Mem != nil, tc.Code)
		assert.True(t, st.Halted(), tc.Code)
		ctx.Close()
	}
}

func Test_ExecUnsupported(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	for _, op := range []opcode.OpCode{opcode.CALL, opcode.CREATE2, opcode.DELEGATECALL, opcode.LOG2, opcode.TSTORE, opcode.MCOPY} {
		st, env, ctx := newTestState(t, fmt.Sprintf("%02x", byte(op)))
		err := execErr(t, st, env)
		kind, ok := UnsupportedKindOf(err)
		require.True(t, ok, op.String())
		assert.Equal(t, Unimplemented, kind, op.String())
		ctx.Close()
	}
}

func Test_ExecEnvironment(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	st, env, ctx := newTestState(t, "303a5a5a58")
	defer ctx.Close()
	run(t, st, env)
	pc, _ := top(t, st).AsUint64()
	assert.Equal(t, uint64(4), pc)
	g1, _ := st.Stack.PeekNth(1)
	g2, _ := st.Stack.PeekNth(2)
	assert.True(t, g1.IsSymbolic())
	assert.NotEqual(t, g1.GetRaw(), g2.GetRaw())
	address, _ := st.Stack.PeekNth(4)
	a, ok := address.BigInt()
	require.True(t, ok)
	assert.Equal(t, new(big.Int).SetBytes(env.GetAddress().Bytes()).String(), a.String())
}
