package state

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"symevm/internal/disassembler"
	"symevm/internal/opcode"
	"symevm/internal/smt"
)

// 更多资料可以参考以下链接：
// https://ethervm.io/
// https://ethereum.org/en/developers/docs/evm/opcodes/

// Exec 执行一条指令，返回状态差量
// 不修改st，调用方通过EvmState.ApplyChange应用结果
func Exec(ins *disassembler.Instruction, st *EvmState, env *Environment) (*MachineRecord, error) {
	c := &execContext{ins: ins, st: st, env: env, pc: st.PC()}
	switch ins.Op {
	case opcode.STOP:
		return c.halt(0)

	// 算术
	case opcode.ADD:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Add(b) })
	case opcode.MUL:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Mul(b) })
	case opcode.SUB:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Sub(b) })
	case opcode.DIV:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return nonZero(b, a.UDiv(b)) })
	case opcode.SDIV:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return nonZero(b, a.SDiv(b)) })
	case opcode.MOD:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return nonZero(b, a.URem(b)) })
	case opcode.SMOD:
		// 结果的符号和被除数相同，对应bvsrem
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return nonZero(b, a.SRem(b)) })
	case opcode.ADDMOD:
		return c.ternary(func(a, b, n *smt.BitVec) *smt.BitVec { return modArith(a, b, n, false) })
	case opcode.MULMOD:
		return c.ternary(func(a, b, n *smt.BitVec) *smt.BitVec { return modArith(a, b, n, true) })
	case opcode.EXP:
		return c.exp()
	case opcode.SIGNEXTEND:
		return c.binary(signExtend)

	// 比较，结果为1或0
	case opcode.LT:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Ult(b).AsWord() })
	case opcode.GT:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Ugt(b).AsWord() })
	case opcode.SLT:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Slt(b).AsWord() })
	case opcode.SGT:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Sgt(b).AsWord() })
	case opcode.EQ:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Eq(b).AsWord() })
	case opcode.ISZERO:
		return c.unary(func(a *smt.BitVec) *smt.BitVec { return a.IsZero().AsWord() })

	// 位运算
	case opcode.AND:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.And(b) })
	case opcode.OR:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Or(b) })
	case opcode.XOR:
		return c.binary(func(a, b *smt.BitVec) *smt.BitVec { return a.Xor(b) })
	case opcode.NOT:
		return c.unary(func(a *smt.BitVec) *smt.BitVec { return a.Not() })
	case opcode.BYTE:
		return c.binary(byteAt)
	case opcode.SHL:
		// 栈顶是位移量
		return c.binary(func(shift, value *smt.BitVec) *smt.BitVec { return value.Shl(shift) })
	case opcode.SHR:
		return c.binary(func(shift, value *smt.BitVec) *smt.BitVec { return value.Shr(shift) })
	case opcode.SAR:
		return c.binary(func(shift, value *smt.BitVec) *smt.BitVec { return value.AShr(shift) })

	case opcode.SHA3:
		return c.sha3()

	// 环境
	case opcode.ADDRESS:
		return c.push(addressWord(st.Address))
	case opcode.BALANCE:
		return c.unaryErr(env.Balance)
	case opcode.ORIGIN:
		return c.push(env.Origin())
	case opcode.CALLER:
		return c.push(env.Caller())
	case opcode.CALLVALUE:
		return c.push(env.CallValue())
	case opcode.CALLDATALOAD:
		return c.unaryErr(env.CalldataLoad)
	case opcode.CALLDATASIZE:
		return c.push(env.CalldataSize())
	case opcode.CALLDATACOPY:
		return c.calldataCopy()
	case opcode.CODESIZE:
		return c.push(word(int64(st.Program.Size())))
	case opcode.CODECOPY:
		return c.codeCopy()
	case opcode.GASPRICE:
		return c.push(env.GasPrice())
	case opcode.EXTCODESIZE:
		return c.unaryErr(env.ExtCodeSize)
	case opcode.EXTCODEHASH:
		return c.unaryErr(env.ExtCodeHash)
	case opcode.RETURNDATASIZE:
		// 不执行外部调用，返回数据总是空的
		return c.push(word(0))
	case opcode.BLOCKHASH:
		return c.unaryErr(env.BlockHash)
	case opcode.COINBASE:
		return c.push(env.Coinbase())
	case opcode.TIMESTAMP:
		return c.push(env.Timestamp())
	case opcode.NUMBER:
		return c.push(env.BlockNumber())
	case opcode.DIFFICULTY:
		return c.push(env.Difficulty())
	case opcode.GASLIMIT:
		return c.push(env.GasLimit())
	case opcode.CHAINID:
		return c.push(env.ChainID())
	case opcode.SELFBALANCE:
		v, err := env.Balance(addressWord(st.Address))
		if err != nil {
			return nil, errors.Wrapf(err, "SELFBALANCE at pc %d", c.pc)
		}
		return c.push(v)
	case opcode.BASEFEE:
		return c.push(env.BaseFee())
	case opcode.GAS:
		v, err := env.Gas()
		if err != nil {
			return nil, errors.Wrapf(err, "GAS at pc %d", c.pc)
		}
		return c.push(v)
	case opcode.PC:
		return c.push(word(int64(c.pc)))
	case opcode.MSIZE:
		return c.push(word(int64(st.Memory.HighestIdx())))

	// 栈、内存、存储
	case opcode.POP:
		if _, err := c.operands(1); err != nil {
			return nil, err
		}
		return c.stackRecord(1)
	case opcode.MLOAD:
		return c.mload()
	case opcode.MSTORE:
		return c.mstore(false)
	case opcode.MSTORE8:
		return c.mstore(true)
	case opcode.SLOAD:
		return c.sload()
	case opcode.SSTORE:
		return c.sstore()
	case opcode.JUMPDEST:
		return c.stackRecord(0)
	case opcode.PUSH0:
		return c.push(word(0))

	// 控制流
	case opcode.JUMP:
		return c.jump()
	case opcode.JUMPI:
		return c.jumpi()

	// 停机
	case opcode.RETURN, opcode.REVERT:
		return c.returnData()
	case opcode.INVALID:
		return c.halt(0)
	case opcode.SELFDESTRUCT:
		if _, err := c.operands(1); err != nil {
			return nil, err
		}
		return c.halt(1)

	// 外部调用、创建合约、日志以及Cancun之后的指令
	case opcode.CALL, opcode.CALLCODE, opcode.DELEGATECALL, opcode.STATICCALL,
		opcode.CREATE, opcode.CREATE2, opcode.EXTCODECOPY, opcode.RETURNDATACOPY,
		opcode.TLOAD, opcode.TSTORE, opcode.MCOPY, opcode.BLOBHASH, opcode.BLOBBASEFEE:
		return nil, unsupported(c.pc, ins.Op, Unimplemented)

	default:
		switch {
		case ins.Op.IsPush():
			return c.push(ins.Push.ZeroExt(smt.WordBytes))
		case ins.Op.IsDup():
			v, err := st.Stack.PeekNth(ins.Op.DupDepth() - 1)
			if err != nil {
				return nil, atPC(err, c.pc)
			}
			return c.stackRecord(0, v)
		case ins.Op.IsSwap():
			return c.swap(ins.Op.SwapDepth())
		case ins.Op.IsLog():
			return nil, unsupported(c.pc, ins.Op, Unimplemented)
		}
		// 未定义的字节按INVALID处理
		return c.halt(0)
	}
}

type execContext struct {
	ins *disassembler.Instruction
	st  *EvmState
	env *Environment
	pc  int
}

func word(v int64) *smt.BitVec {
	return smt.NewBitVecValInt64(v, smt.WordBytes)
}

// nonZero 除数为0时结果为0
func nonZero(divisor, result *smt.BitVec) *smt.BitVec {
	return divisor.IsZero().Ite(word(0), result)
}

// modArith ADDMOD/MULMOD，中间结果512bit，不会溢出
func modArith(a, b, n *smt.BitVec, mul bool) *smt.BitVec {
	wide := 2 * smt.WordBytes
	x, y, m := a.ZeroExt(wide), b.ZeroExt(wide), n.ZeroExt(wide)
	var r *smt.BitVec
	if mul {
		r = x.Mul(y)
	} else {
		r = x.Add(y)
	}
	r = r.URem(m).Extract(smt.WordBytes*smt.ByteBits-1, 0)
	return nonZero(n, r)
}

// signExtend 把x的低b+1个byte按符号位扩展到32byte，b>=31时x不变
func signExtend(b, x *smt.BitVec) *smt.BitVec {
	var (
		bits     = b.Mul(word(8)).Add(word(8))
		mask     = word(1).Shl(bits).Sub(word(1))
		sign     = x.Shr(bits.Sub(word(1))).And(word(1))
		extended = sign.IsZero().Ite(x.And(mask), x.Or(mask.Not()))
	)
	return b.Ult(word(31)).Ite(extended, x)
}

// byteAt 大端序的第i个byte，i>=32时为0
func byteAt(i, x *smt.BitVec) *smt.BitVec {
	shift := word(31).Sub(i).Mul(word(8))
	v := x.Shr(shift).And(word(0xff))
	return i.Ult(word(32)).Ite(v, word(0))
}

func (c *execContext) next() int {
	return c.pc + c.ins.ByteSize()
}

func (c *execContext) operands(k int) ([]*smt.BitVec, error) {
	ops, err := c.st.Stack.PeekTop(k)
	if err != nil {
		return nil, atPC(err, c.pc)
	}
	return ops, nil
}

// stackRecord 弹出pop个元素之后依次压入push，pc前进到下一条指令
func (c *execContext) stackRecord(pop int, push ...*smt.BitVec) (*MachineRecord, error) {
	if c.st.Stack.Len()-pop+len(push) > STACK_SIZE {
		return nil, &StackOverflowError{PC: c.pc}
	}
	change := &StackChange{
		PopQty:  pop,
		PushQty: len(push),
		Ops:     make([]StackOp, 0, pop+len(push)),
	}
	for i := 0; i < pop; i++ {
		change.Ops = append(change.Ops, PopOp())
	}
	for _, v := range push {
		change.Ops = append(change.Ops, PushOp(v.Simplify()))
	}
	return &MachineRecord{
		Op:    c.ins.Op,
		Stack: change,
		PC:    [2]int{c.pc, c.next()},
	}, nil
}

func (c *execContext) push(v *smt.BitVec) (*MachineRecord, error) {
	return c.stackRecord(0, v)
}

func (c *execContext) unary(f func(a *smt.BitVec) *smt.BitVec) (*MachineRecord, error) {
	ops, err := c.operands(1)
	if err != nil {
		return nil, err
	}
	return c.stackRecord(1, f(ops[0]))
}

func (c *execContext) unaryErr(f func(a *smt.BitVec) (*smt.BitVec, error)) (*MachineRecord, error) {
	ops, err := c.operands(1)
	if err != nil {
		return nil, err
	}
	v, err := f(ops[0])
	if err != nil {
		return nil, errors.Wrapf(err, "%s at pc %d", c.ins.Op, c.pc)
	}
	return c.stackRecord(1, v)
}

func (c *execContext) binary(f func(a, b *smt.BitVec) *smt.BitVec) (*MachineRecord, error) {
	ops, err := c.operands(2)
	if err != nil {
		return nil, err
	}
	return c.stackRecord(2, f(ops[0], ops[1]))
}

func (c *execContext) ternary(f func(a, b, n *smt.BitVec) *smt.BitVec) (*MachineRecord, error) {
	ops, err := c.operands(3)
	if err != nil {
		return nil, err
	}
	return c.stackRecord(3, f(ops[0], ops[1], ops[2]))
}

// halt 停机，pc保持不变
func (c *execContext) halt(pop int) (*MachineRecord, error) {
	rec, err := c.stackRecord(pop)
	if err != nil {
		return nil, err
	}
	rec.PC[1] = c.pc
	rec.Halt = true
	return rec, nil
}

// memRange offset和size必须是常量，size为0时忽略offset
func (c *execContext) memRange(offset, size *smt.BitVec) (int, int, error) {
	n, ok := size.Simplify().AsUint64()
	if !ok {
		if size.IsSymbolic() {
			return 0, 0, unsupported(c.pc, c.ins.Op, SymbolicOffset)
		}
		return 0, 0, unsupported(c.pc, c.ins.Op, MemoryLimit)
	}
	if n == 0 {
		return 0, 0, nil
	}
	o, ok := offset.Simplify().AsUint64()
	if !ok {
		if offset.IsSymbolic() {
			return 0, 0, unsupported(c.pc, c.ins.Op, SymbolicOffset)
		}
		return 0, 0, unsupported(c.pc, c.ins.Op, MemoryLimit)
	}
	if o > MaxMemorySize || n > MaxMemorySize || o+n > MaxMemorySize {
		return 0, 0, unsupported(c.pc, c.ins.Op, MemoryLimit)
	}
	return int(o), int(n), nil
}

// 指令: SHA3 Compute Keccak-256 hash
// 输入是内存[offset, offset+size)，结果是该调用点的未解释函数
func (c *execContext) sha3() (*MachineRecord, error) {
	ops, err := c.operands(2)
	if err != nil {
		return nil, err
	}
	offset, size, err := c.memRange(ops[0], ops[1])
	if err != nil {
		return nil, err
	}
	var data *smt.BitVec
	if size > 0 {
		data = smt.FromBytes(c.st.Memory.ReadRange(offset, size)...)
	}
	hash, err := c.env.Keccak().CreateKeccak(c.pc, data)
	if err != nil {
		return nil, err
	}
	rec, err := c.stackRecord(2, hash)
	if err != nil {
		return nil, err
	}
	rec.Mem = &MemChange{Ops: []MemOp{{Kind: MemRead, Idx: offset, Size: size}}}
	return rec, nil
}

// 指令: EXP
// 指数必须是常量，底数是符号时按平方-乘展开
func (c *execContext) exp() (*MachineRecord, error) {
	ops, err := c.operands(2)
	if err != nil {
		return nil, err
	}
	base, exponent := ops[0], ops[1]
	e, ok := exponent.Simplify().Uint256()
	if !ok {
		return nil, unsupported(c.pc, c.ins.Op, SymbolicExponent)
	}
	if b, ok := base.Simplify().Uint256(); ok {
		return c.stackRecord(2, smt.NewBitVecValFromUint256(new(uint256.Int).Exp(b, e)))
	}
	var (
		bits   = e.ToBig()
		result = word(1)
		power  = base
	)
	for i := 0; i < bits.BitLen(); i++ {
		if bits.Bit(i) == 1 {
			result = result.Mul(power)
		}
		if i+1 < bits.BitLen() {
			power = power.Mul(power)
		}
	}
	return c.stackRecord(2, result)
}

// 指令: CALLDATACOPY memOffset, dataOffset, size
func (c *execContext) calldataCopy() (*MachineRecord, error) {
	ops, err := c.operands(3)
	if err != nil {
		return nil, err
	}
	memOffset, size, err := c.memRange(ops[0], ops[2])
	if err != nil {
		return nil, err
	}
	change := &MemChange{Ops: make([]MemOp, 0, size)}
	for i := 0; i < size; i++ {
		b, err := c.env.CalldataByteAt(ops[1], i)
		if err != nil {
			return nil, errors.Wrapf(err, "CALLDATACOPY at pc %d", c.pc)
		}
		change.Ops = append(change.Ops, MemOp{Kind: MemWriteByte, Idx: memOffset + i, Value: b})
	}
	rec, err := c.stackRecord(3)
	if err != nil {
		return nil, err
	}
	rec.Mem = change
	return rec, nil
}

// 指令: CODECOPY memOffset, codeOffset, size
// 读取的是原始字节码，超出部分补0
func (c *execContext) codeCopy() (*MachineRecord, error) {
	ops, err := c.operands(3)
	if err != nil {
		return nil, err
	}
	memOffset, size, err := c.memRange(ops[0], ops[2])
	if err != nil {
		return nil, err
	}
	codeOffset, ok := ops[1].Simplify().BigInt()
	if !ok && size > 0 {
		return nil, unsupported(c.pc, c.ins.Op, SymbolicOffset)
	}
	var (
		code   = c.st.Program.Bytes()
		start  = len(code)
		change = &MemChange{Ops: make([]MemOp, 0, size)}
	)
	if ok && codeOffset.IsInt64() && codeOffset.Int64() < int64(len(code)) {
		start = int(codeOffset.Int64())
	}
	for i := 0; i < size; i++ {
		var b int64
		if start+i < len(code) {
			b = int64(code[start+i])
		}
		change.Ops = append(change.Ops, MemOp{Kind: MemWriteByte, Idx: memOffset + i, Value: smt.NewBitVecValInt64(b, 1)})
	}
	rec, err := c.stackRecord(3)
	if err != nil {
		return nil, err
	}
	rec.Mem = change
	return rec, nil
}

func (c *execContext) mload() (*MachineRecord, error) {
	ops, err := c.operands(1)
	if err != nil {
		return nil, err
	}
	offset, _, err := c.memRange(ops[0], word(smt.WordBytes))
	if err != nil {
		return nil, err
	}
	rec, err := c.stackRecord(1, c.st.Memory.ReadWord(offset))
	if err != nil {
		return nil, err
	}
	rec.Mem = &MemChange{Ops: []MemOp{{Kind: MemRead, Idx: offset, Size: smt.WordBytes}}}
	return rec, nil
}

// mstore MSTORE写32byte，MSTORE8只写最低的1byte
func (c *execContext) mstore(single bool) (*MachineRecord, error) {
	ops, err := c.operands(2)
	if err != nil {
		return nil, err
	}
	size := smt.WordBytes
	if single {
		size = 1
	}
	offset, _, err := c.memRange(ops[0], word(int64(size)))
	if err != nil {
		return nil, err
	}
	rec, err := c.stackRecord(2)
	if err != nil {
		return nil, err
	}
	op := MemOp{Kind: MemWrite, Idx: offset, Value: ops[1]}
	if single {
		op = MemOp{Kind: MemWriteByte, Idx: offset, Value: ops[1].Extract(smt.ByteBits-1, 0).Simplify()}
	}
	rec.Mem = &MemChange{Ops: []MemOp{op}}
	return rec, nil
}

func (c *execContext) sload() (*MachineRecord, error) {
	ops, err := c.operands(1)
	if err != nil {
		return nil, err
	}
	key := ops[0]
	value, err := c.st.Storage.Get(c.st.Address, key)
	if errors.Is(err, ErrArrayValue) {
		return nil, unsupported(c.pc, c.ins.Op, ArrayStorage)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "SLOAD at pc %d", c.pc)
	}
	rec, err := c.stackRecord(1, value)
	if err != nil {
		return nil, err
	}
	rec.Storage = &StorageChange{Ops: []StorageOp{{Kind: StorageRead, Addr: c.st.Address, Key: key}}}
	return rec, nil
}

func (c *execContext) sstore() (*MachineRecord, error) {
	ops, err := c.operands(2)
	if err != nil {
		return nil, err
	}
	rec, err := c.stackRecord(2)
	if err != nil {
		return nil, err
	}
	rec.Storage = &StorageChange{Ops: []StorageOp{{Kind: StorageWrite, Addr: c.st.Address, Key: ops[0], Value: ops[1]}}}
	return rec, nil
}

// jumpTarget 目标必须是常量且是JUMPDEST
func (c *execContext) jumpTarget(dest *smt.BitVec) (int, error) {
	d, ok := dest.Simplify().AsUint64()
	if !ok {
		if dest.IsSymbolic() {
			return 0, unsupported(c.pc, c.ins.Op, SymbolicJump)
		}
		return 0, &InvalidJumpError{PC: c.pc, Dest: -1}
	}
	if d >= uint64(c.st.Program.Size()) || !c.st.Program.IsJumpDest(int(d)) {
		dst := -1
		if d < uint64(c.st.Program.Size()) {
			dst = int(d)
		}
		return 0, &InvalidJumpError{PC: c.pc, Dest: dst}
	}
	return int(d), nil
}

func (c *execContext) jump() (*MachineRecord, error) {
	ops, err := c.operands(1)
	if err != nil {
		return nil, err
	}
	dest, err := c.jumpTarget(ops[0])
	if err != nil {
		return nil, err
	}
	rec, err := c.stackRecord(1)
	if err != nil {
		return nil, err
	}
	rec.PC[1] = dest
	return rec, nil
}

// jumpi PC[1]是跳转目标，Constraint为cond != 0，目标无效时PC[1]停在JUMPI上
// 不跳转的分支由调用方用PC[0]+ByteSize和取反的条件生成
func (c *execContext) jumpi() (*MachineRecord, error) {
	ops, err := c.operands(2)
	if err != nil {
		return nil, err
	}
	// 目标无效时只有跳转的分支出错，不跳转的分支照常执行
	dest, err := c.jumpTarget(ops[0])
	var invalid *InvalidJumpError
	if err != nil && !errors.As(err, &invalid) {
		return nil, err
	}
	rec, err := c.stackRecord(2)
	if err != nil {
		return nil, err
	}
	rec.PC[1] = dest
	if invalid != nil {
		rec.PC[1] = c.pc
		rec.JumpErr = invalid
	}
	rec.Constraint = ops[1].Ne(word(0))
	return rec, nil
}

// returnData RETURN/REVERT，offset和size都是常量时记录一次内存读取
func (c *execContext) returnData() (*MachineRecord, error) {
	ops, err := c.operands(2)
	if err != nil {
		return nil, err
	}
	rec, err := c.halt(2)
	if err != nil {
		return nil, err
	}
	if offset, size, err := c.memRange(ops[0], ops[1]); err == nil && size > 0 {
		rec.Mem = &MemChange{Ops: []MemOp{{Kind: MemRead, Idx: offset, Size: size}}}
	}
	return rec, nil
}

// swap SWAPn交换栈顶和第n个元素
func (c *execContext) swap(n int) (*MachineRecord, error) {
	if _, err := c.operands(n + 1); err != nil {
		return nil, err
	}
	return &MachineRecord{
		Op: c.ins.Op,
		Stack: &StackChange{
			Ops: []StackOp{SwapOp(n)},
		},
		PC: [2]int{c.pc, c.next()},
	}, nil
}

// ReturnValue RETURN/REVERT返回的内存内容，offset或size不是常量时返回false
func ReturnValue(st *EvmState) ([]*smt.BitVec, bool) {
	ops, err := st.Stack.PeekTop(2)
	if err != nil {
		return nil, false
	}
	c := &execContext{st: st, ins: &disassembler.Instruction{Op: opcode.RETURN}, pc: st.PC()}
	offset, size, err := c.memRange(ops[0], ops[1])
	if err != nil {
		return nil, false
	}
	return st.Memory.ReadRange(offset, size), true
}
