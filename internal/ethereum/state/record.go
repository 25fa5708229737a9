package state

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"symevm/internal/opcode"
	"symevm/internal/smt"
)

type StackOpKind int

const (
	StackPop StackOpKind = iota
	StackPush
	StackSwap
)

// StackOp Push携带Word，Swap携带Depth
type StackOp struct {
	Kind  StackOpKind
	Word  *smt.BitVec
	Depth int
}

func PopOp() StackOp {
	return StackOp{Kind: StackPop}
}

func PushOp(word *smt.BitVec) StackOp {
	return StackOp{Kind: StackPush, Word: word}
}

func SwapOp(depth int) StackOp {
	return StackOp{Kind: StackSwap, Depth: depth}
}

type StackChange struct {
	PopQty  int
	PushQty int
	Ops     []StackOp
}

type MemOpKind int

const (
	MemRead MemOpKind = iota
	MemWrite
	MemWriteByte
)

// MemOp Read也要记录，MSIZE依赖它
// Read覆盖[Idx, Idx+Size)，Write为32byte，WriteByte为1byte
type MemOp struct {
	Kind  MemOpKind
	Idx   int
	Size  int
	Value *smt.BitVec
}

type MemChange struct {
	Ops []MemOp
}

type StorageOpKind int

const (
	StorageRead StorageOpKind = iota
	StorageWrite
)

type StorageOp struct {
	Kind  StorageOpKind
	Addr  common.Address
	Key   *smt.BitVec
	Value *smt.BitVec
}

type StorageChange struct {
	Ops []StorageOp
}

// MachineRecord 执行一条指令产生的状态差量
// Constraint为nil且没有跳转、停机时 PC[1] == PC[0] + ByteSize()
// Constraint非nil时PC[1]是跳转目标，不跳转的分支由调用方生成
type MachineRecord struct {
	Op         opcode.OpCode
	Stack      *StackChange
	Mem        *MemChange
	Storage    *StorageChange
	PC         [2]int
	Constraint *smt.Bool
	JumpErr    error // JUMPI的目标无效，跳转的分支是错误叶子
	Halt       bool
}

func (rec *MachineRecord) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s pc %d -> %d", rec.Op, rec.PC[0], rec.PC[1])
	if rec.Stack != nil {
		fmt.Fprintf(&builder, " pop %d push %d", rec.Stack.PopQty, rec.Stack.PushQty)
	}
	if rec.Mem != nil {
		fmt.Fprintf(&builder, " mem ops %d", len(rec.Mem.Ops))
	}
	if rec.Storage != nil {
		fmt.Fprintf(&builder, " storage ops %d", len(rec.Storage.Ops))
	}
	if rec.Constraint != nil {
		fmt.Fprintf(&builder, " if %s", rec.Constraint)
	}
	if rec.JumpErr != nil {
		fmt.Fprintf(&builder, " (%v)", rec.JumpErr)
	}
	if rec.Halt {
		builder.WriteString(" halt")
	}
	return builder.String()
}
