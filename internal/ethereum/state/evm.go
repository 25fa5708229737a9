package state

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"symevm/internal/disassembler"
)

// EvmState 执行过程中的一个点
// Program在所有状态之间共享，Stack/Memory/Storage在分叉时按值拷贝
type EvmState struct {
	Stack   *Stack
	Memory  *Memory
	Storage *GlobalStorage
	Program *disassembler.Program
	Address common.Address
	Error   error // 执行当前指令失败

	pc   int
	halt bool
}

func NewEvmState(program *disassembler.Program, address common.Address) *EvmState {
	st := &EvmState{
		Stack:   NewStack(),
		Memory:  NewMemory(),
		Storage: NewGlobalStorage(),
		Program: program,
		Address: address,
	}
	st.SetPC(0)
	return st
}

func (st *EvmState) PC() int {
	return st.pc
}

func (st *EvmState) Halted() bool {
	return st.halt
}

// SetPC 超出代码范围时停机
func (st *EvmState) SetPC(pc int) {
	st.pc = pc
	if st.pc >= st.Program.Size() {
		st.halt = true
	}
}

func (st *EvmState) CanContinue() bool {
	return st.pc < st.Program.Size() && !st.halt && st.Error == nil
}

// CurrentInstruction pc不是指令起始位置时返回ErrInvalidInstruction
func (st *EvmState) CurrentInstruction() (*disassembler.Instruction, error) {
	ins, ok := st.Program.InstructionAt(st.pc)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidInstruction, "pc %d", st.pc)
	}
	return ins, nil
}

// ApplyChange 依次应用内存、存储、栈的差量，然后是halt和pc
func (st *EvmState) ApplyChange(rec *MachineRecord) error {
	if rec.Mem != nil {
		if err := st.Memory.ApplyChange(rec.Mem); err != nil {
			return errors.Wrapf(err, "pc %d", rec.PC[0])
		}
	}
	if rec.Storage != nil {
		if err := st.Storage.ApplyChange(rec.Storage); err != nil {
			return errors.Wrapf(err, "pc %d", rec.PC[0])
		}
	}
	if rec.Stack != nil {
		if err := st.Stack.ApplyChange(rec.Stack); err != nil {
			return atPC(err, rec.PC[0])
		}
	}
	st.halt = st.halt || rec.Halt
	st.SetPC(rec.PC[1])
	return nil
}

func (st *EvmState) Clone() *EvmState {
	return &EvmState{
		Stack:   st.Stack.Clone(),
		Memory:  st.Memory.Clone(),
		Storage: st.Storage.Clone(),
		Program: st.Program,
		Address: st.Address,
		Error:   st.Error,
		pc:      st.pc,
		halt:    st.halt,
	}
}

func (st *EvmState) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "pc %d halt %v stack %d\n", st.pc, st.halt, st.Stack.Len())
	items := st.Stack.Items()
	for i := len(items) - 1; i >= 0; i-- {
		fmt.Fprintf(&builder, "  [%d] %s\n", len(items)-1-i, items[i])
	}
	builder.WriteString(st.Memory.String())
	return builder.String()
}
