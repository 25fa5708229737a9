package state

import (
	"fmt"

	"github.com/pkg/errors"

	"symevm/internal/opcode"
)

// ErrInvalidInstruction pc不是某条指令的起始字节
var ErrInvalidInstruction = errors.New("invalid instruction")

// UnsupportedKind 不支持的特性
type UnsupportedKind int

const (
	SymbolicJump UnsupportedKind = iota
	SymbolicExponent
	ArrayStorage
	Unimplemented
	SymbolicOffset
	MemoryLimit
)

func (k UnsupportedKind) String() string {
	switch k {
	case SymbolicJump:
		return "symbolic jump target"
	case SymbolicExponent:
		return "symbolic exponent"
	case ArrayStorage:
		return "array storage value"
	case Unimplemented:
		return "unimplemented opcode"
	case SymbolicOffset:
		return "symbolic offset"
	case MemoryLimit:
		return "memory limit exceeded"
	}
	return fmt.Sprintf("UnsupportedKind(%d)", int(k))
}

type StackEmptyError struct {
	PC int
}

func (e *StackEmptyError) Error() string {
	return fmt.Sprintf("stack empty at pc %d", e.PC)
}

type StackOverflowError struct {
	PC int
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("stack overflow at pc %d", e.PC)
}

// UnsupportedError 只终止当前路径
type UnsupportedError struct {
	PC   int
	Op   opcode.OpCode
	Kind UnsupportedKind
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported %s: %s at pc %d", e.Kind, e.Op, e.PC)
}

type InvalidJumpError struct {
	PC   int
	Dest int
}

func (e *InvalidJumpError) Error() string {
	return fmt.Sprintf("invalid jump destination %d at pc %d", e.Dest, e.PC)
}

func IsUnsupported(err error) bool {
	var target *UnsupportedError
	return errors.As(err, &target)
}

// UnsupportedKindOf err不是UnsupportedError时返回false
func UnsupportedKindOf(err error) (UnsupportedKind, bool) {
	var target *UnsupportedError
	if errors.As(err, &target) {
		return target.Kind, true
	}
	return 0, false
}

func IsStackEmpty(err error) bool {
	var target *StackEmptyError
	return errors.As(err, &target)
}

// atPC 给栈错误补上pc，Stack本身不知道当前pc
func atPC(err error, pc int) error {
	var empty *StackEmptyError
	if errors.As(err, &empty) {
		empty.PC = pc
		return err
	}
	var overflow *StackOverflowError
	if errors.As(err, &overflow) {
		overflow.PC = pc
	}
	return err
}

func unsupported(pc int, op opcode.OpCode, kind UnsupportedKind) error {
	return &UnsupportedError{PC: pc, Op: op, Kind: kind}
}
