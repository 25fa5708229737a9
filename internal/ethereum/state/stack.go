package state

import (
	"github.com/pkg/errors"

	"symevm/internal/smt"
)

const STACK_SIZE = 1024

// Stack 32byte字的栈，items[len-1]为栈顶
type Stack struct {
	items []*smt.BitVec
}

func NewStack() *Stack {
	return &Stack{
		items: make([]*smt.BitVec, 0, 16),
	}
}

func (s *Stack) Len() int {
	return len(s.items)
}

func (s *Stack) Push(element *smt.BitVec) error {
	if len(s.items) >= STACK_SIZE {
		return &StackOverflowError{}
	}
	if element.Bytes() != smt.WordBytes {
		return errors.Errorf("push %d byte word", element.Bytes())
	}
	s.items = append(s.items, element)
	return nil
}

func (s *Stack) Pop() (*smt.BitVec, error) {
	if len(s.items) == 0 {
		return nil, &StackEmptyError{}
	}
	top := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return top, nil
}

// PeekNth 0为栈顶
func (s *Stack) PeekNth(n int) (*smt.BitVec, error) {
	if n < 0 || n >= len(s.items) {
		return nil, &StackEmptyError{}
	}
	return s.items[len(s.items)-1-n], nil
}

// PeekTop 栈顶的k个元素，result[0]为栈顶
func (s *Stack) PeekTop(k int) ([]*smt.BitVec, error) {
	if k > len(s.items) {
		return nil, &StackEmptyError{}
	}
	result := make([]*smt.BitVec, k)
	for i := 0; i < k; i++ {
		result[i] = s.items[len(s.items)-1-i]
	}
	return result, nil
}

// SwapAt 交换栈顶和第n个元素，SWAP1对应n=1
func (s *Stack) SwapAt(n int) error {
	if n < 1 || n >= len(s.items) {
		return &StackEmptyError{}
	}
	var (
		// 栈顶
		a = len(s.items) - 1

		// 第n个元素
		b = len(s.items) - 1 - n
	)
	s.items[a], s.items[b] = s.items[b], s.items[a]
	return nil
}

// Items 从栈底到栈顶的拷贝
func (s *Stack) Items() []*smt.BitVec {
	result := make([]*smt.BitVec, len(s.items))
	copy(result, s.items)
	return result
}

func (s *Stack) Clone() *Stack {
	result := &Stack{
		items: make([]*smt.BitVec, len(s.items), cap(s.items)),
	}
	copy(result.items, s.items)
	return result
}

// ApplyChange 失败时栈保持不变
func (s *Stack) ApplyChange(change *StackChange) error {
	next := s.Clone()
	for _, op := range change.Ops {
		var err error
		switch op.Kind {
		case StackPop:
			_, err = next.Pop()
		case StackPush:
			err = next.Push(op.Word)
		case StackSwap:
			err = next.SwapAt(op.Depth)
		default:
			err = errors.Errorf("unknown stack op %d", op.Kind)
		}
		if err != nil {
			return err
		}
	}
	s.items = next.items
	return nil
}
