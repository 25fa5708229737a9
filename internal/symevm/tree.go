package symevm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"symevm/internal/disassembler"
	"symevm/internal/ethereum/state"
	"symevm/internal/opcode"
	"symevm/internal/smt"
)

// Node 状态树的节点
// Left是顺序执行的分支，Right是跳转的分支，没有时为-1
type Node struct {
	ID          int
	State       *state.EvmState
	Condition   *smt.Bool // 父节点到本节点的边条件，根节点和顺序执行的边为nil
	Left        int
	Right       int
	Parent      int
	Instruction *disassembler.Instruction // 在本节点上执行的指令，未执行时为nil
	Err         error
}

func (n *Node) IsLeaf() bool {
	return n.Left < 0 && n.Right < 0
}

// Pending 因为步数限制没有继续执行的节点
func (n *Node) Pending() bool {
	return n.IsLeaf() && n.Err == nil && n.State.CanContinue()
}

// StateTree 只追加的节点数组，id就是下标
type StateTree struct {
	nodes []*Node
}

func newStateTree(root *state.EvmState) *StateTree {
	t := &StateTree{}
	t.add(-1, root, nil)
	return t
}

func (t *StateTree) add(parent int, st *state.EvmState, condition *smt.Bool) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, &Node{
		ID:        id,
		State:     st,
		Condition: condition,
		Left:      -1,
		Right:     -1,
		Parent:    parent,
	})
	return id
}

func (t *StateTree) addLeft(parent int, st *state.EvmState, condition *smt.Bool) int {
	id := t.add(parent, st, condition)
	t.nodes[parent].Left = id
	return id
}

func (t *StateTree) addRight(parent int, st *state.EvmState, condition *smt.Bool) int {
	id := t.add(parent, st, condition)
	t.nodes[parent].Right = id
	return id
}

func (t *StateTree) Root() *Node {
	return t.nodes[0]
}

// Node id不存在时返回nil
func (t *StateTree) Node(id int) *Node {
	if id < 0 || id >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

func (t *StateTree) Len() int {
	return len(t.nodes)
}

// Leaves 按id递增
func (t *StateTree) Leaves() []*Node {
	result := make([]*Node, 0)
	for _, n := range t.nodes {
		if n.IsLeaf() {
			result = append(result, n)
		}
	}
	return result
}

// Depth 根节点为0
func (t *StateTree) Depth(id int) int {
	depth := 0
	for n := t.Node(id); n != nil && n.Parent >= 0; n = t.nodes[n.Parent] {
		depth++
	}
	return depth
}

// FindPaths 从根到每个叶子的路径，左子树在前
func (t *StateTree) FindPaths() []Path {
	var (
		result = make([]Path, 0)
		steps  = make([]PathStep, 0)
		visit  func(id int)
	)
	visit = func(id int) {
		n := t.nodes[id]
		steps = append(steps, PathStep{
			NodeID:      n.ID,
			Instruction: n.Instruction,
			Condition:   n.Condition,
		})
		if n.IsLeaf() {
			path := Path{Steps: make([]PathStep, len(steps)), leaf: n}
			copy(path.Steps, steps)
			result = append(result, path)
		}
		if n.Left >= 0 {
			visit(n.Left)
		}
		if n.Right >= 0 {
			visit(n.Right)
		}
		steps = steps[:len(steps)-1]
	}
	if len(t.nodes) > 0 {
		visit(0)
	}
	return result
}

// PathTo 从根到id的路径，id可以不是叶子
func (t *StateTree) PathTo(id int) (Path, bool) {
	n := t.Node(id)
	if n == nil {
		return Path{}, false
	}
	steps := make([]PathStep, t.Depth(id)+1)
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i] = PathStep{
			NodeID:      n.ID,
			Instruction: n.Instruction,
			Condition:   n.Condition,
		}
		n = t.Node(n.Parent)
	}
	return Path{Steps: steps, leaf: t.nodes[id]}, true
}

type PathStep struct {
	NodeID      int
	Instruction *disassembler.Instruction
	Condition   *smt.Bool
}

// Path 根到叶子
type Path struct {
	Steps []PathStep
	leaf  *Node
}

func (p Path) LeafID() int {
	return p.Steps[len(p.Steps)-1].NodeID
}

func (p Path) Leaf() *Node {
	return p.leaf
}

// Conditions 路径上所有非空的边条件，从根到叶子
func (p Path) Conditions() []*smt.Bool {
	result := make([]*smt.Bool, 0)
	for _, s := range p.Steps {
		if s.Condition != nil {
			result = append(result, s.Condition)
		}
	}
	return result
}

// LeafOp 结束这条路径的指令
// 出错的叶子是出错的指令，执行到代码末尾视为STOP
func (p Path) LeafOp() opcode.OpCode {
	if p.leaf.Err != nil {
		if p.leaf.Instruction != nil {
			return p.leaf.Instruction.Op
		}
		// JUMPI跳转分支的目标无效
		var invalid *state.InvalidJumpError
		if step, ok := p.LastStep(); ok && errors.As(p.leaf.Err, &invalid) {
			return step.Instruction.Op
		}
		return opcode.INVALID
	}
	for i := len(p.Steps) - 1; i >= 0; i-- {
		ins := p.Steps[i].Instruction
		if ins == nil {
			continue
		}
		if !ins.Op.IsDefined() {
			return opcode.INVALID
		}
		if ins.Op.IsHalt() {
			return ins.Op
		}
		break
	}
	return opcode.STOP
}

// LastStep 最后一个执行了指令的节点，停机指令的操作数在它的栈上
func (p Path) LastStep() (PathStep, bool) {
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if p.Steps[i].Instruction != nil {
			return p.Steps[i], true
		}
	}
	return PathStep{}, false
}

// LeafAddress 结束路径的指令的位置
func (p Path) LeafAddress() int {
	if p.leaf.Instruction != nil {
		return p.leaf.Instruction.Address
	}
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if ins := p.Steps[i].Instruction; ins != nil {
			return ins.Address
		}
	}
	return 0
}

func (p Path) String() string {
	parts := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		parts[i] = fmt.Sprint(s.NodeID)
	}
	return strings.Join(parts, "->")
}
