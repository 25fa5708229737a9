package symevm

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"symevm/internal/disassembler"
	"symevm/internal/ethereum/state"
	"symevm/internal/smt"
	"symevm/internal/strategy"
)

type settings struct {
	maxSteps    int
	strategy    strategy.Strategy
	assumptions []*smt.Bool
}

type Option func(*settings)

// WithMaxSteps 最多执行n条指令，0表示不限制
func WithMaxSteps(n int) Option {
	return func(s *settings) {
		s.maxSteps = n
	}
}

func WithStrategy(st strategy.Strategy) Option {
	return func(s *settings) {
		s.strategy = st
	}
}

// WithAssumptions 检查每条路径时额外加入的条件
func WithAssumptions(assumptions ...*smt.Bool) Option {
	return func(s *settings) {
		s.assumptions = append(s.assumptions, assumptions...)
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.strategy == nil {
		s.strategy = strategy.NewDFS()
	}
	return s
}

// Executor 从pc 0开始展开状态树
type Executor struct {
	ctx     *smt.Context
	program *disassembler.Program
	env     *state.Environment

	maxSteps  int
	strategy  strategy.Strategy
	steps     int
	truncated bool
	tree      *StateTree
}

func NewExecutor(ctx *smt.Context, program *disassembler.Program, env *state.Environment, opts ...Option) *Executor {
	s := newSettings(opts)
	return &Executor{
		ctx:      ctx,
		program:  program,
		env:      env,
		maxSteps: s.maxSteps,
		strategy: s.strategy,
	}
}

func (e *Executor) Steps() int {
	return e.steps
}

// Truncated 因为步数限制提前结束
func (e *Executor) Truncated() bool {
	return e.truncated
}

// Run 节点出错不会中断执行，错误保存在节点上
func (e *Executor) Run() (*StateTree, error) {
	if e.tree != nil {
		return nil, errors.New("executor already ran")
	}
	log.Infof("symbolic execution start: code size %d", e.program.Size())
	startTime := time.Now()

	e.tree = newStateTree(state.NewEvmState(e.program, e.env.GetAddress()))
	if err := e.strategy.Push(e.continuable([]int{e.tree.Root().ID})...); err != nil {
		return nil, errors.Wrap(err, "Push")
	}
	for e.strategy.HasNext() {
		if e.maxSteps > 0 && e.steps >= e.maxSteps {
			e.truncated = true
			log.Warnf("step limit %d reached, %d states left", e.maxSteps, e.strategy.Size())
			break
		}
		id, err := e.strategy.Pop()
		if err != nil {
			return e.tree, errors.Wrap(err, "Pop")
		}
		if err := e.strategy.Push(e.continuable(e.step(e.tree.Node(id)))...); err != nil {
			return e.tree, errors.Wrap(err, "Push")
		}
	}

	log.Infof("symbolic execution done: nodes %d leaves %d steps %d", e.tree.Len(), len(e.tree.Leaves()), e.steps)
	log.Infof("execute time used: %.3fs", time.Since(startTime).Seconds())
	return e.tree, nil
}

// step 执行节点上的一条指令，返回需要继续处理的子节点
// 分叉时先压入跳转分支，深度优先时先处理顺序执行的分支
func (e *Executor) step(node *Node) []int {
	st := node.State
	if !st.CanContinue() {
		return nil
	}
	ins, err := st.CurrentInstruction()
	if err != nil {
		e.fail(node, err)
		return nil
	}
	node.Instruction = ins
	e.steps++
	log.Debugf("step %d: node %d pc %d %s", e.steps, node.ID, st.PC(), ins.Op)

	rec, err := state.Exec(ins, st, e.env)
	if err != nil {
		e.fail(node, err)
		return nil
	}

	if rec.Constraint == nil {
		left, err := e.child(node, rec, rec.PC[1], nil, false)
		if err != nil {
			e.fail(node, err)
			return nil
		}
		return []int{left}
	}

	left, err := e.child(node, rec, rec.PC[0]+ins.ByteSize(), rec.Constraint.Not(), false)
	if err != nil {
		e.fail(node, err)
		return nil
	}
	right, err := e.child(node, rec, rec.PC[1], rec.Constraint, true)
	if err != nil {
		e.fail(node, err)
		return nil
	}
	if rec.JumpErr != nil {
		e.fail(e.tree.Node(right), rec.JumpErr)
	}
	log.Debugf("fork at pc %d: node %d -> %d, %d", rec.PC[0], node.ID, left, right)
	return []int{right, left}
}

// continuable 停机和出错的子节点已经是叶子，不进入worklist
func (e *Executor) continuable(ids []int) []int {
	result := ids[:0]
	for _, id := range ids {
		if e.tree.Node(id).State.CanContinue() {
			result = append(result, id)
		}
	}
	return result
}

func (e *Executor) child(parent *Node, rec *state.MachineRecord, pc int, condition *smt.Bool, right bool) (int, error) {
	st := parent.State.Clone()
	next := *rec
	next.PC = [2]int{rec.PC[0], pc}
	if err := st.ApplyChange(&next); err != nil {
		return -1, err
	}
	if right {
		return e.tree.addRight(parent.ID, st, condition), nil
	}
	return e.tree.addLeft(parent.ID, st, condition), nil
}

func (e *Executor) fail(node *Node, err error) {
	node.Err = err
	node.State.Error = err
	if state.IsUnsupported(err) {
		log.Warnf("node %d pc %d: %v", node.ID, node.State.PC(), err)
		return
	}
	log.Errorf("node %d pc %d: %v", node.ID, node.State.PC(), err)
}
