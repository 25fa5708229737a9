package smt

import (
	"fmt"
	"sort"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/pkg/errors"
)

type Status int

const (
	StatusSat Status = iota
	StatusUnsat
	StatusUnknown
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSat:
		return "sat"
	case StatusUnsat:
		return "unsat"
	case StatusUnknown:
		return "unknown"
	default:
		return "error"
	}
}

// Context 一次分析独占的求解上下文
// 新符号、未解释函数的创建以及assert/check都经过这里，不能被多个goroutine同时使用
type Context struct {
	cfg     yices2.ConfigT
	ctx     yices2.ContextT
	names   map[string]int
	symbols []*BitVec
	level   int
	closed  bool
}

// NewContext 调用前需要先 yices2.Init()
func NewContext() *Context {
	c := &Context{
		names: make(map[string]int),
	}
	yices2.InitConfig(&c.cfg)
	yices2.InitContext(c.cfg, &c.ctx)
	return c
}

func (c *Context) Close() {
	if c.closed {
		return
	}
	yices2.CloseContext(&c.ctx)
	yices2.CloseConfig(&c.cfg)
	c.closed = true
}

// FreshName prefix第一次出现时原样返回，之后加上序号
func (c *Context) FreshName(prefix string) string {
	n := c.names[prefix]
	c.names[prefix] = n + 1
	if n == 0 {
		return prefix
	}
	return fmt.Sprintf("%s_%d", prefix, n)
}

// NewBitVec 新建一个自由的符号字，名字在本context内唯一
func (c *Context) NewBitVec(name string, bytes int) *BitVec {
	bv := newBitVec(c.FreshName(name), bits(bytes))
	c.symbols = append(c.symbols, bv)
	return bv
}

// NewFunction 新建未解释函数，domain/rng单位bit
func (c *Context) NewFunction(name string, domain []uint32, rng uint32) *Function {
	return newFunction(c.FreshName(name), domain, rng)
}

func (c *Context) NewArray(name string, rng uint32) *Array {
	return newArray(c.FreshName(name), rng)
}

// Symbols 由本context创建的所有符号常量，按名字排序
func (c *Context) Symbols() []*BitVec {
	result := make([]*BitVec, len(c.symbols))
	copy(result, c.symbols)
	sort.Slice(result, func(i, j int) bool {
		return result[i].name < result[j].name
	})
	return result
}

func (c *Context) Level() int {
	return c.level
}

func (c *Context) Push() error {
	if errcode := yices2.Push(c.ctx); errcode < 0 {
		return errors.Errorf("push: %s", yices2.ErrorString())
	}
	c.level++
	return nil
}

func (c *Context) Pop() error {
	if c.level == 0 {
		return errors.New("pop: no open scope")
	}
	if errcode := yices2.Pop(c.ctx); errcode < 0 {
		return errors.Errorf("pop: %s", yices2.ErrorString())
	}
	c.level--
	return nil
}

func (c *Context) Assert(formulas ...*Bool) error {
	for _, f := range formulas {
		if f == nil {
			continue
		}
		if errcode := yices2.AssertFormula(c.ctx, f.GetRaw()); errcode < 0 {
			return errors.Errorf("assert %s: %s", f.String(), yices2.ErrorString())
		}
	}
	return nil
}

func (c *Context) Check() (Status, error) {
	status := yices2.CheckContext(c.ctx, yices2.ParamT{})
	switch status {
	case yices2.StatusSat:
		return StatusSat, nil
	case yices2.StatusUnsat:
		return StatusUnsat, nil
	case yices2.StatusError:
		return StatusError, errors.Errorf("check: %s", yices2.ErrorString())
	default:
		return StatusUnknown, nil
	}
}

// Model 只在Check返回Sat之后有效，用完需要Close
func (c *Context) Model() (*Model, error) {
	model := yices2.GetModel(c.ctx, 1)
	if model == nil {
		return nil, errors.Errorf("get model: %s", yices2.ErrorString())
	}
	return &Model{raw: model}, nil
}
