package state

import (
	"strings"

	"github.com/pkg/errors"

	"symevm/internal/smt"
)

// Constraints 一条路径上的条件，按出现的先后顺序
type Constraints struct {
	items []*smt.Bool
}

// NewConstraints nil会被跳过
func NewConstraints(items ...*smt.Bool) *Constraints {
	c := &Constraints{}
	c.Append(items...)
	return c
}

func (c *Constraints) Append(items ...*smt.Bool) {
	for _, item := range items {
		if item != nil {
			c.items = append(c.items, item)
		}
	}
}

func (c *Constraints) Len() int {
	return len(c.items)
}

func (c *Constraints) Items() []*smt.Bool {
	result := make([]*smt.Bool, len(c.items))
	copy(result, c.items)
	return result
}

func (c *Constraints) Clone() *Constraints {
	return NewConstraints(c.items...)
}

// Conjunction 所有条件的与，空时为true
func (c *Constraints) Conjunction() *smt.Bool {
	result := smt.NewBoolVal(true)
	for _, item := range c.items {
		result = result.And(item)
	}
	return result
}

// IsPossible 在ctx的一个新scope里检查，检查结束后恢复ctx
// 常量false直接返回，不调用求解器
func (c *Constraints) IsPossible(ctx *smt.Context, assumptions ...*smt.Bool) (bool, error) {
	for _, item := range c.items {
		if item.IsFalse() {
			return false, nil
		}
	}
	if err := ctx.Push(); err != nil {
		return false, err
	}
	defer ctx.Pop()
	if err := ctx.Assert(assumptions...); err != nil {
		return false, err
	}
	if err := ctx.Assert(c.items...); err != nil {
		return false, err
	}
	status, err := ctx.Check()
	if err != nil {
		return false, errors.Wrap(err, "IsPossible")
	}
	return status != smt.StatusUnsat, nil
}

func (c *Constraints) String() string {
	parts := make([]string, len(c.items))
	for i, item := range c.items {
		parts[i] = item.String()
	}
	return strings.Join(parts, " && ")
}
