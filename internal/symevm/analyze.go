// Package symevm 符号执行引擎：展开状态树，然后检查每条路径是否可达
package symevm

import (
	"github.com/pkg/errors"

	"symevm/internal/disassembler"
	"symevm/internal/ethereum/state"
	"symevm/internal/smt"
)

// Analyze 执行并检查
// ctx只能被这一次分析使用，调用方负责yices2.Init和ctx.Close
func Analyze(ctx *smt.Context, program *disassembler.Program, env *state.Environment, opts ...Option) (*StateTree, *Report, error) {
	executor := NewExecutor(ctx, program, env, opts...)
	tree, err := executor.Run()
	if err != nil {
		return tree, nil, errors.Wrap(err, "execute")
	}
	report, err := NewChecker(ctx, opts...).Check(tree)
	if err != nil {
		return tree, nil, errors.Wrap(err, "check")
	}
	report.Steps = executor.Steps()
	report.Truncated = executor.Truncated()
	return tree, report, nil
}
