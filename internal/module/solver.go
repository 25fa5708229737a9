package module

import (
	"math/big"

	"github.com/pkg/errors"

	"symevm/internal/smt"
)

// solution 一次求解的结果，Values对应solve传入的values
type solution struct {
	Status  smt.Status
	Values  []*big.Int
	Witness map[string]*big.Int
}

func (s *solution) Sat() bool {
	return s.Status == smt.StatusSat
}

// solve 在新的作用域中检查formulas，结束时恢复ctx
func solve(ctx *smt.Context, formulas []*smt.Bool, values ...*smt.BitVec) (result *solution, err error) {
	if err := ctx.Push(); err != nil {
		return nil, errors.Wrap(err, "Push")
	}
	defer func() {
		if popErr := ctx.Pop(); popErr != nil && err == nil {
			result, err = nil, errors.Wrap(popErr, "Pop")
		}
	}()
	if err := ctx.Assert(formulas...); err != nil {
		return nil, errors.Wrap(err, "Assert")
	}
	status, err := ctx.Check()
	if err != nil {
		return nil, errors.Wrap(err, "Check")
	}
	result = &solution{Status: status}
	if status != smt.StatusSat {
		return result, nil
	}
	model, err := ctx.Model()
	if err != nil {
		return nil, errors.Wrap(err, "Model")
	}
	defer model.Close()
	for _, v := range values {
		value, err := model.BitVecValue(v)
		if err != nil {
			return nil, errors.Wrap(err, "BitVecValue")
		}
		result.Values = append(result.Values, value)
	}
	result.Witness = model.Values(ctx.Symbols())
	return result, nil
}
