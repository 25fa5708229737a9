package smt

import (
	"math/big"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/pkg/errors"
)

type Model struct {
	raw *yices2.ModelT
}

func (m *Model) String() string {
	return yices2.ModelToString(*m.raw, 120, 200, 0)
}

// BitVecValue 模型中bv的取值，bv未出现在模型中时返回错误
func (m *Model) BitVecValue(bv *BitVec) (*big.Int, error) {
	val := make([]int32, bv.Size())
	if errcode := yices2.GetBvValue(*m.raw, bv.GetRaw(), val); errcode != 0 {
		return nil, errors.Errorf("get value of %s: %s", bv.GetName(), yices2.ErrorString())
	}
	result := new(big.Int)
	for i := range val {
		if val[i] != 0 {
			result.SetBit(result, i, 1)
		}
	}
	return result, nil
}

// Values 给定符号在模型中的取值，取不到的跳过
func (m *Model) Values(symbols []*BitVec) map[string]*big.Int {
	result := make(map[string]*big.Int, len(symbols))
	for _, s := range symbols {
		v, err := m.BitVecValue(s)
		if err != nil {
			continue
		}
		result[s.GetName()] = v
	}
	return result
}

func (m *Model) Close() {
	if m.raw != nil {
		yices2.CloseModel(m.raw)
		m.raw = nil
	}
}
