package smt

import (
	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/pkg/errors"
)

// Yices的Array可以通过function实现
// Array bv256 -> bv{rng}，Set返回新的数组，原数组不变
type Array struct {
	name string
	rng  uint32
	term yices2.TermT
}

func newArray(name string, rng uint32) *Array {
	funcType := yices2.FunctionType1(yices2.BvType(bits(WordBytes)), yices2.BvType(rng))
	term := yices2.NewUninterpretedTerm(funcType)
	yices2.SetTermName(term, name)
	return &Array{
		name: name,
		rng:  rng,
		term: term,
	}
}

func (array *Array) Name() string {
	return array.name
}

func (array *Array) GetRange() uint32 {
	return array.rng
}

func (array *Array) GetRaw() yices2.TermT {
	return array.term
}

func (array *Array) Get(index *BitVec) (*BitVec, error) {
	term := yices2.Application1(array.term, index.GetRaw())
	if term == yices2.NullTerm {
		return nil, errors.Errorf("array %s get: %s", array.name, yices2.ErrorString())
	}
	return NewBitVecFromTerm(term), nil
}

func (array *Array) Set(index, value *BitVec) (*Array, error) {
	term := yices2.Update1(array.term, index.GetRaw(), value.GetRaw())
	if term == yices2.NullTerm {
		return nil, errors.Errorf("array %s set: %s", array.name, yices2.ErrorString())
	}
	return &Array{
		name: array.name,
		rng:  array.rng,
		term: term,
	}, nil
}
