package smt

import (
	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/pkg/errors"
)

// Function 未解释函数 dom1,dom2,dom3... -> rng，宽度单位bit
type Function struct {
	name       string
	domain     []uint32
	valueRange uint32
	raw        yices2.TermT
}

func newFunction(name string, domain []uint32, valueRange uint32) *Function {
	f := &Function{
		name:       name,
		domain:     make([]uint32, len(domain)),
		valueRange: valueRange,
	}
	copy(f.domain, domain)
	dom := make([]yices2.TypeT, len(domain))
	for i := range domain {
		dom[i] = yices2.BvType(domain[i])
	}
	f.raw = yices2.NewUninterpretedTerm(yices2.FunctionType(dom, yices2.BvType(valueRange)))
	yices2.SetTermName(f.raw, name)
	return f
}

func (f *Function) Name() string {
	return f.name
}

func (f *Function) Domain() []uint32 {
	return f.domain
}

func (f *Function) Range() uint32 {
	return f.valueRange
}

func (f *Function) Apply(items ...*BitVec) (*BitVec, error) {
	if len(items) != len(f.domain) {
		return nil, errors.Errorf("%s expects %d arguments, got %d", f.name, len(f.domain), len(items))
	}
	terms := make([]yices2.TermT, len(items))
	for i := range items {
		if items[i].Size() != f.domain[i] {
			return nil, errors.Errorf("%s argument %d: want %d bits, got %d", f.name, i, f.domain[i], items[i].Size())
		}
		terms[i] = items[i].GetRaw()
	}
	return NewBitVecFromTerm(yices2.Application(f.raw, terms)), nil
}

func (f *Function) GetRaw() yices2.TermT {
	return f.raw
}
