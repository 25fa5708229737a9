package smt

import (
	"fmt"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
)

type Bool struct {
	value yices2.TermT
}

func NewBoolVal(value bool) *Bool {
	if value {
		return &Bool{value: yices2.True()}
	}
	return &Bool{value: yices2.False()}
}

func NewBoolFromTerm(term yices2.TermT) *Bool {
	if term == yices2.NullTerm {
		panic(fmt.Errorf("null bool term: %s", yices2.ErrorString()))
	}
	return &Bool{value: term}
}

func (b *Bool) GetRaw() yices2.TermT {
	return b.value
}

func (b *Bool) Not() *Bool {
	return NewBoolFromTerm(yices2.Not(b.value))
}

func (b *Bool) And(other *Bool) *Bool {
	return NewBoolFromTerm(yices2.And2(b.value, other.value))
}

func (b *Bool) Or(other *Bool) *Bool {
	return NewBoolFromTerm(yices2.Or2(b.value, other.value))
}

// Ite b ? then : els
func (b *Bool) Ite(then, els *BitVec) *BitVec {
	return NewBitVecFromTerm(yices2.Ite(b.value, then.value, els.value))
}

// AsWord 转成32byte的整型，true为1，false为0
func (b *Bool) AsWord() *BitVec {
	return b.Ite(NewBitVecValInt64(1, WordBytes), NewBitVecValInt64(0, WordBytes))
}

func (b *Bool) IsSymbolic() bool {
	return yices2.TermConstructor(b.value) != yices2.TrmCnstrBoolConstant
}

func (b *Bool) IsTrue() bool {
	return b.value == yices2.True()
}

func (b *Bool) IsFalse() bool {
	return b.value == yices2.False()
}

// Equal 结构相等，yices的term是hash-consed的
func (b *Bool) Equal(other *Bool) bool {
	return other != nil && b.value == other.value
}

func (b *Bool) String() string {
	return yices2.TermToString(b.value, 120, 1, 0)
}
