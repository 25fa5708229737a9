package smt

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
)

const (
	// WordBytes EVM字长 32byte
	WordBytes = 32
	ByteBits  = 8
)

// BitVec 定长的符号字，N byte，底层宽度恒为 N*8 bit
// 除 Simplify 外不可变
type BitVec struct {
	name  string
	value yices2.TermT
}

func bits(bytes int) uint32 {
	return uint32(bytes * ByteBits)
}

func NewBitVecFromTerm(value yices2.TermT) *BitVec {
	if value == yices2.NullTerm {
		panic(fmt.Errorf("null bitvec term: %s", yices2.ErrorString()))
	}
	return &BitVec{value: value}
}

func NewBitVecValInt64(value int64, bytes int) *BitVec {
	return &BitVec{value: yices2.BvconstInt64(bits(bytes), value)}
}

// NewBitVecVal 超出宽度的高位被截断，负数按补码处理
func NewBitVecVal(value *big.Int, bytes int) *BitVec {
	return newBitVecValFromBigInt(value, bits(bytes))
}

// NewBitVecValFromBytes 大端序，宽度等于len(data)
func NewBitVecValFromBytes(data []byte) *BitVec {
	return newBitVecValFromBigInt(new(big.Int).SetBytes(data), bits(len(data)))
}

func NewBitVecValFromUint256(value *uint256.Int) *BitVec {
	return newBitVecValFromBigInt(value.ToBig(), bits(WordBytes))
}

func newBitVecValFromBigInt(value *big.Int, size uint32) *BitVec {
	modulus := new(big.Int).Lsh(big.NewInt(1), uint(size))
	v := new(big.Int).Mod(value, modulus)
	// yices的bit数组是小端序，index 0为最低位
	arr := make([]int32, size)
	for j := 0; j < v.BitLen(); j++ {
		arr[j] = int32(v.Bit(j))
	}
	return &BitVec{value: yices2.BvconstFromArray(arr)}
}

func newBitVec(name string, size uint32) *BitVec {
	term := yices2.NewUninterpretedTerm(yices2.BvType(size))
	if errcode := yices2.SetTermName(term, name); errcode < 0 {
		panic(fmt.Errorf("set term name %s: %s", name, yices2.ErrorString()))
	}
	return &BitVec{name: name, value: term}
}

// FromBytes 拼接若干个1byte的字，第一个为最高位
func FromBytes(parts ...*BitVec) *BitVec {
	if len(parts) == 0 {
		return nil
	}
	if len(parts) == 1 {
		return parts[0]
	}
	terms := make([]yices2.TermT, len(parts))
	for i := range parts {
		terms[i] = parts[i].value
	}
	return NewBitVecFromTerm(yices2.Bvconcat(terms))
}

func (bv *BitVec) GetRaw() yices2.TermT {
	return bv.value
}

func (bv *BitVec) GetName() string {
	return bv.name
}

func (bv *BitVec) Size() uint32 {
	return yices2.TermBitsize(bv.value)
}

// Bytes 字宽，单位byte
func (bv *BitVec) Bytes() int {
	return int(bv.Size() / ByteBits)
}

func (bv *BitVec) IsSymbolic() bool {
	return yices2.TermConstructor(bv.value) != yices2.TrmCnstrBvConstant
}

// Simplify 尝试把term折叠成常量，结果写回自身
// 对已经是常量或含自由变量的term都是幂等的
func (bv *BitVec) Simplify() *BitVec {
	if !bv.IsSymbolic() {
		return bv
	}
	size := bv.Size()
	arr := make([]int32, size)
	for i := uint32(0); i < size; i++ {
		b := yices2.Bitextract(bv.value, i)
		switch b {
		case yices2.True():
			arr[i] = 1
		case yices2.False():
			arr[i] = 0
		default:
			return bv
		}
	}
	bv.value = yices2.BvconstFromArray(arr)
	return bv
}

// BigInt 常量的无符号值，符号term返回false
func (bv *BitVec) BigInt() (*big.Int, bool) {
	simplified := bv.Simplify()
	if simplified.IsSymbolic() {
		return nil, false
	}
	arr := make([]int32, bv.Size())
	if errcode := yices2.BvConstValue(simplified.value, arr); errcode != 0 {
		return nil, false
	}
	result := new(big.Int)
	for i := range arr {
		if arr[i] != 0 {
			result.SetBit(result, i, 1)
		}
	}
	return result, true
}

// AsUint64 常量且不超过64bit时返回true
func (bv *BitVec) AsUint64() (uint64, bool) {
	v, ok := bv.BigInt()
	if !ok || !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

func (bv *BitVec) Uint256() (*uint256.Int, bool) {
	v, ok := bv.BigInt()
	if !ok {
		return nil, false
	}
	u, overflow := uint256.FromBig(v)
	return u, !overflow
}

func (bv *BitVec) String() string {
	if v, ok := bv.BigInt(); ok {
		return fmt.Sprintf("0x%x", v)
	}
	return yices2.TermToString(bv.value, 120, 1, 0)
}

func (bv *BitVec) binop(other *BitVec, op func(a, b yices2.TermT) yices2.TermT) *BitVec {
	if bv.Size() != other.Size() {
		panic(fmt.Errorf("bitvec size mismatch: %d != %d", bv.Size(), other.Size()))
	}
	return NewBitVecFromTerm(op(bv.value, other.value))
}

func (bv *BitVec) cmp(other *BitVec, op func(a, b yices2.TermT) yices2.TermT) *Bool {
	if bv.Size() != other.Size() {
		panic(fmt.Errorf("bitvec size mismatch: %d != %d", bv.Size(), other.Size()))
	}
	return NewBoolFromTerm(op(bv.value, other.value))
}

func (bv *BitVec) Add(other *BitVec) *BitVec  { return bv.binop(other, yices2.Bvadd) }
func (bv *BitVec) Sub(other *BitVec) *BitVec  { return bv.binop(other, yices2.Bvsub) }
func (bv *BitVec) Mul(other *BitVec) *BitVec  { return bv.binop(other, yices2.Bvmul) }
func (bv *BitVec) And(other *BitVec) *BitVec  { return bv.binop(other, yices2.Bvand2) }
func (bv *BitVec) Or(other *BitVec) *BitVec   { return bv.binop(other, yices2.Bvor2) }
func (bv *BitVec) Xor(other *BitVec) *BitVec  { return bv.binop(other, yices2.Bvxor2) }
func (bv *BitVec) Shl(other *BitVec) *BitVec  { return bv.binop(other, yices2.Bvshl) }
func (bv *BitVec) Shr(other *BitVec) *BitVec  { return bv.binop(other, yices2.Bvlshr) }
func (bv *BitVec) AShr(other *BitVec) *BitVec { return bv.binop(other, yices2.Bvashr) }

// UDiv/SDiv/URem/SRem 是SMT-LIB语义，除数为0的情况由调用方处理
func (bv *BitVec) UDiv(other *BitVec) *BitVec { return bv.binop(other, yices2.Bvdiv) }
func (bv *BitVec) SDiv(other *BitVec) *BitVec { return bv.binop(other, yices2.Bvsdiv) }
func (bv *BitVec) URem(other *BitVec) *BitVec { return bv.binop(other, yices2.Bvrem) }
func (bv *BitVec) SRem(other *BitVec) *BitVec { return bv.binop(other, yices2.Bvsrem) }

func (bv *BitVec) Not() *BitVec {
	return NewBitVecFromTerm(yices2.Bvnot(bv.value))
}

// Bvs{xxxx} 有符号
// Bv{xxxx} 无符号
func (bv *BitVec) Ult(other *BitVec) *Bool { return bv.cmp(other, yices2.BvltAtom) }
func (bv *BitVec) Ugt(other *BitVec) *Bool { return bv.cmp(other, yices2.BvgtAtom) }
func (bv *BitVec) Ule(other *BitVec) *Bool { return bv.cmp(other, yices2.BvleAtom) }
func (bv *BitVec) Uge(other *BitVec) *Bool { return bv.cmp(other, yices2.BvgeAtom) }
func (bv *BitVec) Slt(other *BitVec) *Bool { return bv.cmp(other, yices2.BvsltAtom) }
func (bv *BitVec) Sgt(other *BitVec) *Bool { return bv.cmp(other, yices2.BvsgtAtom) }
func (bv *BitVec) Eq(other *BitVec) *Bool  { return bv.cmp(other, yices2.BveqAtom) }
func (bv *BitVec) Ne(other *BitVec) *Bool  { return bv.cmp(other, yices2.BvneqAtom) }

// IsZero bv == 0
func (bv *BitVec) IsZero() *Bool {
	return bv.Eq(NewBitVecValInt64(0, bv.Bytes()))
}

// Concat 结果宽度是两者之和，bv在高位
func (bv *BitVec) Concat(other *BitVec) *BitVec {
	return NewBitVecFromTerm(yices2.Bvconcat2(bv.value, other.value))
}

// Extract 取[lo, hi]区间的bit，包含两端
func (bv *BitVec) Extract(hi, lo uint32) *BitVec {
	return NewBitVecFromTerm(yices2.Bvextract(bv.value, lo, hi))
}

// ToBytes 拆成N个1byte的字，大端序
func (bv *BitVec) ToBytes() []*BitVec {
	n := bv.Bytes()
	result := make([]*BitVec, n)
	for i := 0; i < n; i++ {
		hi := bv.Size() - 1 - uint32(i)*ByteBits
		result[i] = bv.Extract(hi, hi-ByteBits+1)
	}
	return result
}

// ZeroExt 高位补0直到宽度为bytes
func (bv *BitVec) ZeroExt(bytes int) *BitVec {
	if bytes <= bv.Bytes() {
		return bv
	}
	return NewBitVecValInt64(0, bytes-bv.Bytes()).Concat(bv)
}

// SignExt 高位按符号位扩展直到宽度为bytes
func (bv *BitVec) SignExt(bytes int) *BitVec {
	if bytes <= bv.Bytes() {
		return bv
	}
	pad := bytes - bv.Bytes()
	sign := yices2.Bitextract(bv.value, bv.Size()-1)
	ones := NewBitVecValInt64(-1, pad)
	zeros := NewBitVecValInt64(0, pad)
	high := NewBitVecFromTerm(yices2.Ite(sign, ones.value, zeros.value))
	return high.Concat(bv)
}

// Resize 截断或零扩展到bytes
func (bv *BitVec) Resize(bytes int) *BitVec {
	if bytes < bv.Bytes() {
		return bv.Extract(bits(bytes)-1, 0)
	}
	return bv.ZeroExt(bytes)
}
