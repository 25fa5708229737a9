package state

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"symevm/internal/smt"
)

// MaxMemorySize 单个状态允许写入的最大内存，超过视为不支持
const MaxMemorySize = 1 << 24

// Memory 内存
// EVM的内存操作单元32byte，大端序
// 这里连续的内存最小为1byte，使用8bits的bitvec模拟1byte
// highestIdx是逻辑上被访问过的大小，向上取整到32byte，MSIZE读取它
type Memory struct {
	memory     []*smt.BitVec
	highestIdx int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Len() int {
	return len(m.memory)
}

func (m *Memory) HighestIdx() int {
	return m.highestIdx
}

// Clone BitVec除Simplify外不可变，共享元素是安全的
func (m *Memory) Clone() *Memory {
	result := &Memory{
		memory:     make([]*smt.BitVec, len(m.memory)),
		highestIdx: m.highestIdx,
	}
	copy(result.memory, m.memory)
	return result
}

// Ceil32 向上取整到32的倍数
func Ceil32(n int) int {
	return (n + 31) / 32 * 32
}

// touch 访问[idx, idx+size)之后更新highestIdx
func (m *Memory) touch(idx, size int) {
	if size <= 0 {
		return
	}
	if end := Ceil32(idx + size); end > m.highestIdx {
		m.highestIdx = end
	}
}

// zeroByte yices的term在Exit之后失效，不能缓存在包级变量里
func zeroByte() *smt.BitVec {
	return smt.NewBitVecValInt64(0, 1)
}

func (m *Memory) extend(end int) {
	for len(m.memory) < end {
		m.memory = append(m.memory, zeroByte())
	}
}

func checkRange(idx, size int) error {
	if idx < 0 || size < 0 || idx+size > MaxMemorySize {
		return errors.Errorf("memory range [%d, %d) out of bounds", idx, idx+size)
	}
	return nil
}

// ReadByte 未写过的位置为0
func (m *Memory) ReadByte(idx int) *smt.BitVec {
	if idx < 0 || idx >= len(m.memory) {
		return zeroByte()
	}
	return m.memory[idx]
}

// ReadRange [idx, idx+size)的字节
func (m *Memory) ReadRange(idx, size int) []*smt.BitVec {
	result := make([]*smt.BitVec, size)
	for i := 0; i < size; i++ {
		result[i] = m.ReadByte(idx + i)
	}
	return result
}

// ReadWord 返回idx处长度为32byte的word，大端序
func (m *Memory) ReadWord(idx int) *smt.BitVec {
	return smt.FromBytes(m.ReadRange(idx, smt.WordBytes)...)
}

func (m *Memory) WriteByte(idx int, value *smt.BitVec) error {
	if value.Bytes() != 1 {
		return errors.Errorf("wrong value size: %d", value.Size())
	}
	if err := checkRange(idx, 1); err != nil {
		return err
	}
	m.extend(idx + 1)
	m.memory[idx] = value
	return nil
}

// WriteWord 依次将数据放到连续的32个byte里，大端序
func (m *Memory) WriteWord(idx int, value *smt.BitVec) error {
	if value.Bytes() != smt.WordBytes {
		return errors.Errorf("wrong value size: %d", value.Size())
	}
	if err := checkRange(idx, smt.WordBytes); err != nil {
		return err
	}
	m.extend(idx + smt.WordBytes)
	for i, b := range value.ToBytes() {
		m.memory[idx+i] = b.Simplify()
	}
	return nil
}

// ApplyChange 写入的同时维护highestIdx
func (m *Memory) ApplyChange(change *MemChange) error {
	for _, op := range change.Ops {
		switch op.Kind {
		case MemRead:
			m.touch(op.Idx, op.Size)
		case MemWrite:
			if err := m.WriteWord(op.Idx, op.Value); err != nil {
				return errors.Wrap(err, "mem write")
			}
			m.touch(op.Idx, smt.WordBytes)
		case MemWriteByte:
			if err := m.WriteByte(op.Idx, op.Value); err != nil {
				return errors.Wrap(err, "mem write byte")
			}
			m.touch(op.Idx, 1)
		default:
			return errors.Errorf("unknown mem op %d", op.Kind)
		}
	}
	return nil
}

func (m *Memory) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Memory: size %d highest index %d\n", len(m.memory), m.highestIdx)
	for i := 0; i < len(m.memory); i += smt.WordBytes {
		fmt.Fprintf(&builder, "%04x: %s\n", i, m.ReadWord(i))
	}
	return builder.String()
}
