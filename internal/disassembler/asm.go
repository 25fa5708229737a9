package disassembler

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"symevm/internal/opcode"
	"symevm/internal/smt"
)

// Instruction 解码后的一条指令
// PUSHn的立即数同时保存为原始字节和n byte的符号字
type Instruction struct {
	Address  int           // 字节偏移
	Op       opcode.OpCode // OPCode
	Argument []byte        // PUSH指令参数，长度不足时补0
	Push     *smt.BitVec   // Argument对应的字，宽度为n byte
}

// ByteSize 编码长度，PUSHn为1+n
func (ins *Instruction) ByteSize() int {
	return 1 + ins.Op.PushBytes()
}

func (ins *Instruction) String() string {
	var builder strings.Builder
	builder.WriteString(strconv.Itoa(ins.Address))
	builder.WriteString(" ")
	builder.WriteString(ins.Op.String())
	if len(ins.Argument) > 0 {
		builder.WriteString(" ")
		builder.WriteString("0x" + hex.EncodeToString(ins.Argument))
	}
	return builder.String()
}

// FormatArgument 将argument格式化成16进制的字符串
// 格式化之后的长度至少是8，不足补0
// 如[0x1,0x2]格式化之后为0x00000102
func (ins *Instruction) FormatArgument() string {
	if len(ins.Argument) <= 0 {
		return ""
	}
	data := hex.EncodeToString(ins.Argument)
	if len(data) < 8 {
		return "0x" + strings.Repeat("0", 8-len(data)) + data
	}
	return "0x" + data
}

func instructionListToEASM(instructions []Instruction) string {
	var builder strings.Builder
	for i := range instructions {
		builder.WriteString(instructions[i].String())
		builder.WriteString("\n")
	}
	return builder.String()
}

// patterns从0开始，instructions从index开始，依次匹配
func isSequenceMatch(patterns [][]opcode.OpCode, instructions []Instruction, index int) bool {
	for i, pattern := range patterns {
		if index+i >= len(instructions) {
			return false
		}
		var foundOPCode bool
		for _, p := range pattern {
			if instructions[index+i].Op == p {
				foundOPCode = true
				break
			}
		}
		if !foundOPCode {
			return false
		}
	}
	return true
}

func FindOPCodeSequence(patterns [][]opcode.OpCode, instructions []Instruction) []int {
	result := make([]int, 0)
	for i := 0; i < len(instructions)-len(patterns)+1; i++ {
		if isSequenceMatch(patterns, instructions, i) {
			result = append(result, i)
		}
	}
	return result
}

// decodeHex 支持可选的0x前缀和首尾空白
func decodeHex(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "0x") && !strings.HasPrefix(data, "0X") {
		data = "0x" + data
	}
	bytecode, err := hexutil.Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode hex")
	}
	return bytecode, nil
}

// disassemble 解码code为Instruction
// 跳过PUSH的立即数；未定义的字节解码为INVALID，仍占1 byte
func disassemble(bytecode []byte) []Instruction {
	var (
		instructions = make([]Instruction, 0, len(bytecode))
		address      int
	)
	for address < len(bytecode) {
		op := opcode.OpCode(bytecode[address])
		ins := Instruction{
			Address: address,
			Op:      op,
		}
		if n := op.PushBytes(); n > 0 {
			ins.Argument = getPUSHArguments(n, bytecode, address)
			ins.Push = smt.NewBitVecValFromBytes(ins.Argument)
		}
		instructions = append(instructions, ins)
		address += ins.ByteSize()
	}
	return instructions
}

// getPUSHArguments 获取PUSH指令的参数
// PUSH指令处理 eg.
// PUSH1 0x80
// PUSH21 0x11B464736F6C634300081100330000000000000000
// 字节码被截断时，缺少的部分补0
func getPUSHArguments(n int, bytecode []byte, address int) []byte {
	arguments := make([]byte, n)
	start := address + 1
	if start < len(bytecode) {
		copy(arguments, bytecode[start:])
	}
	return arguments
}
