package disassembler

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"symevm/internal/opcode"
)

const noInstruction = -1

// Program 解码后的合约代码，执行期间只读，所有状态共享同一个
type Program struct {
	bytecode          []byte
	instructions      []Instruction
	offsets           []int // 字节偏移 -> instructions下标，PUSH的数据字节为noInstruction
	funcHashes        []string
	funcNameToAddress map[string]int
	funcAddressToName map[int]string
}

// NewProgram 解码16进制字节码
func NewProgram(code string) (*Program, error) {
	bytecode, err := decodeHex(code)
	if err != nil {
		return nil, errors.Wrap(err, "NewProgram")
	}
	return NewProgramFromBytes(bytecode), nil
}

func NewProgramFromBytes(bytecode []byte) *Program {
	p := &Program{
		bytecode:          make([]byte, len(bytecode)),
		funcNameToAddress: make(map[string]int),
		funcAddressToName: make(map[int]string),
	}
	copy(p.bytecode, bytecode)
	p.instructions = disassemble(p.bytecode)
	p.offsets = make([]int, len(p.bytecode))
	for i := range p.offsets {
		p.offsets[i] = noInstruction
	}
	for i := range p.instructions {
		p.offsets[p.instructions[i].Address] = i
	}
	p.scanFunctions()
	log.Debugf("decoded %d bytes into %d instructions, %d functions",
		len(p.bytecode), len(p.instructions), len(p.funcHashes))
	return p
}

// scanFunctions 从分发表 PUSH4 selector, EQ, PUSH2 dest, JUMPI 中提取函数入口
func (p *Program) scanFunctions() {
	patterns := [][]opcode.OpCode{
		{opcode.PUSH1, opcode.PUSH1 + 1, opcode.PUSH1 + 2, opcode.PUSH1 + 3},
		{opcode.EQ},
	}
	for _, index := range FindOPCodeSequence(patterns, p.instructions) {
		functionHash, jumpTarget, functionName := getFunctionInfo(index, p.instructions)
		p.funcHashes = append(p.funcHashes, functionHash)
		if jumpTarget != 0 && functionName != "" {
			p.funcNameToAddress[functionName] = jumpTarget
			p.funcAddressToName[jumpTarget] = functionName
		}
	}
}

func getFunctionInfo(index int, instructions []Instruction) (string, int, string) {
	var (
		funcHash = instructions[index].FormatArgument()
		funcName = "_function_" + funcHash
	)
	if index+2 >= len(instructions) || !instructions[index+2].Op.IsPush() {
		return funcHash, 0, ""
	}
	entryPoint, err := strconv.ParseInt(strings.TrimPrefix(instructions[index+2].FormatArgument(), "0x"), 16, 64)
	if err != nil {
		log.Debugf("function entry of %s: %v", funcHash, err)
		return funcHash, 0, ""
	}
	return funcHash, int(entryPoint), funcName
}

// Size 字节长度，pc >= Size 即停机
func (p *Program) Size() int {
	return len(p.bytecode)
}

// Bytes 原始字节码，CODECOPY使用，调用方不能修改
func (p *Program) Bytes() []byte {
	return p.bytecode
}

func (p *Program) GetBytecode() string {
	return hex.EncodeToString(p.bytecode)
}

func (p *Program) Instructions() []Instruction {
	return p.instructions
}

// InstructionAt pc不是某条指令的起始字节时返回false
func (p *Program) InstructionAt(pc int) (*Instruction, bool) {
	if pc < 0 || pc >= len(p.offsets) || p.offsets[pc] == noInstruction {
		return nil, false
	}
	return &p.instructions[p.offsets[pc]], true
}

func (p *Program) IsJumpDest(pc int) bool {
	ins, ok := p.InstructionAt(pc)
	return ok && ins.Op == opcode.JUMPDEST
}

func (p *Program) GetEASM() string {
	return instructionListToEASM(p.instructions)
}

func (p *Program) FunctionHashes() []string {
	return p.funcHashes
}

func (p *Program) FunctionName(address int) (string, bool) {
	name, ok := p.funcAddressToName[address]
	return name, ok
}

func (p *Program) FunctionEntry(name string) (int, bool) {
	address, ok := p.funcNameToAddress[name]
	return address, ok
}
