package solidity

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"symevm/internal/disassembler"
	"symevm/internal/util"
)

const (
	ContractAddressPattern = `(_{2}.{38})`
)

var regCode = regexp.MustCompile(ContractAddressPattern)

// EVMContract 一个合约的creation和runtime代码
// 解码会创建smt常量，需要在yices2.Init之后调用
type EVMContract struct {
	Name string

	Code        string
	Disassembly *disassembler.Program

	CreationCode        string
	CreationDisassembly *disassembler.Program
}

func NewEVMContract(code, creationCode, name string) (*EVMContract, error) {
	c := &EVMContract{
		Name:         name,
		Code:         replaceAddress(code),
		CreationCode: replaceAddress(creationCode),
	}
	var err error
	c.Disassembly, err = disassembler.NewProgram(c.Code)
	if err != nil {
		return nil, errors.Wrapf(err, "runtime code of %s", name)
	}
	c.CreationDisassembly, err = disassembler.NewProgram(c.CreationCode)
	if err != nil {
		return nil, errors.Wrapf(err, "creation code of %s", name)
	}
	return c, nil
}

func (c *EVMContract) BytecodeHash() (string, error) {
	codeStr, _, err := util.GetCodeHash(c.Code)
	return codeStr, err
}

func (c *EVMContract) CreationCodeHash() (string, error) {
	codeStr, _, err := util.GetCodeHash(c.CreationCode)
	return codeStr, err
}

// Program runtime为false时是creation代码
func (c *EVMContract) Program(runtime bool) *disassembler.Program {
	if runtime {
		return c.Disassembly
	}
	return c.CreationDisassembly
}

func (c *EVMContract) GetEASM() string {
	return c.Disassembly.GetEASM()
}

func (c *EVMContract) GetCreationEASM() string {
	return c.CreationDisassembly.GetEASM()
}

// replaceAddress 未链接的库地址占位符替换成固定地址
func replaceAddress(code string) string {
	return regCode.ReplaceAllString(code, strings.Repeat("aa", 20))
}
