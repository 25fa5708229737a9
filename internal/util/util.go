package util

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"symevm/internal/disassembler"
)

// GetCodeHash 16进制代码的keccak256
func GetCodeHash(code string) (string, []byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(code), "0x"))
	if err != nil {
		return "", nil, errors.Wrap(err, "DecodeString")
	}
	result := crypto.Keccak256(data)
	return hex.EncodeToString(result), result, nil
}

// FunctionSelector 函数签名的前4个byte，形如0xa9059cbb
func FunctionSelector(signature string) string {
	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// GetInstructionIndex 第一个地址不小于address的指令下标
func GetInstructionIndex(instructions []disassembler.Instruction, address int) int {
	for index, instruction := range instructions {
		if instruction.Address >= address {
			return index
		}
	}
	return -1
}

func FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
