package state

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"symevm/internal/smt"
)

// FunctionHashByteLength 函数选择器的长度
const FunctionHashByteLength = 4

// Actors 常用的调用者地址，命令行的--caller可以直接用这些名字
var Actors = map[string]common.Address{
	"CREATOR":  common.HexToAddress("0xaffeaffeaffeaffeaffeaffeaffeaffeaffeaffe"),
	"ATTACKER": common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"),
	"SOMEGUY":  common.HexToAddress("0xaaaaaaaabbbbbbbbccccccccddddddddeeeeeeee"),
}

// ResolveActor 名字或者16进制地址
func ResolveActor(name string) (common.Address, error) {
	if address, ok := Actors[strings.ToUpper(name)]; ok {
		return address, nil
	}
	if !common.IsHexAddress(name) {
		return common.Address{}, errors.Errorf("unknown actor %q", name)
	}
	return common.HexToAddress(name), nil
}

// FunctionConstraints calldata的前4个byte等于其中一个选择器
// funcHashes形如"0x846719e0"，为空时返回nil
func FunctionConstraints(env *Environment, funcHashes []string) (*smt.Bool, error) {
	if len(funcHashes) == 0 {
		return nil, nil
	}
	selector := make([]*smt.BitVec, FunctionHashByteLength)
	for i := range selector {
		b, err := env.CalldataByte(smt.NewBitVecValInt64(int64(i), smt.WordBytes))
		if err != nil {
			return nil, err
		}
		selector[i] = b
	}
	result := smt.NewBoolVal(false)
	for _, funcHash := range funcHashes {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(funcHash), "0x"))
		if err != nil || len(raw) != FunctionHashByteLength {
			return nil, errors.Errorf("invalid function hash %q", funcHash)
		}
		match := smt.NewBoolVal(true)
		for i := range raw {
			match = match.And(selector[i].Eq(smt.NewBitVecValInt64(int64(raw[i]), 1)))
		}
		result = result.Or(match)
	}
	return result, nil
}
