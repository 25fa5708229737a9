package funcmanager

import (
	"fmt"

	"github.com/pkg/errors"

	"symevm/internal/smt"
)

// callSite SHA3所在的pc和输入宽度(bit)
type callSite struct {
	pc    int
	width uint32
}

// Application 一次SHA3的输入和结果，报告里用来展示哈希
type Application struct {
	PC     int
	Input  *smt.BitVec // 空输入为nil
	Result *smt.BitVec
}

// KeccakFunctionManager 用未解释函数模拟keccak256
// 每个调用点(pc, 输入宽度)一个函数，同一调用点的多次执行共用同一个函数，
// 所以相同的输入得到相同的结果
type KeccakFunctionManager struct {
	ctx           *smt.Context
	storeFunction map[callSite]*smt.Function
	emptyHashes   map[int]*smt.BitVec
	applications  []Application
}

func NewKeccakFunctionManager(ctx *smt.Context) *KeccakFunctionManager {
	return &KeccakFunctionManager{
		ctx:           ctx,
		storeFunction: make(map[callSite]*smt.Function),
		emptyHashes:   make(map[int]*smt.BitVec),
	}
}

// GetFunction bv{width} -> bv256
func (kfm *KeccakFunctionManager) GetFunction(pc int, width uint32) *smt.Function {
	site := callSite{pc: pc, width: width}
	if function, ok := kfm.storeFunction[site]; ok {
		return function
	}
	function := kfm.ctx.NewFunction(fmt.Sprintf("keccak256_%d_%d", pc, width), []uint32{width}, 256)
	kfm.storeFunction[site] = function
	return function
}

// GetEmptyKeccakHash 0字节输入，每个调用点一个0元常量
func (kfm *KeccakFunctionManager) GetEmptyKeccakHash(pc int) *smt.BitVec {
	if hash, ok := kfm.emptyHashes[pc]; ok {
		return hash
	}
	hash := kfm.ctx.NewBitVec(fmt.Sprintf("keccak256_empty_%d", pc), smt.WordBytes)
	kfm.emptyHashes[pc] = hash
	return hash
}

// CreateKeccak data为nil或宽度为0时视为空输入
func (kfm *KeccakFunctionManager) CreateKeccak(pc int, data *smt.BitVec) (*smt.BitVec, error) {
	if data == nil {
		hash := kfm.GetEmptyKeccakHash(pc)
		kfm.applications = append(kfm.applications, Application{PC: pc, Result: hash})
		return hash, nil
	}
	function := kfm.GetFunction(pc, data.Size())
	result, err := function.Apply(data)
	if err != nil {
		return nil, errors.Wrapf(err, "keccak256 at pc %d", pc)
	}
	kfm.applications = append(kfm.applications, Application{PC: pc, Input: data, Result: result})
	return result, nil
}

func (kfm *KeccakFunctionManager) Applications() []Application {
	return kfm.applications
}

// FunctionCount 已创建的调用点函数数量
func (kfm *KeccakFunctionManager) FunctionCount() int {
	return len(kfm.storeFunction)
}
