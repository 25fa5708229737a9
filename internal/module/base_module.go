package module

import (
	"math/big"

	"symevm/internal/disassembler"
	"symevm/internal/ethereum/state"
	"symevm/internal/issuse"
	"symevm/internal/opcode"
	"symevm/internal/smt"
	"symevm/internal/symevm"
)

const (
	PostEntryPoint     = 0 // 所有路径检查完之后，在整棵树上执行一次
	CallbackEntryPoint = 1 // 以hooks中的指令结束的可达路径，每条执行一次
)

// Target 一次分析的结果，模块在上面检测
type Target struct {
	Ctx         *smt.Context
	Env         *state.Environment
	Program     *disassembler.Program
	Tree        *symevm.StateTree
	Report      *symevm.Report
	Assumptions []*smt.Bool // 和Checker使用的相同
}

// formulas 路径可达的条件
func (target *Target) formulas(path symevm.Path, extra ...*smt.Bool) []*smt.Bool {
	constraints := state.NewConstraints(target.Assumptions...)
	constraints.Append(path.Conditions()...)
	constraints.Append(extra...)
	return constraints.Items()
}

// function 路径上最后经过的函数入口
func (target *Target) function(path symevm.Path) string {
	if target.Program == nil {
		return ""
	}
	var name string
	for _, step := range path.Steps {
		if step.Instruction == nil {
			continue
		}
		if n, ok := target.Program.FunctionName(step.Instruction.Address); ok {
			name = n
		}
	}
	return name
}

type BaseModule struct {
	name       string
	swcData    *SWCData        // SWC信息
	severity   string          // 严重程度
	entryPoint int             // issue获取入口
	hooks      []opcode.OpCode // 路径以这些指令结束时，执行本模块
	Issuses    []*issuse.Issuse
}

func (bm *BaseModule) Name() string {
	return bm.name
}

func (bm *BaseModule) GetHooks() []opcode.OpCode {
	return bm.hooks
}

func (bm *BaseModule) GetEntryPoint() int {
	return bm.entryPoint
}

func (bm *BaseModule) GetSWCData() *SWCData {
	return bm.swcData
}

func (bm *BaseModule) GetIssuses() []*issuse.Issuse {
	return bm.Issuses
}

func (bm *BaseModule) newIssuse(target *Target, path symevm.Path, address int, witness map[string]*big.Int) *issuse.Issuse {
	return &issuse.Issuse{
		ID:          bm.swcData.ID,
		Title:       bm.swcData.Title,
		Description: bm.swcData.Description,
		Severity:    bm.severity,
		Address:     address,
		Function:    target.function(path),
		Witness:     witness,
	}
}

type DetectionModule interface {
	Name() string
	Execute(*Target, *symevm.PathResult) ([]*issuse.Issuse, error)
	GetHooks() []opcode.OpCode
	GetEntryPoint() int
	GetSWCData() *SWCData
	GetIssuses() []*issuse.Issuse
}
