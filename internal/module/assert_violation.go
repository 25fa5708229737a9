package module

import (
	"math/big"

	log "github.com/sirupsen/logrus"

	"symevm/internal/ethereum/state"
	"symevm/internal/issuse"
	"symevm/internal/opcode"
	"symevm/internal/smt"
	"symevm/internal/symevm"
)

// panicSelector Panic(uint256)，0.8之后assert失败时REVERT的数据
var panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71}

const panicAssert = 0x01

type AssertViolation struct {
	*BaseModule
}

func NewAssertViolation() *AssertViolation {
	return &AssertViolation{
		BaseModule: &BaseModule{
			name:       "AssertViolation",
			swcData:    SWCDataMap["110"],
			severity:   SeverityMedium,
			entryPoint: CallbackEntryPoint,
			hooks:      []opcode.OpCode{opcode.INVALID, opcode.REVERT},
			Issuses:    make([]*issuse.Issuse, 0),
		},
	}
}

// Execute 可达的INVALID，或者数据为Panic(1)的REVERT
func (av *AssertViolation) Execute(target *Target, result *symevm.PathResult) (issuses []*issuse.Issuse, err error) {
	log.Debug("Entering AssertViolation")
	defer log.Debug("Exiting AssertViolation")

	defer func() {
		av.Issuses = append(av.Issuses, issuses...)
	}()

	if result.LeafError != nil {
		return nil, nil
	}
	step, ok := result.Path.LastStep()
	if !ok {
		return nil, nil
	}
	if result.LeafOp == opcode.REVERT && !isAssertPanic(target.Tree.Node(step.NodeID).State) {
		return nil, nil
	}
	return []*issuse.Issuse{
		av.newIssuse(target, result.Path, step.Instruction.Address, result.Values),
	}, nil
}

// isAssertPanic st是执行REVERT之前的状态
func isAssertPanic(st *state.EvmState) bool {
	data, ok := state.ReturnValue(st)
	if !ok || len(data) != len(panicSelector)+smt.WordBytes {
		return false
	}
	for i, b := range panicSelector {
		v, ok := data[i].AsUint64()
		if !ok || v != uint64(b) {
			return false
		}
	}
	code, ok := smt.FromBytes(data[len(panicSelector):]...).Simplify().BigInt()
	return ok && code.Cmp(big.NewInt(panicAssert)) == 0
}

// RequirementViolation 可达的REVERT，assert失败的除外
type RequirementViolation struct {
	*BaseModule
}

func NewRequirementViolation() *RequirementViolation {
	return &RequirementViolation{
		BaseModule: &BaseModule{
			name:       "RequirementViolation",
			swcData:    SWCDataMap["123"],
			severity:   SeverityLow,
			entryPoint: CallbackEntryPoint,
			hooks:      []opcode.OpCode{opcode.REVERT},
			Issuses:    make([]*issuse.Issuse, 0),
		},
	}
}

func (rv *RequirementViolation) Execute(target *Target, result *symevm.PathResult) (issuses []*issuse.Issuse, err error) {
	log.Debug("Entering RequirementViolation")
	defer log.Debug("Exiting RequirementViolation")

	defer func() {
		rv.Issuses = append(rv.Issuses, issuses...)
	}()

	if result.LeafError != nil {
		return nil, nil
	}
	step, ok := result.Path.LastStep()
	if !ok || isAssertPanic(target.Tree.Node(step.NodeID).State) {
		return nil, nil
	}
	return []*issuse.Issuse{
		rv.newIssuse(target, result.Path, step.Instruction.Address, result.Values),
	}, nil
}
