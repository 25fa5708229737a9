package module

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"symevm/internal/ethereum/state"
	"symevm/internal/issuse"
	"symevm/internal/opcode"
	"symevm/internal/smt"
	"symevm/internal/symevm"
)

type ArbitraryJump struct {
	*BaseModule
}

func NewArbitraryJump() *ArbitraryJump {
	arbitraryJump := &ArbitraryJump{
		BaseModule: &BaseModule{
			name:       "ArbitraryJump",
			swcData:    SWCDataMap["127"],
			severity:   SeverityHigh,
			entryPoint: CallbackEntryPoint,
			hooks:      []opcode.OpCode{opcode.JUMP, opcode.JUMPI},
			Issuses:    make([]*issuse.Issuse, 0),
		},
	}
	return arbitraryJump
}

// Execute 跳转地址是符号值的路径在JUMP/JUMPI处停止，叶子的栈顶就是跳转地址
func (arbitraryJump *ArbitraryJump) Execute(target *Target, result *symevm.PathResult) (issuses []*issuse.Issuse, err error) {
	log.Debug("Entering ArbitraryJump")
	defer log.Debug("Exiting ArbitraryJump")

	defer func() {
		arbitraryJump.Issuses = append(arbitraryJump.Issuses, issuses...)
	}()

	if kind, ok := state.UnsupportedKindOf(result.LeafError); !ok || kind != state.SymbolicJump {
		return nil, nil
	}
	leaf := result.Path.Leaf()
	jumpAddress, err := leaf.State.Stack.PeekNth(0)
	if err != nil {
		return nil, errors.Wrap(err, "PeekNth")
	}
	if !jumpAddress.IsSymbolic() {
		return nil, nil
	}

	formulas := target.formulas(result.Path)
	unique, err := isUniqueJump(target.Ctx, formulas, jumpAddress)
	if err != nil {
		return nil, err
	}
	if unique {
		return nil, nil
	}
	return []*issuse.Issuse{
		arbitraryJump.newIssuse(target, result.Path, leaf.Instruction.Address, result.Values),
	}, nil
}

// isUniqueJump 先求出一个跳转地址，再看能否取到别的值
func isUniqueJump(ctx *smt.Context, formulas []*smt.Bool, jumpAddress *smt.BitVec) (bool, error) {
	first, err := solve(ctx, formulas, jumpAddress)
	if err != nil {
		return false, errors.Wrap(err, "solve")
	}
	if !first.Sat() {
		return true, nil
	}
	concreteJumpAddress := smt.NewBitVecVal(first.Values[0], jumpAddress.Bytes())
	other := append(formulas[:len(formulas):len(formulas)], jumpAddress.Ne(concreteJumpAddress))
	second, err := solve(ctx, other)
	if err != nil {
		return false, errors.Wrap(err, "solve")
	}
	return !second.Sat(), nil
}
