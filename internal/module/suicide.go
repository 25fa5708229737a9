package module

import (
	"math/big"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"symevm/internal/ethereum/state"
	"symevm/internal/issuse"
	"symevm/internal/opcode"
	"symevm/internal/smt"
	"symevm/internal/symevm"
)

type AccidentallyKillable struct {
	*BaseModule
}

func NewAccidentallyKillable() *AccidentallyKillable {
	ak := &AccidentallyKillable{
		BaseModule: &BaseModule{
			name:       "AccidentallyKillable",
			swcData:    SWCDataMap["106"],
			severity:   SeverityHigh,
			entryPoint: CallbackEntryPoint,
			hooks:      []opcode.OpCode{opcode.SELFDESTRUCT},
			Issuses:    make([]*issuse.Issuse, 0),
		},
	}
	return ak
}

// Execute 攻击者作为调用者能否走到SELFDESTRUCT，能否把余额转给自己
func (ak *AccidentallyKillable) Execute(target *Target, result *symevm.PathResult) (issuses []*issuse.Issuse, err error) {
	log.Debug("Entering AccidentallyKillable")
	defer log.Debug("Exiting AccidentallyKillable")

	defer func() {
		ak.Issuses = append(ak.Issuses, issuses...)
	}()

	if result.LeafError != nil {
		return nil, nil
	}
	step, ok := result.Path.LastStep()
	if !ok {
		return nil, nil
	}
	// SELFDESTRUCT执行前的栈，栈顶是受益人
	to, err := target.Tree.Node(step.NodeID).State.Stack.PeekNth(0)
	if err != nil {
		return nil, errors.Wrap(err, "PeekNth")
	}

	attacker := smt.NewBitVecVal(new(big.Int).SetBytes(state.Actors["ATTACKER"].Bytes()), smt.WordBytes)
	attackerConstraint := target.Env.Caller().Eq(attacker)
	formulas := target.formulas(result.Path, attackerConstraint)

	solutionA, err := solve(target.Ctx, append(formulas, to.Eq(attacker)))
	if err != nil {
		return nil, err
	}
	if solutionA.Sat() {
		is := ak.newIssuse(target, result.Path, step.Instruction.Address, solutionA.Witness)
		is.Description += " Anyone can kill this contract and withdraw its balance to an arbitrary address."
		return []*issuse.Issuse{is}, nil
	}

	solutionB, err := solve(target.Ctx, formulas)
	if err != nil {
		return nil, err
	}
	if !solutionB.Sat() {
		return nil, nil
	}
	is := ak.newIssuse(target, result.Path, step.Instruction.Address, solutionB.Witness)
	is.Description += " Anyone can kill this contract."
	return []*issuse.Issuse{is}, nil
}
