package module

import (
	"regexp"

	log "github.com/sirupsen/logrus"

	"symevm/internal/issuse"
	"symevm/internal/opcode"
	"symevm/internal/symevm"
)

type TxOrigin struct {
	*BaseModule
}

func NewTxOrigin() *TxOrigin {
	txOrigin := &TxOrigin{
		BaseModule: &BaseModule{
			name:       "TxOrigin",
			swcData:    SWCDataMap["115"],
			severity:   SeverityMedium,
			entryPoint: PostEntryPoint,
			Issuses:    make([]*issuse.Issuse, 0),
		},
	}
	return txOrigin
}

// Execute 跳转条件中出现origin符号，并且这个JUMPI可达
// origin绑定了具体地址时条件里没有符号，无法检测
func (txOrigin *TxOrigin) Execute(target *Target, _ *symevm.PathResult) (issuses []*issuse.Issuse, err error) {
	log.Debug("Entering TxOrigin")
	defer log.Debug("Exiting TxOrigin")

	defer func() {
		txOrigin.Issuses = append(txOrigin.Issuses, issuses...)
	}()

	origin := target.Env.Origin()
	if !origin.IsSymbolic() {
		return nil, nil
	}
	regOrigin, err := regexp.Compile(`\b` + regexp.QuoteMeta(origin.GetName()) + `\b`)
	if err != nil {
		return nil, err
	}

	tree := target.Tree
	for id := 0; id < tree.Len(); id++ {
		node := tree.Node(id)
		if node.Instruction == nil || node.Instruction.Op != opcode.JUMPI || node.Right < 0 {
			continue
		}
		condition := tree.Node(node.Right).Condition
		if condition == nil || condition.IsTrue() || condition.IsFalse() {
			continue
		}
		if !regOrigin.MatchString(condition.String()) {
			continue
		}
		path, _ := tree.PathTo(node.ID)
		sol, err := solve(target.Ctx, target.formulas(path))
		if err != nil {
			return issuses, err
		}
		if !sol.Sat() {
			continue
		}
		log.Infof("tx.origin in branch condition at %d", node.Instruction.Address)
		issuses = append(issuses, txOrigin.newIssuse(target, path, node.Instruction.Address, sol.Witness))
	}
	return issuses, nil
}
