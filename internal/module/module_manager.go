package module

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"symevm/internal/issuse"
	"symevm/internal/opcode"
	"symevm/internal/symevm"
)

type Hook func(*Target, *symevm.PathResult) ([]*issuse.Issuse, error)

type ModuleManager struct {
	PostModules     []DetectionModule
	CallbackModules []DetectionModule
	Hooks           map[opcode.OpCode][]Hook
}

func NewModuleManager() *ModuleManager {
	return &ModuleManager{
		PostModules:     make([]DetectionModule, 0),
		CallbackModules: make([]DetectionModule, 0),
		Hooks:           make(map[opcode.OpCode][]Hook),
	}
}

func (mm *ModuleManager) AddModule(dm DetectionModule) {
	if dm.GetEntryPoint() == PostEntryPoint {
		mm.PostModules = append(mm.PostModules, dm)
	} else if dm.GetEntryPoint() == CallbackEntryPoint {
		mm.CallbackModules = append(mm.CallbackModules, dm)
	}
	for _, op := range dm.GetHooks() {
		mm.Hooks[op] = append(mm.Hooks[op], dm.Execute)
	}
}

// Run 可达路径按叶子指令调用hook，然后执行PostModules
// 单个模块出错只记录日志，同一位置的同一问题只保留一个，结果按地址排序
func (mm *ModuleManager) Run(target *Target) ([]*issuse.Issuse, error) {
	if target == nil || target.Tree == nil || target.Report == nil {
		return nil, errors.New("nothing to detect")
	}
	var (
		result = make([]*issuse.Issuse, 0)
		seen   = make(map[string]bool)
	)
	collect := func(issuses []*issuse.Issuse) {
		for _, is := range issuses {
			if seen[is.Key()] {
				continue
			}
			seen[is.Key()] = true
			result = append(result, is)
		}
	}

	for _, pathResult := range target.Report.Reachable() {
		for _, hook := range mm.Hooks[pathResult.LeafOp] {
			issuses, err := hook(target, pathResult)
			if err != nil {
				log.Errorf("path %s: %v", pathResult.Path, err)
				continue
			}
			collect(issuses)
		}
	}
	for _, dm := range mm.PostModules {
		issuses, err := dm.Execute(target, nil)
		if err != nil {
			log.Errorf("%s: %v", dm.Name(), err)
		}
		collect(issuses)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Address != result[j].Address {
			return result[i].Address < result[j].Address
		}
		return result[i].ID < result[j].ID
	})
	log.Infof("detection done: %d issues", len(result))
	return result, nil
}

// DefaultModules 所有的检测模块
func DefaultModules() []DetectionModule {
	return []DetectionModule{
		NewAssertViolation(),
		NewRequirementViolation(),
		NewAccidentallyKillable(),
		NewArbitraryJump(),
		NewTxOrigin(),
	}
}

// NewModules 按名字选择模块，不区分大小写，names为空时返回全部
func NewModules(names []string) ([]DetectionModule, error) {
	all := DefaultModules()
	if len(names) == 0 {
		return all, nil
	}
	result := make([]DetectionModule, 0, len(names))
	for _, name := range names {
		var found DetectionModule
		for _, dm := range all {
			if strings.EqualFold(dm.Name(), strings.TrimSpace(name)) {
				found = dm
				break
			}
		}
		if found == nil {
			return nil, errors.Errorf("unknown module %q", name)
		}
		result = append(result, found)
	}
	return result, nil
}
