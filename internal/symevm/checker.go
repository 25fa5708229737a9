package symevm

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"symevm/internal/opcode"
	"symevm/internal/smt"
)

// PathResult 一条路径的可达性
type PathResult struct {
	Path      Path
	Status    smt.Status
	Model     string              // Sat时的模型
	Values    map[string]*big.Int // Sat时各个符号的取值
	LeafOp    opcode.OpCode
	LeafError error
	Pending   bool  // 叶子没有执行完
	Err       error // 求解器出错
}

func (r *PathResult) Reachable() bool {
	return r.Status == smt.StatusSat
}

func (r *PathResult) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "path %s: %s, leaf %s at pc %d", r.Path, r.Status, r.LeafOp, r.Path.LeafAddress())
	if r.Pending {
		builder.WriteString(" (pending)")
	}
	if r.LeafError != nil {
		fmt.Fprintf(&builder, ", error: %v", r.LeafError)
	}
	if r.Err != nil {
		fmt.Fprintf(&builder, ", solver: %v", r.Err)
	}
	names := make([]string, 0, len(r.Values))
	for name := range r.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&builder, "\n  %s = 0x%x", name, r.Values[name])
	}
	return builder.String()
}

// Report 按FindPaths的顺序
type Report struct {
	Paths     []PathResult
	Steps     int
	Truncated bool
}

func (r *Report) Count(status smt.Status) int {
	n := 0
	for i := range r.Paths {
		if r.Paths[i].Status == status {
			n++
		}
	}
	return n
}

func (r *Report) Reachable() []*PathResult {
	result := make([]*PathResult, 0)
	for i := range r.Paths {
		if r.Paths[i].Reachable() {
			result = append(result, &r.Paths[i])
		}
	}
	return result
}

func (r *Report) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "paths %d: sat %d unsat %d unknown %d error %d, steps %d",
		len(r.Paths), r.Count(smt.StatusSat), r.Count(smt.StatusUnsat), r.Count(smt.StatusUnknown), r.Count(smt.StatusError), r.Steps)
	if r.Truncated {
		builder.WriteString(" (truncated)")
	}
	builder.WriteString("\n")
	for i := range r.Paths {
		builder.WriteString(r.Paths[i].String())
		builder.WriteString("\n")
	}
	return builder.String()
}

// Checker 对每条路径的边条件求解
type Checker struct {
	ctx         *smt.Context
	assumptions []*smt.Bool
}

func NewChecker(ctx *smt.Context, opts ...Option) *Checker {
	s := newSettings(opts)
	return &Checker{
		ctx:         ctx,
		assumptions: s.assumptions,
	}
}

// Check 单条路径求解失败记为StatusError，不影响其他路径
func (c *Checker) Check(tree *StateTree) (*Report, error) {
	if tree == nil || tree.Len() == 0 {
		return nil, errors.New("empty state tree")
	}
	startTime := time.Now()
	paths := tree.FindPaths()
	report := &Report{Paths: make([]PathResult, 0, len(paths))}
	for _, path := range paths {
		result := c.checkPath(path)
		log.Debugf("path %s: %s %s", path, result.Status, result.LeafOp)
		report.Paths = append(report.Paths, result)
	}
	log.Infof("checked %d paths: sat %d unsat %d unknown %d error %d",
		len(report.Paths), report.Count(smt.StatusSat), report.Count(smt.StatusUnsat),
		report.Count(smt.StatusUnknown), report.Count(smt.StatusError))
	log.Infof("check time used: %.3fs", time.Since(startTime).Seconds())
	return report, nil
}

func (c *Checker) checkPath(path Path) (result PathResult) {
	leaf := path.Leaf()
	result = PathResult{
		Path:      path,
		LeafOp:    path.LeafOp(),
		LeafError: leaf.Err,
		Pending:   leaf.Pending(),
	}
	fail := func(err error) PathResult {
		log.Errorf("path %s: %v", path, err)
		result.Status = smt.StatusError
		result.Err = err
		return result
	}

	if err := c.ctx.Push(); err != nil {
		return fail(err)
	}
	defer func() {
		if err := c.ctx.Pop(); err != nil {
			result = fail(err)
		}
	}()
	if err := c.ctx.Assert(c.assumptions...); err != nil {
		return fail(err)
	}
	if err := c.ctx.Assert(path.Conditions()...); err != nil {
		return fail(err)
	}
	status, err := c.ctx.Check()
	if err != nil {
		return fail(err)
	}
	result.Status = status
	if status != smt.StatusSat {
		return result
	}
	model, err := c.ctx.Model()
	if err != nil {
		return fail(err)
	}
	defer model.Close()
	result.Model = model.String()
	result.Values = model.Values(c.ctx.Symbols())
	return result
}
