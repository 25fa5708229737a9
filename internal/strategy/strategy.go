// Package strategy 实现状态处理的策略
package strategy

import (
	"github.com/pkg/errors"
)

// ErrEmpty 没有待处理的节点
var ErrEmpty = errors.New("state queue is empty")

// Strategy 待处理节点的工作表，元素是状态树里的节点id
type Strategy interface {
	Size() int
	HasNext() bool
	Pop() (int, error)
	Push(...int) error
}

// New 按名字创建，空字符串为dfs
func New(name string) (Strategy, error) {
	switch name {
	case "", "dfs":
		return NewDFS(), nil
	case "bfs":
		return NewBFS(), nil
	}
	return nil, errors.Errorf("unknown strategy %q", name)
}
