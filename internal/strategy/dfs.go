// Package strategy 实现状态处理的策略
package strategy

// DFS 深度优先搜索策略，最后压入的最先处理
type DFS struct {
	nodes []int
}

func NewDFS() *DFS {
	return &DFS{
		nodes: make([]int, 0),
	}
}

func (dfs *DFS) Size() int {
	return len(dfs.nodes)
}

func (dfs *DFS) HasNext() bool {
	return len(dfs.nodes) > 0
}

func (dfs *DFS) Pop() (int, error) {
	if len(dfs.nodes) <= 0 {
		return -1, ErrEmpty
	}
	id := dfs.nodes[len(dfs.nodes)-1]
	dfs.nodes = dfs.nodes[:len(dfs.nodes)-1]
	return id, nil
}

func (dfs *DFS) Push(ids ...int) error {
	dfs.nodes = append(dfs.nodes, ids...)
	return nil
}
