package strategy

// BFS 广度优先搜索策略，先压入的先处理
type BFS struct {
	nodes []int
	head  int
}

func NewBFS() *BFS {
	return &BFS{
		nodes: make([]int, 0),
	}
}

func (bfs *BFS) Size() int {
	return len(bfs.nodes) - bfs.head
}

func (bfs *BFS) HasNext() bool {
	return bfs.Size() > 0
}

func (bfs *BFS) Pop() (int, error) {
	if !bfs.HasNext() {
		return -1, ErrEmpty
	}
	id := bfs.nodes[bfs.head]
	bfs.head++
	// 已出队的部分过半时压缩
	if bfs.head > len(bfs.nodes)/2 {
		bfs.nodes = append(bfs.nodes[:0], bfs.nodes[bfs.head:]...)
		bfs.head = 0
	}
	return id, nil
}

func (bfs *BFS) Push(ids ...int) error {
	bfs.nodes = append(bfs.nodes, ids...)
	return nil
}
