package quadtree

// NodeInfo describes one node of a tree.
type NodeInfo struct {
	Level    int
	Bounds   Region
	Entities int
	Leaf     bool
}

// DebugInfo returns a description of every node, parents before their
// children.
func (t *Tree[E]) DebugInfo() []NodeInfo {
	res := make([]NodeInfo, 0, t.nodes)
	t.root.debugInfo(&res)
	return res
}

func (n *node[E]) debugInfo(res *[]NodeInfo) {
	*res = append(*res, NodeInfo{
		Level:    n.level,
		Bounds:   n.bounds,
		Entities: len(n.entities),
		Leaf:     n.isLeaf(),
	})

	if n.isLeaf() {
		return
	}
	for _, c := range n.children {
		c.debugInfo(res)
	}
}
