package network

// Energized marks every node reachable from a connected source through
// lines with both sides closed.
func (n *Network) Energized() []bool {
	adj := make([][]int, len(n.nodes))
	for i, l := range n.lines {
		if !l.Closed() {
			continue
		}
		from, to := n.LineNodes(i)
		adj[from] = append(adj[from], to)
		adj[to] = append(adj[to], from)
	}

	energized := make([]bool, len(n.nodes))
	queue := make([]int, 0, len(n.nodes))
	for i, s := range n.sources {
		node := n.SourceNode(i)
		if s.Status && !energized[node] {
			energized[node] = true
			queue = append(queue, node)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !energized[next] {
				energized[next] = true
				queue = append(queue, next)
			}
		}
	}
	return energized
}

// IslandedNodes returns the ids of nodes no connected source can reach.
func (n *Network) IslandedNodes() []int {
	var ids []int
	for i, ok := range n.Energized() {
		if !ok {
			ids = append(ids, n.nodes[i].ID)
		}
	}
	return ids
}
