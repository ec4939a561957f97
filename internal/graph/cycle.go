package graph

// findCycles returns the strongly connected components of adjacency that
// form cycles: components with more than one node, or a single node with a
// self-loop. An acyclic graph returns nil.
//
// Uses Tarjan's algorithm. Nodes are visited in lexical order so the result
// is deterministic.
func findCycles(adjacency map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		cycles  [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 || hasSelfLoop(v, adjacency) {
			cycles = append(cycles, scc)
		}
	}

	for _, v := range sortedKeys(adjacency) {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return cycles
}

func hasSelfLoop(v string, adjacency map[string][]string) bool {
	for _, w := range adjacency[v] {
		if w == v {
			return true
		}
	}
	return false
}
