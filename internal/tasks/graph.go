package tasks

// detectCycle reports whether adding an edge from->requires(to set) would
// create a cycle in the requires graph, by walking from each candidate
// "requires" id back through its own requires chain looking for from.
func detectCycle(all map[string]*Task, from string, requires []string) bool {
	visited := map[string]bool{}
	var walk func(id string) bool
	walk = func(id string) bool {
		if id == from {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		t, ok := all[id]
		if !ok {
			return false
		}
		for _, r := range t.Dependencies.Requires {
			if walk(r) {
				return true
			}
		}
		return false
	}
	for _, r := range requires {
		if walk(r) {
			return true
		}
	}
	return false
}

// getDependencyGraph performs a BFS over requires, blocks and related edges
// rooted at id, returning the full transitive closure of each relation.
func getDependencyGraph(all map[string]*Task, id string) DependencyGraph {
	return DependencyGraph{
		TaskID:   id,
		Requires: closure(all, id, func(t *Task) []string { return t.Dependencies.Requires }),
		Blocks:   closure(all, id, func(t *Task) []string { return t.Dependencies.Blocks }),
		Related:  closure(all, id, func(t *Task) []string { return t.Dependencies.Related }),
	}
}

func closure(all map[string]*Task, root string, edges func(*Task) []string) []string {
	seen := map[string]bool{root: true}
	queue := []string{root}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		t, ok := all[cur]
		if !ok {
			continue
		}
		for _, next := range edges(t) {
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}
