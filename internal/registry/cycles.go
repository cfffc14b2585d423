package registry

import (
	"strings"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/errors"
)

// cycles reports one warning per set of tags that invoke each other
// unconditionally. Recursion through t:if, t:for or a content argument
// can terminate and is not reported.
func (r *Registry) cycles() errors.List {
	graph := make(map[string][]string, len(r.names))
	for _, name := range r.names {
		seen := make(map[string]bool)
		Walk(r.defs[name].Body, func(n ast.Node, guarded bool) {
			inv, ok := n.(*ast.Invocation)
			if !ok || guarded || inv.IsBuiltin() || seen[inv.Name] {
				return
			}
			if _, ok := r.defs[inv.Name]; ok {
				seen[inv.Name] = true
				graph[name] = append(graph[name], inv.Name)
			}
		})
	}

	var warnings errors.List
	for _, scc := range stronglyConnected(r.names, graph) {
		if len(scc) == 1 && !contains(graph[scc[0]], scc[0]) {
			continue
		}
		def := r.defs[scc[0]]
		path := strings.Join(append(scc, scc[0]), " -> ")
		warnings.Add(errors.Warning(errors.KindResolution, def.File, def.Pos.Line, def.Pos.Column,
			"tag %q recurses without a conditional base case (%s); rendering it will not terminate", def.Name, path))
	}
	return warnings
}

// stronglyConnected returns the strongly connected components of graph
// using Tarjan's algorithm. Vertices are visited in the order of names, and
// each component lists its members in that order, so the result is
// deterministic.
func stronglyConnected(names []string, graph map[string][]string) [][]string {
	var (
		index   = make(map[string]int, len(names))
		low     = make(map[string]int, len(names))
		onStack = make(map[string]bool, len(names))
		stack   []string
		next    int
		out     [][]string
	)

	order := make(map[string]int, len(names))
	for i, n := range names {
		order[n] = i
	}

	var visit func(v string)
	visit = func(v string) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, seen := index[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
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
		sortByOrder(scc, order)
		out = append(out, scc)
	}

	for _, n := range names {
		if _, seen := index[n]; !seen {
			visit(n)
		}
	}
	return out
}

func sortByOrder(names []string, order map[string]int) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && order[names[j]] < order[names[j-1]]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
