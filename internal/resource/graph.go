// Relationship graph analysis: cycle reporting and dependency ordering over
// the registered schemas. Used by registry validation tooling and the CLI's
// graph command; the hook engine builds its own per-request layers instead.
package resource

import (
	"fmt"
	"sort"
	"strings"
)

// Graph represents the static dependency graph between resource types,
// where a belongs_to edge means the left resource depends on the right.
type Graph struct {
	nodes map[string]*Schema
	edges map[string][]string
}

// NewGraph builds the dependency graph for all registered schemas
func NewGraph(registry *Registry) *Graph {
	schemas := registry.All()
	g := &Graph{
		nodes: schemas,
		edges: make(map[string][]string),
	}

	for name, schema := range schemas {
		for _, rel := range schema.Relationships {
			if rel.Type == BelongsTo {
				g.edges[name] = append(g.edges[name], rel.RightType)
			}
		}
	}
	return g
}

// Cycles returns every circular dependency chain found in the graph
func (g *Graph) Cycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var dfs func(node string, path []string) bool
	dfs = func(node string, path []string) bool {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				if dfs(neighbor, path) {
					return true
				}
			} else if onStack[neighbor] {
				start := -1
				for i, n := range path {
					if n == neighbor {
						start = i
						break
					}
				}
				if start >= 0 {
					cycle := make([]string, len(path)-start)
					copy(cycle, path[start:])
					cycles = append(cycles, cycle)
				}
				return true
			}
		}

		onStack[node] = false
		return false
	}

	names := make([]string, 0, len(g.nodes))
	for node := range g.nodes {
		names = append(names, node)
	}
	sort.Strings(names)
	for _, node := range names {
		if !visited[node] {
			dfs(node, nil)
		}
	}
	return cycles
}

// TopologicalOrder returns resource names ordered so that dependencies come
// before their dependents, or an error when the graph is cyclic.
func (g *Graph) TopologicalOrder() ([]string, error) {
	outDegree := make(map[string]int)
	for node := range g.nodes {
		outDegree[node] = len(g.edges[node])
	}

	reverse := make(map[string][]string)
	for source, targets := range g.edges {
		for _, target := range targets {
			reverse[target] = append(reverse[target], source)
		}
	}

	var queue []string
	for node, degree := range outDegree {
		if degree == 0 {
			queue = append(queue, node)
		}
	}
	sort.Strings(queue)

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dependent := range reverse[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		if cycles := g.Cycles(); len(cycles) > 0 {
			return nil, fmt.Errorf("circular dependency detected: %s", formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular dependency detected")
	}
	return result, nil
}

// Dependencies returns the direct dependencies of a resource
func (g *Graph) Dependencies(resourceType string) []string {
	return g.edges[resourceType]
}

// Dependents returns the resources that directly depend on the given one
func (g *Graph) Dependents(resourceType string) []string {
	var dependents []string
	for node, deps := range g.edges {
		for _, dep := range deps {
			if dep == resourceType {
				dependents = append(dependents, node)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

func formatCycles(cycles [][]string) string {
	parts := make([]string, 0, len(cycles))
	for _, cycle := range cycles {
		parts = append(parts, strings.Join(cycle, " -> ")+" -> "+cycle[0])
	}
	return strings.Join(parts, "; ")
}
