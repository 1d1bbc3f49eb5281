package flow

import (
	"container/heap"
	"sort"
	"strings"
)

// Step is one node in compiled form: its resolved inputs, its generated
// fragment, and its position in the total execution order. Seq is the
// timeline sequence index; it never changes after compilation.
type Step struct {
	NodeID     string
	Kind       string
	Config     map[string]any
	Inputs     []Binding
	Fragment   Fragment
	Breakpoint bool
	Seq        int
	// Upstream holds the Seq indexes of the step's direct producers.
	Upstream []int
}

// Program is the compiled artifact: the full generated source (the deploy
// artifact) and the step list the engine executes. OrderIndex maps node id
// to sequence index.
//
// Compiling the same flow against the same registry always yields a
// byte-identical Source and an identical step order.
type Program struct {
	Source     string
	Steps      []Step
	OrderIndex map[string]int
}

// idHeap is a min-heap of node ids. Kahn's frontier pops the smallest id
// first so ties in the partial order resolve lexicographically.
type idHeap []string

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Compile validates the flow, orders it, resolves bindings, and generates
// the program. All validation errors are GraphErrors carrying the involved
// node id(s); the first failure wins.
func Compile(f *Flow, reg *Registry) (*Program, error) {
	nodes := make(map[string]*Node, len(f.Nodes))
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if _, dup := nodes[n.ID]; dup {
			return nil, graphErr(CodeConfigInvalid, "duplicate node id", n.ID)
		}
		nodes[n.ID] = n
	}

	// Unknown kinds, checked in id order for stable reporting.
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := reg.Lookup(nodes[id].Kind); err != nil {
			return nil, graphErr(CodeUnknownKind, "unknown node kind "+nodes[id].Kind, id)
		}
	}

	// Dangling edges.
	var missing []string
	for _, e := range f.Edges {
		if _, ok := nodes[e.Source]; !ok {
			missing = append(missing, e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			missing = append(missing, e.Target)
		}
	}
	if len(missing) > 0 {
		return nil, graphErr(CodeDanglingEdge, "edge references unknown node", dedup(missing)...)
	}

	// Adjacency and in-degrees. Duplicate edges collapse to one dependency.
	indegree := make(map[string]int, len(nodes))
	outgoing := make(map[string][]string, len(nodes))
	incoming := make(map[string]map[string]bool, len(nodes))
	for id := range nodes {
		indegree[id] = 0
	}
	for _, e := range f.Edges {
		if incoming[e.Target] == nil {
			incoming[e.Target] = make(map[string]bool)
		}
		if incoming[e.Target][e.Source] {
			continue
		}
		incoming[e.Target][e.Source] = true
		outgoing[e.Source] = append(outgoing[e.Source], e.Target)
		indegree[e.Target]++
	}

	// Kahn's algorithm with a lexicographic frontier.
	frontier := &idHeap{}
	for _, id := range ids {
		if indegree[id] == 0 {
			heap.Push(frontier, id)
		}
	}
	order := make([]string, 0, len(nodes))
	remaining := make(map[string]int, len(indegree))
	for id, d := range indegree {
		remaining[id] = d
	}
	for frontier.Len() > 0 {
		id := heap.Pop(frontier).(string)
		order = append(order, id)
		for _, next := range outgoing[id] {
			remaining[next]--
			if remaining[next] == 0 {
				heap.Push(frontier, next)
			}
		}
	}
	if len(order) != len(nodes) {
		var cyclic []string
		for id, d := range remaining {
			if d > 0 {
				cyclic = append(cyclic, id)
			}
		}
		return nil, graphErr(CodeCyclicGraph, "flow graph contains a cycle", cyclic...)
	}

	// Binding resolution and code generation.
	prog := &Program{
		Steps:      make([]Step, 0, len(order)),
		OrderIndex: make(map[string]int, len(order)),
	}
	var src strings.Builder
	src.WriteString("program workflow {\n\n")
	src.WriteString("fn main(input) {\n")

	for seq, id := range order {
		n := nodes[id]
		kind, err := reg.Lookup(n.Kind)
		if err != nil {
			return nil, err
		}

		sources := make([]string, 0, len(incoming[id]))
		for s := range incoming[id] {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		inputs := make([]Binding, len(sources))
		upstream := make([]int, len(sources))
		for i, s := range sources {
			inputs[i] = OutBinding(s)
			upstream[i] = prog.OrderIndex[s]
		}

		frag, err := kind.Generate(id, n.Config, inputs)
		if err != nil {
			ge := graphErr(CodeConfigInvalid, "config rejected for kind "+n.Kind+": "+err.Error(), id)
			ge.Cause = err
			return nil, ge
		}
		if want := id + "_out"; frag.Binding != want {
			return nil, graphErr(CodeCodeGenContract,
				"kind "+n.Kind+" bound "+frag.Binding+" instead of "+want, id)
		}

		src.WriteString(frag.Source)
		prog.OrderIndex[id] = seq
		prog.Steps = append(prog.Steps, Step{
			NodeID:     id,
			Kind:       n.Kind,
			Config:     n.Config,
			Inputs:     inputs,
			Fragment:   frag,
			Breakpoint: n.Breakpoint,
			Seq:        seq,
			Upstream:   upstream,
		})
	}

	// The last step in topological order has no outgoing edges, so its
	// binding is the program result.
	if len(order) > 0 {
		src.WriteString("    return " + order[len(order)-1] + "_out;\n")
	} else {
		src.WriteString("    return null;\n")
	}
	src.WriteString("}\n\n")
	src.WriteString("}\n")

	prog.Source = src.String()
	return prog, nil
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
