package flow

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// testRegistry carries three kinds: a well-behaved passthrough "task", a
// "picky" kind that rejects any config without ok=true, and a "rogue" kind
// that violates the output binding contract.
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()

	kinds := []Kind{
		passthroughKind("task"),
		{
			Name:          "picky",
			Category:      "Test",
			Description:   "rejects bad config",
			DefaultConfig: emptyConfig,
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				if ok, _ := config["ok"].(bool); !ok {
					return Fragment{}, fmt.Errorf("ok must be true")
				}
				return outFragment(nodeID, letLine(nodeID, firstInput(inputs, "input"))), nil
			},
		},
		{
			Name:          "rogue",
			Category:      "Test",
			Description:   "breaks the binding contract",
			DefaultConfig: emptyConfig,
			Generate: func(nodeID string, _ map[string]any, _ []Binding) (Fragment, error) {
				return Fragment{Source: "    let wrong = input;\n", Binding: "wrong"}, nil
			},
		},
	}
	for _, k := range kinds {
		if err := reg.Register(k); err != nil {
			t.Fatalf("Register(%s) failed: %v", k.Name, err)
		}
	}
	return reg
}

func taskNode(id string) Node {
	return Node{ID: id, Kind: "task", Config: map[string]any{}}
}

// diamondFlow is a -> {b, c} -> d.
func diamondFlow() *Flow {
	return &Flow{
		Nodes: []Node{taskNode("a"), taskNode("b"), taskNode("c"), taskNode("d")},
		Edges: []Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "c"},
			{Source: "b", Target: "d"},
			{Source: "c", Target: "d"},
		},
	}
}

func orderOf(prog *Program) []string {
	ids := make([]string, len(prog.Steps))
	for i, s := range prog.Steps {
		ids[i] = s.NodeID
	}
	return ids
}

// TestCompile_Deterministic verifies compiling the same flow twice yields
// byte-identical source and the same step order.
func TestCompile_Deterministic(t *testing.T) {
	reg := testRegistry(t)
	f := diamondFlow()

	first, err := Compile(f, reg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := Compile(f, reg)
	if err != nil {
		t.Fatalf("second Compile failed: %v", err)
	}

	if first.Source != second.Source {
		t.Error("source differs between identical compilations")
	}
	want := []string{"a", "b", "c", "d"}
	if got := orderOf(first); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if !strings.HasPrefix(first.Source, "program workflow {\n\nfn main(input) {\n") {
		t.Errorf("source missing wrapper prefix:\n%s", first.Source)
	}
	if !strings.Contains(first.Source, "    return d_out;\n") {
		t.Errorf("source missing result return:\n%s", first.Source)
	}
}

// TestCompile_LexicographicTieBreak verifies independent nodes are ordered
// by node id.
func TestCompile_LexicographicTieBreak(t *testing.T) {
	reg := testRegistry(t)
	f := &Flow{Nodes: []Node{taskNode("zeta"), taskNode("alpha"), taskNode("mid")}}

	prog, err := Compile(f, reg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if got := orderOf(prog); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestCompile_InputsSortedBySource(t *testing.T) {
	reg := testRegistry(t)
	f := &Flow{
		Nodes: []Node{taskNode("zz"), taskNode("aa"), taskNode("sink")},
		Edges: []Edge{
			{Source: "zz", Target: "sink"},
			{Source: "aa", Target: "sink"},
		},
	}

	prog, err := Compile(f, reg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	sink := prog.Steps[prog.OrderIndex["sink"]]
	if len(sink.Inputs) != 2 || sink.Inputs[0].Name != "aa_out" || sink.Inputs[1].Name != "zz_out" {
		t.Errorf("sink inputs = %+v, want aa_out then zz_out", sink.Inputs)
	}
	for i, up := range sink.Upstream {
		if prog.Steps[up].NodeID != sink.Inputs[i].NodeID {
			t.Errorf("upstream[%d] = %s, want %s", i, prog.Steps[up].NodeID, sink.Inputs[i].NodeID)
		}
	}
}

func TestCompile_DuplicateEdgesCollapse(t *testing.T) {
	reg := testRegistry(t)
	f := &Flow{
		Nodes: []Node{taskNode("a"), taskNode("b")},
		Edges: []Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "b", SourceHandle: "other"},
		},
	}

	prog, err := Compile(f, reg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	b := prog.Steps[prog.OrderIndex["b"]]
	if len(b.Inputs) != 1 {
		t.Errorf("duplicate edge produced %d inputs", len(b.Inputs))
	}
}

func TestCompile_Errors(t *testing.T) {
	reg := testRegistry(t)

	t.Run("cycle always fails", func(t *testing.T) {
		f := &Flow{
			Nodes: []Node{taskNode("a"), taskNode("b")},
			Edges: []Edge{
				{Source: "a", Target: "b"},
				{Source: "b", Target: "a"},
			},
		}
		_, err := Compile(f, reg)
		if !IsCode(err, CodeCyclicGraph) {
			t.Fatalf("Compile = %v, want CYCLIC_GRAPH", err)
		}
		gerr := err.(*GraphError)
		if len(gerr.NodeIDs) == 0 {
			t.Error("cycle error names no nodes")
		}
	})

	t.Run("dangling edge names the missing id", func(t *testing.T) {
		f := &Flow{
			Nodes: []Node{taskNode("a")},
			Edges: []Edge{{Source: "a", Target: "ghost"}},
		}
		_, err := Compile(f, reg)
		if !IsCode(err, CodeDanglingEdge) {
			t.Fatalf("Compile = %v, want DANGLING_EDGE", err)
		}
		if !strings.Contains(err.Error(), "ghost") {
			t.Errorf("error does not name the missing id: %v", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		f := &Flow{Nodes: []Node{{ID: "x", Kind: "mystery"}}}
		_, err := Compile(f, reg)
		if !IsCode(err, CodeUnknownKind) {
			t.Errorf("Compile = %v, want UNKNOWN_KIND", err)
		}
	})

	t.Run("duplicate node id", func(t *testing.T) {
		f := &Flow{Nodes: []Node{taskNode("x"), taskNode("x")}}
		_, err := Compile(f, reg)
		if !IsCode(err, CodeConfigInvalid) {
			t.Errorf("Compile = %v, want CONFIG_VALIDATION_FAILED", err)
		}
	})

	t.Run("config rejected", func(t *testing.T) {
		f := &Flow{Nodes: []Node{{ID: "p", Kind: "picky", Config: map[string]any{"ok": false}}}}
		_, err := Compile(f, reg)
		if !IsCode(err, CodeConfigInvalid) {
			t.Fatalf("Compile = %v, want CONFIG_VALIDATION_FAILED", err)
		}
		gerr := err.(*GraphError)
		if len(gerr.NodeIDs) != 1 || gerr.NodeIDs[0] != "p" {
			t.Errorf("NodeIDs = %v, want [p]", gerr.NodeIDs)
		}
	})

	t.Run("binding contract violation", func(t *testing.T) {
		f := &Flow{Nodes: []Node{{ID: "r", Kind: "rogue"}}}
		_, err := Compile(f, reg)
		if !IsCode(err, CodeCodeGenContract) {
			t.Errorf("Compile = %v, want CODEGEN_CONTRACT_VIOLATION", err)
		}
	})
}

func TestCompile_EmptyFlow(t *testing.T) {
	prog, err := Compile(&Flow{}, testRegistry(t))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	want := "program workflow {\n\nfn main(input) {\n    return null;\n}\n\n}\n"
	if prog.Source != want {
		t.Errorf("source = %q, want %q", prog.Source, want)
	}
	if len(prog.Steps) != 0 {
		t.Errorf("steps = %d, want 0", len(prog.Steps))
	}
}
