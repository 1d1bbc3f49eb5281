package backend_test

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/autograph-dev/autograph/flow"
	"github.com/autograph-dev/autograph/flow/backend"
)

func compileFlow(t *testing.T, f *flow.Flow) *flow.Program {
	t.Helper()
	prog, err := flow.Compile(f, flow.Builtins())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return prog
}

// runOn executes a flow against the named backend and returns the final
// output.
func runOn(t *testing.T, hint flow.Hint, f *flow.Flow, input any) any {
	t.Helper()
	b, err := backend.Select(hint)
	if err != nil {
		t.Fatalf("Select(%s) failed: %v", hint, err)
	}
	res, err := flow.New(b).Execute(context.Background(), compileFlow(t, f), input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Phase != flow.PhaseDone {
		t.Fatalf("phase = %s, want done", res.Phase)
	}
	for id, n := range res.Nodes {
		if n.State == flow.StateErrored {
			t.Fatalf("node %s errored: %s", id, n.Err)
		}
	}
	return res.Output
}

func TestSelect(t *testing.T) {
	cases := []struct {
		hint flow.Hint
		name string
	}{
		{flow.HintAuto, "cpu"},
		{flow.HintCPU, "cpu"},
		{flow.HintGPU, "gpu"},
		{"", "cpu"},
	}
	for _, tc := range cases {
		b, err := backend.Select(tc.hint)
		if err != nil {
			t.Fatalf("Select(%q) failed: %v", tc.hint, err)
		}
		if b.Name() != tc.name {
			t.Errorf("Select(%q) = %s, want %s", tc.hint, b.Name(), tc.name)
		}
	}
	if _, err := backend.Select("tpu"); err == nil {
		t.Error("Select(tpu) accepted an unknown hint")
	}
}

func TestInterp_CompileRejectsUnknownKind(t *testing.T) {
	reg := flow.NewRegistry()
	err := reg.Register(flow.Kind{
		Name:          "mystery",
		Category:      "Test",
		Description:   "unknown to the interpreter",
		DefaultConfig: func() map[string]any { return map[string]any{} },
		Generate: func(nodeID string, _ map[string]any, _ []flow.Binding) (flow.Fragment, error) {
			return flow.Fragment{
				Source:  "    let " + nodeID + "_out = mystery(input);\n",
				Binding: nodeID + "_out",
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	prog, err := flow.Compile(&flow.Flow{Nodes: []flow.Node{{ID: "m", Kind: "mystery"}}}, reg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	_, err = backend.NewCPU().Compile(context.Background(), prog)
	if !flow.IsCode(err, flow.CodeBackendCompile) {
		t.Errorf("backend Compile = %v, want BACKEND_COMPILE_FAILED", err)
	}
}

// TestInterp_TensorDotCrossBackend runs the matmul scenario on both
// backends: identity times a 2x2 of 2.0 flows through a print node, and
// the captured bytes agree between CPU and GPU.
func TestInterp_TensorDotCrossBackend(t *testing.T) {
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "left", Kind: "tensor_create", Config: map[string]any{
				"rows": float64(2), "cols": float64(2), "values": []any{1.0, 0.0, 0.0, 1.0},
			}},
			{ID: "right", Kind: "tensor_create", Config: map[string]any{
				"rows": float64(2), "cols": float64(2), "values": []any{2.0, 2.0, 2.0, 2.0},
			}},
			{ID: "product", Kind: "tensor_op", Config: map[string]any{
				"op": "dot", "inputs": []any{"left", "right"},
			}},
			{ID: "show", Kind: "print", Config: map[string]any{}},
		},
		Edges: []flow.Edge{
			{Source: "left", Target: "product"},
			{Source: "right", Target: "product"},
			{Source: "product", Target: "show"},
		},
	}

	cpuOut := runOn(t, flow.HintCPU, f, nil)
	gpuOut := runOn(t, flow.HintGPU, f, nil)

	cpuBytes := flow.MustEncodeValue(cpuOut)
	gpuBytes := flow.MustEncodeValue(gpuOut)
	if !bytes.Equal(cpuBytes, gpuBytes) {
		t.Errorf("backend outputs differ:\ncpu %s\ngpu %s", cpuBytes, gpuBytes)
	}

	tensor, err := flow.TensorFromValue(cpuOut)
	if err != nil {
		t.Fatalf("output is not a tensor: %v", err)
	}
	if tensor.Rows != 2 || tensor.Cols != 2 {
		t.Fatalf("output shape %dx%d, want 2x2", tensor.Rows, tensor.Cols)
	}
	for i, v := range tensor.Data {
		if v != 2 {
			t.Errorf("Data[%d] = %v, want 2", i, v)
		}
	}
}

func TestInterp_TensorAdd(t *testing.T) {
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "a", Kind: "tensor_create", Config: map[string]any{
				"rows": float64(1), "cols": float64(2), "values": []any{1.0, 2.0},
			}},
			{ID: "b", Kind: "tensor_create", Config: map[string]any{
				"rows": float64(1), "cols": float64(2), "values": []any{0.5, 0.5},
			}},
			{ID: "sum", Kind: "tensor_op", Config: map[string]any{
				"op": "add", "inputs": []any{"a", "b"},
			}},
		},
		Edges: []flow.Edge{
			{Source: "a", Target: "sum"},
			{Source: "b", Target: "sum"},
		},
	}

	out := runOn(t, flow.HintCPU, f, nil)
	tensor, err := flow.TensorFromValue(out)
	if err != nil {
		t.Fatalf("output is not a tensor: %v", err)
	}
	if !reflect.DeepEqual(tensor.Data, []float64{1.5, 2.5}) {
		t.Errorf("Data = %v, want [1.5 2.5]", tensor.Data)
	}
}

// TestInterp_MathRandomDeterminism verifies the random draw depends only
// on the (program, input) pair, not on the backend or the run.
func TestInterp_MathRandomDeterminism(t *testing.T) {
	f := &flow.Flow{Nodes: []flow.Node{{ID: "r", Kind: "math_random"}}}

	first := runOn(t, flow.HintCPU, f, "seed")
	second := runOn(t, flow.HintCPU, f, "seed")
	if first != second {
		t.Errorf("same input drew %v then %v", first, second)
	}

	onGPU := runOn(t, flow.HintGPU, f, "seed")
	if first != onGPU {
		t.Errorf("gpu drew %v, cpu drew %v", onGPU, first)
	}

	other := runOn(t, flow.HintCPU, f, "different seed")
	if first == other {
		t.Errorf("different inputs drew the same value %v", first)
	}

	v, ok := first.(float64)
	if !ok || v < 0 || v >= 1 {
		t.Errorf("draw = %v, want float64 in [0,1)", first)
	}
}

func TestInterp_Pipelines(t *testing.T) {
	chain := func(nodes ...flow.Node) *flow.Flow {
		f := &flow.Flow{Nodes: nodes}
		for i := 1; i < len(nodes); i++ {
			f.Edges = append(f.Edges, flow.Edge{Source: nodes[i-1].ID, Target: nodes[i].ID})
		}
		return f
	}

	t.Run("string upper", func(t *testing.T) {
		f := chain(
			flow.Node{ID: "in", Kind: "start"},
			flow.Node{ID: "up", Kind: "string_upper"},
		)
		if got := runOn(t, flow.HintCPU, f, "hello"); got != "HELLO" {
			t.Errorf("got %v, want HELLO", got)
		}
	})

	t.Run("math chain", func(t *testing.T) {
		f := chain(
			flow.Node{ID: "in", Kind: "start"},
			flow.Node{ID: "add", Kind: "math_add", Config: map[string]any{"value": float64(2)}},
			flow.Node{ID: "mul", Kind: "math_multiply", Config: map[string]any{"value": float64(3)}},
		)
		if got := runOn(t, flow.HintCPU, f, float64(3)); got != float64(15) {
			t.Errorf("got %v, want 15", got)
		}
	})

	t.Run("json round trip", func(t *testing.T) {
		f := chain(
			flow.Node{ID: "in", Kind: "start"},
			flow.Node{ID: "enc", Kind: "json_stringify"},
			flow.Node{ID: "dec", Kind: "json_parse"},
			flow.Node{ID: "get", Kind: "json_get", Config: map[string]any{"key": "name"}},
		)
		input := map[string]any{"name": "ada", "age": float64(36)}
		if got := runOn(t, flow.HintCPU, f, input); got != "ada" {
			t.Errorf("got %v, want ada", got)
		}
	})

	t.Run("array pipeline", func(t *testing.T) {
		f := chain(
			flow.Node{ID: "in", Kind: "start"},
			flow.Node{ID: "keep", Kind: "array_filter", Config: map[string]any{"op": "gt", "value": float64(1)}},
			flow.Node{ID: "sorted", Kind: "array_sort", Config: map[string]any{"order": "desc"}},
			flow.Node{ID: "total", Kind: "array_reduce", Config: map[string]any{"op": "sum", "initial": float64(0)}},
		)
		input := []any{3.0, 1.0, 2.0, 5.0}
		if got := runOn(t, flow.HintCPU, f, input); got != float64(10) {
			t.Errorf("got %v, want 10", got)
		}
	})

	t.Run("object set and keys", func(t *testing.T) {
		f := chain(
			flow.Node{ID: "in", Kind: "start"},
			flow.Node{ID: "set", Kind: "object_set", Config: map[string]any{"key": "tag", "value": "v1"}},
			flow.Node{ID: "keys", Kind: "object_keys"},
		)
		got := runOn(t, flow.HintCPU, f, map[string]any{"name": "ada"})
		if !reflect.DeepEqual(got, []any{"name", "tag"}) {
			t.Errorf("got %v, want [name tag]", got)
		}
	})

	t.Run("string split and length", func(t *testing.T) {
		f := chain(
			flow.Node{ID: "in", Kind: "start"},
			flow.Node{ID: "parts", Kind: "string_split", Config: map[string]any{"delimiter": ","}},
			flow.Node{ID: "count", Kind: "array_length"},
		)
		if got := runOn(t, flow.HintCPU, f, "a,b,c"); got != float64(3) {
			t.Errorf("got %v, want 3", got)
		}
	})

	t.Run("conversions", func(t *testing.T) {
		f := chain(
			flow.Node{ID: "in", Kind: "start"},
			flow.Node{ID: "int", Kind: "to_int"},
			flow.Node{ID: "str", Kind: "to_string"},
		)
		if got := runOn(t, flow.HintCPU, f, float64(3.9)); got != "3" {
			t.Errorf("got %v, want 3", got)
		}
	})
}

// TestInterp_CrossBackendIdentity runs a mixed pipeline on both backends
// and compares the captured bytes.
func TestInterp_CrossBackendIdentity(t *testing.T) {
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "in", Kind: "start"},
			{ID: "sorted", Kind: "array_sort", Config: map[string]any{"order": "asc"}},
			{ID: "doubled", Kind: "array_map", Config: map[string]any{"op": "to_float"}},
			{ID: "total", Kind: "array_reduce", Config: map[string]any{"op": "product", "initial": float64(1)}},
		},
		Edges: []flow.Edge{
			{Source: "in", Target: "sorted"},
			{Source: "sorted", Target: "doubled"},
			{Source: "doubled", Target: "total"},
		},
	}
	input := []any{4.0, 2.0, 3.0}

	cpuOut := flow.MustEncodeValue(runOn(t, flow.HintCPU, f, input))
	gpuOut := flow.MustEncodeValue(runOn(t, flow.HintGPU, f, input))
	if !bytes.Equal(cpuOut, gpuOut) {
		t.Errorf("outputs differ:\ncpu %s\ngpu %s", cpuOut, gpuOut)
	}
	if string(cpuOut) != "24" {
		t.Errorf("output = %s, want 24", cpuOut)
	}
}

func TestInterp_RuntimeErrors(t *testing.T) {
	t.Run("sqrt of negative", func(t *testing.T) {
		f := &flow.Flow{
			Nodes: []flow.Node{
				{ID: "in", Kind: "start"},
				{ID: "root", Kind: "math_sqrt"},
			},
			Edges: []flow.Edge{{Source: "in", Target: "root"}},
		}
		b, _ := backend.Select(flow.HintCPU)
		res, err := flow.New(b).Execute(context.Background(), compileFlow(t, f), float64(-4))
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if res.Nodes["root"].State != flow.StateErrored {
			t.Errorf("root state = %s, want errored", res.Nodes["root"].State)
		}
	})

	t.Run("tensor shape mismatch", func(t *testing.T) {
		f := &flow.Flow{
			Nodes: []flow.Node{
				{ID: "a", Kind: "tensor_create", Config: map[string]any{"rows": float64(2), "cols": float64(3)}},
				{ID: "b", Kind: "tensor_create", Config: map[string]any{"rows": float64(2), "cols": float64(3)}},
				{ID: "bad", Kind: "tensor_op", Config: map[string]any{"op": "dot", "inputs": []any{"a", "b"}}},
			},
			Edges: []flow.Edge{
				{Source: "a", Target: "bad"},
				{Source: "b", Target: "bad"},
			},
		}
		b, _ := backend.Select(flow.HintCPU)
		res, err := flow.New(b).Execute(context.Background(), compileFlow(t, f), nil)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if res.Nodes["bad"].State != flow.StateErrored {
			t.Errorf("bad state = %s, want errored", res.Nodes["bad"].State)
		}
	})
}
