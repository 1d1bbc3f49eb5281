package flow

import (
	"sort"
	"testing"
)

func passthroughKind(name string) Kind {
	return Kind{
		Name:          name,
		Category:      "Test",
		Description:   "test kind",
		DefaultConfig: emptyConfig,
		Generate: func(nodeID string, _ map[string]any, inputs []Binding) (Fragment, error) {
			return outFragment(nodeID, letLine(nodeID, firstInput(inputs, "input"))), nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Run("duplicate name rejected", func(t *testing.T) {
		reg := NewRegistry()
		if err := reg.Register(passthroughKind("task")); err != nil {
			t.Fatalf("first Register failed: %v", err)
		}
		err := reg.Register(passthroughKind("task"))
		if !IsCode(err, CodeDuplicateKind) {
			t.Errorf("second Register = %v, want DUPLICATE_KIND", err)
		}
	})

	t.Run("lookup unknown", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Lookup("ghost")
		if !IsCode(err, CodeUnknownKind) {
			t.Errorf("Lookup(ghost) = %v, want UNKNOWN_KIND", err)
		}
	})

	t.Run("names sorted", func(t *testing.T) {
		reg := NewRegistry()
		for _, name := range []string{"zeta", "alpha", "mid"} {
			if err := reg.Register(passthroughKind(name)); err != nil {
				t.Fatalf("Register(%s) failed: %v", name, err)
			}
		}
		names := reg.Names()
		if !sort.StringsAreSorted(names) {
			t.Errorf("Names() not sorted: %v", names)
		}
		if len(names) != 3 {
			t.Errorf("Names() = %v", names)
		}
	})
}

func TestBuiltins(t *testing.T) {
	reg := Builtins()

	t.Run("vocabulary present", func(t *testing.T) {
		for _, name := range []string{
			"start", "print",
			"http_get", "http_request",
			"json_parse", "json_stringify", "json_get", "json_set",
			"string_concat", "string_split", "string_replace",
			"array_map", "array_filter", "array_reduce", "array_sort",
			"object_keys", "object_has_key",
			"file_read", "file_write", "json_read", "json_write", "dir_create",
			"math_add", "math_divide", "math_sqrt", "math_random",
			"to_string", "to_int", "to_float",
			"tensor_create", "tensor_op", "sleep",
		} {
			if _, err := reg.Lookup(name); err != nil {
				t.Errorf("Lookup(%s) failed: %v", name, err)
			}
		}
	})

	t.Run("default configs are fresh maps", func(t *testing.T) {
		k, err := reg.Lookup("math_add")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		first := k.DefaultConfig()
		first["value"] = float64(42)
		second := k.DefaultConfig()
		if second["value"] == float64(42) {
			t.Error("DefaultConfig returned a shared map")
		}
	})

	t.Run("singleton", func(t *testing.T) {
		if Builtins() != reg {
			t.Error("Builtins() returned a different registry")
		}
	})
}
