package flow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// The builtin vocabulary. Every kind generates one fragment of workflow
// source binding "<node_id>_out". Generators are pure: the same node id,
// config, and input bindings always produce the same text.

// decodeConfig decodes a loosely-typed config document into a typed struct.
// Numbers arrive as float64 from JSON; weak decoding folds them into the
// struct's field types and reports the offending field on mismatch.
func decodeConfig(config map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// firstInput returns the first inbound binding name, or the default literal
// when the node has no upstream producer.
func firstInput(inputs []Binding, def string) string {
	if len(inputs) > 0 {
		return inputs[0].Name
	}
	return def
}

// letLine renders the canonical single-assignment line of a fragment.
func letLine(nodeID, expr string) string {
	return "    let " + nodeID + "_out = " + expr + ";\n"
}

// outFragment wraps generated source and the canonical binding together.
func outFragment(nodeID, source string) Fragment {
	return Fragment{Source: source, Binding: nodeID + "_out"}
}

// formatNumber renders a float with the shortest exact representation so
// generated source is byte-stable across compiles.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func emptyConfig() map[string]any { return map[string]any{} }

// unaryCall builds a kind whose fragment is a single call over the node's
// input: "let <id>_out = <fn>(<input>);".
func unaryCall(name, category, description, fn, defaultInput string) Kind {
	return Kind{
		Name:          name,
		Category:      category,
		Description:   description,
		DefaultConfig: emptyConfig,
		Generate: func(nodeID string, _ map[string]any, inputs []Binding) (Fragment, error) {
			return outFragment(nodeID, letLine(nodeID, fn+"("+firstInput(inputs, defaultInput)+")")), nil
		},
	}
}

// pathCall builds a file-style kind whose fragment calls <fn> with a quoted
// path from config.
func pathCall(name, description, fn, defaultPath string) Kind {
	return Kind{
		Name:        name,
		Category:    "Files",
		Description: description,
		DefaultConfig: func() map[string]any {
			return map[string]any{"path": defaultPath}
		},
		Generate: func(nodeID string, config map[string]any, _ []Binding) (Fragment, error) {
			var cfg struct {
				Path string `mapstructure:"path"`
			}
			if err := decodeConfig(config, &cfg); err != nil {
				return Fragment{}, err
			}
			if cfg.Path == "" {
				cfg.Path = defaultPath
			}
			return outFragment(nodeID, letLine(nodeID, fn+"("+strconv.Quote(cfg.Path)+")")), nil
		},
	}
}

// pathWriteCall is pathCall with the node's input passed as the payload.
func pathWriteCall(name, description, fn, defaultPath, defaultInput string) Kind {
	k := pathCall(name, description, fn, defaultPath)
	k.Generate = func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
		var cfg struct {
			Path string `mapstructure:"path"`
		}
		if err := decodeConfig(config, &cfg); err != nil {
			return Fragment{}, err
		}
		if cfg.Path == "" {
			cfg.Path = defaultPath
		}
		expr := fn + "(" + strconv.Quote(cfg.Path) + ", " + firstInput(inputs, defaultInput) + ")"
		return outFragment(nodeID, letLine(nodeID, expr)), nil
	}
	return k
}

// binaryMathOp builds an arithmetic kind combining the input with a config
// operand: "let <id>_out = <input> <op> <value>;".
func binaryMathOp(name, description, op string, defaultValue float64) Kind {
	return Kind{
		Name:        name,
		Category:    "Math",
		Description: description,
		DefaultConfig: func() map[string]any {
			return map[string]any{"value": defaultValue}
		},
		Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
			var cfg struct {
				Value float64 `mapstructure:"value"`
			}
			if _, ok := config["value"]; !ok {
				cfg.Value = defaultValue
			} else if err := decodeConfig(config, &cfg); err != nil {
				return Fragment{}, err
			}
			if op == "/" && cfg.Value == 0 {
				return Fragment{}, fmt.Errorf("division by constant zero")
			}
			input := firstInput(inputs, formatNumber(defaultValue))
			expr := input + " " + op + " " + formatNumber(cfg.Value)
			return outFragment(nodeID, letLine(nodeID, expr)), nil
		},
	}
}

// keyedCall builds an object/json accessor taking a quoted key from config.
func keyedCall(name, category, description, fn, defaultInput string) Kind {
	return Kind{
		Name:        name,
		Category:    category,
		Description: description,
		DefaultConfig: func() map[string]any {
			return map[string]any{"key": "field"}
		},
		Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
			var cfg struct {
				Key string `mapstructure:"key"`
			}
			if err := decodeConfig(config, &cfg); err != nil {
				return Fragment{}, err
			}
			if cfg.Key == "" {
				return Fragment{}, fmt.Errorf("key must not be empty")
			}
			expr := fn + "(" + firstInput(inputs, defaultInput) + ", " + strconv.Quote(cfg.Key) + ")"
			return outFragment(nodeID, letLine(nodeID, expr)), nil
		},
	}
}

// keyedSetCall is keyedCall plus a string value operand.
func keyedSetCall(name, category, description, defaultInput string) Kind {
	k := keyedCall(name, category, description, "set", defaultInput)
	k.DefaultConfig = func() map[string]any {
		return map[string]any{"key": "field", "value": ""}
	}
	k.Generate = func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
		var cfg struct {
			Key   string `mapstructure:"key"`
			Value string `mapstructure:"value"`
		}
		if err := decodeConfig(config, &cfg); err != nil {
			return Fragment{}, err
		}
		if cfg.Key == "" {
			return Fragment{}, fmt.Errorf("key must not be empty")
		}
		expr := "set(" + firstInput(inputs, defaultInput) + ", " + strconv.Quote(cfg.Key) + ", " + strconv.Quote(cfg.Value) + ")"
		return outFragment(nodeID, letLine(nodeID, expr)), nil
	}
	return k
}

// httpKind builds an HTTP kind. Kinds with a fixed method take the method
// name; http_request reads it from config. Body-carrying methods pass the
// node's input as the request body.
func httpKind(name, description, method string, hasBody bool) Kind {
	return Kind{
		Name:        name,
		Category:    "HTTP",
		Description: description,
		DefaultConfig: func() map[string]any {
			cfg := map[string]any{"url": "https://example.com"}
			if method == "" {
				cfg["method"] = "GET"
			}
			return cfg
		},
		Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
			var cfg struct {
				URL    string `mapstructure:"url"`
				Method string `mapstructure:"method"`
			}
			if err := decodeConfig(config, &cfg); err != nil {
				return Fragment{}, err
			}
			if cfg.URL == "" {
				return Fragment{}, fmt.Errorf("url must not be empty")
			}
			m := method
			if m == "" {
				m = strings.ToUpper(cfg.Method)
				if m == "" {
					m = "GET"
				}
			}
			body := "null"
			if hasBody {
				body = firstInput(inputs, "null")
			}
			expr := "http_request(" + strconv.Quote(m) + ", " + strconv.Quote(cfg.URL) + ", " + body + ", {})"
			return outFragment(nodeID, letLine(nodeID, expr)), nil
		},
	}
}

// Named array operations. Lambdas stay out of the flow language; map,
// filter, and reduce select from a fixed operation vocabulary instead.
var (
	arrayMapOps    = map[string]bool{"to_string": true, "to_int": true, "to_float": true, "upper": true, "lower": true}
	arrayFilterOps = map[string]bool{"truthy": true, "gt": true, "lt": true, "eq": true, "non_empty": true}
	arrayReduceOps = map[string]bool{"sum": true, "product": true, "concat": true, "min": true, "max": true}
)

func registerBuiltins(r *Registry) {
	kinds := []Kind{
		// Control
		{
			Name:          "start",
			Category:      "Control",
			Description:   "Entry point for workflow",
			DefaultConfig: emptyConfig,
			Generate: func(nodeID string, _ map[string]any, _ []Binding) (Fragment, error) {
				return outFragment(nodeID, letLine(nodeID, "input")), nil
			},
		},
		{
			Name:          "print",
			Category:      "Debug",
			Description:   "Print value to console",
			DefaultConfig: emptyConfig,
			Generate: func(nodeID string, _ map[string]any, inputs []Binding) (Fragment, error) {
				in := firstInput(inputs, "null")
				src := "    print(" + in + ");\n" + letLine(nodeID, in)
				return outFragment(nodeID, src), nil
			},
		},

		// HTTP
		httpKind("http_get", "HTTP GET request", "GET", false),
		httpKind("http_post", "HTTP POST request", "POST", true),
		httpKind("http_put", "HTTP PUT request", "PUT", true),
		httpKind("http_delete", "HTTP DELETE request", "DELETE", false),
		httpKind("http_request", "Custom HTTP request", "", true),

		// Data - JSON
		unaryCall("json_parse", "Data", "Parse JSON string", "json_parse", "null"),
		unaryCall("json_stringify", "Data", "Convert value to JSON string", "json_stringify", "null"),
		keyedCall("json_get", "Data", "Get value from JSON object", "get", "null"),
		keyedSetCall("json_set", "Data", "Set value in JSON object", "{}"),

		// Data - String
		{
			Name:        "string_concat",
			Category:    "Data",
			Description: "Concatenate strings",
			DefaultConfig: func() map[string]any {
				return map[string]any{"separator": ""}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					Separator string `mapstructure:"separator"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				expr := "concat(" + firstInput(inputs, `""`) + ", " + strconv.Quote(cfg.Separator) + ")"
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},
		unaryCall("string_upper", "Data", "Convert to uppercase", "to_upper", `""`),
		unaryCall("string_lower", "Data", "Convert to lowercase", "to_lower", `""`),
		unaryCall("string_trim", "Data", "Trim whitespace", "trim", `""`),
		{
			Name:        "string_split",
			Category:    "Data",
			Description: "Split string into array",
			DefaultConfig: func() map[string]any {
				return map[string]any{"delimiter": ","}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					Delimiter string `mapstructure:"delimiter"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				if cfg.Delimiter == "" {
					return Fragment{}, fmt.Errorf("delimiter must not be empty")
				}
				expr := "split(" + firstInput(inputs, `""`) + ", " + strconv.Quote(cfg.Delimiter) + ")"
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},
		{
			Name:        "string_replace",
			Category:    "Data",
			Description: "Replace substring",
			DefaultConfig: func() map[string]any {
				return map[string]any{"find": "", "replace": ""}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					Find    string `mapstructure:"find"`
					Replace string `mapstructure:"replace"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				if cfg.Find == "" {
					return Fragment{}, fmt.Errorf("find must not be empty")
				}
				expr := "replace(" + firstInput(inputs, `""`) + ", " + strconv.Quote(cfg.Find) + ", " + strconv.Quote(cfg.Replace) + ")"
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},
		unaryCall("string_length", "Data", "Get string length", "strlen", `""`),

		// Data - Array
		{
			Name:        "array_map",
			Category:    "Data",
			Description: "Apply a named operation to each element",
			DefaultConfig: func() map[string]any {
				return map[string]any{"op": "to_string"}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					Op string `mapstructure:"op"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				if !arrayMapOps[cfg.Op] {
					return Fragment{}, fmt.Errorf("unsupported map op %q", cfg.Op)
				}
				expr := "arr_map(" + firstInput(inputs, "[]") + ", " + strconv.Quote(cfg.Op) + ")"
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},
		{
			Name:        "array_filter",
			Category:    "Data",
			Description: "Keep elements matching a named condition",
			DefaultConfig: func() map[string]any {
				return map[string]any{"op": "truthy", "value": 0}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					Op    string  `mapstructure:"op"`
					Value float64 `mapstructure:"value"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				if !arrayFilterOps[cfg.Op] {
					return Fragment{}, fmt.Errorf("unsupported filter op %q", cfg.Op)
				}
				expr := "arr_filter(" + firstInput(inputs, "[]") + ", " + strconv.Quote(cfg.Op) + ", " + formatNumber(cfg.Value) + ")"
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},
		{
			Name:        "array_reduce",
			Category:    "Data",
			Description: "Fold array with a named operation",
			DefaultConfig: func() map[string]any {
				return map[string]any{"op": "sum", "initial": 0}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					Op      string  `mapstructure:"op"`
					Initial float64 `mapstructure:"initial"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				if !arrayReduceOps[cfg.Op] {
					return Fragment{}, fmt.Errorf("unsupported reduce op %q", cfg.Op)
				}
				expr := "arr_reduce(" + firstInput(inputs, "[]") + ", " + strconv.Quote(cfg.Op) + ", " + formatNumber(cfg.Initial) + ")"
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},
		{
			Name:        "array_slice",
			Category:    "Data",
			Description: "Slice array",
			DefaultConfig: func() map[string]any {
				return map[string]any{"start": 0, "end": 10}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					Start int `mapstructure:"start"`
					End   int `mapstructure:"end"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				if cfg.Start < 0 {
					return Fragment{}, fmt.Errorf("start must not be negative")
				}
				expr := fmt.Sprintf("arr_slice(%s, %d, %d)", firstInput(inputs, "[]"), cfg.Start, cfg.End)
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},
		{
			Name:          "array_concat",
			Category:      "Data",
			Description:   "Concatenate arrays",
			DefaultConfig: emptyConfig,
			Generate: func(nodeID string, _ map[string]any, inputs []Binding) (Fragment, error) {
				a := "[]"
				b := "[]"
				if len(inputs) > 0 {
					a = inputs[0].Name
				}
				if len(inputs) > 1 {
					b = inputs[1].Name
				}
				return outFragment(nodeID, letLine(nodeID, "arr_concat("+a+", "+b+")")), nil
			},
		},
		{
			Name:        "array_sort",
			Category:    "Data",
			Description: "Sort array",
			DefaultConfig: func() map[string]any {
				return map[string]any{"order": "asc"}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					Order string `mapstructure:"order"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				if cfg.Order != "asc" && cfg.Order != "desc" {
					return Fragment{}, fmt.Errorf("order must be asc or desc, got %q", cfg.Order)
				}
				expr := "arr_sort(" + firstInput(inputs, "[]") + ", " + strconv.Quote(cfg.Order) + ")"
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},
		unaryCall("array_length", "Data", "Get array length", "len", "[]"),

		// Data - Object
		keyedCall("object_get", "Data", "Get object property", "get", "{}"),
		keyedSetCall("object_set", "Data", "Set object property", "{}"),
		unaryCall("object_keys", "Data", "Get object keys", "keys", "{}"),
		unaryCall("object_values", "Data", "Get object values", "values", "{}"),
		keyedCall("object_has_key", "Data", "Check if object has key", "has_key", "{}"),

		// Files
		pathCall("file_read", "Read file contents", "read_file", "file.txt"),
		pathWriteCall("file_write", "Write file contents", "write_file", "file.txt", `""`),
		pathCall("file_exists", "Check if file exists", "file_exists", "file.txt"),
		pathCall("file_delete", "Delete file", "delete_file", "file.txt"),
		pathCall("file_list", "List files in directory", "list_files", "."),
		pathCall("dir_create", "Create directory", "create_dir", "new_dir"),
		pathCall("json_read", "Read JSON file", "read_json", "data.json"),
		pathWriteCall("json_write", "Write JSON file", "write_json", "data.json", "null"),

		// Math
		binaryMathOp("math_add", "Add two numbers", "+", 0),
		binaryMathOp("math_subtract", "Subtract two numbers", "-", 0),
		binaryMathOp("math_multiply", "Multiply two numbers", "*", 1),
		binaryMathOp("math_divide", "Divide two numbers", "/", 1),
		unaryCall("math_floor", "Math", "Floor of number", "floor", "0"),
		unaryCall("math_ceil", "Math", "Ceiling of number", "ceil", "0"),
		unaryCall("math_round", "Math", "Round number", "round", "0"),
		unaryCall("math_sqrt", "Math", "Square root", "sqrt", "0"),
		{
			Name:          "math_random",
			Category:      "Math",
			Description:   "Deterministic random number in [0,1) from the run seed",
			DefaultConfig: emptyConfig,
			Generate: func(nodeID string, _ map[string]any, _ []Binding) (Fragment, error) {
				return outFragment(nodeID, letLine(nodeID, "random()")), nil
			},
		},

		// Convert
		unaryCall("to_string", "Convert", "Convert to string", "to_string", "null"),
		unaryCall("to_int", "Convert", "Convert to integer", "to_int", "0"),
		unaryCall("to_float", "Convert", "Convert to float", "to_float", "0"),

		// ML/GPU
		{
			Name:        "tensor_create",
			Category:    "ML/GPU",
			Description: "Create 2D tensor",
			DefaultConfig: func() map[string]any {
				return map[string]any{"rows": 2, "cols": 2, "values": []any{1.0, 0.0, 0.0, 1.0}}
			},
			Generate: func(nodeID string, config map[string]any, _ []Binding) (Fragment, error) {
				var cfg struct {
					Rows   int       `mapstructure:"rows"`
					Cols   int       `mapstructure:"cols"`
					Values []float64 `mapstructure:"values"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				if cfg.Rows <= 0 || cfg.Cols <= 0 {
					return Fragment{}, fmt.Errorf("rows and cols must be positive, got %dx%d", cfg.Rows, cfg.Cols)
				}
				if len(cfg.Values) != 0 && len(cfg.Values) != cfg.Rows*cfg.Cols {
					return Fragment{}, fmt.Errorf("values length %d does not match %dx%d", len(cfg.Values), cfg.Rows, cfg.Cols)
				}
				vals := make([]string, len(cfg.Values))
				for i, v := range cfg.Values {
					vals[i] = formatNumber(v)
				}
				expr := fmt.Sprintf("tensor_new_2d(%d, %d, [%s])", cfg.Rows, cfg.Cols, strings.Join(vals, ", "))
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},
		{
			Name:        "tensor_op",
			Category:    "ML/GPU",
			Description: "Binary tensor operation (dot, add)",
			DefaultConfig: func() map[string]any {
				return map[string]any{"op": "dot"}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					Op     string   `mapstructure:"op"`
					Inputs []string `mapstructure:"inputs"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				var fn string
				switch cfg.Op {
				case "dot":
					fn = "tensor_dot"
				case "add":
					fn = "tensor_add"
				default:
					return Fragment{}, fmt.Errorf("unsupported tensor op %q", cfg.Op)
				}
				// config.inputs pins operand order by source node id;
				// otherwise the sorted inbound bindings are used as-is.
				operands := inputs
				if len(cfg.Inputs) > 0 {
					operands = make([]Binding, len(cfg.Inputs))
					for i, id := range cfg.Inputs {
						found := false
						for _, b := range inputs {
							if b.NodeID == id {
								operands[i] = b
								found = true
								break
							}
						}
						if !found {
							return Fragment{}, fmt.Errorf("config names input %q but no such edge exists", id)
						}
					}
				}
				if len(operands) != 2 {
					return Fragment{}, fmt.Errorf("tensor op needs exactly 2 inputs, got %d", len(operands))
				}
				expr := fn + "(" + operands[0].Name + ", " + operands[1].Name + ")"
				return outFragment(nodeID, letLine(nodeID, expr)), nil
			},
		},

		// System
		{
			Name:        "sleep",
			Category:    "System",
			Description: "Sleep for milliseconds",
			DefaultConfig: func() map[string]any {
				return map[string]any{"ms": 1000}
			},
			Generate: func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error) {
				var cfg struct {
					MS int `mapstructure:"ms"`
				}
				if err := decodeConfig(config, &cfg); err != nil {
					return Fragment{}, err
				}
				if cfg.MS < 0 {
					return Fragment{}, fmt.Errorf("ms must not be negative")
				}
				src := fmt.Sprintf("    sleep(%d);\n", cfg.MS) + letLine(nodeID, firstInput(inputs, "null"))
				return outFragment(nodeID, src), nil
			},
		},
	}

	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
}
