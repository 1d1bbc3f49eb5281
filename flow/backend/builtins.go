package backend

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/autograph-dev/autograph/flow"
)

// evalFunc evaluates one step from its upstream bindings.
type evalFunc func(ctx context.Context, s *session, step flow.Step, bindings map[string]any) (any, error)

// builtinEvals is the interpreter's vocabulary, one evaluator per builtin
// node kind. Values follow decoded-JSON conventions: numbers are float64,
// objects are map[string]any, arrays are []any.
var builtinEvals = map[string]evalFunc{
	// Control
	"start": func(_ context.Context, s *session, _ flow.Step, _ map[string]any) (any, error) {
		return s.input, nil
	},
	"print": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		in, _ := firstBinding(step, bindings)
		data, err := flow.EncodeValue(in)
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return in, nil
	},

	// HTTP
	"http_get":     httpEval("GET", false),
	"http_post":    httpEval("POST", true),
	"http_put":     httpEval("PUT", true),
	"http_delete":  httpEval("DELETE", false),
	"http_request": httpEval("", true),

	// JSON
	"json_parse": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		in, ok := firstBinding(step, bindings)
		if !ok || in == nil {
			return nil, nil
		}
		str, ok := in.(string)
		if !ok {
			return nil, fmt.Errorf("json_parse expects a string input")
		}
		return flow.DecodeValue([]byte(str))
	},
	"json_stringify": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		in, _ := firstBinding(step, bindings)
		data, err := flow.EncodeValue(in)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	},
	"json_get":   getEval,
	"object_get": getEval,
	"json_set":   setEval,
	"object_set": setEval,
	"object_keys": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		obj := asObject(bindingOr(step, bindings, nil))
		keys := sortedKeys(obj)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	},
	"object_values": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		obj := asObject(bindingOr(step, bindings, nil))
		keys := sortedKeys(obj)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = obj[k]
		}
		return out, nil
	},
	"object_has_key": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Key string `mapstructure:"key"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		obj := asObject(bindingOr(step, bindings, nil))
		_, ok := obj[cfg.Key]
		return ok, nil
	},

	// Strings
	"string_concat": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Separator string `mapstructure:"separator"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		in := bindingOr(step, bindings, "")
		if arr, ok := in.([]any); ok {
			parts := make([]string, len(arr))
			for i, e := range arr {
				parts[i] = asString(e)
			}
			return strings.Join(parts, cfg.Separator), nil
		}
		return asString(in) + cfg.Separator, nil
	},
	"string_upper": stringEval(strings.ToUpper),
	"string_lower": stringEval(strings.ToLower),
	"string_trim":  stringEval(strings.TrimSpace),
	"string_split": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Delimiter string `mapstructure:"delimiter"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		parts := strings.Split(asString(bindingOr(step, bindings, "")), cfg.Delimiter)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	},
	"string_replace": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Find    string `mapstructure:"find"`
			Replace string `mapstructure:"replace"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		return strings.ReplaceAll(asString(bindingOr(step, bindings, "")), cfg.Find, cfg.Replace), nil
	},
	"string_length": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		return float64(len([]rune(asString(bindingOr(step, bindings, ""))))), nil
	},

	// Arrays
	"array_map": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Op string `mapstructure:"op"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		arr, err := asArray(bindingOr(step, bindings, nil))
		if err != nil {
			return nil, err
		}
		out := make([]any, len(arr))
		for i, e := range arr {
			switch cfg.Op {
			case "to_string":
				out[i] = asString(e)
			case "to_int":
				n, err := asNumber(e)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				out[i] = math.Trunc(n)
			case "to_float":
				n, err := asNumber(e)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				out[i] = n
			case "upper":
				out[i] = strings.ToUpper(asString(e))
			case "lower":
				out[i] = strings.ToLower(asString(e))
			default:
				return nil, fmt.Errorf("unsupported map op %q", cfg.Op)
			}
		}
		return out, nil
	},
	"array_filter": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Op    string  `mapstructure:"op"`
			Value float64 `mapstructure:"value"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		arr, err := asArray(bindingOr(step, bindings, nil))
		if err != nil {
			return nil, err
		}
		out := []any{}
		for _, e := range arr {
			keep := false
			switch cfg.Op {
			case "truthy":
				keep = truthy(e)
			case "non_empty":
				keep = asString(e) != ""
			case "gt", "lt", "eq":
				n, err := asNumber(e)
				if err != nil {
					continue
				}
				switch cfg.Op {
				case "gt":
					keep = n > cfg.Value
				case "lt":
					keep = n < cfg.Value
				case "eq":
					keep = n == cfg.Value
				}
			default:
				return nil, fmt.Errorf("unsupported filter op %q", cfg.Op)
			}
			if keep {
				out = append(out, e)
			}
		}
		return out, nil
	},
	"array_reduce": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Op      string  `mapstructure:"op"`
			Initial float64 `mapstructure:"initial"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		arr, err := asArray(bindingOr(step, bindings, nil))
		if err != nil {
			return nil, err
		}
		switch cfg.Op {
		case "concat":
			var b strings.Builder
			for _, e := range arr {
				b.WriteString(asString(e))
			}
			return b.String(), nil
		case "sum", "product", "min", "max":
			nums := make([]float64, len(arr))
			for i, e := range arr {
				n, err := asNumber(e)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				nums[i] = n
			}
			switch cfg.Op {
			case "sum":
				acc := cfg.Initial
				for _, n := range nums {
					acc += n
				}
				return acc, nil
			case "product":
				acc := cfg.Initial
				if acc == 0 {
					acc = 1
				}
				for _, n := range nums {
					acc *= n
				}
				return acc, nil
			case "min", "max":
				if len(nums) == 0 {
					return cfg.Initial, nil
				}
				acc := nums[0]
				for _, n := range nums[1:] {
					if (cfg.Op == "min" && n < acc) || (cfg.Op == "max" && n > acc) {
						acc = n
					}
				}
				return acc, nil
			}
		}
		return nil, fmt.Errorf("unsupported reduce op %q", cfg.Op)
	},
	"array_slice": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Start int `mapstructure:"start"`
			End   int `mapstructure:"end"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		arr, err := asArray(bindingOr(step, bindings, nil))
		if err != nil {
			return nil, err
		}
		start, end := cfg.Start, cfg.End
		if start < 0 {
			start = 0
		}
		if end > len(arr) {
			end = len(arr)
		}
		if start >= end {
			return []any{}, nil
		}
		out := make([]any, end-start)
		copy(out, arr[start:end])
		return out, nil
	},
	"array_concat": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		a, err := asArray(bindingOr(step, bindings, nil))
		if err != nil {
			return nil, err
		}
		var b []any
		if len(step.Inputs) > 1 {
			if b, err = asArray(bindings[step.Inputs[1].Name]); err != nil {
				return nil, err
			}
		}
		out := make([]any, 0, len(a)+len(b))
		out = append(out, a...)
		out = append(out, b...)
		return out, nil
	},
	"array_sort": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Order string `mapstructure:"order"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		arr, err := asArray(bindingOr(step, bindings, nil))
		if err != nil {
			return nil, err
		}
		out := make([]any, len(arr))
		copy(out, arr)

		numeric := len(out) > 0
		for _, e := range out {
			if _, ok := e.(float64); !ok {
				numeric = false
				break
			}
		}
		less := func(i, j int) bool {
			if numeric {
				return out[i].(float64) < out[j].(float64)
			}
			return asString(out[i]) < asString(out[j])
		}
		if cfg.Order == "desc" {
			sort.SliceStable(out, func(i, j int) bool { return less(j, i) })
		} else {
			sort.SliceStable(out, less)
		}
		return out, nil
	},
	"array_length": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		arr, err := asArray(bindingOr(step, bindings, nil))
		if err != nil {
			return nil, err
		}
		return float64(len(arr)), nil
	},

	// Files
	"file_read": func(_ context.Context, _ *session, step flow.Step, _ map[string]any) (any, error) {
		path, err := configPath(step.Config)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	},
	"file_write": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		path, err := configPath(step.Config)
		if err != nil {
			return nil, err
		}
		content := asString(bindingOr(step, bindings, ""))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
		return true, nil
	},
	"file_exists": func(_ context.Context, _ *session, step flow.Step, _ map[string]any) (any, error) {
		path, err := configPath(step.Config)
		if err != nil {
			return nil, err
		}
		_, statErr := os.Stat(path)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				return false, nil
			}
			return nil, statErr
		}
		return true, nil
	},
	"file_delete": func(_ context.Context, _ *session, step flow.Step, _ map[string]any) (any, error) {
		path, err := configPath(step.Config)
		if err != nil {
			return nil, err
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return nil, err
		}
		return true, nil
	},
	"file_list": func(_ context.Context, _ *session, step flow.Step, _ map[string]any) (any, error) {
		path, err := configPath(step.Config)
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		sort.Strings(names)
		out := make([]any, len(names))
		for i, n := range names {
			out[i] = n
		}
		return out, nil
	},
	"dir_create": func(_ context.Context, _ *session, step flow.Step, _ map[string]any) (any, error) {
		path, err := configPath(step.Config)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		return true, nil
	},
	"json_read": func(_ context.Context, _ *session, step flow.Step, _ map[string]any) (any, error) {
		path, err := configPath(step.Config)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return flow.DecodeValue(data)
	},
	"json_write": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		path, err := configPath(step.Config)
		if err != nil {
			return nil, err
		}
		in, _ := firstBinding(step, bindings)
		data, err := flow.EncodeValue(in)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
		return true, nil
	},

	// Math
	"math_add":      mathBinaryEval("+", 0),
	"math_subtract": mathBinaryEval("-", 0),
	"math_multiply": mathBinaryEval("*", 1),
	"math_divide":   mathBinaryEval("/", 1),
	"math_floor":    mathUnaryEval(math.Floor),
	"math_ceil":     mathUnaryEval(math.Ceil),
	"math_round":    mathUnaryEval(math.Round),
	"math_sqrt": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		n, err := asNumber(bindingOr(step, bindings, float64(0)))
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("sqrt of negative number %v", n)
		}
		return math.Sqrt(n), nil
	},
	"math_random": func(_ context.Context, s *session, step flow.Step, _ map[string]any) (any, error) {
		return s.random(step.NodeID), nil
	},

	// Convert
	"to_string": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		in, _ := firstBinding(step, bindings)
		return asString(in), nil
	},
	"to_int": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		n, err := asNumber(bindingOr(step, bindings, float64(0)))
		if err != nil {
			return nil, err
		}
		return math.Trunc(n), nil
	},
	"to_float": func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		return asNumber(bindingOr(step, bindings, float64(0)))
	},

	// ML/GPU
	"tensor_create": func(_ context.Context, _ *session, step flow.Step, _ map[string]any) (any, error) {
		var cfg struct {
			Rows   int       `mapstructure:"rows"`
			Cols   int       `mapstructure:"cols"`
			Values []float64 `mapstructure:"values"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		t, err := flow.NewTensor(cfg.Rows, cfg.Cols)
		if err != nil {
			return nil, err
		}
		if len(cfg.Values) > 0 {
			if len(cfg.Values) != len(t.Data) {
				return nil, fmt.Errorf("values length %d does not match %dx%d", len(cfg.Values), cfg.Rows, cfg.Cols)
			}
			copy(t.Data, cfg.Values)
		}
		return t.Value(), nil
	},
	"tensor_op": func(_ context.Context, s *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Op     string   `mapstructure:"op"`
			Inputs []string `mapstructure:"inputs"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		operands := step.Inputs
		if len(cfg.Inputs) > 0 {
			operands = make([]flow.Binding, len(cfg.Inputs))
			for i, id := range cfg.Inputs {
				operands[i] = flow.OutBinding(id)
			}
		}
		if len(operands) != 2 {
			return nil, fmt.Errorf("tensor op needs exactly 2 inputs, got %d", len(operands))
		}
		a, err := flow.TensorFromValue(bindings[operands[0].Name])
		if err != nil {
			return nil, fmt.Errorf("left operand: %w", err)
		}
		b, err := flow.TensorFromValue(bindings[operands[1].Name])
		if err != nil {
			return nil, fmt.Errorf("right operand: %w", err)
		}
		var out *flow.Tensor
		switch cfg.Op {
		case "dot":
			out, err = s.backend.dot(a, b)
		case "add":
			out, err = a.Add(b)
		default:
			return nil, fmt.Errorf("unsupported tensor op %q", cfg.Op)
		}
		if err != nil {
			return nil, err
		}
		return out.Value(), nil
	},

	// System
	"sleep": func(ctx context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			MS int `mapstructure:"ms"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		timer := time.NewTimer(time.Duration(cfg.MS) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		in, _ := firstBinding(step, bindings)
		return in, nil
	},
}

// dot dispatches the matmul to the backend variant. The GPU walk covers
// the output matrix in column-major tiles; each element's accumulation
// order is identical to the CPU's, so results match byte for byte.
func (b *Interp) dot(x, y *flow.Tensor) (*flow.Tensor, error) {
	if !b.gpu {
		return x.Dot(y)
	}
	if x.Cols != y.Rows {
		return nil, fmt.Errorf("tensor dot: shape mismatch %dx%d . %dx%d", x.Rows, x.Cols, y.Rows, y.Cols)
	}
	out, err := flow.NewTensor(x.Rows, y.Cols)
	if err != nil {
		return nil, err
	}
	const tile = 16
	for jj := 0; jj < y.Cols; jj += tile {
		for ii := 0; ii < x.Rows; ii += tile {
			for j := jj; j < jj+tile && j < y.Cols; j++ {
				for i := ii; i < ii+tile && i < x.Rows; i++ {
					var sum float64
					for k := 0; k < x.Cols; k++ {
						sum += x.At(i, k) * y.At(k, j)
					}
					out.Set(i, j, sum)
				}
			}
		}
	}
	return out, nil
}

// httpEval builds an HTTP evaluator. An empty method reads it from config;
// withBody kinds send the node's input as the request body.
func httpEval(method string, withBody bool) evalFunc {
	return func(ctx context.Context, s *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			URL    string `mapstructure:"url"`
			Method string `mapstructure:"method"`
		}
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		m := method
		if m == "" {
			m = upperMethod(cfg.Method)
		}

		var body io.Reader
		if withBody {
			if in, ok := firstBinding(step, bindings); ok && in != nil {
				if str, isStr := in.(string); isStr {
					body = strings.NewReader(str)
				} else {
					data, err := flow.EncodeValue(in)
					if err != nil {
						return nil, err
					}
					body = strings.NewReader(string(data))
				}
			}
		}

		req, err := newHTTPRequest(ctx, m, cfg.URL, body)
		if err != nil {
			return nil, err
		}
		resp, err := s.backend.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"status_code": float64(resp.StatusCode),
			"body":        string(respBody),
		}, nil
	}
}

func getEval(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
	var cfg struct {
		Key string `mapstructure:"key"`
	}
	if err := decodeStepConfig(step.Config, &cfg); err != nil {
		return nil, err
	}
	obj := asObject(bindingOr(step, bindings, nil))
	return obj[cfg.Key], nil
}

func setEval(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
	var cfg struct {
		Key   string `mapstructure:"key"`
		Value string `mapstructure:"value"`
	}
	if err := decodeStepConfig(step.Config, &cfg); err != nil {
		return nil, err
	}
	obj := asObject(bindingOr(step, bindings, nil))
	out := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	out[cfg.Key] = cfg.Value
	return out, nil
}

func stringEval(fn func(string) string) evalFunc {
	return func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		return fn(asString(bindingOr(step, bindings, ""))), nil
	}
}

func mathBinaryEval(op string, def float64) evalFunc {
	return func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		var cfg struct {
			Value float64 `mapstructure:"value"`
		}
		if _, ok := step.Config["value"]; !ok {
			cfg.Value = def
		} else if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		n, err := asNumber(bindingOr(step, bindings, def))
		if err != nil {
			return nil, err
		}
		switch op {
		case "+":
			return n + cfg.Value, nil
		case "-":
			return n - cfg.Value, nil
		case "*":
			return n * cfg.Value, nil
		case "/":
			if cfg.Value == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return n / cfg.Value, nil
		}
		return nil, fmt.Errorf("unsupported operator %q", op)
	}
}

func mathUnaryEval(fn func(float64) float64) evalFunc {
	return func(_ context.Context, _ *session, step flow.Step, bindings map[string]any) (any, error) {
		n, err := asNumber(bindingOr(step, bindings, float64(0)))
		if err != nil {
			return nil, err
		}
		return fn(n), nil
	}
}

// bindingOr returns the first upstream value, or def for source nodes.
func bindingOr(step flow.Step, bindings map[string]any, def any) any {
	if v, ok := firstBinding(step, bindings); ok {
		return v
	}
	return def
}

func decodeStepConfig(config map[string]any, out any) error {
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

func configPath(config map[string]any) (string, error) {
	var cfg struct {
		Path string `mapstructure:"path"`
	}
	if err := decodeStepConfig(config, &cfg); err != nil {
		return "", err
	}
	if cfg.Path == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	return cfg.Path, nil
}

// asString renders a value the way the workflow language's to_string does:
// strings pass through, everything else is canonical JSON.
func asString(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := flow.EncodeValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func asNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", n)
		}
		return f, nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("value of type %T is not a number", v)
}

func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asArray(v any) ([]any, error) {
	if v == nil {
		return []any{}, nil
	}
	if arr, ok := v.([]any); ok {
		return arr, nil
	}
	return nil, fmt.Errorf("value of type %T is not an array", v)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
