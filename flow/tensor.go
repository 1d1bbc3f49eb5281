package flow

import "fmt"

// Tensor is a dense row-major 2-D matrix of float64 values.
//
// Its JSON form is fixed: {"rows":R,"cols":C,"data":[...]} with data in
// row-major order. The form is part of the timeline capture contract, so
// a tensor produced on any backend encodes to identical bytes.
type Tensor struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// NewTensor allocates a zero-filled rows x cols tensor.
func NewTensor(rows, cols int) (*Tensor, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("tensor dimensions must be positive, got %dx%d", rows, cols)
	}
	return &Tensor{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}, nil
}

// At returns the element at row r, column c.
func (t *Tensor) At(r, c int) float64 {
	return t.Data[r*t.Cols+c]
}

// Set assigns the element at row r, column c.
func (t *Tensor) Set(r, c int, v float64) {
	t.Data[r*t.Cols+c] = v
}

// Fill sets every element to v and returns the tensor.
func (t *Tensor) Fill(v float64) *Tensor {
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

// Identity returns the n x n identity matrix.
func Identity(n int) (*Tensor, error) {
	t, err := NewTensor(n, n)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		t.Set(i, i, 1)
	}
	return t, nil
}

// Dot computes the matrix product t x other.
//
// The accumulation order is fixed (k ascending) on every backend so the
// result bytes never depend on where the product was computed.
func (t *Tensor) Dot(other *Tensor) (*Tensor, error) {
	if t.Cols != other.Rows {
		return nil, fmt.Errorf("tensor dot: shape mismatch %dx%d . %dx%d", t.Rows, t.Cols, other.Rows, other.Cols)
	}
	out, err := NewTensor(t.Rows, other.Cols)
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.Rows; i++ {
		for j := 0; j < other.Cols; j++ {
			var sum float64
			for k := 0; k < t.Cols; k++ {
				sum += t.At(i, k) * other.At(k, j)
			}
			out.Set(i, j, sum)
		}
	}
	return out, nil
}

// Add computes the element-wise sum t + other.
func (t *Tensor) Add(other *Tensor) (*Tensor, error) {
	if t.Rows != other.Rows || t.Cols != other.Cols {
		return nil, fmt.Errorf("tensor add: shape mismatch %dx%d + %dx%d", t.Rows, t.Cols, other.Rows, other.Cols)
	}
	out, err := NewTensor(t.Rows, t.Cols)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		out.Data[i] = t.Data[i] + other.Data[i]
	}
	return out, nil
}

// TensorFromValue interprets a decoded JSON value as a tensor.
func TensorFromValue(v any) (*Tensor, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value is not a tensor object")
	}
	rows, ok1 := asFloat(m["rows"])
	cols, ok2 := asFloat(m["cols"])
	raw, ok3 := m["data"].([]any)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("value is not a tensor object")
	}
	t, err := NewTensor(int(rows), int(cols))
	if err != nil {
		return nil, err
	}
	if len(raw) != len(t.Data) {
		return nil, fmt.Errorf("tensor data length %d does not match %dx%d", len(raw), int(rows), int(cols))
	}
	for i, e := range raw {
		f, ok := asFloat(e)
		if !ok {
			return nil, fmt.Errorf("tensor element %d is not a number", i)
		}
		t.Data[i] = f
	}
	return t, nil
}

// Value returns the tensor in its generic decoded-JSON shape.
func (t *Tensor) Value() map[string]any {
	data := make([]any, len(t.Data))
	for i, f := range t.Data {
		data[i] = f
	}
	return map[string]any{"rows": float64(t.Rows), "cols": float64(t.Cols), "data": data}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
