package flow

import (
	"reflect"
	"testing"
)

func TestTensor_Dot(t *testing.T) {
	t.Run("identity is neutral", func(t *testing.T) {
		id, err := Identity(2)
		if err != nil {
			t.Fatalf("Identity failed: %v", err)
		}
		m, _ := NewTensor(2, 2)
		m.Data = []float64{1, 2, 3, 4}

		out, err := id.Dot(m)
		if err != nil {
			t.Fatalf("Dot failed: %v", err)
		}
		if !reflect.DeepEqual(out.Data, m.Data) {
			t.Errorf("identity dot = %v, want %v", out.Data, m.Data)
		}
	})

	t.Run("ones squared", func(t *testing.T) {
		a, _ := NewTensor(2, 2)
		a.Fill(1)
		out, err := a.Dot(a)
		if err != nil {
			t.Fatalf("Dot failed: %v", err)
		}
		for i, v := range out.Data {
			if v != 2 {
				t.Errorf("Data[%d] = %v, want 2", i, v)
			}
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		a, _ := NewTensor(2, 3)
		b, _ := NewTensor(2, 3)
		if _, err := a.Dot(b); err == nil {
			t.Error("Dot accepted mismatched shapes")
		}
	})
}

func TestTensor_Add(t *testing.T) {
	a, _ := NewTensor(2, 2)
	a.Fill(1.5)
	b, _ := NewTensor(2, 2)
	b.Fill(0.5)

	out, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	for i, v := range out.Data {
		if v != 2 {
			t.Errorf("Data[%d] = %v, want 2", i, v)
		}
	}

	c, _ := NewTensor(1, 2)
	if _, err := a.Add(c); err == nil {
		t.Error("Add accepted mismatched shapes")
	}
}

func TestTensor_ValueRoundTrip(t *testing.T) {
	a, _ := NewTensor(2, 3)
	for i := range a.Data {
		a.Data[i] = float64(i)
	}

	back, err := TensorFromValue(a.Value())
	if err != nil {
		t.Fatalf("TensorFromValue failed: %v", err)
	}
	if back.Rows != 2 || back.Cols != 3 || !reflect.DeepEqual(back.Data, a.Data) {
		t.Errorf("round trip = %+v, want %+v", back, a)
	}

	if _, err := TensorFromValue("not a tensor"); err == nil {
		t.Error("TensorFromValue accepted a non-tensor value")
	}
}

func TestNewTensor_InvalidDims(t *testing.T) {
	for _, dims := range [][2]int{{0, 2}, {2, 0}, {-1, 3}} {
		if _, err := NewTensor(dims[0], dims[1]); err == nil {
			t.Errorf("NewTensor(%d, %d) accepted invalid dims", dims[0], dims[1])
		}
	}
}
