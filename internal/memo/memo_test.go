package memo

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestDoMemoizesSuccessfulCalls(t *testing.T) {
	m := New[string]()
	var calls int32
	fn := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	v1, err := m.Do("key", fn)
	if err != nil || v1 != "value" {
		t.Fatalf("unexpected result: %v %v", v1, err)
	}
	v2, err := m.Do("key", fn)
	if err != nil || v2 != "value" {
		t.Fatalf("unexpected result: %v %v", v2, err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoMemoizesErrors(t *testing.T) {
	m := New[string]()
	var calls int32
	wantErr := errors.New("boom")
	fn := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", wantErr
	}

	_, err := m.Do("key", fn)
	if err != wantErr {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = m.Do("key", fn)
	if err != wantErr {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoDistinctKeys(t *testing.T) {
	m := New[int]()
	v1, _ := m.Do("a", func() (int, error) { return 1, nil })
	v2, _ := m.Do("b", func() (int, error) { return 2, nil })
	if v1 != 1 || v2 != 2 {
		t.Fatalf("unexpected values: %d %d", v1, v2)
	}
}
