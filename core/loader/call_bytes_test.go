package loader_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/animica-labs/pyvm/core/loader"
)

func TestCallBytesRoundTripsIntResult(t *testing.T) {
	m := &loader.Manifest{Name: "add", Code: "def add(a, b):\n    return a + b\n"}
	c, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	payload := []byte(`{"method":"add","args":[{"kind":"int","int":"2"},{"kind":"int","int":"3"}]}`)
	out, err := c.CallBytes(context.Background(), payload, nil)
	if err != nil {
		t.Fatalf("call_bytes: %v", err)
	}
	var decoded struct {
		Return struct {
			Kind string `json:"kind"`
			Int  string `json:"int"`
		} `json:"return"`
		GasUsed uint64 `json:"gas_used"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.Return.Kind != "int" || decoded.Return.Int != "5" {
		t.Fatalf("return = %+v, want int 5", decoded.Return)
	}
	if decoded.GasUsed == 0 {
		t.Fatalf("expected nonzero gas used")
	}
}

func TestCallBytesRejectsMalformedJSON(t *testing.T) {
	m := &loader.Manifest{Name: "add", Code: "def add(a, b):\n    return a + b\n"}
	c, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err = c.CallBytes(context.Background(), []byte("not json"), nil)
	if err == nil {
		t.Fatalf("expected a decode error")
	}
}

func TestCallBytesRejectsUnknownArgKind(t *testing.T) {
	m := &loader.Manifest{Name: "add", Code: "def add(a, b):\n    return a + b\n"}
	c, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	payload := []byte(`{"method":"add","args":[{"kind":"weird"}]}`)
	_, err = c.CallBytes(context.Background(), payload, nil)
	if err == nil {
		t.Fatalf("expected an unknown arg kind error")
	}
}
