package loader_test

import (
	"context"
	"testing"

	"github.com/animica-labs/pyvm/core/loader"
	"github.com/animica-labs/pyvm/core/resource"
	"github.com/animica-labs/pyvm/core/vmerrors"
	"github.com/animica-labs/pyvm/core/vmtypes"
)

const counterSource = "from stdlib import storage, events\n\n" +
	"def init():\n    storage.set_int(b\"VALUE\", 0)\n\n" +
	"def inc():\n" +
	"    v = storage.get_int(b\"VALUE\")\n" +
	"    storage.set_int(b\"VALUE\", v + 1)\n" +
	"    events.emit(b\"inc\", b\"value\", v + 1)\n\n" +
	"def get():\n    return storage.get_int(b\"VALUE\")\n"

func TestLoadRunsFullPipelineOverInlineCode(t *testing.T) {
	m := &loader.Manifest{Name: "counter", Code: counterSource}
	c, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.CodeHash == "" {
		t.Fatalf("expected a non-empty code hash")
	}
	want := []string{"get", "inc", "init"}
	if len(c.Exports) != len(want) {
		t.Fatalf("exports = %v, want %v", c.Exports, want)
	}
	for i, name := range want {
		if c.Exports[i] != name {
			t.Fatalf("exports = %v, want %v", c.Exports, want)
		}
	}
	if len(c.GasBound) != 3 {
		t.Fatalf("gas bound entries = %d, want 3", len(c.GasBound))
	}
	for _, name := range want {
		if c.GasBound[name] == 0 {
			t.Fatalf("gas bound for %s is 0", name)
		}
	}
}

func TestLoadIsDeterministicCodeHash(t *testing.T) {
	m := &loader.Manifest{Name: "counter", Code: counterSource}
	c1, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c2, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c1.CodeHash != c2.CodeHash {
		t.Fatalf("code hash not deterministic: %s != %s", c1.CodeHash, c2.CodeHash)
	}
}

func TestCallRoundTripsCounterInitIncGet(t *testing.T) {
	m := &loader.Manifest{Name: "counter", Code: counterSource}
	c, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess := &loader.Session{}
	if _, err := c.Call(context.Background(), "init", nil, sess); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := c.Call(context.Background(), "inc", nil, sess); err != nil {
		t.Fatalf("inc: %v", err)
	}
	res, err := c.Call(context.Background(), "get", nil, sess)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.ReturnValue.Kind != vmtypes.KindInt || res.ReturnValue.Int.Int64() != 1 {
		t.Fatalf("get = %+v, want int 1", res.ReturnValue)
	}
}

func TestCallRejectsUnexportedMethod(t *testing.T) {
	m := &loader.Manifest{Name: "counter", Code: counterSource, Exports: []string{"get"}}
	c, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err = c.Call(context.Background(), "init", nil, &loader.Session{})
	if err == nil {
		t.Fatalf("expected an unexported-method error")
	}
}

func TestCallRejectsUnknownMethod(t *testing.T) {
	m := &loader.Manifest{Name: "counter", Code: counterSource}
	c, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err = c.Call(context.Background(), "nope", nil, &loader.Session{})
	if err == nil {
		t.Fatalf("expected an unknown-method error")
	}
}

func TestLoadRejectsManifestWithoutSource(t *testing.T) {
	_, err := loader.ParseManifest([]byte(`{"name":"x"}`), "x.json")
	if err == nil {
		t.Fatalf("expected a missing-source error")
	}
}

func TestLoadRejectsManifestWithoutName(t *testing.T) {
	_, err := loader.ParseManifest([]byte(`{"code":"def f():\n    return 1\n"}`), "x.json")
	if err == nil {
		t.Fatalf("expected a missing-name error")
	}
}

func TestLoadSurfacesValidationErrors(t *testing.T) {
	m := &loader.Manifest{Name: "bad", Code: "import os\n"}
	_, err := loader.Load(m, "")
	if err == nil {
		t.Fatalf("expected a validation error for a forbidden import")
	}
	if !vmerrors.IsCode(err, vmerrors.CodeForbiddenImport) {
		t.Fatalf("wrong error code: %v", err)
	}
}

func TestCallDefaultGuardUsesManifestResources(t *testing.T) {
	src := "def f():\n    return 1\n"
	m := &loader.Manifest{
		Name: "guarded",
		Code: src,
		Resources: loader.ResourceSection{
			Caps:   []string{resource.CapTreasuryTransfer},
			Limits: map[string]uint64{"max_treasury_transfers": 3},
		},
	}
	c, err := loader.Load(m, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Resources.Caps) != 1 || c.Resources.Caps[0] != resource.CapTreasuryTransfer {
		t.Fatalf("resources not carried through: %+v", c.Resources)
	}
	res, err := c.Call(context.Background(), "f", nil, &loader.Session{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.ReturnValue.Int.Int64() != 1 {
		t.Fatalf("return = %v, want 1", res.ReturnValue.Int)
	}
}

func TestParseManifestAcceptsYamlHint(t *testing.T) {
	data := []byte("name: counter\ncode: |\n  def f():\n      return 1\n")
	m, err := loader.ParseManifest(data, "contract.yaml")
	if err != nil {
		t.Fatalf("parse yaml manifest: %v", err)
	}
	if m.Name != "counter" {
		t.Fatalf("name = %q, want counter", m.Name)
	}
}
