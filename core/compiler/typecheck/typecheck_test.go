package typecheck_test

import (
	"testing"

	"github.com/animica-labs/pyvm/core/compiler/lower"
	"github.com/animica-labs/pyvm/core/compiler/typecheck"
	"github.com/animica-labs/pyvm/core/validator"
)

func TestModuleAcceptsCounterContract(t *testing.T) {
	src := "from stdlib import storage, events\n\n" +
		"def init():\n    storage.set_int(b\"VALUE\", 0)\n\n" +
		"def inc():\n" +
		"    v = storage.get_int(b\"VALUE\")\n" +
		"    storage.set_int(b\"VALUE\", v + 1)\n" +
		"    events.emit(b\"inc\", b\"value\", v + 1)\n\n" +
		"def get():\n    return storage.get_int(b\"VALUE\")\n"
	mod, err := validator.Validate(src)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	irMod, err := lower.Module(mod, "counter")
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if err := typecheck.Module(irMod); err != nil {
		t.Fatalf("typecheck: %v", err)
	}
}

func TestModuleRejectsArithmeticOnBytes(t *testing.T) {
	src := "def f():\n    return b\"x\" - b\"y\"\n"
	mod, err := validator.Validate(src)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	irMod, err := lower.Module(mod, "m")
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if err := typecheck.Module(irMod); err == nil {
		t.Fatalf("expected a type error for bytes subtraction")
	}
}

func TestModuleAllowsBytesConcatenationViaAdd(t *testing.T) {
	src := "def f():\n    return b\"x\" + b\"y\"\n"
	mod, err := validator.Validate(src)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	irMod, err := lower.Module(mod, "m")
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if err := typecheck.Module(irMod); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestModuleRejectsInconsistentReturnTypes(t *testing.T) {
	src := "def f(a):\n    if a:\n        return 1\n    else:\n        return b\"x\"\n"
	mod, err := validator.Validate(src)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	irMod, err := lower.Module(mod, "m")
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if err := typecheck.Module(irMod); err == nil {
		t.Fatalf("expected inconsistent return type error")
	}
}

func TestModuleRejectsOrderedComparisonOnMismatchedTypes(t *testing.T) {
	src := "def f():\n    return 1 < b\"x\"\n"
	mod, err := validator.Validate(src)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	irMod, err := lower.Module(mod, "m")
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if err := typecheck.Module(irMod); err == nil {
		t.Fatalf("expected a comparison type-mismatch error")
	}
}
