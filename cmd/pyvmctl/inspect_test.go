package main

import (
	"testing"

	"github.com/animica-labs/pyvm/core/compiler/lower"
	"github.com/animica-labs/pyvm/core/validator"
)

func TestDescribeProgSummarizesBlocks(t *testing.T) {
	mod, err := validator.Validate("def f(a):\n    if a:\n        return 1\n    else:\n        return 0\n")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	irMod, err := lower.Module(mod, "m")
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	prog, err := lower.ToProg(irMod.Functions[0].Fn)
	if err != nil {
		t.Fatalf("ToProg: %v", err)
	}
	summary := describeProg(prog)
	if summary.Kind != "prog" || summary.EntryLabel != prog.EntryLabel {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Blocks) != len(prog.Blocks) {
		t.Fatalf("blocks = %d, want %d", len(summary.Blocks), len(prog.Blocks))
	}
}

func TestDescribeModuleSummarizesFunctions(t *testing.T) {
	mod, err := validator.Validate("def f(a, b):\n    return a + b\n\ndef g():\n    return 0\n")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	irMod, err := lower.Module(mod, "m")
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	summary := describeModule(irMod)
	if summary.Kind != "module" || summary.Filename != "m" {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Functions) != 2 {
		t.Fatalf("functions = %d, want 2", len(summary.Functions))
	}
	if summary.Functions[0].Name != "f" || len(summary.Functions[0].Params) != 2 {
		t.Fatalf("f summary = %+v", summary.Functions[0])
	}
}

func TestJSONIndentProducesIndentedOutput(t *testing.T) {
	s, err := jsonIndent(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("jsonIndent: %v", err)
	}
	if s != "{\n  \"a\": 1\n}" {
		t.Fatalf("jsonIndent = %q", s)
	}
}
