package validator_test

import (
	"strings"
	"testing"

	"github.com/animica-labs/pyvm/core/validator"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

const counterSource = `
from stdlib import storage, events

def init():
    storage.set_int(b"VALUE", 0)

def inc():
    v = storage.get_int(b"VALUE")
    storage.set_int(b"VALUE", v + 1)
    events.emit(b"inc", b"value", v + 1)

def get():
    return storage.get_int(b"VALUE")
`

func TestValidateAcceptsCounterContract(t *testing.T) {
	mod, err := validator.Validate(counterSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mod.Body) == 0 {
		t.Fatalf("expected a non-empty module body")
	}
}

func TestValidateRejectsForbiddenImport(t *testing.T) {
	cases := []string{
		"import os\n",
		"from time import sleep\n",
		"import random\n",
		"from urllib import request\n",
		"from . import x\n",
	}
	for _, src := range cases {
		_, err := validator.Validate(src)
		if err == nil {
			t.Fatalf("expected forbidden_import error for %q", src)
		}
		if !vmerrors.IsCode(err, vmerrors.CodeForbiddenImport) {
			t.Fatalf("wrong error code for %q: %v", src, err)
		}
	}
}

func TestValidateRejectsWildcardImport(t *testing.T) {
	_, err := validator.Validate("from stdlib import *\n")
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeValidationWildcard) {
		t.Fatalf("expected import_wildcard error, got %v", err)
	}
}

func TestValidateAcceptsMultiNameStdlibImport(t *testing.T) {
	src := "from stdlib import storage, events\n\ndef get():\n    return storage.get_int(b\"X\")\n"
	if _, err := validator.Validate(src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBlockedBuiltin(t *testing.T) {
	src := "def f():\n    return eval(b\"1\")\n"
	_, err := validator.Validate(src)
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeValidationBuiltin) {
		t.Fatalf("expected builtin_forbidden error, got %v", err)
	}
}

func TestValidateRejectsPrivateFunctionAtModuleScope(t *testing.T) {
	src := "def _helper():\n    pass\n"
	_, err := validator.Validate(src)
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeValidationPrivate) {
		t.Fatalf("expected private_name error, got %v", err)
	}
}

func TestValidateRejectsDuplicateFunctionNames(t *testing.T) {
	src := "def f():\n    pass\n\ndef f():\n    pass\n"
	_, err := validator.Validate(src)
	if err == nil {
		t.Fatalf("expected duplicate function definition error")
	}
}

func TestValidateRejectsTooManyParameters(t *testing.T) {
	src := "def f(a, b, c, d, e, f, g, h, i):\n    pass\n"
	_, err := validator.Validate(src)
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeValidationArgs) {
		t.Fatalf("expected arg_limit error, got %v", err)
	}
}

func TestValidateRejectsSourceOverSizeCap(t *testing.T) {
	src := "def f():\n    x = " + strings.Repeat("1", validator.MaxSourceBytes) + "\n"
	_, err := validator.Validate(src)
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeValidationSize) {
		t.Fatalf("expected size_limit error, got %v", err)
	}
}

func TestValidateRejectsChainedComparison(t *testing.T) {
	src := "def f():\n    return 1 < 2 < 3\n"
	_, err := validator.Validate(src)
	if err == nil {
		t.Fatalf("expected chained comparison to be rejected")
	}
}

func TestValidateRejectsUnsupportedStdlibCallShape(t *testing.T) {
	src := "from stdlib import storage\n\ndef f():\n    return storage.get.nested(b\"X\")\n"
	_, err := validator.Validate(src)
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeValidationCallShpe) {
		t.Fatalf("expected stdlib_call_shape error, got %v", err)
	}
}

func TestValidateRejectsUnimportedStdlibSubmodule(t *testing.T) {
	src := "from stdlib import storage\n\ndef f():\n    return events.emit(b\"x\", b\"y\", b\"z\")\n"
	_, err := validator.Validate(src)
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeValidationCallShpe) {
		t.Fatalf("expected stdlib_call_shape error, got %v", err)
	}
}

func TestValidateAcceptsPublicConstantAtModuleScope(t *testing.T) {
	src := "OWNER = b\"admin\"\n\ndef f():\n    return OWNER\n"
	if _, err := validator.Validate(src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsFloatLiteral(t *testing.T) {
	src := "def f():\n    return 1.5\n"
	_, err := validator.Validate(src)
	if err == nil {
		t.Fatalf("expected float literal rejection")
	}
}
