package main

import (
	"testing"

	"github.com/animica-labs/pyvm/core/vmtypes"
)

func TestParseArgRecognizesBooleans(t *testing.T) {
	if v := parseArg("true"); v.Kind != vmtypes.KindBool || !v.Bool {
		t.Fatalf("parseArg(true) = %+v", v)
	}
	if v := parseArg("false"); v.Kind != vmtypes.KindBool || v.Bool {
		t.Fatalf("parseArg(false) = %+v", v)
	}
}

func TestParseArgRecognizesHexBytes(t *testing.T) {
	v := parseArg("0xdeadbeef")
	if v.Kind != vmtypes.KindBytes {
		t.Fatalf("kind = %v, want bytes", v.Kind)
	}
	if string(v.Bytes) != "\xde\xad\xbe\xef" {
		t.Fatalf("bytes = %x, want deadbeef", v.Bytes)
	}
}

func TestParseArgRecognizesDecimalInt(t *testing.T) {
	v := parseArg("42")
	if v.Kind != vmtypes.KindInt || v.Int.Int64() != 42 {
		t.Fatalf("parseArg(42) = %+v", v)
	}
}

func TestParseArgFallsBackToBytes(t *testing.T) {
	v := parseArg("hello")
	if v.Kind != vmtypes.KindBytes || string(v.Bytes) != "hello" {
		t.Fatalf("parseArg(hello) = %+v", v)
	}
}

func TestReturnStringFormatsEachKind(t *testing.T) {
	if s := returnString(vmtypes.NewIntFromInt64(7)); s != "7" {
		t.Fatalf("returnString(int) = %q", s)
	}
	if s := returnString(vmtypes.NewBytes([]byte{0xab, 0xcd})); s != "0xabcd" {
		t.Fatalf("returnString(bytes) = %q", s)
	}
	if s := returnString(vmtypes.NewBool(true)); s != "true" {
		t.Fatalf("returnString(bool) = %q", s)
	}
	if s := returnString(vmtypes.Null); s != "null" {
		t.Fatalf("returnString(null) = %q", s)
	}
}
