package events_test

import (
	"math/big"
	"testing"

	"github.com/animica-labs/pyvm/core/host/events"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

func TestEmitAndReceiptShape(t *testing.T) {
	s := events.NewSink()
	err := s.Emit([]byte("Demo"), []events.Arg{
		{Key: "bin", Kind: events.ArgBytes, Bytes: []byte{0x01, 0x02}},
		{Key: "n", Kind: events.ArgInt, Int: big.NewInt(42)},
		{Key: "flag", Kind: events.ArgBool, Bool: true},
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	receipts := s.EventsForReceipt()
	if len(receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(receipts))
	}
	r := receipts[0]
	if r.Name != "0x44656d6f" {
		t.Fatalf("name = %q", r.Name)
	}
	if len(r.Args) != 3 || r.Args[0].T != "b" || r.Args[0].V != "0x0102" {
		t.Fatalf("unexpected args: %+v", r.Args)
	}
	if r.Args[2].T != "z" || r.Args[2].V != true {
		t.Fatalf("unexpected bool arg: %+v", r.Args[2])
	}
}

func TestEmitEmptyNameRejected(t *testing.T) {
	s := events.NewSink()
	err := s.Emit([]byte(""), nil)
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeEventInvalid) {
		t.Fatalf("expected event_invalid, got %v", err)
	}
}

func TestEmitBadKeyRejected(t *testing.T) {
	s := events.NewSink()
	err := s.Emit([]byte("X"), []events.Arg{{Key: "bad-key", Kind: events.ArgInt, Int: big.NewInt(1)}})
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeEventInvalid) {
		t.Fatalf("expected event_invalid, got %v", err)
	}
}

func TestEventsPreserveEmissionOrder(t *testing.T) {
	s := events.NewSink()
	_ = s.Emit([]byte("A"), nil)
	_ = s.Emit([]byte("B"), nil)
	_ = s.Emit([]byte("C"), nil)
	evs := s.Events()
	names := []string{string(evs[0].Name), string(evs[1].Name), string(evs[2].Name)}
	if names[0] != "A" || names[1] != "B" || names[2] != "C" {
		t.Fatalf("events out of order: %v", names)
	}
}
