package gas_test

import (
	"testing"

	"github.com/animica-labs/pyvm/core/gas"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

func TestConsumeMonotonic(t *testing.T) {
	m := gas.NewMeter(10)
	if err := m.Consume(4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Used() != 4 {
		t.Fatalf("used = %d, want 4", m.Used())
	}
	if err := m.Consume(7); err == nil {
		t.Fatalf("expected out_of_gas")
	} else if !vmerrors.IsCode(err, vmerrors.CodeOutOfGas) {
		t.Fatalf("wrong error code: %v", err)
	}
	if m.Used() != 4 {
		t.Fatalf("used changed after failed consume: %d", m.Used())
	}
}

func TestRefundOnlyAppliesAtFinalize(t *testing.T) {
	m := gas.NewMeter(100)
	_ = m.Consume(50)
	m.Refund(20)
	if m.Used() != 50 {
		t.Fatalf("refund must not reduce used mid-call, got %d", m.Used())
	}
	eff := m.Finalize(1.0)
	if eff != 30 {
		t.Fatalf("finalize(1.0) = %d, want 30", eff)
	}
}

func TestFinalizeRatioCap(t *testing.T) {
	m := gas.NewMeter(100)
	_ = m.Consume(50)
	m.Refund(40)
	eff := m.Finalize(0.5) // cap = floor(50*0.5) = 25
	if eff != 25 {
		t.Fatalf("finalize(0.5) = %d, want 25", eff)
	}
}

func TestCheckpointRollsBackOnError(t *testing.T) {
	m := gas.NewMeter(100)
	_ = m.Consume(10)
	snapBefore := m.Snapshot()
	err := m.Checkpoint(func() error {
		_ = m.Consume(5)
		return vmerrors.New("boom", "fail", nil)
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	after := m.Snapshot()
	if after != snapBefore {
		t.Fatalf("checkpoint did not roll back: before=%+v after=%+v", snapBefore, after)
	}
}
