package resource_test

import (
	"testing"

	"github.com/animica-labs/pyvm/core/resource"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

func TestBlobPinExhaustionDoesNotMutateOnFailure(t *testing.T) {
	g := resource.New([]string{resource.CapBlobPin}, resource.Limits{MaxBlobBytes: 1024})
	if err := g.UseBlobPin(600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.UseBlobPin(424); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u := g.Usage().BlobBytes; u != 1024 {
		t.Fatalf("usage = %d, want 1024", u)
	}
	err := g.UseBlobPin(1)
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeResourceExhausted) {
		t.Fatalf("expected resource_exhausted, got %v", err)
	}
	ve := err.(*vmerrors.VmError)
	if ve.Context["used"] != uint64(1025) || ve.Context["limit"] != uint64(1024) {
		t.Fatalf("unexpected context: %+v", ve.Context)
	}
	if u := g.Usage().BlobBytes; u != 1024 {
		t.Fatalf("usage mutated on failed call: %d", u)
	}
}

func TestCapabilityDeniedRegardlessOfLimit(t *testing.T) {
	g := resource.New(nil, resource.Limits{MaxAIUnits: 1000})
	err := g.UseAIUnits(5)
	if err == nil || !vmerrors.IsCode(err, vmerrors.CodeCapabilityDenied) {
		t.Fatalf("expected capability_denied, got %v", err)
	}
}

func TestTreasuryTransferCountsOncePerCall(t *testing.T) {
	g := resource.New([]string{resource.CapTreasuryTransfer}, resource.Limits{MaxTreasuryTransfers: 2})
	if err := g.UseTreasuryTransfer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.UseTreasuryTransfer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.UseTreasuryTransfer(); err == nil {
		t.Fatalf("expected resource_exhausted on third transfer")
	}
}
