package random_test

import (
	"bytes"
	"testing"

	"github.com/animica-labs/pyvm/core/host/random"
)

func TestDRBGPureFunctionOfInputs(t *testing.T) {
	a, _ := random.New([]byte("seed"), []byte("nonce"), []byte("info")).Read(32)
	b, _ := random.New([]byte("seed"), []byte("nonce"), []byte("info")).Read(32)
	if !bytes.Equal(a, b) {
		t.Fatalf("DRBG not deterministic for identical inputs")
	}
	c, _ := random.New([]byte("seed"), []byte("nonce"), []byte("other")).Read(32)
	if bytes.Equal(a, c) {
		t.Fatalf("DRBG output identical despite different info")
	}
}

func TestFromTxSeedRequiresNonEmptyHash(t *testing.T) {
	_, err := random.FromTxSeed(nil, []byte("caller"), []byte("salt"))
	if err == nil {
		t.Fatalf("expected error for empty tx_hash")
	}
}

func TestFromTxSeedDeterministicAndSaltSensitive(t *testing.T) {
	txHash := bytes.Repeat([]byte{0xAA}, 32)
	d1, err := random.FromTxSeed(txHash, []byte("contract_addr"), []byte("demo"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out1, _ := d1.Read(32)

	d2, _ := random.FromTxSeed(txHash, []byte("contract_addr"), []byte("demo"))
	out2, _ := d2.Read(32)
	if !bytes.Equal(out1, out2) {
		t.Fatalf("from_tx_seed not deterministic")
	}

	d3, _ := random.FromTxSeed(txHash, []byte("contract_addr"), []byte("demo2"))
	out3, _ := d3.Read(32)
	if bytes.Equal(out1, out3) {
		t.Fatalf("from_tx_seed ignored salt")
	}
}

func TestRandRangeWithinBounds(t *testing.T) {
	d := random.New([]byte("s"), nil, nil)
	for i := 0; i < 200; i++ {
		v, err := d.RandRange(7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v >= 7 {
			t.Fatalf("randrange returned %d, want < 7", v)
		}
	}
}

func TestForkProducesIndependentStream(t *testing.T) {
	d := random.New([]byte("s"), nil, nil)
	child := d.Fork([]byte("child-a"))
	parentNext, _ := d.Read(16)
	childNext, _ := child.Read(16)
	if bytes.Equal(parentNext, childNext) {
		t.Fatalf("forked stream collided with parent stream")
	}
}
