package hashapi_test

import (
	"testing"

	"github.com/animica-labs/pyvm/core/hashapi"
)

func TestSha3_256DomainSeparation(t *testing.T) {
	data := []byte("hello")
	a := hashapi.Sha3_256(data, []byte("vm/random/init/v1"))
	b := hashapi.Sha3_256(data, []byte("vm/random/block/v1"))
	if a == b {
		t.Fatalf("expected different digests for different domains")
	}
	c := hashapi.Sha3_256(data, nil)
	d := hashapi.Sha3_256(data, nil)
	if c != d {
		t.Fatalf("expected deterministic digest for same input")
	}
	if a == c {
		t.Fatalf("domain-separated digest must differ from undomained digest")
	}
}

func TestHexPrefixed(t *testing.T) {
	got := hashapi.HexPrefixed([]byte{0x01, 0xab})
	if got != "0x01ab" {
		t.Fatalf("got %q", got)
	}
}

func TestStreamHasherMatchesOneShot(t *testing.T) {
	domain := []byte("demo")
	s := hashapi.NewSha3_256Stream(domain)
	s.Update([]byte("ab"))
	s.Update([]byte("cd"))
	streamed := s.Digest()

	oneShot := hashapi.Sha3_256([]byte("abcd"), domain)
	if string(streamed) != string(oneShot[:]) {
		t.Fatalf("stream digest does not match one-shot digest")
	}
}

func TestKeccak256DiffersFromSha3(t *testing.T) {
	data := []byte("animica")
	k := hashapi.Keccak256(data, nil)
	s := hashapi.Sha3_256(data, nil)
	if k == s {
		t.Fatalf("keccak256 and sha3_256 must not collide trivially")
	}
}
