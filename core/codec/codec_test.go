package codec_test

import (
	"testing"

	"github.com/animica-labs/pyvm/core/codec"
	"github.com/animica-labs/pyvm/core/instr"
)

func sampleProg() *instr.Prog {
	one := "1"
	return &instr.Prog{
		EntryLabel: "entry",
		Blocks: []instr.NamedBlock{
			{Label: "entry", Blk: &instr.Block{
				Label: "entry",
				Instrs: []instr.Instr{
					{Op: instr.ILoadConst, ConstInt: &one},
					{Op: instr.IReturn},
				},
			}},
		},
	}
}

func TestEncodeDecodeProgRoundTrip(t *testing.T) {
	p := sampleProg()
	blob, err := codec.EncodeProg(p, codec.FmtCBOR)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(blob) < 6 || string(blob[:4]) != "ACIR" {
		t.Fatalf("missing ACIR header")
	}
	got, err := codec.DecodeProg(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EntryLabel != p.EntryLabel {
		t.Fatalf("entry label mismatch: %q vs %q", got.EntryLabel, p.EntryLabel)
	}
	if len(got.Blocks) != 1 || got.Blocks[0].Label != "entry" {
		t.Fatalf("unexpected blocks: %+v", got.Blocks)
	}
}

func TestEncodeIsOrderIndependent(t *testing.T) {
	one := "1"
	two := "2"
	p1 := &instr.Prog{
		EntryLabel: "entry",
		Blocks: []instr.NamedBlock{
			{Label: "b", Blk: &instr.Block{Label: "b", Instrs: []instr.Instr{{Op: instr.ILoadConst, ConstInt: &two}, {Op: instr.IReturn}}}},
			{Label: "a", Blk: &instr.Block{Label: "a", Instrs: []instr.Instr{{Op: instr.ILoadConst, ConstInt: &one}, {Op: instr.IReturn}}}},
		},
	}
	p2 := &instr.Prog{
		EntryLabel: "entry",
		Blocks: []instr.NamedBlock{
			{Label: "a", Blk: &instr.Block{Label: "a", Instrs: []instr.Instr{{Op: instr.ILoadConst, ConstInt: &one}, {Op: instr.IReturn}}}},
			{Label: "b", Blk: &instr.Block{Label: "b", Instrs: []instr.Instr{{Op: instr.ILoadConst, ConstInt: &two}, {Op: instr.IReturn}}}},
		},
	}
	b1, err := codec.EncodeProg(p1, codec.FmtCBOR)
	if err != nil {
		t.Fatalf("encode p1: %v", err)
	}
	b2, err := codec.EncodeProg(p2, codec.FmtCBOR)
	if err != nil {
		t.Fatalf("encode p2: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("encoding depends on construction order, not content")
	}
}

func TestMsgPackRoundTrip(t *testing.T) {
	p := sampleProg()
	blob, err := codec.EncodeProg(p, codec.FmtMsgPack)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if blob[5] != byte(codec.FmtMsgPack) {
		t.Fatalf("expected msgpack format byte")
	}
	got, err := codec.DecodeProg(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EntryLabel != p.EntryLabel {
		t.Fatalf("entry label mismatch")
	}
}
