package main

import (
	"encoding/json"

	"github.com/animica-labs/pyvm/core/instr"
	"github.com/animica-labs/pyvm/core/ir"
)

type blockSummary struct {
	Label       string `json:"label" yaml:"label"`
	Instrs      int    `json:"instr_count" yaml:"instr_count"`
	Fallthrough string `json:"fallthrough,omitempty" yaml:"fallthrough,omitempty"`
}

type progSummary struct {
	Kind       string         `json:"kind" yaml:"kind"`
	EntryLabel string         `json:"entry_label" yaml:"entry_label"`
	Blocks     []blockSummary `json:"blocks" yaml:"blocks"`
}

func describeProg(p *instr.Prog) progSummary {
	out := progSummary{Kind: "prog", EntryLabel: p.EntryLabel}
	for _, nb := range p.SortedBlocks() {
		bs := blockSummary{Label: nb.Label, Instrs: len(nb.Blk.Instrs)}
		if nb.Blk.Fallthrough != nil {
			bs.Fallthrough = *nb.Blk.Fallthrough
		}
		out.Blocks = append(out.Blocks, bs)
	}
	return out
}

type funcSummary struct {
	Name   string   `json:"name" yaml:"name"`
	Params []string `json:"params" yaml:"params"`
	Stmts  int      `json:"stmt_count" yaml:"stmt_count"`
}

type moduleSummary struct {
	Kind      string        `json:"kind" yaml:"kind"`
	Filename  string        `json:"filename" yaml:"filename"`
	Functions []funcSummary `json:"functions" yaml:"functions"`
}

func describeModule(m *ir.Module) moduleSummary {
	out := moduleSummary{Kind: "module", Filename: m.Filename}
	for _, nf := range m.SortedFunctions() {
		out.Functions = append(out.Functions, funcSummary{Name: nf.Name, Params: nf.Fn.Params, Stmts: len(nf.Fn.Body)})
	}
	return out
}

func jsonIndent(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
