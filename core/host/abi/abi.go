// Package abi provides the contract-facing precondition helper,
// stdlib.abi.require. Grounded on original_source/vm_py/runtime/abi.py.
package abi

import "github.com/animica-labs/pyvm/core/vmerrors"

// Require raises abi.require_failed with context {"where": where} if cond is
// false. Contracts use this for precondition checks.
func Require(cond bool, message string, where string) error {
	if cond {
		return nil
	}
	return vmerrors.New(vmerrors.CodeAbiRequireFailed, message, map[string]any{"where": where})
}
