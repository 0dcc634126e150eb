// Package vmerrors defines the structured error taxonomy raised across the
// validator, compiler, interpreter and host surface.
package vmerrors

import "fmt"

// VmError is a structured, machine-readable failure. It is returned (never
// used as exception-style control flow) by every fallible core operation.
type VmError struct {
	Code    string
	Message string
	Context map[string]any
	cause   error
}

func (e *VmError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *VmError) Unwrap() error { return e.cause }

// New builds a VmError with the given code and message. ctx may be nil.
func New(code, message string, ctx map[string]any) *VmError {
	return &VmError{Code: code, Message: message, Context: ctx}
}

// Wrap builds a VmError around a lower-level cause, preserving it for errors.Is/As.
func Wrap(code, message string, cause error) *VmError {
	return &VmError{Code: code, Message: message, cause: cause}
}

// WithContext returns a copy of e with an additional context key set.
func (e *VmError) WithContext(k string, v any) *VmError {
	ctx := make(map[string]any, len(e.Context)+1)
	for kk, vv := range e.Context {
		ctx[kk] = vv
	}
	ctx[k] = v
	return &VmError{Code: e.Code, Message: e.Message, Context: ctx, cause: e.cause}
}

// ToMap renders the error in the wire-facing shape described by the
// external interfaces: {code, message, context}.
func (e *VmError) ToMap() map[string]any {
	m := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Context) > 0 {
		m["context"] = e.Context
	}
	return m
}

// Error code families. See SPEC_FULL.md §7.
const (
	CodeForbiddenImport    = "forbidden_import"
	CodeVMError            = "vm_error"
	CodeOutOfGas           = "out_of_gas"
	CodeAbiRequireFailed   = "abi.require_failed"
	CodeEventInvalid       = "event_invalid"
	CodeCapabilityDenied   = "capability_denied"
	CodeResourceExhausted  = "resource_exhausted"
	CodeCodec              = "codec"
	CodeCompileGeneric     = "compile.error"
	CodeValidationGeneric  = "validation.syntax"
	CodeValidationNode     = "validation.node_unsupported"
	CodeValidationWildcard = "validation.import_wildcard"
	CodeValidationPrivate  = "validation.private_name"
	CodeValidationSize     = "validation.size_limit"
	CodeValidationNodeCap  = "validation.node_limit"
	CodeValidationDepth    = "validation.depth_limit"
	CodeValidationArgs     = "validation.arg_limit"
	CodeValidationBuiltin  = "validation.builtin_forbidden"
	CodeValidationCallShpe = "validation.stdlib_call_shape"
)

// IsCode reports whether err is a *VmError with the given code.
func IsCode(err error, code string) bool {
	ve, ok := err.(*VmError)
	return ok && ve.Code == code
}
