// Package gas implements the per-opcode gas table and the gas meter.
// Grounded on original_source/vm_py/compiler/gas_estimator.py's
// _DEFAULT_GAS_TABLE and original_source/vm_py/runtime/gasmeter.py, with the
// Go meter shape borrowed from core/virtual_machine.go's GasMeter{used,limit}
// (extended here with refund_pool/snapshot/checkpoint, which the teacher's
// minimal meter lacks).
package gas

import "encoding/json"

// Table maps an opcode name to its base gas cost. It is loaded once and
// treated as immutable during execution.
type Table map[string]uint64

// DefaultCost is charged for any opcode missing from the table.
const DefaultCost uint64 = 1

// Call cost components: Call's total cost is call_base + n_pos*call_arg +
// n_kw*call_kwarg (SPEC_FULL.md §4.2).
const (
	KeyCallBase  = "call_base"
	KeyCallArg   = "call_arg"
	KeyCallKwarg = "call_kwarg"
)

// DefaultTable returns the built-in gas schedule, mirroring
// gas_estimator.py's _DEFAULT_GAS_TABLE.
func DefaultTable() Table {
	return Table{
		"load_const":     1,
		"load_name":      2,
		"store_name":     3,
		"attr_get":       3,
		"subscript_get":  3,
		"binop_add":      3,
		"binop_sub":      3,
		"binop_mul":      5,
		"binop_floordiv": 5,
		"binop_mod":      5,
		"binop_and":      3,
		"binop_or":       3,
		"binop_xor":      3,
		"binop_lshift":   3,
		"binop_rshift":   3,
		"unary_pos":      2,
		"unary_neg":      2,
		"unary_not":      2,
		"unary_invert":   2,
		"compare":        3,
		KeyCallBase:      10,
		KeyCallArg:       2,
		KeyCallKwarg:     3,
		"pop":            1,
		"dup":            1,
		"return":         1,
		"jump":           2,
		"jump_if_true":   2,
		"jump_if_false":  2,
		"nop":            1,
		"sload":          200,
		"sstore":         5000,
		"bytes_len":      2,
		"bytes_cat":      3,
	}
}

// Cost returns the configured cost for op, or DefaultCost if absent.
func (t Table) Cost(op string) uint64 {
	if c, ok := t[op]; ok {
		return c
	}
	return DefaultCost
}

// LoadTableJSON parses a JSON object {opcode: cost} into a Table, filling
// any key missing from data with the built-in default and returning the
// filled keys as notes, matching gas_estimator.py's _load_gas_table
// fill-and-note behavior.
func LoadTableJSON(data []byte) (Table, []string, error) {
	raw := map[string]uint64{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	out := DefaultTable()
	var notes []string
	for k, v := range raw {
		out[k] = v
	}
	for k := range DefaultTable() {
		if _, ok := raw[k]; !ok {
			notes = append(notes, "missing key '"+k+"': using built-in default")
		}
	}
	return out, notes, nil
}
