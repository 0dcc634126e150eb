// Package vmtypes defines the scalar kinds and shared value representation
// carried by the VM: integers reduced modulo 2^N, bytes, booleans and null.
package vmtypes

import "math/big"

// NumericBitWidth is the fixed modulus width for integer arithmetic. All
// BinOp/UnaryOp/Compare instructions operate on values reduced into
// [0, 2^NumericBitWidth).
const NumericBitWidth = 256

// Mask is (1<<NumericBitWidth)-1, applied after every arithmetic opcode.
var Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), NumericBitWidth), big.NewInt(1))

// Kind tags the dynamic type of a Value at runtime and in the typechecker's
// scalar lattice.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindBytes
	KindBool
	KindAddress
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBytes:
		return "bytes"
	case KindBool:
		return "bool"
	case KindAddress:
		return "address"
	case KindNull:
		return "null"
	default:
		return "void"
	}
}

// Value is the tagged union the interpreter pushes on its operand stack and
// the host surface exchanges with contracts. Only one of the fields is
// meaningful per Kind.
type Value struct {
	Kind  Kind
	Int   *big.Int
	Bytes []byte
	Bool  bool
}

// Null is the canonical null value.
var Null = Value{Kind: KindNull}

// NewInt builds an Int value already reduced modulo 2^NumericBitWidth.
func NewInt(v *big.Int) Value {
	r := new(big.Int).And(v, Mask)
	if r.Sign() < 0 {
		r.Add(r, new(big.Int).Lsh(big.NewInt(1), NumericBitWidth))
	}
	return Value{Kind: KindInt, Int: r}
}

// NewIntFromInt64 is a convenience wrapper for small constants.
func NewIntFromInt64(v int64) Value {
	return NewInt(big.NewInt(v))
}

// NewBytes builds a Bytes value, copying the input slice.
func NewBytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{Kind: KindBytes, Bytes: cp}
}

// NewBool builds a Bool value.
func NewBool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// IsTruthy implements the VM's truthiness rule used by JumpIfTrue/JumpIfFalse,
// unary not, bool() and abi.require: empty bytes and zero ints are falsy, everything else (other
// than explicit false/null) is truthy.
func (v Value) IsTruthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != nil && v.Int.Sign() != 0
	case KindBytes:
		return len(v.Bytes) != 0
	case KindNull:
		return false
	default:
		return false
	}
}

// Equal reports structural equality used by Compare(eq/ne).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int.Cmp(o.Int) == 0
	case KindBytes:
		if len(v.Bytes) != len(o.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != o.Bytes[i] {
				return false
			}
		}
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNull:
		return true
	default:
		return false
	}
}
