package loader

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/animica-labs/pyvm/core/vmerrors"
	"github.com/animica-labs/pyvm/core/vmtypes"
)

// callPayload is the ABI-encoded dispatch envelope CallBytes accepts: a
// JSON object naming the method and its positional arguments, each tagged
// by kind so a bytes argument is distinguishable from an int one on the
// wire. A full binary ABI codec is out of scope (spec.md §4.8 marks
// call_bytes dispatch optional); this JSON envelope is the minimal
// encoding that still lets an off-chain caller avoid hand-building a
// []vmtypes.Value slice.
type callPayload struct {
	Method string       `json:"method"`
	Args   []payloadArg `json:"args"`
}

type payloadArg struct {
	Kind  string `json:"kind"`
	Int   string `json:"int,omitempty"`
	Bytes []byte `json:"bytes,omitempty"`
	Bool  bool   `json:"bool,omitempty"`
}

func decodeArg(a payloadArg) (vmtypes.Value, error) {
	switch a.Kind {
	case "int":
		n, ok := new(big.Int).SetString(a.Int, 10)
		if !ok {
			return vmtypes.Value{}, vmerrors.New(vmerrors.CodeValidationGeneric, "bad int arg", map[string]any{"value": a.Int})
		}
		return vmtypes.NewInt(n), nil
	case "bytes":
		return vmtypes.NewBytes(a.Bytes), nil
	case "bool":
		return vmtypes.NewBool(a.Bool), nil
	default:
		return vmtypes.Value{}, vmerrors.New(vmerrors.CodeValidationGeneric, "unknown arg kind", map[string]any{"kind": a.Kind})
	}
}

func encodeResult(v vmtypes.Value) payloadArg {
	switch v.Kind {
	case vmtypes.KindInt:
		return payloadArg{Kind: "int", Int: v.Int.String()}
	case vmtypes.KindBytes:
		return payloadArg{Kind: "bytes", Bytes: v.Bytes}
	case vmtypes.KindBool:
		return payloadArg{Kind: "bool", Bool: v.Bool}
	default:
		return payloadArg{Kind: "null"}
	}
}

// CallBytes decodes payload as a callPayload envelope, dispatches to Call,
// and returns the JSON-encoded result.
func (c *Contract) CallBytes(ctx context.Context, payload []byte, sess *Session) ([]byte, error) {
	var cp callPayload
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, vmerrors.Wrap(vmerrors.CodeValidationGeneric, "decode call_bytes payload", err)
	}
	args := make([]vmtypes.Value, len(cp.Args))
	for i, a := range cp.Args {
		v, err := decodeArg(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	res, err := c.Call(ctx, cp.Method, args, sess)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(struct {
		Return  payloadArg `json:"return"`
		GasUsed uint64     `json:"gas_used"`
		Steps   uint64     `json:"steps"`
	}{Return: encodeResult(res.ReturnValue), GasUsed: res.GasUsed, Steps: res.Steps})
	if err != nil {
		return nil, vmerrors.Wrap(vmerrors.CodeCodec, "encode call_bytes result", err)
	}
	return out, nil
}
