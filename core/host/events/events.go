// Package events implements the event sink: name/args validation and the
// canonical receipt rendering. Grounded on
// original_source/vm_py/runtime/events_api.py.
package events

import (
	"math/big"
	"regexp"
	"sync"

	"github.com/animica-labs/pyvm/core/hashapi"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

const (
	MaxEventNameBytes = 64
	MaxKeyLen         = 64
	MaxBytesLen       = 4096
	MaxIntBits        = 256
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ArgKind tags the type of a single event argument value.
type ArgKind uint8

const (
	ArgBytes ArgKind = iota
	ArgInt
	ArgBool
)

// Arg is a single event argument.
type Arg struct {
	Key   string
	Kind  ArgKind
	Bytes []byte
	Int   *big.Int
	Bool  bool
}

// Event is one emitted event, in emission order.
type Event struct {
	Name []byte
	Args []Arg
}

// Sink accumulates events emitted during a call session, in order.
type Sink struct {
	mu     sync.Mutex
	events []Event
}

// NewSink constructs an empty event sink.
func NewSink() *Sink { return &Sink{} }

func checkName(name []byte) error {
	if len(name) < 1 || len(name) > MaxEventNameBytes {
		return vmerrors.New(vmerrors.CodeEventInvalid, "event name out of bounds", map[string]any{
			"length": len(name), "max": MaxEventNameBytes,
		})
	}
	return nil
}

func checkKey(k string) error {
	if len(k) < 1 || len(k) > MaxKeyLen || !identifierRe.MatchString(k) {
		return vmerrors.New(vmerrors.CodeEventInvalid, "event arg key invalid", map[string]any{"key": k})
	}
	return nil
}

func checkBytesValue(b []byte) error {
	if len(b) > MaxBytesLen {
		return vmerrors.New(vmerrors.CodeEventInvalid, "event arg bytes too large", map[string]any{
			"length": len(b), "max": MaxBytesLen,
		})
	}
	return nil
}

// Emit validates and appends an event to the sink.
func (s *Sink) Emit(name []byte, args []Arg) error {
	if err := checkName(name); err != nil {
		return err
	}
	for _, a := range args {
		if err := checkKey(a.Key); err != nil {
			return err
		}
		switch a.Kind {
		case ArgBytes:
			if err := checkBytesValue(a.Bytes); err != nil {
				return err
			}
		case ArgInt:
			if a.Int == nil || a.Int.BitLen() > MaxIntBits {
				return vmerrors.New(vmerrors.CodeEventInvalid, "event arg int out of range", map[string]any{"key": a.Key})
			}
		}
	}
	nameCp := make([]byte, len(name))
	copy(nameCp, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{Name: nameCp, Args: append([]Arg(nil), args...)})
	return nil
}

// Events returns a snapshot of all events emitted so far, in order.
func (s *Sink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Clear resets the sink. Nothing in the engine or loader calls it; each
// call session is given its own sink.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// ReceiptArg is the canonical on-the-wire shape of one event argument:
// {k, t, v} with t in {"b","i","z"}.
type ReceiptArg struct {
	K string `json:"k"`
	T string `json:"t"`
	V any    `json:"v"`
}

// Receipt is the canonical on-the-wire shape of one event:
// {name: "0x<hex>", args: [...]}.
type Receipt struct {
	Name string       `json:"name"`
	Args []ReceiptArg `json:"args"`
}

// ForReceipt renders an Event into its canonical receipt form.
func ForReceipt(e Event) Receipt {
	args := make([]ReceiptArg, len(e.Args))
	for i, a := range e.Args {
		switch a.Kind {
		case ArgBytes:
			args[i] = ReceiptArg{K: a.Key, T: "b", V: hashapi.HexPrefixed(a.Bytes)}
		case ArgInt:
			args[i] = ReceiptArg{K: a.Key, T: "i", V: a.Int}
		case ArgBool:
			args[i] = ReceiptArg{K: a.Key, T: "z", V: a.Bool}
		}
	}
	return Receipt{Name: hashapi.HexPrefixed(e.Name), Args: args}
}

// EventsForReceipt renders every event in the sink into canonical form, in
// emission order.
func (s *Sink) EventsForReceipt() []Receipt {
	evs := s.Events()
	out := make([]Receipt, len(evs))
	for i, e := range evs {
		out[i] = ForReceipt(e)
	}
	return out
}
