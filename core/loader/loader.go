package loader

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/animica-labs/pyvm/core/codec"
	"github.com/animica-labs/pyvm/core/compiler/gasestimate"
	"github.com/animica-labs/pyvm/core/compiler/lower"
	"github.com/animica-labs/pyvm/core/compiler/typecheck"
	"github.com/animica-labs/pyvm/core/engine"
	"github.com/animica-labs/pyvm/core/gas"
	"github.com/animica-labs/pyvm/core/hashapi"
	"github.com/animica-labs/pyvm/core/host/events"
	"github.com/animica-labs/pyvm/core/host/random"
	"github.com/animica-labs/pyvm/core/host/storage"
	"github.com/animica-labs/pyvm/core/host/syscalls"
	"github.com/animica-labs/pyvm/core/host/treasury"
	"github.com/animica-labs/pyvm/core/instr"
	"github.com/animica-labs/pyvm/core/ir"
	"github.com/animica-labs/pyvm/core/resource"
	"github.com/animica-labs/pyvm/core/validator"
	"github.com/animica-labs/pyvm/core/vmerrors"
	"github.com/animica-labs/pyvm/core/vmtypes"
)

const codeHashDomain = "vm/loader/code_hash/v1"

// Contract is the runtime handle spec.md §4.8 step 10 returns: compiled
// programs for every function, plus enough metadata to dispatch calls.
type Contract struct {
	Name      string
	CodeHash  string
	ABI       []byte
	Exports   []string
	GasTable  gas.Table
	GasBound  map[string]uint64
	Resources ResourceSection

	progs  map[string]*instr.Prog
	params map[string][]string
}

// Session overrides the host surfaces a Call runs against; any nil field
// falls back to a fresh in-memory default, matching the engine's own
// zero-value-friendly construction.
type Session struct {
	Storage  *storage.Surface
	Events   *events.Sink
	Treasury *treasury.Ledger
	Random   *random.DRBG
	Syscalls syscalls.Provider
	Guard    *resource.Guard
	GasLimit uint64
}

func exportsAllowed(exports []string, method string) bool {
	if len(exports) == 0 {
		return true
	}
	for _, e := range exports {
		if e == method {
			return true
		}
	}
	return false
}

// Load runs the full 10-step pipeline over an already-parsed manifest,
// resolving source files relative to baseDir (the manifest file's
// directory, or "" for inline code).
func Load(m *Manifest, baseDir string) (*Contract, error) {
	// Step 1: sandbox activation has no Go-side resource to acquire beyond
	// what core/host/* already enforces per call; this step is a no-op here.

	// Step 2.
	src, err := assembleSource(m, baseDir)
	if err != nil {
		return nil, err
	}

	// Step 3.
	mod, err := validator.Validate(src)
	if err != nil {
		return nil, err
	}

	// Step 4.
	filename := m.Name
	if filename == "" {
		filename = "contract"
	}
	irMod, err := lower.Module(mod, filename)
	if err != nil {
		return nil, err
	}

	// Step 5.
	if err := typecheck.Module(irMod); err != nil {
		return nil, err
	}

	progs := map[string]*instr.Prog{}
	params := map[string][]string{}
	for _, nf := range irMod.SortedFunctions() {
		p, err := lower.ToProg(nf.Fn)
		if err != nil {
			return nil, vmerrors.Wrap(vmerrors.CodeCompileGeneric, "lower function "+nf.Name, err)
		}
		progs[nf.Name] = p
		params[nf.Name] = nf.Fn.Params
	}

	// Step 6.
	encoded, err := codec.EncodeModule(irMod, codec.FmtCBOR)
	if err != nil {
		return nil, err
	}

	// Step 7.
	digest := hashapi.Sha3_256(encoded, []byte(codeHashDomain))
	codeHash := hashapi.HexPrefixed(digest[:])

	// Step 8.
	exports := m.Exports
	if len(exports) == 0 {
		exports = deriveExports(irMod)
	}

	// Step 9: best effort, never fails the load.
	table := gas.DefaultTable()
	bound := map[string]uint64{}
	for name, p := range progs {
		if res, err := gasestimate.Estimate(p, table, 0, 0); err == nil {
			bound[name] = res.TotalUpperBound
		}
	}

	// Step 10.
	return &Contract{
		Name:      m.Name,
		CodeHash:  codeHash,
		ABI:       m.ABI,
		Exports:   exports,
		GasTable:  table,
		GasBound:  bound,
		Resources: m.Resources,
		progs:     progs,
		params:    params,
	}, nil
}

// LoadFile reads and loads the manifest at path, resolving its declared
// source files relative to the manifest's own directory.
func LoadFile(path string) (*Contract, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return Load(m, filepath.Dir(path))
}

func deriveExports(m *ir.Module) []string {
	var names []string
	for _, nf := range m.Functions {
		if strings.HasPrefix(nf.Name, "_") {
			continue
		}
		names = append(names, nf.Name)
	}
	sort.Strings(names)
	return names
}

// newSession fills any nil/zero override field with a fresh default. The
// resource guard defaults to the contract manifest's own declared
// capabilities and limits, not a capability-free guard, so a contract's
// exported methods can actually exercise what its manifest grants them
// when the caller supplies no explicit override.
func newSession(c *Contract, overrides *Session) *Session {
	if overrides == nil {
		overrides = &Session{}
	}
	if overrides.Storage == nil {
		overrides.Storage = storage.New(storage.NewMemoryBackend())
	}
	if overrides.Events == nil {
		overrides.Events = events.NewSink()
	}
	if overrides.Treasury == nil {
		overrides.Treasury = treasury.NewLedger()
	}
	if overrides.Random == nil {
		overrides.Random = random.New([]byte("loader-default-seed"), nil, []byte("loader"))
	}
	if overrides.Syscalls == nil {
		overrides.Syscalls = syscalls.NewLocalNoOpProvider()
	}
	if overrides.Guard == nil {
		overrides.Guard = resource.FromManifest(c.Resources.Caps, c.Resources.Limits)
	}
	if overrides.GasLimit == 0 {
		overrides.GasLimit = engine.DefaultStepLimit
	}
	return overrides
}

// Call dispatches method with args against a fresh (or overridden) session,
// enforcing the non-empty-exports dispatch invariant before reaching the
// engine.
func (c *Contract) Call(ctx context.Context, method string, args []vmtypes.Value, sess *Session) (*engine.Result, error) {
	prog, ok := c.progs[method]
	if !ok {
		return nil, vmerrors.New(vmerrors.CodeValidationGeneric, "unknown method", map[string]any{"method": method})
	}
	if !exportsAllowed(c.Exports, method) {
		return nil, vmerrors.New(vmerrors.CodeValidationGeneric, "method is not exported", map[string]any{"method": method})
	}
	sess = newSession(c, sess)

	es := engine.NewSession()
	es.Meter = gas.NewMeter(sess.GasLimit)
	es.Guard = sess.Guard
	es.Table = c.GasTable
	es.Storage = sess.Storage
	es.Events = sess.Events
	es.Treasury = sess.Treasury
	es.Random = sess.Random
	es.Syscalls = sess.Syscalls
	es.Functions = c.progs
	es.Params = c.params

	return engine.Run(ctx, prog, c.params[method], args, es)
}
