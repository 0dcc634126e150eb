// Package config loads VM-wide numeric limits from ANIMICA_VM_* environment
// variables (with a VM_PY_* legacy fallback name), mirroring
// original_source/vm_py/config.py's VMConfig/load_config.
package config

import (
	"os"
	"strconv"
	"sync"
)

// VMConfig holds every environment-tunable limit consulted by the core.
type VMConfig struct {
	Strict                bool
	GasTablePath          string
	MaxOpsPerCall         uint64
	MaxCallDepth          uint64
	MaxCodeBytes          uint64
	MaxABIPayloadBytes    uint64
	MaxReturnBytes        uint64
	MaxEventArgsBytes     uint64
	MaxStorageKeyBytes    uint64
	MaxStorageValueBytes  uint64
	MaxLogsPerTx          uint64
	MaxSyscallPayloadBytes uint64
}

func defaults() VMConfig {
	return VMConfig{
		Strict:                 true,
		GasTablePath:           "",
		MaxOpsPerCall:          1_000_000,
		MaxCallDepth:           64,
		MaxCodeBytes:           64 * 1024,
		MaxABIPayloadBytes:     64 * 1024,
		MaxReturnBytes:         64 * 1024,
		MaxEventArgsBytes:      4096,
		MaxStorageKeyBytes:     64,
		MaxStorageValueBytes:   128 * 1024,
		MaxLogsPerTx:           1024,
		MaxSyscallPayloadBytes: 1 << 20,
	}
}

func lookup(primary, legacy string) (string, bool) {
	if v, ok := os.LookupEnv(primary); ok {
		return v, true
	}
	if v, ok := os.LookupEnv(legacy); ok {
		return v, true
	}
	return "", false
}

func envBool(primary, legacy string, def bool) bool {
	v, ok := lookup(primary, legacy)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envUint(primary, legacy string, def uint64) uint64 {
	v, ok := lookup(primary, legacy)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envString(primary, legacy string, def string) string {
	v, ok := lookup(primary, legacy)
	if !ok {
		return def
	}
	return v
}

// Load reads VMConfig from the environment, falling back to VM_PY_* legacy
// names and then compiled-in defaults.
func Load() VMConfig {
	d := defaults()
	return VMConfig{
		Strict:                 envBool("ANIMICA_VM_STRICT", "VM_PY_STRICT", d.Strict),
		GasTablePath:           envString("ANIMICA_VM_GAS_TABLE_PATH", "VM_PY_GAS_TABLE_PATH", d.GasTablePath),
		MaxOpsPerCall:          envUint("ANIMICA_VM_MAX_OPS", "VM_PY_MAX_OPS", d.MaxOpsPerCall),
		MaxCallDepth:           envUint("ANIMICA_VM_MAX_CALL_DEPTH", "VM_PY_MAX_CALL_DEPTH", d.MaxCallDepth),
		MaxCodeBytes:           envUint("ANIMICA_VM_MAX_CODE_BYTES", "VM_PY_MAX_CODE_BYTES", d.MaxCodeBytes),
		MaxABIPayloadBytes:     envUint("ANIMICA_VM_MAX_ABI_BYTES", "VM_PY_MAX_ABI_BYTES", d.MaxABIPayloadBytes),
		MaxReturnBytes:         envUint("ANIMICA_VM_MAX_RETURN_BYTES", "VM_PY_MAX_RETURN_BYTES", d.MaxReturnBytes),
		MaxEventArgsBytes:      envUint("ANIMICA_VM_MAX_EVENT_ARGS_BYTES", "VM_PY_MAX_EVENT_ARGS_BYTES", d.MaxEventArgsBytes),
		MaxStorageKeyBytes:     envUint("ANIMICA_VM_MAX_STORAGE_KEY_BYTES", "VM_PY_MAX_STORAGE_KEY_BYTES", d.MaxStorageKeyBytes),
		MaxStorageValueBytes:   envUint("ANIMICA_VM_MAX_STORAGE_VALUE_BYTES", "VM_PY_MAX_STORAGE_VALUE_BYTES", d.MaxStorageValueBytes),
		MaxLogsPerTx:           envUint("ANIMICA_VM_MAX_LOGS_PER_TX", "VM_PY_MAX_LOGS_PER_TX", d.MaxLogsPerTx),
		MaxSyscallPayloadBytes: envUint("ANIMICA_VM_MAX_SYSCALL_BYTES", "VM_PY_MAX_SYSCALL_BYTES", d.MaxSyscallPayloadBytes),
	}
}

var (
	once   sync.Once
	cached VMConfig
)

// Cfg returns the process-wide config singleton, computed once on first use
// (mirrors config.py's @lru_cache(maxsize=1) load_config plus eager CFG).
func Cfg() VMConfig {
	once.Do(func() { cached = Load() })
	return cached
}
