// Package logging sets up the process-wide structured logger. Grounded on
// cmd/cli/virtual_machine.go's vmInit logging block: JSON-formatted logrus,
// level read from an environment variable with an "info" default.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a JSON-formatted logrus logger at the level named by envVar
// (falling back to "info" when unset or unparsable).
func New(envVar string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(envOr(envVar, "info"))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// CallFields builds the structured fields logged at a contract-call
// boundary: contract name, method and code hash. Errors are
// logged only at this boundary and at the CLI/HTTP edge, never inside the
// engine's per-instruction loop (SPEC_FULL.md §7's logging convention).
func CallFields(contract, method, codeHash string) logrus.Fields {
	return logrus.Fields{
		"contract":  contract,
		"method":    method,
		"code_hash": codeHash,
	}
}
