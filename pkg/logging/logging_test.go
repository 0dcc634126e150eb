package logging_test

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/animica-labs/pyvm/pkg/logging"
)

func TestNewDefaultsToInfoLevelWhenEnvUnset(t *testing.T) {
	const envVar = "PYVM_TEST_LOG_LEVEL_UNSET"
	os.Unsetenv(envVar)
	l := logging.New(envVar)
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want info", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("formatter = %T, want *logrus.JSONFormatter", l.Formatter)
	}
}

func TestNewReadsLevelFromEnv(t *testing.T) {
	const envVar = "PYVM_TEST_LOG_LEVEL_DEBUG"
	os.Setenv(envVar, "debug")
	defer os.Unsetenv(envVar)
	l := logging.New(envVar)
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want debug", l.GetLevel())
	}
}

func TestNewFallsBackOnUnparsableLevel(t *testing.T) {
	const envVar = "PYVM_TEST_LOG_LEVEL_BOGUS"
	os.Setenv(envVar, "not-a-level")
	defer os.Unsetenv(envVar)
	l := logging.New(envVar)
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want info fallback", l.GetLevel())
	}
}

func TestCallFieldsCarriesContractMethodAndHash(t *testing.T) {
	f := logging.CallFields("counter", "inc", "0xabc")
	if f["contract"] != "counter" || f["method"] != "inc" || f["code_hash"] != "0xabc" {
		t.Fatalf("fields = %+v", f)
	}
}
