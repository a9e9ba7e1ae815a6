// Package testoutput interlaces log entries with test output.
package testoutput

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/logging"
)

// Use sends root logger output to t at debug level until the test ends, when
// stderr output at info level is restored. Tests using it must not run in
// parallel.
func Use(t testing.TB) {
	t.Helper()
	_ = logging.Set(func(l *logrus.Logger) error {
		l.SetOutput(writer{t})
		l.SetLevel(logrus.DebugLevel)
		return nil
	})
	t.Cleanup(func() {
		_ = logging.Set(func(l *logrus.Logger) error {
			l.SetOutput(os.Stderr)
			l.SetLevel(logrus.InfoLevel)
			return nil
		})
	})
}

type writer struct {
	t testing.TB
}

func (w writer) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}
