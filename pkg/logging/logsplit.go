package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	stdoutLevels = []logrus.Level{logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel}
	stderrLevels = []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
)

// levelHook writes entries of its levels, formatted by the logger's
// formatter, to out.
type levelHook struct {
	mu     sync.Mutex
	out    io.Writer
	levels []logrus.Level
}

func newLevelHook(out io.Writer, levels []logrus.Level) *levelHook {
	return &levelHook{out: out, levels: levels}
}

func (h *levelHook) Levels() []logrus.Level {
	return h.levels
}

func (h *levelHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Bytes()
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(line)
	return err
}
