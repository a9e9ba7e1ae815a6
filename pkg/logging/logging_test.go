package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSplitRoutesByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.NoError(t, Set(Split(&stdout, &stderr)))
	assert.NoError(t, Set(Level("debug")))
	defer func() {
		_ = Set(func(l *logrus.Logger) error {
			l.ReplaceHooks(make(logrus.LevelHooks))
			l.SetOutput(os.Stderr)
			l.SetLevel(logrus.InfoLevel)
			return nil
		})
	}()

	log := New("test")
	log.Info("container started")
	log.Error("container exited")

	assert.Contains(t, stdout.String(), "container started")
	assert.Contains(t, stdout.String(), "component=test")
	assert.NotContains(t, stdout.String(), "container exited")
	assert.Contains(t, stderr.String(), "container exited")
}

func TestLevelFallsBackToDebug(t *testing.T) {
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	assert.NoError(t, Level("chatty")(l))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}
