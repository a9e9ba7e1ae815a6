package errdefs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	cause := errors.New("rename agent_configs: permission denied")
	err := errors.WithMessage(Filesystem(cause), "staging")

	assert.True(t, IsFilesystem(err))
	assert.False(t, IsNoFallback(err))
	assert.True(t, errors.Is(err, cause), "cause should stay reachable")
	assert.Equal(t, "staging: filesystem error: rename agent_configs: permission denied", err.Error())
}

func TestClassifyIsIdempotent(t *testing.T) {
	err := StartFailed(errors.New("status stopped"))
	assert.Same(t, err, StartFailed(err))
	assert.Nil(t, ExternalTool(nil))
}

func TestKindRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"invalid input", InvalidInput(errors.New("x")), "invalid-input"},
		{"external tool", ExternalTool(errors.New("x")), "external-tool"},
		{"start failed", StartFailed(errors.New("x")), "start-failed"},
		{"no fallback", NoFallback(errors.New("x")), "no-fallback"},
		{"filesystem", Filesystem(errors.New("x")), "filesystem"},
		{"unclassified", errors.New("x"), "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, Kind(tc.err))
			if sentinel := FromKind(tc.kind); sentinel != nil {
				assert.True(t, errors.Is(tc.err, sentinel))
			}
		})
	}
}

func TestFromMessage(t *testing.T) {
	sent := errors.WithMessage(NoFallback(errors.New("configs failed to apply, with no fallback")), "set config")

	err := FromMessage(Kind(sent), sent.Error())
	assert.True(t, IsNoFallback(err))
	assert.Equal(t, sent.Error(), err.Error())

	err = FromMessage(Kind(InvalidInput(errors.New("bad"))), "invalid input: bad")
	assert.True(t, IsInvalidInput(err))
	assert.Equal(t, "invalid input: bad", err.Error())

	err = FromMessage("unknown", "boom")
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, "unknown", Kind(err))
}
