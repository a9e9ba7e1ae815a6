package workgroup

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
)

func TestFirstErrorCancelsPeers(t *testing.T) {
	boom := errors.New("listener closed")
	g := WithContext(context.Background())
	g.Work(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Work(func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, g.Wait(), boom)
}
