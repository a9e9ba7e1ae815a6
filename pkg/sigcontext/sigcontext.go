package sigcontext

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// WithSignalCancel returns a context that is cancelled when one of sigs is
// delivered to the process. The received signal is reported on the returned
// channel, which has capacity one and is never closed. The cancel function
// releases the signal handler and must be called; after it runs a further
// signal falls through to the Go runtime default.
func WithSignalCancel(ctx context.Context, sigs ...os.Signal) (context.Context, <-chan os.Signal, context.CancelFunc) {
	sigctx, ctxcancel := context.WithCancel(ctx)

	sigchan := make(chan os.Signal, 1)
	received := make(chan os.Signal, 1)
	signal.Notify(sigchan, sigs...)

	var once sync.Once
	cancel := func() {
		ctxcancel()
		once.Do(func() {
			signal.Stop(sigchan)
		})
	}

	go func() {
		select {
		case <-sigctx.Done():
		case sig := <-sigchan:
			received <- sig
			ctxcancel()
		}
	}()

	return sigctx, received, cancel
}
