package jobs

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/errdefs"
)

// DefaultCallTimeout bounds a call when the context has no deadline. A
// transaction that rolls back waits out two settle windows.
const DefaultCallTimeout = 5 * time.Minute

// Client calls jobs on a Server.
type Client struct {
	SocketPath string
}

// NewClient returns a Client for the socket at path.
func NewClient(path string) *Client {
	return &Client{SocketPath: path}
}

// SetConfig runs JobSetConfig.
func (c *Client) SetConfig(ctx context.Context, sources []string, relayChains string) (uint64, error) {
	args, err := encMode.Marshal(SetConfigArgs{ConfigSources: sources, RelayChains: relayChains})
	if err != nil {
		return 0, errors.Wrap(err, "unable to encode arguments")
	}
	reply, err := c.Call(ctx, Call{Job: JobSetConfig, Args: args})
	if err != nil {
		return 0, err
	}
	if !reply.OK {
		return 0, errdefs.FromMessage(reply.Kind, reply.Error)
	}
	return reply.Result, nil
}

// Call sends one call and waits for its reply.
func (c *Client) Call(ctx context.Context, call Call) (Reply, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return Reply{}, errors.Wrapf(err, "unable to connect to %s", c.SocketPath)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := encode(conn, call); err != nil {
		return Reply{}, errors.Wrap(err, "unable to send call")
	}
	var reply Reply
	if err := decode(conn, &reply); err != nil {
		return Reply{}, errors.Wrap(err, "unable to read reply")
	}
	return reply, nil
}
