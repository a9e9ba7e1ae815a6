package jobs

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/errdefs"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/logging"
)

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 4 << 20
)

// Configurer runs configuration transactions.
type Configurer interface {
	SetConfig(ctx context.Context, sources []string, relayChains string) (uint64, error)
}

// Server dispatches jobs received on a unix socket. Connections are served
// concurrently; the Configurer serializes transactions.
type Server struct {
	log        logging.Logger
	socketPath string
	configurer Configurer

	conns sync.WaitGroup
}

// NewServer returns a Server listening on socketPath once served.
func NewServer(log logging.Logger, socketPath string, configurer Configurer) *Server {
	return &Server{
		log:        log,
		socketPath: socketPath,
		configurer: configurer,
	}
}

// Serve accepts connections until ctx is done, then waits for in-flight jobs
// to finish.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0750); err != nil {
		return errors.Wrap(err, "unable to create socket directory")
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing stale socket %s", s.socketPath)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.socketPath)
	}
	defer os.Remove(s.socketPath)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.log.WithField("path", s.socketPath).Info("job listener ready")
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.WithError(err).Error("accept failed")
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handle(ctx, conn)
		}()
	}

	s.conns.Wait()
	return nil
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	var call Call
	if err := decode(io.LimitReader(conn, maxRequestSize), &call); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.reply(conn, failure(errdefs.InvalidInput(errors.Wrap(err, "invalid call"))))
		return
	}

	log := s.log.WithField("job", call.Job)
	log.Debug("job received")
	reply := s.dispatch(ctx, call)
	if !reply.OK {
		log.WithField("kind", reply.Kind).Warn("job failed: ", reply.Error)
	}
	s.reply(conn, reply)
}

func (s *Server) dispatch(ctx context.Context, call Call) Reply {
	switch call.Job {
	case JobSetConfig:
		var args SetConfigArgs
		if err := decMode.Unmarshal(call.Args, &args); err != nil {
			return failure(errdefs.InvalidInput(errors.Wrap(err, "invalid set config arguments")))
		}
		result, err := s.configurer.SetConfig(ctx, args.ConfigSources, args.RelayChains)
		if err != nil {
			return failure(err)
		}
		return Reply{OK: true, Result: result}
	}
	return failure(errdefs.InvalidInput(errors.Errorf("unknown job %d", call.Job)))
}

func failure(err error) Reply {
	return Reply{Error: err.Error(), Kind: errdefs.Kind(err)}
}

func (s *Server) reply(conn net.Conn, reply Reply) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := encode(conn, reply); err != nil {
		s.log.WithError(err).Debug("failed to write reply")
	}
}
