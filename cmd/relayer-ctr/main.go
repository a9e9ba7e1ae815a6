package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/agent"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/config"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/coordinator"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/engine"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/jobs"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/keystore"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/logging"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/metrics"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/sigcontext"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/source"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/store"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/supervisor"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/workgroup"
)

// cleanupGrace is added to the stop timeout when removing the agent at exit.
const cleanupGrace = 30 * time.Second

func init() {
	// Dispatch logging output instead of writing all levels' messages to
	// stderr.
	_ = logging.Set(logging.Split(os.Stdout, os.Stderr))
}

func main() {
	os.Exit(_main())
}

func _main() int {
	if err := newApp().Run(os.Args); err != nil {
		logging.New("main").WithError(err).Error("relayer-ctr failed")
		return 1
	}
	return 0
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "relayer-ctr",
		Usage: "supervise the Hyperlane relayer agent container",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the TOML configuration file",
				Value:   config.DefaultPath,
				EnvVars: []string{"RELAYER_CTR_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the supervisor daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data-dir", Usage: "directory holding the agent database and configuration"},
					&cli.StringFlag{Name: "keystore", Usage: "file holding the hex encoded signing key"},
				},
				Action: runDaemon,
			},
			{
				Name:  "set-config",
				Usage: "apply a new agent configuration through a running daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "socket", Usage: "job socket of the daemon", Value: config.DefaultJobSocket},
					&cli.StringSliceFlag{Name: "config-source", Usage: "configuration document, file:// or http(s):// URI; repeatable"},
					&cli.StringFlag{Name: "relay-chains", Usage: "comma separated chains to relay between", Required: true},
				},
				Action: setConfig,
			},
			{
				Name:  "pull",
				Usage: "only pull and unpack the agent image",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "image", Usage: "override the configured image"},
				},
				Action: pullImage,
			},
		},
	}
}

// loadConfig reads the configuration file. A missing file at the default
// location yields the defaults.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return config.Default(), nil
	}
	return config.Load(path)
}

func setupLogging(c *cli.Context, cfg *config.Config) {
	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	_ = logging.Set(logging.Level(level))
	if cfg.JSONLogs() {
		_ = logging.Set(logging.JSON())
	}
}

func engineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		Socket:      cfg.ContainerdSocket,
		Namespace:   cfg.Namespace,
		Registry:    cfg.Registry,
		CNIConfDir:  cfg.Test.CNIConfDir,
		CNIBinDir:   cfg.Test.CNIBinDir,
		StopTimeout: cfg.StopDuration(),
	}
}

func runDaemon(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"), c.IsSet("config"))
	if err != nil {
		return err
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("keystore") {
		cfg.Keystore = c.String("keystore")
	}
	if err := cfg.Validate(); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	if cfg.Keystore == "" {
		return errors.New("keystore must be provided")
	}
	setupLogging(c, cfg)
	log := logging.New("main")

	ctx, sigs, cancel := sigcontext.WithSignalCancel(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	signer, err := keystore.Load(cfg.Keystore)
	if err != nil {
		return err
	}
	defer signer.Close()

	st, err := store.New(logging.New("store"), cfg.DataDir)
	if err != nil {
		return err
	}
	eng, err := engine.New(logging.New("engine"), engineOptions(cfg))
	if err != nil {
		return err
	}
	defer eng.Close()

	recorder := metrics.New()
	launcher := agent.NewLauncher(st, signer)
	launcher.Image = cfg.Image
	launcher.ContainerID = cfg.ContainerID
	launcher.Network = cfg.Test.Network

	sup := supervisor.New(logging.New("supervisor"), eng, launcher, recorder)
	sup.SettleWindow = cfg.SettleDuration()
	coord := coordinator.New(logging.New("coordinator"), st, sup, source.New(), recorder)

	// The agent must not outlive the supervisor.
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), cfg.StopDuration()+cleanupGrace)
		defer cancel()
		if err := sup.RemoveExisting(cleanup); err != nil {
			log.WithError(err).Error("failed to remove agent container")
		}
	}()

	if cfg.ResumeEnabled() {
		if err := coord.Resume(ctx); err != nil {
			log.WithError(err).Error("unable to resume agent with existing configuration")
		}
	}

	group := workgroup.WithContext(ctx)
	group.Work(jobs.NewServer(logging.New("jobs"), cfg.JobSocket, coord).Serve)
	if cfg.MetricsAddress != "" {
		group.Work(func(ctx context.Context) error {
			return serveMetrics(ctx, log, cfg.MetricsAddress, recorder.Handler())
		})
	}
	go func() {
		select {
		case sig := <-sigs:
			log.WithField("signal", sig).Info("received signal, shutting down")
		case <-ctx.Done():
		}
	}()

	notify(log, daemon.SdNotifyReady)
	err = group.Wait()
	notify(log, daemon.SdNotifyStopping)
	return errors.WithMessage(err, "run error")
}

func notify(log logging.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.WithError(err).Warn("unable to notify systemd")
	}
}

func serveMetrics(ctx context.Context, log logging.Logger, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdown)
	}()

	log.WithField("address", addr).Info("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server failed")
	}
	return nil
}

func setConfig(c *cli.Context) error {
	relayChains := c.String("relay-chains")
	if err := coordinator.ValidateRelayChains(relayChains); err != nil {
		return err
	}
	var sources []string
	if c.IsSet("config-source") {
		sources = c.StringSlice("config-source")
	}
	result, err := jobs.NewClient(c.String("socket")).SetConfig(c.Context, sources, relayChains)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, result)
	return nil
}

func pullImage(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"), c.IsSet("config"))
	if err != nil {
		return err
	}
	setupLogging(c, cfg)
	image := cfg.Image
	if c.IsSet("image") {
		image = c.String("image")
	}

	ctx, _, cancel := sigcontext.WithSignalCancel(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	eng, err := engine.New(logging.New("engine"), engineOptions(cfg))
	if err != nil {
		return err
	}
	defer eng.Close()
	if err := eng.Pull(ctx, image); err != nil {
		return err
	}
	logging.New("main").WithField("image", image).Info("not starting agent container, pull mode")
	return nil
}
