// Package engine drives the agent container through containerd.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/awslabs/amazon-ecr-containerd-resolver/ecr"
	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	cerrdefs "github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/containerd/containerd/remotes"
	"github.com/containerd/containerd/remotes/docker"
	gocni "github.com/containerd/go-cni"
	runtimespec "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/agent"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/logging"
)

const (
	// DefaultSocket is the containerd socket used when none is configured.
	DefaultSocket = "/run/containerd/containerd.sock"
	// DefaultNamespace is the containerd namespace the agent lives in.
	DefaultNamespace = "hyperlane"
	// DefaultStopTimeout is how long a stopping agent gets before SIGKILL.
	DefaultStopTimeout = 20 * time.Second

	// DefaultCNIConfDir and DefaultCNIBinDir locate test network
	// configuration and plugins.
	DefaultCNIConfDir = "/etc/cni/net.d"
	DefaultCNIBinDir  = "/opt/cni/bin"

	sigkillTimeout = 45 * time.Second
	ecrRefPrefix   = "ecr.aws/"
	cniIfPrefix    = "eth"
)

// Expecting to match ECR image names of the form:
//
// Example 1: 777777777777.dkr.ecr.us-west-2.amazonaws.com/my_image:latest
// Example 2: 777777777777.dkr.ecr.cn-north-1.amazonaws.com.cn/my_image:latest
var ecrRegex = regexp.MustCompile(`(^[a-zA-Z0-9][a-zA-Z0-9-_]*)\.dkr\.ecr\.([a-zA-Z0-9][a-zA-Z0-9-_]*)\.amazonaws\.com(\.cn)?.*`)

// Options configures an Engine.
type Options struct {
	Socket    string
	Namespace string
	Registry  RegistryConfig
	// CNIConfDir holds <network>.conflist files for test networks.
	CNIConfDir string
	// CNIBinDir holds the CNI plugin binaries.
	CNIBinDir   string
	StopTimeout time.Duration
}

// Engine is a containerd-backed container engine.
type Engine struct {
	log    logging.Logger
	client *containerd.Client
	opts   Options

	mu       sync.Mutex
	networks map[string]attachment
}

type attachment struct {
	cni     gocni.CNI
	netns   string
	network string
}

// New connects to containerd.
func New(log logging.Logger, opts Options) (*Engine, error) {
	if opts.Socket == "" {
		opts.Socket = DefaultSocket
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.CNIConfDir == "" {
		opts.CNIConfDir = DefaultCNIConfDir
	}
	if opts.CNIBinDir == "" {
		opts.CNIBinDir = DefaultCNIBinDir
	}
	client, err := containerd.New(opts.Socket, containerd.WithDefaultNamespace(opts.Namespace))
	if err != nil {
		log.WithError(err).
			WithField("socket", opts.Socket).
			WithField("namespace", opts.Namespace).
			Error("failed to connect to containerd")
		return nil, errors.Wrap(err, "failed to connect to containerd")
	}
	return &Engine{
		log:      log,
		client:   client,
		opts:     opts,
		networks: make(map[string]attachment),
	}, nil
}

// Close releases the containerd connection.
func (e *Engine) Close() error {
	return e.client.Close()
}

func (e *Engine) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, e.opts.Namespace)
}

// Pull pulls and unpacks image. ECR images are additionally tagged with the
// name they were requested by.
func (e *Engine) Pull(ctx context.Context, image string) error {
	ctx = e.ctx(ctx)
	log := e.log.WithField("source", image)

	ref := image
	isECRImage := ecrRegex.MatchString(ref)
	if isECRImage {
		ecrRef, err := ecr.ParseImageURI(ref)
		if err != nil {
			return errors.Wrap(err, "failed to parse ECR reference")
		}
		ref = ecrRef.Canonical()
		log.WithField("ref", ref).Debug("parsed ECR reference from URI")
	}

	resolver, err := e.resolver(ref)
	if err != nil {
		return err
	}
	img, err := e.client.Pull(ctx, ref,
		containerd.WithResolver(resolver),
		containerd.WithPullUnpack)
	if err != nil {
		return errors.Wrapf(err, "failed to pull %s", ref)
	}
	log.WithField("img", img.Name()).Info("pulled successfully")

	if isECRImage {
		log.WithField("ref", ref).Debug("adding source tag on pulled image")
		if err := e.tagImage(ctx, ref, image); err != nil {
			return errors.Wrap(err, "failed to add source tag on pulled image")
		}
	}
	return nil
}

// resolver picks the ECR resolver for ECR refs and a mirror-aware docker
// resolver for everything else.
func (e *Engine) resolver(ref string) (remotes.Resolver, error) {
	if strings.HasPrefix(ref, ecrRefPrefix) {
		resolver, err := ecr.NewResolver()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create ECR resolver")
		}
		e.log.WithField("ref", ref).Info("pulling with Amazon ECR resolver")
		return resolver, nil
	}
	return docker.NewResolver(docker.ResolverOptions{
		Hosts: registryHosts(e.opts.Registry, docker.NewDockerAuthorizer()),
	}), nil
}

// tagImage adds a tag to the image in containerd's metadata storage.
func (e *Engine) tagImage(ctx context.Context, imageName string, newImageName string) error {
	imageService := e.client.ImageService()
	image, err := imageService.Get(ctx, imageName)
	if err != nil {
		return err
	}
	image.Name = newImageName
	if _, err = imageService.Create(ctx, image); err != nil {
		if !cerrdefs.IsAlreadyExists(err) {
			return err
		}
		// The tag exists, replace it.
		if err = imageService.Delete(ctx, newImageName); err != nil {
			return err
		}
		if _, err = imageService.Create(ctx, image); err != nil {
			return err
		}
	}
	return nil
}

// Create creates the container and its task without starting it. A stale
// container with the same name is deleted first.
func (e *Engine) Create(ctx context.Context, spec agent.Spec) (string, error) {
	ctx = e.ctx(ctx)
	log := e.log.WithField("ctr-id", spec.ID)

	if err := e.deleteCtrIfExists(ctx, spec.ID); err != nil {
		return "", err
	}

	img, err := e.client.GetImage(ctx, spec.Image)
	if err != nil {
		return "", errors.Wrapf(err, "image %s not available", spec.Image)
	}

	container, err := e.client.NewContainer(
		ctx,
		spec.ID,
		containerd.WithImage(img),
		containerd.WithNewSnapshot(spec.ID+"-snapshot", img),
		containerd.WithNewSpec(specOpts(img, spec)...),
	)
	if err != nil {
		log.WithError(err).WithField("img", img.Name()).Error("failed to create container")
		return "", errors.Wrap(err, "failed to create container")
	}

	if _, err := container.NewTask(ctx, cio.NewCreator(cio.WithStdio)); err != nil {
		log.WithError(err).Error("failed to create container task")
		if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
			log.WithError(err).Warn("failed to clean up container")
		}
		return "", errors.Wrap(err, "failed to create container task")
	}
	log.Debug("created container task")
	return spec.ID, nil
}

// specOpts builds the OCI spec options for the agent. Without a test network
// the agent shares the host network namespace.
func specOpts(img oci.Image, spec agent.Spec) []oci.SpecOpts {
	opts := []oci.SpecOpts{
		oci.WithImageConfig(img),
		oci.WithProcessArgs(spec.Args...),
		oci.WithEnv(spec.Env),
		oci.WithMounts(mounts(spec.Binds)),
		oci.WithHostHostsFile,
		oci.WithHostResolvconf,
	}
	if spec.Network == "" {
		opts = append(opts, oci.WithHostNamespace(runtimespec.NetworkNamespace))
	}
	return opts
}

func mounts(binds []agent.Bind) []runtimespec.Mount {
	out := make([]runtimespec.Mount, 0, len(binds))
	for _, bind := range binds {
		mode := "rw"
		if bind.ReadOnly {
			mode = "ro"
		}
		out = append(out, runtimespec.Mount{
			Type:        "bind",
			Source:      bind.Source,
			Destination: bind.Destination,
			Options:     []string{"rbind", mode},
		})
	}
	return out
}

// ConnectNetwork joins the created task's network namespace to the CNI
// network described by <CNIConfDir>/<network>.conflist.
func (e *Engine) ConnectNetwork(ctx context.Context, id, network string) error {
	ctx = e.ctx(ctx)
	_, task, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	netns := fmt.Sprintf("/proc/%d/ns/net", task.Pid())

	cni, err := gocni.New(
		gocni.WithPluginConfDir(e.opts.CNIConfDir),
		gocni.WithPluginDir([]string{e.opts.CNIBinDir}),
		gocni.WithInterfacePrefix(cniIfPrefix),
	)
	if err != nil {
		return errors.Wrap(err, "failed to initialize cni")
	}
	conf := filepath.Join(e.opts.CNIConfDir, network+".conflist")
	if err := cni.Load(gocni.WithLoNetwork, gocni.WithConfListFile(conf)); err != nil {
		return errors.Wrapf(err, "failed to load cni network %s", network)
	}
	if _, err := cni.Setup(ctx, id, netns); err != nil {
		return errors.Wrapf(err, "failed to attach to network %s", network)
	}

	e.mu.Lock()
	e.networks[id] = attachment{cni: cni, netns: netns, network: network}
	e.mu.Unlock()
	e.log.WithField("ctr-id", id).WithField("network", network).Info("attached container to network")
	return nil
}

// detach tears down the container's network attachment, if any.
func (e *Engine) detach(ctx context.Context, id string) {
	e.mu.Lock()
	a, ok := e.networks[id]
	delete(e.networks, id)
	e.mu.Unlock()
	if !ok {
		return
	}
	if err := a.cni.Remove(ctx, id, a.netns); err != nil {
		e.log.WithError(err).WithField("ctr-id", id).WithField("network", a.network).Warn("failed to detach container from network")
	}
}

func (e *Engine) load(ctx context.Context, id string) (containerd.Container, containerd.Task, error) {
	container, err := e.client.LoadContainer(ctx, id)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to load container %s", id)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return container, nil, errors.Wrapf(err, "failed to load task of container %s", id)
	}
	return container, task, nil
}

// Start starts the container task.
func (e *Engine) Start(ctx context.Context, id string) error {
	ctx = e.ctx(ctx)
	_, task, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start container task")
	}
	e.log.WithField("ctr-id", id).Info("successfully started container task")
	return nil
}

// Status reports whether the container task is running. A container or task
// that no longer exists is inactive.
func (e *Engine) Status(ctx context.Context, id string) (agent.Status, error) {
	ctx = e.ctx(ctx)
	_, task, err := e.load(ctx, id)
	if cerrdefs.IsNotFound(err) {
		return agent.StatusInactive, nil
	}
	if err != nil {
		return "", err
	}
	status, err := task.Status(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get task status")
	}
	if status.Status == containerd.Running {
		return agent.StatusActive, nil
	}
	e.log.WithField("ctr-id", id).
		WithField("status", status.Status).
		WithField("code", status.ExitStatus).
		Debug("container task not running")
	return agent.StatusInactive, nil
}

// Stop sends SIGTERM to the container task and SIGKILL once the stop timeout
// passes.
func (e *Engine) Stop(ctx context.Context, id string) error {
	ctx = e.ctx(ctx)
	log := e.log.WithField("ctr-id", id)
	e.detach(ctx, id)

	_, task, err := e.load(ctx, id)
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	status, err := task.Status(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get task status")
	}
	if status.Status == containerd.Stopped {
		return nil
	}

	// Call Wait before Kill so the exit notification is not missed.
	exitStatusC, err := task.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to wait on container task")
	}
	if err := task.Kill(ctx, unix.SIGTERM); err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "failed to send SIGTERM to container")
	}

	timeout := time.NewTimer(e.opts.StopTimeout)
	defer timeout.Stop()
	select {
	case <-exitStatusC:
		log.Debug("container task exited")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
	}

	log.Warn("container task did not exit, sending SIGKILL")
	killCtx, cancel := context.WithTimeout(ctx, sigkillTimeout)
	defer cancel()
	if err := task.Kill(killCtx, unix.SIGKILL); err != nil {
		return errors.Wrap(err, "failed to SIGKILL container process")
	}
	select {
	case <-exitStatusC:
		return nil
	case <-killCtx.Done():
		return errors.Wrap(killCtx.Err(), "container did not exit after SIGKILL")
	}
}

// Remove deletes the container, its task and its snapshot.
func (e *Engine) Remove(ctx context.Context, id string) error {
	ctx = e.ctx(ctx)
	e.detach(ctx, id)
	return e.deleteCtrIfExists(ctx, id)
}

// deleteCtrIfExists cleans up an existing container. This involves killing its
// task then deleting it and its snapshot when any exist.
func (e *Engine) deleteCtrIfExists(ctx context.Context, targetCtr string) error {
	log := e.log.WithField("ctr-id", targetCtr)
	existingCtr, err := e.client.LoadContainer(ctx, targetCtr)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			log.Debug("no clean up necessary, proceeding")
			return nil
		}
		log.WithError(err).Error("failed to retrieve list of containers")
		return err
	}

	existingTask, err := existingCtr.Task(ctx, nil)
	if err != nil {
		if !cerrdefs.IsNotFound(err) {
			log.WithError(err).Error("failed to retrieve task associated with existing container")
			return err
		}
		log.Debug("no task associated with existing container")
	}
	if existingTask != nil {
		if _, err := existingTask.Delete(ctx, containerd.WithProcessKill); err != nil {
			log.WithError(err).Error("failed to delete existing container task")
			return err
		}
		log.Info("killed existing container task")
	}
	if err := existingCtr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		log.WithError(err).Error("failed to delete existing container")
		return err
	}
	log.Info("deleted existing container")
	return nil
}
