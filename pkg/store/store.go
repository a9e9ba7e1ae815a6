// Package store keeps the agent's configuration on disk: the current set of
// configuration documents, the relay-chain list, and at most one backup of
// each taken when a configuration transaction begins.
package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/errdefs"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/logging"
)

const (
	databaseDir      = "hyperlane_db"
	configsDir       = "agent_configs"
	relayChainsFile  = "relay_chains.txt"
	backupSuffix     = ".orig"
	lockFile         = ".relayer-ctr.lock"
	documentExt      = ".json"
	lockPollInterval = 500 * time.Millisecond
)

// Store is the filesystem-backed configuration repository rooted at a data
// directory.
type Store struct {
	log     logging.Logger
	dataDir string
}

// New returns a Store rooted at dataDir, creating the directory if needed.
func New(log logging.Logger, dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("data directory must be provided")
	}
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, errdefs.Filesystem(errors.Wrap(err, "unable to create data directory"))
	}
	return &Store{log: log, dataDir: dataDir}, nil
}

// DataDir returns the root of the store.
func (s *Store) DataDir() string { return s.dataDir }

// DatabasePath is the persistent agent storage directory.
func (s *Store) DatabasePath() string { return filepath.Join(s.dataDir, databaseDir) }

// ConfigsPath is the current documents directory.
func (s *Store) ConfigsPath() string { return filepath.Join(s.dataDir, configsDir) }

// RelayChainsPath is the current relay-chain file.
func (s *Store) RelayChainsPath() string { return filepath.Join(s.dataDir, relayChainsFile) }

// BackupConfigsPath is the backup documents directory.
func (s *Store) BackupConfigsPath() string { return s.ConfigsPath() + backupSuffix }

// BackupRelayChainsPath is the backup relay-chain file.
func (s *Store) BackupRelayChainsPath() string { return s.RelayChainsPath() + backupSuffix }

// Lock takes the whole-transaction file lock, waiting until ctx is done. The
// returned function releases it.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	fileLock := flock.New(filepath.Join(s.dataDir, lockFile))
	ok, err := fileLock.TryLockContext(ctx, lockPollInterval)
	if err != nil || !ok {
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, errdefs.Filesystem(errors.Wrap(err, "acquiring configuration lock failed"))
	}
	return func() error {
		if err := fileLock.Unlock(); err != nil {
			return errdefs.Filesystem(errors.Wrap(err, "failed to release configuration lock"))
		}
		return nil
	}, nil
}

// Stage backs up whatever configuration currently exists and leaves an
// empty documents directory in its place. Any earlier backup is replaced.
func (s *Store) Stage() error {
	configs := s.ConfigsPath()
	exists, err := pathExists(configs)
	if err != nil {
		return errdefs.Filesystem(err)
	}
	if exists {
		backup := s.BackupConfigsPath()
		s.log.WithField("path", configs).Info("configs path exists, backing up")
		if err := os.RemoveAll(backup); err != nil {
			return errdefs.Filesystem(errors.Wrap(err, "unable to remove previous configs backup"))
		}
		if err := os.Rename(configs, backup); err != nil {
			return errdefs.Filesystem(errors.Wrap(err, "unable to back up configs"))
		}
	}

	relayChains := s.RelayChainsPath()
	exists, err = pathExists(relayChains)
	if err != nil {
		return errdefs.Filesystem(err)
	}
	if exists {
		s.log.WithField("path", relayChains).Info("relay chains list exists, backing up")
		if err := os.Rename(relayChains, s.BackupRelayChainsPath()); err != nil {
			return errdefs.Filesystem(errors.Wrap(err, "unable to back up relay chains"))
		}
	}

	if err := os.MkdirAll(configs, 0750); err != nil {
		return errdefs.Filesystem(errors.Wrap(err, "unable to create configs directory"))
	}
	return nil
}

// WriteDocuments writes each blob as <index>.json in the documents
// directory. No blobs leaves the directory empty and the agent falls back to
// its built-in defaults.
func (s *Store) WriteDocuments(blobs [][]byte) error {
	configs := s.ConfigsPath()
	if len(blobs) == 0 {
		s.log.Info("no configs provided, using defaults")
		return nil
	}
	for index, blob := range blobs {
		path := filepath.Join(configs, strconv.Itoa(index)+documentExt)
		if err := os.WriteFile(path, blob, 0640); err != nil {
			return errdefs.Filesystem(errors.Wrapf(err, "unable to write config %d", index))
		}
	}
	s.log.WithField("path", configs).WithField("count", len(blobs)).Info("new configs written")
	return nil
}

// WriteRelayChains replaces the relay-chain file.
func (s *Store) WriteRelayChains(relayChains string) error {
	path := s.RelayChainsPath()
	if err := writeFileAtomic(path, []byte(relayChains)); err != nil {
		return errdefs.Filesystem(err)
	}
	s.log.WithField("path", path).Info("relay chains written")
	return nil
}

// Rollback restores the backup taken by Stage. It fails with NoFallback when
// there is no backup to restore.
func (s *Store) Rollback() error {
	backup := s.BackupConfigsPath()
	exists, err := pathExists(backup)
	if err != nil {
		return errdefs.Filesystem(err)
	}
	if !exists {
		return errdefs.NoFallback(errors.New("configs failed to apply, with no fallback"))
	}

	configs := s.ConfigsPath()
	if err := os.RemoveAll(configs); err != nil {
		return errdefs.Filesystem(errors.Wrap(err, "unable to remove failed configs"))
	}
	s.log.WithField("from", backup).WithField("to", configs).Debug("restoring configs")
	if err := os.Rename(backup, configs); err != nil {
		return errdefs.Filesystem(errors.Wrap(err, "unable to restore configs"))
	}

	backupRelayChains := s.BackupRelayChainsPath()
	exists, err = pathExists(backupRelayChains)
	if err != nil {
		return errdefs.Filesystem(err)
	}
	if exists {
		relayChains := s.RelayChainsPath()
		s.log.WithField("from", backupRelayChains).WithField("to", relayChains).Debug("restoring relay chains")
		if err := os.Rename(backupRelayChains, relayChains); err != nil {
			return errdefs.Filesystem(errors.Wrap(err, "unable to restore relay chains"))
		}
	}
	return nil
}

// Documents lists the current document file names in index order. A missing
// documents directory yields no names.
func (s *Store) Documents() ([]string, error) {
	entries, err := os.ReadDir(s.ConfigsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Filesystem(errors.Wrap(err, "unable to list configs"))
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return documentIndex(names[i]) < documentIndex(names[j])
	})
	return names, nil
}

// RelayChains returns the relay-chain list verbatim and whether the file
// exists.
func (s *Store) RelayChains() (string, bool, error) {
	raw, err := os.ReadFile(s.RelayChainsPath())
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errdefs.Filesystem(errors.Wrap(err, "unable to read relay chains"))
	}
	return string(raw), true, nil
}

// EnsureDatabase creates the persistent agent storage directory if absent
// and returns its path.
func (s *Store) EnsureDatabase() (string, error) {
	path := s.DatabasePath()
	exists, err := pathExists(path)
	if err != nil {
		return "", errdefs.Filesystem(err)
	}
	if !exists {
		s.log.WithField("path", path).Warn("hyperlane database does not exist, creating")
		if err := os.MkdirAll(path, 0750); err != nil {
			return "", errdefs.Filesystem(errors.Wrap(err, "unable to create hyperlane database"))
		}
	}
	return path, nil
}

// documentIndex orders numbered documents numerically; anything else sorts
// after them by name.
func documentIndex(name string) int {
	index, err := strconv.Atoi(strings.TrimSuffix(name, documentExt))
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return index
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "unable to stat %s", path)
}

// writeFileAtomic persists data through a temporary file renamed over path.
func writeFileAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	if _, err = tempFile.Write(data); err != nil {
		return errors.Wrap(err, "failed to write temporary file")
	}
	if err = tempFile.Chmod(0640); err != nil {
		return errors.Wrap(err, "failed to set temporary file mode")
	}
	if err = tempFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary file")
	}
	if err = os.Rename(tempFile.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to persist %s", filepath.Base(path))
	}
	return nil
}
