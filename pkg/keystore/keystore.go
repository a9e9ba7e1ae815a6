// Package keystore holds the operator's signing key for the lifetime of the
// process. The key is kept in locked, guarded memory and is only ever handed
// out hex-encoded for the agent's launch command.
package keystore

import (
	"bytes"
	"encoding/hex"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/pkg/errors"
)

// KeySize is the length of a secp256k1 private scalar.
const KeySize = 32

// Keystore is a read-only accessor over one signing key.
type Keystore struct {
	mu  sync.Mutex
	key *memguard.LockedBuffer
}

// Load reads a hex-encoded key (optionally 0x prefixed) from path.
func Load(path string) (*Keystore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read signing key")
	}
	defer memguard.WipeBytes(raw)
	return Parse(raw)
}

// Parse builds a Keystore from a hex-encoded key. The input is not retained.
func Parse(encoded []byte) (*Keystore, error) {
	trimmed := bytes.TrimSpace(encoded)
	trimmed = bytes.TrimPrefix(trimmed, []byte("0x"))
	if len(trimmed) == 0 {
		return nil, errors.New("signing key is empty")
	}
	key := make([]byte, hex.DecodedLen(len(trimmed)))
	n, err := hex.Decode(key, trimmed)
	if err != nil {
		memguard.WipeBytes(key)
		return nil, errors.Wrap(err, "signing key is not valid hex")
	}
	if n != KeySize {
		memguard.WipeBytes(key)
		return nil, errors.Errorf("signing key is %d bytes, expected %d", n, KeySize)
	}
	buf := memguard.NewBufferFromBytes(key[:n])
	buf.Freeze()
	return &Keystore{key: buf}, nil
}

// HexKey returns the key hex-encoded without a 0x prefix.
func (k *Keystore) HexKey() (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil || !k.key.IsAlive() {
		return "", errors.New("signing key has been destroyed")
	}
	return hex.EncodeToString(k.key.Bytes()), nil
}

// Close destroys the key material.
func (k *Keystore) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key != nil {
		k.key.Destroy()
	}
}
