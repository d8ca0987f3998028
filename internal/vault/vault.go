// Package vault seals profile secrets with keys held in a kryptograf key store.
package vault

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
)

const descriptorPrefix = "sshtabs:profile:"

// ErrEmptySecret is returned when opening an empty sealed value.
var ErrEmptySecret = errors.New("sealed secret is empty")

// Locked stands in for a vault whose key store could not be loaded. Every
// call fails with Err, so sealed secrets stay untouched on disk.
type Locked struct {
	Err error
}

// Seal returns l.Err.
func (l Locked) Seal(string, string) (string, error) {
	return "", l.Err
}

// Open returns l.Err.
func (l Locked) Open(string, string) (string, error) {
	return "", l.Err
}

// Vault encrypts and decrypts per-profile secrets.
type Vault struct {
	mu        sync.Mutex
	storePath string
	log       pslog.Logger
}

// New initializes the key store at storePath and ensures the root key exists.
func New(storePath string, logger pslog.Logger) (*Vault, error) {
	if strings.TrimSpace(storePath) == "" {
		return nil, fmt.Errorf("key store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o700); err != nil {
		if logger != nil {
			logger.Warn("vault ensure failed", "err", err)
		}
		return nil, err
	}
	store, err := keymgmt.LoadProto(storePath)
	if err == nil {
		_, err = store.EnsureRootKey()
	}
	if err == nil {
		err = store.Commit()
	}
	if err != nil {
		if logger != nil {
			logger.Warn("vault ensure failed", "err", err)
		}
		return nil, err
	}
	if logger != nil {
		logger = logger.With("key_store", storePath)
		logger.Debug("vault ensure ok")
	}
	return &Vault{storePath: storePath, log: logger}, nil
}

// Seal encrypts secret for the owner and returns it base64 encoded.
func (v *Vault) Seal(owner, secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	material, root, err := v.material(owner)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	writer, err := kryptograf.New(root).EncryptWriter(&buf, material)
	if err != nil {
		v.warn("vault seal failed", owner, err)
		return "", err
	}
	if _, err := io.Copy(writer, strings.NewReader(secret)); err != nil {
		_ = writer.Close()
		v.warn("vault seal failed", owner, err)
		return "", err
	}
	if err := writer.Close(); err != nil {
		v.warn("vault seal failed", owner, err)
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decrypts a value previously produced by Seal for the same owner.
func (v *Vault) Open(owner, sealed string) (string, error) {
	sealed = strings.TrimSpace(sealed)
	if sealed == "" {
		return "", ErrEmptySecret
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		v.warn("vault open failed", owner, err)
		return "", fmt.Errorf("decode sealed secret: %w", err)
	}
	material, root, err := v.material(owner)
	if err != nil {
		return "", err
	}
	reader, err := kryptograf.New(root).DecryptReader(bytes.NewReader(raw), material)
	if err != nil {
		v.warn("vault open failed", owner, err)
		return "", err
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		v.warn("vault open failed", owner, err)
		return "", err
	}
	return string(plain), nil
}

func (v *Vault) material(owner string) (keymgmt.Material, keymgmt.RootKey, error) {
	if strings.TrimSpace(owner) == "" {
		return keymgmt.Material{}, keymgmt.RootKey{}, errors.New("secret owner is required")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	store, err := keymgmt.LoadProto(v.storePath)
	if err != nil {
		v.warn("vault material load failed", owner, err)
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		v.warn("vault material load failed", owner, err)
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	name := descriptorPrefix + owner
	material, err := store.EnsureDescriptor(name, root, []byte(name))
	if err != nil {
		v.warn("vault material ensure failed", owner, err)
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	if err := store.Commit(); err != nil {
		v.warn("vault material commit failed", owner, err)
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	return material, root, nil
}

func (v *Vault) warn(msg, owner string, err error) {
	if v.log != nil {
		v.log.Warn(msg, "owner", owner, "err", err)
	}
}
