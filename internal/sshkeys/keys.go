// Package sshkeys generates OpenSSH key pairs that profiles can reference.
package sshkeys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
)

const (
	// KeyTypeEd25519 requests Ed25519 key generation.
	KeyTypeEd25519 = "ed25519"
	// KeyTypeRSA requests RSA key generation.
	KeyTypeRSA = "rsa"
	// DefaultRSABits is the default RSA key size in bits.
	DefaultRSABits = 3072
	minRSABits     = 2048
)

// ErrKeyExists is returned instead of overwriting an existing key file.
var ErrKeyExists = errors.New("key file already exists")

// Pair describes a written key pair.
type Pair struct {
	PrivatePath   string
	PublicPath    string
	AuthorizedKey string
}

// DefaultPath returns where a generated key named name lives under stateDir.
func DefaultPath(stateDir, name, keyType string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid key name %q", name)
	}
	if keyType == "" {
		keyType = KeyTypeEd25519
	}
	return filepath.Join(stateDir, "keys", name, "id_"+strings.ToLower(keyType)), nil
}

// Generate writes a new unencrypted OpenSSH private key to privatePath and
// its authorized_keys line to privatePath + ".pub".
func Generate(privatePath, keyType string, bits int, comment string, logger pslog.Logger) (Pair, error) {
	if strings.TrimSpace(privatePath) == "" {
		return Pair{}, errors.New("key path is required")
	}
	if logger != nil {
		logger = logger.With("key_path", privatePath)
	}
	pair, err := generate(privatePath, keyType, bits, comment)
	if err != nil {
		if logger != nil {
			logger.Warn("ssh key write failed", "err", err)
		}
		return Pair{}, err
	}
	if logger != nil {
		logger.Info("ssh key write ok", "key_type", keyType)
	}
	return pair, nil
}

func generate(privatePath, keyType string, bits int, comment string) (Pair, error) {
	publicPath := privatePath + ".pub"
	for _, path := range []string{privatePath, publicPath} {
		if _, err := os.Lstat(path); err == nil {
			return Pair{}, fmt.Errorf("%w: %s", ErrKeyExists, path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return Pair{}, err
		}
	}
	priv, err := newPrivateKey(keyType, bits)
	if err != nil {
		return Pair{}, err
	}
	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return Pair{}, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return Pair{}, err
	}
	authorized := ssh.MarshalAuthorizedKey(signer.PublicKey())
	if comment != "" {
		authorized = append(authorized[:len(authorized)-1], []byte(" "+comment+"\n")...)
	}

	dir := filepath.Dir(privatePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Pair{}, err
	}
	if err := writeFileAtomic(dir, privatePath, pem.EncodeToMemory(block), 0o600); err != nil {
		return Pair{}, err
	}
	if err := writeFileAtomic(dir, publicPath, authorized, 0o644); err != nil {
		_ = os.Remove(privatePath)
		return Pair{}, err
	}
	return Pair{
		PrivatePath:   privatePath,
		PublicPath:    publicPath,
		AuthorizedKey: strings.TrimSpace(string(authorized)),
	}, nil
}

func newPrivateKey(keyType string, bits int) (crypto.PrivateKey, error) {
	switch strings.ToLower(strings.TrimSpace(keyType)) {
	case "", KeyTypeEd25519:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return key, nil
	case KeyTypeRSA:
		if bits == 0 {
			bits = DefaultRSABits
		}
		if bits < minRSABits {
			return nil, fmt.Errorf("rsa bits must be at least %d", minRSABits)
		}
		return rsa.GenerateKey(rand.Reader, bits)
	default:
		return nil, fmt.Errorf("unsupported ssh key type %q", keyType)
	}
}

func writeFileAtomic(dir, path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(dir, ".key-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
