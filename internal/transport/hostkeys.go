package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/schema"
)

// hostKeys verifies server keys against a known_hosts file. Unknown hosts
// are accepted unless strict is set; a changed key is always rejected.
type hostKeys struct {
	path   string
	strict bool
	check  ssh.HostKeyCallback
	logger pslog.Logger
}

func loadHostKeys(path string, strict bool, logger pslog.Logger) (*hostKeys, error) {
	h := &hostKeys{path: strings.TrimSpace(path), strict: strict, logger: logger}
	if h.path == "" {
		return h, nil
	}
	if _, err := os.Stat(h.path); err != nil {
		if os.IsNotExist(err) {
			logger.Debug("transport known_hosts missing", "path", h.path)
			return h, nil
		}
		return nil, fmt.Errorf("stat known_hosts: %w", err)
	}
	check, err := knownhosts.New(h.path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	h.check = check
	return h, nil
}

func (h *hostKeys) callback() ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fingerprint := ssh.FingerprintSHA256(key)
		if h.check == nil {
			return h.unknown(hostname, fingerprint)
		}
		err := h.check(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) {
			if len(keyErr.Want) == 0 {
				return h.unknown(hostname, fingerprint)
			}
			h.logger.Warn("transport host key mismatch", "host", hostname, "fingerprint", fingerprint)
			return fmt.Errorf("%w: %s presented %s", schema.ErrHostKeyMismatch, hostname, fingerprint)
		}
		var revoked *knownhosts.RevokedError
		if errors.As(err, &revoked) {
			return fmt.Errorf("%w: %s key revoked", schema.ErrHostKeyMismatch, hostname)
		}
		return err
	}
}

func (h *hostKeys) unknown(hostname, fingerprint string) error {
	if h.strict {
		h.logger.Warn("transport host key unknown", "host", hostname, "fingerprint", fingerprint)
		return fmt.Errorf("%w: %s is not in known_hosts", schema.ErrHostKeyMismatch, hostname)
	}
	h.logger.Info("transport host key accepted", "host", hostname, "fingerprint", fingerprint)
	return nil
}
