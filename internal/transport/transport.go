// Package transport implements core.Transport on golang.org/x/crypto/ssh.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/core"
	"pkt.systems/sshtabs/schema"
)

// Config controls how connections are dialed and verified.
type Config struct {
	DialTimeout       time.Duration
	KnownHostsPath    string
	StrictHostKeys    bool
	UseAgent          bool
	Term              string
	KeepaliveInterval time.Duration
	Logger            pslog.Logger
}

const (
	defaultDialTimeout = 15 * time.Second
	defaultTerm        = "xterm-256color"
)

// Client dials SSH servers.
type Client struct {
	cfg    Config
	hosts  *hostKeys
	logger pslog.Logger
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
	agent  func() (agent.Agent, io.Closer, error)
}

// New builds a Client. A missing known_hosts file is not an error.
func New(cfg Config) (*Client, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if strings.TrimSpace(cfg.Term) == "" {
		cfg.Term = defaultTerm
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	hosts, err := loadHostKeys(cfg.KnownHostsPath, cfg.StrictHostKeys, logger)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, hosts: hosts, logger: logger}
	c.dial = (&net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}).DialContext
	c.agent = dialAgent
	return c, nil
}

// Connect dials target and completes the SSH handshake.
func (c *Client) Connect(ctx context.Context, target core.Target) (core.Conn, error) {
	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	log := c.logger.With("host", addr, "ssh_user", target.Username)

	auth, closeAgent, err := c.authMethods(target)
	if err != nil {
		log.Warn("transport credential rejected", "err", err)
		return nil, err
	}
	if closeAgent != nil {
		defer func() { _ = closeAgent.Close() }()
	}

	clientCfg := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            auth,
		HostKeyCallback: c.hosts.callback(),
		Timeout:         c.cfg.DialTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	raw, err := c.dial(dialCtx, "tcp", addr)
	if err != nil {
		log.Info("transport dial failed", "err", err)
		return nil, fmt.Errorf("%w: %v", schema.ErrNetwork, err)
	}
	// Abort the handshake when the caller gives up.
	stop := context.AfterFunc(dialCtx, func() { _ = raw.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, clientCfg)
	aborted := !stop()
	if err != nil {
		_ = raw.Close()
		if aborted {
			err = dialCtx.Err()
		}
		classified := classify(err)
		log.Info("transport handshake failed", "err", classified)
		return nil, classified
	}
	if aborted {
		_ = sshConn.Close()
		return nil, fmt.Errorf("%w: %v", schema.ErrNetwork, dialCtx.Err())
	}

	conn := &conn{
		client: ssh.NewClient(sshConn, chans, reqs),
		term:   c.cfg.Term,
		log:    log,
		done:   make(chan struct{}),
	}
	if c.cfg.KeepaliveInterval > 0 {
		go conn.keepalive(c.cfg.KeepaliveInterval)
	}
	log.Info("transport connected", "server_version", string(sshConn.ServerVersion()))
	return conn, nil
}

func (c *Client) authMethods(target core.Target) ([]ssh.AuthMethod, io.Closer, error) {
	var methods []ssh.AuthMethod
	if len(target.PrivateKey) > 0 {
		signer, err := parseKey(target.PrivateKey, target.Password)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", schema.ErrCredentialLoad, target.KeyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	var closer io.Closer
	if c.cfg.UseAgent && c.agent != nil {
		ag, cl, err := c.agent()
		switch {
		case err != nil:
			c.logger.Debug("transport agent unavailable", "err", err)
		case ag != nil:
			methods = append(methods, ssh.PublicKeysCallback(ag.Signers))
			closer = cl
		}
	}
	if target.Password != "" {
		password := target.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	return methods, closer, nil
}

func parseKey(data []byte, passphrase string) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	}
	return nil, err
}

func dialAgent() (agent.Agent, io.Closer, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil, nil
	}
	c, err := net.Dial("unix", sock)
	if err != nil {
		return nil, nil, err
	}
	return agent.NewClient(c), c, nil
}

const clientAuthFailure = "ssh: unable to authenticate"

// classify maps handshake failures onto schema sentinels. Host key failures
// arrive wrapped from the host key callback.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, schema.ErrHostKeyMismatch):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", schema.ErrNetwork, err)
	}
	// The client reports exhausted auth methods as an untyped error.
	if strings.Contains(err.Error(), clientAuthFailure) {
		return fmt.Errorf("%w: %v", schema.ErrAuth, err)
	}
	return fmt.Errorf("%w: %v", schema.ErrNetwork, err)
}

type conn struct {
	client *ssh.Client
	term   string
	log    pslog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func (c *conn) OpenShell(ctx context.Context, size core.Size) (core.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrChannel, err)
	}
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: new session: %v", schema.ErrChannel, err)
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(c.term, size.Rows, size.Cols, modes); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("%w: request pty: %v", schema.ErrChannel, err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("%w: stdin: %v", schema.ErrChannel, err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("%w: stdout: %v", schema.ErrChannel, err)
	}
	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("%w: shell: %v", schema.ErrChannel, err)
	}
	c.log.Debug("transport shell opened", "cols", size.Cols, "rows", size.Rows, "term", c.term)
	return &channel{sess: sess, stdin: stdin, stdout: stdout}, nil
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.client.Close()
	})
	return err
}

func (c *conn) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if _, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				c.log.Warn("transport keepalive failed", "err", err)
				_ = c.Close()
				return
			}
		}
	}
}

type channel struct {
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
	once   sync.Once
}

func (ch *channel) Read(p []byte) (int, error) { return ch.stdout.Read(p) }

func (ch *channel) Write(p []byte) (int, error) { return ch.stdin.Write(p) }

func (ch *channel) SetWindowSize(size core.Size) error {
	if err := ch.sess.WindowChange(size.Rows, size.Cols); err != nil {
		return fmt.Errorf("%w: window change: %v", schema.ErrChannel, err)
	}
	return nil
}

func (ch *channel) Close() error {
	var err error
	ch.once.Do(func() {
		_ = ch.stdin.Close()
		err = ch.sess.Close()
		if errors.Is(err, io.EOF) {
			err = nil
		}
	})
	return err
}
