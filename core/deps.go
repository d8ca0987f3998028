package core

import (
	"context"
	"io"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/schema"
)

// Size is a viewport size in cells.
type Size struct {
	Cols int
	Rows int
}

// Target describes where and how to connect. Credentials are already
// resolved: PrivateKey holds the key file contents when the profile has one.
type Target struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte
	KeyPath    string
}

// Transport establishes authenticated connections. Connect errors wrap
// schema.ErrAuth, schema.ErrNetwork, schema.ErrHostKeyMismatch or
// schema.ErrCredentialLoad.
type Transport interface {
	Connect(ctx context.Context, target Target) (Conn, error)
}

// Conn is an authenticated connection.
type Conn interface {
	// OpenShell allocates a pty of the given size and starts a shell.
	// Errors wrap schema.ErrChannel.
	OpenShell(ctx context.Context, size Size) (Channel, error)
	Close() error
}

// Channel is a bidirectional shell byte stream. Read returns io.EOF when the
// remote side closes the channel.
type Channel interface {
	io.Reader
	io.Writer
	SetWindowSize(size Size) error
	Close() error
}

// Buffer is a terminal emulation buffer.
type Buffer interface {
	Feed(data []byte)
	Resize(cols, rows int)
	// ViewportLines returns the visible rows as plain text.
	ViewportLines() []string
	CursorPosition() schema.Position
	Dispose()
}

// ReplySource is implemented by buffers that produce terminal replies
// (device status reports and similar) that must be sent back to the remote.
type ReplySource interface {
	Replies() io.Reader
}

// EmulatorFactory creates emulation buffers.
type EmulatorFactory func(cols, rows int) Buffer

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RegistryDeps captures the collaborators of a Registry.
type RegistryDeps struct {
	Transport Transport
	Emulators EmulatorFactory
	Events    EventSink
	Logger    pslog.Logger
	// ReadKey reads private key files. Defaults to os.ReadFile.
	ReadKey func(path string) ([]byte, error)
	// AfterFunc schedules snapshot extraction. Defaults to time.AfterFunc.
	AfterFunc AfterFunc
}

// RegistryOptions tunes a Registry.
type RegistryOptions struct {
	// RefreshInterval is the minimum spacing between snapshot extractions.
	RefreshInterval time.Duration
	// Viewport is the initial viewport used for new sessions.
	Viewport Size
}

// DefaultRefreshInterval is the default snapshot coalescing interval.
const DefaultRefreshInterval = 16 * time.Millisecond

// MinViewport is the smallest viewport handed to a remote pty.
var MinViewport = Size{Cols: 10, Rows: 5}

// ClampViewport enforces MinViewport.
func ClampViewport(size Size) Size {
	if size.Cols < MinViewport.Cols {
		size.Cols = MinViewport.Cols
	}
	if size.Rows < MinViewport.Rows {
		size.Rows = MinViewport.Rows
	}
	return size
}
