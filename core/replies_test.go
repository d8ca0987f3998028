package core

import (
	"context"
	"io"
	"testing"

	"pkt.systems/sshtabs/schema"
)

type replyBuffer struct {
	*fakeBuffer
	r io.Reader
}

func (b *replyBuffer) Replies() io.Reader { return b.r }

func TestEmulatorRepliesReachChannel(t *testing.T) {
	h := newHarness(t)
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	reg, err := NewRegistry(context.Background(), RegistryDeps{
		Transport: h.transport,
		Emulators: func(cols, rows int) Buffer {
			return &replyBuffer{fakeBuffer: h.emulators.New(cols, rows).(*fakeBuffer), r: pr}
		},
		AfterFunc: h.clock.AfterFunc,
	}, RegistryOptions{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(reg.CloseAll)

	id := reg.Open(testProfile("a"))
	waitState(t, reg, id, schema.StateConnected)
	go func() { _, _ = pw.Write([]byte("\x1b[1;1R")) }()
	waitFor(t, "reply on channel", func() bool {
		ch := h.transport.channel(0)
		return ch != nil && ch.input() == "\x1b[1;1R"
	})
}
