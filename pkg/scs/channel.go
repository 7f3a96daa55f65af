package scs

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

// PacketHandler is called for every packet extracted from a channel.
type PacketHandler interface {
	HandlePacket(context.Context, *Channel, Packet)
}

// HandlePacketFunc is the func form of PacketHandler.
type HandlePacketFunc func(context.Context, *Channel, Packet)

// HandlePacket implements PacketHandler.
func (f HandlePacketFunc) HandlePacket(ctx context.Context, ch *Channel, pkt Packet) {
	f(ctx, ch, pkt)
}

// Channel is one duplex peer link carrying the packet protocol. The
// read side runs in a background goroutine feeding the framer; the
// write side may be used from any goroutine.
type Channel struct {
	Name       string
	ReadWriter io.ReadWriter
	Handler    PacketHandler

	framer    Framer
	writeLock sync.Mutex
}

// NewChannel creates a channel over rw.
func NewChannel(name string, rw io.ReadWriter) *Channel {
	return &Channel{Name: name, ReadWriter: rw}
}

// WithGapTimeout overrides the framer's inter-byte gap timeout.
func (c *Channel) WithGapTimeout(d time.Duration) *Channel {
	c.framer.GapTimeout = d
	return c
}

// Send writes the packet fully before returning.
func (c *Channel) Send(pkt Packet) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if _, err := pkt.WriteTo(c.ReadWriter); err != nil {
		return err
	}
	if f, ok := c.ReadWriter.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Run reads the channel until the context is canceled. If the
// underlying ReadWriter is an io.Closer it is closed on cancellation to
// unblock the pending read.
func (c *Channel) Run(ctx context.Context) error {
	run := func() error {
		buf := make([]byte, 64)
		for {
			n, err := c.ReadWriter.Read(buf)
			if err != nil {
				return err
			}
			now := time.Now()
			for i := 0; i < n; i++ {
				c.framer.Feed(now, buf[i])
			}
			for {
				pkt, ok := c.framer.TryExtract()
				if !ok {
					break
				}
				glog.V(2).Infof("%s RCV %s", c.Name, pkt)
				if h := c.Handler; h != nil {
					h.HandlePacket(ctx, c, pkt)
				}
			}
		}
	}
	if closer, ok := c.ReadWriter.(io.Closer); ok {
		errCh := make(chan error, 1)
		go func() { errCh <- run() }()
		select {
		case <-ctx.Done():
			closer.Close()
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			return err
		}
	}
	return run()
}
