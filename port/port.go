// Package port implements the ordered, bidirectional message channel spec
// §5 requires between a tab and the SharedHost ("BroadcastChannel /
// MessagePort" in the browser original). Two implementations are provided:
// Pair, for tabs and the host sharing one OS process, and a length-prefixed
// net.Conn framing for tabs and the host running as separate processes
// (see sharedhost.Claim / sharedclient.Dial, SPEC_FULL §0).
package port

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Port is an ordered, bidirectional channel of raw frames. Implementations
// must deliver Send calls in order (spec §5: "Messages on a single port are
// delivered in send order").
type Port interface {
	Send(ctx context.Context, frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Pair returns two connected in-process Ports: writes to one are readable
// from the other, in order. Used when a tab and the SharedHost live in the
// same process.
func Pair(buffer int) (a, b Port) {
	if buffer <= 0 {
		buffer = 16
	}
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	closeOnce := &sync.Once{}
	closed := make(chan struct{})
	pa := &chanPort{send: ab, recv: ba, closed: closed, closeOnce: closeOnce}
	pb := &chanPort{send: ba, recv: ab, closed: closed, closeOnce: closeOnce}
	return pa, pb
}

type chanPort struct {
	send      chan []byte
	recv      chan []byte
	closed    chan struct{}
	closeOnce *sync.Once
}

func (p *chanPort) Send(ctx context.Context, frame []byte) error {
	select {
	case <-p.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.send <- frame:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *chanPort) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-p.recv:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *chanPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// NetPort adapts a net.Conn into a Port using length-prefixed frames
// (4-byte big-endian length, then the frame itself). This is the transport
// used when a tab and the SharedHost are different OS processes, connected
// over the Unix-domain socket identified by the shared host key (SPEC_FULL
// §0 / spec §6 "shared-context identification").
func NetPort(conn net.Conn) Port {
	return &netPort{conn: conn}
}

type netPort struct {
	conn net.Conn
	mu   sync.Mutex
}

const maxFrameSize = 16 << 20 // 16 MiB, generous ceiling against a wild peer

func (p *netPort) Send(ctx context.Context, frame []byte) error {
	if len(frame) > maxFrameSize {
		return fmt.Errorf("port: frame too large: %d bytes", len(frame))
	}
	if dl, ok := ctx.Deadline(); ok {
		p.conn.SetWriteDeadline(dl)
		defer p.conn.SetWriteDeadline(time.Time{})
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frame)))
	if _, err := p.conn.Write(header[:]); err != nil {
		return fmt.Errorf("port: write header: %w", err)
	}
	if _, err := p.conn.Write(frame); err != nil {
		return fmt.Errorf("port: write frame: %w", err)
	}
	return nil
}

func (p *netPort) Recv(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		p.conn.SetReadDeadline(dl)
		defer p.conn.SetReadDeadline(time.Time{})
	}
	var header [4]byte
	if _, err := io.ReadFull(p.conn, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("port: peer announced oversized frame: %d bytes", n)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(p.conn, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (p *netPort) Close() error { return p.conn.Close() }
