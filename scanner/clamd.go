// Package scanner wraps the external content-scanning capability. The Gate is
// what the assembler talks to: it scans a batch of upload buffers and rejects
// the whole batch on the first infected member.
package scanner

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"
)

// Result is one scanner verdict for one buffer.
type Result struct {
	Infected  bool
	Signature string
}

// Scanner is the external scanning capability, reduced to its interface.
type Scanner interface {
	Scan(ctx context.Context, data []byte) (Result, error)
}

// ClamdScanner speaks the clamd INSTREAM protocol over TCP.
type ClamdScanner struct {
	addr    string
	timeout time.Duration
}

func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{addr: addr, timeout: 30 * time.Second}
}

const instreamChunkSize = 64 << 10

func (s *ClamdScanner) Scan(ctx context.Context, data []byte) (Result, error) {
	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return Result{}, fmt.Errorf("clamd dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.timeout))
	}

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return Result{}, fmt.Errorf("clamd handshake: %w", err)
	}

	var sizeBuf [4]byte
	for off := 0; off < len(data); off += instreamChunkSize {
		end := off + instreamChunkSize
		if end > len(data) {
			end = len(data)
		}
		binary.BigEndian.PutUint32(sizeBuf[:], uint32(end-off))
		if _, err := conn.Write(sizeBuf[:]); err != nil {
			return Result{}, fmt.Errorf("clamd stream: %w", err)
		}
		if _, err := conn.Write(data[off:end]); err != nil {
			return Result{}, fmt.Errorf("clamd stream: %w", err)
		}
	}
	// zero-length chunk terminates the stream
	binary.BigEndian.PutUint32(sizeBuf[:], 0)
	if _, err := conn.Write(sizeBuf[:]); err != nil {
		return Result{}, fmt.Errorf("clamd stream: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\x00')
	if err != nil && reply == "" {
		return Result{}, fmt.Errorf("clamd reply: %w", err)
	}
	reply = strings.TrimRight(strings.TrimSpace(reply), "\x00")

	switch {
	case strings.HasSuffix(reply, "OK"):
		return Result{}, nil
	case strings.HasSuffix(reply, "FOUND"):
		sig := strings.TrimSuffix(strings.TrimPrefix(reply, "stream: "), " FOUND")
		return Result{Infected: true, Signature: sig}, nil
	default:
		return Result{}, fmt.Errorf("clamd: unexpected reply %q", reply)
	}
}
