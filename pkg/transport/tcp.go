// Copyright 2025-2026 Tigro14

package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// tcpTransport wraps a TCP connection with bounded-poll read semantics via
// read deadlines.
type tcpTransport struct {
	conn        net.Conn
	readTimeout time.Duration
}

func dialTCP(ctx context.Context, cfg Config) (Transport, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &tcpTransport{conn: conn, readTimeout: cfg.readTimeout()}, nil
}

func (t *tcpTransport) Read(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return n, ErrReadTimeout
		}
		return n, err
	}
	return n, nil
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}
