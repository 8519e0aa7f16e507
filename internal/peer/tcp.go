package peer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"eptp/internal/domain"
)

const tcpDialTimeout = 5 * time.Second

// TCPTransport establishes peer channels over direct TCP. Address candidates
// advertised by the offerer are the local unicast addresses on the listen
// port; NAT traversal beyond that is out of scope.
type TCPTransport struct{}

// NewTCPTransport returns the production transport.
func NewTCPTransport() *TCPTransport { return &TCPTransport{} }

// Listen opens a listener on an ephemeral port and resolves its candidate
// addresses. Closing ctx closes the listener.
func (t *TCPTransport) Listen(ctx context.Context) (domain.Listener, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	l := &tcpListener{ln: ln, addrs: candidateAddrs(port), done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-l.done:
		}
	}()
	return l, nil
}

// Dial connects to one candidate address.
func (t *TCPTransport) Dial(ctx context.Context, addr string) (domain.Channel, error) {
	d := net.Dialer{Timeout: tcpDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewChannel(conn), nil
}

type tcpListener struct {
	ln    net.Listener
	addrs []string
	done  chan struct{}
}

func (l *tcpListener) Addrs() []string { return l.addrs }

func (l *tcpListener) Accept(ctx context.Context) (domain.Channel, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	res := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		res <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		_ = l.ln.Close()
		go func() { // reap a conn that raced the cancellation
			if r := <-res; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-res:
		if r.err != nil {
			return nil, r.err
		}
		return NewChannel(r.conn), nil
	}
}

func (l *tcpListener) Close() error {
	select {
	case <-l.done:
		return nil
	default:
		close(l.done)
	}
	return l.ln.Close()
}

// candidateAddrs enumerates dialable local addresses for the given port,
// loopback included so same-host peers can connect.
func candidateAddrs(port int) []string {
	var out []string
	ifaceAddrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range ifaceAddrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			out = append(out, net.JoinHostPort(ipNet.IP.String(), strconv.Itoa(port)))
		}
	}
	if len(out) == 0 {
		out = append(out, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	}
	return out
}

// Compile-time assertion that TCPTransport implements domain.Transport.
var _ domain.Transport = (*TCPTransport)(nil)
