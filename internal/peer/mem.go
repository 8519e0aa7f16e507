package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"eptp/internal/domain"
)

// MemNetwork is an in-process transport fabric for tests: listeners claim
// synthetic addresses and dials hand each side one end of a pipe.
type MemNetwork struct {
	mu        sync.Mutex
	next      int
	listeners map[string]*memListener
}

// NewMemNetwork returns an empty fabric.
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{listeners: make(map[string]*memListener)}
}

// Transport returns a domain.Transport attached to the fabric.
func (n *MemNetwork) Transport() domain.Transport { return &memTransport{net: n} }

type memTransport struct{ net *MemNetwork }

func (t *memTransport) Listen(ctx context.Context) (domain.Listener, error) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.net.next++
	addr := fmt.Sprintf("mem:%d", t.net.next)
	l := &memListener{
		net:     t.net,
		addr:    addr,
		inbound: make(chan domain.Channel),
		done:    make(chan struct{}),
	}
	t.net.listeners[addr] = l
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.done:
		}
	}()
	return l, nil
}

func (t *memTransport) Dial(ctx context.Context, addr string) (domain.Channel, error) {
	t.net.mu.Lock()
	l, ok := t.net.listeners[addr]
	t.net.mu.Unlock()
	if !ok {
		return nil, errors.New("mem transport: no listener at " + addr)
	}
	local, remote := Pipe()
	select {
	case l.inbound <- remote:
		return local, nil
	case <-l.done:
		return nil, errors.New("mem transport: listener closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memListener struct {
	net     *MemNetwork
	addr    string
	inbound chan domain.Channel

	once sync.Once
	done chan struct{}
}

func (l *memListener) Addrs() []string { return []string{l.addr} }

func (l *memListener) Accept(ctx context.Context) (domain.Channel, error) {
	select {
	case ch := <-l.inbound:
		return ch, nil
	case <-l.done:
		return nil, errors.New("mem transport: listener closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.net.mu.Lock()
		delete(l.net.listeners, l.addr)
		l.net.mu.Unlock()
	})
	return nil
}
