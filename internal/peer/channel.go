package peer

import (
	"encoding/json"
	"io"
	"net"
	"sync"

	"eptp/internal/domain"
)

// jsonChannel frames domain.Frame values as JSON over an ordered, reliable
// byte stream. Sends are serialised; Recv is single-reader by construction.
type jsonChannel struct {
	rwc io.ReadWriteCloser

	wmu sync.Mutex
	enc *json.Encoder
	dec *json.Decoder

	closeOnce sync.Once
	closeErr  error
}

// NewChannel wraps an ordered, reliable byte stream as a frame channel.
func NewChannel(rwc io.ReadWriteCloser) domain.Channel {
	return &jsonChannel{
		rwc: rwc,
		enc: json.NewEncoder(rwc),
		dec: json.NewDecoder(rwc),
	}
}

func (c *jsonChannel) Send(f domain.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.enc.Encode(f)
}

func (c *jsonChannel) Recv() (domain.Frame, error) {
	var f domain.Frame
	err := c.dec.Decode(&f)
	return f, err
}

func (c *jsonChannel) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.rwc.Close() })
	return c.closeErr
}

// Pipe returns two connected in-process channels, one per peer end.
func Pipe() (domain.Channel, domain.Channel) {
	a, b := net.Pipe()
	return NewChannel(a), NewChannel(b)
}
