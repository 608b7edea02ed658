// Package serialporttest provides an in-memory serial port for driver tests.
package serialporttest

import (
	"bytes"
	"sync"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/serialport"
)

// Fake is an in-memory Port for driver tests. Each Write is answered with
// the next queued reply; Read drains the current reply.
type Fake struct {
	mu      sync.Mutex
	replies [][]byte
	pending bytes.Buffer
	Writes  [][]byte
	Closed  bool
}

// NewFake returns a Fake that answers successive writes with replies. A nil
// reply produces silence (a read timeout).
func NewFake(replies ...[]byte) *Fake {
	return &Fake{replies: replies}
}

// Queue appends replies.
func (f *Fake) Queue(replies ...[]byte) {
	f.mu.Lock()
	f.replies = append(f.replies, replies...)
	f.mu.Unlock()
}

func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, append([]byte(nil), p...))
	if len(f.replies) > 0 {
		f.pending.Write(f.replies[0])
		f.replies = f.replies[1:]
	}
	return len(p), nil
}

// Read returns pending reply bytes, or 0, nil after a short pause when
// there are none, like a real port whose read timeout elapsed.
func (f *Fake) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.pending.Len() == 0 {
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	defer f.mu.Unlock()
	return f.pending.Read(p)
}

func (f *Fake) ResetInputBuffer() error {
	f.mu.Lock()
	f.pending.Reset()
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetReadTimeout(time.Duration) error { return nil }

func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// WriteCount returns the number of writes seen so far.
func (f *Fake) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// Opener returns an Opener that always hands out f.
func (f *Fake) Opener() serialport.Opener {
	return func(serialport.Config) (serialport.Port, error) { return f, nil }
}
