package line

import (
	"io"
	"time"

	"github.com/knieriem/gpib"
)

// ReadMgr continuously reads from a connection in the background.
// Between Start and Cancel, received data is collected for Read;
// otherwise it is passed to Forward, or dropped if Forward is nil.
type ReadMgr struct {
	buf     []byte
	req     chan []byte
	done    chan readResult
	exited  chan struct{}
	exitErr error
	Forward io.Writer
}

type ReadFunc func() ([]byte, error)

func NewReadMgr(rf ReadFunc, exitC chan<- int) *ReadMgr {
	m := new(ReadMgr)
	m.buf = make([]byte, 0, 256)
	m.req = make(chan []byte)
	m.done = make(chan readResult)
	m.exited = make(chan struct{})
	go m.handle(rf, exitC)
	return m
}

// Start discards everything received so far and
// begins collecting data for the next Read.
func (m *ReadMgr) Start() error {
	m.buf = m.buf[:0]
	select {
	case m.req <- m.buf:
		return nil
	case <-m.exited:
		return m.exitErr
	}
}

func (m *ReadMgr) Cancel() {
	select {
	case m.req <- nil:
	case <-m.exited:
	}
}

// Read waits until complete reports true for the data collected
// since Start, or until tMax has elapsed. In the latter case
// the data received so far is returned along with gpib.ErrTimeout.
func (m *ReadMgr) Read(tMax time.Duration, complete func([]byte) bool) (buf []byte, err error) {
	timeout := time.NewTimer(tMax)
	defer timeout.Stop()

	timedOut := false
readLoop:
	for {
		select {
		case r, ok := <-m.done:
			if !ok {
				err = m.exitErr
				return m.buf, err
			}
			m.buf = r.data
			if r.err != nil {
				err = r.err
				if err == io.EOF {
					err = gpib.ErrClosed
				}
				break readLoop
			}
			if complete == nil || complete(m.buf) {
				break readLoop
			}
		case <-timeout.C:
			timedOut = true
			break readLoop
		}
	}
	m.Cancel()

	buf = m.buf
	if timedOut {
		err = gpib.ErrTimeout
	}
	return
}

type readResult struct {
	data []byte
	err  error
}

func (m *ReadMgr) handle(read ReadFunc, exitC chan<- int) {
	var dest []byte

	data := make(chan readResult)
	go func() {
		exitCode := 1
		for {
			buf, err := read()
			data <- readResult{buf, err}
			<-data
			if err != nil {
				if err == io.EOF {
					exitCode = 0
				}
				break
			}
		}
		close(data)
		if exitC != nil {
			exitC <- exitCode
		}
	}()

	var exitErr error
loop:
	for {
		select {
		case dest = <-m.req:
		case r := <-data:
			if dest != nil {
				if r.err == nil {
					dest = append(dest, r.data...)
				}
			} else if m.Forward != nil && r.err == nil {
				m.Forward.Write(r.data)
			}
			data <- readResult{}
			if dest != nil {
				select {
				case m.done <- readResult{dest, r.err}:
				case b := <-m.req:
					if m.Forward != nil && b == nil {
						m.Forward.Write(dest)
					}
					dest = b
				}
			}
			if r.err != nil {
				exitErr = r.err
				break loop
			}
		}
	}
	if exitErr == io.EOF {
		exitErr = gpib.ErrClosed
	}
	m.exitErr = exitErr
	close(m.exited)
	close(m.done)
}
