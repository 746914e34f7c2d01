// Package gpib232 drives a National Instruments GPIB-232CT(-A)
// controller, which connects a GPIB bus to a serial port.
//
// A single Controller owns the serial connection; Device values
// obtained from it address individual instruments on the bus.
// Each write and read is followed by a status query; errors the
// controller reports there are logged, but not returned.
package gpib232

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/knieriem/gpib"
	"github.com/knieriem/gpib/debug"
)

const (
	DefaultTimeout      = 500 * time.Millisecond
	DefaultReadDelay    = 20 * time.Millisecond
	DefaultDrainTimeout = 100 * time.Millisecond

	// MaxReadLen is the number of bytes requested by
	// rd #count if the caller does not limit the count.
	MaxReadLen = 255

	// NoSecondary, passed to PassControl, omits
	// the secondary address.
	NoSecondary = -1

	// versionLen is the length of the identification
	// message returned by the id command.
	versionLen = 71
)

// ErrSecondaryAddr is returned by PassControl if the secondary
// address is not a secondary command byte (96 to 126).
var ErrSecondaryAddr = gpib.Error("secondary address out of range")

const (
	minSecondary = 96
	maxSecondary = 126
)

type Controller struct {
	conn gpib.NetConn
	mu   sync.Mutex
	log  *zap.Logger
	eoi  bool

	Tracef          func(format string, a ...interface{})
	ResponseTimeout time.Duration
	ReadDelay       time.Duration

	// DrainTimeout limits the wait for the reply to the plain
	// stat command that follows each status check.
	DrainTimeout time.Duration
	RequestStats gpib.RequestStats
}

type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.ResponseTimeout = d
	}
}

// WithReadDelay sets the time to wait between sending a
// read command and receiving the data, for slow instruments.
func WithReadDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.ReadDelay = d
	}
}

// WithEOI controls whether the controller asserts EOI
// with the last byte written to an instrument.
func WithEOI(on bool) Option {
	return func(c *Controller) {
		c.eoi = on
	}
}

func WithTracef(f func(format string, a ...interface{})) Option {
	return func(c *Controller) {
		c.Tracef = f
	}
}

// New initializes the controller connected via conn: it disables
// end-of-string detection (EOS D), and configures EOI assertion.
func New(conn gpib.NetConn, opts ...Option) (c *Controller, err error) {
	c = new(Controller)
	c.conn = conn
	c.log = zap.NewNop()
	c.eoi = true
	c.ResponseTimeout = DefaultTimeout
	c.ReadDelay = DefaultReadDelay
	c.DrainTimeout = DefaultDrainTimeout
	for _, o := range opts {
		o(c)
	}

	err = c.command("EOS D")
	if err != nil {
		return nil, err
	}
	err = c.SetEOI(c.eoi)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Device returns a handle for the instrument at addr. Devices
// obtained from the same Controller share its connection.
func (c *Controller) Device(addr gpib.Addr) (*Device, error) {
	d, err := gpib.NewDevice(c, addr)
	if err != nil {
		return nil, err
	}
	return &Device{AddressedDevice: d, c: c}, nil
}

func (c *Controller) Name() string {
	return c.conn.Name()
}

func (c *Controller) Logger() *zap.Logger {
	return c.log
}

func (c *Controller) send(cmd string) (err error) {
	w := c.conn.MsgWriter()
	_, err = io.WriteString(w, cmd)
	if err != nil {
		return
	}
	sent, err := c.conn.Send()
	if c.Tracef != nil {
		c.Tracef("%s\n", debug.FormatMsg("<-", sent, err, c.conn.Name()))
	}
	return
}

func (c *Controller) receive(rs *gpib.ReplySpec) ([]byte, error) {
	return c.receiveTimeout(c.ResponseTimeout, rs)
}

func (c *Controller) receiveTimeout(timeout time.Duration, rs *gpib.ReplySpec) (buf []byte, err error) {
	buf, err = c.conn.Receive(timeout, rs)
	if c.Tracef != nil {
		c.Tracef("%s\n", debug.FormatMsg("->", buf, err, c.conn.Name()))
	}
	return
}

func (c *Controller) query(cmd string, rs *gpib.ReplySpec) ([]byte, error) {
	err := c.send(cmd)
	if err != nil {
		return nil, err
	}
	return c.receive(rs)
}

// command sends a command that does not produce a reply.
func (c *Controller) command(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(cmd)
}

func (c *Controller) readStatus() (r StatusReport, err error) {
	reply, err := c.query("stat n", &gpib.ReplySpec{Lines: 4})
	if err != nil {
		return
	}
	r, err = ParseStatus(reply)
	if err != nil {
		return
	}

	// The reply to a plain stat must be consumed here, otherwise
	// it may arrive after the next command has been sent, and
	// be taken for that command's reply.
	err = c.send("stat")
	if err != nil {
		return
	}
	_, err = c.receiveTimeout(c.DrainTimeout, &gpib.ReplySpec{Lines: 4})
	if gpib.IsTimeout(err) {
		err = nil
	}
	return
}

// checkStatus queries the status after an operation on addr.
// Errors reported by the controller are logged only.
func (c *Controller) checkStatus(addr gpib.Addr) error {
	r, err := c.readStatus()
	if err != nil {
		return fmt.Errorf("gpib232: status check: %w", err)
	}
	c.log.Debug("status",
		zap.Stringer("addr", addr),
		zap.Stringer("status", r.Status),
		zap.Stringer("gpibErr", r.Err),
		zap.Stringer("serialErr", r.SerialErr),
		zap.Int("count", r.Count))
	if r.Failed() {
		c.RequestStats.StatusFailed()
		c.log.Warn("error detected",
			zap.Stringer("addr", addr),
			zap.Stringer("gpibErr", r.Err),
			zap.Stringer("serialErr", r.SerialErr),
			zap.Error(r.Check()))
	}
	return nil
}

// Status queries the status of the controller.
func (c *Controller) Status() (r StatusReport, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readStatus()
}

// Write sends data to the instrument at addr.
func (c *Controller) Write(addr gpib.Addr, data []byte) (err error) {
	if !addr.Valid() {
		return &gpib.InvalidAddrError{Addr: addr}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		c.RequestStats.Update(err)
	}()

	err = c.send("wrt " + addr.String() + "\n" + string(data))
	if err != nil {
		return
	}
	err = c.checkStatus(addr)
	return
}

// Read reads from the instrument at addr. If n is zero, a single
// line is read, otherwise rd #count is used to read up to n bytes;
// a negative n means MaxReadLen. Other counts are passed to the
// controller unchanged. Since an instrument may send
// fewer bytes than requested, a count read that times out
// after receiving data is not an error.
func (c *Controller) Read(addr gpib.Addr, n int) (buf []byte, err error) {
	if !addr.Valid() {
		return nil, &gpib.InvalidAddrError{Addr: addr}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		c.RequestStats.Update(err)
	}()

	cmd := "rd " + addr.String()
	rs := gpib.OneLine
	if n != 0 {
		if n < 0 {
			n = MaxReadLen
		}
		cmd = "rd #" + strconv.Itoa(n) + " " + addr.String()
		rs = gpib.RawBytes(n)
	}
	err = c.send(cmd)
	if err != nil {
		return
	}
	if c.ReadDelay > 0 {
		time.Sleep(c.ReadDelay)
	}
	buf, err = c.receive(rs)
	if err != nil {
		if !(n != 0 && gpib.IsTimeout(err) && len(buf) != 0) {
			return
		}
		err = nil
	}
	err = c.checkStatus(addr)
	return
}

// Clear sends the selected device clear message to addr.
func (c *Controller) Clear(addr gpib.Addr) error {
	if !addr.Valid() {
		return &gpib.InvalidAddrError{Addr: addr}
	}
	return c.command("clr " + addr.String())
}

// Trigger sends the group execute trigger message to addr.
func (c *Controller) Trigger(addr gpib.Addr) error {
	if !addr.Valid() {
		return &gpib.InvalidAddrError{Addr: addr}
	}
	return c.command("trg " + addr.String())
}

// SerialPoll conducts a serial poll of the instrument at
// addr and returns its status byte.
func (c *Controller) SerialPoll(addr gpib.Addr) (stb byte, err error) {
	if !addr.Valid() {
		return 0, &gpib.InvalidAddrError{Addr: addr}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		c.RequestStats.Update(err)
	}()

	cmd := "rsp " + addr.String()
	reply, err := c.query(cmd, gpib.OneLine)
	if err != nil {
		return
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(reply)), 10, 8)
	if err != nil {
		err = &gpib.ReplyError{Cmd: cmd, Reply: string(reply), Err: err}
		return
	}
	stb = byte(v)
	err = c.checkStatus(addr)
	return
}

// EOI reports whether the controller asserts EOI with
// the last byte of data written to an instrument.
func (c *Controller) EOI() (on bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.query("EOT", gpib.OneLine)
	if err != nil {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(reply)))
	if err != nil {
		err = &gpib.ReplyError{Cmd: "EOT", Reply: string(reply), Err: err}
		return
	}
	on = v != 0
	return
}

func (c *Controller) SetEOI(on bool) error {
	cmd := "EOT 0"
	if on {
		cmd = "EOT 1"
	}
	return c.command(cmd)
}

// Version returns the identification message of the controller.
func (c *Controller) Version() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.send("id")
	if err != nil {
		return "", err
	}
	if c.ReadDelay > 0 {
		time.Sleep(c.ReadDelay)
	}
	buf, err := c.receive(gpib.RawBytes(versionLen))
	if err != nil && !(gpib.IsTimeout(err) && len(buf) != 0) {
		return "", err
	}
	return strings.TrimSpace(string(buf)), nil
}

// SendCommand writes GPIB command bytes (ATN asserted)
// to the bus.
func (c *Controller) SendCommand(data []byte) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		c.RequestStats.Update(err)
	}()

	err = c.send("cmd #" + strconv.Itoa(len(data)) + "\n" + string(data))
	if err != nil {
		return
	}
	err = c.checkStatus(gpib.NoAddr)
	return
}

// PassControl passes control to the device at the given
// primary and secondary address. The secondary address is
// given as command byte, in the range 96 to 126; NoSecondary
// addresses the device by its primary address only.
func (c *Controller) PassControl(primary, secondary int) error {
	if !gpib.Addr(primary).Valid() {
		return &gpib.InvalidAddrError{Addr: gpib.Addr(primary)}
	}
	cmd := "pct " + strconv.Itoa(primary)
	if secondary != NoSecondary {
		if secondary < minSecondary || secondary > maxSecondary {
			return ErrSecondaryAddr
		}
		cmd += "+" + strconv.Itoa(secondary)
	}
	return c.command(cmd)
}

// BecomeSystemController makes the controller the
// GPIB system controller.
func (c *Controller) BecomeSystemController() error {
	return c.command("rsc 1")
}

// SendIFC pulses the interface clear line for at least
// 200 microseconds.
func (c *Controller) SendIFC() error {
	return c.command("sic 0.0002")
}
