// Package instrument binds instrument properties to the commands
// that query and set them on a gpib.Device.
package instrument

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/knieriem/gpib"
)

// Instrument sends commands to a device and reads its replies.
type Instrument struct {
	Name string

	// ReadLen makes Read fetch a fixed number of raw bytes
	// instead of a line, for instruments that do not terminate
	// their replies reliably.
	ReadLen int

	// Closer, if set, is closed by Shutdown. Usually it is the
	// connection to the bus controller; leave it nil if other
	// instruments share that connection.
	Closer io.Closer

	dev gpib.Device
	log *zap.Logger
}

func New(name string, dev gpib.Device, log *zap.Logger) *Instrument {
	if log == nil {
		log = zap.NewNop()
	}
	return &Instrument{
		Name: name,
		dev:  dev,
		log:  log.With(zap.String("instrument", name), zap.Stringer("addr", dev.Addr())),
	}
}

func (in *Instrument) Device() gpib.Device {
	return in.dev
}

func (in *Instrument) Logger() *zap.Logger {
	return in.log
}

func (in *Instrument) Write(cmd string) error {
	in.log.Debug("write", zap.String("cmd", cmd))
	err := in.dev.Write(cmd)
	if err != nil {
		return errors.Wrapf(err, "%s: write %q", in.Name, cmd)
	}
	return nil
}

// Read reads a reply and strips trailing white space.
func (in *Instrument) Read() (s string, err error) {
	if in.ReadLen > 0 {
		var buf []byte
		buf, err = in.dev.ReadBytes(in.ReadLen)
		s = string(buf)
	} else {
		s, err = in.dev.Read()
	}
	if err != nil {
		return "", errors.Wrapf(err, "%s: read", in.Name)
	}
	s = strings.TrimRight(s, " \t\r\n")
	in.log.Debug("read", zap.String("reply", s))
	return s, nil
}

// Ask writes cmd and reads the reply.
func (in *Instrument) Ask(cmd string) (string, error) {
	err := in.Write(cmd)
	if err != nil {
		return "", err
	}
	return in.Read()
}

// Values writes cmd and parses the reply as a list
// of comma separated numbers.
func (in *Instrument) Values(cmd string) ([]float64, error) {
	reply, err := in.Ask(cmd)
	if err != nil {
		return nil, err
	}
	return ParseValues(reply)
}

func ParseValues(s string) (v []float64, err error) {
	fields := strings.Split(strings.Trim(s, " ,\r\n"), ",")
	v = make([]float64, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d of %q", len(v), s)
		}
		v = append(v, x)
	}
	return v, nil
}

// Clear sends the selected device clear message.
func (in *Instrument) Clear() error {
	err := in.dev.Clear()
	if err != nil {
		return errors.Wrapf(err, "%s: clear", in.Name)
	}
	return nil
}

// Shutdown clears the device, and closes Closer, if set.
func (in *Instrument) Shutdown() error {
	err := in.Clear()
	if in.Closer != nil {
		if cerr := in.Closer.Close(); cerr != nil {
			err = multierr.Append(err, errors.Wrapf(cerr, "%s: close", in.Name))
		}
	}
	return err
}
