// Package hp853a controls the digital storage mainframe of the
// Hewlett-Packard 853A spectrum analyzer.
package hp853a

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/knieriem/gpib"
	"github.com/knieriem/gpib/instrument"
)

var (
	onOff = instrument.Mapped(map[bool]int{false: 0, true: 1})

	sweepCount = &instrument.Control[int]{
		Name:     "sweep count",
		Set:      "TS%d",
		Validate: instrument.StrictRange(1, 63),
	}
	normalize = &instrument.Control[bool]{
		Name:     "normalize",
		Set:      "IC%d",
		Validate: onOff.Validate,
		Format:   onOff.Format,
	}
	normOffset = &instrument.Control[int]{
		Name:     "normalization offset",
		Set:      "OF%d",
		Validate: instrument.StrictRange(0, 975),
	}
	digitalAveraging = &instrument.Control[bool]{
		Name:     "digital averaging",
		Set:      "DC%d",
		Validate: onOff.Validate,
		Format:   onOff.Format,
	}
)

// Analyzer is an HP 853A on the bus.
type Analyzer struct {
	*instrument.Instrument
	A *Trace
	B *Trace
}

func New(dev gpib.Device, log *zap.Logger) *Analyzer {
	in := instrument.New("Hewlett-Packard 853A", dev, log)
	return &Analyzer{
		Instrument: in,
		A:          &Trace{ch: "A", in: in},
		B:          &Trace{ch: "B", in: in},
	}
}

// ID returns an identification string built
// from the model number the analyzer reports.
func (a *Analyzer) ID() (string, error) {
	reply, err := a.Ask("OI")
	if err != nil {
		return "", err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return "", errors.Wrapf(err, "%s: id", a.Name)
	}
	return fmt.Sprintf("HP,%.0fA,n/a,n/a", v), nil
}

// SetSweepCount sets the number of sweeps to be
// performed, 1 to 63.
func (a *Analyzer) SetSweepCount(n int) error {
	return sweepCount.Write(a.Instrument, n)
}

// SetNormalize enables the normalization function (input - B -> A).
func (a *Analyzer) SetNormalize(on bool) error {
	return normalize.Write(a.Instrument, on)
}

// SetNormOffset sets the normalization offset, 0 to 975. The
// initial value depends on a jumper: 400 is mid-screen,
// 800 the top graticule line.
func (a *Analyzer) SetNormOffset(v int) error {
	return normOffset.Write(a.Instrument, v)
}

func (a *Analyzer) SetDigitalAveraging(on bool) error {
	return digitalAveraging.Write(a.Instrument, on)
}

// SweepsRemaining returns the number of remaining sweeps,
// which the analyzer reports as its status byte.
func (a *Analyzer) SweepsRemaining() (int, error) {
	stb, err := a.Device().SerialPoll()
	if err != nil {
		return 0, errors.Wrapf(err, "%s: serial poll", a.Name)
	}
	return int(stb), nil
}

// Trigger sends the group execute trigger message.
// The analyzer should be set to single sweep.
func (a *Analyzer) Trigger() error {
	err := a.Device().Trigger()
	if err != nil {
		return errors.Wrapf(err, "%s: trigger", a.Name)
	}
	return nil
}

func (a *Analyzer) Reset() error {
	return a.Clear()
}

// Shutdown clears the analyzer. The connection is closed
// too if the Closer of the embedded Instrument is set.
func (a *Analyzer) Shutdown() error {
	return a.Instrument.Shutdown()
}

// CheckErrors queries the error list of the analyzer. Errors
// are logged and returned; an empty list means no error.
func (a *Analyzer) CheckErrors() ([]string, error) {
	reply, err := a.Ask("IERR")
	if err != nil {
		return nil, err
	}
	errs := parseErrors(reply)
	if len(errs) == 0 || errs[0] == "NO ERROR" {
		return nil, nil
	}
	for _, e := range errs {
		a.Logger().Error(e)
	}
	return errs, nil
}

// parseErrors splits a reply like "SYNTAX ERROR, RANGE ERROR"
// into its entries.
func parseErrors(reply string) (errs []string) {
	if i := strings.Index(reply, "\r\n"); i != -1 {
		reply = reply[:i]
	}
	reply = strings.Trim(reply, " ,\r\n")
	parts := strings.Split(reply, "ERROR")
	for _, p := range parts[:len(parts)-1] {
		p = strings.Trim(p, " ,")
		errs = append(errs, strings.TrimSpace(p+" ERROR"))
	}
	return
}
