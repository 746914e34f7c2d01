// Package hp3314a controls the Hewlett-Packard 3314A
// function generator.
package hp3314a

import (
	"strings"

	"go.uber.org/zap"

	"github.com/knieriem/gpib"
	"github.com/knieriem/gpib/instrument"
)

// replyLen is the number of bytes read for a reply. The 3314A
// does not reliably terminate its replies.
const replyLen = 30

type Function string

const (
	Off      Function = "off"
	Sine     Function = "sine"
	Square   Function = "square"
	Triangle Function = "triangle"
)

type Mode string

const (
	FreeRun   Mode = "Free_Run"
	Gated     Mode = "Gated"
	NCycle    Mode = "n_cycle"
	HalfCycle Mode = "half_cycle"
	FinNX     Mode = "fin_N_X"
	FinXDivN  Mode = "fin_X_div_N"
)

type Sweep string

const (
	SweepOff Sweep = "off"
	SweepLin Sweep = "lin"
	SweepLog Sweep = "log"
)

var (
	onOff     = instrument.Mapped(map[bool]int{false: 0, true: 1})
	oneTwo    = instrument.Mapped(map[bool]int{false: 1, true: 2})
	functions = instrument.Mapped(map[Function]int{Off: 0, Sine: 1, Square: 2, Triangle: 3})
	modes     = instrument.Mapped(map[Mode]int{
		FreeRun: 1, Gated: 2, NCycle: 3, HalfCycle: 4, FinNX: 5, FinXDivN: 6,
	})
	sweeps     = instrument.Mapped(map[Sweep]int{SweepOff: 0, SweepLin: 1, SweepLog: 2})
	thresholds = instrument.Mapped(map[string]int{"1V": 1, "0V": 2})
)

func floatControl(name, hdr, unit string, min, max float64) *instrument.Control[float64] {
	return &instrument.Control[float64]{
		Name:     name,
		Get:      "Q" + hdr,
		Set:      hdr + "%f" + unit,
		Validate: instrument.StrictRange(min, max),
		Parse:    instrument.TrimFloat(hdr, "."+unit),
	}
}

func mappedControl[K comparable](name, hdr, set string, m *instrument.Mapping[K, int]) *instrument.Control[K] {
	c := &instrument.Control[K]{
		Name:     name,
		Set:      set,
		Validate: m.Validate,
		Format:   m.Format,
	}
	if hdr != "" {
		c.Get = "Q" + hdr
		c.Parse = m.Parser(instrument.TrimInt(hdr, ""))
	}
	return c
}

var (
	amplitude       = floatControl("amplitude", "AP", "VO", 1e-6, 10)
	frequency       = floatControl("frequency", "FR", "HZ", 0.001, 2e7)
	markerFrequency = floatControl("marker frequency", "MK", "HZ", 0.001, 2e7)
	startFrequency  = floatControl("start frequency", "ST", "HZ", 0.001, 2e7)
	stopFrequency   = floatControl("stop frequency", "SP", "HZ", 0.001, 2e7)
	offset          = floatControl("offset", "OF", "VO", -5, 5)
	phase           = floatControl("phase", "PH", "DG", 0, 360)
	timeInterval    = floatControl("time interval", "TI", "SN", 1e-6, 1e4)

	am               = mappedControl("AM", "AM", "AM%d", onOff)
	fm               = mappedControl("FM", "FM", "FM%d", onOff)
	vco              = mappedControl("VCO", "VC", "VC%d", onOff)
	inverted         = mappedControl("inverted", "FI", "FI%d", onOff)
	manualSweep      = mappedControl("manual sweep", "MA", "MA%d", onOff)
	externalTrigger  = mappedControl("external trigger", "SR", "SR%d", oneTwo)
	negativeSlope    = mappedControl("negative trigger slope", "SL", "SL%d", oneTwo)
	bufferedTransfer = mappedControl("buffered data transfer", "", "DM%d", oneTwo)
	function         = mappedControl("function", "FU", "FU %d", functions)
	mode             = mappedControl("mode", "MO", "MO%d", modes)
	sweep            = mappedControl("sweep", "SW", "SW %d", sweeps)
	triggerThreshold = mappedControl("trigger threshold", "LV", "LV%d", thresholds)

	n = &instrument.Control[int]{
		Name:     "N",
		Get:      "QNM",
		Set:      "NM%dEN",
		Validate: instrument.StrictRange(1, 9999),
		Parse:    instrument.TrimInt("NM", " EN"),
	}
	symmetry = &instrument.Control[int]{
		Name:     "symmetry",
		Get:      "QSY",
		Set:      "SY%dPS",
		Validate: instrument.StrictRange(1, 99),
		Parse:    instrument.TrimInt("SY", "PS"),
	}
	recallWave = &instrument.Control[int]{
		Name:     "recall wave",
		Get:      "QRW",
		Set:      "RW%d",
		Validate: instrument.StrictRange(0, 5),
		Parse:    instrument.TrimInt("RW", ""),
	}
	recallPreset = &instrument.Control[int]{
		Name:     "recall preset",
		Set:      "RC%d",
		Validate: instrument.StrictRange(0, 5),
	}
	storePreset = &instrument.Control[int]{
		Name:     "store preset",
		Set:      "SO%d",
		Validate: instrument.StrictRange(0, 5),
	}
)

// Generator is an HP 3314A on the bus.
type Generator struct {
	*instrument.Instrument
}

func New(dev gpib.Device, log *zap.Logger) *Generator {
	in := instrument.New("Hewlett-Packard HP3314A", dev, log)
	in.ReadLen = replyLen
	return &Generator{Instrument: in}
}

// Amplitude returns the amplitude in volts, referenced to a 50 Ohm load.
func (g *Generator) Amplitude() (float64, error)  { return amplitude.Read(g.Instrument) }
func (g *Generator) SetAmplitude(v float64) error { return amplitude.Write(g.Instrument, v) }

func (g *Generator) Frequency() (float64, error)  { return frequency.Read(g.Instrument) }
func (g *Generator) SetFrequency(f float64) error { return frequency.Write(g.Instrument, f) }

func (g *Generator) MarkerFrequency() (float64, error) { return markerFrequency.Read(g.Instrument) }
func (g *Generator) SetMarkerFrequency(f float64) error {
	return markerFrequency.Write(g.Instrument, f)
}

// StartFrequency and StopFrequency bound a frequency sweep.
func (g *Generator) StartFrequency() (float64, error)  { return startFrequency.Read(g.Instrument) }
func (g *Generator) SetStartFrequency(f float64) error { return startFrequency.Write(g.Instrument, f) }
func (g *Generator) StopFrequency() (float64, error)   { return stopFrequency.Read(g.Instrument) }
func (g *Generator) SetStopFrequency(f float64) error  { return stopFrequency.Write(g.Instrument, f) }

func (g *Generator) Offset() (float64, error)  { return offset.Read(g.Instrument) }
func (g *Generator) SetOffset(v float64) error { return offset.Write(g.Instrument, v) }

// Phase is in degrees.
func (g *Generator) Phase() (float64, error)  { return phase.Read(g.Instrument) }
func (g *Generator) SetPhase(v float64) error { return phase.Write(g.Instrument, v) }

// TimeInterval is the sweep time, or the trigger interval,
// in seconds.
func (g *Generator) TimeInterval() (float64, error)  { return timeInterval.Read(g.Instrument) }
func (g *Generator) SetTimeInterval(v float64) error { return timeInterval.Write(g.Instrument, v) }

func (g *Generator) AM() (bool, error)    { return am.Read(g.Instrument) }
func (g *Generator) SetAM(on bool) error  { return am.Write(g.Instrument, on) }
func (g *Generator) FM() (bool, error)    { return fm.Read(g.Instrument) }
func (g *Generator) SetFM(on bool) error  { return fm.Write(g.Instrument, on) }
func (g *Generator) VCO() (bool, error)   { return vco.Read(g.Instrument) }
func (g *Generator) SetVCO(on bool) error { return vco.Write(g.Instrument, on) }

func (g *Generator) Inverted() (bool, error)   { return inverted.Read(g.Instrument) }
func (g *Generator) SetInverted(on bool) error { return inverted.Write(g.Instrument, on) }

func (g *Generator) ManualSweep() (bool, error)   { return manualSweep.Read(g.Instrument) }
func (g *Generator) SetManualSweep(on bool) error { return manualSweep.Write(g.Instrument, on) }

// ExternalTrigger reports whether the external trigger
// source is selected.
func (g *Generator) ExternalTrigger() (bool, error)   { return externalTrigger.Read(g.Instrument) }
func (g *Generator) SetExternalTrigger(on bool) error { return externalTrigger.Write(g.Instrument, on) }

func (g *Generator) NegativeTriggerSlope() (bool, error) { return negativeSlope.Read(g.Instrument) }
func (g *Generator) SetNegativeTriggerSlope(on bool) error {
	return negativeSlope.Write(g.Instrument, on)
}

// SetBufferedTransfer switches between unbuffered and
// buffered data transfer mode.
func (g *Generator) SetBufferedTransfer(on bool) error {
	return bufferedTransfer.Write(g.Instrument, on)
}

func (g *Generator) Function() (Function, error)  { return function.Read(g.Instrument) }
func (g *Generator) SetFunction(f Function) error { return function.Write(g.Instrument, f) }

func (g *Generator) Mode() (Mode, error)    { return mode.Read(g.Instrument) }
func (g *Generator) SetMode(m Mode) error   { return mode.Write(g.Instrument, m) }
func (g *Generator) Sweep() (Sweep, error)  { return sweep.Read(g.Instrument) }
func (g *Generator) SetSweep(s Sweep) error { return sweep.Write(g.Instrument, s) }

// TriggerThreshold is "1V" or "0V".
func (g *Generator) TriggerThreshold() (string, error) { return triggerThreshold.Read(g.Instrument) }
func (g *Generator) SetTriggerThreshold(s string) error {
	return triggerThreshold.Write(g.Instrument, s)
}

// N is the number of cycles or events output in the
// N cycle and frequency multiplication modes.
func (g *Generator) N() (int, error)  { return n.Read(g.Instrument) }
func (g *Generator) SetN(v int) error { return n.Write(g.Instrument, v) }

// Symmetry is in percent.
func (g *Generator) Symmetry() (int, error)  { return symmetry.Read(g.Instrument) }
func (g *Generator) SetSymmetry(v int) error { return symmetry.Write(g.Instrument, v) }

// RecallWave returns the selected arbitrary waveform.
// Selecting a waveform enables the arbitrary function.
func (g *Generator) RecallWave() (int, error)  { return recallWave.Read(g.Instrument) }
func (g *Generator) SetRecallWave(v int) error { return recallWave.Write(g.Instrument, v) }

// Preset sets the generator to its default state.
func (g *Generator) Preset() error {
	return g.Write("PR")
}

func (g *Generator) RecallPreset(i int) error { return recallPreset.Write(g.Instrument, i) }
func (g *Generator) StorePreset(i int) error  { return storePreset.Write(g.Instrument, i) }

// CheckErrors queries the pending error. It returns the
// error code, or an empty string if there is none.
func (g *Generator) CheckErrors() (string, error) {
	reply, err := g.Ask("QER")
	if err != nil {
		return "", err
	}
	code := strings.TrimLeft(reply, "ER")
	if code == "00" {
		return "", nil
	}
	g.Logger().Warn("pending error", zap.String("code", code))
	return code, nil
}

// Reset initiates a reset like at power-on, using
// the selected device clear message.
func (g *Generator) Reset() error {
	return g.Clear()
}

// Shutdown clears the generator. The connection is closed
// too if the Closer of the embedded Instrument is set.
func (g *Generator) Shutdown() error {
	return g.Instrument.Shutdown()
}
