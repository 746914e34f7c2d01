package hp853a

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/knieriem/gpib/instrument"
)

const (
	TraceLen = 481

	// MinLevel and MaxLevel bound the values of a trace.
	MinLevel = -50
	MaxLevel = 975
)

type TraceMode int

const (
	ClearWrite TraceMode = 1 + iota
	MaxHold
	StoreView
	StoreBlank
)

var traceModeNames = []string{
	ClearWrite: "CLEAR_WRITE",
	MaxHold:    "MAX_HOLD",
	StoreView:  "STORE_VIEW",
	StoreBlank: "STORE_BLANK",
}

func (m TraceMode) String() string {
	if m >= ClearWrite && m <= StoreBlank {
		return traceModeNames[m]
	}
	return "TraceMode(" + strconv.Itoa(int(m)) + ")"
}

var validTraceLevel = instrument.StrictRange(MinLevel, MaxLevel)

// Trace is one of the two traces, A or B.
type Trace struct {
	ch string
	in *instrument.Instrument
}

func (t *Trace) Name() string {
	return t.ch
}

// Data reads the trace memory.
func (t *Trace) Data() (data []int, err error) {
	v, err := t.in.Values("T" + t.ch)
	if err != nil {
		return
	}
	data = make([]int, len(v))
	for i, x := range v {
		data[i] = int(x)
	}
	return
}

// SetData writes TraceLen values in the range
// MinLevel..MaxLevel into the trace memory.
func (t *Trace) SetData(data []int) error {
	if len(data) != TraceLen {
		return errors.Errorf("trace %s: got %d values, want %d", t.ch, len(data), TraceLen)
	}
	var b strings.Builder
	b.WriteString("I" + t.ch)
	for i, v := range data {
		if err := validTraceLevel(v); err != nil {
			return errors.Wrapf(err, "trace %s: value %d", t.ch, i)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return t.in.Write(b.String())
}

// Clear blanks the trace memory.
func (t *Trace) Clear() error {
	return t.in.Write("C" + t.ch)
}

// Peak returns the coordinates of the peak of the trace.
func (t *Trace) Peak() ([]float64, error) {
	return t.in.Values(t.ch + "P")
}

// Mode returns the operation mode, as found in the
// front panel state.
func (t *Trace) Mode() (m TraceMode, err error) {
	reply, err := t.in.Ask("FP")
	if err != nil {
		return
	}
	key := t.ch + "C"
	i := strings.Index(reply, key)
	if i == -1 || i+len(key) >= len(reply) {
		err = errors.Errorf("trace %s: mode missing in %q", t.ch, reply)
		return
	}
	d := reply[i+len(key)]
	if d < '1' || d > '4' {
		err = errors.Errorf("trace %s: invalid mode %q", t.ch, d)
		return
	}
	m = TraceMode(d - '0')
	return
}

func (t *Trace) SetMode(m TraceMode) error {
	if m < ClearWrite || m > StoreBlank {
		return errors.Errorf("trace %s: invalid mode %v", t.ch, m)
	}
	return t.in.Write(t.ch + "C" + strconv.Itoa(int(m)))
}
