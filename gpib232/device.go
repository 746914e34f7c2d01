package gpib232

import (
	"github.com/knieriem/gpib"
)

// Device is an instrument on the bus of a Controller.
type Device struct {
	*gpib.AddressedDevice
	c *Controller
}

func (d *Device) Controller() *Controller {
	return d.c
}

// WriteBytes writes raw data to the instrument.
func (d *Device) WriteBytes(data []byte) error {
	return d.c.Write(d.Addr(), data)
}

func (d *Device) String() string {
	return "gpib232(" + d.c.Name() + ", addr=" + d.Addr().String() + ")"
}
