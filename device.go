package gpib

// Bus is a GPIB controller that addresses the devices
// connected to it.
//
// Read returns one line if n is zero, otherwise up to n raw bytes.
// A negative n reads as many bytes as the controller allows.
type Bus interface {
	Write(addr Addr, data []byte) error
	Read(addr Addr, n int) ([]byte, error)
	Clear(addr Addr) error
	Trigger(addr Addr) error
	SerialPoll(addr Addr) (byte, error)
}

// Device is a single instrument on a bus.
type Device interface {
	Addr() Addr
	Write(cmd string) error
	Read() (string, error)
	ReadBytes(n int) ([]byte, error)
	Clear() error
	Trigger() error
	SerialPoll() (byte, error)
}

// AddressedDevice binds a primary address to a Bus.
type AddressedDevice struct {
	addr Addr
	bus  Bus
}

// NewDevice returns a Device for address addr on bus.
func NewDevice(bus Bus, addr Addr) (*AddressedDevice, error) {
	if !addr.Valid() {
		return nil, &InvalidAddrError{Addr: addr}
	}
	return &AddressedDevice{addr: addr, bus: bus}, nil
}

func (d *AddressedDevice) Addr() Addr {
	return d.addr
}

func (d *AddressedDevice) Bus() Bus {
	return d.bus
}

func (d *AddressedDevice) Write(cmd string) error {
	return d.bus.Write(d.addr, []byte(cmd))
}

func (d *AddressedDevice) Read() (string, error) {
	buf, err := d.bus.Read(d.addr, 0)
	return string(buf), err
}

// ReadBytes reads up to n raw bytes. A value of n less than
// or equal to zero lets the controller choose its maximum.
func (d *AddressedDevice) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		n = -1
	}
	return d.bus.Read(d.addr, n)
}

func (d *AddressedDevice) Clear() error {
	return d.bus.Clear(d.addr)
}

func (d *AddressedDevice) Trigger() error {
	return d.bus.Trigger(d.addr)
}

func (d *AddressedDevice) SerialPoll() (byte, error) {
	return d.bus.SerialPoll(d.addr)
}

type DeviceTestFunc func(addr Addr, d Device) error

// ScanDevices calls test for each address in the range
// addrMin..addrMax. Addresses that time out or answer with
// an invalid reply are skipped, any other error ends the scan.
func ScanDevices(bus Bus, addrMin, addrMax Addr, test DeviceTestFunc) (err error) {
	if !addrMin.Valid() {
		return &InvalidAddrError{Addr: addrMin}
	}
	if !addrMax.Valid() {
		return &InvalidAddrError{Addr: addrMax}
	}
	d := &AddressedDevice{bus: bus}
	for a := addrMin; a <= addrMax; a++ {
		d.addr = a
		err = test(d.addr, d)
		if err != nil {
			if IsTimeout(err) || MsgInvalid(err) {
				err = nil
				continue
			}
			break
		}
	}
	return
}
