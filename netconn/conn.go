package netconn

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/knieriem/gpib"
)

var protos = make(map[string]*Proto, 4)
var defaultProto *Proto

func SetDefaultProto(name string) {
	defaultProto = protos[name]
}

func RegisterProtocol(proto *Proto) {
	protos[proto.Name] = proto
}

func (c *Conf) proto() (p *Proto, err error) {
	p, ok := protos[c.Proto]
	if !ok {
		err = errors.New("invalid proto: " + c.Proto)
	}
	return
}

const (
	FieldAddr = 1 << iota
	FieldDev
	FieldOpt
	endField  = 1 << iota
	FieldMask = endField - 1
	DevFields = FieldDev | FieldOpt
)

var fieldNameMap = map[int]string{
	FieldAddr: "addr",
	FieldDev:  "device",
	FieldOpt:  "options",
}

type Proto struct {
	Name           string
	Dial           func(*Conf) (*Conn, error)
	RequiredFields int
	OptionalFields int
	InterfaceGroup *InterfaceGroup
}

func (p *Proto) UnexpectedFields() int {
	return ^(p.RequiredFields | p.OptionalFields) & FieldMask
}

func (p *Proto) fieldFlags() int {
	return p.RequiredFields | p.OptionalFields
}

// Conn is an open connection to a bus controller.
type Conn struct {
	gpib.NetConn
	io.Closer
	Addr       string
	DevName    string
	DeviceInfo string
	ExitC      <-chan int
}

// Conf describes how to reach a bus controller. In a
// configuration file, a name ending in "*" marks the
// default entry.
type Conf struct {
	seenInfo `yaml:"-"`

	Proto   string   `yaml:"proto"`
	Name    string   `yaml:"name"`
	Addr    IPAddr   `yaml:"addr"`
	Device  string   `yaml:"device"`
	Options []string `yaml:"options"`

	Default bool `yaml:"default"`
}

type seenInfo struct {
	SeenFields map[string]bool
}

func (inf *seenInfo) Seen(field string) bool {
	return inf.SeenFields[field]
}

func (c *Conf) UnmarshalYAML(unmarshal func(interface{}) error) (err error) {
	var fields map[string]interface{}
	err = unmarshal(&fields)
	if err != nil {
		return
	}
	type plain Conf
	var p plain
	err = unmarshal(&p)
	if err != nil {
		return
	}
	*c = Conf(p)
	c.SeenFields = make(map[string]bool, len(fields))
	for k := range fields {
		c.SeenFields[k] = true
	}
	return
}

func (c *Conf) Dial() (conn *Conn, err error) {
	p, err := c.proto()
	if err != nil {
		return
	}
	return p.Dial(c)
}

func (c *Conf) MakeAddr(name string, addOptions bool) (addr string) {
	addr = c.Name
	if addr == "" {
		addr = c.Proto
	}
	addr += ":" + name
	if addOptions && len(c.Options) != 0 {
		addr += "," + strings.Join(c.Options, ",")
	}
	return
}

func (c *Conf) SupportsOptions() bool {
	p, ok := protos[c.Proto]
	return ok && (p.fieldFlags()&FieldOpt != 0)
}

func (c *Conf) InterfaceName() string {
	p, ok := protos[c.Proto]
	if !ok {
		return ""
	}
	flags := p.fieldFlags()
	if flags&FieldDev != 0 {
		return c.Device
	}
	if flags&FieldAddr != 0 {
		return string(c.Addr)
	}
	return ""
}

func (c *Conf) DefaultInterfaceName() string {
	p, ok := protos[c.Proto]
	if !ok || p.InterfaceGroup == nil {
		return ""
	}
	list := p.InterfaceGroup.Interfaces()
	if len(list) == 0 {
		return ""
	}
	return list[0].Name
}

func (c *Conf) Postprocess() (err error) {
	if c.Proto == "" {
		err = errors.New("missing value for protocol")
		return
	}
	p, ok := protos[c.Proto]
	if !ok {
		// unsupported, ignore for now
		return
	}
	unexpected := p.UnexpectedFields()
	for f := 1; f < endField; f <<= 1 {
		field := fieldNameMap[f]
		if p.RequiredFields&f != 0 && !c.Seen(field) {
			return errors.New("required field missing: " + field)
		}
		if unexpected&f != 0 && c.Seen(field) {
			return errors.New("unexpected field: " + field)
		}
	}
	if strings.HasSuffix(c.Name, "*") {
		c.Default = true
		c.Name = c.Name[:len(c.Name)-1]
	}
	return
}

type IPAddr string

func (a *IPAddr) UnmarshalYAML(unmarshal func(interface{}) error) (err error) {
	var s string
	err = unmarshal(&s)
	if err != nil {
		return
	}
	*a = IPAddr(s)
	_, err = a.Complete("9999")
	return
}

// Complete appends defaultPort to the address if
// it does not contain a port.
func (a IPAddr) Complete(defaultPort string) (hostport string, err error) {
	addr := string(a)
	hostport = addr
	switch {
	case strings.HasPrefix(addr, "[") && strings.HasSuffix(addr, "]"):
		fallthrough
	case strings.LastIndex(addr, ":") == -1:
		hostport = addr + ":" + defaultPort
	}
	_, _, err = net.SplitHostPort(hostport)
	return
}

type ConfList []*Conf

// LoadConfList reads a YAML sequence of connection configurations.
func LoadConfList(r io.Reader) (list ConfList, err error) {
	err = yaml.NewDecoder(r).Decode(&list)
	if err != nil {
		if err == io.EOF {
			err = errors.New("empty configuration")
		}
		return nil, err
	}
	for _, c := range list {
		err = c.Postprocess()
		if err != nil {
			return nil, err
		}
	}
	err = list.Postprocess()
	if err != nil {
		return nil, err
	}
	return list, nil
}

func LoadConfFile(filename string) (list ConfList, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return
	}
	defer f.Close()
	return LoadConfList(f)
}

func (list ConfList) Names() []string {
	names := make([]string, len(list))
	for i, c := range list {
		name := c.Name
		if name == "" {
			name = c.Proto
		}
		names[i] = name
	}
	return names
}

func (list ConfList) Postprocess() (err error) {
	usedProtos := make(map[string]bool, len(protos))
	usedNames := make(map[string]bool, len(protos))
	foundDefault := false

	for _, c := range list {
		usedProtos[c.Proto] = true
		if name := c.Name; name != "" {
			if usedNames[name] {
				err = errors.New("name used more than once: " + name)
				return
			}
			usedNames[name] = true
		}
		if c.Default {
			if foundDefault {
				err = errors.New("more than one marked as default")
				return
			}
			foundDefault = true
		}
	}
	for _, c := range list {
		if usedProtos[c.Name] {
			err = errors.New("proto name used as netconn name: " + c.Name)
			return
		}
	}
	return
}

func (list ConfList) Default() (index int) {
	for i, c := range list {
		if c.Default {
			index = i
			break
		}
	}
	return
}

type nameSpec struct {
	name    string
	options []string
}

func splitSpec(connSpec string) (ns []nameSpec) {
	for _, f := range strings.SplitN(connSpec, ":", 2) {
		fs := strings.Split(f, ",")
		ns = append(ns, nameSpec{name: fs[0], options: fs[1:]})
	}
	return
}

// derive returns a copy of c modified by the device and options
// of a connection spec, or nil if the spec does not change c.
func (c *Conf) derive(f []nameSpec) (dc *Conf, err error) {
	var m Conf

	m = *c
	p, err := c.proto()
	if err != nil {
		return
	}

	flags := p.fieldFlags()
	if len(f) == 2 {
		if s := f[1].name; s != "" {
			if flags&FieldDev != 0 {
				m.Device = s
				dc = &m
			}
			if flags&FieldAddr != 0 {
				m.Addr = IPAddr(s)
				dc = &m
			}
		}
		if s := f[1].options; len(s) != 0 {
			if flags&FieldOpt == 0 {
				err = errors.New("options not supported by " + c.Proto)
				return
			}
			m.Options = s
			dc = &m
		}
	}
	if s := f[0].options; len(s) != 0 {
		if flags&FieldOpt == 0 {
			err = errors.New("options not supported by " + c.Proto)
			return
		}
		m.Options = s
		dc = &m
	}
	return
}

// Match selects the entry of list that a connection spec refers to.
// A spec has the form "name:device,opt,opt", where name is a
// configured name or a protocol. If the name matches neither, the
// whole spec is taken as device of the default protocol.
func (list ConfList) Match(connSpec string) (index int, mod *Conf, err error) {
	if len(list) == 0 {
		err = errors.New("no network connections configured")
		return
	}
	if connSpec == "" {
		index = list.Default()
		return
	}
	retried := false
retry:
	f := splitSpec(connSpec)
	if net := f[0].name; net != "" {
		// name present, select matching entry
		for i, c := range list {
			if c.Name == net || c.Proto == net {
				index = i
				mod, err = c.derive(f)
				return
			}
		}
		if len(f) == 2 || retried || defaultProto == nil {
			err = errors.New("no matching network connection: " + net)
			return
		}
		connSpec = defaultProto.Name + ":" + connSpec
		retried = true
		goto retry
	}
	index = list.Default()
	mod, err = list[index].derive(f)
	return
}

func (list ConfList) Dial(connSpec string) (conn *Conn, err error) {
	index, cf, err := list.Match(connSpec)
	if err != nil {
		return
	}
	if cf == nil {
		cf = list[index]
	}
	return cf.Dial()
}
