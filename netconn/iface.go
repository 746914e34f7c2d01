package netconn

import (
	"fmt"
	"io"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Interface is a local port a protocol can be dialed on.
type Interface struct {
	Name string
	Desc string
	Elem interface{}
}

type InterfaceGroup struct {
	Name       string
	Type       string
	Interfaces func() []Interface
	SortPrefix string
	Hidden     bool
}

// Interfaces returns the interface groups of all registered
// protocols, ordered by sort prefix and name.
func Interfaces() []*InterfaceGroup {
	m := make(map[string]*InterfaceGroup, len(protos))
	for _, p := range protos {
		ig := p.InterfaceGroup
		if ig == nil {
			continue
		}
		m[ig.SortPrefix+ig.Name] = ig
	}

	keys := maps.Keys(m)
	slices.Sort(keys)

	list := make([]*InterfaceGroup, 0, len(keys))
	for _, k := range keys {
		list = append(list, m[k])
	}
	return list
}

func FprintInterfaces(w io.Writer, all bool) {
	prevOutput := false
	for _, g := range Interfaces() {
		if g.Hidden && !all {
			continue
		}
		ifaces := g.Interfaces()
		if len(ifaces) == 0 {
			continue
		}
		if prevOutput {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, g.Name+":")
		for _, iface := range ifaces {
			fmt.Fprintf(w, "\t%s\t(%s)\n", iface.Name, iface.Desc)
		}
		prevOutput = true
	}
}
