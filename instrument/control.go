package instrument

import (
	"fmt"

	"github.com/pkg/errors"
)

// Control describes an instrument property. Get is the query
// command; a control without Get is a setting. Set is a format
// string taking the formatted value; a control without Set is a
// measurement.
type Control[T any] struct {
	Name     string
	Get      string
	Set      string
	Validate func(T) error

	// Format converts a value into the argument of Set.
	// If nil, the value is used as is.
	Format func(T) (interface{}, error)

	Parse func(string) (T, error)
}

func (c *Control[T]) Read(in *Instrument) (v T, err error) {
	if c.Get == "" {
		err = errors.Errorf("%s: %s cannot be read", in.Name, c.Name)
		return
	}
	reply, err := in.Ask(c.Get)
	if err != nil {
		return
	}
	v, err = c.Parse(reply)
	if err != nil {
		err = errors.Wrapf(err, "%s: %s", in.Name, c.Name)
	}
	return
}

func (c *Control[T]) Write(in *Instrument, v T) error {
	if c.Set == "" {
		return errors.Errorf("%s: %s cannot be set", in.Name, c.Name)
	}
	cmd, err := c.Command(v)
	if err != nil {
		return errors.Wrapf(err, "%s: %s", in.Name, c.Name)
	}
	return in.Write(cmd)
}

// Command validates v and returns the command that sets it.
func (c *Control[T]) Command(v T) (string, error) {
	if c.Validate != nil {
		if err := c.Validate(v); err != nil {
			return "", err
		}
	}
	var arg interface{} = v
	if c.Format != nil {
		var err error
		arg, err = c.Format(v)
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf(c.Set, arg), nil
}
