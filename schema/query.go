package schema

import (
	"fmt"
	"strconv"

	"github.com/valyala/fasthttp"
)

// ArgError reports a query string that failed to parse against a Schema:
// an unknown key, a missing required slot, a value that doesn't parse as
// its declared kind, or a non-list slot repeated more than once.
type ArgError struct {
	Path   string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("%s: bad argument: %s", e.Path, e.Reason)
}

func newArgError(path, format string, a ...any) *ArgError {
	return &ArgError{Path: path, Reason: fmt.Sprintf(format, a...)}
}

// Parse decodes a raw (already length-capped) query string against s,
// percent-decoding and splitting repeated keys into lists by way of
// fasthttp.Args, the same tokenizer fasthttp itself uses for
// (*RequestCtx).QueryArgs.
//
// The 8192-byte length cap named in spec.md section 4.2 is a protocol-level
// concern enforced by the caller (the connection's URL scratch buffer,
// component C6) before the query string ever reaches Parse.
func (s *Schema) Parse(query []byte) (*Values, error) {
	args := &fasthttp.Args{}
	args.ParseBytes(query)

	v := newValues(s)
	var argErr *ArgError
	args.VisitAll(func(key, value []byte) {
		if argErr != nil {
			return
		}
		idx, ok := s.indexOf(string(key))
		if !ok {
			argErr = newArgError(s.Path, "unknown key %q", key)
			return
		}
		d := s.slots[idx]
		c := &v.cells[idx]
		if len(value) == 0 && d.Kind != KindFlag {
			// A flag carries no value: its key alone sets it. Other empty
			// values are skipped for optional slots (spec.md section 4.2);
			// for a required slot the empty value goes to setCell, which
			// rejects it for int and number kinds (and their lists) and
			// stores it as-is for string kinds.
			if !d.Required {
				return
			}
		}
		if c.exists && !d.Kind.isList() {
			argErr = newArgError(s.Path, "key %q repeated on non-list slot", key)
			return
		}
		if err := setCell(d, c, value); err != nil {
			argErr = newArgError(s.Path, "slot %q: %v", d.Name, err)
		}
	})
	if argErr != nil {
		return nil, argErr
	}

	for idx := range s.slots {
		d := &s.slots[idx]
		c := &v.cells[idx]
		if c.exists {
			continue
		}
		if d.Required {
			return nil, newArgError(s.Path, "slot %q: required but not supplied", d.Name)
		}
		applyDefault(d, c)
	}
	return v, nil
}

func setCell(d Desc, c *cell, value []byte) error {
	switch d.Kind {
	case KindFlag:
		c.exists = true
	case KindInt:
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return fmt.Errorf("not an integer: %q", value)
		}
		c.i, c.exists = n, true
	case KindNumber:
		n, err := strconv.ParseFloat(string(value), 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", value)
		}
		c.f, c.exists = n, true
	case KindString:
		c.s, c.exists = string(value), true
	case KindListInt:
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return fmt.Errorf("not an integer: %q", value)
		}
		c.li = append(c.li, n)
		c.exists = true
	case KindListNumber:
		n, err := strconv.ParseFloat(string(value), 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", value)
		}
		c.lf = append(c.lf, n)
		c.exists = true
	case KindListString:
		c.ls = append(c.ls, string(value))
		c.exists = true
	default:
		return fmt.Errorf("unsupported kind %s", d.Kind)
	}
	return nil
}

func applyDefault(d *Desc, c *cell) {
	if d.Default == nil {
		return
	}
	switch d.Kind {
	case KindInt:
		if n, ok := d.Default.(int64); ok {
			c.i, c.exists = n, true
		}
	case KindNumber:
		if n, ok := d.Default.(float64); ok {
			c.f, c.exists = n, true
		}
	case KindString:
		if n, ok := d.Default.(string); ok {
			c.s, c.exists = n, true
		}
	}
}
