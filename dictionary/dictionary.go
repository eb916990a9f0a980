// Package dictionary maps AVP codes and vendor ids to names, wire types and
// default flags. A Dictionary is built once by the parser and is read-only
// afterwards, so it can be shared between goroutines without locking.
package dictionary

import (
	"cmp"
	"slices"

	"github.com/hsdfat/diam-stack/models_base"
)

// AVP flag bits applied from dictionary attributes
const (
	FlagVendor    uint8 = 0x80
	FlagMandatory uint8 = 0x40
	FlagProtected uint8 = 0x20
)

// Unbounded is the Max of a rule that may repeat without limit
const Unbounded = -1

// AnyAVP is the rule name that admits any attribute in a grouped body
const AnyAVP = "AVP"

// Key identifies an attribute on the wire
type Key struct {
	Code     uint32
	VendorID uint32
}

// Entry describes one attribute
type Entry struct {
	Name     string
	Code     uint32
	VendorID uint32
	Flags    uint8
	Type     models_base.TypeID
	// Grouped lists the member rules of a Grouped attribute
	Grouped []Rule
	// Enum maps symbolic names to values for Enumerated attributes
	Enum map[string]int32
}

// Key returns the wire identity of the entry
func (e *Entry) Key() Key {
	return Key{Code: e.Code, VendorID: e.VendorID}
}

// EnumName returns the symbolic name of v, if the entry defines one
func (e *Entry) EnumName(v int32) (string, bool) {
	for name, value := range e.Enum {
		if value == v {
			return name, true
		}
	}
	return "", false
}

// Rule is the occurrence constraint of one member inside a grouped attribute
// or a command body.
type Rule struct {
	Name     string
	Code     uint32
	VendorID uint32
	Min      int
	Max      int
	// Fixed members must appear at their position at the start of the body
	Fixed bool
}

// Required reports whether the member must appear at least once
func (r Rule) Required() bool {
	return r.Min > 0
}

// Command describes one request or answer
type Command struct {
	Name          string
	Abbreviation  string
	Code          uint32
	ApplicationID uint32
	Request       bool
	Proxiable     bool
	Rules         []Rule
}

type commandKey struct {
	code    uint32
	request bool
}

// Dictionary is the resolved set of attributes, commands and constants
type Dictionary struct {
	name     string
	entries  map[Key]*Entry
	byName   map[string]*Entry
	commands map[commandKey]*Command
	consts   map[string]uint64
}

func newDictionary(name string) *Dictionary {
	return &Dictionary{
		name:     name,
		entries:  make(map[Key]*Entry),
		byName:   make(map[string]*Entry),
		commands: make(map[commandKey]*Command),
		consts:   make(map[string]uint64),
	}
}

// Name returns the package name declared by the dictionary source
func (d *Dictionary) Name() string {
	return d.name
}

// Lookup returns the entry for code and vendorID
func (d *Dictionary) Lookup(code, vendorID uint32) (*Entry, bool) {
	if d == nil {
		return nil, false
	}
	e, ok := d.entries[Key{Code: code, VendorID: vendorID}]
	return e, ok
}

// LookupByName returns the entry with the given attribute name
func (d *Dictionary) LookupByName(name string) (*Entry, bool) {
	if d == nil {
		return nil, false
	}
	e, ok := d.byName[name]
	return e, ok
}

// Command returns the request or answer definition for a command code
func (d *Dictionary) Command(code uint32, request bool) (*Command, bool) {
	if d == nil {
		return nil, false
	}
	c, ok := d.commands[commandKey{code: code, request: request}]
	return c, ok
}

// Const returns a named constant, such as an application id
func (d *Dictionary) Const(name string) (uint64, bool) {
	if d == nil {
		return 0, false
	}
	v, ok := d.consts[name]
	return v, ok
}

// Len returns the number of attributes
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Entries returns all attributes ordered by vendor id then code
func (d *Dictionary) Entries() []*Entry {
	out := make([]*Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int {
		if a.VendorID != b.VendorID {
			return cmp.Compare(a.VendorID, b.VendorID)
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return out
}

// Commands returns all commands ordered by code, requests first
func (d *Dictionary) Commands() []*Command {
	out := make([]*Command, 0, len(d.commands))
	for _, c := range d.commands {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Command) int {
		if a.Code != b.Code {
			return cmp.Compare(a.Code, b.Code)
		}
		if a.Request == b.Request {
			return 0
		}
		if a.Request {
			return -1
		}
		return 1
	})
	return out
}
