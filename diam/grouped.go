package diam

import (
	"fmt"
	"strings"

	"github.com/hsdfat/diam-stack/models_base"
	"github.com/hsdfat/diam-stack/pkg/wire"
)

// MaxGroupDepth bounds grouped attribute nesting on decode
const MaxGroupDepth = 16

// Grouped is the payload of a Grouped attribute: member attributes in
// insertion order.
type Grouped struct {
	AVPs []*AVP
}

// Add appends members
func (g *Grouped) Add(avps ...*AVP) {
	g.AVPs = append(g.AVPs, avps...)
}

// Find returns the first member with code and vendorID
func (g *Grouped) Find(code, vendorID uint32) *AVP {
	return findAVP(g.AVPs, code, vendorID)
}

// FindAll returns every member with code and vendorID
func (g *Grouped) FindAll(code, vendorID uint32) []*AVP {
	return findAllAVPs(g.AVPs, code, vendorID)
}

// Validate checks every member, recursively
func (g *Grouped) Validate() error {
	for _, a := range g.AVPs {
		if err := a.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Serialize encodes the members, each padded to 32 bits. Member errors are
// reported by Validate, which AVP encoding runs first.
func (g *Grouped) Serialize() []byte {
	c := wire.NewWriteCursor(g.Len())
	for _, a := range g.AVPs {
		_ = a.encode(c)
	}
	return c.Bytes()
}

// Len includes the padding of every member
func (g *Grouped) Len() int {
	n := 0
	for _, a := range g.AVPs {
		n += a.PaddedLen()
	}
	return n
}

func (g *Grouped) Padding() int {
	return 0
}

func (g *Grouped) Type() models_base.TypeID {
	return models_base.GroupedType
}

func (g *Grouped) Text() string {
	names := make([]string, 0, len(g.AVPs))
	for _, a := range g.AVPs {
		names = append(names, a.displayName())
	}
	return "{" + strings.Join(names, ",") + "}"
}

func (g *Grouped) String() string {
	return fmt.Sprintf("Grouped{%d AVPs}", len(g.AVPs))
}

func findAVP(avps []*AVP, code, vendorID uint32) *AVP {
	for _, a := range avps {
		if a.Code == code && a.wireVendorID() == vendorID {
			return a
		}
	}
	return nil
}

func findAllAVPs(avps []*AVP, code, vendorID uint32) []*AVP {
	var out []*AVP
	for _, a := range avps {
		if a.Code == code && a.wireVendorID() == vendorID {
			out = append(out, a)
		}
	}
	return out
}

// wireVendorID is the vendor id as a peer would see it
func (a *AVP) wireVendorID() uint32 {
	if a.IsVendorSpecific() {
		return a.VendorID
	}
	return 0
}
