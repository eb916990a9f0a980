package diam

import (
	"net/netip"
	"time"

	"github.com/hsdfat/diam-stack/models_base"
)

// Typed constructors for attributes built without a dictionary.

func NewOctetString(code uint32, flags uint8, vendorID uint32, v []byte) *AVP {
	return New(code, flags, vendorID, models_base.OctetString(v))
}

func NewUTF8String(code uint32, flags uint8, vendorID uint32, v string) *AVP {
	return New(code, flags, vendorID, models_base.UTF8String(v))
}

func NewIdentity(code uint32, flags uint8, vendorID uint32, v string) *AVP {
	return New(code, flags, vendorID, models_base.DiameterIdentity(v))
}

func NewURI(code uint32, flags uint8, vendorID uint32, v string) *AVP {
	return New(code, flags, vendorID, models_base.DiameterURI(v))
}

func NewInteger32(code uint32, flags uint8, vendorID uint32, v int32) *AVP {
	return New(code, flags, vendorID, models_base.Integer32(v))
}

func NewInteger64(code uint32, flags uint8, vendorID uint32, v int64) *AVP {
	return New(code, flags, vendorID, models_base.Integer64(v))
}

func NewUnsigned32(code uint32, flags uint8, vendorID uint32, v uint32) *AVP {
	return New(code, flags, vendorID, models_base.Unsigned32(v))
}

func NewUnsigned64(code uint32, flags uint8, vendorID uint32, v uint64) *AVP {
	return New(code, flags, vendorID, models_base.Unsigned64(v))
}

func NewFloat32(code uint32, flags uint8, vendorID uint32, v float32) *AVP {
	return New(code, flags, vendorID, models_base.Float32(v))
}

func NewFloat64(code uint32, flags uint8, vendorID uint32, v float64) *AVP {
	return New(code, flags, vendorID, models_base.Float64(v))
}

func NewEnumerated(code uint32, flags uint8, vendorID uint32, v int32) *AVP {
	return New(code, flags, vendorID, models_base.Enumerated(v))
}

func NewAddress(code uint32, flags uint8, vendorID uint32, addr netip.Addr) *AVP {
	return New(code, flags, vendorID, models_base.Address(addr.WithZone("")))
}

// NewTime fails when t cannot be carried in a 32-bit NTP timestamp
func NewTime(code uint32, flags uint8, vendorID uint32, t time.Time) (*AVP, error) {
	v, err := models_base.NewTime(t)
	if err != nil {
		return nil, asAvpError(err)
	}
	return New(code, flags, vendorID, v), nil
}

func NewIPFilterRule(code uint32, flags uint8, vendorID uint32, rule string) *AVP {
	return New(code, flags, vendorID, models_base.IPFilterRule(rule))
}

func NewQoSFilterRule(code uint32, flags uint8, vendorID uint32, rule string) *AVP {
	return New(code, flags, vendorID, models_base.QoSFilterRule(rule))
}

// NewGrouped builds a grouped attribute; members keep their order
func NewGrouped(code uint32, flags uint8, vendorID uint32, members ...*AVP) *AVP {
	return New(code, flags, vendorID, &Grouped{AVPs: members})
}
