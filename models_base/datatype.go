package models_base

import "fmt"

// Type is the payload of an AVP. Len excludes padding.
type Type interface {
	Serialize() []byte
	Len() int
	Padding() int
	Type() TypeID
	String() string
	// Text returns the exact string form accepted by the matching Parse function
	Text() string
}

// Validator is implemented by payloads whose Go value range is wider than
// what the wire form can carry. Encoders call Validate before Serialize.
type Validator interface {
	Validate() error
}

// TypeID is the numeric wire-type tag a dictionary entry resolves to
type TypeID int

const (
	UnknownType          TypeID = -1
	OctetStringType      TypeID = 0
	Integer32Type        TypeID = 1
	Integer64Type        TypeID = 2
	Unsigned32Type       TypeID = 3
	Unsigned64Type       TypeID = 4
	Float32Type          TypeID = 5
	Float64Type          TypeID = 6
	GroupedType          TypeID = 7
	AddressType          TypeID = 8
	TimeType             TypeID = 9
	UTF8StringType       TypeID = 10
	DiameterIdentityType TypeID = 11
	DiameterURIType      TypeID = 12
	EnumeratedType       TypeID = 13
	IPFilterRuleType     TypeID = 14
	QoSFilterRuleType    TypeID = 15
)

var Available = map[string]TypeID{
	"Address":          AddressType,
	"DiameterIdentity": DiameterIdentityType,
	"DiameterURI":      DiameterURIType,
	"Enumerated":       EnumeratedType,
	"Float32":          Float32Type,
	"Float64":          Float64Type,
	"Grouped":          GroupedType,
	"IPFilterRule":     IPFilterRuleType,
	"Integer32":        Integer32Type,
	"Integer64":        Integer64Type,
	"OctetString":      OctetStringType,
	"QoSFilterRule":    QoSFilterRuleType,
	"Time":             TimeType,
	"UTF8String":       UTF8StringType,
	"Unsigned32":       Unsigned32Type,
	"Unsigned64":       Unsigned64Type,
}

func (t TypeID) String() string {
	for name, id := range Available {
		if id == t {
			return name
		}
	}
	if t == UnknownType {
		return "Unknown"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// FixedSize returns the payload size of fixed-width types, or 0
func (t TypeID) FixedSize() int {
	switch t {
	case Integer32Type, Unsigned32Type, Float32Type, EnumeratedType, TimeType:
		return 4
	case Integer64Type, Unsigned64Type, Float64Type:
		return 8
	}
	return 0
}

func pad4(n int) int {
	return n + (4-n%4)%4
}
