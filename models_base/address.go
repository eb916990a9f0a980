package models_base

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Address family numbers carried in the first two payload bytes
const (
	AddressFamilyIPv4 uint16 = 1
	AddressFamilyIPv6 uint16 = 2
)

// Address data type. An IPv4 address encodes as family 1 with 4 bytes, any
// other address as family 2 with 16 bytes.
type Address netip.Addr

func DecodeAddress(b []byte) (Type, error) {
	if len(b) < 2 {
		return nil, &ValueError{Type: AddressType, Reason: fmt.Sprintf("payload of %d bytes has no address family", len(b))}
	}
	family := binary.BigEndian.Uint16(b)
	raw := b[2:]
	switch family {
	case AddressFamilyIPv4:
		if len(raw) != 4 {
			return nil, &ValueError{Type: AddressType, Reason: fmt.Sprintf("IPv4 address needs 4 bytes, have %d", len(raw))}
		}
		return Address(netip.AddrFrom4([4]byte(raw))), nil
	case AddressFamilyIPv6:
		if len(raw) != 16 {
			return nil, &ValueError{Type: AddressType, Reason: fmt.Sprintf("IPv6 address needs 16 bytes, have %d", len(raw))}
		}
		return Address(netip.AddrFrom16([16]byte(raw))), nil
	default:
		return nil, &ValueError{Type: AddressType, Reason: fmt.Sprintf("unsupported address family %d", family)}
	}
}

// ParseAddress accepts dotted IPv4 or colon IPv6 text
func ParseAddress(s string) (Type, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil, &ValueError{Type: AddressType, Reason: err.Error()}
	}
	return Address(addr.WithZone("")), nil
}

// Family returns the address family tag used on the wire
func (a Address) Family() uint16 {
	if netip.Addr(a).Is4() {
		return AddressFamilyIPv4
	}
	return AddressFamilyIPv6
}

// Validate rejects the zero netip.Addr, which has no address family
func (a Address) Validate() error {
	if !netip.Addr(a).IsValid() {
		return &ValueError{Type: AddressType, Reason: "address is not set"}
	}
	return nil
}

func (a Address) Serialize() []byte {
	addr := netip.Addr(a)
	if addr.Is4() {
		b := make([]byte, 6)
		binary.BigEndian.PutUint16(b, AddressFamilyIPv4)
		v4 := addr.As4()
		copy(b[2:], v4[:])
		return b
	}
	b := make([]byte, 18)
	binary.BigEndian.PutUint16(b, AddressFamilyIPv6)
	v6 := addr.As16()
	copy(b[2:], v6[:])
	return b
}

func (a Address) Len() int {
	if netip.Addr(a).Is4() {
		return 6
	}
	return 18
}

func (a Address) Padding() int {
	l := a.Len()
	return pad4(l) - l
}

func (a Address) Type() TypeID {
	return AddressType
}

func (a Address) Text() string {
	return netip.Addr(a).String()
}

func (a Address) String() string {
	return fmt.Sprintf("Address{%s},Padding:%d", netip.Addr(a), a.Padding())
}
