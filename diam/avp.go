package diam

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hsdfat/diam-stack/dictionary"
	"github.com/hsdfat/diam-stack/models_base"
	"github.com/hsdfat/diam-stack/pkg/wire"
)

// AVP flag bits
const (
	AVPFlagVendor    uint8 = 0x80
	AVPFlagMandatory uint8 = 0x40
	AVPFlagProtected uint8 = 0x20
	AVPFlagsReserved uint8 = 0x1F

	AVPFlagsNone uint8 = 0x00
	AVPFlagsVM         = AVPFlagVendor | AVPFlagMandatory
)

const (
	avpHeaderLength       = 8
	avpVendorHeaderLength = 12
	maxAVPLength          = 1<<24 - 1
)

// AVP is one attribute. The vendor id is written only when the V flag is set,
// whatever the VendorID field holds.
type AVP struct {
	Code     uint32
	Flags    uint8
	VendorID uint32
	Name     string
	Data     models_base.Type

	entry   *dictionary.Entry
	factory *Factory
}

// New builds an attribute from explicit header fields and data
func New(code uint32, flags uint8, vendorID uint32, data models_base.Type) *AVP {
	return &AVP{Code: code, Flags: flags, VendorID: vendorID, Data: data}
}

func (a *AVP) IsVendorSpecific() bool { return a.Flags&AVPFlagVendor != 0 }
func (a *AVP) IsMandatory() bool      { return a.Flags&AVPFlagMandatory != 0 }
func (a *AVP) IsProtected() bool      { return a.Flags&AVPFlagProtected != 0 }

// Entry returns the dictionary entry the attribute was built from, if any
func (a *AVP) Entry() *dictionary.Entry {
	return a.entry
}

// Type returns the wire type of the payload
func (a *AVP) Type() models_base.TypeID {
	switch {
	case a.Data != nil:
		return a.Data.Type()
	case a.entry != nil:
		return a.entry.Type
	}
	return models_base.OctetStringType
}

func (a *AVP) headerLen() int {
	if a.IsVendorSpecific() {
		return avpVendorHeaderLength
	}
	return avpHeaderLength
}

func (a *AVP) dataLen() int {
	if a.Data == nil {
		return 0
	}
	return a.Data.Len()
}

// Length is the value of the AVP Length field: header plus data, no padding
func (a *AVP) Length() int {
	return a.headerLen() + a.dataLen()
}

// PaddedLen is the number of bytes the attribute occupies on the wire
func (a *AVP) PaddedLen() int {
	return wire.Pad4(a.Length())
}

// validate checks the payload, and every member of a grouped payload
func (a *AVP) validate() error {
	v, ok := a.Data.(models_base.Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("avp %d: %w", a.Code, asAvpError(err))
	}
	return nil
}

func (a *AVP) encode(c *wire.Cursor) error {
	length := a.Length()
	if length > maxAVPLength {
		return fmt.Errorf("avp %d length %d exceeds 24 bits: %w", a.Code, length, ErrInvalidAvpLength)
	}
	if err := a.validate(); err != nil {
		return err
	}
	c.WriteUint32(a.Code)
	c.WriteUint8(a.Flags)
	c.WriteUint24(uint32(length))
	if a.IsVendorSpecific() {
		c.WriteUint32(a.VendorID)
	}
	if a.Data != nil {
		c.WriteBytes(a.Data.Serialize())
	}
	c.WriteZeros(wire.Padding(length))
	return nil
}

// Serialize returns the padded wire form of the attribute
func (a *AVP) Serialize() ([]byte, error) {
	c := wire.NewWriteCursor(a.PaddedLen())
	if err := a.encode(c); err != nil {
		return nil, err
	}
	return c.Bytes(), nil
}

// SetString sets the payload from its text form according to the attribute
// type. Enumerated attributes built from the dictionary also accept value names.
func (a *AVP) SetString(s string) error {
	tag := a.Type()
	if tag == models_base.EnumeratedType && a.entry != nil {
		if v, ok := a.entry.Enum[s]; ok {
			a.Data = models_base.Enumerated(v)
			return nil
		}
	}
	parse, ok := parsers[tag]
	if !ok {
		return fmt.Errorf("avp %s: %s has no text form: %w", a.displayName(), tag, ErrInvalidAvpValue)
	}
	data, err := parse(s)
	if err != nil {
		return fmt.Errorf("avp %s: %w", a.displayName(), asAvpError(err))
	}
	a.Data = data
	return nil
}

// SetBytes sets the payload from its wire form according to the attribute type
func (a *AVP) SetBytes(b []byte) error {
	if a.Type() == models_base.GroupedType {
		f := a.factory
		if f == nil {
			f = genericFactory
		}
		members, err := f.decodeAVPs(b, 1)
		if err != nil {
			return err
		}
		a.Data = &Grouped{AVPs: members}
		return nil
	}
	data, err := Decoder(a.Type())(b)
	if err != nil {
		return fmt.Errorf("avp %s: %w", a.displayName(), asAvpError(err))
	}
	a.Data = data
	return nil
}

// Grouped returns the member list of a grouped attribute, or nil
func (a *AVP) Grouped() *Grouped {
	g, _ := a.Data.(*Grouped)
	return g
}

func (a *AVP) displayName() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("AVP(%d)", a.Code)
}

// avpFlagString renders attribute flags as "VM", "M" or "-"
func avpFlagString(flags uint8) string {
	var sb strings.Builder
	if flags&AVPFlagVendor != 0 {
		sb.WriteByte('V')
	}
	if flags&AVPFlagMandatory != 0 {
		sb.WriteByte('M')
	}
	if flags&AVPFlagProtected != 0 {
		sb.WriteByte('P')
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}

func (a *AVP) String() string {
	var sb strings.Builder
	a.dump(&sb, 0)
	return strings.TrimSuffix(sb.String(), "\n")
}

func (a *AVP) dump(sb *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(sb, "%s%s(%d) flags=%s", pad, a.displayName(), a.Code, avpFlagString(a.Flags))
	if a.IsVendorSpecific() {
		fmt.Fprintf(sb, " vendor=%d", a.VendorID)
	}
	fmt.Fprintf(sb, " len=%d", a.Length())

	if g := a.Grouped(); g != nil {
		sb.WriteString("\n")
		for _, m := range g.AVPs {
			m.dump(sb, indent+1)
		}
		return
	}
	fmt.Fprintf(sb, " %s: %s\n", a.Type(), a.valueText())
}

func (a *AVP) valueText() string {
	switch v := a.Data.(type) {
	case nil:
		return ""
	case models_base.OctetString:
		return wire.BytesToHex([]byte(v))
	case models_base.Enumerated:
		if a.entry != nil {
			if name, ok := a.entry.EnumName(int32(v)); ok {
				return fmt.Sprintf("%s(%d)", name, int32(v))
			}
		}
	}
	return a.Data.Text()
}

// asAvpError maps payload errors from models_base onto the AVP error kinds
func asAvpError(err error) error {
	switch {
	case errors.Is(err, models_base.ErrInvalidLength):
		return fmt.Errorf("%w: %v", ErrInvalidAvpLength, err)
	case errors.Is(err, models_base.ErrInvalidValue):
		return fmt.Errorf("%w: %v", ErrInvalidAvpValue, err)
	}
	return err
}
