package diam

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/hsdfat/diam-stack/dictionary"
	"github.com/hsdfat/diam-stack/models_base"
	"github.com/hsdfat/diam-stack/pkg/wire"
)

// Dictionary resolves attribute codes to their definitions
type Dictionary interface {
	Lookup(code, vendorID uint32) (*dictionary.Entry, bool)
}

// commandDictionary is implemented by dictionaries that also know commands
type commandDictionary interface {
	Command(code uint32, request bool) (*dictionary.Command, bool)
}

// Factory builds attributes from a dictionary. Codes missing from the
// dictionary decode as opaque octet strings.
type Factory struct {
	dict Dictionary
}

// NewFactory returns a factory over d. A nil d treats every code as unknown.
func NewFactory(d Dictionary) *Factory {
	return &Factory{dict: d}
}

var (
	defaultOnce    sync.Once
	defaultFactory *Factory
	genericFactory = &Factory{}
)

// DefaultFactory returns the shared factory over the built-in dictionary
func DefaultFactory() *Factory {
	defaultOnce.Do(func() {
		defaultFactory = NewFactory(dictionary.Base())
	})
	return defaultFactory
}

// Dictionary returns the dictionary the factory resolves codes with
func (f *Factory) Dictionary() Dictionary {
	return f.dict
}

func (f *Factory) lookup(code, vendorID uint32) (*dictionary.Entry, bool) {
	if f == nil || f.dict == nil {
		return nil, false
	}
	return f.dict.Lookup(code, vendorID)
}

// Create returns an attribute with the dictionary type for code and vendorID
// and the given flags. Unknown codes get an opaque octet string payload.
func (f *Factory) Create(code uint32, flags uint8, vendorID uint32) *AVP {
	a := &AVP{Code: code, Flags: flags, VendorID: vendorID, factory: f}
	entry, ok := f.lookup(code, vendorID)
	if !ok {
		a.Data = models_base.OctetString("")
		return a
	}
	a.entry = entry
	a.Name = entry.Name
	a.Data, _ = NewData(entry.Type)
	return a
}

// FromDictionary returns an attribute carrying the dictionary name and
// default flags. It fails with ErrUnknownAttribute when the code is not defined.
func (f *Factory) FromDictionary(code, vendorID uint32) (*AVP, error) {
	entry, ok := f.lookup(code, vendorID)
	if !ok {
		return nil, fmt.Errorf("avp code %d vendor %d: %w", code, vendorID, ErrUnknownAttribute)
	}
	a := f.Create(code, entry.Flags, vendorID)
	return a, nil
}

// FromName is FromDictionary keyed by attribute name
func (f *Factory) FromName(name string) (*AVP, error) {
	named, ok := f.dict.(interface {
		LookupByName(string) (*dictionary.Entry, bool)
	})
	if !ok {
		return nil, fmt.Errorf("avp %s: dictionary has no name index: %w", name, ErrUnknownAttribute)
	}
	entry, ok := named.LookupByName(name)
	if !ok {
		return nil, fmt.Errorf("avp %s: %w", name, ErrUnknownAttribute)
	}
	return f.FromDictionary(entry.Code, entry.VendorID)
}

// NewMessage returns an empty message whose dictionary-driven builders use f
func (f *Factory) NewMessage(flags uint8, commandCode, applicationID uint32) *Message {
	return &Message{
		Header: Header{
			Version:       Version,
			Length:        HeaderLength,
			Flags:         flags,
			CommandCode:   commandCode,
			ApplicationID: applicationID,
		},
		factory: f,
	}
}

// NewData returns the zero payload for a wire type. UnknownType maps to an
// empty octet string.
func NewData(tag models_base.TypeID) (models_base.Type, error) {
	switch tag {
	case models_base.UnknownType, models_base.OctetStringType:
		return models_base.OctetString(""), nil
	case models_base.Integer32Type:
		return models_base.Integer32(0), nil
	case models_base.Integer64Type:
		return models_base.Integer64(0), nil
	case models_base.Unsigned32Type:
		return models_base.Unsigned32(0), nil
	case models_base.Unsigned64Type:
		return models_base.Unsigned64(0), nil
	case models_base.Float32Type:
		return models_base.Float32(0), nil
	case models_base.Float64Type:
		return models_base.Float64(0), nil
	case models_base.GroupedType:
		return &Grouped{}, nil
	case models_base.AddressType:
		return models_base.Address(netip.IPv4Unspecified()), nil
	case models_base.TimeType:
		return models_base.Time(time.Unix(0, 0).UTC()), nil
	case models_base.UTF8StringType:
		return models_base.UTF8String(""), nil
	case models_base.DiameterIdentityType:
		return models_base.DiameterIdentity(""), nil
	case models_base.DiameterURIType:
		return models_base.DiameterURI(""), nil
	case models_base.EnumeratedType:
		return models_base.Enumerated(0), nil
	case models_base.IPFilterRuleType:
		return models_base.IPFilterRule(""), nil
	case models_base.QoSFilterRuleType:
		return models_base.QoSFilterRule(""), nil
	}
	return nil, fmt.Errorf("type tag %d: %w", int(tag), ErrInvalidAvpValue)
}

var decoders = map[models_base.TypeID]func([]byte) (models_base.Type, error){
	models_base.OctetStringType:      models_base.DecodeOctetString,
	models_base.Integer32Type:        models_base.DecodeInteger32,
	models_base.Integer64Type:        models_base.DecodeInteger64,
	models_base.Unsigned32Type:       models_base.DecodeUnsigned32,
	models_base.Unsigned64Type:       models_base.DecodeUnsigned64,
	models_base.Float32Type:          models_base.DecodeFloat32,
	models_base.Float64Type:          models_base.DecodeFloat64,
	models_base.AddressType:          models_base.DecodeAddress,
	models_base.TimeType:             models_base.DecodeTime,
	models_base.UTF8StringType:       models_base.DecodeUTF8String,
	models_base.DiameterIdentityType: models_base.DecodeDiameterIdentity,
	models_base.DiameterURIType:      models_base.DecodeDiameterURI,
	models_base.EnumeratedType:       models_base.DecodeEnumerated,
	models_base.IPFilterRuleType:     models_base.DecodeIPFilterRule,
	models_base.QoSFilterRuleType:    models_base.DecodeQoSFilterRule,
}

var parsers = map[models_base.TypeID]func(string) (models_base.Type, error){
	models_base.OctetStringType:      models_base.ParseOctetString,
	models_base.Integer32Type:        models_base.ParseInteger32,
	models_base.Integer64Type:        models_base.ParseInteger64,
	models_base.Unsigned32Type:       models_base.ParseUnsigned32,
	models_base.Unsigned64Type:       models_base.ParseUnsigned64,
	models_base.Float32Type:          models_base.ParseFloat32,
	models_base.Float64Type:          models_base.ParseFloat64,
	models_base.AddressType:          models_base.ParseAddress,
	models_base.TimeType:             models_base.ParseTime,
	models_base.UTF8StringType:       models_base.ParseUTF8String,
	models_base.DiameterIdentityType: models_base.ParseDiameterIdentity,
	models_base.DiameterURIType:      models_base.ParseDiameterURI,
	models_base.EnumeratedType:       models_base.ParseEnumerated,
	models_base.IPFilterRuleType:     models_base.ParseIPFilterRule,
	models_base.QoSFilterRuleType:    models_base.ParseQoSFilterRule,
}

// Decoder returns the payload decoder for a wire type. Grouped payloads are
// split into opaque members; unknown tags decode as octet strings.
func Decoder(tag models_base.TypeID) func([]byte) (models_base.Type, error) {
	if tag == models_base.GroupedType {
		return func(b []byte) (models_base.Type, error) {
			members, err := genericFactory.decodeAVPs(b, 1)
			if err != nil {
				return nil, err
			}
			return &Grouped{AVPs: members}, nil
		}
	}
	if dec, ok := decoders[tag]; ok {
		return dec
	}
	return models_base.DecodeOctetString
}

// decodeAVPs decodes consecutive padded attributes filling b
func (f *Factory) decodeAVPs(b []byte, depth int) ([]*AVP, error) {
	var avps []*AVP
	c := wire.NewCursor(b)
	for c.Remaining() > 0 {
		a, err := f.decodeAVP(c, depth)
		if err != nil {
			return avps, err
		}
		avps = append(avps, a)
	}
	return avps, nil
}

// decodeAVP decodes one attribute at the cursor and moves past its padding
func (f *Factory) decodeAVP(c *wire.Cursor, depth int) (*AVP, error) {
	start := c.Pos()
	b := c.Bytes()
	failed := func(n int) []byte {
		end := min(start+max(n, 0), len(b))
		if n <= 0 {
			end = len(b)
		}
		out := make([]byte, end-start)
		copy(out, b[start:end])
		return out
	}

	if c.Remaining() < avpHeaderLength {
		return nil, &ParseError{Kind: ErrInvalidAvpLength, FailedAVP: failed(0),
			Reason: fmt.Sprintf("%d bytes left for an avp header", c.Remaining())}
	}
	code, _ := c.ReadUint32()
	flags, _ := c.ReadUint8()
	length24, _ := c.ReadUint24()
	length := int(length24)

	if flags&AVPFlagsReserved != 0 {
		return nil, &ParseError{Kind: ErrInvalidAvpBits, FailedAVP: failed(length),
			Reason: fmt.Sprintf("avp %d flags 0x%02x", code, flags)}
	}

	headerLen := avpHeaderLength
	var vendorID uint32
	if flags&AVPFlagVendor != 0 {
		headerLen = avpVendorHeaderLength
		v, err := c.ReadUint32()
		if err != nil {
			return nil, &ParseError{Kind: ErrInvalidAvpLength, FailedAVP: failed(length),
				Reason: fmt.Sprintf("avp %d truncated vendor id", code)}
		}
		vendorID = v
	}

	dataLen := length - headerLen
	if dataLen < 0 || start+length > len(b) {
		return nil, &ParseError{Kind: ErrInvalidAvpLength, FailedAVP: failed(length),
			Reason: fmt.Sprintf("avp %d declares %d bytes, %d available", code, length, len(b)-start)}
	}
	data, _ := c.ReadBytes(dataLen)

	a := f.Create(code, flags, vendorID)
	if a.Type() == models_base.GroupedType {
		if depth >= MaxGroupDepth {
			return nil, &ParseError{Kind: ErrInvalidAvpValue, FailedAVP: failed(length),
				Reason: fmt.Sprintf("grouped avp %d nested deeper than %d", code, MaxGroupDepth)}
		}
		members, err := f.decodeAVPs(data, depth+1)
		if err != nil {
			return nil, err
		}
		a.Data = &Grouped{AVPs: members}
	} else {
		v, err := Decoder(a.Type())(data)
		if err != nil {
			pe := &ParseError{Kind: ErrInvalidAvpValue, FailedAVP: failed(length),
				Reason: fmt.Sprintf("avp %s: %v", a.displayName(), err)}
			if errors.Is(err, models_base.ErrInvalidLength) {
				pe.Kind = ErrInvalidAvpLength
			}
			return nil, pe
		}
		a.Data = v
	}

	// the last attribute of a buffer may arrive without its padding
	end := min(start+wire.Pad4(length), len(b))
	_ = c.Seek(end)
	return a, nil
}
