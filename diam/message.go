package diam

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/hsdfat/diam-stack/models_base"
	"github.com/hsdfat/diam-stack/pkg/wire"
)

// Message is a header plus top-level attributes in wire order. Header.Length
// is kept equal to 20 plus the padded length of every attribute by the Add
// family of methods.
type Message struct {
	Header Header
	AVPs   []*AVP

	factory *Factory
}

// NewMessage returns an empty message using the default dictionary
func NewMessage(flags uint8, commandCode, applicationID uint32) *Message {
	return DefaultFactory().NewMessage(flags, commandCode, applicationID)
}

// NewRequest returns an empty request with fresh hop-by-hop and end-to-end ids
func NewRequest(flags uint8, commandCode, applicationID uint32) *Message {
	m := NewMessage(flags|FlagRequest, commandCode, applicationID)
	m.Header.HopByHopID = NextHopByHopID()
	m.Header.EndToEndID = NextEndToEndID()
	return m
}

func (m *Message) fac() *Factory {
	if m.factory == nil {
		return DefaultFactory()
	}
	return m.factory
}

// Factory returns the factory used by the dictionary-driven builders
func (m *Message) Factory() *Factory {
	return m.fac()
}

// Len returns the encoded length, recomputed from the attributes
func (m *Message) Len() int {
	n := HeaderLength
	for _, a := range m.AVPs {
		n += a.PaddedLen()
	}
	return n
}

// Add appends attributes and updates the header length
func (m *Message) Add(avps ...*AVP) *Message {
	for _, a := range avps {
		if a == nil {
			continue
		}
		m.AVPs = append(m.AVPs, a)
		m.Header.Length += uint32(a.PaddedLen())
	}
	return m
}

// AddAll appends a slice of attributes
func (m *Message) AddAll(avps []*AVP) *Message {
	return m.Add(avps...)
}

func (m *Message) addData(code uint32, flags uint8, vendorID uint32, data models_base.Type) *AVP {
	a := m.fac().Create(code, flags, vendorID)
	a.Data = data
	m.Add(a)
	return a
}

func (m *Message) AddOctetString(code uint32, flags uint8, vendorID uint32, v []byte) *AVP {
	return m.addData(code, flags, vendorID, models_base.OctetString(v))
}

func (m *Message) AddUTF8String(code uint32, flags uint8, vendorID uint32, v string) *AVP {
	return m.addData(code, flags, vendorID, models_base.UTF8String(v))
}

func (m *Message) AddIdentity(code uint32, flags uint8, vendorID uint32, v string) *AVP {
	return m.addData(code, flags, vendorID, models_base.DiameterIdentity(v))
}

func (m *Message) AddURI(code uint32, flags uint8, vendorID uint32, v string) *AVP {
	return m.addData(code, flags, vendorID, models_base.DiameterURI(v))
}

func (m *Message) AddInteger32(code uint32, flags uint8, vendorID uint32, v int32) *AVP {
	return m.addData(code, flags, vendorID, models_base.Integer32(v))
}

func (m *Message) AddInteger64(code uint32, flags uint8, vendorID uint32, v int64) *AVP {
	return m.addData(code, flags, vendorID, models_base.Integer64(v))
}

func (m *Message) AddUnsigned32(code uint32, flags uint8, vendorID uint32, v uint32) *AVP {
	return m.addData(code, flags, vendorID, models_base.Unsigned32(v))
}

func (m *Message) AddUnsigned64(code uint32, flags uint8, vendorID uint32, v uint64) *AVP {
	return m.addData(code, flags, vendorID, models_base.Unsigned64(v))
}

func (m *Message) AddFloat32(code uint32, flags uint8, vendorID uint32, v float32) *AVP {
	return m.addData(code, flags, vendorID, models_base.Float32(v))
}

func (m *Message) AddFloat64(code uint32, flags uint8, vendorID uint32, v float64) *AVP {
	return m.addData(code, flags, vendorID, models_base.Float64(v))
}

func (m *Message) AddEnumerated(code uint32, flags uint8, vendorID uint32, v int32) *AVP {
	return m.addData(code, flags, vendorID, models_base.Enumerated(v))
}

// AddAddress appends an Address attribute parsed from dotted or colon text
func (m *Message) AddAddress(code uint32, flags uint8, vendorID uint32, s string) (*AVP, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil, fmt.Errorf("avp %d: %w: %v", code, ErrInvalidAvpValue, err)
	}
	return m.addData(code, flags, vendorID, models_base.Address(addr)), nil
}

func (m *Message) AddTime(code uint32, flags uint8, vendorID uint32, t time.Time) (*AVP, error) {
	v, err := models_base.NewTime(t)
	if err != nil {
		return nil, fmt.Errorf("avp %d: %w", code, asAvpError(err))
	}
	return m.addData(code, flags, vendorID, v), nil
}

// AddGrouped appends a grouped attribute holding members
func (m *Message) AddGrouped(code uint32, flags uint8, vendorID uint32, members ...*AVP) *AVP {
	return m.addData(code, flags, vendorID, &Grouped{AVPs: members})
}

// AddFromDictionary appends an attribute defined in the dictionary, with its
// default flags, and sets its value from text.
func (m *Message) AddFromDictionary(code, vendorID uint32, value string) (*AVP, error) {
	a, err := m.fac().FromDictionary(code, vendorID)
	if err != nil {
		return nil, err
	}
	if err := a.SetString(value); err != nil {
		return nil, err
	}
	m.Add(a)
	return a, nil
}

// AddBytesFromDictionary is AddFromDictionary with a wire-form value
func (m *Message) AddBytesFromDictionary(code, vendorID uint32, value []byte) (*AVP, error) {
	a, err := m.fac().FromDictionary(code, vendorID)
	if err != nil {
		return nil, err
	}
	if err := a.SetBytes(value); err != nil {
		return nil, err
	}
	m.Add(a)
	return a, nil
}

// Find returns the first top-level attribute with code and vendorID
func (m *Message) Find(code, vendorID uint32) *AVP {
	return findAVP(m.AVPs, code, vendorID)
}

// FindAll returns every top-level attribute with code and vendorID
func (m *Message) FindAll(code, vendorID uint32) []*AVP {
	return findAllAVPs(m.AVPs, code, vendorID)
}

// UpdateLength recomputes Header.Length from the attributes. Call it after
// editing an attribute payload in place.
func (m *Message) UpdateLength() {
	m.Header.Length = uint32(m.Len())
}

// Encode returns the wire form. It does not modify m and fails with
// ErrInvalidMessageLength when Header.Length disagrees with the attributes.
func (m *Message) Encode() ([]byte, error) {
	length := m.Len()
	if length > MaxMessageSize {
		return nil, fmt.Errorf("message length %d exceeds %d: %w", length, MaxMessageSize, ErrInvalidMessageLength)
	}
	if int(m.Header.Length) != length {
		return nil, fmt.Errorf("header length %d, attributes need %d: %w", m.Header.Length, length, ErrInvalidMessageLength)
	}
	h := m.Header
	if h.Version == 0 {
		h.Version = Version
	}

	c := wire.NewWriteCursor(length)
	h.encode(c)
	for _, a := range m.AVPs {
		if err := a.encode(c); err != nil {
			return nil, err
		}
	}
	return c.Bytes(), nil
}

// DecodeMessage decodes one complete message from b using f, or the default
// factory when f is nil. Bytes beyond the declared length are ignored. On an
// attribute failure the error is a *ParseError holding the attributes decoded
// so far.
func DecodeMessage(b []byte, f *Factory) (*Message, error) {
	if f == nil {
		f = DefaultFactory()
	}
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	m := &Message{Header: h, factory: f}
	avps, err := f.decodeAVPs(b[HeaderLength:h.Length], 0)
	m.AVPs = avps
	if err != nil {
		pe, ok := err.(*ParseError)
		if !ok {
			pe = &ParseError{Kind: ErrInvalidAvpValue, Reason: err.Error()}
		}
		pe.Header = h
		pe.Message = m
		return nil, pe
	}
	return m, nil
}

// Answer returns an empty answer to m: same command, application and ids,
// with the proxiable bit kept and the other flags cleared.
func (m *Message) Answer() *Message {
	a := m.fac().NewMessage(m.Header.Flags&FlagProxiable, m.Header.CommandCode, m.Header.ApplicationID)
	a.Header.HopByHopID = m.Header.HopByHopID
	a.Header.EndToEndID = m.Header.EndToEndID
	return a
}

// CommandName returns the dictionary name of the command, or "" when unknown
func (m *Message) CommandName() string {
	cd, ok := m.fac().dict.(commandDictionary)
	if !ok {
		return ""
	}
	cmd, ok := cd.Command(m.Header.CommandCode, m.Header.IsRequest())
	if !ok {
		return ""
	}
	return cmd.Name
}

func (m *Message) String() string {
	var sb strings.Builder
	name := m.CommandName()
	if name == "" {
		name = fmt.Sprintf("Command(%d)", m.Header.CommandCode)
	}
	fmt.Fprintf(&sb, "%s %s\n", name, m.Header)
	for _, a := range m.AVPs {
		a.dump(&sb, 1)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
