package models_base

import (
	"encoding/hex"
	"strconv"
	"unicode/utf8"
)

// The octet-string family shares one wire form: the raw bytes, padded to a
// 32-bit boundary. Only UTF8String validates its payload.
type (
	OctetString string
	UTF8String  string
	// DiameterIdentity is a host or realm FQDN, e.g. "mme.example.com"
	DiameterIdentity string
	// DiameterURI e.g. "aaa://host.example.com:3868;transport=tcp"
	DiameterURI   string
	IPFilterRule  string
	QoSFilterRule string
)

func octetPadding(n int) int { return pad4(n) - n }

func DecodeOctetString(b []byte) (Type, error)      { return OctetString(b), nil }
func DecodeDiameterIdentity(b []byte) (Type, error) { return DiameterIdentity(b), nil }
func DecodeDiameterURI(b []byte) (Type, error)      { return DiameterURI(b), nil }
func DecodeIPFilterRule(b []byte) (Type, error)     { return IPFilterRule(b), nil }
func DecodeQoSFilterRule(b []byte) (Type, error)    { return QoSFilterRule(b), nil }

func DecodeUTF8String(b []byte) (Type, error) {
	if !utf8.Valid(b) {
		return nil, &ValueError{Type: UTF8StringType, Reason: "not valid UTF-8"}
	}
	return UTF8String(b), nil
}

// ParseOctetString takes the string bytes as they are
func ParseOctetString(s string) (Type, error)      { return OctetString(s), nil }
func ParseDiameterIdentity(s string) (Type, error) { return DiameterIdentity(s), nil }
func ParseDiameterURI(s string) (Type, error)      { return DiameterURI(s), nil }
func ParseIPFilterRule(s string) (Type, error)     { return IPFilterRule(s), nil }
func ParseQoSFilterRule(s string) (Type, error)    { return QoSFilterRule(s), nil }

func ParseUTF8String(s string) (Type, error) {
	return DecodeUTF8String([]byte(s))
}

func (s OctetString) Serialize() []byte { return []byte(s) }
func (s OctetString) Len() int          { return len(s) }
func (s OctetString) Padding() int      { return octetPadding(len(s)) }
func (s OctetString) Type() TypeID      { return OctetStringType }
func (s OctetString) Text() string      { return string(s) }
func (s OctetString) String() string    { return "OctetString{" + hex.EncodeToString([]byte(s)) + "}" }

func (s UTF8String) Serialize() []byte { return []byte(s) }
func (s UTF8String) Len() int          { return len(s) }
func (s UTF8String) Padding() int      { return octetPadding(len(s)) }
func (s UTF8String) Type() TypeID      { return UTF8StringType }
func (s UTF8String) Text() string      { return string(s) }
func (s UTF8String) String() string    { return "UTF8String{" + strconv.Quote(string(s)) + "}" }

func (s DiameterIdentity) Serialize() []byte { return []byte(s) }
func (s DiameterIdentity) Len() int          { return len(s) }
func (s DiameterIdentity) Padding() int      { return octetPadding(len(s)) }
func (s DiameterIdentity) Type() TypeID      { return DiameterIdentityType }
func (s DiameterIdentity) Text() string      { return string(s) }
func (s DiameterIdentity) String() string    { return "DiameterIdentity{" + string(s) + "}" }

func (s DiameterURI) Serialize() []byte { return []byte(s) }
func (s DiameterURI) Len() int          { return len(s) }
func (s DiameterURI) Padding() int      { return octetPadding(len(s)) }
func (s DiameterURI) Type() TypeID      { return DiameterURIType }
func (s DiameterURI) Text() string      { return string(s) }
func (s DiameterURI) String() string    { return "DiameterURI{" + string(s) + "}" }

func (s IPFilterRule) Serialize() []byte { return []byte(s) }
func (s IPFilterRule) Len() int          { return len(s) }
func (s IPFilterRule) Padding() int      { return octetPadding(len(s)) }
func (s IPFilterRule) Type() TypeID      { return IPFilterRuleType }
func (s IPFilterRule) Text() string      { return string(s) }
func (s IPFilterRule) String() string    { return "IPFilterRule{" + string(s) + "}" }

func (s QoSFilterRule) Serialize() []byte { return []byte(s) }
func (s QoSFilterRule) Len() int          { return len(s) }
func (s QoSFilterRule) Padding() int      { return octetPadding(len(s)) }
func (s QoSFilterRule) Type() TypeID      { return QoSFilterRuleType }
func (s QoSFilterRule) Text() string      { return string(s) }
func (s QoSFilterRule) String() string    { return "QoSFilterRule{" + string(s) + "}" }
