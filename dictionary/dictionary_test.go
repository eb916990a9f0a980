package dictionary

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsdfat/diam-stack/models_base"
)

func TestBaseDictionary(t *testing.T) {
	d := Base()
	require.NotNil(t, d)
	assert.Equal(t, "diameter.base", d.Name())
	assert.Greater(t, d.Len(), 60)

	tests := []struct {
		name     string
		code     uint32
		vendorID uint32
		typ      models_base.TypeID
		flags    uint8
	}{
		{"Origin-Host", 264, 0, models_base.DiameterIdentityType, FlagMandatory},
		{"Session-Id", 263, 0, models_base.UTF8StringType, FlagMandatory},
		{"Firmware-Revision", 267, 0, models_base.Unsigned32Type, 0},
		{"Result-Code", 268, 0, models_base.Unsigned32Type, FlagMandatory},
		{"Host-IP-Address", 257, 0, models_base.AddressType, FlagMandatory},
		{"EAP-Payload", 462, 0, models_base.OctetStringType, FlagMandatory},
		{"Event-Timestamp", 55, 0, models_base.TimeType, FlagMandatory},
		{"Multiple-Services-Credit-Control", 456, 0, models_base.GroupedType, FlagMandatory},
		{"Feature-List-ID", 629, 10415, models_base.Unsigned32Type, FlagVendor},
		{"User-Data", 702, 10415, models_base.OctetStringType, FlagVendor | FlagMandatory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := d.Lookup(tt.code, tt.vendorID)
			require.True(t, ok)
			assert.Equal(t, tt.name, e.Name)
			assert.Equal(t, tt.typ, e.Type)
			assert.Equal(t, tt.flags, e.Flags)

			byName, ok := d.LookupByName(tt.name)
			require.True(t, ok)
			assert.Same(t, e, byName)
		})
	}

	_, ok := d.Lookup(629, 0)
	assert.False(t, ok, "vendor attributes are keyed by vendor id")
	_, ok = d.Lookup(99999, 0)
	assert.False(t, ok)

	v, ok := d.Const("VENDOR_3GPP")
	require.True(t, ok)
	assert.Equal(t, uint64(10415), v)
}

func TestBaseGroupedRules(t *testing.T) {
	e, ok := Base().LookupByName("Vendor-Specific-Application-Id")
	require.True(t, ok)
	require.Len(t, e.Grouped, 3)

	assert.Equal(t, Rule{Name: "Vendor-Id", Code: 266, Min: 1, Max: 1}, e.Grouped[0])
	assert.Equal(t, Rule{Name: "Auth-Application-Id", Code: 258, Min: 0, Max: 1}, e.Grouped[1])
	assert.True(t, e.Grouped[0].Required())
	assert.False(t, e.Grouped[2].Required())

	proxy, ok := Base().LookupByName("Proxy-Info")
	require.True(t, ok)
	last := proxy.Grouped[len(proxy.Grouped)-1]
	assert.Equal(t, AnyAVP, last.Name)
	assert.Equal(t, Unbounded, last.Max)
}

func TestBaseEnums(t *testing.T) {
	e, ok := Base().LookupByName("Disconnect-Cause")
	require.True(t, ok)
	assert.Equal(t, int32(1), e.Enum["BUSY"])

	name, ok := e.EnumName(2)
	require.True(t, ok)
	assert.Equal(t, "DO_NOT_WANT_TO_TALK_TO_YOU", name)

	_, ok = e.EnumName(42)
	assert.False(t, ok)

	rat, ok := Base().Lookup(1032, 10415)
	require.True(t, ok)
	assert.Equal(t, int32(1004), rat.Enum["EUTRAN"])
}

func TestBaseCommands(t *testing.T) {
	d := Base()

	cer, ok := d.Command(257, true)
	require.True(t, ok)
	assert.Equal(t, "Capabilities-Exchange-Request", cer.Name)
	assert.Equal(t, "CER", cer.Abbreviation)
	assert.Equal(t, uint32(0), cer.ApplicationID)
	assert.False(t, cer.Proxiable)
	require.NotEmpty(t, cer.Rules)
	assert.Equal(t, "Origin-Host", cer.Rules[0].Name)
	assert.True(t, cer.Rules[0].Fixed)
	assert.True(t, cer.Rules[0].Required())

	cea, ok := d.Command(257, false)
	require.True(t, ok)
	assert.Equal(t, "CEA", cea.Abbreviation)
	assert.Equal(t, uint32(268), cea.Rules[0].Code)

	acr, ok := d.Command(271, true)
	require.True(t, ok)
	assert.Equal(t, uint32(3), acr.ApplicationID)
	assert.True(t, acr.Proxiable)

	cmds := d.Commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, uint32(257), cmds[0].Code)
	assert.True(t, cmds[0].Request)

	entries := d.Entries()
	assert.Len(t, entries, d.Len())
	assert.Equal(t, uint32(1), entries[0].Code)
	assert.Equal(t, uint32(10415), entries[len(entries)-1].VendorID)
}

func TestLoadOverridesBase(t *testing.T) {
	src := `
package site;
// Product-Name marked mandatory by local policy
avp Product-Name { code = 269; type = UTF8String; must = true; }
avp Custom-Counter {
  code = 0x10001;
  type = Unsigned64;
  vendor_id = 99;
}
avp Custom-Group { code = 65538; type = Grouped; vendor_id = 99;
  grouped { required Custom-Counter counter; repeated Session-Id; }
}
`
	d, err := Load(strings.NewReader(src), "site.dict", true)
	require.NoError(t, err)
	assert.Equal(t, "site", d.Name())

	e, ok := d.LookupByName("Product-Name")
	require.True(t, ok)
	assert.Equal(t, FlagMandatory, e.Flags)

	c, ok := d.Lookup(65537, 99)
	require.True(t, ok)
	assert.Equal(t, "Custom-Counter", c.Name)
	assert.Equal(t, FlagVendor, c.Flags)

	g, ok := d.Lookup(65538, 99)
	require.True(t, ok)
	require.Len(t, g.Grouped, 2)
	assert.Equal(t, Rule{Name: "Custom-Counter", Code: 65537, VendorID: 99, Min: 1, Max: 1}, g.Grouped[0])
	assert.Equal(t, Rule{Name: "Session-Id", Code: 263, Min: 0, Max: Unbounded}, g.Grouped[1])

	// base content is still there
	_, ok = d.Lookup(264, 0)
	assert.True(t, ok)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.dict")
	require.NoError(t, os.WriteFile(path, []byte("avp App-Flag { code = 70000; type = Enumerated; }\nenum App-Flag { ON = 1; OFF = 0; }\n"), 0o644))

	d, err := LoadFiles(true, path)
	require.NoError(t, err)
	e, ok := d.Lookup(70000, 0)
	require.True(t, ok)
	assert.Equal(t, int32(1), e.Enum["ON"])

	d, err = LoadFiles(false, path)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	assert.Same(t, Base(), mustLoadFiles(t))

	_, err = LoadFiles(true, filepath.Join(dir, "missing.dict"))
	assert.Error(t, err)
}

func mustLoadFiles(t *testing.T) *Dictionary {
	t.Helper()
	d, err := LoadFiles(true)
	require.NoError(t, err)
	return d
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"unknown type", "avp A { code = 1; type = Foo; }", 1},
		{"missing code", "avp A { type = Unsigned32; }", 1},
		{"bad code", "avp A { code = x1; type = Unsigned32; }", 1},
		{"unknown property", "avp A { code = 1; type = Unsigned32; colour = red; }", 1},
		{"unknown member", "avp G { code = 1; type = Grouped; grouped { required Missing m = 1; } }", 1},
		{"duplicate code", "avp A { code = 1; type = Unsigned32; }\navp B { code = 1; type = Integer32; }", 2},
		{"unterminated block", "avp A {\n code = 1;", 2},
		{"stray text", "\nhello world", 2},
		{"enum on non enumerated", "avp A { code = 1; type = Unsigned32; enum = E; }\nenum E { X = 1; }", 1},
		{"members on plain type", "avp A { code = 1; type = Unsigned32; grouped { optional AVP avp; } }", 1},
		{"bad enum value", "enum E {\n X = one;\n}", 1},
		{"bad const", "const X = -1;", 1},
		{"command without code", "command Foo-Request { request = true; }", 1},
		{"unbalanced", "}", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.src), "test.dict", false)
			require.Error(t, err)

			var syntaxErr *SyntaxError
			require.True(t, errors.As(err, &syntaxErr), "unexpected error type %T: %v", err, err)
			assert.Equal(t, tt.line, syntaxErr.Line)
			assert.Equal(t, "test.dict", syntaxErr.Source)
		})
	}
}

func TestStatements(t *testing.T) {
	got := statements("code = 1; grouped { required A a = 1; } }")
	assert.Equal(t, []string{"code = 1", "grouped {", "required A a = 1", "}", "}"}, got)
}
