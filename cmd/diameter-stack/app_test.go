package main

import (
	"net/netip"
	"testing"

	"github.com/hsdfat/diam-stack/diam"
	"github.com/hsdfat/diam-stack/internal/config"
	"github.com/hsdfat/diam-stack/models_base"
	"github.com/hsdfat/diam-stack/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp() *peerApp {
	identity := &config.IdentityConfig{
		OriginHost:       "peer.example.com",
		OriginRealm:      "example.com",
		ProductName:      "Diameter-Stack",
		VendorID:         10415,
		FirmwareRevision: 1,
		AuthAppIDs:       []uint32{16777251},
	}
	return newPeerApp(identity, netip.MustParseAddr("192.0.2.1"), logger.Log)
}

func TestCER(t *testing.T) {
	m := testApp().CER(diam.DefaultFactory())
	assert.True(t, m.Header.IsRequest())
	assert.Equal(t, "Capabilities-Exchange-Request", m.CommandName())
	assert.NotZero(t, m.Header.HopByHopID)

	b, err := m.Encode()
	require.NoError(t, err)
	decoded, err := diam.DecodeMessage(b, nil)
	require.NoError(t, err)

	assert.Equal(t, models_base.DiameterIdentity("peer.example.com"), decoded.Find(264, 0).Data)
	assert.Equal(t, models_base.Address(netip.MustParseAddr("192.0.2.1")), decoded.Find(257, 0).Data)
	assert.Equal(t, models_base.Unsigned32(16777251), decoded.Find(258, 0).Data)
	assert.Len(t, decoded.AVPs, 7)
}

func TestAnswer(t *testing.T) {
	app := testApp()

	t.Run("capabilities exchange", func(t *testing.T) {
		req := app.CER(diam.DefaultFactory())
		ans := app.Answer(req)
		assert.False(t, ans.Header.IsRequest())
		assert.False(t, ans.Header.IsError())
		assert.Equal(t, req.Header.HopByHopID, ans.Header.HopByHopID)
		assert.Equal(t, models_base.Unsigned32(diam.ResultSuccess), ans.Find(268, 0).Data)
		assert.NotNil(t, ans.Find(269, 0), "CEA carries Product-Name")
	})

	t.Run("watchdog", func(t *testing.T) {
		req := diam.NewRequest(diam.FlagsNone, 280, 0)
		ans := app.Answer(req)
		assert.Equal(t, models_base.Unsigned32(diam.ResultSuccess), ans.Find(268, 0).Data)
		assert.Nil(t, ans.Find(269, 0))
		assert.Equal(t, "Device-Watchdog-Answer", ans.CommandName())
	})

	t.Run("unknown command", func(t *testing.T) {
		req := diam.NewRequest(diam.FlagsNone, 9999, 4)
		ans := app.Answer(req)
		assert.True(t, ans.Header.IsError())
		assert.Equal(t, models_base.Unsigned32(diam.ResultCommandUnsupported), ans.Find(268, 0).Data)
	})
}
