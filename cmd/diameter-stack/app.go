package main

import (
	"net"
	"net/netip"

	"github.com/hsdfat/diam-stack/diam"
	"github.com/hsdfat/diam-stack/internal/config"
	"github.com/hsdfat/diam-stack/pkg/logger"
	"github.com/hsdfat/diam-stack/stack"
)

// Base protocol AVP codes used by the demo peer
const (
	avpHostIPAddress     = 257
	avpAuthApplicationID = 258
	avpVendorID          = 266
	avpFirmwareRevision  = 267
	avpResultCode        = 268
	avpProductName       = 269
	avpOriginHost        = 264
	avpOriginRealm       = 296

	cmdCapabilitiesExchange = 257
)

// peerApp answers every request with its identity and logs transport events
type peerApp struct {
	stack.BaseApplication
	identity *config.IdentityConfig
	hostIP   netip.Addr
	log      logger.Logger
}

func newPeerApp(identity *config.IdentityConfig, hostIP netip.Addr, log logger.Logger) *peerApp {
	return &peerApp{identity: identity, hostIP: hostIP, log: log}
}

// addIdentity appends Origin-Host and Origin-Realm
func (a *peerApp) addIdentity(m *diam.Message) {
	m.AddIdentity(avpOriginHost, diam.AVPFlagMandatory, 0, a.identity.OriginHost)
	m.AddIdentity(avpOriginRealm, diam.AVPFlagMandatory, 0, a.identity.OriginRealm)
}

// addCapabilities appends the capabilities block shared by CER and CEA
func (a *peerApp) addCapabilities(m *diam.Message) {
	if a.hostIP.IsValid() {
		m.Add(diam.NewAddress(avpHostIPAddress, diam.AVPFlagMandatory, 0, a.hostIP))
	}
	m.AddUnsigned32(avpVendorID, diam.AVPFlagMandatory, 0, a.identity.VendorID)
	m.AddUTF8String(avpProductName, diam.AVPFlagsNone, 0, a.identity.ProductName)
	for _, id := range a.identity.AuthAppIDs {
		m.AddUnsigned32(avpAuthApplicationID, diam.AVPFlagMandatory, 0, id)
	}
	m.AddUnsigned32(avpFirmwareRevision, diam.AVPFlagsNone, 0, a.identity.FirmwareRevision)
}

// CER builds a Capabilities-Exchange-Request from the local identity
func (a *peerApp) CER(f *diam.Factory) *diam.Message {
	m := f.NewMessage(diam.FlagRequest, cmdCapabilitiesExchange, 0)
	m.Header.HopByHopID = diam.NextHopByHopID()
	m.Header.EndToEndID = diam.NextEndToEndID()
	a.addIdentity(m)
	a.addCapabilities(m)
	return m
}

// Answer builds the answer to req. Capabilities-Exchange gets the full
// capabilities block, commands unknown to the dictionary get 3001.
func (a *peerApp) Answer(req *diam.Message) *diam.Message {
	ans := req.Answer()
	result := diam.ResultSuccess
	if req.CommandName() == "" {
		result = diam.ResultCommandUnsupported
		ans.Header.SetError(true)
	}
	ans.AddUnsigned32(avpResultCode, diam.AVPFlagMandatory, 0, result)
	a.addIdentity(ans)
	if req.Header.CommandCode == cmdCapabilitiesExchange {
		a.addCapabilities(ans)
	}
	return ans
}

func (a *peerApp) ReceiveMessage(ctx *stack.MessageContext) {
	if !ctx.Message.Header.IsRequest() {
		a.log.Infow("Unsolicited answer", "command", ctx.Message.CommandName(), "hop_by_hop", ctx.Message.Header.HopByHopID)
		return
	}
	if err := ctx.Reply(a.Answer(ctx.Message)); err != nil {
		a.log.Errorw("Failed to answer request", "command", ctx.Message.CommandName(), "error", err)
	}
}

func (a *peerApp) OnConnectionSuccess(local, remote net.Addr) {
	a.log.Infow("Peer connected", "local_addr", local.String(), "remote_addr", remote.String())
}

func (a *peerApp) OnConnectionFail(remote string, result stack.ResultCode) {
	a.log.Warnw("Peer connection failed", "remote_addr", remote, "result", result.String())
}

func (a *peerApp) OnDisconnect(result stack.ResultCode) {
	a.log.Infow("Peer disconnected", "result", result.String())
}

func (a *peerApp) OnDecodeError(conn *stack.Connection, frame []byte, err error) {
	a.log.Warnw("Undecodable message",
		"remote_addr", conn.RemoteAddr().String(),
		"result_code", diam.ResultCodeOf(err),
		"length", len(frame),
		"error", err)
}
