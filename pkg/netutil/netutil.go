// Package netutil picks local addresses for Host-IP-Address and listen defaults.
package netutil

import (
	"errors"
	"net"
	"net/netip"

	"github.com/heyvito/gateway"
)

// ErrNoAddress is returned when no usable local address is found
var ErrNoAddress = errors.New("no usable local address")

// DefaultHostIP returns an address of the interface holding the default
// route, preferring IPv6 when asked. Loopback is returned only when nothing
// else is available.
func DefaultHostIP(preferIPv6 bool) (netip.Addr, error) {
	ips, err := gateway.FindDefaultIPs()
	if err != nil || len(ips) == 0 {
		ips, err = interfaceIPs()
		if err != nil {
			return netip.Addr{}, err
		}
	}
	if addr, ok := pick(ips, preferIPv6); ok {
		return addr, nil
	}
	return netip.Addr{}, ErrNoAddress
}

func pick(ips []netip.Addr, preferIPv6 bool) (netip.Addr, bool) {
	var loopback netip.Addr
	var first netip.Addr
	for _, ip := range ips {
		ip = ip.Unmap()
		switch {
		case !ip.IsValid(), ip.IsUnspecified(), ip.IsLinkLocalUnicast():
			continue
		case ip.IsLoopback():
			if !loopback.IsValid() {
				loopback = ip
			}
			continue
		}
		if ip.Is6() == preferIPv6 {
			return ip, true
		}
		if !first.IsValid() {
			first = ip
		}
	}
	if first.IsValid() {
		return first, true
	}
	return loopback, loopback.IsValid()
}

func interfaceIPs() ([]netip.Addr, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok {
			if addr, ok := netip.AddrFromSlice(ipNet.IP); ok {
				out = append(out, addr.Unmap())
			}
		}
	}
	return out, nil
}
