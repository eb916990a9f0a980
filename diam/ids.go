package diam

import (
	"math/rand/v2"
	"sync/atomic"
	"time"
)

var (
	hopByHop atomic.Uint32
	endToEnd atomic.Uint32
)

func init() {
	hopByHop.Store(uint32(time.Now().UnixMilli() % 1_000_000))
	endToEnd.Store(uint32(rand.IntN(256))<<24 | uint32(time.Now().Unix())&0x00FFFFFF)
}

// NextHopByHopID returns a process-wide increasing hop-by-hop identifier
func NextHopByHopID() uint32 {
	return hopByHop.Add(1)
}

// NextEndToEndID returns an end-to-end identifier. The high byte is random per
// process and the low 24 bits start from the clock, as RFC 6733 suggests.
func NextEndToEndID() uint32 {
	return endToEnd.Add(1)
}
