// Package capture writes Diameter frames as Ethernet/IP/TCP packets to a pcap
// file so a session can be opened in Wireshark.
package capture

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	snapLen = 65536
	// segment payloads the way a 1500-byte MTU link would
	maxSegment = 1460
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e}
	dstMAC = net.HardwareAddr{0x00, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e}
)

type flow struct {
	src, dst netip.AddrPort
}

// Writer appends packets to a pcap stream. Safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	seq    map[flow]uint32
	count  int
}

// NewWriter writes the pcap file header to w
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{w: pw, seq: make(map[flow]uint32)}, nil
}

// Create opens path for writing, truncating it
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// WriteFrame records one frame sent from src to dst. Frames larger than a
// TCP segment are split; sequence numbers continue per direction.
func (w *Writer) WriteFrame(ts time.Time, src, dst netip.AddrPort, frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := flow{src: src, dst: dst}
	seq, ok := w.seq[key]
	if !ok {
		seq = 1000
	}
	ack := w.seq[flow{src: dst, dst: src}]

	for off := 0; ; {
		end := min(off+maxSegment, len(frame))
		data, err := packet(src, dst, seq, ack, frame[off:end])
		if err != nil {
			return err
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.w.WritePacket(ci, data); err != nil {
			return fmt.Errorf("write packet: %w", err)
		}
		seq += uint32(end - off)
		w.count++
		off = end
		if off >= len(frame) {
			break
		}
	}
	w.seq[key] = seq
	return nil
}

// Packets returns the number of packets written
func (w *Writer) Packets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the file opened by Create; it is a no-op for NewWriter
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

func packet(src, dst netip.AddrPort, seq, ack uint32, payload []byte) ([]byte, error) {
	ethernet := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}

	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src.Port()),
		DstPort: layers.TCPPort(dst.Port()),
		Seq:     seq,
		Ack:     ack,
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}

	var network gopacket.SerializableLayer
	srcIP, dstIP := src.Addr().Unmap(), dst.Addr().Unmap()
	if srcIP.Is4() && dstIP.Is4() {
		ethernet.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    srcIP.AsSlice(),
			DstIP:    dstIP.AsSlice(),
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	} else {
		ethernet.EthernetType = layers.EthernetTypeIPv6
		s16, d16 := src.Addr().As16(), dst.Addr().As16()
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolTCP,
			SrcIP:      s16[:],
			DstIP:      d16[:],
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ethernet, network, tcp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize packet: %w", err)
	}
	return buf.Bytes(), nil
}

// AddrPort converts a TCP address to netip form; other address kinds map to
// the unspecified IPv4 address with port 0.
func AddrPort(a net.Addr) netip.AddrPort {
	if tcp, ok := a.(*net.TCPAddr); ok && tcp != nil {
		return tcp.AddrPort()
	}
	return netip.AddrPortFrom(netip.IPv4Unspecified(), 0)
}
