// Package rawlink is the concrete Linux link.Driver: a raw AF_PACKET
// socket bound to a single interface, filtering on the EtherDFS
// EtherType with a classic BPF program so the kernel does the
// discarding instead of userspace.
package rawlink

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/etherdfs/etherdfs-go/internal/wire"
	"github.com/etherdfs/etherdfs-go/link"
)

// Driver is a link.Driver backed by a PF_PACKET/SOCK_RAW socket. Open
// spawns a background goroutine that blocks in Read and publishes
// every frame that passes the kernel-side BPF filter into the
// registered Inbox.
type Driver struct {
	fd      int
	ifindex int
	ifaddr  [6]byte

	inbox   *link.Inbox
	closing atomic.Bool
	log     *logrus.Entry
}

// Open binds a raw socket to the named interface, attaches a BPF
// program that matches only EtherDFS frames, and starts the receive
// loop. The caller must call SetInbox before frames can be delivered.
func Open(ifaceName string, log *logrus.Logger) (*Driver, error) {
	if log == nil {
		log = logrus.New()
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("rawlink: lookup interface %q: %w", ifaceName, err)
	}
	if len(iface.HardwareAddr) != 6 {
		return nil, fmt.Errorf("rawlink: interface %q has no Ethernet address", ifaceName)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(wire.EtherTypeBigEndian)))
	if err != nil {
		return nil, fmt.Errorf("rawlink: socket: %w", err)
	}

	prog, err := etherdfsFilter()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, prog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rawlink: attach filter: %w", err)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(wire.EtherTypeBigEndian),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rawlink: bind: %w", err)
	}

	d := &Driver{
		fd:      fd,
		ifindex: iface.Index,
		log:     log.WithField("component", "rawlink").WithField("iface", ifaceName),
	}
	copy(d.ifaddr[:], iface.HardwareAddr)

	go d.receiveLoop()
	return d, nil
}

// LocalMAC returns the bound interface's hardware address.
func (d *Driver) LocalMAC() [6]byte { return d.ifaddr }

func (d *Driver) SetInbox(inbox *link.Inbox) { d.inbox = inbox }

// Send writes frame directly to the socket. Ethernet framing (including
// padding to the 60-byte minimum) is the caller's responsibility, as
// with any raw link.Driver.
func (d *Driver) Send(frame []byte) error {
	_, err := unix.Write(d.fd, frame)
	return err
}

func (d *Driver) Close() error {
	d.closing.Store(true)
	return unix.Close(d.fd)
}

// receiveLoop blocks in Read, decodes just far enough to sanity-check
// the Ethernet header with gopacket, and hands the raw bytes to the
// inbox under the Reserve/Publish protocol.
func (d *Driver) receiveLoop() {
	buf := make([]byte, wire.FrameSize)
	for {
		n, err := unix.Read(d.fd, buf)
		if err != nil {
			if d.closing.Load() {
				return
			}
			d.log.WithError(err).Warn("rawlink: read failed")
			continue
		}
		if n < wire.MinFrameLen {
			continue
		}

		pkt := gopacket.NewPacket(buf[:n], layers.LayerTypeEthernet, gopacket.DecodeOptions{
			Lazy:   true,
			NoCopy: true,
		})
		eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
		if !ok || eth.EthernetType != layers.EthernetType(wire.EtherTypeBigEndian) {
			continue
		}

		inbox := d.inbox
		if inbox == nil {
			continue
		}
		dst := inbox.Reserve(n)
		if dst == nil {
			// No room; the transport isn't waiting on a reply right now,
			// or one is already queued. Drop it.
			continue
		}
		copy(dst, buf[:n])
		inbox.Publish()
	}
}

// htons converts a 16-bit value to network byte order, needed because
// AF_PACKET socket()/bind() protocol arguments are big-endian regardless
// of host endianness.
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// etherdfsFilter builds a four-instruction classic BPF program: load the
// 16-bit EtherType field at offset 12, accept iff it equals
// wire.EtherTypeBigEndian, reject otherwise.
func etherdfsFilter() (*unix.SockFprog, error) {
	raw, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(wire.EtherTypeBigEndian), SkipFalse: 1},
		bpf.RetConstant{Val: 0xFFFF},
		bpf.RetConstant{Val: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("rawlink: assemble BPF filter: %w", err)
	}

	insns := make([]unix.SockFilter, len(raw))
	for i, r := range raw {
		insns[i] = unix.SockFilter{
			Code: r.Op,
			Jt:   r.Jt,
			Jf:   r.Jf,
			K:    r.K,
		}
	}

	return &unix.SockFprog{
		Len:    uint16(len(insns)),
		Filter: &insns[0],
	}, nil
}
