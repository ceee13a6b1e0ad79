// Package usb wraps github.com/google/gousb to give the mtp transport
// layer exactly the primitives it needs: enumerate candidate MTP
// interfaces, open/claim one, and drive bulk/interrupt/control transfers
// with per-call timeouts. It deliberately exposes nothing else of
// libusb's surface.
package usb

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/gousb"
)

// Still Image class, the one MTP/PTP devices advertise.
const ClassStillImage = gousb.ClassPTP

// Class-specific control requests (USB Still Imaging Class spec).
const (
	ReqCancel       = 0x64
	ReqGetExtEvent  = 0x65
	ReqDeviceReset  = 0x66
	ReqGetStatus    = 0x67
	ReqGetDeviceInfo = 0x1001
)

// IOErrorReason is the reason code sent alongside a CANCEL_REQUEST.
const IOErrorReason = 0x4001

// Candidate describes one still-image-class (or string-matched "MTP")
// alternate setting found during enumeration, not yet claimed.
type Candidate struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	desc    *gousb.DeviceDesc
	cfgNum  int
	ifNum   int
	altNum  int
	iface   gousb.InterfaceSetting
	product string
}

// Device is an opened, claimed MTP-capable USB interface with its three
// endpoints resolved: one bulk IN, one bulk OUT, one interrupt IN.
type Device struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface

	in    *gousb.InEndpoint
	out   *gousb.OutEndpoint
	event *gousb.InEndpoint

	// MaxPacket is the bulk endpoint's wMaxPacketSize, used by the ptp
	// codec to decide whether a transfer needs a terminating ZLP.
	MaxPacket int

	ifNum int
	// Timeout bounds every individual bulk/interrupt/control transfer.
	Timeout time.Duration
}

// MaxPacketSize implements ptp.Transport.
func (d *Device) MaxPacketSize() int { return d.MaxPacket }

// SetTimeout implements ptp.Transport.
func (d *Device) SetTimeout(timeout time.Duration) { d.Timeout = timeout }

// Enumerate lists every still-image-class (or "MTP"-string-matching)
// alternate setting visible on the bus. It opens every device on the
// bus to read its descriptors but claims none of their interfaces.
func Enumerate(ctx *gousb.Context) ([]Candidate, error) {
	var cands []Candidate
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool { return true })
	if err != nil {
		return nil, fmt.Errorf("usb: OpenDevices: %w", err)
	}
	for _, dev := range devs {
		desc := dev.Desc
		for cfgNum, cfg := range desc.Configs {
			for ifNum, alt := range cfg.Interfaces {
				for _, set := range alt.AltSettings {
					if !looksLikeMTP(set, desc) {
						continue
					}
					if countEndpoints(set) != 3 {
						continue
					}
					product, _ := dev.Manufacturer()
					cands = append(cands, Candidate{
						ctx:     ctx,
						dev:     dev,
						desc:    desc,
						cfgNum:  cfgNum,
						ifNum:   ifNum,
						altNum:  set.Number,
						iface:   set,
						product: product,
					})
				}
			}
		}
	}
	return cands, nil
}

func countEndpoints(set gousb.InterfaceSetting) int {
	return len(set.Endpoints)
}

func looksLikeMTP(set gousb.InterfaceSetting, desc *gousb.DeviceDesc) bool {
	if set.Class == ClassStillImage {
		return true
	}
	re := regexp.MustCompile("(?i)mtp")
	return re.MatchString(desc.Product)
}

// Select filters candidates by a vid:pid or free-text pattern, per
// spec.md section 6: explicit vendor:product when multiple devices
// match, else the first.
func Select(cands []Candidate, pattern string) (*Candidate, error) {
	if len(cands) == 0 {
		return nil, fmt.Errorf("usb: no MTP candidates found")
	}
	if pattern == "" {
		return &cands[0], nil
	}

	if vid, pid, ok := parseVidPid(pattern); ok {
		for i := range cands {
			if uint16(cands[i].desc.Vendor) == vid && uint16(cands[i].desc.Product) == pid {
				return &cands[i], nil
			}
		}
		return nil, fmt.Errorf("usb: no device matching %s", pattern)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("usb: bad selector pattern: %w", err)
	}
	for i := range cands {
		if re.MatchString(cands[i].product) {
			return &cands[i], nil
		}
	}
	return nil, fmt.Errorf("usb: no device matched pattern %q", pattern)
}

func parseVidPid(s string) (vid, pid uint16, ok bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	var v, p uint32
	if _, err := fmt.Sscanf(parts[0], "%x", &v); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(parts[1], "%x", &p); err != nil {
		return 0, 0, false
	}
	return uint16(v), uint16(p), true
}

// Open claims the interface of the candidate and resolves its three
// endpoints. The caller owns the returned Device and must Close it.
func Open(c *Candidate) (*Device, error) {
	cfg, err := c.dev.Config(c.desc.Configs[c.cfgNum].Number)
	if err != nil {
		return nil, fmt.Errorf("usb: Config: %w", err)
	}
	iface, err := cfg.Interface(c.iface.Number, c.iface.Alternate)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("usb: Interface: %w", err)
	}

	d := &Device{
		ctx:     c.ctx,
		dev:     c.dev,
		cfg:     cfg,
		iface:   iface,
		ifNum:   c.iface.Number,
		Timeout: 10 * time.Second,
	}

	for _, ep := range c.iface.Endpoints {
		switch {
		case ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeBulk:
			in, err := iface.InEndpoint(ep.Number)
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("usb: InEndpoint: %w", err)
			}
			d.in = in
			if ep.MaxPacketSize > d.MaxPacket {
				d.MaxPacket = ep.MaxPacketSize
			}
		case ep.Direction == gousb.EndpointDirectionOut && ep.TransferType == gousb.TransferTypeBulk:
			out, err := iface.OutEndpoint(ep.Number)
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("usb: OutEndpoint: %w", err)
			}
			d.out = out
		case ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeInterrupt:
			ev, err := iface.InEndpoint(ep.Number)
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("usb: event InEndpoint: %w", err)
			}
			d.event = ev
		}
	}

	if d.in == nil || d.out == nil || d.event == nil {
		d.Close()
		return nil, fmt.Errorf("usb: could not resolve all three endpoints")
	}
	if d.MaxPacket == 0 {
		d.MaxPacket = 512
	}
	return d, nil
}

// Close releases the interface and the underlying device handle.
func (d *Device) Close() error {
	if d.iface != nil {
		d.iface.Close()
		d.iface = nil
	}
	if d.cfg != nil {
		d.cfg.Close()
		d.cfg = nil
	}
	if d.dev != nil {
		err := d.dev.Close()
		d.dev = nil
		return err
	}
	return nil
}

// BulkWrite writes buf to the OUT endpoint within the device timeout.
func (d *Device) BulkWrite(buf []byte) (int, error) {
	return withTimeout(d.Timeout, func() error { return d.ClearHalt(false) }, func() (int, error) { return d.out.Write(buf) })
}

// BulkRead reads into buf from the IN endpoint within the device timeout.
func (d *Device) BulkRead(buf []byte) (int, error) {
	return withTimeout(d.Timeout, func() error { return d.ClearHalt(true) }, func() (int, error) { return d.in.Read(buf) })
}

// InterruptRead reads one event packet from the interrupt endpoint.
func (d *Device) InterruptRead(buf []byte) (int, error) {
	return withTimeout(d.Timeout, func() error { return d.event.Reset() }, func() (int, error) { return d.event.Read(buf) })
}

// withTimeout runs f with a deadline of timeout. On expiry, per
// spec.md section 4.A, it issues clearHalt against the pipe that
// timed out before failing the call with a TransportTimeout - f's
// goroutine is abandoned to finish (or not) on its own, since gousb
// has no way to cancel an in-flight transfer.
func withTimeout(timeout time.Duration, clearHalt func() error, f func() (int, error)) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := f()
		done <- result{n, err}
	}()
	select {
	case r := <-done:
		return r.n, r.err
	case <-time.After(timeout):
		haltErr := clearHalt()
		return 0, &TransportTimeout{HaltCleared: haltErr == nil, HaltErr: haltErr}
	}
}

// ErrTimeout is the sentinel TransportTimeout.Unwrap()s to, so callers
// that only care about "did this time out" can use errors.Is without
// depending on TransportTimeout's shape.
var ErrTimeout = fmt.Errorf("usb: transfer timed out")

// TransportTimeout is returned by Bulk/InterruptRead/Write when the
// transfer does not complete within Device.Timeout. HaltCleared
// reports whether the clear_halt control transfer issued against the
// stalled pipe succeeded; HaltErr carries its failure when it did not,
// which the caller should treat as the session now being unusable
// without a full Reset.
type TransportTimeout struct {
	HaltCleared bool
	HaltErr     error
}

func (e *TransportTimeout) Error() string {
	if !e.HaltCleared {
		return fmt.Sprintf("usb: transfer timed out; clearing the halted endpoint also failed: %v", e.HaltErr)
	}
	return "usb: transfer timed out, endpoint halt cleared"
}

func (e *TransportTimeout) Unwrap() error { return ErrTimeout }

// ClearHalt clears a stalled bulk endpoint after a timeout, per
// spec.md section 4.A.
func (d *Device) ClearHalt(in bool) error {
	if in {
		return d.in.Reset()
	}
	return d.out.Reset()
}

// Cancel sends the class-specific CANCEL_REQUEST control transfer with
// the six-byte payload: little-endian transaction id followed by the
// IO_ERROR reason code.
func (d *Device) Cancel(transactionID uint32) error {
	payload := make([]byte, 6)
	payload[0] = byte(transactionID)
	payload[1] = byte(transactionID >> 8)
	payload[2] = byte(transactionID >> 16)
	payload[3] = byte(transactionID >> 24)
	payload[4] = byte(IOErrorReason)
	payload[5] = byte(IOErrorReason >> 8)

	_, err := d.dev.Control(0x21, ReqCancel, 0, uint16(d.ifNum), payload)
	return err
}

// GetStatus issues GET_STATUS (class request 0x67, type 0xA1) and
// returns the two-byte status code.
func (d *Device) GetStatus() (uint16, error) {
	buf := make([]byte, 2)
	_, err := d.dev.Control(0xA1, ReqGetStatus, 0, uint16(d.ifNum), buf)
	if err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

// Reset issues a DEVICE_RESET_REQUEST.
func (d *Device) Reset() error {
	_, err := d.dev.Control(0x21, ReqDeviceReset, 0, uint16(d.ifNum), nil)
	return err
}
