package ptp

import (
	"fmt"
	"io"
)

// ByteSource is a polymorphic data-phase source with an optional known
// total size, per spec.md section 9.
type ByteSource interface {
	io.Reader
	// TotalHint returns the total byte count if known, else (0, false).
	TotalHint() (uint64, bool)
}

// ByteSink is a polymorphic data-phase destination.
type ByteSink interface {
	io.Writer
	// SetTotal is called once the Data container's advertised length is
	// known, before any bytes are written.
	SetTotal(uint64)
}

// sizedReader adapts a plain io.Reader with a known size to ByteSource.
type sizedReader struct {
	io.Reader
	size  uint64
	known bool
}

// NewByteSource wraps r with an optional known total size.
func NewByteSource(r io.Reader, size int64) ByteSource {
	if size < 0 {
		return sizedReader{Reader: r}
	}
	return sizedReader{Reader: r, size: uint64(size), known: true}
}

func (s sizedReader) TotalHint() (uint64, bool) { return s.size, s.known }

// discardSink implements ByteSink by throwing the bytes away; used when
// a Response arrives with unsolicited Data the caller did not ask for.
type discardSink struct{ n uint64 }

func (d *discardSink) Write(p []byte) (int, error) { d.n += uint64(len(p)); return len(p), nil }
func (d *discardSink) SetTotal(uint64)             {}

// sinkWriter adapts a plain io.Writer to ByteSink.
type sinkWriter struct{ io.Writer }

func (sinkWriter) SetTotal(uint64) {}

// NewByteSink wraps w as a ByteSink that ignores the total-size hint.
func NewByteSink(w io.Writer) ByteSink { return sinkWriter{w} }

// Codec drives one PTP transaction's phases over a claimed usb.Device:
// send_command, optional transfer_data, await_response.
type Codec struct {
	dev Transport

	// SeparateHeader, when set, writes the 12-byte data-phase header in
	// its own bulk transfer instead of coalescing it with the first
	// packet of payload.
	SeparateHeader bool

	events chan Event
}

// bufSize is the read/write chunk size used for the bulk data phase,
// independent of MaxPacket (which only matters for ZLP termination).
const bufSize = 0x4000

// eventQueueLen bounds the single-consumer event channel; once full the
// oldest pending event is dropped to make room, per spec.md section 4.B.
const eventQueueLen = 16

// NewCodec wraps an opened, claimed transport.
func NewCodec(dev Transport) *Codec {
	return &Codec{dev: dev, events: make(chan Event, eventQueueLen)}
}

// Events returns the single-consumer channel of asynchronously
// delivered Event containers.
func (c *Codec) Events() <-chan Event { return c.events }

// PublishEvent is called by the goroutine pumping the interrupt
// endpoint; it drops the oldest queued event on overflow.
func (c *Codec) PublishEvent(ev Event) {
	select {
	case c.events <- ev:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- ev:
		default:
		}
	}
}

// PumpEvents reads interrupt packets in a loop until the device
// returns an error (typically because the device was closed), calling
// PublishEvent for each successfully decoded Event.
func (c *Codec) PumpEvents() error {
	buf := make([]byte, 64)
	for {
		n, err := c.dev.InterruptRead(buf)
		if err != nil {
			return err
		}
		if n < HeaderLen {
			continue
		}
		ev, err := DecodeEvent(buf[:n])
		if err != nil {
			continue
		}
		c.PublishEvent(ev)
	}
}

// SendCommand writes a Command container with the given code,
// transaction id, and parameters.
func (c *Codec) SendCommand(code uint16, transactionID uint32, params []uint32) error {
	buf := EncodeCommand(code, transactionID, params)
	_, err := c.dev.BulkWrite(buf)
	return err
}

// TransferDataOut streams src (of declared size) to the device as a
// Data container for the given command code/transaction id.
func (c *Codec) TransferDataOut(code uint16, transactionID uint32, src ByteSource) (int64, error) {
	size, known := src.TotalHint()
	length := uint32(HeaderLen)
	if known {
		total := uint64(HeaderLen) + size
		if total > 0xFFFFFFFF {
			length = 0xFFFFFFFF
		} else {
			length = uint32(total)
		}
	}
	hdr := Header{Length: length, Type: ContainerData, Code: code, TransactionID: transactionID}

	headerBuf := make([]byte, HeaderLen)
	EncodeHeader(headerBuf, hdr)

	var written int64
	if c.SeparateHeader {
		if _, err := c.dev.BulkWrite(headerBuf); err != nil {
			return 0, err
		}
	} else {
		// Coalesce header with first chunk of payload into one packet.
		first := make([]byte, bufSize)
		copy(first, headerBuf)
		n, err := src.Read(first[HeaderLen:])
		if err != nil && err != io.EOF {
			return 0, err
		}
		packet := first[:HeaderLen+n]
		if _, err := c.dev.BulkWrite(packet); err != nil {
			return 0, err
		}
		written += int64(n)
		if err == io.EOF {
			return c.maybeZLP(written)
		}
	}

	buf := make([]byte, bufSize)
	var lastN int
	for {
		n, err := src.Read(buf)
		if n > 0 {
			wn, werr := c.dev.BulkWrite(buf[:n])
			written += int64(wn)
			lastN = wn
			if werr != nil {
				return written, werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
	}
	_ = lastN
	return c.maybeZLP(written)
}

func (c *Codec) maybeZLP(written int64) (int64, error) {
	total := written + HeaderLen
	if c.dev.MaxPacketSize() > 0 && total%int64(c.dev.MaxPacketSize()) == 0 {
		if _, err := c.dev.BulkWrite(nil); err != nil {
			return written, err
		}
	}
	return written, nil
}

// TransferDataIn reads one full Data-container payload (which may span
// many MAX_PACKET-sized bulk reads) into sink. It returns the Data
// container's code/transactionID header so the caller can validate
// phase discipline.
func (c *Codec) TransferDataIn(sink ByteSink) (Header, error) {
	packet := make([]byte, c.dev.MaxPacketSize())
	n, err := c.dev.BulkRead(packet)
	if err != nil {
		return Header{}, err
	}
	h, err := DecodeHeader(packet[:n])
	if err != nil {
		return Header{}, err
	}
	if h.Type != ContainerData {
		return h, fmt.Errorf("ptp: got container type %s, want Data", h.Type)
	}

	sink.SetTotal(uint64(h.Length))
	rest := packet[HeaderLen:n]
	if len(rest) > 0 {
		if _, err := sink.Write(rest); err != nil {
			return h, err
		}
	}

	delivered := uint64(HeaderLen + len(rest))
	full := n == len(packet)
	if full && delivered < uint64(h.Length) {
		if err := c.drainDataTail(sink, delivered, uint64(h.Length)); err != nil {
			return h, err
		}
	}
	return h, nil
}

func (c *Codec) drainDataTail(sink ByteSink, delivered, total uint64) error {
	buf := make([]byte, bufSize)
	for delivered < total {
		n, err := c.dev.BulkRead(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				return werr
			}
			delivered += uint64(n)
		}
		if err != nil {
			return err
		}
		if n < len(buf) {
			break
		}
	}
	return nil
}

// AwaitResponse reads the next container; if it is Data it is routed to
// sink (or discarded if sink is nil) and the subsequent Response is then
// read. It returns the Response container.
func (c *Codec) AwaitResponse(sink ByteSink) (CommandContainer, bool, error) {
	packet := make([]byte, c.dev.MaxPacketSize())
	n, err := c.dev.BulkRead(packet)
	if err != nil {
		return CommandContainer{}, false, err
	}
	h, err := DecodeHeader(packet[:n])
	if err != nil {
		return CommandContainer{}, false, err
	}

	unsolicitedData := false
	if h.Type == ContainerData {
		if sink == nil {
			sink = &discardSink{}
			unsolicitedData = true
		}
		sink.SetTotal(uint64(h.Length))
		rest := packet[HeaderLen:n]
		if len(rest) > 0 {
			if _, werr := sink.Write(rest); werr != nil {
				return CommandContainer{}, false, werr
			}
		}
		delivered := uint64(HeaderLen + len(rest))
		if n == len(packet) && delivered < uint64(h.Length) {
			if derr := c.drainDataTail(sink, delivered, uint64(h.Length)); derr != nil {
				return CommandContainer{}, false, derr
			}
		}

		n, err = c.dev.BulkRead(packet)
		if err != nil {
			return CommandContainer{}, false, err
		}
		h, err = DecodeHeader(packet[:n])
		if err != nil {
			return CommandContainer{}, false, err
		}
	}

	if h.Type != ContainerResponse {
		return CommandContainer{}, false, fmt.Errorf("ptp: got container type %s, want Response", h.Type)
	}
	params, err := DecodeResponseParams(packet[HeaderLen:n])
	if err != nil {
		return CommandContainer{}, false, err
	}
	return CommandContainer{Header: h, Param: params}, unsolicitedData, nil
}

// Cancel issues the class-specific CANCEL_REQUEST and then drains the
// bulk pipe until a Response (expected TransactionCancelled) is seen or
// the transport times out.
func (c *Codec) Cancel(transactionID uint32) error {
	if err := c.dev.Cancel(transactionID); err != nil {
		return err
	}
	buf := make([]byte, c.dev.MaxPacketSize())
	for {
		n, err := c.dev.BulkRead(buf)
		if err != nil {
			return err
		}
		h, err := DecodeHeader(buf[:n])
		if err != nil {
			continue
		}
		if h.Type == ContainerResponse {
			return nil
		}
	}
}
