// Package ptp implements the PTP-over-USB container framing that MTP
// rides on: the 12-byte container header, the Command/Data/Response
// phase discipline of one transaction, and the asynchronous event
// channel fed by the interrupt endpoint. It knows nothing about MTP
// operation semantics; that lives one layer up, in package mtp.
package ptp

import (
	"encoding/binary"
	"fmt"
)

// ContainerType identifies one of the four container kinds on the wire.
type ContainerType uint16

const (
	ContainerCommand  ContainerType = 1
	ContainerData     ContainerType = 2
	ContainerResponse ContainerType = 3
	ContainerEvent    ContainerType = 4
)

func (t ContainerType) String() string {
	switch t {
	case ContainerCommand:
		return "Command"
	case ContainerData:
		return "Data"
	case ContainerResponse:
		return "Response"
	case ContainerEvent:
		return "Event"
	default:
		return fmt.Sprintf("ContainerType(0x%x)", uint16(t))
	}
}

// HeaderLen is the fixed 12-byte container header: length, type, code,
// transaction id.
const HeaderLen = 4 + 2 + 2 + 4

// MaxCommandParams bounds the Command/Response parameter list.
const MaxCommandParams = 5

var byteOrder = binary.LittleEndian

// Header is the 12-byte prefix common to every container.
type Header struct {
	Length        uint32
	Type          ContainerType
	Code          uint16
	TransactionID uint32
}

// EncodeHeader writes h in wire order.
func EncodeHeader(buf []byte, h Header) {
	byteOrder.PutUint32(buf[0:4], h.Length)
	byteOrder.PutUint16(buf[4:6], uint16(h.Type))
	byteOrder.PutUint16(buf[6:8], h.Code)
	byteOrder.PutUint32(buf[8:12], h.TransactionID)
}

// DecodeHeader parses the first HeaderLen bytes of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, fmt.Errorf("ptp: short header: %d bytes", len(buf))
	}
	return Header{
		Length:        byteOrder.Uint32(buf[0:4]),
		Type:          ContainerType(byteOrder.Uint16(buf[4:6])),
		Code:          byteOrder.Uint16(buf[6:8]),
		TransactionID: byteOrder.Uint32(buf[8:12]),
	}, nil
}

// CommandContainer is a Command or Response container: header plus up
// to five u32 parameters.
type CommandContainer struct {
	Header
	Param []uint32
}

// EncodeCommand renders a Command container with its parameter list.
func EncodeCommand(code uint16, transactionID uint32, params []uint32) []byte {
	if len(params) > MaxCommandParams {
		panic("ptp: too many command parameters")
	}
	buf := make([]byte, HeaderLen+4*len(params))
	EncodeHeader(buf, Header{
		Length:        uint32(len(buf)),
		Type:          ContainerCommand,
		Code:          code,
		TransactionID: transactionID,
	})
	for i, p := range params {
		byteOrder.PutUint32(buf[HeaderLen+4*i:], p)
	}
	return buf
}

// DecodeResponseParams splits the bytes following the header of a
// Response container into its u32 parameter list.
func DecodeResponseParams(rest []byte) ([]uint32, error) {
	if len(rest)%4 != 0 {
		return nil, fmt.Errorf("ptp: response payload not a multiple of 4 bytes: %d", len(rest))
	}
	params := make([]uint32, len(rest)/4)
	for i := range params {
		params[i] = byteOrder.Uint32(rest[4*i:])
	}
	return params, nil
}

// Event is one Event container delivered on the interrupt endpoint:
// header plus up to three u32 parameters.
type Event struct {
	Code          uint16
	SessionID     uint32
	TransactionID uint32
	Param         [3]uint32
}

// DecodeEvent parses a full event packet (header + up to 3 params).
func DecodeEvent(buf []byte) (Event, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Event{}, err
	}
	if h.Type != ContainerEvent {
		return Event{}, fmt.Errorf("ptp: got container type %s, want Event", h.Type)
	}
	ev := Event{Code: h.Code, TransactionID: h.TransactionID}
	rest := buf[HeaderLen:]
	for i := 0; i < 3 && 4*(i+1) <= len(rest); i++ {
		ev.Param[i] = byteOrder.Uint32(rest[4*i:])
	}
	return ev, nil
}
