package mtp

import "fmt"

// TransportError wraps a USB-layer failure: I/O, timeout, short read,
// stall. It ends the current transaction; the Session is not marked
// unusable, and later calls run on the same transport without a Reset().
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("mtp: transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError signals a malformed container, unexpected phase, or a
// transaction-id mismatch - a protocol-level synchronization failure.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mtp: protocol error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("mtp: protocol error: %s", e.Msg)
}
func (e *ProtocolError) Unwrap() error { return e.Err }

// MtpError is any non-OK ResponseCode, preserving the 16-bit code for
// callers that want to inspect or retry on it.
type MtpError struct {
	Code uint16
}

func (e MtpError) Error() string {
	if n, ok := RC_names[int(e.Code)]; ok {
		return fmt.Sprintf("mtp: response 0x%04x (%s)", e.Code, n)
	}
	return fmt.Sprintf("mtp: response 0x%04x", e.Code)
}

// Recoverable reports whether the bounded-retry policy in spec.md
// section 4.C applies to this response code.
func (e MtpError) Recoverable() bool {
	return e.Code == RC_DeviceBusy || e.Code == RC_SessionAlreadyOpened
}

// AuthenticationError covers MTPZ keys missing, malformed, or rejected.
type AuthenticationError struct {
	Msg string
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mtp: authentication: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("mtp: authentication: %s", e.Msg)
}
func (e *AuthenticationError) Unwrap() error { return e.Err }

// ErrAuthenticationRequired is returned by vendor-gated operations when
// MTPZ keys were never successfully loaded.
var ErrAuthenticationRequired = &AuthenticationError{Msg: "MTPZ keys not loaded"}

// NotSupported means the operation or property is not advertised by
// DeviceInfo / GetObjectPropsSupported.
type NotSupported struct {
	What string
}

func (e *NotSupported) Error() string { return fmt.Sprintf("mtp: not supported: %s", e.What) }

// NotFound means path/handle resolution reached a missing child.
type NotFound struct {
	What string
}

func (e *NotFound) Error() string { return fmt.Sprintf("mtp: not found: %s", e.What) }

// hintForInvalidStorage annotates RC_InvalidStorageId per spec.md
// section 4.C's guidance that it may mean the device is locked.
func hintForInvalidStorage(err error) error {
	if me, ok := err.(MtpError); ok && me.Code == RC_InvalidStorageId {
		return fmt.Errorf("%w (device may be locked or in charge-only mode)", err)
	}
	return err
}
