package mtp

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"mtpzhost/ptp"
)

// DebugFlags controls what RunTransaction logs.
type DebugFlags struct {
	MTP  bool
	USB  bool
	Data bool
}

// Session is the MTP session layer (spec.md component C): one open USB
// interface, at most one outstanding transaction, a monotonically
// increasing transaction id, and the cached DeviceInfo.
//
// Exactly one Session owns a usb.Device. Session.Close sends
// CloseSession if a session is still active, per spec.md section 3's
// ownership rules.
type Session struct {
	dev   ptp.Transport
	codec *ptp.Codec
	log   *logrus.Entry

	mu      sync.Mutex
	sid     uint32
	nextTid uint32
	open    bool

	info     *DeviceInfo
	infoOnce sync.Once

	// OpTimeout bounds ordinary operations; DataTimeout bounds the data
	// phase of SendObject/GetObject, per spec.md section 4.C.
	OpTimeout   time.Duration
	DataTimeout time.Duration

	Debug DebugFlags

	transactions atomic.Int64
	cancelled    atomic.Int64
}

// NewSession wraps an opened, claimed transport. It does not open an
// MTP session; call OpenSession for that.
func NewSession(dev ptp.Transport, log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.New()
	}
	return &Session{
		dev:         dev,
		codec:       ptp.NewCodec(dev),
		log:         log.WithField("component", "mtp.session"),
		OpTimeout:   10 * time.Second,
		DataTimeout: 10 * time.Minute,
	}
}

// Events returns the session's asynchronous event channel (spec.md
// section 6); it is populated only once PumpEvents is running.
func (s *Session) Events() <-chan ptp.Event { return s.codec.Events() }

// PumpEvents drains the interrupt endpoint until the device goes away.
// Callers typically run this in its own goroutine.
func (s *Session) PumpEvents() error { return s.codec.PumpEvents() }

// nextTransactionID increments the per-session counter, skipping the
// reserved value 0x00000000 on wraparound, per spec.md section 3 and
// the "Transaction-id wrap" design note in section 9.
func (s *Session) nextTransactionID() uint32 {
	id := s.nextTid
	s.nextTid++
	if s.nextTid == 0 {
		s.nextTid = 1
	}
	return id
}

// OpenSession opens an MTP session with a client-chosen nonzero session
// id, avoiding the reserved 0x00000000 and 0xFFFFFFFF values.
func (s *Session) OpenSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return fmt.Errorf("mtp: session already open")
	}

	sid := uint32(rand.Int31()) | 1
	_, err := s.runTransactionLocked(OC_OpenSession, []uint32{sid}, nil, nil, -1)
	if err != nil {
		return err
	}
	s.sid = sid
	s.nextTid = 1
	s.open = true
	return nil
}

// CloseSession closes the current session; it is a no-op if none is
// open.
func (s *Session) CloseSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	_, err := s.runTransactionLocked(OC_CloseSession, nil, nil, nil, -1)
	s.open = false
	return err
}

// Close releases the underlying USB device, first closing the MTP
// session if one is still open.
func (s *Session) Close() error {
	_ = s.CloseSession()
	return s.dev.Close()
}

// Cancel aborts the in-flight transaction, per spec.md section 5.
func (s *Session) Cancel() error {
	s.mu.Lock()
	tid := s.nextTid - 1
	s.mu.Unlock()
	s.cancelled.Inc()
	return s.codec.Cancel(tid)
}

// retryDelays implements the bounded-retry policy of spec.md section
// 4.C: three retries at 200/400/800ms for recoverable response codes.
var retryDelays = []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}

// RunTransaction executes one full PTP transaction: Command, optional
// Data phase (OUT if src != nil, IN if dest != nil), and Response. It
// applies the bounded-retry policy for recoverable response codes.
func (s *Session) RunTransaction(code uint16, params []uint32, dest ptp.ByteSink, src ptp.ByteSource, timeout time.Duration) (Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		rep, err := s.runTransactionLocked(code, params, dest, src, timeout)
		if err == nil {
			return rep, nil
		}
		if me, ok := err.(MtpError); ok && me.Recoverable() && attempt < len(retryDelays) {
			lastErr = err
			time.Sleep(retryDelays[attempt])
			continue
		}
		if me, ok := err.(MtpError); ok {
			return rep, hintForInvalidStorage(me)
		}
		return rep, err
	}
	return Container{}, lastErr
}

// runTransactionLocked must be called with s.mu held.
func (s *Session) runTransactionLocked(code uint16, params []uint32, dest ptp.ByteSink, src ptp.ByteSource, timeout time.Duration) (Container, error) {
	tid := s.nextTransactionID()
	if timeout > 0 {
		s.dev.SetTimeout(timeout)
	} else {
		s.dev.SetTimeout(s.OpTimeout)
	}
	s.transactions.Inc()

	if s.Debug.MTP {
		s.log.Debugf("request %s %v", getName(OC_names, int(code)), params)
	}

	if err := s.codec.SendCommand(code, tid, params); err != nil {
		return Container{}, &TransportError{Op: "send command", Err: err}
	}

	if src != nil {
		if _, err := s.codec.TransferDataOut(code, tid, src); err != nil {
			return Container{}, &TransportError{Op: "data out", Err: err}
		}
	}

	rep, unexpectedData, err := s.codec.AwaitResponse(dest)
	if err != nil {
		return Container{}, &TransportError{Op: "await response", Err: err}
	}
	if s.Debug.MTP {
		s.log.Debugf("response %s %v", getName(RC_names, int(rep.Code)), rep.Param)
	}

	if unexpectedData {
		return Container{}, &ProtocolError{Msg: fmt.Sprintf("unexpected data for code %s", getName(OC_names, int(code)))}
	}
	if s.open && rep.TransactionID != tid {
		return Container{}, &ProtocolError{Msg: fmt.Sprintf("transaction id mismatch: got 0x%x want 0x%x", rep.TransactionID, tid)}
	}

	out := Container{Code: rep.Code, SessionID: s.sid, TransactionID: rep.TransactionID, Param: rep.Param}
	if rep.Code != RC_OK {
		if rep.Code == RC_SessionNotOpen || rep.Code == RC_InvalidTransactionID {
			return out, &ProtocolError{Msg: fmt.Sprintf("response %s is a protocol violation", getName(RC_names, int(rep.Code)))}
		}
		return out, MtpError{Code: rep.Code}
	}
	return out, nil
}

func getName(m map[int]string, code int) string {
	if n, ok := m[code]; ok {
		return n
	}
	return fmt.Sprintf("0x%04x", code)
}

// runNoData is a convenience for operations with no data phase at all.
func (s *Session) runNoData(code uint16, params []uint32) (Container, error) {
	return s.RunTransaction(code, params, nil, nil, 0)
}

// Configure is a robust version of OpenSession: when the device reports
// a session already open it closes that session and opens once more; if
// opening still fails it resets and closes the device, waits briefly,
// and returns an error telling the caller to reopen the device, per the
// teacher's own Configure() convention.
func (s *Session) Configure() error {
	err := s.OpenSession()
	if me, ok := err.(MtpError); ok && me.Code == RC_SessionAlreadyOpened {
		_ = s.CloseSession()
		err = s.OpenSession()
	}
	if err == nil {
		return nil
	}

	s.log.WithField("err", err).Warn("OpenSession failed; resetting device")
	_ = s.dev.Reset()
	_ = s.dev.Close()
	time.Sleep(time.Second)

	return fmt.Errorf("mtp: Configure: device needs to be reopened by the caller: %w", err)
}
