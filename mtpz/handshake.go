package mtpz

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"mtpzhost/mtp"
	"mtpzhost/ptp"
)

const (
	challengeNonceSize = 16
	challengeSaltSize  = 20
)

// Handshake drives the five-step MTPZ authentication exchange of
// spec.md section 4.D over one mtp.Session.
type Handshake struct {
	session *mtp.Session
	keys    *Keys

	mu            sync.Mutex
	authenticated bool
	deviceKey     *big.Int
	sessionKey    []byte
}

// NewHandshake builds a Handshake for session. keys may be nil, in
// which case Authenticate always fails with
// mtp.ErrAuthenticationRequired without touching the device - loading
// keys is never a precondition for opening a plain MTP session.
func NewHandshake(session *mtp.Session, keys *Keys) *Handshake {
	return &Handshake{session: session, keys: keys}
}

// KeysLoaded reports whether a key bundle was supplied.
func (h *Handshake) KeysLoaded() bool { return h.keys != nil }

// DeviceKey returns the device's RSA public modulus extracted during
// Authenticate, usable to encrypt further per-device secrets. It is
// nil until authentication succeeds.
func (h *Handshake) DeviceKey() *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deviceKey
}

// Authenticate runs the handshake if it has not already succeeded.
// Calling it again after success is a no-op, per spec.md section
// 4.D's idempotence contract.
func (h *Handshake) Authenticate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.authenticated {
		return nil
	}
	if h.keys == nil {
		return mtp.ErrAuthenticationRequired
	}
	if !h.session.Supports(mtp.OC_MTPZ_GetCertificate) {
		return &mtp.NotSupported{What: "MTPZ"}
	}

	// Step 1: GetCertificate.
	var certBuf bytes.Buffer
	if _, err := h.session.RunTransaction(mtp.OC_MTPZ_GetCertificate, nil, ptp.NewByteSink(&certBuf), nil, 0); err != nil {
		return &mtp.AuthenticationError{Msg: "GetCertificate", Err: err}
	}
	deviceModulus, err := extractDeviceModulus(certBuf.Bytes())
	if err != nil {
		return &mtp.AuthenticationError{Msg: "parsing device certificate", Err: err}
	}

	// Step 2: SendHostCertificate.
	src := ptp.NewByteSource(bytes.NewReader(h.keys.Cert), int64(len(h.keys.Cert)))
	if _, err := h.session.RunTransaction(mtp.OC_MTPZ_SendHostCertificate, nil, nil, src, 0); err != nil {
		return &mtp.AuthenticationError{Msg: "SendHostCertificate", Err: err}
	}

	// Step 3: Challenge.
	var challengeBuf bytes.Buffer
	if _, err := h.session.RunTransaction(mtp.OC_MTPZ_Challenge, nil, ptp.NewByteSink(&challengeBuf), nil, 0); err != nil {
		return &mtp.AuthenticationError{Msg: "Challenge", Err: err}
	}
	cdev, salt, err := parseChallenge(challengeBuf.Bytes())
	if err != nil {
		return &mtp.AuthenticationError{Msg: "parsing challenge", Err: err}
	}

	// Step 4: Response = Chost || RSA_sign(SHA1(Cdev || salt || hostCertHash)).
	chost, err := randomBytes(challengeNonceSize)
	if err != nil {
		return &mtp.AuthenticationError{Msg: "generating host nonce", Err: err}
	}
	hostCertHash := sha1Sum(h.keys.Cert)
	digest := sha1Sum(cdev, salt, hostCertHash)
	sig := h.keys.sign(digest)

	payload := make([]byte, 0, len(chost)+len(sig))
	payload = append(payload, chost...)
	payload = append(payload, sig...)

	if _, err := h.session.RunTransaction(mtp.OC_MTPZ_Response, nil, nil, ptp.NewByteSource(bytes.NewReader(payload), int64(len(payload))), 0); err != nil {
		return &mtp.AuthenticationError{Msg: "device rejected response", Err: err}
	}

	// Step 5: derive the per-session key from both nonces and the base seed.
	h.sessionKey = sha1Sum(cdev, chost, h.keys.BaseSeed[:])[:16]
	h.deviceKey = deviceModulus
	h.authenticated = true
	return nil
}

// MAC authenticates data under the per-session key derived in step 5
// of Authenticate, using the AES-128-ECB-based CBC-MAC construction
// in cipher.go. It requires a prior successful Authenticate.
func (h *Handshake) MAC(data []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.authenticated {
		return nil, mtp.ErrAuthenticationRequired
	}
	return sessionMAC(h.sessionKey, data)
}

// EncryptSecret XORs plaintext with the per-session counter-mode key
// stream cipher.go derives from the same session key. This is the
// mechanism spec.md section 4.D reserves for vendor-defined
// per-device secrets other than the Wi-Fi password, which instead
// travels RSA-OAEP-wrapped under the device's own public modulus
// (DeviceKey) since it must be recoverable by the device itself, not
// just by a host that already knows the session key.
func (h *Handshake) EncryptSecret(plaintext []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.authenticated {
		return nil, mtp.ErrAuthenticationRequired
	}
	return xorKeyStream(h.sessionKey, plaintext)
}

// extractDeviceModulus pulls the trailing 128-byte RSA-1024 modulus
// out of the certificate chain GetCertificate returns. The chain's
// container format is undocumented outside Microsoft's own MTPZ
// tooling; the modulus is observed to be the chain's final 128 bytes,
// which is the assumption encoded here (see DESIGN.md).
func extractDeviceModulus(certChain []byte) (*big.Int, error) {
	if len(certChain) < rsaModulusSize {
		return nil, fmt.Errorf("mtpz: certificate chain too short (%d bytes) to contain an RSA modulus", len(certChain))
	}
	tail := certChain[len(certChain)-rsaModulusSize:]
	return new(big.Int).SetBytes(tail), nil
}

func parseChallenge(buf []byte) (cdev, salt []byte, err error) {
	want := challengeNonceSize + challengeSaltSize
	if len(buf) < want {
		return nil, nil, fmt.Errorf("mtpz: challenge too short: got %d bytes, want >= %d", len(buf), want)
	}
	return buf[:challengeNonceSize], buf[challengeNonceSize : challengeNonceSize+challengeSaltSize], nil
}
