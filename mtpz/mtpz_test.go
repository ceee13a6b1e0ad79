package mtpz

import (
	"bytes"
	"math/big"
	"testing"

	"mtpzhost/mtp"
)

// testKeyPair returns a small-but-valid RSA key pair (p=61, q=53,
// n=3233, e=17, d=2753 - textbook RSA values) wide enough to exercise
// rsaRaw's sign/verify symmetry without the cost of a real 1024-bit
// modulus.
func testKeyPair() (n, e, d *big.Int) {
	return big.NewInt(3233), big.NewInt(17), big.NewInt(2753)
}

func TestRSARoundTrip(t *testing.T) {
	n, e, d := testKeyPair()
	x := big.NewInt(65)

	priv := rsaRaw(x, d, n)
	got := new(big.Int).SetBytes(priv)
	pub := rsaRaw(got, e, n)

	if new(big.Int).SetBytes(pub).Cmp(x) != 0 {
		t.Fatalf("RSA(RSA^-1(x, D), N) = %v, want %v", new(big.Int).SetBytes(pub), x)
	}
}

func TestEncryptWiFiPasswordOutputProperties(t *testing.T) {
	keys, err := makeTestKeys()
	if err != nil {
		t.Fatalf("makeTestKeys: %v", err)
	}

	ct, err := EncryptWiFiPassword("hunter2-network-key", keys.N)
	if err != nil {
		t.Fatalf("EncryptWiFiPassword: %v", err)
	}
	if len(ct) != rsaModulusSize {
		t.Fatalf("ciphertext length = %d, want %d", len(ct), rsaModulusSize)
	}
	if new(big.Int).SetBytes(ct).Cmp(keys.N) >= 0 {
		t.Fatalf("ciphertext integer value is not < N")
	}
}

func TestEncryptWiFiPasswordRejectsNilKey(t *testing.T) {
	if _, err := EncryptWiFiPassword("pw", nil); err == nil {
		t.Fatalf("expected an error with a nil device key")
	}
}

func TestPadOAEPRejectsOversizedPlaintext(t *testing.T) {
	huge := make([]byte, rsaModulusSize)
	if _, err := padOAEP(huge, rsaModulusSize); err == nil {
		t.Fatalf("expected an error padding a plaintext that doesn't fit")
	}
}

// makeTestKeys builds a Keys value with a real-sized (1024-bit class)
// modulus, standalone from LoadKeys, so EncryptWiFiPassword's 128-byte
// output-size property can be checked without a key-bundle file.
func makeTestKeys() (*Keys, error) {
	n := new(big.Int).Lsh(big.NewInt(1), 1023)
	n.Add(n, big.NewInt(12345))
	d := big.NewInt(65537)
	return &Keys{N: n, D: d, Cert: []byte("test-certificate")}, nil
}

// newHandshakeTestSession is newAuthenticatedSession plus
// OC_MTPZ_GetCertificate in the advertised operation set, the one
// opcode Authenticate checks Supports() for before starting the
// five-step exchange.
func newHandshakeTestSession(t *testing.T) (*mtp.Session, *mockTransport) {
	t.Helper()
	tr := &mockTransport{}
	s := mtp.NewSession(tr, nil)

	tr.queueResponse(mtp.RC_OK, 0)
	if err := s.OpenSession(); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	info := &mtp.DeviceInfo{
		OperationsSupported: []uint16{
			mtp.OC_MTPZ_GetCertificate,
			mtp.OC_MTP_SendObjectPropList, mtp.OC_MTP_GetObjPropList, mtp.OC_SendObject,
		},
	}
	var infoBuf bytes.Buffer
	if err := mtp.Encode(&infoBuf, info); err != nil {
		t.Fatalf("Encode(DeviceInfo): %v", err)
	}
	tr.queueData(mtp.OC_GetDeviceInfo, 1, infoBuf.Bytes())
	tr.queueResponse(mtp.RC_OK, 1)
	if _, err := s.GetDeviceInfo(); err != nil {
		t.Fatalf("GetDeviceInfo: %v", err)
	}

	return s, tr
}

// fixedDeviceModulus returns a deterministic 128-byte big-endian RSA
// modulus standing in for a device certificate's trailing field.
func fixedDeviceModulus() []byte {
	n := new(big.Int).Lsh(big.NewInt(1), 1023)
	n.Add(n, big.NewInt(777))
	out := make([]byte, rsaModulusSize)
	b := n.Bytes()
	copy(out[len(out)-len(b):], b)
	return out
}

// queueHandshake enqueues the four request/response exchanges
// Authenticate drives, starting at transaction id tid (the session's
// next free id), so a test can call Authenticate immediately
// afterward.
func queueHandshake(tr *mockTransport, tid uint32) {
	certChain := append([]byte("cert-chain-prefix-ignored-by-extractDeviceModulus"), fixedDeviceModulus()...)
	tr.queueData(mtp.OC_MTPZ_GetCertificate, tid, certChain)
	tr.queueResponse(mtp.RC_OK, tid)

	tr.queueResponse(mtp.RC_OK, tid+1) // SendHostCertificate

	challenge := make([]byte, challengeNonceSize+challengeSaltSize)
	for i := range challenge {
		challenge[i] = byte(i + 1)
	}
	tr.queueData(mtp.OC_MTPZ_Challenge, tid+2, challenge)
	tr.queueResponse(mtp.RC_OK, tid+2)

	tr.queueResponse(mtp.RC_OK, tid+3) // Response
}

func TestAuthenticateIsIdempotent(t *testing.T) {
	s, tr := newHandshakeTestSession(t)
	keys, err := makeTestKeys()
	if err != nil {
		t.Fatalf("makeTestKeys: %v", err)
	}
	h := NewHandshake(s, keys)

	queueHandshake(tr, 2)
	if err := h.Authenticate(); err != nil {
		t.Fatalf("Authenticate (first call): %v", err)
	}
	if h.DeviceKey() == nil {
		t.Fatalf("DeviceKey is nil after a successful Authenticate")
	}
	if len(h.sessionKey) != 16 {
		t.Fatalf("sessionKey length = %d, want 16", len(h.sessionKey))
	}

	// No transactions are queued for the second call: if Authenticate
	// re-ran the handshake it would block reading an empty transport
	// and the test would fail via io.EOF instead of silently passing.
	if err := h.Authenticate(); err != nil {
		t.Fatalf("Authenticate (second call): %v", err)
	}
}

func TestAuthenticateWithoutKeysReturnsAuthenticationRequired(t *testing.T) {
	s, _ := newHandshakeTestSession(t)
	h := NewHandshake(s, nil)
	if err := h.Authenticate(); err != mtp.ErrAuthenticationRequired {
		t.Fatalf("Authenticate with nil keys = %v, want ErrAuthenticationRequired", err)
	}
}

func TestProvisionWiFiSendsProfileAndEnablesRadio(t *testing.T) {
	s, tr := newHandshakeTestSession(t)
	keys, err := makeTestKeys()
	if err != nil {
		t.Fatalf("makeTestKeys: %v", err)
	}
	h := NewHandshake(s, keys)
	queueHandshake(tr, 2)
	if err := h.Authenticate(); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	tr.queueResponse(mtp.RC_OK, 6) // SetProfile
	tr.queueResponse(mtp.RC_OK, 7) // EnableWireless

	if err := ProvisionWiFi(s, "MyNetwork", "hunter2-network-key", h); err != nil {
		t.Fatalf("ProvisionWiFi: %v", err)
	}
}

func TestProvisionWiFiRejectsUnauthenticatedHandshake(t *testing.T) {
	s, _ := newHandshakeTestSession(t)
	keys, err := makeTestKeys()
	if err != nil {
		t.Fatalf("makeTestKeys: %v", err)
	}
	h := NewHandshake(s, keys)
	if err := ProvisionWiFi(s, "MyNetwork", "pw", h); err == nil {
		t.Fatalf("expected an error provisioning Wi-Fi before Authenticate succeeds")
	}
}

func TestSessionMACAndKeystreamRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}

	tag1, err := sessionMAC(key, []byte("profile-payload"))
	if err != nil {
		t.Fatalf("sessionMAC: %v", err)
	}
	tag2, err := sessionMAC(key, []byte("profile-payload"))
	if err != nil {
		t.Fatalf("sessionMAC: %v", err)
	}
	if !bytes.Equal(tag1, tag2) {
		t.Fatalf("sessionMAC is not deterministic: %x != %x", tag1, tag2)
	}
	if tagOther, _ := sessionMAC(key, []byte("different-payload")); bytes.Equal(tag1, tagOther) {
		t.Fatalf("sessionMAC produced the same tag for different inputs")
	}

	plain := []byte("a per-device secret")
	ct, err := xorKeyStream(key, plain)
	if err != nil {
		t.Fatalf("xorKeyStream (encrypt): %v", err)
	}
	if bytes.Equal(ct, plain) {
		t.Fatalf("xorKeyStream did not change the plaintext")
	}
	pt, err := xorKeyStream(key, ct)
	if err != nil {
		t.Fatalf("xorKeyStream (decrypt): %v", err)
	}
	if !bytes.Equal(pt, plain) {
		t.Fatalf("xorKeyStream round trip = %q, want %q", pt, plain)
	}
}
