package mtpz

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math/big"
)

// rsaPublicExponent is the fixed public exponent (e = 65537) used for
// host-side verification and for encrypting payloads to the device's
// public modulus.
var rsaPublicExponent = big.NewInt(65537)

// rsaRaw computes base^exp mod n with no padding, the "raw RSA"
// primitive spec.md section 4.D calls for; padding (when needed) is
// applied by the caller, as in EncryptWiFiPassword.
func rsaRaw(base, exp, n *big.Int) []byte {
	result := new(big.Int).Exp(base, exp, n)
	out := make([]byte, (n.BitLen()+7)/8)
	b := result.Bytes()
	copy(out[len(out)-len(b):], b)
	return out
}

// sign computes m^D mod N, i.e. an RSA private-key operation over the
// host's own keypair, used to sign the device's challenge.
func (k *Keys) sign(digest []byte) []byte {
	m := new(big.Int).SetBytes(digest)
	return rsaRaw(m, k.D, k.N)
}

// sha1Sum is a thin wrapper kept for readability at call sites.
func sha1Sum(parts ...[]byte) []byte {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// ecbEncrypter is the encrypt side of AES-128 in ECB mode. The Go
// standard library deliberately omits ECB (it is not safe for
// general-purpose use), but MTPZ's per-session MAC/keystream
// construction specifically requires it as a building block, so it is
// hand-rolled here over crypto/aes's raw block cipher. See DESIGN.md
// for why no ecb-mode library from the example pack was a better fit
// than this.
type ecbEncrypter struct {
	b cipher.Block
}

func newECBEncrypter(key []byte) (*ecbEncrypter, error) {
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &ecbEncrypter{b: b}, nil
}

// encryptBlocks encrypts src (whose length must be a multiple of the
// cipher's block size) into dst, one block at a time, independently -
// the defining property of ECB mode.
func (e *ecbEncrypter) encryptBlocks(dst, src []byte) error {
	bs := e.b.BlockSize()
	if len(src)%bs != 0 {
		return fmt.Errorf("mtpz: ecb: input %d is not a multiple of the block size %d", len(src), bs)
	}
	for i := 0; i < len(src); i += bs {
		e.b.Encrypt(dst[i:i+bs], src[i:i+bs])
	}
	return nil
}

// sessionMAC authenticates data under sessionKey using a CBC-MAC built
// on top of ecbEncrypter: the running tag is XORed into each block
// before it is encrypted, so the final tag depends on every
// preceding block. This is the "HMAC-like MAC" spec.md section 4.D
// calls for built from AES-128-ECB rather than a dedicated MAC
// primitive, since ECB is the only symmetric primitive the handshake
// derives a key for.
func sessionMAC(sessionKey, data []byte) ([]byte, error) {
	enc, err := newECBEncrypter(sessionKey)
	if err != nil {
		return nil, err
	}
	bs := enc.b.BlockSize()
	padded := pkcs7Pad(data, bs)

	tag := make([]byte, bs)
	block := make([]byte, bs)
	for i := 0; i < len(padded); i += bs {
		for j := 0; j < bs; j++ {
			block[j] = padded[i+j] ^ tag[j]
		}
		if err := enc.encryptBlocks(tag, block); err != nil {
			return nil, err
		}
	}
	return tag, nil
}

// pkcs7Pad right-pads data to a multiple of blockSize, per RFC 5652.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// sessionKeystream derives n bytes of key stream from sessionKey by
// encrypting successive big-endian block counters with ecbEncrypter -
// the standard way to turn an ECB-only block cipher into the
// counter-mode stream spec.md section 4.D calls for.
func sessionKeystream(sessionKey []byte, n int) ([]byte, error) {
	enc, err := newECBEncrypter(sessionKey)
	if err != nil {
		return nil, err
	}
	bs := enc.b.BlockSize()
	nb := (n + bs - 1) / bs

	counters := make([]byte, nb*bs)
	for i := 0; i < nb; i++ {
		binary.BigEndian.PutUint64(counters[i*bs+bs-8:i*bs+bs], uint64(i))
	}
	out := make([]byte, nb*bs)
	if err := enc.encryptBlocks(out, counters); err != nil {
		return nil, err
	}
	return out[:n], nil
}

// xorKeyStream encrypts (and, applied again, decrypts) data with
// sessionKeystream's output.
func xorKeyStream(sessionKey, data []byte) ([]byte, error) {
	ks, err := sessionKeystream(sessionKey, len(data))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ ks[i]
	}
	return out, nil
}

// randomBytes returns n cryptographically random bytes.
func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("mtpz: random bytes: %w", err)
	}
	return buf, nil
}
