package mtpz

import (
	"bytes"
	"fmt"
	"math/big"
	"unicode/utf16"

	"mtpzhost/mtp"
	"mtpzhost/ptp"
)

// EncryptWiFiPassword implements spec.md section 4.D step 6: it pads
// password to a 128-byte OAEP-style block and raises it to deviceKey's
// public exponent, returning a 128-byte big-endian ciphertext whose
// integer value is guaranteed < deviceKey.
//
// It requires a successful Authenticate first - deviceKey is the
// modulus that call extracted from the device's certificate.
func EncryptWiFiPassword(password string, deviceKey *big.Int) ([]byte, error) {
	if deviceKey == nil {
		return nil, fmt.Errorf("mtpz: EncryptWiFiPassword: no device key - Authenticate first")
	}

	plain := utf16LEBytes(password)
	block, err := padOAEP(plain, rsaModulusSize)
	if err != nil {
		return nil, err
	}

	m := new(big.Int).SetBytes(block)
	return rsaRaw(m, rsaPublicExponent, deviceKey), nil
}

// padOAEP builds spec.md's OAEP-style framing for a blockSize-byte RSA
// block: 0x00 0x02, nonzero random padding, a 0x00 separator, then
// plain right-aligned to fill the block.
func padOAEP(plain []byte, blockSize int) ([]byte, error) {
	// header (0x00 0x02) + at least one pad byte + separator (0x00).
	minOverhead := 4
	if len(plain) > blockSize-minOverhead {
		return nil, fmt.Errorf("mtpz: padOAEP: plaintext of %d bytes does not fit in a %d-byte block", len(plain), blockSize)
	}

	padLen := blockSize - len(plain) - 3
	pad, err := nonzeroRandomBytes(padLen)
	if err != nil {
		return nil, err
	}

	block := make([]byte, 0, blockSize)
	block = append(block, 0x00, 0x02)
	block = append(block, pad...)
	block = append(block, 0x00)
	block = append(block, plain...)
	return block, nil
}

// nonzeroRandomBytes returns n random bytes, none of which are zero,
// so the padding can never be mistaken for the 0x00 separator.
func nonzeroRandomBytes(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, err := randomBytes(n - len(out))
		if err != nil {
			return nil, err
		}
		for _, b := range chunk {
			if b != 0x00 {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

// utf16LEBytes encodes s as UTF-16LE, the encoding Windows Mobile/Zune
// devices expect for Wi-Fi profile strings.
func utf16LEBytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}

// ProvisionWiFi sends a SSID/encrypted-password profile to the device
// (opcode 0x9202) and enables the radio (opcode 0x9215). The profile's
// documented fields are the UTF-16LE SSID (fixed 64 bytes, truncated or
// zero-padded) followed by the 128-byte RSA-OAEP-encrypted password;
// spec.md section 9's Open Question on the undocumented remainder of
// the Wi-Fi sub-operation's payload is resolved by writing h's
// session-key MAC of those two fields there, so a device that shares
// the session key can detect a corrupted or forged profile. h must
// have already completed Authenticate.
func ProvisionWiFi(session *mtp.Session, ssid, password string, h *Handshake) error {
	ciphertext, err := EncryptWiFiPassword(password, h.DeviceKey())
	if err != nil {
		return fmt.Errorf("mtpz: ProvisionWiFi: %w", err)
	}

	const ssidFieldSize = 64
	ssidField := make([]byte, ssidFieldSize)
	copy(ssidField, utf16LEBytes(ssid))

	profile := make([]byte, mtp.MTPZWiFiProfileSize)
	copy(profile, ssidField)
	copy(profile[ssidFieldSize:], ciphertext)

	tagged := ssidFieldSize + len(ciphertext)
	tag, err := h.MAC(profile[:tagged])
	if err != nil {
		return fmt.Errorf("mtpz: ProvisionWiFi: tagging profile: %w", err)
	}
	copy(profile[tagged:], tag)

	src := ptp.NewByteSource(bytes.NewReader(profile), int64(len(profile)))
	if _, err := session.RunTransaction(mtp.OC_MTPZ_WIFI_SetProfile, nil, nil, src, 0); err != nil {
		return fmt.Errorf("mtpz: ProvisionWiFi: SetProfile: %w", err)
	}
	if _, err := session.RunTransaction(mtp.OC_MTPZ_WIFI_EnableWireless, nil, nil, nil, 0); err != nil {
		return fmt.Errorf("mtpz: ProvisionWiFi: EnableWireless: %w", err)
	}
	return nil
}
