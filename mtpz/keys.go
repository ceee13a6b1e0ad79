// Package mtpz implements the MTPZ trusted-application handshake
// (spec.md section 4.D): load the host's Microsoft-issued key bundle,
// authenticate to a device over a mtp.Session, and derive the
// per-session key used to encrypt payloads such as Wi-Fi passwords.
package mtpz

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
)

// Sizes of the fixed-width fields in the $HOME/.mtpz-data bundle.
const (
	rsaModulusSize  = 128
	rsaExponentSize = 128
	baseSeedSize    = 20
)

// Keys holds the host's RSA-1024 key pair and the MTPZ certificate
// blob loaded from a key-bundle file. A zero-value Keys is never
// valid; use LoadKeys.
type Keys struct {
	N        *big.Int // RSA modulus
	D        *big.Int // RSA private exponent
	Cert     []byte   // certificate blob, sent verbatim in step 2
	BaseSeed [baseSeedSize]byte
}

// DefaultPath returns $HOME/.mtpz-data, the conventional bundle
// location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mtpz-data"
	}
	return filepath.Join(home, ".mtpz-data")
}

// LoadKeys parses a key-bundle file: a 128-byte RSA modulus, a
// 128-byte private exponent, a length-prefixed certificate blob, and a
// 20-byte base key seed, in that order.
//
// Failure to load keys is never fatal to the caller: LoadKeys returns
// an error and the caller is expected to proceed with keys_loaded
// false, per spec.md section 4.D's contract.
func LoadKeys(path string) (*Keys, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mtpz: open key bundle: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	n := make([]byte, rsaModulusSize)
	if _, err := io.ReadFull(r, n); err != nil {
		return nil, fmt.Errorf("mtpz: read RSA modulus: %w", err)
	}
	d := make([]byte, rsaExponentSize)
	if _, err := io.ReadFull(r, d); err != nil {
		return nil, fmt.Errorf("mtpz: read RSA private exponent: %w", err)
	}

	var certLen uint32
	if err := binary.Read(r, binary.LittleEndian, &certLen); err != nil {
		return nil, fmt.Errorf("mtpz: read certificate length: %w", err)
	}
	if certLen == 0 || certLen > 1<<20 {
		return nil, fmt.Errorf("mtpz: implausible certificate length %d", certLen)
	}
	cert := make([]byte, certLen)
	if _, err := io.ReadFull(r, cert); err != nil {
		return nil, fmt.Errorf("mtpz: read certificate: %w", err)
	}

	var seed [baseSeedSize]byte
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return nil, fmt.Errorf("mtpz: read base key seed: %w", err)
	}

	return &Keys{
		N:        new(big.Int).SetBytes(n),
		D:        new(big.Int).SetBytes(d),
		Cert:     cert,
		BaseSeed: seed,
	}, nil
}
