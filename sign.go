package main

import (
	"bufio"
	"encoding/binary"
	"strconv"
	"strings"
)

const (
	modulusSize  = 256
	exponentSize = 8
)

const (
	signerOpenSSL = "openssl"
	signerRSA     = "rsa"
)

// publicKey is the payload key as the boot ROM reads it out of the header:
// a little endian exponent and a byte reversed modulus.
type publicKey struct {
	Exponent [exponentSize]byte
	Modulus  [modulusSize]byte
}

// signer produces the key material and signature blocks placed in the
// image. Signatures are returned byte reversed.
type signer interface {
	publicKey(pemFile string) (*publicKey, error)
	sign(data []byte, pemFile string) ([]byte, error)
}

var signerBackends = map[string]func() signer{
	signerOpenSSL: func() signer { return &opensslSigner{} },
	signerRSA:     func() signer { return &rsaSigner{} },
}

func newSigner(name string) signer {
	if mk, ok := signerBackends[name]; ok {
		return mk()
	}
	return nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// newPublicKey packs a big endian modulus and the exponent. A 2048 bit
// modulus is required; leading zero bytes are tolerated.
func newPublicKey(key string, exponent uint64, modulus []byte) (*publicKey, error) {
	for len(modulus) > modulusSize && modulus[0] == 0 {
		modulus = modulus[1:]
	}
	if len(modulus) != modulusSize {
		return nil, &KeyFormatError{
			Key:    key,
			Reason: "modulus is " + strconv.Itoa(len(modulus)) + " bytes, want 256",
		}
	}
	pk := &publicKey{}
	binary.LittleEndian.PutUint64(pk.Exponent[:], exponent)
	copy(pk.Modulus[:], reverse(modulus))
	return pk, nil
}

// parseKeyText recovers the public exponent and modulus from the output of
// "openssl rsa -text -noout".
func parseKeyText(key, text string) (*publicKey, error) {
	var (
		modulus     []byte
		exponent    uint64
		hasExponent bool
		inModulus   bool
	)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "modulus"):
			inModulus = true
		case !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t"):
			inModulus = false
		case inModulus:
			for _, h := range strings.Split(strings.Trim(strings.TrimSpace(line), ":"), ":") {
				b, err := strconv.ParseUint(h, 16, 8)
				if err != nil {
					return nil, &KeyFormatError{Key: key,
						Reason: "bad modulus byte " + strconv.Quote(h)}
				}
				modulus = append(modulus, byte(b))
			}
		}
		if strings.HasPrefix(line, "publicExponent") {
			f := strings.Fields(line)
			if len(f) < 2 {
				return nil, &KeyFormatError{Key: key, Reason: "empty publicExponent"}
			}
			e, err := strconv.ParseUint(f[1], 10, 64)
			if err != nil {
				return nil, &KeyFormatError{Key: key,
					Reason: "bad publicExponent " + strconv.Quote(f[1])}
			}
			exponent, hasExponent = e, true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &KeyFormatError{Key: key, Reason: err.Error()}
	}
	if !hasExponent {
		return nil, &KeyFormatError{Key: key, Reason: "no publicExponent"}
	}
	if len(modulus) == 0 {
		return nil, &KeyFormatError{Key: key, Reason: "no modulus"}
	}
	return newPublicKey(key, exponent, modulus)
}
