package main

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/pkg/errors"
)

// rsaSigner signs in process. PKCS #1 v1.5 over the bare digest gives the
// same bytes as "openssl rsautl -sign".
type rsaSigner struct{}

func loadPrivateKey(pemFile string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(pemFile)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("%T is not an RSA key", parsed)
	}
	return key, nil
}

func (*rsaSigner) publicKey(pemFile string) (*publicKey, error) {
	key, err := loadPrivateKey(pemFile)
	if err != nil {
		return nil, &KeyFormatError{Key: pemFile, Reason: err.Error()}
	}
	return newPublicKey(pemFile, uint64(key.E), key.N.Bytes())
}

func (*rsaSigner) sign(data []byte, pemFile string) ([]byte, error) {
	key, err := loadPrivateKey(pemFile)
	if err != nil {
		return nil, &SigningError{Key: pemFile, Err: err}
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.Hash(0), digest[:])
	if err != nil {
		return nil, &SigningError{Key: pemFile, Err: err}
	}
	return reverse(sig), nil
}
