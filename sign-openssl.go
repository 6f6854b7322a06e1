package main

import (
	"crypto/sha256"
	"os"

	"github.com/pkg/errors"
)

// opensslSigner shells out to the openssl command line tool.
type opensslSigner struct{}

func (*opensslSigner) publicKey(pemFile string) (*publicKey, error) {
	out, err := commandOutput("openssl", "rsa", "-in", pemFile,
		"-text", "-noout")
	if err != nil {
		return nil, &KeyFormatError{Key: pemFile, Reason: err.Error()}
	}
	return parseKeyText(pemFile, out)
}

func (*opensslSigner) sign(data []byte, pemFile string) ([]byte, error) {
	hashFile, err := tempFile("ecpack-hash-")
	if err != nil {
		return nil, &SigningError{Key: pemFile, Err: err}
	}
	defer rm(hashFile)
	signFile, err := tempFile("ecpack-sign-")
	if err != nil {
		return nil, &SigningError{Key: pemFile, Err: err}
	}
	defer rm(signFile)

	digest := sha256.Sum256(data)
	if err = os.WriteFile(hashFile, digest[:], 0600); err != nil {
		return nil, &SigningError{Key: pemFile, Err: err}
	}
	if err = commandRun("openssl", "rsautl", "-sign", "-inkey", pemFile,
		"-keyform", "PEM", "-in", hashFile, "-out", signFile); err != nil {
		return nil, &SigningError{Key: pemFile, Err: err}
	}
	signed, err := os.ReadFile(signFile)
	if err != nil {
		return nil, &SigningError{Key: pemFile, Err: err}
	}
	if len(signed) == 0 {
		return nil, &SigningError{Key: pemFile,
			Err: errors.New("openssl produced an empty signature")}
	}
	return reverse(signed), nil
}

func tempFile(prefix string) (string, error) {
	f, err := os.CreateTemp("", prefix)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err = f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
