package main

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

const (
	payloadAlign      = 64
	entryPointOffset  = 4
	payloadMinimumLen = entryPointOffset + 4
)

// payload is the EC binary padded with zeros to a 64 byte boundary.
type payload struct {
	data       []byte
	rawLen     int
	entryPoint uint32
}

func newPayload(raw []byte) (*payload, error) {
	if len(raw) < payloadMinimumLen {
		return nil, errors.Errorf("payload of %d bytes has no entry point",
			len(raw))
	}
	p := &payload{
		rawLen:     len(raw),
		entryPoint: binary.LittleEndian.Uint32(raw[entryPointOffset:]),
	}
	padded := len(raw)
	if rem := padded % payloadAlign; rem != 0 {
		padded += payloadAlign - rem
	}
	p.data = make([]byte, padded)
	copy(p.data, raw)
	return p, nil
}

func readPayload(fn string) (*payload, error) {
	raw, err := os.ReadFile(fn)
	if err != nil {
		return nil, errors.Wrap(err, "reading payload")
	}
	p, err := newPayload(raw)
	if err != nil {
		return nil, errors.Wrap(err, fn)
	}
	return p, nil
}
