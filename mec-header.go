package main

import (
	"bytes"
	"encoding/binary"
)

const (
	loadAddr   = 0x100000
	headerSize = 0x140
)

var headerID = [5]byte{'C', 'S', 'M', 'S', 0}

// MECHeader is the boot ROM header in flash order. Blank fields are the
// zero filled gaps between fields; encoding/binary writes them as zeros.
type MECHeader struct {
	ID            [5]byte // identifier and header version
	_             [1]byte
	SpiClock      uint8 // index into spiClockList
	SpiReadCmd    uint8 // index into spiReadCmdList
	LoadAddr      uint32
	EntryPoint    uint32
	PayloadLenLo  uint8 // payload length bits 6-13
	PayloadLenHi  uint8 // payload length bits 14-21
	_             [2]byte
	PayloadOffset uint32 // from the start of the header
	_             [8]byte
	PubExponent   [exponentSize]byte
	_             [8]byte
	PubModulus    [modulusSize]byte
	_             [16]byte
}

func newMECHeader(c *packConfig, entryPoint, payloadLen uint32, key *publicKey) (h MECHeader, err error) {
	if h.SpiClock, err = c.spiClockIndex(); err != nil {
		return
	}
	if h.SpiReadCmd, err = c.spiReadCmdIndex(); err != nil {
		return
	}
	h.ID = headerID
	h.LoadAddr = loadAddr
	h.EntryPoint = entryPoint
	h.PayloadLenLo = uint8(payloadLen >> 6)
	h.PayloadLenHi = uint8(payloadLen >> 14)
	h.PayloadOffset = uint32(c.PayloadOffset)
	h.PubExponent = key.Exponent
	h.PubModulus = key.Modulus
	return
}

// buildHeader returns the 0x140 byte header for a payload of payloadLen
// (padded) bytes signed by key.
func buildHeader(c *packConfig, entryPoint, payloadLen uint32, key *publicKey) ([]byte, error) {
	h, err := newMECHeader(c, entryPoint, payloadLen, key)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, headerSize))
	if err = binary.Write(buf, binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
