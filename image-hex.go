package main

import (
	"bytes"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

const hexLineLength = 16

// intelHex renders only the placed regions; erased gaps are left out so a
// programmer can skip them.
func (pi *packedImage) intelHex() ([]byte, error) {
	mem := gohex.NewMemory()
	for _, r := range pi.regions {
		if err := mem.AddBinary(uint32(r.offset), r.data); err != nil {
			return nil, errors.Wrapf(err, "adding %s", r.name)
		}
	}
	var buf bytes.Buffer
	if err := mem.DumpIntelHex(&buf, hexLineLength); err != nil {
		return nil, errors.Wrap(err, "dumping intel hex")
	}
	return buf.Bytes(), nil
}
