package main

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const eraseByte = 0xff

// Region names, also used as file names inside the bundle.
const (
	regionHeader     = "header.bin"
	regionHeaderSig  = "header.sig"
	regionPayload    = "payload.bin"
	regionPayloadSig = "payload.sig"
	regionTag        = "tag.bin"
)

// region is a block of bytes placed at an absolute flash offset.
type region struct {
	name   string
	offset int
	data   []byte
}

func (r region) end() int { return r.offset + len(r.data) }

// flashBuffer grows an image front to back.
type flashBuffer struct {
	buf []byte
}

func newFlashBuffer(size int) *flashBuffer {
	return &flashBuffer{buf: make([]byte, 0, size)}
}

func (b *flashBuffer) Len() int { return len(b.buf) }

func (b *flashBuffer) Bytes() []byte { return b.buf }

func (b *flashBuffer) append(data []byte) {
	b.buf = append(b.buf, data...)
}

// fillTo pads with v up to offset; it is a no-op if already there.
func (b *flashBuffer) fillTo(offset int, v byte) {
	for len(b.buf) < offset {
		b.buf = append(b.buf, v)
	}
}

// imageParts are the independently built blocks of an image.
type imageParts struct {
	header     []byte
	headerSig  []byte
	payload    []byte
	payloadSig []byte
	tag        []byte
}

// layout places the parts at their flash offsets, in no particular order.
func (c *packConfig) layout(p *imageParts) []region {
	payloadLoc := c.HeaderLoc + c.PayloadOffset
	return []region{
		{regionHeader, c.HeaderLoc, p.header},
		{regionHeaderSig, c.HeaderLoc + headerSize, p.headerSig},
		{regionPayload, payloadLoc, p.payload},
		{regionPayloadSig, payloadLoc + len(p.payload), p.payloadSig},
		{regionTag, c.spiSizeBytes() - tagFromEnd, p.tag},
	}
}

// assemble serializes regions into a size byte image with every byte
// outside a region set to the flash erase value. The regions are sorted
// by offset in place.
func assemble(size int, regions []region) ([]byte, error) {
	for _, r := range regions {
		if r.offset < 0 || r.end() > size {
			return nil, &ImageTooSmallError{
				Region: r.name,
				Offset: r.offset,
				Length: len(r.data),
				Size:   size,
			}
		}
	}
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].offset < regions[j].offset
	})

	img := newFlashBuffer(size)
	for _, r := range regions {
		if img.Len() > r.offset {
			return nil, &OverlapError{
				Region: r.name,
				Offset: r.offset,
				Cursor: img.Len(),
			}
		}
		img.fillTo(r.offset, eraseByte)
		img.append(r.data)
	}
	img.fillTo(size, eraseByte)
	return img.Bytes(), nil
}

// packedImage is the result of a successful pack.
type packedImage struct {
	config  *packConfig
	payload *payload
	regions []region // sorted by offset
	data    []byte
}

func (pi *packedImage) region(name string) []byte {
	for _, r := range pi.regions {
		if r.name == name {
			return r.data
		}
	}
	return nil
}

// packImage builds every part and assembles the image. Nothing is written.
func packImage(c *packConfig, s signer) (*packedImage, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	p, err := readPayload(c.Input)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"input":  c.Input,
		"length": p.rawLen,
		"padded": len(p.data),
		"entry":  logHex(p.entryPoint),
	}).Debug("payload")

	parts := &imageParts{payload: p.data}
	if parts.payloadSig, err = s.sign(p.data, c.PayloadKey); err != nil {
		return nil, errors.Wrap(err, "payload signature")
	}
	key, err := s.publicKey(c.PayloadKey)
	if err != nil {
		return nil, errors.Wrap(err, "payload key")
	}
	if parts.header, err = buildHeader(c, p.entryPoint, uint32(len(p.data)), key); err != nil {
		return nil, errors.Wrap(err, "header")
	}
	if parts.headerSig, err = s.sign(parts.header, c.HeaderKey); err != nil {
		return nil, errors.Wrap(err, "header signature")
	}
	parts.tag = buildTag(c.HeaderLoc, c.ChipSelect)

	regions := c.layout(parts)
	data, err := assemble(c.spiSizeBytes(), regions)
	if err != nil {
		return nil, err
	}
	for _, r := range regions {
		logrus.WithFields(logrus.Fields{
			"offset": logHex(uint32(r.offset)),
			"length": len(r.data),
		}).Debug(r.name)
	}
	return &packedImage{
		config:  c,
		payload: p,
		regions: regions,
		data:    data,
	}, nil
}
