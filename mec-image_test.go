package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEntryPoint = 0x00100140

func testPayloadBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 1)
	}
	binary.LittleEndian.PutUint32(b[entryPointOffset:], testEntryPoint)
	return b
}

// fakeSigner counts calls and returns fixed 256 byte blocks.
type fakeSigner struct {
	calls int
}

func (f *fakeSigner) publicKey(string) (*publicKey, error) {
	f.calls++
	return testPublicKey(), nil
}

func (f *fakeSigner) sign(data []byte, _ string) ([]byte, error) {
	f.calls++
	sig := make([]byte, modulusSize)
	for i := range sig {
		sig[i] = byte(len(data) + i)
	}
	return sig, nil
}

// testConfig writes a payload of n bytes into dir and returns a config
// pointing at it.
func testConfig(t *testing.T, dir string, n int) *packConfig {
	t.Helper()
	cfg := defaultConfig()
	cfg.Input = filepath.Join(dir, "ec.bin")
	cfg.Output = filepath.Join(dir, "ec.packed.bin")
	cfg.HeaderKey = filepath.Join(dir, "header.pem")
	cfg.PayloadKey = filepath.Join(dir, "payload.pem")
	require.NoError(t, os.WriteFile(cfg.Input, testPayloadBytes(n), 0644))
	return &cfg
}

func assertErased(t *testing.T, img []byte, from, to int) {
	t.Helper()
	for i := from; i < to; i++ {
		if img[i] != eraseByte {
			t.Fatalf("byte 0x%x is 0x%02x, want 0xff", i, img[i])
		}
	}
}

func TestFlashBuffer(t *testing.T) {
	b := newFlashBuffer(8)
	b.fillTo(2, eraseByte)
	b.append([]byte{1, 2})
	b.fillTo(3, eraseByte)
	b.fillTo(6, 0)
	assert.Equal(t, 6, b.Len())
	assert.Equal(t, []byte{0xff, 0xff, 1, 2, 0, 0}, b.Bytes())
}

func TestAssemble(t *testing.T) {
	regions := []region{
		{"c", 12, []byte{7, 8}},
		{"a", 2, []byte{1, 2, 3}},
		{"b", 5, []byte{4, 5, 6}},
	}
	img, err := assemble(16, regions)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0xff, 0xff, 1, 2, 3, 4, 5, 6,
		0xff, 0xff, 0xff, 0xff, 7, 8, 0xff, 0xff,
	}, img)
	assert.Equal(t, "a", regions[0].name, "regions are sorted in place")
}

func TestAssembleExactFit(t *testing.T) {
	img, err := assemble(4, []region{{"all", 0, []byte{1, 2, 3, 4}}})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, img)

	img, err = assemble(4, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, img)
}

func TestAssembleOverlap(t *testing.T) {
	_, err := assemble(16, []region{
		{"a", 0, []byte{1, 2, 3, 4}},
		{"b", 3, []byte{5}},
	})
	var oe *OverlapError
	require.True(t, errors.As(err, &oe), "got %v", err)
	assert.Equal(t, "b", oe.Region)
	assert.Equal(t, 3, oe.Offset)
	assert.Equal(t, 4, oe.Cursor)
}

func TestAssembleTooSmall(t *testing.T) {
	tests := []struct {
		name   string
		region region
	}{
		{"past end", region{"a", 14, []byte{1, 2, 3}}},
		{"negative", region{"a", -1, []byte{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assemble(16, []region{tt.region})
			var ite *ImageTooSmallError
			require.True(t, errors.As(err, &ite), "got %v", err)
			assert.Equal(t, 16, ite.Size)
		})
	}
}

func TestPackImageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 1000)
	cfg.Signer = signerRSA
	writeTestKey(t, dir, "header.pem", testKey(t, 0), false)
	writeTestKey(t, dir, "payload.pem", testKey(t, 1), true)

	s := &rsaSigner{}
	pi, err := packImage(cfg, s)
	require.NoError(t, err)

	const size = 4096 * 1024
	img := pi.data
	require.Len(t, img, size)

	p, err := newPayload(testPayloadBytes(1000))
	require.NoError(t, err)
	key, err := s.publicKey(cfg.PayloadKey)
	require.NoError(t, err)
	header, err := buildHeader(cfg, testEntryPoint, uint32(len(p.data)), key)
	require.NoError(t, err)
	headerSig, err := s.sign(header, cfg.HeaderKey)
	require.NoError(t, err)
	payloadSig, err := s.sign(p.data, cfg.PayloadKey)
	require.NoError(t, err)
	require.Len(t, headerSig, 256)

	payloadEnd := 0x240 + len(p.data)
	assert.Equal(t, header, img[0:0x140])
	assert.Equal(t, headerSig, img[0x140:0x240])
	assert.Equal(t, p.data, img[0x240:payloadEnd])
	assert.Equal(t, payloadSig, img[payloadEnd:payloadEnd+256])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x55}, img[size-256:size-252])
	assertErased(t, img, payloadEnd+256, size-256)
	assertErased(t, img, size-252, size)

	assert.Equal(t, byte(1024>>6), img[0x10], "padded length is encoded")
	assert.Equal(t, header, pi.region(regionHeader))
	assert.Nil(t, pi.region("missing"))
}

func TestPackImageGap(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 64)
	cfg.HeaderLoc = 0x1000
	cfg.PayloadOffset = 0x400
	cfg.ChipSelect = 1
	cfg.SpiSize = 64

	pi, err := packImage(cfg, &fakeSigner{})
	require.NoError(t, err)
	img := pi.data
	require.Len(t, img, 64*1024)

	assertErased(t, img, 0, 0x1000)
	assert.Equal(t, []byte("CSMS\x00"), img[0x1000:0x1005])
	assertErased(t, img, 0x1240, 0x1400)
	assert.Equal(t, testPayloadBytes(64), img[0x1400:0x1440])
	assertErased(t, img, 0x1540, 64*1024-256)

	tag := img[64*1024-256 : 64*1024-252]
	assert.Equal(t, []byte{0x10, 0x00, 0x80}, tag[:3])
	assert.Equal(t, crc8(0, tag[:3]), tag[3])
	assertErased(t, img, 64*1024-252, 64*1024)
}

func TestPackImageValidatesFirst(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *packConfig)
		check  func(t *testing.T, err error)
	}{
		{"clock", func(c *packConfig) { c.SpiClock = 33 }, func(t *testing.T, err error) {
			var e *UnsupportedClockError
			assert.True(t, errors.As(err, &e), "got %v", err)
		}},
		{"read command", func(c *packConfig) { c.SpiReadCmd = 0x0 }, func(t *testing.T, err error) {
			var e *UnsupportedReadCmdError
			assert.True(t, errors.As(err, &e), "got %v", err)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Input = filepath.Join(t.TempDir(), "does-not-exist")
			tt.mutate(&cfg)
			fs := &fakeSigner{}
			_, err := packImage(&cfg, fs)
			tt.check(t, err)
			assert.Zero(t, fs.calls, "signer called before validation")
		})
	}
}

func TestPackImageOverlap(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), 64)
	cfg.PayloadOffset = 0x200

	_, err := packImage(cfg, &fakeSigner{})
	var oe *OverlapError
	require.True(t, errors.As(err, &oe), "got %v", err)
	assert.Equal(t, regionPayload, oe.Region)
}

func TestPackImageTagCollision(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), 64)
	cfg.SpiSize = 1
	cfg.PayloadOffset = 0x240

	_, err := packImage(cfg, &fakeSigner{})
	var oe *OverlapError
	require.True(t, errors.As(err, &oe), "got %v", err)
	assert.Equal(t, regionTag, oe.Region)
}

func TestPackImageTooSmall(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), 1024)
	cfg.SpiSize = 1

	_, err := packImage(cfg, &fakeSigner{})
	var ite *ImageTooSmallError
	require.True(t, errors.As(err, &ite), "got %v", err)
}

func TestPackImageSignerFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 64)

	_, err := packImage(cfg, &rsaSigner{})
	var se *SigningError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, cfg.PayloadKey, se.Key)
}

func TestLayoutOffsets(t *testing.T) {
	cfg := defaultConfig()
	cfg.HeaderLoc = 0x100
	parts := &imageParts{
		header:     make([]byte, headerSize),
		headerSig:  make([]byte, 256),
		payload:    make([]byte, 128),
		payloadSig: make([]byte, 256),
		tag:        make([]byte, tagSize),
	}
	var offsets []int
	for _, r := range cfg.layout(parts) {
		offsets = append(offsets, r.offset)
	}
	assert.Equal(t, []int{
		0x100,
		0x100 + 0x140,
		0x100 + 0x240,
		0x100 + 0x240 + 128,
		4096*1024 - 256,
	}, offsets)
}

func TestPackImageDeterministic(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), 300)
	a, err := packImage(cfg, &fakeSigner{})
	require.NoError(t, err)
	b, err := packImage(cfg, &fakeSigner{})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a.data, b.data))
}
