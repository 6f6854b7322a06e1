package main

// CRC-8 (polynomial 0x07) folded into a 16 entry nibble table.
var crc8Table = [16]byte{
	0x00, 0x07, 0x0e, 0x09, 0x1c, 0x1b, 0x12, 0x15,
	0x38, 0x3f, 0x36, 0x31, 0x24, 0x23, 0x2a, 0x2d,
}

const crc8Whitening = 0x55

// crc8 updates crc over data a nibble at a time, high nibble first, and
// returns the whitened result the boot ROM expects in the tag.
func crc8(crc byte, data []byte) byte {
	for _, v := range data {
		crc = (crc << 4) ^ crc8Table[(crc>>4)^(v>>4)]
		crc = (crc << 4) ^ crc8Table[(crc>>4)^(v&0xf)]
	}
	return crc ^ crc8Whitening
}
