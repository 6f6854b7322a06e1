package main

const (
	tagSize       = 4
	tagFromEnd    = 256
	tagChipSelect = 0x80
)

// buildTag points the boot ROM at the header: bits 8-31 of the header
// location, chip select in the top bit, then the CRC of those three bytes.
func buildTag(headerLoc, chipSelect int) []byte {
	tag := []byte{
		byte(headerLoc >> 8),
		byte(headerLoc >> 16),
		byte(headerLoc >> 24),
	}
	if chipSelect != 0 {
		tag[2] |= tagChipSelect
	}
	return append(tag, crc8(0, tag))
}
