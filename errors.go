package main

import "fmt"

// UnsupportedClockError reports a SPI clock speed the boot ROM cannot run at.
type UnsupportedClockError struct {
	MHz int
}

func (e *UnsupportedClockError) Error() string {
	return fmt.Sprintf("unsupported SPI clock speed %d MHz", e.MHz)
}

// UnsupportedReadCmdError reports a SPI read command the boot ROM does not
// know how to issue.
type UnsupportedReadCmdError struct {
	Cmd int
}

func (e *UnsupportedReadCmdError) Error() string {
	return fmt.Sprintf("unsupported SPI read command 0x%x", e.Cmd)
}

// KeyFormatError indicates the public exponent or modulus could not be
// recovered from a private key.
type KeyFormatError struct {
	Key    string
	Reason string
}

func (e *KeyFormatError) Error() string {
	return fmt.Sprintf("key %s: %s", e.Key, e.Reason)
}

// SigningError wraps a failure of the signing backend.
type SigningError struct {
	Key string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing with %s: %v", e.Key, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// OverlapError reports a region that starts before the previous one ends.
type OverlapError struct {
	Region string
	Offset int
	Cursor int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s at 0x%x overlaps previous region ending at 0x%x",
		e.Region, e.Offset, e.Cursor)
}

// ImageTooSmallError reports a region that does not fit in the flash.
type ImageTooSmallError struct {
	Region string
	Offset int
	Length int
	Size   int
}

func (e *ImageTooSmallError) Error() string {
	return fmt.Sprintf("%s at 0x%x length %d exceeds flash size of %d",
		e.Region, e.Offset, e.Length, e.Size)
}
