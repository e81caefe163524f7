package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

var (
	// qcow2Magic is "QFI\xfb", the first four bytes of every QCOW2 header.
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// mbrSignature sits at offset 510 of the first sector on bootable
	// disks. GPT disks carry it too, in the protective MBR.
	mbrSignature = []byte{0x55, 0xaa}
)

// DetectImageFormat sniffs a disk image's format from its magic bytes:
// VolumeFormatQCOW2 on the QCOW2 header magic, VolumeFormatRaw on an MBR
// boot signature. Anything else errors, which is how the image cache
// rejects a truncated download or an HTML error page saved as an image
// before it ever reaches a VM.
func DetectImageFormat(filePath string) (VolumeFormat, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return "", fmt.Errorf("file too small to be valid image (< 4 bytes): %w", err)
	}
	if bytes.Equal(magic, qcow2Magic) {
		return VolumeFormatQCOW2, nil
	}

	if _, err := f.Seek(510, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to seek to boot sector signature: %w", err)
	}
	sig := make([]byte, 2)
	if _, err := io.ReadFull(f, sig); err != nil {
		return "", fmt.Errorf("file too small for boot sector (< 512 bytes): %w", err)
	}
	if bytes.Equal(sig, mbrSignature) {
		return VolumeFormatRaw, nil
	}

	return "", fmt.Errorf("unsupported or invalid image: not qcow2 and missing boot sector signature (0x55aa at offset 510)")
}
