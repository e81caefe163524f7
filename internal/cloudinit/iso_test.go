package cloudinit

import (
	"bytes"
	"testing"
)

func TestGenerateISO_ContainsExpectedFiles(t *testing.T) {
	data, err := GenerateISO(testVM(), false)
	if err != nil {
		t.Fatalf("GenerateISO: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty ISO bytes")
	}
	for _, want := range []string{"user-data", "meta-data", "network-config"} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("expected ISO image to reference %q somewhere in its directory records", want)
		}
	}
}

func TestGenerateISO_VolumeLabelIsLowercaseCidata(t *testing.T) {
	data, err := GenerateISO(testVM(), false)
	if err != nil {
		t.Fatalf("GenerateISO: %v", err)
	}

	// The primary volume descriptor's volume identifier lives at a fixed
	// offset within sector 16 (the PVD), padded with spaces to 32 bytes.
	const pvdSector = 16 * 2048
	const volIDOffset = 40
	const volIDLen = 32
	if len(data) < pvdSector+volIDOffset+volIDLen {
		t.Fatal("ISO too small to contain a primary volume descriptor")
	}
	label := string(bytes.TrimRight(data[pvdSector+volIDOffset:pvdSector+volIDOffset+volIDLen], " "))
	if label != cidataVolumeLabel {
		t.Errorf("expected volume label %q, got %q", cidataVolumeLabel, label)
	}
	if label == "CIDATA" {
		t.Error("volume label must be lowercase cidata, not uppercase")
	}
}
