package naming

import (
	"strings"
	"testing"
)

func TestMACFromName(t *testing.T) {
	got := MACFromName("web-server")
	if !strings.HasPrefix(got, "be:ef:") {
		t.Errorf("MACFromName() = %v, want be:ef: prefix", got)
	}
	if len(strings.Split(got, ":")) != 6 {
		t.Errorf("MACFromName() = %v, want six octets", got)
	}
	if got != MACFromName("web-server") {
		t.Errorf("MACFromName() is not deterministic")
	}
	if MACFromName("web-server") == MACFromName("other-vm") {
		t.Errorf("MACFromName() collided for distinct names")
	}
}

func TestInterfaceNameFromName(t *testing.T) {
	got := InterfaceNameFromName("web-server")
	if !strings.HasPrefix(got, "vm") {
		t.Errorf("InterfaceNameFromName() = %v, want vm prefix", got)
	}
	if len(got) > 15 {
		t.Errorf("InterfaceNameFromName() = %v, exceeds Linux 15-char ifname limit", got)
	}
	if got != InterfaceNameFromName("web-server") {
		t.Errorf("InterfaceNameFromName() is not deterministic")
	}
}
