package p2pmidi

import (
	"fmt"
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	want := fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
	if Version() != want {
		t.Errorf("Version() = %q, want %q", Version(), want)
	}
}

func TestProtocolVersion_CarriesVersion(t *testing.T) {
	if !strings.HasSuffix(ProtocolVersion, Version()) {
		t.Errorf("ProtocolVersion %q should end with %q", ProtocolVersion, Version())
	}
	if !strings.HasPrefix(ProtocolVersion, "/p2pmidi/") {
		t.Errorf("ProtocolVersion %q should be namespaced", ProtocolVersion)
	}
}

func TestUserAgent(t *testing.T) {
	if UserAgent() != "p2pmidi/"+Version() {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}

func TestSameProtocol(t *testing.T) {
	if !SameProtocol(ProtocolVersion) {
		t.Error("own protocol version should match")
	}
	if SameProtocol("/p2pmidi/0.2.0") {
		t.Error("different version should not match")
	}
	if SameProtocol("") {
		t.Error("empty version should not match")
	}
}
