package p2pmidi

import "fmt"

// Version constants for the software and its wire protocol.
const (
	VersionMajor = 0
	VersionMinor = 1
	VersionPatch = 0

	// ProtocolVersion is advertised in the identification exchange. Peers
	// on a different protocol version are reported through
	// EventIdentified, not rejected; compatibility is the application's
	// call.
	ProtocolVersion = "/p2pmidi/0.1.0"
)

// Version returns the software version as a semantic version string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}

// UserAgent returns the agent string advertised in the identification
// exchange.
func UserAgent() string {
	return "p2pmidi/" + Version()
}

// SameProtocol reports whether a remote's advertised protocol version
// matches ours exactly. Used to flag mismatches in logs and events; a
// mismatch never closes the connection.
func SameProtocol(remote string) bool {
	return remote == ProtocolVersion
}
