// File: version/version.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire protocol versioning. A Policy carries the local version and two
// compatibility floors: MinCompatible for established connections and
// HandshakeMinimum for the negotiation exchange, which is deliberately
// more permissive since neither side knows the negotiated version yet.

package version

import "fmt"

// ID is a wire protocol version identifier.
type ID int32

// Policy is the local node's version stance. Immutable.
type Policy struct {
	// Current is the version this node speaks natively.
	Current ID

	// MinCompatible is the oldest version accepted on regular traffic.
	MinCompatible ID

	// HandshakeMinimum is the oldest version accepted during the
	// handshake. It must not exceed MinCompatible: an old and a new node
	// need to agree on some usable version before either commits.
	HandshakeMinimum ID
}

// IncompatibleError reports a remote version outside the applicable
// compatibility window.
type IncompatibleError struct {
	Remote    ID
	Minimum   ID
	Handshake bool
}

func (e *IncompatibleError) Error() string {
	kind := ""
	if e.Handshake {
		kind = "handshake "
	}
	return fmt.Sprintf("received %smessage from unsupported version: [%d] minimal compatible version is: [%d]",
		kind, e.Remote, e.Minimum)
}

// Check validates a remote version against the policy. handshake
// selects the permissive floor used before negotiation completes.
func (p Policy) Check(remote ID, handshake bool) error {
	minimum := p.MinCompatible
	if handshake {
		minimum = p.HandshakeMinimum
	}
	if remote < minimum {
		return &IncompatibleError{Remote: remote, Minimum: minimum, Handshake: handshake}
	}
	return nil
}

// Negotiate returns the version both ends understand: the smaller of
// the local and remote versions. This is the single place cross-version
// compatibility is decided; everything sent on an established
// connection uses the value returned here.
func (p Policy) Negotiate(remote ID) ID {
	if remote < p.Current {
		return remote
	}
	return p.Current
}

// WireVersion is the version written on handshake frames: the regular
// floor rather than Current, so an older peer can still read the frame.
func (p Policy) WireVersion() ID {
	return p.MinCompatible
}
