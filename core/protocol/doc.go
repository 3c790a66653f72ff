// Package protocol is the decoded form of the MAVLink traffic skylink speaks.
//
// Every supported message kind is its own struct implementing Message, so
// consumers switch on the concrete type instead of probing fields. Encoding
// to and from the wire happens in infra/mavlink.
package protocol
