// Package mavlink connects the fleet to real MAVLink links through
// gomavlib. It parses connection strings, converts between gomavlib
// messages and core/protocol, and implements transport.Connection.
package mavlink
