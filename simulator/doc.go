// Package simulator provides scripted MAVLink vehicles. A Vehicle answers
// the mission handshake according to its MissionStrategy, acknowledges
// commands, follows mode changes and streams telemetry on any
// transport.Connection, so the same code drives unit tests over in-memory
// links and `skylink sim` over UDP.
package simulator
