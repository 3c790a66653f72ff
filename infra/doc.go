// Package infra contains technical adapters: the gomavlib transport, the
// MQTT publisher, metrics exporters, logging and error monitoring. These
// packages depend only on the interfaces defined in the core packages.
package infra
