package mavlink

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3"

	"github.com/kilianp07/skylink/core/transport"
)

// DefaultBaud is used for serial links without an explicit rate.
const DefaultBaud = 115200

// ParseEndpoint turns a connection string into a gomavlib endpoint:
//
//	udp:host:port, udpin:host:port   listen for UDP
//	udpout:host:port                 UDP client
//	udpbcast:host:port               UDP broadcast
//	tcp:host:port                    TCP client
//	tcpin:host:port                  TCP server
//	/dev/ttyUSB0[,baud]              serial
//	serial:/dev/ttyUSB0[:baud]       serial
func ParseEndpoint(uri string) (gomavlib.EndpointConf, error) {
	uri = strings.TrimSpace(uri)
	if strings.HasPrefix(uri, "/dev/") {
		dev, baud, err := splitBaud(uri, ",")
		if err != nil {
			return nil, invalid(uri, err)
		}
		return gomavlib.EndpointSerial{Device: dev, Baud: baud}, nil
	}

	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok || rest == "" {
		return nil, invalid(uri, fmt.Errorf("missing scheme"))
	}
	if scheme == "serial" {
		dev, baud, err := splitBaud(rest, ":")
		if err != nil {
			return nil, invalid(uri, err)
		}
		return gomavlib.EndpointSerial{Device: dev, Baud: baud}, nil
	}

	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return nil, invalid(uri, err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return nil, invalid(uri, fmt.Errorf("bad port %q", port))
	}
	addr := net.JoinHostPort(host, port)
	switch scheme {
	case "udp", "udpin":
		return gomavlib.EndpointUDPServer{Address: addr}, nil
	case "udpout":
		return gomavlib.EndpointUDPClient{Address: addr}, nil
	case "udpbcast":
		return gomavlib.EndpointUDPBroadcast{BroadcastAddress: addr, LocalAddress: net.JoinHostPort("", port)}, nil
	case "tcp":
		return gomavlib.EndpointTCPClient{Address: addr}, nil
	case "tcpin":
		return gomavlib.EndpointTCPServer{Address: addr}, nil
	default:
		return nil, invalid(uri, fmt.Errorf("unknown scheme %q", scheme))
	}
}

func splitBaud(s, sep string) (string, int, error) {
	dev, rate, found := strings.Cut(s, sep)
	if dev == "" {
		return "", 0, fmt.Errorf("missing device")
	}
	if !found {
		return dev, DefaultBaud, nil
	}
	baud, err := strconv.Atoi(rate)
	if err != nil || baud <= 0 {
		return "", 0, fmt.Errorf("bad baud rate %q", rate)
	}
	return dev, baud, nil
}

func invalid(uri string, err error) error {
	return fmt.Errorf("%w %q: %v", transport.ErrInvalidEndpoint, uri, err)
}
