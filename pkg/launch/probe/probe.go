// Package probe opens listening sockets on the first free port at or above
// a hint.
package probe

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// minPort is where probing starts when the hint is in the privileged range.
const minPort = 1024

// Opener listens on TCP ports, probing upward from the hint.
type Opener struct {
	// Network defaults to "tcp4".
	Network string
}

// Listen returns a listener on host bound to the first port at or above
// portHint that is not in use.
func (o Opener) Listen(host string, portHint uint16) (net.Listener, uint16, error) {
	network := o.Network
	if network == "" {
		network = "tcp4"
	}
	port := int(portHint)
	if port < minPort {
		port = minPort
	}
	for ; port <= 65535; port++ {
		ln, err := net.Listen(network, net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, uint16(port), nil
		}
		if !errors.Is(err, unix.EADDRINUSE) {
			return nil, 0, err
		}
	}
	return nil, 0, fmt.Errorf("no free port on %s above %d", host, portHint)
}
