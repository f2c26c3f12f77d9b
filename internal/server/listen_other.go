//go:build !unix

package server

import (
	"net"
)

// listen falls back to the platform default backlog.
func listen(ip net.IP, port, _ int) (*net.TCPListener, error) {
	return net.ListenTCP("tcp4", &net.TCPAddr{IP: ip, Port: port})
}
