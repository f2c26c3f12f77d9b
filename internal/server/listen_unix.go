//go:build unix

package server

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listen binds ip:port and listens with an explicit backlog, which net.Listen does not expose.
func listen(ip net.IP, port, backlog int) (*net.TCPListener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip.To4())

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	// FileListener dups the descriptor, so the file is closed either way.
	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp:%s:%d", ip, port))
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, err
	}

	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("unexpected listener type %T", ln)
	}
	return tcp, nil
}
