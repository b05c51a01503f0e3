//go:build !windows

package channel

import "syscall"

// socketFD is a Unix raw socket file descriptor. Grounded on the teacher's
// internal/trace/socket_unix.go, narrowed to the IPv4-only primitives the
// core engine needs (spec §1 excludes IPv6 from the core).
type socketFD int

const invalidSocket socketFD = -1

func createRawSocket(sockType, proto int) (socketFD, error) {
	fd, err := syscall.Socket(syscall.AF_INET, sockType, proto)
	if err != nil {
		return invalidSocket, err
	}
	return socketFD(fd), nil
}

func closeSocket(fd socketFD) error {
	return syscall.Close(int(fd))
}

func setSocketTTL(fd socketFD, ttl int) error {
	return syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_TTL, ttl)
}

func setSocketNonBlocking(fd socketFD) error {
	return syscall.SetNonblock(int(fd), true)
}

func connectSocket(fd socketFD, sa syscall.Sockaddr) error {
	return syscall.Connect(int(fd), sa)
}

func sendToSocket(fd socketFD, data []byte, sa syscall.Sockaddr) error {
	return syscall.Sendto(int(fd), data, 0, sa)
}

func getSocketError(fd socketFD) (int, error) {
	return syscall.GetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_ERROR)
}

func sockaddrFor(ip [4]byte, port int) syscall.Sockaddr {
	return &syscall.SockaddrInet4{Port: port, Addr: ip}
}
