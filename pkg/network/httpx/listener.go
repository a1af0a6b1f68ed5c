package httpx

import (
	"net"
	"strconv"

	"github.com/classkit/collab/pkg/network/socket"
)

const maxPortRollAttempts = 42

type Listener struct {
	net.Listener
}

func NewListener(address string, rollPorts bool) (*Listener, error) {
	ls, err := net.Listen("tcp4", address)
	if err != nil {
		if rollPorts && socket.IsPortBusyError(err) {
			host, port := Address(address).SplitHostPort()
			for i := port + 1; i < port+maxPortRollAttempts; i++ {
				ls, err = net.Listen("tcp4", host+":"+strconv.Itoa(i))
				if err == nil {
					return &Listener{ls}, err
				}
			}
		}
		return nil, err
	}
	return &Listener{ls}, err
}

func (l Listener) GetPort() int {
	if l.Listener == nil {
		return 0
	}
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
