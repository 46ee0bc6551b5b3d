package cluster

import (
	"fmt"
	"net"

	"golang.org/x/net/netutil"
)

// listen binds to address, limiting the number of concurrent connections when max > 0
func listen(address string, max int) (net.Listener, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	if max > 0 {
		lis = netutil.LimitListener(lis, max)
	}
	return lis, nil
}
