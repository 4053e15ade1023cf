package netx

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalIP(t *testing.T) {
	ip := net.ParseIP(LocalIP())
	if assert.NotNil(t, ip) {
		assert.NotNil(t, ip.To4())
	}
}

func TestFirstIPv4(t *testing.T) {
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("127.0.0.1")},
		&net.IPNet{IP: net.ParseIP("fe80::1")},
		&net.IPNet{IP: net.ParseIP("169.254.3.4")},
		&net.IPAddr{IP: net.ParseIP("10.1.2.3")},
	}
	assert.Equal(t, "10.1.2.3", firstIPv4(addrs))
	assert.Empty(t, firstIPv4(nil))
}

func TestIsTimeout(t *testing.T) {
	err := fmt.Errorf("dial redis: %w", &net.DNSError{Err: "timeout", IsTimeout: true})
	assert.True(t, IsTimeout(err))
	assert.False(t, IsTimeout(errors.New("plain")))
}
