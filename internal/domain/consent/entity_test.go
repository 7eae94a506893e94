package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.1.123", "192.168.1.xxx"},
		{"192.168.1.123:54321", "192.168.1.xxx"},
		{"10.0.0.7", "10.0.0.xxx"},
		{"[2001:db8::1]:443", "2001:db8::xxxx"},
		{"2001:db8:0:0:1:2:3:4", "2001:db8::1:2:3:xxxx"},
		{"::ffff:10.1.2.3", "10.1.2.xxx"},
		{"", "unknown"},
		{"not-an-ip", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskIP(tt.in))
		})
	}
}
