package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/deviceauth"
)

// DeviceNameHeader carries the client-chosen display name of a device.
const DeviceNameHeader = "X-Device-Name"

const maxDeviceNameLen = 128

// DeviceFromRequest extracts the device descriptor of r. The IP is the first
// X-Forwarded-For hop when present, else the connection's remote address.
func DeviceFromRequest(r *http.Request) deviceauth.DeviceInfo {
	return deviceauth.DeviceInfo{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Name:      truncate(strings.TrimSpace(r.Header.Get(DeviceNameHeader)), maxDeviceNameLen),
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
