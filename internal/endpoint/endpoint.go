// Package endpoint canonicalizes websocket endpoint addresses.
package endpoint

import "strings"

// Fix returns address as a websocket URL. ws:// and wss:// addresses are
// returned unchanged, http:// and https:// become ws:// and wss://, and
// anything else gets a ws:// prefix.
func Fix(address string) string {
	switch {
	case strings.HasPrefix(address, "ws://"), strings.HasPrefix(address, "wss://"):
		return address
	case strings.HasPrefix(address, "http://"), strings.HasPrefix(address, "https://"):
		return "ws" + strings.TrimPrefix(address, "http")
	default:
		return "ws://" + address
	}
}
