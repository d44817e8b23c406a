// Package rtc holds the WebRTC settings handed to clients. Media flows
// peer-to-peer; the server never opens a peer connection itself.
package rtc

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

// ICEServers builds the client ICE configuration from server URLs. Entries
// may carry credentials as "turn:host:port|user|secret".
func ICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		urls = []string{defaultSTUN}
	}
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, raw := range urls {
		parts := strings.Split(strings.TrimSpace(raw), "|")
		if parts[0] == "" {
			continue
		}
		s := webrtc.ICEServer{URLs: []string{parts[0]}}
		if len(parts) == 3 {
			s.Username = parts[1]
			s.Credential = parts[2]
		}
		out = append(out, s)
	}
	return out
}
