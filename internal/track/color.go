package track

import "unicode/utf16"

var palette = []string{"#3b82f6", "#10b981", "#f59e0b", "#ef4444", "#a855f7", "#ec4899"}

// AgentColor picks a stable palette colour for an agent name. The hash
// matches the browser dashboards, which mix 32-bit shifts with float
// arithmetic, so existing agents keep their colours.
func AgentColor(name string) string {
	var h int64
	for _, c := range utf16.Encode([]rune(name)) {
		shifted := int64(int32(uint32(int32(h)) << 5))
		h = int64(c) + (shifted - h)
	}
	if h < 0 {
		h = -h
	}
	return palette[h%int64(len(palette))]
}
