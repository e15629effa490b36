package chat

import (
	"fmt"
	"strconv"
	"strings"
)

// Packet is one streamed fragment of a narrator response.
type Packet struct {
	StreamID int64
	PacketID int
	Delta    string
}

// FormatPacket encodes a packet as "{streamId}|{packetId}|{delta}".
func FormatPacket(p Packet) string {
	return fmt.Sprintf("%d|%d|%s", p.StreamID, p.PacketID, p.Delta)
}

// ParsePacket decodes the message-stream wire format. The delta may itself
// contain pipes, so everything after the second pipe belongs to it.
func ParsePacket(s string) (Packet, error) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 {
		return Packet{}, fmt.Errorf("malformed packet %q", s)
	}
	streamID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Packet{}, fmt.Errorf("invalid stream id: %w", err)
	}
	packetID, err := strconv.Atoi(parts[1])
	if err != nil {
		return Packet{}, fmt.Errorf("invalid packet id: %w", err)
	}
	return Packet{StreamID: streamID, PacketID: packetID, Delta: parts[2]}, nil
}
