package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/san-kum/crawlerctl/internal/vehicle"
)

// Flag decodes the operator's boolean fields, which arrive either as JSON
// booleans or as 0/1.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*f = true
		return nil
	case "false", "null":
		*f = false
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("transport: flag %s: %w", data, err)
	}
	*f = n != 0
	return nil
}

// Packet is one operator frame. Absent fields decode to zero; the trim
// fields are pointers because zero is a meaningful trim.
type Packet struct {
	Throttle float64 `json:"t"`
	Steering float64 `json:"s"`
	Lights   Flag    `json:"l"`
	Horn     Flag    `json:"h"`
	// Millis is the sender's clock, often epoch milliseconds, echoed back
	// verbatim in the pong.
	Millis float64 `json:"ms"`

	Trim             *float64 `json:"trim,omitempty"`
	TrimLive         *float64 `json:"trim_live,omitempty"`
	ThrottleTrim     *float64 `json:"th_trim,omitempty"`
	ThrottleTrimLive *float64 `json:"th_trim_live,omitempty"`
	GetSettings      Flag     `json:"get_settings,omitempty"`
}

func DecodePacket(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("transport: decode packet: %w", err)
	}
	return p, nil
}

// Input converts the frame to a clamped control sample.
func (p Packet) Input() vehicle.Input {
	return vehicle.Input{
		Throttle:  p.Throttle,
		Steering:  p.Steering,
		Lights:    bool(p.Lights),
		Horn:      bool(p.Horn),
		Timestamp: p.timestamp(),
	}.Clamped()
}

// timestamp keeps the low 32 bits of a non-negative whole millisecond count.
func (p Packet) timestamp() uint32 {
	if !(p.Millis > 0) || p.Millis >= math.MaxUint64 {
		return 0
	}
	return uint32(uint64(p.Millis))
}

// Pong is the latency echo sent for every frame carrying a timestamp.
type Pong struct {
	Pong float64 `json:"pong"`
}

// Settings answers get_settings with the in-memory trims.
type Settings struct {
	Trim         float64 `json:"trim"`
	ThrottleTrim float64 `json:"th_trim"`
}
