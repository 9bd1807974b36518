package export

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/crawlerctl/internal/sim"
	"github.com/san-kum/crawlerctl/internal/storage"
)

type ExportData struct {
	Run     storage.RunMetadata `json:"run"`
	Samples []SampleData        `json:"samples"`
}

type SampleData struct {
	TimeMs       int64   `json:"time_ms"`
	State        string  `json:"state"`
	ReverseArmed bool    `json:"reverse_armed"`
	RawThrottle  float64 `json:"raw_throttle"`
	RawSteering  float64 `json:"raw_steering"`
	Throttle     float64 `json:"throttle"`
	Steering     float64 `json:"steering"`
	EscDuty      uint32  `json:"esc_duty"`
	ServoDuty    uint32  `json:"servo_duty"`
	Lights       bool    `json:"lights"`
	Horn         bool    `json:"horn"`
}

func NewExportData(meta storage.RunMetadata, samples []sim.Sample) ExportData {
	data := ExportData{Run: meta, Samples: make([]SampleData, len(samples))}
	for i, s := range samples {
		data.Samples[i] = SampleData{
			TimeMs:       s.Time.Milliseconds(),
			State:        s.State,
			ReverseArmed: s.ReverseArmed,
			RawThrottle:  s.RawThrottle,
			RawSteering:  s.RawSteering,
			Throttle:     s.Throttle,
			Steering:     s.Steering,
			EscDuty:      s.EscDuty,
			ServoDuty:    s.ServoDuty,
			Lights:       s.Lights,
			Horn:         s.Horn,
		}
	}
	return data
}

func WriteJSON(w io.Writer, meta storage.RunMetadata, samples []sim.Sample) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(meta, samples))
}

func ExportJSON(path string, meta storage.RunMetadata, samples []sim.Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, meta, samples)
}
