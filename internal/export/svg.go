// Package export renders stored runs for use outside the terminal.
package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/crawlerctl/internal/sim"
)

const (
	EscColor   = "#ff4757"
	ServoColor = "#1e90ff"
	// failsafeFill marks failsafe periods behind the traces.
	failsafeFill = "#ffa50033"
)

// DutyRange fixes the vertical axis of a trace plot.
type DutyRange struct {
	Min, Max uint32
}

// TraceToSVG plots ESC and servo duty over time. Failsafe periods are
// shaded.
func TraceToSVG(samples []sim.Sample, rng DutyRange, width, height int) string {
	if len(samples) < 2 || rng.Max <= rng.Min {
		return ""
	}

	t0 := samples[0].Time
	span := float64(samples[len(samples)-1].Time - t0)
	if span == 0 {
		span = 1
	}
	x := func(s sim.Sample) float64 {
		return float64(s.Time-t0) / span * float64(width)
	}
	y := func(duty uint32) float64 {
		frac := (float64(duty) - float64(rng.Min)) / float64(rng.Max-rng.Min)
		return float64(height) - frac*float64(height)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for i := 0; i < len(samples); i++ {
		if samples[i].State != "failsafe" {
			continue
		}
		j := i
		for j+1 < len(samples) && samples[j+1].State == "failsafe" {
			j++
		}
		sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="0" width="%.1f" height="%d" fill="%s"/>
`, x(samples[i]), x(samples[j])-x(samples[i]), height, failsafeFill))
		i = j
	}

	path := func(color string, duty func(sim.Sample) uint32) {
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color))
		for i, s := range samples {
			if i == 0 {
				sb.WriteString(fmt.Sprintf("%.1f,%.1f", x(s), y(duty(s))))
			} else {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x(s), y(duty(s))))
			}
		}
		sb.WriteString("\"/>\n")
	}
	path(EscColor, func(s sim.Sample) uint32 { return s.EscDuty })
	path(ServoColor, func(s sim.Sample) uint32 { return s.ServoDuty })

	sb.WriteString("</svg>")
	return sb.String()
}
