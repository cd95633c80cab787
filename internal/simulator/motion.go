package simulator

import (
	"math"
	"time"

	"github.com/muurk/accelsock/internal/telemetry"
)

// StandardGravity in m/s².
const StandardGravity = 9.81

// MaxTilt is the largest pitch or roll, in radians, a Motion accepts.
const MaxTilt = math.Pi / 2

// Motion produces synthetic accelerometer readings: a device lying flat
// (gravity on Z), tilted by Pitch and Roll, with a gentle sinusoidal sway.
// The same t always yields the same reading.
type Motion struct {
	Gravity   float64       // m/s², default StandardGravity
	Amplitude float64       // sway amplitude in m/s²
	Period    time.Duration // sway period
	Pitch     float64       // radians, tilts gravity onto Y
	Roll      float64       // radians, tilts gravity onto X
}

// NewMotion returns a Motion with a half-metre-per-second² sway every two
// seconds and no tilt.
func NewMotion() *Motion {
	return &Motion{
		Gravity:   StandardGravity,
		Amplitude: 0.5,
		Period:    2 * time.Second,
	}
}

// Next returns the reading at time t since the simulation started.
func (m *Motion) Next(t time.Duration) telemetry.Reading {
	g := m.Gravity

	r := telemetry.Reading{
		X: g * math.Sin(m.Roll),
		Y: g * math.Sin(m.Pitch),
		Z: g * math.Cos(m.Roll) * math.Cos(m.Pitch),
	}

	if m.Amplitude != 0 && m.Period > 0 {
		phase := 2 * math.Pi * float64(t) / float64(m.Period)
		r.X += m.Amplitude * math.Sin(phase)
		r.Y += m.Amplitude / 2 * math.Sin(2*phase)
	}

	return r
}

// Tilt adjusts pitch and roll by the given deltas, clamped to ±MaxTilt.
func (m *Motion) Tilt(dPitch, dRoll float64) {
	m.Pitch = clamp(m.Pitch+dPitch, -MaxTilt, MaxTilt)
	m.Roll = clamp(m.Roll+dRoll, -MaxTilt, MaxTilt)
}

// Level resets the tilt.
func (m *Motion) Level() {
	m.Pitch = 0
	m.Roll = 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
