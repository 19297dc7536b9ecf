// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import "math"

// PixelType describes the on-disk sample encoding a Plane was decoded from.
//
//go:generate stringer -type=PixelType
type PixelType int

const (
	PixelTypeUnknown PixelType = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
)

// BytesPerSample returns the on-disk width of one sample.
func (p PixelType) BytesPerSample() int {
	switch p {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	default:
		return 0
	}
}

// Plane is one decoded 2-D image sample grid.
// Every channel holds exactly Width*Height samples in row-major order.
// Values are the raw decoded intensities; no rescaling is applied.
type Plane struct {
	Width     int
	Height    int
	PixelType PixelType

	// One sample slice per channel.
	Channels [][]float64

	// Calibration of the X and Y axes, if the format defines one.
	Calibration *Calibration
}

// Calibration maps pixel indices to physical coordinates:
// x = XOrigin + i*XStep, y = YOrigin + j*YStep.
type Calibration struct {
	XOrigin float64
	XStep   float64
	XUnit   string
	YOrigin float64
	YStep   float64
	YUnit   string
}

func newPlane(width, height, channels int, pixelType PixelType) *Plane {
	p := &Plane{
		Width:     width,
		Height:    height,
		PixelType: pixelType,
		Channels:  make([][]float64, channels),
	}
	for c := range p.Channels {
		p.Channels[c] = make([]float64, width*height)
	}
	return p
}

// NumChannels returns the number of channels.
func (p *Plane) NumChannels() int {
	return len(p.Channels)
}

// At returns the sample of channel c at (x, y).
func (p *Plane) At(c, x, y int) float64 {
	return p.Channels[c][y*p.Width+x]
}

// Stats returns the minimum, maximum and mean of channel c.
func (p *Plane) Stats(c int) (min, max, mean float64) {
	samples := p.Channels[c]
	if len(samples) == 0 {
		return 0, 0, 0
	}
	min, max = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, v := range samples {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	return min, max, sum / float64(len(samples))
}

// replicateChannels returns a plane sharing the first channel n times.
// Used for grayscale planes in files that also hold colour planes.
func (p *Plane) replicateChannels(n int) *Plane {
	if len(p.Channels) != 1 || n <= 1 {
		return p
	}
	channels := make([][]float64, n)
	for i := range channels {
		channels[i] = p.Channels[0]
	}
	p.Channels = channels
	return p
}
