package telemetry

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Sample is the tracker output for one frame.
type Sample struct {
	Frame            int
	Yaw, Pitch, Roll float64
	Quality          float64
	Deviation        float64
}

// History keeps the most recent samples, dropping the oldest beyond limit.
type History struct {
	limit   int
	samples []Sample
}

// NewHistory creates a history holding at most limit samples. A limit of
// zero keeps everything.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Add appends s.
func (h *History) Add(s Sample) {
	h.samples = append(h.samples, s)
	if h.limit > 0 && len(h.samples) > h.limit {
		h.samples = h.samples[len(h.samples)-h.limit:]
	}
}

func (h *History) Len() int { return len(h.samples) }

// Samples returns a copy of the stored samples, oldest first.
func (h *History) Samples() []Sample {
	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

var errNoSamples = errors.New("telemetry: no samples to plot")

type series struct {
	label string
	color color.Color
	value func(Sample) float64
}

func (h *History) plot(title, yLabel string, ss []series) (*plot.Plot, error) {
	if len(h.samples) == 0 {
		return nil, errNoSamples
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = yLabel

	for _, s := range ss {
		pts := make(plotter.XYs, 0, len(h.samples))
		for _, smp := range h.samples {
			pts = append(pts, plotter.XY{X: float64(smp.Frame), Y: s.value(smp)})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SaveOrientationPlot writes yaw, pitch and roll over time to path. The
// format follows the file extension.
func (h *History) SaveOrientationPlot(path string) error {
	p, err := h.plot("Orientation", "Degrees", []series{
		{"yaw", color.RGBA{R: 220, G: 50, B: 47, A: 255}, func(s Sample) float64 { return s.Yaw }},
		{"pitch", color.RGBA{R: 38, G: 139, B: 210, A: 255}, func(s Sample) float64 { return s.Pitch }},
		{"roll", color.RGBA{R: 133, G: 153, B: 0, A: 255}, func(s Sample) float64 { return s.Roll }},
	})
	if err != nil {
		return err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save orientation plot: %w", err)
	}
	return nil
}

// SaveQualityPlot writes the match quality and deviation over time to path.
func (h *History) SaveQualityPlot(path string) error {
	p, err := h.plot("Tracking quality", "Score", []series{
		{"quality", color.RGBA{R: 108, G: 113, B: 196, A: 255}, func(s Sample) float64 { return s.Quality }},
		{"deviation", color.RGBA{R: 203, G: 75, B: 22, A: 255}, func(s Sample) float64 { return s.Deviation }},
	})
	if err != nil {
		return err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save quality plot: %w", err)
	}
	return nil
}
