package mya

import (
	"context"
	"fmt"
)

// WindowData pairs one sampling window with the rows fetched for it.
type WindowData struct {
	Window Window `json:"window"`
	Rows   []Row  `json:"rows"`
}

// Sampler fetches a fixed channel set across every planned window. Used for
// the facility-wide global channels that feed interval filtering; any
// failure here is fatal for the run, unlike per-element fetches.
type Sampler struct {
	Client   *Client
	Windows  []Window
	Channels []string
}

// Data runs the queries window by window, in window order.
func (s *Sampler) Data(ctx context.Context) ([]WindowData, error) {
	out := make([]WindowData, 0, len(s.Windows))
	for i, w := range s.Windows {
		rows, err := s.Client.Sample(ctx, s.Channels, w)
		if err != nil {
			return nil, fmt.Errorf("global data window %d (%s): %w", i, w.DirName(), err)
		}
		out = append(out, WindowData{Window: w, Rows: rows})
	}
	return out, nil
}
