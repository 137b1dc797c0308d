package main

import (
	"time"

	"camrelay/internal/proto"
)

// Stats is the aggregate served by /api/state and the dashboard.
type Stats struct {
	Sources []proto.SourceStatus `json:"sources"`
	Viewers int                  `json:"viewers"`
	Now     string               `json:"now"`
}

func collectStats(s statusStore) Stats {
	srcs := s.snapshot()
	total := 0
	for _, st := range srcs {
		total += st.Viewers
	}
	return Stats{Sources: srcs, Viewers: total, Now: time.Now().UTC().Format(time.RFC3339)}
}

// ToTemplateMap returns a map suited for html/template rendering.
func (s Stats) ToTemplateMap() map[string]any {
	return map[string]any{
		"Sources": s.Sources,
		"Viewers": s.Viewers,
	}
}
