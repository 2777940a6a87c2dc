package pipeline

import (
	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
)

// GapSegmenter implements Segmenter using domain.SegmentWithStats.
type GapSegmenter struct {
	opts domain.SegmentOptions
}

// NewSegmenter creates a GapSegmenter with fixed segmentation options.
func NewSegmenter(opts domain.SegmentOptions) *GapSegmenter {
	return &GapSegmenter{opts: opts}
}

// Segment drops incomplete rows, splits ts at gaps and applies the length and
// peak filters.
func (s *GapSegmenter) Segment(ts domain.Series) ([]domain.Series, domain.SegmentStats, error) {
	return domain.SegmentWithStats(ts, s.opts)
}
