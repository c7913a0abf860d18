package platform

import (
	"context"
)

// StaticLocationSource reports the kiosk's fixed installation
// coordinates. Kiosks do not move; a configured position stands in for a
// live geolocation fix, and an unconfigured one degrades to no
// coordinates.
type StaticLocationSource struct {
	lat *float64
	lng *float64
}

// NewStaticLocationSource creates a source from optional configured
// coordinates. Both must be present for a fix; a partial pair is
// treated as absent.
func NewStaticLocationSource(lat, lng *float64) *StaticLocationSource {
	if lat == nil || lng == nil {
		return &StaticLocationSource{}
	}
	return &StaticLocationSource{lat: lat, lng: lng}
}

// Fix returns the configured coordinates, or nils when unconfigured
func (s *StaticLocationSource) Fix(ctx context.Context) (*float64, *float64) {
	if s.lat == nil || s.lng == nil {
		return nil, nil
	}
	lat := *s.lat
	lng := *s.lng
	return &lat, &lng
}
