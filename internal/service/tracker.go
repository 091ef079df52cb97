package service

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// accuracySegments is the vertex count of the accuracy circle.
const accuracySegments = 64

// ErrInvalidPosition is returned for coordinates outside WGS84 bounds.
var ErrInvalidPosition = errors.New("invalid position")

// Position is one device location fix.
type Position struct {
	Lon      float64   `json:"lon" minimum:"-180" maximum:"180" doc:"Longitude (WGS84)" example:"-80.18"`
	Lat      float64   `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude (WGS84)" example:"38.92"`
	Accuracy float64   `json:"accuracy" minimum:"0" doc:"Accuracy radius in meters" example:"25"`
	Heading  *float64  `json:"heading,omitempty" doc:"Heading in degrees from north"`
	Speed    *float64  `json:"speed,omitempty" doc:"Speed in m/s"`
	Time     time.Time `json:"time,omitempty" doc:"When the fix was taken"`
}

// PositionError is a geolocation failure reported by the device.
type PositionError struct {
	Code    int       `json:"code" doc:"Geolocation error code (1 denied, 2 unavailable, 3 timeout)"`
	Message string    `json:"message" doc:"Error message"`
	Time    time.Time `json:"time" doc:"When the error was reported"`
}

// TrackerState is what the map draws for the device location.
type TrackerState struct {
	Tracking  bool             `json:"tracking" doc:"Whether a fix has been received"`
	Position  *Position        `json:"position,omitempty" doc:"Last position fix"`
	Marker    *geojson.Feature `json:"marker,omitempty" doc:"Marker point feature"`
	Accuracy  *geojson.Feature `json:"accuracy,omitempty" doc:"Accuracy radius polygon feature"`
	LastError *PositionError   `json:"lastError,omitempty" doc:"Last geolocation error"`
}

// TrackerService follows the device position.
type TrackerService struct {
	bus *EventBus

	mu    sync.RWMutex
	state TrackerState
	now   func() time.Time
}

// NewTrackerService creates a tracker. With a nil bus fixes are not published.
func NewTrackerService(bus *EventBus) *TrackerService {
	if bus == nil {
		bus = NewEventBus()
	}
	return &TrackerService{bus: bus, now: time.Now}
}

// Update moves the marker and accuracy shape to a new fix.
func (s *TrackerService) Update(p Position) (TrackerState, error) {
	if !finite(p.Lon) || !finite(p.Lat) || !finite(p.Accuracy) {
		return TrackerState{}, fmt.Errorf("%w: non-finite fix lon=%g lat=%g accuracy=%g", ErrInvalidPosition, p.Lon, p.Lat, p.Accuracy)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return TrackerState{}, fmt.Errorf("%w: lon=%g lat=%g", ErrInvalidPosition, p.Lon, p.Lat)
	}
	if p.Accuracy < 0 {
		return TrackerState{}, fmt.Errorf("%w: negative accuracy %g", ErrInvalidPosition, p.Accuracy)
	}
	if p.Time.IsZero() {
		p.Time = s.now()
	}

	center := orb.Point{p.Lon, p.Lat}
	marker := geojson.NewFeature(center)
	marker.Properties["kind"] = "position"

	accuracy := geojson.NewFeature(AccuracyCircle(center, p.Accuracy))
	accuracy.Properties["kind"] = "accuracy"
	accuracy.Properties["radius"] = p.Accuracy

	s.mu.Lock()
	s.state = TrackerState{
		Tracking: true,
		Position: &p,
		Marker:   marker,
		Accuracy: accuracy,
	}
	state := s.state
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourcePosition, Action: "moved"})
	return state, nil
}

// Fail records a geolocation error. The previous fix is kept.
func (s *TrackerService) Fail(code int, message string) PositionError {
	e := PositionError{Code: code, Message: message, Time: s.now()}

	s.mu.Lock()
	s.state.LastError = &e
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourcePosition, Action: "failed"})
	return e
}

// State returns the current tracker state.
func (s *TrackerService) State() TrackerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AccuracyCircle approximates a circle of radius meters around center as a
// closed geodesic ring.
func AccuracyCircle(center orb.Point, radius float64) orb.Polygon {
	ring := make(orb.Ring, 0, accuracySegments+1)
	for i := 0; i < accuracySegments; i++ {
		bearing := float64(i) * 360 / accuracySegments
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radius))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}
