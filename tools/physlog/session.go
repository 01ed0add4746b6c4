package physlog

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/detaillog"
)

// Summary condenses one session for operators.
type Summary struct {
	Region    string `json:"region"`
	Events    int    `json:"events"`
	Dumps     int    `json:"dumps"`
	FirstStep uint64 `json:"first_step"`
	LastStep  uint64 `json:"last_step"`
	Bodies    int    `json:"bodies"`
}

// TrackPoint is one sample of a body's motion taken from a physical dump.
type TrackPoint struct {
	Step        uint64     `json:"step"`
	SimulatedMs int64      `json:"simulated_ms"`
	Position    mgl64.Vec3 `json:"position"`
	Velocity    mgl64.Vec3 `json:"velocity"`
}

// Session is a fully decoded detail log session.
type Session struct {
	Manifest detaillog.Manifest
	Events   []detaillog.Event
	Dumps    []detaillog.Dump
}

// Load decodes the manifest, events and dumps of the session in dir.
func Load(dir string) (*Session, error) {
	manifest, err := detaillog.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	events, err := detaillog.ReadEvents(dir)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	dumps, err := detaillog.ReadDumps(dir)
	if err != nil {
		return nil, fmt.Errorf("read dumps: %w", err)
	}
	return &Session{Manifest: manifest, Events: events, Dumps: dumps}, nil
}

// Summary counts events, dumps, the step range and the distinct bodies seen.
func (s *Session) Summary() Summary {
	out := Summary{Region: s.Manifest.Region, Events: len(s.Events), Dumps: len(s.Dumps)}
	first := true
	observe := func(step uint64) {
		if first || step < out.FirstStep {
			out.FirstStep = step
		}
		if first || step > out.LastStep {
			out.LastStep = step
		}
		first = false
	}
	bodies := make(map[uint32]struct{})
	for _, event := range s.Events {
		observe(event.Step)
	}
	for _, dump := range s.Dumps {
		observe(dump.Step)
		for _, body := range dump.Bodies {
			bodies[body.ID] = struct{}{}
		}
	}
	out.Bodies = len(bodies)
	return out
}

// Track returns the dumped motion of one body in step order.
func (s *Session) Track(id uint32) []TrackPoint {
	var track []TrackPoint
	for _, dump := range s.Dumps {
		for _, body := range dump.Bodies {
			if body.ID != id {
				continue
			}
			track = append(track, TrackPoint{Step: dump.Step, SimulatedMs: dump.SimulatedMs, Position: body.Position, Velocity: body.Velocity})
		}
	}
	sort.SliceStable(track, func(i, j int) bool { return track[i].Step < track[j].Step })
	return track
}
