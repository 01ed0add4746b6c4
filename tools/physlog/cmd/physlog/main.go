package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"regionsim/physics/tools/physlog"
)

func main() {
	root := flag.String("dir", ".", "directory containing detail log sessions")
	session := flag.String("session", "", "inspect one session directory instead of listing")
	body := flag.Uint("body", 0, "with -session, print the dumped track of this body")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	if *session != "" {
		inspect(*session, uint32(*body), *jsonFlag)
		return
	}

	entries, err := physlog.List(*root)
	if err != nil {
		fail(err)
	}
	if *jsonFlag {
		payload, err := physlog.MarshalEntries(entries)
		if err != nil {
			fail(err)
		}
		fmt.Println(string(payload))
		return
	}
	for _, entry := range entries {
		fmt.Printf("%s (region %s, version %d)\n", entry.Dir, entry.Manifest.Region, entry.Manifest.Version)
		fmt.Printf("  created: %s\n", entry.Manifest.CreatedAt)
		if entry.Manifest.ClosedAt != "" {
			fmt.Printf("  closed:  %s\n", entry.Manifest.ClosedAt)
		}
		fmt.Printf("  segments: %d\n", len(entry.Manifest.EventSegments))
		if entry.Manifest.DumpsPath != "" {
			fmt.Printf("  dumps: %s\n", entry.Manifest.DumpsPath)
		}
	}
}

func inspect(dir string, body uint32, asJSON bool) {
	loaded, err := physlog.Load(dir)
	if err != nil {
		fail(err)
	}
	summary := loaded.Summary()
	var track []physlog.TrackPoint
	if body != 0 {
		track = loaded.Track(body)
	}
	if asJSON {
		payload, err := json.MarshalIndent(struct {
			Summary physlog.Summary      `json:"summary"`
			Track   []physlog.TrackPoint `json:"track,omitempty"`
		}{summary, track}, "", "  ")
		if err != nil {
			fail(err)
		}
		fmt.Println(string(payload))
		return
	}
	fmt.Printf("region %s: %d events, %d dumps, steps %d..%d, %d bodies\n",
		summary.Region, summary.Events, summary.Dumps, summary.FirstStep, summary.LastStep, summary.Bodies)
	for _, point := range track {
		p, v := point.Position, point.Velocity
		fmt.Printf("  step %6d  t=%6dms  pos=(%.3f, %.3f, %.3f)  vel=(%.3f, %.3f, %.3f)\n",
			point.Step, point.SimulatedMs, p[0], p[1], p[2], v[0], v[1], v[2])
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
