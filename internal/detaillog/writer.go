// Package detaillog records a per-region physics session to disk: a snappy
// framed JSONL log of step events rotated by age, and an optional zstd stream
// of physical dumps holding every body's state.
package detaillog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"regionsim/physics/internal/engine"
)

// RegionToken is replaced by the region name inside the configured prefix.
const RegionToken = "%REGIONNAME%"

const (
	manifestName = "manifest.json"
	dumpsName    = "dumps.bin.zst"
	// ManifestVersion is bumped whenever the on-disk layout changes.
	ManifestVersion = 1
)

var nameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Config controls whether and where the detail log is written.
type Config struct {
	Enabled       bool
	Dir           string
	Prefix        string
	Region        string
	FileMinutes   int
	DoFlush       bool
	PhysicalDumps bool
}

// Manifest describes the session layout so tooling can locate its files.
type Manifest struct {
	Version       int      `json:"version"`
	Region        string   `json:"region"`
	CreatedAt     string   `json:"created_at"`
	FileMinutes   int      `json:"file_minutes"`
	EventSegments []string `json:"event_segments"`
	DumpsPath     string   `json:"dumps_path,omitempty"`
	ClosedAt      string   `json:"closed_at,omitempty"`
}

// Writer appends to one session. A nil *Writer is a valid disabled log.
type Writer struct {
	mu      sync.Mutex
	dir     string
	now     func() time.Time
	cfg     Config
	closed  bool
	lines   uint64
	dumps   uint64
	started time.Time

	eventFile   *os.File
	eventStream *snappy.Writer
	dumpFile    *os.File
	dumpStream  *zstd.Encoder
	manifest    Manifest
}

// Stats summarises what a writer has persisted.
type Stats struct {
	Directory string
	Lines     uint64
	Dumps     uint64
	Segments  int

	// Sessions and StoredBytes describe every retained session under the
	// log root, as seen by the last retention sweep.
	Sessions    int
	StoredBytes int64
}

// SessionName expands the prefix for the region and strips characters unsafe in paths.
func SessionName(prefix, region string) string {
	if strings.TrimSpace(prefix) == "" {
		prefix = RegionToken + "-"
	}
	name := strings.ReplaceAll(prefix, RegionToken, region)
	name = nameCleaner.ReplaceAllString(name, "")
	if name == "" {
		name = "physics"
	}
	return name
}

// Open creates the session directory and its sinks. It returns a nil writer
// and no error when logging is disabled.
func Open(cfg Config, clock func() time.Time) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("detail log directory must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	created := clock().UTC()
	folder := SessionName(cfg.Prefix, cfg.Region) + created.Format("20060102T150405Z")
	path := filepath.Join(cfg.Dir, folder)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	w := &Writer{
		dir:     path,
		now:     clock,
		cfg:     cfg,
		started: created,
		manifest: Manifest{
			Version:     ManifestVersion,
			Region:      cfg.Region,
			CreatedAt:   created.Format(time.RFC3339Nano),
			FileMinutes: cfg.FileMinutes,
		},
	}

	//1.- Open the first event segment; later segments are opened on rotation.
	if err := w.openSegmentLocked(); err != nil {
		return nil, err
	}

	//2.- Physical dumps share one zstd stream for the whole session.
	if cfg.PhysicalDumps {
		dumpFile, err := os.Create(filepath.Join(path, dumpsName))
		if err != nil {
			w.closeSegmentLocked()
			return nil, err
		}
		dumpStream, err := zstd.NewWriter(dumpFile)
		if err != nil {
			dumpFile.Close()
			w.closeSegmentLocked()
			return nil, err
		}
		w.dumpFile = dumpFile
		w.dumpStream = dumpStream
		w.manifest.DumpsPath = dumpsName
	}

	if err := w.writeManifestLocked(); err != nil {
		w.closeAllLocked()
		return nil, err
	}
	return w, nil
}

func segmentName(index int) string {
	return fmt.Sprintf("events-%04d.jsonl.sz", index)
}

func (w *Writer) openSegmentLocked() error {
	name := segmentName(len(w.manifest.EventSegments))
	file, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return err
	}
	w.eventFile = file
	w.eventStream = snappy.NewBufferedWriter(file)
	w.manifest.EventSegments = append(w.manifest.EventSegments, name)
	w.started = w.now().UTC()
	return nil
}

func (w *Writer) closeSegmentLocked() error {
	if w.eventStream == nil {
		return nil
	}
	var firstErr error
	if err := w.eventStream.Close(); err != nil {
		firstErr = err
	}
	if err := w.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	w.eventStream = nil
	w.eventFile = nil
	return firstErr
}

func (w *Writer) writeManifestLocked() error {
	data, err := json.MarshalIndent(w.manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.dir, manifestName), append(data, '\n'), 0o644)
}

// Enabled reports whether writes reach disk.
func (w *Writer) Enabled() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed
}

// DumpsEnabled reports whether physical dumps are recorded.
func (w *Writer) DumpsEnabled() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed && w.dumpStream != nil
}

// Directory exposes the session directory.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

type eventRecord struct {
	Step       uint64 `json:"step"`
	CapturedAt string `json:"captured_at"`
	Message    string `json:"message"`
}

// Logf appends one formatted line tagged with the simulation step.
func (w *Writer) Logf(step uint64, format string, args ...any) {
	if w == nil {
		return
	}
	captured := w.now().UTC()
	line, err := json.Marshal(eventRecord{
		Step:       step,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Message:    fmt.Sprintf(format, args...),
	})
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	//1.- Rotate the event segment once it has been open for FileMinutes.
	if w.cfg.FileMinutes > 0 && captured.Sub(w.started) >= time.Duration(w.cfg.FileMinutes)*time.Minute {
		if err := w.closeSegmentLocked(); err != nil {
			_ = w.closeAllLocked()
			return
		}
		if err := w.openSegmentLocked(); err != nil {
			_ = w.closeAllLocked()
			return
		}
		_ = w.writeManifestLocked()
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return
	}
	w.lines++
	if w.cfg.DoFlush {
		_ = w.eventStream.Flush()
	}
}

// bodyRecordSize is the encoded size of one EntityProperties value.
const bodyRecordSize = 4 + 8*(3+4+3+3+3)

// Dump appends the state of every body as one binary frame.
func (w *Writer) Dump(step uint64, simulatedMs int64, bodies []engine.EntityProperties) error {
	if w == nil {
		return nil
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.dumpStream == nil {
		return nil
	}

	//1.- Frame header: step, simulated time, capture time, body count.
	header := make([]byte, 8+8+8+4)
	binary.LittleEndian.PutUint64(header[0:8], step)
	binary.LittleEndian.PutUint64(header[8:16], uint64(simulatedMs))
	binary.LittleEndian.PutUint64(header[16:24], uint64(captured.UnixNano()))
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(bodies)))
	if _, err := w.dumpStream.Write(header); err != nil {
		return err
	}

	//2.- Fixed-size body records follow so readers can step through them.
	record := make([]byte, bodyRecordSize)
	for _, body := range bodies {
		encodeBody(record, body)
		if _, err := w.dumpStream.Write(record); err != nil {
			return err
		}
	}
	w.dumps++
	return nil
}

func encodeBody(buf []byte, body engine.EntityProperties) {
	binary.LittleEndian.PutUint32(buf[0:4], body.ID)
	offset := 4
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], math.Float64bits(v))
		offset += 8
	}
	for _, v := range body.Position {
		put(v)
	}
	put(body.Rotation.W)
	for _, v := range body.Rotation.V {
		put(v)
	}
	for _, v := range body.Velocity {
		put(v)
	}
	for _, v := range body.Acceleration {
		put(v)
	}
	for _, v := range body.AngularVelocity {
		put(v)
	}
}

// Flush pushes buffered event and dump data to the files.
func (w *Writer) Flush() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.eventStream.Flush(); err != nil {
		return err
	}
	if w.dumpStream != nil {
		return w.dumpStream.Flush()
	}
	return nil
}

// Stats reports what has been written so far.
func (w *Writer) Stats() Stats {
	if w == nil {
		return Stats{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{Directory: w.dir, Lines: w.lines, Dumps: w.dumps, Segments: len(w.manifest.EventSegments)}
}

// Close finalises the manifest and releases the files. Later writes are dropped.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.manifest.ClosedAt = w.now().UTC().Format(time.RFC3339Nano)
	return w.closeAllLocked()
}

func (w *Writer) closeAllLocked() error {
	w.closed = true
	//1.- Attempt every close and surface the first failure.
	var firstErr error
	if err := w.closeSegmentLocked(); err != nil {
		firstErr = err
	}
	if w.dumpStream != nil {
		if err := w.dumpStream.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := w.dumpFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.dumpStream = nil
	}
	if err := w.writeManifestLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
