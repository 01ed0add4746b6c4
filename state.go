package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"regionsim/physics/internal/config"
	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/params"
	"regionsim/physics/internal/scene"
)

type snapshotOption func(*ParamSnapshotter)

// WithSnapshotClock overrides the snapshot time source; primarily used in tests.
func WithSnapshotClock(clock func() time.Time) snapshotOption {
	return func(s *ParamSnapshotter) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ParamSnapshotter persists operator parameter overrides so they become the
// defaults again after a restart.
type ParamSnapshotter struct {
	mu       sync.RWMutex
	path     string
	region   string
	interval time.Duration
	log      *logging.Logger
	now      func() time.Time

	values map[string]float64
	dirty  bool

	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type snapshotFile struct {
	Region     string           `json:"region"`
	SavedAt    time.Time        `json:"saved_at"`
	Parameters []snapshotRecord `json:"parameters"`
}

type snapshotRecord struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// NewParamSnapshotter constructs a snapshotter backed by the provided file path.
// It returns nil when persistence is disabled; a nil snapshotter is safe to use.
func NewParamSnapshotter(path, region string, interval time.Duration, logger *logging.Logger, opts ...snapshotOption) (*ParamSnapshotter, error) {
	if path == "" || interval <= 0 {
		return nil, nil
	}
	if logger == nil {
		logger = logging.L()
	}
	snapshot := &ParamSnapshotter{
		path:     path,
		region:   region,
		interval: interval,
		log:      logger,
		now:      time.Now,
		values:   make(map[string]float64),
		flushCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(snapshot)
		}
	}
	if err := snapshot.load(); err != nil {
		return nil, err
	}
	go snapshot.loop()
	return snapshot, nil
}

func (s *ParamSnapshotter) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Region != "" && s.region != "" && file.Region != s.region {
		s.log.Warn("ignoring parameter snapshot for another region",
			logging.String("path", s.path),
			logging.String("snapshot_region", file.Region),
		)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range file.Parameters {
		if record.Name == "" {
			continue
		}
		s.values[record.Name] = record.Value
	}
	return nil
}

func (s *ParamSnapshotter) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.flushCh:
			s.flush()
		case <-s.stopCh:
			s.flush()
			return
		}
	}
}

// Record stores a parameter override that changed the scene default.
func (s *ParamSnapshotter) Record(name string, value float64) {
	if s == nil || name == "" {
		return
	}
	s.mu.Lock()
	s.values[name] = value
	s.dirty = true
	s.mu.Unlock()
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

// Source exposes the restored overrides as a settings layer for scene initialisation.
func (s *ParamSnapshotter) Source() config.Source {
	if s == nil {
		return config.MapSource(nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make(map[string]string, len(s.values))
	for name, value := range s.values {
		values[name] = strconv.FormatFloat(value, 'g', -1, 64)
	}
	return config.NewMapSource(values)
}

// Flush immediately persists the current overrides to disk.
func (s *ParamSnapshotter) Flush() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	file := snapshotFile{Region: s.region, SavedAt: s.now().UTC()}
	file.Parameters = make([]snapshotRecord, 0, len(s.values))
	for name, value := range s.values {
		file.Parameters = append(file.Parameters, snapshotRecord{Name: name, Value: value})
	}
	sort.Slice(file.Parameters, func(i, j int) bool { return file.Parameters[i].Name < file.Parameters[j].Name })
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	//1.- Write a sibling temp file, then rename it over the snapshot.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *ParamSnapshotter) flush() {
	if err := s.Flush(); err != nil {
		s.log.Error("failed to persist parameter snapshot", logging.Error(err))
	}
}

// Close stops the persistence goroutine and flushes any pending overrides to disk.
func (s *ParamSnapshotter) Close() error {
	if s == nil {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh
	return nil
}

// recordingScene forwards parameter changes to the scene and remembers the
// ones that altered a default.
type recordingScene struct {
	*scene.Scene
	snapshot *ParamSnapshotter
}

// SetParameter applies the change and records it when the target is not a single object.
func (r recordingScene) SetParameter(name string, value float64, target params.Target) error {
	if err := r.Scene.SetParameter(name, value, target); err != nil {
		return err
	}
	if _, single := target.Handle(); !single {
		if canonical, ok := r.Scene.ParameterName(name); ok {
			name = canonical
		}
		r.snapshot.Record(name, value)
	}
	return nil
}
