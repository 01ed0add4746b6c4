package detaillog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"regionsim/physics/internal/logging"
)

// RetentionPolicy defines how many detail log sessions are retained on disk.
type RetentionPolicy struct {
	MaxSessions int
	MaxAge      time.Duration
}

// Active reports whether the policy prunes anything.
func (p RetentionPolicy) Active() bool {
	return p.MaxSessions > 0 || p.MaxAge > 0
}

// StorageStats summarises the disk footprint of retained sessions.
type StorageStats struct {
	Sessions  int
	Bytes     int64
	LastSweep time.Time
}

// Cleaner prunes old sessions below a detail log root according to a policy.
// The session currently being written is never removed.
type Cleaner struct {
	mu     sync.RWMutex
	root   string
	keep   string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
}

// NewCleaner constructs a cleaner for the sessions stored under root.
func NewCleaner(root string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{root: root, policy: policy, log: logger, now: time.Now}
}

// Keep protects the session directory that is still being written.
func (c *Cleaner) Keep(dir string) *Cleaner {
	if c != nil {
		c.keep = filepath.Clean(dir)
	}
	return c
}

// WithClock overrides the time source used for age checks.
func (c *Cleaner) WithClock(clock func() time.Time) *Cleaner {
	if c != nil && clock != nil {
		c.now = clock
	}
	return c
}

// Run executes retention sweeps until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single retention sweep.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the storage statistics recorded by the last sweep.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type session struct {
	path    string
	size    int64
	modTime time.Time
	active  bool
}

func (c *Cleaner) sweep() {
	if strings.TrimSpace(c.root) == "" {
		return
	}
	sessions, err := c.collect()
	if err != nil {
		c.log.Warn("detail log retention scan failed", logging.Error(err), logging.String("directory", c.root))
		return
	}
	now := c.now()
	stats := StorageStats{LastSweep: now}
	kept := 0
	for _, s := range sessions {
		if !s.active {
			if remove, reason := c.shouldRemove(s, now, kept); remove {
				if err := os.RemoveAll(s.path); err != nil {
					c.log.Warn("detail log retention removal failed", logging.Error(err), logging.String("session", s.path))
				} else {
					c.log.Info("detail log session removed", logging.String("session", s.path), logging.String("reason", reason))
					continue
				}
			}
		}
		kept++
		stats.Sessions++
		stats.Bytes += s.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// collect lists every directory holding a manifest, active session first and
// the rest newest first.
func (c *Cleaner) collect() ([]session, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, err
	}
	sessions := make([]session, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.root, entry.Name())
		if _, err := os.Stat(filepath.Join(path, manifestName)); err != nil {
			continue
		}
		size, modTime, err := footprint(path)
		if err != nil {
			c.log.Warn("detail log retention size failed", logging.Error(err), logging.String("session", path))
			continue
		}
		sessions = append(sessions, session{path: path, size: size, modTime: modTime, active: filepath.Clean(path) == c.keep})
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].active != sessions[j].active {
			return sessions[i].active
		}
		return sessions[i].modTime.After(sessions[j].modTime)
	})
	return sessions, nil
}

func (c *Cleaner) shouldRemove(s session, now time.Time, kept int) (bool, string) {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(s.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxSessions > 0 && kept >= c.policy.MaxSessions {
		reasons = append(reasons, fmt.Sprintf(">=%d sessions", c.policy.MaxSessions))
	}
	return len(reasons) > 0, strings.Join(reasons, ", ")
}

// footprint sums file sizes below root and returns the newest modification time.
func footprint(root string) (int64, time.Time, error) {
	var total int64
	var newest time.Time
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		if !d.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, newest, err
}
