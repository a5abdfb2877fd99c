package container

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Northernside/mineflayer-replay/internal/logging"
)

// RetentionPolicy bounds how many .mcreplay artefacts are retained on disk.
// spec.md §1 treats the on-disk layout of recordings as out of scope for the
// container format itself; this retention sweep is an operational concern
// layered on top, adapted from the teacher's replay-directory cleaner.
type RetentionPolicy struct {
	MaxFiles int
	MaxAge   time.Duration
}

// StorageStats summarises the disk footprint of retained replay files.
type StorageStats struct {
	Files     int
	Bytes     int64
	LastSweep time.Time
}

// Cleaner periodically prunes .mcreplay files in a directory according to a
// retention policy.
type Cleaner struct {
	mu     sync.RWMutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
}

// NewCleaner constructs a cleaner for the provided directory of replay files.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now}
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
	//1.- Perform an eager sweep so retention applies immediately on startup.
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single retention sweep, primarily used for tests.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the last recorded storage statistics.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type artefact struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *Cleaner) sweep() {
	if c == nil || strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}

	artefacts := c.collect(entries)
	now := c.now()
	kept := 0
	stats := StorageStats{LastSweep: now}
	for _, art := range artefacts {
		shouldRemove, reason := c.shouldRemove(art, now, kept)
		if shouldRemove {
			if err := os.Remove(art.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				c.log.Warn("replay retention removal failed", logging.Error(err), logging.String("path", art.path))
				stats.Files++
				stats.Bytes += art.size
				kept++
			} else {
				c.log.Info("replay retention removed file", logging.String("path", art.path), logging.String("reason", reason))
			}
			continue
		}
		kept++
		stats.Files++
		stats.Bytes += art.size
	}

	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

func (c *Cleaner) collect(entries []os.DirEntry) []*artefact {
	artefacts := make([]*artefact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mcreplay") {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			c.log.Warn("replay retention stat failed", logging.Error(err), logging.String("path", path))
			continue
		}
		artefacts = append(artefacts, &artefact{path: path, size: info.Size(), modTime: info.ModTime()})
	}
	//1.- Sort newest-first so retention limits favour recently recorded sessions.
	sort.Slice(artefacts, func(i, j int) bool { return artefacts[i].modTime.After(artefacts[j].modTime) })
	return artefacts
}

func (c *Cleaner) shouldRemove(art *artefact, now time.Time, kept int) (bool, string) {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(art.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxFiles > 0 && kept >= c.policy.MaxFiles {
		reasons = append(reasons, fmt.Sprintf(">=%d files", c.policy.MaxFiles))
	}
	return len(reasons) > 0, strings.Join(reasons, ", ")
}
