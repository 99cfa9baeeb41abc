package workers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/camden-git/imageindex/models"
)

const (
	// only the head of each file is hashed
	partialHashSize = 8 << 10
	// filesystems round timestamps; smaller mtime differences are ignored
	modTimeTolerance = time.Second
)

// ChangeStatus is the verdict of a probe.
type ChangeStatus int

const (
	ChangeUnchanged ChangeStatus = iota
	ChangeNew
	ChangeChanged
)

func (s ChangeStatus) String() string {
	switch s {
	case ChangeNew:
		return "new"
	case ChangeChanged:
		return "changed"
	default:
		return "unchanged"
	}
}

// RecordLookup is the part of the store the detector reads.
type RecordLookup interface {
	GetImageByPath(ctx context.Context, path string) (*models.ImageRecord, error)
}

// Probe is the on-disk state of one file and how it compares to the index.
type Probe struct {
	Path    string
	Status  ChangeStatus
	Size    int64
	ModTime time.Time
	Hash    uint64
	Record  *models.ImageRecord // stored record, nil for new files
	Err     error               // probe failure that forced ChangeChanged

	hashed bool
}

// ChangeDetector decides whether a file's stored record is stale. It keeps
// the last seen head hash of every path in memory and is safe for
// concurrent use.
type ChangeDetector struct {
	store RecordLookup

	mu     sync.Mutex
	hashes map[string]uint64
}

func NewChangeDetector(store RecordLookup) *ChangeDetector {
	return &ChangeDetector{
		store:  store,
		hashes: make(map[string]uint64),
	}
}

// Detect probes path. Any error while probing yields ChangeChanged so the
// file is reprocessed rather than skipped.
func (d *ChangeDetector) Detect(ctx context.Context, path string) Probe {
	p := Probe{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		return p.failed(fmt.Errorf("failed to stat: %w", err))
	}
	p.Size = info.Size()
	p.ModTime = info.ModTime()

	hash, err := partialHash(path)
	if err != nil {
		return p.failed(err)
	}
	p.Hash, p.hashed = hash, true

	rec, err := d.store.GetImageByPath(ctx, path)
	if err != nil {
		return p.failed(fmt.Errorf("failed to look up record: %w", err))
	}
	if rec == nil {
		p.Status = ChangeNew
		return p
	}
	p.Record = rec

	if modTimeDiffers(rec.ModifiedAt, p.ModTime) || rec.FileSize != p.Size || d.hashDiffers(path, hash) {
		p.Status = ChangeChanged
		return p
	}

	p.Status = ChangeUnchanged
	d.Remember(p)
	return p
}

func (p Probe) failed(err error) Probe {
	p.Status = ChangeChanged
	p.Err = err
	return p
}

// Remember records the probed hash as last seen. The scanner calls it once a
// new or changed file has been committed.
func (d *ChangeDetector) Remember(p Probe) {
	if !p.hashed {
		return
	}
	d.mu.Lock()
	d.hashes[p.Path] = p.Hash
	d.mu.Unlock()
}

// Forget drops the cached hash of path.
func (d *ChangeDetector) Forget(path string) {
	d.mu.Lock()
	delete(d.hashes, path)
	d.mu.Unlock()
}

// hashDiffers compares against the cache. A path never seen by this process
// has nothing to compare against and does not count as changed.
func (d *ChangeDetector) hashDiffers(path string, hash uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.hashes[path]
	return ok && last != hash
}

func modTimeDiffers(stored, onDisk time.Time) bool {
	diff := stored.Sub(onDisk)
	if diff < 0 {
		diff = -diff
	}
	return diff > modTimeTolerance
}

func partialHash(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open for hashing: %w", err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.CopyN(h, f, partialHashSize); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read for hashing: %w", err)
	}
	return h.Sum64(), nil
}
