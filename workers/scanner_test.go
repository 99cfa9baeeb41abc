package workers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/camden-git/imageindex/database"
	"github.com/camden-git/imageindex/media"
	"github.com/camden-git/imageindex/models"
	"github.com/camden-git/imageindex/realtime"
)

type staticDirs []string

func (d staticDirs) Paths(context.Context) ([]string, error) { return d, nil }

type failingDirs struct{}

func (failingDirs) Paths(context.Context) ([]string, error) {
	return nil, errors.New("directory list unavailable")
}

// countingGenerator records how often thumbnails are generated.
type countingGenerator struct {
	inner *media.Generator
	calls atomic.Int64
}

func (g *countingGenerator) Generate(path string, maxWidth, maxHeight int) ([]byte, error) {
	g.calls.Add(1)
	return g.inner.Generate(path, maxWidth, maxHeight)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Broadcast(ev realtime.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type scanFixture struct {
	store     *database.Store
	scanner   *Scanner
	generator *countingGenerator
	events    *recordingPublisher
	dir       string
}

func newScanFixture(t *testing.T, dirs DirectoryLister) *scanFixture {
	t.Helper()
	store, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	dir := t.TempDir()
	if dirs == nil {
		dirs = staticDirs{dir}
	}
	gen := &countingGenerator{inner: media.NewGenerator(0)}
	events := &recordingPublisher{}
	scanner := NewScanner(ScannerDeps{
		Store:       store,
		Directories: dirs,
		Thumbnails:  gen,
		Metadata:    media.InfoReader{},
		Events:      events,
	}, ScannerConfig{
		ActiveInterval:     10 * time.Millisecond,
		IdleInterval:       time.Hour,
		CooldownInterval:   time.Hour,
		ThumbnailMaxWidth:  64,
		ThumbnailMaxHeight: 64,
		MaxFileSize:        10 << 20,
		Workers:            2,
	})
	return &scanFixture{store: store, scanner: scanner, generator: gen, events: events, dir: dir}
}

func saveImage(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := imaging.New(w, h, c)
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("Save(%s) error = %v", path, err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes(%s) error = %v", path, err)
	}
}

func (f *scanFixture) thumbnail(t *testing.T, path string) (*models.ImageRecord, []byte) {
	t.Helper()
	ctx := context.Background()
	rec, err := f.store.GetImageByPath(ctx, path)
	if err != nil || rec == nil {
		t.Fatalf("GetImageByPath(%s) = %v, %v", path, rec, err)
	}
	data, err := f.store.GetThumbnail(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetThumbnail(%d) error = %v", rec.ID, err)
	}
	return rec, data
}

func TestScannerIndexesNewFilesOnce(t *testing.T) {
	f := newScanFixture(t, nil)
	ctx := context.Background()

	saveImage(t, filepath.Join(f.dir, "a.jpg"), 120, 80, color.NRGBA{200, 0, 0, 255})
	saveImage(t, filepath.Join(f.dir, "b.png"), 90, 90, color.NRGBA{0, 200, 0, 255})
	if err := os.Mkdir(filepath.Join(f.dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	saveImage(t, filepath.Join(f.dir, "sub", "c.gif"), 40, 60, color.NRGBA{0, 0, 200, 255})

	// ignored: hidden entries and non-images
	if err := os.Mkdir(filepath.Join(f.dir, ".cache"), 0o755); err != nil {
		t.Fatal(err)
	}
	saveImage(t, filepath.Join(f.dir, ".cache", "d.jpg"), 10, 10, color.White)
	saveImage(t, filepath.Join(f.dir, ".e.png"), 10, 10, color.White)
	if err := os.WriteFile(filepath.Join(f.dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	processed, err := f.scanner.ForceFullScan(ctx)
	if err != nil {
		t.Fatalf("ForceFullScan() error = %v", err)
	}
	if processed != 3 {
		t.Fatalf("first ForceFullScan() = %d, want 3", processed)
	}

	count, err := f.store.CountImages(ctx, database.ImageFilter{})
	if err != nil {
		t.Fatalf("CountImages() error = %v", err)
	}
	if count != 3 {
		t.Errorf("CountImages() = %d, want 3", count)
	}
	for _, name := range []string{"a.jpg", "b.png", filepath.Join("sub", "c.gif")} {
		rec, thumb := f.thumbnail(t, filepath.Join(f.dir, name))
		if len(thumb) == 0 {
			t.Errorf("%s: empty thumbnail", name)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb))
		if err != nil {
			t.Errorf("%s: thumbnail does not decode: %v", name, err)
			continue
		}
		if cfg.Width > 64 || cfg.Height > 64 {
			t.Errorf("%s: thumbnail %dx%d exceeds 64x64", name, cfg.Width, cfg.Height)
		}
		if rec.Width == 0 || rec.Format == "" {
			t.Errorf("%s: metadata not recorded: %+v", name, rec)
		}
	}
	if got := f.generator.calls.Load(); got != 3 {
		t.Errorf("generator called %d times, want 3", got)
	}

	processed, err = f.scanner.ForceFullScan(ctx)
	if err != nil {
		t.Fatalf("second ForceFullScan() error = %v", err)
	}
	if processed != 0 {
		t.Errorf("second ForceFullScan() = %d, want 0", processed)
	}
	if got := f.generator.calls.Load(); got != 3 {
		t.Errorf("generator called %d times after rescan, want still 3", got)
	}

	status := f.scanner.Status()
	if status.PassCount != 2 || status.LastResult.Unchanged != 3 || status.Scanning {
		t.Errorf("Status() = %+v", status)
	}
	if f.events.count(realtime.EventScanStarted) != 2 || f.events.count(realtime.EventScanCompleted) != 2 {
		t.Errorf("scan events = %+v", f.events.events)
	}
	if got := f.events.count(realtime.EventImageIndexed); got != 3 {
		t.Errorf("image_indexed events = %d, want 3", got)
	}
}

func TestScannerReprocessesOnlyModifiedFile(t *testing.T) {
	f := newScanFixture(t, nil)
	ctx := context.Background()

	paths := []string{
		filepath.Join(f.dir, "a.jpg"),
		filepath.Join(f.dir, "b.png"),
		filepath.Join(f.dir, "c.png"),
	}
	for _, p := range paths {
		saveImage(t, p, 100, 100, color.NRGBA{10, 10, 10, 255})
	}
	if _, err := f.scanner.ForceFullScan(ctx); err != nil {
		t.Fatalf("ForceFullScan() error = %v", err)
	}

	before := make(map[string][]byte)
	var target *models.ImageRecord
	for _, p := range paths {
		rec, thumb := f.thumbnail(t, p)
		before[p] = thumb
		if p == paths[1] {
			target = rec
		}
	}
	if err := f.store.SetFavorite(ctx, target.ID, true); err != nil {
		t.Fatalf("SetFavorite() error = %v", err)
	}

	saveImage(t, paths[1], 160, 40, color.NRGBA{250, 250, 0, 255})
	later := time.Now().Add(5 * time.Second)
	if err := os.Chtimes(paths[1], later, later); err != nil {
		t.Fatal(err)
	}
	calls := f.generator.calls.Load()

	processed, err := f.scanner.ForceFullScan(ctx)
	if err != nil {
		t.Fatalf("ForceFullScan() error = %v", err)
	}
	if processed != 1 {
		t.Fatalf("ForceFullScan() after edit = %d, want 1", processed)
	}
	if got := f.generator.calls.Load() - calls; got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}

	rec, thumb := f.thumbnail(t, paths[1])
	if rec.ID != target.ID {
		t.Errorf("ID = %d, want %d", rec.ID, target.ID)
	}
	if !rec.AddedAt.Equal(target.AddedAt) {
		t.Errorf("AddedAt = %v, want unchanged %v", rec.AddedAt, target.AddedAt)
	}
	if !rec.IsFavorite {
		t.Error("IsFavorite lost on re-index")
	}
	if rec.Width != 160 || rec.Height != 40 {
		t.Errorf("dimensions = %dx%d, want 160x40", rec.Width, rec.Height)
	}
	if bytes.Equal(thumb, before[paths[1]]) {
		t.Error("thumbnail of modified file was not regenerated")
	}
	for _, p := range []string{paths[0], paths[2]} {
		if _, thumb := f.thumbnail(t, p); !bytes.Equal(thumb, before[p]) {
			t.Errorf("%s: thumbnail changed although file did not", p)
		}
	}
}

func TestScannerSkipsBadFiles(t *testing.T) {
	f := newScanFixture(t, nil)
	ctx := context.Background()

	saveImage(t, filepath.Join(f.dir, "good.png"), 20, 20, color.Black)
	if err := os.WriteFile(filepath.Join(f.dir, "empty.jpg"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, "corrupt.jpg"), []byte("definitely not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	processed, err := f.scanner.ForceFullScan(ctx)
	if err != nil {
		t.Fatalf("ForceFullScan() error = %v", err)
	}
	if processed != 1 {
		t.Errorf("ForceFullScan() = %d, want 1", processed)
	}
	result := f.scanner.Status().LastResult
	if result.Skipped != 1 || result.Failed != 1 {
		t.Errorf("LastResult = %+v, want 1 skipped and 1 failed", result)
	}
}

func TestScannerPassErrorUsesCooldown(t *testing.T) {
	f := newScanFixture(t, failingDirs{})

	if _, err := f.scanner.ForceFullScan(context.Background()); err == nil {
		t.Fatal("ForceFullScan() error = nil, want directory list error")
	}
	if f.scanner.Status().LastError == "" {
		t.Error("Status().LastError is empty")
	}

	tests := []struct {
		name   string
		result PassResult
		err    error
		want   time.Duration
	}{
		{"error", PassResult{Processed: 3}, errors.New("boom"), f.scanner.cfg.CooldownInterval},
		{"active", PassResult{Processed: 1}, nil, f.scanner.cfg.ActiveInterval},
		{"idle", PassResult{Unchanged: 5}, nil, f.scanner.cfg.IdleInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.scanner.nextInterval(tt.result, tt.err); got != tt.want {
				t.Errorf("nextInterval() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestScannerStartStop(t *testing.T) {
	f := newScanFixture(t, nil)
	saveImage(t, filepath.Join(f.dir, "a.png"), 20, 20, color.Black)

	f.scanner.Start()
	f.scanner.Start()

	deadline := time.Now().Add(5 * time.Second)
	for f.scanner.Status().PassCount < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("background loop did not run two passes: %+v", f.scanner.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !f.scanner.Status().Running {
		t.Error("Status().Running = false while started")
	}

	f.scanner.Stop()
	if f.scanner.Status().Running {
		t.Error("Status().Running = true after Stop")
	}
}

func TestScannerPrune(t *testing.T) {
	f := newScanFixture(t, nil)
	ctx := context.Background()

	keep := filepath.Join(f.dir, "keep.png")
	gone := filepath.Join(f.dir, "gone.png")
	saveImage(t, keep, 20, 20, color.Black)
	saveImage(t, gone, 20, 20, color.Black)
	if _, err := f.scanner.ForceFullScan(ctx); err != nil {
		t.Fatalf("ForceFullScan() error = %v", err)
	}
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}

	removed, err := f.scanner.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() = %d, want 1", removed)
	}
	if rec, _ := f.store.GetImageByPath(ctx, gone); rec != nil {
		t.Error("record of removed file survived Prune")
	}
	if rec, _ := f.store.GetImageByPath(ctx, keep); rec == nil {
		t.Error("record of existing file was pruned")
	}
}
