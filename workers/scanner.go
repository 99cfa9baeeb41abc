package workers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/camden-git/imageindex/config"
	"github.com/camden-git/imageindex/media"
	"github.com/camden-git/imageindex/metrics"
	"github.com/camden-git/imageindex/models"
	"github.com/camden-git/imageindex/realtime"
)

const (
	triggerScheduled = "scheduled"
	triggerForced    = "forced"
)

var errScanStopped = errors.New("scan stopped")

// ImageStore is the part of the metadata store the scanner writes to.
type ImageStore interface {
	RecordLookup
	UpsertImage(ctx context.Context, rec *models.ImageRecord, thumb models.ThumbnailUpdate) (int64, error)
	PruneMissing(ctx context.Context, exists func(path string) bool) (int, error)
}

// DirectoryLister returns the registered root directories.
type DirectoryLister interface {
	Paths(ctx context.Context) ([]string, error)
}

type ThumbnailGenerator interface {
	Generate(path string, maxWidth, maxHeight int) ([]byte, error)
}

type MetadataReader interface {
	Read(path string) (*media.ImageInfo, error)
}

type EventPublisher interface {
	Broadcast(event realtime.Event)
}

// ScannerDeps are the collaborators of a Scanner. Events may be nil.
type ScannerDeps struct {
	Store       ImageStore
	Directories DirectoryLister
	Detector    *ChangeDetector
	Thumbnails  ThumbnailGenerator
	Metadata    MetadataReader
	Events      EventPublisher
}

type ScannerConfig struct {
	ActiveInterval     time.Duration
	IdleInterval       time.Duration
	CooldownInterval   time.Duration
	ThumbnailMaxWidth  int
	ThumbnailMaxHeight int
	MaxFileSize        int64
	Workers            int
}

// NewScannerConfig takes the scanner settings out of the application config.
func NewScannerConfig(cfg config.Config) ScannerConfig {
	return ScannerConfig{
		ActiveInterval:     cfg.ScanActiveInterval,
		IdleInterval:       cfg.ScanIdleInterval,
		CooldownInterval:   cfg.ScanCooldownInterval,
		ThumbnailMaxWidth:  cfg.ThumbnailMaxWidth,
		ThumbnailMaxHeight: cfg.ThumbnailMaxHeight,
		MaxFileSize:        cfg.MaxFileSize,
		Workers:            cfg.ScanWorkers,
	}
}

// PassResult counts what one pass did with the files it saw.
type PassResult struct {
	Directories int `json:"directories"`
	Seen        int `json:"seen"`
	Processed   int `json:"processed"`
	Unchanged   int `json:"unchanged"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

// ScanStatus is a snapshot of the scanner's state.
type ScanStatus struct {
	Running        bool       `json:"running"`
	Scanning       bool       `json:"scanning"`
	PassID         string     `json:"pass_id,omitempty"`
	PassCount      int64      `json:"pass_count"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
	LastDuration   float64    `json:"last_duration_seconds"`
	LastResult     PassResult `json:"last_result"`
	LastError      string     `json:"last_error,omitempty"`
	NextPassAt     *time.Time `json:"next_pass_at,omitempty"`
}

// passCounters are shared by the workers of one pass.
type passCounters struct {
	seen, processed, unchanged, skipped, failed atomic.Int64

	errMu      sync.Mutex
	storageErr error
}

func (c *passCounters) result(dirs int) PassResult {
	return PassResult{
		Directories: dirs,
		Seen:        int(c.seen.Load()),
		Processed:   int(c.processed.Load()),
		Unchanged:   int(c.unchanged.Load()),
		Skipped:     int(c.skipped.Load()),
		Failed:      int(c.failed.Load()),
	}
}

func (c *passCounters) recordStorageErr(err error) {
	c.errMu.Lock()
	if c.storageErr == nil {
		c.storageErr = err
	}
	c.errMu.Unlock()
}

// Scanner keeps the index in step with the registered directories. A single
// background loop runs passes on an adaptive schedule; ForceFullScan runs one
// on demand. Passes never overlap.
type Scanner struct {
	deps ScannerDeps
	cfg  ScannerConfig

	passMu sync.Mutex // held for the whole of a pass

	stateMu sync.RWMutex
	status  ScanStatus

	started  atomic.Bool
	stopping atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewScanner(deps ScannerDeps, cfg ScannerConfig) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if deps.Detector == nil {
		deps.Detector = NewChangeDetector(deps.Store)
	}
	return &Scanner{
		deps:     deps,
		cfg:      cfg,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the background loop. Calling it more than once has no effect.
func (s *Scanner) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.stateMu.Lock()
	s.status.Running = true
	s.stateMu.Unlock()

	log.Info().Int("workers", s.cfg.Workers).
		Dur("active_interval", s.cfg.ActiveInterval).
		Dur("idle_interval", s.cfg.IdleInterval).
		Msg("scanner: started")
	go s.loop()
}

// Stop signals the loop and waits for it to exit. A pass in progress ends
// after the files already handed to workers are finished.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		close(s.stopChan)
	})
	if s.started.Load() {
		<-s.doneChan
	}
	s.stateMu.Lock()
	s.status.Running = false
	s.status.NextPassAt = nil
	s.stateMu.Unlock()
	log.Info().Msg("scanner: stopped")
}

func (s *Scanner) loop() {
	defer close(s.doneChan)

	for {
		if s.stopping.Load() {
			return
		}

		result, err := s.runPass(context.Background(), triggerScheduled)
		if errors.Is(err, errScanStopped) {
			return
		}
		wait := s.nextInterval(result, err)
		next := time.Now().Add(wait)

		s.stateMu.Lock()
		s.status.NextPassAt = &next
		s.stateMu.Unlock()
		log.Debug().Dur("wait", wait).Msg("scanner: next pass scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// nextInterval picks the sleep after a pass: short while files keep
// changing, long once the index is quiet, and a cooldown after a failure.
func (s *Scanner) nextInterval(result PassResult, err error) time.Duration {
	switch {
	case err != nil:
		return s.cfg.CooldownInterval
	case result.Processed > 0:
		return s.cfg.ActiveInterval
	default:
		return s.cfg.IdleInterval
	}
}

// ForceFullScan runs a pass now on the caller's goroutine, after any pass in
// progress has finished, and returns the number of files processed.
func (s *Scanner) ForceFullScan(ctx context.Context) (int, error) {
	result, err := s.runPass(ctx, triggerForced)
	if errors.Is(err, errScanStopped) {
		err = nil
	}
	return result.Processed, err
}

// Prune removes the records of files that no longer exist. It waits for any
// pass in progress.
func (s *Scanner) Prune(ctx context.Context) (int, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	removed, err := s.deps.Store.PruneMissing(ctx, func(path string) bool {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			s.deps.Detector.Forget(path)
			return false
		}
		return true
	})
	if err != nil {
		return removed, fmt.Errorf("failed to prune missing files: %w", err)
	}
	log.Info().Int("removed", removed).Msg("scanner: pruned records of missing files")
	return removed, nil
}

func (s *Scanner) Status() ScanStatus {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.status
}

func (s *Scanner) runPass(ctx context.Context, trigger string) (PassResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	passID := uuid.NewString()
	start := time.Now()
	s.beginPass(passID, start)
	log.Info().Str("pass_id", passID).Str("trigger", trigger).Msg("scanner: pass started")
	s.publish(realtime.NewEvent(realtime.EventScanStarted, passID))

	var counters passCounters
	dirCount, err := s.scanDirectories(ctx, passID, &counters)
	if err == nil && counters.storageErr != nil {
		err = counters.storageErr
	}
	result := counters.result(dirCount)

	s.finishPass(passID, trigger, start, result, err)
	return result, err
}

func (s *Scanner) scanDirectories(ctx context.Context, passID string, counters *passCounters) (int, error) {
	dirs, err := s.deps.Directories.Paths(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list directories: %w", err)
	}

	scanned := 0
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			log.Warn().Err(err).Str("dir", dir).Msg("scanner: registered directory unavailable, skipping")
			continue
		}
		scanned++
		if err := s.scanDirectory(ctx, passID, dir, counters); err != nil {
			return scanned, err
		}
	}
	return scanned, nil
}

// scanDirectory walks root, probing files on the walking goroutine and
// handing new or changed ones to a bounded pool of workers.
func (s *Scanner) scanDirectory(ctx context.Context, passID, root string, counters *passCounters) error {
	jobs := make(chan Probe, s.cfg.Workers*2)
	var wg sync.WaitGroup
	wg.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for probe := range jobs {
				s.processFile(ctx, passID, probe, counters)
			}
		}()
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if s.stopping.Load() {
			return errScanStopped
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("scanner: cannot read entry, skipping")
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !media.IsRasterImage(d.Name()) {
			return nil
		}

		counters.seen.Add(1)
		probe := s.deps.Detector.Detect(ctx, path)
		if probe.Status == ChangeUnchanged {
			counters.unchanged.Add(1)
			metrics.ScannerFilesTotal.WithLabelValues("unchanged").Inc()
			return nil
		}
		if probe.Err != nil {
			log.Debug().Err(probe.Err).Str("path", path).Msg("scanner: probe failed, reprocessing")
		}
		jobs <- probe
		return nil
	})

	close(jobs)
	wg.Wait()

	if walkErr != nil {
		return fmt.Errorf("failed to walk %s: %w", root, walkErr)
	}
	return nil
}

// processFile indexes one new or changed file. Failures are logged and
// counted, never returned.
func (s *Scanner) processFile(ctx context.Context, passID string, probe Probe, counters *passCounters) {
	path := probe.Path
	fail := func(err error, msg string) {
		counters.failed.Add(1)
		metrics.ScannerFilesTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("path", path).Msg(msg)
	}
	skip := func(reason string) {
		counters.skipped.Add(1)
		metrics.ScannerFilesTotal.WithLabelValues("skipped").Inc()
		log.Info().Str("path", path).Str("reason", reason).Msg("scanner: skipping file")
	}

	fi, err := os.Stat(path)
	if err != nil {
		fail(err, "scanner: failed to stat file")
		return
	}
	if fi.Size() == 0 {
		skip("empty file")
		return
	}
	if s.cfg.MaxFileSize > 0 && fi.Size() > s.cfg.MaxFileSize {
		skip("file too large")
		return
	}

	info, err := s.deps.Metadata.Read(path)
	if err != nil {
		fail(err, "scanner: failed to read image metadata")
		return
	}

	thumb := models.ClearThumbnail()
	data, err := s.deps.Thumbnails.Generate(path, s.cfg.ThumbnailMaxWidth, s.cfg.ThumbnailMaxHeight)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("scanner: thumbnail generation failed, indexing without thumbnail")
	} else {
		thumb = models.ReplaceThumbnail(data)
	}

	rec := newImageRecord(path, fi, info)
	id, err := s.deps.Store.UpsertImage(ctx, rec, thumb)
	if err != nil {
		fail(err, "scanner: failed to store image")
		var storageErr *models.StorageError
		if errors.As(err, &storageErr) {
			counters.recordStorageErr(err)
		}
		return
	}
	s.deps.Detector.Remember(probe)

	counters.processed.Add(1)
	metrics.ScannerFilesTotal.WithLabelValues("indexed").Inc()
	log.Debug().Str("path", path).Int64("id", id).Str("status", probe.Status.String()).Msg("scanner: indexed image")

	ev := realtime.NewEvent(realtime.EventImageIndexed, passID)
	ev.Path = path
	ev.Status = probe.Status.String()
	ev.Extra = map[string]interface{}{"id": id, "has_thumbnail": thumb.IsReplace()}
	s.publish(ev)
}

// newImageRecord builds the file-derived fields of a record. The capture
// time from EXIF is used as the creation time when present.
func newImageRecord(path string, fi os.FileInfo, info *media.ImageInfo) *models.ImageRecord {
	createdAt := fi.ModTime()
	if info.TakenAt != nil {
		createdAt = *info.TakenAt
	}
	return &models.ImageRecord{
		Filename:      filepath.Base(path),
		FilePath:      path,
		FileSize:      fi.Size(),
		CreatedAt:     createdAt,
		ModifiedAt:    fi.ModTime(),
		DirectoryPath: filepath.Dir(path),
		Width:         info.Width,
		Height:        info.Height,
		Format:        info.Format,
		Exif:          info.Exif,
	}
}

func (s *Scanner) beginPass(passID string, start time.Time) {
	s.stateMu.Lock()
	s.status.Scanning = true
	s.status.PassID = passID
	s.status.LastStartedAt = &start
	s.stateMu.Unlock()
	metrics.ScannerRunning.Set(1)
}

func (s *Scanner) finishPass(passID, trigger string, start time.Time, result PassResult, err error) {
	end := time.Now()
	duration := end.Sub(start)

	status := "success"
	if err != nil && !errors.Is(err, errScanStopped) {
		status = "error"
	}

	s.stateMu.Lock()
	s.status.Scanning = false
	s.status.PassCount++
	s.status.LastFinishedAt = &end
	s.status.LastDuration = duration.Seconds()
	s.status.LastResult = result
	s.status.LastError = ""
	if status == "error" {
		s.status.LastError = err.Error()
	}
	s.stateMu.Unlock()

	metrics.ScannerRunning.Set(0)
	metrics.ScannerPassesTotal.WithLabelValues(trigger, status).Inc()
	metrics.ScannerLastPassDuration.Set(duration.Seconds())
	metrics.ScannerLastPassTimestamp.Set(float64(end.Unix()))

	logEvent := log.Info()
	if status == "error" {
		logEvent = log.Error().Err(err)
	}
	logEvent.Str("pass_id", passID).
		Dur("duration", duration).
		Int("seen", result.Seen).
		Int("processed", result.Processed).
		Int("unchanged", result.Unchanged).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("scanner: pass finished")

	ev := realtime.NewEvent(realtime.EventScanCompleted, passID)
	ev.Status = status
	if status == "error" {
		ev.Error = err.Error()
	}
	ev.Extra = map[string]interface{}{
		"processed": result.Processed,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"seen":      result.Seen,
		"duration":  duration.Seconds(),
	}
	s.publish(ev)
}

func (s *Scanner) publish(ev realtime.Event) {
	if s.deps.Events != nil {
		s.deps.Events.Broadcast(ev)
	}
}
