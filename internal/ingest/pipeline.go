package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suehn/scopy/internal/blobstore"
	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/hashutil"
	"github.com/suehn/scopy/internal/logging"
	"github.com/suehn/scopy/internal/metrics"
	"github.com/suehn/scopy/internal/store"
)

var log = logging.WithComponent("ingest")

// Pipeline runs the full capture-to-persisted-item flow (spec §4.4) behind
// a bounded-concurrency worker pool. Submit() never blocks the caller past
// the queue-depth check: once the pool is saturated, the oldest pending
// capture is dropped (Result.Skipped) and currently running work is never
// interrupted.
type Pipeline struct {
	store    *store.Store
	blobs    *blobstore.Store
	spool    *blobstore.Spool
	detector *typeDetector
	settings *config.Settings

	queue *boundedQueue
	wg    sync.WaitGroup
	once  sync.Once
}

// New builds a Pipeline and starts its worker pool. settings.IngestWorkerConcurrency
// controls both the number of workers and the queue capacity ahead of them.
func New(st *store.Store, blobs *blobstore.Store, spool *blobstore.Spool, settings *config.Settings) (*Pipeline, error) {
	detector, err := newTypeDetector(settings.FileTypeGlobs)
	if err != nil {
		return nil, fmt.Errorf("ingest: compiling file-type globs: %w", err)
	}

	p := &Pipeline{
		store:    st,
		blobs:    blobs,
		spool:    spool,
		detector: detector,
		settings: settings,
		queue:    newBoundedQueue(settings.IngestWorkerConcurrency * 4),
	}

	workers := settings.IngestWorkerConcurrency
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p, nil
}

// Submit enqueues c for ingestion and returns a channel delivering its
// eventual Result. The capture may come back with Result.Skipped true if
// the pool was saturated and it was dropped before a worker picked it up.
func (p *Pipeline) Submit(c Capture) <-chan Result {
	metrics.IngestQueueDepth.Set(float64(p.queue.depth() + 1))
	return p.queue.submit(c)
}

// Close stops accepting new work and waits for in-flight captures to
// finish; queued-but-not-running captures are abandoned.
func (p *Pipeline) Close() {
	p.once.Do(func() {
		p.queue.close()
	})
	p.wg.Wait()
}

func (p *Pipeline) runWorker() {
	defer p.wg.Done()
	for {
		qc, ok := p.queue.next()
		if !ok {
			return
		}
		metrics.IngestQueueDepth.Set(float64(p.queue.depth()))
		result, err := p.ingest(context.Background(), qc.capture)
		if err != nil {
			log.Error().Err(err).Msg("ingest failed")
			metrics.IngestRequestsTotal.WithLabelValues("error").Inc()
			qc.done <- Result{}
			close(qc.done)
			continue
		}
		qc.done <- result
		close(qc.done)
	}
}

// ingest runs the nine-step flow of spec §4.4 for a single capture:
// type detection, normalization, spooling of large payloads, hashing,
// dedup-or-insert through Store, and indexable-summary truncation.
func (p *Pipeline) ingest(ctx context.Context, c Capture) (Result, error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDuration(metrics.IngestDuration) }()

	itemType, rawText := p.detector.Detect(c)

	var plainText string
	var truncated bool
	if rawText != "" {
		normalized := Normalize(rawText)
		if p.settings.IndexableSummaryPolicy == config.SummaryFull {
			plainText = normalized
		} else {
			plainText, truncated = Summarize(normalized, int(p.settings.IndexableSummaryBudgetBytes))
		}
	}

	if itemType == store.ItemTypeImage && !p.settings.SaveImages {
		metrics.IngestRequestsTotal.WithLabelValues("skipped_policy").Inc()
		return Result{Skipped: true}, nil
	}
	if itemType == store.ItemTypeFile && !p.settings.SaveFiles {
		metrics.IngestRequestsTotal.WithLabelValues("skipped_policy").Inc()
		return Result{Skipped: true}, nil
	}

	payload := c.Bytes
	sizeBytes := int64(len(payload))

	// Large payloads are spooled to disk immediately (no fsync, losses
	// tolerated) so hashing/dedup can stream from there instead of holding
	// the whole capture in memory for the life of the request.
	var spoolPath string
	if sizeBytes >= p.settings.IngestSpoolThresholdBytes && sizeBytes > 0 {
		var err error
		spoolPath, err = p.spool.Write(payload)
		if err != nil {
			return Result{}, fmt.Errorf("ingest: spooling payload: %w", err)
		}
	}

	// The hash is taken over the canonical representation spec §4.1 names
	// for each type, not always the raw payload: text hashes the normalized
	// plain_text (so a CRLF/BOM/whitespace variant of the same text dedups
	// against its LF-normalized twin), and a file reference hashes its path
	// list (it has no payload bytes at all — c.Bytes is nil for these).
	hashInput, hashSize := hashSourceFor(itemType, c, plainText, payload, sizeBytes)

	hash, err := hashutil.Sum(ctx, bytes.NewReader(hashInput), hashSize)
	if err != nil {
		if spoolPath != "" {
			_ = p.spool.Discard(spoolPath)
		}
		return Result{}, fmt.Errorf("ingest: hashing payload: %w", err)
	}

	item := &store.Item{
		ID:          uuid.NewString(),
		Type:        itemType,
		ContentHash: hash,
		PlainText:   plainText,
		AppBundleID: c.AppBundleID,
		CreatedAt:   unixSeconds(),
		LastUsedAt:  unixSeconds(),
		UseCount:    1,
		SizeBytes:   sizeBytes,
	}

	if sizeBytes >= p.settings.ExternalStorageThresholdBytes && sizeBytes > 0 {
		ext := extensionFor(itemType)
		var ref string
		if spoolPath != "" {
			ref, err = p.blobs.MoveFromSpool(spoolPath, ext)
		} else {
			ref, err = p.blobs.Write(payload, ext)
		}
		if err != nil {
			return Result{}, fmt.Errorf("ingest: persisting external blob: %w", err)
		}
		item.StorageRef = ref
	} else {
		item.RawData = payload
		if spoolPath != "" {
			_ = p.spool.Discard(spoolPath)
		}
	}

	live, wasNew, err := p.store.InsertOrUpdate(ctx, item)
	if err != nil {
		// The blob (if any) is now orphaned; best-effort delete it rather
		// than leaving it to the cleanup sweep, since we know its ref now.
		if item.StorageRef != "" {
			p.blobs.Delete(item.StorageRef)
		}
		return Result{}, fmt.Errorf("ingest: persisting item: %w", err)
	}

	outcome := "inserted"
	if !wasNew {
		outcome = "dedup_hit"
		metrics.DedupHitsTotal.Inc()
		// A dedup hit keeps the existing row's own storage_ref (live),
		// discarding item's; any blob just written under item.StorageRef for
		// this capture is now unreferenced and would otherwise sit as an
		// orphan until the next cleanup sweep.
		if item.StorageRef != "" && item.StorageRef != live.StorageRef {
			p.blobs.Delete(item.StorageRef)
		}
	}
	metrics.IngestRequestsTotal.WithLabelValues(outcome).Inc()
	if truncated {
		log.Debug().Int64("row_id", live.RowID).Msg("indexable summary truncated")
	}

	return Result{Item: live, WasNew: wasNew}, nil
}

// hashSourceFor returns the bytes C1 hashes for item, per spec §4.1: text
// hashes its normalized plain_text, a file reference hashes its joined
// absolute path list, and every other (binary) type hashes the raw payload.
func hashSourceFor(itemType store.ItemType, c Capture, plainText string, payload []byte, sizeBytes int64) ([]byte, int64) {
	switch itemType {
	case store.ItemTypeText:
		b := []byte(plainText)
		return b, int64(len(b))
	case store.ItemTypeFile:
		b := []byte(strings.Join(c.FileURLs, "\n"))
		return b, int64(len(b))
	default:
		return payload, sizeBytes
	}
}

func extensionFor(t store.ItemType) string {
	switch t {
	case store.ItemTypeImage:
		return "img"
	case store.ItemTypeRTF:
		return "rtf"
	case store.ItemTypeHTML:
		return "html"
	default:
		return "bin"
	}
}

func unixSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
