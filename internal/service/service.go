// Package service composes parsing, chunking and the dual-index store into
// the ingestion and retrieval entry points.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"courserag/internal/chunker"
	"courserag/internal/domain"
	"courserag/internal/lock"
	"courserag/internal/logger"
	"courserag/internal/metrics"
	"courserag/internal/parser"
	"courserag/internal/registry"
	"courserag/internal/source"
	"courserag/internal/store"
	"courserag/internal/summarizer"
)

type Options struct {
	// Timeout bounds one retrieval attempt. Zero disables it.
	Timeout time.Duration
	// RetryBackoff is the delay before a timed-out retrieval is retried.
	RetryBackoff time.Duration
	// IngestWorkers bounds how many documents a folder ingestion processes
	// at once.
	IngestWorkers int
	// SummarySentences is the length of the lesson summaries kept for
	// outlines. Negative disables them.
	SummarySentences int
	Metrics          *metrics.Metrics
}

type Service struct {
	store    *store.Store
	chunker  *chunker.Chunker
	registry registry.Registry
	locker   lock.Locker
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(st *store.Store, ch *chunker.Chunker, reg registry.Registry, locker lock.Locker, opts Options) *Service {
	if opts.IngestWorkers <= 0 {
		opts.IngestWorkers = 4
	}
	if opts.SummarySentences == 0 {
		opts.SummarySentences = 1
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 250 * time.Millisecond
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Service{
		store:    st,
		chunker:  ch,
		registry: reg,
		locker:   locker,
		opts:     opts,
		metrics:  m,
		logger:   logger.WithComponent("service"),
	}
}

// Load seeds the registry with the titles already in the catalog, so a
// persistent store is not re-ingested by a fresh process.
func (s *Service) Load(ctx context.Context) (int, error) {
	titles, err := s.store.CourseTitles(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing catalog: %w", err)
	}
	added := 0
	for _, title := range titles {
		ok, err := s.registry.Add(ctx, title)
		if err != nil {
			return added, fmt.Errorf("registering %q: %w", title, err)
		}
		if ok {
			added++
		}
	}
	if added > 0 {
		s.logger.Info("registry seeded from catalog", "courses", added)
	}
	orphans, err := s.orphans(ctx, titles)
	if err != nil {
		return added, err
	}
	if len(orphans) > 0 {
		s.logger.Warn("registered courses are missing from the catalog and will not be re-ingested; reload with --clear",
			"courses", orphans)
	}
	return added, nil
}

// Orphans lists registered titles that have no catalog entry, which happens
// when a persistent registry outlives the store it was recorded against.
func (s *Service) Orphans(ctx context.Context) ([]string, error) {
	titles, err := s.store.CourseTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	return s.orphans(ctx, titles)
}

func (s *Service) orphans(ctx context.Context, cataloged []string) ([]string, error) {
	registered, err := s.registry.Titles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing registry: %w", err)
	}
	var out []string
	for _, title := range registered {
		if !slices.Contains(cataloged, title) {
			out = append(out, title)
		}
	}
	return out, nil
}

// IngestDocument parses raw and indexes the course. A course whose title is
// already loaded is returned with ErrDuplicateCourse and nothing is
// written.
func (s *Service) IngestDocument(ctx context.Context, raw string) (domain.Course, error) {
	course, _, err := s.ingest(ctx, raw, nil)
	return course, err
}

// turn orders catalog writes when documents are ingested concurrently, so
// catalog insertion order follows document order.
type turn struct {
	prev <-chan struct{}
	mine chan struct{}
}

func (t *turn) wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *turn) done() {
	if t != nil {
		close(t.mine)
	}
}

func (s *Service) ingest(ctx context.Context, raw string, t *turn) (domain.Course, int, error) {
	// The next document's turn must not come before ours, whatever happens.
	defer func() {
		_ = t.wait(ctx)
		t.done()
	}()

	course, err := parser.Parse(raw)
	if err != nil {
		outcome := "malformed"
		if errors.Is(err, domain.ErrEmptyDocument) {
			outcome = "empty"
		}
		s.metrics.DocumentsTotal.WithLabelValues(outcome).Inc()
		return domain.Course{}, 0, err
	}
	if s.opts.SummarySentences > 0 {
		for i, l := range course.Lessons {
			course.Lessons[i].Summary = summarizer.Summarize(l.Body, s.opts.SummarySentences)
		}
	}
	log := logger.FromContext(ctx).With("component", "service", "course", course.Title)
	fail := func(err error) (domain.Course, int, error) {
		s.metrics.DocumentsTotal.WithLabelValues("failed").Inc()
		return course, 0, err
	}

	// Cheap check first so known courses are not embedded again. It is
	// repeated under the lock.
	if dup, err := s.isLoaded(ctx, log, course.Title); err != nil {
		return fail(err)
	} else if dup {
		return course, 0, fmt.Errorf("%w: %q", domain.ErrDuplicateCourse, course.Title)
	}

	prepared, err := s.store.Prepare(ctx, course, s.chunker.ChunkCourse(course))
	if err != nil {
		return fail(err)
	}
	// Wait for our turn before locking so the lock is never held while
	// waiting on another document.
	if err := t.wait(ctx); err != nil {
		return fail(err)
	}

	unlock, err := s.locker.Lock(ctx, "course:"+domain.CourseID(course.Title))
	if err != nil {
		return fail(fmt.Errorf("locking course %q: %w", course.Title, err))
	}
	defer unlock()

	if dup, err := s.isLoaded(ctx, log, course.Title); err != nil {
		return fail(err)
	} else if dup {
		return course, 0, fmt.Errorf("%w: %q", domain.ErrDuplicateCourse, course.Title)
	}
	if err := s.store.Write(ctx, prepared); err != nil {
		return fail(err)
	}
	if _, err := s.registry.Add(ctx, course.Title); err != nil {
		return fail(fmt.Errorf("registering %q: %w", course.Title, err))
	}
	s.metrics.DocumentsTotal.WithLabelValues("ingested").Inc()
	s.metrics.ChunksStoredTotal.Add(float64(prepared.Chunks()))
	log.Info("course ingested", "lessons", len(course.Lessons), "chunks", prepared.Chunks())
	return course, prepared.Chunks(), nil
}

func (s *Service) isLoaded(ctx context.Context, log *slog.Logger, title string) (bool, error) {
	loaded, err := s.registry.Contains(ctx, title)
	if err != nil {
		return false, fmt.Errorf("checking registry for %q: %w", title, err)
	}
	if loaded {
		log.Info("course already loaded, skipping")
		s.metrics.DocumentsTotal.WithLabelValues("duplicate").Inc()
	}
	return loaded, nil
}

// HandleDocument ingests one document arriving from a stream such as Kafka
// or a folder watch. Documents that can never succeed (malformed, empty or
// already loaded) are logged and swallowed so the stream moves past them.
func (s *Service) HandleDocument(ctx context.Context, doc source.Document) error {
	_, err := s.IngestDocument(ctx, doc.Text)
	switch {
	case err == nil, errors.Is(err, domain.ErrDuplicateCourse):
		return nil
	case errors.Is(err, domain.ErrMalformedDocument), errors.Is(err, domain.ErrEmptyDocument):
		s.logger.Warn("skipping document", "name", doc.Name, "error", err)
		return nil
	default:
		return fmt.Errorf("ingesting %s: %w", doc.Name, err)
	}
}

// DocumentFailure names a document that could not be read or parsed.
type DocumentFailure struct {
	Name string
	Err  error
}

// IngestReport summarizes a folder ingestion.
type IngestReport struct {
	Courses    []string
	Chunks     int
	Duplicates []string
	Failures   []DocumentFailure
}

// IngestFolder ingests every document src yields. Unreadable and malformed
// documents are recorded and skipped, duplicates are counted, and any other
// failure stops the run. With clear set the store and registry are emptied
// first.
func (s *Service) IngestFolder(ctx context.Context, src source.Source, clear bool) (IngestReport, error) {
	var report IngestReport
	if clear {
		if err := s.store.Clear(ctx); err != nil {
			return report, err
		}
		if err := s.registry.Clear(ctx); err != nil {
			return report, fmt.Errorf("clearing registry: %w", err)
		}
		s.logger.Info("store cleared")
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.IngestWorkers)

	first := make(chan struct{})
	close(first)
	var prev <-chan struct{} = first

	for doc, err := range src.Documents(gctx) {
		if err != nil {
			if gctx.Err() != nil {
				break
			}
			s.logger.Warn("skipping unreadable document", "name", doc.Name, "error", err)
			report.Failures = append(report.Failures, DocumentFailure{Name: doc.Name, Err: err})
			continue
		}
		t := &turn{prev: prev, mine: make(chan struct{})}
		prev = t.mine
		g.Go(func() error {
			course, n, err := s.ingest(gctx, doc.Text, t)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Courses = append(report.Courses, course.Title)
				report.Chunks += n
			case errors.Is(err, domain.ErrDuplicateCourse):
				report.Duplicates = append(report.Duplicates, course.Title)
			case errors.Is(err, domain.ErrMalformedDocument), errors.Is(err, domain.ErrEmptyDocument):
				s.logger.Warn("skipping document", "name", doc.Name, "error", err)
				report.Failures = append(report.Failures, DocumentFailure{Name: doc.Name, Err: err})
			default:
				return fmt.Errorf("ingesting %s: %w", doc.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	s.logger.Info("folder ingested",
		"courses", len(report.Courses),
		"chunks", report.Chunks,
		"duplicates", len(report.Duplicates),
		"failures", len(report.Failures),
	)
	return report, nil
}

// Stats reports the catalog size and titles in insertion order.
func (s *Service) Stats(ctx context.Context) (domain.CourseStats, error) {
	titles, err := s.store.CourseTitles(ctx)
	if err != nil {
		return domain.CourseStats{}, fmt.Errorf("listing courses: %w", err)
	}
	if titles == nil {
		titles = []string{}
	}
	return domain.CourseStats{Total: len(titles), Titles: titles}, nil
}

// Outline resolves courseHint and returns the cataloged course.
func (s *Service) Outline(ctx context.Context, courseHint string) (domain.Course, error) {
	title, err := s.store.ResolveCourseName(ctx, courseHint)
	if err != nil {
		return domain.Course{}, err
	}
	course, ok, err := s.store.Course(ctx, title)
	if err != nil {
		return domain.Course{}, err
	}
	if !ok {
		return domain.Course{}, fmt.Errorf("%w: %q", domain.ErrCourseNotFound, title)
	}
	return course, nil
}
