// Package store composes the catalog and content collections into the
// dual index used for ingestion and retrieval. It does not deduplicate;
// callers decide whether a course should be written.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"courserag/internal/domain"
	"courserag/internal/embedding"
	"courserag/internal/logger"
	"courserag/internal/vectorstore"
)

const (
	DefaultMinResolveScore = 0.35
	DefaultMaxResults      = 5
	defaultEmbedWorkers    = 4
)

type Options struct {
	// MinResolveScore is the lowest catalog similarity accepted as a course
	// name match.
	MinResolveScore float64
	// MaxResults bounds a search when the caller passes no limit.
	MaxResults int
	// EmbedWorkers bounds concurrent embedding calls during a chunk upsert.
	EmbedWorkers int
}

type Store struct {
	catalog  vectorstore.Collection
	content  vectorstore.Collection
	embedder embedding.Embedder
	opts     Options
	logger   *slog.Logger
}

func New(catalog, content vectorstore.Collection, embedder embedding.Embedder, opts Options) *Store {
	if opts.MinResolveScore <= 0 {
		opts.MinResolveScore = DefaultMinResolveScore
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.EmbedWorkers <= 0 {
		opts.EmbedWorkers = defaultEmbedWorkers
	}
	return &Store{
		catalog:  catalog,
		content:  content,
		embedder: embedder,
		opts:     opts,
		logger:   logger.WithComponent("store"),
	}
}

// UpsertCourse writes the catalog entry for a course. Only the title is
// embedded; the rest of the metadata rides along as payload.
func (s *Store) UpsertCourse(ctx context.Context, course domain.Course) error {
	rec, err := s.courseRecord(ctx, course)
	if err != nil {
		return err
	}
	return s.writeCatalog(ctx, rec)
}

// UpsertChunks embeds the prefixed content of every chunk and writes them as
// one batch.
func (s *Store) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	records, err := s.chunkRecords(ctx, chunks)
	if err != nil {
		return err
	}
	return s.writeContent(ctx, records)
}

// Prepared is a course whose embeddings have been computed but not yet
// written.
type Prepared struct {
	Course  domain.Course
	catalog vectorstore.Record
	content []vectorstore.Record
}

// Chunks is the number of chunks that Write will store.
func (p Prepared) Chunks() int { return len(p.content) }

// Prepare embeds a course and its chunks without touching either
// collection, so the slow part of ingestion can run outside any lock.
func (s *Store) Prepare(ctx context.Context, course domain.Course, chunks []domain.Chunk) (Prepared, error) {
	content, err := s.chunkRecords(ctx, chunks)
	if err != nil {
		return Prepared{}, err
	}
	catalog, err := s.courseRecord(ctx, course)
	if err != nil {
		return Prepared{}, err
	}
	return Prepared{Course: course, catalog: catalog, content: content}, nil
}

// Write stores a prepared course. Chunks go first: a course becomes
// resolvable only once its content is searchable. When the catalog write
// fails the chunks stay behind under their stable IDs and the next ingest of
// the course overwrites them.
func (s *Store) Write(ctx context.Context, p Prepared) error {
	if err := s.writeContent(ctx, p.content); err != nil {
		return err
	}
	return s.writeCatalog(ctx, p.catalog)
}

func (s *Store) courseRecord(ctx context.Context, course domain.Course) (vectorstore.Record, error) {
	vec, err := s.embedder.Embed(ctx, course.Title)
	if err != nil {
		return vectorstore.Record{}, fmt.Errorf("embedding course title %q: %w", course.Title, err)
	}
	extra, err := json.Marshal(course)
	if err != nil {
		return vectorstore.Record{}, fmt.Errorf("encoding course %q: %w", course.Title, err)
	}
	return vectorstore.Record{
		ID:       domain.CourseID(course.Title),
		Vector:   vec,
		Document: course.Title,
		Metadata: vectorstore.Metadata{CourseTitle: course.Title, Extra: extra},
	}, nil
}

func (s *Store) writeCatalog(ctx context.Context, rec vectorstore.Record) error {
	if err := s.catalog.Upsert(ctx, []vectorstore.Record{rec}); err != nil {
		return fmt.Errorf("writing catalog entry %q: %w", rec.Metadata.CourseTitle, err)
	}
	return nil
}

func (s *Store) chunkRecords(ctx context.Context, chunks []domain.Chunk) ([]vectorstore.Record, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	records := make([]vectorstore.Record, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbedWorkers)
	for i, ch := range chunks {
		g.Go(func() error {
			content := ch.Content()
			vec, err := s.embedder.Embed(gctx, content)
			if err != nil {
				return fmt.Errorf("embedding chunk %d of lesson %d: %w", ch.Index, ch.LessonNumber, err)
			}
			extra, err := json.Marshal(ch)
			if err != nil {
				return err
			}
			records[i] = vectorstore.Record{
				ID:       ch.ID,
				Vector:   vec,
				Document: content,
				Metadata: vectorstore.Metadata{
					CourseTitle:  ch.CourseTitle,
					LessonNumber: domain.IntPtr(ch.LessonNumber),
					Extra:        extra,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) writeContent(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.content.Upsert(ctx, records); err != nil {
		return fmt.Errorf("writing %d chunks: %w", len(records), err)
	}
	return nil
}

// ResolveCourseName maps a fuzzy course reference to a catalog title. An
// exact title, compared case-insensitively, short-circuits; otherwise the
// single nearest catalog entry is accepted when its score reaches
// MinResolveScore. Equal scores go to the course that was cataloged first.
func (s *Store) ResolveCourseName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty course name", domain.ErrCourseNotFound)
	}
	if title, ok, err := s.exactTitle(ctx, name); err != nil {
		return "", fmt.Errorf("looking up course %q: %w", name, err)
	} else if ok {
		return title, nil
	}

	vec, err := s.embedder.Embed(ctx, name)
	if err != nil {
		return "", fmt.Errorf("embedding course name %q: %w", name, err)
	}
	matches, err := s.catalog.Query(ctx, vec, vectorstore.Query{Limit: 1, MinScore: s.opts.MinResolveScore})
	if err != nil {
		return "", fmt.Errorf("querying catalog for %q: %w", name, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %q (no title scored %.2f or more)", domain.ErrCourseNotFound, name, s.opts.MinResolveScore)
	}
	best := matches[0]
	s.logger.Debug("course name resolved", "query", name, "title", best.Record.Metadata.CourseTitle, "score", best.Score)
	return best.Record.Metadata.CourseTitle, nil
}

// exactTitle finds a cataloged title equal to name, preferring an exact-case
// hit and then the first case-insensitive one in catalog order.
func (s *Store) exactTitle(ctx context.Context, name string) (string, bool, error) {
	rec, ok, err := s.catalog.Get(ctx, domain.CourseID(name))
	if err != nil {
		return "", false, err
	}
	if ok {
		return rec.Metadata.CourseTitle, true, nil
	}
	records, err := s.catalog.List(ctx)
	if err != nil {
		return "", false, err
	}
	for _, r := range records {
		if strings.EqualFold(r.Metadata.CourseTitle, name) {
			return r.Metadata.CourseTitle, true, nil
		}
	}
	return "", false, nil
}

// Search ranks chunks matching filter against query. No data is not an
// error: an empty index or an unmatched filter yields an empty slice.
func (s *Store) Search(ctx context.Context, query string, filter domain.Filter, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = s.opts.MaxResults
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	matches, err := s.content.Query(ctx, vec, vectorstore.Query{Limit: limit, Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("querying content: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(matches))
	for _, m := range matches {
		var ch domain.Chunk
		if err := json.Unmarshal(m.Record.Metadata.Extra, &ch); err != nil {
			return nil, fmt.Errorf("decoding chunk %s: %w", m.Record.ID, err)
		}
		results = append(results, domain.SearchResult{Chunk: ch, Content: m.Record.Document, Score: m.Score})
	}
	return results, nil
}

// Course returns the cataloged metadata of a course by exact title.
func (s *Store) Course(ctx context.Context, title string) (domain.Course, bool, error) {
	rec, ok, err := s.catalog.Get(ctx, domain.CourseID(title))
	if err != nil || !ok {
		return domain.Course{}, false, err
	}
	var course domain.Course
	if err := json.Unmarshal(rec.Metadata.Extra, &course); err != nil {
		return domain.Course{}, false, fmt.Errorf("decoding catalog entry %q: %w", title, err)
	}
	return course, true, nil
}

// LessonLink returns the link of a lesson, or "" when either is unknown.
func (s *Store) LessonLink(ctx context.Context, title string, lesson int) (string, error) {
	course, ok, err := s.Course(ctx, title)
	if err != nil || !ok {
		return "", err
	}
	l, _ := course.Lesson(lesson)
	return l.Link, nil
}

// CourseLink returns the link of a course, or "" when it is unknown.
func (s *Store) CourseLink(ctx context.Context, title string) (string, error) {
	course, ok, err := s.Course(ctx, title)
	if err != nil || !ok {
		return "", err
	}
	return course.Link, nil
}

// CourseCount is the number of cataloged courses.
func (s *Store) CourseCount(ctx context.Context) (int, error) {
	return s.catalog.Count(ctx)
}

// CourseTitles lists cataloged titles in the order they were added.
func (s *Store) CourseTitles(ctx context.Context) ([]string, error) {
	records, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(records))
	for i, r := range records {
		titles[i] = r.Metadata.CourseTitle
	}
	return titles, nil
}

// ChunkCount is the number of stored chunks.
func (s *Store) ChunkCount(ctx context.Context) (int, error) {
	return s.content.Count(ctx)
}

// Clear empties both collections.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.content.Clear(ctx); err != nil {
		return fmt.Errorf("clearing content: %w", err)
	}
	if err := s.catalog.Clear(ctx); err != nil {
		return fmt.Errorf("clearing catalog: %w", err)
	}
	return nil
}
