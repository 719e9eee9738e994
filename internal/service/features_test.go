package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"courserag/internal/chunker"
	"courserag/internal/domain"
	"courserag/internal/embedding/hashing"
	"courserag/internal/lock"
	"courserag/internal/registry"
	"courserag/internal/store"
	"courserag/internal/vectorstore/memory"
)

var featureDocs = map[string]string{
	"intro":  introDoc,
	"mcp":    mcpDoc,
	"chroma": chromaDoc,
}

type world struct {
	svc       *Service
	got       domain.Retrieval
	err       error
	ingestErr error
}

func (w *world) reset(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
	ch, err := chunker.New(120, 20)
	if err != nil {
		return ctx, err
	}
	st := store.New(memory.NewCollection(), memory.NewCollection(),
		hashing.NewEmbedder(hashing.DefaultDimension), store.Options{MaxResults: 10})
	*w = world{svc: New(st, ch, registry.NewMemory(), lock.NewKeyed(), Options{})}
	return ctx, nil
}

func (w *world) documentIsIngested(name string) error {
	doc, ok := featureDocs[name]
	if !ok {
		return fmt.Errorf("no document named %q", name)
	}
	_, err := w.svc.IngestDocument(context.Background(), doc)
	return err
}

func (w *world) documentIsIngestedAgain(name string) error {
	doc, ok := featureDocs[name]
	if !ok {
		return fmt.Errorf("no document named %q", name)
	}
	_, w.ingestErr = w.svc.IngestDocument(context.Background(), doc)
	return nil
}

func (w *world) retrieve(req domain.RetrieveRequest) {
	w.got, w.err = w.svc.Retrieve(context.Background(), req)
}

func (w *world) iRetrieve(query string) error {
	w.retrieve(domain.RetrieveRequest{Query: query})
	return nil
}

func (w *world) iRetrieveInCourse(query, course string) error {
	w.retrieve(domain.RetrieveRequest{Query: query, CourseHint: domain.StringPtr(course)})
	return nil
}

func (w *world) iRetrieveInLesson(query, course string, lesson int) error {
	w.retrieve(domain.RetrieveRequest{Query: query, CourseHint: domain.StringPtr(course), LessonHint: domain.IntPtr(lesson)})
	return nil
}

func (w *world) retrievalSucceeds() error {
	if w.err != nil {
		return fmt.Errorf("retrieval failed: %w", w.err)
	}
	if w.got.Empty() {
		return errors.New("no results")
	}
	return nil
}

func (w *world) resolvedCourseIs(title string) error {
	if err := w.retrievalSucceeds(); err != nil {
		return err
	}
	if w.got.ResolvedCourse != title {
		return fmt.Errorf("resolved %q, want %q", w.got.ResolvedCourse, title)
	}
	return nil
}

func (w *world) everyResultFromCourse(title string) error {
	for _, r := range w.got.Results {
		if r.Chunk.CourseTitle != title {
			return fmt.Errorf("result from %q", r.Chunk.CourseTitle)
		}
	}
	return nil
}

func (w *world) everyResultFromLesson(title string, lesson int) error {
	if err := w.everyResultFromCourse(title); err != nil {
		return err
	}
	for _, r := range w.got.Results {
		if r.Chunk.LessonNumber != lesson {
			return fmt.Errorf("result from lesson %d", r.Chunk.LessonNumber)
		}
	}
	return nil
}

func (w *world) everyPassageStartsWith(prefix string) error {
	for _, p := range w.got.Passages {
		if !strings.HasPrefix(p, prefix) {
			return fmt.Errorf("passage %q lacks %q", p, prefix)
		}
	}
	return nil
}

func (w *world) everySourceLinksTo(link string) error {
	for _, s := range w.got.Sources {
		if s.Link != link {
			return fmt.Errorf("source link %q, want %q", s.Link, link)
		}
	}
	return nil
}

func (w *world) oneSourcePerResult() error {
	if len(w.got.Sources) != len(w.got.Results) || len(w.got.Passages) != len(w.got.Results) {
		return fmt.Errorf("%d results, %d passages, %d sources", len(w.got.Results), len(w.got.Passages), len(w.got.Sources))
	}
	for i, r := range w.got.Results {
		if w.got.Sources[i].CourseTitle != r.Chunk.CourseTitle {
			return fmt.Errorf("source %d names %q, result is from %q", i, w.got.Sources[i].CourseTitle, r.Chunk.CourseTitle)
		}
	}
	return nil
}

func (w *world) failsCourseNotFound() error {
	if !errors.Is(w.err, domain.ErrCourseNotFound) {
		return fmt.Errorf("got error %v, want course not found", w.err)
	}
	return nil
}

func (w *world) noSources() error {
	if len(w.got.Sources) != 0 {
		return fmt.Errorf("%d sources left behind", len(w.got.Sources))
	}
	return nil
}

func (w *world) skippedAsDuplicate() error {
	if !errors.Is(w.ingestErr, domain.ErrDuplicateCourse) {
		return fmt.Errorf("got %v, want duplicate course", w.ingestErr)
	}
	return nil
}

func (w *world) catalogLists(table *godog.Table) error {
	want := make([]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		want = append(want, row.Cells[0].Value)
	}
	stats, err := w.svc.Stats(context.Background())
	if err != nil {
		return err
	}
	if !slices.Equal(stats.Titles, want) || stats.Total != len(want) {
		return fmt.Errorf("catalog %v (%d), want %v", stats.Titles, stats.Total, want)
	}
	return nil
}

func initializeScenario(sc *godog.ScenarioContext) {
	w := &world{}
	sc.Before(w.reset)

	sc.Step(`^the "([^"]*)" document is ingested$`, w.documentIsIngested)
	sc.Step(`^the "([^"]*)" document is ingested again$`, w.documentIsIngestedAgain)
	sc.Step(`^I retrieve "([^"]*)"$`, w.iRetrieve)
	sc.Step(`^I retrieve "([^"]*)" in course "([^"]*)"$`, w.iRetrieveInCourse)
	sc.Step(`^I retrieve "([^"]*)" in course "([^"]*)" lesson (\d+)$`, w.iRetrieveInLesson)
	sc.Step(`^the retrieval succeeds$`, w.retrievalSucceeds)
	sc.Step(`^the resolved course is "([^"]*)"$`, w.resolvedCourseIs)
	sc.Step(`^every result is from course "([^"]*)"$`, w.everyResultFromCourse)
	sc.Step(`^every result is from "([^"]*)" lesson (\d+)$`, w.everyResultFromLesson)
	sc.Step(`^every passage starts with "([^"]*)"$`, w.everyPassageStartsWith)
	sc.Step(`^every source links to "([^"]*)"$`, w.everySourceLinksTo)
	sc.Step(`^there is one source per result$`, w.oneSourcePerResult)
	sc.Step(`^the retrieval fails because the course was not found$`, w.failsCourseNotFound)
	sc.Step(`^there are no sources$`, w.noSources)
	sc.Step(`^it is skipped as a duplicate$`, w.skippedAsDuplicate)
	sc.Step(`^the catalog lists:$`, w.catalogLists)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "retrieval",
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature scenarios failed")
	}
}
