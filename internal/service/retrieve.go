package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"courserag/internal/domain"
	"courserag/internal/logger"
	"courserag/internal/resilience"
)

// stage is the position of a retrieval in its pipeline. A retrieval moves
// from unresolved to resolved (or fails) and then to searched.
type stage int

const (
	stageUnresolved stage = iota
	stageResolved
	stageSearched
)

func (s stage) String() string {
	switch s {
	case stageUnresolved:
		return "unresolved"
	case stageResolved:
		return "resolved"
	case stageSearched:
		return "searched"
	default:
		return "unknown"
	}
}

type pipeline struct {
	req    domain.RetrieveRequest
	stage  stage
	filter domain.Filter
	result domain.Retrieval
}

// Retrieve answers req with ranked passages and aligned sources. A course
// hint that matches no course fails the retrieval with ErrCourseNotFound;
// a retrieval that overruns the timeout fails with ErrRetrievalTimeout
// after one retry.
func (s *Service) Retrieve(ctx context.Context, req domain.RetrieveRequest) (domain.Retrieval, error) {
	if strings.TrimSpace(req.Query) == "" {
		return domain.Retrieval{}, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if req.LessonHint != nil && *req.LessonHint < 0 {
		return domain.Retrieval{}, fmt.Errorf("%w: negative lesson %d", domain.ErrInvalidInput, *req.LessonHint)
	}
	if _, ok := logger.RequestID(ctx); !ok {
		ctx = logger.WithRequestID(ctx, uuid.NewString())
	}
	log := logger.FromContext(ctx).With("component", "service")
	filtered := strconv.FormatBool(req.CourseHint != nil || req.LessonHint != nil)
	start := time.Now()

	var out domain.Retrieval
	err := resilience.Retry(ctx, "retrieve", resilience.RetryConfig{
		MaxAttempts:  2,
		InitialDelay: s.opts.RetryBackoff,
		MaxDelay:     s.opts.RetryBackoff,
		Retryable:    domain.IsRetryable,
	}, func() error {
		var attempt domain.Retrieval
		err := resilience.WithTimeout(ctx, s.opts.Timeout, "retrieve", func(ctx context.Context) error {
			r, err := s.run(ctx, req)
			attempt = r
			return err
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrRetrievalTimeout) {
				return fmt.Errorf("%w: %w", domain.ErrRetrievalTimeout, err)
			}
			return err
		}
		out = attempt
		return nil
	})
	s.metrics.RetrievalLatency.WithLabelValues(filtered).Observe(time.Since(start).Seconds())
	// A caller deadline that cut the retry short is still a timeout.
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrRetrievalTimeout) {
		err = fmt.Errorf("%w: %w", domain.ErrRetrievalTimeout, err)
	}

	switch {
	case err == nil:
		outcome := "ok"
		if out.Empty() {
			outcome = "empty"
		}
		s.metrics.RetrievalsTotal.WithLabelValues(outcome).Inc()
		s.metrics.RetrievalResults.Observe(float64(len(out.Results)))
		log.Debug("retrieval complete", "course", out.ResolvedCourse, "results", len(out.Results), "elapsed", time.Since(start))
		return out, nil
	case errors.Is(err, domain.ErrCourseNotFound):
		s.metrics.RetrievalsTotal.WithLabelValues("course_not_found").Inc()
		log.Info("retrieval failed: course not found", "course_hint", *req.CourseHint)
	case errors.Is(err, domain.ErrRetrievalTimeout):
		s.metrics.RetrievalsTotal.WithLabelValues("timeout").Inc()
		log.Warn("retrieval timed out", "timeout", s.opts.Timeout, "error", err)
	default:
		s.metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		log.Error("retrieval failed", "error", err)
	}
	return domain.Retrieval{}, err
}

// run executes one attempt of the pipeline.
func (s *Service) run(ctx context.Context, req domain.RetrieveRequest) (domain.Retrieval, error) {
	p := &pipeline{req: req, stage: stageUnresolved}
	for p.stage != stageSearched {
		var err error
		switch p.stage {
		case stageUnresolved:
			err = s.resolve(ctx, p)
		case stageResolved:
			err = s.search(ctx, p)
		}
		if err != nil {
			logger.FromContext(ctx).Debug("retrieval stage failed", "stage", p.stage, "error", err)
			return domain.Retrieval{}, err
		}
	}
	return p.result, nil
}

func (s *Service) resolve(ctx context.Context, p *pipeline) error {
	p.filter.LessonNumber = p.req.LessonHint
	if p.req.CourseHint != nil && strings.TrimSpace(*p.req.CourseHint) != "" {
		title, err := s.store.ResolveCourseName(ctx, *p.req.CourseHint)
		if err != nil {
			if errors.Is(err, domain.ErrCourseNotFound) {
				s.metrics.ResolutionsTotal.WithLabelValues("not_found").Inc()
			}
			return err
		}
		s.metrics.ResolutionsTotal.WithLabelValues("resolved").Inc()
		p.filter.CourseTitle = title
		p.result.ResolvedCourse = title
	}
	p.stage = stageResolved
	return nil
}

func (s *Service) search(ctx context.Context, p *pipeline) error {
	results, err := s.store.Search(ctx, p.req.Query, p.filter, p.req.Limit)
	if err != nil {
		return err
	}
	links := make(map[string]string)
	p.result.Results = results
	p.result.Passages = make([]string, len(results))
	p.result.Sources = make([]domain.Source, len(results))
	for i, r := range results {
		key := r.Chunk.CourseTitle + "\x00" + strconv.Itoa(r.Chunk.LessonNumber)
		link, ok := links[key]
		if !ok {
			link, err = s.sourceLink(ctx, r.Chunk.CourseTitle, r.Chunk.LessonNumber)
			if err != nil {
				return err
			}
			links[key] = link
		}
		p.result.Passages[i] = r.Header() + "\n" + r.Content
		p.result.Sources[i] = domain.Source{
			CourseTitle:  r.Chunk.CourseTitle,
			LessonNumber: domain.IntPtr(r.Chunk.LessonNumber),
			Link:         link,
		}
	}
	p.stage = stageSearched
	return nil
}

// sourceLink is the lesson link, or the course link for a lesson without one.
func (s *Service) sourceLink(ctx context.Context, title string, lesson int) (string, error) {
	link, err := s.store.LessonLink(ctx, title, lesson)
	if err != nil {
		return "", fmt.Errorf("looking up lesson link: %w", err)
	}
	if link != "" {
		return link, nil
	}
	link, err = s.store.CourseLink(ctx, title)
	if err != nil {
		return "", fmt.Errorf("looking up course link: %w", err)
	}
	return link, nil
}
