package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"courserag/internal/domain"
	"courserag/internal/vectorstore"
)

// Collection is a minimal REST client to one Qdrant collection.
// It assumes cosine distance and creates the collection on first write, sized
// from the first vector.
type Collection struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	ensured bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewCollection(cfg Config) *Collection {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Collection{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// payload is the stored point payload. Seq orders records by first write.
type payload struct {
	CourseTitle  string          `json:"course_title"`
	LessonNumber *int            `json:"lesson_number,omitempty"`
	Document     string          `json:"document"`
	Extra        json.RawMessage `json:"extra,omitempty"`
	Seq          int64           `json:"seq"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
	Score   float64   `json:"score,omitempty"`
}

func (p point) record() vectorstore.Record {
	return vectorstore.Record{
		ID:       p.ID,
		Vector:   p.Vector,
		Document: p.Payload.Document,
		Metadata: vectorstore.Metadata{
			CourseTitle:  p.Payload.CourseTitle,
			LessonNumber: p.Payload.LessonNumber,
			Extra:        p.Payload.Extra,
		},
	}
}

func (c *Collection) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", c.url, c.collection)
}

func (c *Collection) ensure(ctx context.Context, dimension int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ensured {
		return nil
	}
	status, err := c.do(ctx, http.MethodGet, c.collectionURL(), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusNotFound {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if _, err := c.do(ctx, http.MethodPut, c.collectionURL(), body, nil); err != nil {
			return err
		}
	}
	c.ensured = true
	return nil
}

func (c *Collection) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	dim := len(records[0].Vector)
	for _, r := range records {
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s", vectorstore.ErrDimensionMismatch, r.ID)
		}
	}
	if err := c.ensure(ctx, dim); err != nil {
		return err
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	existing, err := c.retrieve(ctx, ids)
	if err != nil {
		return err
	}
	seq := time.Now().UnixNano()
	points := make([]point, len(records))
	for i, r := range records {
		seqFor := seq + int64(i)
		// keep the original position of a replaced record
		if prev, ok := existing[r.ID]; ok {
			seqFor = prev.Payload.Seq
		}
		points[i] = point{
			ID:     r.ID,
			Vector: r.Vector,
			Payload: payload{
				CourseTitle:  r.Metadata.CourseTitle,
				LessonNumber: r.Metadata.LessonNumber,
				Document:     r.Document,
				Extra:        r.Metadata.Extra,
				Seq:          seqFor,
			},
		}
	}
	body := map[string]any{"points": points}
	_, err = c.do(ctx, http.MethodPut, c.collectionURL()+"/points?wait=true", body, nil)
	return err
}

func filterBody(f domain.Filter) map[string]any {
	var must []map[string]any
	if f.CourseTitle != "" {
		must = append(must, map[string]any{"key": "course_title", "match": map[string]any{"value": f.CourseTitle}})
	}
	if f.LessonNumber != nil {
		must = append(must, map[string]any{"key": "lesson_number", "match": map[string]any{"value": *f.LessonNumber}})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func (c *Collection) Query(ctx context.Context, vector []float64, q vectorstore.Query) ([]vectorstore.Match, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	hits, err := c.search(ctx, vector, q.Filter, limit, q.MinScore)
	if err != nil {
		return nil, err
	}
	// A full page may end inside a run of equal scores, and the server picks
	// which of them make the cut. Fetch everything at or above the last score
	// so the Seq tie-break sees the whole run.
	if len(hits) == limit {
		boundary := hits[len(hits)-1].Score
		for n := limit * 2; ; n *= 2 {
			hits, err = c.search(ctx, vector, q.Filter, n, boundary)
			if err != nil {
				return nil, err
			}
			if len(hits) < n {
				break
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Payload.Seq < b.Payload.Seq
	})
	hits = hits[:min(len(hits), limit)]
	matches := make([]vectorstore.Match, 0, len(hits))
	for _, p := range hits {
		matches = append(matches, vectorstore.Match{Record: p.record(), Score: p.Score})
	}
	return matches, nil
}

func (c *Collection) search(ctx context.Context, vector []float64, f domain.Filter, limit int, threshold float64) ([]point, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if fb := filterBody(f); fb != nil {
		req["filter"] = fb
	}
	if threshold > 0 {
		req["score_threshold"] = threshold
	}
	var resp struct {
		Result []point `json:"result"`
	}
	status, err := c.do(ctx, http.MethodPost, c.collectionURL()+"/points/search", req, &resp)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Collection) getPoint(ctx context.Context, id string) (point, bool, error) {
	var resp struct {
		Result point `json:"result"`
	}
	status, err := c.do(ctx, http.MethodGet, c.collectionURL()+"/points/"+id, nil, &resp)
	if status == http.StatusNotFound {
		return point{}, false, nil
	}
	if err != nil {
		return point{}, false, err
	}
	return resp.Result, true, nil
}

// retrieve fetches existing points by ID in one request.
func (c *Collection) retrieve(ctx context.Context, ids []string) (map[string]point, error) {
	var resp struct {
		Result []point `json:"result"`
	}
	req := map[string]any{"ids": ids, "with_payload": true}
	if _, err := c.do(ctx, http.MethodPost, c.collectionURL()+"/points", req, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]point, len(resp.Result))
	for _, p := range resp.Result {
		out[p.ID] = p
	}
	return out, nil
}

func (c *Collection) Get(ctx context.Context, id string) (vectorstore.Record, bool, error) {
	p, ok, err := c.getPoint(ctx, id)
	if !ok || err != nil {
		return vectorstore.Record{}, ok, err
	}
	return p.record(), true, nil
}

func (c *Collection) List(ctx context.Context) ([]vectorstore.Record, error) {
	var all []point
	var offset any
	for {
		req := map[string]any{"limit": 256, "with_payload": true, "with_vector": true}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		status, err := c.do(ctx, http.MethodPost, c.collectionURL()+"/points/scroll", req, &resp)
		if status == http.StatusNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Result.Points...)
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Payload.Seq < all[j].Payload.Seq })
	out := make([]vectorstore.Record, len(all))
	for i, p := range all {
		out[i] = p.record()
	}
	return out, nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := c.do(ctx, http.MethodPost, c.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp)
	if status == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops the collection; the next write recreates it.
func (c *Collection) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, err := c.do(ctx, http.MethodDelete, c.collectionURL(), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	c.ensured = false
	return nil
}

// do sends a JSON request and decodes a JSON response into out. The status
// code is returned even when it is an error so callers can treat 404 as
// "no data".
func (c *Collection) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: decoding response: %w", method, url, err)
		}
	}
	return resp.StatusCode, nil
}
