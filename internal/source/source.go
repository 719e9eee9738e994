// Package source supplies raw course documents to ingestion, either from a
// folder on disk or from a Kafka topic.
package source

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Document is one raw course document. Name identifies where it came from
// and is only used for reporting.
type Document struct {
	Name string
	Text string
}

// Source yields documents. A read failure is yielded alongside the name of
// the document it concerns and does not end the sequence.
type Source interface {
	Documents(ctx context.Context) iter.Seq2[Document, error]
}

var documentExts = []string{".txt", ".md"}

// Dir reads every .txt and .md file directly under a folder, in name order.
type Dir struct {
	Path string
}

func (d Dir) files() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("reading folder %s: %w", d.Path, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(documentExts, strings.ToLower(filepath.Ext(e.Name()))) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func (d Dir) Documents(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		names, err := d.files()
		if err != nil {
			yield(Document{Name: d.Path}, err)
			return
		}
		for _, name := range names {
			if ctx.Err() != nil {
				yield(Document{Name: name}, ctx.Err())
				return
			}
			data, err := os.ReadFile(filepath.Join(d.Path, name))
			if !yield(Document{Name: name, Text: string(data)}, err) {
				return
			}
		}
	}
}

// Static yields a fixed list of documents.
type Static []Document

func (s Static) Documents(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		for _, doc := range s {
			if ctx.Err() != nil {
				yield(doc, ctx.Err())
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}
