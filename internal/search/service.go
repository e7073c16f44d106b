package search

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban/api/internal/store"
)

// Index is the external engine the service prefers when it is healthy.
type Index interface {
	Searcher
	Healthy() bool
	IndexTasks(records []TaskRecord) error
	DeleteTask(id string) error
}

// RecordSource loads the searchable projection of tasks from the system of
// record.
type RecordSource interface {
	GetTaskDocument(ctx context.Context, taskID string) (store.TaskDocument, error)
	ListTaskDocuments(ctx context.Context, workspaceID string) ([]store.TaskDocument, error)
}

// Service is the facade that tries Meilisearch first and falls back to the
// database.
type Service struct {
	index    Index
	fallback Searcher
	records  RecordSource
	log      log.FieldLogger
	wg       sync.WaitGroup
}

// NewService creates a search service. index may be nil when Meilisearch is
// not configured.
func NewService(index Index, fallback Searcher, records RecordSource, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if m, ok := index.(*Meili); ok && m == nil {
		index = nil
	}
	return &Service{index: index, fallback: fallback, records: records, log: logger.WithField("component", "search")}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise falls back to the database.
// It never fails; errors degrade to an empty result.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.WithError(err).Warn("index search failed, falling back to database")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.WithError(err).Error("fallback search failed")
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexTask reloads a task and pushes it to the index in the background.
func (s *Service) IndexTask(taskID string) {
	if !s.indexReady() || s.records == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		doc, err := s.records.GetTaskDocument(ctx, taskID)
		if err != nil {
			s.log.WithError(err).WithField("task_id", taskID).Warn("load task for indexing")
			return
		}
		if err := s.index.IndexTasks([]TaskRecord{recordFrom(doc)}); err != nil {
			s.log.WithError(err).WithField("task_id", taskID).Warn("index task")
		}
	}()
}

// DeleteTasks removes tasks from the index in the background.
func (s *Service) DeleteTasks(taskIDs ...string) {
	if !s.indexReady() || len(taskIDs) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, id := range taskIDs {
			if err := s.index.DeleteTask(id); err != nil {
				s.log.WithError(err).WithField("task_id", id).Warn("delete task from index")
			}
		}
	}()
}

// ReindexAll pushes every task from the database to the index.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexReady() || s.records == nil {
		return
	}
	docs, err := s.records.ListTaskDocuments(ctx, "")
	if err != nil {
		s.log.WithError(err).Error("reindex load failed")
		return
	}
	records := make([]TaskRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, recordFrom(doc))
	}
	if err := s.index.IndexTasks(records); err != nil {
		s.log.WithError(err).Error("reindex tasks failed")
		return
	}
	s.log.WithField("tasks", len(records)).Info("search index rebuilt")
}

// Wait blocks until background indexing started so far has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func recordFrom(doc store.TaskDocument) TaskRecord {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	return TaskRecord{
		ID:          doc.ID,
		WorkspaceID: doc.WorkspaceID,
		SpaceID:     doc.SpaceID,
		ColumnID:    doc.ColumnID,
		Title:       doc.Title,
		Description: doc.Description,
		Priority:    doc.Priority,
		Tags:        tags,
		UpdatedAt:   doc.UpdatedAt.Unix(),
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

// StoreSearcher adapts a store that can match tasks itself, such as the
// in-memory store, to Searcher.
type StoreSearcher struct {
	src interface {
		SearchTasks(ctx context.Context, workspaceID, query string, limit int) ([]store.TaskDocument, error)
	}
}

func NewStoreSearcher(src interface {
	SearchTasks(ctx context.Context, workspaceID, query string, limit int) ([]store.TaskDocument, error)
}) *StoreSearcher {
	return &StoreSearcher{src: src}
}

func (s *StoreSearcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if q.Text == "" {
		return nil, 0, nil
	}
	docs, err := s.src.SearchTasks(ctx, q.WorkspaceID, q.Text, 0)
	if err != nil {
		return nil, 0, err
	}
	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		if q.SpaceID != "" && doc.SpaceID != q.SpaceID {
			continue
		}
		results = append(results, Result{
			ID:          doc.ID,
			Title:       doc.Title,
			Snippet:     doc.Description,
			WorkspaceID: doc.WorkspaceID,
			SpaceID:     doc.SpaceID,
			ColumnID:    doc.ColumnID,
			Priority:    doc.Priority,
			Tags:        append([]string{}, doc.Tags...),
		})
	}
	total := len(results)
	start := q.offset()
	if start > total {
		start = total
	}
	end := start + q.limit()
	if end > total {
		end = total
	}
	return results[start:end], total, nil
}
