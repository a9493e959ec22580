package search

import (
	"context"
	"log"
	"strconv"

	"trackline/api/internal/store"
)

// Service routes queries to Meilisearch when healthy and to Postgres
// full-text search otherwise. The meili backend may be nil when no
// MEILI_URL is configured.
type Service struct {
	meili *Meili
	pgfts *PGFTS
}

func NewService(meili *Meili, pgfts *PGFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	resp := Response{Results: []Result{}, Query: q.Text}

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			if results != nil {
				resp.Results = results
			}
			resp.Total = total
			return resp, nil
		}
		log.Printf("search: meilisearch failed, falling back to postgres: %v", err)
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		return resp, err
	}
	if results != nil {
		resp.Results = results
	}
	resp.Total = total
	return resp, nil
}

// IndexTask mirrors a task write into the search index. Errors are logged,
// never surfaced: indexing is best effort and Postgres remains the source
// of truth.
func (s *Service) IndexTask(t store.Task) {
	if s.meili == nil {
		return
	}
	if err := s.meili.IndexTask(recordFromTask(t)); err != nil {
		log.Printf("search: index task %d: %v", t.ID, err)
	}
}

// IndexTasks bulk-indexes tasks, used by the reindex sweep on startup.
func (s *Service) IndexTasks(tasks []store.Task) {
	if s.meili == nil || len(tasks) == 0 {
		return
	}
	records := make([]TaskRecord, len(tasks))
	for i, t := range tasks {
		records[i] = recordFromTask(t)
	}
	if err := s.meili.IndexTasks(records); err != nil {
		log.Printf("search: bulk index %d tasks: %v", len(tasks), err)
	}
}

// RemoveTask drops a task from the index after deletion.
func (s *Service) RemoveTask(taskID int64) {
	if s.meili == nil {
		return
	}
	if err := s.meili.DeleteTask(strconv.FormatInt(taskID, 10)); err != nil {
		log.Printf("search: remove task %d: %v", taskID, err)
	}
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func recordFromTask(t store.Task) TaskRecord {
	return TaskRecord{
		ID:          strconv.FormatInt(t.ID, 10),
		TaskID:      t.ID,
		DashboardID: t.DashboardID,
		Name:        t.Name,
		Description: t.Description,
		Type:        t.Type,
		Gate:        t.Gate,
	}
}
