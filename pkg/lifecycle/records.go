package lifecycle

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"content-harvester/pkg/events"
	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

// Detail is a crawl result together with its depth result, if any
type Detail struct {
	Result models.CrawlResult       `json:"result"`
	Depth  *models.DepthCrawlResult `json:"depth,omitempty"`
}

// ListFilter selects crawl results. Zero fields match everything; Limit <= 0 returns all.
type ListFilter struct {
	Keyword      string // substring of keyword, title or summary
	Source       string
	DepthCrawled *bool
	IsStored     *bool
	Page         int
	Limit        int
}

// Page is one page of crawl results, newest first
type Page struct {
	Items []models.CrawlResult `json:"items"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// Patch holds the user-editable fields of a crawl result. Nil fields are left unchanged.
type Patch struct {
	Keyword  *string
	Title    *string
	Summary  *string
	Cover    *string
	IsStored *bool
}

// Store marks every id as stored. Already stored records only get UpdatedAt bumped.
func (s *Service) Store(ctx context.Context, ids []string) models.BatchResult {
	return s.runBatch(ctx, ids, 1, func(ctx context.Context, id string) error {
		updated, err := s.store.UpdateCrawlResult(id, func(c *models.CrawlResult) error {
			c.IsStored = true
			return nil
		})
		if err != nil {
			return err
		}
		s.publish(ctx, s.event(events.TypeStored, *updated))
		return nil
	})
}

// Delete removes every id together with its depth result.
func (s *Service) Delete(ctx context.Context, ids []string) models.BatchResult {
	return s.runBatch(ctx, ids, 1, func(ctx context.Context, id string) error {
		record, err := s.store.GetCrawlResult(id)
		if err != nil {
			return err
		}
		if err := s.store.DeleteCrawlResult(id); err != nil {
			return err
		}
		s.publish(ctx, s.event(events.TypeDeleted, *record))
		return nil
	})
}

// Get returns a record with its depth result when one exists.
func (s *Service) Get(id string) (*Detail, error) {
	record, err := s.store.GetCrawlResult(id)
	if err != nil {
		return nil, err
	}
	d := &Detail{Result: *record}
	depth, err := s.store.GetDepthResult(id)
	switch {
	case err == nil:
		d.Depth = depth
	case !errors.Is(err, utils.ErrNotFound):
		return nil, err
	}
	return d, nil
}

// List filters and paginates the persisted crawl results.
func (s *Service) List(f ListFilter) (*Page, error) {
	all, err := s.store.ListCrawlResults()
	if err != nil {
		return nil, err
	}

	keyword := strings.TrimSpace(f.Keyword)
	items := make([]models.CrawlResult, 0, len(all))
	for _, c := range all {
		if keyword != "" && !strings.Contains(c.Keyword, keyword) &&
			!strings.Contains(c.Title, keyword) && !strings.Contains(c.Summary, keyword) {
			continue
		}
		if f.Source != "" && c.Source != f.Source {
			continue
		}
		if f.DepthCrawled != nil && c.DepthCrawled != *f.DepthCrawled {
			continue
		}
		if f.IsStored != nil && c.IsStored != *f.IsStored {
			continue
		}
		items = append(items, c)
	}

	p := &Page{Total: len(items), Page: f.Page, Limit: f.Limit}
	if f.Limit <= 0 {
		p.Page, p.Items = 1, items
		return p, nil
	}
	if p.Page < 1 {
		p.Page = 1
	}
	start := (p.Page - 1) * f.Limit
	if start >= len(items) {
		p.Items = []models.CrawlResult{}
		return p, nil
	}
	p.Items = items[start:min(start+f.Limit, len(items))]
	return p, nil
}

// Update applies the non-nil fields of patch. The title may not be cleared.
func (s *Service) Update(id string, patch Patch) (*models.CrawlResult, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, utils.WrapErrorf(utils.ErrValidation, "title cannot be empty")
	}
	return s.store.UpdateCrawlResult(id, func(c *models.CrawlResult) error {
		if patch.Keyword != nil {
			c.Keyword = strings.TrimSpace(*patch.Keyword)
		}
		if patch.Title != nil {
			c.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Summary != nil {
			c.Summary = *patch.Summary
		}
		if patch.Cover != nil {
			c.Cover = *patch.Cover
		}
		if patch.IsStored != nil {
			c.IsStored = *patch.IsStored
		}
		return nil
	})
}

const (
	statsTopKeywords = 10
	statsDays        = 7
)

// Stats counts the records, the ten most frequent keywords and the records created on each of
// the seven days ending with now's day. Days without records are reported with a zero count.
func (s *Service) Stats(now time.Time) (*models.Stats, error) {
	all, err := s.store.ListCrawlResults()
	if err != nil {
		return nil, err
	}

	st := &models.Stats{TotalCount: len(all)}
	keywordCounts := make(map[string]int)
	dateCounts := make(map[string]int)
	for _, c := range all {
		if c.DepthCrawled {
			st.DepthCrawledCount++
		}
		if c.IsStored {
			st.StoredCount++
		}
		if c.Keyword != "" {
			keywordCounts[c.Keyword]++
		}
		dateCounts[c.CreatedAt.In(now.Location()).Format(time.DateOnly)]++
	}

	st.KeywordStats = make([]models.KeywordCount, 0, len(keywordCounts))
	for k, n := range keywordCounts {
		st.KeywordStats = append(st.KeywordStats, models.KeywordCount{Keyword: k, Count: n})
	}
	sort.Slice(st.KeywordStats, func(i, j int) bool {
		a, b := st.KeywordStats[i], st.KeywordStats[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Keyword < b.Keyword
	})
	if len(st.KeywordStats) > statsTopKeywords {
		st.KeywordStats = st.KeywordStats[:statsTopKeywords]
	}

	st.DateStats = make([]models.DateCount, 0, statsDays)
	for i := statsDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format(time.DateOnly)
		st.DateStats = append(st.DateStats, models.DateCount{Date: day, Count: dateCounts[day]})
	}
	return st, nil
}
