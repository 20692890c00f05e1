package storage

import (
	"context"
	"time"

	"content-harvester/pkg/models"
)

// RuleStore persists site rules. Site names are unique across all rules.
type RuleStore interface {
	// CreateRule inserts a rule, assigning ID and timestamps when missing.
	// Returns utils.ErrDuplicateSiteName if the site name is taken.
	CreateRule(rule models.SiteRule) (*models.SiteRule, error)

	// GetRule returns utils.ErrNotFound for an unknown id
	GetRule(id string) (*models.SiteRule, error)

	// GetRuleBySiteName looks a rule up through the unique site name index
	GetRuleBySiteName(siteName string) (*models.SiteRule, error)

	// UpdateRule applies mutate to the stored rule inside one transaction.
	// A rename that collides with another rule returns utils.ErrDuplicateSiteName.
	UpdateRule(id string, mutate func(*models.SiteRule) error) (*models.SiteRule, error)

	// DeleteRule removes the rule and its name index entry
	DeleteRule(id string) error

	// ListRules returns all rules ordered by creation time
	ListRules() ([]models.SiteRule, error)
}

// CrawlStore persists crawl results and their depth results.
// A depth result is keyed by its parent's ID, so at most one exists per crawl result.
type CrawlStore interface {
	// CreateCrawlResults inserts all records in one transaction
	CreateCrawlResults(results []models.CrawlResult) ([]models.CrawlResult, error)

	GetCrawlResult(id string) (*models.CrawlResult, error)

	// UpdateCrawlResult applies mutate inside one transaction and bumps UpdatedAt
	UpdateCrawlResult(id string, mutate func(*models.CrawlResult) error) (*models.CrawlResult, error)

	// DeleteCrawlResult removes the depth result first, then the record, in one transaction
	DeleteCrawlResult(id string) error

	// ListCrawlResults returns all records, newest first
	ListCrawlResults() ([]models.CrawlResult, error)

	// GetDepthResult returns utils.ErrNotFound when the record was never depth crawled
	GetDepthResult(crawlResultID string) (*models.DepthCrawlResult, error)

	// SaveDepthCrawl writes (or overwrites) the depth result and applies mutate to
	// the parent record in the same transaction
	SaveDepthCrawl(depth models.DepthCrawlResult, mutate func(*models.CrawlResult) error) (*models.CrawlResult, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// Store combines all store interfaces for components that need full access
type Store interface {
	RuleStore
	CrawlStore
	StoreAdmin
}
