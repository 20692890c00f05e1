package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/sirupsen/logrus"

	"content-harvester/pkg/models"
	"content-harvester/pkg/parse"
	"content-harvester/pkg/storage"
	"content-harvester/pkg/utils"
)

// RuleInput is the admin payload for creating or replacing a rule.
// Headers wins over RawHeaders when both are given.
type RuleInput struct {
	SiteName        string            `json:"site_name"`
	SiteURL         string            `json:"site_url"`
	TitleSelector   string            `json:"title_selector"`
	ContentSelector string            `json:"content_selector"`
	Headers         map[string]string `json:"request_headers,omitempty"`
	RawHeaders      string            `json:"raw_headers,omitempty"`
	IsActive        *bool             `json:"is_active,omitempty"` // nil = active
}

// Repository validates rule payloads and persists them through a RuleStore
type Repository struct {
	store storage.RuleStore
	log   *logrus.Entry
}

// NewRepository creates a Repository
func NewRepository(store storage.RuleStore, log *logrus.Entry) *Repository {
	return &Repository{store: store, log: log}
}

// normalize trims the input, validates required fields and selectors, and resolves headers.
func (in RuleInput) normalize() (RuleInput, map[string]string, error) {
	in.SiteName = strings.TrimSpace(in.SiteName)
	in.SiteURL = strings.TrimSpace(in.SiteURL)
	in.TitleSelector = strings.TrimSpace(in.TitleSelector)
	in.ContentSelector = strings.TrimSpace(in.ContentSelector)

	switch {
	case in.SiteName == "":
		return in, nil, fmt.Errorf("%w: site name is required", utils.ErrValidation)
	case in.SiteURL == "":
		return in, nil, fmt.Errorf("%w: site URL is required", utils.ErrValidation)
	case in.TitleSelector == "":
		return in, nil, fmt.Errorf("%w: title selector is required", utils.ErrValidation)
	case in.ContentSelector == "":
		return in, nil, fmt.Errorf("%w: content selector is required", utils.ErrValidation)
	}

	if _, _, err := parse.ParseAndNormalize(in.SiteURL); err != nil {
		return in, nil, err
	}
	if err := ValidateSelector(in.TitleSelector); err != nil {
		return in, nil, fmt.Errorf("title selector: %w", err)
	}
	if err := ValidateSelector(in.ContentSelector); err != nil {
		return in, nil, fmt.Errorf("content selector: %w", err)
	}

	headers := in.Headers
	if len(headers) == 0 && strings.TrimSpace(in.RawHeaders) != "" {
		parsed, err := ParseRequestHeaders(in.RawHeaders)
		if err != nil {
			return in, nil, err
		}
		headers = parsed
	}
	return in, headers, nil
}

func (in RuleInput) active() bool {
	return in.IsActive == nil || *in.IsActive
}

// ValidateSelector checks that sel compiles as a CSS selector.
func ValidateSelector(sel string) error {
	if _, err := cascadia.Compile(sel); err != nil {
		return fmt.Errorf("%w: invalid CSS selector '%s': %w", utils.ErrValidation, sel, err)
	}
	return nil
}

// Create validates and stores a new rule. A taken site name returns utils.ErrDuplicateSiteName.
func (r *Repository) Create(in RuleInput) (*models.SiteRule, error) {
	in, headers, err := in.normalize()
	if err != nil {
		return nil, err
	}

	rule := models.SiteRule{
		SiteName:        in.SiteName,
		SiteURL:         in.SiteURL,
		TitleSelector:   in.TitleSelector,
		ContentSelector: in.ContentSelector,
		IsActive:        in.active(),
	}
	rule.SetRequestHeaders(headers)

	created, err := r.store.CreateRule(rule)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"rule": created.ID, "site": created.SiteName}).Info("Rule created")
	return created, nil
}

// Update replaces every field of rule id. Empty headers clear the stored headers.
// The duplicate-name check excludes the rule itself.
func (r *Repository) Update(id string, in RuleInput) (*models.SiteRule, error) {
	in, headers, err := in.normalize()
	if err != nil {
		return nil, err
	}

	updated, err := r.store.UpdateRule(id, func(rule *models.SiteRule) error {
		rule.SiteName = in.SiteName
		rule.SiteURL = in.SiteURL
		rule.TitleSelector = in.TitleSelector
		rule.ContentSelector = in.ContentSelector
		rule.IsActive = in.active()
		rule.SetRequestHeaders(headers)
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"rule": id, "site": updated.SiteName}).Info("Rule updated")
	return updated, nil
}

// Delete removes rule id
func (r *Repository) Delete(id string) error {
	if err := r.store.DeleteRule(id); err != nil {
		return err
	}
	r.log.WithField("rule", id).Info("Rule deleted")
	return nil
}

// Get returns rule id
func (r *Repository) Get(id string) (*models.SiteRule, error) {
	return r.store.GetRule(id)
}

// GetBySiteName returns the rule registered for siteName
func (r *Repository) GetBySiteName(siteName string) (*models.SiteRule, error) {
	return r.store.GetRuleBySiteName(strings.TrimSpace(siteName))
}

// List returns one page of rules whose site name or URL contains keyword, newest first,
// and the total number of matches. page is 1-based; limit <= 0 returns every match.
func (r *Repository) List(keyword string, page, limit int) ([]models.SiteRule, int, error) {
	all, err := r.store.ListRules()
	if err != nil {
		return nil, 0, err
	}

	keyword = strings.TrimSpace(keyword)
	matched := make([]models.SiteRule, 0, len(all))
	for _, rule := range all {
		if keyword == "" || strings.Contains(rule.SiteName, keyword) || strings.Contains(rule.SiteURL, keyword) {
			matched = append(matched, rule)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if limit <= 0 {
		return matched, total, nil
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return []models.SiteRule{}, total, nil
	}
	end := min(start+limit, total)
	return matched[start:end], total, nil
}

// ActiveRuleForSource returns the active rule whose site name equals the result source label,
// or nil when there is none.
func (r *Repository) ActiveRuleForSource(source string) (*models.SiteRule, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}
	rule, err := r.store.GetRuleBySiteName(source)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return nil, nil
	}
	return rule, nil
}
