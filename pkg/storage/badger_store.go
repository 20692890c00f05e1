package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"content-harvester/pkg/log"
	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

const (
	ruleKeyPrefix     = "rule:"     // rule:<id> -> SiteRule JSON
	ruleNameKeyPrefix = "rulename:" // rulename:<site name> -> rule id
	crawlKeyPrefix    = "crawl:"    // crawl:<id> -> CrawlResult JSON
	depthKeyPrefix    = "depth:"    // depth:<crawl result id> -> DepthCrawlResult JSON
	dbDirName         = "harvest_db"
)

const maxConflictRetries = 10

// BadgerStore implements Store on an embedded BadgerDB
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
	now func() time.Time
}

// NewBadgerStore opens (or creates) the database under stateDir
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, dbDirName)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	logger.Infof("Harvest database opened at %s", dbPath)
	return &BadgerStore{db: db, log: logger, now: time.Now}, nil
}

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// fn must be safe to run more than once.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// getJSON decodes the value at key into v. A missing key returns utils.ErrNotFound.
func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", utils.ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("%w: reading '%s': %w", utils.ErrDatabase, key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("%w: decoding JSON at '%s': %w", utils.ErrParsing, key, err)
		}
		return nil
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding JSON for '%s': %w", utils.ErrParsing, key, err)
	}
	return txn.SetEntry(badger.NewEntry([]byte(key), data))
}

func keyExists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: reading '%s': %w", utils.ErrDatabase, key, err)
	}
	return true, nil
}

// wrapDB leaves sentinel-carrying errors alone and marks everything else as a database error
func wrapDB(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, utils.ErrNotFound) || errors.Is(err, utils.ErrDuplicateSiteName) ||
		errors.Is(err, utils.ErrValidation) || errors.Is(err, utils.ErrDatabase) ||
		errors.Is(err, utils.ErrAlreadyDepthCrawled) || errors.Is(err, utils.ErrAlreadyExists) ||
		errors.Is(err, utils.ErrParsing) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", utils.ErrDatabase, op, err)
}

// --- Rules ---

func (s *BadgerStore) CreateRule(rule models.SiteRule) (*models.SiteRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := s.now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	nameKey := ruleNameKeyPrefix + rule.SiteName
	err := s.dbUpdate(func(txn *badger.Txn) error {
		taken, err := keyExists(txn, nameKey)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: '%s'", utils.ErrDuplicateSiteName, rule.SiteName)
		}
		if err := txn.SetEntry(badger.NewEntry([]byte(nameKey), []byte(rule.ID))); err != nil {
			return err
		}
		return setJSON(txn, ruleKeyPrefix+rule.ID, rule)
	})
	if err != nil {
		return nil, wrapDB("create rule", err)
	}
	s.log.WithFields(logrus.Fields{"rule": rule.ID, "site": rule.SiteName}).Debug("Rule created")
	return &rule, nil
}

func (s *BadgerStore) GetRule(id string) (*models.SiteRule, error) {
	var rule models.SiteRule
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, ruleKeyPrefix+id, &rule)
	})
	if err != nil {
		return nil, wrapDB("get rule", err)
	}
	return &rule, nil
}

func (s *BadgerStore) GetRuleBySiteName(siteName string) (*models.SiteRule, error) {
	var rule models.SiteRule
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ruleNameKeyPrefix + siteName))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: rule for site '%s'", utils.ErrNotFound, siteName)
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, ruleKeyPrefix+string(id), &rule)
	})
	if err != nil {
		return nil, wrapDB("get rule by site name", err)
	}
	return &rule, nil
}

func (s *BadgerStore) UpdateRule(id string, mutate func(*models.SiteRule) error) (*models.SiteRule, error) {
	var updated models.SiteRule
	err := s.dbUpdate(func(txn *badger.Txn) error {
		var rule models.SiteRule
		if err := getJSON(txn, ruleKeyPrefix+id, &rule); err != nil {
			return err
		}
		oldName := rule.SiteName
		if err := mutate(&rule); err != nil {
			return err
		}
		rule.ID = id
		rule.UpdatedAt = s.now()

		if rule.SiteName != oldName {
			newKey := ruleNameKeyPrefix + rule.SiteName
			taken, err := keyExists(txn, newKey)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: '%s'", utils.ErrDuplicateSiteName, rule.SiteName)
			}
			if err := txn.Delete([]byte(ruleNameKeyPrefix + oldName)); err != nil {
				return err
			}
			if err := txn.SetEntry(badger.NewEntry([]byte(newKey), []byte(id))); err != nil {
				return err
			}
		}
		updated = rule
		return setJSON(txn, ruleKeyPrefix+id, rule)
	})
	if err != nil {
		return nil, wrapDB("update rule", err)
	}
	return &updated, nil
}

func (s *BadgerStore) DeleteRule(id string) error {
	err := s.dbUpdate(func(txn *badger.Txn) error {
		var rule models.SiteRule
		if err := getJSON(txn, ruleKeyPrefix+id, &rule); err != nil {
			return err
		}
		if err := txn.Delete([]byte(ruleNameKeyPrefix + rule.SiteName)); err != nil {
			return err
		}
		return txn.Delete([]byte(ruleKeyPrefix + id))
	})
	return wrapDB("delete rule", err)
}

func (s *BadgerStore) ListRules() ([]models.SiteRule, error) {
	var rules []models.SiteRule
	err := scanPrefix(s.db, ruleKeyPrefix, func(val []byte) error {
		var rule models.SiteRule
		if err := json.Unmarshal(val, &rule); err != nil {
			s.log.Warnf("Skipping undecodable rule entry: %v", err)
			return nil
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return nil, wrapDB("list rules", err)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

// --- Crawl results ---

func (s *BadgerStore) CreateCrawlResults(results []models.CrawlResult) ([]models.CrawlResult, error) {
	now := s.now()
	created := make([]models.CrawlResult, len(results))
	for i, r := range results {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = r.CreatedAt
		created[i] = r
	}

	err := s.dbUpdate(func(txn *badger.Txn) error {
		for i := range created {
			key := crawlKeyPrefix + created[i].ID
			exists, err := keyExists(txn, key)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: crawl result '%s'", utils.ErrAlreadyExists, created[i].ID)
			}
			if err := setJSON(txn, key, created[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapDB("create crawl results", err)
	}
	return created, nil
}

func (s *BadgerStore) GetCrawlResult(id string) (*models.CrawlResult, error) {
	var result models.CrawlResult
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, crawlKeyPrefix+id, &result)
	})
	if err != nil {
		return nil, wrapDB("get crawl result", err)
	}
	return &result, nil
}

func (s *BadgerStore) UpdateCrawlResult(id string, mutate func(*models.CrawlResult) error) (*models.CrawlResult, error) {
	var updated models.CrawlResult
	err := s.dbUpdate(func(txn *badger.Txn) error {
		var result models.CrawlResult
		if err := getJSON(txn, crawlKeyPrefix+id, &result); err != nil {
			return err
		}
		if err := mutate(&result); err != nil {
			return err
		}
		result.ID = id
		result.UpdatedAt = s.now()
		updated = result
		return setJSON(txn, crawlKeyPrefix+id, result)
	})
	if err != nil {
		return nil, wrapDB("update crawl result", err)
	}
	return &updated, nil
}

func (s *BadgerStore) DeleteCrawlResult(id string) error {
	err := s.dbUpdate(func(txn *badger.Txn) error {
		exists, err := keyExists(txn, crawlKeyPrefix+id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: crawl result '%s'", utils.ErrNotFound, id)
		}
		if err := txn.Delete([]byte(depthKeyPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(crawlKeyPrefix + id))
	})
	return wrapDB("delete crawl result", err)
}

func (s *BadgerStore) ListCrawlResults() ([]models.CrawlResult, error) {
	var results []models.CrawlResult
	err := scanPrefix(s.db, crawlKeyPrefix, func(val []byte) error {
		var r models.CrawlResult
		if err := json.Unmarshal(val, &r); err != nil {
			s.log.Warnf("Skipping undecodable crawl result entry: %v", err)
			return nil
		}
		results = append(results, r)
		return nil
	})
	if err != nil {
		return nil, wrapDB("list crawl results", err)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func (s *BadgerStore) GetDepthResult(crawlResultID string) (*models.DepthCrawlResult, error) {
	var depth models.DepthCrawlResult
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, depthKeyPrefix+crawlResultID, &depth)
	})
	if err != nil {
		return nil, wrapDB("get depth result", err)
	}
	return &depth, nil
}

func (s *BadgerStore) SaveDepthCrawl(depth models.DepthCrawlResult, mutate func(*models.CrawlResult) error) (*models.CrawlResult, error) {
	id := depth.CrawlResultID
	var parent models.CrawlResult
	err := s.dbUpdate(func(txn *badger.Txn) error {
		var result models.CrawlResult
		if err := getJSON(txn, crawlKeyPrefix+id, &result); err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(&result); err != nil {
				return err
			}
		}
		now := s.now()
		result.UpdatedAt = now

		d := depth
		var existing models.DepthCrawlResult
		switch err := getJSON(txn, depthKeyPrefix+id, &existing); {
		case err == nil:
			d.CreatedAt = existing.CreatedAt
		case errors.Is(err, utils.ErrNotFound):
			d.CreatedAt = now
		default:
			return err
		}
		d.UpdatedAt = now

		if err := setJSON(txn, depthKeyPrefix+id, d); err != nil {
			return err
		}
		parent = result
		return setJSON(txn, crawlKeyPrefix+id, result)
	})
	if err != nil {
		return nil, wrapDB("save depth crawl", err)
	}
	return &parent, nil
}

func scanPrefix(db *badger.DB, prefix string, fn func(val []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Admin ---

// RunGC runs BadgerDB's value log garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close closes the database. Safe to call more than once.
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing harvest DB: %v", err)
		return err
	}
	s.log.Debug("Harvest DB closed.")
	return nil
}
