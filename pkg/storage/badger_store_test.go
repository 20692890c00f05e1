package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRule(name string) models.SiteRule {
	return models.SiteRule{
		SiteName:        name,
		SiteURL:         "https://www.sc.gov.cn",
		TitleSelector:   "h1.title",
		ContentSelector: "div.content",
		IsActive:        true,
	}
}

func TestRules_CreateAndGet(t *testing.T) {
	store := newTestStore(t)

	created, err := store.CreateRule(sampleRule("四川发布"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	byID, err := store.GetRule(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "四川发布", byID.SiteName)

	byName, err := store.GetRuleBySiteName("四川发布")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = store.GetRule("missing")
	assert.ErrorIs(t, err, utils.ErrNotFound)
	_, err = store.GetRuleBySiteName("missing")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestRules_DuplicateSiteName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateRule(sampleRule("四川发布"))
	require.NoError(t, err)

	_, err = store.CreateRule(sampleRule("四川发布"))
	assert.ErrorIs(t, err, utils.ErrDuplicateSiteName)

	_, err = store.CreateRule(sampleRule("新华网"))
	assert.NoError(t, err)
}

func TestRules_ConcurrentCreateSameName(t *testing.T) {
	store := newTestStore(t)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateRule(sampleRule("四川发布"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, utils.ErrDuplicateSiteName):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, dupes)
	rules, err := store.ListRules()
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestRules_UpdateRename(t *testing.T) {
	store := newTestStore(t)

	a, err := store.CreateRule(sampleRule("a"))
	require.NoError(t, err)
	_, err = store.CreateRule(sampleRule("b"))
	require.NoError(t, err)

	_, err = store.UpdateRule(a.ID, func(r *models.SiteRule) error {
		r.SiteName = "b"
		return nil
	})
	assert.ErrorIs(t, err, utils.ErrDuplicateSiteName)

	updated, err := store.UpdateRule(a.ID, func(r *models.SiteRule) error {
		r.SiteName = "c"
		r.TitleSelector = "h2"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "c", updated.SiteName)
	assert.Equal(t, a.ID, updated.ID)

	_, err = store.GetRuleBySiteName("a")
	assert.ErrorIs(t, err, utils.ErrNotFound, "old name index is released")
	got, err := store.GetRuleBySiteName("c")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.TitleSelector)

	// Name "a" is free again
	_, err = store.CreateRule(sampleRule("a"))
	assert.NoError(t, err)
}

func TestRules_UpdateMutateErrorAborts(t *testing.T) {
	store := newTestStore(t)
	rule, err := store.CreateRule(sampleRule("a"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.UpdateRule(rule.ID, func(r *models.SiteRule) error {
		r.TitleSelector = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetRule(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1.title", got.TitleSelector)
}

func TestRules_DeleteAndList(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		r := sampleRule(name)
		r.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := store.CreateRule(r)
		require.NoError(t, err)
	}

	rules, err := store.ListRules()
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "first", rules[0].SiteName)
	assert.Equal(t, "third", rules[2].SiteName)

	require.NoError(t, store.DeleteRule(rules[1].ID))
	assert.ErrorIs(t, store.DeleteRule(rules[1].ID), utils.ErrNotFound)

	_, err = store.GetRuleBySiteName("second")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestCrawlResults_Lifecycle(t *testing.T) {
	store := newTestStore(t)

	created, err := store.CreateCrawlResults([]models.CrawlResult{
		{Keyword: "西昌", Title: "西昌卫星发射中心", OriginalURL: "https://a.cn/1", Source: "baidu"},
		{Keyword: "西昌", Title: "西昌旅游", OriginalURL: "https://a.cn/2", Source: "baidu"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotEqual(t, created[0].ID, created[1].ID)

	id := created[0].ID
	got, err := store.GetCrawlResult(id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCollected, got.State())

	_, err = store.GetDepthResult(id)
	assert.ErrorIs(t, err, utils.ErrNotFound)

	parent, err := store.SaveDepthCrawl(models.DepthCrawlResult{
		CrawlResultID: id,
		Title:         "西昌卫星发射中心",
		Content:       "正文",
	}, func(r *models.CrawlResult) error {
		r.DepthCrawled = true
		r.IsStored = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, parent.DepthCrawled)
	assert.True(t, parent.IsStored)

	first, err := store.GetDepthResult(id)
	require.NoError(t, err)
	assert.Equal(t, "正文", first.Content)

	// Saving again overwrites the single depth result and keeps its creation time
	_, err = store.SaveDepthCrawl(models.DepthCrawlResult{CrawlResultID: id, Content: "新正文"}, nil)
	require.NoError(t, err)
	second, err := store.GetDepthResult(id)
	require.NoError(t, err)
	assert.Equal(t, "新正文", second.Content)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())

	require.NoError(t, store.DeleteCrawlResult(id))
	_, err = store.GetCrawlResult(id)
	assert.ErrorIs(t, err, utils.ErrNotFound)
	_, err = store.GetDepthResult(id)
	assert.ErrorIs(t, err, utils.ErrNotFound, "depth result is deleted with its parent")

	assert.ErrorIs(t, store.DeleteCrawlResult(id), utils.ErrNotFound)
}

func TestCrawlResults_CreateRejectsExistingID(t *testing.T) {
	store := newTestStore(t)

	created, err := store.CreateCrawlResults([]models.CrawlResult{{Title: "西昌卫星发射中心", Summary: "s"}})
	require.NoError(t, err)
	id := created[0].ID
	_, err = store.UpdateCrawlResult(id, func(r *models.CrawlResult) error {
		r.DepthCrawled = true
		r.IsStored = true
		return nil
	})
	require.NoError(t, err)

	_, err = store.CreateCrawlResults([]models.CrawlResult{
		{Title: "new", Summary: "s"},
		{ID: id, Title: "replacement", Summary: "s"},
	})
	assert.ErrorIs(t, err, utils.ErrAlreadyExists)

	got, err := store.GetCrawlResult(id)
	require.NoError(t, err)
	assert.Equal(t, "西昌卫星发射中心", got.Title)
	assert.True(t, got.DepthCrawled, "existing record is left untouched")

	list, err := store.ListCrawlResults()
	require.NoError(t, err)
	assert.Len(t, list, 1, "the batch is written all or nothing")

	_, err = store.CreateCrawlResults([]models.CrawlResult{{ID: "dup", Title: "a", Summary: "s"}, {ID: "dup", Title: "b", Summary: "s"}})
	assert.ErrorIs(t, err, utils.ErrAlreadyExists, "duplicate ids within one batch")
}

func TestCrawlResults_SaveDepthForMissingParent(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveDepthCrawl(models.DepthCrawlResult{CrawlResultID: "missing"}, nil)
	assert.ErrorIs(t, err, utils.ErrNotFound)
	_, err = store.GetDepthResult("missing")
	assert.ErrorIs(t, err, utils.ErrNotFound, "no orphan depth result is written")
}

func TestCrawlResults_UpdateBumpsUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	created, err := store.CreateCrawlResults([]models.CrawlResult{{Title: "t", Summary: "s"}})
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	updated, err := store.UpdateCrawlResult(created[0].ID, func(r *models.CrawlResult) error {
		r.IsStored = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.IsStored)
	assert.Equal(t, clock, updated.UpdatedAt)
	assert.True(t, updated.CreatedAt.Before(updated.UpdatedAt))
}

func TestCrawlResults_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.CreateCrawlResults([]models.CrawlResult{
		{Title: "old", Summary: "s", CreatedAt: base},
		{Title: "new", Summary: "s", CreatedAt: base.Add(48 * time.Hour)},
		{Title: "mid", Summary: "s", CreatedAt: base.Add(24 * time.Hour)},
	})
	require.NoError(t, err)

	list, err := store.ListCrawlResults()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{list[0].Title, list[1].Title, list[2].Title})
}

func TestBadgerStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	store1, err := NewBadgerStore(dir, testLogger())
	require.NoError(t, err)
	_, err = store1.CreateRule(sampleRule("四川发布"))
	require.NoError(t, err)
	require.NoError(t, store1.Close())
	require.NoError(t, store1.Close(), "second close is a no-op")

	store2, err := NewBadgerStore(dir, testLogger())
	require.NoError(t, err)
	defer store2.Close()

	_, err = store2.GetRuleBySiteName("四川发布")
	assert.NoError(t, err)
}

func TestBadgerStore_RunGCStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunGC(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunGC did not stop")
	}
}
