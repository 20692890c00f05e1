package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"content-harvester/pkg/export"
	"content-harvester/pkg/lifecycle"
	"content-harvester/pkg/models"
	"content-harvester/pkg/orchestrate"
	"content-harvester/pkg/rules"
	"content-harvester/pkg/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	snippetLength   = 160
	depthChunkSize  = 10 // ids per progress update of a depth crawl job
)

// handleListSources handles the list_sources tool
func (s *Server) handleListSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sources := s.cfg.Service.Sources()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"sources":       sources,
		"total_sources": len(sources),
	})), nil
}

// handleSearch handles the search tool
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := request.GetString("source", "")
	if source == "" {
		return mcp.NewToolResultError("source parameter is required"), nil
	}
	keyword := request.GetString("keyword", "")
	page := max(request.GetInt("page", 1), 1)
	limit := request.GetInt("limit", 10)

	if request.GetBool("save", false) {
		saved, err := s.cfg.Service.SearchAndSave(ctx, keyword, source, page, limit)
		if err != nil {
			return toolError("search", err), nil
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"keyword": keyword,
			"source":  source,
			"page":    page,
			"saved":   len(saved),
			"results": saved,
		})), nil
	}

	results, err := s.cfg.Service.Search(ctx, keyword, source, page, limit)
	if err != nil {
		return toolError("search", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"keyword": keyword,
		"source":  source,
		"page":    page,
		"total":   len(results),
		"results": results,
	})), nil
}

// handleCollectKeywords starts a background collection over keywords x sources
func (s *Server) handleCollectKeywords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keywords := splitList(request.GetString("keywords", ""))
	if len(keywords) == 0 {
		return mcp.NewToolResultError("keywords parameter is required"), nil
	}
	sources := splitList(request.GetString("sources", ""))
	if len(sources) == 0 {
		sources = s.cfg.Service.Sources()
	}
	if err := orchestrate.ValidateSources(s.cfg.Service.Sources(), sources); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	targets := orchestrate.ExpandTargets(keywords, sources)
	opts := orchestrate.Options{
		Limit:      request.GetInt("limit", 10),
		DepthCrawl: request.GetBool("depth_crawl", false),
	}

	key := fmt.Sprintf("collect:%s:%d:%t", targetKey(targets), opts.Limit, opts.DepthCrawl)
	job, created := s.jobManager.CreateJob(JobKindCollect, key, len(targets))
	if !created {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"job_id":  job.ID,
			"status":  job.Status,
			"message": "An identical collection is already running",
		})), nil
	}

	go s.runCollectJob(job.ID, targets, opts)

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_id":  job.ID,
		"status":  JobStatusPending,
		"targets": len(targets),
		"message": fmt.Sprintf("Collection started for %d keyword/source pairs. Use get_job_status to check progress.", len(targets)),
	})), nil
}

// handleExtractDetail handles the extract_detail tool
func (s *Server) handleExtractDetail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	var rule *models.SiteRule
	if ruleID := request.GetString("rule_id", ""); ruleID != "" {
		r, err := s.cfg.Rules.Get(ruleID)
		if err != nil {
			return toolError("loading rule", err), nil
		}
		rule = r
	}
	headers, err := rules.ParseRequestHeaders(request.GetString("raw_headers", ""))
	if err != nil {
		return toolError("parsing headers", err), nil
	}

	detail := s.cfg.Service.ExtractDetail(ctx, rawURL, rule, headers)
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"url":    rawURL,
		"detail": detail,
	})), nil
}

// handleRepairRule handles the repair_rule tool
func (s *Server) handleRepairRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	ruleID := request.GetString("rule_id", "")
	expected := request.GetString("expected_title", "")
	if rawURL == "" || ruleID == "" || expected == "" {
		return mcp.NewToolResultError("url, rule_id and expected_title parameters are required"), nil
	}

	updated, rule, err := s.cfg.Service.RepairRule(ctx, rawURL, ruleID, expected)
	if err != nil {
		return toolError("repairing rule", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"updated": updated,
		"rule":    rule,
	})), nil
}

// handleListRules handles the list_rules tool
func (s *Server) handleListRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, limit := pageParams(request)
	list, total, err := s.cfg.Rules.List(request.GetString("keyword", ""), page, limit)
	if err != nil {
		return toolError("listing rules", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"rules": list,
		"total": total,
		"page":  page,
		"limit": limit,
	})), nil
}

// handleCreateRule handles the create_rule tool
func (s *Server) handleCreateRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rule, err := s.cfg.Rules.Create(ruleInput(request))
	if err != nil {
		return toolError("creating rule", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"rule": rule})), nil
}

// handleUpdateRule handles the update_rule tool
func (s *Server) handleUpdateRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ruleID := request.GetString("rule_id", "")
	if ruleID == "" {
		return mcp.NewToolResultError("rule_id parameter is required"), nil
	}
	rule, err := s.cfg.Rules.Update(ruleID, ruleInput(request))
	if err != nil {
		return toolError("updating rule", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"rule": rule})), nil
}

// handleDeleteRule handles the delete_rule tool
func (s *Server) handleDeleteRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ruleID := request.GetString("rule_id", "")
	if ruleID == "" {
		return mcp.NewToolResultError("rule_id parameter is required"), nil
	}
	if err := s.cfg.Rules.Delete(ruleID); err != nil {
		return toolError("deleting rule", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"deleted": ruleID})), nil
}

// handleDepthCrawl starts a background depth crawl over the given ids
func (s *Server) handleDepthCrawl(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := splitList(request.GetString("ids", ""))
	if len(ids) == 0 {
		return mcp.NewToolResultError("ids parameter is required"), nil
	}

	key := "depth:" + strings.Join(sortedCopy(ids), ",")
	job, created := s.jobManager.CreateJob(JobKindDepthCrawl, key, len(ids))
	if !created {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"job_id":  job.ID,
			"status":  job.Status,
			"message": "A depth crawl of these results is already running",
		})), nil
	}

	go s.runDepthCrawlJob(job.ID, ids)

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_id":  job.ID,
		"status":  JobStatusPending,
		"total":   len(ids),
		"message": fmt.Sprintf("Depth crawl started for %d results. Use get_job_status to check progress.", len(ids)),
	})), nil
}

// handleRecrawl handles the recrawl tool
func (s *Server) handleRecrawl(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	depth, err := s.cfg.Service.Recrawl(ctx, id)
	if err != nil {
		return toolError("recrawling", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"depth": depth})), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job not found: %s", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":     job.ID,
		"kind":       job.Kind,
		"status":     job.Status,
		"started_at": job.StartedAt.Format(time.RFC3339),
		"total":      job.Total,
		"processed":  job.Processed,
		"succeeded":  job.Succeeded,
		"failed":     job.Failed,
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration"] = job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond).String()
	}
	if job.ErrorMessage != "" {
		result["error"] = job.ErrorMessage
	}
	if job.Result != nil {
		result["result"] = job.Result
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleStoreResults handles the store_results tool
func (s *Server) handleStoreResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := splitList(request.GetString("ids", ""))
	if len(ids) == 0 {
		return mcp.NewToolResultError("ids parameter is required"), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"result": s.cfg.Service.Store(ctx, ids),
	})), nil
}

// handleDeleteResults handles the delete_results tool
func (s *Server) handleDeleteResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := splitList(request.GetString("ids", ""))
	if len(ids) == 0 {
		return mcp.NewToolResultError("ids parameter is required"), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"result": s.cfg.Service.Delete(ctx, ids),
	})), nil
}

// handleListResults handles the list_results tool
func (s *Server) handleListResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, limit := pageParams(request)
	filter := lifecycle.ListFilter{
		Keyword: request.GetString("keyword", ""),
		Source:  request.GetString("source", ""),
		Page:    page,
		Limit:   limit,
	}
	args := request.GetArguments()
	if v, ok := args["depth_crawled"].(bool); ok {
		filter.DepthCrawled = &v
	}
	if v, ok := args["is_stored"].(bool); ok {
		filter.IsStored = &v
	}

	p, err := s.cfg.Service.List(filter)
	if err != nil {
		return toolError("listing results", err), nil
	}

	items := make([]map[string]interface{}, 0, len(p.Items))
	for _, r := range p.Items {
		item := map[string]interface{}{
			"id":            r.ID,
			"keyword":       r.Keyword,
			"title":         r.Title,
			"source":        r.Source,
			"url":           r.OriginalURL,
			"state":         r.State(),
			"depth_crawled": r.DepthCrawled,
			"is_stored":     r.IsStored,
			"created_at":    r.CreatedAt.Format(time.RFC3339),
		}
		if r.Summary != "" {
			item["snippet"] = extractSnippet(r.Summary, filter.Keyword, snippetLength)
		}
		items = append(items, item)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results": items,
		"total":   p.Total,
		"page":    p.Page,
		"limit":   p.Limit,
	})), nil
}

// handleGetResult handles the get_result tool
func (s *Server) handleGetResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	detail, err := s.cfg.Service.Get(id)
	if err != nil {
		return toolError("loading result", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"result": detail.Result,
		"depth":  detail.Depth,
	})), nil
}

// handleUpdateResult handles the update_result tool. Only arguments present in the request are applied.
func (s *Server) handleUpdateResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	args := request.GetArguments()
	var patch lifecycle.Patch
	for name, dst := range map[string]**string{
		"keyword": &patch.Keyword,
		"title":   &patch.Title,
		"summary": &patch.Summary,
		"cover":   &patch.Cover,
	} {
		if v, ok := args[name].(string); ok {
			*dst = &v
		}
	}
	if v, ok := args["is_stored"].(bool); ok {
		patch.IsStored = &v
	}

	updated, err := s.cfg.Service.Update(id, patch)
	if err != nil {
		return toolError("updating result", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"result": updated})), nil
}

// handleGetChunks handles the get_chunks tool
func (s *Server) handleGetChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	if s.cfg.Analyzer == nil {
		return mcp.NewToolResultError("content analysis is not configured"), nil
	}
	detail, err := s.cfg.Service.Get(id)
	if err != nil {
		return toolError("loading result", err), nil
	}
	if detail.Depth == nil {
		return mcp.NewToolResultError(fmt.Sprintf("result %s has not been depth crawled", id)), nil
	}
	chunks, err := s.cfg.Analyzer.Chunk(detail.Depth.Markdown)
	if err != nil {
		return toolError("chunking", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"id":           id,
		"title":        detail.Depth.Title,
		"total_chunks": len(chunks),
		"chunks":       chunks,
	})), nil
}

// handleStats handles the stats tool
func (s *Server) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.cfg.Service.Stats(time.Now())
	if err != nil {
		return toolError("computing stats", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"stats": stats})), nil
}

// handleExportResults handles the export_results tool
func (s *Server) handleExportResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword := request.GetString("keyword", "")
	p, err := s.cfg.Service.List(lifecycle.ListFilter{
		Keyword: keyword,
		Source:  request.GetString("source", ""),
	})
	if err != nil {
		return toolError("listing results", err), nil
	}

	depth := make(map[string]*models.DepthCrawlResult)
	for _, r := range p.Items {
		if !r.DepthCrawled {
			continue
		}
		detail, err := s.cfg.Service.Get(r.ID)
		if err != nil {
			s.log.Warnf("Exporting %s without its depth result: %v", r.ID, err)
			continue
		}
		if detail.Depth != nil {
			depth[r.ID] = detail.Depth
		}
	}

	path := filepath.Join(s.cfg.ExportDir, export.FileName(keyword, time.Now()))
	if err := export.WriteXLSX(path, p.Items, depth); err != nil {
		return toolError("exporting", err), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"path":    path,
		"results": len(p.Items),
		"details": len(depth),
	})), nil
}

// runDepthCrawlJob depth crawls ids in chunks so progress is visible while it runs
func (s *Server) runDepthCrawlJob(jobID string, ids []string) {
	ctx := s.jobManager.GetContext(jobID)
	jobLog := s.log.WithField("job_id", jobID)
	s.jobManager.UpdateStatus(jobID, JobStatusRunning, "")

	total := models.BatchResult{Total: len(ids), Failures: []models.BatchFailure{}}
	for chunk := range slices.Chunk(ids, depthChunkSize) {
		batch := s.cfg.Service.Collect(ctx, chunk)
		total.SuccessCount += batch.SuccessCount
		total.FailCount += batch.FailCount
		total.Failures = append(total.Failures, batch.Failures...)
		s.jobManager.UpdateProgress(jobID, batch.SuccessCount, batch.FailCount)
	}
	s.jobManager.SetResult(jobID, total)

	if ctx.Err() != nil {
		jobLog.Info("Depth crawl job cancelled")
		return
	}
	jobLog.Infof("Depth crawl job finished: %d succeeded, %d failed", total.SuccessCount, total.FailCount)
	s.jobManager.UpdateStatus(jobID, JobStatusCompleted, "")
}

// runCollectJob runs an orchestrated collection for the job
func (s *Server) runCollectJob(jobID string, targets []orchestrate.Target, opts orchestrate.Options) {
	ctx := s.jobManager.GetContext(jobID)
	jobLog := s.log.WithField("job_id", jobID)
	s.jobManager.UpdateStatus(jobID, JobStatusRunning, "")

	orch := orchestrate.NewOrchestrator(ctx, s.cfg.Service, targets, opts, jobLog)
	results := orch.Run()

	summary := make([]map[string]interface{}, 0, len(results))
	var succeeded, failed int
	var errs []string
	for _, r := range results {
		entry := map[string]interface{}{
			"keyword":  r.Target.Keyword,
			"source":   r.Target.Source,
			"success":  r.Success,
			"saved":    r.Saved,
			"crawled":  r.Crawled,
			"duration": r.Duration.Round(time.Millisecond).String(),
		}
		if r.Error != nil {
			entry["error"] = r.Error.Error()
			errs = append(errs, fmt.Sprintf("%s: %v", r.Target, r.Error))
		}
		if r.Success {
			succeeded++
		} else {
			failed++
		}
		summary = append(summary, entry)
	}
	s.jobManager.UpdateProgress(jobID, succeeded, failed)
	s.jobManager.SetResult(jobID, summary)

	if ctx.Err() != nil {
		jobLog.Info("Collection job cancelled")
		return
	}
	if succeeded == 0 && failed > 0 {
		s.jobManager.UpdateStatus(jobID, JobStatusFailed, strings.Join(errs, "; "))
		return
	}
	s.jobManager.UpdateStatus(jobID, JobStatusCompleted, strings.Join(errs, "; "))
}

// toolError turns a service error into a tool error, naming the failure category
func toolError(action string, err error) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s failed: %v", action, err)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		msg = fmt.Sprintf("%s failed (not found): %v", action, err)
	case errors.Is(err, utils.ErrUnknownSource):
		msg = fmt.Sprintf("%s failed (unknown source): %v", action, err)
	case utils.IsValidationError(err):
		msg = fmt.Sprintf("%s failed (invalid input): %v", action, err)
	}
	return mcp.NewToolResultError(msg)
}

func ruleInput(request mcp.CallToolRequest) rules.RuleInput {
	in := rules.RuleInput{
		SiteName:        request.GetString("site_name", ""),
		SiteURL:         request.GetString("site_url", ""),
		TitleSelector:   request.GetString("title_selector", ""),
		ContentSelector: request.GetString("content_selector", ""),
		RawHeaders:      request.GetString("raw_headers", ""),
	}
	if v, ok := request.GetArguments()["is_active"].(bool); ok {
		in.IsActive = &v
	}
	return in
}

func pageParams(request mcp.CallToolRequest) (page, limit int) {
	page = max(request.GetInt("page", 1), 1)
	limit = request.GetInt("limit", defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	return page, min(limit, maxPageSize)
}

// splitList splits a comma-separated parameter, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sortedCopy(items []string) []string {
	c := slices.Clone(items)
	slices.Sort(c)
	return c
}

func targetKey(targets []orchestrate.Target) string {
	keys := make([]string, 0, len(targets))
	for _, t := range targets {
		keys = append(keys, t.String())
	}
	return strings.Join(sortedCopy(keys), ",")
}

// extractSnippet extracts a snippet around the query match, slicing on rune
// boundaries so multi-byte UTF-8 characters are never split.
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	queryRunes := []rune(strings.ToLower(query))
	contentLowerRunes := []rune(strings.ToLower(content))

	idx := -1
	if len(queryRunes) > 0 && len(contentLowerRunes) == len(runes) {
		for i := 0; i <= len(contentLowerRunes)-len(queryRunes); i++ {
			if string(contentLowerRunes[i:i+len(queryRunes)]) == string(queryRunes) {
				idx = i
				break
			}
		}
	}

	if idx == -1 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	start := max(idx-maxLen/2, 0)
	end := min(idx+len(queryRunes)+maxLen/2, len(runes))

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
