package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"content-harvester/pkg/export"
	"content-harvester/pkg/lifecycle"
	"content-harvester/pkg/models"
	"content-harvester/pkg/orchestrate"
	"content-harvester/pkg/rules"
	"content-harvester/pkg/search"
	"content-harvester/pkg/utils"
	"content-harvester/pkg/watch"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "search":
		runSearch(os.Args[2:])
	case "collect":
		runCollect(os.Args[2:])
	case "depth":
		runDepth(os.Args[2:])
	case "extract":
		runExtract(os.Args[2:])
	case "store":
		runBatch("store", os.Args[2:])
	case "delete":
		runBatch("delete", os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "show":
		runShow(os.Args[2:])
	case "rules":
		runRules(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "sources":
		runSources(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("harvester %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `harvester - Search result collection and content extraction

Usage:
  harvester <command> [options]

Commands:
  search      Search one source for a keyword, optionally saving results
  collect     Collect several keywords across sources in parallel
  depth       Depth crawl saved results (or recrawl one)
  extract     Extract title, content and media from a single URL
  store       Mark results as stored
  delete      Delete results and their depth results
  list        List saved results
  show        Show one result with its depth result
  rules       Manage site rules (list, create, update, delete, repair)
  stats       Show totals, top keywords and the last week per day
  export      Export results to an xlsx workbook
  watch       Collect configured watches on schedule
  validate    Validate configuration file
  sources     List available search sources
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'harvester <command> -h' for command-specific help.`)
}

// signalContext is cancelled on the first SIGINT/SIGTERM; a second signal forces exit
func signalContext(log *logrus.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal %v, forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// commonFlags registers -config and -loglevel
func commonFlags(fs *flag.FlagSet) (configFile, logLevel *string) {
	configFile = fs.String("config", "config.yaml", "Path to config file")
	logLevel = fs.String("loglevel", "warn", "Log level (debug, info, warn, error)")
	return configFile, logLevel
}

func usage(fs *flag.FlagSet, synopsis string, examples ...string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: harvester %s\n\nOptions:\n", synopsis)
		fs.PrintDefaults()
		if len(examples) > 0 {
			fmt.Fprintf(os.Stderr, "\nExamples:\n")
			for _, e := range examples {
				fmt.Fprintf(os.Stderr, "  %s\n", e)
			}
		}
	}
}

// splitList splits a comma-separated flag, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseTriState parses "", "true" or "false" into an optional filter
func parseTriState(s string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "true", "yes", "1":
		v := true
		return &v, nil
	case "false", "no", "0":
		v := false
		return &v, nil
	}
	return nil, fmt.Errorf("invalid boolean filter '%s' (use true or false)", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printBatch(w io.Writer, action string, res models.BatchResult) {
	fmt.Fprintf(w, "%s: %d total, %d succeeded, %d failed\n", action, res.Total, res.SuccessCount, res.FailCount)
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  FAIL %s: %s\n", f.ID, f.Reason)
	}
}

// --- search ---

type searchOptions struct {
	configFile, logLevel string
	keyword, source      string
	page, limit          int
	save, asJSON         bool
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var o searchOptions
	configFile, logLevel := commonFlags(fs)
	fs.StringVar(&o.keyword, "keyword", "", "Search keyword")
	fs.StringVar(&o.source, "source", "", "Search source (see 'harvester sources')")
	fs.IntVar(&o.page, "page", 1, "Page number, starting at 1")
	fs.IntVar(&o.limit, "limit", 10, fmt.Sprintf("Maximum results (max %d)", search.MaxLimit))
	fs.BoolVar(&o.save, "save", false, "Save results as crawl results")
	fs.BoolVar(&o.asJSON, "json", false, "Print JSON")
	usage(fs, "search -source <name> -keyword <kw> [options]",
		"harvester search -source baidu -keyword 西昌 -limit 20",
		"harvester search -source xinhua -save")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	o.configFile, o.logLevel = *configFile, *logLevel
	os.Exit(doSearch(o, os.Stdout, os.Stderr))
}

func doSearch(o searchOptions, stdout, stderr io.Writer) int {
	if o.source == "" {
		fmt.Fprintln(stderr, "Error: -source is required")
		return 1
	}
	return withApp(o.configFile, o.logLevel, stderr, func(ctx context.Context, a *app) int {
		if o.save {
			saved, err := a.service.SearchAndSave(ctx, o.keyword, o.source, o.page, o.limit)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			if o.asJSON {
				writeJSON(stdout, saved)
				return 0
			}
			printResults(stdout, saved)
			fmt.Fprintf(stdout, "\nSaved %d results.\n", len(saved))
			return 0
		}

		results, err := a.service.Search(ctx, o.keyword, o.source, o.page, o.limit)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if o.asJSON {
			writeJSON(stdout, results)
			return 0
		}
		for i, r := range results {
			fmt.Fprintf(stdout, "%2d. %s\n    %s\n", i+1, r.Title, r.OriginalURL)
			if r.Source != "" {
				fmt.Fprintf(stdout, "    %s\n", r.Source)
			}
		}
		fmt.Fprintf(stdout, "\n%d results.\n", len(results))
		return 0
	})
}

// --- collect ---

type collectOptions struct {
	configFile, logLevel string
	keywords, sources    string
	limit, concurrency   int
	depth                bool
}

func runCollect(args []string) {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	var o collectOptions
	configFile, logLevel := commonFlags(fs)
	fs.StringVar(&o.keywords, "keywords", "", "Comma-separated keywords (required)")
	fs.StringVar(&o.sources, "sources", "", "Comma-separated sources (default: all)")
	fs.IntVar(&o.limit, "limit", 10, "Results per keyword and source")
	fs.IntVar(&o.concurrency, "concurrency", 0, "Keyword/source pairs searched at once (default: all)")
	fs.BoolVar(&o.depth, "depth", false, "Depth crawl every saved result")
	usage(fs, "collect -keywords <a,b> [options]",
		"harvester collect -keywords 西昌,凉山 -sources baidu,bing -depth")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	o.configFile, o.logLevel = *configFile, *logLevel
	os.Exit(doCollect(o, os.Stdout, os.Stderr))
}

func doCollect(o collectOptions, stdout, stderr io.Writer) int {
	keywords := splitList(o.keywords)
	if len(keywords) == 0 {
		fmt.Fprintln(stderr, "Error: -keywords is required")
		return 1
	}
	return withApp(o.configFile, o.logLevel, stderr, func(ctx context.Context, a *app) int {
		sources := splitList(o.sources)
		if len(sources) == 0 {
			sources = a.service.Sources()
		}
		if err := orchestrate.ValidateSources(a.service.Sources(), sources); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}

		orch := orchestrate.NewOrchestrator(ctx, a.service, orchestrate.ExpandTargets(keywords, sources), orchestrate.Options{
			Limit:         o.limit,
			MaxConcurrent: o.concurrency,
			DepthCrawl:    o.depth,
		}, a.log.WithField("component", "collect"))

		exit := 0
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tKEYWORD\tSAVED\tCRAWLED\tDURATION\tERROR")
		for _, r := range orch.Run() {
			errMsg := ""
			if r.Error != nil {
				errMsg = r.Error.Error()
			}
			if !r.Success {
				exit = 1
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%v\t%s\n", r.Target.Source, r.Target.Keyword, r.Saved, r.Crawled, r.Duration.Round(time.Millisecond), errMsg)
		}
		tw.Flush()
		return exit
	})
}

// --- depth ---

type depthOptions struct {
	configFile, logLevel string
	ids, recrawl         string
}

func runDepth(args []string) {
	fs := flag.NewFlagSet("depth", flag.ExitOnError)
	var o depthOptions
	configFile, logLevel := commonFlags(fs)
	fs.StringVar(&o.ids, "ids", "", "Comma-separated result IDs to depth crawl")
	fs.StringVar(&o.recrawl, "recrawl", "", "Result ID to crawl again, replacing its depth result")
	usage(fs, "depth (-ids <a,b> | -recrawl <id>)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	o.configFile, o.logLevel = *configFile, *logLevel
	os.Exit(doDepth(o, os.Stdout, os.Stderr))
}

func doDepth(o depthOptions, stdout, stderr io.Writer) int {
	ids := splitList(o.ids)
	if len(ids) == 0 && o.recrawl == "" {
		fmt.Fprintln(stderr, "Error: one of -ids or -recrawl is required")
		return 1
	}
	return withApp(o.configFile, o.logLevel, stderr, func(ctx context.Context, a *app) int {
		if o.recrawl != "" {
			depth, err := a.service.Recrawl(ctx, o.recrawl)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			fmt.Fprintf(stdout, "Recrawled %s: %q (%d tokens, %d chunks)\n", o.recrawl, depth.Title, depth.TokenCount, depth.ChunkCount)
			return 0
		}

		res := a.service.Collect(ctx, ids)
		printBatch(stdout, "Depth crawl", res)
		if res.FailCount > 0 {
			return 1
		}
		return 0
	})
}

// --- extract ---

type extractOptions struct {
	configFile, logLevel string
	url, ruleID, headers string
}

func runExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	var o extractOptions
	configFile, logLevel := commonFlags(fs)
	fs.StringVar(&o.url, "url", "", "URL to extract (required)")
	fs.StringVar(&o.ruleID, "rule", "", "Site rule ID to apply")
	fs.StringVar(&o.headers, "headers", "", "Extra request headers as JSON or 'Key: value' lines")
	usage(fs, "extract -url <url> [options]")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	o.configFile, o.logLevel = *configFile, *logLevel
	os.Exit(doExtract(o, os.Stdout, os.Stderr))
}

func doExtract(o extractOptions, stdout, stderr io.Writer) int {
	if o.url == "" {
		fmt.Fprintln(stderr, "Error: -url is required")
		return 1
	}
	headers, err := rules.ParseRequestHeaders(o.headers)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return withApp(o.configFile, o.logLevel, stderr, func(ctx context.Context, a *app) int {
		var rule *models.SiteRule
		if o.ruleID != "" {
			if rule, err = a.rules.Get(o.ruleID); err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
		}
		writeJSON(stdout, a.service.ExtractDetail(ctx, o.url, rule, headers))
		return 0
	})
}

// --- store / delete ---

func runBatch(action string, args []string) {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	configFile, logLevel := commonFlags(fs)
	ids := fs.String("ids", "", "Comma-separated result IDs (required)")
	usage(fs, action+" -ids <a,b>")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	os.Exit(doBatch(action, *configFile, *logLevel, *ids, os.Stdout, os.Stderr))
}

func doBatch(action, configFile, logLevel, idList string, stdout, stderr io.Writer) int {
	ids := splitList(idList)
	if len(ids) == 0 {
		fmt.Fprintln(stderr, "Error: -ids is required")
		return 1
	}
	return withApp(configFile, logLevel, stderr, func(ctx context.Context, a *app) int {
		var res models.BatchResult
		switch action {
		case "store":
			res = a.service.Store(ctx, ids)
		case "delete":
			res = a.service.Delete(ctx, ids)
		default:
			fmt.Fprintf(stderr, "Error: unknown action %s\n", action)
			return 1
		}
		printBatch(stdout, strings.ToUpper(action[:1])+action[1:], res)
		if res.FailCount > 0 {
			return 1
		}
		return 0
	})
}

// --- list / show ---

type listOptions struct {
	configFile, logLevel   string
	keyword, source        string
	depthCrawled, isStored string
	page, limit            int
	asJSON                 bool
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var o listOptions
	configFile, logLevel := commonFlags(fs)
	fs.StringVar(&o.keyword, "keyword", "", "Substring of keyword, title or summary")
	fs.StringVar(&o.source, "source", "", "Only results from this source")
	fs.StringVar(&o.depthCrawled, "depth-crawled", "", "Filter on depth crawl state (true/false)")
	fs.StringVar(&o.isStored, "stored", "", "Filter on stored state (true/false)")
	fs.IntVar(&o.page, "page", 1, "Page number")
	fs.IntVar(&o.limit, "limit", 20, "Page size")
	fs.BoolVar(&o.asJSON, "json", false, "Print JSON")
	usage(fs, "list [options]", "harvester list -keyword 西昌 -depth-crawled false")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	o.configFile, o.logLevel = *configFile, *logLevel
	os.Exit(doList(o, os.Stdout, os.Stderr))
}

func doList(o listOptions, stdout, stderr io.Writer) int {
	depthCrawled, err := parseTriState(o.depthCrawled)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	isStored, err := parseTriState(o.isStored)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return withApp(o.configFile, o.logLevel, stderr, func(ctx context.Context, a *app) int {
		p, err := a.service.List(lifecycle.ListFilter{
			Keyword:      o.keyword,
			Source:       o.source,
			DepthCrawled: depthCrawled,
			IsStored:     isStored,
			Page:         o.page,
			Limit:        o.limit,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if o.asJSON {
			writeJSON(stdout, p)
			return 0
		}
		printResults(stdout, p.Items)
		fmt.Fprintf(stdout, "\nPage %d, %d of %d results.\n", p.Page, len(p.Items), p.Total)
		return 0
	})
}

func printResults(w io.Writer, results []models.CrawlResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tKEYWORD\tSOURCE\tTITLE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.State(), r.Keyword, r.Source, utils.TruncateRunes(r.Title, 40))
	}
	tw.Flush()
}

func runShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configFile, logLevel := commonFlags(fs)
	id := fs.String("id", "", "Result ID (required)")
	usage(fs, "show -id <id>")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	os.Exit(doShow(*configFile, *logLevel, *id, os.Stdout, os.Stderr))
}

func doShow(configFile, logLevel, id string, stdout, stderr io.Writer) int {
	if id == "" {
		fmt.Fprintln(stderr, "Error: -id is required")
		return 1
	}
	return withApp(configFile, logLevel, stderr, func(ctx context.Context, a *app) int {
		detail, err := a.service.Get(id)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		writeJSON(stdout, detail)
		return 0
	})
}

// --- stats ---

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configFile, logLevel := commonFlags(fs)
	asJSON := fs.Bool("json", false, "Print JSON")
	usage(fs, "stats [options]")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	os.Exit(doStats(*configFile, *logLevel, *asJSON, time.Now(), os.Stdout, os.Stderr))
}

func doStats(configFile, logLevel string, asJSON bool, now time.Time, stdout, stderr io.Writer) int {
	return withApp(configFile, logLevel, stderr, func(ctx context.Context, a *app) int {
		stats, err := a.service.Stats(now)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if asJSON {
			writeJSON(stdout, stats)
			return 0
		}
		fmt.Fprintf(stdout, "Total: %d  Depth crawled: %d  Stored: %d\n", stats.TotalCount, stats.DepthCrawledCount, stats.StoredCount)
		fmt.Fprintln(stdout, "\nTop keywords:")
		for _, k := range stats.KeywordStats {
			fmt.Fprintf(stdout, "  %-20s %d\n", k.Keyword, k.Count)
		}
		fmt.Fprintln(stdout, "\nLast 7 days:")
		for _, d := range stats.DateStats {
			fmt.Fprintf(stdout, "  %s %d\n", d.Date, d.Count)
		}
		return 0
	})
}

// --- export ---

type exportOptions struct {
	configFile, logLevel string
	keyword, source, out string
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var o exportOptions
	configFile, logLevel := commonFlags(fs)
	fs.StringVar(&o.keyword, "keyword", "", "Substring of keyword, title or summary")
	fs.StringVar(&o.source, "source", "", "Only results from this source")
	fs.StringVar(&o.out, "out", "", "Output file (default: <export_dir>/<keyword>_<timestamp>.xlsx)")
	usage(fs, "export [options]", "harvester export -keyword 西昌")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	o.configFile, o.logLevel = *configFile, *logLevel
	os.Exit(doExport(o, time.Now(), os.Stdout, os.Stderr))
}

func doExport(o exportOptions, now time.Time, stdout, stderr io.Writer) int {
	return withApp(o.configFile, o.logLevel, stderr, func(ctx context.Context, a *app) int {
		p, err := a.service.List(lifecycle.ListFilter{Keyword: o.keyword, Source: o.source})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}

		depth := make(map[string]*models.DepthCrawlResult)
		for _, r := range p.Items {
			if !r.DepthCrawled {
				continue
			}
			detail, err := a.service.Get(r.ID)
			if err != nil {
				a.log.Warnf("Exporting %s without its depth result: %v", r.ID, err)
				continue
			}
			if detail.Depth != nil {
				depth[r.ID] = detail.Depth
			}
		}

		path := o.out
		if path == "" {
			path = filepath.Join(a.cfg.ExportDir, export.FileName(o.keyword, now))
		}
		if err := export.WriteXLSX(path, p.Items, depth); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Exported %d results (%d with details) to %s\n", len(p.Items), len(depth), path)
		return 0
	})
}

// --- watch ---

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile, logLevel := commonFlags(fs)
	depth := fs.Bool("depth", false, "Depth crawl every saved result")
	once := fs.Bool("once", false, "Run the watches that are due and exit")
	status := fs.Bool("status", false, "Print watch status and exit")
	usage(fs, "watch [options]",
		"harvester watch -config config.yaml",
		"harvester watch -once -depth")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	os.Exit(doWatch(*configFile, *logLevel, *depth, *once, *status, os.Stdout, os.Stderr))
}

func doWatch(configFile, logLevel string, depth, once, status bool, stdout, stderr io.Writer) int {
	if !once && !status && logLevel == "warn" {
		logLevel = "info"
	}
	return withApp(configFile, logLevel, stderr, func(ctx context.Context, a *app) int {
		if len(a.cfg.Watches) == 0 {
			fmt.Fprintln(stderr, "Error: no watches configured")
			return 1
		}
		for _, w := range a.cfg.Watches {
			if err := orchestrate.ValidateSources(a.service.Sources(), w.Sources); err != nil {
				fmt.Fprintf(stderr, "Error: watch '%s': %v\n", w.Name, err)
				return 1
			}
		}

		scheduler := watch.NewScheduler(a.service, a.cfg.Watches, a.cfg.StateDir, depth, a.log.WithField("component", "watch"))

		if status || once {
			scheduler.LoadState()
		}
		switch {
		case status:
			printWatchStatus(stdout, scheduler)
			return 0
		case once:
			scheduler.RunDue()
			printWatchStatus(stdout, scheduler)
			return 0
		}

		go func() {
			<-ctx.Done()
			scheduler.Stop()
		}()
		if err := scheduler.Run(); err != nil {
			fmt.Fprintf(stderr, "Watch scheduler error: %v\n", err)
			return 1
		}
		a.log.Info("Watch mode stopped")
		return 0
	})
}

func printWatchStatus(w io.Writer, scheduler *watch.Scheduler) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WATCH\tKEYWORD\tEVERY\tLAST RUN\tRESULT\tSAVED\tNEXT RUN")
	for _, s := range scheduler.Status() {
		last, result := "never", "-"
		if !s.NeverRun {
			last = s.LastRunTime.Format(time.RFC3339)
			result = "ok"
			if !s.LastRunSuccess {
				result = "failed"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", s.Name, s.Keyword, watch.FormatInterval(s.Interval), last, result, s.Saved, s.NextRunTime.Format(time.RFC3339))
	}
	tw.Flush()
}

// --- validate / sources ---

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	usage(fs, "validate [options]")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	for _, w := range appCfg.Watches {
		fmt.Fprintf(stdout, "OK: [watch %s] '%s' every %s from %v\n", w.Name, w.Keyword, watch.FormatInterval(w.Interval), w.Sources)
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

func runSources(args []string) {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	configFile, logLevel := commonFlags(fs)
	usage(fs, "sources [options]")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	os.Exit(doSources(*configFile, *logLevel, os.Stdout, os.Stderr))
}

func doSources(configFile, logLevel string, stdout, stderr io.Writer) int {
	return withApp(configFile, logLevel, stderr, func(ctx context.Context, a *app) int {
		fmt.Fprintln(stdout, "Available sources:")
		for _, s := range a.service.Sources() {
			fmt.Fprintf(stdout, "  %s\n", s)
		}
		return 0
	})
}
