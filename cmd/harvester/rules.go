package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"content-harvester/pkg/rules"
)

type ruleOptions struct {
	configFile, logLevel string
	id                   string
	keyword              string
	page, limit          int
	input                rules.RuleInput
	inactive             bool
	url, expectedTitle   string
}

// runRules handles "rules <list|create|update|delete|repair>"
func runRules(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: harvester rules <list|create|update|delete|repair> [options]")
		os.Exit(1)
	}
	action := args[0]

	fs := flag.NewFlagSet("rules "+action, flag.ExitOnError)
	var o ruleOptions
	configFile, logLevel := commonFlags(fs)
	fs.StringVar(&o.id, "id", "", "Rule ID (update, delete, repair)")
	fs.StringVar(&o.keyword, "keyword", "", "Filter by site name or URL (list)")
	fs.IntVar(&o.page, "page", 1, "Page number (list)")
	fs.IntVar(&o.limit, "limit", 20, "Page size (list)")
	fs.StringVar(&o.input.SiteName, "site-name", "", "Source name the rule applies to")
	fs.StringVar(&o.input.SiteURL, "site-url", "", "Site home page")
	fs.StringVar(&o.input.TitleSelector, "title", "", "CSS selector of the title")
	fs.StringVar(&o.input.ContentSelector, "content", "", "CSS selector of the content")
	fs.StringVar(&o.input.RawHeaders, "headers", "", "Request headers as JSON or 'Key: value' lines")
	fs.BoolVar(&o.inactive, "inactive", false, "Create or update the rule as inactive")
	fs.StringVar(&o.url, "url", "", "Page of the rule's site (repair)")
	fs.StringVar(&o.expectedTitle, "expected-title", "", "Known title of the page (repair)")
	usage(fs, "rules "+action+" [options]",
		"harvester rules create -site-name 四川新闻网 -site-url http://www.newssc.org -title h1 -content .content",
		"harvester rules repair -id <id> -url <page> -expected-title <title>")

	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(1)
	}
	o.configFile, o.logLevel = *configFile, *logLevel
	os.Exit(doRules(action, o, os.Stdout, os.Stderr))
}

func doRules(action string, o ruleOptions, stdout, stderr io.Writer) int {
	active := !o.inactive
	o.input.IsActive = &active

	switch action {
	case "list", "create", "update", "delete", "repair":
	default:
		fmt.Fprintf(stderr, "Error: unknown rules action '%s' (list, create, update, delete, repair)\n", action)
		return 1
	}
	if action != "list" && action != "create" && o.id == "" {
		fmt.Fprintf(stderr, "Error: -id is required for rules %s\n", action)
		return 1
	}

	return withApp(o.configFile, o.logLevel, stderr, func(ctx context.Context, a *app) int {
		switch action {
		case "list":
			list, total, err := a.rules.List(o.keyword, o.page, o.limit)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSITE\tACTIVE\tTITLE\tCONTENT")
			for _, r := range list {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", r.ID, r.SiteName, r.IsActive, r.TitleSelector, r.ContentSelector)
			}
			tw.Flush()
			fmt.Fprintf(stdout, "\n%d of %d rules.\n", len(list), total)

		case "create":
			rule, err := a.rules.Create(o.input)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			fmt.Fprintf(stdout, "Created rule %s for '%s'\n", rule.ID, rule.SiteName)

		case "update":
			rule, err := a.rules.Update(o.id, o.input)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			fmt.Fprintf(stdout, "Updated rule %s for '%s'\n", rule.ID, rule.SiteName)

		case "delete":
			if err := a.rules.Delete(o.id); err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			fmt.Fprintf(stdout, "Deleted rule %s\n", o.id)

		case "repair":
			if o.url == "" || o.expectedTitle == "" {
				fmt.Fprintln(stderr, "Error: -url and -expected-title are required for rules repair")
				return 1
			}
			updated, rule, err := a.service.RepairRule(ctx, o.url, o.id, o.expectedTitle)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			if !updated {
				fmt.Fprintf(stdout, "Rule %s unchanged (title '%s', content '%s')\n", rule.ID, rule.TitleSelector, rule.ContentSelector)
				return 0
			}
			fmt.Fprintf(stdout, "Repaired rule %s: title '%s', content '%s'\n", rule.ID, rule.TitleSelector, rule.ContentSelector)
		}
		return 0
	})
}
