package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-harvester/pkg/rules"
)

// writeConfig writes a config whose state and export dirs live in a temp dir
func writeConfig(t *testing.T, extra string) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	content := "num_workers: 2\n" +
		"state_dir: " + filepath.Join(dir, "state") + "\n" +
		"export_dir: " + filepath.Join(dir, "exports") + "\n" + extra
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath, dir
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfgPath, _ := writeConfig(t, `
watches:
  - name: xichang
    keyword: 西昌
    sources: [baidu, bing]
    interval: 12h
`)

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NumWorkers)
	require.Len(t, cfg.Watches, 1)
	assert.Equal(t, 12*time.Hour, cfg.Watches[0].Interval)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644))

	_, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDoValidate(t *testing.T) {
	cfgPath, _ := writeConfig(t, `
watches:
  - name: xichang
    keyword: 西昌
    sources: [baidu]
    interval: 24h
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode, stderr.String())
	assert.Contains(t, stdout.String(), "OK: [watch xichang]")
	assert.Contains(t, stdout.String(), "Configuration valid")
}

func TestDoValidate_UnknownProvider(t *testing.T) {
	cfgPath, _ := writeConfig(t, `
providers:
  google: {}
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "ERROR")
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestDoSources(t *testing.T) {
	cfgPath, _ := writeConfig(t, `
providers:
  bing:
    enabled: false
`)

	var stdout, stderr bytes.Buffer
	exitCode := doSources(cfgPath, "error", &stdout, &stderr)

	assert.Equal(t, 0, exitCode, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "baidu")
	assert.Contains(t, out, "xinhua")
	assert.NotContains(t, out, "bing")
}

func TestDoSearch_Validation(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	t.Run("source required", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 1, doSearch(searchOptions{configFile: cfgPath, logLevel: "error"}, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "-source is required")
	})

	t.Run("unknown source", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		exitCode := doSearch(searchOptions{configFile: cfgPath, logLevel: "error", source: "nope", keyword: "西昌"}, &stdout, &stderr)
		assert.Equal(t, 1, exitCode)
		assert.Contains(t, stderr.String(), "nope")
	})
}

func TestDoCollect_UnknownSource(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	var stdout, stderr bytes.Buffer
	exitCode := doCollect(collectOptions{configFile: cfgPath, logLevel: "error", keywords: "西昌", sources: "baidu,nope"}, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "nope")
}

func TestDoRules_Lifecycle(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	base := ruleOptions{configFile: cfgPath, logLevel: "error", page: 1, limit: 20}

	create := base
	create.input = rules.RuleInput{
		SiteName:        "四川新闻网",
		SiteURL:         "http://www.newssc.org",
		TitleSelector:   "h1",
		ContentSelector: ".content",
	}
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, doRules("create", create, &stdout, &stderr), stderr.String())
	m := regexp.MustCompile(`Created rule (\S+) for`).FindStringSubmatch(stdout.String())
	require.Len(t, m, 2)
	id := m[1]

	stdout.Reset()
	require.Equal(t, 0, doRules("list", base, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "四川新闻网")
	assert.Contains(t, stdout.String(), "1 of 1 rules")

	stdout.Reset()
	stderr.Reset()
	assert.Equal(t, 1, doRules("create", create, &stdout, &stderr), "duplicate site name")

	del := base
	del.id = id
	stdout.Reset()
	require.Equal(t, 0, doRules("delete", del, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Deleted rule "+id)
}

func TestDoRules_Validation(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, doRules("rename", ruleOptions{}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown rules action")

	stderr.Reset()
	assert.Equal(t, 1, doRules("delete", ruleOptions{}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-id is required")
}

func TestDoList_Empty(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	var stdout, stderr bytes.Buffer
	exitCode := doList(listOptions{configFile: cfgPath, logLevel: "error", page: 1, limit: 20}, &stdout, &stderr)

	assert.Equal(t, 0, exitCode, stderr.String())
	assert.Contains(t, stdout.String(), "0 of 0 results")
}

func TestDoList_InvalidFilter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doList(listOptions{depthCrawled: "maybe"}, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "invalid boolean filter")
}

func TestDoBatch_MissingRecords(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	var stdout, stderr bytes.Buffer
	exitCode := doBatch("store", cfgPath, "error", "a, b", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdout.String(), "Store: 2 total, 0 succeeded, 2 failed")
	assert.Contains(t, stdout.String(), "FAIL a")
}

func TestDoStats_Empty(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	var stdout, stderr bytes.Buffer
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	exitCode := doStats(cfgPath, "error", false, now, &stdout, &stderr)

	assert.Equal(t, 0, exitCode, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "Total: 0")
	assert.Contains(t, out, "2026-10-09 0")
	assert.Contains(t, out, "2026-10-15 0")
}

func TestDoExport_Empty(t *testing.T) {
	cfgPath, dir := writeConfig(t, "")
	var stdout, stderr bytes.Buffer
	now := time.Date(2026, 10, 15, 9, 30, 5, 0, time.UTC)
	exitCode := doExport(exportOptions{configFile: cfgPath, logLevel: "error", keyword: "西昌"}, now, &stdout, &stderr)

	assert.Equal(t, 0, exitCode, stderr.String())
	want := filepath.Join(dir, "exports", "西昌_20261015_093005.xlsx")
	assert.FileExists(t, want)
	assert.Contains(t, stdout.String(), "Exported 0 results")
}

func TestDoWatch_Status(t *testing.T) {
	cfgPath, _ := writeConfig(t, `
watches:
  - name: xichang
    keyword: 西昌
    sources: [xinhua]
    interval: 6h
`)
	var stdout, stderr bytes.Buffer
	exitCode := doWatch(cfgPath, "error", false, false, true, &stdout, &stderr)

	assert.Equal(t, 0, exitCode, stderr.String())
	assert.Contains(t, stdout.String(), "xichang")
	assert.Contains(t, stdout.String(), "never")
}

func TestDoWatch_NoWatches(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	var stdout, stderr bytes.Buffer
	exitCode := doWatch(cfgPath, "error", false, true, false, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "no watches configured")
}

func TestDoMcpServer_Validation(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, doMcpServer("config.yaml", "stdio", 0, "loud", &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Invalid log level")

	stderr.Reset()
	assert.Equal(t, 1, doMcpServer("config.yaml", "grpc", 0, "info", &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown transport")
}

func TestParseTriState(t *testing.T) {
	tests := []struct {
		in      string
		want    *bool
		wantErr bool
	}{
		{"", nil, false},
		{"true", boolPtr(true), false},
		{"No", boolPtr(false), false},
		{"maybe", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTriState(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	for _, cmd := range []string{"search", "collect", "depth", "rules", "export", "watch", "mcp-server", "version"} {
		assert.Contains(t, out, cmd)
	}
}
