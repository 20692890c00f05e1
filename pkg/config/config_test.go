package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func boolPtr(b bool) *bool {
	return &b
}

func TestIsProviderEnabled(t *testing.T) {
	tests := []struct {
		name     string
		appCfg   AppConfig
		expected bool
	}{
		{
			name:     "missing provider defaults to enabled",
			appCfg:   AppConfig{},
			expected: true,
		},
		{
			name:     "nil enabled defaults to enabled",
			appCfg:   AppConfig{Providers: map[string]ProviderConfig{ProviderBing: {}}},
			expected: true,
		},
		{
			name:     "explicitly disabled",
			appCfg:   AppConfig{Providers: map[string]ProviderConfig{ProviderBing: {Enabled: boolPtr(false)}}},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsProviderEnabled(ProviderBing, tt.appCfg))
		})
	}
}

func TestGetEffectiveProvider(t *testing.T) {
	t.Run("defaults per provider", func(t *testing.T) {
		appCfg := AppConfig{}
		assert.Equal(t, "https://www.baidu.com", GetEffectiveProvider(ProviderBaidu, appCfg).BaseURL)
		assert.Equal(t, "https://cn.bing.com", GetEffectiveProvider(ProviderBing, appCfg).BaseURL)
		assert.Equal(t, "http://sc.news.cn", GetEffectiveProvider(ProviderXinhua, appCfg).BaseURL)
		assert.Contains(t, GetEffectiveProvider(ProviderBaidu, appCfg).AcceptLanguage, "zh-CN")
	})

	t.Run("override base url", func(t *testing.T) {
		appCfg := AppConfig{Providers: map[string]ProviderConfig{
			ProviderBaidu: {BaseURL: "http://127.0.0.1:9999"},
		}}
		assert.Equal(t, "http://127.0.0.1:9999", GetEffectiveProvider(ProviderBaidu, appCfg).BaseURL)
	})
}

func TestAppConfig_UnmarshalYAML(t *testing.T) {
	raw := `
crawler:
  max_results: 20
  timeout: 12s
  retries: 2
  user_agent: test-agent
state_dir: /tmp/harvest
num_workers: 6
policy:
  min_title_length: 8
  deny_tokens: ["广告"]
providers:
  baidu:
    sessions:
      - cookie: "BAIDUID=abc"
        expires_at: 2030-01-02T15:04:05Z
  bing:
    enabled: false
watches:
  - name: xichang
    keyword: 西昌
    sources: [baidu, xinhua]
    interval: 6h
`
	var cfg AppConfig
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	_, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Crawler.MaxResults)
	assert.Equal(t, 12*time.Second, cfg.Crawler.Timeout)
	assert.Equal(t, 2, cfg.Crawler.Retries)
	assert.Equal(t, "test-agent", cfg.Crawler.UserAgent)
	assert.Equal(t, 6, cfg.NumWorkers)
	assert.Equal(t, 8, cfg.Policy.MinTitleLength)
	assert.Equal(t, []string{"广告"}, cfg.Policy.DenyTokens)
	assert.Equal(t, 200, cfg.Policy.MaxTitleLength, "unset thresholds fall back to defaults")

	require.Len(t, cfg.Providers[ProviderBaidu].Sessions, 1)
	assert.Equal(t, "BAIDUID=abc", cfg.Providers[ProviderBaidu].Sessions[0].Cookie)
	assert.Equal(t, 2030, cfg.Providers[ProviderBaidu].Sessions[0].ExpiresAt.Year())
	assert.False(t, IsProviderEnabled(ProviderBing, cfg))

	require.Len(t, cfg.Watches, 1)
	assert.Equal(t, 6*time.Hour, cfg.Watches[0].Interval)
	assert.Equal(t, 10, cfg.Watches[0].Limit)
}
