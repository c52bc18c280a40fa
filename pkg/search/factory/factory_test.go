package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/equity_radar/pkg/config"
	"github.com/iWorld-y/equity_radar/pkg/searxng"
	"github.com/iWorld-y/equity_radar/pkg/tavily"
)

func TestNewSearcher_Tavily(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Provider = "tavily"
	cfg.Search.Tavily.APIKey = "key"

	s, err := NewSearcher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &tavily.Client{}, s)
}

func TestNewSearcher_SearXNG(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Provider = "searxng"
	cfg.Search.SearXNG.BaseURL = "http://localhost:8080"

	s, err := NewSearcher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &searxng.Client{}, s)
}

func TestNewSearcher_DefaultsToTavilyWithKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Tavily.APIKey = "key"

	s, err := NewSearcher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &tavily.Client{}, s)
}

func TestNewSearcher_Errors(t *testing.T) {
	cases := []struct {
		name string
		cfg  func() *config.Config
	}{
		{"未配置任何 provider", func() *config.Config { return &config.Config{} }},
		{"tavily 缺 key", func() *config.Config {
			cfg := &config.Config{}
			cfg.Search.Provider = "tavily"
			return cfg
		}},
		{"searxng 缺 base url", func() *config.Config {
			cfg := &config.Config{}
			cfg.Search.Provider = "searxng"
			return cfg
		}},
		{"未知 provider", func() *config.Config {
			cfg := &config.Config{}
			cfg.Search.Provider = "bing"
			return cfg
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewSearcher(c.cfg())
			assert.Error(t, err)
		})
	}
}
