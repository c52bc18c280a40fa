package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/equity_radar/pkg/model"
	"github.com/iWorld-y/equity_radar/pkg/report"
	"github.com/iWorld-y/equity_radar/pkg/search"
)

// mockCompleter 按输出类型分发预置结果
type mockCompleter struct {
	mu      sync.Mutex
	prompts []string

	resolveCalls int
	angleCalls   int
	reportCalls  int

	resolved model.ResolvedQuery
	angles   model.SearchAngles
	report   model.ResearchReport

	resolveErr error
	angleErr   error
	reportErr  error
}

func (m *mockCompleter) Complete(_ context.Context, _ string, prompt string, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	switch v := out.(type) {
	case *model.ResolvedQuery:
		m.resolveCalls++
		if m.resolveErr != nil {
			return m.resolveErr
		}
		*v = m.resolved
	case *model.SearchAngles:
		m.angleCalls++
		if m.angleErr != nil {
			return m.angleErr
		}
		*v = m.angles
	case *model.ResearchReport:
		m.reportCalls++
		if m.reportErr != nil {
			return m.reportErr
		}
		*v = m.report
	default:
		return fmt.Errorf("unexpected output type %T", out)
	}
	return nil
}

func (m *mockCompleter) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls + m.angleCalls + m.reportCalls
}

// mockSearcher 按查询返回预置结果，可注入延迟与错误
type mockSearcher struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]search.Result
	delays  map[string]time.Duration
	errs    map[string]error
}

func newMockSearcher() *mockSearcher {
	return &mockSearcher{
		results: make(map[string][]search.Result),
		delays:  make(map[string]time.Duration),
		errs:    make(map[string]error),
	}
}

func (m *mockSearcher) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req.Query)
	delay := m.delays[req.Query]
	err := m.errs[req.Query]
	results := m.results[req.Query]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &search.Response{Results: results}, nil
}

func (m *mockSearcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func fakeResults(prefix string, n int) []search.Result {
	results := make([]search.Result, n)
	for i := range results {
		results[i] = search.Result{
			Title:   fmt.Sprintf("%s result %d", prefix, i+1),
			URL:     fmt.Sprintf("https://example.com/%s/%d", prefix, i+1),
			Snippet: fmt.Sprintf("snippet about %s #%d", prefix, i+1),
		}
	}
	return results
}

func TestIsTicker(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"NVDA", true},
		{" nvda ", true},
		{"AAPL", true},
		{"GOOGL", true},
		{"TOOLONG", false},
		{"A1", false},
		{"A", false},
		{"", false},
		{"  ", false},
		{"impact of AI on semiconductor demand", false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, IsTicker(c.input), "IsTicker(%q)", c.input)
	}
}

func TestResearch_EmptyQuery(t *testing.T) {
	completer := &mockCompleter{}
	searcher := newMockSearcher()
	e := NewWithProviders(completer, searcher, nil)

	_, err := e.Research(context.Background(), "   \t  ", RunOptions{})
	require.ErrorIs(t, err, ErrEmptyQuery)

	// 空输入在任何外部调用之前就失败
	assert.Zero(t, completer.totalCalls())
	assert.Zero(t, searcher.callCount())
}

func TestResearch_EmptyDiscovery(t *testing.T) {
	completer := &mockCompleter{}
	searcher := newMockSearcher() // 查不到任何结果
	e := NewWithProviders(completer, searcher, nil)

	_, err := e.Research(context.Background(), "renewable energy growth 2025", RunOptions{})
	require.ErrorIs(t, err, ErrEmptyDiscovery)

	// 短路：不再进行角度生成与综合
	assert.Equal(t, 1, searcher.callCount())
	assert.Zero(t, completer.angleCalls)
	assert.Zero(t, completer.reportCalls)
}

func TestResearch_NoAngles(t *testing.T) {
	query := "renewable energy growth 2025"
	completer := &mockCompleter{angles: model.SearchAngles{}}
	searcher := newMockSearcher()
	searcher.results[query] = fakeResults("discovery", 5)
	e := NewWithProviders(completer, searcher, nil)

	_, err := e.Research(context.Background(), query, RunOptions{})
	require.ErrorIs(t, err, ErrNoAngles)

	// 深挖与综合都没发生
	assert.Equal(t, 1, searcher.callCount())
	assert.Zero(t, completer.reportCalls)
}

func TestResearch_ResolutionFailure(t *testing.T) {
	completer := &mockCompleter{resolveErr: errors.New("model unavailable")}
	searcher := newMockSearcher()
	e := NewWithProviders(completer, searcher, nil)

	_, err := e.Research(context.Background(), "NVDA", RunOptions{})
	require.ErrorIs(t, err, ErrResolution)
	assert.Zero(t, searcher.callCount())
}

func TestDeepDive_PairingSurvivesCompletionOrder(t *testing.T) {
	angles := []string{"SWOT analysis", "12-month stock performance", "competitive positioning", "latest quarterly results"}

	searcher := newMockSearcher()
	for i, a := range angles {
		searcher.results[a] = fakeResults(a, 3)
		// 前面的角度反而最慢，完成顺序与角度顺序相反
		searcher.delays[a] = time.Duration(len(angles)-i) * 20 * time.Millisecond
	}

	e := NewWithProviders(nil, searcher, nil)
	pairs, err := e.deepDive(context.Background(), angles, RunOptions{})
	require.NoError(t, err)
	require.Len(t, pairs, 4)
	assert.Equal(t, 4, searcher.callCount())

	// 无论完成顺序如何，角度与结果的配对始终正确
	for i, a := range angles {
		assert.Equal(t, a, pairs[i].Angle)
		require.Len(t, pairs[i].Results, 3)
		assert.Contains(t, pairs[i].Results[0].Title, a)
	}
}

func TestDeepDive_FirstFailureAborts(t *testing.T) {
	angles := []string{"SWOT analysis", "competitive positioning", "latest quarterly results"}

	searcher := newMockSearcher()
	searcher.results[angles[0]] = fakeResults(angles[0], 2)
	searcher.results[angles[2]] = fakeResults(angles[2], 2)
	searcher.errs[angles[1]] = errors.New("provider timeout")

	e := NewWithProviders(nil, searcher, nil)
	_, err := e.deepDive(context.Background(), angles, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "competitive positioning")
	assert.Contains(t, err.Error(), "provider timeout")
}

func TestResearch_EndToEnd_Ticker(t *testing.T) {
	resolvedQuery := "NVIDIA Corporation semiconductors GPUs AI"
	angles := []string{"SWOT analysis", "12-month stock performance", "competitive positioning", "latest quarterly results"}

	searcher := newMockSearcher()
	discovery := fakeResults("discovery", 10)
	searcher.results[resolvedQuery] = discovery
	for _, a := range angles {
		searcher.results[a] = fakeResults(a, 10)
	}

	completer := &mockCompleter{
		resolved: model.ResolvedQuery{
			IsTicker:       true,
			CompanyContext: "NVIDIA, semiconductors, GPUs, AI",
			ResolvedQuery:  resolvedQuery,
		},
		angles: model.SearchAngles{Angles: angles},
		report: model.ResearchReport{
			ExecutiveSummary:                   "NVIDIA leads the AI accelerator market.",
			KeyTakeaways:                       "- Data center revenue keeps growing",
			StrategicOverview:                  "Dominant GPU supplier.",
			SWOT:                               model.SWOT{Strengths: "CUDA moat", Weaknesses: "Supply concentration", Opportunities: "Inference demand", Threats: "Custom silicon"},
			ImplicationsAndStrategicPriorities: "Defend software ecosystem.",
			Sources:                            []model.Source{{SourceTitle: discovery[0].Title, URL: discovery[0].URL}},
			FinancialPerformance:               "Record quarterly revenue.",
			DriversAndSensitivities:            "Hyperscaler capex.",
			ValuationContextAndModelingTips:    "Premium multiples.",
			RegulatoryAndLegal:                 "Export controls.",
			RisksAndUncertainties:              "Cyclicality.",
			WhatToWatchNext:                    []string{"Next earnings date"},
		},
	}

	var progress []string
	e := NewWithProviders(completer, searcher, nil)
	got, err := e.Research(context.Background(), "NVDA", RunOptions{
		Progress: func(msg string) { progress = append(progress, msg) },
	})
	require.NoError(t, err)

	// 三次补全调用、一次发现搜索加四次深挖
	assert.Equal(t, 1, completer.resolveCalls)
	assert.Equal(t, 1, completer.angleCalls)
	assert.Equal(t, 1, completer.reportCalls)
	assert.Equal(t, 5, searcher.callCount())
	assert.Equal(t, resolvedQuery, searcher.calls[0])

	// 引用的 URL 来自注入的搜索结果
	require.NotEmpty(t, got.Sources)
	assert.Equal(t, discovery[0].URL, got.Sources[0].URL)

	// 综合提示词包含查询头、发现块与每个角度块
	reportPrompt := completer.prompts[len(completer.prompts)-1]
	assert.Contains(t, reportPrompt, "Resolved query: "+resolvedQuery)
	assert.Contains(t, reportPrompt, "--- Discovery search results ---")
	for _, a := range angles {
		assert.Contains(t, reportPrompt, "--- Deep-dive angle: "+a+" ---")
	}

	// 渲染后的文档按固定顺序包含全部小节标题
	md := report.ToMarkdown(got)
	sections := []string{
		"## Executive summary",
		"## Key takeaways",
		"## Strategic overview",
		"## SWOT",
		"## Implications and strategic priorities",
		"## Sources",
		"## Financial performance",
		"## Drivers and sensitivities",
		"## Valuation context and modeling tips",
		"## Regulatory and legal environment",
		"## Risks and uncertainties",
		"## What to watch next",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(md, s)
		require.GreaterOrEqualf(t, idx, 0, "missing section %q", s)
		assert.Greaterf(t, idx, last, "section %q out of order", s)
		last = idx
	}

	// 进度通知覆盖各阶段
	joined := strings.Join(progress, "\n")
	assert.Contains(t, joined, "Detected ticker")
	assert.Contains(t, joined, "Discovery: 10 results.")
	assert.Contains(t, joined, "parallel deep-dive searches")
	assert.Contains(t, joined, "Report ready.")
}

func TestResearch_FreeTextSkipsResolution(t *testing.T) {
	query := "  impact of AI on semiconductor demand  "
	trimmed := "impact of AI on semiconductor demand"
	angles := []string{"fab capacity expansion", "AI chip demand forecasts", "memory market impact"}

	searcher := newMockSearcher()
	searcher.results[trimmed] = fakeResults("discovery", 6)
	for _, a := range angles {
		searcher.results[a] = fakeResults(a, 4)
	}

	completer := &mockCompleter{
		angles: model.SearchAngles{Angles: angles},
		report: model.ResearchReport{ExecutiveSummary: "AI demand reshapes semiconductor supply chains."},
	}

	e := NewWithProviders(completer, searcher, nil)
	_, err := e.Research(context.Background(), query, RunOptions{})
	require.NoError(t, err)

	// 解析阶段被整体跳过，发现搜索用的就是去掉首尾空白的原文
	assert.Zero(t, completer.resolveCalls)
	assert.Equal(t, trimmed, searcher.calls[0])
}

func TestResearch_DeepDiveFailureIsFatal(t *testing.T) {
	query := "renewable energy growth 2025"
	angles := []string{"policy incentives", "grid storage", "solar capacity"}

	searcher := newMockSearcher()
	searcher.results[query] = fakeResults("discovery", 5)
	searcher.results[angles[0]] = fakeResults(angles[0], 3)
	searcher.results[angles[2]] = fakeResults(angles[2], 3)
	searcher.errs[angles[1]] = errors.New("rate limited")

	completer := &mockCompleter{
		angles: model.SearchAngles{Angles: angles},
		report: model.ResearchReport{ExecutiveSummary: "unused"},
	}

	e := NewWithProviders(completer, searcher, nil)
	_, err := e.Research(context.Background(), query, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deep-dive search")

	// 失败直接终止，综合阶段不会运行
	assert.Zero(t, completer.reportCalls)
}
