package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/equity_radar/pkg/config"
	"github.com/iWorld-y/equity_radar/pkg/llm"
	"github.com/iWorld-y/equity_radar/pkg/logger"
	"github.com/iWorld-y/equity_radar/pkg/model"
	"github.com/iWorld-y/equity_radar/pkg/search"
	"github.com/iWorld-y/equity_radar/pkg/search/factory"
	"github.com/iWorld-y/equity_radar/pkg/storage"
)

// 各阶段的致命错误。全部不在内部重试，原样上抛到调用边界。
var (
	ErrEmptyQuery     = errors.New("query cannot be empty")
	ErrResolution     = errors.New("ticker resolution failed")
	ErrEmptyDiscovery = errors.New("discovery search returned no results")
	ErrNoAngles       = errors.New("angle generation produced no angles")
	ErrNoReport       = errors.New("report synthesis produced no report")
)

// 2-5 个大写字母视为股票代码
var tickerPattern = regexp.MustCompile(`^[A-Z]{2,5}$`)

// IsTicker 判断输入是否为股票代码样式。纯函数，允许误判
func IsTicker(input string) bool {
	return tickerPattern.MatchString(strings.ToUpper(strings.TrimSpace(input)))
}

const (
	discoveryMaxResults = 10
	deepDiveMaxResults  = 10

	// 摘要短于该长度时才考虑抓取原文补全
	minSnippetLen = 200
	// 抓取原文的截断长度，防止超出 token 限制
	maxFetchedLen = 5000
	fetchTimeout  = 30 * time.Second
)

// AngleResult 单个角度与其搜索结果的配对。配对顺序与角度顺序一致，
// 与各并发搜索的完成顺序无关
type AngleResult struct {
	Angle   string
	Results []search.Result
}

// Engine 研究流水线：归一化 → 发现搜索 → 角度生成 → 并行深挖 → 综合成报告
type Engine struct {
	completer    llm.Completer
	searcher     search.Searcher
	store        *storage.Storage
	fetchContent bool
}

// New 按配置组装引擎。store 可为 nil，表示不持久化
func New(cfg *config.Config, store *storage.Storage) (*Engine, error) {
	ctx := context.Background()

	completer, err := llm.NewChatCompleter(ctx, cfg.LLM, cfg.Concurrency)
	if err != nil {
		return nil, err
	}

	searcher, err := factory.NewSearcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("搜索客户端初始化失败: %w", err)
	}

	e := NewWithProviders(completer, searcher, store)
	e.fetchContent = cfg.Research.FetchContent
	return e, nil
}

// NewWithProviders 直接注入两个外部能力，测试时替换为 mock
func NewWithProviders(completer llm.Completer, searcher search.Searcher, store *storage.Storage) *Engine {
	return &Engine{
		completer: completer,
		searcher:  searcher,
		store:     store,
	}
}

// RunOptions 单次运行的选项
type RunOptions struct {
	// Progress 每个阶段的进度通知，纯观察性，不影响控制流。可为 nil
	Progress func(msg string)
}

func (o RunOptions) progress(format string, args ...any) {
	if o.Progress != nil {
		o.Progress(fmt.Sprintf(format, args...))
	}
}

// Research 执行完整流水线，返回结构化报告或第一个致命错误。
// 所有中间产物仅在本次调用内存活，并发调用彼此隔离
func (e *Engine) Research(ctx context.Context, query string, opts RunOptions) (*model.ResearchReport, error) {
	raw := strings.TrimSpace(query)
	if raw == "" {
		return nil, ErrEmptyQuery
	}

	opts.progress("Input: %q", raw)

	// 1) 归一化：识别股票代码并按需解析
	resolved, err := e.resolve(ctx, raw, opts)
	if err != nil {
		return nil, err
	}

	// 2) 发现搜索
	opts.progress("Running discovery search...")
	discoveryResp, err := e.searcher.Search(ctx, &search.Request{
		Query:      resolved.ResolvedQuery,
		MaxResults: discoveryMaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("discovery search: %w", err)
	}
	discovery := discoveryResp.Results
	opts.progress("Discovery: %d results.", len(discovery))

	if len(discovery) == 0 {
		return nil, ErrEmptyDiscovery
	}

	if e.fetchContent {
		discovery = e.enrichSnippets(discovery)
	}

	// 3) 角度生成
	opts.progress("Generating 3-4 search angles...")
	anglePrompt := fmt.Sprintf(
		"Discovery search results for: %s\n\n%s\n\nProduce 3-4 non-overlapping search angles (keywords/phrases) for deep-dive searches.",
		resolved.ResolvedQuery, formatDiscoveryDigest(discovery),
	)
	var angles model.SearchAngles
	if err := e.completer.Complete(ctx, angleInstructions, anglePrompt, &angles); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAngles, err)
	}
	// 3-4 条的数量约束写在指令里由模型保证，这里只拒绝空列表
	if len(angles.Angles) == 0 {
		return nil, ErrNoAngles
	}
	opts.progress("Angles: %v", angles.Angles)

	// 4) 并行深挖搜索
	pairs, err := e.deepDive(ctx, angles.Angles, opts)
	if err != nil {
		return nil, err
	}

	// 5) 综合成报告
	opts.progress("Synthesizing structured report...")
	reportPrompt := fmt.Sprintf(
		"Produce a structured research report from the following search results.\n\n%s",
		formatReportContext(resolved.ResolvedQuery, discovery, pairs),
	)
	var report model.ResearchReport
	if err := e.completer.Complete(ctx, reportInstructions, reportPrompt, &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoReport, err)
	}
	if report.ExecutiveSummary == "" {
		return nil, ErrNoReport
	}

	if e.store != nil {
		// 持久化失败只记日志，不影响本次结果
		if _, err := e.store.SaveRun(ctx, raw, resolved, &report); err != nil {
			logger.Log.Errorf("保存研究报告失败 [%s]: %v", raw, err)
		}
	}

	opts.progress("Report ready.")
	return &report, nil
}

// resolve 股票代码走解析阶段，自由文本直接透传
func (e *Engine) resolve(ctx context.Context, raw string, opts RunOptions) (model.ResolvedQuery, error) {
	if !IsTicker(raw) {
		opts.progress("Treating input as free-text query.")
		return model.ResolvedQuery{IsTicker: false, ResolvedQuery: raw}, nil
	}

	opts.progress("Detected ticker. Resolving to company and context...")
	var resolved model.ResolvedQuery
	prompt := fmt.Sprintf("Resolve this stock ticker for web search: %s", strings.ToUpper(raw))
	if err := e.completer.Complete(ctx, resolveInstructions, prompt, &resolved); err != nil {
		return model.ResolvedQuery{}, fmt.Errorf("%w [%s]: %v", ErrResolution, raw, err)
	}
	if resolved.ResolvedQuery == "" {
		return model.ResolvedQuery{}, fmt.Errorf("%w [%s]", ErrResolution, raw)
	}
	opts.progress("Resolved: %s", resolved.ResolvedQuery)
	return resolved, nil
}

// deepDive 对每个角度并发发起一次搜索，全部完成后返回。
// 每个 goroutine 只写自己下标的槽位，无需加锁；任一失败即中止整个阶段
func (e *Engine) deepDive(ctx context.Context, angles []string, opts RunOptions) ([]AngleResult, error) {
	opts.progress("Running %d parallel deep-dive searches...", len(angles))

	pairs := make([]AngleResult, len(angles))
	g, gctx := errgroup.WithContext(ctx)
	for i, angle := range angles {
		g.Go(func() error {
			resp, err := e.searcher.Search(gctx, &search.Request{
				Query:      angle,
				MaxResults: deepDiveMaxResults,
			})
			if err != nil {
				return fmt.Errorf("deep-dive search [%s]: %w", angle, err)
			}
			pairs[i] = AngleResult{Angle: angle, Results: resp.Results}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts.progress("Deep-dive searches done.")
	return pairs, nil
}

// enrichSnippets 摘要过短时抓取原文补全，仅处理会进入摘要窗口的条目
func (e *Engine) enrichSnippets(results []search.Result) []search.Result {
	for i := range results {
		if i >= angleDigestLimit {
			break
		}
		if len(results[i].Snippet) >= minSnippetLen {
			continue
		}
		article, err := readability.FromURL(results[i].URL, fetchTimeout)
		if err != nil {
			logger.Log.Warnf("原文抓取失败，保留摘要 [%s]: %v", results[i].Title, err)
			continue
		}
		text := article.TextContent
		if len(text) > maxFetchedLen {
			text = text[:maxFetchedLen]
		}
		if len(text) > len(results[i].Snippet) {
			results[i].Snippet = text
		}
	}
	return results
}
