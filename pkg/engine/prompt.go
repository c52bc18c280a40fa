package engine

import (
	"fmt"
	"strings"

	"github.com/iWorld-y/equity_radar/pkg/search"
)

// 各阶段的模型指令。输出结构直接写进指令里，由模型负责按形状返回。

const resolveInstructions = `You resolve user input into a query for web search.
If the input is a stock ticker (e.g. NVDA, AAPL), set is_ticker to true, provide
company_context with the company name and brief context (e.g. "NVIDIA, semiconductors, GPUs, AI"),
and resolved_query as a short search phrase combining company and context.
If the input is a general question or topic, set is_ticker to false, leave company_context empty,
and set resolved_query to the user's query as-is (cleaned up if needed).

Return JSON in this exact shape:
{"is_ticker": true, "company_context": "...", "resolved_query": "..."}`

const angleInstructions = `From the discovery search results below, produce exactly 3 to 4
non-overlapping search angles (keywords or short phrases).
For a stock/company: include angles such as: SWOT analysis, last 12 months stock performance,
competition and market positioning, latest quarterly results and forward guidance.
For a general topic: derive analogous angles that cover different aspects.
Output only the structured list of angles; no other text.

Return JSON in this exact shape:
{"angles": ["angle 1", "angle 2", "angle 3"]}`

const reportInstructions = `You are a research analyst. Using ONLY the provided search results
(no external knowledge), produce a structured research report with these sections.
Be concise and detailed where it adds value. Fill every field.
executive_summary: 2-4 sentences.
key_takeaways: bullet or numbered list as one string.
strategic_overview: market position, strategy, competition (concise).
swot: strengths, weaknesses, opportunities, threats (each a short paragraph or bullets as one string).
implications_and_strategic_priorities: summary of implications and priorities.
sources: list of ALL cited sources from the search results with exact url and source_title (title of page/article).
financial_performance: concise key metrics, recent results, trends.
drivers_and_sensitivities: key drivers and sensitivities.
valuation_context_and_modeling_tips: multiples, key inputs, modeling tips.
regulatory_and_legal: relevant regulations, litigation, compliance.
risks_and_uncertainties: risks and conflicting info.
what_to_watch_next: concrete list (earnings dates, metrics, regulatory events).
additional_detail: any extra detail or nuance.
Prefer primary sources for financials (earnings, SEC filings, investor relations).
Use exact URLs from the provided results for sources.

Return JSON in this exact shape:
{"executive_summary": "...", "key_takeaways": "...", "strategic_overview": "...",
"swot": {"strengths": "...", "weaknesses": "...", "opportunities": "...", "threats": "..."},
"implications_and_strategic_priorities": "...",
"sources": [{"source_title": "...", "url": "..."}],
"financial_performance": "...", "drivers_and_sensitivities": "...",
"valuation_context_and_modeling_tips": "...", "regulatory_and_legal": "...",
"risks_and_uncertainties": "...", "what_to_watch_next": ["..."], "additional_detail": "..."}`

const (
	// 进入角度生成提示词的发现结果条数上限
	angleDigestLimit = 15
	// 进入综合提示词的每个角度结果条数上限
	deepDiveDigestLimit = 8
)

// formatDiscoveryDigest 把发现结果编成带编号的文本摘要，只取前 angleDigestLimit 条
func formatDiscoveryDigest(results []search.Result) string {
	var lines []string
	for i, r := range results {
		if i >= angleDigestLimit {
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s\n   URL: %s\n   %s", i+1, r.Title, r.URL, r.Snippet))
	}
	return strings.Join(lines, "\n\n")
}

// formatReportContext 拼接综合阶段的完整上下文：查询头、发现块、每个角度一块
func formatReportContext(resolvedQuery string, discovery []search.Result, pairs []AngleResult) string {
	parts := []string{
		fmt.Sprintf("Resolved query: %s", resolvedQuery),
		"\n--- Discovery search results ---",
		formatDiscoveryDigest(discovery),
	}
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("\n--- Deep-dive angle: %s ---", p.Angle))
		for i, r := range p.Results {
			if i >= deepDiveDigestLimit {
				break
			}
			parts = append(parts, fmt.Sprintf("%d. %s\n   URL: %s\n   %s", i+1, r.Title, r.URL, r.Snippet))
		}
	}
	return strings.Join(parts, "\n")
}
