package report

import (
	"fmt"
	"strings"

	"github.com/iWorld-y/equity_radar/pkg/model"
)

const divider = "\n\n---\n\n"

// ToMarkdown 按固定顺序把报告渲染成 Markdown 文档。
// 纯函数：同一份报告渲染多次得到字节级一致的输出
func ToMarkdown(r *model.ResearchReport) string {
	var b strings.Builder

	b.WriteString("## Executive summary\n\n")
	b.WriteString(r.ExecutiveSummary)
	b.WriteString(divider)

	b.WriteString("## Key takeaways\n\n")
	b.WriteString(r.KeyTakeaways)
	b.WriteString(divider)

	b.WriteString("## Strategic overview\n\n")
	b.WriteString(r.StrategicOverview)
	b.WriteString(divider)

	b.WriteString("## SWOT\n\n")
	b.WriteString("**Strengths**\n\n")
	b.WriteString(r.SWOT.Strengths)
	b.WriteString("\n\n**Weaknesses**\n\n")
	b.WriteString(r.SWOT.Weaknesses)
	b.WriteString("\n\n**Opportunities**\n\n")
	b.WriteString(r.SWOT.Opportunities)
	b.WriteString("\n\n**Threats**\n\n")
	b.WriteString(r.SWOT.Threats)
	b.WriteString(divider)

	b.WriteString("## Implications and strategic priorities\n\n")
	b.WriteString(r.ImplicationsAndStrategicPriorities)
	b.WriteString(divider)

	b.WriteString("## Sources\n\n")
	if len(r.Sources) > 0 {
		for _, s := range r.Sources {
			fmt.Fprintf(&b, "- [%s](%s)\n", s.SourceTitle, s.URL)
		}
	} else {
		b.WriteString("(No sources listed.)\n")
	}
	b.WriteString("\n---\n\n")

	b.WriteString("## Financial performance\n\n")
	b.WriteString(r.FinancialPerformance)
	b.WriteString(divider)

	b.WriteString("## Drivers and sensitivities\n\n")
	b.WriteString(r.DriversAndSensitivities)
	b.WriteString(divider)

	b.WriteString("## Valuation context and modeling tips\n\n")
	b.WriteString(r.ValuationContextAndModelingTips)
	b.WriteString(divider)

	b.WriteString("## Regulatory and legal environment\n\n")
	b.WriteString(r.RegulatoryAndLegal)
	b.WriteString(divider)

	b.WriteString("## Risks and uncertainties\n\n")
	b.WriteString(r.RisksAndUncertainties)
	b.WriteString(divider)

	b.WriteString("## What to watch next\n\n")
	for _, item := range r.WhatToWatchNext {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	if len(r.WhatToWatchNext) == 0 {
		b.WriteString("(None listed.)\n")
	}
	b.WriteString("\n---\n\n")

	// additional_detail 为空时整块省略
	if r.AdditionalDetail != "" {
		b.WriteString("## More detail\n\n")
		b.WriteString(r.AdditionalDetail)
		b.WriteString("\n")
	}

	return b.String()
}
