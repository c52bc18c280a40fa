package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/equity_radar/pkg/model"
)

func sampleReport() *model.ResearchReport {
	return &model.ResearchReport{
		ExecutiveSummary:                   "Summary text.",
		KeyTakeaways:                       "- First takeaway\n- Second takeaway",
		StrategicOverview:                  "Overview text.",
		SWOT:                               model.SWOT{Strengths: "S", Weaknesses: "W", Opportunities: "O", Threats: "T"},
		ImplicationsAndStrategicPriorities: "Implications text.",
		Sources: []model.Source{
			{SourceTitle: "Annual report", URL: "https://example.com/annual"},
			{SourceTitle: "News article", URL: "https://example.com/news"},
		},
		FinancialPerformance:            "Financials text.",
		DriversAndSensitivities:        "Drivers text.",
		ValuationContextAndModelingTips: "Valuation text.",
		RegulatoryAndLegal:              "Regulatory text.",
		RisksAndUncertainties:           "Risks text.",
		WhatToWatchNext:                 []string{"Earnings call", "Product launch"},
		AdditionalDetail:                "Extra detail.",
	}
}

func TestToMarkdown_SectionOrder(t *testing.T) {
	md := ToMarkdown(sampleReport())

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
		"## More detail",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(md, s)
		require.GreaterOrEqualf(t, idx, 0, "missing section %q", s)
		assert.Greaterf(t, idx, last, "section %q out of order", s)
		last = idx
	}

	// 来源与关注事项渲染为列表
	assert.Contains(t, md, "- [Annual report](https://example.com/annual)")
	assert.Contains(t, md, "- Earnings call")
}

func TestToMarkdown_Deterministic(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, ToMarkdown(r), ToMarkdown(r))
}

func TestToMarkdown_Placeholders(t *testing.T) {
	r := sampleReport()
	r.Sources = nil
	r.WhatToWatchNext = nil

	md := ToMarkdown(r)
	assert.Contains(t, md, "(No sources listed.)")
	assert.Contains(t, md, "(None listed.)")
}

func TestToMarkdown_OmitsEmptyAdditionalDetail(t *testing.T) {
	r := sampleReport()
	r.AdditionalDetail = ""

	md := ToMarkdown(r)
	assert.NotContains(t, md, "## More detail")
}
