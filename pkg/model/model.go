package model

// ResolvedQuery 查询归一化结果：股票代码会被解析为公司及背景，自由文本原样透传
type ResolvedQuery struct {
	IsTicker       bool   `json:"is_ticker"`
	CompanyContext string `json:"company_context,omitempty"` // 仅股票代码有值，例如 "NVIDIA, semiconductors, GPUs, AI"
	ResolvedQuery  string `json:"resolved_query"`            // 用于发现搜索的查询语句
}

// SearchAngles 深挖搜索的 3-4 个互不重叠的角度（关键词或短语）
type SearchAngles struct {
	Angles []string `json:"angles"`
}

// Source 报告引用的来源（标题 + 链接），不做去重
type Source struct {
	SourceTitle string `json:"source_title"`
	URL         string `json:"url"`
}

// SWOT 优势、劣势、机会、威胁，各为一段自由文本
type SWOT struct {
	Strengths     string `json:"strengths"`
	Weaknesses    string `json:"weaknesses"`
	Opportunities string `json:"opportunities"`
	Threats       string `json:"threats"`
}

// ResearchReport 结构化研究报告，由综合阶段一次性生成，之后不再修改
type ResearchReport struct {
	ExecutiveSummary                   string   `json:"executive_summary"`
	KeyTakeaways                       string   `json:"key_takeaways"`
	StrategicOverview                  string   `json:"strategic_overview"`
	SWOT                               SWOT     `json:"swot"`
	ImplicationsAndStrategicPriorities string   `json:"implications_and_strategic_priorities"`
	Sources                            []Source `json:"sources"`
	FinancialPerformance               string   `json:"financial_performance"`
	DriversAndSensitivities            string   `json:"drivers_and_sensitivities"`
	ValuationContextAndModelingTips    string   `json:"valuation_context_and_modeling_tips"`
	RegulatoryAndLegal                 string   `json:"regulatory_and_legal"`
	RisksAndUncertainties              string   `json:"risks_and_uncertainties"`
	WhatToWatchNext                    []string `json:"what_to_watch_next"`
	AdditionalDetail                   string   `json:"additional_detail,omitempty"`
}
