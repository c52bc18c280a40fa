package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/lib/pq"

	"github.com/iWorld-y/equity_radar/pkg/config"
	"github.com/iWorld-y/equity_radar/pkg/model"
)

// ErrNotFound 指定的运行记录不存在
var ErrNotFound = errors.New("report not found")

// Storage Postgres 持久化层，保存每次流水线运行及其报告
type Storage struct {
	db *sql.DB
}

// New 建立连接并初始化表结构
func New(cfg config.DBConfig) (*Storage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS research_runs (
	id BIGSERIAL PRIMARY KEY,
	query TEXT NOT NULL,
	resolved_query TEXT NOT NULL,
	is_ticker BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS research_reports (
	id BIGSERIAL PRIMARY KEY,
	run_id BIGINT NOT NULL REFERENCES research_runs(id) ON DELETE CASCADE,
	executive_summary TEXT NOT NULL,
	key_takeaways TEXT NOT NULL,
	strategic_overview TEXT NOT NULL,
	swot_strengths TEXT NOT NULL,
	swot_weaknesses TEXT NOT NULL,
	swot_opportunities TEXT NOT NULL,
	swot_threats TEXT NOT NULL,
	implications TEXT NOT NULL,
	financial_performance TEXT NOT NULL,
	drivers_and_sensitivities TEXT NOT NULL,
	valuation_context TEXT NOT NULL,
	regulatory_and_legal TEXT NOT NULL,
	risks_and_uncertainties TEXT NOT NULL,
	additional_detail TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS report_sources (
	id BIGSERIAL PRIMARY KEY,
	report_id BIGINT NOT NULL REFERENCES research_reports(id) ON DELETE CASCADE,
	source_title TEXT NOT NULL,
	url TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS report_watch_items (
	id BIGSERIAL PRIMARY KEY,
	report_id BIGINT NOT NULL REFERENCES research_reports(id) ON DELETE CASCADE,
	item TEXT NOT NULL
);`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun 一次性写入运行记录、报告、来源与关注项，整体在一个事务里
func (s *Storage) SaveRun(ctx context.Context, query string, resolved model.ResolvedQuery, report *model.ResearchReport) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var runID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO research_runs (query, resolved_query, is_ticker) VALUES ($1, $2, $3) RETURNING id`,
		sanitize(query), sanitize(resolved.ResolvedQuery), resolved.IsTicker,
	).Scan(&runID)
	if err != nil {
		return 0, err
	}

	var reportID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO research_reports (
			run_id, executive_summary, key_takeaways, strategic_overview,
			swot_strengths, swot_weaknesses, swot_opportunities, swot_threats,
			implications, financial_performance, drivers_and_sensitivities,
			valuation_context, regulatory_and_legal, risks_and_uncertainties, additional_detail
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING id`,
		runID,
		sanitize(report.ExecutiveSummary),
		sanitize(report.KeyTakeaways),
		sanitize(report.StrategicOverview),
		sanitize(report.SWOT.Strengths),
		sanitize(report.SWOT.Weaknesses),
		sanitize(report.SWOT.Opportunities),
		sanitize(report.SWOT.Threats),
		sanitize(report.ImplicationsAndStrategicPriorities),
		sanitize(report.FinancialPerformance),
		sanitize(report.DriversAndSensitivities),
		sanitize(report.ValuationContextAndModelingTips),
		sanitize(report.RegulatoryAndLegal),
		sanitize(report.RisksAndUncertainties),
		sanitize(report.AdditionalDetail),
	).Scan(&reportID)
	if err != nil {
		return 0, err
	}

	for _, src := range report.Sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_sources (report_id, source_title, url) VALUES ($1, $2, $3)`,
			reportID, sanitize(src.SourceTitle), sanitize(src.URL),
		); err != nil {
			return 0, err
		}
	}

	for _, item := range report.WhatToWatchNext {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_watch_items (report_id, item) VALUES ($1, $2)`,
			reportID, sanitize(item),
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// RunSummary 运行记录摘要，用于列表展示
type RunSummary struct {
	ID            int64     `json:"id"`
	Query         string    `json:"query"`
	ResolvedQuery string    `json:"resolved_query"`
	IsTicker      bool      `json:"is_ticker"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListRuns 分页列出历史运行，按时间倒序
func (s *Storage) ListRuns(ctx context.Context, page, pageSize int) ([]RunSummary, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, resolved_query, is_ticker, created_at
		 FROM research_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		pageSize, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Query, &r.ResolvedQuery, &r.IsTicker, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM research_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// GetReport 取一次运行的完整报告
func (s *Storage) GetReport(ctx context.Context, runID int64) (*model.ResearchReport, *RunSummary, error) {
	var run RunSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT id, query, resolved_query, is_ticker, created_at FROM research_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Query, &run.ResolvedQuery, &run.IsTicker, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var report model.ResearchReport
	var reportID int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id, executive_summary, key_takeaways, strategic_overview,
			swot_strengths, swot_weaknesses, swot_opportunities, swot_threats,
			implications, financial_performance, drivers_and_sensitivities,
			valuation_context, regulatory_and_legal, risks_and_uncertainties, additional_detail
		 FROM research_reports WHERE run_id = $1`,
		runID,
	).Scan(
		&reportID,
		&report.ExecutiveSummary,
		&report.KeyTakeaways,
		&report.StrategicOverview,
		&report.SWOT.Strengths,
		&report.SWOT.Weaknesses,
		&report.SWOT.Opportunities,
		&report.SWOT.Threats,
		&report.ImplicationsAndStrategicPriorities,
		&report.FinancialPerformance,
		&report.DriversAndSensitivities,
		&report.ValuationContextAndModelingTips,
		&report.RegulatoryAndLegal,
		&report.RisksAndUncertainties,
		&report.AdditionalDetail,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	srcRows, err := s.db.QueryContext(ctx,
		`SELECT source_title, url FROM report_sources WHERE report_id = $1 ORDER BY id`, reportID)
	if err != nil {
		return nil, nil, err
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var src model.Source
		if err := srcRows.Scan(&src.SourceTitle, &src.URL); err != nil {
			return nil, nil, err
		}
		report.Sources = append(report.Sources, src)
	}
	if err := srcRows.Err(); err != nil {
		return nil, nil, err
	}

	watchRows, err := s.db.QueryContext(ctx,
		`SELECT item FROM report_watch_items WHERE report_id = $1 ORDER BY id`, reportID)
	if err != nil {
		return nil, nil, err
	}
	defer watchRows.Close()
	for watchRows.Next() {
		var item string
		if err := watchRows.Scan(&item); err != nil {
			return nil, nil, err
		}
		report.WhatToWatchNext = append(report.WhatToWatchNext, item)
	}
	if err := watchRows.Err(); err != nil {
		return nil, nil, err
	}

	return &report, &run, nil
}

// sanitize 清理无效 UTF-8 与 NULL 字节，PostgreSQL 文本字段不支持 NULL 字节
func sanitize(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r == utf8.RuneError {
				continue
			}
			v = append(v, r)
		}
		s = string(v)
	}
	return strings.ReplaceAll(s, "\x00", "")
}
