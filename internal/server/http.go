package server

import (
	"context"
	"embed"
	"fmt"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/equity_radar/pkg/engine"
	"github.com/iWorld-y/equity_radar/pkg/model"
	"github.com/iWorld-y/equity_radar/pkg/report"
	"github.com/iWorld-y/equity_radar/pkg/storage"
)

//go:embed assets/*
var assets embed.FS

// ResearchRequest 研究请求
type ResearchRequest struct {
	Query string `json:"query"`
}

// ResearchReply 研究响应：Markdown 与结构化报告同时返回
type ResearchReply struct {
	Query    string                `json:"query"`
	Markdown string                `json:"markdown"`
	Report   *model.ResearchReport `json:"report"`
}

// ErrorReply 失败时的完整响应，错误描述与诊断信息取代报告本身
type ErrorReply struct {
	Error    string `json:"error"`
	Markdown string `json:"markdown"`
}

// ReportListReply 历史报告列表
type ReportListReply struct {
	Runs  []storage.RunSummary `json:"runs"`
	Total int                  `json:"total"`
}

// ReportDetailReply 历史报告详情
type ReportDetailReply struct {
	Run      *storage.RunSummary   `json:"run"`
	Markdown string                `json:"markdown"`
	Report   *model.ResearchReport `json:"report"`
}

// NewHTTPServer 组装 HTTP 服务：研究入口、历史报告查询与内嵌页面
func NewHTTPServer(addr string, timeout string, eng *engine.Engine, store *storage.Storage, logger log.Logger) *http.Server {
	helper := log.NewHelper(logger)

	opts := []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if addr != "" {
		opts = append(opts, http.Address(addr))
	}
	if timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			opts = append(opts, http.Timeout(d))
		}
	}

	srv := http.NewServer(opts...)

	r := srv.Route("/api/v1")

	r.POST("/research", func(ctx http.Context) error {
		var in ResearchRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}

		h := ctx.Middleware(func(c context.Context, req any) (any, error) {
			query := req.(*ResearchRequest).Query
			runOpts := engine.RunOptions{
				Progress: func(msg string) {
					helper.Infof("[agent] %s", msg)
				},
			}
			res, err := eng.Research(c, query, runOpts)
			if err != nil {
				// 失败时错误描述加诊断信息就是整个响应，绝不混入半成品报告
				return &ErrorReply{
					Error:    err.Error(),
					Markdown: errorMarkdown(query, err),
				}, nil
			}
			return &ResearchReply{
				Query:    query,
				Markdown: report.ToMarkdown(res),
				Report:   res,
			}, nil
		})

		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	})

	r.GET("/reports", func(ctx http.Context) error {
		if store == nil {
			return ctx.Result(nethttp.StatusServiceUnavailable,
				&ErrorReply{Error: "persistence is not configured"})
		}
		page, _ := strconv.Atoi(ctx.Query().Get("page"))
		pageSize, _ := strconv.Atoi(ctx.Query().Get("page_size"))

		h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
			runs, total, err := store.ListRuns(c, page, pageSize)
			if err != nil {
				return nil, err
			}
			return &ReportListReply{Runs: runs, Total: total}, nil
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	})

	r.GET("/reports/{id}", func(ctx http.Context) error {
		if store == nil {
			return ctx.Result(nethttp.StatusServiceUnavailable,
				&ErrorReply{Error: "persistence is not configured"})
		}
		id, err := strconv.ParseInt(ctx.Vars().Get("id"), 10, 64)
		if err != nil {
			return ctx.Result(nethttp.StatusBadRequest, &ErrorReply{Error: "invalid report id"})
		}

		h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
			rep, run, err := store.GetReport(c, id)
			if err != nil {
				return nil, err
			}
			return &ReportDetailReply{
				Run:      run,
				Markdown: report.ToMarkdown(rep),
				Report:   rep,
			}, nil
		})
		out, err := h(ctx, nil)
		if err != nil {
			if err == storage.ErrNotFound {
				return ctx.Result(nethttp.StatusNotFound, &ErrorReply{Error: err.Error()})
			}
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	})

	// 内嵌单页界面
	srv.HandleFunc("/", func(w nethttp.ResponseWriter, req *nethttp.Request) {
		if req.URL.Path != "/" {
			nethttp.NotFound(w, req)
			return
		}
		content, _ := assets.ReadFile("assets/index.html")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(content)
	})

	return srv
}

// errorMarkdown 失败响应的 Markdown 正文
func errorMarkdown(query string, err error) string {
	return fmt.Sprintf(
		"**Error:** %v\n\n<details><summary>Detail</summary>\n\n```\nquery: %s\n%+v\n```\n</details>",
		err, query, err,
	)
}
