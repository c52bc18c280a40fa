package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/equity_radar/pkg/config"
)

// Completer 结构化补全能力：给定指令与输入，产出符合目标结构的值。
// 限流、退避与 JSON 解析重试都封装在实现内部，调用方不再叠加重试。
type Completer interface {
	Complete(ctx context.Context, instructions string, prompt string, out any) error
}

const (
	defaultMaxRetries = 3
	baseRetryDelay    = 2 * time.Second
)

// ChatCompleter 基于 eino ChatModel 的 Completer 实现
type ChatCompleter struct {
	cm         model.ChatModel
	limiter    *rate.Limiter
	maxRetries int
}

var _ Completer = (*ChatCompleter)(nil)

// NewChatCompleter 按配置初始化 OpenAI 兼容的 ChatModel 与限流器
func NewChatCompleter(ctx context.Context, llmCfg config.LLMConfig, cc config.ConcurrencyConfig) (*ChatCompleter, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: llmCfg.BaseURL,
		APIKey:  llmCfg.APIKey,
		Model:   llmCfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}

	// Limit 设置为 RPM/60，Burst 设置为 QPS
	limit := rate.Inf
	burst := 1
	if cc.RPM > 0 {
		limit = rate.Limit(float64(cc.RPM) / 60.0)
	}
	if cc.QPS > 0 {
		burst = cc.QPS
	}

	return NewChatCompleterWithModel(chatModel, rate.NewLimiter(limit, burst)), nil
}

// NewChatCompleterWithModel 直接注入 ChatModel，主要用于测试
func NewChatCompleterWithModel(cm model.ChatModel, limiter *rate.Limiter) *ChatCompleter {
	return &ChatCompleter{
		cm:         cm,
		limiter:    limiter,
		maxRetries: defaultMaxRetries,
	}
}

// Complete 调用模型并将输出解析到 out 指向的结构。
// 429 触发指数退避，JSON 解析失败时重试，直到超过最大次数。
func (c *ChatCompleter) Complete(ctx context.Context, instructions string, prompt string, out any) error {
	system := instructions + "\n\nReply with a single JSON object only. No markdown fences, no commentary."

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		messages := []*schema.Message{
			{Role: schema.System, Content: system},
			{Role: schema.User, Content: prompt},
		}

		resp, err := c.cm.Generate(ctx, messages)
		if err != nil {
			if strings.Contains(err.Error(), "429") || strings.Contains(strings.ToLower(err.Error()), "too many requests") {
				lastErr = err
				if i < c.maxRetries {
					delay := baseRetryDelay * time.Duration(1<<i) // 指数退避
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(delay):
						continue
					}
				}
			}
			return err
		}

		// 清理可能的 markdown 标记
		clean := strings.TrimSpace(resp.Content)
		clean = strings.TrimPrefix(clean, "```json")
		clean = strings.TrimPrefix(clean, "```")
		clean = strings.TrimSuffix(clean, "```")
		clean = strings.TrimSpace(clean)

		if err := json.Unmarshal([]byte(clean), out); err != nil {
			lastErr = fmt.Errorf("json unmarshal: %w, content: %s", err, clean)
			if i < c.maxRetries {
				continue
			}
			return lastErr
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
