package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPEngine 策略网关的 HTTP 客户端实现
type HTTPEngine struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPEngine 创建策略网关客户端
func NewHTTPEngine(baseURL string, logger *zap.Logger) *HTTPEngine {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPEngine{
		httpClient: client,
		logger:     logger,
	}
}

// Evaluate 调用策略决策服务
func (e *HTTPEngine) Evaluate(ctx context.Context, req *Request) (*Result, error) {
	var result Result

	resp, err := e.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/api/v1/policies/evaluate")

	if err != nil {
		return nil, fmt.Errorf("failed to call policy gateway: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("policy gateway returned status %d", resp.StatusCode())
	}

	e.logger.Debug("Policy evaluation completed",
		zap.String("rule_name", req.RuleName),
		zap.Int("policy_count", len(req.PolicyIDs)),
		zap.Bool("passing", result.Passing),
	)

	return &result, nil
}
