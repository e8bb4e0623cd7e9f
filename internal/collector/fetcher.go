package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// UserAgent 所有出站请求使用的固定 UA（NewsAPI 会拒绝空 UA）
const UserAgent = "ImageHubBot/1.0"

const defaultFetchTimeout = 10 * time.Second

// ErrUnreachable 表示目标地址无法获取内容（网络错误或非 2xx 状态）
var ErrUnreachable = errors.New("unreachable")

// FetchError 描述一次失败的抓取，errors.Is(err, ErrUnreachable) 为真。
// 非 2xx 响应的响应体保存在 Body 中，NewsAPI 的错误说明就在这里。
type FetchError struct {
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrUnreachable }

// Fetcher 抓取 URL 的原始响应体
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher 基于 colly 的阻塞 GET 实现，无重试
type HTTPFetcher struct {
	base *colly.Collector
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	c := colly.NewCollector(
		colly.UserAgent(UserAgent),
		// 缓存过期后需要重新抓取同一地址
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(timeout)
	return &HTTPFetcher{base: c}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	// 每次请求使用独立的 clone，回调互不干扰，可并发调用
	c := f.base.Clone()

	var (
		body    []byte
		errBody []byte
		status  int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
			errBody = r.Body
		}
	})

	if err := c.Visit(url); err != nil {
		return nil, &FetchError{URL: url, StatusCode: status, Body: errBody, Err: err}
	}
	if body == nil {
		return nil, &FetchError{URL: url, StatusCode: status, Err: errors.New("empty response")}
	}
	return body, nil
}
