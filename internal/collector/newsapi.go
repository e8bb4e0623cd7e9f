package collector

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrDecode API 响应无法解析，属于致命错误
	ErrDecode = errors.New("decode api response")
	// ErrNoArticles 响应中缺少 articles 字段
	ErrNoArticles = errors.New("missing articles field")
)

// DecodeError errors.Is(err, ErrDecode) 为真，Unwrap 返回具体原因
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%v: %v", ErrDecode, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// APIError NewsAPI 的错误响应，例如 apiKeyMissing / rateLimited
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("newsapi error %s: %s", e.Code, e.Message)
}

type newsAPIResp struct {
	Status   string            `json:"status"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Articles *[]newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	URL        string `json:"url"`
	URLToImage string `json:"urlToImage"`
}

// ParseAPI 解析新闻 API 响应，返回带配图（urlToImage 非空）的文章链接
func ParseAPI(raw []byte) ([]string, error) {
	var resp newsAPIResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if resp.Status == "error" {
		return nil, &DecodeError{Err: &APIError{Code: resp.Code, Message: resp.Message}}
	}
	if resp.Articles == nil {
		return nil, &DecodeError{Err: ErrNoArticles}
	}

	links := make([]string, 0, len(*resp.Articles))
	for _, a := range *resp.Articles {
		if a.URLToImage == "" || a.URL == "" {
			continue
		}
		links = append(links, a.URL)
	}
	return links, nil
}

// APIErrorFromFetch 从 NewsAPI 的非 2xx 响应体中取出错误说明，不是错误信封时返回 nil
func APIErrorFromFetch(err error) *APIError {
	var fe *FetchError
	if !errors.As(err, &fe) || len(fe.Body) == 0 {
		return nil
	}
	var resp newsAPIResp
	if json.Unmarshal(fe.Body, &resp) != nil || resp.Status != "error" {
		return nil
	}
	return &APIError{Code: resp.Code, Message: resp.Message}
}
