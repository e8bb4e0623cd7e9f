package collector

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// GenericImageSelector 没有站点规则命中时使用：文档顺序第一张图
const GenericImageSelector = "img[src]"

// Rule 站点特定的选图规则：Match 命中 URL 时用 Selector 选取第一张图
type Rule struct {
	Name     string
	Match    func(url string) bool
	Selector string
}

// URLContains 生成一个按子串匹配 URL 的谓词
func URLContains(marker string) func(string) bool {
	return func(url string) bool {
		return strings.Contains(url, marker)
	}
}

// DefaultRules CommitStrip 的漫画图带 size-full 类，页面前面还有 logo 等小图
func DefaultRules() []Rule {
	return []Rule{
		{Name: "commitstrip", Match: URLContains("commitstrip.com"), Selector: "img[class*='size-full'][src]"},
	}
}

// ImageExtractor 抓取文章页面并挑出一张代表图
type ImageExtractor struct {
	Fetcher Fetcher
	Rules   []Rule
}

func NewImageExtractor(f Fetcher, rules ...Rule) *ImageExtractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &ImageExtractor{Fetcher: f, Rules: rules}
}

// Extract 返回图片 src（可能是相对地址），页面无匹配元素时返回空串。
// 只有抓取失败才返回错误，HTML 结构异常不算错误。
func (x *ImageExtractor) Extract(ctx context.Context, url string) (string, error) {
	body, err := x.Fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return SelectImage(url, body, x.Rules), nil
}

// SelectorFor 按顺序返回第一个命中规则的选择器，否则返回通用选择器
func SelectorFor(url string, rules []Rule) string {
	for _, r := range rules {
		if r.Match != nil && r.Match(url) {
			return r.Selector
		}
	}
	return GenericImageSelector
}

// SelectImage 在 HTML 中按规则选出第一张图的 src
func SelectImage(url string, html []byte, rules []Rule) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find(SelectorFor(url, rules)).First().Attr("src")
	return strings.TrimSpace(src)
}
