package collector

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"
)

// imageMarkers 内容字段中出现任一子串即视为带图；按原样做子串匹配，允许误判
var imageMarkers = []string{"jpg", "JPG", "GIF", "gif", "PNG", "png"}

// ParseFeed 解析 RSS 文档（channel/item），返回正文中带图的条目链接。
// Atom、JSON Feed 以及解析失败、没有条目的文档一律返回空切片，不返回错误。
func ParseFeed(raw []byte) []string {
	links := make([]string, 0)
	if len(bytes.TrimSpace(raw)) == 0 {
		return links
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil || feed == nil || feed.FeedType != "rss" {
		return links
	}

	for _, item := range feed.Items {
		if item == nil || item.Link == "" {
			continue
		}
		if hasImage(itemContent(item)) {
			links = append(links, item.Link)
		}
	}
	return links
}

// itemContent content:encoded 优先，没有时取不带命名空间的 <content> 子元素
func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Custom["content"]
}

func hasImage(content string) bool {
	for _, m := range imageMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}
