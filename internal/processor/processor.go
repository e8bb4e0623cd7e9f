package processor

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/samber/lo"
)

const (
	// ImageKeyPrefix 单个文章链接 -> 图片地址的缓存命名空间
	ImageKeyPrefix = "image:"
	// ImagesKey 整个图片列表的缓存 key
	ImagesKey = "images:all"
)

// Aggregate 先 RSS 后 API 拼接链接，按字符串精确去重，保留首次出现的顺序
func Aggregate(feedLinks, apiLinks []string) []string {
	all := make([]string, 0, len(feedLinks)+len(apiLinks))
	all = append(all, feedLinks...)
	all = append(all, apiLinks...)
	return lo.Uniq(all)
}

// CacheKey 由完整 URL 的 sha1 得到，相同 URL 必然同 key，不同 URL 不会因字符剔除而冲突
func CacheKey(url string) string {
	return ImageKeyPrefix + hashURL(url)
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// ResolvedImage 一条文章链接及其解析出的图片，写入存储层前的统一结构
type ResolvedImage struct {
	ID       string
	Source   string
	Position int
	Link     string
	Image    string
}

func NewResolvedImage(source string, position int, link, image string) ResolvedImage {
	return ResolvedImage{
		ID:       hashURL(link),
		Source:   source,
		Position: position,
		Link:     link,
		Image:    image,
	}
}
