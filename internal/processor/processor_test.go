package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashURLDeterministicAndDistinct(t *testing.T) {
	url1 := "https://example.com/a"
	url2 := "https://example.com/b"

	assert.Equal(t, hashURL(url1), hashURL(url1))
	assert.NotEqual(t, hashURL(url1), hashURL(url2))
	assert.Len(t, hashURL(url1), 40)
}

func TestCacheKeyNamespacedAndCollisionFree(t *testing.T) {
	key := CacheKey("http://x/1")
	assert.True(t, strings.HasPrefix(key, ImageKeyPrefix))
	assert.Equal(t, key, CacheKey("http://x/1"))

	// 仅相差被旧实现剔除的字符（: / @ 等）的 URL 也不能冲突
	pairs := [][2]string{
		{"http://x/a/b", "http://x/ab"},
		{"http://u@x/1", "http://ux/1"},
		{"http://x:80/1", "http://x80/1"},
		{"http://x/(1)", "http://x/1"},
	}
	for _, p := range pairs {
		assert.NotEqual(t, CacheKey(p[0]), CacheKey(p[1]), "%s vs %s", p[0], p[1])
	}
}

func TestCacheKeyInjectiveOnPlainURLs(t *testing.T) {
	urls := []string{"example.com", "example.org", "example.com?a=1", "example.com?a=2", "EXAMPLE.com", ""}
	seen := map[string]string{}
	for _, u := range urls {
		k := CacheKey(u)
		if prev, ok := seen[k]; ok {
			t.Fatalf("CacheKey collision between %q and %q", prev, u)
		}
		seen[k] = u
	}
}

func TestAggregateFeedFirstAndDeduplicated(t *testing.T) {
	feed := []string{"http://x/1", "http://x/2", "http://x/1"}
	api := []string{"http://y/2", "http://x/2", "http://y/3"}

	got := Aggregate(feed, api)
	assert.Equal(t, []string{"http://x/1", "http://x/2", "http://y/2", "http://y/3"}, got)
}

func TestAggregateExactStringEquality(t *testing.T) {
	// 不做 URL 规范化
	got := Aggregate([]string{"http://x/1"}, []string{"http://x/1/", "HTTP://x/1"})
	assert.Equal(t, []string{"http://x/1", "http://x/1/", "HTTP://x/1"}, got)
}

func TestAggregateIdempotent(t *testing.T) {
	a := []string{"http://x/1", "http://x/2"}
	b := []string{"http://y/1"}

	once := Aggregate(a, b)
	assert.Equal(t, once, Aggregate(once, nil))
	assert.Equal(t, once, Aggregate(once, []string{}))
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestNewResolvedImageUsesLinkHash(t *testing.T) {
	r := NewResolvedImage("commitstrip", 3, "http://x/1", "")
	assert.Equal(t, hashURL("http://x/1"), r.ID)
	assert.Equal(t, 3, r.Position)
	assert.Equal(t, "", r.Image)
}
