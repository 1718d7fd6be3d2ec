package cache

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// 键语义：
// - sitemapKey(site): 站点已缓存文档的 url 集合（Set<url>），只用于 Invalidate
// - documentKey(site, url): 单个文档（String<Entry JSON>），各自带 TTL
//
// 花括号是 cluster hash tag，同一站点的所有键落在同一个 slot

const (
	keySitemapFmt  = "sitemap:{%s}"
	keyDocumentFmt = "sitemap:{%s}:%s"
)

func siteTag(site uint64) string {
	sum := xxhash.Sum64String("sitemap" + strconv.FormatUint(site, 10))
	return strconv.FormatUint(sum, 16)
}

func sitemapKey(site uint64) string {
	return fmt.Sprintf(keySitemapFmt, siteTag(site))
}

func documentKey(site uint64, url string) string {
	return fmt.Sprintf(keyDocumentFmt, siteTag(site), url)
}
