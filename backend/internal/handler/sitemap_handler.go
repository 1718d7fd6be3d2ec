package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sitemap-service/backend/config"
	"sitemap-service/backend/internal/manager"
	"sitemap-service/backend/internal/sitemap"
)

// SiteResolver maps a request to a configured site.
type SiteResolver interface {
	SiteByHost(host string) config.Site
	SiteByID(id uint64) (config.Site, bool)
}

type SitemapHandler struct {
	mgr    *manager.Manager
	router *sitemap.Router
	sites  SiteResolver
}

func NewSitemapHandler(m *manager.Manager, router *sitemap.Router, sites SiteResolver) *SitemapHandler {
	return &SitemapHandler{mgr: m, router: router, sites: sites}
}

// Document serves GET /:file. A trailing .gz selects the archive of the
// .xml document.
func (h *SitemapHandler) Document() gin.HandlerFunc {
	return func(c *gin.Context) {
		file := c.Param("file")
		name, archive := strings.CutSuffix(file, ".gz")
		routeID, attrs, ok := h.router.Match(name)
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		site := h.sites.SiteByHost(c.Request.Host)
		req := manager.Request{
			SiteID:     site.ID,
			BaseURL:    site.BaseURL,
			RouteID:    routeID,
			Attributes: attrs,
			URL:        name,
		}
		if ims := c.GetHeader("If-Modified-Since"); ims != "" {
			// 格式不对就当没带
			if t, err := http.ParseTime(ims); err == nil {
				req.IfModifiedSince = t
			}
		}

		var resp *manager.Response
		if archive {
			resp = h.mgr.Archive(c.Request.Context(), req)
		} else {
			resp = h.mgr.Serve(c.Request.Context(), req)
		}
		for k, vs := range resp.Header {
			if len(vs) > 0 {
				c.Header(k, vs[0])
			}
		}
		if len(resp.Body) == 0 {
			c.Status(resp.Status)
			return
		}
		c.Data(resp.Status, resp.Header.Get("Content-Type"), resp.Body)
	}
}

type invalidateReq struct {
	SiteID uint64 `json:"site_id"`
}

// Invalidate serves POST /admin/sitemaps/invalidate. Without a site_id the
// site of the request host is invalidated.
func (h *SitemapHandler) Invalidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req invalidateReq
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		site := h.sites.SiteByHost(c.Request.Host)
		if req.SiteID != 0 {
			var ok bool
			if site, ok = h.sites.SiteByID(req.SiteID); !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown site"})
				return
			}
		}
		if err := h.mgr.Invalidate(c.Request.Context(), site.ID, manager.SourceHTTP); err != nil {
			log.Printf("handler: op=invalidate site=%d user=%v err=%v", site.ID, c.Value("userId"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"site_id": site.ID, "invalidated": true})
	}
}
