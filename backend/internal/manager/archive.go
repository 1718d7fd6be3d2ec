package manager

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	pkgerrors "github.com/pkg/errors"

	"sitemap-service/backend/internal/metrics"
	"sitemap-service/backend/internal/storage"
)

// Archive answers a .xml.gz request. req.URL names the .xml document. The
// dumped file is compressed on the fly; when it was never dumped the
// document is rendered without touching the origin cache.
func (m *Manager) Archive(ctx context.Context, req Request) *Response {
	body, mod, err := m.readDump(req)
	if err != nil {
		if !errors.Is(err, storage.ErrNotExist) {
			log.Printf("manager: op=archive_read site=%d url=%s err=%v", req.SiteID, req.URL, err)
		}
		e, err := m.regenerate(ctx, req, false)
		if err != nil {
			return m.failure(req, "gz", err)
		}
		body, mod = []byte(e.URLSet), e.LastModified
	}
	gz, err := compress(body)
	if err != nil {
		log.Printf("manager: op=archive_gzip site=%d url=%s err=%v", req.SiteID, req.URL, err)
		return m.failure(req, "gz", err)
	}
	resp := m.respond(req, mod, gz, "application/gzip")
	metrics.CounterDocumentsServed.WithLabelValues("gz", strconv.Itoa(resp.Status)).Inc()
	return resp
}

func (m *Manager) readDump(req Request) ([]byte, time.Time, error) {
	if m.files == nil {
		return nil, time.Time{}, storage.ErrNotExist
	}
	return m.files.Read(req.SiteID, req.URL)
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "gzip writer")
	}
	if _, err := zw.Write(body); err != nil {
		return nil, pkgerrors.Wrap(err, "gzip write")
	}
	if err := zw.Close(); err != nil {
		return nil, pkgerrors.Wrap(err, "gzip close")
	}
	return buf.Bytes(), nil
}
