package mysqldb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"sitemap-service/backend/internal/entity"
	"sitemap-service/backend/internal/repo"
)

type mysqlPageRepo struct {
	db *gorm.DB
}

// 确保 mysqlPageRepo 实现了 repo.PageQuery 接口
var _ repo.PageQuery = (*mysqlPageRepo)(nil)

func NewMySQLPageRepo(db *gorm.DB) repo.PageQuery {
	return &mysqlPageRepo{db: db}
}

// sectionExpr 与 entity.Page.Section 一致：section_id 为 0 的根页面自成一个 section
const sectionExpr = "COALESCE(NULLIF(pages.section_id, 0), pages.id)"

// pageScope applies every filter field except the Offset/Limit window.
// Columns are qualified: selections join pages with itself.
func pageScope(tx *gorm.DB, f repo.PageFilter) *gorm.DB {
	tx = tx.Model(&entity.Page{}).
		Where("pages.site_id = ? AND pages.online = ?", f.SiteID, f.Online)
	if f.LayoutID != 0 {
		tx = tx.Where("pages.layout_id = ?", f.LayoutID)
	}
	if f.SectionID != 0 {
		tx = tx.Where(sectionExpr+" = ?", f.SectionID)
	}
	if f.Year != 0 {
		from := time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		tx = tx.Where("pages.updated_at >= ? AND pages.updated_at < ?", from, from.AddDate(1, 0, 0))
	}
	return tx
}

func (r *mysqlPageRepo) Count(ctx context.Context, f repo.PageFilter) (int64, error) {
	var total int64
	if err := pageScope(r.db.WithContext(ctx), f).Count(&total).Error; err != nil {
		return 0, errors.Wrap(err, "count pages")
	}
	return total, nil
}

func (r *mysqlPageRepo) Fetch(ctx context.Context, f repo.PageFilter, offset, limit int) ([]entity.Page, error) {
	if f.Limit > 0 {
		remaining := f.Limit - offset
		if remaining <= 0 {
			return nil, nil
		}
		if limit <= 0 || limit > remaining {
			limit = remaining
		}
	}
	tx := pageScope(r.db.WithContext(ctx), f).
		Order("pages.updated_at ASC").Order("pages.id ASC").
		Offset(f.Offset + offset)
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var pages []entity.Page
	if err := tx.Find(&pages).Error; err != nil {
		return nil, errors.Wrapf(err, "fetch pages offset=%d", f.Offset+offset)
	}
	return pages, nil
}

func (r *mysqlPageRepo) Selection(ctx context.Context, name string, f repo.PageFilter) ([]entity.Choice, error) {
	tx, err := selectionScope(r.db.WithContext(ctx), name, f)
	if err != nil {
		return nil, err
	}
	var choices []entity.Choice
	if err := tx.Scan(&choices).Error; err != nil {
		return nil, errors.Wrapf(err, "select %s", name)
	}
	return choices, nil
}

func selectionScope(tx *gorm.DB, name string, f repo.PageFilter) (*gorm.DB, error) {
	tx = pageScope(tx, f)
	switch name {
	case "layout":
		return tx.Select("layouts.id AS id, layouts.label AS label").
			Joins("JOIN layouts ON layouts.id = pages.layout_id").
			Group("layouts.id, layouts.label").
			Order("layouts.id"), nil
	case "section":
		return tx.Select("sections.id AS id, sections.title AS label").
			Joins("JOIN pages AS sections ON sections.id = " + sectionExpr).
			Group("sections.id, sections.title").
			Order("sections.id"), nil
	}
	return nil, errors.Errorf("no selection for discriminator %q", name)
}

func (r *mysqlPageRepo) Oldest(ctx context.Context, f repo.PageFilter) (*entity.Page, error) {
	var p entity.Page
	err := pageScope(r.db.WithContext(ctx), f).Order("pages.updated_at ASC").Take(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 没找到，返回 nil, nil
		}
		return nil, errors.Wrap(err, "oldest page")
	}
	return &p, nil
}
