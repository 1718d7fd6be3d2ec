package entity

import "time"

// Page is a published CMS page as seen by the sitemap engine.
// SectionID is the page's top-level ancestor. Top-level pages and the
// site root (SectionID 0) are their own section, see Section.
type Page struct {
	ID         uint64    `gorm:"primaryKey"`
	SiteID     uint64    `gorm:"index:idx_site_state"`
	SectionID  uint64    `gorm:"index"`
	LayoutID   uint64    `gorm:"index"`
	Path       string    `gorm:"type:varchar(255)"`
	Title      string    `gorm:"type:varchar(255)"`
	Online     bool      `gorm:"index:idx_site_state"`
	ChangeFreq string    `gorm:"type:varchar(16)"`
	Priority   float64   `gorm:"default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"index"`
}

// Section returns the section the page is partitioned into.
func (p Page) Section() uint64 {
	if p.SectionID == 0 {
		return p.ID
	}
	return p.SectionID
}

// Layout is the page template a page is rendered with.
type Layout struct {
	ID    uint64 `gorm:"primaryKey"`
	Label string `gorm:"type:varchar(128)"`
}

// Choice is one selectable value of a discriminator: a layout or a
// top-level section.
type Choice struct {
	ID    uint64
	Label string
}
