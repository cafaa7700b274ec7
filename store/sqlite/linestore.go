// Package sqlite is a concrete access.LineStore implementation backed
// by SQLite via gorm. The core server never imports this package
// directly; it is wired in by cmd/clandestined.
package sqlite

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paigeadele/clandestine/internal/access"
)

// lineRow is the gorm model backing one access.Line.
type lineRow struct {
	ID        uint `gorm:"primarykey"`
	Kind      string
	Mask      string `gorm:"index"`
	Reason    string
	Setter    string
	SetTime   time.Time
	Duration  time.Duration
	Password  string
	Class     string
}

func (lineRow) TableName() string { return "access_lines" }

// Store is a gorm-backed access.LineStore.
type Store struct {
	db   *gorm.DB
	kind access.Kind
}

// Open opens (creating if necessary) a SQLite database at path and
// migrates the access_lines table.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}
	if err := db.AutoMigrate(&lineRow{}); err != nil {
		return nil, errors.Wrap(err, "migrating access_lines table")
	}
	return db, nil
}

// ForKind returns a LineStore scoped to a single access line kind.
// access.Policy keeps kinds separate, so each LineStore the core talks
// to is scoped the same way.
func ForKind(db *gorm.DB, kind access.Kind) *Store {
	return &Store{db: db, kind: kind}
}

// Load returns every stored line of this store's kind.
func (s *Store) Load() ([]access.Line, error) {
	var rows []lineRow
	if err := s.db.Where("kind = ?", string(s.kind)).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "loading access lines")
	}
	out := make([]access.Line, 0, len(rows))
	for _, r := range rows {
		out = append(out, access.Line{
			Kind:     s.kind,
			Mask:     r.Mask,
			Reason:   r.Reason,
			Setter:   r.Setter,
			SetTime:  r.SetTime,
			Duration: r.Duration,
			Password: r.Password,
			Class:    r.Class,
		})
	}
	return out, nil
}

// Append persists a new line.
func (s *Store) Append(l access.Line) error {
	row := lineRow{
		Kind:     string(l.Kind),
		Mask:     l.Mask,
		Reason:   l.Reason,
		Setter:   l.Setter,
		SetTime:  l.SetTime,
		Duration: l.Duration,
		Password: l.Password,
		Class:    l.Class,
	}
	return errors.Wrap(s.db.Create(&row).Error, "appending access line")
}

// Remove deletes every stored line of this store's kind with the given
// mask.
func (s *Store) Remove(mask string) error {
	return errors.Wrap(
		s.db.Where("kind = ? AND mask = ?", string(s.kind), mask).Delete(&lineRow{}).Error,
		"removing access line",
	)
}
