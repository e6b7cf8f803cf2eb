package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a query built by the generic store.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type QueryOptionFunc func(*gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

var orderDirections = map[string]string{
	"asc":  "ASC",
	"desc": "DESC",
}

// ApplyOrder orders by column. Unknown directions default to ascending.
func ApplyOrder(column, direction string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		dir, ok := orderDirections[strings.ToLower(strings.TrimSpace(direction))]
		if !ok {
			dir = "ASC"
		}
		return db.Order(fmt.Sprintf("%s %s", column, dir))
	})
}

// ApplyPagination limits the result to size rows after skipping offset rows.
func ApplyPagination(offset, size int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if offset > 0 {
			db = db.Offset(offset)
		}
		if size > 0 {
			db = db.Limit(size)
		}
		return db
	})
}

// WithWhere adds a raw condition.
func WithWhere(query string, args ...any) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}
