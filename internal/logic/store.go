package logic

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate 行锁，sqlite 下被忽略
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// findOne 按条件读取单行，不存在时返回 ErrNotFound
func findOne(tx *gorm.DB, dest interface{}, what string, query interface{}, args ...interface{}) error {
	if err := tx.Where(query, args...).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return fmt.Errorf("load %s: %w", what, err)
	}
	return nil
}
