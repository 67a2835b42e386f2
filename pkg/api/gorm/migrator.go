package gorm

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/migrator"
)

// Migrator 在 GORM 通用迁移器之上，用 sqlite_master 和
// pragma_table_info 回答元数据查询
type Migrator struct {
	migrator.Migrator
}

// CurrentDatabase 返回主库名
func (m Migrator) CurrentDatabase() string {
	return "main"
}

// HasTable 检查表是否存在
func (m Migrator) HasTable(value any) bool {
	var count int64
	_ = m.RunWithValue(value, func(stmt *gorm.Statement) error {
		return m.DB.Raw("SELECT count(*) FROM sqlite_master WHERE type = ? AND name = ?", "table", stmt.Table).
			Row().Scan(&count)
	})
	return count > 0
}

// GetTables 获取所有用户表
func (m Migrator) GetTables() (tableList []string, err error) {
	err = m.DB.Raw("SELECT name FROM sqlite_master WHERE type = ? AND name NOT LIKE 'sqlite_%' ORDER BY name", "table").
		Scan(&tableList).Error
	return tableList, err
}

// DropTable 删除表，SQLite 不支持 CASCADE
func (m Migrator) DropTable(values ...any) error {
	values = m.ReorderModels(values, false)
	for i := len(values) - 1; i >= 0; i-- {
		if err := m.RunWithValue(values[i], func(stmt *gorm.Statement) error {
			return m.DB.Exec("DROP TABLE IF EXISTS ?", m.CurrentTable(stmt)).Error
		}); err != nil {
			return err
		}
	}
	return nil
}

// HasColumn 检查列是否存在，field 可以是字段名或列名
func (m Migrator) HasColumn(value any, field string) bool {
	var count int64
	_ = m.RunWithValue(value, func(stmt *gorm.Statement) error {
		name := field
		if stmt.Schema != nil {
			if f := stmt.Schema.LookUpField(field); f != nil {
				name = f.DBName
			}
		}
		return m.DB.Raw("SELECT count(*) FROM pragma_table_info(?) WHERE name = ?", stmt.Table, name).
			Row().Scan(&count)
	})
	return count > 0
}

// HasIndex 检查索引是否存在
func (m Migrator) HasIndex(value any, name string) bool {
	var count int64
	_ = m.RunWithValue(value, func(stmt *gorm.Statement) error {
		if stmt.Schema != nil {
			if idx := stmt.Schema.LookIndex(name); idx != nil {
				name = idx.Name
			}
		}
		return m.DB.Raw("SELECT count(*) FROM sqlite_master WHERE type = ? AND tbl_name = ? AND name = ?",
			"index", stmt.Table, name).Row().Scan(&count)
	})
	return count > 0
}

// DropIndex 删除索引，SQLite 的索引不属于某张表
func (m Migrator) DropIndex(value any, name string) error {
	return m.RunWithValue(value, func(stmt *gorm.Statement) error {
		if stmt.Schema != nil {
			if idx := stmt.Schema.LookIndex(name); idx != nil {
				name = idx.Name
			}
		}
		return m.DB.Exec("DROP INDEX IF EXISTS ?", clause.Column{Name: name}).Error
	})
}
