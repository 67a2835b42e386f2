package gorm

import (
	"database/sql"

	"github.com/kasuganosora/sqlsession/pkg/api"

	"gorm.io/gorm"
	"gorm.io/gorm/callbacks"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"
)

// Dialector 把 api.Session 作为 GORM 的 SQLite 驱动
type Dialector struct {
	Session *api.Session
	DB      *sql.DB // 经由 Session 的连接池，Initialize 时创建
}

// NewDialector 创建一个使用 session 的 GORM 驱动
func NewDialector(session *api.Session) gorm.Dialector {
	return &Dialector{Session: session}
}

// Name 返回数据库方言名称
func (d *Dialector) Name() string {
	return "sqlite"
}

// Initialize 注册默认回调并把连接池指向 Session
func (d *Dialector) Initialize(db *gorm.DB) error {
	// SQLite 的 last_insert_rowid 是批量插入的最后一行
	callbacks.RegisterDefaultCallbacks(db, &callbacks.Config{
		LastInsertIDReversed: true,
	})
	if d.DB == nil {
		d.DB = OpenDB(d.Session)
	}
	db.ConnPool = d.DB
	return nil
}

// Migrator 提供数据库迁移工具
func (d *Dialector) Migrator(db *gorm.DB) gorm.Migrator {
	return Migrator{Migrator: migrator.Migrator{Config: migrator.Config{
		DB:                          db,
		Dialector:                   d,
		CreateIndexAfterCreateTable: true,
	}}}
}

// DataTypeOf 按 SQLite 的类型亲和性确定字段类型
func (d *Dialector) DataTypeOf(field *schema.Field) string {
	switch field.DataType {
	case schema.Bool:
		return "numeric"
	case schema.Int, schema.Uint:
		if field.AutoIncrement && field.PrimaryKey {
			return "integer PRIMARY KEY AUTOINCREMENT"
		}
		return "integer"
	case schema.Float:
		return "real"
	case schema.String:
		return "text"
	case schema.Time:
		// 与注册表的 TIMESTAMP 转换器同名
		return "timestamp"
	case schema.Bytes:
		return "blob"
	default:
		return string(field.DataType)
	}
}

// DefaultValueOf 提供批量插入时缺省字段的值
func (d *Dialector) DefaultValueOf(field *schema.Field) clause.Expression {
	if field.AutoIncrement {
		return clause.Expr{SQL: "NULL"}
	}
	return clause.Expr{SQL: "DEFAULT"}
}

// BindVarTo 写入位置参数占位符
func (d *Dialector) BindVarTo(writer clause.Writer, stmt *gorm.Statement, v any) {
	writer.WriteByte('?')
}

// QuoteTo 用反引号包裹标识符
func (d *Dialector) QuoteTo(writer clause.Writer, str string) {
	writer.WriteByte('`')
	writer.WriteString(str)
	writer.WriteByte('`')
}

// Explain 把参数代入 SQL，用于日志
func (d *Dialector) Explain(sql string, vars ...any) string {
	return logger.ExplainSQL(sql, nil, `"`, vars...)
}
