package api

import "fmt"

// Result 命令执行结果
type Result struct {
	RowsAffected int64 // 非 DML 语句为 -1
	LastInsertID int64
}

// NewResult 创建 Result
func NewResult(rowsAffected, lastInsertID int64) *Result {
	return &Result{
		RowsAffected: rowsAffected,
		LastInsertID: lastInsertID,
	}
}

func (r *Result) String() string {
	return fmt.Sprintf("Result: RowsAffected=%d, LastInsertID=%d", r.RowsAffected, r.LastInsertID)
}
