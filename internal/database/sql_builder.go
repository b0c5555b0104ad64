package database

import (
	"strconv"
	"strings"
)

// Statement 可执行的SQL语句
type Statement interface {
	Build() string
	Args() []any
}

// Rebind 将 ? 占位符转换为方言对应的形式
func Rebind(dialect Dialect, query string) string {
	if dialect == DialectSQLite {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// SelectBuilder SELECT查询构建器
type SelectBuilder struct {
	table      string
	selectCols []string
	whereConds []string
	orderBy    []string
	args       []any
}

// NewSelectBuilder 创建新的SELECT查询构建器
func NewSelectBuilder(table string, cols ...string) *SelectBuilder {
	selectCols := cols
	if len(cols) == 0 {
		selectCols = []string{"*"}
	}

	return &SelectBuilder{
		table:      table,
		selectCols: selectCols,
		args:       make([]any, 0),
	}
}

// Where 添加WHERE条件，多次调用以 AND 连接
func (b *SelectBuilder) Where(condition string, args ...any) *SelectBuilder {
	b.whereConds = append(b.whereConds, condition)
	b.args = append(b.args, args...)
	return b
}

// OrderBy 添加ORDER BY
func (b *SelectBuilder) OrderBy(cols ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, cols...)
	return b
}

// Args 获取参数
func (b *SelectBuilder) Args() []any {
	return b.args
}

// Build 构建SQL语句
func (b *SelectBuilder) Build() string {
	var query strings.Builder

	query.WriteString("SELECT ")
	query.WriteString(strings.Join(b.selectCols, ", "))
	query.WriteString(" FROM " + b.table)

	if len(b.whereConds) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(b.whereConds, " AND "))
	}

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(b.orderBy, ", "))
	}

	return query.String()
}

// InsertBuilder INSERT构建器
type InsertBuilder struct {
	table  string
	cols   []string
	values [][]any
}

// NewInsertBuilder 创建INSERT构建器
func NewInsertBuilder(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Columns 设置列
func (i *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	i.cols = append(i.cols, cols...)
	return i
}

// Values 添加一行值
func (i *InsertBuilder) Values(vals ...any) *InsertBuilder {
	i.values = append(i.values, vals)
	return i
}

// Build 构建INSERT语句
func (i *InsertBuilder) Build() string {
	var query strings.Builder

	query.WriteString("INSERT INTO " + i.table)

	if len(i.cols) > 0 {
		query.WriteString(" (" + strings.Join(i.cols, ", ") + ")")
	}

	if len(i.values) > 0 {
		query.WriteString(" VALUES ")
		placeholders := make([]string, len(i.values[0]))
		for j := range placeholders {
			placeholders[j] = "?"
		}
		row := "(" + strings.Join(placeholders, ", ") + ")"

		for idx := range i.values {
			if idx > 0 {
				query.WriteString(", ")
			}
			query.WriteString(row)
		}
	}

	return query.String()
}

// Args 返回参数列表
func (i *InsertBuilder) Args() []any {
	args := make([]any, 0, len(i.values)*len(i.cols))
	for _, row := range i.values {
		args = append(args, row...)
	}
	return args
}

// UpdateBuilder UPDATE构建器
type UpdateBuilder struct {
	table      string
	sets       []string
	setArgs    []any
	conditions []string
	whereArgs  []any
}

// NewUpdateBuilder 创建UPDATE构建器
func NewUpdateBuilder(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Set 设置更新列，按调用顺序生成
func (u *UpdateBuilder) Set(col string, val any) *UpdateBuilder {
	u.sets = append(u.sets, col+" = ?")
	u.setArgs = append(u.setArgs, val)
	return u
}

// SetExpr 以SQL表达式更新列，不带参数
func (u *UpdateBuilder) SetExpr(col, expr string) *UpdateBuilder {
	u.sets = append(u.sets, col+" = "+expr)
	return u
}

// Where 设置WHERE条件
func (u *UpdateBuilder) Where(condition string, args ...any) *UpdateBuilder {
	u.conditions = append(u.conditions, condition)
	u.whereArgs = append(u.whereArgs, args...)
	return u
}

// Build 构建UPDATE语句
func (u *UpdateBuilder) Build() string {
	var query strings.Builder

	query.WriteString("UPDATE " + u.table)

	if len(u.sets) > 0 {
		query.WriteString(" SET " + strings.Join(u.sets, ", "))
	}

	if len(u.conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(u.conditions, " AND "))
	}

	return query.String()
}

// Args 返回参数列表：SET 参数在前，WHERE 参数在后
func (u *UpdateBuilder) Args() []any {
	args := make([]any, 0, len(u.setArgs)+len(u.whereArgs))
	args = append(args, u.setArgs...)
	return append(args, u.whereArgs...)
}

// DeleteBuilder DELETE构建器
type DeleteBuilder struct {
	table      string
	conditions []string
	args       []any
}

// NewDeleteBuilder 创建DELETE构建器
func NewDeleteBuilder(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

// Where 设置WHERE条件
func (d *DeleteBuilder) Where(condition string, args ...any) *DeleteBuilder {
	d.conditions = append(d.conditions, condition)
	d.args = append(d.args, args...)
	return d
}

// Build 构建DELETE语句
func (d *DeleteBuilder) Build() string {
	var query strings.Builder

	query.WriteString("DELETE FROM " + d.table)

	if len(d.conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(d.conditions, " AND "))
	}

	return query.String()
}

// Args 返回参数列表
func (d *DeleteBuilder) Args() []any {
	return d.args
}
