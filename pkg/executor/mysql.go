package executor

import (
	"fmt"

	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// MySQLDialect renders SQL for MySQL 8. Alterations run in place via MODIFY
// COLUMN; DDL is not transactional, so migrations never wrap in BEGIN/COMMIT.
type MySQLDialect struct{}

// NewMySQLDialect creates the mysql dialect.
func NewMySQLDialect() *MySQLDialect { return &MySQLDialect{} }

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) QuoteIdent(name string) string { return "`" + name + "`" }

func (d *MySQLDialect) SupportsTransactionalDDL() bool { return false }

func (d *MySQLDialect) RequiresRecreation(old, new *state.FieldState) bool { return false }

func (d *MySQLDialect) ColumnType(t state.FieldType) string {
	switch t.Kind {
	case state.Integer:
		return "INT"
	case state.BigInteger:
		return "BIGINT"
	case state.SmallInteger:
		return "SMALLINT"
	case state.Float:
		return "DOUBLE"
	case state.Decimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case state.Text:
		return "TEXT"
	case state.VarChar:
		return fmt.Sprintf("VARCHAR(%d)", t.MaxLength)
	case state.Boolean:
		return "BOOLEAN"
	case state.Date:
		return "DATE"
	case state.DateTime:
		return "DATETIME(6)"
	case state.JSON:
		return "JSON"
	case state.UUID:
		return "CHAR(36)"
	case state.Binary:
		return "BLOB"
	default:
		return t.Name
	}
}

func (d *MySQLDialect) SQL(op operations.Operation, _ *state.ModelState) ([]string, error) {
	switch op := op.(type) {
	case *operations.RenameTable:
		return []string{fmt.Sprintf("RENAME TABLE %s TO %s",
			d.QuoteIdent(TableName(state.ModelKey{App: op.App, Name: op.OldName})),
			d.QuoteIdent(TableName(state.ModelKey{App: op.App, Name: op.NewName})))}, nil
	case *operations.AlterField:
		table := d.QuoteIdent(TableName(op.Model))
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", table, columnDef(d, op.New))}, nil
	case *operations.RemoveIndex:
		table := d.QuoteIdent(TableName(op.Model))
		return []string{fmt.Sprintf("DROP INDEX %s ON %s", d.QuoteIdent(op.Index.Name), table)}, nil
	case *operations.RemoveConstraint:
		table := d.QuoteIdent(TableName(op.Model))
		name := d.QuoteIdent(op.Constraint.Name)
		var drop string
		switch op.Constraint.Kind {
		case state.ForeignKeyConstraint:
			drop = fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", table, name)
		case state.UniqueConstraint:
			drop = fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", table, name)
		default:
			drop = fmt.Sprintf("ALTER TABLE %s DROP CHECK %s", table, name)
		}
		statements := []string{drop}
		if op.Column != nil {
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, d.QuoteIdent(op.Column.Name)))
		}
		return statements, nil
	}
	return genericSQL(d, op)
}
