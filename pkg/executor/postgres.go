package executor

import (
	"fmt"

	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// PostgresDialect renders SQL for PostgreSQL. Every schema operation runs in
// place; DDL is transactional.
type PostgresDialect struct{}

// NewPostgresDialect creates the postgres dialect.
func NewPostgresDialect() *PostgresDialect { return &PostgresDialect{} }

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) QuoteIdent(name string) string { return `"` + name + `"` }

func (d *PostgresDialect) SupportsTransactionalDDL() bool { return true }

func (d *PostgresDialect) RequiresRecreation(old, new *state.FieldState) bool { return false }

func (d *PostgresDialect) ColumnType(t state.FieldType) string {
	switch t.Kind {
	case state.Integer:
		return "integer"
	case state.BigInteger:
		return "bigint"
	case state.SmallInteger:
		return "smallint"
	case state.Float:
		return "double precision"
	case state.Decimal:
		return fmt.Sprintf("numeric(%d,%d)", t.Precision, t.Scale)
	case state.Text:
		return "text"
	case state.VarChar:
		return fmt.Sprintf("varchar(%d)", t.MaxLength)
	case state.Boolean:
		return "boolean"
	case state.Date:
		return "date"
	case state.DateTime:
		return "timestamp with time zone"
	case state.JSON:
		return "jsonb"
	case state.UUID:
		return "uuid"
	case state.Binary:
		return "bytea"
	default:
		return t.Name
	}
}

func (d *PostgresDialect) SQL(op operations.Operation, _ *state.ModelState) ([]string, error) {
	switch op := op.(type) {
	case *operations.RenameTable:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			d.QuoteIdent(TableName(state.ModelKey{App: op.App, Name: op.OldName})),
			d.QuoteIdent(TableName(state.ModelKey{App: op.App, Name: op.NewName})))}, nil
	case *operations.AlterField:
		table := d.QuoteIdent(TableName(op.Model))
		column := d.QuoteIdent(op.New.Name)
		var statements []string
		if !op.Old.Type.Equal(op.New.Type) {
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s",
				table, column, d.ColumnType(op.New.Type)))
		}
		if op.Old.Nullable != op.New.Nullable {
			verb := "SET"
			if op.New.Nullable {
				verb = "DROP"
			}
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s NOT NULL", table, column, verb))
		}
		return statements, nil
	case *operations.RemoveIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", d.QuoteIdent(op.Index.Name))}, nil
	case *operations.RemoveConstraint:
		table := d.QuoteIdent(TableName(op.Model))
		statements := []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, d.QuoteIdent(op.Constraint.Name))}
		if op.Column != nil {
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, d.QuoteIdent(op.Column.Name)))
		}
		return statements, nil
	}
	return genericSQL(d, op)
}
