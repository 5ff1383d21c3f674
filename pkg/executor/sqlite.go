package executor

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// SQLiteDialect renders SQL for SQLite. Column type and nullability changes
// cannot run in place; they follow the documented recreate-and-copy strategy:
// build the new table under a temporary name, copy rows, drop the old table,
// rename the new one back, then recreate indexes.
type SQLiteDialect struct{}

// NewSQLiteDialect creates the sqlite dialect.
func NewSQLiteDialect() *SQLiteDialect { return &SQLiteDialect{} }

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) QuoteIdent(name string) string { return `"` + name + `"` }

func (d *SQLiteDialect) SupportsTransactionalDDL() bool { return true }

func (d *SQLiteDialect) RequiresRecreation(old, new *state.FieldState) bool {
	return !old.Type.Equal(new.Type) || old.Nullable != new.Nullable
}

func (d *SQLiteDialect) ColumnType(t state.FieldType) string {
	switch t.Kind {
	case state.Integer, state.BigInteger, state.SmallInteger, state.Boolean:
		return "INTEGER"
	case state.Float:
		return "REAL"
	case state.Decimal:
		return "NUMERIC"
	case state.Text, state.VarChar, state.UUID, state.Date, state.DateTime, state.JSON:
		return "TEXT"
	case state.Binary:
		return "BLOB"
	default:
		return t.Name
	}
}

func (d *SQLiteDialect) SQL(op operations.Operation, model *state.ModelState) ([]string, error) {
	switch op := op.(type) {
	case *operations.RenameTable:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			d.QuoteIdent(TableName(state.ModelKey{App: op.App, Name: op.OldName})),
			d.QuoteIdent(TableName(state.ModelKey{App: op.App, Name: op.NewName})))}, nil
	case *operations.AlterField:
		if !op.RequiresRecreation && !d.RequiresRecreation(op.Old, op.New) {
			// Only parameter metadata changed; no DDL to run.
			return nil, nil
		}
		if model == nil {
			return nil, fmt.Errorf("sqlite requires the full model to alter %s", op.New.Name)
		}
		return d.recreate(model)
	case *operations.AddConstraint:
		if op.Column != nil {
			// SQLite cannot add FK constraints to an existing table; ADD
			// COLUMN with an inline REFERENCES clause carries the same
			// meaning.
			table := d.QuoteIdent(TableName(op.Model))
			return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDef(d, op.Column))}, nil
		}
		if model == nil {
			return nil, fmt.Errorf("sqlite requires the full model to add constraint %s", op.Constraint.Name)
		}
		return d.recreate(model)
	case *operations.RemoveConstraint:
		if model == nil {
			return nil, fmt.Errorf("sqlite requires the full model to remove constraint %s", op.Constraint.Name)
		}
		return d.recreate(model)
	case *operations.RemoveIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", d.QuoteIdent(op.Index.Name))}, nil
	}
	return genericSQL(d, op)
}

// recreate renders the four-step table recreation for the model's post-change
// definition. The model is always post-operation state, so its field list is
// exactly the set of columns to copy.
func (d *SQLiteDialect) recreate(model *state.ModelState) ([]string, error) {
	table := TableName(model.Key())
	temp := table + "__new"

	working := model.Clone()
	working.Name = model.Name + "__new"
	// Index names are global in sqlite; indexes are recreated after the
	// rename, against the final table name.
	indexes := working.Indexes
	working.Indexes = nil
	createStatements, err := createTableSQL(d, working)
	if err != nil {
		return nil, err
	}
	create := createStatements[0]

	var columns []string
	for _, field := range model.Fields {
		columns = append(columns, d.QuoteIdent(field.Name))
	}
	columnList := strings.Join(columns, ", ")

	statements := []string{
		create,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			d.QuoteIdent(temp), columnList, columnList, d.QuoteIdent(table)),
		fmt.Sprintf("DROP TABLE %s", d.QuoteIdent(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.QuoteIdent(temp), d.QuoteIdent(table)),
	}
	for _, index := range indexes {
		statements = append(statements, createIndexSQL(d, model.Key(), index))
	}
	return statements, nil
}
