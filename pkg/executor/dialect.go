package executor

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// Dialect renders operations into backend-specific SQL.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	ColumnType(t state.FieldType) string
	SupportsTransactionalDDL() bool
	// RequiresRecreation reports whether the backend can only perform a
	// column alteration by recreating the table. Wired into the emitter when
	// generating migrations for this backend.
	RequiresRecreation(old, new *state.FieldState) bool
	// SQL renders one operation. model is the operation's owning model after
	// the operation was applied, nil for model-less operations; SQLite needs
	// it to rebuild full table definitions.
	SQL(op operations.Operation, model *state.ModelState) ([]string, error)
}

// DialectByName returns the dialect for a backend name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "postgres", "postgresql":
		return NewPostgresDialect(), nil
	case "sqlite", "sqlite3":
		return NewSQLiteDialect(), nil
	case "mysql":
		return NewMySQLDialect(), nil
	}
	return nil, fmt.Errorf("unsupported database backend %q", name)
}

// TableName maps a model key to its table: lowercased app and model name
// joined by an underscore.
func TableName(key state.ModelKey) string {
	return strings.ToLower(key.App) + "_" + strings.ToLower(key.Name)
}

// columnDef renders one column definition, referential clause included.
func columnDef(d Dialect, field *state.FieldState) string {
	var b strings.Builder
	b.WriteString(d.QuoteIdent(field.Name))
	b.WriteString(" ")
	b.WriteString(d.ColumnType(field.Type))
	if field.PrimaryKey() {
		b.WriteString(" PRIMARY KEY")
	}
	if !field.Nullable {
		b.WriteString(" NOT NULL")
	}
	if field.Params != nil && field.Params.BoolFlag(state.ParamUnique) {
		b.WriteString(" UNIQUE")
	}
	if field.Params != nil {
		if def, ok := field.Params.Get(state.ParamDefault); ok {
			b.WriteString(" DEFAULT ")
			b.WriteString(sqlLiteral(def))
		}
	}
	if rel := field.Relation; rel != nil && rel.Kind != state.ManyToMany {
		b.WriteString(" REFERENCES ")
		b.WriteString(d.QuoteIdent(TableName(rel.Target())))
		b.WriteString("(")
		b.WriteString(d.QuoteIdent("id"))
		b.WriteString(")")
		if rel.OnDelete != state.NoAction {
			b.WriteString(" ON DELETE ")
			b.WriteString(rel.OnDelete.String())
		}
		if rel.OnUpdate != state.NoAction {
			b.WriteString(" ON UPDATE ")
			b.WriteString(rel.OnUpdate.String())
		}
	}
	return b.String()
}

// sqlLiteral renders a parameter value as a SQL literal for DEFAULT clauses.
func sqlLiteral(v state.Value) string {
	switch v.Kind {
	case state.KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case state.KindString:
		return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
	default:
		return v.String()
	}
}

// constraintClause renders a table constraint body. column carries the FK
// column for foreign key constraints.
func constraintClause(d Dialect, constraint state.ConstraintDefinition, column *state.FieldState) (string, error) {
	quoted := make([]string, len(constraint.Columns))
	for i, col := range constraint.Columns {
		quoted[i] = d.QuoteIdent(col)
	}
	switch constraint.Kind {
	case state.CheckConstraint:
		return fmt.Sprintf("CONSTRAINT %s CHECK (%s)", d.QuoteIdent(constraint.Name), constraint.Expression), nil
	case state.UniqueConstraint:
		return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", d.QuoteIdent(constraint.Name), strings.Join(quoted, ", ")), nil
	case state.ForeignKeyConstraint:
		if column == nil || column.Relation == nil {
			return "", fmt.Errorf("foreign key constraint %s carries no column relation", constraint.Name)
		}
		rel := column.Relation
		clause := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
			d.QuoteIdent(constraint.Name), strings.Join(quoted, ", "),
			d.QuoteIdent(TableName(rel.Target())), d.QuoteIdent("id"))
		if rel.OnDelete != state.NoAction {
			clause += " ON DELETE " + rel.OnDelete.String()
		}
		return clause, nil
	}
	return "", fmt.Errorf("unsupported constraint kind %s", constraint.Kind)
}

// createTableSQL renders CREATE TABLE plus one CREATE INDEX per declared
// index. Foreign keys render inline on their columns.
func createTableSQL(d Dialect, model *state.ModelState) ([]string, error) {
	table := TableName(model.Key())
	parts := make([]string, 0, len(model.Fields)+len(model.Constraints))
	for _, field := range model.Fields {
		parts = append(parts, columnDef(d, field))
	}
	for _, constraint := range model.Constraints {
		var column *state.FieldState
		if constraint.Kind == state.ForeignKeyConstraint && len(constraint.Columns) == 1 {
			column = model.Field(constraint.Columns[0])
		}
		clause, err := constraintClause(d, constraint, column)
		if err != nil {
			return nil, err
		}
		parts = append(parts, clause)
	}

	statements := []string{fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdent(table), strings.Join(parts, ", "))}
	for _, index := range model.Indexes {
		statements = append(statements, createIndexSQL(d, model.Key(), index))
	}
	return statements, nil
}

func createIndexSQL(d Dialect, key state.ModelKey, index state.IndexDefinition) string {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	quoted := make([]string, len(index.Columns))
	for i, col := range index.Columns {
		quoted[i] = d.QuoteIdent(col)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, d.QuoteIdent(index.Name), d.QuoteIdent(TableName(key)), strings.Join(quoted, ", "))
}

// junctionColumns returns the junction table's two FK column names. A
// self-referential many-to-many needs distinct names.
func junctionColumns(meta state.ManyToManyMetadata) (from, to string) {
	from = strings.ToLower(meta.FromModel) + "_id"
	to = strings.ToLower(meta.ToModel) + "_id"
	if from == to {
		from = "from_" + from
		to = "to_" + to
	}
	return from, to
}

// junctionTableSQL renders the CREATE TABLE for an auto-generated junction
// table: a surrogate id, one cascading FK per side, uniqueness over the pair.
func junctionTableSQL(d Dialect, meta state.ManyToManyMetadata) string {
	fromCol, toCol := junctionColumns(meta)

	id := state.NewField("id", state.SimpleType(state.Integer), false)
	id.Params.Set(state.ParamPrimaryKey, state.BoolValue(true))
	fromField := state.NewField(fromCol, state.SimpleType(state.Integer), false)
	fromField.Relation = &state.Relation{
		Kind: state.ForeignKey, TargetApp: meta.FromApp, TargetModel: meta.FromModel, OnDelete: state.Cascade,
	}
	toField := state.NewField(toCol, state.SimpleType(state.Integer), false)
	toField.Relation = &state.Relation{
		Kind: state.ForeignKey, TargetApp: meta.ToApp, TargetModel: meta.ToModel, OnDelete: state.Cascade,
	}

	parts := []string{
		columnDef(d, id),
		columnDef(d, fromField),
		columnDef(d, toField),
		fmt.Sprintf("CONSTRAINT %s UNIQUE (%s, %s)",
			d.QuoteIdent("uq_"+meta.JunctionTable), d.QuoteIdent(fromCol), d.QuoteIdent(toCol)),
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdent(meta.JunctionTable), strings.Join(parts, ", "))
}

// genericSQL renders the operations whose SQL postgres and mysql share.
// Backend-specific cases are handled by the caller before delegating here.
func genericSQL(d Dialect, op operations.Operation) ([]string, error) {
	switch op := op.(type) {
	case *operations.CreateTable:
		return createTableSQL(d, op.Model)
	case *operations.DeleteTable:
		return []string{fmt.Sprintf("DROP TABLE %s", d.QuoteIdent(TableName(op.Model.Key())))}, nil
	case *operations.AddField:
		table := d.QuoteIdent(TableName(op.Model))
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDef(d, op.Field))}, nil
	case *operations.RemoveField:
		table := d.QuoteIdent(TableName(op.Model))
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, d.QuoteIdent(op.Field.Name))}, nil
	case *operations.RenameField:
		table := d.QuoteIdent(TableName(op.Model))
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			table, d.QuoteIdent(op.OldName), d.QuoteIdent(op.NewName))}, nil
	case *operations.AddIndex:
		return []string{createIndexSQL(d, op.Model, op.Index)}, nil
	case *operations.AddConstraint:
		table := d.QuoteIdent(TableName(op.Model))
		var statements []string
		if op.Column != nil {
			column := op.Column.Clone()
			// The FK clause is added as a named constraint, not inline.
			column.Relation = nil
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDef(d, column)))
		}
		clause, err := constraintClause(d, op.Constraint, op.Column)
		if err != nil {
			return nil, err
		}
		return append(statements, fmt.Sprintf("ALTER TABLE %s ADD %s", table, clause)), nil
	case *operations.AddManyToMany:
		return []string{junctionTableSQL(d, op.Meta)}, nil
	case *operations.RemoveManyToMany:
		return []string{fmt.Sprintf("DROP TABLE %s", d.QuoteIdent(op.Meta.JunctionTable))}, nil
	case *operations.RunSQL:
		return []string{op.SQL}, nil
	case *operations.RunGo:
		// State-only; the executor skips SQL for these.
		return nil, nil
	}
	return nil, fmt.Errorf("no generic SQL for %T", op)
}
