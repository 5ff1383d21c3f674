package repository

import (
	"fmt"

	"github.com/platinummonkey/automigrate/pkg/migration"
	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// migrationDoc is the YAML shape of one plan file.
type migrationDoc struct {
	App          string         `yaml:"app"`
	Name         string         `yaml:"name"`
	Atomic       bool           `yaml:"atomic"`
	Dependencies []refDoc       `yaml:"dependencies,omitempty"`
	Replaces     []refDoc       `yaml:"replaces,omitempty"`
	Operations   []operationDoc `yaml:"operations"`
}

type refDoc struct {
	App  string `yaml:"app"`
	Name string `yaml:"name"`
}

type keyDoc struct {
	App  string `yaml:"app"`
	Name string `yaml:"name"`
}

type modelDoc struct {
	App         string          `yaml:"app"`
	Name        string          `yaml:"name"`
	Fields      []fieldDoc      `yaml:"fields"`
	Indexes     []indexDoc      `yaml:"indexes,omitempty"`
	Constraints []constraintDoc `yaml:"constraints,omitempty"`
}

type fieldDoc struct {
	Name     string       `yaml:"name"`
	Type     string       `yaml:"type"`
	Nullable bool         `yaml:"nullable,omitempty"`
	Params   []paramDoc   `yaml:"params,omitempty"`
	Relation *relationDoc `yaml:"relation,omitempty"`
}

type paramDoc struct {
	Key   string      `yaml:"key"`
	Value interface{} `yaml:"value"`
}

type relationDoc struct {
	Kind     string `yaml:"kind"`
	App      string `yaml:"app"`
	Model    string `yaml:"model"`
	OnDelete string `yaml:"on_delete,omitempty"`
	OnUpdate string `yaml:"on_update,omitempty"`
}

type indexDoc struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

type constraintDoc struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Columns    []string `yaml:"columns,omitempty"`
	Expression string   `yaml:"expression,omitempty"`
}

type m2mDoc struct {
	JunctionTable string `yaml:"junction_table"`
	FromApp       string `yaml:"from_app"`
	FromModel     string `yaml:"from_model"`
	FieldName     string `yaml:"field"`
	ToApp         string `yaml:"to_app"`
	ToModel       string `yaml:"to_model"`
}

type operationDoc struct {
	Kind string `yaml:"kind"`

	Model *modelDoc `yaml:"model,omitempty"`
	Table *keyDoc   `yaml:"table,omitempty"`

	App     string `yaml:"app,omitempty"`
	OldName string `yaml:"old_name,omitempty"`
	NewName string `yaml:"new_name,omitempty"`

	Field    *fieldDoc `yaml:"field,omitempty"`
	OldField *fieldDoc `yaml:"old_field,omitempty"`
	NewField *fieldDoc `yaml:"new_field,omitempty"`

	Index      *indexDoc      `yaml:"index,omitempty"`
	Constraint *constraintDoc `yaml:"constraint,omitempty"`
	Column     *fieldDoc      `yaml:"column,omitempty"`
	ManyToMany *m2mDoc        `yaml:"many_to_many,omitempty"`

	RequiresRecreation bool `yaml:"requires_recreation,omitempty"`

	SQL        string `yaml:"sql,omitempty"`
	ReverseSQL string `yaml:"reverse_sql,omitempty"`
}

var relationKinds = map[string]state.RelationKind{
	"foreign_key":  state.ForeignKey,
	"one_to_one":   state.OneToOne,
	"many_to_many": state.ManyToMany,
}

var fkActions = map[string]state.ForeignKeyAction{
	"NO ACTION":   state.NoAction,
	"CASCADE":     state.Cascade,
	"SET NULL":    state.SetNull,
	"SET DEFAULT": state.SetDefault,
	"RESTRICT":    state.Restrict,
}

var constraintKinds = map[string]state.ConstraintKind{
	"check":       state.CheckConstraint,
	"unique":      state.UniqueConstraint,
	"foreign_key": state.ForeignKeyConstraint,
}

func encodeMigration(m *migration.Migration) (*migrationDoc, error) {
	doc := &migrationDoc{
		App:          m.App,
		Name:         m.Name,
		Atomic:       m.Atomic,
		Dependencies: encodeRefs(m.Dependencies),
		Replaces:     encodeRefs(m.Replaces),
	}
	for _, op := range m.Operations {
		opDoc, err := encodeOperation(op)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %s in %s: %w", op.Describe(), m.ID(), err)
		}
		doc.Operations = append(doc.Operations, opDoc)
	}
	return doc, nil
}

func decodeMigration(doc *migrationDoc) (*migration.Migration, error) {
	m := &migration.Migration{
		App:          doc.App,
		Name:         doc.Name,
		Atomic:       doc.Atomic,
		Dependencies: decodeRefs(doc.Dependencies),
		Replaces:     decodeRefs(doc.Replaces),
	}
	for i, opDoc := range doc.Operations {
		op, err := decodeOperation(opDoc)
		if err != nil {
			return nil, fmt.Errorf("failed to load operation %d of %s: %w", i, m.ID(), err)
		}
		m.Operations = append(m.Operations, op)
	}
	return m, nil
}

func encodeRefs(refs []migration.Ref) []refDoc {
	out := make([]refDoc, len(refs))
	for i, ref := range refs {
		out[i] = refDoc{App: ref.App, Name: ref.Name}
	}
	return out
}

func decodeRefs(docs []refDoc) []migration.Ref {
	if len(docs) == 0 {
		return nil
	}
	out := make([]migration.Ref, len(docs))
	for i, doc := range docs {
		out[i] = migration.Ref{App: doc.App, Name: doc.Name}
	}
	return out
}

func encodeOperation(op operations.Operation) (operationDoc, error) {
	switch op := op.(type) {
	case *operations.CreateTable:
		return operationDoc{Kind: "create_table", Model: encodeModel(op.Model)}, nil
	case *operations.DeleteTable:
		return operationDoc{Kind: "delete_table", Model: encodeModel(op.Model)}, nil
	case *operations.RenameTable:
		return operationDoc{Kind: "rename_table", App: op.App, OldName: op.OldName, NewName: op.NewName}, nil
	case *operations.AddField:
		return operationDoc{Kind: "add_field", Table: encodeKey(op.Model), Field: encodeField(op.Field)}, nil
	case *operations.RemoveField:
		return operationDoc{Kind: "remove_field", Table: encodeKey(op.Model), Field: encodeField(op.Field)}, nil
	case *operations.RenameField:
		return operationDoc{Kind: "rename_field", Table: encodeKey(op.Model), OldName: op.OldName, NewName: op.NewName}, nil
	case *operations.AlterField:
		return operationDoc{
			Kind: "alter_field", Table: encodeKey(op.Model),
			OldField: encodeField(op.Old), NewField: encodeField(op.New),
			RequiresRecreation: op.RequiresRecreation,
		}, nil
	case *operations.AddIndex:
		return operationDoc{Kind: "add_index", Table: encodeKey(op.Model), Index: encodeIndex(op.Index)}, nil
	case *operations.RemoveIndex:
		return operationDoc{Kind: "remove_index", Table: encodeKey(op.Model), Index: encodeIndex(op.Index)}, nil
	case *operations.AddConstraint:
		return operationDoc{Kind: "add_constraint", Table: encodeKey(op.Model), Constraint: encodeConstraint(op.Constraint), Column: encodeField(op.Column)}, nil
	case *operations.RemoveConstraint:
		return operationDoc{Kind: "remove_constraint", Table: encodeKey(op.Model), Constraint: encodeConstraint(op.Constraint), Column: encodeField(op.Column)}, nil
	case *operations.AddManyToMany:
		return operationDoc{Kind: "add_many_to_many", ManyToMany: encodeManyToMany(op.Meta)}, nil
	case *operations.RemoveManyToMany:
		return operationDoc{Kind: "remove_many_to_many", ManyToMany: encodeManyToMany(op.Meta)}, nil
	case *operations.RunSQL:
		return operationDoc{Kind: "run_sql", SQL: op.SQL, ReverseSQL: op.ReverseSQL}, nil
	case *operations.RunGo:
		return operationDoc{}, fmt.Errorf("go migrations cannot be serialized to a plan file")
	}
	return operationDoc{}, fmt.Errorf("unsupported operation type %T", op)
}

func decodeOperation(doc operationDoc) (operations.Operation, error) {
	switch doc.Kind {
	case "create_table":
		model, err := decodeModel(doc.Model)
		if err != nil {
			return nil, err
		}
		return &operations.CreateTable{Model: model}, nil
	case "delete_table":
		model, err := decodeModel(doc.Model)
		if err != nil {
			return nil, err
		}
		return &operations.DeleteTable{Model: model}, nil
	case "rename_table":
		return &operations.RenameTable{App: doc.App, OldName: doc.OldName, NewName: doc.NewName}, nil
	case "add_field":
		field, err := decodeField(doc.Field)
		if err != nil {
			return nil, err
		}
		return &operations.AddField{Model: decodeKey(doc.Table), Field: field}, nil
	case "remove_field":
		field, err := decodeField(doc.Field)
		if err != nil {
			return nil, err
		}
		return &operations.RemoveField{Model: decodeKey(doc.Table), Field: field}, nil
	case "rename_field":
		return &operations.RenameField{Model: decodeKey(doc.Table), OldName: doc.OldName, NewName: doc.NewName}, nil
	case "alter_field":
		oldField, err := decodeField(doc.OldField)
		if err != nil {
			return nil, err
		}
		newField, err := decodeField(doc.NewField)
		if err != nil {
			return nil, err
		}
		return &operations.AlterField{
			Model: decodeKey(doc.Table), Old: oldField, New: newField,
			RequiresRecreation: doc.RequiresRecreation,
		}, nil
	case "add_index":
		return &operations.AddIndex{Model: decodeKey(doc.Table), Index: decodeIndex(doc.Index)}, nil
	case "remove_index":
		return &operations.RemoveIndex{Model: decodeKey(doc.Table), Index: decodeIndex(doc.Index)}, nil
	case "add_constraint":
		constraint, column, err := decodeConstraintAndColumn(doc)
		if err != nil {
			return nil, err
		}
		return &operations.AddConstraint{Model: decodeKey(doc.Table), Constraint: constraint, Column: column}, nil
	case "remove_constraint":
		constraint, column, err := decodeConstraintAndColumn(doc)
		if err != nil {
			return nil, err
		}
		return &operations.RemoveConstraint{Model: decodeKey(doc.Table), Constraint: constraint, Column: column}, nil
	case "add_many_to_many":
		meta, err := decodeManyToMany(doc.ManyToMany)
		if err != nil {
			return nil, err
		}
		return &operations.AddManyToMany{Meta: meta}, nil
	case "remove_many_to_many":
		meta, err := decodeManyToMany(doc.ManyToMany)
		if err != nil {
			return nil, err
		}
		return &operations.RemoveManyToMany{Meta: meta}, nil
	case "run_sql":
		return &operations.RunSQL{SQL: doc.SQL, ReverseSQL: doc.ReverseSQL}, nil
	}
	return nil, fmt.Errorf("unknown operation kind %q", doc.Kind)
}

func decodeConstraintAndColumn(doc operationDoc) (state.ConstraintDefinition, *state.FieldState, error) {
	constraint, err := decodeConstraint(doc.Constraint)
	if err != nil {
		return state.ConstraintDefinition{}, nil, err
	}
	column, err := decodeField(doc.Column)
	if err != nil {
		return state.ConstraintDefinition{}, nil, err
	}
	return constraint, column, nil
}

func encodeManyToMany(meta state.ManyToManyMetadata) *m2mDoc {
	return &m2mDoc{
		JunctionTable: meta.JunctionTable,
		FromApp:       meta.FromApp,
		FromModel:     meta.FromModel,
		FieldName:     meta.FieldName,
		ToApp:         meta.ToApp,
		ToModel:       meta.ToModel,
	}
}

func decodeManyToMany(doc *m2mDoc) (state.ManyToManyMetadata, error) {
	if doc == nil {
		return state.ManyToManyMetadata{}, fmt.Errorf("operation is missing its junction metadata")
	}
	return state.ManyToManyMetadata{
		JunctionTable: doc.JunctionTable,
		FromApp:       doc.FromApp,
		FromModel:     doc.FromModel,
		FieldName:     doc.FieldName,
		ToApp:         doc.ToApp,
		ToModel:       doc.ToModel,
	}, nil
}

func encodeKey(key state.ModelKey) *keyDoc {
	return &keyDoc{App: key.App, Name: key.Name}
}

func decodeKey(doc *keyDoc) state.ModelKey {
	if doc == nil {
		return state.ModelKey{}
	}
	return state.ModelKey{App: doc.App, Name: doc.Name}
}

func encodeModel(model *state.ModelState) *modelDoc {
	doc := &modelDoc{App: model.AppLabel, Name: model.Name}
	for _, field := range model.Fields {
		doc.Fields = append(doc.Fields, *encodeField(field))
	}
	for _, index := range model.Indexes {
		doc.Indexes = append(doc.Indexes, *encodeIndex(index))
	}
	for _, constraint := range model.Constraints {
		doc.Constraints = append(doc.Constraints, *encodeConstraint(constraint))
	}
	return doc
}

func decodeModel(doc *modelDoc) (*state.ModelState, error) {
	if doc == nil {
		return nil, fmt.Errorf("operation is missing its model")
	}
	model := state.NewModel(doc.App, doc.Name)
	for _, fieldDoc := range doc.Fields {
		fd := fieldDoc
		field, err := decodeField(&fd)
		if err != nil {
			return nil, err
		}
		if err := model.AddField(field); err != nil {
			return nil, err
		}
	}
	for _, indexDoc := range doc.Indexes {
		id := indexDoc
		model.Indexes = append(model.Indexes, decodeIndex(&id))
	}
	for _, constraintDoc := range doc.Constraints {
		cd := constraintDoc
		constraint, err := decodeConstraint(&cd)
		if err != nil {
			return nil, err
		}
		model.Constraints = append(model.Constraints, constraint)
	}
	return model, nil
}

func encodeField(field *state.FieldState) *fieldDoc {
	if field == nil {
		return nil
	}
	doc := &fieldDoc{
		Name:     field.Name,
		Type:     field.Type.String(),
		Nullable: field.Nullable,
	}
	if field.Params != nil {
		for _, key := range field.Params.Keys() {
			value, _ := field.Params.Get(key)
			doc.Params = append(doc.Params, paramDoc{Key: key, Value: value.Interface()})
		}
	}
	if rel := field.Relation; rel != nil {
		doc.Relation = &relationDoc{
			Kind:     rel.Kind.String(),
			App:      rel.TargetApp,
			Model:    rel.TargetModel,
			OnDelete: rel.OnDelete.String(),
			OnUpdate: rel.OnUpdate.String(),
		}
	}
	return doc
}

func decodeField(doc *fieldDoc) (*state.FieldState, error) {
	if doc == nil {
		return nil, nil
	}
	fieldType, err := state.ParseFieldType(doc.Type)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", doc.Name, err)
	}
	field := state.NewField(doc.Name, fieldType, doc.Nullable)
	for _, param := range doc.Params {
		value, err := state.ValueFromInterface(param.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s, param %s: %w", doc.Name, param.Key, err)
		}
		field.Params.Set(param.Key, value)
	}
	if doc.Relation != nil {
		kind, ok := relationKinds[doc.Relation.Kind]
		if !ok {
			return nil, fmt.Errorf("field %s: unknown relation kind %q", doc.Name, doc.Relation.Kind)
		}
		relation := &state.Relation{Kind: kind, TargetApp: doc.Relation.App, TargetModel: doc.Relation.Model}
		if doc.Relation.OnDelete != "" {
			action, ok := fkActions[doc.Relation.OnDelete]
			if !ok {
				return nil, fmt.Errorf("field %s: unknown on_delete action %q", doc.Name, doc.Relation.OnDelete)
			}
			relation.OnDelete = action
		}
		if doc.Relation.OnUpdate != "" {
			action, ok := fkActions[doc.Relation.OnUpdate]
			if !ok {
				return nil, fmt.Errorf("field %s: unknown on_update action %q", doc.Name, doc.Relation.OnUpdate)
			}
			relation.OnUpdate = action
		}
		field.Relation = relation
	}
	return field, nil
}

func encodeIndex(index state.IndexDefinition) *indexDoc {
	return &indexDoc{Name: index.Name, Columns: index.Columns, Unique: index.Unique}
}

func decodeIndex(doc *indexDoc) state.IndexDefinition {
	if doc == nil {
		return state.IndexDefinition{}
	}
	return state.IndexDefinition{Name: doc.Name, Columns: doc.Columns, Unique: doc.Unique}
}

func encodeConstraint(constraint state.ConstraintDefinition) *constraintDoc {
	return &constraintDoc{
		Name:       constraint.Name,
		Kind:       constraint.Kind.String(),
		Columns:    constraint.Columns,
		Expression: constraint.Expression,
	}
}

func decodeConstraint(doc *constraintDoc) (state.ConstraintDefinition, error) {
	if doc == nil {
		return state.ConstraintDefinition{}, fmt.Errorf("operation is missing its constraint")
	}
	kind, ok := constraintKinds[doc.Kind]
	if !ok {
		return state.ConstraintDefinition{}, fmt.Errorf("unknown constraint kind %q", doc.Kind)
	}
	return state.ConstraintDefinition{
		Name:       doc.Name,
		Kind:       kind,
		Columns:    doc.Columns,
		Expression: doc.Expression,
	}, nil
}
