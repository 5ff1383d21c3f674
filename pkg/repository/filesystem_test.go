package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/automigrate/pkg/migration"
	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/state"
)

func sampleMigration() *migration.Migration {
	email := state.NewField("email", state.VarCharType(255), false)
	email.Params.Set(state.ParamUnique, state.BoolValue(true))
	email.Params.Set(state.ParamDefault, state.StringValue("nobody@example.com"))

	author := state.NewField("author", state.SimpleType(state.Integer), true)
	author.Relation = &state.Relation{Kind: state.ForeignKey, TargetApp: "accounts", TargetModel: "User", OnDelete: state.SetNull}

	user := state.NewModel("accounts", "User").
		MustAddField(state.NewField("id", state.SimpleType(state.Integer), false)).
		MustAddField(email)
	user.Indexes = append(user.Indexes, state.IndexDefinition{Name: "idx_user_email", Columns: []string{"email"}, Unique: true})
	user.Constraints = append(user.Constraints, state.ConstraintDefinition{
		Name: "ck_email_nonempty", Kind: state.CheckConstraint, Expression: "email <> ''",
	})

	return &migration.Migration{
		App:    "accounts",
		Name:   "0001_initial",
		Atomic: true,
		Operations: []operations.Operation{
			&operations.CreateTable{Model: user},
			&operations.AddField{Model: state.ModelKey{App: "accounts", Name: "User"}, Field: author},
			&operations.AlterField{
				Model:              state.ModelKey{App: "accounts", Name: "User"},
				Old:                state.NewField("email", state.VarCharType(255), false),
				New:                state.NewField("email", state.SimpleType(state.Text), false),
				RequiresRecreation: true,
			},
			&operations.RenameField{Model: state.ModelKey{App: "accounts", Name: "User"}, OldName: "email", NewName: "email_address"},
			&operations.RunSQL{SQL: "UPDATE accounts_user SET email_address = lower(email_address)"},
		},
	}
}

func TestRepository_SaveLoadRoundTrip(t *testing.T) {
	repo := NewRepository(t.TempDir(), WithLogger(quietTestLogger()))
	m := sampleMigration()

	path, err := repo.Save(m)
	require.NoError(t, err)
	assert.FileExists(t, path)

	loaded, err := repo.Load("accounts", "0001_initial")
	require.NoError(t, err)

	assert.Equal(t, m.ID(), loaded.ID())
	assert.True(t, loaded.Atomic)
	require.Len(t, loaded.Operations, len(m.Operations))

	// The replayed states of original and loaded must agree; structural
	// equality of the operations follows from that plus the descriptions.
	originalState := state.NewProjectState()
	loadedState := state.NewProjectState()
	require.NoError(t, m.Apply(originalState))
	require.NoError(t, loaded.Apply(loadedState))
	assert.True(t, originalState.Equal(loadedState))

	for i := range m.Operations {
		assert.Equal(t, m.Operations[i].Describe(), loaded.Operations[i].Describe())
	}

	// Flags survive the trip.
	alter, ok := loaded.Operations[2].(*operations.AlterField)
	require.True(t, ok)
	assert.True(t, alter.RequiresRecreation)

	added, ok := loaded.Operations[1].(*operations.AddField)
	require.True(t, ok)
	require.NotNil(t, added.Field.Relation)
	assert.Equal(t, state.SetNull, added.Field.Relation.OnDelete)
}

func TestRepository_RunGoIsNotSerializable(t *testing.T) {
	repo := NewRepository(t.TempDir(), WithLogger(quietTestLogger()))
	m := &migration.Migration{
		App:  "accounts",
		Name: "0002_backfill",
		Operations: []operations.Operation{
			&operations.RunGo{Name: "backfill", Forward: func(*state.ProjectState) error { return nil }},
		},
	}
	_, err := repo.Save(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be serialized")
}

func TestRepository_NextSequence(t *testing.T) {
	dir := t.TempDir()
	repo := NewRepository(dir, WithLogger(quietTestLogger()))

	seq, err := repo.NextSequence("accounts")
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "accounts"), 0o755))
	for _, name := range []string{"0001_initial.yaml", "0002_add_bio.yaml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts", name), []byte("app: accounts\n"), 0o644))
	}

	seq, err = repo.NextSequence("accounts")
	require.NoError(t, err)
	assert.Equal(t, 3, seq)

	name, err := repo.SequencedName("accounts", "drop_legacy")
	require.NoError(t, err)
	assert.Equal(t, "0003_drop_legacy", name)
}

func TestRepository_LoadAllAndRebuildState(t *testing.T) {
	repo := NewRepository(t.TempDir(), WithLogger(quietTestLogger()))

	first := &migration.Migration{
		App: "accounts", Name: "0001_initial", Atomic: true,
		Operations: []operations.Operation{
			&operations.CreateTable{Model: state.NewModel("accounts", "User").
				MustAddField(state.NewField("id", state.SimpleType(state.Integer), false))},
		},
	}
	second := &migration.Migration{
		App: "accounts", Name: "0002_add_bio", Atomic: true,
		Dependencies: []migration.Ref{{App: "accounts", Name: "0001_initial"}},
		Operations: []operations.Operation{
			&operations.AddField{
				Model: state.ModelKey{App: "accounts", Name: "User"},
				Field: state.NewField("bio", state.SimpleType(state.Text), true),
			},
		},
	}
	_, err := repo.Save(first)
	require.NoError(t, err)
	_, err = repo.Save(second)
	require.NoError(t, err)

	loaded, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "accounts.0001_initial", loaded[0].ID())
	assert.Equal(t, []migration.Ref{{App: "accounts", Name: "0001_initial"}}, loaded[1].Dependencies)

	rebuilt, err := RebuildState(loaded)
	require.NoError(t, err)
	model := rebuilt.Model("accounts", "User")
	require.NotNil(t, model)
	assert.True(t, model.HasField("bio"))
}

func TestRepository_LoadAllEmptyRoot(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "missing"))
	loaded, err := repo.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapshot := `models:
  - app: accounts
    name: User
    fields:
      - name: id
        type: integer
        params:
          - key: primary_key
            value: true
      - name: email
        type: varchar(255)
    indexes:
      - name: idx_user_email
        columns: [email]
        unique: true
  - app: blog
    name: Post
    fields:
      - name: id
        type: integer
      - name: author
        type: integer
        nullable: true
        relation:
          kind: foreign_key
          app: accounts
          model: User
          on_delete: CASCADE
`
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	project, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 2, project.Len())

	user := project.Model("accounts", "User")
	require.NotNil(t, user)
	assert.True(t, user.Field("id").PrimaryKey())
	assert.Equal(t, 255, user.Field("email").Type.MaxLength)

	author := project.Model("blog", "Post").Field("author")
	require.NotNil(t, author.Relation)
	assert.Equal(t, state.Cascade, author.Relation.OnDelete)
}

func TestLoadSnapshot_RejectsDanglingRelations(t *testing.T) {
	dir := t.TempDir()
	snapshot := `models:
  - app: blog
    name: Post
    fields:
      - name: author
        type: integer
        relation:
          kind: foreign_key
          app: accounts
          model: User
`
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	_, err := LoadSnapshot(path)
	require.Error(t, err)
	var dangling *state.DanglingReferenceError
	assert.ErrorAs(t, err, &dangling)
}

func TestRepository_ManyToManyRoundTrip(t *testing.T) {
	repo := NewRepository(t.TempDir(), WithLogger(quietTestLogger()))
	meta := state.ManyToManyMetadata{
		JunctionTable: "accounts_user_tags",
		FromApp:       "accounts", FromModel: "User", FieldName: "tags",
		ToApp: "blog", ToModel: "Tag",
	}
	m := &migration.Migration{
		App:  "accounts",
		Name: "0002_add_tags",
		Operations: []operations.Operation{
			&operations.AddManyToMany{Meta: meta},
			&operations.RemoveManyToMany{Meta: meta},
		},
	}

	_, err := repo.Save(m)
	require.NoError(t, err)

	loaded, err := repo.Load("accounts", "0002_add_tags")
	require.NoError(t, err)
	require.Len(t, loaded.Operations, 2)

	add, ok := loaded.Operations[0].(*operations.AddManyToMany)
	require.True(t, ok)
	assert.Equal(t, meta, add.Meta)
	remove, ok := loaded.Operations[1].(*operations.RemoveManyToMany)
	require.True(t, ok)
	assert.Equal(t, meta, remove.Meta)
}

func TestLoadSnapshot_ManyToMany(t *testing.T) {
	dir := t.TempDir()
	snapshot := `models:
  - app: accounts
    name: User
    fields:
      - name: id
        type: integer
  - app: blog
    name: Tag
    fields:
      - name: id
        type: integer
many_to_many:
  - junction_table: accounts_user_tags
    from_app: accounts
    from_model: User
    field: tags
    to_app: blog
    to_model: Tag
`
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	project, err := LoadSnapshot(path)
	require.NoError(t, err)

	entries := project.ManyToMany()
	require.Len(t, entries, 1)
	assert.Equal(t, state.ManyToManyMetadata{
		JunctionTable: "accounts_user_tags",
		FromApp:       "accounts", FromModel: "User", FieldName: "tags",
		ToApp: "blog", ToModel: "Tag",
	}, entries[0])
}

func TestLoadSnapshot_RejectsDanglingManyToMany(t *testing.T) {
	dir := t.TempDir()
	snapshot := `models:
  - app: accounts
    name: User
    fields:
      - name: id
        type: integer
many_to_many:
  - junction_table: accounts_user_tags
    from_app: accounts
    from_model: User
    field: tags
    to_app: blog
    to_model: Tag
`
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	_, err := LoadSnapshot(path)
	require.Error(t, err)
	var dangling *state.DanglingReferenceError
	assert.ErrorAs(t, err, &dangling)
}
