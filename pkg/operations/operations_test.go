package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/automigrate/pkg/state"
)

func userModel() *state.ModelState {
	return state.NewModel("accounts", "User").
		MustAddField(state.NewField("id", state.SimpleType(state.Integer), false)).
		MustAddField(state.NewField("email", state.VarCharType(255), false))
}

func projectWithUser(t *testing.T) *state.ProjectState {
	t.Helper()
	project := state.NewProjectState()
	require.NoError(t, project.AddModel(userModel()))
	return project
}

// applyThenReverse applies op to a copy of project, then the reverse, and
// asserts the round-trip restores the original state.
func applyThenReverse(t *testing.T, project *state.ProjectState, op Operation) {
	t.Helper()
	working := project.Clone()
	require.NoError(t, op.Apply(working))

	reverse, err := op.Reverse()
	require.NoError(t, err)
	require.NoError(t, reverse.Apply(working))

	assert.True(t, project.Equal(working), "reverse must restore the original state")
}

func TestCreateTable_ReversesToDelete(t *testing.T) {
	project := state.NewProjectState()
	op := &CreateTable{Model: userModel()}

	assert.Equal(t, "Create table accounts.User", op.Describe())
	assert.False(t, op.Irreversible())
	applyThenReverse(t, project, op)
}

func TestDeleteTable_ReversesToCreate(t *testing.T) {
	project := projectWithUser(t)
	op := &DeleteTable{Model: userModel()}

	assert.Equal(t, "Delete table accounts.User", op.Describe())
	applyThenReverse(t, project, op)
}

func TestRenameTable_RoundTrip(t *testing.T) {
	project := projectWithUser(t)
	op := &RenameTable{App: "accounts", OldName: "User", NewName: "Account"}

	assert.Equal(t, "Rename table accounts.User to Account", op.Describe())
	applyThenReverse(t, project, op)

	working := project.Clone()
	require.NoError(t, op.Apply(working))
	assert.True(t, working.HasModel(state.ModelKey{App: "accounts", Name: "Account"}))
	assert.False(t, working.HasModel(state.ModelKey{App: "accounts", Name: "User"}))
}

func TestRenameTable_RewritesRelations(t *testing.T) {
	project := projectWithUser(t)
	post := state.NewModel("blog", "Post").
		MustAddField(state.NewField("id", state.SimpleType(state.Integer), false))
	author := state.NewField("author", state.SimpleType(state.Integer), false)
	author.Relation = &state.Relation{Kind: state.ForeignKey, TargetApp: "accounts", TargetModel: "User", OnDelete: state.Cascade}
	post.MustAddField(author)
	require.NoError(t, project.AddModel(post))

	op := &RenameTable{App: "accounts", OldName: "User", NewName: "Account"}
	require.NoError(t, op.Apply(project))

	relation := project.Model("blog", "Post").Field("author").Relation
	require.NotNil(t, relation)
	assert.Equal(t, "Account", relation.TargetModel)
}

func TestAddField_RoundTrip(t *testing.T) {
	project := projectWithUser(t)
	op := &AddField{
		Model: state.ModelKey{App: "accounts", Name: "User"},
		Field: state.NewField("bio", state.SimpleType(state.Text), true),
	}

	assert.Equal(t, "Add field bio to accounts.User", op.Describe())
	applyThenReverse(t, project, op)
}

func TestRemoveField_RoundTrip(t *testing.T) {
	project := projectWithUser(t)
	op := &RemoveField{
		Model: state.ModelKey{App: "accounts", Name: "User"},
		Field: state.NewField("email", state.VarCharType(255), false),
	}

	applyThenReverse(t, project, op)
}

func TestRenameField_RoundTrip(t *testing.T) {
	project := projectWithUser(t)
	op := &RenameField{
		Model:   state.ModelKey{App: "accounts", Name: "User"},
		OldName: "email",
		NewName: "email_address",
	}

	assert.Equal(t, "Rename field email to email_address on accounts.User", op.Describe())
	applyThenReverse(t, project, op)
}

func TestAlterField_RoundTrip(t *testing.T) {
	project := projectWithUser(t)
	op := &AlterField{
		Model: state.ModelKey{App: "accounts", Name: "User"},
		Old:   state.NewField("email", state.VarCharType(255), false),
		New:   state.NewField("email", state.VarCharType(100), false),
	}

	assert.Equal(t, "Alter field email on accounts.User", op.Describe())
	applyThenReverse(t, project, op)

	working := project.Clone()
	require.NoError(t, op.Apply(working))
	assert.Equal(t, 100, working.Model("accounts", "User").Field("email").Type.MaxLength)
}

func TestAlterField_ReversePreservesRecreationFlag(t *testing.T) {
	op := &AlterField{
		Model:              state.ModelKey{App: "accounts", Name: "User"},
		Old:                state.NewField("email", state.VarCharType(255), false),
		New:                state.NewField("email", state.SimpleType(state.Text), false),
		RequiresRecreation: true,
	}
	reverse, err := op.Reverse()
	require.NoError(t, err)
	assert.True(t, reverse.(*AlterField).RequiresRecreation)
}

func TestIndexOperations_RoundTrip(t *testing.T) {
	project := projectWithUser(t)
	index := state.IndexDefinition{Name: "idx_user_email", Columns: []string{"email"}, Unique: true}
	key := state.ModelKey{App: "accounts", Name: "User"}

	applyThenReverse(t, project, &AddIndex{Model: key, Index: index})

	withIndex := project.Clone()
	require.NoError(t, (&AddIndex{Model: key, Index: index}).Apply(withIndex))
	applyThenReverse(t, withIndex, &RemoveIndex{Model: key, Index: index})
}

func TestConstraintOperations_RoundTrip(t *testing.T) {
	project := projectWithUser(t)
	constraint := state.ConstraintDefinition{
		Name:       "ck_email_nonempty",
		Kind:       state.CheckConstraint,
		Expression: "email <> ''",
	}
	key := state.ModelKey{App: "accounts", Name: "User"}

	applyThenReverse(t, project, &AddConstraint{Model: key, Constraint: constraint})
}

func TestAddConstraint_DeferredColumn(t *testing.T) {
	// A deferred foreign key carries its column: applying it adds both the
	// column and the constraint, and the reverse removes both.
	project := projectWithUser(t)
	column := state.NewField("manager", state.SimpleType(state.Integer), true)
	column.Relation = &state.Relation{Kind: state.ForeignKey, TargetApp: "accounts", TargetModel: "User", OnDelete: state.SetNull}
	op := &AddConstraint{
		Model: state.ModelKey{App: "accounts", Name: "User"},
		Constraint: state.ConstraintDefinition{
			Name:    "fk_accounts_user_manager",
			Kind:    state.ForeignKeyConstraint,
			Columns: []string{"manager"},
		},
		Column: column,
	}

	working := project.Clone()
	require.NoError(t, op.Apply(working))
	assert.True(t, working.Model("accounts", "User").HasField("manager"))

	applyThenReverse(t, project, op)
}

func TestRunSQL_Reversibility(t *testing.T) {
	reversible := &RunSQL{SQL: "UPDATE users SET active = true", ReverseSQL: "UPDATE users SET active = false"}
	assert.False(t, reversible.Irreversible())
	reverse, err := reversible.Reverse()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE users SET active = false", reverse.(*RunSQL).SQL)

	oneWay := &RunSQL{SQL: "DELETE FROM audit_log"}
	assert.True(t, oneWay.Irreversible())
	_, err = oneWay.Reverse()
	assert.ErrorIs(t, err, ErrIrreversible)
}

func TestRunGo_Reversibility(t *testing.T) {
	forward := func(*state.ProjectState) error { return nil }

	reversible := &RunGo{Name: "backfill_slugs", Forward: forward, Backward: forward}
	assert.False(t, reversible.Irreversible())
	reverse, err := reversible.Reverse()
	require.NoError(t, err)
	assert.Equal(t, "Run Go migration backfill_slugs_reverse", reverse.Describe())

	oneWay := &RunGo{Name: "backfill_slugs", Forward: forward}
	assert.True(t, oneWay.Irreversible())
	_, err = oneWay.Reverse()
	assert.ErrorIs(t, err, ErrIrreversible)
}

func TestApply_MissingTargetsFail(t *testing.T) {
	empty := state.NewProjectState()
	key := state.ModelKey{App: "accounts", Name: "User"}

	assert.Error(t, (&DeleteTable{Model: userModel()}).Apply(empty))
	assert.Error(t, (&RenameTable{App: "accounts", OldName: "User", NewName: "X"}).Apply(empty))
	assert.Error(t, (&AddField{Model: key, Field: state.NewField("x", state.SimpleType(state.Text), true)}).Apply(empty))
	assert.Error(t, (&RemoveField{Model: key, Field: state.NewField("x", state.SimpleType(state.Text), true)}).Apply(empty))

	project := projectWithUser(t)
	assert.Error(t, (&RemoveField{Model: key, Field: state.NewField("missing", state.SimpleType(state.Text), true)}).Apply(project))
	assert.Error(t, (&RenameField{Model: key, OldName: "missing", NewName: "x"}).Apply(project))
	assert.Error(t, (&RemoveIndex{Model: key, Index: state.IndexDefinition{Name: "missing"}}).Apply(project))
}

func TestManyToManyOperations_RoundTrip(t *testing.T) {
	project := projectWithUser(t)
	require.NoError(t, project.AddModel(state.NewModel("blog", "Tag").
		MustAddField(state.NewField("id", state.SimpleType(state.Integer), false))))

	meta := state.ManyToManyMetadata{
		JunctionTable: "accounts_user_tags",
		FromApp:       "accounts", FromModel: "User", FieldName: "tags",
		ToApp: "blog", ToModel: "Tag",
	}
	add := &AddManyToMany{Meta: meta}
	assert.Equal(t, "Create junction table accounts_user_tags for accounts.User.tags", add.Describe())
	assert.False(t, add.Irreversible())
	applyThenReverse(t, project, add)

	require.NoError(t, add.Apply(project))
	remove := &RemoveManyToMany{Meta: meta}
	assert.Equal(t, "Drop junction table accounts_user_tags for accounts.User.tags", remove.Describe())
	applyThenReverse(t, project, remove)
}

func TestManyToManyOperations_ApplyErrors(t *testing.T) {
	project := projectWithUser(t)
	meta := state.ManyToManyMetadata{
		JunctionTable: "accounts_user_friends",
		FromApp:       "accounts", FromModel: "User", FieldName: "friends",
		ToApp: "accounts", ToModel: "User",
	}

	add := &AddManyToMany{Meta: meta}
	require.NoError(t, add.Apply(project))
	assert.Error(t, add.Apply(project), "duplicate junction table must be rejected")

	remove := &RemoveManyToMany{Meta: meta}
	require.NoError(t, remove.Apply(project))
	assert.Error(t, remove.Apply(project), "dropping an absent junction table must be rejected")
}
