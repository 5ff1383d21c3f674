package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/automigrate/pkg/diff"
	"github.com/platinummonkey/automigrate/pkg/rename"
	"github.com/platinummonkey/automigrate/pkg/similarity"
	"github.com/platinummonkey/automigrate/pkg/state"
)

func order(t *testing.T, grapher *Grapher, old, new *state.ProjectState) (*OrderedChangeSet, error) {
	t.Helper()
	raw := diff.NewDiffer().Diff(old, new)
	resolved := rename.NewResolver(similarity.NewScorer(similarity.DefaultConfig())).Resolve(raw)
	return grapher.Order(resolved)
}

func fkField(name, targetApp, targetModel string) *state.FieldState {
	field := state.NewField(name, state.SimpleType(state.Integer), false)
	field.Relation = &state.Relation{Kind: state.ForeignKey, TargetApp: targetApp, TargetModel: targetModel, OnDelete: state.Cascade}
	return field
}

func idModel(app, name string) *state.ModelState {
	return state.NewModel(app, name).
		MustAddField(state.NewField("id", state.SimpleType(state.Integer), false))
}

func kinds(ordered *OrderedChangeSet) []ChangeKind {
	out := make([]ChangeKind, len(ordered.Changes))
	for i, change := range ordered.Changes {
		out[i] = change.Kind
	}
	return out
}

func TestOrder_CreateReferencedTableFirst(t *testing.T) {
	// Book carries an FK to Author; both are new. Author must be created
	// first even though "Author" < "Book" would order them that way anyway,
	// so flip the names to make the edge do the work.
	old := state.NewProjectState()
	new := state.NewProjectState().
		MustAddModel(idModel("library", "Author")).
		MustAddModel(idModel("library", "ABook").MustAddField(fkField("author", "library", "Author")))

	ordered, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	require.Len(t, ordered.Changes, 2)
	assert.Equal(t, "library.Author", ordered.Changes[0].Model.String())
	assert.Equal(t, "library.ABook", ordered.Changes[1].Model.String())
}

func TestOrder_ForeignKeyToExistingTableNeedsNoEdge(t *testing.T) {
	old := state.NewProjectState().MustAddModel(idModel("accounts", "User"))
	new := state.NewProjectState().
		MustAddModel(idModel("accounts", "User")).
		MustAddModel(idModel("blog", "Post").MustAddField(fkField("author", "accounts", "User")))

	ordered, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	require.Len(t, ordered.Changes, 1)
	assert.Equal(t, KindCreateModel, ordered.Changes[0].Kind)
	// The FK column stays inline; no cycle means no deferral.
	assert.True(t, ordered.Changes[0].NewModel.HasField("author"))
}

func TestOrder_MutualForeignKeysAreSplit(t *testing.T) {
	old := state.NewProjectState()
	new := state.NewProjectState().
		MustAddModel(idModel("accounts", "User").MustAddField(fkField("profile", "accounts", "Profile"))).
		MustAddModel(idModel("accounts", "Profile").MustAddField(fkField("user", "accounts", "User")))

	ordered, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	require.Equal(t, []ChangeKind{KindCreateModel, KindCreateModel, KindAddConstraint, KindAddConstraint}, kinds(ordered))

	// FK columns are withheld from the creates.
	for _, change := range ordered.Changes[:2] {
		assert.Len(t, change.NewModel.Fields, 1, "only the id column survives in %s", change.Model)
	}
	// Deferred constraints carry the withheld column and run after both
	// creates, ordered by model key.
	first, second := ordered.Changes[2], ordered.Changes[3]
	assert.True(t, first.Deferred)
	assert.Equal(t, "accounts.Profile", first.Model.String())
	assert.Equal(t, "fk_accounts_profile_user", first.Constraint.Name)
	require.NotNil(t, first.Field)
	assert.Equal(t, "user", first.Field.Name)
	assert.Equal(t, "accounts.User", second.Model.String())
	assert.Equal(t, "fk_accounts_user_profile", second.Constraint.Name)
}

func TestOrder_MutualForeignKeysWithoutDeferralFail(t *testing.T) {
	old := state.NewProjectState()
	new := state.NewProjectState().
		MustAddModel(idModel("accounts", "User").MustAddField(fkField("profile", "accounts", "Profile"))).
		MustAddModel(idModel("accounts", "Profile").MustAddField(fkField("user", "accounts", "User")))

	_, err := order(t, &Grapher{DeferConstraints: false}, old, new)

	var cycleErr *CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	require.GreaterOrEqual(t, len(cycleErr.Cycle), 3)
	assert.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1], "path must close on itself")
	assert.Contains(t, err.Error(), "accounts.User")
	assert.Contains(t, err.Error(), "accounts.Profile")
}

func TestOrder_SelfReferentialForeignKeyIsNotACycle(t *testing.T) {
	old := state.NewProjectState()
	new := state.NewProjectState().
		MustAddModel(idModel("org", "Employee").MustAddField(fkField("manager", "org", "Employee")))

	ordered, err := order(t, &Grapher{DeferConstraints: false}, old, new)
	require.NoError(t, err)

	require.Len(t, ordered.Changes, 1)
	assert.True(t, ordered.Changes[0].NewModel.HasField("manager"))
}

func TestOrder_DeleteReferencingTableFirst(t *testing.T) {
	// Both tables go away; the one holding the FK must be dropped first.
	old := state.NewProjectState().
		MustAddModel(idModel("accounts", "User")).
		MustAddModel(idModel("blog", "Post").MustAddField(fkField("author", "accounts", "User")))
	new := state.NewProjectState()

	ordered, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	require.Len(t, ordered.Changes, 2)
	assert.Equal(t, "blog.Post", ordered.Changes[0].Model.String())
	assert.Equal(t, "accounts.User", ordered.Changes[1].Model.String())
}

func TestOrder_RemoveReferencingFieldBeforeDelete(t *testing.T) {
	old := state.NewProjectState().
		MustAddModel(idModel("accounts", "User")).
		MustAddModel(idModel("blog", "Post").MustAddField(fkField("author", "accounts", "User")))
	new := state.NewProjectState().MustAddModel(idModel("blog", "Post"))

	ordered, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	require.Equal(t, []ChangeKind{KindRemoveField, KindDeleteModel}, kinds(ordered))
	assert.Equal(t, "author", ordered.Changes[0].Field.Name)
}

func TestOrder_CategoryRanksAdditiveBeforeDestructive(t *testing.T) {
	old := state.NewProjectState().MustAddModel(
		idModel("accounts", "User").
			MustAddField(state.NewField("legacy", state.SimpleType(state.Text), true)))
	oldModel := old.Model("accounts", "User")
	oldModel.Indexes = append(oldModel.Indexes, state.IndexDefinition{Name: "idx_legacy", Columns: []string{"legacy"}})

	new := state.NewProjectState().MustAddModel(
		idModel("accounts", "User").
			MustAddField(state.NewField("nickname", state.VarCharType(40), true)))
	newModel := new.Model("accounts", "User")
	newModel.Indexes = append(newModel.Indexes, state.IndexDefinition{Name: "idx_nickname", Columns: []string{"nickname"}})

	ordered, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	require.Equal(t, []ChangeKind{KindAddField, KindAddIndex, KindRemoveIndex, KindRemoveField}, kinds(ordered))
}

func TestOrder_DeterministicAcrossRuns(t *testing.T) {
	build := func() (*state.ProjectState, *state.ProjectState) {
		old := state.NewProjectState().MustAddModel(idModel("accounts", "User"))
		new := state.NewProjectState().
			MustAddModel(idModel("accounts", "User").
				MustAddField(state.NewField("zeta", state.SimpleType(state.Text), true)).
				MustAddField(state.NewField("alpha", state.SimpleType(state.Text), true))).
			MustAddModel(idModel("billing", "Invoice")).
			MustAddModel(idModel("accounts", "Team"))
		return old, new
	}

	old, new := build()
	first, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	for run := 0; run < 10; run++ {
		old, new := build()
		again, err := order(t, NewGrapher(), old, new)
		require.NoError(t, err)
		require.Len(t, again.Changes, len(first.Changes))
		for i := range first.Changes {
			assert.Equal(t, first.Changes[i].Kind, again.Changes[i].Kind)
			assert.Equal(t, first.Changes[i].Model, again.Changes[i].Model)
			assert.Equal(t, first.Changes[i].memberName(), again.Changes[i].memberName())
		}
	}

	// Creates sorted by key, then field adds sorted by name.
	assert.Equal(t, "accounts.Team", first.Changes[0].Model.String())
	assert.Equal(t, "billing.Invoice", first.Changes[1].Model.String())
	assert.Equal(t, "alpha", first.Changes[2].Field.Name)
	assert.Equal(t, "zeta", first.Changes[3].Field.Name)
}

func TestOrder_MutualForeignKeyDropIsSplit(t *testing.T) {
	// Both tables go away and each holds a mandatory FK to the other. The FK
	// columns are dropped first so the table drops no longer form a cycle.
	old := state.NewProjectState().
		MustAddModel(idModel("accounts", "User").MustAddField(fkField("profile", "accounts", "Profile"))).
		MustAddModel(idModel("accounts", "Profile").MustAddField(fkField("user", "accounts", "User")))
	new := state.NewProjectState()

	ordered, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	require.Equal(t, []ChangeKind{KindRemoveField, KindRemoveField, KindDeleteModel, KindDeleteModel}, kinds(ordered))

	// Column drops sort by model key: Profile's FK first, then User's.
	assert.Equal(t, "accounts.Profile", ordered.Changes[0].Model.String())
	assert.Equal(t, "user", ordered.Changes[0].Field.Name)
	assert.Equal(t, "accounts.User", ordered.Changes[1].Model.String())
	assert.Equal(t, "profile", ordered.Changes[1].Field.Name)

	// The retained drop definitions no longer carry the in-cycle columns.
	for _, change := range ordered.Changes[2:] {
		assert.Len(t, change.OldModel.Fields, 1, "only the id column survives in %s", change.Model)
	}
}

func TestOrder_MutualForeignKeyDropWithoutDeferralFails(t *testing.T) {
	old := state.NewProjectState().
		MustAddModel(idModel("accounts", "User").MustAddField(fkField("profile", "accounts", "Profile"))).
		MustAddModel(idModel("accounts", "Profile").MustAddField(fkField("user", "accounts", "User")))
	new := state.NewProjectState()

	_, err := order(t, &Grapher{DeferConstraints: false}, old, new)

	var cycleErr *CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1], "path must close on itself")
}

func TestOrder_JunctionTableAfterEndpointCreates(t *testing.T) {
	old := state.NewProjectState()
	new := state.NewProjectState().
		MustAddModel(idModel("accounts", "User")).
		MustAddModel(idModel("blog", "Tag"))
	new.AddManyToMany(state.ManyToManyMetadata{
		JunctionTable: "accounts_user_tags",
		FromApp:       "accounts", FromModel: "User", FieldName: "tags",
		ToApp: "blog", ToModel: "Tag",
	})

	ordered, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	require.Equal(t, []ChangeKind{KindCreateModel, KindCreateModel, KindAddManyToMany}, kinds(ordered))
	assert.Equal(t, "accounts_user_tags", ordered.Changes[2].ManyToMany.JunctionTable)
}

func TestOrder_JunctionTableDropsBeforeEndpoints(t *testing.T) {
	old := state.NewProjectState().
		MustAddModel(idModel("accounts", "User")).
		MustAddModel(idModel("blog", "Tag"))
	old.AddManyToMany(state.ManyToManyMetadata{
		JunctionTable: "accounts_user_tags",
		FromApp:       "accounts", FromModel: "User", FieldName: "tags",
		ToApp: "blog", ToModel: "Tag",
	})
	new := state.NewProjectState()

	ordered, err := order(t, NewGrapher(), old, new)
	require.NoError(t, err)

	require.Equal(t, []ChangeKind{KindRemoveManyToMany, KindDeleteModel, KindDeleteModel}, kinds(ordered))
}
