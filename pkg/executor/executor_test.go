package executor

import (
	"context"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/automigrate/pkg/migration"
	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/state"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func initialMigration() *migration.Migration {
	return &migration.Migration{
		App:  "blog",
		Name: "0001_initial",
		Operations: []operations.Operation{
			&operations.CreateTable{Model: state.NewModel("blog", "Post").
				MustAddField(state.NewField("id", state.SimpleType(state.Integer), false))},
		},
		Atomic: true,
	}
}

func TestApply_AtomicPostgresRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS automigrate_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("pg_advisory_lock").WithArgs(advisoryLockKey()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE "blog_post"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO automigrate_history").
		WithArgs("blog", "0001_initial", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("pg_advisory_unlock").WithArgs(advisoryLockKey()).WillReturnResult(sqlmock.NewResult(0, 0))

	exec := NewExecutor(db, NewPostgresDialect(), WithLogger(quietLogger()))
	project := state.NewProjectState()
	require.NoError(t, exec.Apply(context.Background(), []*migration.Migration{initialMigration()}, project, false))

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, project.HasModel(state.ModelKey{App: "blog", Name: "Post"}), "replay must track the applied schema")
}

func TestApply_FakeRecordsWithoutExecuting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS automigrate_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("pg_advisory_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	// No BEGIN and no CREATE TABLE: fake mode goes straight to history.
	mock.ExpectExec("INSERT INTO automigrate_history").
		WithArgs("blog", "0001_initial", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	exec := NewExecutor(db, NewPostgresDialect(), WithLogger(quietLogger()))
	project := state.NewProjectState()
	require.NoError(t, exec.Apply(context.Background(), []*migration.Migration{initialMigration()}, project, true))

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, project.HasModel(state.ModelKey{App: "blog", Name: "Post"}))
}

func TestApply_FailureRollsBackTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS automigrate_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("pg_advisory_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE "blog_post"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()
	mock.ExpectExec("pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	exec := NewExecutor(db, NewPostgresDialect(), WithLogger(quietLogger()))
	err = exec.Apply(context.Background(), []*migration.Migration{initialMigration()}, state.NewProjectState(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blog.0001_initial")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollback_ReversesAndUnrecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DROP TABLE "blog_post"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM automigrate_history").
		WithArgs("blog", "0001_initial").
		WillReturnResult(sqlmock.NewResult(1, 1))

	exec := NewExecutor(db, NewPostgresDialect(), WithLogger(quietLogger()))
	project := state.NewProjectState()
	m := initialMigration()
	require.NoError(t, m.Apply(project))

	require.NoError(t, exec.Rollback(context.Background(), m, project, false))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 0, project.Len())
}

func TestRecorder_Applied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"app", "name"}).
		AddRow("accounts", "0001_initial").
		AddRow("blog", "0001_initial")
	mock.ExpectQuery("SELECT app, name FROM automigrate_history ORDER BY id").WillReturnRows(rows)

	applied, err := NewRecorder(db, NewPostgresDialect()).Applied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []migration.Ref{
		{App: "accounts", Name: "0001_initial"},
		{App: "blog", Name: "0001_initial"},
	}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlan_DependencyOrderAndDeterminism(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	exec := NewExecutor(db, NewPostgresDialect(), WithLogger(quietLogger()))

	accounts := &migration.Migration{App: "accounts", Name: "0001_initial"}
	blog := &migration.Migration{
		App:          "blog",
		Name:         "0001_initial",
		Dependencies: []migration.Ref{{App: "accounts", Name: "0001_initial"}},
	}
	comments := &migration.Migration{
		App:          "comments",
		Name:         "0001_initial",
		Dependencies: []migration.Ref{{App: "blog", Name: "0001_initial"}},
	}

	plan, err := exec.Plan([]*migration.Migration{comments, blog, accounts}, nil)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, "accounts.0001_initial", plan[0].ID())
	assert.Equal(t, "blog.0001_initial", plan[1].ID())
	assert.Equal(t, "comments.0001_initial", plan[2].ID())

	// Already-applied dependencies are satisfied and excluded.
	plan, err = exec.Plan([]*migration.Migration{comments, blog, accounts},
		[]migration.Ref{{App: "accounts", Name: "0001_initial"}})
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "blog.0001_initial", plan[0].ID())
}

func TestPlan_MissingDependencyFails(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	exec := NewExecutor(db, NewPostgresDialect(), WithLogger(quietLogger()))

	orphan := &migration.Migration{
		App:          "blog",
		Name:         "0002_add_tags",
		Dependencies: []migration.Ref{{App: "blog", Name: "0001_initial"}},
	}
	_, err = exec.Plan([]*migration.Migration{orphan}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blog.0001_initial")
}
