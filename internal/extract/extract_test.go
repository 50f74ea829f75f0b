package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fieldscope-labs/fieldscope/internal/staging"
	"github.com/fieldscope-labs/fieldscope/internal/testutil"
	"github.com/fieldscope-labs/fieldscope/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProducts = []string{"Cb Protection", "Cb Response", "Cb Response Cloud"}

func newMockStage(t *testing.T) (*Stage, sqlmock.Sqlmock, *staging.Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := testutil.NewTestLogger(t)
	store, err := staging.Open("sqlite", ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(context.Background()))

	return NewStage(warehouse.FromDB(db, "trino", logger), store, testProducts, logger), mock, store
}

func TestRunStagesFullWorkingSet(t *testing.T) {
	stage, mock, store := newMockStage(t)
	ctx := context.Background()

	mock.ExpectQuery("installation_type__c IN").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("i-1").AddRow("i-2"))

	mock.ExpectQuery("SELECT i.account__c").
		WithArgs("i-1", "i-2").
		WillReturnRows(sqlmock.NewRows([]string{"acct", "inst"}).
			AddRow("a-1", "i-1").
			AddRow("a-1", "i-2"))

	mock.ExpectQuery("licenses_purchased__c").
		WithArgs("i-1", "i-2").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "lic", "hosts", "contact", "acct", "product",
			"low", "med", "high", "partner", "alias",
		}).
			AddRow("i-1", 100, 40, "2024-06-01 00:00:00", "a-1", "Cb Protection", 10, 20, 10, nil, "prod-east").
			AddRow("i-2", 50, 0, "2024-06-02 00:00:00", "a-1", "Cb Response", nil, nil, nil, "MSSP One", nil))

	mock.ExpectQuery("account_id_18_digits__c IN").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tier", "arr", "name", "csm_score", "csm_comments",
			"gs_score", "gs_comments", "csm", "csm_mgr", "cse", "am",
			"region", "country", "partner", "reseller",
		}).AddRow("a-1", "High", 250000, "Acme Corp", 4, "steady", 3, "watch", "Pat", "Drew", "Sam", "Kim", "AMER", "US", nil, nil))

	mock.ExpectQuery("FROM opportunity").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"acct", "acv", "forecast", "close", "type"}).
			AddRow("a-1", 120000, "Commit", "2026-11-01", "Renewal - Cb Protection"))

	mock.ExpectQuery("FROM subscription__c").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"acct", "product", "qty", "term", "cv", "rr", "end"}).
			AddRow("a-1", "Cb Protection", 120, 36, 300000, 100000, "2027-01-01"))

	mock.ExpectQuery("FROM cta__c").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"acct", "type", "status", "closed"}).
			AddRow("a-1", "Risk", "Closed", "2024-03-01"))

	mock.ExpectQuery("FROM activity_timeline").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "date"}).
			AddRow("Acme Corp", "2024-05-10"))

	require.NoError(t, stage.Run(ctx))
	require.NoError(t, mock.ExpectationsWereMet())

	rows, err := store.Execute(ctx,
		"SELECT inst_id, licenses_purchased, product, alias FROM installations ORDER BY inst_id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, "i-1", rows[0][0])
	assert.EqualValues(t, 100, rows[0][1])
	assert.EqualValues(t, "Cb Protection", rows[0][2])
	assert.EqualValues(t, "prod-east", rows[0][3])
	assert.Nil(t, rows[1][3])

	rows, err = store.Execute(ctx, "SELECT acct_id, account_name, csm_manager FROM accounts")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, "Acme Corp", rows[0][1])
	assert.EqualValues(t, "Drew", rows[0][2])

	rows, err = store.Execute(ctx, "SELECT acct_id, opp_type, renewal_qt FROM opportunities")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, "Renewal - Cb Protection", rows[0][1])
	assert.Nil(t, rows[0][2], "renewal quarter is derived later")

	rows, err = store.Execute(ctx, "SELECT account_name, activity_date FROM activities")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, "Acme Corp", rows[0][0])
}

func TestRunEmptyScopeStopsEarly(t *testing.T) {
	stage, mock, store := newMockStage(t)
	ctx := context.Background()

	mock.ExpectQuery("installation_type__c IN").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	require.NoError(t, stage.Run(ctx))
	require.NoError(t, mock.ExpectationsWereMet())

	rows, err := store.Execute(ctx, "SELECT COUNT(*) FROM installations")
	require.NoError(t, err)
	assert.EqualValues(t, 0, rows[0][0])
}

func TestRunAbortsOnQueryFailure(t *testing.T) {
	stage, mock, _ := newMockStage(t)

	mock.ExpectQuery("installation_type__c IN").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("i-1"))
	mock.ExpectQuery("SELECT i.account__c").
		WillReturnError(fmt.Errorf("coordinator unavailable"))

	err := stage.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to translate accounts")
}

func TestQueryByIDsChunks(t *testing.T) {
	stage, mock, _ := newMockStage(t)

	orig := idChunk
	idChunk = 2
	t.Cleanup(func() { idChunk = orig })

	mock.ExpectQuery("SELECT i.account__c").
		WithArgs("i-1", "i-2").
		WillReturnRows(sqlmock.NewRows([]string{"acct", "inst"}).AddRow("a-1", "i-1"))
	mock.ExpectQuery("SELECT i.account__c").
		WithArgs("i-3").
		WillReturnRows(sqlmock.NewRows([]string{"acct", "inst"}).AddRow("a-2", "i-3"))

	rows, err := stage.queryByIDs(context.Background(), `
		SELECT i.account__c, i.installation_18_digit_id__c
		FROM installation__c i
		WHERE i.installation_18_digit_id__c IN (%s)`, []string{"i-1", "i-2", "i-3"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Len(t, rows, 2)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
