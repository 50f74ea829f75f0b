package summary

import (
	"context"
	"testing"

	"github.com/fieldscope-labs/fieldscope/internal/staging"
	"github.com/fieldscope-labs/fieldscope/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedFixture stages a small but complete working set: two protection
// installations across two accounts, one response installation, plus
// opportunities, subscriptions, CTAs, and activities.
func seedFixture(t *testing.T) (*Builder, *staging.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := staging.Open("sqlite", ":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(ctx))

	require.NoError(t, store.Insert(ctx, "installations",
		[]string{"inst_id", "account_id", "product", "licenses_purchased", "normalized_host_count", "deployment", "air_gapped", "last_contact"},
		[][]any{
			{"i-1", "a-1", "Cb Protection", 100, 50, "50.0%", 0, "2024-06-01 00:00:00"},
			{"i-2", "a-1", "Cb Protection", 200, 80, "40.0%", 1, "2024-01-01 00:00:00"},
			{"i-3", "a-2", "Cb Protection", 10, 10, "100.0%", 0, "2024-06-01 00:00:00"},
			{"i-4", "a-1", "Cb Response", 50, 25, "50.0%", 0, "2024-06-01 00:00:00"},
		}, true))

	require.NoError(t, store.Insert(ctx, "accounts",
		[]string{"acct_id", "account_name", "tier", "arr", "csm"},
		[][]any{
			{"a-1", "Acme Corp", "High", 500000, "Pat"},
			{"a-2", "Globex", "Low", 90000, "Sam"},
			{"a-3", "Initech", "Medium", 10000, "Lee"}, // no installations
		}, true))

	require.NoError(t, store.Insert(ctx, "opportunities",
		[]string{"acct_id", "acv", "forecast", "close_date", "renewal_qt", "opp_type"},
		[][]any{
			{"a-1", 120000, "Commit", "2025-03-01", "2026 Q1", "Renewal - Cb Protection"},
			{"a-1", 80000, "Pipeline", "2025-06-01", "2026 Q2", "Renewal - Cb Protection;Cb Response"},
			{"a-1", 40000, "Commit", "2025-01-15", "2025 Q4", "Renewal - Cb Response"},
			{"a-3", 99000, "Commit", "2025-02-01", "2026 Q1", "Renewal - Cb Protection"},
		}, true))

	require.NoError(t, store.Insert(ctx, "subscriptions",
		[]string{"acct_id", "product", "quantity", "recurring_revenue"},
		[][]any{
			{"a-1", "Cb Protection", 120, 100000},
			{"a-1", "Cb Protection", 60, 50000},
			{"a-1", "Cb Response", 50, 70000}, // other product: excluded from rollup
			{"a-2", "Cb Protection", 0, 20000},
		}, true))

	require.NoError(t, store.Insert(ctx, "ctas",
		[]string{"acct_id", "cta_type", "status", "closed_date"},
		[][]any{
			{"a-1", "Risk", "Closed", "2024-02-01"},
			{"a-1", "Risk", "Closed", "2024-05-01"},
			{"a-1", "Risk", "Open", "2024-08-01"}, // open: ignored
			{"a-1", "Lifecycle", "Closed", "2024-03-01"},
			{"a-2", "Expansion", "Closed", "2024-04-01"},
		}, true))

	require.NoError(t, store.Insert(ctx, "activities",
		[]string{"account_name", "activity_date"},
		[][]any{
			{"Acme Corp", "2024-05-10"},
			{"Acme Corp", "2024-06-15"},
			{"Nobody Inc", "2024-07-01"},
		}, true))

	return NewBuilder(store, testutil.NewTestLogger(t)), store
}

func summaryByKey(t *testing.T, store *staging.Store, table string) (map[string]map[string]any, []string) {
	t.Helper()
	named, err := store.ExecuteNamed(context.Background(), "SELECT * FROM "+table)
	require.NoError(t, err)
	out := make(map[string]map[string]any)
	for _, row := range named.Rows {
		entity := make(map[string]any)
		for i, col := range named.Columns {
			entity[col] = row[i]
		}
		key, _ := valueString(row[0])
		out[key] = entity
	}
	return out, named.Columns
}

func TestBuildInstallationSummary(t *testing.T) {
	b, store := seedFixture(t)
	ctx := context.Background()

	require.NoError(t, b.BuildInstallationSummary(ctx, "Cb Protection"))

	rows, cols := summaryByKey(t, store, InstallationTable)
	require.Len(t, rows, 3, "only the product line's installations")
	assert.NotContains(t, rows, "i-4")

	// Base fields joined from the owning account.
	i1 := rows["i-1"]
	assert.Equal(t, "Acme Corp", i1["account_name"])
	assert.Equal(t, "50.0%", i1["deployment"])

	// Nearest opportunity: earliest protection-typed close date for a-1
	// is 2025-03-01, and two protection opportunities exist.
	assert.Equal(t, "2025-03-01", i1["renewal_close_date"])
	assert.Equal(t, "2026 Q1", i1["renewal_qt"])
	assert.EqualValues(t, "2", i1["renewal_opps"])

	// Revenue rollup counts only same-account same-product subscriptions.
	assert.EqualValues(t, "150000", i1["subscription_revenue"])

	// CTA rollup: latest Closed per category; untouched categories nil.
	assert.Equal(t, "2024-05-01", i1["cta_risk_closed"])
	assert.Equal(t, "2024-03-01", i1["cta_lifecycle_closed"])
	assert.Nil(t, i1["cta_expansion_closed"])

	// Activity via name match.
	assert.Equal(t, "2024-06-15", i1["last_activity"])

	// Uniform schema: i-3 has the same columns, mostly nil.
	i3 := rows["i-3"]
	for _, col := range cols {
		_, ok := i3[col]
		assert.True(t, ok, "column %s missing from i-3", col)
	}
	assert.Nil(t, i3["renewal_close_date"], "a-2 has no opportunities")
	assert.Nil(t, i3["cta_risk_closed"])
	assert.Equal(t, "2024-04-01", i3["cta_expansion_closed"])
}

func TestBuildAccountSummarySeeding(t *testing.T) {
	b, store := seedFixture(t)
	ctx := context.Background()

	require.NoError(t, b.BuildAccountSummary(ctx, "Cb Protection"))

	rows, _ := summaryByKey(t, store, AccountTable)
	require.Len(t, rows, 2)
	assert.Contains(t, rows, "a-1")
	assert.Contains(t, rows, "a-2")
	// a-3 has an opportunity and account row but no installation of the
	// product: every pass mentioning it is discarded.
	assert.NotContains(t, rows, "a-3")
}

func TestBuildAccountSummaryDerivedFields(t *testing.T) {
	b, store := seedFixture(t)
	ctx := context.Background()

	require.NoError(t, b.BuildAccountSummary(ctx, "Cb Protection"))
	rows, _ := summaryByKey(t, store, AccountTable)

	a1 := rows["a-1"]
	assert.Equal(t, "High", a1["tier"])
	assert.EqualValues(t, "2", a1["installation_count"])

	// Connected hosts (i-1 only, i-2 is air-gapped) over subscribed
	// quantity 180: 50/180 = 0.28.
	assert.EqualValues(t, "0.28", a1["deployed_vs_subscribed"])
	// All hosts 130 over max licenses 200 = 0.65.
	assert.EqualValues(t, "0.65", a1["deployed_vs_licensed"])

	// a-2 subscribed quantity is zero: ratio stays missing.
	a2 := rows["a-2"]
	assert.Nil(t, a2["deployed_vs_subscribed"])
	assert.EqualValues(t, "1.0", a2["deployed_vs_licensed"])

	// Canonicalized product list spans installations and subscriptions.
	assert.Equal(t, "AC, EDR", a1["products"])
	assert.Equal(t, "AC", a2["products"])
}

func TestSummaryIdempotence(t *testing.T) {
	b, store := seedFixture(t)
	ctx := context.Background()

	require.NoError(t, b.BuildInstallationSummary(ctx, "Cb Protection"))
	first, firstCols := summaryByKey(t, store, InstallationTable)

	require.NoError(t, b.BuildInstallationSummary(ctx, "Cb Protection"))
	second, secondCols := summaryByKey(t, store, InstallationTable)

	assert.Equal(t, firstCols, secondCols)
	assert.Equal(t, first, second)
}
