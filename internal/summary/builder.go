package summary

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/fieldscope-labs/fieldscope/internal/staging"
)

// Summary table names.
const (
	InstallationTable = "installation_summary"
	AccountTable      = "account_summary"
)

// productCodes maps a product line to the fragments its opportunities are
// recognized by. Opportunity type tags are free text and may list several
// products separated by semicolons; matching is case-insensitive
// containment against these fragments.
var productCodes = map[string][]string{
	"Cb Protection":     {"cb protection"},
	"Cb Response":       {"cb response"},
	"Cb Response Cloud": {"cb response cloud"},
}

// ctaCategories are the three fixed CTA types rolled up per entity. Each
// yields one closed-date column in the summaries.
var ctaCategories = []struct {
	name  string
	field string
}{
	{"Risk", "cta_risk_closed"},
	{"Expansion", "cta_expansion_closed"},
	{"Lifecycle", "cta_lifecycle_closed"},
}

// Builder assembles the summary tables for one product line at a time.
type Builder struct {
	store  *staging.Store
	logger *slog.Logger
}

// NewBuilder creates a summary builder. A nil logger uses a discard logger.
func NewBuilder(store *staging.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{store: store, logger: logger}
}

// write replaces table with the accumulator's flattened contents. The
// table is recreated so its column set always matches the current run.
func (b *Builder) write(ctx context.Context, table string, acc *Accumulator) error {
	fields := acc.Fields()

	if err := b.store.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return err
	}
	cols := make([]string, len(fields))
	cols[0] = fields[0] + " TEXT PRIMARY KEY"
	for i := 1; i < len(fields); i++ {
		cols[i] = fields[i] + " TEXT"
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))
	if err := b.store.Exec(ctx, createSQL); err != nil {
		return err
	}

	if err := b.store.Insert(ctx, table, fields, acc.Flatten(), false); err != nil {
		return err
	}

	b.logger.Info("summary written", "table", table, "rows", acc.Len(), "columns", len(fields))
	return nil
}

// opportunity is one staged renewal opportunity.
type opportunity struct {
	amount    any
	forecast  any
	closeDate string
	quarter   any
	oppType   string
}

// loadOpportunities reads all staged opportunities grouped by account.
func (b *Builder) loadOpportunities(ctx context.Context) (map[string][]opportunity, error) {
	rows, err := b.store.Execute(ctx,
		"SELECT acct_id, acv, forecast, close_date, renewal_qt, opp_type FROM opportunities")
	if err != nil {
		return nil, err
	}

	byAccount := make(map[string][]opportunity)
	for _, row := range rows {
		acct, ok := keyString(row[0])
		if !ok {
			continue
		}
		closeDate, _ := valueString(row[3])
		oppType, _ := valueString(row[5])
		byAccount[acct] = append(byAccount[acct], opportunity{
			amount:    row[1],
			forecast:  row[2],
			closeDate: closeDate,
			quarter:   row[4],
			oppType:   oppType,
		})
	}
	return byAccount, nil
}

// nearestOpportunities reduces each account's opportunities to the single
// earliest-close-date one whose type mentions the product line, plus the
// matching count. Accounts with no matching opportunity are absent.
func nearestOpportunities(byAccount map[string][]opportunity, product string) map[string]nearestOpp {
	codes := productCodes[product]
	out := make(map[string]nearestOpp)
	for acct, opps := range byAccount {
		var nearest *opportunity
		count := 0
		for i := range opps {
			opp := opps[i]
			if !typeMatches(opp.oppType, codes) {
				continue
			}
			count++
			// ISO dates compare lexically; ties keep the first row seen.
			if nearest == nil || opp.closeDate < nearest.closeDate {
				nearest = &opps[i]
			}
		}
		if nearest != nil {
			out[acct] = nearestOpp{opp: *nearest, count: count}
		}
	}
	return out
}

type nearestOpp struct {
	opp   opportunity
	count int
}

func typeMatches(oppType string, codes []string) bool {
	lowered := strings.ToLower(oppType)
	for _, code := range codes {
		if strings.Contains(lowered, code) {
			return true
		}
	}
	return false
}

// nearestOppColumns is the shared field layout of the opportunity pass.
var nearestOppColumns = []string{"renewal_close_date", "renewal_qt", "renewal_forecast", "renewal_amount", "renewal_opps"}

func nearestOppValues(n nearestOpp) []any {
	return []any{n.opp.closeDate, n.opp.quarter, n.opp.forecast, n.opp.amount, n.count}
}

// subscriptionRevenue sums recurring revenue per account for one product
// line. Only the summarized product's subscriptions count.
func (b *Builder) subscriptionRevenue(ctx context.Context, product string) (map[string]any, error) {
	rows, err := b.store.Execute(ctx,
		"SELECT acct_id, SUM(recurring_revenue) FROM subscriptions WHERE product = ? GROUP BY acct_id",
		product)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for _, row := range rows {
		if acct, ok := keyString(row[0]); ok {
			out[acct] = row[1]
		}
	}
	return out, nil
}

// ctaClosedDates returns, per account and CTA category, the most recent
// closed date among CTAs with status "Closed".
func (b *Builder) ctaClosedDates(ctx context.Context) (map[string]map[string]any, error) {
	rows, err := b.store.Execute(ctx,
		"SELECT acct_id, cta_type, MAX(closed_date) FROM ctas WHERE status = 'Closed' GROUP BY acct_id, cta_type")
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any)
	for _, row := range rows {
		acct, ok := keyString(row[0])
		if !ok {
			continue
		}
		ctaType, _ := valueString(row[1])
		if out[acct] == nil {
			out[acct] = make(map[string]any)
		}
		out[acct][ctaType] = row[2]
	}
	return out, nil
}

// latestActivityByName returns the most recent activity date per account.
// Activities are keyed by account display name, not id, so this is a
// best-effort name match; it can be swapped for an id join if the
// upstream data ever improves.
func (b *Builder) latestActivityByName(ctx context.Context) (*staging.NamedRows, error) {
	return b.store.ExecuteNamed(ctx, `
		SELECT a.acct_id, MAX(v.activity_date) AS last_activity
		FROM accounts a
		JOIN activities v ON v.account_name = a.account_name
		GROUP BY a.acct_id`)
}

// ctaRows pivots the per-category closed dates into pass rows keyed by the
// given entity keys (installations pass account-level values through).
func ctaRows(keyColumn string, keys map[string]string, closed map[string]map[string]any) *staging.NamedRows {
	columns := []string{keyColumn}
	for _, cat := range ctaCategories {
		columns = append(columns, cat.field)
	}

	out := &staging.NamedRows{Columns: columns}
	for key, acct := range keys {
		dates, ok := closed[acct]
		if !ok {
			continue
		}
		row := []any{key}
		for _, cat := range ctaCategories {
			if v, present := dates[cat.name]; present {
				row = append(row, v)
			} else {
				row = append(row, Missing)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// keyString coerces a scanned key column to a string. Nil and empty keys
// are rejected.
func keyString(v any) (string, bool) {
	s, ok := valueString(v)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func valueString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", t), true
	}
}

func valueFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	default:
		return 0, false
	}
}
