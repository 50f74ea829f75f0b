// Package extract pulls the in-scope working set out of the remote
// warehouse and stages it locally. The query sequence is fixed: the
// installation seed defines scope, the account translation derives the
// account set, and every later query is bounded by one of those two id
// sets. A failed warehouse query aborts the run.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/fieldscope-labs/fieldscope/internal/staging"
	"github.com/fieldscope-labs/fieldscope/internal/warehouse"
)

// idChunk bounds how many ids go into one IN (...) list. Warehouse
// coordinators reject overlong parameter lists well before this.
// Variable so tests can exercise chunk boundaries.
var idChunk = 1000

// Account tiers and installation types that put an installation in scope.
var (
	inScopeTiers = []string{"Low", "Medium", "High", "Holding"}
	inScopeTypes = []string{"Perpetual", "Subscription"}
)

// Stage extracts the working set for one run.
type Stage struct {
	source   warehouse.Adapter
	store    *staging.Store
	products []string
	logger   *slog.Logger

	// account id -> installation ids, built by the translation query.
	accountInstalls map[string][]string
}

// NewStage creates an extraction stage reading from source and writing to
// store. A nil logger uses a discard logger.
func NewStage(source warehouse.Adapter, store *staging.Store, products []string, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stage{source: source, store: store, products: products, logger: logger}
}

// Run executes the full extraction sequence.
func (s *Stage) Run(ctx context.Context) error {
	instIDs, err := s.seedInstallations(ctx)
	if err != nil {
		return err
	}
	if len(instIDs) == 0 {
		s.logger.Warn("no installations in scope, skipping remaining extraction")
		return nil
	}

	acctIDs, err := s.accountTranslation(ctx, instIDs)
	if err != nil {
		return err
	}

	if err := s.installationDetail(ctx, instIDs); err != nil {
		return err
	}
	if err := s.accounts(ctx, acctIDs); err != nil {
		return err
	}
	if err := s.opportunities(ctx, acctIDs); err != nil {
		return err
	}
	if err := s.subscriptions(ctx, acctIDs); err != nil {
		return err
	}
	if err := s.ctas(ctx, acctIDs); err != nil {
		return err
	}
	return s.activities(ctx, acctIDs)
}

// seedInstallations selects the installation ids in scope for this run
// and replace-inserts them into the staging installations table.
func (s *Stage) seedInstallations(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT i.installation_18_digit_id__c
		FROM installation__c i
		LEFT JOIN account a ON i.account__c = a.id
		WHERE a.cs_tier__c IN (%s)
		  AND i.product_group__c IN (%s)
		  AND i.installation_type__c IN (%s)`,
		placeholders(len(inScopeTiers)),
		placeholders(len(s.products)),
		placeholders(len(inScopeTypes)))

	args := stringArgs(inScopeTiers)
	args = append(args, stringArgs(s.products)...)
	args = append(args, stringArgs(inScopeTypes)...)

	rows, err := s.source.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to seed installations: %w", err)
	}

	var ids []string
	seedRows := make([][]any, 0, len(rows))
	for _, row := range rows {
		id, ok := asString(row[0])
		if !ok || id == "" {
			continue
		}
		ids = append(ids, id)
		seedRows = append(seedRows, []any{id})
	}

	if err := s.store.Insert(ctx, "installations", []string{"inst_id"}, seedRows, true); err != nil {
		return nil, fmt.Errorf("failed to stage installation seed: %w", err)
	}

	s.logger.Info("installations seeded", "count", len(ids))
	return ids, nil
}

// accountTranslation maps each in-scope installation to its owning
// account and returns the distinct account ids, sorted.
func (s *Stage) accountTranslation(ctx context.Context, instIDs []string) ([]string, error) {
	rows, err := s.queryByIDs(ctx, `
		SELECT i.account__c, i.installation_18_digit_id__c
		FROM installation__c i
		WHERE i.installation_18_digit_id__c IN (%s)`, instIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to translate accounts: %w", err)
	}

	s.accountInstalls = make(map[string][]string)
	for _, row := range rows {
		acct, ok := asString(row[0])
		if !ok || acct == "" {
			continue
		}
		inst, _ := asString(row[1])
		s.accountInstalls[acct] = append(s.accountInstalls[acct], inst)
	}

	acctIDs := make([]string, 0, len(s.accountInstalls))
	for acct := range s.accountInstalls {
		acctIDs = append(acctIDs, acct)
	}
	sort.Strings(acctIDs)

	s.logger.Info("account translation built", "accounts", len(acctIDs))
	return acctIDs, nil
}

// installationDetail backfills the seeded installation rows with their
// attribute columns via targeted updates.
func (s *Stage) installationDetail(ctx context.Context, instIDs []string) error {
	rows, err := s.queryByIDs(ctx, `
		SELECT i.installation_18_digit_id__c,
		       i.licenses_purchased__c,
		       i.normalized_host_count__c,
		       i.last_contact__c,
		       i.account__c,
		       i.product_group__c,
		       i.enforcement_low__c,
		       i.enforcement_medium__c,
		       i.enforcement_high__c,
		       i.monitoring_partner__c,
		       i.installation_alias__c
		FROM installation__c i
		WHERE i.installation_18_digit_id__c IN (%s)`, instIDs)
	if err != nil {
		return fmt.Errorf("failed to extract installation detail: %w", err)
	}

	fields := []string{
		"inst_id", "licenses_purchased", "normalized_host_count", "last_contact",
		"account_id", "product", "enforce_low", "enforce_medium", "enforce_high",
		"monitoring_partner", "alias",
	}
	if err := s.store.Update(ctx, "installations", fields, rows); err != nil {
		return fmt.Errorf("failed to stage installation detail: %w", err)
	}

	s.logger.Info("installation detail staged", "rows", len(rows))
	return nil
}

// accounts extracts account master data including the four named owner
// roles resolved through user-table self joins.
func (s *Stage) accounts(ctx context.Context, acctIDs []string) error {
	rows, err := s.queryByIDs(ctx, `
		SELECT a.account_id_18_digits__c,
		       a.cs_tier__c,
		       a.arr__c,
		       a.name,
		       a.gs_csm_meter_score__c,
		       a.csm_meter_comments__c,
		       a.gs_overall_score__c,
		       a.gs_overall_comments__c,
		       csm.name,
		       csm_mgr.name,
		       cse.name,
		       am.name,
		       a.region__c,
		       a.country__c,
		       a.partner_account__c,
		       a.reseller_account__c
		FROM account a
		LEFT JOIN user_sbu csm ON a.assigned_cp__c = csm.id
		LEFT JOIN user_sbu csm_mgr ON csm.managerid = csm_mgr.id
		LEFT JOIN user_sbu cse ON a.customer_success_engineer__c = cse.id
		LEFT JOIN user_sbu am ON a.account_manager__c = am.id
		WHERE a.account_id_18_digits__c IN (%s)`, acctIDs)
	if err != nil {
		return fmt.Errorf("failed to extract accounts: %w", err)
	}

	fields := []string{
		"acct_id", "tier", "arr", "account_name",
		"csm_score", "csm_comments", "gs_score", "gs_comments",
		"csm", "csm_manager", "cse", "account_manager",
		"region", "country", "partner_id", "reseller_id",
	}
	if err := s.store.Insert(ctx, "accounts", fields, rows, true); err != nil {
		return fmt.Errorf("failed to stage accounts: %w", err)
	}

	s.logger.Info("accounts staged", "rows", len(rows))
	return nil
}

// opportunities extracts open renewal opportunities: future close dates
// whose type tags them as a renewal.
func (s *Stage) opportunities(ctx context.Context, acctIDs []string) error {
	rows, err := s.queryByIDs(ctx, `
		SELECT o.accountid,
		       o.acv_amount__c,
		       o.cb_forecast__c,
		       o.closedate,
		       o.type
		FROM opportunity o
		WHERE o.accountid IN (%s)
		  AND o.closedate > CURRENT_DATE
		  AND o.type LIKE '%%Renewal%%'`, acctIDs)
	if err != nil {
		return fmt.Errorf("failed to extract opportunities: %w", err)
	}

	fields := []string{"acct_id", "acv", "forecast", "close_date", "opp_type"}
	if err := s.store.Insert(ctx, "opportunities", fields, rows, true); err != nil {
		return fmt.Errorf("failed to stage opportunities: %w", err)
	}

	s.logger.Info("opportunities staged", "rows", len(rows))
	return nil
}

func (s *Stage) subscriptions(ctx context.Context, acctIDs []string) error {
	rows, err := s.queryByIDs(ctx, `
		SELECT b.account__c,
		       b.product_group__c,
		       b.quantity__c,
		       b.term__c,
		       b.contract_value__c,
		       b.recurring_revenue__c,
		       b.end_date__c
		FROM subscription__c b
		WHERE b.account__c IN (%s)`, acctIDs)
	if err != nil {
		return fmt.Errorf("failed to extract subscriptions: %w", err)
	}

	fields := []string{"acct_id", "product", "quantity", "term", "contract_value", "recurring_revenue", "end_date"}
	if err := s.store.Insert(ctx, "subscriptions", fields, rows, true); err != nil {
		return fmt.Errorf("failed to stage subscriptions: %w", err)
	}

	s.logger.Info("subscriptions staged", "rows", len(rows))
	return nil
}

func (s *Stage) ctas(ctx context.Context, acctIDs []string) error {
	rows, err := s.queryByIDs(ctx, `
		SELECT c.account__c,
		       c.type__c,
		       c.status__c,
		       c.closed_date__c
		FROM cta__c c
		WHERE c.account__c IN (%s)`, acctIDs)
	if err != nil {
		return fmt.Errorf("failed to extract ctas: %w", err)
	}

	fields := []string{"acct_id", "cta_type", "status", "closed_date"}
	if err := s.store.Insert(ctx, "ctas", fields, rows, true); err != nil {
		return fmt.Errorf("failed to stage ctas: %w", err)
	}

	s.logger.Info("ctas staged", "rows", len(rows))
	return nil
}

// activities extracts the support activity timeline. Activity records
// carry only the account display name, so the staging table keeps the
// name and downstream joins are by name.
func (s *Stage) activities(ctx context.Context, acctIDs []string) error {
	rows, err := s.queryByIDs(ctx, `
		SELECT a.name,
		       t.activity_date__c
		FROM activity_timeline t
		JOIN account a ON t.account_name__c = a.name
		WHERE a.account_id_18_digits__c IN (%s)`, acctIDs)
	if err != nil {
		return fmt.Errorf("failed to extract activities: %w", err)
	}

	fields := []string{"account_name", "activity_date"}
	if err := s.store.Insert(ctx, "activities", fields, rows, true); err != nil {
		return fmt.Errorf("failed to stage activities: %w", err)
	}

	s.logger.Info("activities staged", "rows", len(rows))
	return nil
}

// queryByIDs runs template once per id chunk, substituting a placeholder
// list for the single %s, and concatenates the results.
func (s *Stage) queryByIDs(ctx context.Context, template string, ids []string) ([][]any, error) {
	var out [][]any
	for start := 0; start < len(ids); start += idChunk {
		end := min(start+idChunk, len(ids))
		chunk := ids[start:end]

		query := fmt.Sprintf(template, placeholders(len(chunk)))
		rows, err := s.source.Query(ctx, query, stringArgs(chunk)...)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}
