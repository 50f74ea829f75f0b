package summary

import (
	"context"

	"github.com/fieldscope-labs/fieldscope/internal/staging"
)

// BuildInstallationSummary assembles the per-installation master table for
// one product line and replace-writes it to installation_summary. Every
// installation of the product is pre-seeded, so later passes may admit no
// new entries but always leave a uniform field set behind.
func (b *Builder) BuildInstallationSummary(ctx context.Context, product string) error {
	acc := NewAccumulator(AdmitNew, "inst_id", b.logger)

	// Seed every installation of the product, in stable id order.
	seeds, err := b.store.Execute(ctx,
		"SELECT inst_id FROM installations WHERE product = ? ORDER BY inst_id", product)
	if err != nil {
		return err
	}
	instAccounts := make(map[string]string)
	for _, row := range seeds {
		if id, ok := keyString(row[0]); ok {
			acc.Seed(id)
		}
	}

	// Pass 1: base installation fields plus the owning account's fields.
	base, err := b.store.ExecuteNamed(ctx, `
		SELECT i.inst_id, i.product, i.alias, i.account_id,
		       i.licenses_purchased, i.normalized_host_count, i.deployment,
		       i.enforce_low_pct, i.enforce_medium_pct, i.enforce_high_pct,
		       i.air_gapped, i.last_contact, i.monitoring_partner,
		       a.account_name, a.tier, a.arr,
		       a.csm, a.csm_manager, a.cse, a.account_manager,
		       a.csm_score, a.gs_score, a.csm_comments, a.gs_comments,
		       a.region, a.country
		FROM installations i
		LEFT JOIN accounts a ON i.account_id = a.acct_id
		WHERE i.product = ?
		ORDER BY i.inst_id`, product)
	if err != nil {
		return err
	}
	acc.ApplyPass("installation base", base)

	// Remember each installation's account for the account-keyed passes.
	acctIdx := indexOf(base.Columns, "account_id")
	for _, row := range base.Rows {
		inst, ok := keyString(row[0])
		if !ok {
			continue
		}
		if acct, ok := keyString(row[acctIdx]); ok {
			instAccounts[inst] = acct
		}
	}

	// Pass 2: the account's nearest renewal opportunity for this product.
	opps, err := b.loadOpportunities(ctx)
	if err != nil {
		return err
	}
	nearest := nearestOpportunities(opps, product)
	oppPass := &staging.NamedRows{Columns: append([]string{"inst_id"}, nearestOppColumns...)}
	for inst, acct := range instAccounts {
		if n, ok := nearest[acct]; ok {
			oppPass.Rows = append(oppPass.Rows, append([]any{inst}, nearestOppValues(n)...))
		}
	}
	acc.ApplyPass("nearest opportunity", oppPass)

	// Pass 3: subscription recurring-revenue rollup for the same account
	// and product line.
	revenue, err := b.subscriptionRevenue(ctx, product)
	if err != nil {
		return err
	}
	revPass := &staging.NamedRows{Columns: []string{"inst_id", "subscription_revenue"}}
	for inst, acct := range instAccounts {
		if v, ok := revenue[acct]; ok {
			revPass.Rows = append(revPass.Rows, []any{inst, v})
		}
	}
	acc.ApplyPass("subscription revenue", revPass)

	// Pass 4: CTA closed dates per category.
	closed, err := b.ctaClosedDates(ctx)
	if err != nil {
		return err
	}
	acc.ApplyPass("cta rollup", ctaRows("inst_id", instAccounts, closed))

	// Pass 5: most recent support activity, passed through from the
	// account's best-effort name match.
	activity, err := b.latestActivityByName(ctx)
	if err != nil {
		return err
	}
	actByAcct := make(map[string]any)
	for _, row := range activity.Rows {
		if acct, ok := keyString(row[0]); ok {
			actByAcct[acct] = row[1]
		}
	}
	actPass := &staging.NamedRows{Columns: []string{"inst_id", "last_activity"}}
	for inst, acct := range instAccounts {
		if v, ok := actByAcct[acct]; ok {
			actPass.Rows = append(actPass.Rows, []any{inst, v})
		}
	}
	acc.ApplyPass("activity timeline", actPass)

	return b.write(ctx, InstallationTable, acc)
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
