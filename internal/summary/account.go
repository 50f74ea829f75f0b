package summary

import (
	"context"
	"strings"

	"github.com/fieldscope-labs/fieldscope/internal/staging"
)

// BuildAccountSummary assembles the per-account master table for one
// product line and replace-writes it to account_summary. Only accounts
// owning an installation of the product are seeded; merge passes that
// mention any other account are discarded.
func (b *Builder) BuildAccountSummary(ctx context.Context, product string) error {
	acc := NewAccumulator(SeedOnly, "acct_id", b.logger)

	seeds, err := b.store.Execute(ctx, `
		SELECT DISTINCT account_id FROM installations
		WHERE product = ? AND account_id IS NOT NULL
		ORDER BY account_id`, product)
	if err != nil {
		return err
	}
	selfKeys := make(map[string]string)
	for _, row := range seeds {
		if id, ok := keyString(row[0]); ok {
			acc.Seed(id)
			selfKeys[id] = id
		}
	}

	// Pass 1: base account fields. Rows for non-seeded accounts drop out
	// under SeedOnly.
	base, err := b.store.ExecuteNamed(ctx, `
		SELECT acct_id, account_name, tier, arr,
		       csm, csm_manager, cse, account_manager,
		       csm_score, gs_score, csm_comments, gs_comments,
		       region, country, partner_id, reseller_id
		FROM accounts
		ORDER BY acct_id`)
	if err != nil {
		return err
	}
	acc.ApplyPass("account base", base)

	// Pass 2: nearest renewal opportunity for this product.
	opps, err := b.loadOpportunities(ctx)
	if err != nil {
		return err
	}
	oppPass := &staging.NamedRows{Columns: append([]string{"acct_id"}, nearestOppColumns...)}
	for acctID, n := range nearestOpportunities(opps, product) {
		oppPass.Rows = append(oppPass.Rows, append([]any{acctID}, nearestOppValues(n)...))
	}
	acc.ApplyPass("nearest opportunity", oppPass)

	// Pass 3: subscription recurring-revenue rollup for this product.
	revenue, err := b.subscriptionRevenue(ctx, product)
	if err != nil {
		return err
	}
	revPass := &staging.NamedRows{Columns: []string{"acct_id", "subscription_revenue"}}
	for acctID, v := range revenue {
		revPass.Rows = append(revPass.Rows, []any{acctID, v})
	}
	acc.ApplyPass("subscription revenue", revPass)

	// Pass 4: CTA closed dates per category.
	closed, err := b.ctaClosedDates(ctx)
	if err != nil {
		return err
	}
	acc.ApplyPass("cta rollup", ctaRows("acct_id", selfKeys, closed))

	// Pass 5: most recent support activity (best-effort name match).
	activity, err := b.latestActivityByName(ctx)
	if err != nil {
		return err
	}
	acc.ApplyPass("activity timeline", activity)

	// Pass 6: deployment ratios against subscribed quantity and against
	// declared licenses.
	ratioPass, err := b.deploymentRatios(ctx, product)
	if err != nil {
		return err
	}
	acc.ApplyPass("deployment ratios", ratioPass)

	// Pass 7: canonicalized product list across installations and
	// subscriptions.
	productPass, err := b.canonicalProducts(ctx)
	if err != nil {
		return err
	}
	acc.ApplyPass("product canonicalization", productPass)

	return b.write(ctx, AccountTable, acc)
}

// deploymentRatios computes two account-level ratios for the product:
// connected host count over subscribed quantity, and total host count over
// the largest licenses-purchased figure among the account's installations.
// A ratio with a zero or absent denominator stays missing.
func (b *Builder) deploymentRatios(ctx context.Context, product string) (*staging.NamedRows, error) {
	installRows, err := b.store.Execute(ctx, `
		SELECT account_id,
		       COUNT(*),
		       SUM(CASE WHEN air_gapped = 0 THEN normalized_host_count ELSE 0 END),
		       SUM(normalized_host_count),
		       MAX(licenses_purchased)
		FROM installations
		WHERE product = ? AND account_id IS NOT NULL
		GROUP BY account_id`, product)
	if err != nil {
		return nil, err
	}

	qtyRows, err := b.store.Execute(ctx,
		"SELECT acct_id, SUM(quantity) FROM subscriptions WHERE product = ? GROUP BY acct_id", product)
	if err != nil {
		return nil, err
	}
	subscribedQty := make(map[string]float64)
	for _, row := range qtyRows {
		acctID, ok := keyString(row[0])
		if !ok {
			continue
		}
		if qty, ok := valueFloat(row[1]); ok {
			subscribedQty[acctID] = qty
		}
	}

	out := &staging.NamedRows{Columns: []string{
		"acct_id", "installation_count", "deployed_vs_subscribed", "deployed_vs_licensed",
	}}
	for _, row := range installRows {
		acctID, ok := keyString(row[0])
		if !ok {
			continue
		}

		var vsSubscribed any = Missing
		connected, connectedOK := valueFloat(row[2])
		if qty := subscribedQty[acctID]; connectedOK && qty > 0 {
			vsSubscribed = round2(connected / qty)
		}

		var vsLicensed any = Missing
		hosts, hostsOK := valueFloat(row[3])
		if licenses, ok := valueFloat(row[4]); hostsOK && ok && licenses > 0 {
			vsLicensed = round2(hosts / licenses)
		}

		out.Rows = append(out.Rows, []any{acctID, row[1], vsSubscribed, vsLicensed})
	}
	return out, nil
}

// canonicalProducts gathers each account's distinct installation and
// subscription product names and rewrites them to short codes.
func (b *Builder) canonicalProducts(ctx context.Context) (*staging.NamedRows, error) {
	instRows, err := b.store.Execute(ctx,
		"SELECT account_id, product FROM installations WHERE account_id IS NOT NULL AND product IS NOT NULL")
	if err != nil {
		return nil, err
	}
	subRows, err := b.store.Execute(ctx,
		"SELECT acct_id, product FROM subscriptions WHERE product IS NOT NULL")
	if err != nil {
		return nil, err
	}

	names := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	collect := func(rows [][]any) {
		for _, row := range rows {
			acctID, ok := keyString(row[0])
			if !ok {
				continue
			}
			name, ok := valueString(row[1])
			if !ok || name == "" {
				continue
			}
			if seen[acctID] == nil {
				seen[acctID] = make(map[string]bool)
			}
			if !seen[acctID][name] {
				seen[acctID][name] = true
				names[acctID] = append(names[acctID], name)
			}
		}
	}
	collect(instRows)
	collect(subRows)

	out := &staging.NamedRows{Columns: []string{"acct_id", "products"}}
	for acctID, list := range names {
		out.Rows = append(out.Rows, []any{acctID, CanonicalizeProducts(strings.Join(list, ","))})
	}
	return out, nil
}
