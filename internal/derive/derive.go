// Package derive computes scalar per-installation metrics from staged
// columns and writes them back as targeted updates: deployment and
// enforcement-level percentages, renewal-quarter labels, and the air-gap
// flag.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fieldscope-labs/fieldscope/internal/staging"
)

// airGapThreshold is how far behind the product line's newest check-in an
// installation may lag before it is presumed disconnected.
const airGapThreshold = 5 * 24 * time.Hour

// Stage runs the derivation pass over the staging store.
type Stage struct {
	store  *staging.Store
	logger *slog.Logger
}

// New creates a derivation stage. A nil logger uses a discard logger.
func New(store *staging.Store, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stage{store: store, logger: logger}
}

// Run executes every derivation in order.
func (d *Stage) Run(ctx context.Context) error {
	if err := d.DeploymentPercentages(ctx); err != nil {
		return err
	}
	if err := d.EnforcementPercentages(ctx); err != nil {
		return err
	}
	if err := d.RenewalQuarters(ctx); err != nil {
		return err
	}
	return d.AirGapFlags(ctx)
}

// DeploymentPercentages writes the host-count-to-licenses ratio per
// installation. A zero host count is always "0%"; installations with a
// missing host count or a missing/zero license count are skipped so prior
// values stay in place.
func (d *Stage) DeploymentPercentages(ctx context.Context) error {
	rows, err := d.store.Execute(ctx,
		"SELECT inst_id, normalized_host_count, licenses_purchased FROM installations")
	if err != nil {
		return err
	}

	var updates [][]any
	for _, row := range rows {
		pct, ok := ratioPercent(row[1], row[2])
		if !ok {
			continue
		}
		updates = append(updates, []any{row[0], pct})
	}

	d.logger.Debug("derived deployment percentages", "installations", len(updates))
	return d.store.Update(ctx, "installations", []string{"inst_id", "deployment"}, updates)
}

// EnforcementPercentages applies the deployment-percentage rule
// independently to each enforcement-level counter against the same
// licenses-purchased denominator. Each level updates separately so a
// skipped level never nulls out a computed one.
func (d *Stage) EnforcementPercentages(ctx context.Context) error {
	levels := []struct {
		counter string
		target  string
	}{
		{"enforce_low", "enforce_low_pct"},
		{"enforce_medium", "enforce_medium_pct"},
		{"enforce_high", "enforce_high_pct"},
	}

	for _, level := range levels {
		rows, err := d.store.Execute(ctx, fmt.Sprintf(
			"SELECT inst_id, %s, licenses_purchased FROM installations", level.counter))
		if err != nil {
			return err
		}

		var updates [][]any
		for _, row := range rows {
			pct, ok := ratioPercent(row[1], row[2])
			if !ok {
				continue
			}
			updates = append(updates, []any{row[0], pct})
		}
		if err := d.store.Update(ctx, "installations", []string{"inst_id", level.target}, updates); err != nil {
			return err
		}
	}
	return nil
}

// RenewalQuarters stamps each opportunity with its fiscal-quarter label.
func (d *Stage) RenewalQuarters(ctx context.Context) error {
	rows, err := d.store.Execute(ctx, "SELECT rowid, close_date FROM opportunities")
	if err != nil {
		return err
	}

	updates := make([][]any, 0, len(rows))
	for _, row := range rows {
		closeDate, _ := asString(row[1])
		updates = append(updates, []any{row[0], RenewalQuarter(closeDate)})
	}

	return d.store.Update(ctx, "opportunities", []string{"rowid", "renewal_qt"}, updates)
}

// AirGapFlags marks installations that have not reported in relative to
// their product line's peers. The baseline is the newest last-contact
// timestamp per product line, not wall-clock now. Installations with no
// parseable last contact are flagged.
func (d *Stage) AirGapFlags(ctx context.Context) error {
	rows, err := d.store.Execute(ctx, "SELECT inst_id, product, last_contact FROM installations")
	if err != nil {
		return err
	}

	newest := make(map[string]time.Time)
	for _, row := range rows {
		product, _ := asString(row[1])
		contact, ok := parseTimestamp(row[2])
		if !ok {
			continue
		}
		if latest, seen := newest[product]; !seen || contact.After(latest) {
			newest[product] = contact
		}
	}

	updates := make([][]any, 0, len(rows))
	for _, row := range rows {
		product, _ := asString(row[1])
		flag := 1
		if contact, ok := parseTimestamp(row[2]); ok {
			baseline, seen := newest[product]
			if seen && baseline.Sub(contact) <= airGapThreshold {
				flag = 0
			}
		}
		updates = append(updates, []any{row[0], flag})
	}

	return d.store.Update(ctx, "installations", []string{"inst_id", "air_gapped"}, updates)
}

// ratioPercent computes the numerator/denominator percentage with the
// legacy edge cases: a zero numerator is the literal "0%" regardless of
// the denominator; a nil numerator or nil/zero denominator yields no value.
func ratioPercent(numerator, denominator any) (string, bool) {
	num, numOK := asFloat(numerator)
	if numOK && num == 0 {
		return "0%", true
	}
	den, denOK := asFloat(denominator)
	if !numOK || !denOK || den == 0 {
		return "", false
	}
	return formatFloat(round2(num/den*100)) + "%", true
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// formatFloat renders a float with minimal digits but always at least one
// decimal place: 50 -> "50.0", 33.33 -> "33.33".
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case time.Time:
		return t.Format("2006-01-02 15:04:05"), true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", t), true
	}
}

func asFloat(v any) (float64, bool) {
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

// timestampLayouts are tried in order when parsing last-contact values.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTimestamp(v any) (time.Time, bool) {
	s, ok := asString(v)
	if !ok || strings.TrimSpace(s) == "" {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
