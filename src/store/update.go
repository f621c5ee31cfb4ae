// src/store/update.go
package store

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoValidFields is returned when an update patch contains no whitelisted
// field after filtering. The builder refuses to issue a no-op statement.
var ErrNoValidFields = errors.New("no valid fields to update")

// updateWhitelists enumerates, per entity, the domain fields a caller may
// change through a partial update. Keys and relationship columns are absent
// on purpose; anything not listed here is silently dropped at build time.
var updateWhitelists = map[string]map[string]FieldMapping{
	"accounts":    whitelist(accountFields, "name", "accountType", "currency", "initialBalance"),
	"trades":      whitelist(tradeFields, "ticker", "tradeType", "quantity", "price", "commission", "tradeDate", "brokerDate", "brokerTime"),
	"positions":   whitelist(positionFields, "status", "closeDate", "avgBuyPrice", "totalShares", "maxShares", "realizedPnl", "maxRiskAmount", "setupType", "entryTime", "rating", "memo"),
	"stop_losses": whitelist(stopLossFields, "stopPrice", "stopQuantity", "stopPercentage", "inputMode", "isActive"),
	"daily_plans": whitelist(dailyPlanFields, "dailyRiskLimit", "watchlist", "notes", "checklist"),
}

func whitelist(fields []FieldMapping, domains ...string) map[string]FieldMapping {
	out := make(map[string]FieldMapping, len(domains))
	for _, d := range domains {
		for _, f := range fields {
			if f.Domain == d {
				out[d] = f
				break
			}
		}
	}
	return out
}

// UpdateBuilder constructs an UPDATE statement from whitelisted fields only.
// Fields are added by domain name; unknown names are dropped without error,
// and a builder that ends up empty refuses to build.
type UpdateBuilder struct {
	table   string
	allowed map[string]FieldMapping
	columns []string
	args    []any
	err     error
}

// NewUpdate starts a builder for the named entity table.
func NewUpdate(table string) *UpdateBuilder {
	allowed, ok := updateWhitelists[table]
	b := &UpdateBuilder{table: table, allowed: allowed}
	if !ok {
		b.err = fmt.Errorf("no update whitelist defined for table %q", table)
	}
	return b
}

// Set stages one domain field. Non-whitelisted fields are ignored; a value
// the field's converter cannot translate poisons the builder.
func (b *UpdateBuilder) Set(domainField string, value any) *UpdateBuilder {
	if b.err != nil {
		return b
	}
	m, ok := b.allowed[domainField]
	if !ok {
		return b
	}
	sv, err := toStorage(m, value)
	if err != nil {
		b.err = err
		return b
	}
	b.columns = append(b.columns, m.Column)
	b.args = append(b.args, sv)
	return b
}

// SetAll stages every entry of a patch map in deterministic column order.
// Absent fields stay untouched in storage; they are never nulled.
func (b *UpdateBuilder) SetAll(patch map[string]any) *UpdateBuilder {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, patch[k])
	}
	return b
}

// Build finalizes the statement for rows matched by keyColumn = keyValue.
func (b *UpdateBuilder) Build(keyColumn string, keyValue any) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if len(b.columns) == 0 {
		return "", nil, fmt.Errorf("%w: table %s", ErrNoValidFields, b.table)
	}
	query := "UPDATE " + b.table + " SET "
	for i, col := range b.columns {
		if i > 0 {
			query += ", "
		}
		query += col + " = ?"
	}
	query += " WHERE " + keyColumn + " = ?"
	args := append(append([]any{}, b.args...), keyValue)
	return query, args, nil
}
