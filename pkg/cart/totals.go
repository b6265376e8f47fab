package cart

import "math"

// ReconcileConfig holds the tolerance thresholds used when deciding whether a
// server-declared monetary value can be trusted over the locally recomputed
// one. The defaults absorb legitimate rounding and tax differences while
// rejecting payloads nonsensically inconsistent with the item list.
type ReconcileConfig struct {
	AbsoluteTolerance float64
	RelativeTolerance float64
}

// DefaultReconcileConfig returns the stock thresholds: 0.5 absolute, 1% relative.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		AbsoluteTolerance: defaultAbsoluteTolerance,
		RelativeTolerance: defaultRelativeTolerance,
	}
}

// TotalsOverrides carries server-declared values offered for reconciliation.
// Nil pointers mean the server declared nothing for that component.
type TotalsOverrides struct {
	Subtotal *float64
	Shipping *float64
	Total    *float64
}

// ComputeTotals derives cart totals from items under the default thresholds.
func ComputeTotals(items []CartItem, overrides TotalsOverrides) CartTotals {
	return DefaultReconcileConfig().ComputeTotals(items, overrides)
}

// ComputeTotals recomputes the baseline from items and substitutes declared
// subtotal/total values only when they fall within tolerance of the baseline.
func (config ReconcileConfig) ComputeTotals(items []CartItem, overrides TotalsOverrides) CartTotals {
	var computedSubtotal float64
	var computedInstallation float64
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		quantity := float64(item.Quantity)
		if item.Price > 0 {
			computedSubtotal += item.Price * quantity
		}
		if item.InstallationPrice > 0 {
			computedInstallation += item.InstallationPrice * quantity
		}
	}

	shipping := 0.0
	if overrides.Shipping != nil && *overrides.Shipping > 0 {
		shipping = *overrides.Shipping
	}

	subtotal := config.reconcile(overrides.Subtotal, computedSubtotal)
	computedTotal := subtotal + shipping + computedInstallation
	total := config.reconcile(overrides.Total, computedTotal)

	return CartTotals{
		Subtotal:          subtotal,
		Shipping:          shipping,
		InstallationPrice: computedInstallation,
		Total:             total,
	}
}

// reconcile trusts a declared value only within max(absolute, relative·computed)
// of the computed baseline. A zero baseline has nothing to validate against,
// so any non-negative declared value passes.
func (config ReconcileConfig) reconcile(declared *float64, computed float64) float64 {
	if declared == nil || *declared < 0 {
		return computed
	}
	if computed == 0 {
		return *declared
	}
	tolerance := math.Max(config.AbsoluteTolerance, config.RelativeTolerance*computed)
	if math.Abs(*declared-computed) <= tolerance {
		return *declared
	}
	return computed
}
