package cart

import (
	"math"
	"testing"
)

const floatEpsilon = 1e-9

func floatsEqual(left float64, right float64) bool {
	return math.Abs(left-right) < floatEpsilon
}

func floatPointer(value float64) *float64 {
	return &value
}

func TestComputeTotalsFromItems(test *testing.T) {
	test.Parallel()
	items := []CartItem{
		{ID: "line-1", ProductID: "p1", Quantity: 2, Price: 100},
		{ID: "line-2", ProductID: "p2", Quantity: 1, Price: 50, InstallationPrice: 20},
	}

	totals := ComputeTotals(items, TotalsOverrides{})

	if !floatsEqual(totals.Subtotal, 250) {
		test.Fatalf("expected subtotal 250, got %v", totals.Subtotal)
	}
	if !floatsEqual(totals.InstallationPrice, 20) {
		test.Fatalf("expected installation 20, got %v", totals.InstallationPrice)
	}
	if !floatsEqual(totals.Shipping, 0) {
		test.Fatalf("expected shipping 0, got %v", totals.Shipping)
	}
	if !floatsEqual(totals.Total, 270) {
		test.Fatalf("expected total 270, got %v", totals.Total)
	}
}

func TestComputeTotalsSkipsNonPositiveLines(test *testing.T) {
	test.Parallel()
	items := []CartItem{
		{ID: "line-1", ProductID: "p1", Quantity: 0, Price: 100},
		{ID: "line-2", ProductID: "p2", Quantity: 3, Price: -5},
		{ID: "line-3", ProductID: "p3", Quantity: 1, Price: 40},
	}

	totals := ComputeTotals(items, TotalsOverrides{})

	if !floatsEqual(totals.Subtotal, 40) {
		test.Fatalf("expected subtotal 40, got %v", totals.Subtotal)
	}
	if !floatsEqual(totals.Total, 40) {
		test.Fatalf("expected total 40, got %v", totals.Total)
	}
}

func TestComputeTotalsReconcilesDeclaredValues(test *testing.T) {
	test.Parallel()
	items := []CartItem{
		{ID: "line-1", ProductID: "p1", Quantity: 1, Price: 100},
	}
	testCases := []struct {
		name         string
		overrides    TotalsOverrides
		wantSubtotal float64
		wantTotal    float64
	}{
		{
			name:         "declared subtotal within tolerance wins",
			overrides:    TotalsOverrides{Subtotal: floatPointer(100.4)},
			wantSubtotal: 100.4,
			wantTotal:    100.4,
		},
		{
			name:         "declared subtotal outside tolerance rejected",
			overrides:    TotalsOverrides{Subtotal: floatPointer(103)},
			wantSubtotal: 100,
			wantTotal:    100,
		},
		{
			name:         "declared total within relative tolerance wins",
			overrides:    TotalsOverrides{Total: floatPointer(100.9)},
			wantSubtotal: 100,
			wantTotal:    100.9,
		},
		{
			name:         "declared total outside tolerance rejected",
			overrides:    TotalsOverrides{Total: floatPointer(150)},
			wantSubtotal: 100,
			wantTotal:    100,
		},
		{
			name:         "negative declared values ignored",
			overrides:    TotalsOverrides{Subtotal: floatPointer(-3), Total: floatPointer(-1)},
			wantSubtotal: 100,
			wantTotal:    100,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			totals := ComputeTotals(items, testCase.overrides)
			if !floatsEqual(totals.Subtotal, testCase.wantSubtotal) {
				test.Fatalf("expected subtotal %v, got %v", testCase.wantSubtotal, totals.Subtotal)
			}
			if !floatsEqual(totals.Total, testCase.wantTotal) {
				test.Fatalf("expected total %v, got %v", testCase.wantTotal, totals.Total)
			}
		})
	}
}

func TestComputeTotalsZeroBaselineAcceptsDeclared(test *testing.T) {
	test.Parallel()
	items := []CartItem{
		{ID: "line-1", ProductID: "p1", Quantity: 1, Price: 0},
	}

	totals := ComputeTotals(items, TotalsOverrides{Subtotal: floatPointer(79.9)})

	if !floatsEqual(totals.Subtotal, 79.9) {
		test.Fatalf("expected declared subtotal to pass against a zero baseline, got %v", totals.Subtotal)
	}
}

func TestComputeTotalsShippingDeclared(test *testing.T) {
	test.Parallel()
	items := []CartItem{
		{ID: "line-1", ProductID: "p1", Quantity: 1, Price: 100},
	}

	totals := ComputeTotals(items, TotalsOverrides{Shipping: floatPointer(15)})

	if !floatsEqual(totals.Shipping, 15) {
		test.Fatalf("expected shipping 15, got %v", totals.Shipping)
	}
	if !floatsEqual(totals.Total, 115) {
		test.Fatalf("expected total 115, got %v", totals.Total)
	}

	negative := ComputeTotals(items, TotalsOverrides{Shipping: floatPointer(-4)})
	if !floatsEqual(negative.Shipping, 0) {
		test.Fatalf("expected negative shipping to be dropped, got %v", negative.Shipping)
	}
}

func TestComputeTotalsCustomThresholds(test *testing.T) {
	test.Parallel()
	config := ReconcileConfig{AbsoluteTolerance: 5, RelativeTolerance: 0}
	items := []CartItem{
		{ID: "line-1", ProductID: "p1", Quantity: 1, Price: 100},
	}

	totals := config.ComputeTotals(items, TotalsOverrides{Subtotal: floatPointer(104)})

	if !floatsEqual(totals.Subtotal, 104) {
		test.Fatalf("expected widened tolerance to accept 104, got %v", totals.Subtotal)
	}
}

func TestComputeTotalsInvariantWithoutOverrides(test *testing.T) {
	test.Parallel()
	items := []CartItem{
		{ID: "line-1", ProductID: "p1", Quantity: 2, Price: 19.99, InstallationPrice: 5},
		{ID: "line-2", ProductID: "p2", Quantity: 3, Price: 7.5},
	}

	totals := ComputeTotals(items, TotalsOverrides{})

	expected := totals.Subtotal + totals.Shipping + totals.InstallationPrice
	if !floatsEqual(totals.Total, expected) {
		test.Fatalf("expected total %v to equal component sum %v", totals.Total, expected)
	}
}
