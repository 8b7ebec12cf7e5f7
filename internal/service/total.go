package service

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)

	taxRate           = decimal.RequireFromString("0.10")
	serviceChargeRate = decimal.RequireFromString("0.05")
)

// applyDiscount returns amount reduced by pct percent, rounded to cents.
func applyDiscount(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(hundred.Sub(pct)).Div(hundred).Round(2)
}

// CalculateTotal sums the final price of every food and drink item and applies
// the order-level discount percentage.
func CalculateTotal(food, drink []GuestItemGroup, discount decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, groups := range [][]GuestItemGroup{food, drink} {
		for _, g := range groups {
			for _, item := range g.Items {
				sum = sum.Add(item.FinalPrice)
			}
		}
	}
	return applyDiscount(sum, discount)
}

// paymentAmounts derives tax and service charge from the sum of item prices.
func paymentAmounts(amount decimal.Decimal) (tax, serviceCharge, total decimal.Decimal) {
	tax = amount.Mul(taxRate).Round(2)
	serviceCharge = amount.Mul(serviceChargeRate).Round(2)
	total = amount.Add(tax).Add(serviceCharge)
	return tax, serviceCharge, total
}

// validDiscount accepts percentages in [0, 100] with at most two decimal
// places, the precision the discount columns store.
func validDiscount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred) && d.Equal(d.Round(2))
}
