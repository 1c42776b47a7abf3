package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
	}{
		{"USD", USD(4900), 4900, "usd"},
		{"EUR", EUR(999), 999, "eur"},
		{"GBP", GBP(1500), 1500, "gbp"},
		{"Fiat lowercases", Fiat(100, "JPY"), 100, "jpy"},
		{"ZeroMoney", ZeroMoney("USD"), 0, "usd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Negate", func() Money { return USD(100).Negate() }, USD(-100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	// This should panic
	_ = USD(100).Add(EUR(100))
}

func TestMoneyPredicates(t *testing.T) {
	tests := []struct {
		name       string
		money      Money
		isZero     bool
		isPositive bool
		isNegative bool
	}{
		{"Zero", ZeroMoney("usd"), true, false, false},
		{"Positive", USD(1), false, true, false},
		{"Negative", USD(-1), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.IsZero(); got != tt.isZero {
				t.Errorf("IsZero: got %v, want %v", got, tt.isZero)
			}
			if got := tt.money.IsPositive(); got != tt.isPositive {
				t.Errorf("IsPositive: got %v, want %v", got, tt.isPositive)
			}
			if got := tt.money.IsNegative(); got != tt.isNegative {
				t.Errorf("IsNegative: got %v, want %v", got, tt.isNegative)
			}
		})
	}
}

func TestMoneyEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Money
		equal bool
	}{
		{"Same", USD(100), USD(100), true},
		{"Different amount", USD(100), USD(200), false},
		{"Different currency", USD(100), EUR(100), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.equal {
				t.Errorf("Equal: got %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		expected string
	}{
		{"USD", USD(4900), "49.00"},
		{"USD with cents", USD(4999), "49.99"},
		{"USD small", USD(5), "0.05"},
		{"USD negative", USD(-4999), "-49.99"},
		{"JPY zero decimals", Fiat(500, "jpy"), "500"},
		{"KRW zero decimals", Fiat(10000, "krw"), "10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		expected string
	}{
		{"USD", USD(4900), "$49.00"},
		{"EUR", EUR(999), "€9.99"},
		{"GBP", GBP(1500), "£15.00"},
		{"JPY", Fiat(500, "jpy"), "¥500"},
		{"Unknown currency", Fiat(100, "chf"), "CHF 1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.String(); got != tt.expected {
				t.Errorf("String: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyExchangeRate(t *testing.T) {
	tests := []struct {
		name   string
		money  Money
		bought Credits
		want   float64
	}{
		{"One credit per dollar", USD(4900), FromUnits(49), 1.0},
		{"Hundred credits per dollar", USD(100), FromUnits(100), 100.0},
		{"Zero fiat", ZeroMoney("usd"), FromUnits(10), 0},
		{"JPY major units", Fiat(500, "jpy"), FromUnits(1000), 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.money.ExchangeRate(tt.bought)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ExchangeRate: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	m := USD(4900)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":4900,"currency":"usd","display":"$49.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var restored Money
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !restored.Equal(m) {
		t.Errorf("round-trip mismatch: got %v, want %v", restored, m)
	}
}

func BenchmarkMoneyFormatMajor(b *testing.B) {
	m := USD(4999)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.FormatMajor()
	}
}
