package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{"1.004", "1.00", true},
		{" 2.50 ", "2.50", true},
		{"0", "0.00", true},
		{".5", "0.50", true},
		{"3.", "3.00", true},
		{"999999999999.99", "999999999999.99", true},
		{"1000000000000", "", false},
		{"100000000000000000000", "", false},
		{"-1", "", false},
		{"+1", "", false},
		{"abc", "", false},
		{"1e3", "", false},
		{"1.2.3", "", false},
		{".", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("%q expected ErrInvalidInput, got %v", tc.in, err)
			}
		}
	}
}

func TestMoneySummationIsExact(t *testing.T) {
	total := Zero
	for i := 0; i < 1000; i++ {
		total = total.Add(MustParseMoney("0.10"))
	}
	if total.String() != "100.00" {
		t.Fatalf("expected 100.00, got %s", total)
	}
	if total.Cents() != 10000 {
		t.Fatalf("expected 10000 cents, got %d", total.Cents())
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := MoneyFromCents(0).Validate(); err != nil {
		t.Fatalf("zero should be valid, got %v", err)
	}
	if err := MustParseMoney("12.34").Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := MoneyFromCents(-1).Validate(); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	precise := NewMoney(MustParseMoney("1.00").Decimal().Add(MustParseMoney("0.01").Decimal().Div(MustParseMoney("10").Decimal())))
	if err := precise.Validate(); !errors.Is(err, ErrAmountPrecision) {
		t.Fatalf("expected ErrAmountPrecision, got %v", err)
	}
	if err := MaxMoney.Validate(); err != nil {
		t.Fatalf("max amount should be valid, got %v", err)
	}
	huge := NewMoney(MaxMoney.Decimal().Shift(8))
	if err := huge.Validate(); !errors.Is(err, ErrAmountTooLarge) || !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(MustParseMoney("10"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"10.00"` {
		t.Fatalf("unexpected json %s", b)
	}

	var m Money
	if err := json.Unmarshal([]byte(`12.5`), &m); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if m.String() != "12.50" {
		t.Fatalf("expected 12.50, got %s", m)
	}
	if err := json.Unmarshal([]byte(`"-3"`), &m); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}
