package config

import (
	"testing"
)

func TestSupportedCoins(t *testing.T) {
	coins := ListSupportedCoins()
	if len(coins) != 2 || coins[0] != "DASH" || coins[1] != "DOGE" {
		t.Errorf("ListSupportedCoins() = %v, want [DASH DOGE]", coins)
	}
	if !IsCoinSupported("dash") {
		t.Error("dash should be supported")
	}
	if IsCoinSupported("BTC") {
		t.Error("BTC should not be supported")
	}

	dash, ok := GetCoin("DASH")
	if !ok {
		t.Fatal("DASH not found")
	}
	if dash.Decimals != 8 {
		t.Errorf("Decimals = %d, want 8", dash.Decimals)
	}
	if dash.UnitName != "duffs" {
		t.Errorf("UnitName = %s, want duffs", dash.UnitName)
	}
}

func TestEveryCoinHasPolicyAndEndpoints(t *testing.T) {
	for _, symbol := range ListSupportedCoins() {
		policy, ok := GetFeePolicy(symbol)
		if !ok {
			t.Fatalf("%s has no fee policy", symbol)
		}
		if err := policy.Validate(); err != nil {
			t.Errorf("%s fee policy: %v", symbol, err)
		}

		for _, net := range []NetworkType{Mainnet, Testnet} {
			e, ok := GetEndpoints(symbol, net)
			if !ok {
				t.Fatalf("%s %s has no endpoints", symbol, net)
			}
			if e.DecodeTxURL == "" {
				t.Errorf("%s %s has no decode URL", symbol, net)
			}
			if e.InsightURL == "" && e.BlockbookURL == "" {
				t.Errorf("%s %s needs a coin source", symbol, net)
			}
		}
	}
}

func TestDashDefaultPolicy(t *testing.T) {
	p, ok := GetFeePolicy("DASH")
	if !ok {
		t.Fatal("DASH fee policy not found")
	}

	want := FeePolicy{FeeRate: 1, BaseSize: 10, InputSize: 149, OutputSize: 34, DustLimit: 2000}
	if p != want {
		t.Errorf("DASH policy = %+v, want %+v", p, want)
	}
}

func TestFeePolicyMerge(t *testing.T) {
	base, _ := GetFeePolicy("DASH")

	merged := base.Merge(FeePolicy{FeeRate: 5, DustLimit: 546})
	if merged.FeeRate != 5 || merged.DustLimit != 546 {
		t.Errorf("overrides not applied: %+v", merged)
	}
	if merged.InputSize != base.InputSize || merged.OutputSize != base.OutputSize || merged.BaseSize != base.BaseSize {
		t.Errorf("sizes changed by merge: %+v", merged)
	}

	if got := base.Merge(FeePolicy{}); got != base {
		t.Errorf("empty merge = %+v, want %+v", got, base)
	}
}

func TestFeePolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  FeePolicy
		wantErr bool
	}{
		{"ok", FeePolicy{FeeRate: 1, BaseSize: 10, InputSize: 148, OutputSize: 34}, false},
		{"zero rate", FeePolicy{InputSize: 148, OutputSize: 34}, true},
		{"zero input size", FeePolicy{FeeRate: 1, OutputSize: 34}, true},
		{"huge rate", FeePolicy{FeeRate: 1 << 30, InputSize: 148, OutputSize: 34}, true},
		{"huge size", FeePolicy{FeeRate: 1, InputSize: 1 << 20, OutputSize: 34}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
