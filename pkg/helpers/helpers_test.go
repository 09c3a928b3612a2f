package helpers

import (
	"errors"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{0, 8, "0"},
		{1, 8, "0.00000001"},
		{100000, 8, "0.001"},
		{100000000, 8, "1"},
		{123456789, 8, "1.23456789"},
		{18446744073709551615, 8, "184467440737.09551615"},
		{42, 0, "42"},
	}

	for _, tc := range tests {
		got := FormatAmount(tc.amount, tc.decimals)
		if got != tc.want {
			t.Errorf("FormatAmount(%d, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0.001", 100000, false},
		{"1", 100000000, false},
		{"1.5", 150000000, false},
		{".5", 50000000, false},
		{"5.", 500000000, false},
		{" 0.00000001 ", 1, false},
		{"0.000000010", 1, false},
		{"0", 0, false},
		{"184467440737.09551615", 18446744073709551615, false},
		{"184467440737.09551616", 0, true},
		{"0.000000001", 0, true},
		{"", 0, true},
		{".", 0, true},
		{"-1", 0, true},
		{"1e8", 0, true},
		{"1.2.3", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
	}

	for _, tc := range tests {
		got, err := ParseAmount(tc.in, 8)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q) expected error, got %d", tc.in, got)
			} else if !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("ParseAmount(%q) error = %v, want ErrInvalidAmount", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDashDuffsConversion(t *testing.T) {
	duffs, err := DashToDuffs("0.001")
	if err != nil {
		t.Fatalf("DashToDuffs error = %v", err)
	}
	if duffs != 100000 {
		t.Errorf("DashToDuffs(0.001) = %d, want 100000", duffs)
	}
	if got := DuffsToDash(duffs); got != "0.001" {
		t.Errorf("DuffsToDash(%d) = %s, want 0.001", duffs, got)
	}
}

func TestIsTxID(t *testing.T) {
	valid := "8a43e3c1d4f2b6a9e0c7d5b3a1f9e8d7c6b5a4f3e2d1c0b9a8f7e6d5c4b3a291"
	if !IsTxID(valid) {
		t.Errorf("IsTxID(%s) = false, want true", valid)
	}
	for _, s := range []string{"", "abcd", valid[:63] + "z", valid + "00"} {
		if IsTxID(s) {
			t.Errorf("IsTxID(%q) = true, want false", s)
		}
	}
}

func TestHexToBytes(t *testing.T) {
	b, err := HexToBytes("0x76a9")
	if err != nil {
		t.Fatalf("HexToBytes error = %v", err)
	}
	if len(b) != 2 || b[0] != 0x76 || b[1] != 0xa9 {
		t.Errorf("HexToBytes = %x, want 76a9", b)
	}
	if _, err := HexToBytes("abc"); err == nil {
		t.Error("expected error for odd-length hex")
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("b[%d] = %d, want 0", i, v)
		}
	}
}
