package chain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFromBaseUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := FromBaseUnits(v, 18); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("unexpected %s", got)
	}
	if got := FromBaseUnits(nil, 18); !got.IsZero() {
		t.Fatalf("nil must convert to zero")
	}
	if got := ToBaseUnits(decimal.RequireFromString("1.5"), 18); got.Cmp(v) != 0 {
		t.Fatalf("unexpected base units %s", got)
	}
}

func TestIsValidTxHash(t *testing.T) {
	good := "0x" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	cases := map[string]bool{
		good:                  true,
		good[2:]:              false,
		good + "0":            false,
		"0x" + good[3:] + "g": false,
		"":                    false,
	}
	for in, want := range cases {
		if got := IsValidTxHash(in); got != want {
			t.Fatalf("IsValidTxHash(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBatchRanges(t *testing.T) {
	got := batchRanges(5, 14, 4)
	want := [][2]uint64{{5, 8}, {9, 12}, {13, 14}}
	if len(got) != len(want) {
		t.Fatalf("unexpected ranges %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("range %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if batchRanges(10, 9, 4) != nil {
		t.Fatalf("empty range expected")
	}
}
