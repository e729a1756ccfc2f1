package feed

import (
	"errors"
	"testing"
)

func TestValidateFreshness(t *testing.T) {
	// previous round at 1000s, 60s staleness: 1059s is inside the bound
	err := ValidateFreshness(1059_000, 1000, 60, 2000)
	var nf *NotFreshError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFreshError, got %v", err)
	}
	if nf.ReportedMillis != 1059_000 || nf.PreviousSeconds != 1000 {
		t.Fatalf("not fresh error should carry both timestamps: %+v", nf)
	}

	// the boundary itself is still stale
	if err := ValidateFreshness(1060_000, 1000, 60, 2000); err == nil {
		t.Fatal("exactly previous+staleness should be rejected")
	}

	if err := ValidateFreshness(1061_000, 1000, 60, 2000); err != nil {
		t.Fatalf("1061s should be accepted: %v", err)
	}
}

func TestValidateFreshnessFuture(t *testing.T) {
	err := ValidateFreshness(3000_000, 1000, 60, 2000)
	var fe *TimestampFromFutureError
	if !errors.As(err, &fe) {
		t.Fatalf("expected TimestampFromFutureError, got %v", err)
	}
	if fe.ReportedMillis != 3000_000 || fe.NowSeconds != 2000 {
		t.Fatalf("future error should carry both timestamps: %+v", fe)
	}

	// exactly now is allowed
	if err := ValidateFreshness(2000_000, 1000, 60, 2000); err != nil {
		t.Fatalf("round at exactly now should be accepted: %v", err)
	}
}

func TestValidateFreshnessFirstRound(t *testing.T) {
	// no previous round: previous timestamp is zero
	if err := ValidateFreshness(500_000, 0, 60, 1000); err != nil {
		t.Fatalf("first round should be accepted: %v", err)
	}
}
