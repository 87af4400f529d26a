package model

import (
	"strings"
	"testing"
	"time"
)

func TestFingerprint_Stable(t *testing.T) {
	rec := Record{
		Subject:       "Rate change",
		Sender:        "lender@example.com",
		EffectiveTime: time.Date(2025, 8, 12, 10, 3, 0, 0, time.Local),
		Body:          "The fixed rate drops by 10bp.",
	}
	a, b := rec.Fingerprint(), rec.Fingerprint()
	if a != b {
		t.Errorf("fingerprint not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}

	other := rec
	other.Body = "Different body text."
	if other.Fingerprint() == a {
		t.Error("different body must change the fingerprint")
	}
}

func TestFingerprint_UsesBodyPrefixOnly(t *testing.T) {
	base := Record{Subject: "s", Sender: "f", Body: strings.Repeat("x", 600)}
	tail := base
	tail.Body = base.Body[:500] + strings.Repeat("y", 100)
	if base.Fingerprint() != tail.Fingerprint() {
		t.Error("bytes beyond the 500-char prefix must not affect the fingerprint")
	}
}

func TestDedupKey(t *testing.T) {
	rec := Record{ProvenanceID: "<abc@mail>", Subject: "s"}
	if rec.DedupKey() != "<abc@mail>" {
		t.Errorf("DedupKey() = %q, want provenance id", rec.DedupKey())
	}

	rec.ProvenanceID = ""
	if rec.DedupKey() != rec.Fingerprint() {
		t.Error("DedupKey() should fall back to the fingerprint")
	}
}
