package utils

import "testing"

func TestT_Fallback(t *testing.T) {
	if got := T("fr", "health.ok"); got != "ok" {
		t.Fatalf("fallback to en failed: %s", got)
	}
	if got := T("ko", "no.such.key"); got != "no.such.key" {
		t.Fatalf("unknown key should echo, got %s", got)
	}
}

func TestT_ValidationKeysTranslated(t *testing.T) {
	for _, key := range []string{"validation.required_missing", "validation.length_out_of_range", "validation.value_out_of_range", "validation.pattern_mismatch"} {
		en, ko := T("en", key), T("ko", key)
		if en == key || ko == key || en == ko {
			t.Fatalf("%s: en=%q ko=%q", key, en, ko)
		}
	}
}
