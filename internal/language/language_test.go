package language

import "testing"

func TestDetectFromFilename(t *testing.T) {
	cases := []struct {
		filename string
		expected string
	}{
		{"interview_A03_final.mp3", "lv"},
		{"A04_recording.wav", "ru"},
		{"meeting a05 cut.mkv", "en"},
		{"meeting.mp3", ""},
		{"A06_other.mp3", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := DetectFromFilename(tc.filename); got != tc.expected {
			t.Errorf("DetectFromFilename(%q) = %q, want %q", tc.filename, got, tc.expected)
		}
	}
}

func TestLookupNormalizesCode(t *testing.T) {
	lang, ok := Lookup(" EN ")
	if !ok || lang.Name != "English" {
		t.Fatalf("unexpected lookup result: %#v ok=%v", lang, ok)
	}
	if _, ok := Lookup("xx"); ok {
		t.Fatal("expected unknown code to miss")
	}
}

func TestAllPinsCoreLanguagesFirst(t *testing.T) {
	langs := All()
	if len(langs) < 3 {
		t.Fatalf("expected full language table, got %d entries", len(langs))
	}
	if langs[0].Code != "lv" || langs[1].Code != "ru" || langs[2].Code != "en" {
		t.Fatalf("core languages not pinned first: %#v", langs[:3])
	}
}

func TestNameFallsBackToCode(t *testing.T) {
	if Name("zz") != "zz" {
		t.Fatal("expected unknown code returned as-is")
	}
	if Name("lv") != "Latvian" {
		t.Fatal("expected display name for known code")
	}
}
