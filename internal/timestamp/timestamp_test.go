package timestamp

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		want   float64
		wantOK bool
	}{
		{"hours minutes seconds", "what happens at 1:23:45", 5025, true},
		{"minutes seconds", "explain 2:30", 150, true},
		{"no timestamp", "explain this", 0, false},
		{"zero is unset", "at 0:00 what happens", 0, false},
		{"single digit components", "what about 1:5", 65, true},
		{"double digit hours", "jump to 10:00:01", 36001, true},
		{"first valid match wins", "compare 1:00 and 2:00", 60, true},
		{"trailing punctuation", "what did she mean at 4:15?", 255, true},
		{"lone seconds not enough", "at :45 it changes", 0, false},
		{"seconds out of range skipped", "at 1:75 or 2:10", 130, true},
		{"minutes out of range in three part", "at 1:75:00", 0, false},
		{"too many components", "version 1:2:3:4", 0, false},
		{"three digit component", "ratio 123:45", 0, false},
		{"plain number", "chapter 3 at 90 seconds", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.query)
			if ok != tt.wantOK {
				t.Fatalf("Extract(%q) ok = %v, want %v", tt.query, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Extract(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestDetector_Analyze(t *testing.T) {
	d := NewDetector("over here")

	tests := []struct {
		name          string
		query         string
		wantSensitive bool
		wantTS        bool
		wantPhrase    string
	}{
		{"explicit timestamp", "what is shown at 2:30", true, true, ""},
		{"deixis phrase", "What is he saying RIGHT NOW?", true, false, "right now"},
		{"extra phrase", "what is over here", true, false, "over here"},
		{"both", "at this moment, 1:10, what happens", true, true, "at this moment"},
		{"neither", "explain goroutines", false, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := d.Analyze(tt.query)
			if a.Sensitive != tt.wantSensitive {
				t.Errorf("Sensitive = %v, want %v", a.Sensitive, tt.wantSensitive)
			}
			if (a.QueryTimestamp != nil) != tt.wantTS {
				t.Errorf("QueryTimestamp present = %v, want %v", a.QueryTimestamp != nil, tt.wantTS)
			}
			if tt.wantPhrase != "" && a.Phrase != tt.wantPhrase {
				t.Errorf("Phrase = %q, want %q", a.Phrase, tt.wantPhrase)
			}
		})
	}
}

func TestAnalysis_Effective(t *testing.T) {
	d := NewDetector()

	if got := d.Analyze("what happens at 2:30").Effective(45); got != 150 {
		t.Errorf("expected parsed timestamp 150 to win, got %v", got)
	}
	if got := d.Analyze("what is happening right now").Effective(45); got != 45 {
		t.Errorf("expected fallback 45, got %v", got)
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{45, "0:45"},
		{90, "1:30"},
		{5025, "83:45"},
		{61.9, "1:01"},
		{-3, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.in); got != tt.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
