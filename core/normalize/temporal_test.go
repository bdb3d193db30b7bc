package normalize

import (
	"testing"
	"time"
)

func TestLocaleParserOrders(t *testing.T) {
	tests := []struct {
		locale string
		in     string
		want   time.Time
	}{
		{"nl", "8-4-91", time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)},
		{"nl-BE", "08/04/1991", time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)},
		{"de", "8.4.2021", time.Date(2021, 4, 8, 0, 0, 0, 0, time.UTC)},
		{"en-US", "4/8/91", time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)},
		{"en-GB", "8/4/91", time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)},
		{"ja", "91/04/08", time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)},
		{"nl", "1991-04-08", time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)},
		{"nl", "8-4-29", time.Date(2029, 4, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.locale+" "+tt.in, func(t *testing.T) {
			p, err := NewLocaleParser(tt.locale)
			if err != nil {
				t.Fatalf("NewLocaleParser: %v", err)
			}
			got, ok := p.Parse(tt.in, Date)
			if !ok {
				t.Fatalf("Parse(%q) failed", tt.in)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLocaleParserRejects(t *testing.T) {
	p, err := NewLocaleParser("nl")
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range []string{"today", "", "8-4", "31-2-2020", "8-13-91", "1-1-123", "a-b-c", "8-4-91 25:00", "8-4-91 10:7"} {
		if got, ok := p.Parse(in, DateTime); ok {
			t.Errorf("Parse(%q) = %v, want failure", in, got)
		}
	}
}

func TestLocaleParserDateTime(t *testing.T) {
	p, err := NewLocaleParser("nl")
	if err != nil {
		t.Fatal(err)
	}

	got, ok := p.Parse("8-4-91 13:45:12.250", DateTime)
	if !ok {
		t.Fatal("Parse failed")
	}
	want := time.Date(1991, 4, 8, 13, 45, 12, 250000000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Parse = %v, want %v", got, want)
	}

	got, ok = p.Parse("1991-04-08T13:45:00+02:00", DateTime)
	if !ok {
		t.Fatal("Parse with offset failed")
	}
	if !got.Equal(time.Date(1991, 4, 8, 11, 45, 0, 0, time.UTC)) {
		t.Errorf("Parse with offset = %v", got)
	}

	// A date field drops the time of day.
	got, _ = p.Parse("8-4-91 13:45", Date)
	if !got.Equal(time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date with time = %v", got)
	}
}

func TestLocaleParserPrecision(t *testing.T) {
	in := "8-4-91 13:45:12.250"
	tests := []struct {
		precision Precision
		want      time.Time
	}{
		{Subsecond, time.Date(1991, 4, 8, 13, 45, 12, 250000000, time.UTC)},
		{Second, time.Date(1991, 4, 8, 13, 45, 12, 0, time.UTC)},
		{Minute, time.Date(1991, 4, 8, 13, 45, 0, 0, time.UTC)},
		{Hour, time.Date(1991, 4, 8, 13, 0, 0, 0, time.UTC)},
		{Day, time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		p, err := NewLocaleParser("nl", WithPrecision(tt.precision))
		if err != nil {
			t.Fatal(err)
		}
		got, ok := p.Parse(in, DateTime)
		if !ok || !got.Equal(tt.want) {
			t.Errorf("precision %d: Parse = %v (ok=%v), want %v", tt.precision, got, ok, tt.want)
		}
	}
}

func TestLocaleParserLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	p, err := NewLocaleParser("nl", WithLocation(loc))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := p.Parse("8-4-91 12:00", DateTime)
	if !ok {
		t.Fatal("Parse failed")
	}
	if !got.Equal(time.Date(1991, 4, 8, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("Parse = %v", got)
	}
}

func TestNewLocaleParserInvalid(t *testing.T) {
	if _, err := NewLocaleParser("not a locale!"); err == nil {
		t.Error("expected error for invalid locale")
	}
}

func TestParsePrecision(t *testing.T) {
	for in, want := range map[string]Precision{"": Subsecond, "second": Second, "Minute": Minute, "hour": Hour, "day": Day} {
		got, err := ParsePrecision(in)
		if err != nil || got != want {
			t.Errorf("ParsePrecision(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePrecision("week"); err == nil {
		t.Error("expected error")
	}
}
