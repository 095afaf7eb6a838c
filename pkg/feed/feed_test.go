package feed

import (
	"strings"
	"testing"
	"time"
)

func TestReadCSV(t *testing.T) {
	data := `timestamp,open,high,low,close,volume
2024-01-02,100,105,99,104,150000
2024-01-03,104,108,103,107,180000
2024-01-04 09:30:00,107,109,105,106,120000
`
	bars, err := ReadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}

	b := bars[0]
	if b.Index != 0 || b.Open != 100 || b.High != 105 || b.Low != 99 || b.Close != 104 || b.Volume != 150000 {
		t.Errorf("unexpected first bar: %+v", b)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !b.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, b.Timestamp)
	}
	for i, bar := range bars {
		if bar.Index != i {
			t.Errorf("bar %d: expected index %d, got %d", i, i, bar.Index)
		}
	}
}

func TestReadCSVExtraColumnsIgnored(t *testing.T) {
	data := `timestamp,open,high,low,close,volume,atr_14
2024-01-02,100,105,99,104,150000,2.5
`
	bars, err := ReadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(bars) != 1 || bars[0].Close != 104 {
		t.Errorf("unexpected bars: %+v", bars)
	}
}

func TestReadCSVErrors(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"header only", "timestamp,open,high,low,close,volume\n"},
		{"missing column", "timestamp,open,high,low,close\n2024-01-02,1,2,0.5,1.5\n"},
		{"bad timestamp", "timestamp,open,high,low,close,volume\nyesterday,1,2,0.5,1.5,100\n"},
		{"bad number", "timestamp,open,high,low,close,volume\n2024-01-02,1,2,0.5,abc,100\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tc.data)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestSyntheticDeterministic(t *testing.T) {
	spec := SyntheticSpec{Bars: 50, StartPrice: 100, Volatility: 2, BaseVolume: 10000, Seed: 42}
	first := Synthetic(spec)
	second := Synthetic(spec)

	if len(first) != 50 {
		t.Fatalf("expected 50 bars, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("bar %d differs between runs with the same seed", i)
		}
	}
}

func TestSyntheticInvariants(t *testing.T) {
	bars := Synthetic(SyntheticSpec{Bars: 200, StartPrice: 50, Drift: -1, Volatility: 5, BaseVolume: 1000, Seed: 7})
	for i, b := range bars {
		if b.Index != i {
			t.Errorf("bar %d: wrong index %d", i, b.Index)
		}
		if b.Close <= 0 || b.Open <= 0 {
			t.Errorf("bar %d: non-positive price %+v", i, b)
		}
		if b.High < b.Low {
			t.Errorf("bar %d: high %v below low %v", i, b.High, b.Low)
		}
		if b.High < b.Close || b.Low > b.Close {
			t.Errorf("bar %d: close %v outside [%v, %v]", i, b.Close, b.Low, b.High)
		}
		if b.Volume <= 0 {
			t.Errorf("bar %d: non-positive volume %v", i, b.Volume)
		}
	}
}
