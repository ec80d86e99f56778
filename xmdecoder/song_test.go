package xmdecoder

import (
	"testing"

	"github.com/quasilyte/xm/xmfile"
)

func TestConvertNote(t *testing.T) {
	cases := []struct {
		in   xmfile.PatternNote
		want string
	}{
		{xmfile.PatternNote{}, "--- .. .. ..."},
		{xmfile.PatternNote{Note: 49, Instrument: 1, Volume: 0x50}, "C-4 01 64 ..."},
		{xmfile.PatternNote{Note: 97}, "=== .. .. ..."},
		{xmfile.PatternNote{Note: 2, Volume: 0x30, EffectType: 0xA, EffectParameter: 0x0F}, "C#0 .. 32 A0F"},
		{xmfile.PatternNote{EffectType: 0x14}, "--- .. .. K00"},
		{xmfile.PatternNote{Volume: 0x80}, "--- .. .. ..."},
	}
	for _, c := range cases {
		if got := convertNote(c.in).String(); got != c.want {
			t.Errorf("convertNote(%+v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestConvertModule(t *testing.T) {
	m := &xmfile.Module{
		Name:         "demo",
		TrackerName:  "FastTracker v2.00",
		NumChannels:  2,
		DefaultTempo: 0,
		DefaultBPM:   140,
		PatternOrder: []uint8{0, 1, 0},
		Notes: []xmfile.PatternNote{
			{},
			{Note: 49, Instrument: 2},
		},
		Patterns: []xmfile.Pattern{
			{Rows: []xmfile.PatternRow{{Notes: []uint16{0, 1}}, {Notes: []uint16{1, 0}}}},
		},
		Instruments: []xmfile.Instrument{
			{Name: "", Samples: []xmfile.InstrumentSample{{Name: "kick", Panning: 0}, {Name: "snare", Panning: 255}}},
			{Name: "lead"},
		},
	}
	s := convertModule(m)
	if s.DefaultSpeed != 6 || s.DefaultBPM != 140 {
		t.Fatalf("defaults %d %d", s.DefaultSpeed, s.DefaultBPM)
	}
	if len(s.Orders) != 3 || s.Orders[1] != -1 {
		t.Fatalf("orders %v, want the missing pattern 1 as -1", s.Orders)
	}
	if c, ok := s.cell(0, 0, 1); !ok || c.Note != 48 || c.Instrument != 2 {
		t.Fatalf("cell(0,0,1) = %+v %v", c, ok)
	}
	if c, ok := s.cell(0, 1, 1); !ok || c.Note != -1 {
		t.Fatalf("cell(0,1,1) = %+v %v", c, ok)
	}
	if s.Instruments[0].Panning != 0 || s.Instruments[1].Panning != 0.5 {
		t.Fatalf("panning %v %v", s.Instruments[0].Panning, s.Instruments[1].Panning)
	}
	meta := s.metadata()
	meta.Finalize("demo.xm")
	if meta.NumSamples != 2 || meta.InstrumentNames[0] != "<unnamed>" || meta.InstrumentNames[1] != "lead" {
		t.Fatalf("metadata %+v", meta)
	}
	if len(meta.Message) != 3 || meta.Message[0] != "kick" || meta.Message[2] != "lead" {
		t.Fatalf("message %q", meta.Message)
	}
}
