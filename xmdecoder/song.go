package xmdecoder

import (
	"strings"

	"github.com/quasilyte/xm/xmfile"
	"github.com/vsariola/trackplay"
)

type (
	// Song is the part of an XM module the decoder needs besides the audio:
	// the arrangement, the pattern cells and the names. It is copied out of
	// the parsed xmfile.Module, which the parser may reuse.
	Song struct {
		Title        string
		Tracker      string
		NumChannels  int
		DefaultSpeed int
		DefaultBPM   int
		Orders       []int // pattern of each order, -1 if the pattern does not exist
		Patterns     []Pattern
		Instruments  []Instrument
	}

	Pattern struct {
		Rows  int
		Cells []trackplay.Cell // row major, NumChannels cells per row
	}

	Instrument struct {
		Name        string
		SampleNames []string
		Panning     float32 // of the first sample, 0 = left, 1 = right
	}
)

const (
	keyOffNote   = 97
	defaultSpeed = 6
	defaultBPM   = 120
)

func convertModule(m *xmfile.Module) *Song {
	s := &Song{
		Title:        m.Name,
		Tracker:      m.TrackerName,
		NumChannels:  m.NumChannels,
		DefaultSpeed: m.DefaultTempo,
		DefaultBPM:   m.DefaultBPM,
	}
	if s.DefaultSpeed <= 0 {
		s.DefaultSpeed = defaultSpeed
	}
	if s.DefaultBPM <= 0 {
		s.DefaultBPM = defaultBPM
	}
	s.Orders = make([]int, len(m.PatternOrder))
	for i, p := range m.PatternOrder {
		s.Orders[i] = int(p)
		if int(p) >= len(m.Patterns) {
			s.Orders[i] = -1
		}
	}
	s.Patterns = make([]Pattern, len(m.Patterns))
	for i, p := range m.Patterns {
		pat := Pattern{Rows: len(p.Rows), Cells: make([]trackplay.Cell, 0, len(p.Rows)*s.NumChannels)}
		for _, row := range p.Rows {
			for ch := 0; ch < s.NumChannels; ch++ {
				cell := trackplay.EmptyCell()
				if ch < len(row.Notes) && int(row.Notes[ch]) < len(m.Notes) {
					cell = convertNote(m.Notes[row.Notes[ch]])
				}
				pat.Cells = append(pat.Cells, cell)
			}
		}
		s.Patterns[i] = pat
	}
	s.Instruments = make([]Instrument, len(m.Instruments))
	for i, ins := range m.Instruments {
		inst := Instrument{Name: ins.Name, Panning: 0.5}
		for j, smp := range ins.Samples {
			if j == 0 {
				inst.Panning = float32(smp.Panning) / 255
			}
			inst.SampleNames = append(inst.SampleNames, smp.Name)
		}
		s.Instruments[i] = inst
	}
	return s
}

func convertNote(n xmfile.PatternNote) trackplay.Cell {
	c := trackplay.EmptyCell()
	switch {
	case n.Note == keyOffNote:
		c.KeyOff = true
	case n.Note > 0 && n.Note < keyOffNote:
		c.Note = int(n.Note) - 1
	}
	if n.Instrument > 0 {
		c.Instrument = int(n.Instrument)
	}
	if n.Volume >= 0x10 && n.Volume <= 0x50 {
		c.Volume = int(n.Volume) - 0x10
	}
	if n.EffectType != 0 || n.EffectParameter != 0 {
		c.Effect = int(n.EffectType)
		c.Param = int(n.EffectParameter)
	}
	return c
}

func (s *Song) cell(pattern, row, channel int) (trackplay.Cell, bool) {
	if pattern < 0 || pattern >= len(s.Patterns) || channel < 0 || channel >= s.NumChannels {
		return trackplay.Cell{}, false
	}
	p := &s.Patterns[pattern]
	if row < 0 || row >= p.Rows {
		return trackplay.Cell{}, false
	}
	return p.Cells[row*s.NumChannels+channel], true
}

func (s *Song) metadata() trackplay.Metadata {
	m := trackplay.Metadata{
		Title:          s.Title,
		Tracker:        s.Tracker,
		Type:           "FastTracker II (XM)",
		NumChannels:    s.NumChannels,
		NumInstruments: len(s.Instruments),
		NumPatterns:    len(s.Patterns),
		NumOrders:      len(s.Orders),
	}
	var text []string
	for _, ins := range s.Instruments {
		m.InstrumentNames = append(m.InstrumentNames, ins.Name)
		m.SampleNames = append(m.SampleNames, ins.SampleNames...)
		text = append(text, ins.Name)
		text = append(text, ins.SampleNames...)
	}
	m.NumSamples = len(m.SampleNames)
	// XM has no message field; the text lives in the instrument and sample
	// names
	m.Message = trackplay.SplitMessage(strings.Join(text, "\n"))
	return m
}
