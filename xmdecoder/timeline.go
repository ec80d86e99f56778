package xmdecoder

import (
	"math"
	"sort"
)

// rowEntry is one row as it gets played, in playing order.
type rowEntry struct {
	Order   int
	Pattern int
	Row     int
	Speed   int   // ticks per row, after the effects of the row
	Start   int64 // first frame of the row
}

const (
	effectPatternBreak = 0xD
	effectSetSpeed     = 0xF
	bpmThreshold       = 32
)

func samplesPerTick(bpm int) int64 {
	return int64(math.Round(SampleRate / (float64(bpm) * 0.4)))
}

// buildTimeline plays through the order list without rendering audio and
// returns every row in playing order, plus the frame where the song ends.
// It follows the same rules as the stream: Fxx below 32 sets the speed and
// Dxx continues from the next order at the row given in BCD. The stream
// renders every tick with the length fixed when the module was loaded, so
// tickFrames is that length and Fxx from 32 up does not move any row.
// Position jumps (Bxx) are not followed.
func buildTimeline(s *Song, tickFrames int64) ([]rowEntry, int64) {
	var entries []rowEntry
	speed := s.DefaultSpeed
	var frame int64
	startRow := 0
	for order, pat := range s.Orders {
		if pat < 0 {
			startRow = 0
			continue
		}
		rows := s.Patterns[pat].Rows
		row := startRow
		if row >= rows {
			row = 0
		}
		startRow = 0
		for ; row < rows; row++ {
			breakTo := -1
			for ch := 0; ch < s.NumChannels; ch++ {
				c, _ := s.cell(pat, row, ch)
				switch c.Effect {
				case effectSetSpeed:
					if c.Param > 0 && c.Param < bpmThreshold {
						speed = c.Param
					}
				case effectPatternBreak:
					breakTo = fromBCD(c.Param)
				}
			}
			entries = append(entries, rowEntry{Order: order, Pattern: pat, Row: row, Speed: speed, Start: frame})
			frame += int64(speed) * tickFrames
			if breakTo >= 0 {
				startRow = breakTo
				break
			}
		}
	}
	return entries, frame
}

func fromBCD(v int) int {
	return (v>>4)*10 + v&0xF
}

// entryAt returns the index of the row playing at frame, or -1 if the
// timeline is empty.
func entryAt(entries []rowEntry, frame int64) int {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Start > frame })
	return max(i-1, min(0, len(entries)-1))
}

// seekTarget returns the index of the first row of order at or after row,
// falling back to the first row of a later order. It returns len(entries) if
// nothing is played from that point on.
func seekTarget(entries []rowEntry, order, row int) int {
	for i, e := range entries {
		if e.Order == order && e.Row >= row {
			return i
		}
	}
	for i, e := range entries {
		if e.Order > order {
			return i
		}
	}
	return len(entries)
}
