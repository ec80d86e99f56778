package trackplay

import (
	"fmt"
	"strconv"
	"strings"
)

// Cell is the content of one channel on one pattern row. Fields that are not
// present in the cell are -1.
type Cell struct {
	Note       int // 0 = C-0
	Instrument int // 1-based
	Volume     int // 0..64
	Effect     int
	Param      int
	KeyOff     bool
}

// PlaceholderCell is shown in place of a cell that could not be read.
const PlaceholderCell = "--- .. .. ..."

var noteNames = [12]string{"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-"}

// EmptyCell returns a cell with all fields absent.
func EmptyCell() Cell {
	return Cell{Note: -1, Instrument: -1, Volume: -1, Effect: -1, Param: -1}
}

func NoteName(note int) string {
	if note < 0 {
		return "---"
	}
	return fmt.Sprintf("%s%d", noteNames[note%12], note/12)
}

func InstrumentText(instrument int) string {
	if instrument <= 0 {
		return ".."
	}
	return fmt.Sprintf("%02d", instrument)
}

func VolumeText(volume int) string {
	if volume < 0 {
		return ".."
	}
	return fmt.Sprintf("%02d", min(volume, 64))
}

func EffectText(effect, param int) string {
	if effect < 0 && param < 0 {
		return "..."
	}
	var b strings.Builder
	if effect >= 0 {
		// effects past F continue with letters, G = 16 and so on
		b.WriteString(strings.ToUpper(strconv.FormatInt(int64(effect%36), 36)))
	} else {
		b.WriteByte('.')
	}
	if param >= 0 {
		fmt.Fprintf(&b, "%02X", param)
	} else {
		b.WriteString("..")
	}
	return b.String()
}

// String formats the cell as "NNN II VV EPP", e.g. "C-4 01 40 A0F".
func (c Cell) String() string {
	note := NoteName(c.Note)
	if c.KeyOff {
		note = "==="
	}
	return note + " " + InstrumentText(c.Instrument) + " " + VolumeText(c.Volume) + " " + EffectText(c.Effect, c.Param)
}
