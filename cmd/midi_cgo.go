//go:build cgo

package cmd

import (
	"github.com/vsariola/trackplay/tracker"
	"github.com/vsariola/trackplay/tracker/gomidi"
)

func NewMidiContext(broker *tracker.Broker, remote *tracker.MIDIRemote) tracker.MIDIContext {
	return gomidi.NewContext(broker, remote)
}
