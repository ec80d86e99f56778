package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/vsariola/trackplay"
	"github.com/vsariola/trackplay/cmd"
	"github.com/vsariola/trackplay/oto"
	"github.com/vsariola/trackplay/tracker"
	"github.com/vsariola/trackplay/tui"
	"github.com/vsariola/trackplay/version"
	"github.com/vsariola/trackplay/xmdecoder"
	"golang.org/x/term"
)

var (
	configFile  = flag.String("config", "", "read the config from `file` instead of <user config dir>/trackplay/config.yml")
	volume      = flag.Float64("volume", 1, "playback volume between 0 and 1")
	effect      = flag.String("effect", "", "effect applied to the playback: none, bass-boost, echo, reverb, flanger, phaser or chorus")
	bufferSize  = flag.Int("buffer", 0, "audio buffer size in frames")
	midiInput   = flag.String("midi", "", "connect MIDI input to matching device name prefix")
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to `file`")
	plain       = flag.Bool("plain", false, "print a status line instead of the full screen interface")
	verbose     = flag.Bool("v", false, "log debug messages")
	versionFlag = flag.Bool("version", false, "print version")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.Describe("trackplay"))
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "trackplay: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := tracker.LoadConfig(*configFile)
	if err != nil {
		return err
	}
	applyFlags(&cfg)
	level, err := cfg.Level()
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if *verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	fullScreen := !*plain && term.IsTerminal(int(os.Stdout.Fd()))
	if fullScreen {
		// the log would draw over the interface
		if closeLog := logToFile(); closeLog != nil {
			defer closeLog()
		}
	}
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	decoder, err := xmdecoder.Load(path)
	if err != nil {
		return err
	}
	if cfg.SampleRate > 0 && cfg.SampleRate != decoder.SampleRate() {
		logrus.WithFields(logrus.Fields{
			"configured": cfg.SampleRate,
			"used":       decoder.SampleRate(),
		}).Warn("The decoder does not support the configured sample rate")
	}
	playerConfig, err := cfg.PlayerConfig()
	if err != nil {
		return err
	}
	audioContext, err := oto.NewContext(decoder.SampleRate(), playerConfig.BufferFrames)
	if err != nil {
		return err
	}
	defer audioContext.Close()
	player := tracker.NewPlayer(decoder, audioContext.Output(), playerConfig)
	defer player.Close()

	broker := tracker.NewBroker()
	if midiContext := openMIDI(cfg.MIDI, broker); midiContext != nil {
		defer midiContext.Close()
	}
	if err := player.Start(); err != nil {
		return err
	}
	if fullScreen {
		if _, err := tea.NewProgram(tui.NewModel(player, broker, cfg), tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		return player.Err()
	}
	return playPlain(player, broker)
}

func applyFlags(cfg *tracker.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "volume":
			cfg.Volume = max(0, min(*volume, 1))
		case "effect":
			cfg.Effect = *effect
		case "buffer":
			cfg.BufferFrames = *bufferSize
		case "midi":
			cfg.MIDI.Input = *midiInput
		}
	})
}

// openMIDI connects the configured MIDI input to the broker. MIDI problems
// are logged and never stop the playback.
func openMIDI(cfg tracker.MIDIConfig, broker *tracker.Broker) tracker.MIDIContext {
	if cfg.Input == "" {
		return nil
	}
	remote, err := tracker.NewMIDIRemote(cfg)
	if err != nil {
		logrus.WithField("error", err).Warn("Invalid MIDI config")
		return nil
	}
	midiContext := cmd.NewMidiContext(broker, remote)
	input, err := tracker.OpenMIDIInput(midiContext, cfg.Input)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"input": cfg.Input,
			"error": err,
		}).Warn("Could not open MIDI input")
		return midiContext
	}
	logrus.WithField("input", input.String()).Info("MIDI input opened")
	return midiContext
}

// logToFile sends the log to <user cache dir>/trackplay/trackplay.log. It
// returns nil if the file cannot be opened, in which case the log is
// discarded.
func logToFile() func() {
	logrus.SetOutput(io.Discard)
	dir, err := os.UserCacheDir()
	if err != nil {
		return nil
	}
	dir = filepath.Join(dir, "trackplay")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "trackplay.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil
	}
	logrus.SetOutput(f)
	return func() { f.Close() }
}

// playPlain prints the position once a second until the song ends or the
// user interrupts.
func playPlain(player *tracker.Player, broker *tracker.Broker) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	meta := player.Metadata()
	fmt.Printf("%s (%s)\n", meta.Title, meta.Type)
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()
	var lastPrint time.Time
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case now := <-poll.C:
			player.ExecuteAll(broker.ToPlayer)
			s := player.Snapshot()
			if now.Sub(lastPrint) >= time.Second || s.Finished {
				fmt.Printf("\r%s", statusLine(s, meta))
				lastPrint = now
			}
			if s.Finished {
				fmt.Println()
				return player.Err()
			}
		}
	}
}

func statusLine(s tracker.TransportState, meta trackplay.Metadata) string {
	state := "playing"
	if s.Paused {
		state = "paused "
	}
	return fmt.Sprintf("%s order %02d/%02d row %02d  %s / %s  vol %3.0f%%  fx %-10s",
		state, s.Order, max(meta.NumOrders-1, 0), s.Row,
		formatTime(s.Seconds), formatTime(meta.Duration), s.Volume*100, s.Effect)
}

func formatTime(seconds float64) string {
	total := int(max(seconds, 0))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "trackplay plays FastTracker II modules in the terminal.\nUsage: %s [flags] file.xm\n", os.Args[0])
	flag.PrintDefaults()
}
