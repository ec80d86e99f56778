package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/vsariola/trackplay"
	"github.com/vsariola/trackplay/tracker"
	"github.com/vsariola/trackplay/version"
	"github.com/vsariola/trackplay/xmdecoder"
)

func main() {
	configFile := flag.String("config", "", "read the config from `file` instead of <user config dir>/trackplay/config.yml")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the same directory where the original module is.")
	formatFlag := flag.String("format", "", "Output format: wav, wav32, raw or raw32. Defaults to the format in the config.")
	volume := flag.Float64("volume", 1, "Volume between 0 and 1.")
	effect := flag.String("effect", "", "Effect applied to the output: none, bass-boost, echo, reverb, flanger, phaser or chorus.")
	quiet := flag.Bool("q", false, "Do not print progress.")
	overwrite := flag.Bool("y", false, "Overwrite existing files.")
	versionFlag := flag.Bool("version", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.Describe("trackplay-export"))
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.WarnLevel)
	cfg, err := tracker.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "volume":
			cfg.Volume = max(0, min(*volume, 1))
		case "effect":
			cfg.Effect = *effect
		case "format":
			cfg.Export.Format = *formatFlag
		}
	})
	format, err := cfg.ExportFormat()
	if err == nil && !trackplay.Supported(format) {
		err = fmt.Errorf("%w: %s", trackplay.ErrUnsupportedFormat, trackplay.FormatName(format))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	playerConfig, err := cfg.PlayerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	outDir := *directory
	if outDir != "" {
		if outDir, err = homedir.Expand(outDir); err != nil {
			fmt.Fprintf(os.Stderr, "could not expand %v: %v\n", *directory, err)
			os.Exit(1)
		}
	}

	process := func(filename string) error {
		decoder, err := xmdecoder.Load(filename)
		if err != nil {
			return err
		}
		player := tracker.NewPlayer(decoder, nil, playerConfig)
		name, err := tracker.ExportFileName(cfg.Export.Template, player.Metadata(), format)
		if err != nil {
			return err
		}
		dir := outDir
		if dir == "" {
			dir = filepath.Dir(filename)
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("could not create output directory %v: %w", dir, err)
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil && !*overwrite {
			return fmt.Errorf("%v already exists, use -y to overwrite", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("could not check %v: %w", path, err)
		}
		progress := newProgressPrinter(path, *quiet)
		err = player.Export(tracker.ExportOptions{Format: format, Path: path, Progress: progress.update})
		progress.finish(err)
		return err
	}
	retval := 0
	for _, param := range flag.Args() {
		files := []string{param}
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			files, err = filepath.Glob(filepath.Join(param, "*.xm"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not glob the path %v for xm files: %v\n", param, err)
				retval = 1
				continue
			}
		}
		for _, file := range files {
			if err := process(file); err != nil {
				fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", file, err)
				retval = 1
			}
		}
	}
	os.Exit(retval)
}

// progressPrinter shows the progress of one export on stderr. The render and
// encode phases both report from 0 to 100 percent.
type progressPrinter struct {
	path    string
	quiet   bool
	phase   int
	percent int
}

var phaseNames = []string{"rendering", "encoding"}

func newProgressPrinter(path string, quiet bool) *progressPrinter {
	return &progressPrinter{path: path, quiet: quiet, percent: -1}
}

func (p *progressPrinter) update(done, total int) bool {
	if p.quiet || total <= 0 {
		return true
	}
	percent := done * 100 / total
	if percent < p.percent {
		p.phase = min(p.phase+1, len(phaseNames)-1)
	}
	if percent != p.percent {
		fmt.Fprintf(os.Stderr, "\r%s: %s %3d%%", p.path, phaseNames[p.phase], percent)
		p.percent = percent
	}
	return true
}

func (p *progressPrinter) finish(err error) {
	if p.quiet {
		return
	}
	if p.percent >= 0 {
		fmt.Fprintln(os.Stderr)
	}
	if err == nil {
		fmt.Fprintf(os.Stderr, "%s: done\n", p.path)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "trackplay-export renders FastTracker II modules into audio files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
