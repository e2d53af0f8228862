package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
	"github.com/CarlosNMK25/pulsar-v1-sub001/engine"
	"github.com/CarlosNMK25/pulsar-v1-sub001/midi"
	"github.com/CarlosNMK25/pulsar-v1-sub001/oto"
	"github.com/CarlosNMK25/pulsar-v1-sub001/portaudio"
	"github.com/CarlosNMK25/pulsar-v1-sub001/version"
)

func main() {
	stdout := flag.Bool("s", false, "Do not write files; write to standard output instead.")
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the same directory where the original performance file is.")
	play := flag.Bool("p", false, "Play the input performances live (default behaviour when no other output is defined).")
	rawOut := flag.Bool("r", false, "Output the rendered performance as .raw file. By default, saves stereo float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Output the rendered performance as .wav file. By default, saves stereo float32 buffer to disk.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	bars := flag.Int("bars", 4, "Number of bars to render when outputting files.")
	rate := flag.Int("rate", 44100, "Sample rate.")
	live := flag.Bool("live", false, "Run in duplex mode through PortAudio, processing the default input device through the live effect chain.")
	midiPrefix := flag.String("midi", "", "Open the first MIDI input whose name starts with this prefix.")
	midiFirst := flag.Bool("midi-first", false, "Open the first available MIDI input.")
	chaosTracks := flag.String("chaos", "", "Comma-separated track indices to start chaos on when playing live.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut {
		*play = true // if the user gives nothing to output, then the default behaviour is just to play the file
	}
	var audioContext *oto.Context
	if *play && !*live {
		var err error
		audioContext, err = oto.NewContext(*rate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not acquire oto AudioContext: %v\n", err)
			os.Exit(1)
		}
	}
	process := func(filename string) error {
		output := func(extension string, contents []byte) error {
			if *stdout {
				os.Stdout.Write(contents)
				return nil
			}
			_, name := filepath.Split(filename)
			dir := *directory
			if dir == "" {
				var err error
				dir, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
				}
			}
			name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
			f := filepath.Join(dir, name)
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return fmt.Errorf("could not create output directory %v: %v", dir, err)
			}
			if err := os.WriteFile(f, contents, 0644); err != nil {
				return fmt.Errorf("could not write file %v: %v", f, err)
			}
			return nil
		}
		inputBytes, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("could not read file %v: %v", filename, err)
		}
		perf, err := pulsar.ParsePerformance(inputBytes)
		if err != nil {
			return fmt.Errorf("could not parse performance %v: %v", filename, err)
		}
		if err := perf.Validate(); err != nil {
			return fmt.Errorf("invalid performance %v: %v", filename, err)
		}
		eng := engine.NewEngine(float64(*rate))
		defer eng.Close()
		eng.LoadPerformance(perf)
		if *rawOut || *wavOut {
			buffer := eng.Render(*bars)
			if *rawOut {
				raw, err := pulsar.Raw(buffer, *pcm)
				if err != nil {
					return fmt.Errorf("could not generate .raw file: %v", err)
				}
				if err := output(".raw", raw); err != nil {
					return fmt.Errorf("error outputting .raw file: %v", err)
				}
			}
			if *wavOut {
				wav, err := pulsar.Wav(buffer, *rate, *pcm)
				if err != nil {
					return fmt.Errorf("could not generate .wav file: %v", err)
				}
				if err := output(".wav", wav); err != nil {
					return fmt.Errorf("error outputting .wav file: %v", err)
				}
			}
		}
		if *play {
			return playLive(eng, audioContext, *rate, *live, *midiPrefix, *midiFirst, *chaosTracks)
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			files, err := filepath.Glob(filepath.Join(param, "*.yml"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not glob the path %v for yml files: %v\n", param, err)
				retval = 1
				continue
			}
			for _, file := range files {
				if err := process(file); err != nil {
					fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", file, err)
					retval = 1
				}
			}
		} else {
			if err := process(param); err != nil {
				fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", param, err)
				retval = 1
			}
		}
	}
	os.Exit(retval)
}

func playLive(eng *engine.Engine, audioContext *oto.Context, rate int, live bool, midiPrefix string, midiFirst bool, chaosTracks string) error {
	midiContext := midi.NewContext(eng)
	defer midiContext.Close()
	if midiPrefix != "" || midiFirst {
		if err := midiContext.TryToOpenBy(midiPrefix, midiFirst); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
	var closeAudio func() error
	if live {
		stream, err := portaudio.OpenDuplex(eng, float64(rate))
		if err != nil {
			return fmt.Errorf("could not open duplex stream: %v", err)
		}
		closeAudio = stream.Close
	} else {
		player := audioContext.Play(eng)
		closeAudio = player.Close
	}
	for _, field := range strings.Split(chaosTracks, ",") {
		if field = strings.TrimSpace(field); field == "" {
			continue
		}
		id, err := strconv.Atoi(field)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid chaos track %q\n", field)
			continue
		}
		eng.StartChaos(id)
	}
	eng.Start()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	signal.Stop(sig)
	eng.Stop()
	return closeAudio()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Pulsar command line utility for playing .yml performance files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
