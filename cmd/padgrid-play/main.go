package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/padgrid/padgrid"
	"github.com/padgrid/padgrid/engine"
	"github.com/padgrid/padgrid/midi"
	"github.com/padgrid/padgrid/oto"
	"github.com/padgrid/padgrid/version"
)

const blockFrames = 2048

func main() {
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the same directory where the project file is.")
	play := flag.Bool("p", false, "Play the projects (default behaviour when no other output is defined).")
	rawOut := flag.Bool("r", false, "Output the rendered pattern as .raw file. By default, saves stereo float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Output the rendered pattern as .wav file. By default, saves stereo float32 buffer to disk.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	loops := flag.Int("loops", 1, "How many times to run through the pattern. 0 plays forever (live playback only).")
	record := flag.String("record", "", "Record live playback into the given .wav file.")
	midiInput := flag.String("midi", "", "Open the first MIDI input starting with the prefix and play pads from it. Use -midi-list to see the inputs.")
	midiList := flag.Bool("midi-list", false, "List the available MIDI inputs.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if *midiList {
		ctx := midi.NewContext(midi.DefaultBaseNote, nil)
		defer ctx.Close()
		for _, name := range ctx.InputNames() {
			fmt.Println(name)
		}
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut {
		*play = true // if the user gives nothing to output, then the default behaviour is just to play the project
	}
	var audioContext padgrid.AudioContext
	if *play {
		var err error
		audioContext, err = oto.NewContext(padgrid.DefaultSampleRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not acquire oto AudioContext: %v\n", err)
			os.Exit(1)
		}
		defer audioContext.Close()
	}
	process := func(filename string) error {
		output := func(extension string, contents []byte) error {
			dir := *directory
			if dir == "" {
				dir = filepath.Dir(filename)
			}
			_, name := filepath.Split(filename)
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
		project, err := padgrid.LoadProject(filename)
		if err != nil {
			return err
		}
		eng, err := buildEngine(project)
		if err != nil {
			return err
		}
		defer eng.Close()
		if *rawOut || *wavOut {
			buffer := renderProject(eng, project, *loops)
			if *rawOut {
				raw, err := padgrid.Raw(buffer, *pcm)
				if err != nil {
					return fmt.Errorf("could not generate .raw file: %v", err)
				}
				if err := output(".raw", raw); err != nil {
					return fmt.Errorf("error outputting .raw file: %v", err)
				}
			}
			if *wavOut {
				wav, err := padgrid.Wav(buffer, *pcm, eng.SampleRate())
				if err != nil {
					return fmt.Errorf("could not generate .wav file: %v", err)
				}
				if err := output(".wav", wav); err != nil {
					return fmt.Errorf("error outputting .wav file: %v", err)
				}
			}
		}
		if *play {
			if err := playProject(eng, project, audioContext, *loops, *record, *midiInput); err != nil {
				return err
			}
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if err := process(param); err != nil {
			fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", param, err)
			retval = 1
		}
	}
	os.Exit(retval)
}

// buildEngine constructs an engine from the project: loads the kit into the
// slots, applies the bank defaults and installs the grid.
func buildEngine(project *padgrid.Project) (*engine.Engine, error) {
	eng, err := engine.New(engine.Config{
		Steps:        project.Steps,
		Columns:      project.Columns,
		StepsPerBeat: project.StepsPerBeat,
		BPM:          project.BPM,
	})
	if err != nil {
		return nil, err
	}
	for _, s := range project.Kit {
		mode := engine.LoadModeMemory
		if s.Stream {
			mode = engine.LoadModeStreamed
		}
		if err := eng.LoadSlot(s.Slot, s.Path, mode); err != nil {
			eng.Close()
			return nil, fmt.Errorf("could not load slot %v from %v: %v", s.Slot, s.Path, err)
		}
		if s.Volume != nil {
			eng.SetBankVolume(s.Slot, *s.Volume)
		}
		if s.Pitch != nil {
			eng.SetBankPitch(s.Slot, *s.Pitch)
		}
	}
	if err := eng.SetGrid(project.Grid()); err != nil {
		eng.Close()
		return nil, fmt.Errorf("could not install the grid: %v", err)
	}
	return eng, nil
}

// renderProject renders the pattern offline: the given number of loops plus
// however long the last voices keep ringing, up to ten seconds.
func renderProject(eng *engine.Engine, project *padgrid.Project, loops int) padgrid.AudioBuffer {
	if loops < 1 {
		loops = 1
	}
	sps := padgrid.SamplesPerStep(eng.SampleRate(), project.BPM, project.StepsPerBeat)
	total := int(sps*float64(project.Steps)*float64(loops) + 0.5)
	var buffer padgrid.AudioBuffer
	block := make(padgrid.AudioBuffer, blockFrames)
	eng.StartSequencer(project.BPM, project.Steps)
	for len(buffer) < total {
		n := total - len(buffer)
		if n > blockFrames {
			n = blockFrames
		}
		eng.Process(block[:n])
		buffer = append(buffer, block[:n]...)
	}
	eng.StopSequencer()
	for tail := 0; tail < 10*eng.SampleRate(); tail += blockFrames {
		eng.Process(block)
		buffer = append(buffer, block...)
		if eng.ActiveVoiceCount() == 0 {
			break
		}
	}
	return buffer
}

// playProject drives the engine into the audio device. The sink's write
// paces the loop, so rendering happens at the device's speed.
func playProject(eng *engine.Engine, project *padgrid.Project, audioContext padgrid.AudioContext, loops int, record, midiInput string) error {
	if midiInput != "" {
		ctx := midi.NewContext(midi.DefaultBaseNote, func(slot int, velocity float64) {
			vol, err := eng.BankVolume(slot)
			if err != nil {
				return
			}
			pitch, _ := eng.BankPitch(slot)
			eng.PreviewSlot(slot, vol*velocity, pitch)
		})
		defer ctx.Close()
		if err := ctx.OpenByPrefix(midiInput); err != nil {
			fmt.Fprintf(os.Stderr, "%v; playing without MIDI\n", err)
		}
	}
	if record != "" {
		if err := eng.StartRecording(record); err != nil {
			return fmt.Errorf("could not start recording: %v", err)
		}
	}
	sink := audioContext.Output()
	defer sink.Close()
	sps := padgrid.SamplesPerStep(eng.SampleRate(), project.BPM, project.StepsPerBeat)
	total := int(sps * float64(project.Steps) * float64(loops))
	block := make(padgrid.AudioBuffer, blockFrames)
	eng.StartSequencer(project.BPM, project.Steps)
	for rendered := 0; loops == 0 || rendered < total; rendered += blockFrames {
		eng.Process(block)
		if err := sink.WriteAudio(block); err != nil {
			return fmt.Errorf("could not write audio: %v", err)
		}
	}
	eng.StopSequencer()
	for tail := 0; tail < 10*eng.SampleRate(); tail += blockFrames {
		eng.Process(block)
		if err := sink.WriteAudio(block); err != nil {
			return fmt.Errorf("could not write audio: %v", err)
		}
		if eng.ActiveVoiceCount() == 0 {
			break
		}
	}
	if record != "" {
		if err := eng.StopRecording(); err != nil {
			return fmt.Errorf("could not finish recording: %v", err)
		}
		fmt.Fprintf(os.Stderr, "recorded %v of audio", time.Duration(eng.RecordingDurationMs())*time.Millisecond)
		if dropped := eng.DroppedBlockCount(); dropped > 0 {
			fmt.Fprintf(os.Stderr, ", %v blocks dropped", dropped)
		}
		fmt.Fprintln(os.Stderr)
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Padgrid command line utility for playing and rendering project .yml files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
