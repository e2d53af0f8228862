// Package portaudio is a PortAudio playback backend with optional duplex
// input capture. It drives the processor from a blocking read/write loop
// on its own goroutine, so the render entry point never runs on a caller
// thread.
package portaudio

import (
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

const bufLen = 1024

// Duplex is a processor that consumes captured input while producing
// output, both stereo and the same length.
type Duplex interface {
	ProcessDuplex(in, out pulsar.AudioBuffer)
}

// Stream is a running PortAudio stream. Close stops the loop, tears the
// stream down and terminates PortAudio.
type Stream struct {
	stream *pa.Stream

	quit chan struct{}
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Output opens the default output device and starts rendering proc into
// it.
func Output(proc pulsar.AudioProcessor, sampleRate float64) (*Stream, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	out := make([][]float32, 2)
	out[0] = make([]float32, bufLen)
	out[1] = make([]float32, bufLen)
	stream, err := pa.OpenDefaultStream(0, 2, sampleRate, bufLen, &out)
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("portaudio open stream: %w", err)
	}
	s := newStream(stream)
	if err := stream.Start(); err != nil {
		s.teardown()
		return nil, fmt.Errorf("portaudio start stream: %w", err)
	}
	block := make(pulsar.AudioBuffer, bufLen)
	go s.loop(func() error {
		proc.Process(block)
		deinterleave(block, out)
		return stream.Write()
	})
	return s, nil
}

// OpenDuplex opens the default input and output devices and runs proc
// with live input capture.
func OpenDuplex(proc Duplex, sampleRate float64) (*Stream, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	in := make([][]float32, 2)
	in[0] = make([]float32, bufLen)
	in[1] = make([]float32, bufLen)
	out := make([][]float32, 2)
	out[0] = make([]float32, bufLen)
	out[1] = make([]float32, bufLen)
	stream, err := pa.OpenDefaultStream(2, 2, sampleRate, bufLen, &in, &out)
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("portaudio open duplex stream: %w", err)
	}
	s := newStream(stream)
	if err := stream.Start(); err != nil {
		s.teardown()
		return nil, fmt.Errorf("portaudio start stream: %w", err)
	}
	inBlock := make(pulsar.AudioBuffer, bufLen)
	outBlock := make(pulsar.AudioBuffer, bufLen)
	go s.loop(func() error {
		if err := stream.Read(); err != nil {
			return err
		}
		interleave(in, inBlock)
		proc.ProcessDuplex(inBlock, outBlock)
		deinterleave(outBlock, out)
		return stream.Write()
	})
	return s, nil
}

func newStream(stream *pa.Stream) *Stream {
	return &Stream{
		stream: stream,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *Stream) loop(step func() error) {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		if err := step(); err != nil {
			s.mu.Lock()
			s.err = fmt.Errorf("portaudio stream: %w", err)
			s.mu.Unlock()
			return
		}
	}
}

// Err reports the error that stopped the loop, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the loop and releases the stream and the PortAudio
// library. Safe to call after the loop has already died on its own.
func (s *Stream) Close() error {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	<-s.done
	return s.teardown()
}

func (s *Stream) teardown() error {
	var first error
	if err := s.stream.Stop(); err != nil && first == nil {
		first = fmt.Errorf("portaudio stop stream: %w", err)
	}
	if err := s.stream.Close(); err != nil && first == nil {
		first = fmt.Errorf("portaudio close stream: %w", err)
	}
	if err := pa.Terminate(); err != nil && first == nil {
		first = fmt.Errorf("portaudio terminate: %w", err)
	}
	return first
}

func interleave(src [][]float32, dst pulsar.AudioBuffer) {
	for i := range dst {
		dst[i][0] = src[0][i]
		dst[i][1] = src[1][i]
	}
}

func deinterleave(src pulsar.AudioBuffer, dst [][]float32) {
	for i := range src {
		dst[0][i] = src[i][0]
		dst[1][i] = src[i][1]
	}
}
