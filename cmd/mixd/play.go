package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/config"
	"pipelined.dev/mix/endpoint/portaudio"
	"pipelined.dev/mix/memory"
	"pipelined.dev/mix/ringbuffer"
	"pipelined.dev/mix/stage"
	"pipelined.dev/mix/timeline"
)

// ringPeriods is the size of playback ring buffer in periods.
const ringPeriods = 8

type playCommand struct {
	in string
}

func (cmd *playCommand) Name() string {
	return "play"
}

func (cmd *playCommand) Help() string {
	return "Play wav file on the default output device"
}

func (cmd *playCommand) Register(fs *flag.FlagSet, _ *config.Config) {
	fs.StringVar(&cmd.in, "in", "", "input wav file (required)")
}

func (cmd *playCommand) Run(ctx context.Context, cfg config.Config) error {
	if cmd.in == "" {
		return errors.New("Missing -in required flag")
	}
	s, err := openSession(cfg, cmd.in)
	if err != nil {
		return err
	}
	defer s.close()

	f := s.feeder.Format()
	periodFrames := f.IntegerFramesPer(cfg.Period, timeline.Ceiling)
	total := ringPeriods * periodFrames
	heap, err := memory.NewHeap(int(total) * f.BytesPerFrame())
	if err != nil {
		return err
	}
	rb, err := ringbuffer.New(ringbuffer.Args{
		Format:    f,
		Reference: clock.System(),
		Buffer: ringbuffer.Buffer{
			Memory:         heap,
			ProducerFrames: total / 2,
			ConsumerFrames: total / 2,
		},
	})
	if err != nil {
		return err
	}
	dev, err := portaudio.Open(portaudio.NewReader(rb, 0), int(periodFrames))
	if err != nil {
		return err
	}
	defer dev.Close()
	if err := s.connect("portaudio", stage.NewRingBufferWriter(rb), dev.Latency()); err != nil {
		return err
	}
	if err := dev.Start(); err != nil {
		return err
	}
	if err := s.feed(ctx); err != nil {
		return err
	}
	// frames written ahead are still queued in the device
	select {
	case <-time.After(2*cfg.Period + dev.Latency()):
	case <-ctx.Done():
	}
	return nil
}
