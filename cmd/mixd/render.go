package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"golang.org/x/sync/errgroup"

	"pipelined.dev/mix/config"
	"pipelined.dev/mix/endpoint/wav"
	"pipelined.dev/mix/memory"
	"pipelined.dev/mix/packet"
	"pipelined.dev/mix/stage"
	"pipelined.dev/mix/timeline"
)

type renderCommand struct {
	in  string
	out string
}

func (cmd *renderCommand) Name() string {
	return "render"
}

func (cmd *renderCommand) Help() string {
	return "Mix wav file in real time and save the result"
}

func (cmd *renderCommand) Register(fs *flag.FlagSet, _ *config.Config) {
	fs.StringVar(&cmd.in, "in", "", "input wav file (required)")
	fs.StringVar(&cmd.out, "out", "", "output wav file (required)")
}

func (cmd *renderCommand) Validate() error {
	var message string
	if cmd.in == "" {
		message += "Missing -in required flag\n"
	}
	if cmd.out == "" {
		message += "Missing -out required flag\n"
	}
	if message != "" {
		return errors.New(message)
	}
	return nil
}

func (cmd *renderCommand) Run(ctx context.Context, cfg config.Config) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	s, err := openSession(cfg, cmd.in)
	if err != nil {
		return err
	}
	defer s.close()

	w, err := newPacketWriter(s, cfg)
	if err != nil {
		return err
	}
	sink, err := wav.CreateSink(cmd.out, s.feeder.Format())
	if err != nil {
		return err
	}
	if err := s.connect(cmd.out, w, 0); err != nil {
		sink.Close()
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.feed(ctx)
	})
	g.Go(func() error {
		return sink.Drain(ctx, w, cfg.Period/2)
	})
	err = g.Wait()
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	s.logger.WithField("frames", sink.Frames()).WithField("dropped", w.Dropped()).Info("rendered " + cmd.out)
	return nil
}

// newPacketWriter returns writer with a slab big enough for four periods.
func newPacketWriter(s *session, cfg config.Config) (*stage.PacketWriter, error) {
	f := s.feeder.Format()
	slotSize := cfg.PacketFrames * f.BytesPerFrame()
	slots := max(cfg.PacketSlots, 4*int(f.IntegerFramesPer(cfg.Period, timeline.Ceiling))/cfg.PacketFrames+1)
	heap, err := memory.NewHeap(int(powerOfTwo(slots)) * slotSize)
	if err != nil {
		return nil, err
	}
	slab, err := packet.NewSlab(heap, slotSize)
	if err != nil {
		return nil, err
	}
	w, err := stage.NewPacketWriter(f, slab, uint64(slab.Slots()))
	if err != nil {
		return nil, fmt.Errorf("packet writer: %w", err)
	}
	return w, nil
}
