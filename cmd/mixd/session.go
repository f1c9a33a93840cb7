package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/mix"
	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/config"
	"pipelined.dev/mix/endpoint/wav"
	"pipelined.dev/mix/log"
	"pipelined.dev/mix/metric"
	"pipelined.dev/mix/mixer"
	"pipelined.dev/mix/packet"
	"pipelined.dev/mix/stage"
)

const threadName = "mixd"

// session is a graph with a single mix thread feeding wav file into one
// consumer.
type session struct {
	logger   *logrus.Logger
	graph    *mix.Graph
	thread   *mixer.Thread
	feeder   *wav.Feeder
	stream   *packet.Stream
	producer *mix.ProducerNode
	consumer *mix.ConsumerNode
}

// openSession opens the input and builds the graph with the producer of
// the input stream.
func openSession(cfg config.Config, in string) (*session, error) {
	feeder, err := wav.OpenFeeder(in, cfg.PacketFrames, cfg.PacketSlots)
	if err != nil {
		return nil, err
	}
	stream, err := packet.NewStream(feeder.Format(), powerOfTwo(cfg.PacketSlots))
	if err != nil {
		feeder.Close()
		return nil, err
	}
	logger := log.New(cfg.Debug)
	g := mix.NewGraph(mix.WithLogger(logger))
	s := &session{
		logger: logger,
		graph:  g,
		feeder: feeder,
		stream: stream,
	}
	s.thread, err = g.CreateThread(mix.ThreadOptions{
		Name:         threadName,
		Period:       cfg.Period,
		CPUPerPeriod: cfg.CPUPerPeriod,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	s.producer, err = g.CreateProducer(mix.ProducerOptions{
		Name:           in,
		Format:         feeder.Format(),
		Reference:      clock.System(),
		Direction:      stage.Output,
		Stream:         stream,
		StreamCapacity: cfg.PacketSlots,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"input":  in,
		"format": feeder.Format(),
		"period": cfg.Period,
	}).Info("session opened")
	return s, nil
}

func powerOfTwo(n int) uint64 {
	c := uint64(2)
	for c < uint64(n) {
		c *= 2
	}
	return c
}

// connect creates the consumer writing into w.
func (s *session) connect(name string, w stage.Writer, delay time.Duration) error {
	c, err := s.graph.CreateConsumer(mix.ConsumerOptions{
		Name:          name,
		Format:        s.feeder.Format(),
		Reference:     clock.System(),
		Direction:     stage.Output,
		Thread:        s.thread.ID(),
		Writer:        w,
		ExternalDelay: delay,
	})
	if err != nil {
		return err
	}
	if err := s.graph.CreateEdge(s.producer.ID(), c.ID()); err != nil {
		return err
	}
	s.consumer = c
	return nil
}

// feed starts the pipeline and pushes the whole input. Consumer is stopped
// once every packet is released.
func (s *session) feed(ctx context.Context) error {
	at, err := s.startTime()
	if err != nil {
		return err
	}
	if err := s.producer.Start(stage.StartCommand{StartTime: at}); err != nil {
		return err
	}
	if err := s.consumer.Start(stage.StartCommand{StartTime: at, Callback: func(w stage.When, err error) {
		if err != nil {
			s.logger.WithError(err).Warn("consumer start")
			return
		}
		s.logger.WithField("at", w.ReferenceTime).Debug("consumer started")
	}}); err != nil {
		return err
	}

	frames, err := s.feeder.Feed(ctx, s.stream)
	if err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	s.logger.WithField("frames", frames).Info("input fed")

	stopped := make(chan error, 1)
	if err := s.consumer.Stop(stage.StopCommand{Callback: func(_ stage.When, err error) {
		stopped <- err
	}}); err != nil {
		return err
	}
	select {
	case err := <-stopped:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startTime returns the time the first input frame is presented at. The
// first consumer job runs one period from now and its window starts with
// the first frame.
func (s *session) startTime() (*stage.RealTime, error) {
	lead, err := s.graph.MaxDownstreamOutputPipelineDelay(s.producer.ID())
	if err != nil {
		return nil, err
	}
	return &stage.RealTime{
		Clock: stage.SystemMonotonic,
		Time:  clock.System().Now() + int64(s.thread.Period()+lead),
	}, nil
}

func (s *session) close() error {
	err := s.graph.Close()
	if cerr := s.feeder.Close(); err == nil {
		err = cerr
	}
	fields := logrus.Fields{}
	for k, v := range metric.Get(threadName) {
		fields[k] = v
	}
	s.logger.WithFields(fields).Info("session closed")
	return err
}
