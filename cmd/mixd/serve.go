package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"pipelined.dev/mix/config"
	"pipelined.dev/mix/endpoint/webrtc"
)

const (
	opusFrame       = 20 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

type serveCommand struct {
	in string
}

func (cmd *serveCommand) Name() string {
	return "serve"
}

func (cmd *serveCommand) Help() string {
	return "Stream wav file to WebRTC peers"
}

func (cmd *serveCommand) Register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cmd.in, "in", "", "input wav file (required)")
	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "http listen address")
}

func (cmd *serveCommand) Run(ctx context.Context, cfg config.Config) error {
	if cmd.in == "" {
		return errors.New("Missing -in required flag")
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
	framer, err := webrtc.NewFramer(s.feeder.Format(), opusFrame)
	if err != nil {
		return err
	}
	if err := s.connect("webrtc", w, 0); err != nil {
		return err
	}
	b := webrtc.NewBroadcaster()
	defer b.Close()
	h := webrtc.NewHandler(b, s.feeder.Format(), framer.Duration(), s.logger)
	defer h.Close()
	streamer := webrtc.NewStreamer(framer, b, s.logger)

	mux := http.NewServeMux()
	mux.Handle("/offer", h)
	mux.Handle("/debug/vars", expvar.Handler())
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				s.logger.WithError(err).Warn("http shutdown")
			}
		}()
		p, pctx := errgroup.WithContext(gctx)
		p.Go(func() error {
			return s.feed(pctx)
		})
		p.Go(func() error {
			return streamer.Run(pctx, w, cfg.Period/2)
		})
		return p.Wait()
	})
	return g.Wait()
}
