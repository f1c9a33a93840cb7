package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pipelined.dev/mix/config"
)

type command interface {
	Name() string
	Help() string
	Register(*flag.FlagSet, *config.Config)
	Run(context.Context, config.Config) error
}

type cli struct {
	args     []string
	commands []command
}

func (c *cli) run(ctx context.Context) int {
	cmdName, args := parseArgs(c.args)
	if cmdName == "" {
		c.printUsage()
		return errorExitCode
	}

	for _, cmd := range c.commands {
		if cmd.Name() != cmdName {
			continue
		}
		cfg := config.Load()
		flags := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		registerConfig(flags, &cfg)
		cmd.Register(flags, &cfg)
		if err := flags.Parse(args); err != nil {
			return errorExitCode
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
			return errorExitCode
		}
		if err := cmd.Run(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
			return errorExitCode
		}
		return successExitCode
	}
	c.printUsage()
	return errorExitCode
}

// registerConfig binds flags shared by all commands. Flags override
// environment.
func registerConfig(fs *flag.FlagSet, cfg *config.Config) {
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	fs.DurationVar(&cfg.Period, "period", cfg.Period, "mix thread period")
	fs.DurationVar(&cfg.CPUPerPeriod, "cpu", cfg.CPUPerPeriod, "cpu time budget per period")
	fs.IntVar(&cfg.PacketFrames, "packet-frames", cfg.PacketFrames, "frames per input packet")
	fs.IntVar(&cfg.PacketSlots, "packet-slots", cfg.PacketSlots, "packets in flight")
}

const (
	successExitCode = 0
	errorExitCode   = 1
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	c := cli{
		args:     os.Args,
		commands: []command{&renderCommand{}, &playCommand{}, &serveCommand{}},
	}
	code := c.run(ctx)
	cancel()
	os.Exit(code)
}

func parseArgs(args []string) (string, []string) {
	if len(args) < 2 {
		return "", nil
	}
	return args[1], args[2:]
}

func (c *cli) printUsage() {
	fmt.Println("mixd mixes wav files through a real-time mixing graph")
	fmt.Println()
	fmt.Println("Usage: mixd <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range c.commands {
		fmt.Printf("\t%s\t%s\n", cmd.Name(), cmd.Help())
	}
}
