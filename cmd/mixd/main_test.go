package main

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	gowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/mix/endpoint/wav"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
)

func newCLI(args ...string) *cli {
	return &cli{
		args:     append([]string{"mixd"}, args...),
		commands: []command{&renderCommand{}, &playCommand{}, &serveCommand{}},
	}
}

func TestParseArgs(t *testing.T) {
	name, args := parseArgs([]string{"mixd"})
	assert.Empty(t, name)
	assert.Nil(t, args)

	name, args = parseArgs([]string{"mixd", "render", "-in", "a.wav"})
	assert.Equal(t, "render", name)
	assert.Equal(t, []string{"-in", "a.wav"}, args)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"mix"}},
		{"unknown flag", []string{"render", "-nope"}},
		{"missing flags", []string{"render"}},
		{"invalid config", []string{"render", "-in", "a.wav", "-out", "b.wav", "-period", "0s"}},
		{"missing input", []string{"render", "-in", filepath.Join(t.TempDir(), "a.wav"), "-out", "b.wav"}},
		{"play missing flags", []string{"play"}},
		{"serve missing flags", []string{"serve", "-addr", ":0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, errorExitCode, newCLI(tt.args...).run(context.Background()))
		})
	}
}

func TestRender(t *testing.T) {
	f := format.Format{SampleType: format.Signed16, Channels: 2, FramesPerSecond: 48000}
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.wav")

	sink, err := wav.CreateSink(in, f)
	require.NoError(t, err)
	payload := make([]byte, 4800*f.BytesPerFrame())
	for i := 0; i < 4800*f.Channels; i++ {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(int16(i%1000)))
	}
	require.NoError(t, sink.Write(packet.Packet{
		View: packet.View{Format: f, Length: 4800, Payload: payload},
		Slot: packet.NoSlot,
	}))
	require.NoError(t, sink.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code := newCLI("render", "-in", in, "-out", out, "-period", "10ms", "-cpu", "2ms").run(ctx)
	require.Equal(t, successExitCode, code)

	feeder, err := wav.OpenFeeder(out, 480, 4)
	require.NoError(t, err)
	defer feeder.Close()
	assert.Equal(t, f, feeder.Format())

	// the whole input comes first, silence may follow until the stop.
	file, err := os.Open(out)
	require.NoError(t, err)
	defer file.Close()
	buf, err := gowav.NewDecoder(file).FullPCMBuffer()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(buf.Data), 4800*f.Channels)
	for i := 0; i < 4800*f.Channels; i++ {
		if !assert.Equal(t, i%1000, buf.Data[i], "sample %d", i) {
			break
		}
	}
	for i := 4800 * f.Channels; i < len(buf.Data); i++ {
		if !assert.Zero(t, buf.Data[i], "sample %d", i) {
			break
		}
	}
}
