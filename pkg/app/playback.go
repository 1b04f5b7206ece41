package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/zurustar/smfseq/pkg/driver"
	"github.com/zurustar/smfseq/pkg/render"
	"github.com/zurustar/smfseq/pkg/sequencer"
	"github.com/zurustar/smfseq/pkg/synth"
)

// ErrNoSoundFont is returned when audio output is requested but no SoundFont
// can be found.
var ErrNoSoundFont = errors.New("SoundFont file is required for audio output")

const (
	// releaseTail keeps the audio running after the last event so that
	// released notes can fade out.
	releaseTail = 1500 * time.Millisecond

	// offlineChunkFrames is the PCM chunk size used in headless mode.
	offlineChunkFrames = 1024
)

// session is one playback of one file.
type session struct {
	player *sequencer.Player
	queue  *sequencer.EventQueue
	synth  synth.Synth
	stream *render.Stream
}

// play 再生を実行
func (app *Application) play(ctx context.Context) error {
	s, err := app.newSession()
	if err != nil {
		return err
	}
	defer s.player.Close()

	started := time.Now()
	s.player.Start(s.stream.SampleClock())

	if app.config.Headless {
		err = app.renderOffline(ctx, s)
	} else {
		err = app.renderRealtime(ctx, s)
	}
	if err != nil {
		return err
	}

	app.logSummary(s, time.Since(started))
	return nil
}

// newSession opens the file and builds the playback pipeline.
func (app *Application) newSession() (*session, error) {
	player := sequencer.NewPlayer(nil)
	player.SetSampleRate(float64(app.config.SampleRate))
	player.SetLookaheadSamples(app.config.Lookahead)
	if err := player.Open(app.config.MIDIPath); err != nil {
		return nil, err
	}

	syn, err := app.newSynth()
	if err != nil {
		player.Close()
		return nil, err
	}

	q := sequencer.NewEventQueue()
	return &session{
		player: player,
		queue:  q,
		synth:  syn,
		stream: render.NewStream(q, syn),
	}, nil
}

// newSynth SoundFontを検索してシンセサイザーを作成
// ヘッドレスモードでSoundFontが見つからない場合は無音のRecorderを使う
func (app *Application) newSynth() (synth.Synth, error) {
	loc := findSoundFont(app.assets, app.config.SoundFontPath, app.config.MIDIPath)
	if loc == nil {
		if app.config.Headless {
			app.log.Warn("No SoundFont found, rendering silently", "searched", DefaultSoundFontName)
			return synth.NewRecorder(), nil
		}
		return nil, ErrNoSoundFont
	}

	sf, err := synth.LoadSoundFontFS(loc.FileSystem, loc.Path)
	if err != nil {
		return nil, err
	}
	app.log.Info("SoundFont loaded", "path", loc.Path, "embedded", loc.IsEmbedded)

	return synth.NewMeltySynth(sf, synth.Options{
		SampleRate: app.config.SampleRate,
		Voices:     app.config.Voices,
		BlockSize:  render.BlockFrames,
	})
}

// renderOffline pumps and renders on the calling goroutine as fast as
// possible. Every event is dispatched on its exact sample.
// With an output path the PCM is written to a WAV file, followed by the
// release tail.
func (app *Application) renderOffline(ctx context.Context, s *session) error {
	out := io.Discard
	if app.config.OutputPath != "" {
		f, err := os.Create(app.config.OutputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()

		ww, err := render.NewWAVWriter(f, app.config.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			if err := ww.Close(); err != nil {
				app.log.Error("Failed to finalize WAV file", "path", app.config.OutputPath, "error", err)
				return
			}
			app.log.Info("WAV file written", "path", app.config.OutputPath,
				"size", humanize.Bytes(uint64(ww.DataBytes())))
		}()
		out = ww
	}

	buf := make([]byte, offlineChunkFrames*render.BytesPerFrame)
	for {
		if err := ctx.Err(); err != nil {
			return app.interrupted(ctx, s)
		}
		s.player.Pump(s.queue, s.stream.SampleClock())
		if !s.player.IsPlaying() && s.queue.Empty() {
			break
		}
		if err := app.renderChunk(s, out, buf); err != nil {
			return err
		}
	}

	if app.config.OutputPath == "" {
		return nil
	}
	// 余韻
	tail := uint64(app.config.SampleRate) * uint64(releaseTail) / uint64(time.Second)
	for end := s.stream.SampleClock() + tail; s.stream.SampleClock() < end; {
		if err := app.renderChunk(s, out, buf); err != nil {
			return err
		}
	}
	return nil
}

func (app *Application) renderChunk(s *session, out io.Writer, buf []byte) error {
	n, err := s.stream.Read(buf)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if _, err := out.Write(buf[:n]); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// renderRealtime plays through Ebitengine/audio. The audio device pulls PCM
// from the stream while the driver keeps the queue filled.
func (app *Application) renderRealtime(ctx context.Context, s *session) error {
	audioCtx := audio.NewContext(app.config.SampleRate)
	out, err := audioCtx.NewPlayer(s.stream)
	if err != nil {
		return fmt.Errorf("failed to create audio player: %w", err)
	}
	defer out.Close()

	d := driver.New(s.player, s.queue, s.stream, app.config.PumpInterval)
	d.Start()
	out.Play()

	err = d.Wait(ctx)
	d.Stop()
	if err != nil {
		return app.interrupted(ctx, s)
	}

	// 余韻を鳴らしてから停止
	select {
	case <-time.After(releaseTail):
	case <-ctx.Done():
	}
	s.stream.Stop()
	return nil
}

// interrupted silences the synth after a timeout or interrupt.
func (app *Application) interrupted(ctx context.Context, s *session) error {
	s.stream.Stop()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		app.log.Info("Timeout reached, stopping playback", "timeout", app.config.Timeout)
	} else {
		app.log.Info("Playback interrupted")
	}
	return nil
}

// logSummary 再生結果をログに出力
func (app *Application) logSummary(s *session, elapsed time.Duration) {
	rendered := time.Duration(float64(s.stream.SampleClock()) / float64(app.config.SampleRate) * float64(time.Second))
	app.log.Info("Playback finished",
		"events", humanize.Comma(int64(s.stream.Dispatched())),
		"late", s.stream.Late(),
		"rendered", formatDuration(rendered),
		"elapsed", formatDuration(elapsed))

	for i, err := range s.player.TrackErrors() {
		if err != nil {
			app.log.Warn("Track ended early", "track", i, "error", err)
		}
	}
}
