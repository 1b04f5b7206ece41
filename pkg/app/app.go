// Package app wires the sequencer, synthesizer and audio output into the
// smfseq command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"github.com/zurustar/smfseq/pkg/cli"
	"github.com/zurustar/smfseq/pkg/logger"
)

// ErrNoMIDIFile is returned when no MIDI file is given on the command line.
var ErrNoMIDIFile = errors.New("no MIDI file specified")

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config *cli.Config
	log    *slog.Logger
	assets fs.FS     // 埋め込みリソース（soundfonts/）
	out    io.Writer // --info の出力先
}

// New Applicationを作成
func New(assets fs.FS) *Application {
	return &Application{
		assets: assets,
		out:    os.Stdout,
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp {
		cli.PrintHelp()
		return nil
	}

	// 2. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if app.config.MIDIPath == "" {
		return ErrNoMIDIFile
	}

	// 3. ファイル情報の表示
	if app.config.Info {
		return app.printInfo(app.config.MIDIPaths)
	}

	app.log.Info("Application started", "file", app.config.MIDIPath,
		"sampleRate", app.config.SampleRate, "headless", app.config.Headless)

	// 4. 再生（Ctrl+C とタイムアウトで中断）
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if app.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.config.Timeout)
		defer cancel()
	}

	if err := app.play(ctx); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}

	app.log.Info("Application terminated normally")
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLogger(app.config.LogLevel); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}
