package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSampleRate   = 48000
	DefaultVoices       = 16
	DefaultPumpInterval = 10 * time.Millisecond

	minSampleRate = 8000
	maxSampleRate = 192000
	maxVoices     = 256
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	MIDIPath      string        // 再生するSMFファイルのパス
	MIDIPaths     []string      // 全ての位置引数（--info は複数ファイルを受け付ける）
	SoundFontPath string        // SoundFontのパス（空の場合は自動検索）
	SampleRate    int           // 出力サンプルレート（Hz）
	Voices        int           // 最大同時発音数
	PumpInterval  time.Duration // キュー補充の間隔
	Lookahead     uint64        // 先読みサンプル数（0は無制限）
	Timeout       time.Duration // タイムアウト時間（0は無制限）
	LogLevel      string        // ログレベル（debug, info, warn, error）
	Headless      bool          // ヘッドレスモード（音声出力なしでオフライン再生）
	OutputPath    string        // WAV出力先（指定時はヘッドレスモード）
	Info          bool          // ファイル情報を表示して終了
	ShowHelp      bool          // ヘルプ表示フラグ
}

// boolFlags は値を取らないフラグ
var boolFlags = map[string]bool{
	"-h": true, "--help": true, "-help": true,
	"-i": true, "--info": true, "-info": true,
	"--headless": true, "-headless": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("smfseq", flag.ContinueOnError)

	config := &Config{}

	var timeoutSec int
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.StringVar(&config.SoundFontPath, "soundfont", "", "SoundFontファイルのパス")
	fs.StringVar(&config.SoundFontPath, "s", "", "SoundFontファイルのパス（短縮形）")
	fs.IntVar(&config.SampleRate, "sample-rate", DefaultSampleRate, "出力サンプルレート（Hz）")
	fs.IntVar(&config.SampleRate, "r", DefaultSampleRate, "出力サンプルレート（短縮形）")
	fs.IntVar(&config.Voices, "voices", DefaultVoices, "最大同時発音数")
	fs.DurationVar(&config.PumpInterval, "pump-interval", DefaultPumpInterval, "キュー補充の間隔")
	fs.Uint64Var(&config.Lookahead, "lookahead", 0, "先読みサンプル数（0は無制限）")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.StringVar(&config.OutputPath, "output", "", "WAVファイルに書き出す")
	fs.StringVar(&config.OutputPath, "o", "", "WAVファイルに書き出す（短縮形）")
	fs.BoolVar(&config.Info, "info", false, "ファイル情報を表示して終了")
	fs.BoolVar(&config.Info, "i", false, "ファイル情報を表示して終了（短縮形）")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !config.Headless {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	// ファイル出力はオフラインで行う
	if config.OutputPath != "" {
		config.Headless = true
	}

	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	if config.SoundFontPath == "" {
		config.SoundFontPath = os.Getenv("SOUNDFONT")
	}

	if config.SampleRate == DefaultSampleRate {
		if rateEnv := os.Getenv("SAMPLE_RATE"); rateEnv != "" {
			rate, err := strconv.Atoi(rateEnv)
			if err != nil {
				return nil, fmt.Errorf("invalid SAMPLE_RATE: %q", rateEnv)
			}
			config.SampleRate = rate
		}
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// ログレベルの検証
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	if config.SampleRate < minSampleRate || config.SampleRate > maxSampleRate {
		return nil, fmt.Errorf("sample rate must be between %d and %d, got %d", minSampleRate, maxSampleRate, config.SampleRate)
	}
	if config.Voices < 1 || config.Voices > maxVoices {
		return nil, fmt.Errorf("voices must be between 1 and %d, got %d", maxVoices, config.Voices)
	}
	if config.PumpInterval <= 0 {
		return nil, fmt.Errorf("pump interval must be positive, got %v", config.PumpInterval)
	}

	// 位置引数（SMFファイルのパス）
	if fs.NArg() > 0 {
		config.MIDIPath = fs.Arg(0)
		config.MIDIPaths = fs.Args()
	}

	return config, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			// -flag=value 形式、またはブール型フラグは次の引数を取らない
			if strings.Contains(arg, "=") || boolFlags[arg] {
				continue
			}
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				i++
				flags = append(flags, args[i])
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `smfseq - Standard MIDI File sequencer

Usage:
  smfseq [options] <midi-file>
  smfseq --info <midi-file>...

Arguments:
  midi-file    再生するSMFファイル（フォーマット0/1、最大16トラック）

Options:
  -s, --soundfont <path>      SoundFontファイル（省略時は自動検索）
  -r, --sample-rate <hz>      出力サンプルレート（デフォルト: 48000）
  --voices <n>                最大同時発音数（デフォルト: 16）
  --pump-interval <duration>  キュー補充の間隔（デフォルト: 10ms）
  --lookahead <samples>       先読みサンプル数（デフォルト: 0 = 無制限）
  -t, --timeout <seconds>     指定秒数後に再生を終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  -i, --info                  ファイル情報を表示して終了
  --headless                  ヘッドレスモード（音声出力なしで最後まで処理）
  -o, --output <file.wav>     WAVファイルに書き出す（ヘッドレスモード）
  -h, --help                  このヘルプを表示

Environment Variables:
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル
  SOUNDFONT=<path>            SoundFontファイル
  SAMPLE_RATE=<hz>            出力サンプルレート

Examples:
  smfseq song.mid                      既定のSoundFontで再生
  smfseq -s GeneralUser.sf2 song.mid   SoundFontを指定して再生
  smfseq --info song.mid               トラック構成と演奏時間を表示
  smfseq --headless song.mid           音声出力なしで最後まで処理
  smfseq -o song.wav song.mid          WAVファイルに書き出す
  smfseq --timeout 10 song.mid         10秒後に自動終了
`)
}
