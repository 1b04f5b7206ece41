package app

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/remeh/sizedwaitgroup"

	"github.com/zurustar/smfseq/pkg/fileutil"
	"github.com/zurustar/smfseq/pkg/sequencer"
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

// formatDuration renders d as e.g. "2m 5s".
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return "0s"
	}
	return durafmt.Parse(d).LimitFirstN(2).Format(shortUnits)
}

// fileInfo is the scan result of one file.
type fileInfo struct {
	path string
	size int64
	info *sequencer.Info
	err  error
}

// scanFiles 複数ファイルを並列に解析（結果は引数の順）
func (app *Application) scanFiles(paths []string) []fileInfo {
	results := make([]fileInfo, len(paths))
	wg := sizedwaitgroup.New(runtime.NumCPU())
	for i, path := range paths {
		wg.Add()
		go func(i int, path string) {
			defer wg.Done()
			results[i] = app.scanFile(path)
		}(i, path)
	}
	wg.Wait()
	return results
}

func (app *Application) scanFile(path string) fileInfo {
	res := fileInfo{path: path}

	stream, err := fileutil.OpenStream(nil, path)
	if err != nil {
		res.err = fmt.Errorf("failed to open MIDI file: %w", err)
		return res
	}
	defer stream.Close()

	if st, err := stream.Stat(); err == nil {
		res.size = st.Size()
	}

	res.info, err = sequencer.ReadInfo(stream, float64(app.config.SampleRate))
	if err != nil {
		res.err = fmt.Errorf("%s: %w", path, err)
	}
	return res
}

// printInfo ファイル情報を表示
// 解析できなかったファイルはスキップし、エラーをまとめて返す
func (app *Application) printInfo(paths []string) error {
	var errs []error
	printed := 0
	w := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	for _, res := range app.scanFiles(paths) {
		if res.err != nil {
			app.log.Error("Failed to read MIDI file", "path", res.path, "error", res.err)
			errs = append(errs, res.err)
			continue
		}
		if printed > 0 {
			fmt.Fprintln(w)
		}
		app.writeInfo(w, res)
		printed++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (app *Application) writeInfo(w io.Writer, res fileInfo) {
	info := res.info
	fmt.Fprintf(w, "File:\t%s (%s)\n", res.path, humanize.Bytes(uint64(res.size)))
	fmt.Fprintf(w, "Format:\t%d\n", info.Format)
	fmt.Fprintf(w, "Divisions:\t%d\n", info.Divisions)
	fmt.Fprintf(w, "Tracks:\t%d\n", len(info.Tracks))
	for _, trk := range info.Tracks {
		name := trk.Name
		if name == "" {
			name = "-"
		}
		line := fmt.Sprintf("  #%d\t%s\t%s", trk.Index, name, humanize.Bytes(uint64(trk.Length)))
		if trk.Err != nil {
			line += fmt.Sprintf("\terror: %v", trk.Err)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "Events:\t%s (%s notes)\n", humanize.Comma(int64(info.Events)), humanize.Comma(int64(info.Notes)))
	fmt.Fprintf(w, "Duration:\t%s (%s samples at %d Hz)\n",
		formatDuration(info.Duration), humanize.Comma(int64(info.Samples)), app.config.SampleRate)
}
