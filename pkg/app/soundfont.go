package app

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zurustar/smfseq/pkg/fileutil"
)

// SoundFontLocation represents the location of a SoundFont file.
type SoundFontLocation struct {
	// Path is the path to the SoundFont file
	Path string
	// FileSystem is the FileSystem to use for loading (nil for external files)
	FileSystem fileutil.FileSystem
	// IsEmbedded indicates whether the SoundFont is embedded
	IsEmbedded bool
}

// DefaultSoundFontName is the default SoundFont filename to search for.
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// findSoundFont searches for a SoundFont file in the following order:
// 1. Explicit path (--soundfont or SOUNDFONT)
// 2. Embedded soundfonts directory
// 3. Current directory (external)
// 4. Directory of the MIDI file (external)
//
// Returns nil if nothing is found. An explicit path is returned as-is even
// if it does not exist, so that loading reports the real error.
func findSoundFont(assets fs.FS, explicit, midiPath string) *SoundFontLocation {
	// 1. 明示的に指定されたパス
	if explicit != "" {
		return &SoundFontLocation{Path: explicit}
	}

	// 2. 埋め込みsoundfontsディレクトリ
	if assets != nil {
		soundfontsPath := "soundfonts/" + DefaultSoundFontName
		if data, err := fs.ReadFile(assets, soundfontsPath); err == nil && len(data) > 0 {
			return &SoundFontLocation{
				Path:       DefaultSoundFontName, // FileSystemのベースパスが"soundfonts"なので、ファイル名だけ
				FileSystem: fileutil.NewEmbedFS(assets, "soundfonts"),
				IsEmbedded: true,
			}
		}
	}

	// 3. カレントディレクトリ
	if _, err := os.Stat(DefaultSoundFontName); err == nil {
		return &SoundFontLocation{Path: DefaultSoundFontName}
	}

	// 4. MIDIファイルと同じディレクトリ（大文字小文字を無視）
	if midiPath != "" {
		if path, err := fileutil.FindFileCaseInsensitive(filepath.Dir(midiPath), DefaultSoundFontName); err == nil {
			return &SoundFontLocation{Path: path}
		}
	}

	return nil
}
