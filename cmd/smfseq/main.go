package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/zurustar/smfseq/pkg/app"
)

// soundfonts/ に GeneralUser-GS.sf2 を置くとバイナリに埋め込まれる
//
//go:embed soundfonts
var assets embed.FS

func main() {
	application := app.New(assets)
	if err := application.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
