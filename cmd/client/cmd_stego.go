package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/njit/courier/config"
	"github.com/njit/courier/stego"
	"github.com/spf13/cobra"
)

var (
	stegoSeed   int64
	stegoRandom bool
	scanExts    []string
)

// hideCmd writes a copy of a BMP carrying a text
var hideCmd = &cobra.Command{
	Use:   "hide <in.bmp> <out.bmp> <text>",
	Short: "Hide a text in the least significant bits of a BMP",
	Args:  cobra.ExactArgs(3),
	RunE: func(_ *cobra.Command, args []string) error {
		img, err := stego.LoadBMP(args[0])
		if err != nil {
			return err
		}
		marked, err := stego.Hide(img, args[2], stegoOptions())
		if err != nil {
			return err
		}
		if err := stego.SaveBMP(marked, args[1]); err != nil {
			return err
		}
		fmt.Printf("%d bytes hidden in %s\n", len(args[2]), args[1])
		return nil
	},
}

// extractCmd prints the text hidden in a BMP
var extractCmd = &cobra.Command{
	Use:   "extract <in.bmp>",
	Short: "Print the text hidden in a BMP",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		img, err := stego.LoadBMP(args[0])
		if err != nil {
			return err
		}
		text, err := stego.Extract(img, stegoOptions())
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

// scanCmd runs extract on every carrier in a directory
var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Extract hidden texts from every BMP in a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		return scanDir(os.Stdout, dir, carrierExtensions(scanExts), stegoOptions())
	},
}

func init() {
	for _, cmd := range []*cobra.Command{hideCmd, extractCmd, scanCmd} {
		cmd.Flags().Int64Var(&stegoSeed, "seed", config.DefaultStegoSeed, "Seed of the pixel order")
		cmd.Flags().BoolVar(&stegoRandom, "random", true, "Use seeded random pixel positions instead of sequential ones")
	}
	scanCmd.Flags().StringSliceVar(&scanExts, "ext", []string{".bmp"}, "Extensions of the files to scan")
}

func stegoOptions() stego.Options {
	return stego.Options{Random: stegoRandom, Seed: stegoSeed}
}

func carrierExtensions(exts []string) mapset.Set[string] {
	set := mapset.NewSet[string]()
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set.Add(ext)
	}
	return set
}

// scanDir prints "<name>: <text>" for every carrier holding a message.
func scanDir(out io.Writer, dir string, exts mapset.Set[string], opts stego.Options) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && exts.Contains(strings.ToLower(filepath.Ext(e.Name()))) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		img, err := stego.LoadBMP(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(out, "%s: unreadable: %v\n", name, err)
			continue
		}
		text, err := stego.Extract(img, opts)
		switch {
		case errors.Is(err, stego.ErrNoMessage):
			fmt.Fprintf(out, "%s: no message\n", name)
		case err != nil:
			fmt.Fprintf(out, "%s: %v\n", name, err)
		default:
			fmt.Fprintf(out, "%s: %s\n", name, text)
		}
	}
	return nil
}
