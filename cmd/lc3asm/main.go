// Command lc3asm assembles LC-3 assembly source into the binary
// big-endian object image format pkg/vm.LoadImage reads.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/bassosimone/lc3vm/pkg/asm"
	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(0)
	var output string
	root := &cobra.Command{
		Use:   "lc3asm SOURCE.asm",
		Short: "Assemble LC-3 assembly into an object image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return assembleFile(args[0], output)
		},
	}
	root.Flags().StringVarP(&output, "output", "o", "", "output path (default: SOURCE with .obj extension)")
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func assembleFile(path, output string) error {
	fp, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fp.Close()

	result, errs := asm.Assemble(fp)
	if len(errs) != 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return fmt.Errorf("%d assembly error(s)", len(errs))
	}

	if output == "" {
		output = outputPath(path)
	}
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := out.Write(result.Bytes()); err != nil {
		return err
	}
	fmt.Printf("lc3asm: wrote %s (origin %#04x, %d word(s))\n", output, result.Origin, len(result.Words))
	return nil
}

// outputPath derives an object-file path from a source path by
// replacing its extension, or appending .obj if it has none.
func outputPath(src string) string {
	for i := len(src) - 1; i >= 0 && src[i] != '/'; i-- {
		if src[i] == '.' {
			return src[:i] + ".obj"
		}
	}
	return src + ".obj"
}
