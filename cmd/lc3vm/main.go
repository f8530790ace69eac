// Command lc3vm runs LC-3 object images on the LC-3 virtual machine.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bassosimone/lc3vm/internal/console"
	"github.com/bassosimone/lc3vm/pkg/vm"
	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(0)
	root := &cobra.Command{
		Use:   "lc3vm",
		Short: "Run and inspect LC-3 object images",
	}
	root.AddCommand(newRunCmd(), newDisasCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var verbose, debug bool
	cmd := &cobra.Command{
		Use:   "run IMAGE [IMAGE...]",
		Short: "Load one or more images and execute them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(os.Stderr, "usage: lc3vm run IMAGE [IMAGE...]")
				os.Exit(2)
			}
			os.Exit(runImages(args, verbose, debug))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "trace each fetched instruction")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "pause for input before every instruction")
	return cmd
}

func newDisasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disas IMAGE",
		Short: "Disassemble an image to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disasImage(args[0])
		},
	}
}

// runImages loads every image in order, later images overwriting
// earlier ones where they overlap, and drives the fetch-execute loop
// to completion. It returns the process exit code: 0 on normal halt,
// 1 when an image cannot be read, nonzero when an interrupt signal
// arrives mid-run.
func runImages(paths []string, verbose, debug bool) int {
	con, err := console.Open(os.Stdin, os.Stdout)
	if err != nil {
		log.Printf("lc3vm: cannot open console: %v", err)
		return 1
	}
	defer con.Restore()

	machine := vm.New(con)
	for _, p := range paths {
		if err := machine.LoadImageFile(p); err != nil {
			con.Restore()
			log.Printf("lc3vm: %v", err)
			return 1
		}
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	interrupted := make(chan struct{})
	go func() {
		<-sigc
		close(interrupted)
	}()

	for {
		select {
		case <-interrupted:
			con.Restore()
			return 130
		default:
		}
		instr := machine.Fetch()
		if verbose {
			log.Printf("lc3vm: %s", machine)
			log.Printf("lc3vm: %#016b %s", instr, vm.Disassemble(instr))
		}
		if debug {
			log.Printf("lc3vm: paused, press enter to continue...")
			fmt.Scanln()
		}
		if err := machine.Execute(instr); err != nil {
			con.Restore()
			if errors.Is(err, vm.ErrHalted) {
				return 0
			}
			log.Printf("lc3vm: %v", err)
			return 1
		}
	}
}

func disasImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", vm.ErrImageLoad, path, err)
	}
	defer f.Close()

	origin, words, err := vm.ReadImage(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", vm.ErrImageLoad, path, err)
	}
	for i, word := range words {
		addr := origin + uint16(i)
		fmt.Printf("%#04x  %#016b  %s\n", addr, word, vm.Disassemble(word))
	}
	return nil
}
