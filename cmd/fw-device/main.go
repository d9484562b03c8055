// fw-device plays the board side of the upload protocol on a host
// machine: a one-shot bootloader mode and an interactive shell hosting
// the recoverable loader. Useful against fw-upload over a virtual
// serial port pair or a physical loopback.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/receiver"
	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/serial"
)

var (
	portFlag      string
	baudFlag      int
	capacityFlag  uint32
	baseFlag      uint32
	outFlag       string
	timeoutFlag   int
	idleFlag      int
	sizeInCRCFlag bool
)

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "fw-device",
		Short: "Receive firmware uploads like an iCE40HX8K board",
		Long: `fw-device implements the receiving end of the firmware upload
protocol, backed by an in-memory image region.

Two variants exist, matching the board:

  serve  - the resident bootloader: accepts exactly one upload and
           halts on any failure
  shell  - the interactive loader: reports failure reasons and re-arms
           for another attempt`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the one-shot bootloader",
		Long: `Wait for a single upload session and write the verified image to a
file. Any session failure is terminal, like the bootloader's halt; run
serve again to retry.`,
		RunE: runServe,
	}
	addCommonFlags(serveCmd)
	serveCmd.Flags().StringVarP(&outFlag, "out", "o", "firmware.bin", "File for the verified image")

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Run the interactive loader shell",
		RunE:  runShell,
	}
	addCommonFlags(shellCmd)
	shellCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Also save each verified image to this file")
	shellCmd.Flags().IntVar(&idleFlag, "idle-timeout", 60, "Seconds to wait for an upload to start (0 = forever)")

	rootCmd.AddCommand(serveCmd, shellCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (required)")
	cmd.Flags().IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "Baud rate")
	cmd.Flags().Uint32Var(&capacityFlag, "capacity", protocol.DefaultMaxImageSize, "Image region capacity in bytes")
	cmd.Flags().Uint32Var(&baseFlag, "base", 0, "Image base address within the region")
	cmd.Flags().IntVarP(&timeoutFlag, "timeout", "t", 2000, "Per-read timeout in milliseconds")
	cmd.Flags().BoolVar(&sizeInCRCFlag, "size-in-crc", false, "Include the size field in the CRC (shell loader harness)")
	cmd.MarkFlagRequired("port")
}

func receiverOptions(recoverable bool) []receiver.Option {
	opts := []receiver.Option{
		receiver.WithReadTimeout(millis(timeoutFlag)),
		receiver.WithDestinationBase(baseFlag),
		receiver.WithRecoverable(recoverable),
	}
	if sizeInCRCFlag {
		opts = append(opts, receiver.WithCRCScope(protocol.CRCSizeAndPayload))
	}
	return opts
}

func runServe(cmd *cobra.Command, args []string) error {
	port, err := serial.Open(portFlag, baudFlag)
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}
	defer port.Close()

	sink := receiver.NewRAMSink(capacityFlag)
	r := receiver.New(port, sink, receiverOptions(false)...)

	fmt.Printf("Bootloader armed on %s @ %d baud (capacity %d bytes)\n",
		portFlag, baudFlag, capacityFlag)

	res, err := r.Receive(context.Background())
	if err != nil {
		// The board variant halts here; we exit instead.
		return fmt.Errorf("loader halted: %w", err)
	}

	if err := os.WriteFile(outFlag, sink.Image(res.Base, res.Length), 0o644); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}

	fmt.Printf("Received %d bytes at 0x%X, CRC32 0x%08X\n", res.Length, res.Base, res.CRC)
	fmt.Printf("Image saved to %s\n", outFlag)
	return nil
}

func runShell(cmd *cobra.Command, args []string) error {
	port, err := serial.Open(portFlag, baudFlag)
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}
	defer port.Close()

	sink := receiver.NewRAMSink(capacityFlag)
	opts := append(receiverOptions(true),
		receiver.WithIdleTimeout(time.Duration(idleFlag)*time.Second))
	r := receiver.New(port, sink, opts...)

	var last *receiver.Result

	shell := ishell.New()
	shell.Println("iCE40HX8K loader shell")
	shell.Printf("Port %s @ %d baud, image region %d bytes\n",
		portFlag, baudFlag, capacityFlag)

	shell.AddCmd(&ishell.Cmd{
		Name: "upload",
		Help: "arm the loader and wait for one upload",
		Func: func(c *ishell.Context) {
			c.Println("Loader armed; start fw-upload on the host (Ctrl-C there cancels)")
			res, err := r.Receive(context.Background())
			switch {
			case err == nil:
				last = res
				c.Printf("OK: %d bytes at 0x%X, CRC32 0x%08X\n", res.Length, res.Base, res.CRC)
				if outFlag != "" {
					if werr := os.WriteFile(outFlag, sink.Image(res.Base, res.Length), 0o644); werr != nil {
						c.Printf("warning: failed to save image: %v\n", werr)
					} else {
						c.Printf("Image saved to %s\n", outFlag)
					}
				}
			case errors.Is(err, receiver.ErrCancelled):
				c.Println("Upload cancelled by host")
			case errors.Is(err, protocol.ErrTimeout):
				c.Println("No upload initiated")
			default:
				var fe *receiver.FailureError
				if errors.As(err, &fe) {
					c.Printf("NAK: %s\n", fe.Reason)
				} else {
					c.Printf("error: %v\n", err)
				}
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "show the last verified image",
		Func: func(c *ishell.Context) {
			if last == nil {
				c.Println("No image loaded")
				return
			}
			c.Printf("Image: %d bytes at 0x%X, CRC32 0x%08X\n", last.Length, last.Base, last.CRC)
		},
	})

	shell.Run()
	return nil
}
