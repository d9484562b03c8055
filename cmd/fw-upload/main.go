package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/detect"
	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/sender"
	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag      string
	baudFlag      int
	timeoutFlag   int
	sizeInCRCFlag bool
	verboseFlag   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fw-upload",
		Short: "Upload firmware to iCE40HX8K RISC-V boards",
		Long: `fw-upload streams a firmware image over the board's UART to the
resident bootloader or the shell loader.

The transfer is chunked, acknowledged per chunk, and verified with a
CRC32 computed independently on both ends.`,
	}

	// Upload command
	uploadCmd := &cobra.Command{
		Use:   "upload <firmware.bin>",
		Short: "Upload a firmware image",
		Long: `Upload a firmware image to a waiting loader.

The loader must already be armed: either the board was just reset into
the resident bootloader, or the shell's upload command is running.`,
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}
	uploadCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	uploadCmd.Flags().IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "Baud rate")
	uploadCmd.Flags().IntVarP(&timeoutFlag, "timeout", "t", 2000, "Per-read timeout in milliseconds")
	uploadCmd.Flags().BoolVar(&sizeInCRCFlag, "size-in-crc", false, "Include the size field in the CRC (shell loader harness)")
	uploadCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log every protocol phase")

	// Probe command
	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Find ports with an armed loader",
		Long: `Probe serial ports for an armed loader by performing a ready
handshake and aborting with a zero-size session.

Only safe against the shell loader: the resident bootloader halts on
the aborted session and needs a reset afterwards.`,
		RunE: runProbe,
	}
	probeCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (scan all if not specified)")
	probeCmd.Flags().IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "Baud rate")

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fw-upload %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	rootCmd.AddCommand(uploadCmd, probeCmd, versionCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	firmwarePath := args[0]

	// Read firmware file
	firmware, err := os.ReadFile(firmwarePath)
	if err != nil {
		return fmt.Errorf("failed to read firmware file: %w", err)
	}
	if len(firmware) > protocol.DefaultMaxImageSize {
		return fmt.Errorf("firmware too large: %d bytes (max %d)",
			len(firmware), protocol.DefaultMaxImageSize)
	}

	fmt.Printf("Firmware: %s (%d bytes)\n", firmwarePath, len(firmware))

	// Find or use specified port
	portName := portFlag
	if portName == "" {
		fmt.Println("Probing for an armed loader...")
		result, err := detect.DetectDevice(baudFlag)
		if err != nil {
			return fmt.Errorf("loader detection failed: %w", err)
		}
		portName = result.Port
		fmt.Printf("Found loader on %s\n", result.Port)
	}

	// Open port
	port, err := serial.Open(portName, baudFlag)
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}
	defer port.Close()

	fmt.Printf("Port: %s @ %d baud\n", portName, baudFlag)

	// Discard shell echo or banner bytes before the handshake.
	if err := port.Flush(); err != nil {
		return fmt.Errorf("failed to flush port: %w", err)
	}

	totalChunks := (len(firmware) + protocol.ChunkSize - 1) / protocol.ChunkSize
	bar := progressbar.NewOptions(totalChunks,
		progressbar.OptionSetDescription("Uploading"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	opts := []sender.Option{
		sender.WithReadTimeout(millis(timeoutFlag)),
		sender.WithProgressCallback(func(sent, total int) {
			bar.Set((sent + protocol.ChunkSize - 1) / protocol.ChunkSize)
		}),
	}
	if sizeInCRCFlag {
		opts = append(opts, sender.WithCRCScope(protocol.CRCSizeAndPayload))
	}
	if verboseFlag {
		opts = append(opts, sender.WithLogger(stderrLogger{}))
	}

	u := sender.New(port, opts...)
	stats, err := u.Upload(context.Background(), firmware)
	bar.Finish()

	if stats != nil {
		fmt.Printf("\nLocal CRC:  0x%08X\n", stats.LocalCRC)
		fmt.Printf("Device CRC: 0x%08X\n", stats.DeviceCRC)
	}
	if err != nil {
		var de *sender.DesyncError
		if errors.As(err, &de) {
			return fmt.Errorf("upload desynchronized: %w", err)
		}
		return fmt.Errorf("upload failed: %w", err)
	}

	rate := float64(stats.BytesSent) / stats.Elapsed.Seconds() / 1024
	fmt.Printf("Uploaded %d bytes in %d chunks (%.1f KB/s)\n",
		stats.BytesSent, stats.Chunks, rate)
	fmt.Println("CRC match - upload verified")
	return nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	if portFlag != "" {
		result, err := detect.DetectOnPort(portFlag, baudFlag)
		if err != nil {
			return fmt.Errorf("no loader on %s: %w", portFlag, err)
		}
		fmt.Printf("Armed loader on %s\n", result.Port)
		return nil
	}

	fmt.Println("Scanning serial ports...")
	devices, err := detect.ListDevices(baudFlag)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No armed loaders found")
		return nil
	}

	for _, d := range devices {
		fmt.Printf("Armed loader on %s\n", d.Port)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}

	return nil
}
