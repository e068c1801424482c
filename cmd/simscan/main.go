// simscan polls the SIM cards of a rack of GSM modules over their serial
// ports and keeps the latest telemetry per port.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"simscan/internal/devices"
	"simscan/internal/storage/csvimport"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(loadConfig()).ExecuteContext(ctx); err != nil {
		log.Fatalf("simscan: %v", err)
	}
}

func newRootCmd(cfg *config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "simscan",
		Short:         "SIM card telemetry scanner for serial GSM modules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "file the latest records are saved to")
	rootCmd.PersistentFlags().IntVar(&cfg.Baud, "baud", cfg.Baud, "serial baud rate")

	rootCmd.AddCommand(
		newScanCmd(cfg),
		newSMSCmd(cfg),
		newImportCmd(cfg),
		newPortsCmd(cfg),
		newServeCmd(cfg),
	)
	return rootCmd
}

// withApp wires the app for the duration of one command.
func withApp(cmd *cobra.Command, cfg *config, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newScanCmd(cfg *config) *cobra.Command {
	var (
		port      string
		deleteSMS bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan every attached port, or refresh the SMS of one port",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				guardModemManager(ctx, cfg.StopModemManager)

				snap, err := a.orch.Run(ctx, port, deleteSMS)
				if err != nil {
					return err
				}
				// Sink errors are already logged per sink.
				_ = a.sinks.Publish(ctx, snap)
				return printJSON(cmd.OutOrStdout(), snap.Records)
			})
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "scan only this port (SMS refresh, no unlock)")
	cmd.Flags().BoolVar(&deleteSMS, "delete-sms", false, "clear SIM message storage after the scan")
	cmd.Flags().BoolVar(&cfg.StopModemManager, "stop-modemmanager", cfg.StopModemManager, "stop ModemManager before scanning")
	return cmd
}

func newSMSCmd(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sms",
		Short: "Manage SIM message storage on one port",
	}

	var deletePort string
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete all SMS stored on the SIM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				if !a.orch.DeleteAllSMS(ctx, deletePort) {
					return fmt.Errorf("error deleting SMS on port %s", deletePort)
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"message": fmt.Sprintf("All SMS deleted on port %s.", deletePort),
				})
			})
		},
	}
	deleteCmd.Flags().StringVarP(&deletePort, "port", "p", "", "serial port")
	deleteCmd.MarkFlagRequired("port")

	var countPort string
	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Report used and total SMS slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				count, ok := a.orch.CountSMS(ctx, countPort)
				if !ok {
					return fmt.Errorf("error getting SMS count for port %s", countPort)
				}
				return printJSON(cmd.OutOrStdout(), count)
			})
		},
	}
	countCmd.Flags().StringVarP(&countPort, "port", "p", "", "serial port")
	countCmd.MarkFlagRequired("port")

	cmd.AddCommand(deleteCmd, countCmd)
	return cmd
}

func newImportCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import ICCID;PIN credentials from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				repo, err := a.requireRepo()
				if err != nil {
					return err
				}

				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				creds, err := csvimport.Parse(f)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				inserted, err := repo.BulkAdd(ctx, creds)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d credentials (%d already present)\n",
					inserted, len(creds), len(creds)-inserted)
				return nil
			})
		},
	}
}

func newPortsCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List attached serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := devices.Discoverer{Glob: cfg.PortGlob}.ListPorts()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ports)
		},
	}
}

func newServeCmd(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				guardModemManager(ctx, cfg.StopModemManager)
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().StringVar(&cfg.Host, "host", cfg.Host, "listen host")
	cmd.Flags().StringVar(&cfg.Port, "listen-port", cfg.Port, "listen port")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
