package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dualive/capture/pkg/config"
	"github.com/dualive/capture/pkg/device"
	_ "github.com/dualive/capture/pkg/device/synthetic"
	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
	pos "github.com/dualive/capture/pkg/os"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
)

var Version = "?"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "capture",
	Short:         "Live camera and microphone capture",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "capture %s\n", Version)
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices and their formats",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices(cmd.OutOrStdout())
	},
}

func newRunCmd() *cobra.Command {
	// flags are bound to a shadow config,
	// only the ones given on the command line override the loaded config
	var shadow, conf config.Config
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture until interrupted",
		PreRunE: func(cmd *cobra.Command, args []string) (err error) {
			if conf, err = config.New(cfgPath); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			fs := flag.NewFlagSet("run", flag.ContinueOnError)
			conf.ParseFlags(fs)
			cmd.Flags().Visit(func(f *flag.Flag) {
				if err == nil && fs.Lookup(f.Name) != nil {
					err = fs.Set(f.Name, f.Value.String())
				}
			})
			if err != nil {
				return err
			}
			return conf.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), conf)
		},
	}
	shadow.ParseFlags(cmd.Flags())
	return cmd
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file or directory (default is ./configs/config.yaml)")
	rootCmd.AddCommand(newRunCmd(), devicesCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, conf config.Config) error {
	var log *logger.Logger
	if conf.Log.JSON {
		log = logger.New(conf.Log.Debug)
	} else {
		log = logger.NewConsole(conf.Log.Debug, conf.Log.Tag, conf.Log.NoColor)
	}
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	a, err := newApp(conf, log)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	select {
	case <-pos.ExpectTermination():
		log.Info().Msg("shutting down")
	case <-a.Done():
		log.Warn().Msg("session has ended")
	}
	sctx, cancel := context.WithTimeout(context.Background(), conf.Capture.StopTimeout+5*time.Second)
	defer cancel()
	return a.Shutdown(sctx)
}

func listDevices(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tNAME\tPERMISSION\tFORMATS")
	for _, info := range device.List() {
		var perm device.Permission
		var formats []string
		switch info.Kind {
		case media.Video:
			cam, err := device.LookupCamera(info.ID)
			if err != nil {
				return err
			}
			perm = cam.Permission()
			for _, f := range cam.Formats() {
				formats = append(formats, f.String())
			}
		case media.Audio:
			mic, err := device.LookupMicrophone(info.ID)
			if err != nil {
				return err
			}
			perm = mic.Permission()
			for _, f := range mic.Formats() {
				formats = append(formats, f.String())
			}
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", info.ID, info.Kind, info.Name, perm, strings.Join(formats, ", "))
	}
	return w.Flush()
}
