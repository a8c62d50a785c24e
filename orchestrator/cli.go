package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mihkeltiks/mpi-hello/config"
	"github.com/mihkeltiks/mpi-hello/logger"
	"github.com/mihkeltiks/mpi-hello/orchestrator/gui/websocket"
	"github.com/mihkeltiks/mpi-hello/orchestrator/launcher"
	"github.com/mihkeltiks/mpi-hello/utils"
)

const configEnv = "MPIRUN_CONFIG"

// RootOptions holds the flags of the mpirun command.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Flags      config.Config
}

// NewRootCommand creates the mpirun command.
func NewRootCommand(getenv func(string) string, stdout, stderr io.Writer) *cobra.Command {
	return newRootCommand(&RootOptions{}, getenv, stdout, stderr)
}

func newRootCommand(opts *RootOptions, getenv func(string) string, stdout, stderr io.Writer) *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "mpirun [flags] <program> [args...]",
		Short: "Run a program as a group of cooperating processes",
		Long: "mpirun starts np copies of a program, gives each a distinct rank and " +
			"serves the group's registration, barriers and messages until every copy has exited.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolveConfig(cmd, getenv)
			if err != nil {
				return err
			}

			logger.SetMaxLogLevel(cfg.Level())

			target, err := utils.ResolveTarget(args[0])
			if err != nil {
				return fmt.Errorf("invalid program: %w", err)
			}

			l := launcher.New(cfg, launcher.ExecSpawner{}, stdout, stderr)

			if cfg.EventsAddress != "" {
				hub := websocket.NewHub()

				address, err := websocket.InitServer(cmd.Context(), cfg.EventsAddress, hub)
				if err != nil {
					return fmt.Errorf("failed to start event stream: %w", err)
				}
				logger.Info("job events on ws://%s", address)

				if cfg.WaitForEventClient {
					logger.Info("waiting for an event client to connect")
					if err := hub.WaitForClientConnection(cmd.Context()); err != nil {
						return err
					}
				}

				l.SetEventHub(hub)
			}

			return l.Run(cmd.Context(), target, args[1:])
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	// everything after the program belongs to the program
	flags.SetInterspersed(false)

	flags.StringVar(&opts.ConfigPath, "config", "", "YAML config file (default $"+configEnv+")")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.IntVarP(&opts.Flags.NumProcesses, "np", "n", defaults.NumProcesses, "number of processes")
	flags.StringVar(&opts.Flags.Address, "address", defaults.Address, "listen address for the nodes")
	flags.DurationVar(&opts.Flags.StartupTimeout, "startup-timeout", defaults.StartupTimeout, "time allowed for every process to register")
	flags.StringVar(&opts.Flags.EventsAddress, "events-address", defaults.EventsAddress, "serve job events over websocket on this address")
	flags.BoolVar(&opts.Flags.WaitForEventClient, "events-wait", defaults.WaitForEventClient, "start the job once an event client is connected")
	flags.BoolVar(&opts.Flags.TagOutput, "tag-output", defaults.TagOutput, "prefix output lines with job id, rank and stream")
	flags.BoolVar(&opts.Flags.ForwardNodeLogs, "forward-logs", defaults.ForwardNodeLogs, "print node logs through the launcher")
	flags.StringVar(&opts.Flags.LogLevel, "log-level", defaults.LogLevel, "error|warn|info|verbose|debug")

	return cmd
}

// resolveConfig layers defaults, the config file and explicitly set flags.
func (o *RootOptions) resolveConfig(cmd *cobra.Command, getenv func(string) string) (*config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		path = getenv(configEnv)
	}

	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("np") {
		cfg.NumProcesses = o.Flags.NumProcesses
	}
	if flags.Changed("address") {
		cfg.Address = o.Flags.Address
	}
	if flags.Changed("startup-timeout") {
		cfg.StartupTimeout = o.Flags.StartupTimeout
	}
	if flags.Changed("events-address") {
		cfg.EventsAddress = o.Flags.EventsAddress
	}
	if flags.Changed("events-wait") {
		cfg.WaitForEventClient = o.Flags.WaitForEventClient
	}
	if flags.Changed("tag-output") {
		cfg.TagOutput = o.Flags.TagOutput
	}
	if flags.Changed("forward-logs") {
		cfg.ForwardNodeLogs = o.Flags.ForwardNodeLogs
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.Flags.LogLevel
	}
	if o.Verbose && !flags.Changed("log-level") {
		cfg.LogLevel = logger.Levels.Verbose.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
