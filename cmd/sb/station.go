package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/station"
	"github.com/zulandar/switchboard/internal/tool"
)

func newStationCmd() *cobra.Command {
	var (
		configPath   string
		port         int
		operatorURL  string
		advertiseURL string
		workerID     string
		toolNames    []string
	)

	cmd := &cobra.Command{
		Use:   "station",
		Short: "Run a worker station",
		Long:  "Starts a station: hosts the configured tools, registers with the operator, and heartbeats until stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStation(cmd, configPath, stationOverrides{
				port:         port,
				operatorURL:  operatorURL,
				advertiseURL: advertiseURL,
				workerID:     workerID,
				tools:        toolNames,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Switchboard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	cmd.Flags().StringVar(&operatorURL, "operator-url", "", "operator base URL (overrides config)")
	cmd.Flags().StringVar(&advertiseURL, "advertise-url", "", "URL the operator should reach this station at")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "stable worker id (default: operator-assigned)")
	cmd.Flags().StringSliceVar(&toolNames, "tools", nil, "tools to host (overrides config)")
	return cmd
}

type stationOverrides struct {
	port         int
	operatorURL  string
	advertiseURL string
	workerID     string
	tools        []string
}

func runStation(cmd *cobra.Command, configPath string, ov stationOverrides) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	applyStationOverrides(&cfg.Station, ov)

	tools, err := buildToolSet(cfg, cfg.Station.Tools)
	if err != nil {
		return err
	}

	st, err := station.New(station.Opts{
		Config: cfg.Station,
		Tools:  tools,
		Out:    cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	return st.Start(ctx)
}

// applyStationOverrides folds CLI flags into the loaded config. A --port
// override re-derives the advertise URL, which the config defaulting already
// computed from the configured port.
func applyStationOverrides(cfg *config.StationConfig, ov stationOverrides) {
	if ov.port != 0 {
		cfg.Port = ov.port
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "localhost"
		}
		cfg.AdvertiseURL = fmt.Sprintf("http://%s:%d", host, ov.port)
	}
	if ov.operatorURL != "" {
		cfg.OperatorURL = strings.TrimRight(ov.operatorURL, "/")
	}
	if ov.advertiseURL != "" {
		cfg.AdvertiseURL = strings.TrimRight(ov.advertiseURL, "/")
	}
	if ov.workerID != "" {
		cfg.WorkerID = ov.workerID
	}
	if len(ov.tools) > 0 {
		cfg.Tools = ov.tools
	}
}

// buildToolSet instantiates the named tools. The github tool works without
// a token but runs into GitHub's anonymous rate limits quickly.
func buildToolSet(cfg *config.Config, names []string) (tool.Set, error) {
	var tools []tool.Tool
	for _, name := range names {
		switch name {
		case "arithmetic":
			tools = append(tools, tool.NewArithmetic())
		case "github":
			tools = append(tools, tool.NewGitHub(cfg.GitHub.Token))
		default:
			return nil, fmt.Errorf("unknown tool %q (available: arithmetic, github)", name)
		}
	}
	return tool.NewSet(tools...)
}
