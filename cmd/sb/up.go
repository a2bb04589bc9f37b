package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/operator"
	"github.com/zulandar/switchboard/internal/station"
)

func newUpCmd() *cobra.Command {
	var (
		configPath string
		stations   int
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Run the operator and stations in one process",
		Long:  "Starts the operator plus N stations on sequential ports. Meant for local development; production runs them as separate processes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd, configPath, stations)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Switchboard config file")
	cmd.Flags().IntVarP(&stations, "stations", "n", 1, "number of stations to start")
	return cmd
}

func runUp(cmd *cobra.Command, configPath string, stations int) error {
	if stations < 1 {
		return fmt.Errorf("need at least one station, got %d", stations)
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	gormDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	senders, err := buildSenders(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	op := operator.New(operator.Opts{
		Config:         cfg.Operator,
		DB:             gormDB,
		Notifier:       notify.New(senders...),
		DigestSchedule: cfg.Digest.Schedule,
		Retention:      cfg.Retention,
		Out:            out,
	})

	errCh := make(chan error, stations+1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := op.Start(ctx); err != nil {
			errCh <- fmt.Errorf("operator: %w", err)
		}
	}()

	operatorURL := fmt.Sprintf("http://localhost:%d", cfg.Operator.Port)
	for _, port := range stationPorts(cfg.Operator.Port, stations) {
		stCfg := cfg.Station
		stCfg.Port = port
		stCfg.OperatorURL = operatorURL
		stCfg.AdvertiseURL = fmt.Sprintf("http://localhost:%d", port)
		// Any configured worker_id would collide across stations; let the
		// operator assign each one.
		stCfg.WorkerID = ""

		tools, err := buildToolSet(cfg, stCfg.Tools)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		st, err := station.New(station.Opts{Config: stCfg, Tools: tools, Out: out})
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := st.Start(ctx); err != nil {
				errCh <- fmt.Errorf("station :%d: %w", stCfg.Port, err)
			}
		}()
	}

	fmt.Fprintf(out, "Switchboard up: operator on :%d, %d station(s) on :%d-:%d\n",
		cfg.Operator.Port, stations, cfg.Operator.Port+1, cfg.Operator.Port+stations)

	var firstErr error
	select {
	case <-ctx.Done():
	case firstErr = <-errCh:
		cancel()
	}
	wg.Wait()
	return firstErr
}

// stationPorts returns n ports directly above the operator's.
func stationPorts(operatorPort, n int) []int {
	ports := make([]int, n)
	for i := range ports {
		ports[i] = operatorPort + 1 + i
	}
	return ports
}
