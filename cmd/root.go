package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/trafficsim/config"
	"github.com/example/trafficsim/engine"
	"github.com/example/trafficsim/logging"
	"github.com/example/trafficsim/metrics"
	"github.com/example/trafficsim/web"
)

var (
	scenarioFile string
	seedOverride int64
	ticks        int64
	tickRateHz   float64
	listenAddr   string
	headless     bool
)

var rootCmd = &cobra.Command{
	Use:   "trafficsim",
	Short: "System-design traffic simulator",
	Long: `trafficsim simulates request traffic over a system-design graph.

It reads a scenario file describing nodes (clients, servers, load
balancers, caches, databases, brokers) and typed edges with their
latency, capacity and reliability characteristics, then drives a
deterministic discrete-tick simulation. Snapshots of in-flight requests
are served over HTTP/WebSocket for rendering, alongside Prometheus
metrics.`,
	RunE: runSimulation,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVarP(&scenarioFile, "config", "c", "scenario.yaml", "Path to scenario file")
	rootCmd.Flags().Int64Var(&seedOverride, "seed", 0, "Override the scenario seed (0 keeps the scenario value)")
	rootCmd.Flags().Int64Var(&ticks, "ticks", 0, "Override the number of ticks to run (0 keeps the scenario value)")
	rootCmd.Flags().Float64Var(&tickRateHz, "rate", 0, "Override the tick rate in Hz (0 keeps the scenario value)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "Override the HTTP listen address")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "Run without the web server and print stats")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	sc, err := config.Load(scenarioFile)
	if err != nil {
		return err
	}
	if seedOverride != 0 {
		sc.Seed = seedOverride
	}
	if ticks != 0 {
		sc.Ticks = ticks
	}
	if tickRateHz != 0 {
		sc.TickRateHz = tickRateHz
	}
	if listenAddr != "" {
		sc.Listen = listenAddr
	}
	if headless {
		sc.Headless = true
	}

	log := logging.GetLogger()
	defer log.Sync()

	if sc.Headless {
		return runHeadless(sc)
	}
	return runServed(sc)
}

// runHeadless drives the engine synchronously and prints a summary.
func runHeadless(sc *config.Scenario) error {
	eng := engine.New(engine.Options{
		TickMs:          sc.TickMs,
		QueueBound:      sc.QueueBound,
		VisibilityTicks: sc.VisibilityTicks,
		Headless:        true,
	})
	if err := eng.Start(sc.Graph, sc.Seed); err != nil {
		return err
	}
	total := sc.Ticks
	if total <= 0 {
		total = 1000
	}
	for i := int64(0); i < total; i++ {
		if err := eng.StepOnce(); err != nil {
			return err
		}
	}
	printStats(eng.Snapshot())
	eng.Stop()
	return nil
}

// runServed runs the paced loop with the web surface attached.
func runServed(sc *config.Scenario) error {
	collector := metrics.NewCollector()
	eng := engine.New(engine.Options{
		TickMs:          sc.TickMs,
		TickRateHz:      sc.TickRateHz,
		QueueBound:      sc.QueueBound,
		VisibilityTicks: sc.VisibilityTicks,
		MaxTicks:        sc.Ticks,
		Collector:       collector,
	})
	server := web.NewServer(sc.Listen, eng, collector)
	eng.SetPublisher(server)

	if err := server.Start(); err != nil {
		return err
	}
	defer server.Close()

	if err := eng.Start(sc.Graph, sc.Seed); err != nil {
		return err
	}
	logging.GetLogger().Infof("serving frames on %s (ws: /ws, metrics: /metrics)", sc.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	pollTick := time.NewTicker(200 * time.Millisecond)
	defer pollTick.Stop()
	for {
		select {
		case <-sigCh:
			eng.Stop()
			printStats(eng.Snapshot())
			return nil
		case <-pollTick.C:
			if !eng.Running() {
				printStats(eng.Snapshot())
				return nil
			}
		}
	}
}

func printStats(frame *engine.Snapshot) {
	if frame == nil {
		fmt.Println("No stats available")
		return
	}
	st := frame.Stats
	fmt.Println("=== Simulation Statistics ===")
	fmt.Printf("Ticks: %d\n", frame.Tick+1)
	fmt.Printf("Emitted: %d\n", st.Emitted)
	fmt.Printf("Succeeded: %d\n", st.Succeeded)
	fmt.Printf("Dropped: %d\n", st.Dropped)
	fmt.Printf("Retries: %d\n", st.Retries)
	fmt.Printf("Average Latency: %.2f ms\n", st.AvgLatencyMs)
	for reason, n := range st.DroppedByReason {
		fmt.Printf("  dropped (%s): %d\n", reason, n)
	}
}
