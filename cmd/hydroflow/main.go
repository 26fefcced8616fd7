package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/guptarohit/asciigraph"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/san-kum/hydroflow/internal/config"
	"github.com/san-kum/hydroflow/internal/dynamo"
	"github.com/san-kum/hydroflow/internal/experiment"
	"github.com/san-kum/hydroflow/internal/forcing"
	"github.com/san-kum/hydroflow/internal/sim"
	"github.com/san-kum/hydroflow/internal/storage"
	"github.com/san-kum/hydroflow/internal/viz"
)

var (
	dataDir string
	verbose int

	configFile  string
	preset      string
	nodes       int
	epsilon     float64
	basicStep   float64
	reportStep  float64
	interval    float64
	intervals   int
	rain        []float64
	forcingFile string
	discharge   float64
	subsurface  float64
	progress    bool
	startDate   string

	stateIndex int
	outFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "hydroflow",
		Short:         "adaptive discharge simulation for hydrological networks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".hydroflow", "data directory")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "log verbosity (repeat for more)")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run simulation and store the reported states",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&progress, "progress", false, "write a progress line at every report time")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run simulation with a live discharge view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&stateIndex, "index", -1, "state component to plot (default: every channel discharge, up to 6)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, viz.StatusFailed.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().IntVar(&nodes, "nodes", config.DefaultNodes, "number of network nodes")
	cmd.Flags().Float64Var(&epsilon, "epsilon", config.DefaultEpsilon, "relative error tolerance")
	cmd.Flags().Float64Var(&basicStep, "basic-step", config.DefaultBasicStep, "initial internal step (minutes)")
	cmd.Flags().Float64Var(&reportStep, "report", config.DefaultReportStep, "report step (minutes)")
	cmd.Flags().Float64Var(&interval, "interval", config.DefaultInterval, "length of one forcing interval (minutes)")
	cmd.Flags().IntVar(&intervals, "intervals", 0, "number of intervals (default: one per forcing row)")
	cmd.Flags().Float64SliceVar(&rain, "rain", nil, "rain per interval (mm/h)")
	cmd.Flags().StringVar(&forcingFile, "forcing", "", "forcing CSV file")
	cmd.Flags().Float64Var(&discharge, "discharge", config.DefaultDischarge, "initial channel discharge (m³/s)")
	cmd.Flags().Float64Var(&subsurface, "subsurface", config.DefaultSubsurface, "initial subsurface discharge (m³/s)")
	cmd.Flags().StringVar(&startDate, "start", "", "start time (RFC 3339)")
}

func newLogger() logr.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02T15:04:05.000Z07:00"}
	zlog := zerolog.New(output).Level(zerolog.Level(1 - verbose)).With().Timestamp().Logger()
	zerologr.SetMaxV(verbose)
	return zerologr.New(&zlog)
}

// buildConfig layers defaults, preset, config file and explicitly set flags,
// in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	model := ""
	if len(args) > 0 {
		model = args[0]
		cfg.Model = model
	}

	if preset != "" {
		if model == "" {
			model = cfg.Model
		}
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if model != "" {
			cfg.Model = model
		}
	}

	flags := cmd.Flags()
	if flags.Changed("nodes") {
		cfg.Nodes = nodes
	}
	if flags.Changed("epsilon") {
		cfg.Epsilon = epsilon
	}
	if flags.Changed("basic-step") {
		cfg.BasicStep = basicStep
	}
	if flags.Changed("report") {
		cfg.ReportStep = reportStep
	}
	if flags.Changed("interval") {
		cfg.Interval = interval
	}
	if flags.Changed("intervals") {
		cfg.Intervals = intervals
	}
	if flags.Changed("rain") {
		cfg.Forcing.Rain = rain
		cfg.Forcing.File = ""
	}
	if flags.Changed("forcing") {
		cfg.Forcing.File = forcingFile
		cfg.Forcing.Rain = nil
	}
	if flags.Changed("discharge") {
		cfg.InitState.Discharge = discharge
	}
	if flags.Changed("subsurface") {
		cfg.InitState.Subsurface = subsurface
	}
	if flags.Changed("progress") {
		cfg.LogProgress = progress
	}
	if flags.Changed("start") {
		t, err := time.Parse(time.RFC3339, startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		cfg.Start = t
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// prepare builds the experiment described by cfg without running it.
func prepare(cfg *config.Config, out io.Writer) (*experiment.Experiment, *experiment.Config, error) {
	series, err := cfg.GetForcing()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load forcing: %w", err)
	}
	if err := series.Validate(); err != nil {
		return nil, nil, err
	}

	registry := experiment.NewRegistry()
	model, err := registry.GetModel(cfg.Model, cfg.GetModelParams())
	if err != nil {
		return nil, nil, err
	}

	initState := cfg.GetInitState()
	if model.StateDim() != len(initState) {
		return nil, nil, fmt.Errorf("%w: model %s expects %d components, initial state has %d",
			dynamo.ErrDimensionMismatch, cfg.Model, model.StateDim(), len(initState))
	}

	expCfg := experiment.Config{
		Model:       cfg.Model,
		Nodes:       cfg.Nodes,
		InitState:   initState,
		Start:       sim.Minutes(cfg.Start),
		Interval:    cfg.Interval,
		Intervals:   cfg.NumIntervals(series),
		ReportStep:  cfg.ReportStep,
		Epsilon:     cfg.Epsilon,
		BasicStep:   cfg.BasicStep,
		LogProgress: cfg.LogProgress,
		Forcing:     series,
	}

	exp := experiment.New(expCfg)
	if err := exp.Setup(model, out, registry.DefaultMetrics(cfg.Model)); err != nil {
		return nil, nil, err
	}
	return exp, &expCfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp, expCfg, err := prepare(cfg, os.Stdout)
	if err != nil {
		return err
	}
	log := newLogger().WithName(cfg.Model)
	exp.GetSimulator().SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(viz.Title.Render(fmt.Sprintf("running %s: %d nodes, %d intervals of %.0f min",
		cfg.Model, cfg.Nodes, expCfg.Intervals, cfg.Interval)))
	started := time.Now()

	result, err := exp.Run(ctx)
	if err != nil {
		var ie *dynamo.IntegrationError
		if errors.As(err, &ie) {
			log.Error(err, "integration failed", "time", sim.FormatMinutes(ie.Time), "stage", ie.Stage, "component", ie.Index)
		}
		return err
	}
	elapsed := time.Since(started)

	stats := exp.GetSimulator().Stats()
	runID, err := st.Save(storage.RunMetadata{
		Model:      cfg.Model,
		Start:      cfg.Start,
		Nodes:      cfg.Nodes,
		Epsilon:    cfg.Epsilon,
		BasicStep:  exp.GetSimulator().BasicTimeStep(),
		ReportStep: cfg.ReportStep,
		Interval:   cfg.Interval,
		Intervals:  expCfg.Intervals,
		Stats:      stats,
	}, result)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(viz.Metric("completed in", elapsed.String()))
	fmt.Println(viz.Metric("run id", runID))
	fmt.Println(viz.Metric("reports", fmt.Sprintf("%d", len(result.States))))
	fmt.Println(viz.Metric("steps", fmt.Sprintf("%d (%d refined, %d evaluations)", stats.Steps, stats.Refinements, stats.Evaluations)))
	fmt.Println(viz.Metric("step size", fmt.Sprintf("%.4g .. %.4g min", stats.MinStep, stats.MaxStep)))
	if stats.DryExit {
		fmt.Println(viz.StatusDry.Render("outlet ran dry during the last interval"))
	}
	fmt.Println("\nmetrics:")
	printMetrics(result.Metrics)

	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	exp, expCfg, err := prepare(cfg, io.Discard)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := viz.NewFeed(64)
	exp.GetSimulator().AddObserver(feed)
	go func() {
		_, err := exp.Run(ctx)
		feed.Done(err)
	}()

	end := expCfg.Start + float64(expCfg.Intervals)*expCfg.Interval
	view := viz.NewLive(cfg.Model, expCfg.Start, end, sim.FormatMinutes, feed)

	final, err := tea.NewProgram(view).Run()
	cancel()
	feed.Stop()
	if err != nil {
		return err
	}
	if live, ok := final.(viz.Live); ok {
		return live.Err()
	}
	return nil
}

func printMetrics(metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println("  " + viz.Metric(name, fmt.Sprintf("%.6f", metrics[name])))
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tCREATED\tSTART\tNODES\tINTERVALS\tEPS\tSTEPS\tPEAK")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d x %.0fm\t%.0e\t%d\t%.4f\n",
			run.ID,
			run.Model,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Start.UTC().Format("2006-01-02 15:04"),
			run.Nodes,
			run.Intervals,
			run.Interval,
			run.Epsilon,
			run.Stats.Steps,
			run.Metrics["peak_discharge"],
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Println(viz.Metric("run", meta.ID))
	fmt.Println(viz.Metric("model", meta.Model))
	fmt.Println(viz.Metric("samples", fmt.Sprintf("%d", len(states))))
	fmt.Println(viz.Subtle.Render(fmt.Sprintf("%s .. %s", sim.FormatMinutes(times[0]), sim.FormatMinutes(times[len(times)-1]))))
	fmt.Println()

	indices := plotIndices(meta, len(states[0]))
	for _, idx := range indices {
		data := make([]float64, len(states))
		for i := range states {
			if idx < len(states[i]) {
				data[i] = states[i][idx]
			}
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(componentName(meta, idx)),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	return nil
}

func plotIndices(meta *storage.RunMetadata, dim int) []int {
	if stateIndex >= 0 {
		if stateIndex < dim {
			return []int{stateIndex}
		}
		return nil
	}
	n := dim
	if meta.Model != "decay" && meta.Nodes > 0 && meta.Nodes < dim {
		n = meta.Nodes
	}
	n = min(n, 6)
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func componentName(meta *storage.RunMetadata, idx int) string {
	if meta.Model == "decay" || meta.Nodes <= 0 {
		return fmt.Sprintf("x%d", idx)
	}
	switch {
	case idx == 0:
		return "outlet discharge (m³/s)"
	case idx < meta.Nodes:
		return fmt.Sprintf("node %d channel discharge (m³/s)", idx)
	default:
		return fmt.Sprintf("node %d subsurface discharge (m³/s)", idx-meta.Nodes)
	}
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if outFile == "" {
		return st.Export(args[0], os.Stdout)
	}

	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	states, times, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	if err := storage.ExportJSON(outFile, *meta, &dynamo.Result{States: states, Times: times, Metrics: meta.Metrics}); err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", meta.ID, outFile)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	models := config.ListModels()
	if len(args) > 0 {
		models = args
	}

	for _, model := range models {
		presets := config.ListPresets(model)
		if len(presets) == 0 {
			fmt.Printf("no presets for model: %s\n", model)
			continue
		}
		fmt.Printf("presets for %s:\n", viz.Title.Render(model))
		for _, p := range presets {
			cfg := config.GetPreset(model, p)
			fmt.Printf("  %-12s %s\n", p, viz.Subtle.Render(describe(cfg)))
		}
	}
	return nil
}

func describe(cfg *config.Config) string {
	parts := []string{fmt.Sprintf("%d nodes", cfg.Nodes)}
	if n := len(cfg.Forcing.Rain); n > 0 {
		parts = append(parts, fmt.Sprintf("%d rain intervals, %.0f mm/h total", n, forcing.FromRain(cfg.Forcing.Rain, cfg.Forcing.Base).TotalRain()))
	} else if cfg.Intervals > 0 {
		parts = append(parts, fmt.Sprintf("%d dry intervals", cfg.Intervals))
	}
	parts = append(parts, fmt.Sprintf("%.0f min each", cfg.Interval))
	return strings.Join(parts, ", ")
}
