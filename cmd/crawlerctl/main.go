package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/crawlerctl/internal/analysis"
	"github.com/san-kum/crawlerctl/internal/calibration"
	"github.com/san-kum/crawlerctl/internal/config"
	"github.com/san-kum/crawlerctl/internal/crawler"
	"github.com/san-kum/crawlerctl/internal/export"
	"github.com/san-kum/crawlerctl/internal/hardware"
	"github.com/san-kum/crawlerctl/internal/logging"
	"github.com/san-kum/crawlerctl/internal/metrics"
	"github.com/san-kum/crawlerctl/internal/optim"
	"github.com/san-kum/crawlerctl/internal/sim"
	"github.com/san-kum/crawlerctl/internal/storage"
	"github.com/san-kum/crawlerctl/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	configFile string
	dataDir    string
	logLevel   string
	logFormat  string

	listen  string
	backend string
	device  string

	profile string
	runAll  bool
	noSave  bool
	format  string
	outFile string
	theme   string
	persist bool

	grids     []string
	objective string
	topN      int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "crawlerctl",
		Short:         "rc crawler control core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "runs directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "start from a named config profile")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "drive the vehicle from websocket operators",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&listen, "listen", "", "listen address")
	serveCmd.Flags().StringVar(&backend, "backend", "", "output backend: log, recorder, maestro, rpi")
	serveCmd.Flags().StringVar(&device, "device", "", "maestro serial device")

	simCmd := &cobra.Command{
		Use:   "sim [preset|scenario.yaml]",
		Short: "run a scripted scenario against the control core",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSim,
	}
	simCmd.Flags().BoolVar(&runAll, "all", false, "run every preset")
	simCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	tuneCmd := &cobra.Command{
		Use:   "tune [preset...]",
		Short: "grid search safety parameters against scenarios",
		Long:  "Each --grid takes name=lo:hi:n, for example --grid slew_step=1:10:10.",
		Args:  cobra.ArbitraryArgs,
		RunE:  tune,
	}
	tuneCmd.Flags().StringArrayVar(&grids, "grid", nil, "parameter range name=lo:hi:n (repeatable)")
	tuneCmd.Flags().StringVar(&objective, "minimize", "throttle_effort", "metric to minimize")
	tuneCmd.Flags().IntVar(&topN, "top", 5, "trials to print")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list scenario presets and config profiles",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("scenarios:")
			for _, name := range sim.ListPresets() {
				fmt.Printf("  %-16s %s\n", name, sim.GetPreset(name).Description)
			}
			fmt.Println("profiles:")
			for _, name := range config.ListProfiles() {
				fmt.Printf("  %s\n", name)
			}
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as json or svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "json", "json or svg")
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "state timeline, oscillation and response latency of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "drive a simulated vehicle from the keyboard",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	liveCmd.Flags().StringVar(&theme, "theme", "", "color theme")
	liveCmd.Flags().BoolVar(&persist, "persist", false, "commit trims to the calibration file")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "manage config files",
	}
	configInitCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a config file with defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE:  initConfig,
	}
	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "print the effective config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return config.Write(os.Stdout, cfg)
		},
	}
	configCmd.AddCommand(configInitCmd, configShowCmd)

	rootCmd.AddCommand(serveCmd, simCmd, tuneCmd, presetsCmd, listCmd, plotCmd, analyzeCmd, exportCmd, liveCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves profile, then config file, then global flags.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if profile != "" {
		cfg = config.GetProfile(profile)
		if cfg == nil {
			return nil, fmt.Errorf("unknown profile: %s (available: %v)", profile, config.ListProfiles())
		}
	}
	if configFile != "" {
		loaded, err := config.LoadOver(configFile, cfg)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if dataDir != "" {
		cfg.Storage.Dir = dataDir
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, level, cfg.LogFormat)
}

func simConfig(cfg *config.Config) sim.Config {
	sc := sim.DefaultConfig()
	sc.Control = cfg.ControlConfig()
	sc.Safety = cfg.SafetyConfig()
	sc.Actuation = cfg.ActuationConfig()
	return sc
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Server.Listen = listen
	}
	if cmd.Flags().Changed("backend") {
		cfg.Hardware.Backend = backend
	}
	if cmd.Flags().Changed("device") {
		cfg.Hardware.Maestro.Device = device
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	dev, err := hardware.Open(cfg.Hardware, cfg.HardwareTiming(), logger)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Hardware.Backend, err)
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "backend", cfg.Hardware.Backend, "listen", cfg.Server.Listen)
	c := crawler.New(cfg, dev, cfg.CalibrationStore(), logger)
	return c.Run(ctx)
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	var scenarios []*sim.Scenario
	switch {
	case runAll:
		for _, name := range sim.ListPresets() {
			scenarios = append(scenarios, sim.GetPreset(name))
		}
	case len(args) == 1:
		sc, err := resolveScenario(args[0])
		if err != nil {
			return err
		}
		scenarios = append(scenarios, sc)
	default:
		return fmt.Errorf("need a preset or scenario file (available: %v)", sim.ListPresets())
	}

	sc := simConfig(cfg)
	factory := func() []sim.Metric {
		return metrics.Default(sc.Actuation.DutyNeutral, sc.Control.Interval)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	results, err := sim.NewBatch(sc, factory, logger).Run(ctx, scenarios)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	st := storage.New(cfg.Storage.Dir)
	for i, res := range results {
		printResult(res)
		if noSave {
			continue
		}
		id, err := st.Save(scenarios[i], res)
		if err != nil {
			return fmt.Errorf("save %s: %w", res.Scenario, err)
		}
		fmt.Printf("saved: %s\n\n", id)
	}
	fmt.Printf("%d scenario(s) in %v\n", len(results), elapsed.Round(time.Millisecond))
	return nil
}

func tune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if len(grids) == 0 {
		return fmt.Errorf("need at least one --grid (parameters: %v)", optim.ParamNames())
	}

	var names []string
	var ranges [][]float64
	for _, g := range grids {
		name, values, err := parseGrid(g)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	if len(args) == 0 {
		args = []string{"drive"}
	}
	var scenarios []*sim.Scenario
	for _, a := range args {
		sc, err := resolveScenario(a)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, sc)
	}

	base := simConfig(cfg)
	factory := func() []sim.Metric {
		return metrics.Default(base.Actuation.DutyNeutral, base.Control.Interval)
	}
	gs, err := optim.NewGridSearch(base, names, ranges, factory, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	trials, err := gs.Search(ctx, scenarios, optim.Minimize(objective))
	if err != nil {
		return err
	}
	if len(trials) == 0 {
		return fmt.Errorf("no trial completed")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(objective))
	for _, tr := range trials[:min(topN, len(trials))] {
		for _, n := range names {
			fmt.Fprintf(w, "%.3f\t", tr.Params[n])
		}
		fmt.Fprintf(w, "%.3f\n", tr.Score)
	}
	return w.Flush()
}

// parseGrid reads name=lo:hi:n.
func parseGrid(s string) (string, []float64, error) {
	name, rng, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, fmt.Errorf("grid %q: want name=lo:hi:n", s)
	}
	parts := strings.Split(rng, ":")
	if len(parts) != 3 {
		return "", nil, fmt.Errorf("grid %q: want name=lo:hi:n", s)
	}
	lo, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return "", nil, fmt.Errorf("grid %q: %w", s, err)
	}
	hi, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", nil, fmt.Errorf("grid %q: %w", s, err)
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 1 {
		return "", nil, fmt.Errorf("grid %q: bad point count", s)
	}
	return name, optim.Range(lo, hi, n), nil
}

func resolveScenario(arg string) (*sim.Scenario, error) {
	if sc := sim.GetPreset(arg); sc != nil {
		return sc, nil
	}
	ext := strings.ToLower(filepath.Ext(arg))
	if ext == ".yaml" || ext == ".yml" {
		return sim.LoadScenario(arg)
	}
	return nil, fmt.Errorf("unknown preset: %s (available: %v)", arg, sim.ListPresets())
}

func printResult(res *sim.Result) {
	fmt.Printf("scenario: %s\n", res.Scenario)
	fmt.Printf("duration: %v, samples: %d\n", res.Duration, len(res.Samples))
	fmt.Printf("states:   %s\n", strings.Join(res.States(), " -> "))
	if final, ok := res.Final(); ok {
		fmt.Printf("final:    %s esc=%d servo=%d\n", final.State, final.EscDuty, final.ServoDuty)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	for _, name := range slices.Sorted(maps.Keys(res.Metrics)) {
		fmt.Fprintf(w, "%s\t%.3f\n", name, res.Metrics[name])
	}
	w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, err := storage.New(cfg.Storage.Dir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tDURATION\tSAMPLES\tSTATES")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%d\t%s\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.DurationMs,
			run.Samples,
			strings.Join(run.States, ","),
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := storage.New(cfg.Storage.Dir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadTrace(args[0])
	if len(samples) == 0 {
		if err != nil {
			return err
		}
		return fmt.Errorf("no data to plot")
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s\n", meta.Scenario)
	fmt.Printf("samples: %d\n\n", len(samples))

	series := []struct {
		caption string
		value   func(sim.Sample) float64
	}{
		{"raw throttle", func(s sim.Sample) float64 { return s.RawThrottle }},
		{"safe throttle", func(s sim.Sample) float64 { return s.Throttle }},
		{"esc duty", func(s sim.Sample) float64 { return float64(s.EscDuty) }},
		{"servo duty", func(s sim.Sample) float64 { return float64(s.ServoDuty) }},
	}
	for _, sr := range series {
		data := make([]float64, len(samples))
		for i, s := range samples {
			data[i] = sr.value(s)
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(sr.caption),
		))
		fmt.Println()
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	samples, err := storage.New(cfg.Storage.Dir).LoadTrace(args[0])
	if len(samples) == 0 {
		if err != nil {
			return err
		}
		return fmt.Errorf("no data to analyze")
	}

	fmt.Println("timeline:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, seg := range analysis.Timeline(samples) {
		fmt.Fprintf(w, "  %v\t%s\t%v\n", seg.Start, seg.State, seg.Duration())
	}
	w.Flush()

	rate := float64(time.Second) / float64(cfg.Control.Interval)
	fmt.Println("\noscillation:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  SIGNAL\tPEAK HZ\tMAGNITUDE\tREVERSALS")
	for _, sig := range []struct {
		name  string
		field analysis.Field
	}{
		{"throttle", analysis.Throttle},
		{"steering", analysis.Steering},
		{"esc_duty", analysis.EscDuty},
		{"servo_duty", analysis.ServoDuty},
	} {
		data := analysis.Series(samples, sig.field)
		f, mag := analysis.DominantFrequency(data, rate)
		fmt.Fprintf(w, "  %s\t%.2f\t%.3f\t%d\n", sig.name, f, mag, analysis.Reversals(data))
	}
	w.Flush()

	lat := analysis.ResponseLatency(samples, cfg.Safety.Deadband, cfg.Actuation.DutyNeutral)
	fmt.Printf("\nresponse latency: %d rise(s)", len(lat))
	if len(lat) > 0 {
		fmt.Printf(", min %v, max %v", slices.Min(lat), slices.Max(lat))
	}
	fmt.Println()
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := storage.New(cfg.Storage.Dir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadTrace(args[0])
	if err != nil && len(samples) == 0 {
		return err
	}

	out := os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "json":
		return export.WriteJSON(out, *meta, samples)
	case "svg":
		rng := export.DutyRange{Min: cfg.Actuation.DutyMin, Max: cfg.Actuation.DutyMax}
		svg := export.TraceToSVG(samples, rng, 800, 300)
		if svg == "" {
			return fmt.Errorf("not enough samples to plot")
		}
		_, err := fmt.Fprint(out, svg)
		return err
	default:
		return fmt.Errorf("unknown format: %s (json or svg)", format)
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if theme != "" {
		tui.SetTheme(theme)
	}

	// The dashboard owns the terminal, so logs are dropped unless debugging.
	logger := logging.Discard()
	if cfg.LogLevel == "debug" {
		f, err := os.Create("crawlerctl-live.log")
		if err != nil {
			return err
		}
		defer f.Close()
		if logger, err = logging.New(f, slog.LevelDebug, cfg.LogFormat); err != nil {
			return err
		}
	}

	var store calibration.Store
	if persist {
		store = cfg.CalibrationStore()
	}

	m := tui.NewModel(tui.Options{
		Control:   cfg.ControlConfig(),
		Safety:    cfg.SafetyConfig(),
		Actuation: cfg.ActuationConfig(),
		Store:     store,
		Logger:    logger,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := "crawlerctl.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := config.DefaultConfig()
	if profile != "" {
		cfg = config.GetProfile(profile)
		if cfg == nil {
			return fmt.Errorf("unknown profile: %s (available: %v)", profile, config.ListProfiles())
		}
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
