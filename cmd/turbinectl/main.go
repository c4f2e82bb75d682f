package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/turbinectl/internal/actuator"
	"github.com/san-kum/turbinectl/internal/analysis"
	"github.com/san-kum/turbinectl/internal/config"
	"github.com/san-kum/turbinectl/internal/logging"
	"github.com/san-kum/turbinectl/internal/optim"
	"github.com/san-kum/turbinectl/internal/plant"
	"github.com/san-kum/turbinectl/internal/runner"
	"github.com/san-kum/turbinectl/internal/session"
	"github.com/san-kum/turbinectl/internal/storage"
	"github.com/san-kum/turbinectl/internal/swap"
	"github.com/san-kum/turbinectl/internal/viz"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var (
	preset     string
	initPreset string
	duration   float64
	warmUp     float64
	dt         float64
	windMean   float64
	debug      bool
	noSave     bool
	workers    int
	frameRate  int
	speed      float64
	channels   []string
	output     string
	channel    string
	freqLo     float64
	freqHi     float64
	tuneParams []string
	metric     string
	// actuator step response
	omega    float64
	gamma    float64
	filterDt float64
	steps    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "turbinectl",
		Short:         "run DISCON wind turbine controllers against a turbine model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("data", ".turbinectl", "data directory")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	_ = viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
	viper.SetEnvPrefix("TURBINECTL")
	viper.AutomaticEnv()

	runCmd := &cobra.Command{
		Use:   "run [config]",
		Short: "run one turbine and save the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTurbine,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not save the run")

	batchCmd := &cobra.Command{
		Use:   "batch [config...]",
		Short: "run several turbines concurrently, each with its own controller",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 = GOMAXPROCS)")
	batchCmd.Flags().BoolVar(&noSave, "no-save", false, "do not save the runs")

	liveCmd := &cobra.Command{
		Use:   "live [config]",
		Short: "run one turbine with a live terminal dashboard",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate")
	liveCmd.Flags().Float64Var(&speed, "speed", 1, "simulated seconds per second")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot channels of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&channels, "channels", []string{"wind_speed", "rotor_speed", "pitch_1", "generator_torque"}, "channels to plot")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run history to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and history to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset configurations",
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a config file (.yaml or .toml) from a preset",
		Args:  cobra.ExactArgs(1),
		RunE:  initConfig,
	}
	initCmd.Flags().StringVar(&initPreset, "preset", "rated", "preset to start from")

	slotsCmd := &cobra.Command{
		Use:   "slots",
		Short: "print the exchange record slots",
		RunE:  printSlots,
	}

	filterCmd := &cobra.Command{
		Use:   "filter",
		Short: "plot the pitch actuator step response",
		RunE:  plotFilter,
	}
	filterCmd.Flags().Float64Var(&omega, "omega", 10, "natural frequency (rad/s)")
	filterCmd.Flags().Float64Var(&gamma, "gamma", 0.7, "damping ratio")
	filterCmd.Flags().Float64Var(&filterDt, "dt", config.DefaultDt, "time step")
	filterCmd.Flags().IntVar(&steps, "steps", 200, "number of steps")

	linearizeCmd := &cobra.Command{
		Use:   "linearize [config]",
		Short: "linearize the turbine model about its trimmed initial state",
		Args:  cobra.MaximumNArgs(1),
		RunE:  linearize,
	}
	linearizeCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	linearizeCmd.Flags().Float64Var(&windMean, "wind", 0, "mean wind speed override")

	spectrumCmd := &cobra.Command{
		Use:   "spectrum [run_id]",
		Short: "power spectral density of a saved channel",
		Args:  cobra.ExactArgs(1),
		RunE:  plotSpectrum,
	}
	spectrumCmd.Flags().StringVar(&channel, "channel", "tower_displacement", "channel to analyse")
	spectrumCmd.Flags().Float64Var(&freqLo, "lo", 0.05, "lowest frequency shown (Hz)")
	spectrumCmd.Flags().Float64Var(&freqHi, "hi", 2, "highest frequency shown (Hz)")

	tuneCmd := &cobra.Command{
		Use:   "tune [config]",
		Short: "grid search baseline controller parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tune,
	}
	addRunFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", nil, "parameter range as name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&metric, "metric", "speed_rms_error", "metric to minimise")
	tuneCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 = GOMAXPROCS)")

	rootCmd.AddCommand(runCmd, batchCmd, liveCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd, presetsCmd, initCmd, slotsCmd, filterCmd, linearizeCmd, spectrumCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&duration, "time", 0, "duration override")
	cmd.Flags().Float64Var(&warmUp, "warm-up", 0, "warm-up override")
	cmd.Flags().Float64Var(&dt, "dt", 0, "time step override")
	cmd.Flags().Float64Var(&windMean, "wind", 0, "mean wind speed override")
	cmd.Flags().BoolVar(&debug, "debug", false, "capture the exchange record to <turbine>_Debug.txt beside the config")
}

func newLogger() (*zap.Logger, error) {
	return logging.New(viper.GetString("log_level"), viper.GetBool("log_json"))
}

func store() (*storage.Store, error) {
	st := storage.New(viper.GetString("data"))
	return st, st.Init()
}

// loadConfig resolves the run configuration: a config file, else a preset,
// else the defaults, with changed flags applied on top.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case len(args) > 0:
		c, err := config.Load(args[0])
		if err != nil {
			return nil, err
		}
		cfg = c
	case preset != "":
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	default:
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("warm-up") {
		cfg.WarmUp = warmUp
	}
	if flags.Changed("dt") {
		if cfg.Implicit() {
			cfg.Solver.ImplicitDt = dt
		} else {
			cfg.Solver.Dt = dt
		}
	}
	if flags.Changed("wind") {
		cfg.Wind.Mean = windMean
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	return cfg, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runTurbine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	r, err := runner.New(cfg, runner.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s (%s, %s pitch)...\n", cfg.Name, cfg.Controller.Library, cfg.PitchMode)
	start := time.Now()
	result, runErr := r.Run(ctx)
	elapsed := time.Since(start)

	if !noSave && len(result.Rows) > 1 {
		st, err := store()
		if err != nil {
			return errors.Join(runErr, err)
		}
		runID, err := st.Save(runner.Metadata(cfg), result)
		if err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Printf("run id: %s\n", runID)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	fmt.Printf("controller calls: %d\n", result.ControllerCalls)
	printMetrics(result.Metrics)
	return nil
}

func printMetrics(metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, metrics[name])
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	jobs := make([]runner.Job, len(args))
	cfgs := make([]*config.Config, len(args))
	for i, path := range args {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		cfgs[i] = cfg
		jobs[i] = runner.Job{ID: session.ID(cfg.Name), Config: cfg}
	}

	ctx, cancel := signalContext()
	defer cancel()

	outcomes := runner.Batch(ctx, jobs, workers, runner.WithLogger(log))

	var st *storage.Store
	if !noSave {
		if st, err = store(); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TURBINE\tCALLS\tSPEED_RMS\tRUN_ID\tERROR")
	var failed int
	for i, out := range outcomes {
		runID, calls, rms := "-", 0, 0.0
		if out.Result != nil {
			calls, rms = out.Result.ControllerCalls, out.Result.Metrics["speed_rms_error"]
			if st != nil && out.Err == nil {
				meta := runner.Metadata(cfgs[i])
				meta.Turbine = string(out.ID)
				if runID, err = st.Save(meta, out.Result); err != nil {
					out.Err = err
				}
			}
		}
		msg := "-"
		if out.Err != nil {
			failed++
			msg = out.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%.4f\t%s\t%s\n", out.ID, calls, rms, runID, msg)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(outcomes))
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	// the dashboard owns the terminal
	r, err := runner.New(cfg, runner.WithLogger(zap.NewNop()))
	if err != nil {
		return err
	}
	return viz.Run(r, cfg.Name, frameRate, speed)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(viper.GetString("data"))
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTURBINE\tTIME\tDURATION\tDT\tSOLVER\tCTRL\tCALLS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%s\t%d\n",
			run.ID,
			run.Turbine,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Solver,
			run.Controller,
			run.ControllerCalls,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(viper.GetString("data"))
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	history, err := st.LoadHistory(args[0])
	if err != nil {
		return err
	}
	if len(history.Rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("turbine: %s\n", meta.Turbine)
	fmt.Printf("samples: %d\n\n", len(history.Rows))

	for _, name := range channels {
		data, ok := history.Column(name)
		if !ok {
			return fmt.Errorf("unknown channel %q (available: %s)", name, strings.Join(history.Channels, ", "))
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name),
		))
		fmt.Println()
	}
	return nil
}

func openOutput() (*os.File, func() error, error) {
	if output == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(viper.GetString("data"))
	history, err := st.LoadHistory(args[0])
	if err != nil {
		return err
	}
	f, done, err := openOutput()
	if err != nil {
		return err
	}
	return errors.Join(storage.WriteCSV(f, history), done())
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(viper.GetString("data"))
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	history, err := st.LoadHistory(args[0])
	if err != nil {
		return err
	}
	f, done, err := openOutput()
	if err != nil {
		return err
	}
	return errors.Join(storage.ExportJSON(f, *meta, history), done())
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tCONTROLLER\tPITCH\tSOLVER\tWIND\tDURATION")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		solver := config.SolverExplicit
		if p.Implicit() {
			solver = config.SolverImplicit
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f m/s\t%.0fs\n",
			name, p.Controller.Library, p.PitchMode, solver, p.Wind.Mean, p.Duration)
	}
	return w.Flush()
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfg := config.GetPreset(initPreset)
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", initPreset, config.ListPresets())
	}
	cfg.Name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}

func printSlots(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tDIR\tMEANING")
	for _, s := range swap.Layout {
		dir := "in"
		if s.Output {
			dir = "out"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", int(s.Index), dir, s.Name)
	}
	return w.Flush()
}

func plotFilter(cmd *cobra.Command, args []string) error {
	f, err := actuator.New(omega, gamma, filterDt)
	if err != nil {
		return err
	}
	states := f.StepResponse(1, steps)
	pos := make([]float64, len(states))
	rate := make([]float64, len(states))
	for i, s := range states {
		pos[i], rate[i] = s.X, s.XDot
	}

	fc, gc := f.Coefficients()
	fmt.Printf("omega=%g rad/s gamma=%g dt=%g  f=%.6f g=%.6f\n\n", omega, gamma, filterDt, fc, gc)
	fmt.Println(asciigraph.PlotMany([][]float64{pos, rate},
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Yellow),
		asciigraph.Caption("unit step: position (green), rate (yellow)"),
	))
	return nil
}

func linearize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	tb, err := plant.New(cfg.Plant, plant.NewWind(cfg.Wind), cfg.SessionUnits())
	if err != nil {
		return err
	}
	tb.Reset(cfg.StartTime)

	u := tb.Trim()
	lin, err := tb.Linearize(tb.State(), u, tb.Time())
	if err != nil {
		return err
	}

	fmt.Printf("operating point: wind %.2f m/s, rotor %.4f rad/s, torque %.1f kN·m\n\n",
		plant.NewWind(cfg.Wind).Speed(cfg.StartTime), tb.State()[plant.RotorSpeed], u[plant.GenTorque]/1000)
	fmt.Printf("A =\n%v\n\n", mat.Formatted(lin.A, mat.Prefix("    "), mat.Squeeze()))
	fmt.Println("eigenvalues:")
	for _, ev := range lin.Eigenvalues {
		fmt.Printf("  %+.5f %+.5fi\n", real(ev), imag(ev))
	}
	return nil
}

func plotSpectrum(cmd *cobra.Command, args []string) error {
	st := storage.New(viper.GetString("data"))
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	history, err := st.LoadHistory(args[0])
	if err != nil {
		return err
	}
	data, ok := history.Column(channel)
	if !ok {
		return fmt.Errorf("unknown channel %q (available: %s)", channel, strings.Join(history.Channels, ", "))
	}

	psd := analysis.PSD(data, meta.Dt, 0)
	var shown []float64
	for i, f := range psd.Freqs {
		if f >= freqLo && f <= freqHi {
			shown = append(shown, psd.Power[i])
		}
	}
	if len(shown) < 2 {
		return fmt.Errorf("no spectrum between %g and %g Hz (resolution %g Hz)", freqLo, freqHi, psd.Resolution())
	}

	peak, _ := psd.Peak(freqLo, freqHi)
	fmt.Printf("run: %s\nchannel: %s\nresolution: %.4f Hz\npeak: %.4f Hz\nband power: %.6g\n\n",
		meta.ID, channel, psd.Resolution(), peak, psd.BandPower(freqLo, freqHi))
	fmt.Println(asciigraph.Plot(shown,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("PSD %s, %g to %g Hz", channel, freqLo, freqHi)),
	))
	return nil
}

// parseRange reads "name=v1,v2,...".
func parseRange(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("bad --param %q, want name=v1,v2,...", s)
	}
	var vals []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("bad --param %q: %w", s, err)
		}
		vals = append(vals, v)
	}
	return name, vals, nil
}

func tune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(tuneParams) == 0 {
		return fmt.Errorf("give at least one --param")
	}
	names := make([]string, len(tuneParams))
	ranges := make([][]float64, len(tuneParams))
	for i, p := range tuneParams {
		if names[i], ranges[i], err = parseRange(p); err != nil {
			return err
		}
	}
	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	dir := filepath.Join(viper.GetString("data"), "tune")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("tuning %s over %d points...\n", cfg.Name, len(grid.Points()))
	cands, err := grid.Search(ctx, cfg, metric, dir, workers, runner.WithLogger(log))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RANK\t%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metric))
	for i, c := range cands {
		vals := make([]string, len(names))
		for j, n := range names {
			vals[j] = strconv.FormatFloat(c.Params[n], 'g', 6, 64)
		}
		score := strconv.FormatFloat(c.Score, 'f', 6, 64)
		if c.Err != nil {
			score = c.Err.Error()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, strings.Join(vals, "\t"), score)
	}
	return errors.Join(err, w.Flush())
}
