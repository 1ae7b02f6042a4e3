package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"backscan/internal/analyzer"
	"backscan/internal/condition"
	"backscan/internal/config"
	"backscan/internal/errtrack"
	"backscan/internal/indicator"
	"backscan/internal/provider"
	"backscan/internal/scan"
	"backscan/internal/store"
	"backscan/pkg/model"
)

var (
	cfgFile      string
	strategyFile string
	symbol       string
	fromStr      string
	toStr        string
	format       string
	timeoutStr   string
	csvFile      string
	fetchDays    int
)

const dateLayout = "2006-01-02"

func main() {
	rootCmd := &cobra.Command{
		Use:   "backscan",
		Short: "Backtest declarative strategies against stored minute bars",
		Long: `Backscan replays a declarative strategy definition against historical
minute-bar data and reports trade-level and aggregate performance.

Examples:
  backscan import --symbol ES --file es_1m.csv
  backscan backtest --strategy vwap_cross.yaml --from 2024-01-02 --to 2024-03-01
  backscan fetch --symbol SPY --days 5`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a strategy against stored bars",
		RunE:  runBacktest,
	}
	backtestCmd.Flags().StringVar(&strategyFile, "strategy", "strategy.yaml", "strategy definition file")
	backtestCmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD, exclusive)")
	backtestCmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	backtestCmd.Flags().StringVar(&timeoutStr, "timeout", "", "scan timeout (e.g. 90s), overrides config")

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import minute bars from a CSV file",
		RunE:  runImport,
	}
	importCmd.Flags().StringVar(&symbol, "symbol", "", "symbol the file belongs to")
	importCmd.Flags().StringVar(&csvFile, "file", "", "csv file (time,open,high,low,close,volume)")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch minute bars from the remote provider into the store",
		RunE:  runFetch,
	}
	fetchCmd.Flags().StringVar(&symbol, "symbol", "", "symbol to fetch")
	fetchCmd.Flags().IntVar(&fetchDays, "days", 5, "number of trailing days to fetch")

	rootCmd.AddCommand(backtestCmd, importCmd, fetchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted. Stopping...")
		cancel()
	}()
	return ctx, cancel
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	strat, err := model.LoadStrategy(strategyFile)
	if err != nil {
		return fmt.Errorf("loading strategy: %w", err)
	}

	loc, err := cfg.SessionLocation()
	if err != nil {
		return err
	}
	from, to, err := parseRange(loc)
	if err != nil {
		return err
	}
	if err := scan.ValidateRange(from, to); err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path, loc)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	timeout := cfg.Scan.Timeout
	if timeoutStr != "" {
		timeout, err = time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
	}
	if timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, timeout)
		defer tcancel()
	}

	// Load extra history before the range so indicator recurrences are
	// seeded by the first in-range bar; the extra day absorbs overnight
	// and weekend gaps.
	warmup := time.Duration(condition.Lookback(strat))*strat.Timeframe.Duration() + 24*time.Hour
	raw, err := st.LoadBars(ctx, strat.Symbol, from.Add(-warmup), to)
	if err != nil {
		return fmt.Errorf("loading bars: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("no bars stored for %s in %s ~ %s", strat.Symbol,
			from.Format(dateLayout), to.Format(dateLayout))
	}

	tracker := errtrack.NewMemory()
	bars := indicator.Enrich(model.Resample(raw, strat.Timeframe), strat.Timeframe, tracker)

	openMin, closeMin, err := cfg.SessionMinutes()
	if err != nil {
		return err
	}
	scanner := scan.NewScanner(cfg.Contracts, scan.Session{OpenMinute: openMin, CloseMinute: closeMin})

	bar := newProgressBar(len(bars), "Scanning")
	scanner.SetProgressCallback(func(processed, total int) {
		bar.Set(processed)
	})

	start := time.Now()
	trades, err := scanner.RunWindow(ctx, strat, bars, from, tracker)
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}
	bar.Finish()
	fmt.Println()

	period := from.Format(dateLayout) + " ~ " + to.Format(dateLayout)
	result := analyzer.Analyze(trades, strat, period, time.Since(start))

	if format == "json" {
		return outputJSON(result, trades, tracker.Events())
	}
	return outputTable(result, trades, tracker.Events())
}

func parseRange(loc *time.Location) (time.Time, time.Time, error) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--from and --to are required")
	}
	from, err := time.ParseInLocation(dateLayout, fromStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing --from: %w", err)
	}
	to, err := time.ParseInLocation(dateLayout, toStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing --to: %w", err)
	}
	return from, to, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	if symbol == "" || csvFile == "" {
		return fmt.Errorf("--symbol and --file are required")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	loc, err := cfg.SessionLocation()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path, loc)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	bar := progressbar.Default(-1, "Importing")
	rows, err := st.ImportCSV(ctx, csvFile, symbol, func(n int) {
		bar.Set(n)
	})
	bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("importing: %w", err)
	}

	fmt.Printf("Imported %d bars for %s into %s\n", rows, symbol, cfg.Store.Path)
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	if symbol == "" {
		return fmt.Errorf("--symbol is required")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	loc, err := cfg.SessionLocation()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path, loc)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	p := provider.NewChartProvider(cfg.Provider.BaseURL, cfg.Provider.RateLimit, loc)

	// Chart endpoints cap 1m history to about a week, so fetch per day.
	bar := newProgressBar(fetchDays, "Fetching")
	total := 0
	now := time.Now().In(loc)
	for i := fetchDays; i > 0; i-- {
		day := now.AddDate(0, 0, -i+1)
		from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
		bars, err := p.GetMinuteBars(ctx, symbol, from, from.AddDate(0, 0, 1))
		if err != nil {
			var perr *provider.ProviderError
			if errors.As(err, &perr) && !perr.Retryable {
				bar.Add(1)
				continue // weekends, holidays
			}
			return fmt.Errorf("fetching %s: %w", from.Format(dateLayout), err)
		}
		if err := st.SaveBars(ctx, bars); err != nil {
			return fmt.Errorf("saving bars: %w", err)
		}
		total += len(bars)
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()

	fmt.Printf("Fetched %d bars for %s into %s\n", total, symbol, cfg.Store.Path)
	return nil
}

func newProgressBar(total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func outputJSON(result *model.StrategyResult, trades []model.TradeResult, events []errtrack.Event) error {
	payload := struct {
		Result *model.StrategyResult `json:"result"`
		Trades []model.TradeResult   `json:"trades"`
		Events []errtrack.Event      `json:"events,omitempty"`
	}{result, trades, events}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func outputTable(result *model.StrategyResult, trades []model.TradeResult, events []errtrack.Event) error {
	fmt.Printf("Strategy: %s (%s)\n", result.StrategyName, result.Symbol)
	fmt.Printf("Period:   %s\n\n", result.Period)

	fmt.Printf("Trades: %d  (win %d / loss %d / timeout %d)\n",
		result.TotalTrades, result.WinningTrades, result.LosingTrades, result.TimeoutTrades)
	fmt.Printf("Win rate:      %.1f%%\n", result.WinRate*100)
	fmt.Printf("Total PnL:     %+.2f\n", result.TotalPnL)
	fmt.Printf("Avg win/loss:  %+.2f / %+.2f\n", result.AvgWin, result.AvgLoss)
	fmt.Printf("Max drawdown:  %.2f\n", result.MaxDrawdown)
	fmt.Printf("Profit factor: %s\n", formatProfitFactor(result.ProfitFactor))
	fmt.Printf("Sharpe:        %.2f\n", result.SharpeRatio)
	fmt.Printf("Scan time:     %s\n\n", result.ScanTime.Round(time.Millisecond))

	if len(trades) > 0 {
		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Entry", "Exit", "Dir", "In", "Out", "PnL", "Outcome", "Bars", "MAE", "MFE"}),
		)
		for _, t := range trades {
			table.Append([]string{
				t.EntryTime.Format("01-02 15:04"),
				t.ExitTime.Format("01-02 15:04"),
				string(t.Direction),
				fmt.Sprintf("%.2f", t.EntryPrice),
				fmt.Sprintf("%.2f", t.ExitPrice),
				fmt.Sprintf("%+.2f", t.PnL),
				string(t.Outcome),
				fmt.Sprintf("%d", t.BarsHeld),
				fmt.Sprintf("%.2f", t.MAE),
				fmt.Sprintf("%.2f", t.MFE),
			})
		}
		table.Render()
	}

	if len(events) > 0 {
		fmt.Printf("\n%d evaluation/data events:\n", len(events))
		for _, e := range events {
			fmt.Printf("  [%s/%s] %s", e.Type, e.Severity, e.Message)
			if e.SuggestedFix != "" {
				fmt.Printf(" (%s)", e.SuggestedFix)
			}
			fmt.Println()
		}
	}
	return nil
}

func formatProfitFactor(pf float64) string {
	if pf == analyzer.ProfitFactorUnbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%.2f", pf)
}
