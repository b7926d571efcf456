// TradeChart JP — Japanese equity dashboard with XBRL financials and RSI alerts.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradechartjp/tradechart/api"
	"github.com/tradechartjp/tradechart/internal/alerting"
	"github.com/tradechartjp/tradechart/internal/analysis/technical"
	"github.com/tradechartjp/tradechart/internal/config"
	"github.com/tradechartjp/tradechart/internal/metrics"
	"github.com/tradechartjp/tradechart/internal/notify"
	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/internal/providers/edgar"
	"github.com/tradechartjp/tradechart/internal/providers/edinet"
	"github.com/tradechartjp/tradechart/internal/providers/tdnet"
	"github.com/tradechartjp/tradechart/internal/providers/yfinance"
	"github.com/tradechartjp/tradechart/internal/store"
	"github.com/tradechartjp/tradechart/pkg/models"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tradechart",
	Short: "TradeChart JP — Japanese equity dashboard and RSI alert engine",
	Long: `TradeChart JP
Price charts, XBRL-extracted annual financials, timely disclosures, and
RSI threshold alerts for Japanese equities, with LINE push notifications
and an embedded web dashboard.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real env vars always win.
		_ = godotenv.Load()

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		setupLogging(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rsiCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(financialsCmd)
	rootCmd.AddCommand(filingsCmd)
	rootCmd.AddCommand(disclosuresCmd)
	rootCmd.AddCommand(alertCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func setupLogging(lc config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if lc.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

// buildRegistry wires every data provider. Registration order is the
// fallback order: yfinance first for prices, EDINET before EDGAR for
// financials so Japanese filers resolve domestically.
func buildRegistry() (*provider.Registry, error) {
	reg := provider.NewRegistry()

	if err := reg.Register(yfinance.New()); err != nil {
		return nil, err
	}

	edinetProvider, err := edinet.New(edinet.Config{
		UserAgent:   cfg.App.UserAgent(),
		DownloadDir: cfg.Filings.DownloadDir,
		CacheDir:    cfg.Cache.Dir,
		CacheTTL:    time.Duration(cfg.Cache.TTLHours) * time.Hour,
	})
	if err != nil {
		return nil, err
	}
	if err := reg.Register(edinetProvider); err != nil {
		return nil, err
	}

	if err := reg.Register(tdnet.New(cfg.Filings.TDnetBaseURL)); err != nil {
		return nil, err
	}

	edgarProvider, err := edgar.New(cfg.App.UserAgent())
	if err != nil {
		return nil, err
	}
	if err := reg.Register(edgarProvider); err != nil {
		return nil, err
	}

	return reg, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			return nil, fmt.Errorf("storage.backend is postgres but no database URL is set")
		}
		return store.NewPGStore(ctx, cfg.Storage.DatabaseURL)
	case "", "file":
		return store.NewFileStore(cfg.Storage.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildNotifier returns nil when LINE is disabled or credentials are missing.
func buildNotifier() alerting.Notifier {
	if !cfg.Line.Enabled {
		return nil
	}
	n, err := notify.NewLineNotifier(cfg.Line.ChannelAccessToken, cfg.Line.TargetUserID)
	if err != nil {
		log.Warn().Err(err).Msg("LINE notifications disabled")
		return nil
	}
	return n
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("TradeChart JP %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server + Dashboard) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and web dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		srv := api.NewServer(cfg, reg, st, buildNotifier())

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		log.Info().Str("addr", addr).Msg("starting tradechart server")
		return srv.ListenAndServe(addr)
	},
}

// --- RSI Command ---

var rsiCmd = &cobra.Command{
	Use:   "rsi [ticker...]",
	Short: "Print the latest RSI for one or more tickers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		for _, raw := range args {
			ticker := utils.NormalizeTicker(raw)
			result, err := reg.FetchWithFallback(ctx, provider.ModelEquityHistorical, provider.QueryParams{
				provider.ParamSymbol: ticker,
				provider.ParamPeriod: cfg.Market.DefaultRange,
			})
			if err != nil {
				fmt.Printf("%s  (no data: %v)\n", ticker, err)
				continue
			}
			candles, _ := result.Data.([]models.OHLCV)
			vals := technical.RSI(candles, cfg.Alerts.RSIPeriod)
			if vals == nil {
				fmt.Printf("%s  (insufficient history: %d bars)\n", ticker, len(candles))
				continue
			}
			last := candles[len(candles)-1]
			fmt.Printf("%s  RSI(%d) %.1f  close %.1f  %s\n",
				ticker, cfg.Alerts.RSIPeriod, vals[len(vals)-1], last.Close,
				utils.ToJST(last.Timestamp).Format("2006-01-02"))
		}
		return nil
	},
}

// --- Quote Command ---

var quoteCmd = &cobra.Command{
	Use:   "quote [ticker]",
	Short: "Print the latest quote for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		ticker := utils.NormalizeTicker(args[0])
		result, err := reg.FetchWithFallback(ctx, provider.ModelEquityQuote, provider.QueryParams{
			provider.ParamSymbol: ticker,
		})
		if err != nil {
			return err
		}
		quote, ok := result.Data.(*models.Quote)
		if !ok {
			return fmt.Errorf("unexpected quote payload from %s", result.Provider)
		}

		fmt.Printf("%s  %s\n", quote.Ticker, quote.Name)
		fmt.Printf("  price:   %.1f %s (%+.1f / %+.2f%%)\n", quote.LastPrice, quote.Currency, quote.Change, quote.ChangePct)
		fmt.Printf("  range:   %.1f – %.1f  prev close %.1f\n", quote.Low, quote.High, quote.PrevClose)
		fmt.Printf("  volume:  %d\n", quote.Volume)
		return nil
	},
}

// --- Financials Command ---

var financialsCmd = &cobra.Command{
	Use:   "financials [ticker]",
	Short: "Print annual financial metrics extracted from XBRL filings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		ticker := utils.NormalizeTicker(args[0])
		params := provider.QueryParams{provider.ParamSymbol: ticker}
		if years, _ := cmd.Flags().GetInt("years"); years > 0 {
			params[provider.ParamYears] = fmt.Sprintf("%d", years)
		}
		if p, _ := cmd.Flags().GetString("provider"); p != "" {
			params[provider.ParamProvider] = p
		}

		result, err := reg.FetchWithFallback(ctx, provider.ModelAnnualFinancials, params)
		if err != nil {
			return err
		}
		annual, ok := result.Data.(models.AnnualMetrics)
		if !ok {
			return fmt.Errorf("unexpected financials payload from %s", result.Provider)
		}
		annual = metrics.EnrichYoY(annual)

		fmt.Printf("Annual financials — %s (source: %s)\n", ticker, result.Provider)
		growth := metrics.CAGRAll(annual)
		for _, name := range models.MetricNames {
			series := annual[name]
			fmt.Printf("\n%s:\n", name)
			if len(series) == 0 {
				fmt.Println("  (no data)")
				continue
			}
			for _, p := range series {
				if p.Year == nil || p.Value == nil {
					continue
				}
				line := fmt.Sprintf("  FY%d  %s", *p.Year, formatJPY(*p.Value))
				if p.YoY != nil {
					line += fmt.Sprintf("  (%s)", formatYoY(*p.YoY))
				}
				fmt.Println(line)
			}
			if g := growth[name]; g != nil {
				fmt.Printf("  CAGR  %+.1f%%\n", *g*100)
			}
		}
		return nil
	},
}

func init() {
	financialsCmd.Flags().Int("years", 0, "number of fiscal years to fetch")
	financialsCmd.Flags().String("provider", "", "force a specific provider (edinet, edgar)")
}

// formatYoY renders a fractional year-over-year change as a signed
// percentage, e.g. 0.111 → "+11.1% YoY".
func formatYoY(ratio float64) string {
	return fmt.Sprintf("%+.1f%% YoY", ratio*100)
}

// formatJPY renders a yen amount with 兆/億 units the way Japanese
// financial summaries do.
func formatJPY(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%.2f兆円", v/1e12)
	case abs >= 1e8:
		return fmt.Sprintf("%.1f億円", v/1e8)
	default:
		return fmt.Sprintf("%.0f円", v)
	}
}

// --- Filings Command ---

var filingsCmd = &cobra.Command{
	Use:   "filings [ticker]",
	Short: "List annual report filings for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		ticker := utils.NormalizeTicker(args[0])
		result, err := reg.FetchWithFallback(ctx, provider.ModelFilingDocuments, provider.QueryParams{
			provider.ParamSymbol: ticker,
		})
		if err != nil {
			return err
		}
		filings, ok := result.Data.([]models.Filing)
		if !ok {
			return fmt.Errorf("unexpected filings payload from %s", result.Provider)
		}

		fmt.Printf("Filings — %s (source: %s)\n", ticker, result.Provider)
		for _, f := range filings {
			fmt.Printf("  %-22s %-10s filed %-12s %s\n", f.DocID, f.Form, f.Filed, f.Filer)
		}
		if len(filings) == 0 {
			fmt.Println("  (none found)")
		}
		return nil
	},
}

// --- Disclosures Command ---

var disclosuresCmd = &cobra.Command{
	Use:   "disclosures [code]",
	Short: "List recent TDnet timely disclosures for a company code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		code := utils.NormalizeTicker(args[0])
		params := provider.QueryParams{provider.ParamSymbol: code}
		if days, _ := cmd.Flags().GetInt("days"); days > 0 {
			params[provider.ParamDays] = fmt.Sprintf("%d", days)
		}

		result, err := reg.FetchWithFallback(ctx, provider.ModelDisclosureEvents, params)
		if err != nil {
			return err
		}
		events, ok := result.Data.([]models.DisclosureEvent)
		if !ok {
			return fmt.Errorf("unexpected disclosures payload from %s", result.Provider)
		}

		fmt.Printf("Timely disclosures — %s\n", code)
		for _, ev := range events {
			fmt.Printf("  %s  %s\n", ev.Timestamp, ev.Title)
		}
		if len(events) == 0 {
			fmt.Println("  (none in range)")
		}
		return nil
	},
}

func init() {
	disclosuresCmd.Flags().Int("days", 7, "look-back window in days")
}

// --- Alert Command ---

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage RSI alerts",
}

var alertRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate all alerts once and notify on matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		evaluator := alerting.NewEvaluator(reg, st, cfg.Alerts.RSIThreshold)
		matches, err := evaluator.Run(ctx)
		if err != nil {
			return err
		}

		if len(matches) == 0 {
			fmt.Println("No RSI alerts triggered.")
			return nil
		}

		message := alerting.FormatAlertMessage(matches)
		fmt.Println(message)

		if notifier := buildNotifier(); notifier != nil {
			if err := notifier.Send(ctx, message); err != nil {
				return fmt.Errorf("LINE notification failed: %w", err)
			}
			fmt.Println("\nSent to LINE.")
		}
		return nil
	},
}

func init() {
	alertCmd.AddCommand(alertRunCmd)
}

// --- Schedule Command ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the RSI alert scheduler (07:00 and 12:30 JST by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		evaluator := alerting.NewEvaluator(reg, st, cfg.Alerts.RSIThreshold)
		times := utils.ParseScheduleTimes(cfg.Alerts.ScheduleTimes, alerting.DefaultScheduleTimes)
		scheduler := alerting.NewScheduler(evaluator, buildNotifier(), times)

		if once, _ := cmd.Flags().GetBool("once"); once {
			return scheduler.RunOnce(ctx)
		}
		return scheduler.Run(ctx)
	},
}

func init() {
	scheduleCmd.Flags().Bool("once", false, "evaluate immediately and exit")
}
