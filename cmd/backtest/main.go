package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"gopkg.in/yaml.v3"

	"quantbt/internal/cli"
	"quantbt/internal/config"
	"quantbt/internal/repo"
	"quantbt/pkg/backtest"
	"quantbt/pkg/journal"
	"quantbt/pkg/market"
	"quantbt/pkg/risk"
)

const persistTimeout = 10 * time.Second

var (
	configFile = flag.String("f", "etc/quantbt.yaml", "application config file")
	barsPath   = flag.String("bars", "", "bars CSV file, or a directory of SYMBOL.csv files")
	ordersPath = flag.String("orders", "", "orders YAML file")
	runLabel   = flag.String("label", "", "label stored with the persisted run")
	batchMode  = flag.Bool("batch", false, "run each symbol as an isolated backtest")
)

type ordersFile struct {
	Orders []backtest.Order `yaml:"orders"`
}

func main() {
	flag.Parse()

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Printf("[main] Warning: failed to load app config: %v", err)
		log.Printf("[main] Using default configuration")
		appCfg = &config.Config{Env: "test", JournalDir: "journal"}
	}

	logx.MustSetup(appCfg.Log)
	defer logx.Close()
	cli.LogConfigSummary(appCfg)

	if *barsPath == "" || *ordersPath == "" {
		log.Fatal("[main] both -bars and -orders are required")
	}

	seriesBySymbol, err := loadSeries(*barsPath)
	if err != nil {
		log.Fatalf("[main] load bars: %v", err)
	}

	orders, err := loadOrders(*ordersPath)
	if err != nil {
		log.Fatalf("[main] load orders: %v", err)
	}

	btCfg := appCfg.BacktestConfig()
	writer := journal.NewWriter(appCfg.JournalDir)

	if *batchMode {
		runBatch(appCfg, writer, seriesBySymbol, orders, btCfg)
		return
	}

	res, err := backtest.RunMulti(seriesBySymbol, orders, btCfg)
	if err != nil {
		log.Fatalf("[main] backtest failed: %v", err)
	}

	logResult("run", res)
	logRiskReport(appCfg.RiskConfig(), res)

	rec := &journal.RunRecord{
		RunID:   *runLabel,
		Symbols: symbolsOf(seriesBySymbol),
		Success: true,
	}
	if path, err := writer.WriteRun(rec, res); err != nil {
		logx.Errorf("write journal record: %v", err)
	} else {
		logx.Infof("journal record written to %s", path)
	}

	persistRun(appCfg, *runLabel, rec.Symbols, btCfg.InitialCash, res)
}

func runBatch(appCfg *config.Config, writer *journal.Writer, seriesBySymbol map[string]*backtest.Series, orders []backtest.Order, btCfg *backtest.Config) {
	ordersBySymbol := make(map[string][]backtest.Order)
	for _, o := range orders {
		sym := strings.ToUpper(strings.TrimSpace(o.Symbol))
		ordersBySymbol[sym] = append(ordersBySymbol[sym], o)
	}

	results, err := backtest.RunBatch(context.Background(), seriesBySymbol, ordersBySymbol, btCfg)
	if err != nil {
		log.Fatalf("[main] batch backtest failed: %v", err)
	}

	for _, sym := range symbolsOf(seriesBySymbol) {
		res, ok := results[sym]
		if !ok {
			continue
		}
		logResult(sym, res)
		rec := &journal.RunRecord{RunID: *runLabel, Symbols: []string{sym}, Success: true}
		if _, err := writer.WriteRun(rec, res); err != nil {
			logx.Errorf("write journal record for %s: %v", sym, err)
		}
		persistRun(appCfg, labelFor(*runLabel, sym), []string{sym}, btCfg.InitialCash, res)
	}
}

// loadSeries builds per-symbol price series. A directory is treated as one
// CSV per symbol named SYMBOL.csv; a plain file becomes a single series
// keyed by its file name.
func loadSeries(path string) (map[string]*backtest.Series, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*backtest.Series)
	if !info.IsDir() {
		bars, err := market.LoadBarsCSVFile(path)
		if err != nil {
			return nil, err
		}
		series, err := backtest.NewSeries(bars)
		if err != nil {
			return nil, err
		}
		sym := strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		out[sym] = series
		return out, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		bars, err := market.LoadBarsCSVFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		series, err := backtest.NewSeries(bars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		sym := strings.ToUpper(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		out[sym] = series
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no csv files found in %s", path)
	}
	return out, nil
}

func loadOrders(path string) ([]backtest.Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file ordersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal orders file: %w", err)
	}
	if len(file.Orders) == 0 {
		return nil, fmt.Errorf("orders file %s contains no orders", path)
	}
	return file.Orders, nil
}

func logResult(name string, res *backtest.Result) {
	final := 0.0
	if n := len(res.EquityCurve); n > 0 {
		final = res.EquityCurve[n-1].Equity
	}
	logx.Infof("%s: final equity %.2f, sharpe %.4f, max drawdown %.4f", name, final, res.Sharpe, res.MaxDrawdown)
	logx.Infof("%s: %d trades, commission %.2f, slippage %.2f, avg cost %.2f bps",
		name, res.TotalTrades, res.TotalCommission, res.TotalSlippageCost, res.AverageCostBps)
	logx.Infof("%s: gross exposure peak %.2f", name, res.GrossExposurePeak)
}

func logRiskReport(riskCfg *risk.Config, res *backtest.Result) {
	values := make([]float64, 0, len(res.EquityCurve))
	for _, p := range res.EquityCurve {
		values = append(values, p.Equity)
	}
	returns := risk.Returns(values)
	if len(returns) == 0 {
		return
	}

	varLoss := risk.HistoricalVaR(returns, riskCfg.VarConfidence)
	cvarLoss := risk.HistoricalCVaR(returns, riskCfg.VarConfidence)
	vol := risk.Volatility(returns, riskCfg.VolatilityWindow)
	logx.Infof("risk: VaR(%.0f%%) %.4f, CVaR %.4f, annualized vol %.4f",
		riskCfg.VarConfidence*100, varLoss, cvarLoss, vol)
}

func persistRun(appCfg *config.Config, label string, symbols []string, initialCash float64, res *backtest.Result) {
	if appCfg.Postgres.DSN == "" {
		return
	}

	conn, err := repo.Connect(appCfg.Postgres.DSN)
	if err != nil {
		logx.Errorf("connect postgres: %v", err)
		return
	}
	repos, err := repo.New(repo.Dependencies{
		DBConn: conn,
		TTL:    repo.TTLs{Short: appCfg.TTL.Short, Medium: appCfg.TTL.Medium, Long: appCfg.TTL.Long},
	})
	if err != nil {
		logx.Errorf("build repositories: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	runID, err := repos.Runs.SaveRun(ctx, label, symbols, initialCash, res)
	if err != nil {
		logx.Errorf("persist run: %v", err)
		return
	}
	logx.Infof("run persisted with id %d", runID)
}

func symbolsOf(seriesBySymbol map[string]*backtest.Series) []string {
	symbols := make([]string, 0, len(seriesBySymbol))
	for sym := range seriesBySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

func labelFor(base, symbol string) string {
	if base == "" {
		return symbol
	}
	return base + ":" + symbol
}
