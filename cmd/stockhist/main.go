package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"stockhist/internal/cache"
	"stockhist/internal/config"
	"stockhist/internal/fetch"
	"stockhist/internal/observ"
	"stockhist/internal/quota"
	"stockhist/internal/reconcile"
	"stockhist/internal/stock"
)

func main() {
	var cfgPath, symbol, fromStr, toStr string
	var showRows bool
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&symbol, "symbol", "", "stock symbol, e.g. IBM")
	flag.StringVar(&fromStr, "from", "", "start date YYYY-MM-DD (default one year ago)")
	flag.StringVar(&toStr, "to", "", "end date YYYY-MM-DD, exclusive (default today)")
	flag.BoolVar(&showRows, "rows", false, "print every price row, not just the analysis")
	flag.Parse()

	if symbol == "" {
		fmt.Fprintln(os.Stderr, "usage: stockhist -symbol IBM [-from 2022-01-01] [-to 2023-01-01]")
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	now := time.Now().UTC()
	from := now.AddDate(-1, 0, 0)
	to := now
	if fromStr != "" {
		if from, err = parseDate(fromStr); err != nil {
			log.Fatalf("bad -from: %v", err)
		}
	}
	if toStr != "" {
		if to, err = parseDate(toStr); err != nil {
			log.Fatalf("bad -to: %v", err)
		}
	}

	q, err := stock.NewQuery(symbol, from, to)
	if err != nil {
		log.Fatalf("bad query: %v", err)
	}

	quotas, err := quota.NewSet(cfg.Quotas.RemoteRead, cfg.Quotas.CacheRead, cfg.Quotas.CacheWrite)
	if err != nil {
		log.Fatalf("build quotas: %v", err)
	}

	store, err := buildStore(cfg, quotas)
	if err != nil {
		log.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	source := buildSource(cfg)

	observ.Log("startup", map[string]any{
		"symbol":   q.Symbol,
		"from":     q.From.Format("2006-01-02"),
		"to":       q.To.Format("2006-01-02"),
		"provider": cfg.Source.Provider,
		"cache":    cfg.Cache.Driver,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := reconcile.New(store, source, quotas.RemoteRead)
	res, err := rec.Run(ctx, q)
	if err != nil {
		log.Fatalf("reconcile %s: %v", q.Symbol, err)
	}

	if showRows {
		printRows(res)
	}
	printAnalysis(res)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func buildStore(cfg config.Root, quotas *quota.Set) (cache.Store, error) {
	var inner cache.Store
	switch cfg.Cache.Driver {
	case "sqlite":
		s, err := cache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		inner = s
	case "memory":
		inner = cache.NewMemoryStore()
	}
	if cfg.Cache.Quoted {
		return cache.NewQuotedStore(inner, quotas), nil
	}
	return inner, nil
}

func buildSource(cfg config.Root) fetch.Source {
	if cfg.Source.Provider == "mock" {
		return &fetch.MockSource{}
	}
	return fetch.NewYahooSource(fetch.YahooConfig{
		HistoryBaseURL:  cfg.Source.HistoryBaseURL,
		DownloadBaseURL: cfg.Source.DownloadBaseURL,
		TimeoutSeconds:  cfg.Source.TimeoutSeconds,
		UserAgent:       cfg.Source.UserAgent,
	})
}

func printRows(res *reconcile.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tOPEN\tHIGH\tLOW\tCLOSE\tADJ CLOSE\tVOLUME")
	for _, r := range res.Rows {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\n",
			r.Date.Format("2006-01-02"), r.Open, r.High, r.Low, r.Close, r.AdjClose, r.Volume)
	}
	w.Flush()
	fmt.Println()
}

func printAnalysis(res *reconcile.Result) {
	a := stock.Analyse(res.Rows, res.Query)
	if a == nil {
		fmt.Printf("%s: no data for %s to %s\n", res.Query.Symbol,
			res.Query.From.Format("2006-01-02"), res.Query.To.Format("2006-01-02"))
		return
	}

	fmt.Printf("%s  %s to %s  (%d trading days)\n", res.Query.Symbol,
		a.FirstDate.Format("2006-01-02"), a.LastDate.Format("2006-01-02"), len(res.Rows))
	if a.MissingLeading() {
		fmt.Printf("  note: no data before %s\n", a.FirstDate.Format("2006-01-02"))
	}
	if a.MissingTrailing() {
		fmt.Printf("  note: no data after %s\n", a.LastDate.Format("2006-01-02"))
	}
	for _, span := range res.Missing {
		fmt.Printf("  warning: could not fetch %s to %s\n",
			span.From.Format("2006-01-02"), span.To.Format("2006-01-02"))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tMIN\tMAX\tAVG\tCHANGE\tCHANGE %")
	for _, c := range []struct {
		name  string
		stats stock.ColumnStats
	}{
		{"Open", a.Open},
		{"High", a.High},
		{"Low", a.Low},
		{"Close", a.Close},
		{"Adj Close", a.AdjClose},
	} {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%+.2f\t%+.2f%%\n",
			c.name, c.stats.Min, c.stats.Max, c.stats.Avg, c.stats.Change, c.stats.PercentChange)
	}
	fmt.Fprintf(w, "Volume\t%d\t%d\t%.0f\t\t\n", a.VolumeMin, a.VolumeMax, a.VolumeAvg)
	w.Flush()
}
