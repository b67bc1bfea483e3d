package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/GiGurra/boa/pkg/boa"

	"github.com/dvloznov/sabadell-dashboard/internal/config"
	"github.com/dvloznov/sabadell-dashboard/internal/domain"
	"github.com/dvloznov/sabadell-dashboard/internal/logger"
	"github.com/dvloznov/sabadell-dashboard/internal/pipeline"
	"github.com/dvloznov/sabadell-dashboard/internal/report"
	"github.com/dvloznov/sabadell-dashboard/internal/session"
)

type Params struct {
	Config string `descr:"Path to the YAML config file" positional:"true"`
	Types  string `descr:"Comma-separated transaction types to include (Income,Expense)" optional:"true"`
	From   int    `descr:"First year to include (default: earliest year in the data)" optional:"true"`
	To     int    `descr:"Last year to include (default: latest year in the data)" optional:"true"`
	Xlsx   string `descr:"Also write the pivot to this XLSX file" optional:"true"`
}

func main() {
	boa.NewCmdT[Params]("sync").
		WithShort("Download the latest Sabadell database and print the yearly pivot").
		WithLong("Resolves the Google authorization token, downloads the most recently modified file of the configured folder, loads its transactions and prints income, expense and net per year.").
		WithRunFunc(func(params *Params) {
			if err := run(context.Background(), params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(ctx context.Context, params *Params) error {
	cfg, err := config.Load(params.Config)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logger.NewWithLevel(level)

	prompt := func(authURL string) {
		fmt.Printf("Open this URL in your browser to authorize access:\n\n%s\n\n", authURL)
	}
	connector, closeConnector, err := pipeline.NewConnector(ctx, cfg, prompt, log)
	if err != nil {
		return err
	}
	defer closeConnector()

	memo := session.NewMemo(cfg.Cache.Size, cfg.Cache.TTL)
	manager := pipeline.NewManager(pipeline.NewSessionPipeline(cfg, connector, log), memo, log)
	defer manager.Close()

	res, err := manager.Current(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d transactions from %s (modified %s)\n\n",
		len(res.Transactions), res.File.Name, res.File.ModifiedTime.Format("2006-01-02 15:04"))

	filter, err := buildFilter(params, res.Transactions)
	if err != nil {
		return err
	}
	table := report.Pivot(res.Transactions, filter)
	report.RenderTable(os.Stdout, table)

	if params.Xlsx != "" {
		f, err := os.Create(params.Xlsx)
		if err != nil {
			return fmt.Errorf("creating %s: %w", params.Xlsx, err)
		}
		defer f.Close()
		if err := report.WriteXLSX(f, table); err != nil {
			return err
		}
		fmt.Printf("\nWrote %s\n", params.Xlsx)
	}
	return nil
}

func buildFilter(params *Params, txs []domain.Transaction) (report.Filter, error) {
	filter := report.DefaultFilter(txs)

	if params.Types != "" {
		filter.Categories = nil
		for _, name := range strings.Split(params.Types, ",") {
			c, ok := domain.ParseCategory(strings.TrimSpace(name))
			if !ok {
				return report.Filter{}, fmt.Errorf("unknown type %q", name)
			}
			filter.Categories = append(filter.Categories, c)
		}
	}
	if params.From != 0 {
		filter.FromYear = params.From
	}
	if params.To != 0 {
		filter.ToYear = params.To
	}

	return filter, filter.Validate()
}
