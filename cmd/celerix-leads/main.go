package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/celerix-dev/celerix-leads/internal/config"
	"github.com/celerix-dev/celerix-leads/internal/engine"
	"github.com/celerix-dev/celerix-leads/internal/export"
	"github.com/celerix-dev/celerix-leads/internal/logger"
	"github.com/celerix-dev/celerix-leads/internal/report"
	"github.com/celerix-dev/celerix-leads/pkg/schema"
	"github.com/celerix-dev/celerix-leads/pkg/sdk"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		return
	}
	if err := run(context.Background(), os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "celerix-leads:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, out io.Writer) error {
	log := logger.NewWithWriter(os.Stderr, config.Log{Level: "warn", Format: "text"})

	switch strings.ToLower(command) {
	case "migrate":
		if len(args) != 2 {
			return errors.New("usage: celerix-leads migrate <src-config.yml> <dst-config.yml>")
		}
		return migrate(ctx, args[0], args[1], out, log)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CELERIX_LEADS_CONFIG"))
	if err != nil {
		return err
	}
	store, err := sdk.New(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer store.Close()

	switch strings.ToLower(command) {
	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		sortBy := fs.String("sort", "timestamp", "sort field: name, score or timestamp")
		order := fs.String("order", "desc", "sort order: asc or desc")
		asJSON := fs.Bool("json", false, "print JSON instead of a table")
		if err := fs.Parse(args); err != nil {
			return err
		}
		field, err := report.ParseField(*sortBy)
		if err != nil {
			return err
		}
		dir, err := report.ParseDirection(*order)
		if err != nil {
			return err
		}
		leads, err := store.ListAll(ctx)
		if err != nil {
			return err
		}
		sorted := report.Sort(leads, field, dir)
		if *asJSON {
			return printJSON(out, sorted)
		}
		return printTable(out, sorted)

	case "get":
		if len(args) != 1 {
			return errors.New("usage: celerix-leads get <id>")
		}
		lead, err := store.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, lead)

	case "push":
		if len(args) != 1 {
			return errors.New("usage: celerix-leads push '<json>'")
		}
		in, err := schema.DecodeLead(strings.NewReader(args[0]))
		if err != nil {
			return err
		}
		lead, err := store.Create(ctx, in)
		if err != nil {
			return err
		}
		return printJSON(out, lead)

	case "stats":
		var stats report.Stats
		if client, ok := store.(*sdk.Client); ok {
			stats, err = client.Stats(ctx)
		} else {
			var leads []schema.Lead
			if leads, err = store.ListAll(ctx); err == nil {
				stats = report.Summarize(leads, time.Now())
			}
		}
		if err != nil {
			return err
		}
		return printJSON(out, stats)

	case "export":
		if len(args) != 2 {
			return errors.New("usage: celerix-leads export csv|excel <file>")
		}
		return exportTo(ctx, store, cfg.Export, args[0], args[1], out)

	case "ping":
		if _, err := store.Count(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "PONG")
		return nil

	default:
		printUsage(out)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func exportTo(ctx context.Context, store sdk.LeadStore, cfg config.Export, kind, path string, out io.Writer) error {
	var format export.Format
	switch strings.ToLower(kind) {
	case "csv":
		format = export.FormatCSV
	case "excel", "xlsx":
		format = export.FormatXLSX
	default:
		return fmt.Errorf("unknown export format %q (want csv or excel)", kind)
	}

	// Written next to path and renamed once complete, so a failed export
	// leaves nothing behind.
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := writeExport(ctx, store, cfg, format, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}

func writeExport(ctx context.Context, store sdk.LeadStore, cfg config.Export, format export.Format, w io.Writer) error {
	if client, ok := store.(*sdk.Client); ok {
		_, err := client.Export(ctx, format, w)
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	leads, err := store.ListAll(ctx)
	if err != nil {
		return err
	}
	opts := export.Options{Location: loc, TimeLayout: cfg.TimeLayout}
	if format == export.FormatXLSX {
		return export.WriteXLSX(w, leads, opts)
	}
	return export.WriteCSV(w, leads, opts)
}

func migrate(ctx context.Context, srcPath, dstPath string, out io.Writer, log *slog.Logger) error {
	srcCfg, err := config.Load(srcPath)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dstCfg, err := config.Load(dstPath)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	src, err := engine.Open(ctx, srcCfg.Storage, log)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()
	dst, err := engine.Open(ctx, dstCfg.Storage, log)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	n, err := engine.Migrate(ctx, src, dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "migrated %d leads from %s to %s\n", n, srcCfg.Storage.Driver, dstCfg.Storage.Driver)
	return nil
}

func printTable(out io.Writer, leads []schema.Lead) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tCOMPANY\tROLE\tLOCATION\tSCORE\tTIMESTAMP")
	for _, l := range leads {
		score := fmt.Sprint(l.Score)
		if l.IsHighScore() {
			score += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.Name, l.Email, l.Company, l.Role, l.Location, score, l.Timestamp.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Celerix Leads CLI - Interface for celerix-leadsd")
	fmt.Fprintln(out, "\nUsage:")
	fmt.Fprintln(out, "  celerix-leads list [-sort name|score|timestamp] [-order asc|desc] [-json]")
	fmt.Fprintln(out, "  celerix-leads get <id>")
	fmt.Fprintln(out, "  celerix-leads push '<json>'")
	fmt.Fprintln(out, "  celerix-leads stats")
	fmt.Fprintln(out, "  celerix-leads export csv|excel <file>")
	fmt.Fprintln(out, "  celerix-leads migrate <src-config.yml> <dst-config.yml>")
	fmt.Fprintln(out, "  celerix-leads ping")
	fmt.Fprintln(out, "\nEnvironment Variables:")
	fmt.Fprintln(out, "  CELERIX_LEADS_ADDR      Address of a running celerix-leadsd (otherwise the store is opened directly)")
	fmt.Fprintln(out, "  CELERIX_LEADS_CONFIG    Config file used in embedded mode")
}
