package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"scan-indexer/internal/config"
	"scan-indexer/internal/database"
	"scan-indexer/internal/indexer"
	"scan-indexer/internal/search"
)

// ServersCmd lists the configured servers.
type ServersCmd struct {
	JSON bool `help:"Print JSON."`
}

func (c *ServersCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return printServers(a.out, a.servers, c.JSON)
}

// BootstrapCmd rebuilds indexes from scratch.
type BootstrapCmd struct {
	Names []string `arg:"" optional:"" name:"server" help:"Servers to build (default: all)."`
	JSON  bool     `help:"Print results as JSON."`
}

func (c *BootstrapCmd) Run(ctx context.Context, cli *CLI) error {
	return runBuild(ctx, cli, c.Names, indexer.ModeBootstrap, c.JSON)
}

// UpdateCmd walks servers incrementally.
type UpdateCmd struct {
	Names []string `arg:"" optional:"" name:"server" help:"Servers to update (default: all)."`
	JSON  bool     `help:"Print results as JSON."`
}

func (c *UpdateCmd) Run(ctx context.Context, cli *CLI) error {
	return runBuild(ctx, cli, c.Names, indexer.ModeUpdate, c.JSON)
}

func runBuild(ctx context.Context, cli *CLI, names []string, mode string, asJSON bool) error {
	a, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range names {
		if _, ok := a.servers.ByName(name); !ok {
			return fmt.Errorf("%w: %s", indexer.ErrUnknownServer, name)
		}
	}

	mgr := a.manager()
	defer mgr.Stop()

	results, err := build(ctx, a, mgr, names, mode)
	if perr := printResults(a.out, results, asJSON); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("%s finished with errors", mode)
	}
	return nil
}

// build runs the build, drawing live progress when stdout is a terminal.
func build(ctx context.Context, a *app, mgr *indexer.Manager, names []string, mode string) ([]indexer.BuildResult, error) {
	if !a.tty {
		return mgr.BuildAll(ctx, names, mode)
	}
	p := newProgress(a.out, mgr, stdoutWidth())
	stop := p.start(progressInterval)
	defer stop()
	return mgr.BuildAll(ctx, names, mode)
}

// StatusCmd shows the published index of each server.
type StatusCmd struct {
	Names []string `arg:"" optional:"" name:"server" help:"Servers to show (default: all)."`
	JSON  bool     `help:"Print JSON."`
	Runs  int      `help:"Also show this many recent runs from the run history." default:"0"`
}

func (c *StatusCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	statuses, err := a.manager().Statuses(c.Names)
	if err != nil {
		return err
	}
	if err := printStatuses(a.out, statuses, c.JSON); err != nil {
		return err
	}

	if c.Runs <= 0 {
		return nil
	}
	if a.db == nil {
		return fmt.Errorf("run history is disabled (set --history-db)")
	}
	server := ""
	if len(c.Names) == 1 {
		server = c.Names[0]
	}
	runs, err := a.db.RecentRuns(ctx, server, c.Runs)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out)
	return printRuns(a.out, runs, c.JSON)
}

// SearchCmd searches the indexes or the servers.
type SearchCmd struct {
	Servers       []string `name:"server" help:"Only search these servers."`
	Roles         []string `name:"role" help:"Only search servers with these roles (film, scan)."`
	Wafer         []string `help:"Wafer terms."`
	Lot           []string `help:"Lot terms."`
	Film          []string `help:"Film terms."`
	Exact         bool     `help:"Match whole names."`
	Regex         bool     `help:"Treat terms as regular expressions."`
	CaseSensitive bool     `name:"case-sensitive" help:"Do not fold case."`
	LinkRecipe    bool     `name:"link-recipe" help:"Attach matching recipe folders to scan hits."`
	Mode          string   `help:"cache, direct or both." default:"cache" enum:"cache,direct,both"`
	JSON          bool     `help:"Print JSON."`
}

func (c *SearchCmd) filters() search.Filters {
	return search.Filters{
		Servers:       c.Servers,
		Roles:         c.Roles,
		Wafer:         c.Wafer,
		Lot:           c.Lot,
		Film:          c.Film,
		Exact:         c.Exact,
		Regex:         c.Regex,
		CaseSensitive: c.CaseSensitive,
		LinkRecipe:    c.LinkRecipe,
	}
}

func (c *SearchCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := search.Run(ctx, a.engine(), c.filters(), c.Mode)
	if err != nil {
		return err
	}
	return printResult(a.out, res, c.JSON)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printServers(w io.Writer, servers config.ServerList, asJSON bool) error {
	if asJSON {
		return writeJSON(w, servers)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tROLE\tSOURCE\tADDRESS\tROOT")
	for _, s := range servers {
		addr := "-"
		if !s.IsFilesystem() {
			addr = s.Addr()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Role, s.Source, addr, s.Root)
	}
	return tw.Flush()
}

func printResults(w io.Writer, results []indexer.BuildResult, asJSON bool) error {
	if asJSON {
		return writeJSON(w, results)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tMODE\tSTATUS\tENTRIES\tNEW\tFAILURES\tDURATION\tERROR")
	for _, r := range results {
		entries, added := r.Folders, r.NewFolders
		if r.Role == config.RoleScan {
			entries, added = r.Films, r.NewFilms
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.Server, r.Mode, r.Status, entries, added,
			r.ListingFailures+r.MetadataFailures,
			(time.Duration(r.DurationMs) * time.Millisecond).String(), r.Error)
	}
	return tw.Flush()
}

func printStatuses(w io.Writer, statuses []indexer.Status, asJSON bool) error {
	if asJSON {
		return writeJSON(w, statuses)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tROLE\tINDEXED\tENTRIES\tLAST BOOTSTRAP\tLAST UPDATE")
	for _, st := range statuses {
		entries := fmt.Sprintf("%d folders, %d recipes", st.IndexedFolders, st.IndexedRecipes)
		if st.Role == config.RoleScan {
			entries = fmt.Sprintf("%d lots, %d films", st.IndexedLots, st.IndexedFilms)
		}
		indexed := "no"
		switch {
		case st.Building:
			indexed = "building"
		case st.Indexed:
			indexed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Server, st.Role, indexed, entries, formatTime(st.LastBootstrap), formatTime(st.LastUpdate))
	}
	return tw.Flush()
}

func printRuns(w io.Writer, runs []database.IndexRun, asJSON bool) error {
	if asJSON {
		return writeJSON(w, runs)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSERVER\tMODE\tSTATUS\tNEW\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Server, r.Mode, r.Status,
			r.NewEntries+r.NewLeaves, (time.Duration(r.DurationMs) * time.Millisecond).String())
	}
	return tw.Flush()
}

func printResult(w io.Writer, res search.Result, asJSON bool) error {
	if asJSON {
		return writeJSON(w, res)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, h := range res.Hits {
		line := []string{h.Server, h.Level, h.Path}
		if h.RecipeLinked {
			line = append(line, "recipe="+h.RecipePrimary)
		}
		fmt.Fprintln(tw, strings.Join(line, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d hits (%s)\n", res.Count, res.Mode)
	return err
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
