package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taxline/internal/app"
	"taxline/internal/config"
	"taxline/internal/db"
	"taxline/internal/domain"
	"taxline/internal/engine"
	"taxline/internal/forms"
	"taxline/internal/migrate"
	"taxline/internal/repo"
	"taxline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "taxline",
	Short: "Taxline CLI",
	Long: `Taxline fills the federal individual return (Form 1040 and its schedules) from W-2 and 1099 data.
- Input: a YAML or JSON document with identity, elections, W-2s and 1099s (trades included).
- Year constants: brackets, deductions and thresholds per tax year; built in, or loaded with --config-file.
- Store: computed returns are kept in the workspace (.taxline) so next year's capital loss carryover can read them.
- Plan: forms are built in a fixed order; 'taxline plan' shows when each one is filed.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TAXLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("db", "", "return store file (default <workspace>/.taxline/taxline.db)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in events")
	rootCmd.PersistentFlags().String("config-file", "", "year constants file (overrides the built-in year table)")
	rootCmd.PersistentFlags().Bool("quiet", false, "do not log warnings to stderr")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("config-file", rootCmd.PersistentFlags().Lookup("config-file"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func registerCommands() {
	rootCmd.AddCommand(computeCmd())
	rootCmd.AddCommand(returnsCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(storeCmd())
	rootCmd.AddCommand(serveCmd())
}

func computeCmd() *cobra.Command {
	var input, priorID, form string
	var year int
	var save, noStore bool
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute a return",
		Long:  "Compute reads the taxpayer document, looks up last year's stored return for the carryover (or --prior), and prints the filled forms. --save stores the result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := loadInput(input)
			if err != nil {
				return err
			}
			req := app.ComputeRequest{
				Year:    year,
				Input:   in,
				PriorID: priorID,
				Save:    save,
				ActorID: viper.GetString("actor-id"),
			}
			run := func(ctx context.Context, svc app.Service) error {
				res, err := svc.Compute(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if form != "" {
						return printJSON(res.Return.Forms[form])
					}
					return printJSON(res)
				}
				return printReturn(res.Return, res.ID, form)
			}
			if noStore {
				if save || priorID != "" {
					return errors.New("--save and --prior need the return store")
				}
				return run(cmd.Context(), app.New(nil, viper.GetString("config-file"), newLogger()))
			}
			return withService(cmd.Context(), run)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "taxpayer document (YAML or JSON, - for stdin)")
	cmd.Flags().IntVar(&year, "year", 2020, "tax year")
	cmd.Flags().StringVar(&priorID, "prior", "", "stored prior-year return id")
	cmd.Flags().BoolVar(&save, "save", false, "store the computed return")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not open the workspace store")
	cmd.Flags().StringVar(&form, "form", "", "print a single form (e.g. f1040sd)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func returnsCmd() *cobra.Command {
	ret := &cobra.Command{Use: "returns", Short: "Manage stored returns"}
	ret.AddCommand(returnsListCmd())
	ret.AddCommand(returnsShowCmd())
	ret.AddCommand(returnsDeleteCmd())
	ret.AddCommand(returnsLogCmd())
	return ret
}

func returnsListCmd() *cobra.Command {
	var f repo.ReturnFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored returns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListReturns(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Year", "SSN", "Name", "Warnings", "Created"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.TaxYear, s.SSN, s.Name, s.Warnings, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.TaxYear, "year", 0, "tax year filter")
	cmd.Flags().StringVar(&f.SSN, "ssn", "", "filer SSN filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum rows")
	return cmd
}

func returnsShowCmd() *cobra.Command {
	var form string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored return",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rec, err := r.GetReturn(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if form != "" {
						return printJSON(rec.Return.Forms[form])
					}
					return printJSON(rec)
				}
				fmt.Printf("%s  %s  %d  %s\n", rec.ID, rec.Name, rec.TaxYear, rec.CreatedAt)
				return printReturn(rec.Return, "", form)
			})
		},
	}
	cmd.Flags().StringVar(&form, "form", "", "print a single form (e.g. f1040)")
	return cmd
}

func returnsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored return",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				if err := svc.DeleteReturn(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": args[0]})
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func returnsLogCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "log [id]",
		Short: "Show return events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, "return", id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Return", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show which forms are built and when",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := engine.DefaultPlan().DecisionTable()
			if viper.GetBool("json") {
				return printJSON(rows)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "Step", "Runs when", "Reads"})
			for i, r := range rows {
				tw.AppendRow(table.Row{i + 1, r.Step, r.Condition, strings.Join(r.After, ", ")})
			}
			tw.Render()
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect year constants",
		Long:  "Year constants are the per-year numbers the forms use: brackets, standard deduction, preferential rate thresholds, loss limits, AMT exemption and form capacities.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configYearsCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the constants of a tax year",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(year, viper.GetString("config-file"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 2020, "tax year")
	return cmd
}

func configValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a year constants file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.FromFile(file)
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "constants file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configYearsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "years",
		Short: "List built-in tax years",
		RunE: func(cmd *cobra.Command, args []string) error {
			years := config.Years()
			return printJSONOrTable(years, func() {
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Tax year"})
				for _, y := range years {
					tw.AppendRow(table.Row{y})
				}
				tw.Render()
			})
		},
	}
}

func storeCmd() *cobra.Command {
	store := &cobra.Command{Use: "store", Short: "Inspect the return store"}
	store.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the store location and schema migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := storeConfig()
			conn, err := db.Open(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			st, err := migrate.Current(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"path": db.Path(cfg), "schema": st})
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendRow(table.Row{"Path", db.Path(cfg)})
			tw.AppendRow(table.Row{"Schema version", st.Version})
			tw.AppendRow(table.Row{"Migration", st.Name})
			tw.AppendRow(table.Row{"Applied", st.AppliedAt})
			tw.AppendRow(table.Row{"Pending", strings.Join(st.Pending, ", ")})
			tw.Render()
			return nil
		},
	})
	return store
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serve exposes compute and the return store over HTTP. Set TAXLINE_JWT_SECRET to require HS256 bearer tokens.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), Logger: svc.Logger}
				if authCfg.JWTSecret == "" {
					svc.Logger.Printf("WARNING: TAXLINE_JWT_SECRET not set; the API accepts unauthenticated requests")
				}
				handler, err := server.New(server.Config{Service: svc, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Taxline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func newLogger() *log.Logger {
	if viper.GetBool("quiet") {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "taxline: ", 0)
}

func storeConfig() db.Config {
	return db.Config{Workspace: viper.GetString("workspace"), File: viper.GetString("db")}
}

func openStore() (*repo.Repo, func(), error) {
	conn, err := db.Open(storeConfig())
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return &repo.Repo{DB: conn}, func() { conn.Close() }, nil
}

func withService(ctx context.Context, fn func(context.Context, app.Service) error) error {
	r, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, app.New(r.DB, viper.GetString("config-file"), newLogger()))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	r, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, *r)
}

// loadInput reads a taxpayer document; YAML is a superset of JSON so both
// formats decode the same way.
func loadInput(path string) (domain.TaxpayerInput, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.TaxpayerInput{}, err
	}
	var in domain.TaxpayerInput
	if err := config.DecodeYAML(data, &in); err != nil {
		return domain.TaxpayerInput{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return in, nil
}

// summaryLines are the Form 1040 lines shown when no form is selected.
var summaryLines = []struct{ line, label string }{
	{"9", "Total income"},
	{"11", "Adjusted gross income"},
	{"12", "Deduction"},
	{"15", "Taxable income"},
	{"16", "Tax"},
	{"24", "Total tax"},
	{"33", "Total payments"},
	{"35a_value", "Refund"},
	{"37", "Amount owed"},
}

func printReturn(ret domain.Return, id, form string) error {
	if ret.Unsupported {
		fmt.Println("return not computed:", strings.Join(ret.Warnings, "; "))
		return nil
	}
	if form != "" {
		f, ok := ret.Forms[form]
		if !ok {
			return fmt.Errorf("form %s is not part of this return (have %s)", form, strings.Join(ret.Forms.Keys(), ", "))
		}
		for i, page := range f.Pages() {
			if f.Paginated() {
				fmt.Printf("page %d\n", i+1)
			}
			printFields(page)
		}
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Line", "Form 1040", "Amount"})
	f1040 := ret.Forms.Fields(forms.F1040)
	for _, l := range summaryLines {
		if f1040.Has(l.line) {
			tw.AppendRow(table.Row{l.line, l.label, f1040.Decimal(l.line).StringFixed(2)})
		}
	}
	tw.Render()
	fmt.Println("forms:", strings.Join(ret.Forms.Keys(), ", "))
	for _, w := range ret.Warnings {
		fmt.Println("warning:", w)
	}
	if id != "" {
		fmt.Println("saved as", id)
	}
	return nil
}

func printFields(f domain.Fields) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Field", "Value"})
	keys := f.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		v := f[k]
		if _, ok := v.(bool); ok {
			v = "X"
		}
		tw.AppendRow(table.Row{k, v})
	}
	tw.Render()
}

func printJSONOrTable(v any, render func()) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
