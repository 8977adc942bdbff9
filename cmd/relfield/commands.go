package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/relfield/internal/config"
	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/host"
	"github.com/kalambet/relfield/internal/storage"
	"github.com/kalambet/relfield/internal/surface"
	"github.com/kalambet/relfield/internal/syncer"
	"github.com/kalambet/relfield/internal/validator"
)

// --- configure ---

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set the field's JQL filter and display name",
	Long: `Set the field's JQL filter and display name.

The JQL is validated against Jira before it is saved. Blank values keep the
currently stored ones.

Examples:
  relfield configure --jql 'project = OPS AND status != Done' --name "Blocked by"
  relfield configure --file field.yaml --sync`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jql, _ := cmd.Flags().GetString("jql")
		name, _ := cmd.Flags().GetString("name")
		file, _ := cmd.Flags().GetString("file")
		doSync, _ := cmd.Flags().GetBool("sync")

		if jql == "" && name == "" && file == "" {
			return fmt.Errorf("one of --jql, --name, or --file is required")
		}

		var in fieldconfig.Configuration
		if file != "" {
			var err error
			if in, err = readConfigurationFile(file); err != nil {
				return err
			}
		}
		if jql != "" {
			in.JQL = jql
		}
		if name != "" {
			in.DisplayName = name
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireField(); err != nil {
			return err
		}
		jc, err := newJiraClient(cfg)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		bridge := host.NewBridge(store, targetFor(cfg, ""))
		saved, err := runConfigure(ctx, bridge, jc, validator.Options{Debounce: cfg.Validation.Debounce}, in)
		if err != nil {
			return err
		}
		printSuccess("Saved configuration for %s", cfg.Field.ID)
		printStatus("JQL", "%s", saved.JQL)
		printStatus("Display name", "%s", saved.DisplayName)

		if !doSync {
			printStep("Sync to Jira queued; it runs with the server or `relfield sync run`")
			return nil
		}
		return drainJobs(ctx, store, syncer.NewWorker(store, jc, nil, 0))
	},
}

func init() {
	configureCmd.Flags().String("jql", "", "JQL filter restricting the selectable issues")
	configureCmd.Flags().String("name", "", "display name shown above the field")
	configureCmd.Flags().String("file", "", "YAML file with jql and displayName keys")
	configureCmd.Flags().Bool("sync", false, "push the configuration to Jira immediately")
}

func readConfigurationFile(path string) (fieldconfig.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fieldconfig.Configuration{}, fmt.Errorf("reading configuration file: %w", err)
	}
	var c fieldconfig.Configuration
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fieldconfig.Configuration{}, fmt.Errorf("parsing configuration file %s: %w", path, err)
	}
	return c, nil
}

// runConfigure loads the configuration surface, applies the non-blank values
// of in and submits the form.
func runConfigure(ctx context.Context, bridge surface.Bridge, parser validator.Parser, opts validator.Options, in fieldconfig.Configuration) (fieldconfig.Configuration, error) {
	s := surface.NewConfigurationSurface(bridge, parser, opts)
	defer s.Close()

	if err := s.Load(ctx); err != nil {
		return fieldconfig.Configuration{}, err
	}
	if in.JQL != "" {
		s.SetJQL(in.JQL)
	}
	if in.DisplayName != "" {
		s.SetDisplayName(in.DisplayName)
	}
	return s.Submit(ctx)
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <jql>",
	Short: "Validate a JQL query against Jira",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jc, err := newJiraClient(cfg)
		if err != nil {
			return err
		}

		st := runValidate(cmd.Context(), jc, strings.Join(args, " "))
		return reportValidation(os.Stdout, st)
	},
}

func runValidate(ctx context.Context, parser validator.Parser, jql string) validator.State {
	v := validator.New(parser, validator.Options{})
	defer v.Close()
	return v.Validate(ctx, jql)
}

func reportValidation(w io.Writer, st validator.State) error {
	switch st.Phase {
	case validator.Valid:
		fmt.Fprintln(w, colorize(styleSuccess, "valid"))
		return nil
	case validator.Idle:
		return fmt.Errorf("query is empty")
	default:
		fmt.Fprintln(w, colorize(styleError, "invalid: "+st.Reason))
		return surface.ErrInvalidQuery
	}
}

// --- view ---

var viewCmd = &cobra.Command{
	Use:   "view <issue-key>",
	Short: "Show the related issue stored on an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, _ := cmd.Flags().GetBool("local")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireField(); err != nil {
			return err
		}
		jc, err := newJiraClient(cfg)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := fieldResolver(cfg, store, local)
		if err != nil {
			return err
		}

		vs := surface.NewViewSurface(host.NewBridge(store, targetFor(cfg, args[0])), res, jc)
		return renderView(os.Stdout, vs.Load(cmd.Context()))
	},
}

func init() {
	viewCmd.Flags().Bool("local", false, "read the field configuration from local storage instead of the server")
}

func renderView(w io.Writer, st surface.ViewState) error {
	fmt.Fprintln(w, colorize(styleBold, st.Heading))
	switch st.Status {
	case surface.ViewEmpty:
		fmt.Fprintln(w, colorize(styleFaint, "  None"))
	case surface.ViewError:
		fmt.Fprintln(w, colorize(styleError, "  "+st.Err))
		return errors.New(st.Err)
	case surface.ViewSuccess:
		iss := st.Issue
		typ := iss.TypeName
		if typ == "" {
			typ = "Issue"
		}
		fmt.Fprintf(w, "  %s %s\n", colorize(styleStep, iss.Key), iss.Summary)
		fmt.Fprintf(w, "  %s\n", colorize(styleFaint, typ+" · "+iss.URL))
	}
	return nil
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued configurations and values to Jira",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process all due sync jobs now",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jc, err := newJiraClient(cfg)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		return drainJobs(cmd.Context(), store, syncer.NewWorker(store, jc, nil, 0))
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync job counts and recent failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		printJobCounts(store)
		printFailedJobs(store, 10)
		return nil
	},
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed sync jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.RetryFailedJobs()
		if err != nil {
			return fmt.Errorf("requeueing failed jobs: %w", err)
		}
		printSuccess("Requeued %d failed job(s)", n)
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncRunCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncRetryCmd)
}

func drainJobs(ctx context.Context, store *storage.Store, w *syncer.Worker) error {
	n, err := w.Drain(ctx)
	if err != nil {
		return fmt.Errorf("syncing: %w", err)
	}
	counts, err := store.CountJobsByStatus()
	if err != nil {
		return err
	}
	if failed := counts[storage.JobFailed]; failed > 0 {
		printWarning("Processed %d job(s), %d failed; see `relfield sync retry`", n, failed)
		return nil
	}
	printSuccess("Processed %d job(s)", n)
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(styleBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if key == "jira.api_token" {
			printSuccess("Stored %s in the keychain", key)
			return nil
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:       "unset <key>",
	Short:     "Remove a configuration value so its default applies",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
