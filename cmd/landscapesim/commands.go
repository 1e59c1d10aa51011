package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/initializer"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
	"landscapesim/pkg/landscape/runjob"
)

const (
	exitOK = iota
	exitFailure
	exitUsage
	exitConfig
)

type rootOptions struct {
	envFile    string
	configFile string

	cfg *config.Config
	// init adjusts the initializer before it runs.
	init func(*initializer.BatchInitializer)
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "landscapesim",
		Short:         "Drive landscape simulation libraries and record their results",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			data := embeddedConfig
			if opts.configFile != "" {
				b, err := os.ReadFile(opts.configFile)
				if err != nil {
					return exception.New(exception.KindConfiguration, "cli", "cannot read "+opts.configFile, err)
				}
				data = b
			}
			cfg, err := initializer.LoadConfig(opts.envFile, data)
			if err != nil {
				return err
			}
			logger.Configure(cmd.ErrOrStderr(), cfg.System.Logging.Format)
			opts.cfg = cfg
			return nil
		},
	}

	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = ".env"
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env", envFile, "dotenv file loaded before the configuration")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML configuration replacing the built-in one")

	root.AddCommand(
		newRegisterCmd(opts),
		newSubmitCmd(opts),
		newRunCmd(opts),
		newStatusCmd(opts),
		newJobsCmd(opts),
		newPollCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// execute runs the command line and maps the error to an exit code.
func execute(ctx context.Context, args []string) int {
	return executeWith(ctx, args, &rootOptions{}, os.Stdout, os.Stderr)
}

func executeWith(ctx context.Context, args []string, opts *rootOptions, stdout, stderr io.Writer) int {
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, "error:", err)
	switch {
	case exception.IsKind(err, exception.KindConfiguration):
		return exitConfig
	case exception.IsKind(err, exception.KindValidation), exception.IsKind(err, exception.KindScope):
		return exitUsage
	default:
		return exitFailure
	}
}

// withApp initializes the application around fn. open also opens every
// configured library and builds the job service.
func withApp(ctx context.Context, opts *rootOptions, open bool, fn func(*initializer.App) error) error {
	bi := initializer.NewBatchInitializer(opts.cfg)
	if opts.init != nil {
		opts.init(bi)
	}
	app, err := bi.Initialize(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Errorf("failed to release resources: %v", cerr)
		}
	}()
	if open {
		if err := app.OpenLibraries(ctx); err != nil {
			return err
		}
	}
	return fn(app)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register [library...]",
		Short: "Import configured libraries into the store",
		Long:  "Import every project and scenario of the named libraries, or of all configured libraries when none is named. A library already in the store is rejected.",
		RunE: func(cmd *cobra.Command, args []string) error {
			libs := opts.cfg.Libraries
			if len(args) > 0 {
				libs = libs[:0:0]
				for _, name := range args {
					l, ok := opts.cfg.Library(name)
					if !ok {
						return exception.Newf(exception.KindValidation, "cli", "library %q is not configured", name)
					}
					libs = append(libs, l)
				}
			}
			return withApp(cmd.Context(), opts, false, func(app *initializer.App) error {
				for _, l := range libs {
					if _, err := app.Registrar.Register(cmd.Context(), l.Name, l.File, l.OriginalFile); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", l.Name)
				}
				return nil
			})
		},
	}
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		req        runjob.SubmitRequest
		configFile string
		runNow     bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Record a run request for a baseline scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return exception.New(exception.KindValidation, "cli", "cannot read "+configFile, err)
			}
			if err := json.Unmarshal(data, &req.Config); err != nil {
				return exception.New(exception.KindValidation, "cli", configFile+" is not a JSON object", err)
			}
			return withApp(cmd.Context(), opts, true, func(app *initializer.App) error {
				v, err := app.Service.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if runNow {
					v, err = app.Service.Run(cmd.Context(), v.UUID)
					if v == nil {
						return err
					}
					if perr := printJSON(cmd.OutOrStdout(), v); perr != nil {
						return perr
					}
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	}
	cmd.Flags().StringVar(&req.LibraryName, "library", "", "registered library name (required)")
	cmd.Flags().IntVar(&req.PID, "pid", 0, "project id in the engine library (required)")
	cmd.Flags().IntVar(&req.SID, "sid", 0, "baseline scenario id in the engine library (required)")
	cmd.Flags().StringVar(&configFile, "config-file", "", "JSON run configuration (required)")
	cmd.Flags().BoolVar(&runNow, "run", false, "run the job right away instead of leaving it waiting")
	_ = cmd.MarkFlagRequired("library")
	_ = cmd.MarkFlagRequired("pid")
	_ = cmd.MarkFlagRequired("sid")
	_ = cmd.MarkFlagRequired("config-file")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run a waiting job to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, true, func(app *initializer.App) error {
				v, err := app.Service.Run(cmd.Context(), args[0])
				if v == nil {
					return err
				}
				if perr := printJSON(cmd.OutOrStdout(), v); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job>",
		Short: "Show the state, outputs and progress of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, true, func(app *initializer.App) error {
				v, err := app.Service.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	}
}

func newJobsCmd(opts *rootOptions) *cobra.Command {
	var library string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the jobs of a library, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, false, func(app *initializer.App) error {
				jobs, err := app.Store.ListJobs(cmd.Context(), library)
				if err != nil {
					return err
				}
				for _, j := range jobs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", j.UUID, j.ModelStatus, j.Status, j.CreatedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "registered library name (required)")
	_ = cmd.MarkFlagRequired("library")
	return cmd
}

func newPollCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poll [library...]",
		Short: "Record result scenarios the engine produced outside a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, true, func(app *initializer.App) error {
				names := args
				if len(names) == 0 {
					names = app.Service.Libraries()
				}
				for _, name := range names {
					created, err := app.Poller.Poll(cmd.Context(), name)
					if err != nil {
						return err
					}
					for _, sc := range created {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\tsid %d\t%s\n", name, sc.SID, sc.Name)
					}
				}
				return nil
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run waiting jobs and poll for engine output until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, true, func(app *initializer.App) error {
				if app.Metrics != nil {
					srv := &http.Server{Addr: app.Config.Metrics.ListenAddr, Handler: app.Metrics.Handler()}
					go func() {
						logger.Infof("serving metrics on %s", srv.Addr)
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							logger.Errorf("metrics server stopped: %v", err)
						}
					}()
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
						defer cancel()
						_ = srv.Shutdown(shutdownCtx)
					}()
				}

				interval := app.PollInterval()
				go app.Poller.Start(ctx, interval)
				dispatch(ctx, app.Service, interval)
				logger.Infof("serve stopped")
				return nil
			})
		},
	}
}

// dispatch runs waiting jobs of every library each interval until ctx is done.
func dispatch(ctx context.Context, svc *runjob.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, name := range svc.Libraries() {
			views, err := svc.RunWaiting(ctx, name)
			if err != nil && ctx.Err() == nil {
				logger.Errorf("dispatch of %s failed: %v", name, err)
			}
			for _, v := range views {
				logger.Infof("job %s finished as %s", v.UUID, v.ModelStatus)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
