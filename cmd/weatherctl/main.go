// Command weatherctl runs the dashboard's data operations from the shell and
// prints the results as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/app"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

var errWeatherUnavailable = errors.New("weather unavailable for this location")

// loadConfig falls back to built-in defaults when no config file exists, so
// the CLI works outside the repository.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrConfigNotFound) {
		return config.Default(), nil
	}
	return cfg, err
}

type cli struct {
	out      io.Writer
	load     func() (*config.Config, error)
	logLevel string
	timeout  time.Duration
	pretty   bool

	deps   *app.App
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd(out io.Writer, load func() (*config.Config, error)) *cobra.Command {
	return newCLI(out, load).rootCmd()
}

func newCLI(out io.Writer, load func() (*config.Config, error)) *cli {
	return &cli{out: out, load: load}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "weatherctl",
		Short:         "Query locations and weather the way the dashboard does",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "overall deadline for the command")
	root.PersistentFlags().BoolVar(&c.pretty, "pretty", true, "indent JSON output")

	root.AddCommand(
		c.locateCmd(),
		c.searchCmd(),
		c.weatherCmd(),
		c.batchCmd(),
		c.outlookCmd(),
		c.mapCmd(),
	)
	return root
}

func (c *cli) setup(ctx context.Context) error {
	logger, err := observability.NewLoggerAt(c.logLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	cfg, err := c.load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	c.logger, c.cfg, c.deps = logger, cfg, deps
	return nil
}

// teardown releases what setup wired. Safe to call more than once.
func (c *cli) teardown() error {
	var err error
	if c.deps != nil {
		err = c.deps.Close()
		c.deps = nil
	}
	if c.logger != nil {
		_ = observability.Flush(c.logger)
		c.logger = nil
	}
	return err
}

// closing wraps a command so the wired dependencies are released whether or
// not it fails. cobra skips post-run hooks after an error.
func (c *cli) closing(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := c.teardown(); err == nil {
				err = cerr
			}
		}()
		return run(cmd, args)
	}
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

func (c *cli) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	if c.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func (c *cli) locateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate [ip]",
		Short: "Resolve a location from an IP address (the caller's when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.closing(func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			ip := ""
			if len(args) == 1 {
				ip = args[0]
			}
			loc, source := c.deps.Dashboard.Locate(ctx, ip)
			return c.print(map[string]interface{}{"location": loc, "source": source})
		}),
	}
}

func (c *cli) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search bundled cities, then the geocoding API",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.closing(func(cmd *cobra.Command, args []string) error {
			q, err := validation.ValidateQuery(strings.Join(args, " "), validation.DefaultMaxQueryLength)
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			return c.print(map[string]interface{}{"results": c.deps.Dashboard.Search(ctx, q)})
		}),
	}
}

func (c *cli) weatherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weather <lat> <lon>",
		Short: "Fetch current conditions, hourly and daily forecast",
		Args:  cobra.ExactArgs(2),
		RunE: c.closing(func(cmd *cobra.Command, args []string) error {
			coord, err := validation.ParseCoordinate(args[0], args[1])
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			data, ok := c.deps.Dashboard.Weather(ctx, coord.Lat, coord.Lon)
			if !ok {
				return errWeatherUnavailable
			}
			return c.print(data)
		}),
	}
}

func (c *cli) batchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <lat,lon>...",
		Short: "Fetch current conditions for many coordinates",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.closing(func(cmd *cobra.Command, args []string) error {
			req := validation.BatchRequest{Coordinates: make([]models.Coordinate, 0, len(args))}
			for _, arg := range args {
				lat, lon, found := strings.Cut(arg, ",")
				if !found {
					return fmt.Errorf("%w: %q is not lat,lon", validation.ErrCoordinatesInvalid, arg)
				}
				coord, err := validation.ParseCoordinate(lat, lon)
				if err != nil {
					return err
				}
				req.Coordinates = append(req.Coordinates, coord)
			}
			if err := validation.ValidateBatch(req, c.cfg.BatchMaxCoordinates); err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			points := c.deps.Dashboard.Batch(ctx, req.Coordinates)
			return c.print(map[string]interface{}{"requested": len(req.Coordinates), "points": points})
		}),
	}
}

func (c *cli) outlookCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "outlook",
		Short: "Current conditions for randomly picked bundled cities",
		Args:  cobra.NoArgs,
		RunE: c.closing(func(cmd *cobra.Command, _ []string) error {
			if count < 1 || count > c.cfg.OutlookMaxCount {
				return fmt.Errorf("count must be between 1 and %d", c.cfg.OutlookMaxCount)
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			cities, err := c.deps.Dashboard.Outlook(ctx, count)
			if err != nil {
				return err
			}
			return c.print(map[string]interface{}{"cities": cities})
		}),
	}
	cmd.Flags().IntVarP(&count, "count", "n", 4, "number of cities")
	return cmd
}

func (c *cli) mapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map",
		Short: "Current conditions for the map overview cities",
		Args:  cobra.NoArgs,
		RunE: c.closing(func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			cities, err := c.deps.Dashboard.MapOverview(ctx)
			if err != nil {
				return err
			}
			return c.print(map[string]interface{}{"cities": cities})
		}),
	}
}

func main() {
	root := newRootCmd(os.Stdout, loadConfig)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "weatherctl: %v\n", err)
		os.Exit(1)
	}
}
