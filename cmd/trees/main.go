package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-trees/internal/focus"
	"github.com/joeblew999/plat-trees/internal/logging"
	"github.com/joeblew999/plat-trees/internal/server"
)

// Options defines all CLI flags and env vars for the tree map server.
// Flags: --host, --port, --data-dir, --web-dir, --log-level, --log-format, --grid-size, --no-db, --duckdb-ext
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir   string `doc:"Directory holding trees.geojson, owners.json and the DuckDB file" default:".data"`
	WebDir    string `doc:"Optional directory with viewer.html and static/"`
	LogLevel  string `doc:"Log level: debug, info, warn, error" default:"info"`
	LogFormat string `doc:"Log encoding: json or console" default:"json"`
	GridSize  string `doc:"Dense focus cell size in degrees" default:"0.02"`
	NoDB      bool   `doc:"Disable the DuckDB mirror"`
	DuckDBExt string `name:"duckdb-ext" doc:"Comma-separated DuckDB extensions to load, e.g. spatial"`
}

func (o *Options) gridSize() float64 {
	size, err := strconv.ParseFloat(o.GridSize, 64)
	if err != nil || size <= 0 {
		return focus.DefaultGridSize
	}
	return size
}

func (o *Options) extensions() []string {
	var out []string
	for _, ext := range strings.Split(o.DuckDBExt, ",") {
		if ext = strings.TrimSpace(ext); ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func newServer(opts *Options, logger *zap.Logger) (*server.Server, error) {
	return server.New(server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		DataDir:    opts.DataDir,
		WebDir:     opts.WebDir,
		GridSize:   opts.gridSize(),
		NoDB:       opts.NoDB,
		Extensions: opts.extensions(),
		Logger:     logger,
	})
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server
		var logger *zap.Logger

		hooks.OnStart(func() {
			var err error
			logger, err = logging.New(opts.LogLevel, opts.LogFormat)
			if err != nil {
				fatal("Error: %v", err)
			}
			defer logger.Sync()

			srv, err = newServer(opts, logger)
			if err != nil {
				logger.Fatal("server setup failed", zap.Error(err))
			}
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			logger.Info("plat-trees API server starting",
				zap.String("server", baseURL),
				zap.String("data", opts.DataDir),
				zap.String("source", srv.Trees().Source()),
				zap.String("docs", baseURL+"/docs"),
				zap.String("openapi", baseURL+"/openapi.json"),
				zap.String("metrics", baseURL+"/metrics"),
			)

			if err := http.ListenAndServe(addr, srv); err != nil {
				logger.Fatal("server error", zap.Error(err))
			}
		})
	})

	cli.Root().Use = "trees"
	cli.Root().Short = "Tree map service: dense focus and visible-by-proximity navigation"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoDB = true
			srv, err := newServer(opts, zap.NewNop())
			if err != nil {
				fatal("Error creating server: %v", err)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fatal("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// focus subcommand: dense focus over a GeoJSON file
	focusCmd := &cobra.Command{
		Use:   "focus <file.geojson>",
		Short: "Print the dense focus point of a GeoJSON tree file",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			owner, _ := cmd.Flags().GetString("owner")
			data, err := os.ReadFile(args[0])
			if err != nil {
				fatal("Error: %v", err)
			}
			if err := runFocus(cmd.OutOrStdout(), data, owner, opts.gridSize()); err != nil {
				fatal("Error: %v", err)
			}
		}),
	}
	focusCmd.Flags().String("owner", "", "Only trees owned by this email")
	cli.Root().AddCommand(focusCmd)

	// visible subcommand: proximity ordering over a GeoJSON file
	visibleCmd := &cobra.Command{
		Use:   "visible <file.geojson>",
		Short: "List the trees inside --bounds, nearest to --center first",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			owner, _ := cmd.Flags().GetString("owner")
			bounds, _ := cmd.Flags().GetString("bounds")
			center, _ := cmd.Flags().GetString("center")
			data, err := os.ReadFile(args[0])
			if err != nil {
				fatal("Error: %v", err)
			}
			if err := runVisible(cmd.OutOrStdout(), data, owner, bounds, center); err != nil {
				fatal("Error: %v", err)
			}
		}),
	}
	visibleCmd.Flags().String("owner", "", "Only trees owned by this email")
	visibleCmd.Flags().String("bounds", "", "Viewport as west,south,east,north")
	visibleCmd.Flags().String("center", "", "Reference point as lon,lat (default: viewport center)")
	visibleCmd.MarkFlagRequired("bounds")
	cli.Root().AddCommand(visibleCmd)

	cli.Run()
}
