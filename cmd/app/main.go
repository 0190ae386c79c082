package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/lifepress/internal"
	"github.com/starford/lifepress/internal/post"
	"github.com/starford/lifepress/internal/viewer"
	pkgconfig "github.com/starford/lifepress/pkg/config"
)

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	// The default path may be absent; an explicit one must exist.
	load := pkgconfig.LoadOptional[internal.Config]
	if cmd.IsSet("config") {
		load = pkgconfig.Load[internal.Config]
	}
	cfg := internal.NewDefaultConfig()
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}
	if token := cmd.String("github-token"); token != "" {
		opts = append(opts, internal.WithCredential(token))
	}
	return opts, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

// quietApp opens the application with logs on stderr so command output stays parseable.
func quietApp(ctx context.Context, cmd *cli.Command) (*internal.App, error) {
	opts, err := options(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(ctx, append(opts, internal.WithLogOutput(os.Stderr))...)
}

func derive(ctx context.Context, cmd *cli.Command) error {
	app, err := quietApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Service.Derive(ctx, post.Input{
		Type:     post.Type(cmd.String("type")),
		Title:    cmd.String("title"),
		Category: cmd.String("category"),
		Day:      int(cmd.Int("day")),
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func list(ctx context.Context, cmd *cli.Command) error {
	app, err := quietApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	q := viewer.Query{
		Search:  cmd.String("query"),
		Sort:    viewer.ParseSort(cmd.String("sort")),
		Page:    int(cmd.Int("page")),
		PerPage: int(cmd.Int("per-page")),
	}
	if t := cmd.String("type"); t != "" {
		if q.Type, err = post.ParseType(t); err != nil {
			return err
		}
	}
	page, err := app.Service.Query(ctx, q)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, p := range page.Posts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Date.Format(time.DateOnly), p.Type, p.Title, p.Path)
	}
	fmt.Fprintf(w, "\npage %d of %d (%d posts)\n", page.Page, max(page.TotalPages, 1), page.Total)
	return w.Flush()
}

func login(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	owner, err := internal.Login(ctx, cmd.String("token"), opts...)
	if err != nil {
		return err
	}
	fmt.Printf("Credential stored. Repository owner: %s\n", owner)
	return nil
}

func logout(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Logout(ctx, opts...); err != nil {
		return err
	}
	fmt.Println("Stored credential removed.")
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "lifepress",
		Usage:  "Personal Markdown publishing over a GitHub content repository",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "github-token",
				Usage:   "GitHub credential, overrides the config and the stored credential",
				Sources: cli.EnvVars("LIFEPRESS_GITHUB_TOKEN"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:   "derive",
				Usage:  "Print the path a new post would be saved at",
				Action: derive,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Required: true, Usage: "Content type"},
					&cli.StringFlag{Name: "title", Usage: "Post title"},
					&cli.StringFlag{Name: "category", Usage: "TIL category"},
					&cli.IntFlag{Name: "day", Usage: "Day number for 100days posts"},
				},
			},
			{
				Name:   "list",
				Usage:  "List posts, newest first",
				Action: list,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Content type"},
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Text filter"},
					&cli.StringFlag{Name: "sort", Value: "newest", Usage: "newest, oldest or title"},
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "per-page", Value: 20},
				},
			},
			{
				Name:   "login",
				Usage:  "Verify a GitHub credential and store it for later runs",
				Action: login,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Required: true, Sources: cli.EnvVars("GITHUB_TOKEN")},
				},
			},
			{
				Name:   "logout",
				Usage:  "Remove the stored GitHub credential",
				Action: logout,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
