// Command kegctl is a thin illustrative consumer of the keg library: it
// wires a remote, a store directory, and CDN/verify flags into a
// keg.Client and drives one operation per invocation. It is not a CLI
// dispatcher in its own right, only a flag-parsing example.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"keg/fetch"
	"keg/keg"
)

func main() {
	app := &cli.App{
		Name:  "kegctl",
		Usage: "example client for an NGDP content-distribution remote",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "remote",
				Aliases:  []string{"r"},
				Usage:    "remote base URL, e.g. http://us.patch.battle.net:1119/wow",
				Required: true,
				EnvVars:  []string{"KEGCTL_REMOTE"},
			},
			&cli.StringFlag{
				Name:    "store",
				Aliases: []string{"s"},
				Usage:   "local store directory",
				Value:   ".keg",
				EnvVars: []string{"KEGCTL_STORE"},
			},
			&cli.StringFlag{
				Name:  "cdn-url",
				Usage: "force a specific CDN base URL instead of selecting one",
			},
			&cli.StringSliceFlag{
				Name:  "prefer-cdn",
				Usage: "CDN name to prefer if no forced URL is set (repeatable)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "bulk download concurrency",
				Value: fetch.DefaultConcurrency,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "emit debug-level structured logs",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "versions",
				Usage:  "list the remote's versions catalog",
				Action: versionsAction,
			},
			{
				Name:   "cdns",
				Usage:  "list the remote's cdns catalog",
				Action: cdnsAction,
			},
			{
				Name:  "fetch",
				Usage: "fetch every build named in the versions catalog",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "metadata-only",
						Usage: "stop after configs and archive indices",
					},
				},
				Action: fetchAction,
			},
			{
				Name:      "install",
				Usage:     "fetch a build and install it under a destination directory",
				ArgsUsage: "<dest-dir>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "only install entries carrying every given tag (repeatable)",
					},
				},
				Action: installAction,
			},
			{
				Name:  "repair",
				Usage: "sweep the local object store for orphaned or corrupt objects",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "full-verify",
						Usage: "re-verify every object's content hash, not just orphaned temp files",
					},
				},
				Action: repairAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Default().Error(err.Error())
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openClient(c *cli.Context) (*keg.Client, error) {
	return keg.Open(keg.Config{
		Remote:        c.String("remote"),
		StoreDir:      c.String("store"),
		ForcedCDNURL:  c.String("cdn-url"),
		PreferredCDNs: c.StringSlice("prefer-cdn"),
		Concurrency:   c.Int("concurrency"),
		Logger:        newLogger(c),
	})
}

func versionsAction(c *cli.Context) error {
	client, err := openClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	versions, err := client.Versions(ctx)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	for _, v := range versions {
		fmt.Printf("%-6s buildid=%-10d buildconfig=%s cdnconfig=%s %s\n",
			v.Region, v.BuildID, v.BuildConfig, v.CDNConfig, v.VersionsName)
	}
	return nil
}

func cdnsAction(c *cli.Context) error {
	client, err := openClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	rows, err := client.CDNs(ctx)
	if err != nil {
		return fmt.Errorf("listing cdns: %w", err)
	}
	for _, r := range rows {
		fmt.Printf("%-6s path=%-20s hosts=%v\n", r.Name, r.Path, []string(r.Hosts))
	}
	return nil
}

func fetchAction(c *cli.Context) error {
	client, err := openClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	versions, err := client.Versions(ctx)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}

	result, err := client.Fetch(ctx, versions, fetch.RunOptions{MetadataOnly: c.Bool("metadata-only")})
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	fmt.Printf("run=%s builds=%d configs=%d indices=%d archives=%d loose=%d patches=%d transferred=%s\n",
		result.RunID, len(result.Builds), result.FetchedConfigs, result.FetchedIndices,
		result.FetchedArchives, result.FetchedLoose, result.FetchedPatches,
		humanize.Bytes(uint64(result.BytesFetched)))
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return nil
}

func installAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: kegctl install [flags] <dest-dir>")
	}
	destDir := c.Args().First()

	client, err := openClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	versions, err := client.Versions(ctx)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}

	result, err := client.Fetch(ctx, versions, fetch.RunOptions{})
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	for _, b := range result.Builds {
		installResult, err := client.Install(ctx, b, destDir, c.StringSlice("tag")...)
		if err != nil {
			return fmt.Errorf("install %s: %w", b.BuildConfigKey, err)
		}
		fmt.Printf("build=%s installed=%d skipped=%d conflicts=%d\n",
			b.BuildConfigKey, installResult.Installed, installResult.Skipped, installResult.Conflicts)
	}
	return nil
}

func repairAction(c *cli.Context) error {
	client, err := openClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Repair(context.Background(), c.Bool("full-verify"))
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	fmt.Printf("removed-temp=%d verified=%d removed-corrupt=%d\n",
		result.RemovedTemp, result.Verified, result.RemovedCorrupt)
	return nil
}
