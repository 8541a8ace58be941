// Command gpu-checkpoint detects GPU-backed allocations in a running
// process and checkpoints or restores them via BAR sliding. Grounded on
// leptonai-gpud/cmd/gpud's urfave/cli wiring and
// original_source/src/main.go's Detect/Checkpoint/Restore subcommands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/alexeldeib/gpu-checkpoint/internal/checkpoint"
	"github.com/alexeldeib/gpu-checkpoint/internal/detector"
	"github.com/alexeldeib/gpu-checkpoint/internal/log"
	"github.com/alexeldeib/gpu-checkpoint/internal/metrics"
	"github.com/alexeldeib/gpu-checkpoint/internal/nvmlinfo"
	"github.com/alexeldeib/gpu-checkpoint/internal/restore"
	"github.com/alexeldeib/gpu-checkpoint/internal/strategy"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gpu-checkpoint: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "gpu-checkpoint"
	app.Usage = "detect, checkpoint, and restore GPU-backed process memory"

	logLevelFlag := cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn, or error",
		Value: "info",
	}

	app.Commands = []cli.Command{
		{
			Name:  "detect",
			Usage: "scan a process for GPU-backed allocations",
			Flags: []cli.Flag{
				logLevelFlag,
				cli.IntFlag{Name: "pid", Usage: "target process ID"},
				cli.StringFlag{Name: "format", Value: "human", Usage: "human or json"},
			},
			Action: cmdDetect,
		},
		{
			Name:  "checkpoint",
			Usage: "checkpoint a process's GPU-backed memory",
			Flags: []cli.Flag{
				logLevelFlag,
				cli.IntFlag{Name: "pid", Usage: "target process ID"},
				cli.StringFlag{Name: "storage", Value: ".", Usage: "output directory"},
				cli.StringFlag{Name: "strategy", Value: "auto", Usage: "auto, cuda, bar-sliding, or hybrid"},
				cli.IntFlag{Name: "bandwidth", Usage: "advisory MB/s cap; unused by the bar-sliding path today"},
			},
			Action: cmdCheckpoint,
		},
		{
			Name:  "restore",
			Usage: "restore a checkpoint into a target process",
			Flags: []cli.Flag{
				logLevelFlag,
				cli.StringFlag{Name: "metadata", Usage: "path to the checkpoint file"},
				cli.StringFlag{Name: "storage", Value: ".", Usage: "directory containing the checkpoint, if metadata is relative"},
				cli.IntFlag{Name: "target-pid", Usage: "override the PID recorded in the checkpoint header"},
			},
			Action: cmdRestore,
		},
	}
	return app
}

func setupLogging(c *cli.Context) error {
	lvl, err := log.ParseLogLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	log.Current = log.CreateLogger(lvl, "")
	return nil
}

func cmdDetect(c *cli.Context) error {
	if err := setupLogging(c); err != nil {
		return err
	}
	pid := uint32(c.Int("pid"))

	composite := detector.NewCompositeDetector()
	results, err := composite.DetectAll(context.Background(), pid)
	if err != nil {
		return err
	}

	if infos := nvmlinfo.Collect(); len(infos) > 0 {
		for _, info := range infos {
			log.Current.Debugw("nvml device present", "index", info.Index, "product", info.ProductName)
		}
	}

	switch c.String("format") {
	case "json":
		return printDetectJSON(results)
	default:
		printDetectHuman(results)
		return nil
	}
}

func printDetectJSON(results []*detector.DetectionResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func printDetectHuman(results []*detector.DetectionResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Vendor", "Allocations", "Total Memory", "Problematic"})
	for _, r := range results {
		table.Append([]string{
			r.Vendor.String(),
			fmt.Sprintf("%d", len(r.Allocations)),
			humanize.IBytes(r.TotalGpuMemory),
			fmt.Sprintf("%t", r.HasProblematicAllocations()),
		})
	}
	table.Render()
}

func cmdCheckpoint(c *cli.Context) error {
	if err := setupLogging(c); err != nil {
		return err
	}
	pid := uint32(c.Int("pid"))

	composite := detector.NewCompositeDetector()
	results, err := composite.DetectAll(context.Background(), pid)
	if err != nil {
		return err
	}

	var result *detector.DetectionResult
	if len(results) > 0 {
		result = results[0]
	} else {
		result = detector.NewDetectionResult(pid, detector.VendorUnknown)
	}

	strat, err := resolveStrategy(c.String("strategy"), result)
	if err != nil {
		return err
	}
	metrics.StrategySelections.WithLabelValues(strat.String()).Inc()
	log.Current.Infow("selected checkpoint strategy", "pid", pid, "strategy", strat.String())

	outPath := filepath.Join(c.String("storage"), fmt.Sprintf("%d.ckpt", pid))
	w := checkpoint.NewWriter()
	meta, err := w.CheckpointProcess(pid, result, outPath)
	if err != nil {
		return err
	}

	log.Current.Infow("checkpoint complete",
		"pid", meta.Pid, "path", meta.Path,
		"bytes", humanize.IBytes(meta.SizeBytes),
		"allocations", meta.NumAllocations,
		"duration_ms", meta.DurationMs)
	return nil
}

// resolveStrategy turns the CLI's --strategy flag into a concrete Strategy,
// resolving "auto" (or an empty flag) via strategy.Select.
func resolveStrategy(flag string, result *detector.DetectionResult) (strategy.Strategy, error) {
	parsed, err := strategy.ParseStrategy(flag)
	if err != nil {
		return strategy.Auto, err
	}
	if parsed == strategy.Auto {
		return strategy.Select(result), nil
	}
	return parsed, nil
}

func cmdRestore(c *cli.Context) error {
	if err := setupLogging(c); err != nil {
		return err
	}

	path := c.String("metadata")
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.String("storage"), path)
	}

	var targetPid *uint32
	if c.IsSet("target-pid") {
		v := uint32(c.Int("target-pid"))
		targetPid = &v
	}

	start := time.Now()
	r := restore.NewRestorer()
	meta, err := r.RestoreFromCheckpoint(path, targetPid)
	if err != nil {
		return err
	}

	log.Current.Infow("restore complete",
		"pid", meta.Pid,
		"allocations", meta.NumAllocations,
		"bytes", humanize.IBytes(meta.TotalSize),
		"duration_ms", meta.DurationMs,
		"wall_ms", time.Since(start).Milliseconds())
	return nil
}
