// Package main runs point queries against point cloud files from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/edaniels/golog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go.viam.com/cloudquery/octree"
	"go.viam.com/cloudquery/pointcloud"
)

const (
	// Flags.
	queryFlagFile             = "file"
	queryFlagQuery            = "query"
	queryFlagBatchSize        = "batch-size"
	queryFlagWorkers          = "workers"
	queryFlagMaxPointsPerNode = "max-points-per-node"
	queryFlagOut              = "out"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "cloudquery",
		Usage: "query point clouds through octrees",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("cloudquery")
			} else {
				logger = zap.NewNop().Sugar()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "query",
				Usage:     "stream the points of one or more .las or .pcd files matching a query",
				UsageText: "cloudquery query --file a.pcd [--file b.las] [--query query.json] [other options]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     queryFlagFile,
						Required: true,
						Usage:    "point cloud `FILE`, one octree is built per file",
					},
					&cli.StringFlag{
						Name:  queryFlagQuery,
						Usage: "JSON query `FILE`; all points are selected when omitted",
					},
					&cli.IntFlag{
						Name:  queryFlagBatchSize,
						Usage: "maximum number of points per batch, overrides the query file",
					},
					&cli.IntFlag{
						Name:  queryFlagWorkers,
						Usage: "number of nodes traversed in parallel, overrides the query file",
					},
					&cli.IntFlag{
						Name:  queryFlagMaxPointsPerNode,
						Value: octree.DefaultMaxPointsPerNode,
						Usage: "number of points an octree leaf holds before it is split",
					},
					&cli.StringFlag{
						Name:  queryFlagOut,
						Usage: "write the matching points, in the query's frame, to `FILE` (.las, otherwise binary PCD)",
					},
				},
				Action: func(c *cli.Context) error {
					args := queryArgs{
						Files:            c.StringSlice(queryFlagFile),
						QueryFile:        c.String(queryFlagQuery),
						BatchSize:        c.Int(queryFlagBatchSize),
						Workers:          c.Int(queryFlagWorkers),
						MaxPointsPerNode: c.Int(queryFlagMaxPointsPerNode),
						Out:              c.String(queryFlagOut),
					}
					return runQuery(c.Context, args, c.App.Writer, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type queryArgs struct {
	Files            []string
	QueryFile        string
	BatchSize        int
	Workers          int
	MaxPointsPerNode int
	Out              string
}

// querySummary aggregates the batches delivered by a query.
type querySummary struct {
	batches       int
	points        int
	withIntensity int
	min, max      [3]float64
	largestBatch  int
}

func newQuerySummary() *querySummary {
	return &querySummary{
		min: [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)},
		max: [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
}

func (s *querySummary) add(batch *pointcloud.PointData) {
	s.batches++
	s.points += batch.Len()
	if batch.Len() > s.largestBatch {
		s.largestBatch = batch.Len()
	}
	for _, p := range batch.Position {
		s.min = [3]float64{math.Min(s.min[0], p.X), math.Min(s.min[1], p.Y), math.Min(s.min[2], p.Z)}
		s.max = [3]float64{math.Max(s.max[0], p.X), math.Max(s.max[1], p.Y), math.Max(s.max[2], p.Z)}
	}
	if intensity, ok := batch.Intensity(); ok {
		for _, v := range intensity {
			if !math.IsNaN(float64(v)) {
				s.withIntensity++
			}
		}
	}
}

func (s *querySummary) render(duration time.Duration) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Batches", "Points", "With Intensity", "Largest Batch", "Min", "Max", "Duration"})
	bounds := func(v [3]float64) string {
		if s.points == 0 {
			return ""
		}
		return fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", v[0], v[1], v[2])
	}
	t.AppendRow([]interface{}{
		s.batches, s.points, s.withIntensity, s.largestBatch, bounds(s.min), bounds(s.max), duration.Round(time.Millisecond),
	})
	return t.Render()
}

func readQueryConfig(fn string) (*octree.QueryConfig, error) {
	if fn == "" {
		return &octree.QueryConfig{}, nil
	}
	//nolint:gosec
	raw, err := os.ReadFile(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "reading query file %q", fn)
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, errors.Wrapf(err, "parsing query file %q", fn)
	}
	return octree.DecodeQueryConfig(attrs)
}

func buildOctrees(ctx context.Context, files []string, maxPointsPerNode int, logger golog.Logger) ([]octree.Octree, error) {
	octrees := make([]octree.Octree, 0, len(files))
	for _, fn := range files {
		points, err := pointcloud.NewFromFile(fn, logger)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			logger.Infow("skipping empty point cloud", "file", fn)
			continue
		}
		tree, err := octree.NewFromPoints(ctx, points, logger, octree.WithMaxPointsPerNode(maxPointsPerNode))
		if err != nil {
			return nil, errors.Wrapf(err, "building octree of %q", fn)
		}
		octrees = append(octrees, tree)
	}
	return octrees, nil
}

func runQuery(ctx context.Context, args queryArgs, out io.Writer, logger golog.Logger) (err error) {
	cfg, err := readQueryConfig(args.QueryFile)
	if err != nil {
		return err
	}
	if args.BatchSize > 0 {
		cfg.Iterator.BatchSize = args.BatchSize
	}
	if args.Workers > 0 {
		cfg.Iterator.Workers = args.Workers
	}
	query, err := cfg.PointQuery()
	if err != nil {
		return err
	}

	octrees, err := buildOctrees(ctx, args.Files, args.MaxPointsPerNode, logger)
	if err != nil {
		return err
	}
	if len(octrees) == 0 {
		return errors.New("no points to query")
	}

	var matched []pointcloud.Point
	summary := newQuerySummary()
	start := time.Now()
	it := octree.NewBatchIterator(octrees, query, cfg.Iterator.BatchSize,
		octree.WithLogger(logger), octree.WithIteratorConfig(cfg.Iterator))
	if err := it.TryForEachBatch(ctx, func(batch *pointcloud.PointData) error {
		summary.add(batch)
		if args.Out != "" {
			matched = appendBatchPoints(matched, batch)
		}
		return nil
	}); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, summary.render(time.Since(start))); err != nil {
		return err
	}

	if args.Out == "" {
		return nil
	}
	if filepath.Ext(args.Out) == ".las" {
		return pointcloud.WriteToLASFile(matched, args.Out)
	}
	//nolint:gosec
	f, err := os.Create(args.Out)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return pointcloud.ToPCD(matched, f, pointcloud.PCDBinary)
}

// appendBatchPoints converts a columnar batch back into points.
func appendBatchPoints(points []pointcloud.Point, batch *pointcloud.PointData) []pointcloud.Point {
	colors, hasColor := batch.Color()
	intensity, hasIntensity := batch.Intensity()
	for i, pos := range batch.Position {
		p := pointcloud.Point{Position: pos, Color: color.NRGBA{R: 255, G: 255, B: 255, A: 255}}
		if hasColor {
			c := colors[i]
			p.Color = color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
		}
		if hasIntensity && !math.IsNaN(float64(intensity[i])) {
			p.Intensity = intensity[i]
			p.HasIntensity = true
		}
		points = append(points, p)
	}
	return points
}
