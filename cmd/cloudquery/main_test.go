package main

import (
	"bytes"
	"context"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/cloudquery/pointcloud"
)

func writeTestCloud(t *testing.T, dir string) string {
	t.Helper()
	var points []pointcloud.Point
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			points = append(points, pointcloud.NewPointWithIntensity(
				pointcloud.NewVector(float64(i), float64(j), 0), color.NRGBA{R: uint8(i), A: 255}, float32(j)))
		}
	}
	fn := filepath.Join(dir, "grid.pcd")
	var buf bytes.Buffer
	test.That(t, pointcloud.ToPCD(points, &buf, pointcloud.PCDBinary), test.ShouldBeNil)
	test.That(t, os.WriteFile(fn, buf.Bytes(), 0o600), test.ShouldBeNil)
	return fn
}

func TestRunQuery(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()
	cloud := writeTestCloud(t, dir)

	queryFile := filepath.Join(dir, "query.json")
	test.That(t, os.WriteFile(queryFile, []byte(`{
		"location": {"type": "aabb", "min": [-0.5, -0.5, -1], "max": [2.5, 4.5, 1]},
		"global_from_local": {"translation": [0, 0, 0]}
	}`), 0o600), test.ShouldBeNil)

	out := filepath.Join(dir, "out.pcd")
	var stdout bytes.Buffer
	err := runQuery(context.Background(), queryArgs{
		Files:            []string{cloud},
		QueryFile:        queryFile,
		BatchSize:        4,
		Workers:          2,
		MaxPointsPerNode: 8,
		Out:              out,
	}, &stdout, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stdout.String(), test.ShouldContainSubstring, "BATCHES")

	matched, err := pointcloud.NewFromPCDFile(out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(matched), test.ShouldEqual, 3*5)
	for _, p := range matched {
		test.That(t, p.Position.X, test.ShouldBeLessThanOrEqualTo, 2)
		test.That(t, p.Position.Y, test.ShouldBeLessThanOrEqualTo, 4)
		test.That(t, p.HasIntensity, test.ShouldBeTrue)
		test.That(t, p.Color.R, test.ShouldEqual, uint8(p.Position.X))
	}
}

func TestRunQueryAllPoints(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()
	cloud := writeTestCloud(t, dir)

	var stdout bytes.Buffer
	err := runQuery(context.Background(), queryArgs{Files: []string{cloud, cloud}, MaxPointsPerNode: 16}, &stdout, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stdout.String(), test.ShouldContainSubstring, " 200 |")
}

func TestRunQueryLASOutput(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()
	cloud := writeTestCloud(t, dir)

	out := filepath.Join(dir, "out.las")
	err := runQuery(context.Background(), queryArgs{Files: []string{cloud}, Out: out}, &bytes.Buffer{}, logger)
	test.That(t, err, test.ShouldBeNil)

	matched, err := pointcloud.NewFromFile(out, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(matched), test.ShouldEqual, 100)
}

func TestQuerySummary(t *testing.T) {
	summary := newQuerySummary()
	summary.add(&pointcloud.PointData{
		Position: []r3.Vector{{X: 1, Y: -2, Z: 3}, {X: -1, Y: 5, Z: 0}},
		Layers: map[string]pointcloud.LayerData{
			pointcloud.IntensityLayer: pointcloud.F32Layer{float32(math.NaN()), 2},
		},
	})
	summary.add(&pointcloud.PointData{Position: []r3.Vector{{X: 4}}})
	test.That(t, summary.batches, test.ShouldEqual, 2)
	test.That(t, summary.points, test.ShouldEqual, 3)
	test.That(t, summary.withIntensity, test.ShouldEqual, 1)
	test.That(t, summary.largestBatch, test.ShouldEqual, 2)
	test.That(t, summary.min, test.ShouldResemble, [3]float64{-1, -2, 0})
	test.That(t, summary.max, test.ShouldResemble, [3]float64{4, 5, 3})
}

func TestRunQueryErrors(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()
	cloud := writeTestCloud(t, dir)

	err := runQuery(context.Background(), queryArgs{Files: []string{filepath.Join(dir, "missing.pcd")}}, &bytes.Buffer{}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	badQuery := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(badQuery, []byte(`{"location": {"type": "sphere"}}`), 0o600), test.ShouldBeNil)
	err = runQuery(context.Background(), queryArgs{Files: []string{cloud}, QueryFile: badQuery}, &bytes.Buffer{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
