package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Octogonapus/diskbench/aggregator"
	"github.com/Octogonapus/diskbench/artifact"
	"github.com/Octogonapus/diskbench/config"
	"github.com/Octogonapus/diskbench/publisher"
	"github.com/Octogonapus/diskbench/report"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse captured DiskSPD output into CSV summaries",
	Long: `
Reads node-<i>.txt and single-node.txt from --output-dir and writes

	<output-dir>/<instance-tag>/<block-size>K/benchmark_summary_<block-size>K.csv
	<output-dir>/<instance-tag>/<block-size>K/benchmark_<benchmark-id>_<block-size>K.csv

Files that only record a log capture failure are skipped. With --publish the output
directory is uploaded to publish.bucket.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, map[string]string{
			"output.instance_tag": "instance-tag",
			"output.benchmark_id": "benchmark-id",
			"publish.bucket":      "bucket",
			"publish.prefix":      "prefix",
		})
		if err != nil {
			return err
		}
		publish, err := cmd.Flags().GetBool("publish")
		if err != nil {
			return err
		}
		return parseResults(cmd.Context(), cmd.OutOrStdout(), afero.NewOsFs(), cfg, publish || cfg.Publish.Bucket != "")
	},
}

func init() {
	parseCmd.Flags().String("instance-tag", "Standard_D4s_v3", "Instance size the run was made on. Names the top-level output directory.")
	parseCmd.Flags().String("benchmark-id", "benchmark-01", "Identifier written into every record.")
	parseCmd.Flags().Bool("publish", false, "Upload the output directory to S3 after parsing.")
	parseCmd.Flags().String("bucket", "", "S3 bucket results are published to.")
	parseCmd.Flags().String("prefix", "", "Key prefix for published results.")
}

// Extracts and aggregates the artifacts under output.dir, printing a summary to out, then publishes the
// output directory when publish is set.
func parseResults(ctx context.Context, out io.Writer, fs afero.Fs, cfg *config.Config, publish bool) error {
	res, err := report.ParseArtifacts(artifact.NewStore(fs, cfg.Output.Dir), cfg.Output.BenchmarkID)
	if err != nil {
		return err
	}

	written, err := aggregator.NewAggregator(&aggregator.AggregatorInput{
		Fs:          fs,
		OutputDir:   cfg.Output.Dir,
		InstanceTag: cfg.Output.InstanceTag,
	}).Write(res.Records)
	if err != nil {
		return err
	}
	if written != nil {
		slog.Info("wrote results", slog.String("dir", written.Dir), slog.String("summary", written.SummaryPath))
	}
	fmt.Fprintf(out, "Successfully processed %d of %d artifact files\n", len(res.Records), res.Found)

	if !publish {
		return nil
	}
	if cfg.Publish.Bucket == "" {
		return errors.New("--publish needs a bucket, set publish.bucket or --bucket")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	pub := publisher.NewS3Publisher(&publisher.S3PublisherInput{
		AwsConfig:    awsCfg,
		Fs:           fs,
		Bucket:       cfg.Publish.Bucket,
		Concurrency:  cfg.Publish.Concurrency,
		ShowProgress: true,
	})
	err = pub.SetUp(ctx)
	if err != nil {
		return err
	}
	objects, err := publisher.CollectObjects(fs, cfg.Output.Dir, cfg.Publish.Prefix)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, objects)
}
