package commands

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/marmos91/sharelease/internal/leaseconfig"
	"github.com/marmos91/sharelease/internal/logger"
	"github.com/marmos91/sharelease/pkg/accounting"
	"github.com/marmos91/sharelease/pkg/backend"
	"github.com/marmos91/sharelease/pkg/backend/disk"
	backendS3 "github.com/marmos91/sharelease/pkg/backend/s3"
	"github.com/marmos91/sharelease/pkg/leasedb"
	"github.com/marmos91/sharelease/pkg/metrics/leasecrawler"
	"github.com/marmos91/sharelease/pkg/sharecrawler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the accounting crawler until interrupted",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ldb, err := leasedb.New(&cfg.LeaseDB)
	if err != nil {
		return fmt.Errorf("open lease database: %w", err)
	}
	defer ldb.Close()

	enumerator, err := buildBackend(ctx, cfg.Backend)
	if err != nil {
		return fmt.Errorf("build storage backend: %w", err)
	}

	policy, err := cfg.Expiration.Policy()
	if err != nil {
		return fmt.Errorf("build expiration policy: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := leasecrawler.New(registry)
	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, registry, cfg.Metrics.Port)
	}

	crawlerLogic := accounting.New(ldb, enumerator, policy, nil, metrics, cfg.LeaseDB.RetainedHistoryEntries)

	base := sharecrawler.New(sharecrawler.Config{
		StatefilePath:    cfg.Crawler.StatefilePath,
		MinimumCycleTime: cfg.Crawler.MinimumCycleTime,
		SlowStart:        cfg.Crawler.SlowStart,
		SlicePause:       cfg.Crawler.SlicePause,
	}, crawlerLogic)

	logger.Info("leasecrawlerd: starting", "statefile", cfg.Crawler.StatefilePath)
	err = base.Run(ctx)
	if err != nil && ctx.Err() != nil {
		logger.Info("leasecrawlerd: shutting down")
		return nil
	}
	return err
}

func buildBackend(ctx context.Context, cfg leaseconfig.BackendConfig) (backend.Enumerator, error) {
	switch cfg.Type {
	case "disk":
		return disk.New(cfg.Disk.BaseDir), nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return backendS3.New(client, cfg.S3.Bucket), nil
	default:
		return nil, fmt.Errorf("unsupported backend type %q", cfg.Type)
	}
}

func serveMetrics(ctx context.Context, registry *prometheus.Registry, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("leasecrawlerd: metrics server failed", logger.Err(err))
	}
}
