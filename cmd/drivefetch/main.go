package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/windrift/drivefetch/internal/adapter/filesystem"
	"github.com/windrift/drivefetch/internal/adapter/httpdrive"
	"github.com/windrift/drivefetch/internal/adapter/sqlite"
	"github.com/windrift/drivefetch/internal/cache"
	"github.com/windrift/drivefetch/internal/config"
	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/logger"
	"github.com/windrift/drivefetch/internal/port"
	"github.com/windrift/drivefetch/internal/service/downloader"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	itemIDs := flag.Args()
	if len(itemIDs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: drivefetch [-config config.yaml] <item-id> [item-id ...]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting drivefetch",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Output.Dir, "blobcache.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatal("failed to create database dir", zap.Error(err))
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		log.Fatal("failed to open blob store", zap.Error(err), zap.String("path", dbPath))
	}
	defer store.Close()

	reporter := logger.Reporter{Log: log}
	blobCache := cache.NewBlobCache(cfg.Cache.GetCapacityBytes(), store, reporter, log)

	client := httpdrive.NewClient(cfg.Drive.BaseURL, &httpdrive.ClientConfig{
		Token:         cfg.Drive.Token,
		Mnemonic:      cfg.Drive.Mnemonic,
		SkipTLSVerify: cfg.Drive.SkipTLSVerify,
		BufferSizeMB:  cfg.Drive.BufferSizeMB,
	})
	prober := httpdrive.NewProber(cfg.Drive.BaseURL)

	sink, err := filesystem.NewSinkWithBufferSize(cfg.Output.Dir, cfg.Output.BufferSizeMB*1024*1024)
	if err != nil {
		log.Fatal("failed to create save sink", zap.Error(err))
	}

	svc := downloader.New(
		&downloader.Config{
			Concurrency:        cfg.Download.Concurrency,
			CacheEligibleLimit: cfg.Cache.GetEligibleLimitBytes(),
			WatchdogTimeout:    cfg.Download.GetWatchdogTimeout(),
			PageSize:           cfg.Download.PageSize,
		},
		blobCache,
		client,
		client,
		staticCredentials{cfg: cfg},
		taskLogSink{log: log},
		sink,
		prober,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	selection := make([]domain.DownloadableItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, err := client.GetItem(ctx, id)
		if err != nil {
			log.Fatal("failed to resolve item", zap.String("item_id", id), zap.Error(err))
		}
		selection = append(selection, *item)
	}

	task := svc.GenerateTask(selection, downloader.TaskOptions{
		WorkspaceID: cfg.Drive.WorkspaceID,
	})
	if task == nil {
		log.Info("nothing to download")
		return
	}

	var downloaded int64
	err = svc.Execute(ctx, task, &downloader.Callbacks{
		OnBytes: func(delta int64) { downloaded += delta },
	})

	count, used := blobCache.Stats()
	log.Info("cache state",
		zap.Int("entries", count),
		zap.String("used", humanize.IBytes(uint64(used))))

	switch {
	case err != nil:
		for _, failed := range task.FailedItems() {
			log.Warn("item not downloaded", zap.String("item_id", failed.ID), zap.String("name", failed.DisplayName()))
		}
		log.Error("download failed", zap.Error(err))
		os.Exit(1)
	case task.Status == domain.TaskStatusPartiallyFailed:
		for _, failed := range task.FailedItems() {
			log.Warn("item not downloaded", zap.String("item_id", failed.ID), zap.String("name", failed.DisplayName()))
		}
		log.Info("download finished with failures",
			zap.String("network_bytes", humanize.IBytes(uint64(downloaded))))
	case task.Status == domain.TaskStatusCancelled:
		log.Info("download cancelled")
	default:
		saved := task.ArchiveName
		if len(task.Items) != 1 || task.Items[0].IsFolder {
			saved += ".zip"
		}
		log.Info("download complete",
			zap.String("saved_as", sink.Path(saved)),
			zap.String("network_bytes", humanize.IBytes(uint64(downloaded))))
	}
}

// staticCredentials resolves credentials from configuration: the configured
// token/mnemonic act as the signed-in user's own, and double as workspace
// credentials when a workspace context is configured.
type staticCredentials struct {
	cfg *config.Config
}

func (s staticCredentials) WorkspaceCredentials() (domain.Credentials, bool) {
	if s.cfg.Drive.WorkspaceID == "" {
		return domain.Credentials{}, false
	}
	return s.userCreds(), true
}

func (s staticCredentials) UserCredentials() domain.Credentials {
	return s.userCreds()
}

func (s staticCredentials) userCreds() domain.Credentials {
	return domain.Credentials{
		Token:    s.cfg.Drive.Token,
		Mnemonic: s.cfg.Drive.Mnemonic,
	}
}

// taskLogSink observes task lifecycle events and logs them.
type taskLogSink struct {
	log *zap.Logger
}

func (t taskLogSink) TaskCreated(task *domain.DownloadTask) {
	t.log.Info("task created",
		zap.String("task_id", task.ID),
		zap.Int("items", len(task.Items)),
		zap.String("name", task.ArchiveName))
}

func (t taskLogSink) TaskStatus(taskID string, status domain.TaskStatus) {
	t.log.Info("task status", zap.String("task_id", taskID), zap.String("status", string(status)))
}

func (t taskLogSink) TaskProgress(taskID string, fraction float64) {
	t.log.Debug("task progress", zap.String("task_id", taskID), zap.Float64("fraction", fraction))
}

var _ port.CredentialSource = staticCredentials{}
var _ port.TaskSink = taskLogSink{}
