package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"smartpresence/internal/attendance"
	"smartpresence/internal/config"
	"smartpresence/internal/evidence"
	"smartpresence/internal/logging"
	"smartpresence/internal/queue"
	"smartpresence/internal/store"
)

// Worker consumes committed-attendance messages and mirrors the local
// evidence file to Cloudinary, keyed by record id, for off-site audit
// retention. Attendance records themselves are never touched.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	disk, err := evidence.NewDisk(cfg.EvidenceDir)
	if err != nil {
		log.Fatal("evidence dir unavailable", zap.Error(err))
	}

	var archive *evidence.Cloudinary
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		archive = evidence.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary archive configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		log.Warn("cloudinary not configured, evidence stays local only")
	}

	repo := attendance.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	log.Info("worker started, waiting for messages")
	for msg := range messages {
		if msg.Type != queue.TypeCommitted {
			continue
		}
		id, err := msg.RecordID()
		if err != nil {
			log.Warn("malformed message body", zap.ByteString("body", msg.Body))
			continue
		}

		rec, err := repo.Get(ctx, id)
		if err != nil {
			log.Error("fetch record failed", zap.Int64("record_id", id), zap.Error(err))
			continue
		}
		if rec == nil || rec.EvidencePath == "" {
			continue
		}
		if archive == nil {
			continue
		}

		data, err := disk.Load(ctx, rec.EvidencePath)
		if err != nil {
			log.Error("load evidence failed", zap.Int64("record_id", id), zap.Error(err))
			continue
		}

		result, err := archive.Upload(data, fmt.Sprintf("record-%d", rec.ID))
		if err != nil {
			log.Error("archive upload failed", zap.Int64("record_id", id), zap.Error(err))
			continue
		}
		log.Info("evidence archived",
			zap.Int64("record_id", rec.ID),
			zap.String("public_id", result.PublicID),
			zap.Int("bytes", result.Bytes))
	}

	log.Info("worker stopped")
}
