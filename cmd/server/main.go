package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ephemsg/internal/config"
	"ephemsg/internal/metrics"
	"ephemsg/internal/ratelimit"
	chatRepo "ephemsg/internal/repository/chat"
	messageRepo "ephemsg/internal/repository/message"
	userRepo "ephemsg/internal/repository/user"
	"ephemsg/internal/service/presence"
	redisSvc "ephemsg/internal/service/redis"
	"ephemsg/internal/service/router"
	"ephemsg/internal/service/server"
	"ephemsg/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log.Init(cfg.LogLevel)
	defer log.Sync()

	mongoClient, err := initMongo(cfg)
	if err != nil {
		log.Fatal("mongo connect failed", zap.Error(err))
	}
	db := mongoClient.Database(cfg.MongoDatabase)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	users := userRepo.NewUserRepo(db)
	chats := chatRepo.NewChatRepo(db)
	messages := messageRepo.NewMessageRepo(db)
	if err := ensureIndexes(cfg, users, chats, messages); err != nil {
		log.Fatal("ensure indexes failed", zap.Error(err))
	}

	metrics.MustRegister()

	registry := presence.NewRegistry()
	receipts := server.NewReceiptBuffer(redisSvc.NewRedis(rdb))
	rt := router.NewRouter(chats, messages, registry, receipts,
		ratelimit.New(cfg.TypingRatePerSec, cfg.TypingBurst))
	blobs := &server.DiskBlobStore{Dir: cfg.MediaDir, BaseURL: "http://" + cfg.Addr + "/media"}

	srv := server.NewHttpServer(cfg.Addr, users, chats, messages, registry, rt, receipts, blobs)
	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Info("shutting down")
}

func initMongo(cfg config.Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}

func ensureIndexes(cfg config.Config, users *userRepo.UserRepo, chats *chatRepo.ChatRepo, messages *messageRepo.MessageRepo) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := chats.EnsureIndexes(ctx); err != nil {
		return err
	}
	return messages.EnsureIndexes(ctx)
}
