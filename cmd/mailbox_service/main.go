package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"lifeguard_mailbox/internal/mailbox/app"
	"lifeguard_mailbox/internal/mailbox/repository"
	"lifeguard_mailbox/internal/mailbox/router"
	"lifeguard_mailbox/pkg/config"
	"lifeguard_mailbox/pkg/database"
	"lifeguard_mailbox/pkg/logger"
	testtool "lifeguard_mailbox/pkg/test_tool"
	"lifeguard_mailbox/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.MailboxService, config.EnvConfig.MailboxServiceLogPath)
	defer logger.Log.Sync()
	cfg := config.LoadConfig[config.Mailbox](config.EnvConfig.MailboxService, config.EnvConfig.MailboxServiceYAMLPath).WithDefaults()
	token.SetSecret(cfg.Token.Secret)

	// 1. Mongo (訊息)
	ctx := context.Background()
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// 2. PostgreSQL (profile / organization)
	pgConn := database.Connection{
		ConnectStr: fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database),
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	gormDB, err := database.NewPGConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL (gorm)", zap.Error(err))
	}
	pool, err := database.NewDatabaseConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL (pgx)", zap.Error(err))
	}
	defer pool.Close()

	// 3. Redis (change feed)
	redisClient, err := newRedis(cfg.Redis)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	defer redisClient.Close()

	// 4. MinIO (avatar)
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.MinIO.Endpoint,
		User:          cfg.MinIO.User,
		Password:      cfg.MinIO.Password,
		BucketName:    cfg.MinIO.Bucket,
		UseSSL:        cfg.MinIO.UseSSL,
		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	// 不可把 nil *MinIOClient 放進介面
	var signer repository.AvatarSigner
	if err != nil || minioClient == nil {
		// 頭像拿不到不影響收件匣
		logger.Log.Warn("minIO unavailable, avatars disabled", zap.Error(err))
	} else {
		signer = minioClient
	}

	// 5. Repository
	profileRepo := repository.NewProfileRepository(gormDB, signer, cfg.AvatarURLExpiry)
	if err := profileRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("profile migrate failed", zap.Error(err))
	}
	orgRepo := repository.NewOrganizationRepository(pool, signer, cfg.AvatarURLExpiry)
	feed := repository.NewRedisChangeFeed(redisClient)
	store := repository.NewMongoMessageStore(mongo.Database, profileRepo, feed)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Log.Warn("create message indexes failed", zap.Error(err))
	}

	// 6. UseCase
	resolver := app.NewIdentityResolver(orgRepo)
	sessions := func(memberID string) app.SessionProvider {
		return repository.NewProfileSession(profileRepo, memberID)
	}

	// 7. Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.MailboxServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r,
		app.NewConversationHandler(store, resolver),
		app.NewMailboxWebsocketHandler(store, resolver, sessions, cfg.IdentityTimeout),
	)

	testtool.StartPprof(":6060")

	port := ":" + cfg.Port
	if cfg.Port == "" {
		port = ":" + config.EnvConfig.MailboxServicePort
	}
	logger.Log.Info("Mailbox Service listening", zap.String("port", port))
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}

// newRedis 有設定 addr 用單機, 否則走 sentinel
func newRedis(c config.RedisConfig) (*redis.Client, error) {
	if c.Addr != "" {
		return database.NewRedisStandalone(c.Addr, c.RedisDB)
	}
	masterName, sentinel := config.GetRedisSetting()
	return database.NewRedisClient(masterName, sentinel, c.RedisDB)
}
