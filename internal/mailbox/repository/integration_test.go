package repository

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"lifeguard_mailbox/internal/mailbox/domain"
	"lifeguard_mailbox/pkg/database"
	"lifeguard_mailbox/pkg/logger"
	testtool "lifeguard_mailbox/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// **測試用的連線**, 容器沒啟動時為 nil
var (
	mongoDB     *database.MongoDB
	redisClient *redis.Client
	gormDB      *gorm.DB
	pgPool      *pgxpool.Pool
)

func TestMain(m *testing.M) {
	flag.Parse()
	logger.SetNewNop()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var containers []testcontainers.Container
	terminate := func() {
		for _, c := range containers {
			_ = c.Terminate(ctx)
		}
	}

	if !dockerAvailable(ctx) {
		// 沒有 docker 時只跑單元測試
		log.Printf("docker unavailable, integration tests skipped")
		os.Exit(m.Run())
	}

	if err := recoverSetup(func() error { return setupContainers(ctx, &containers) }); err != nil {
		log.Printf("integration containers unavailable: %v", err)
		terminate()
		mongoDB, redisClient, gormDB, pgPool = nil, nil, nil, nil
	}

	code := m.Run()

	if pgPool != nil {
		pgPool.Close()
	}
	if mongoDB != nil {
		_ = mongoDB.Close(ctx)
	}
	terminate()
	os.Exit(code)
}

// dockerAvailable testcontainers panics when no docker host can be found
func dockerAvailable(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return provider.Health(ctx) == nil
}

// recoverSetup turn a panic during container setup into an error
func recoverSetup(setup func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container setup panic: %v", r)
		}
	}()
	return setup()
}

func setupContainers(ctx context.Context, containers *[]testcontainers.Container) error {
	// **啟動 MongoDB**
	mongoC, mongoHost, mongoPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		return fmt.Errorf("mongo: %w", err)
	}
	*containers = append(*containers, mongoC)

	// **啟動 Redis**
	redisC, redisHost, redisPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	*containers = append(*containers, redisC)

	// **啟動 PostgreSQL**
	pgC, pgHost, pgPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image: "postgres:16",
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	*containers = append(*containers, pgC)

	mongoDB, err = database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s", mongoHost, mongoPort),
		RetryCount:    5,
		RetryInterval: 1,
	}, "mailbox_test")
	if err != nil {
		return err
	}

	redisClient, err = database.NewRedisStandalone(fmt.Sprintf("%s:%s", redisHost, redisPort), 0)
	if err != nil {
		return err
	}

	pg := database.Connection{
		ConnectStr:    fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", pgHost, pgPort),
		RetryCount:    5,
		RetryInterval: 1,
	}
	if gormDB, err = database.NewPGConnection(pg); err != nil {
		return err
	}
	if pgPool, err = database.NewDatabaseConnection(pg); err != nil {
		return err
	}
	return seedPostgres(ctx)
}

func seedPostgres(ctx context.Context) error {
	profiles := NewProfileRepository(gormDB, nil, time.Hour)
	if err := profiles.AutoMigrate(); err != nil {
		return err
	}
	seed := []Profile{
		{ID: "me", FirstName: "Mia", LastName: "Chen", ProfileType: "lifeguard"},
		{ID: "inst-1", FirstName: "Ian", LastName: "Wu", ProfileType: "instructor", AvatarKey: "https://cdn/ian.png"},
		{ID: "pool-1", ProfileType: "pool"},
		{ID: "school-1", ProfileType: "swim_school"},
		{ID: "both-1", ProfileType: "pool"},
	}
	if err := gormDB.WithContext(ctx).Create(&seed).Error; err != nil {
		return err
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pool_profiles (id TEXT PRIMARY KEY, organization_name TEXT, avatar_key TEXT)`,
		`CREATE TABLE IF NOT EXISTS swim_school_profiles (id TEXT PRIMARY KEY, organization_name TEXT, avatar_key TEXT)`,
		`INSERT INTO pool_profiles VALUES ('pool-1', 'Sunny Pool', NULL), ('both-1', 'Pool Wins', NULL)`,
		`INSERT INTO swim_school_profiles VALUES ('school-1', 'Blue School', 'https://cdn/blue.png'), ('both-1', 'School Loses', NULL)`,
	}
	for _, s := range stmts {
		if _, err := pgPool.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func requireContainers(t *testing.T) {
	t.Helper()
	if testing.Short() || mongoDB == nil || redisClient == nil || pgPool == nil {
		t.Skip("integration containers not running")
	}
}

func TestProfileRepository_FindIdentities(t *testing.T) {
	requireContainers(t)
	repo := NewProfileRepository(gormDB, nil, time.Hour)

	found, err := repo.FindIdentities(context.Background(), []string{"me", "inst-1", "pool-1", "missing", "me"})
	require.NoError(t, err)

	assert.Len(t, found, 3)
	assert.Equal(t, "Mia", found["me"].(domain.ResolvedIdentity).FirstName)
	assert.Equal(t, "https://cdn/ian.png", found["inst-1"].(domain.ResolvedIdentity).AvatarURL)
	assert.IsType(t, domain.UnresolvedIdentity{}, found["pool-1"])

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestOrganizationRepository_ResolveOrganizationNames(t *testing.T) {
	requireContainers(t)
	repo := NewOrganizationRepository(pgPool, nil, time.Hour)

	names, err := repo.ResolveOrganizationNames(context.Background(), []string{"pool-1", "school-1", "both-1", "missing"})
	require.NoError(t, err)

	assert.Equal(t, "Sunny Pool", names["pool-1"].Name)
	assert.Equal(t, "Blue School", names["school-1"].Name)
	assert.Equal(t, "https://cdn/blue.png", names["school-1"].AvatarURL)
	assert.Equal(t, "Pool Wins", names["both-1"].Name)
	_, ok := names["missing"]
	assert.False(t, ok)
}

func TestRedisChangeFeed_PublishSubscribe(t *testing.T) {
	requireContainers(t)
	feed := NewRedisChangeFeed(redisClient)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits int32
	unsubscribe, err := feed.Subscribe(ctx, "feed-user", func() { atomic.AddInt32(&hits, 1) })
	require.NoError(t, err)

	event := domain.ChangeEvent{Kind: domain.ChangeInsert, MessageIDs: []string{"m1"}}
	require.NoError(t, feed.Publish(ctx, event, Participants{SenderID: "feed-user", RecipientID: "other"}))
	require.NoError(t, feed.Publish(ctx, event, Participants{SenderID: "other", RecipientID: "feed-user"}))
	require.NoError(t, feed.Publish(ctx, event, Participants{SenderID: "x", RecipientID: "y"}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 2 }, 3*time.Second, 20*time.Millisecond)

	unsubscribe()
	unsubscribe()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, feed.Publish(ctx, event, Participants{SenderID: "feed-user"}))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestMongoMessageStore_Lifecycle(t *testing.T) {
	requireContainers(t)
	ctx := context.Background()
	require.NoError(t, mongoDB.Database.Collection("messages").Drop(ctx))

	profiles := NewProfileRepository(gormDB, nil, time.Hour)
	store := NewMongoMessageStore(mongoDB.Database, profiles, NewRedisChangeFeed(redisClient))
	require.NoError(t, store.EnsureIndexes(ctx))

	var recipientHits int32
	unsubscribe, err := store.SubscribeToChanges(ctx, "pool-1", func() { atomic.AddInt32(&recipientHits, 1) })
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, store.InsertMessage(ctx, domain.MessageDraft{SenderID: "me", RecipientID: "pool-1", Subject: "shift", Content: "available saturday"}))
	require.NoError(t, store.InsertMessage(ctx, domain.MessageDraft{SenderID: "inst-1", RecipientID: "me", Subject: "lesson", Content: "need cover"}))
	require.NoError(t, store.InsertMessage(ctx, domain.MessageDraft{SenderID: "inst-1", RecipientID: "school-1", Content: "not mine"}))

	messages, err := store.FetchMessages(ctx, "me")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.Before(messages[j].CreatedAt) })

	assert.False(t, messages[0].Read)
	assert.Equal(t, "Mia", messages[0].Sender.(domain.ResolvedIdentity).FirstName)
	assert.IsType(t, domain.UnresolvedIdentity{}, messages[0].Recipient)
	assert.Equal(t, "Ian", messages[1].Sender.(domain.ResolvedIdentity).FirstName)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&recipientHits) >= 1 }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, store.UpdateReadFlags(ctx, []string{messages[1].ID}))
	messages, err = store.FetchMessages(ctx, "me")
	require.NoError(t, err)
	readCount := 0
	for _, m := range messages {
		if m.Read {
			readCount++
		}
	}
	assert.Equal(t, 1, readCount)

	ids := []string{messages[0].ID, messages[1].ID}
	require.NoError(t, store.DeleteMessages(ctx, ids))
	messages, err = store.FetchMessages(ctx, "me")
	require.NoError(t, err)
	assert.Empty(t, messages)

	others, err := store.FetchMessages(ctx, "school-1")
	require.NoError(t, err)
	assert.Len(t, others, 1)

	assert.NoError(t, store.DeleteMessages(ctx, nil))
	assert.NoError(t, store.UpdateReadFlags(ctx, []string{}))
}
