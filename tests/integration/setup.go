package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"labor/pkg/migrations"
)

// backend selects the containers a test needs.
type backend uint8

const (
	withPostgres backend = 1 << iota
	withMongo
	withRedis
)

const testDatabase = "labor_test"

// TestInfra holds clients for the started containers. Fields for backends that were
// not requested stay nil.
type TestInfra struct {
	PostgresDB  *sql.DB
	MongoClient *mongo.Client
	MongoDB     *mongo.Database
	RedisClient *redis.Client
}

// setupInfra starts the requested containers and registers their teardown with t.
// Postgres is migrated to the current schema.
func setupInfra(t *testing.T, backends backend) *TestInfra {
	t.Helper()
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*containerStartupTimeout*time.Second)
	defer cancel()

	infra := &TestInfra{}
	if backends&withPostgres != 0 {
		infra.PostgresDB = startPostgres(ctx, t)
	}
	if backends&withMongo != 0 {
		infra.MongoClient = startMongo(ctx, t)
		infra.MongoDB = infra.MongoClient.Database(testDatabase)
	}
	if backends&withRedis != 0 {
		infra.RedisClient = startRedis(ctx, t)
	}
	return infra
}

func startPostgres(ctx context.Context, t *testing.T) *sql.DB {
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername("labor"),
		postgres.WithPassword("labor"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerStartupTimeout*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.PingContext(ctx), "ping postgres")
	require.NoError(t, migrations.MigratePostgres(db), "migrate postgres")
	return db
}

func startMongo(ctx context.Context, t *testing.T) *mongo.Client {
	ctr, err := mongodb.Run(ctx, "mongo:6",
		mongodb.WithUsername("labor"),
		mongodb.WithPassword("labor"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start mongo")

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err, "connect mongo")
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func startRedis(ctx context.Context, t *testing.T) *redis.Client {
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start redis")

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err(), "ping redis")
	return client
}
