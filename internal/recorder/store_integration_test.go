//go:build integration

package recorder_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/yanun0323/eventsocket/internal/recorder"
	"github.com/yanun0323/eventsocket/pkg/conn"
)

func startPostgres(t *testing.T, ctx context.Context) conn.Option {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "eventsocket",
			"POSTGRES_PASSWORD": "eventsocket",
			"POSTGRES_DB":       "events",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return conn.Option{
		Host:     host,
		Port:     port.Int(),
		User:     "eventsocket",
		Password: "eventsocket",
		Database: "events",
	}
}

func TestIntegration_GormStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()
	opt := startPostgres(t, ctx)

	client, err := conn.New(ctx, opt)
	require.NoError(t, err)
	defer client.Close()

	store := recorder.NewGormStore(client.DB())
	require.NoError(t, store.Migrate(ctx))
	// a second migration over an existing table is a no-op
	require.NoError(t, store.Migrate(ctx))

	base := time.Now().UTC().Truncate(time.Microsecond)
	var records []recorder.Record
	for i := range 5 {
		channel := "/default/a"
		if i%2 == 1 {
			channel = "/default/b"
		}
		records = append(records, recorder.Record{
			SubscriptionID: "s1",
			Channel:        channel,
			Data:           fmt.Sprintf(`{"n":%d}`, i),
			ReceivedAt:     base.Add(time.Duration(i) * time.Second),
		})
	}
	require.NoError(t, store.Save(ctx, records))

	all, err := store.List(ctx, recorder.Query{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, r := range all {
		assert.NotZero(t, r.ID)
		assert.False(t, r.RecordedAt.IsZero())
		assert.True(t, r.ReceivedAt.Equal(base.Add(time.Duration(i)*time.Second)), "record %d out of order", i)
	}

	onA, err := store.List(ctx, recorder.Query{Channel: "/default/a", Since: base.Add(time.Second)})
	require.NoError(t, err)
	require.Len(t, onA, 2)
	assert.JSONEq(t, `{"n":2}`, onA[0].Data)
	assert.JSONEq(t, `{"n":4}`, onA[1].Data)

	limited, err := store.List(ctx, recorder.Query{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestIntegration_ConnRejectsWrongPassword(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()
	opt := startPostgres(t, ctx)
	opt.Password = "wrong"

	_, err := conn.New(ctx, opt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping postgres")
}
