package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
	redisRepo "github.com/aradsms/bulk_export/internal/export_service/repository/redis"
)

func TestExportService_CreateExport_ConcurrentCreatesAreIndependent(t *testing.T) {
	const creates = 50
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisRepo.NewRedisExportJobRepository(client, nil, logger)
	svc := newTestService(t, store, nil, true)
	ctx := context.Background()
	req := newCreateRequest(t)

	var mu sync.Mutex
	ids := make(map[string]struct{}, creates)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < creates; i++ {
		g.Go(func() error {
			resp, err := svc.CreateExport(gctx, req)
			if err != nil {
				return err
			}
			mu.Lock()
			ids[resp.ID] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, ids, creates)

	for id := range ids {
		resp, err := svc.GetExportStatus(ctx, requestURL, id)
		require.NoError(t, err)
		assert.True(t, resp.JobExists)
		assert.Equal(t, exportDomain.StatusRunning, resp.Status)
	}
}
