package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cargo-placement-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func okResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

const subscriptionsQuery = `SELECT .* FROM "push_subscriptions".*JOIN .*subscription_warehouse_mapping.*WHERE .*swm\.warehouse_id = \$1`
const warehouseNameQuery = `SELECT "name" FROM "warehouses" WHERE "warehouses"."id" = \$1 ORDER BY "warehouses"."id" LIMIT \$[0-9]+`

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{}, quietLogger())

	wp.NotifyFullyPlaced(model.Cargo{ID: "c-1", DisplayNumber: "0A1B2C3D4E5F", WarehouseID: 4})

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, Job{CargoID: "c-1", DisplayNumber: "0A1B2C3D4E5F", WarehouseID: 4}, job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchNeverBlocks(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{}, quietLogger())

	for i := 0; i < cap(wp.Jobs()); i++ {
		require.True(t, wp.Dispatch(Job{CargoID: fmt.Sprintf("c-%d", i)}))
	}
	assert.False(t, wp.Dispatch(Job{CargoID: "overflow"}))
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
				assert.Equal(t, "Cargo 0A1B2C3D4E5F is fully placed at North", string(payload))
				wg.Done()
				return okResponse(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(int64(101)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/push", "test_p256dh", "test_auth", time.Now()))
		mock.ExpectQuery(warehouseNameQuery).
			WithArgs(int64(101), 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("North"))

		wp.Dispatch(Job{CargoID: "c-1", DisplayNumber: "0A1B2C3D4E5F", WarehouseID: 101})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				wg.Done()
				return okResponse(http.StatusGone), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(int64(102)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/expired", "k", "a", time.Now()))
		mock.ExpectQuery(warehouseNameQuery).
			WithArgs(int64(102), 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("South"))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(Job{CargoID: "c-2", DisplayNumber: "FFFFFFFFFFFF", WarehouseID: 102})
		wg.Wait()

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("falls back to warehouse ID when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "Cargo 000000000001 is fully placed at 103", string(payload))
				wg.Done()
				return okResponse(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(int64(103)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/fallback", "k", "a", time.Now()))
		mock.ExpectQuery(warehouseNameQuery).
			WithArgs(int64(103), 1).
			WillReturnError(fmt.Errorf("warehouse not found"))

		wp.Dispatch(Job{CargoID: "c-3", DisplayNumber: "000000000001", WarehouseID: 103})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
