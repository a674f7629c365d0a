package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"cargo-placement-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job announces that a cargo has become fully placed in a warehouse.
type Job struct {
	CargoID       string
	DisplayNumber string
	WarehouseID   int64
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     logrus.FieldLogger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, log logrus.FieldLogger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*8),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.WithField("worker", id)
	log.Debug("notification worker started")
	for {
		select {
		case job := <-wp.jobs:
			log.WithFields(logrus.Fields{"cargo": job.CargoID, "warehouse": job.WarehouseID}).Debug("processing job")
			wp.sendNotificationsForCargo(ctx, job)
		case <-ctx.Done():
			log.Debug("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues a job without blocking the caller. A full queue drops the job;
// push is best effort and must never hold up a placement response.
func (wp *WorkerPool) Dispatch(job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	default:
		wp.log.WithField("cargo", job.CargoID).Warn("notification queue full; dropping job")
		return false
	}
}

// NotifyFullyPlaced queues a push for the warehouse subscribers of cargo.
func (wp *WorkerPool) NotifyFullyPlaced(cargo model.Cargo) {
	wp.Dispatch(Job{CargoID: cargo.ID, DisplayNumber: cargo.DisplayNumber, WarehouseID: cargo.WarehouseID})
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForCargo(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_warehouse_mapping swm ON swm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("swm.warehouse_id = ?", job.WarehouseID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.WithError(err).WithField("warehouse", job.WarehouseID).Error("failed to fetch subscriptions")
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	wp.log.WithFields(logrus.Fields{"cargo": job.CargoID, "subscribers": len(subscriptions)}).Info("sending fully placed notifications")

	var warehouse model.Warehouse
	warehouseLabel := fmt.Sprintf("%d", job.WarehouseID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&warehouse, job.WarehouseID).Error; err != nil {
		wp.log.WithError(err).WithField("warehouse", job.WarehouseID).Warn("failed to fetch warehouse name")
	} else if warehouse.Name != "" {
		warehouseLabel = warehouse.Name
	}

	message := fmt.Sprintf("Cargo %s is fully placed at %s", job.DisplayNumber, warehouseLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("failed to send notification")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.WithField("endpoint", sub.Endpoint).Info("subscription expired; deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Error("failed to delete expired subscription")
		}
	}
}
