// Package engine is the notification lifecycle controller. A single loop
// goroutine owns the store and the rate limiter; enrichment runs on a
// bounded worker pool and is committed back through the loop.
package engine

import (
	"context"
	"errors"

	"github.com/llehouerou/notifyd/internal/hints"
	"github.com/llehouerou/notifyd/internal/notify"
)

var (
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("notification not found")
	ErrStopped         = errors.New("engine stopped")

	errInternal = errors.New("internal error")
)

// Service defines the lifecycle controller contract consumed by the bus
// surface and the presentation layer.
type Service interface {
	// Ingestion
	Notify(ctx context.Context, req Request) (uint32, error)

	// Lifecycle control
	CloseNotification(ctx context.Context, id uint32) error
	Dismiss(ctx context.Context, id uint32) error
	InvokeAction(ctx context.Context, id uint32, key, token string) error

	// Queries
	Get(ctx context.Context, id uint32) (notify.Notification, error)
	Live(ctx context.Context) ([]notify.Notification, error)
	Visible(ctx context.Context) ([]notify.Notification, error)
	Groups(ctx context.Context) ([]notify.Group, error)

	// History
	History(ctx context.Context) ([]notify.Notification, error)
	ClearHistory(ctx context.Context) (int, error)

	// Protocol metadata
	Capabilities() []string
	ServerInfo() ServerInfo

	// Configuration
	Reload(ctx context.Context, s Settings) error

	// Event subscription
	Subscribe() *Subscription

	// Lifecycle
	Close() error
}

// Request is one Notify call as received from the bus.
type Request struct {
	// Sender is the bus unique name of the caller.
	Sender        string
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string
	Hints         hints.Table
	ExpireTimeout int32
}

// RateKey is the identity admissions are counted against: the application
// name, or the bus sender when the caller sent none.
func (r *Request) RateKey() string {
	if r.AppName != "" {
		return r.AppName
	}
	return r.Sender
}

// ServerInfo is the GetServerInformation reply.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// Version is overridden at build time.
var Version = "dev"

const specVersion = "1.2"
