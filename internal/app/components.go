package app

import (
	"github.com/stacklok/seatwatch/internal/coordinator"
	"github.com/stacklok/seatwatch/internal/monitor"
	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/tracking"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Coordinator runs the monitoring cycle on a schedule
	Coordinator coordinator.Coordinator

	// Monitor checks courses and notifies their subscribers
	Monitor monitor.Service

	// Tracker manages tracked courses and subscriptions
	Tracker *tracking.Service

	// Store holds courses, users, trackings and the notification ledger
	Store store.Store
}
