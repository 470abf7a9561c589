package main

import (
	"time"

	"github.com/salahayoub/qlient/pkg/types"
)

// model holds the dashboard's current view state.
type model struct {
	Status          types.StatusResponse
	Connected       bool
	ErrorMessage    string
	LastRefresh     time.Time
	RefreshInterval time.Duration

	ReconnectAttempts int
	LastReconnect     time.Time
}

func newModel() *model {
	return &model{
		RefreshInterval: 2 * time.Second,
	}
}
