package temporal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nikahq/nika/internal/engine/temporal"
)

func TestNewRequiresTaskQueue(t *testing.T) {
	activities, _ := newTestActivities()
	_, err := temporal.New(temporal.Options{Activities: activities})
	assert.ErrorContains(t, err, "task queue")
}

func TestNewRequiresActivities(t *testing.T) {
	_, err := temporal.New(temporal.Options{TaskQueue: "nika"})
	assert.ErrorContains(t, err, "activities")
}

func TestNewRequiresClientOrClientOptions(t *testing.T) {
	activities, _ := newTestActivities()
	_, err := temporal.New(temporal.Options{TaskQueue: "nika", Activities: activities})
	assert.ErrorContains(t, err, "client options")
}
