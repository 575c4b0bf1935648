package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	c := &Config{DBHost: "localhost", DBPort: 5432, DBUser: "u", DBPassword: "p", DBName: "icescout"}
	assert.Equal(t, "host=localhost user=u password=p dbname=icescout port=5432 sslmode=disable", c.DSN())
}

func TestActivitiesSplitsAndTrims(t *testing.T) {
	c := &Config{C2CActivities: "ice_climbing, snow_ice_mixed ,mountain_climbing"}
	assert.Equal(t, []string{"ice_climbing", "snow_ice_mixed", "mountain_climbing"}, c.Activities())

	empty := &Config{C2CActivities: " , "}
	assert.Empty(t, empty.Activities())
}

func TestParallelFor(t *testing.T) {
	c := &Config{ParallelModes: "init"}
	assert.True(t, c.ParallelFor("init"))
	assert.False(t, c.ParallelFor("update"))

	both := &Config{ParallelModes: "init, update"}
	assert.True(t, both.ParallelFor("update"))
}
