package model

import (
	"github.com/LeonardoBeccarini/road-conditions/internal/model/entities"
	"github.com/LeonardoBeccarini/road-conditions/internal/model/messages"
)

// Aliases exposing the common types to the services.

type (
	Sensor       = entities.Sensor
	SensorRecord = messages.SensorRecord
	Field        = messages.Field
	RelayRow     = messages.RelayRow
	GeoPoint     = messages.GeoPoint
)
