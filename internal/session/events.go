package session

import (
	"time"

	stellarstation "github.com/signalsfoundry/satstream-simulator/api/stellarstation/v1"
)

// Fixed antenna readings reported by the simulated ground station, in degrees.
const (
	AzimuthCommand    = 1.0
	AzimuthMeasured   = 1.02
	ElevationCommand  = 20.0
	ElevationMeasured = 19.5
)

// EventSample builds one plan monitoring event observed at now.
func EventSample(requestID, planID string, now time.Time) *stellarstation.StreamEvent {
	return &stellarstation.StreamEvent{
		RequestID: requestID,
		PlanMonitoringEvent: &stellarstation.PlanMonitoringEvent{
			PlanID: planID,
			GroundStationState: &stellarstation.GroundStationState{
				Time: now,
				Antenna: &stellarstation.AntennaState{
					Azimuth:   &stellarstation.AngleReading{Command: AzimuthCommand, Measured: AzimuthMeasured},
					Elevation: &stellarstation.AngleReading{Command: ElevationCommand, Measured: ElevationMeasured},
				},
			},
		},
	}
}
