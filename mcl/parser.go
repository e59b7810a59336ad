package mcl

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// scanMessage is the wire form of a range scan: evenly spaced beams
// described by a start angle and increment, laser-scan style.
type scanMessage struct {
	FrameID        string    `json:"frameId"`
	Stamp          time.Time `json:"stamp"`
	RangeMax       float64   `json:"rangeMax"`
	AngleMin       float64   `json:"angleMin"`
	AngleIncrement float64   `json:"angleIncrement"`
	Ranges         []float64 `json:"ranges"`
}

// ParseScanJSON decodes and validates a range scan message. Malformed or
// empty scans return ErrSensorDataInvalid. Individual NaN ranges are kept;
// the sensor model ignores them beam by beam.
func ParseScanJSON(data []byte) (*RangeScan, error) {
	var msg scanMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parsing scan JSON: %v: %w", err, ErrSensorDataInvalid)
	}
	if msg.FrameID == "" {
		return nil, fmt.Errorf("scan missing frameId: %w", ErrSensorDataInvalid)
	}
	if len(msg.Ranges) == 0 {
		return nil, fmt.Errorf("scan has no ranges: %w", ErrSensorDataInvalid)
	}
	if msg.RangeMax <= 0 || math.IsNaN(msg.RangeMax) {
		return nil, fmt.Errorf("scan rangeMax %f invalid: %w", msg.RangeMax, ErrSensorDataInvalid)
	}

	scan := &RangeScan{
		Ranges:   make([]Reading, len(msg.Ranges)),
		RangeMax: msg.RangeMax,
		FrameID:  msg.FrameID,
		Stamp:    msg.Stamp,
	}
	for i, r := range msg.Ranges {
		scan.Ranges[i] = Reading{
			Range:   r,
			Bearing: msg.AngleMin + float64(i)*msg.AngleIncrement,
		}
	}
	return scan, nil
}

// ParseGridJSON decodes and validates an occupancy grid message.
func ParseGridJSON(data []byte) (*OccupancyGrid, error) {
	var grid OccupancyGrid
	if err := json.Unmarshal(data, &grid); err != nil {
		return nil, fmt.Errorf("parsing grid JSON: %w", err)
	}
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("parsing grid JSON: %w", err)
	}
	return &grid, nil
}
