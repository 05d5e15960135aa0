// internal/writer/records.go
package writer

import "github.com/tamzrod/surplus-charger/internal/telemetry"

// Measurement names, shared by every sink.
const (
	MeasurementInverter = "inverter_data"
	MeasurementWallbox  = "goE_wallbox"
	MeasurementStatus   = "device_status"
)

// SampleFields maps a sample's derived values to record fields.
func SampleFields(s telemetry.Sample) map[string]float64 {
	return map[string]float64{
		"ppv":               s.PPV,
		"house_consumption": s.HouseConsumption,
	}
}

// PublishedFields is the field to topic-suffix map for the fast cycle
// MQTT values. Battery names come from the telemetry mapping.
func PublishedFields(m telemetry.Mapping) map[string]string {
	return map[string]string{
		"ppv":               "ppv",
		"house_consumption": "house_consumption",
		m.BatterySOC:        "battery_soc",
		m.BatteryPower:      "pbattery",
	}
}

// DeviceTags returns the tag set for one device.
func DeviceTags(device string) map[string]string {
	return map[string]string{"device": device}
}
