// Package msgs provides the telemetry messages published by nodes.
package msgs

// Telemetry is produced by every node and consumed by monitors,
// independent of the CAN protocols inside the pack.
//
// Producer: bmsd
// Consumer: bmsmon, dashboards
