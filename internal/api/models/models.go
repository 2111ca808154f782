package models

import (
	"github.com/smazurov/dawio/internal/logging"
	"github.com/smazurov/dawio/internal/session"
	"github.com/smazurov/dawio/internal/version"
	"github.com/smazurov/dawio/pkg/dawio"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Backend models
type BackendInput struct {
	Backend string `path:"backend" example:"alsa" doc:"Backend name, case insensitive"`
}

type BackendsData struct {
	Backends []dawio.AudioBackendInfo `json:"backends" doc:"Audio backends in preference order"`
}

type BackendsResponse struct {
	Body BackendsData
}

type BackendResponse struct {
	Body dawio.AudioBackendInfo
}

type MidiBackendsData struct {
	Backends []dawio.MidiBackendInfo `json:"backends" doc:"MIDI backends in preference order"`
}

type MidiBackendsResponse struct {
	Body MidiBackendsData
}

// Stream models
type StreamResponse struct {
	Body session.Status
}

type StreamInfoResponse struct {
	Body dawio.StreamInfo
}

type PortsData struct {
	Inputs  *[]int `json:"inputs,omitempty" doc:"Device input channel indices; omitted to keep the current selection"`
	Outputs *[]int `json:"outputs,omitempty" doc:"Device output channel indices; omitted to keep the current selection"`
}

type PortsRequest struct {
	Body PortsData
}

type JackPortsData struct {
	Inputs  *[]string `json:"inputs,omitempty" doc:"Jack system ports to read from"`
	Outputs *[]string `json:"outputs,omitempty" doc:"Jack system ports to write to"`
}

type JackPortsRequest struct {
	Body JackPortsData
}

type BlockSizeData struct {
	Frames uint32 `json:"frames" minimum:"1" example:"256" doc:"Largest block handed to the process handler"`
}

type BlockSizeRequest struct {
	Body BlockSizeData
}

type MidiPortData struct {
	Name       string `json:"name" example:"Launchkey MK3" doc:"Device name"`
	Identifier string `json:"identifier,omitempty" doc:"Backend identifier, authoritative when set"`
	Port       int    `json:"port,omitempty" doc:"Port index on the device"`
}

type MidiPortsData struct {
	Inputs  *[]MidiPortData `json:"inputs,omitempty" doc:"MIDI input ports"`
	Outputs *[]MidiPortData `json:"outputs,omitempty" doc:"MIDI output ports"`
}

type MidiPortsRequest struct {
	Body MidiPortsData
}

// ToConfig converts API port references to stream port configs.
func ToConfig(ports *[]MidiPortData) *[]dawio.MidiPortConfig {
	if ports == nil {
		return nil
	}
	out := make([]dawio.MidiPortConfig, 0, len(*ports))
	for _, p := range *ports {
		out = append(out, dawio.MidiPortConfig{
			DeviceID:      dawio.DeviceID{Name: p.Name, Identifier: p.Identifier},
			PortIndex:     p.Port,
			ControlScheme: dawio.Midi1,
		})
	}
	return &out
}

// Log models
type LogsInput struct {
	Since  uint64 `query:"since" doc:"Only return entries with a higher sequence number"`
	Limit  int    `query:"limit" default:"200" minimum:"1" maximum:"1000" doc:"Maximum number of entries"`
	Module string `query:"module" doc:"Only return entries from this module"`
}

type LogsData struct {
	Entries []logging.Entry `json:"entries"`
}

type LogsResponse struct {
	Body LogsData
}
