package models

import "github.com/smazurov/dawio/internal/systemd"

// UnitInput selects an audio server unit.
type UnitInput struct {
	Unit string `path:"unit" example:"pipewire" doc:"Unit name; .service is appended when no suffix is given"`
}

// SystemdUnitStatusResponse wraps a unit status for API responses.
type SystemdUnitStatusResponse struct {
	Body systemd.UnitStatus
}

// SystemdUnitAction contains the result of a unit action.
type SystemdUnitAction struct {
	Unit    string `json:"unit" example:"pipewire.service" doc:"Unit name"`
	Action  string `json:"action" example:"restart" doc:"Action performed"`
	Success bool   `json:"success" example:"true" doc:"Whether the action succeeded"`
}

// SystemdUnitActionResponse wraps SystemdUnitAction for API responses.
type SystemdUnitActionResponse struct {
	Body SystemdUnitAction
}
