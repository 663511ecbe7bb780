package domain

import "fmt"

// MonitorStatus is the lifecycle status of a network-monitor companion
// container as tracked in the registry.
type MonitorStatus string

const (
	MonitorCreating MonitorStatus = "creating"
	MonitorRunning  MonitorStatus = "running"
	MonitorRemoved  MonitorStatus = "removed"
)

// Monitor is the companion container that shares a logged container's
// network namespace and captures its traffic.
type Monitor struct {
	ID              string
	URI             string
	Status          MonitorStatus
	DockerContainer string // uri of the Container it watches

	// Persisted distinguishes a Monitor that has not yet been written to the
	// registry from one that has. Save treats the two cases differently
	// (insert vs. replace) only in intent; the registry itself performs a
	// keyed upsert either way.
	Persisted bool
}

// MonitorURI derives the persisted URI for a companion container id, per the
// "http://mu.semte.ch/network-monitors/{companionId}" convention.
func MonitorURI(companionID string) string {
	return fmt.Sprintf("http://mu.semte.ch/network-monitors/%s", companionID)
}

// NewMonitor builds the record CreateMonitor persists once its companion
// container id is known.
func NewMonitor(companionID, dockerContainerURI string) Monitor {
	return Monitor{
		ID:              companionID,
		URI:             MonitorURI(companionID),
		Status:          MonitorCreating,
		DockerContainer: dockerContainerURI,
	}
}
