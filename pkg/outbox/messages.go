package outbox

import "github.com/lattice-dmcp/lattice/pkg/types"

// DeletionPlanned builds the payload for a deletion-planned message:
// scope, name, file-size, url, rse (spec §6).
func DeletionPlanned(scope, name string, fileSize int64, url, rse string) *types.Message {
	return &types.Message{
		EventType: types.EventDeletionPlanned,
		Payload: map[string]any{
			"scope":     scope,
			"name":      name,
			"file-size": fileSize,
			"url":       url,
			"rse":       rse,
		},
	}
}

// DeletionDone builds the payload for a deletion-done message: scope,
// name, rse, file-size, url, duration (seconds, float).
func DeletionDone(scope, name, rse string, fileSize int64, url string, durationSeconds float64) *types.Message {
	return &types.Message{
		EventType: types.EventDeletionDone,
		Payload: map[string]any{
			"scope":     scope,
			"name":      name,
			"rse":       rse,
			"file-size": fileSize,
			"url":       url,
			"duration":  durationSeconds,
		},
	}
}

// DeletionFailed builds the payload for a deletion-failed message:
// scope, name, rse, file-size, url, reason.
func DeletionFailed(scope, name, rse string, fileSize int64, url, reason string) *types.Message {
	return &types.Message{
		EventType: types.EventDeletionFailed,
		Payload: map[string]any{
			"scope":     scope,
			"name":      name,
			"rse":       rse,
			"file-size": fileSize,
			"url":       url,
			"reason":    reason,
		},
	}
}
