package events

import (
	"fmt"
	"time"

	"warden/internal/platform/privacy"
	"warden/internal/risk/models"
)

// Payload keys shared by every producer of the event stream.
const (
	KeyIP        = "ip"
	KeySignal    = "signal"
	KeyStore     = "store"
	KeyOperation = "operation"
	KeyError     = "error"
	KeyScore     = "score"
	KeyLevel     = "level"
	KeyReasons   = "reason_codes"
	KeyExpiresAt = "expires_at"
	KeyTasks     = "tasks"
	KeyDuration  = "duration_ms"
)

// SignalError reports a collector that could not produce a value for ip.
func SignalError(signal, ip string, err error, at time.Time) models.Event {
	return models.NewEvent(models.EventSignalError, map[string]any{
		KeySignal: signal,
		KeyIP:     privacy.AnonymizeIP(ip),
		KeyError:  errString(err),
	}, at)
}

// StoreUnavailable reports a failed store operation on the request path.
func StoreUnavailable(store, operation, ip string, err error, at time.Time) models.Event {
	return models.NewEvent(models.EventStoreUnavailable, map[string]any{
		KeyStore:     store,
		KeyOperation: operation,
		KeyIP:        privacy.AnonymizeIP(ip),
		KeyError:     errString(err),
	}, at)
}

// EngineError reports an evaluation that panicked and fell back to CHALLENGE.
func EngineError(ip string, cause any, at time.Time) models.Event {
	return models.NewEvent(models.EventEngineError, map[string]any{
		KeyIP:    privacy.AnonymizeIP(ip),
		KeyError: fmt.Sprint(cause),
	}, at)
}

// HighThreatAlert reports a new or promoted permanent ban. The alert carries
// the full address since it is meant for the operator acting on it.
func HighThreatAlert(ip string, score int, reasons []string, at time.Time) models.Event {
	return models.NewEvent(models.EventHighThreatAlert, map[string]any{
		KeyIP:      ip,
		KeyScore:   score,
		KeyReasons: reasons,
	}, at)
}

// BanEscalated reports a ladder step.
func BanEscalated(ban *models.BanRecord, at time.Time) models.Event {
	payload := map[string]any{
		KeyIP:    ban.IP,
		KeyLevel: string(ban.Level),
		"reason": ban.Reason,
	}
	if ban.ExpiresAt != nil {
		payload[KeyExpiresAt] = ban.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return models.NewEvent(models.EventBanEscalated, payload, at)
}

// SweepCompleted reports per-task results of one sweep tick.
func SweepCompleted(tasks map[string]any, took time.Duration, at time.Time) models.Event {
	return models.NewEvent(models.EventSweepCompleted, map[string]any{
		KeyTasks:    tasks,
		KeyDuration: took.Milliseconds(),
	}, at)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
