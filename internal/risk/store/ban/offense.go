package ban

import (
	"context"
	"time"

	"warden/internal/risk/models"
	wsync "warden/pkg/platform/sync"
)

// OffenseLedger remembers the highest ladder rung issued to each IP so a
// repeat offender keeps climbing after an earlier ban has expired. Entries
// are forgotten by the sweeper once they are older than the offense memory.
type OffenseLedger struct {
	records *wsync.ShardedMap[models.OffenseRecord]
}

func NewOffenseLedger(maxKeys int) *OffenseLedger {
	return &OffenseLedger{
		records: wsync.NewShardedMap(wsync.WithMaxKeys(maxKeys, func(r models.OffenseRecord) time.Time {
			return r.LastOffense
		})),
	}
}

func (l *OffenseLedger) Get(_ context.Context, ip string) (*models.OffenseRecord, error) {
	r, ok := l.records.Load(ip)
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Record notes that level was issued to ip at at. A lower level never
// replaces a higher one.
func (l *OffenseLedger) Record(_ context.Context, ip string, level models.BanLevel, at time.Time) (*models.OffenseRecord, error) {
	r := l.records.Update(ip, func(cur models.OffenseRecord, _ bool) models.OffenseRecord {
		cur.IP = ip
		cur.Count++
		if level.Rank() > cur.Level.Rank() {
			cur.Level = level
		}
		if at.After(cur.LastOffense) {
			cur.LastOffense = at
		}
		return cur
	})
	return &r, nil
}

func (l *OffenseLedger) ForgetBefore(_ context.Context, cutoff time.Time) (int, error) {
	return l.records.DeleteFunc(func(_ string, r models.OffenseRecord) bool {
		return r.LastOffense.Before(cutoff)
	}), nil
}
