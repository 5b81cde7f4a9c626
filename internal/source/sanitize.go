package source

import (
	"fmt"

	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// Sanitize drops records that fail validation or repeat an ID already seen from
// the same source. Dropped records are logged; the batch itself never fails.
// Returns the kept records and the number dropped.
func Sanitize(sourceName string, records []tournament.Tournament, log *logger.Logger) ([]tournament.Tournament, int) {
	if log == nil {
		log = logger.NewNop()
	}

	kept := make([]tournament.Tournament, 0, len(records))
	seen := make(map[string]bool, len(records))
	dropped := 0

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			dropped++
			log.Warn("dropping malformed record", logger.Fields{
				"source": sourceName,
				"id":     rec.ID,
				"name":   rec.Name,
				"reason": fmt.Errorf("%w: %v", ErrMalformedRecord, err).Error(),
			})
			continue
		}
		if seen[rec.ID] {
			dropped++
			log.Debug("dropping repeated record id", logger.Fields{
				"source": sourceName,
				"id":     rec.ID,
			})
			continue
		}
		seen[rec.ID] = true
		kept = append(kept, rec)
	}

	return kept, dropped
}
