package adapter

import (
	"github.com/growhalo/halo/internal/ingestion/domain"
)

// googleAdapter handles Google Ads reporting rows. Cost arrives in
// micro-currency under "cost_micros"; the reporting day is "date".
type googleAdapter struct{}

func (googleAdapter) ValidateAndExtract(payload map[string]any) (domain.EventInput, error) {
	campaignID := stringField(payload, "campaign_id")
	date, ok := timeField(payload, "date")
	if campaignID == "" || !ok {
		return domain.EventInput{}, validationErrorf("google ad spend missing campaign_id or date")
	}

	return domain.EventInput{
		ExternalID:      campaignID + ":" + stringField(payload, "date"),
		EventType:       domain.EventTypeAdSpend,
		Payload:         payload,
		SourceTimestamp: date,
	}, nil
}
