package adapter

import (
	"github.com/growhalo/halo/internal/ingestion/domain"
)

// metaAdapter handles Meta Marketing API insight rows. Spend is reported in
// currency units under "spend"; the reporting day is "date_start".
type metaAdapter struct{}

func (metaAdapter) ValidateAndExtract(payload map[string]any) (domain.EventInput, error) {
	campaignID := stringField(payload, "campaign_id")
	date, ok := timeField(payload, "date_start")
	if campaignID == "" || !ok {
		return domain.EventInput{}, validationErrorf("meta ad spend missing campaign_id or date_start")
	}

	return domain.EventInput{
		ExternalID:      campaignID + ":" + stringField(payload, "date_start"),
		EventType:       domain.EventTypeAdSpend,
		Payload:         payload,
		SourceTimestamp: date,
	}, nil
}
