package transformer

import (
	ingestion "github.com/growhalo/halo/internal/ingestion/domain"
	"github.com/growhalo/halo/internal/modeling/domain"
)

// AdSpend normalizes a spend payload. Meta reports spend in currency units;
// Google reports cost_micros and is divided by 1e6. Both fall back to a
// generic amount field when the source-specific one is absent.
func AdSpend(raw ingestion.RawEventDTO) domain.AdSpend {
	p := raw.Payload

	var amount float64
	var dateKey string
	if raw.Source == ingestion.SourceMeta {
		amount = num(p, "spend", "amount")
		dateKey = "date_start"
	} else {
		amount = num(p, "cost_micros") / 1_000_000
		if amount == 0 {
			amount = num(p, "amount")
		}
		dateKey = "date"
	}

	return domain.AdSpend{
		TenantID:     raw.TenantID,
		Source:       string(raw.Source),
		CampaignID:   str(p, "campaign_id"),
		CampaignName: str(p, "campaign_name"),
		Amount:       amount,
		Impressions:  int64(num(p, "impressions")),
		Clicks:       int64(num(p, "clicks")),
		SpendDate:    domain.Day(date(p, raw.SourceTimestamp, dateKey)),
	}
}
