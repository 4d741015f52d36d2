package usecase

import (
	"context"
	"sort"
	"time"

	"torrens/internal/domain"
)

// Reporter builds self-certifying compliance reports: the timeline and the
// embedded integrity verification come from the same ordered entry set.
type Reporter struct {
	ledger *Ledger
	clock  Clock
}

func NewReporter(ledger *Ledger, clock Clock) *Reporter {
	return &Reporter{ledger: ledger, clock: ensureClock(clock)}
}

// ReportRequest scopes one report. Zero From/To leave that end of the
// period open; the integrity verification always covers the full chain
// regardless of period. With RecordAccess set, generating the report is
// itself audited as a verify event attributed to Actor.
type ReportRequest struct {
	ResourceType string
	ResourceID   string
	From         time.Time
	To           time.Time
	RecordAccess bool
	Actor        domain.Actor
}

func (r *Reporter) Generate(ctx context.Context, req ReportRequest) (domain.ComplianceReport, error) {
	if req.ResourceType == "" || req.ResourceID == "" {
		return domain.ComplianceReport{}, domain.ValidationError("RESOURCE_REQUIRED", "resource type and resource id required")
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		return domain.ComplianceReport{}, domain.ValidationError("RANGE_INVALID", "report range ends before it starts")
	}

	integrity, err := r.ledger.VerifyIntegrity(ctx, req.ResourceType, req.ResourceID)
	if err != nil {
		return domain.ComplianceReport{}, err
	}
	entries, err := r.ledger.ChainEntries(ctx, req.ResourceType, req.ResourceID)
	if err != nil {
		return domain.ComplianceReport{}, err
	}

	report := domain.ComplianceReport{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		EventCounts:  map[domain.EventType]int{},
		Integrity:    integrity,
		GeneratedAt:  r.clock().UTC(),
	}
	if !req.From.IsZero() || !req.To.IsZero() {
		report.Period = &domain.ReportPeriod{From: req.From.UTC(), To: req.To.UTC()}
	}

	byActor := map[string]*domain.ActorActivity{}
	for _, e := range entries {
		if !req.From.IsZero() && e.OccurredAt.Before(req.From) {
			continue
		}
		if !req.To.IsZero() && e.OccurredAt.After(req.To) {
			continue
		}
		report.TotalEvents++
		report.EventCounts[e.EventType]++
		act, ok := byActor[e.ActorID]
		if !ok {
			act = &domain.ActorActivity{ActorID: e.ActorID}
			byActor[e.ActorID] = act
		}
		act.Events++
		if act.ActorName == "" {
			act.ActorName = e.ActorName
		}
		report.Timeline = append(report.Timeline, domain.TimelineEntry{
			OccurredAt:  e.OccurredAt,
			EventType:   e.EventType,
			ActorID:     e.ActorID,
			ActorName:   e.ActorName,
			Action:      e.Action,
			Description: e.Description,
		})
	}

	sort.SliceStable(report.Timeline, func(i, j int) bool {
		return report.Timeline[i].OccurredAt.Before(report.Timeline[j].OccurredAt)
	})

	actors := make([]domain.ActorActivity, 0, len(byActor))
	for _, a := range byActor {
		actors = append(actors, *a)
	}
	sort.Slice(actors, func(i, j int) bool {
		if actors[i].Events != actors[j].Events {
			return actors[i].Events > actors[j].Events
		}
		return actors[i].ActorID < actors[j].ActorID
	})
	report.Actors = actors

	if req.RecordAccess {
		actorID := req.Actor.UserID
		if actorID == "" {
			actorID = "system"
		}
		_, err := r.ledger.LogEvent(ctx, LogEventInput{
			EventType:    domain.EventVerify,
			ResourceType: req.ResourceType,
			ResourceID:   req.ResourceID,
			ActorID:      actorID,
			ActorName:    req.Actor.Name,
			ActorRole:    string(req.Actor.Role),
			Action:       "compliance_report",
			Description:  "compliance report generated",
			Metadata: map[string]any{
				"valid":   integrity.Valid,
				"entries": integrity.EntryCount,
			},
		})
		if err != nil {
			return domain.ComplianceReport{}, err
		}
	}
	return report, nil
}
