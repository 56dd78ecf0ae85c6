package attribution

import (
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Recorder writes line_friend conversions for successful matches. It is
// idempotent per (tracking_link, line_user): the existence check is a fast
// path and the store's uniqueness constraint is the real guarantee, so a
// duplicate insert from a concurrent webhook is treated as a no-op.
type Recorder struct {
	storage repository.Storage
	log     *zap.Logger
}

func NewRecorder(storage repository.Storage, log *zap.Logger) *Recorder {
	return &Recorder{storage: storage, log: log}
}

// RecordLineFriend records a conversion for the match. A match without a
// tracking link is linkage only: the friend-add stays unattributed and no
// conversion row is written.
func (r *Recorder) RecordLineFriend(ctx context.Context, match *Match, lineUserID string) error {
	if match == nil {
		return nil
	}
	linkID := match.TrackingLinkID()
	if linkID == nil {
		r.log.Debug("match has no tracking link, skipping conversion",
			zap.String("line_user_id", lineUserID))
		return nil
	}
	agencyID := match.AgencyID()
	if agencyID == nil {
		r.log.Warn("match has tracking link but no agency, skipping conversion",
			zap.String("tracking_link_id", *linkID))
		return nil
	}

	exists, err := r.storage.HasConversion(ctx, *linkID, lineUserID, domain.ConversionTypeLineFriend)
	if err != nil {
		return fmt.Errorf("check existing conversion: %w", err)
	}
	if exists {
		r.log.Debug("conversion already recorded",
			zap.String("tracking_link_id", *linkID),
			zap.String("line_user_id", lineUserID))
		return nil
	}

	conversion := &domain.Conversion{
		AgencyID:       *agencyID,
		TrackingLinkID: linkID,
		LineUserID:     lineUserID,
		ConversionType: domain.ConversionTypeLineFriend,
		Metadata:       snapshotMetadata(match),
	}
	if match.Visit != nil {
		conversion.VisitID = &match.Visit.ID
		conversion.ServiceID = match.Visit.ServiceID
	}
	if match.Session != nil {
		conversion.SessionID = &match.Session.ID
		conversion.VisitID = match.Session.VisitID
	}

	if err := r.storage.CreateConversion(ctx, conversion); err != nil {
		if errors.Is(err, repository.ErrDuplicateConversion) {
			r.log.Debug("concurrent webhook recorded the conversion first",
				zap.String("tracking_link_id", *linkID),
				zap.String("line_user_id", lineUserID))
			return nil
		}
		return fmt.Errorf("create conversion: %w", err)
	}

	if err := r.storage.IncrementLinkConversions(ctx, *linkID); err != nil {
		// The conversion ledger is authoritative; the counter is
		// display data only.
		r.log.Warn("failed to increment conversion counter",
			zap.String("tracking_link_id", *linkID), zap.Error(err))
	}

	r.log.Info("conversion recorded",
		zap.String("conversion_id", conversion.ID),
		zap.String("tracking_link_id", *linkID),
		zap.String("line_user_id", lineUserID))
	return nil
}

// snapshotMetadata copies the attribution context from the matched record
// so the conversion row stands alone for reporting.
func snapshotMetadata(match *Match) domain.JSONMap {
	meta := domain.JSONMap{}
	if v := match.Visit; v != nil {
		putStr(meta, "referrer", v.Referrer)
		putStr(meta, "device_type", v.DeviceType)
		putStr(meta, "browser", v.Browser)
		putStr(meta, "os", v.OS)
		for _, key := range []string{"utm_source", "utm_medium", "utm_campaign"} {
			if val, ok := v.Metadata[key]; ok {
				meta[key] = val
			}
		}
		meta["matched_by"] = "visit"
	}
	if s := match.Session; s != nil {
		putStr(meta, "utm_source", s.UTMSource)
		putStr(meta, "utm_medium", s.UTMMedium)
		putStr(meta, "utm_campaign", s.UTMCampaign)
		if val, ok := s.Metadata["referrer"]; ok {
			meta["referrer"] = val
		}
		meta["matched_by"] = "session"
	}
	if match.Score > 0 {
		meta["match_score"] = match.Score
	}
	return meta
}

func putStr(meta domain.JSONMap, key string, val *string) {
	if val != nil && *val != "" {
		meta[key] = *val
	}
}
