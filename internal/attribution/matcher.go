package attribution

import (
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// sessionWindow bounds tier-1 session recency. Session tokens are
	// unguessable and per-click, so recency alone is authoritative.
	sessionWindow = 2 * time.Hour

	// visitWindow bounds tier-2 scoring. Kept short to limit
	// false positives from unrelated visits behind a shared NAT.
	visitWindow = 10 * time.Minute
)

// Match is a successful attribution. Exactly one of Session or Visit is
// set; Score is zero for session matches (no scoring performed).
type Match struct {
	Session *domain.Session
	Visit   *domain.Visit
	Score   float64
}

// TrackingLinkID returns the matched record's tracking link, nil for
// direct/organic matches.
func (m *Match) TrackingLinkID() *string {
	if m.Session != nil {
		return m.Session.TrackingLinkID
	}
	if m.Visit != nil {
		return m.Visit.TrackingLinkID
	}
	return nil
}

// AgencyID returns the matched record's agency, nil when unattributed.
func (m *Match) AgencyID() *string {
	if m.Session != nil {
		return m.Session.AgencyID
	}
	if m.Visit != nil {
		return m.Visit.AgencyID
	}
	return nil
}

// Matcher links a newly-arrived LINE identity to the click that produced
// it. All linkage commits are conditional updates, so two concurrent
// webhooks can never claim the same row.
type Matcher struct {
	storage repository.Storage
	log     *zap.Logger
}

func NewMatcher(storage repository.Storage, log *zap.Logger) *Matcher {
	return &Matcher{storage: storage, log: log}
}

// MatchAndLink runs the two-tier search and commits the linkage. Returns
// (nil, nil) when no candidate qualifies: the friend-add is direct, not
// affiliate-driven.
func (m *Matcher) MatchAndLink(ctx context.Context, lineUserID string, sig Signals) (*Match, error) {
	// Tier 1: newest unmatched session within the window.
	sess, err := m.storage.LatestUnmatchedSession(ctx, sig.Now.Add(-sessionWindow))
	if err != nil {
		return nil, fmt.Errorf("query unmatched sessions: %w", err)
	}
	if sess != nil {
		claimed, err := m.storage.ClaimSession(ctx, sess.ID, lineUserID, sig.Now)
		if err != nil {
			return nil, fmt.Errorf("claim session: %w", err)
		}
		if claimed {
			// Link the paired visit as well so it leaves the
			// candidate pool. Best effort: the session claim is
			// the commit point.
			if sess.VisitID != nil {
				if _, err := m.storage.ClaimVisit(ctx, *sess.VisitID, lineUserID); err != nil {
					m.log.Warn("failed to link visit of matched session",
						zap.String("visit_id", *sess.VisitID), zap.Error(err))
				}
			}
			sess.LineUserID = &lineUserID
			sess.LineFriendAt = &sig.Now
			sess.LastActivityAt = sig.Now

			m.log.Info("attribution matched via session",
				zap.String("session_id", sess.ID),
				zap.String("line_user_id", lineUserID))
			return &Match{Session: sess}, nil
		}
		// Another webhook claimed this session first; fall through
		// to visit scoring.
		m.log.Debug("session already claimed, falling back to visit scoring",
			zap.String("session_id", sess.ID))
	}

	// Tier 2: score unmatched visits, newest first. Strictly-greater
	// comparison keeps the newest candidate on ties and rejects
	// non-positive scores.
	visits, err := m.storage.ListUnmatchedVisits(ctx, sig.Now.Add(-visitWindow))
	if err != nil {
		return nil, fmt.Errorf("query unmatched visits: %w", err)
	}

	var best *domain.Visit
	var bestScore float64
	for _, v := range visits {
		if score := ScoreVisit(v, sig); score > bestScore {
			best = v
			bestScore = score
		}
	}
	if best == nil {
		m.log.Info("no attribution candidate above threshold",
			zap.String("line_user_id", lineUserID),
			zap.Int("candidates", len(visits)))
		return nil, nil
	}

	claimed, err := m.storage.ClaimVisit(ctx, best.ID, lineUserID)
	if err != nil {
		return nil, fmt.Errorf("claim visit: %w", err)
	}
	if !claimed {
		// Lost the race for the best candidate; report no match
		// rather than silently taking a worse one.
		m.log.Debug("visit already claimed by concurrent webhook",
			zap.String("visit_id", best.ID))
		return nil, nil
	}
	best.LineUserID = &lineUserID

	m.log.Info("attribution matched via visit scoring",
		zap.String("visit_id", best.ID),
		zap.String("line_user_id", lineUserID),
		zap.Float64("score", bestScore))
	return &Match{Visit: best, Score: bestScore}, nil
}
