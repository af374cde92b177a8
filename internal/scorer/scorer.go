// Package scorer derives score, priority tier, reason line and pitch for
// every stored lead. Scoring is deterministic and idempotent; an optional
// oracle can rewrite the pitch for top-tier leads afterwards.
package scorer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/leadstore"
	"github.com/jvl-group/leadradar/internal/taxonomy"
)

// Priority thresholds on the 0-100 score.
const (
	hotThreshold  = 70
	warmThreshold = 45
)

// Scorer runs scoring passes against a lead store.
type Scorer struct {
	store  *leadstore.Store
	rules  *taxonomy.Ruleset
	oracle Oracle
}

// New creates a scorer without an oracle.
func New(store *leadstore.Store, rules *taxonomy.Ruleset) *Scorer {
	return &Scorer{store: store, rules: rules}
}

// WithOracle attaches a pitch oracle consulted for HOT leads after the
// deterministic pass.
func (s *Scorer) WithOracle(o Oracle) *Scorer {
	s.oracle = o
	return s
}

// ScoreLead recomputes the derived fields of one lead in place. Safe to call
// repeatedly: the result depends only on sources and stack tags.
func (s *Scorer) ScoreLead(l *leadstore.Lead) {
	sigPts := int(l.MaxSourceStrength() * float64(s.rules.SignalWeight))
	stackPts := 0
	for _, t := range l.StackTags {
		stackPts += s.rules.StackWeights[t]
	}
	raw := sigPts + stackPts
	if raw < 0 {
		raw = 0
	}
	if raw > 100 {
		raw = 100
	}
	l.Score = raw

	switch {
	case raw >= hotThreshold:
		l.Priority = leadstore.PriorityHot
	case raw >= warmThreshold:
		l.Priority = leadstore.PriorityWarm
	default:
		l.Priority = leadstore.PriorityCold
	}

	l.Reason = s.reason(l)
	l.Pitch = s.pitch(l)
}

// reason builds the explanation line from stack and source evidence. The
// label order is fixed so repeated passes emit identical text.
func (s *Scorer) reason(l *leadstore.Lead) string {
	var reasons []string
	if l.HasTag(taxonomy.TagEtherCAT) || l.HasTag(taxonomy.TagPROFINET) || l.HasTag(taxonomy.TagEtherNetIP) {
		reasons = append(reasons, "Fieldbus match")
	}
	if l.HasTag(taxonomy.TagROS2) {
		reasons = append(reasons, "ROS2 present")
	}
	if l.HasTag(taxonomy.TagTwinCAT) {
		reasons = append(reasons, "TwinCAT")
	}
	if l.HasTag(taxonomy.TagTIA) {
		reasons = append(reasons, "TIA Portal")
	}
	if l.HasTag(taxonomy.TagStudio5000) {
		reasons = append(reasons, "Studio 5000")
	}
	if l.HasSource(taxonomy.SourceETG) {
		reasons = append(reasons, "Listed on ETG")
	}
	if l.HasSource(taxonomy.SourceSiemens) {
		reasons = append(reasons, "Siemens partner")
	}
	if l.HasSource(taxonomy.SourceUR) {
		reasons = append(reasons, "UR ecosystem")
	}
	if l.HasSource(taxonomy.SourceBeckhoff) {
		reasons = append(reasons, "Beckhoff ecosystem")
	}
	if l.HasSource(taxonomy.SourcePI) {
		reasons = append(reasons, "PI/PROFINET ecosystem")
	}
	if len(reasons) == 0 {
		return "Relevance match"
	}
	return strings.Join(reasons, "; ")
}

func (s *Scorer) pitch(l *leadstore.Lead) string {
	return "Abbiamo integrazioni MAC con EtherCAT/PROFINET/EtherNet-IP, ROS2, UR e PLC (TwinCAT/TIA/Studio5000). " +
		"POC rapido sul vostro stack (" + strings.Join(l.StackTags, ", ") + ")."
}

// Pass rescores every lead. When an oracle is attached it is consulted for
// each HOT lead; oracle failures keep the template pitch and the pass goes
// on. Returns the number of leads scored.
func (s *Scorer) Pass(ctx context.Context) (int, error) {
	scored := 0
	var hot []string
	for _, id := range s.store.IDs() {
		if ctx.Err() != nil {
			return scored, ctx.Err()
		}
		s.store.Update(id, func(l *leadstore.Lead) {
			s.ScoreLead(l)
			if l.Priority == leadstore.PriorityHot {
				hot = append(hot, id)
			}
		})
		scored++
	}

	if s.oracle != nil {
		for _, id := range hot {
			if ctx.Err() != nil {
				return scored, ctx.Err()
			}
			lead, ok := s.store.Get(id)
			if !ok {
				continue
			}
			pitch, err := s.oracle.Pitch(ctx, lead)
			if err != nil {
				zap.L().Warn("oracle pitch skipped",
					zap.String("company_id", id),
					zap.Error(err),
				)
				continue
			}
			if pitch != "" {
				s.store.Update(id, func(l *leadstore.Lead) { l.Pitch = pitch })
			}
		}
	}

	zap.L().Info("scoring pass done", zap.Int("scored", scored), zap.Int("hot", len(hot)))
	return scored, nil
}
