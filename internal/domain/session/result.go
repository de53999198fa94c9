package session

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/mastery"
)

// Estimate is a score band resolved from aggregate mastery.
type Estimate struct {
	Level    string   `json:"level"`
	Score    int      `json:"score"`
	ScoreMin int      `json:"score_min"`
	ScoreMax int      `json:"score_max"`
	Advice   []string `json:"-"`
}

// ScoreScale maps aggregate mastery in [0,1] to an external score band.
type ScoreScale interface {
	Estimate(aggregateMastery float64) Estimate
}

// CategoryScore is the per-category breakdown of a session.
type CategoryScore struct {
	Category string  `json:"category"`
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// WeakSkill is one entry of the ranked weak-skill list.
type WeakSkill struct {
	SkillID    int64               `json:"skill_id"`
	Code       string              `json:"code,omitempty"`
	Name       string              `json:"name,omitempty"`
	Category   string              `json:"category,omitempty"`
	Mastery    float64             `json:"mastery"`
	Confidence float64             `json:"confidence"`
	Label      domain.MasteryLabel `json:"label"`
}

// Result summarizes a session.
type Result struct {
	SessionID         uuid.UUID            `json:"session_id"`
	Mode              domain.SessionMode   `json:"mode"`
	Status            domain.SessionStatus `json:"status"`
	TerminationReason string               `json:"termination_reason,omitempty"`
	AnsweredCount     int                  `json:"answered_count"`
	CorrectCount      int                  `json:"correct_count"`
	RawScore          float64              `json:"raw_score"`
	AggregateMastery  float64              `json:"aggregate_mastery"`
	Confidence        float64              `json:"confidence"`
	Estimate          Estimate             `json:"estimate"`
	Categories        []CategoryScore      `json:"categories"`
	WeakSkills        []WeakSkill          `json:"weak_skills"`
	Recommendations   []string             `json:"recommendations"`
	TimeSpentSeconds  int64                `json:"time_spent_seconds"`
	StartTime         time.Time            `json:"start_time"`
	EndTime           *time.Time           `json:"end_time,omitempty"`
}

// ResultInput carries everything BuildResult needs besides the session.
type ResultInput struct {
	Masteries map[int64]domain.SkillMastery
	Skills    map[int64]domain.Skill
	Scale     ScoreScale
	Label     func(float64) domain.MasteryLabel
	Now       time.Time
}

// BuildResult computes the category breakdown, score estimate, weak skills
// and recommendations for a session.
func (e *Engine) BuildResult(s *domain.Session, in ResultInput) Result {
	res := Result{
		SessionID:         s.ID,
		Mode:              s.Mode,
		Status:            s.Status,
		TerminationReason: s.TerminationReason,
		AnsweredCount:     s.AnsweredCount,
		CorrectCount:      s.CorrectCount,
		Confidence:        s.CurrentConfidence,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		Categories:        []CategoryScore{},
		WeakSkills:        []WeakSkill{},
		Recommendations:   []string{},
	}
	if s.AnsweredCount > 0 {
		res.RawScore = math.Round(float64(s.CorrectCount)/float64(s.AnsweredCount)*1000) / 10
	}

	end := in.Now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	if end.After(s.StartTime) {
		res.TimeSpentSeconds = int64(end.Sub(s.StartTime) / time.Second)
	}

	counts := make(map[int64]int)
	var order []int64
	for _, a := range s.Answers {
		if counts[a.SkillID] == 0 {
			order = append(order, a.SkillID)
		}
		counts[a.SkillID]++
	}

	res.Categories = categoryScores(s.Answers, in.Skills)

	values := make([]float64, 0, len(order))
	weights := make([]float64, 0, len(order))
	for _, id := range order {
		m, ok := in.Masteries[id]
		if !ok {
			m = domain.SkillMastery{SkillID: id, MasteryLevel: domain.InitialMastery}
		}
		values = append(values, m.MasteryLevel)
		weights = append(weights, float64(counts[id]))

		if m.MasteryLevel < e.params.WeakThreshold {
			ws := WeakSkill{
				SkillID:    id,
				Mastery:    m.MasteryLevel,
				Confidence: m.Confidence,
			}
			if in.Label != nil {
				ws.Label = in.Label(m.MasteryLevel)
			}
			if sk, ok := in.Skills[id]; ok {
				ws.Code, ws.Name, ws.Category = sk.Code, sk.Name, sk.Category
			}
			res.WeakSkills = append(res.WeakSkills, ws)
		}
	}
	res.WeakSkills = RankWeakSkills(res.WeakSkills)
	res.AggregateMastery = mastery.Aggregate(values, weights)

	if in.Scale != nil {
		res.Estimate = in.Scale.Estimate(res.AggregateMastery)
	}
	res.Recommendations = e.recommendations(res)
	return res
}

// RankWeakSkills orders weak skills by ascending mastery; among equal mastery
// the more confident estimate ranks first, then the lower skill id.
func RankWeakSkills(skills []WeakSkill) []WeakSkill {
	out := append([]WeakSkill(nil), skills...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Mastery != out[j].Mastery {
			return out[i].Mastery < out[j].Mastery
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].SkillID < out[j].SkillID
	})
	if out == nil {
		return []WeakSkill{}
	}
	return out
}

func categoryScores(answers []domain.AnswerEvent, skills map[int64]domain.Skill) []CategoryScore {
	byCategory := make(map[string]*CategoryScore)
	for _, a := range answers {
		category := "UNCATEGORIZED"
		if sk, ok := skills[a.SkillID]; ok && sk.Category != "" {
			category = sk.Category
		}
		cs, ok := byCategory[category]
		if !ok {
			cs = &CategoryScore{Category: category}
			byCategory[category] = cs
		}
		cs.Total++
		if a.IsCorrect {
			cs.Correct++
		}
	}

	out := make([]CategoryScore, 0, len(byCategory))
	for _, cs := range byCategory {
		cs.Accuracy = float64(cs.Correct) / float64(cs.Total)
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func (e *Engine) recommendations(res Result) []string {
	recs := []string{}

	weakest := append([]CategoryScore(nil), res.Categories...)
	sort.SliceStable(weakest, func(i, j int) bool { return weakest[i].Accuracy < weakest[j].Accuracy })
	for i := 0; i < len(weakest) && i < 2; i++ {
		name := humanize(weakest[i].Category)
		switch {
		case weakest[i].Accuracy < 0.5:
			recs = append(recs, fmt.Sprintf("Focus on %s first: work through targeted exercises in this area.", name))
		case weakest[i].Accuracy < 0.7:
			recs = append(recs, fmt.Sprintf("Keep practicing %s regularly to consolidate it.", name))
		}
	}

	recs = append(recs, res.Estimate.Advice...)

	switch {
	case res.AnsweredCount > 0 && res.RawScore < 40:
		recs = append(recs, "A structured course will speed up progress at this stage.")
	case res.RawScore >= 80:
		recs = append(recs, "Strong result. Move on to harder material to keep improving.")
	}

	if limit := e.params.MaxRecommendations; limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func humanize(category string) string {
	return strings.ReplaceAll(strings.ToLower(category), "_", " ")
}
