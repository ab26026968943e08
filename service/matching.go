package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"legalmatch-backend/ai"
	"legalmatch-backend/models"
	"legalmatch-backend/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	shortlistSize     = 10
	defaultMatchLimit = 5
	fallbackUrgency   = "normal"
)

var urgencies = map[string]bool{"low": true, "normal": true, "high": true, "urgent": true}

// ProcessLegalQuery asks the model for a structured reading of the query.
// Unparseable output and exhausted retries both yield a heuristic context
// flagged IsFallback.
func (s *LawyerService) ProcessLegalQuery(ctx context.Context, req AnalyzeRequest) (*models.QueryContext, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fallback := heuristicContext(req)
	if s.model == nil {
		return fallback, nil
	}

	text, err := callModel(ctx, s.model, queryContextPrompt(req), s.log, s.retryOpts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.WithError(err).WithField("type", req.Type).Warn("Query processing unavailable, using heuristic context")
		return fallback, nil
	}

	var parsed struct {
		Summary       string   `json:"summary"`
		LegalCategory string   `json:"legalCategory"`
		KeyIssues     []string `json:"keyIssues"`
		Urgency       string   `json:"urgency"`
	}
	if err := ai.DecodeJSONObject(text, &parsed); err != nil {
		s.log.WithError(err).Warn("Query context not parseable, using heuristic context")
		return fallback, nil
	}

	qc := &models.QueryContext{
		Summary:       strings.TrimSpace(parsed.Summary),
		LegalCategory: strings.TrimSpace(parsed.LegalCategory),
		KeyIssues:     parsed.KeyIssues,
		Urgency:       strings.ToLower(strings.TrimSpace(parsed.Urgency)),
	}
	if qc.Summary == "" {
		qc.Summary = fallback.Summary
	}
	if qc.LegalCategory == "" {
		qc.LegalCategory = fallback.LegalCategory
	}
	if qc.KeyIssues == nil {
		qc.KeyIssues = []string{}
	}
	if !urgencies[qc.Urgency] {
		qc.Urgency = fallbackUrgency
	}
	return qc, nil
}

func heuristicContext(req AnalyzeRequest) *models.QueryContext {
	return &models.QueryContext{
		Summary:       strings.TrimSpace(req.Query),
		LegalCategory: strings.TrimSpace(req.Subclass),
		KeyIssues:     firstWords(req.Query, keywordCount),
		Urgency:       fallbackUrgency,
		IsFallback:    true,
	}
}

func queryContextPrompt(req AnalyzeRequest) string {
	return fmt.Sprintf(`Read this %s law question in the area of %s and describe it as a JSON object:
{"summary": "<one sentence>", "legalCategory": "<most specific area of law>", "keyIssues": ["<issue>", ...], "urgency": "low|normal|high|urgent"}
Return only the JSON object.

Question:
"""
%s
"""`, req.Type, req.Subclass, req.Query)
}

// MatchRequest asks for lawyers suited to a query
type MatchRequest struct {
	Query    string `json:"query"`
	Type     string `json:"type"`
	Subclass string `json:"subclass"`
	Language string `json:"language"`
	Limit    int    `json:"limit"`
}

// MatchResult is the ranked lawyer list. IsFallback is set when the model
// could not rank the shortlist and it is returned in store order.
type MatchResult struct {
	Lawyers    []models.RankedLawyer `json:"lawyers"`
	IsFallback bool                  `json:"isFallback"`
}

type ranking struct {
	ID     string `json:"id"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// MatchLawyers shortlists active lawyers of the query's specialization and
// has the model rank them
func (s *LawyerService) MatchLawyers(ctx context.Context, req MatchRequest) (*MatchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, required("query")
	}
	spec, ok := models.NormalizeLegalType(req.Type)
	if !ok {
		if strings.TrimSpace(req.Type) == "" {
			return nil, required("type")
		}
		return nil, invalid("type", fmt.Sprintf("unknown legal type %q", req.Type))
	}
	if s.lawyers == nil {
		return nil, notSet("lawyer repository")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultMatchLimit
	}

	shortlist, err := s.lawyers.List(ctx, repository.LawyerFilter{
		Specialization: &spec,
		ActiveOnly:     true,
		Limit:          shortlistSize,
	})
	if err != nil {
		return nil, storageErr("shortlist lawyers", err)
	}
	if len(shortlist) == 0 {
		return &MatchResult{Lawyers: []models.RankedLawyer{}}, nil
	}

	fields := logrus.Fields{"type": spec, "shortlist": len(shortlist)}
	if s.model == nil {
		return storeOrder(shortlist, limit), nil
	}

	text, err := callModel(ctx, s.model, matchPrompt(req, shortlist), s.log, s.retryOpts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.WithFields(fields).WithError(err).Warn("Lawyer ranking unavailable, returning shortlist order")
		return storeOrder(shortlist, limit), nil
	}

	var parsed struct {
		Rankings []ranking `json:"rankings"`
	}
	if err := ai.DecodeJSONObject(text, &parsed); err != nil {
		s.log.WithFields(fields).WithError(err).Warn("Lawyer ranking not parseable, returning shortlist order")
		return storeOrder(shortlist, limit), nil
	}

	return &MatchResult{Lawyers: truncate(applyRankings(shortlist, parsed.Rankings), limit)}, nil
}

// applyRankings orders the shortlist by the model's scores. Unknown or
// repeated IDs are ignored; lawyers the model left out follow in
// shortlist order.
func applyRankings(shortlist []*models.Lawyer, rankings []ranking) []models.RankedLawyer {
	byID := make(map[uuid.UUID]*models.Lawyer, len(shortlist))
	for _, l := range shortlist {
		byID[l.ID] = l
	}

	placed := make(map[uuid.UUID]bool, len(shortlist))
	ranked := make([]models.RankedLawyer, 0, len(shortlist))
	for _, r := range rankings {
		id, err := uuid.Parse(strings.TrimSpace(r.ID))
		if err != nil {
			continue
		}
		lawyer, ok := byID[id]
		if !ok || placed[id] {
			continue
		}
		placed[id] = true
		ranked = append(ranked, models.RankedLawyer{Lawyer: lawyer, Score: clampScore(r.Score), Reason: r.Reason})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	for _, l := range shortlist {
		if !placed[l.ID] {
			ranked = append(ranked, models.RankedLawyer{Lawyer: l})
		}
	}
	return ranked
}

func storeOrder(shortlist []*models.Lawyer, limit int) *MatchResult {
	ranked := make([]models.RankedLawyer, len(shortlist))
	for i, l := range shortlist {
		ranked[i] = models.RankedLawyer{Lawyer: l}
	}
	return &MatchResult{Lawyers: truncate(ranked, limit), IsFallback: true}
}

func truncate(ranked []models.RankedLawyer, limit int) []models.RankedLawyer {
	if len(ranked) > limit {
		return ranked[:limit]
	}
	return ranked
}

func clampScore(score int) int {
	return max(0, min(100, score))
}

func matchPrompt(req MatchRequest, shortlist []*models.Lawyer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A client needs help with a %s law matter", req.Type)
	if req.Subclass != "" {
		fmt.Fprintf(&b, " (%s)", req.Subclass)
	}
	if req.Language != "" {
		fmt.Fprintf(&b, " and prefers to speak %s", req.Language)
	}
	fmt.Fprintf(&b, ".\n\nClient query:\n\"\"\"\n%s\n\"\"\"\n\nCandidate lawyers:\n", req.Query)
	for _, l := range shortlist {
		fmt.Fprintf(&b, "- id=%s name=%q experience=%dy rating=%.1f languages=%s bio=%q\n",
			l.ID, l.Name, l.YearsOfExperience, l.Rating, strings.Join(l.Languages, ","), l.Bio)
	}
	b.WriteString(`
Rank the candidates by how well they fit the client. Return only JSON:
{"rankings": [{"id": "<candidate id>", "score": <0-100>, "reason": "<one sentence>"}]}`)
	return b.String()
}
