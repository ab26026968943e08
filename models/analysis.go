package models

import "encoding/json"

// ArticleRef is one entry of AnalysisResult.ApplicableArticles. Articles
// matched in the database carry the full record; citations scanned from
// free-text model output only carry the citation string ("Article 42").
type ArticleRef struct {
	Citation string
	Article  *Article
}

// MarshalJSON encodes citation-only refs as bare strings and database refs
// as article objects.
func (r ArticleRef) MarshalJSON() ([]byte, error) {
	if r.Article != nil {
		return json.Marshal(r.Article)
	}
	return json.Marshal(r.Citation)
}

// UnmarshalJSON accepts both encodings produced by MarshalJSON
func (r *ArticleRef) UnmarshalJSON(data []byte) error {
	var citation string
	if err := json.Unmarshal(data, &citation); err == nil {
		*r = ArticleRef{Citation: citation}
		return nil
	}
	var article Article
	if err := json.Unmarshal(data, &article); err != nil {
		return err
	}
	*r = ArticleRef{Citation: "Article " + article.ArticleNumber, Article: &article}
	return nil
}

// AnalysisResult is the response of the legal analysis pipeline
type AnalysisResult struct {
	Analysis           string       `json:"analysis"`
	ApplicableArticles []ArticleRef `json:"applicableArticles"`
	IsFallback         bool         `json:"isFallback"`
	IsDatabaseFallback bool         `json:"isDatabaseFallback"`
	IsCached           bool         `json:"isCached,omitempty"`
}

// Citations returns the citation strings of every applicable article
func (r *AnalysisResult) Citations() []string {
	out := make([]string, 0, len(r.ApplicableArticles))
	for _, ref := range r.ApplicableArticles {
		out = append(out, ref.Citation)
	}
	return out
}

// Clone returns a copy that shares no slices with r
func (r *AnalysisResult) Clone() *AnalysisResult {
	c := *r
	c.ApplicableArticles = append([]ArticleRef(nil), r.ApplicableArticles...)
	if c.ApplicableArticles == nil {
		c.ApplicableArticles = []ArticleRef{}
	}
	return &c
}

// QueryContext is the structured reading of a user query used to brief
// lawyer matching
type QueryContext struct {
	Summary       string   `json:"summary"`
	LegalCategory string   `json:"legalCategory"`
	KeyIssues     []string `json:"keyIssues"`
	Urgency       string   `json:"urgency"`
	IsFallback    bool     `json:"isFallback"`
}
