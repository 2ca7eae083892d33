package submissions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/events"
	"admissions-forms/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// SearchHit is one indexed submission returned by a free-text search.
type SearchHit struct {
	ID        string          `json:"id"`
	FormID    string          `json:"formId"`
	FormName  string          `json:"formName"`
	FullName  string          `json:"fullName"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Status    models.Status   `json:"status"`
	Priority  models.Priority `json:"priority"`
	Tags      []string        `json:"tags"`
	Archived  bool            `json:"isArchived"`
	CreatedAt time.Time       `json:"createdAt"`
	Score     float64         `json:"score"`
}

var searchFields = []string{"fullName^3", "email^2", "phone", "formName", "tags"}

// SearchIndex keeps a flattened copy of each submission in Elasticsearch.
// It is subscribed to the event bus and also answers Search.
type SearchIndex struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewSearchIndex(client *elasticsearch.Client, index string, log logger.Logger) *SearchIndex {
	return &SearchIndex{client: client, index: index, logger: logger.ForComponent(log, "search-index")}
}

func (x *SearchIndex) Name() string { return "elasticsearch" }

// Handle reindexes the submission carried by every event.
func (x *SearchIndex) Handle(ctx context.Context, e events.Event) error {
	return x.Index(ctx, e.Submission)
}

// Index writes sub under its id, replacing any earlier copy.
func (x *SearchIndex) Index(ctx context.Context, sub *models.Submission) error {
	if sub == nil {
		return nil
	}
	doc := SearchHit{
		ID:        sub.ID,
		FormID:    sub.ApplicationForm.ID,
		FormName:  sub.ApplicationForm.Name,
		FullName:  sub.StudentInfo.FullName,
		Email:     sub.StudentInfo.Email,
		Phone:     sub.StudentInfo.PhoneNumber,
		Status:    sub.Status,
		Priority:  sub.Priority,
		Tags:      sub.Tags,
		Archived:  sub.IsArchived,
		CreatedAt: sub.CreatedAt,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: sub.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("index request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index %s: %s", sub.ID, res.Status())
	}
	x.logger.Debug("submission indexed", map[string]interface{}{"submissionId": sub.ID})
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Score  float64   `json:"_score"`
			Source SearchHit `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a multi_match query over applicant identity, form name and
// tags. Archived submissions are excluded.
func (x *SearchIndex) Search(ctx context.Context, query string, page models.Page) ([]SearchHit, int, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":  query,
							"fields": searchFields,
							"type":   "best_fields",
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"isArchived": false}},
				},
			},
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode query: %w", err)
	}

	from, size := page.Offset(), page.Limit
	req := esapi.SearchRequest{
		Index: []string{x.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return nil, 0, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, 0, fmt.Errorf("search %s: %s", x.index, res.Status())
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]SearchHit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		hit := h.Source
		hit.Score = h.Score
		hits = append(hits, hit)
	}
	return hits, out.Hits.Total.Value, nil
}
