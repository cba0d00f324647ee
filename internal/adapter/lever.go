package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/amishk599/jobmatch/internal/model"
)

const leverBaseURL = "https://api.lever.co/v0/postings"

var _ model.PostingSource = (*LeverSource)(nil)

type leverCategories struct {
	Location     string   `json:"location"`
	AllLocations []string `json:"allLocations"`
}

type leverJob struct {
	Text             string          `json:"text"`
	Description      string          `json:"description"`
	DescriptionPlain string          `json:"descriptionPlain"`
	Categories       leverCategories `json:"categories"`
	HostedURL        string          `json:"hostedUrl"`
}

// LeverSource fetches postings from the Lever public postings API.
type LeverSource struct {
	companySlug string
	companyName string
	client      *http.Client
}

// NewLeverSource creates a source for a Lever company.
func NewLeverSource(companySlug, companyName string, client *http.Client) *LeverSource {
	return &LeverSource{
		companySlug: companySlug,
		companyName: companyName,
		client:      client,
	}
}

// FetchPostings returns every Lever posting for the company.
func (s *LeverSource) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	url := fmt.Sprintf("%s/%s?mode=json", leverBaseURL, s.companySlug)

	var jobs []leverJob
	if err := getJSON(ctx, s.client, "lever", s.companySlug, url, &jobs); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(jobs))
	for _, lj := range jobs {
		location := lj.Categories.Location
		if len(lj.Categories.AllLocations) > 0 {
			location = strings.Join(lj.Categories.AllLocations, ", ")
		}

		description := strings.TrimSpace(lj.DescriptionPlain)
		if description == "" {
			description = extractText(lj.Description)
		}

		postings = append(postings, model.Posting{
			Title:       lj.Text,
			Company:     s.companyName,
			URL:         lj.HostedURL,
			Description: description,
			Location:    location,
			Source:      "lever",
		})
	}
	return postings, nil
}
