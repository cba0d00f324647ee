package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/amishk599/jobmatch/internal/model"
)

const ashbyBaseURL = "https://api.ashbyhq.com/posting-api/job-board"

var _ model.PostingSource = (*AshbySource)(nil)

type ashbyJob struct {
	Title            string `json:"title"`
	Location         string `json:"location"`
	JobURL           string `json:"jobUrl"`
	DescriptionPlain string `json:"descriptionPlain"`
	DescriptionHTML  string `json:"descriptionHtml"`
	IsListed         bool   `json:"isListed"`
}

type ashbyResponse struct {
	Jobs []ashbyJob `json:"jobs"`
}

// AshbySource fetches listed postings from an Ashby public job board.
type AshbySource struct {
	boardToken  string
	companyName string
	client      *http.Client
}

// NewAshbySource creates a source for an Ashby job board.
func NewAshbySource(boardToken, companyName string, client *http.Client) *AshbySource {
	return &AshbySource{
		boardToken:  boardToken,
		companyName: companyName,
		client:      client,
	}
}

// FetchPostings returns the board's listed postings. Unlisted ones are skipped.
func (s *AshbySource) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	url := fmt.Sprintf("%s/%s", ashbyBaseURL, s.boardToken)

	var resp ashbyResponse
	if err := getJSON(ctx, s.client, "ashby", s.boardToken, url, &resp); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(resp.Jobs))
	for _, aj := range resp.Jobs {
		if !aj.IsListed {
			continue
		}
		description := aj.DescriptionPlain
		if description == "" {
			description = extractText(aj.DescriptionHTML)
		}
		postings = append(postings, model.Posting{
			Title:       aj.Title,
			Company:     s.companyName,
			URL:         aj.JobURL,
			Description: description,
			Location:    aj.Location,
			Source:      "ashby",
		})
	}
	return postings, nil
}
