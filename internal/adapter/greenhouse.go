package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/amishk599/jobmatch/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

var _ model.PostingSource = (*GreenhouseSource)(nil)

type greenhouseJob struct {
	Title       string             `json:"title"`
	Location    greenhouseLocation `json:"location"`
	AbsoluteURL string             `json:"absolute_url"`
	Content     string             `json:"content"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseSource fetches postings from a Greenhouse public board. The list
// endpoint is called with content=true so descriptions arrive in one request.
type GreenhouseSource struct {
	boardToken  string
	companyName string
	client      *http.Client
}

// NewGreenhouseSource creates a source for a Greenhouse board.
func NewGreenhouseSource(boardToken, companyName string, client *http.Client) *GreenhouseSource {
	return &GreenhouseSource{
		boardToken:  boardToken,
		companyName: companyName,
		client:      client,
	}
}

// FetchPostings returns every posting on the board with its description
// converted to plain text.
func (s *GreenhouseSource) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true", greenhouseBaseURL, s.boardToken)

	var resp greenhouseResponse
	if err := getJSON(ctx, s.client, "greenhouse", s.boardToken, url, &resp); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(resp.Jobs))
	for _, gj := range resp.Jobs {
		postings = append(postings, model.Posting{
			Title:       gj.Title,
			Company:     s.companyName,
			URL:         gj.AbsoluteURL,
			Description: extractText(gj.Content),
			Location:    gj.Location.Name,
			Source:      "greenhouse",
		})
	}
	return postings, nil
}
