// Package discover talks to a SAM.gov-style opportunities feed. It is the
// ingest side of the pipeline: the discovery stage and the signal scan both
// pull notices through this client.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"bidline/internal/config"
)

// ErrUnavailable marks feed failures the caller should retry later.
var ErrUnavailable = errors.New("notice feed unavailable")

// Notice is one normalized feed entry.
type Notice struct {
	SolicitationNumber string
	Title              string
	Description        string
	Agency             string
	Office             string
	PostedDate         string
	ResponseDeadline   string
	NAICSCode          string
	PSCCode            string
	SetAside           string
	NoticeType         string
	EstimatedValue     *float64
	PlaceOfPerformance string
	SourceURL          string
}

// Query narrows a feed search.
type Query struct {
	Keywords           string
	NAICSCode          string
	SolicitationNumber string
	NoticeType         string
	PostedFrom         string
	PostedTo           string
	Limit              int
}

// Client queries the opportunities feed with retries on transport errors.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
}

func NewClient(ep config.ServiceEndpoint) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &Client{http: rc, baseURL: strings.TrimRight(ep.BaseURL, "/"), apiKey: ep.APIKey}
}

// Configured reports whether a feed endpoint was provided.
func (c *Client) Configured() bool { return c != nil && c.baseURL != "" }

// Search runs one feed query and returns normalized notices.
func (c *Client) Search(ctx context.Context, q Query) ([]Notice, error) {
	if !c.Configured() {
		return nil, ErrUnavailable
	}
	params := url.Values{}
	if q.Keywords != "" {
		params.Set("title", q.Keywords)
	}
	if q.NAICSCode != "" {
		params.Set("ncode", q.NAICSCode)
	}
	if q.SolicitationNumber != "" {
		params.Set("solnum", q.SolicitationNumber)
	}
	if q.NoticeType != "" {
		params.Set("ptype", q.NoticeType)
	}
	if q.PostedFrom != "" {
		params.Set("postedFrom", q.PostedFrom)
	}
	if q.PostedTo != "" {
		params.Set("postedTo", q.PostedTo)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	params.Set("limit", fmt.Sprintf("%d", limit))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/opportunities/v2/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: feed returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return parseNotices(body), nil
}

// parseNotices normalizes the feed's opportunitiesData array.
func parseNotices(body []byte) []Notice {
	var notices []Notice
	gjson.GetBytes(body, "opportunitiesData").ForEach(func(_, opp gjson.Result) bool {
		n := Notice{
			SolicitationNumber: opp.Get("noticeId").String(),
			Title:              opp.Get("title").String(),
			Description:        opp.Get("description").String(),
			Agency:             opp.Get("fullParentPathName").String(),
			Office:             opp.Get("subtierName").String(),
			PostedDate:         opp.Get("postedDate").String(),
			ResponseDeadline:   opp.Get("responseDeadLine").String(),
			NAICSCode:          opp.Get("naicsCode").String(),
			PSCCode:            opp.Get("classificationCode").String(),
			SetAside:           opp.Get("typeOfSetAside").String(),
			NoticeType:         opp.Get("type").String(),
			PlaceOfPerformance: placeOfPerformance(opp),
			SourceURL:          opp.Get("uiLink").String(),
		}
		if v := opp.Get("award.amount"); v.Exists() {
			amount := v.Float()
			n.EstimatedValue = &amount
		}
		if n.SolicitationNumber != "" {
			notices = append(notices, n)
		}
		return true
	})
	return notices
}

// placeOfPerformance handles the feed's nested city forms: an object with a
// name, or a bare string.
func placeOfPerformance(opp gjson.Result) string {
	city := opp.Get("placeOfPerformance.city")
	if !city.Exists() {
		return ""
	}
	if name := city.Get("name"); name.Exists() {
		return name.String()
	}
	if city.Type == gjson.String {
		return city.String()
	}
	return ""
}
