package gradebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	mediaLineItem          = "application/vnd.ims.lis.v2.lineitem+json"
	mediaLineItemContainer = "application/vnd.ims.lis.v2.lineitemcontainer+json"
	mediaScore             = "application/vnd.ims.lis.v1.score+json"
)

var agsScopes = []string{
	"https://purl.imsglobal.org/spec/lti-ags/scope/lineitem",
	"https://purl.imsglobal.org/spec/lti-ags/scope/score",
}

// Client talks to an AGS-style gradebook over HTTP.
type Client struct {
	http *resty.Client
}

type ClientConfig struct {
	TokenURL     string // empty: no OAuth2, requests go out unauthenticated
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	h := &http.Client{}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       agsScopes,
		}
		h = cc.Client(context.Background())
	}
	rc := resty.NewWithClient(h)
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	return &Client{http: rc}
}

type lineItemJSON struct {
	ID           string  `json:"id,omitempty"`
	Label        string  `json:"label"`
	ScoreMaximum float64 `json:"scoreMaximum"`
	ResourceID   string  `json:"resourceId,omitempty"`
	Tag          string  `json:"tag,omitempty"`
}

func (it lineItemJSON) toLineItem() LineItem {
	return LineItem{ID: it.ID, Label: it.Label, ScoreMaximum: it.ScoreMaximum, ResourceID: it.ResourceID}
}

func (c *Client) ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]LineItem, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(q).
		SetHeader("Accept", mediaLineItemContainer).
		Get(lineItemsURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list line items: %s", resp.Status())
	}
	var items []lineItemJSON
	if err := json.Unmarshal(resp.Body(), &items); err != nil {
		return nil, err
	}
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.toLineItem())
	}
	return out, nil
}

func (c *Client) CreateLineItem(ctx context.Context, lineItemsURL string, req CreateLineItemReq) (LineItem, error) {
	body, err := json.Marshal(lineItemJSON{
		Label: req.Label, ScoreMaximum: req.ScoreMaximum, ResourceID: req.ResourceID, Tag: req.Tag,
	})
	if err != nil {
		return LineItem{}, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", mediaLineItem).
		SetHeader("Accept", mediaLineItem).
		SetBody(body).
		Post(lineItemsURL)
	if err != nil {
		return LineItem{}, err
	}
	if resp.IsError() {
		return LineItem{}, fmt.Errorf("create line item: %s", resp.Status())
	}
	var it lineItemJSON
	if err := json.Unmarshal(resp.Body(), &it); err != nil {
		return LineItem{}, err
	}
	return it.toLineItem(), nil
}

func (c *Client) PostScore(ctx context.Context, lineItemURL string, s Score) error {
	body, err := json.Marshal(map[string]any{
		"userId": s.UserID, "scoreGiven": s.ScoreGiven, "scoreMaximum": s.ScoreMaximum,
		"activityProgress": s.ActivityProgress, "gradingProgress": s.GradingProgress,
		"comment": s.Comment, "timestamp": s.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	// POST {lineItemURL}/scores
	target := strings.TrimRight(lineItemURL, "/") + "/scores"
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", mediaScore).
		SetBody(body).
		Post(target)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("post score: %s", resp.Status())
	}
	return nil
}
