package featurestatus

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
)

// HeaderSchoolID carries the acting school to the feature-status API.
const HeaderSchoolID = "X-School-ID"

// Client builds per-session feature status clients talking to the feature-status API.
type Client struct {
	baseURL  string
	endpoint string
	token    string // service token, the session token is used when empty
	rest     *rest.Client
}

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL:  conf.FeatureStatus.BaseURL,
		endpoint: conf.FeatureStatus.Endpoint,
		token:    conf.FeatureStatus.Token,
		// the resolver bounds each call through ctx
		rest: &rest.Client{HTTPClient: &http.Client{Timeout: time.Minute}},
	}
}

// ForSession returns the featureswitch.Client of sess.
func (c *Client) ForSession(sess featureswitch.Session) featureswitch.Client {
	return sessionClient{Client: c, sess: sess}
}

type sessionClient struct {
	*Client
	sess featureswitch.Session
}

// FetchDetailedStatus issues a single GET to the status endpoint. No retries.
func (c sessionClient) FetchDetailedStatus(ctx context.Context) (featureswitch.DetailedStatus, error) {
	token := c.token
	if token == "" {
		token = c.sess.BearerToken()
	}
	req := rest.Request{
		Method:  rest.Get,
		BaseURL: c.baseURL + c.endpoint,
		Headers: map[string]string{
			"Accept":        "application/json",
			"Authorization": "Bearer " + token,
		},
	}
	if c.sess.SchoolID != "" {
		req.Headers[HeaderSchoolID] = c.sess.SchoolID
		req.QueryParams = map[string]string{"school_id": c.sess.SchoolID}
	}

	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return featureswitch.DetailedStatus{}, featureswitch.NewFetchError(0, errors.Wrap(err, "building request"))
	}
	httpRes, err := c.rest.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return featureswitch.DetailedStatus{}, featureswitch.NewFetchError(0, errors.Wrap(err, "sending request"))
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return featureswitch.DetailedStatus{}, featureswitch.NewFetchError(httpRes.StatusCode, errors.Wrap(err, "reading response"))
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return featureswitch.DetailedStatus{}, featureswitch.NewFetchError(
			res.StatusCode, errors.Errorf("unexpected status: %s", http.StatusText(res.StatusCode)),
		)
	}

	ds, err := featureswitch.DecodeDetailedStatus([]byte(res.Body))
	if err != nil {
		return featureswitch.DetailedStatus{}, featureswitch.NewFetchError(res.StatusCode, err)
	}
	return ds, nil
}
