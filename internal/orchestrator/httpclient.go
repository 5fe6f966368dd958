package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"

	"github.com/Wei-Shaw/evaldepot/internal/pkg/logger"
	"github.com/Wei-Shaw/evaldepot/internal/util/logredact"
)

// HTTPClient is the control-plane implementation of Client, built on
// imroc/req/v3's client.R().SetContext(ctx)... calling convention.
type HTTPClient struct {
	client  *req.Client
	baseURL string
	token   string
}

// NewHTTPClient builds an HTTPClient against baseURL, authenticating every
// call with a bearer token.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	c := req.C().SetTimeout(timeout)
	return &HTTPClient{client: c, baseURL: baseURL, token: token}
}

func (c *HTTPClient) request(ctx context.Context) *req.Request {
	return c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.token).
		SetHeader("Accept", "application/json")
}

func (c *HTTPClient) classify(err error, resp *req.Response) error {
	if err != nil {
		logger.LegacyPrintf("orchestrator.httpclient", "[Orchestrator] request error: %v", err)
		return ErrTransient.WithCause(err)
	}
	if resp == nil {
		return ErrTransient
	}
	switch {
	case resp.IsSuccessState():
		return nil
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		return ErrTransient.WithMetadata(map[string]string{"status": fmt.Sprint(resp.StatusCode)})
	default:
		// The control plane sometimes echoes the request back in its error
		// body; redact it before it ends up in error metadata or logs.
		redactedBody := logredact.RedactJSON(resp.Bytes(), "token", "authorization")
		return ErrPermanent.WithMetadata(map[string]string{"status": fmt.Sprint(resp.StatusCode), "body": redactedBody})
	}
}

func (c *HTTPClient) Create(ctx context.Context, cfg CreateConfig) (string, string, error) {
	resp, err := c.request(ctx).
		SetBody(map[string]any{
			"pool_name":             cfg.PoolName,
			"deployment_name_prefix": cfg.DeploymentNamePrefix,
			"build_fingerprint":     cfg.BuildFingerprint,
		}).
		Post(c.baseURL + "/deployments")
	if classified := c.classify(err, resp); classified != nil {
		return "", "", classified
	}

	body := resp.String()
	deploymentID := gjson.Get(body, "deployment_id").String()
	deploymentName := gjson.Get(body, "deployment_name").String()
	if deploymentID == "" {
		return "", "", ErrPermanent.WithMetadata(map[string]string{"reason": "missing deployment_id in create response"})
	}
	return deploymentID, deploymentName, nil
}

func (c *HTTPClient) Wake(ctx context.Context, deploymentID string) error {
	resp, err := c.request(ctx).Post(c.baseURL + "/deployments/" + deploymentID + "/wake")
	return c.classify(err, resp)
}

func (c *HTTPClient) Hibernate(ctx context.Context, deploymentID string) error {
	resp, err := c.request(ctx).Post(c.baseURL + "/deployments/" + deploymentID + "/hibernate")
	return c.classify(err, resp)
}

func (c *HTTPClient) Destroy(ctx context.Context, deploymentID string) error {
	resp, err := c.request(ctx).Delete(c.baseURL + "/deployments/" + deploymentID)
	return c.classify(err, resp)
}

func (c *HTTPClient) Status(ctx context.Context, deploymentID string) (Status, error) {
	resp, err := c.request(ctx).Get(c.baseURL + "/deployments/" + deploymentID + "/status")
	if classified := c.classify(err, resp); classified != nil {
		return StatusUnknown, classified
	}

	switch gjson.Get(resp.String(), "status").String() {
	case "running":
		return StatusRunning, nil
	case "hibernated":
		return StatusHibernated, nil
	default:
		return StatusUnknown, nil
	}
}
