package skill

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"videogenie/internal/pkg/errors"
)

// OrchestrateClient calls POST {base}/skills/{skill}:invoke with a bearer
// key and a {"params": ...} body, and returns the "result" member.
type OrchestrateClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewOrchestrateClient(baseURL, apiKey string, timeout time.Duration) *OrchestrateClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OrchestrateClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type invokeRequest struct {
	Params map[string]any `json:"params"`
}

type invokeResponse struct {
	Result json.RawMessage `json:"result"`
}

func (c *OrchestrateClient) Invoke(ctx context.Context, skill string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(invokeRequest{Params: params})
	if err != nil {
		return nil, errors.Wrap(err, "skill.invoke", "encode params")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/skills/"+skill+":invoke", bytes.NewReader(body))
	if err != nil {
		return nil, errors.UpstreamSkill(skill, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.UpstreamSkill(skill, err).WithField("timeout", true)
		}
		return nil, errors.UpstreamSkill(skill, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, errors.UpstreamSkill(skill, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, errors.UpstreamSkill(skill, fmt.Errorf("http %d: %s", res.StatusCode, snippet(raw))).
			WithField("status", res.StatusCode)
	}

	var out invokeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.MalformedResponse(skill, "skill response is not JSON")
	}
	if len(out.Result) == 0 || string(out.Result) == "null" {
		return nil, errors.MalformedResponse(skill, "skill response has no result")
	}
	return out.Result, nil
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
