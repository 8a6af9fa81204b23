package source

import (
	"encoding/json"
	"io"
	"net/http"
)

// shaResponse models the minimal shape of a hosting provider's "sha of
// ref" response; providers vary but all expose the oid under one of
// these keys.
type shaResponse struct {
	SHA string `json:"sha"`
	OID string `json:"oid"`
}

func parseShaResponse(resp *http.Response) (string, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var s shaResponse
	if err := json.Unmarshal(body, &s); err != nil {
		return "", err
	}
	if s.SHA != "" {
		return s.SHA, nil
	}
	return s.OID, nil
}
