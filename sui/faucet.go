package sui

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmcleod/suilink/internal/remote"
)

// Faucet requests test funds on networks that offer them.
type Faucet struct {
	url  string
	http *http.Client
}

// NewFaucet returns a faucet client for the given endpoint.
func NewFaucet(url string, httpClient *http.Client) *Faucet {
	if httpClient == nil {
		httpClient = remote.NewHTTPClient()
	}
	return &Faucet{url: url, http: httpClient}
}

type faucetRequest struct {
	FixedAmountRequest struct {
		Recipient string `json:"recipient"`
	} `json:"FixedAmountRequest"`
}

// Request asks the faucet to send funds to recipient. It does not wait for
// the funds to arrive.
func (f *Faucet) Request(ctx context.Context, recipient Address) error {
	var body faucetRequest
	body.FixedAmountRequest.Recipient = recipient.String()
	var res struct {
		Error string `json:"error"`
	}
	err := remote.Do(ctx, f.http, remote.Request{
		Service: "faucet",
		Method:  http.MethodPost,
		URL:     f.url,
		Body:    body,
	}, &res)
	if err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("faucet: %s", res.Error)
	}
	return nil
}
