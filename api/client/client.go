// Package client implements a typed HTTP client for the ledger API. It
// handles the request signing and the contribution encryption, so callers
// only deal with plaintext amounts and round parameters.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/log"

	"github.com/confledger/confledger/api"
	"github.com/confledger/confledger/crypto/ecc"
	"github.com/confledger/confledger/crypto/ecc/curves"
	"github.com/confledger/confledger/crypto/elgamal"
	"github.com/confledger/confledger/crypto/ethereum"
	"github.com/confledger/confledger/types"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second
)

// HTTPclient is the ledger API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
	pubKey  ecc.Point
}

// New connects to the API host, checks it is alive and fetches the ledger
// encryption public key.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024, // 1 MiB
		ReadBufferSize:     1 * 1024 * 1024, // 1 MiB
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	data, status, err := c.Request(HTTPGET, nil, api.PingEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	if _, err := c.Info(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if c.c.Transport != nil {
		if _, ok := c.c.Transport.(*http.Transport); ok {
			c.c.Transport.(*http.Transport).ResponseHeaderTimeout = d
		}
	}
}

// Info fetches the ledger identity and caches the encryption public key
// used by Contribute.
func (c *HTTPclient) Info() (*api.InfoResponse, error) {
	info := &api.InfoResponse{}
	if err := c.get(info, api.InfoEndpoint); err != nil {
		return nil, err
	}
	pubKey := curves.New(curves.CurveTypeBN254).SetPoint(
		info.EncryptionPubKey[0].MathBigInt(),
		info.EncryptionPubKey[1].MathBigInt())
	if !pubKey.IsOnCurve() {
		return nil, fmt.Errorf("ledger public key is not on the curve")
	}
	c.pubKey = pubKey
	return info, nil
}

// CreateRound opens a new aggregation round owned by the signer.
func (c *HTTPclient) CreateRound(signer *ethereum.SignKeys, name string, target uint64, deadline time.Time) (*api.RoundResponse, error) {
	unix := deadline.Unix()
	signature, err := signer.SignEthereum(api.CreateRoundMessage(name, target, unix))
	if err != nil {
		return nil, fmt.Errorf("failed to sign round request: %w", err)
	}
	round := &api.RoundResponse{}
	err = c.post(&api.RoundRequest{
		Name:      name,
		Target:    target,
		Deadline:  unix,
		Signature: signature,
	}, round, api.RoundsEndpoint)
	return round, err
}

// ActiveRound returns the currently open round.
func (c *HTTPclient) ActiveRound() (*api.RoundResponse, error) {
	round := &api.RoundResponse{}
	err := c.get(round, api.ActiveRoundEndpoint)
	return round, err
}

// Round returns the stored info of a round, finalized or not.
func (c *HTTPclient) Round(id uint64) (*api.RoundResponse, error) {
	round := &api.RoundResponse{}
	err := c.get(round, "/rounds", strconv.FormatUint(id, 10))
	return round, err
}

// Contribution returns the cumulative contribution of a principal in a round.
func (c *HTTPclient) Contribution(roundID uint64, contributor common.Address) (*api.ContributionResponse, error) {
	rec := &api.ContributionResponse{}
	err := c.get(rec, "/rounds", strconv.FormatUint(roundID, 10), "contributions", contributor.Hex())
	return rec, err
}

// Contribute encrypts the amount towards the ledger public key, proves its
// well-formedness bound to the signer identity and submits it to the active
// round.
func (c *HTTPclient) Contribute(signer *ethereum.SignKeys, amount uint64) (*api.ContributionResponse, error) {
	if c.pubKey == nil {
		return nil, fmt.Errorf("ledger public key not fetched")
	}
	k, err := elgamal.RandK()
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption randomness: %w", err)
	}
	curve := curves.New(curves.CurveTypeBN254)
	z, err := elgamal.NewCiphertext(curve).Encrypt(new(big.Int).SetUint64(amount), c.pubKey, k)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt contribution: %w", err)
	}
	proof, err := elgamal.Prove(curve, z, k, signer.Address().Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to prove contribution: %w", err)
	}
	ciphertext := types.HexBytes(z.Serialize())
	proofBytes := types.HexBytes(proof.Serialize())
	signature, err := signer.SignEthereum(api.ContributeMessage(ciphertext, proofBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to sign contribution: %w", err)
	}
	rec := &api.ContributionResponse{}
	err = c.post(&api.ContributionRequest{
		Ciphertext: ciphertext,
		Proof:      proofBytes,
		Signature:  signature,
	}, rec, api.ContributionsEndpoint)
	return rec, err
}

// Finalize closes the round and sweeps the pooled funds to its owner, which
// must be the signer.
func (c *HTTPclient) Finalize(signer *ethereum.SignKeys, roundID uint64) (*api.FinalizeResponse, error) {
	signature, err := signer.SignEthereum(api.FinalizeMessage(roundID))
	if err != nil {
		return nil, fmt.Errorf("failed to sign finalize request: %w", err)
	}
	res := &api.FinalizeResponse{}
	err = c.post(&api.FinalizeRequest{Signature: signature}, res,
		"/rounds", strconv.FormatUint(roundID, 10), "finalize")
	return res, err
}

// SetOperator authorizes the operator on the signer's balance until the
// given time. Contributing requires authorizing the ledger address first.
func (c *HTTPclient) SetOperator(signer *ethereum.SignKeys, operator common.Address, until time.Time) error {
	unix := until.Unix()
	signature, err := signer.SignEthereum(api.SetOperatorMessage(operator, unix))
	if err != nil {
		return fmt.Errorf("failed to sign operator request: %w", err)
	}
	return c.post(&api.OperatorRequest{
		Operator:  operator,
		Until:     unix,
		Signature: signature,
	}, nil, api.OperatorsEndpoint)
}

// Mint credits a principal with a fresh encryption of the amount. The
// signer must be the ledger identity.
func (c *HTTPclient) Mint(signer *ethereum.SignKeys, to common.Address, amount uint64) (*api.BalanceResponse, error) {
	signature, err := signer.SignEthereum(api.MintMessage(to, amount))
	if err != nil {
		return nil, fmt.Errorf("failed to sign mint request: %w", err)
	}
	res := &api.BalanceResponse{}
	err = c.post(&api.MintRequest{To: to, Amount: amount, Signature: signature}, res, api.MintEndpoint)
	return res, err
}

// Balance returns the encrypted balance of a principal.
func (c *HTTPclient) Balance(addr common.Address) (*api.BalanceResponse, error) {
	res := &api.BalanceResponse{}
	err := c.get(res, "/balances", addr.Hex())
	return res, err
}

// Decrypt reveals the plaintext of a handle the signer holds a grant on.
func (c *HTTPclient) Decrypt(signer *ethereum.SignKeys, h types.Handle) (uint64, error) {
	signature, err := signer.SignEthereum(api.RevealMessage(h))
	if err != nil {
		return 0, fmt.Errorf("failed to sign decrypt request: %w", err)
	}
	res := &api.DecryptResponse{}
	if err := c.post(&api.DecryptRequest{Handle: h, Signature: signature}, res, api.DecryptEndpoint); err != nil {
		return 0, err
	}
	return res.Value, nil
}

func (c *HTTPclient) get(response any, urlPath ...string) error {
	data, status, err := c.Request(HTTPGET, nil, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, bytes.TrimSpace(data))
	}
	return json.Unmarshal(data, response)
}

func (c *HTTPclient) post(request, response any, urlPath ...string) error {
	data, status, err := c.Request(HTTPPOST, request, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, bytes.TrimSpace(data))
	}
	if response == nil {
		return nil
	}
	return json.Unmarshal(data, response)
}

// Request performs a `method` type raw request to the endpoint specified in
// urlPath parameter. Method is either GET or POST. If POST, a JSON struct
// should be attached. Returns the response, the status code and an error.
func (c *HTTPclient) Request(method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var (
		body []byte
		err  error
	)

	// Marshal the JSON body if provided.
	if jsonBody != nil {
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}

	// Parse the base host URL
	u, err := url.Parse(c.host.String())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse host URL: %w", err)
	}

	// Join path segments
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	// Prepare headers
	headers := http.Header{}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}

	// Log the request details, truncating body if large
	log.Debugw("http client request",
		"type", method,
		"url", u.String(),
		"body", func() string {
			if len(body) > 512 {
				return string(body[:512]) + "..."
			}
			return string(body)
		}(),
	)

	var resp *http.Response
	for i := 1; i <= c.retries; i++ {
		// Create a fresh request each attempt
		var reqBody io.ReadCloser
		if body != nil {
			reqBody = io.NopCloser(bytes.NewReader(body))
		}
		req, err := http.NewRequest(method, u.String(), reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header = headers

		resp, err = c.c.Do(req)
		if err != nil {
			log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		// Successfully got a response, break out of the retry loop
		break
	}

	if resp == nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after %d retries", c.retries)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.StatusCode, nil
}
