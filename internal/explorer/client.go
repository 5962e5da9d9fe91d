// Package explorer fetches a transaction's raw input/output values
// from a block-explorer HTTP API, the way the teacher's
// internal/bitcoin.Client wraps btcd RPC calls — but over a plain
// Esplora-compatible REST endpoint instead of a local Bitcoin Core
// node.
package explorer

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/jm-disentangle/internal/jmerr"
	"github.com/rawblock/jm-disentangle/pkg/models"
)

const defaultBaseURL = "https://blockstream.info/api"

// Client fetches raw transactions over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
}

// Config mirrors the teacher's bitcoin.Config shape: plain fields, no
// builder.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient builds a Client against cfg, defaulting BaseURL to the
// public Blockstream Esplora instance and Timeout to 10s.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log.Printf("[Explorer] Using block explorer at %s", baseURL)
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		MaxRetries: 3,
	}
}

// esploraTx is the subset of an Esplora /tx/{txid} response this
// engine needs.
type esploraTx struct {
	Txid     string `json:"txid"`
	Version  int32  `json:"version"`
	Locktime uint32 `json:"locktime"`
	Size     int    `json:"size"`
	Weight   int    `json:"weight"`
	Fee      int64  `json:"fee"`
	Vin      []struct {
		Prevout struct {
			Value int64 `json:"value"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		Value int64 `json:"value"`
	} `json:"vout"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight int    `json:"block_height"`
		BlockTime   int64  `json:"block_time"`
		BlockHash   string `json:"block_hash"`
	} `json:"status"`
}

// FetchTransaction retrieves and validates txid, retrying transient
// failures up to MaxRetries times with exponential backoff plus
// jitter before surfacing a NetworkError.
func (c *Client) FetchTransaction(txid string) (*models.RawTransaction, error) {
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return nil, jmerr.New(jmerr.InputError, "explorer.FetchTransaction", fmt.Errorf("malformed txid %q: %w", txid, err))
	}

	url := fmt.Sprintf("%s/tx/%s", c.BaseURL, txid)

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
			backoff += time.Duration(rand.Intn(100)) * time.Millisecond
			log.Printf("[Explorer] retrying fetch of %s (attempt %d/%d) after %v", txid, attempt+1, c.MaxRetries+1, backoff)
			time.Sleep(backoff)
		}

		raw, err := c.fetchOnce(url, txid)
		if err == nil {
			return raw, nil
		}
		// A 404 means the txid doesn't exist; retrying won't change
		// that, so surface it immediately instead of burning attempts.
		if kind, ok := jmerr.KindOf(err); ok && kind == jmerr.InputError {
			return nil, err
		}
		lastErr = err
	}

	return nil, jmerr.New(jmerr.NetworkError, "explorer.FetchTransaction", fmt.Errorf("fetching %s: %w", txid, lastErr))
}

func (c *Client) fetchOnce(url, txid string) (*models.RawTransaction, error) {
	resp, err := c.HTTPClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, jmerr.New(jmerr.InputError, "explorer.fetchOnce", fmt.Errorf("transaction %s not found", txid))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var tx esploraTx
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	raw := &models.RawTransaction{
		Txid:     tx.Txid,
		Version:  tx.Version,
		LockTime: tx.Locktime,
		Weight:   tx.Weight,
		Vsize:    tx.Weight / 4,
	}
	// Esplora already reports vout/prevout values in satoshis; wrapping
	// them in btcutil.Amount (rather than trusting the raw int64
	// directly) keeps every amount on the same typed path the teacher's
	// btcToSats helper uses for its RPC float conversions.
	for _, in := range tx.Vin {
		raw.Inputs = append(raw.Inputs, int64(btcutil.Amount(in.Prevout.Value)))
	}
	for _, out := range tx.Vout {
		raw.Outputs = append(raw.Outputs, int64(btcutil.Amount(out.Value)))
	}
	raw.Fee = tx.Fee
	if tx.Status.Confirmed {
		raw.BlockHeight = tx.Status.BlockHeight
		raw.BlockTime = tx.Status.BlockTime
	}

	return raw, nil
}
