package chainsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/quantumvault/qvault/vault"
)

// WhatsOnChainURL is the public API root; the network name ("main" or
// "test") is appended.
const WhatsOnChainURL = "https://api.whatsonchain.com/v1/bsv/"

type wocUnspent struct {
	Height int32  `json:"height"`
	TxPos  uint32 `json:"tx_pos"`
	TxHash string `json:"tx_hash"`
	Value  int64  `json:"value"`
}

type wocHistory struct {
	TxHash string `json:"tx_hash"`
	Height int32  `json:"height"`
}

type wocRate struct {
	Currency string  `json:"currency"`
	Rate     float64 `json:"rate"`
}

// WhatsOnChain is a client for the WhatsOnChain API.
type WhatsOnChain struct {
	*httpClient
}

// A compile-time check to ensure WhatsOnChain implements the collaborator
// interfaces.
var (
	_ Indexer     = (*WhatsOnChain)(nil)
	_ Broadcaster = (*WhatsOnChain)(nil)
	_ PriceSource = (*WhatsOnChain)(nil)
)

// NewWhatsOnChain creates a client; cfg.URL includes the network, e.g.
// WhatsOnChainURL + "main".
func NewWhatsOnChain(cfg *ClientConfig) *WhatsOnChain {
	return &WhatsOnChain{httpClient: newHTTPClient(cfg)}
}

// Name returns the provider name.
func (c *WhatsOnChain) Name() string {
	return "whatsonchain(" + c.cfg.URL + ")"
}

// ListUnspent implements UTXOSource.
func (c *WhatsOnChain) ListUnspent(ctx context.Context,
	scriptHash string) ([]vault.UTXO, error) {

	body, err := c.get(ctx, "/script/"+scriptHash+"/unspent")
	if err != nil {
		return nil, externalErr(c.Name(), "list unspent", err)
	}

	var unspent []wocUnspent
	if err := json.Unmarshal(body, &unspent); err != nil {
		return nil, externalErr(c.Name(), "list unspent",
			fmt.Errorf("failed to decode response: %w", err))
	}

	out := make([]vault.UTXO, 0, len(unspent))
	for _, u := range unspent {
		hash, err := chainhash.NewHashFromStr(u.TxHash)
		if err != nil {
			return nil, externalErr(c.Name(), "list unspent", err)
		}

		out = append(out, vault.UTXO{
			OutPoint: *wire.NewOutPoint(hash, u.TxPos),
			Value:    btcutil.Amount(u.Value),
			Height:   u.Height,
		})
	}

	return out, nil
}

// History implements HistorySource.
func (c *WhatsOnChain) History(ctx context.Context,
	scriptHash string) ([]chainhash.Hash, error) {

	body, err := c.get(ctx, "/script/"+scriptHash+"/history")
	if err != nil {
		return nil, externalErr(c.Name(), "history", err)
	}

	var history []wocHistory
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, externalErr(c.Name(), "history",
			fmt.Errorf("failed to decode response: %w", err))
	}

	hashes := make([]chainhash.Hash, 0, len(history))
	for _, h := range history {
		hash, err := chainhash.NewHashFromStr(h.TxHash)
		if err != nil {
			return nil, externalErr(c.Name(), "history", err)
		}
		hashes = append(hashes, *hash)
	}

	return hashes, nil
}

// Broadcast implements Broadcaster.
func (c *WhatsOnChain) Broadcast(ctx context.Context,
	rawHex string) (chainhash.Hash, error) {

	req, err := json.Marshal(map[string]string{"txhex": rawHex})
	if err != nil {
		return chainhash.Hash{}, err
	}

	body, err := c.do(
		ctx, http.MethodPost, "/tx/raw", "application/json", req,
	)
	if err != nil {
		return chainhash.Hash{}, externalErr(c.Name(), "broadcast", err)
	}

	// The txid comes back as a JSON string.
	var txid string
	if err := json.Unmarshal(body, &txid); err != nil {
		return chainhash.Hash{}, externalErr(c.Name(), "broadcast",
			fmt.Errorf("unexpected response %q", body))
	}

	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return chainhash.Hash{}, externalErr(c.Name(), "broadcast", err)
	}

	return *hash, nil
}

// Rate implements PriceSource, returning the USD exchange rate.
func (c *WhatsOnChain) Rate(ctx context.Context) (float64, error) {
	body, err := c.get(ctx, "/exchangerate")
	if err != nil {
		return 0, externalErr(c.Name(), "exchange rate", err)
	}

	var rate wocRate
	if err := json.Unmarshal(body, &rate); err != nil {
		return 0, externalErr(c.Name(), "exchange rate",
			fmt.Errorf("failed to decode response: %w", err))
	}

	return rate.Rate, nil
}
