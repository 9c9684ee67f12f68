package chainsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/quantumvault/qvault/vault"
)

// TxStatus represents transaction confirmation status.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockTime   int64  `json:"block_time,omitempty"`
}

// EsploraUTXO represents an unspent transaction output.
type EsploraUTXO struct {
	TxID   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Status TxStatus `json:"status"`
	Value  int64    `json:"value"`
}

// EsploraTx is the part of a transaction listing the client reads.
type EsploraTx struct {
	TxID   string   `json:"txid"`
	Status TxStatus `json:"status"`
}

// FeeEstimates maps confirmation targets, as strings, to fee rates in
// sat/vB.
type FeeEstimates map[string]float64

// Esplora is a client for the Esplora REST API.
type Esplora struct {
	*httpClient
}

// A compile-time check to ensure Esplora implements the collaborator
// interfaces.
var (
	_ Indexer     = (*Esplora)(nil)
	_ Broadcaster = (*Esplora)(nil)
	_ FeeSource   = (*Esplora)(nil)
)

// NewEsplora creates a new Esplora client with the given configuration.
func NewEsplora(cfg *ClientConfig) *Esplora {
	return &Esplora{httpClient: newHTTPClient(cfg)}
}

// Name returns the provider name.
func (c *Esplora) Name() string {
	return "esplora(" + c.cfg.URL + ")"
}

// GetTipHeight returns the current best block height.
func (c *Esplora) GetTipHeight(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}

	height, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse height: %w", err)
	}

	return height, nil
}

// GetScripthashUTXOs returns the unspent outputs of a script hash.
func (c *Esplora) GetScripthashUTXOs(ctx context.Context,
	scripthash string) ([]*EsploraUTXO, error) {

	body, err := c.get(ctx, "/scripthash/"+scripthash+"/utxo")
	if err != nil {
		return nil, err
	}

	var utxos []*EsploraUTXO
	if err := json.Unmarshal(body, &utxos); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return utxos, nil
}

// GetScripthashTxs returns the transactions of a script hash.
func (c *Esplora) GetScripthashTxs(ctx context.Context,
	scripthash string) ([]*EsploraTx, error) {

	body, err := c.get(ctx, "/scripthash/"+scripthash+"/txs")
	if err != nil {
		return nil, err
	}

	var txs []*EsploraTx
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return txs, nil
}

// ListUnspent implements UTXOSource.
func (c *Esplora) ListUnspent(ctx context.Context,
	scriptHash string) ([]vault.UTXO, error) {

	utxos, err := c.GetScripthashUTXOs(ctx, scriptHash)
	if err != nil {
		return nil, externalErr(c.Name(), "list unspent", err)
	}

	out := make([]vault.UTXO, 0, len(utxos))
	for _, u := range utxos {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, externalErr(c.Name(), "list unspent", err)
		}

		var height int32
		if u.Status.Confirmed {
			height = int32(u.Status.BlockHeight)
		}

		out = append(out, vault.UTXO{
			OutPoint: *wire.NewOutPoint(hash, u.Vout),
			Value:    btcutil.Amount(u.Value),
			Height:   height,
		})
	}

	return out, nil
}

// History implements HistorySource.
func (c *Esplora) History(ctx context.Context,
	scriptHash string) ([]chainhash.Hash, error) {

	txs, err := c.GetScripthashTxs(ctx, scriptHash)
	if err != nil {
		return nil, externalErr(c.Name(), "history", err)
	}

	hashes := make([]chainhash.Hash, 0, len(txs))
	for _, tx := range txs {
		hash, err := chainhash.NewHashFromStr(tx.TxID)
		if err != nil {
			return nil, externalErr(c.Name(), "history", err)
		}
		hashes = append(hashes, *hash)
	}

	return hashes, nil
}

// BroadcastTransaction posts a raw hex transaction and returns the txid the
// service reports.
func (c *Esplora) BroadcastTransaction(ctx context.Context,
	txHex string) (string, error) {

	body, err := c.do(
		ctx, http.MethodPost, "/tx", "text/plain", []byte(txHex),
	)
	if err != nil {
		return "", fmt.Errorf("broadcast failed: %w", err)
	}

	return strings.TrimSpace(string(body)), nil
}

// Broadcast implements Broadcaster.
func (c *Esplora) Broadcast(ctx context.Context,
	rawHex string) (chainhash.Hash, error) {

	txid, err := c.BroadcastTransaction(ctx, rawHex)
	if err != nil {
		return chainhash.Hash{}, externalErr(c.Name(), "broadcast", err)
	}

	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return chainhash.Hash{}, externalErr(c.Name(), "broadcast", err)
	}

	return *hash, nil
}

// GetFeeEstimates returns the fee estimates of the service.
func (c *Esplora) GetFeeEstimates(ctx context.Context) (FeeEstimates,
	error) {

	body, err := c.get(ctx, "/fee-estimates")
	if err != nil {
		return nil, err
	}

	var estimates FeeEstimates
	if err := json.Unmarshal(body, &estimates); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return estimates, nil
}

// FeeRate implements FeeSource using the next block estimate.
func (c *Esplora) FeeRate(ctx context.Context) (vault.SatPerKByte, error) {
	estimates, err := c.GetFeeEstimates(ctx)
	if err != nil {
		return 0, externalErr(c.Name(), "fee estimates", err)
	}

	satPerVByte, ok := estimates["1"]
	if !ok {
		return 0, externalErr(c.Name(), "fee estimates",
			fmt.Errorf("no estimate for the next block"))
	}

	return vault.SatPerKByte(satPerVByte * 1000), nil
}
