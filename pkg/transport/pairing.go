package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
)

// Metadata is the app description shown by the wallet during pairing
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}

// Proposal is the wc_sessionPropose request
type Proposal struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"projectId"`
	Chains         []string          `json:"chains"`
	OptionalChains []string          `json:"optionalChains,omitempty"`
	RPCMap         map[string]string `json:"rpcMap,omitempty"`
	Metadata       Metadata          `json:"metadata"`
}

// ProposalResult is the bridge's answer to a proposal
type ProposalResult struct {
	Topic string `json:"topic"`
	URI   string `json:"uri,omitempty"` // pairing URI to render as a QR code or deep link
}

// PairingDialer opens a remote pairing session through a relay bridge
type PairingDialer struct {
	URL       string
	ProjectID string
	ChainIDs  []uint64
	RPCMap    map[uint64]string // read endpoint the wallet may use per chain
	Metadata  Metadata
	Store     *SessionStore
	Logger    *slog.Logger
	DialRPC   RPCDialFunc  // rpc.DialContext when nil
	OnURI     func(string) // called with the pairing URI before approval is awaited
}

func (d *PairingDialer) Kind() Kind { return KindPairing }

// Dial clears persisted pairing artifacts, proposes a session and subscribes to its events.
// The new session topic is persisted so a later disconnect can remove it.
func (d *PairingDialer) Dial(ctx context.Context) (Transport, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.ProjectID == "" {
		return nil, errors.New("pairing project id is not configured")
	}
	if err := d.Store.Clear(); err != nil {
		logger.Warn("failed to clear pairing session", "error", err)
	}

	dial := d.DialRPC
	if dial == nil {
		dial = rpc.DialContext
	}
	client, err := dial(ctx, d.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to reach pairing bridge: %w", err)
	}

	var result ProposalResult
	if err := client.CallContext(ctx, &result, "wc_sessionPropose", d.proposal()); err != nil {
		client.Close()
		return nil, fmt.Errorf("session proposal failed: %w", err)
	}
	if result.Topic == "" {
		client.Close()
		return nil, errors.New("session proposal returned no topic")
	}
	if result.URI != "" && d.OnURI != nil {
		d.OnURI(result.URI)
	}

	if err := d.Store.Save(PairingSession{
		Topic:     result.Topic,
		RelayURL:  d.URL,
		ChainIDs:  d.ChainIDs,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		logger.Warn("failed to persist pairing session", "error", err)
	}

	t := newRPCTransport(KindPairing, client, logger)
	topic := result.Topic
	t.onClose = func(ctx context.Context) error {
		var errs []error
		if err := client.CallContext(ctx, nil, "wc_sessionDelete", topic); err != nil {
			errs = append(errs, fmt.Errorf("session delete failed: %w", err))
		}
		if err := d.Store.Clear(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	t.subscribe(ctx, "wc", "sessionEvents", topic)

	logger.Info("pairing session established", "topic", topic)
	return t, nil
}

func (d *PairingDialer) proposal() Proposal {
	p := Proposal{
		ID:        uuid.NewString(),
		ProjectID: d.ProjectID,
		Metadata:  d.Metadata,
	}
	for _, id := range d.ChainIDs {
		p.Chains = append(p.Chains, caip2(id))
	}
	p.OptionalChains = p.Chains
	if len(d.RPCMap) > 0 {
		p.RPCMap = make(map[string]string, len(d.RPCMap))
		for id, url := range d.RPCMap {
			p.RPCMap[strconv.FormatUint(id, 10)] = url
		}
	}
	return p
}

// caip2 formats an EVM chain id as a CAIP-2 identifier
func caip2(chainID uint64) string {
	return "eip155:" + strconv.FormatUint(chainID, 10)
}
