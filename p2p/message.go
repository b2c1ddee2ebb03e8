package p2p

import (
	"encoding/json"
)

// Message types exchanged between nodes.
const (
	MsgTransaction = "transaction"
	MsgBlockSealed = "block_sealed"
)

// Message is the envelope for every message sent over the network.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// TransactionPayload carries one transaction in its canonical hex encoding.
type TransactionPayload struct {
	Transaction string `json:"transaction"`
}

// BlockSealedPayload announces a block applied by the sender.
type BlockSealedPayload struct {
	Height uint64 `json:"height"`
	Root   string `json:"root"`
}
