package stacks

// Tip is an on-chain tip record as stored by the tip-jar contract.
// This is our domain model, independent of the Clarity wire format.
// Records are created by the contract at tip time and never mutated.
type Tip struct {
	ID          uint64 `json:"id"`
	Tipper      string `json:"tipper"`
	Amount      uint64 `json:"amount"` // microSTX
	Message     string `json:"message"`
	BlockHeight uint64 `json:"block_height"`
}

// NoMessage is the sentinel the contract stores when a tipper left the
// message field empty.
const NoMessage = ""

// MaxMessageLength is the contract's string-ascii bound for tip messages.
const MaxMessageLength = 280

// ContractState is the client-side aggregate of the contract's scalar
// queries. Each field comes from an independent read-only call, so fields
// may be momentarily inconsistent with each other between polls.
type ContractState struct {
	Balance     uint64 `json:"balance"`      // microSTX held by the contract
	TipCount    uint64 `json:"tip_count"`    // highest assigned tip id
	TotalTipped uint64 `json:"total_tipped"` // microSTX, lifetime
}
