package core

// The transaction receipt: the machine-readable result of executing one
// transaction envelope, including the fee accounting, the committed state
// updates with their old-value hashes, the new state root and the ordered
// event and log streams.

// TransactionResult classifies the outcome.
type TransactionResult uint8

const (
	ResultCommitSuccess TransactionResult = iota
	ResultCommitFailure
	ResultRejected
	ResultAborted
)

func (r TransactionResult) String() string {
	switch r {
	case ResultCommitSuccess:
		return "CommitSuccess"
	case ResultCommitFailure:
		return "CommitFailure"
	case ResultRejected:
		return "Rejected"
	case ResultAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// NextEpochInfo is surfaced when the transaction advanced the epoch.
type NextEpochInfo struct {
	Epoch        uint64          `json:"epoch"`
	ValidatorSet []ValidatorInfo `json:"validator_set"`
}

// Receipt is the executor's output.
type Receipt struct {
	Result       TransactionResult `json:"result"`
	ErrorKind    ErrorKind         `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`

	IntentHash   Hash          `json:"intent_hash"`
	FeeSummary   FeeSummary    `json:"fee_summary"`
	StateUpdates []StateUpdate `json:"state_updates,omitempty"`
	NewStateRoot Hash          `json:"new_state_root"`
	StateVersion uint64        `json:"state_version"`

	Events          []Event        `json:"events,omitempty"`
	EventsRoot      Hash           `json:"events_root"`
	ApplicationLogs []AppLog       `json:"application_logs,omitempty"`
	NextEpoch       *NextEpochInfo `json:"next_epoch,omitempty"`
	TraceLog        []string       `json:"trace_log,omitempty"`
}

// IsCommitSuccess reports whether state was durably advanced.
func (r *Receipt) IsCommitSuccess() bool { return r.Result == ResultCommitSuccess }

// TransactionEnvelope is the engine-facing transaction form. Signatures
// are verified upstream; the engine sees only the surviving public keys.
type TransactionEnvelope struct {
	NetworkID           uint8
	StartEpochInclusive uint64
	EndEpochExclusive   uint64
	Nonce               uint32
	NotaryPublicKey     []byte
	NotaryIsSignatory   bool
	TipPercentage       uint16
	Instructions        []Instruction
	Blobs               map[Hash][]byte
	SignerPublicKeys    [][]byte
}

// IntentHash binds the header, instructions and blobs.
func (e *TransactionEnvelope) IntentHash() (Hash, error) {
	insHash, err := HashInstructions(e.Instructions)
	if err != nil {
		return Hash{}, err
	}
	header := []byte{
		e.NetworkID,
		byte(e.StartEpochInclusive), byte(e.StartEpochInclusive >> 8), byte(e.StartEpochInclusive >> 16), byte(e.StartEpochInclusive >> 24),
		byte(e.StartEpochInclusive >> 32), byte(e.StartEpochInclusive >> 40), byte(e.StartEpochInclusive >> 48), byte(e.StartEpochInclusive >> 56),
		byte(e.EndEpochExclusive), byte(e.EndEpochExclusive >> 8), byte(e.EndEpochExclusive >> 16), byte(e.EndEpochExclusive >> 24),
		byte(e.EndEpochExclusive >> 32), byte(e.EndEpochExclusive >> 40), byte(e.EndEpochExclusive >> 48), byte(e.EndEpochExclusive >> 56),
		byte(e.Nonce), byte(e.Nonce >> 8), byte(e.Nonce >> 16), byte(e.Nonce >> 24),
		byte(e.TipPercentage), byte(e.TipPercentage >> 8),
	}
	if e.NotaryIsSignatory {
		header = append(header, 1)
	} else {
		header = append(header, 0)
	}
	parts := [][]byte{header, e.NotaryPublicKey, insHash[:]}
	blobHashes := make([]Hash, 0, len(e.Blobs))
	for h := range e.Blobs {
		blobHashes = append(blobHashes, h)
	}
	sortHashes(blobHashes)
	for _, h := range blobHashes {
		parts = append(parts, h[:])
	}
	return HashOf(parts...), nil
}

func sortHashes(hs []Hash) {
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && string(hs[j][:]) < string(hs[j-1][:]); j-- {
			hs[j], hs[j-1] = hs[j-1], hs[j]
		}
	}
}

// SignerBadges derives the virtualized auth-zone badges for the envelope.
func (e *TransactionEnvelope) SignerBadges() []NonFungibleGlobalID {
	badges := make([]NonFungibleGlobalID, 0, len(e.SignerPublicKeys)+1)
	for _, key := range e.SignerPublicKeys {
		badges = append(badges, SignatureBadgeID(key))
	}
	if e.NotaryIsSignatory && len(e.NotaryPublicKey) > 0 {
		badges = append(badges, SignatureBadgeID(e.NotaryPublicKey))
	}
	return badges
}
