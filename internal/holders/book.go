package holders

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Book is the ownership ledger for one contract: which wallet owns each
// live token, plus mint/burn counters. It is the unit persisted between
// runs so incremental scans can pick up from LastProcessedBlock.
type Book struct {
	Owners             map[uint64]string
	TotalMinted        int
	TotalBurned        int
	LastProcessedBlock uint64
}

// NewBook returns an empty ownership book
func NewBook() *Book {
	return &Book{Owners: make(map[uint64]string)}
}

// Clone returns a deep copy. Incremental runs mutate a clone and swap it
// in only on success so a failed run never corrupts the last good ledger.
func (b *Book) Clone() *Book {
	owners := make(map[uint64]string, len(b.Owners))
	for id, wallet := range b.Owners {
		owners[id] = wallet
	}
	return &Book{
		Owners:             owners,
		TotalMinted:        b.TotalMinted,
		TotalBurned:        b.TotalBurned,
		LastProcessedBlock: b.LastProcessedBlock,
	}
}

// LiveCount returns the number of live tokens
func (b *Book) LiveCount() int {
	return len(b.Owners)
}

// TokenIDs returns the live token ids in ascending order
func (b *Book) TokenIDs() []uint64 {
	ids := make([]uint64, 0, len(b.Owners))
	for id := range b.Owners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WalletTokens groups live token ids by owner wallet, ids ascending
func (b *Book) WalletTokens() map[string][]uint64 {
	grouped := make(map[string][]uint64)
	for id, wallet := range b.Owners {
		grouped[wallet] = append(grouped[wallet], id)
	}
	for wallet := range grouped {
		ids := grouped[wallet]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return grouped
}

// bookDTO is the persisted form. Token ids are serialized as decimal
// strings because they can exceed the 53-bit safe integer range.
type bookDTO struct {
	Owners             map[string]string `json:"owners"`
	TotalMinted        int               `json:"total_minted"`
	TotalBurned        int               `json:"total_burned"`
	LastProcessedBlock uint64            `json:"last_processed_block"`
}

func (b *Book) MarshalJSON() ([]byte, error) {
	dto := bookDTO{
		Owners:             make(map[string]string, len(b.Owners)),
		TotalMinted:        b.TotalMinted,
		TotalBurned:        b.TotalBurned,
		LastProcessedBlock: b.LastProcessedBlock,
	}
	for id, wallet := range b.Owners {
		dto.Owners[strconv.FormatUint(id, 10)] = wallet
	}
	return json.Marshal(dto)
}

func (b *Book) UnmarshalJSON(data []byte) error {
	var dto bookDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	b.Owners = make(map[uint64]string, len(dto.Owners))
	for key, wallet := range dto.Owners {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return err
		}
		b.Owners[id] = wallet
	}
	b.TotalMinted = dto.TotalMinted
	b.TotalBurned = dto.TotalBurned
	b.LastProcessedBlock = dto.LastProcessedBlock
	return nil
}
