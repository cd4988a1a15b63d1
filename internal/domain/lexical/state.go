package lexical

import (
	"encoding/json"
	"fmt"
)

// state is the serialized form of an Encoder. The persisted snapshot is
// derived data: the corpus itself remains the source of truth and the
// encoder is re-fit from scratch on every indexing pass. Queries need the
// snapshot only to map query terms onto the same vocabulary indices the
// stored sparse vectors were built with.
type state struct {
	Vocab     map[string]uint32 `json:"vocab"`
	IDF       []float64         `json:"idf"`
	AvgDocLen float64           `json:"avg_doc_len"`
	DocCount  int               `json:"doc_count"`
}

// Marshal serializes the encoder for persistence.
func (e Encoder) Marshal() ([]byte, error) {
	data, err := json.Marshal(state{
		Vocab:     e.vocab,
		IDF:       e.idf,
		AvgDocLen: e.avgDocLen,
		DocCount:  e.docCount,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal encoder state: %w", err)
	}
	return data, nil
}

// Unmarshal restores an encoder from its serialized form.
func Unmarshal(data []byte) (Encoder, error) {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return Encoder{}, fmt.Errorf("unmarshal encoder state: %w", err)
	}
	if s.DocCount > 0 && len(s.Vocab) != len(s.IDF) {
		return Encoder{}, fmt.Errorf("corrupt encoder state: %d vocab terms, %d idf weights", len(s.Vocab), len(s.IDF))
	}
	return Encoder{
		vocab:     s.Vocab,
		idf:       s.IDF,
		avgDocLen: s.AvgDocLen,
		docCount:  s.DocCount,
	}, nil
}
