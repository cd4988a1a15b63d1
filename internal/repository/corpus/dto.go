package corpus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/inboxlab/styledex/internal/domain"
)

// Hash field names. Double-underscore fields are styledex-owned; the rest
// mirror payload metadata.
const (
	fieldVector      = "__vector"
	fieldSparse      = "__sparse"
	fieldContent     = "__content"
	fieldUserID      = "user_id"
	fieldSubject     = "subject"
	fieldCounterpart = "counterpart"
	fieldSentDate    = "sent_date"
)

// pointToFields converts a full point into a flat map for HSET.
func pointToFields(p *domain.Point) (map[string]string, error) {
	m := map[string]string{
		fieldVector:      vectorToBytes(p.Dense),
		fieldContent:     p.Payload.Text,
		fieldUserID:      p.Payload.UserID,
		fieldSubject:     p.Payload.Subject,
		fieldCounterpart: p.Payload.Counterpart,
		fieldSentDate:    strconv.FormatInt(p.Payload.SentDate.Unix(), 10),
	}
	if p.Sparse != nil {
		s, err := sparseToJSON(p.Sparse)
		if err != nil {
			return nil, err
		}
		m[fieldSparse] = s
	}
	return m, nil
}

// updateToFields converts a tagged partial update into a flat map holding
// only the fields the update carries. HSET leaves the rest untouched.
func updateToFields(u domain.PointUpdate) (map[string]string, error) {
	m := make(map[string]string, 2)
	if u.HasDense() {
		m[fieldVector] = vectorToBytes(u.Dense())
	}
	if u.HasSparse() {
		s, err := sparseToJSON(u.Sparse())
		if err != nil {
			return nil, err
		}
		m[fieldSparse] = s
	}
	if u.HasPayload() {
		p := u.Payload()
		m[fieldContent] = p.Text
		m[fieldUserID] = p.UserID
		m[fieldSubject] = p.Subject
		m[fieldCounterpart] = p.Counterpart
		m[fieldSentDate] = strconv.FormatInt(p.SentDate.Unix(), 10)
	}
	return m, nil
}

// parsePoint converts a flat hash map back into a domain Point.
func parsePoint(id string, m map[string]string) (domain.Point, error) {
	p := domain.Point{ID: id}

	p.Dense = bytesToVector(m[fieldVector])

	if s, ok := m[fieldSparse]; ok && s != "" {
		sparse, err := sparseFromJSON(s)
		if err != nil {
			return domain.Point{}, fmt.Errorf("point %s: %w", id, err)
		}
		p.Sparse = sparse
	}

	p.Payload = domain.Payload{
		UserID:      m[fieldUserID],
		Subject:     m[fieldSubject],
		Counterpart: m[fieldCounterpart],
		Text:        m[fieldContent],
	}
	if ts, err := strconv.ParseInt(m[fieldSentDate], 10, 64); err == nil {
		p.Payload.SentDate = time.Unix(ts, 0).UTC()
	}

	return p, nil
}

// sparseToJSON serializes a sparse vector as a JSON object keyed by term index.
func sparseToJSON(v domain.SparseVector) (string, error) {
	m := make(map[string]float64, len(v))
	for idx, w := range v {
		m[strconv.FormatUint(uint64(idx), 10)] = w
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal sparse vector: %w", err)
	}
	return string(data), nil
}

func sparseFromJSON(s string) (domain.SparseVector, error) {
	var m map[string]float64
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshal sparse vector: %w", err)
	}
	v := make(domain.SparseVector, len(m))
	for k, w := range m {
		idx, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("sparse term index %q: %w", k, err)
		}
		v[uint32(idx)] = w
	}
	return v, nil
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
