package models

import "time"

type SignatureKind string

const (
	SignatureDrawn SignatureKind = "Drawn"
	SignatureTyped SignatureKind = "Typed"
)

func ValidSignatureKind(k SignatureKind) bool {
	return k == SignatureDrawn || k == SignatureTyped
}

// SignoffRecord holds one participant's signature slot. Exactly one
// slot exists per assigned officer plus one for the manager; the row
// is created lazily on first sign and cleared, not deleted, on un-sign.
// SignedAt is non-nil iff SignatureBlob is non-empty.
type SignoffRecord struct {
	PrepId        string          `json:"prepId"`
	ParticipantId string          `json:"participantId"`
	Role          ParticipantRole `json:"role"`
	SignatureBlob []byte          `json:"signatureBlob,omitempty"`
	SignatureKind SignatureKind   `json:"signatureKind,omitempty"`
	SignedAt      *time.Time      `json:"signedAt,omitempty"`
}

func (s *SignoffRecord) Signed() bool {
	return s.SignedAt != nil && len(s.SignatureBlob) > 0
}
