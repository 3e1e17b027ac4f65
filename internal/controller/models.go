package controller

import (
	"encoding/json"
	"fmt"
	"tenderprep/internal/models"
)

// New preparation request

type NewPrepReq struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	OfficerIds  []string `json:"officerIds"`
	ManagerId   string   `json:"managerId"`
}

func ParseNewPrepReq(data []byte) (*NewPrepReq, error) {
	t := &NewPrepReq{}

	err := json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}

	if len(t.ManagerId) == 0 {
		return nil, fmt.Errorf("empty managerId supplied")
	}
	if len(t.OfficerIds) < 1 || len(t.OfficerIds) > 4 {
		return nil, fmt.Errorf("between 1 and 4 officers must be assigned, got %d", len(t.OfficerIds))
	}

	seen := make(map[string]bool, len(t.OfficerIds))
	for _, id := range t.OfficerIds {
		if len(id) == 0 {
			return nil, fmt.Errorf("empty officer id supplied")
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate officer id supplied: %s", id)
		}
		seen[id] = true
	}

	if err = checkLengthLimit(t.Name, "Name", 100); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(t.Description, "Description", 500); err != nil {
		return nil, err
	}
	if len(t.Name) == 0 {
		return nil, fmt.Errorf("empty name supplied")
	}

	return t, nil
}

// Edit content request

type PrepChangeReq map[string]string

func ParsePrepChangeReq(data []byte) (PrepChangeReq, error) {
	t := PrepChangeReq{}
	vals := make(map[string]interface{})

	err := json.Unmarshal(data, &vals)
	if err != nil {
		return nil, err
	}

	str, ok, err := checkRequestField(vals, "name", 100)
	if err != nil {
		return nil, err
	}
	if ok {
		t["name"] = str
	}

	str, ok, err = checkRequestField(vals, "description", 500)
	if err != nil {
		return nil, err
	}
	if ok {
		t["description"] = str
	}

	if len(t) == 0 {
		return nil, fmt.Errorf("no editable fields supplied")
	}

	return t, nil
}

// Manager decision request

type DecisionReq struct {
	Decision models.Decision `json:"decision"`
	Reason   string          `json:"reason"`
}

func ParseDecisionReq(data []byte) (*DecisionReq, error) {
	t := &DecisionReq{}

	err := json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}

	if !models.ValidManagerDecision(t.Decision) {
		return nil, fmt.Errorf("invalid decision supplied: %s, should be one of: %s, %s, %s",
			string(t.Decision), models.DecisionApproved, models.DecisionReturned, models.DecisionRejected)
	}
	if err = checkLengthLimit(t.Reason, "Reason", 500); err != nil {
		return nil, err
	}

	return t, nil
}

// Sign request

type SignReq struct {
	Signature []byte               `json:"signature"`
	Kind      models.SignatureKind `json:"kind"`
}

func ParseSignReq(data []byte) (*SignReq, error) {
	t := &SignReq{}

	err := json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}

	if len(t.Signature) == 0 {
		return nil, fmt.Errorf("empty signature supplied")
	}
	if !models.ValidSignatureKind(t.Kind) {
		return nil, fmt.Errorf("invalid signature kind supplied: %s, should be one of: %s, %s",
			string(t.Kind), models.SignatureDrawn, models.SignatureTyped)
	}

	return t, nil
}

// Comment update request

type CommentReq struct {
	Comment string `json:"comment"`
}

func ParseCommentReq(data []byte) (*CommentReq, error) {
	t := &CommentReq{}

	err := json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}

	if err = checkLengthLimit(t.Comment, "Comment", 1000); err != nil {
		return nil, err
	}

	return t, nil
}

// Service

func checkLengthLimit(str, fieldName string, limit int) error {
	if len(str) > limit {
		return fmt.Errorf("field '%s' exceeds length limit: %d / %d", fieldName, len(str), limit)
	}
	return nil
}

func checkRequestField(vals map[string]interface{}, key string, lengthLimit int) (string, bool, error) {
	val, ok := vals[key]
	if !ok {
		return "", false, nil
	}

	str, ok := val.(string)
	if !ok {
		return "", false, fmt.Errorf("invalid type of '%s' field", key)
	}

	if err := checkLengthLimit(str, key, lengthLimit); err != nil {
		return "", false, err
	}

	return str, true, nil
}
