package risk

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"stablemortgage/crypto"
)

type mockState struct {
	assessments map[[32]byte]*Assessment
}

func newMockState() *mockState {
	return &mockState{assessments: make(map[[32]byte]*Assessment)}
}

func (m *mockState) RiskAssessmentGet(propertyID [32]byte) (*Assessment, bool, error) {
	assessment, ok := m.assessments[propertyID]
	if !ok {
		return nil, false, nil
	}
	return assessment.Clone(), true, nil
}

func (m *mockState) RiskAssessmentPut(assessment *Assessment) error {
	m.assessments[assessment.PropertyID] = assessment.Clone()
	return nil
}

func testAddr(seed byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{seed}, 20))
}

func newTestEngine(t *testing.T, start time.Time) (*Engine, *time.Time) {
	t.Helper()
	engine := NewEngine()
	engine.SetState(newMockState())
	current := start
	engine.SetNowFunc(func() time.Time { return current })
	return engine, &current
}

func TestCreateSchedulesNextAssessment(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	engine, _ := newTestEngine(t, start)
	propertyID := [32]byte{0x01}

	assessment, err := engine.Create(testAddr(0x01), propertyID, 150_000, 40)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !assessment.Valid {
		t.Fatalf("new assessment should be valid")
	}
	wantNext := start.Add(ReassessmentInterval).Unix()
	if assessment.NextAssessmentAt != wantNext {
		t.Fatalf("next assessment: got %d want %d", assessment.NextAssessmentAt, wantNext)
	}
}

func TestCreateValidation(t *testing.T) {
	engine, _ := newTestEngine(t, time.Unix(1_700_000_000, 0))
	if _, err := engine.Create(testAddr(0x01), [32]byte{0x01}, 0, 40); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := engine.Create(testAddr(0x01), [32]byte{0x01}, 100, 0); !errors.Is(err, ErrInvalidRiskScore) {
		t.Fatalf("score 0: expected ErrInvalidRiskScore, got %v", err)
	}
	if _, err := engine.Create(testAddr(0x01), [32]byte{0x01}, 100, 101); !errors.Is(err, ErrInvalidRiskScore) {
		t.Fatalf("score 101: expected ErrInvalidRiskScore, got %v", err)
	}
}

func TestRefreshGatedByInterval(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	engine, clock := newTestEngine(t, start)
	authority := testAddr(0x01)
	propertyID := [32]byte{0x01}

	if _, err := engine.Create(authority, propertyID, 150_000, 40); err != nil {
		t.Fatalf("create: %v", err)
	}

	// One second short of the interval still fails.
	*clock = start.Add(ReassessmentInterval - time.Second)
	if _, err := engine.Refresh(authority, propertyID, 160_000, 45); !errors.Is(err, ErrAssessmentTooEarly) {
		t.Fatalf("expected ErrAssessmentTooEarly, got %v", err)
	}

	*clock = start.Add(ReassessmentInterval)
	refreshed, err := engine.Refresh(authority, propertyID, 160_000, 45)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AppraisedValue != 160_000 || refreshed.RiskScore != 45 {
		t.Fatalf("refresh did not update record: %+v", refreshed)
	}
	wantNext := clock.Add(ReassessmentInterval).Unix()
	if refreshed.NextAssessmentAt != wantNext {
		t.Fatalf("next assessment not advanced: got %d want %d", refreshed.NextAssessmentAt, wantNext)
	}
}

func TestRefreshRequiresAuthority(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	engine, clock := newTestEngine(t, start)
	propertyID := [32]byte{0x01}
	if _, err := engine.Create(testAddr(0x01), propertyID, 150_000, 40); err != nil {
		t.Fatalf("create: %v", err)
	}
	*clock = start.Add(ReassessmentInterval)
	if _, err := engine.Refresh(testAddr(0x02), propertyID, 160_000, 45); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestInvalidateIsPermanent(t *testing.T) {
	engine, _ := newTestEngine(t, time.Unix(1_700_000_000, 0))
	authority := testAddr(0x01)
	propertyID := [32]byte{0x01}
	if _, err := engine.Create(authority, propertyID, 150_000, 40); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Invalidate(authority, propertyID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if _, err := engine.Current(propertyID); !errors.Is(err, ErrInvalidAssessment) {
		t.Fatalf("expected ErrInvalidAssessment, got %v", err)
	}
	// Lookup still returns the record for fallback valuation.
	assessment, err := engine.Lookup(propertyID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if assessment.Valid {
		t.Fatalf("assessment still valid after invalidation")
	}
}
