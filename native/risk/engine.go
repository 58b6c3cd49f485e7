package risk

import (
	"errors"
	"time"

	"stablemortgage/crypto"
)

// ReassessmentInterval is the minimum gap between two assessments of the same
// collateral item.
const ReassessmentInterval = 180 * 24 * time.Hour

const (
	// MinRiskScore and MaxRiskScore bound the numeric risk scale.
	MinRiskScore = 1
	MaxRiskScore = 100
)

var (
	ErrNilState           = errors.New("risk: state not configured")
	ErrNotFound           = errors.New("risk: assessment not found")
	ErrAlreadyAssessed    = errors.New("risk: assessment already exists")
	ErrInvalidRiskScore   = errors.New("risk: score out of range")
	ErrInvalidValue       = errors.New("risk: appraised value must be positive")
	ErrAssessmentTooEarly = errors.New("risk: reassessment interval has not elapsed")
	ErrInvalidAssessment  = errors.New("risk: assessment is not valid")
	ErrUnauthorized       = errors.New("risk: caller is not the assessment authority")
)

// Assessment records a periodic revaluation of one collateral item. Once the
// validity flag is cleared the record is unusable for LTV checks forever.
type Assessment struct {
	Authority        crypto.Address `json:"authority"`
	PropertyID       [32]byte       `json:"propertyId"`
	AppraisedValue   uint64         `json:"appraisedValue"`
	RiskScore        uint8          `json:"riskScore"`
	AssessedAt       int64          `json:"assessedAt"`
	NextAssessmentAt int64          `json:"nextAssessmentAt"`
	Valid            bool           `json:"valid"`
}

// Clone returns a copy of the assessment record.
func (a *Assessment) Clone() *Assessment {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

type engineState interface {
	RiskAssessmentGet(propertyID [32]byte) (*Assessment, bool, error)
	RiskAssessmentPut(assessment *Assessment) error
}

// Engine produces and refreshes collateral risk assessments.
type Engine struct {
	state engineState
	nowFn func() time.Time
}

// NewEngine constructs a risk engine with the default wall clock.
func NewEngine() *Engine {
	return &Engine{nowFn: func() time.Time { return time.Now().UTC() }}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() time.Time {
	if e == nil || e.nowFn == nil {
		return time.Now().UTC()
	}
	return e.nowFn()
}

func validateInputs(value uint64, score uint8) error {
	if value == 0 {
		return ErrInvalidValue
	}
	if score < MinRiskScore || score > MaxRiskScore {
		return ErrInvalidRiskScore
	}
	return nil
}

// Create records the first assessment for a collateral item and schedules the
// next eligible reassessment one interval out.
func (e *Engine) Create(authority crypto.Address, propertyID [32]byte, appraisedValue uint64, score uint8) (*Assessment, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := validateInputs(appraisedValue, score); err != nil {
		return nil, err
	}
	if _, exists, err := e.state.RiskAssessmentGet(propertyID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadyAssessed
	}

	now := e.now()
	assessment := &Assessment{
		Authority:        authority,
		PropertyID:       propertyID,
		AppraisedValue:   appraisedValue,
		RiskScore:        score,
		AssessedAt:       now.Unix(),
		NextAssessmentAt: now.Add(ReassessmentInterval).Unix(),
		Valid:            true,
	}
	if err := e.state.RiskAssessmentPut(assessment); err != nil {
		return nil, err
	}
	return assessment.Clone(), nil
}

// Refresh revalues an existing assessment. It fails until the reassessment
// interval has elapsed and otherwise behaves exactly like creation.
func (e *Engine) Refresh(caller crypto.Address, propertyID [32]byte, newValue uint64, newScore uint8) (*Assessment, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := validateInputs(newValue, newScore); err != nil {
		return nil, err
	}
	assessment, ok, err := e.state.RiskAssessmentGet(propertyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !assessment.Authority.Equal(caller) {
		return nil, ErrUnauthorized
	}
	now := e.now()
	if now.Unix() < assessment.NextAssessmentAt {
		return nil, ErrAssessmentTooEarly
	}

	assessment.AppraisedValue = newValue
	assessment.RiskScore = newScore
	assessment.AssessedAt = now.Unix()
	assessment.NextAssessmentAt = now.Add(ReassessmentInterval).Unix()
	if err := e.state.RiskAssessmentPut(assessment); err != nil {
		return nil, err
	}
	return assessment.Clone(), nil
}

// Invalidate permanently retires an assessment. There is no reverse
// operation; a new record requires a fresh property.
func (e *Engine) Invalidate(caller crypto.Address, propertyID [32]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	assessment, ok, err := e.state.RiskAssessmentGet(propertyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !assessment.Authority.Equal(caller) {
		return ErrUnauthorized
	}
	assessment.Valid = false
	return e.state.RiskAssessmentPut(assessment)
}

// Current loads the assessment for a collateral item, requiring it to be
// valid. Callers that tolerate an invalid assessment should use Lookup.
func (e *Engine) Current(propertyID [32]byte) (*Assessment, error) {
	assessment, err := e.Lookup(propertyID)
	if err != nil {
		return nil, err
	}
	if !assessment.Valid {
		return nil, ErrInvalidAssessment
	}
	return assessment, nil
}

// Lookup loads the assessment for a collateral item regardless of validity.
func (e *Engine) Lookup(propertyID [32]byte) (*Assessment, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	assessment, ok, err := e.state.RiskAssessmentGet(propertyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return assessment.Clone(), nil
}
